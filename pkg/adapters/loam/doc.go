/*
Package loam contributes services described by documents in a Loam repository.

Each Markdown, JSON or YAML document is one service. Its frontmatter names the
title, icon and group path; documents without explicit groups are grouped by
their directory. The body is kept for presentation.

	---
	title: Postgres
	icon: database
	groups: [infra, storage]
	metadata:
	  port: 5432
	---
	Primary database.

The contributor also acts as an event source: any change in the repository is
reported as a Reset of the contributor, so the tree rebuilds its branch.
*/
package loam
