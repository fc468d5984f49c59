// Package http exposes a tree over a small read API: loaded snapshots, path
// lookups, searches, a Server-Sent Events change stream and an event inbox.
package http
