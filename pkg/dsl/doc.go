/*
Package dsl provides a fluent builder for in-memory contributors.

It is the programmatic counterpart of the contributors section of the CLI
configuration, and the quickest way to lay out a tree in tests.

Example usage:

	package main

	import (
		"github.com/aretw0/arbor/pkg/dsl"
	)

	func main() {
		b := dsl.New("docker").Text("Docker").Grouped().OrderByText()
		b.Group("compose", "Compose", 10)

		b.Service("web").Text("Web").In("compose")
		b.Service("db").In("compose").
			Children("db-replicas").Lazy().
			Service("replica-1")

		contributor, err := b.Build()
		// ... register contributor with registry.NewRegistry(contributor)
	}
*/
package dsl
