/*
Package arbor maintains a live, lazily populated tree of services contributed
by an open set of providers.

Contributors list services, optionally arranged under groups, ordered by a
comparator, or hosting children of their own. The tree merges them under one
root per contributor and keeps itself consistent as contributors push change
events from any goroutine: every mutation runs on a single executor while
readers walk immutable child snapshots without locks.

# Concept

A Tree is built over a registry of contributors. Start (or Refresh) enumerates
them; from then on events such as Added, Removed or GroupChanged patch the tree
in place. Children of services that host a contributor are fetched on demand,
and searches visit already loaded structure before forcing lazy subtrees.

Views are filtered projections of the same tree. Each view owns a filter in a
chain shared by all views of the tree, so extracting a contributor or a group
into its own view hides it from the view it was taken from.

# Usage

	package main

	import (
		"context"
		"fmt"
		"log"

		"github.com/aretw0/arbor"
		"github.com/aretw0/arbor/pkg/adapters/memory"
		"github.com/aretw0/arbor/pkg/registry"
	)

	func main() {
		docker := memory.New("docker", memory.WithGrouping())
		reg, err := registry.NewRegistry(docker)
		if err != nil {
			log.Fatal(err)
		}

		tree, err := arbor.New(reg)
		if err != nil {
			log.Fatal(err)
		}
		defer tree.Close()

		ctx := context.Background()
		if err := tree.Start(ctx); err != nil {
			log.Fatal(err)
		}

		ev := docker.Add(&memory.Service{Key: "web", Groups: []string{"compose"}})
		if err := tree.Apply(ctx, ev); err != nil {
			log.Fatal(err)
		}

		web, _ := tree.FindByID(ctx, "web")
		fmt.Println(web.Parent().ID()) // compose
	}
*/
package arbor
