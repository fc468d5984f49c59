package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/pkg/domain"
)

var publishCmd = &cobra.Command{
	Use:   "publish <kind> <contributor> [target] [parent]",
	Short: "Publish a change event on the configured Redis channel",
	Example: `  arbor publish reset docker
  arbor publish added docker web compose-host`,
	Args: cobra.RangeArgs(2, 4),
	RunE: func(cmd *cobra.Command, args []string) error {
		kind := domain.EventKind(args[0])
		if !kind.Valid() {
			return fmt.Errorf("unknown event kind %q", args[0])
		}
		ev := domain.Event{Kind: kind, Contributor: args[1]}
		if len(args) > 2 {
			ev.Target = domain.Ref(args[2])
		}
		if len(args) > 3 {
			ev.Parent = domain.Ref(args[3])
		}
		return cli.RunPublish(cmd.Context(), options(cmd), ev)
	},
}

func init() {
	rootCmd.AddCommand(publishCmd)
}
