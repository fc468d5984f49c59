package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
)

var treeCmd = &cobra.Command{
	Use:   "tree",
	Short: "Print the services tree",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.RunTree(cmd.Context(), options(cmd), treeOptions(cmd))
	},
}

var showCmd = &cobra.Command{
	Use:   "show <id>",
	Short: "Show one service, rendering its document when it has one",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return cli.RunShow(cmd.Context(), options(cmd), args[0])
	},
}

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Print the tree and reprint it on every change",
	Long: `Prints the tree, then reprints it whenever an event changes it.
Edits to the configuration file add, replace or remove static contributors
without a restart.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()
		return cli.RunWatch(ctx, options(cmd), treeOptions(cmd))
	},
}

func init() {
	addTreeFlags(treeCmd)
	addTreeFlags(watchCmd)
	rootCmd.AddCommand(treeCmd, showCmd, watchCmd)
}
