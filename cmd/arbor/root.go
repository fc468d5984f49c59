package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
	"github.com/aretw0/arbor/internal/config"
)

var rootCmd = &cobra.Command{
	Use:   "arbor",
	Short: "Arbor keeps a live tree of services from many contributors",
	Long: `Arbor merges the services of static, document and remote contributors into one
tree, keeps it current from change events and exposes it over HTTP and MCP.`,
	SilenceUsage: true,
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringP("config", "c", config.DefaultPath, "Configuration file")
	rootCmd.PersistentFlags().Bool("debug", false, "Log at debug level to stderr")
}

// options reads the persistent flags.
func options(cmd *cobra.Command) cli.Options {
	path, _ := cmd.Flags().GetString("config")
	debug, _ := cmd.Flags().GetBool("debug")
	return cli.Options{
		ConfigPath:     path,
		ConfigExplicit: cmd.Flags().Changed("config"),
		Debug:          debug,
		Out:            cmd.OutOrStdout(),
	}
}

func treeOptions(cmd *cobra.Command) cli.TreeOptions {
	expand, _ := cmd.Flags().GetBool("expand")
	ids, _ := cmd.Flags().GetBool("ids")
	contributor, _ := cmd.Flags().GetString("contributor")
	format, _ := cmd.Flags().GetString("format")
	highlight, _ := cmd.Flags().GetStringSlice("highlight")
	return cli.TreeOptions{
		Expand:      expand,
		IDs:         ids,
		Contributor: contributor,
		Format:      format,
		Highlight:   highlight,
	}
}

func addTreeFlags(cmd *cobra.Command) {
	cmd.Flags().BoolP("expand", "e", false, "Load lazy subtrees before printing")
	cmd.Flags().Bool("ids", false, "Show value IDs next to labels")
	cmd.Flags().String("contributor", "", "Only print one contributor")
	cmd.Flags().StringP("format", "f", "text", "Output format: text, mermaid or json")
	cmd.Flags().StringSlice("highlight", nil, "Item IDs to highlight in mermaid output")
}
