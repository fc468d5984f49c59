package main

import (
	"github.com/spf13/cobra"

	"github.com/aretw0/arbor/internal/cli"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Serve the tree over HTTP and MCP (SSE)",
	Long: `Starts the tree and exposes it as a JSON API with a Server-Sent Events change
stream. Unless --no-mcp is given, an MCP server is started over SSE as well.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		addr, _ := cmd.Flags().GetString("addr")
		mcpAddr, _ := cmd.Flags().GetString("mcp-addr")
		noMCP, _ := cmd.Flags().GetBool("no-mcp")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()
		return cli.RunServe(ctx, options(cmd), cli.ServeOptions{Addr: addr, MCPAddr: mcpAddr, NoMCP: noMCP})
	},
}

var mcpCmd = &cobra.Command{
	Use:   "mcp",
	Short: "Run the Model Context Protocol (MCP) server",
	Long: `Starts the tree as an MCP Server.

Supported Transports:
- stdio (default): Uses Standard Input/Output. Ideal for local process integration.
- sse: Uses Server-Sent Events over HTTP. Ideal for remote agents or debuggers.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		transport, _ := cmd.Flags().GetString("transport")
		addr, _ := cmd.Flags().GetString("addr")

		ctx := cli.NewSignalContext(cmd.Context())
		defer ctx.Cancel()
		return cli.RunMCP(ctx, options(cmd), transport, addr)
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "HTTP listen address (default from config)")
	serveCmd.Flags().String("mcp-addr", "", "MCP SSE listen address (default from config)")
	serveCmd.Flags().Bool("no-mcp", false, "Do not start the MCP server")

	mcpCmd.Flags().String("transport", "stdio", "Transport protocol to use: 'stdio' or 'sse'")
	mcpCmd.Flags().String("addr", "", "Listen address (only for SSE)")

	rootCmd.AddCommand(serveCmd, mcpCmd)
}
