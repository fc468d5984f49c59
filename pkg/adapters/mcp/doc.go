// Package mcp exposes a tree to MCP clients: tools to list, expand, search and
// refresh it, and the arbor://tree resource with the loaded snapshot.
package mcp
