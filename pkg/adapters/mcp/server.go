package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/logging"
)

// TreeURI is the resource holding the loaded tree.
const TreeURI = "arbor://tree"

// ErrNotFound is reported when a path or search matches nothing.
var ErrNotFound = errors.New("item not found")

// Tree is the part of arbor.Tree the MCP tools need.
type Tree interface {
	Snapshot() []arbor.Node
	Children(ctx context.Context, it *arbor.Item) ([]*arbor.Item, error)
	FindByPath(ctx context.Context, contributor string, ids ...string) (*arbor.Item, error)
	FindByPredicate(ctx context.Context, match, descend arbor.Predicate) (*arbor.Item, error)
	Reset(ctx context.Context, contributor string) error
}

// RootsResponse is the result of list_roots.
type RootsResponse struct {
	Roots []arbor.Node `json:"roots" jsonschema_description:"Loaded contributor roots with their loaded descendants"`
}

// ItemResponse is the result of get_children and find.
type ItemResponse struct {
	Contributor string     `json:"contributor" jsonschema_description:"Contributor class owning the item"`
	Path        []string   `json:"path" jsonschema_description:"Value IDs from the contributor root to the item"`
	Node        arbor.Node `json:"node" jsonschema_description:"The item with its children loaded"`
}

// ChildrenArgs are the arguments of get_children.
type ChildrenArgs struct {
	Contributor string `json:"contributor"`
	Path        string `json:"path,omitempty"`
}

// FindArgs are the arguments of find.
type FindArgs struct {
	ID   string `json:"id,omitempty"`
	Text string `json:"text,omitempty"`
}

// RefreshArgs are the arguments of refresh.
type RefreshArgs struct {
	Contributor string `json:"contributor"`
}

// Server exposes a tree as an MCP server.
type Server struct {
	tree      Tree
	mcpServer *server.MCPServer
	logger    *slog.Logger
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Server) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewServer creates a new MCP Server instance.
func NewServer(tree Tree, opts ...Option) *Server {
	s := &Server{
		tree:   tree,
		logger: logging.NewNop(),
		mcpServer: server.NewMCPServer("arbor-mcp", strings.TrimSpace(arbor.Version),
			server.WithToolCapabilities(false),
			server.WithResourceCapabilities(false, false),
		),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.registerTools()
	s.registerResources()
	return s
}

// MCPServer returns the underlying server, for custom transports.
func (s *Server) MCPServer() *server.MCPServer {
	return s.mcpServer
}

// ServeStdio starts the server on Stdin/Stdout.
func (s *Server) ServeStdio() error {
	return server.ServeStdio(s.mcpServer)
}

// ServeSSE serves MCP over SSE on addr until ctx is done.
func (s *Server) ServeSSE(ctx context.Context, addr string) error {
	baseURL := "http://" + addr
	if strings.HasPrefix(addr, ":") {
		baseURL = "http://localhost" + addr
	}
	sseServer := server.NewSSEServer(s.mcpServer, server.WithBaseURL(baseURL))

	mux := http.NewServeMux()
	mux.Handle("/sse", corsMiddleware(sseServer.SSEHandler()))
	mux.Handle("/message", corsMiddleware(sseServer.MessageHandler()))
	httpServer := &http.Server{Addr: addr, Handler: mux}

	serverErrors := make(chan error, 1)
	go func() {
		s.logger.Info("MCP Server listening (SSE)", "address", addr)
		serverErrors <- httpServer.ListenAndServe()
	}()

	select {
	case err := <-serverErrors:
		return err
	case <-ctx.Done():
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("could not stop server gracefully: %w", err)
		}
		return nil
	}
}

func corsMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Access-Control-Allow-Origin", "*")
		w.Header().Set("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		w.Header().Set("Access-Control-Allow-Headers", "Content-Type, Authorization, X-Requested-With")
		if r.Method == "OPTIONS" {
			w.WriteHeader(http.StatusOK)
			return
		}
		next.ServeHTTP(w, r)
	})
}

func (s *Server) registerTools() {
	s.mcpServer.AddTool(mcp.NewTool("list_roots",
		mcp.WithDescription("List contributor roots and whatever is already loaded below them. Never triggers a load."),
		mcp.WithOutputSchema[RootsResponse](),
	), mcp.NewStructuredToolHandler(s.handleListRoots))

	s.mcpServer.AddTool(mcp.NewTool("get_children",
		mcp.WithDescription("Load and return the item at a path, with its direct children."),
		mcp.WithString("contributor", mcp.Required(), mcp.Description("Contributor class, e.g. docker")),
		mcp.WithString("path", mcp.Description("Slash separated value IDs below the contributor root (optional)")),
		mcp.WithOutputSchema[ItemResponse](),
	), mcp.NewStructuredToolHandler(s.handleGetChildren))

	s.mcpServer.AddTool(mcp.NewTool("find",
		mcp.WithDescription("Search the whole tree, loading lazy subtrees when needed, for a service by ID or text."),
		mcp.WithString("id", mcp.Description("Value ID to look for")),
		mcp.WithString("text", mcp.Description("Display text to look for, case insensitive")),
		mcp.WithOutputSchema[ItemResponse](),
	), mcp.NewStructuredToolHandler(s.handleFind))

	s.mcpServer.AddTool(mcp.NewTool("refresh",
		mcp.WithDescription("Rebuild the subtree of one contributor from scratch."),
		mcp.WithString("contributor", mcp.Required(), mcp.Description("Contributor class to rebuild")),
	), mcp.NewStructuredToolHandler(s.handleRefresh))
}

func (s *Server) handleListRoots(ctx context.Context, request mcp.CallToolRequest, args map[string]any) (RootsResponse, error) {
	return RootsResponse{Roots: s.tree.Snapshot()}, nil
}

func (s *Server) handleGetChildren(ctx context.Context, request mcp.CallToolRequest, args ChildrenArgs) (ItemResponse, error) {
	if args.Contributor == "" {
		return ItemResponse{}, errors.New("contributor is required")
	}
	var ids []string
	if p := strings.Trim(args.Path, "/"); p != "" {
		ids = strings.Split(p, "/")
	}
	it, err := s.tree.FindByPath(ctx, args.Contributor, ids...)
	if err != nil {
		return ItemResponse{}, fmt.Errorf("lookup failed: %w", err)
	}
	if it == nil {
		return ItemResponse{}, fmt.Errorf("%w: %s/%s", ErrNotFound, args.Contributor, strings.Join(ids, "/"))
	}
	return s.describe(ctx, it)
}

func (s *Server) handleFind(ctx context.Context, request mcp.CallToolRequest, args FindArgs) (ItemResponse, error) {
	var match arbor.Predicate
	switch {
	case args.ID != "":
		match = func(it *arbor.Item) bool { return it.ID() == args.ID }
	case args.Text != "":
		match = func(it *arbor.Item) bool { return strings.EqualFold(it.Text(), args.Text) }
	default:
		return ItemResponse{}, errors.New("id or text is required")
	}
	it, err := s.tree.FindByPredicate(ctx, match, nil)
	if err != nil {
		return ItemResponse{}, fmt.Errorf("search failed: %w", err)
	}
	if it == nil {
		return ItemResponse{}, ErrNotFound
	}
	return s.describe(ctx, it)
}

func (s *Server) handleRefresh(ctx context.Context, request mcp.CallToolRequest, args RefreshArgs) (RootsResponse, error) {
	if args.Contributor == "" {
		return RootsResponse{}, errors.New("contributor is required")
	}
	if err := s.tree.Reset(ctx, args.Contributor); err != nil {
		s.logger.Warn("MCP Refresh failed", "contributor", args.Contributor, "err", err)
		return RootsResponse{}, fmt.Errorf("refresh failed: %w", err)
	}
	return RootsResponse{Roots: s.tree.Snapshot()}, nil
}

func (s *Server) describe(ctx context.Context, it *arbor.Item) (ItemResponse, error) {
	if _, err := s.tree.Children(ctx, it); err != nil {
		return ItemResponse{}, fmt.Errorf("load failed: %w", err)
	}
	contributor, path := arbor.Path(it)
	return ItemResponse{Contributor: contributor, Path: path, Node: arbor.NodeOf(it)}, nil
}

func (s *Server) registerResources() {
	s.mcpServer.AddResource(mcp.NewResource(TreeURI, "Loaded Service Tree",
		mcp.WithResourceDescription("Snapshot of the loaded part of the tree"),
		mcp.WithMIMEType("application/json"),
	), s.readTree)
}

func (s *Server) readTree(ctx context.Context, request mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
	data, err := json.Marshal(s.tree.Snapshot())
	if err != nil {
		return nil, fmt.Errorf("failed to encode tree: %w", err)
	}
	return []mcp.ResourceContents{
		mcp.TextResourceContents{
			URI:      TreeURI,
			MIMEType: "application/json",
			Text:     string(data),
		},
	}, nil
}
