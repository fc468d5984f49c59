package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/internal/presentation/graph"
	"github.com/aretw0/arbor/internal/presentation/tui"
	"github.com/aretw0/arbor/internal/watch"
	httpAdapter "github.com/aretw0/arbor/pkg/adapters/http"
	"github.com/aretw0/arbor/pkg/adapters/loam"
	"github.com/aretw0/arbor/pkg/adapters/mcp"
	"github.com/aretw0/arbor/pkg/domain"
)

// Options are the flags shared by every command.
type Options struct {
	ConfigPath     string
	ConfigExplicit bool
	Debug          bool
	Out            io.Writer
}

// TreeOptions configure RunTree.
type TreeOptions struct {
	Expand      bool
	IDs         bool
	Contributor string
	// Format is "text" (default), "mermaid" or "json".
	Format string
	// Highlight lists item IDs to mark in Mermaid output.
	Highlight []string
}

// ServeOptions configure RunServe. Empty addresses fall back to the config.
type ServeOptions struct {
	Addr    string
	MCPAddr string
	NoMCP   bool
}

// open loads the configuration and starts an App.
func open(ctx context.Context, opts Options) (*App, *slog.Logger, error) {
	cfg, err := config.Load(opts.ConfigPath, opts.ConfigExplicit)
	if err != nil {
		return nil, nil, err
	}
	logger, err := createLogger(cfg.LogLevel, opts.Debug)
	if err != nil {
		return nil, nil, err
	}
	app, err := NewApp(cfg, logger)
	if err != nil {
		return nil, nil, err
	}
	if err := app.Tree.Start(ctx); err != nil {
		app.Close()
		return nil, nil, fmt.Errorf("failed to start tree: %w", err)
	}
	return app, logger, nil
}

// RunTree prints the tree once.
func RunTree(ctx context.Context, opts Options, topts TreeOptions) error {
	app, _, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()
	return printTree(ctx, app.Tree, opts.Out, topts)
}

func printTree(ctx context.Context, tree *arbor.Tree, out io.Writer, topts TreeOptions) error {
	if topts.Expand {
		// A search that never matches visits, and so loads, every subtree.
		if _, err := tree.FindByPredicate(ctx, func(*arbor.Item) bool { return false }, nil); err != nil {
			return err
		}
	}

	nodes := tree.Snapshot()
	if topts.Contributor != "" {
		v, err := tree.OpenContributor(ctx, topts.Contributor)
		if err != nil {
			return err
		}
		defer v.Close(ctx)
		top := arbor.Node{ID: topts.Contributor, Kind: "contributor", Text: v.Title()}
		for _, it := range v.Roots() {
			top.Children = append(top.Children, arbor.NodeOf(it))
		}
		nodes = []arbor.Node{top}
	}

	switch topts.Format {
	case "", "text":
		var popts []tui.TreeOption
		if topts.IDs {
			popts = append(popts, tui.WithIDs())
		}
		tui.NewTreePrinter(out, popts...).Print(nodes)
	case "mermaid":
		var overlay *graph.Overlay
		if len(topts.Highlight) > 0 {
			overlay = &graph.Overlay{Highlighted: topts.Highlight}
		}
		fmt.Fprint(out, graph.GenerateMermaid(nodes, overlay))
	case "json":
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(nodes)
	default:
		return fmt.Errorf("unknown format: %s. Supported: text, mermaid, json", topts.Format)
	}
	return nil
}

// RunShow prints one service. Documents are rendered as Markdown.
func RunShow(ctx context.Context, opts Options, id string) error {
	app, _, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	it, err := app.Tree.FindByID(ctx, id)
	if err != nil {
		return err
	}
	if it == nil {
		return fmt.Errorf("service %q not found", id)
	}

	if doc, ok := it.Value().(*loam.Document); ok && doc.Body != "" {
		render, err := tui.NewRenderer(tui.Width(opts.Out))
		if err != nil {
			return err
		}
		out, err := render("# " + doc.Text() + "\n\n" + doc.Body)
		if err != nil {
			return err
		}
		fmt.Fprint(opts.Out, out)
		return nil
	}

	if _, err := app.Tree.Children(ctx, it); err != nil {
		return err
	}
	contributor, path := arbor.Path(it)
	printSystemMessage(opts.Out, "%s: %v", contributor, path)
	tui.NewTreePrinter(opts.Out).Print([]arbor.Node{arbor.NodeOf(it)})
	return nil
}

// RunServe serves the HTTP API and, unless disabled, MCP over SSE until ctx
// is done.
func RunServe(ctx context.Context, opts Options, sopts ServeOptions) error {
	app, logger, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	addr := sopts.Addr
	if addr == "" {
		addr = app.Config.HTTP.Addr
	}
	mcpAddr := sopts.MCPAddr
	if mcpAddr == "" {
		mcpAddr = app.Config.MCP.Addr
	}

	httpOpts := []httpAdapter.Option{httpAdapter.WithLogger(logger)}
	if app.Config.HTTP.Metrics {
		httpOpts = append(httpOpts, httpAdapter.WithMetrics(app.Metrics.Handler()))
	}
	handler := httpAdapter.NewServer(app.Tree, httpOpts...)
	defer handler.Close()
	srv := &http.Server{Addr: addr, Handler: handler}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		logger.Info("HTTP Server listening", "address", addr)
		printSystemMessage(opts.Out, "Serving tree on %s", addr)
		if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
			return err
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})
	if !sopts.NoMCP {
		g.Go(func() error {
			err := mcp.NewServer(app.Tree, mcp.WithLogger(logger)).ServeSSE(gctx, mcpAddr)
			if errors.Is(err, http.ErrServerClosed) {
				return nil
			}
			return err
		})
	}
	return g.Wait()
}

// RunMCP serves MCP over stdio or SSE.
func RunMCP(ctx context.Context, opts Options, transport, addr string) error {
	app, logger, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()

	srv := mcp.NewServer(app.Tree, mcp.WithLogger(logger))
	switch transport {
	case "stdio":
		logger.Info("Starting arbor MCP Server (Stdio)")
		return srv.ServeStdio()
	case "sse":
		if addr == "" {
			addr = app.Config.MCP.Addr
		}
		err := srv.ServeSSE(ctx, addr)
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	}
	return fmt.Errorf("unknown transport: %s. Supported: stdio, sse", transport)
}

// RunPublish sends one event on the configured Redis channel.
func RunPublish(ctx context.Context, opts Options, ev domain.Event) error {
	cfg, err := config.Load(opts.ConfigPath, opts.ConfigExplicit)
	if err != nil {
		return err
	}
	if cfg.Redis.Addr == "" {
		return errors.New("redis.addr is not configured")
	}
	app, err := NewApp(config.Config{Redis: cfg.Redis}, logging.NewNop())
	if err != nil {
		return err
	}
	defer app.Close()
	if err := app.Bus.Publish(ctx, ev); err != nil {
		return err
	}
	printSystemMessage(opts.Out, "Published %s on %s", ev, app.Bus.Channel())
	return nil
}

// RunWatch prints the tree and reprints it on every change. Edits to the
// configuration file are applied to the running tree.
func RunWatch(ctx context.Context, opts Options, topts TreeOptions) error {
	app, logger, err := open(ctx, opts)
	if err != nil {
		return err
	}
	defer app.Close()
	tui.PrintBanner(opts.Out, arbor.Version)

	changed := make(chan struct{}, 1)
	id := app.Tree.Subscribe(func(ctx context.Context, ev domain.Event) {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer app.Tree.Unsubscribe(id)

	configChanges, err := watch.File(ctx, opts.ConfigPath, 0, func(err error) {
		logger.Warn("Config watch error", "err", err)
	})
	if err != nil {
		logger.Warn("Config file not watched", "path", opts.ConfigPath, "err", err)
	}

	if err := printTree(ctx, app.Tree, opts.Out, topts); err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case _, ok := <-configChanges:
			if !ok {
				configChanges = nil
				continue
			}
			cfg, err := config.Load(opts.ConfigPath, true)
			if err != nil {
				logger.Error("Config reload failed", "err", err)
				printSystemMessage(opts.Out, "Config rejected: %v", err)
				continue
			}
			if err := app.Reload(ctx, cfg); err != nil {
				logger.Error("Config reload incomplete", "err", err)
			}
			printSystemMessage(opts.Out, "Config reloaded.")
		case <-changed:
			printSystemMessage(opts.Out, "Tree changed.")
			if err := printTree(ctx, app.Tree, opts.Out, topts); err != nil {
				return err
			}
		}
	}
}
