package cli

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"sync"

	"github.com/aretw0/arbor"
	"github.com/aretw0/arbor/internal/config"
	"github.com/aretw0/arbor/pkg/adapters/loam"
	"github.com/aretw0/arbor/pkg/adapters/process"
	"github.com/aretw0/arbor/pkg/adapters/redis"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/observability"
	"github.com/aretw0/arbor/pkg/ports"
	"github.com/aretw0/arbor/pkg/registry"
)

// App is a tree wired from configuration, with the adapters it needs.
type App struct {
	Tree    *arbor.Tree
	Metrics *observability.Metrics
	Docs    *loam.Contributor
	Bus     *redis.Bus
	Config  config.Config

	logger *slog.Logger
	mu     sync.Mutex
	static []string
}

// NewApp builds the registry, event sources and tree described by cfg.
// The tree is not started.
func NewApp(cfg config.Config, logger *slog.Logger) (*App, error) {
	app := &App{Config: cfg, logger: logger}

	var contributors []ports.Contributor
	for _, cc := range cfg.Contributors {
		c, err := cc.Build()
		if err != nil {
			return nil, fmt.Errorf("contributor %s: %w", cc.Name, err)
		}
		contributors = append(contributors, c)
		app.static = append(app.static, cc.Name)
	}

	var sources mergeSources
	for _, pc := range cfg.Commands {
		c, err := process.New(pc, process.WithLogger(logger))
		if err != nil {
			return nil, err
		}
		contributors = append(contributors, c)
		if pc.Poll > 0 {
			sources = append(sources, c)
		}
	}
	if cfg.Docs.Dir != "" {
		docs, err := loam.Open(cfg.Docs.Name, cfg.Docs.Dir,
			loam.WithText(cfg.Docs.Text),
			loam.WithLogger(logger),
		)
		if err != nil {
			return nil, err
		}
		app.Docs = docs
		contributors = append(contributors, docs)
		if cfg.Docs.Watch {
			sources = append(sources, docs)
		}
	}
	if cfg.Redis.Addr != "" {
		var opts []redis.Option
		if cfg.Redis.Channel != "" {
			opts = append(opts, redis.WithChannel(cfg.Redis.Channel))
		}
		opts = append(opts, redis.WithLogger(logger))
		app.Bus = redis.New(cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB, opts...)
		sources = append(sources, app.Bus)
	}

	reg, err := registry.NewRegistry(contributors...)
	if err != nil {
		return nil, err
	}

	app.Metrics, err = observability.NewMetrics()
	if err != nil {
		return nil, err
	}

	opts := []arbor.Option{
		arbor.WithLogger(logger),
		arbor.WithLifecycleHooks(observability.Combine(app.Metrics.Hooks(), observability.LogHooks(logger))),
		arbor.WithLoadTimeout(cfg.LoadTimeout),
		arbor.WithFetchLimit(cfg.FetchLimit),
	}
	switch len(sources) {
	case 0:
	case 1:
		opts = append(opts, arbor.WithEventSource(sources[0]))
	default:
		opts = append(opts, arbor.WithEventSource(sources))
	}

	app.Tree, err = arbor.New(reg, opts...)
	if err != nil {
		return nil, err
	}
	return app, nil
}

// Close stops the tree and releases the adapters.
func (a *App) Close() {
	a.Tree.Close()
	if a.Bus != nil {
		if err := a.Bus.Close(); err != nil {
			a.logger.Warn("Redis close failed", "err", err)
		}
	}
}

// Reload applies the static contributors of cfg to the running tree:
// new ones are added, known ones replaced in place and missing ones removed.
// Other settings, commands included, only take effect on restart.
func (a *App) Reload(ctx context.Context, cfg config.Config) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	var errs []error
	next := make([]string, 0, len(cfg.Contributors))
	for _, cc := range cfg.Contributors {
		c, err := cc.Build()
		if err != nil {
			errs = append(errs, fmt.Errorf("contributor %s: %w", cc.Name, err))
			continue
		}
		next = append(next, cc.Name)
		if _, ok := a.Tree.Registry().Lookup(cc.Name); ok {
			err = a.Tree.ReplaceContributor(ctx, c)
		} else {
			err = a.Tree.AddContributor(ctx, c)
		}
		if err != nil {
			errs = append(errs, fmt.Errorf("contributor %s: %w", cc.Name, err))
		}
	}
	for _, name := range a.static {
		if slices.Contains(next, name) {
			continue
		}
		if err := a.Tree.RemoveContributor(ctx, name); err != nil && !errors.Is(err, domain.ErrUnknownContributor) {
			errs = append(errs, fmt.Errorf("contributor %s: %w", name, err))
		}
	}
	a.static = next
	a.Config.Contributors = cfg.Contributors
	return errors.Join(errs...)
}
