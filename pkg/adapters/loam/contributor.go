package loam

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"github.com/aretw0/loam"
	"github.com/aretw0/loam/pkg/core"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// WatchPattern selects the documents whose changes trigger a rebuild.
const WatchPattern = "**/*.{md,json,yaml,yml}"

// group is a directory or declared group segment.
type group string

func (g group) ID() string { return string(g) }

// Contributor adapts a Loam repository to ports.Contributor.
type Contributor struct {
	name   string
	text   string
	repo   *loam.TypedRepository[ServiceMetadata]
	logger *slog.Logger

	mu   sync.RWMutex
	docs map[string]*Document
}

// Option configures a Contributor.
type Option func(*Contributor)

// WithText sets the text of the contributor root. Defaults to the name.
func WithText(text string) Option {
	return func(c *Contributor) {
		c.text = text
	}
}

// WithLogger sets the logger used for watch diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Contributor) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New creates a contributor over repo.
func New(name string, repo *loam.TypedRepository[ServiceMetadata], opts ...Option) *Contributor {
	c := &Contributor{
		name:   name,
		text:   name,
		repo:   repo,
		logger: logging.NewNop(),
		docs:   make(map[string]*Document),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Open initializes a read-only Loam repository at dir and wraps it.
func Open(name, dir string, opts ...Option) (*Contributor, error) {
	repo, err := loam.Init(dir,
		loam.WithStrict(true),
		loam.WithReadOnly(true),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize loam: %w", err)
	}
	return New(name, loam.NewTypedRepository[ServiceMetadata](repo), opts...), nil
}

// Name implements ports.Contributor.
func (c *Contributor) Name() string { return c.name }

// Descriptor implements ports.Contributor.
func (c *Contributor) Descriptor() domain.Descriptor {
	return domain.Descriptor{Text: c.text, Icon: "folder"}
}

// Capabilities implements ports.Capable.
func (c *Contributor) Capabilities() ports.Capabilities {
	return ports.Capabilities{
		Groups:          c.Groups,
		GroupDescriptor: c.GroupDescriptor,
		Compare:         c.Compare,
		Resolve:         c.Resolve,
	}
}

// Services implements ports.Contributor. Two documents resolving to the same
// key are reported as an error.
func (c *Contributor) Services(ctx context.Context) ([]domain.Value, error) {
	docs, err := c.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("loam list failed: %w", err)
	}

	seen := make(map[string]*Document, len(docs))
	out := make([]domain.Value, 0, len(docs))
	for _, doc := range docs {
		d := newDocument(doc.ID, doc.Data, doc.Content)
		if prev, ok := seen[d.Key]; ok {
			return nil, fmt.Errorf("collision detected: ID '%s' is defined in both '%s' and '%s'", d.Key, prev.Path, d.Path)
		}
		seen[d.Key] = d
		out = append(out, d)
	}

	c.mu.Lock()
	c.docs = seen
	c.mu.Unlock()
	return out, nil
}

// ServiceDescriptor implements ports.Contributor.
func (c *Contributor) ServiceDescriptor(v domain.Value) (domain.Descriptor, error) {
	d, ok := c.document(v)
	if !ok {
		return domain.Descriptor{}, fmt.Errorf("unknown document %q", v.ID())
	}
	return domain.Descriptor{
		Text:    d.Text(),
		Icon:    d.Icon,
		Tooltip: d.Description,
		Actions: d.Actions,
	}, nil
}

// Groups implements ports.Grouping.
func (c *Contributor) Groups(v domain.Value) ([]domain.Value, error) {
	d, ok := c.document(v)
	if !ok {
		return nil, nil
	}
	path := make([]domain.Value, len(d.Groups))
	for i, g := range d.Groups {
		path[i] = group(g)
	}
	return path, nil
}

// GroupDescriptor implements ports.Grouping.
func (c *Contributor) GroupDescriptor(key domain.Value) (domain.Descriptor, error) {
	return domain.Descriptor{Text: key.ID(), Icon: "folder"}, nil
}

// Compare implements ports.Ordered: natural order of the document titles.
func (c *Contributor) Compare(a, b domain.Value) int {
	return domain.NaturalCompare(c.text(a), c.text(b))
}

// Resolve implements ports.Resolver against the last listing.
func (c *Contributor) Resolve(id string) (domain.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.docs[id]
	if !ok {
		return nil, false
	}
	return d, true
}

// Document returns the document behind a service key, listing the
// repository if the key is not known yet.
func (c *Contributor) Document(ctx context.Context, key string) (*Document, error) {
	if d, ok := c.document(domain.Ref(key)); ok {
		return d, nil
	}
	if _, err := c.Services(ctx); err != nil {
		return nil, err
	}
	if d, ok := c.document(domain.Ref(key)); ok {
		return d, nil
	}
	return nil, fmt.Errorf("unknown document %q", key)
}

// Events implements ports.EventSource. Every repository change becomes a
// Reset of this contributor.
func (c *Contributor) Events(ctx context.Context) (<-chan domain.Event, error) {
	changes, err := c.repo.Watch(ctx, WatchPattern)
	if err != nil {
		return nil, fmt.Errorf("failed to start loam watcher: %w", err)
	}
	return c.relay(ctx, changes), nil
}

// relay turns Loam change notifications into Reset events. Loam debounces
// bursts itself.
func (c *Contributor) relay(ctx context.Context, changes <-chan core.Event) <-chan domain.Event {
	out := make(chan domain.Event, 1)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case evt, ok := <-changes:
				if !ok {
					return
				}
				c.logger.Debug("Document changed", "contributor", c.name, "doc", evt.ID)
				select {
				case out <- domain.Reset(c.name):
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out
}

func (c *Contributor) document(v domain.Value) (*Document, bool) {
	if d, ok := v.(*Document); ok {
		return d, true
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	d, ok := c.docs[v.ID()]
	return d, ok
}

func (c *Contributor) text(v domain.Value) string {
	if d, ok := c.document(v); ok {
		return d.Text()
	}
	return v.ID()
}
