package process

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"maps"
	"os/exec"
	"slices"
	"strings"
	"sync"
	"time"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// ErrExecution is returned when the command fails or exits non-zero.
var ErrExecution = errors.New("command execution failed")

// ErrPollingDisabled is returned by Events when Config.Poll is zero.
var ErrPollingDisabled = errors.New("polling disabled")

const waitDelay = 500 * time.Millisecond

// group is one segment of a service's group path.
type group string

func (g group) ID() string { return string(g) }

// Contributor lists services by running a command.
// The command receives ARBOR_CONTRIBUTOR and the configured environment as
// variables; nothing from events or the network reaches its arguments.
type Contributor struct {
	cfg    Config
	logger *slog.Logger

	mu       sync.RWMutex
	services map[string]*Service
	groups   map[string]bool
	last     []byte
}

// Option configures a Contributor.
type Option func(*Contributor)

// WithLogger sets the logger used for command diagnostics.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Contributor) {
		if logger != nil {
			c.logger = logger
		}
	}
}

// New validates cfg and creates a contributor. The command is not run until
// Services is called.
func New(cfg Config, opts ...Option) (*Contributor, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Text == "" {
		cfg.Text = cfg.Name
	}
	c := &Contributor{
		cfg:      cfg,
		logger:   logging.NewNop(),
		services: make(map[string]*Service),
		groups:   make(map[string]bool),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c, nil
}

// Name implements ports.Contributor.
func (c *Contributor) Name() string { return c.cfg.Name }

// Descriptor implements ports.Contributor.
func (c *Contributor) Descriptor() domain.Descriptor {
	return domain.Descriptor{Text: c.cfg.Text}
}

// Capabilities implements ports.Capable.
func (c *Contributor) Capabilities() ports.Capabilities {
	caps := ports.Capabilities{Resolve: c.Resolve}
	if c.cfg.Grouped {
		caps.Groups = c.Groups
		caps.GroupDescriptor = c.GroupDescriptor
	}
	if c.cfg.OrderByText {
		caps.Compare = c.Compare
	}
	return caps
}

// Services implements ports.Contributor. It runs the command and reads its
// output; duplicate IDs keep their first occurrence.
func (c *Contributor) Services(ctx context.Context) ([]domain.Value, error) {
	out, err := c.run(ctx)
	if err != nil {
		return nil, err
	}
	parsed, err := parseOutput(out)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", c.cfg.Name, err)
	}

	services := make(map[string]*Service, len(parsed))
	groups := make(map[string]bool)
	values := make([]domain.Value, 0, len(parsed))
	for _, s := range parsed {
		if _, dup := services[s.Key]; dup {
			c.logger.Warn("Duplicate service in command output", "contributor", c.cfg.Name, "id", s.Key)
			continue
		}
		services[s.Key] = s
		for _, g := range s.Groups {
			groups[g] = true
		}
		values = append(values, s)
	}

	c.mu.Lock()
	c.services = services
	c.groups = groups
	c.last = out
	c.mu.Unlock()
	return values, nil
}

// ServiceDescriptor implements ports.Contributor.
func (c *Contributor) ServiceDescriptor(v domain.Value) (domain.Descriptor, error) {
	s, ok := c.service(v.ID())
	if !ok {
		return domain.Descriptor{}, fmt.Errorf("unknown service %q", v.ID())
	}
	return domain.Descriptor{Text: s.text(), Icon: s.Icon, Tooltip: s.Tooltip}, nil
}

// Groups implements ports.Grouping.
func (c *Contributor) Groups(v domain.Value) ([]domain.Value, error) {
	s, ok := c.service(v.ID())
	if !ok {
		return nil, nil
	}
	path := make([]domain.Value, len(s.Groups))
	for i, g := range s.Groups {
		path[i] = group(g)
	}
	return path, nil
}

// GroupDescriptor implements ports.Grouping.
func (c *Contributor) GroupDescriptor(key domain.Value) (domain.Descriptor, error) {
	return domain.Descriptor{Text: key.ID()}, nil
}

// Compare implements ports.Ordered with a natural order on service text.
func (c *Contributor) Compare(a, b domain.Value) int {
	return domain.NaturalCompare(c.textOf(a), c.textOf(b))
}

// Resolve implements ports.Resolver over the last command output.
func (c *Contributor) Resolve(id string) (domain.Value, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if s, ok := c.services[id]; ok {
		return s, true
	}
	if c.groups[id] {
		return group(id), true
	}
	return nil, false
}

// Events implements ports.EventSource. It reruns the command every
// Config.Poll and emits a Reset when the output differs from the last run.
func (c *Contributor) Events(ctx context.Context) (<-chan domain.Event, error) {
	if c.cfg.Poll <= 0 {
		return nil, fmt.Errorf("%s: %w", c.cfg.Name, ErrPollingDisabled)
	}
	ch := make(chan domain.Event)
	go func() {
		defer close(ch)
		ticker := time.NewTicker(c.cfg.Poll)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
			}
			if !c.poll(ctx) {
				continue
			}
			select {
			case ch <- domain.Reset(c.cfg.Name):
			case <-ctx.Done():
				return
			}
		}
	}()
	return ch, nil
}

// poll reports whether the command output changed since the last run.
func (c *Contributor) poll(ctx context.Context) bool {
	out, err := c.run(ctx)
	if err != nil {
		if ctx.Err() == nil {
			c.logger.Warn("Command poll failed", "contributor", c.cfg.Name, "err", err)
		}
		return false
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if bytes.Equal(out, c.last) {
		return false
	}
	c.last = out
	return true
}

func (c *Contributor) run(ctx context.Context) ([]byte, error) {
	if c.cfg.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.cfg.Timeout)
		defer cancel()
	}

	cmd := exec.CommandContext(ctx, c.cfg.Command, c.cfg.Args...)
	cmd.Dir = c.cfg.Dir
	// Children that inherited stdout must not keep Run waiting after a kill.
	cmd.WaitDelay = waitDelay

	env := []string{"ARBOR_CONTRIBUTOR=" + c.cfg.Name}
	for _, k := range slices.Sorted(maps.Keys(c.cfg.Environment)) {
		env = append(env, fmt.Sprintf("%s=%s", strings.ToUpper(k), c.cfg.Environment[k]))
	}
	cmd.Env = append(cmd.Environ(), env...)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return nil, fmt.Errorf("%w: %s: %w", ErrExecution, c.cfg.Name, ctxErr)
		}
		return nil, fmt.Errorf("%w: %s: %v. Stderr: %s", ErrExecution, c.cfg.Name, err, strings.TrimSpace(stderr.String()))
	}
	c.logger.Debug("Command finished", "contributor", c.cfg.Name, "command", c.cfg.Command, "duration", time.Since(start))
	return stdout.Bytes(), nil
}

func (c *Contributor) service(id string) (*Service, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	s, ok := c.services[id]
	return s, ok
}

func (c *Contributor) textOf(v domain.Value) string {
	if s, ok := v.(*Service); ok {
		return s.text()
	}
	if s, ok := c.service(v.ID()); ok {
		return s.text()
	}
	return v.ID()
}
