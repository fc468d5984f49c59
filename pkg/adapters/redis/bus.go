package redis

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	backend "github.com/redis/go-redis/v9"

	"github.com/aretw0/arbor/internal/logging"
	"github.com/aretw0/arbor/pkg/domain"
)

// DefaultChannel is the Pub/Sub channel used when none is configured.
const DefaultChannel = "arbor:events"

// Bus carries change events over Redis Pub/Sub. It implements
// ports.EventSource and ports.EventPublisher. Values travel by ID, so the
// receiving contributors should implement ports.Resolver.
type Bus struct {
	client  *backend.Client
	channel string
	logger  *slog.Logger
}

// Option configures a Bus.
type Option func(*Bus)

// WithChannel sets the Pub/Sub channel.
func WithChannel(channel string) Option {
	return func(b *Bus) {
		b.channel = channel
	}
}

// WithLogger sets the logger used for dropped messages.
func WithLogger(logger *slog.Logger) Option {
	return func(b *Bus) {
		if logger != nil {
			b.logger = logger
		}
	}
}

// New creates a bus with its own client.
func New(address, password string, db int, opts ...Option) *Bus {
	rdb := backend.NewClient(&backend.Options{
		Addr:     address,
		Password: password,
		DB:       db,
	})
	return NewFromClient(rdb, opts...)
}

// NewFromClient creates a bus from an existing client.
func NewFromClient(client *backend.Client, opts ...Option) *Bus {
	b := &Bus{
		client:  client,
		channel: DefaultChannel,
		logger:  logging.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	return b
}

// Channel returns the Pub/Sub channel name.
func (b *Bus) Channel() string {
	return b.channel
}

// Publish sends an event to every subscriber.
func (b *Bus) Publish(ctx context.Context, ev domain.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("failed to marshal event: %w", err)
	}
	if err := b.client.Publish(ctx, b.channel, data).Err(); err != nil {
		return fmt.Errorf("redis publish: %w", err)
	}
	return nil
}

// Events subscribes to the channel. The subscription is confirmed before
// Events returns, so nothing published afterwards is missed. The returned
// channel closes when ctx is done.
func (b *Bus) Events(ctx context.Context) (<-chan domain.Event, error) {
	sub := b.client.Subscribe(ctx, b.channel)
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		return nil, fmt.Errorf("redis subscribe %s: %w", b.channel, err)
	}

	out := make(chan domain.Event)
	go func() {
		defer close(out)
		defer sub.Close()

		msgs := sub.Channel()
		for {
			select {
			case <-ctx.Done():
				return
			case msg, ok := <-msgs:
				if !ok {
					return
				}
				var ev domain.Event
				if err := json.Unmarshal([]byte(msg.Payload), &ev); err != nil {
					b.logger.Warn("Dropping malformed event", "channel", msg.Channel, "err", err)
					continue
				}
				select {
				case out <- ev:
				case <-ctx.Done():
					return
				}
			}
		}
	}()
	return out, nil
}

// Close releases the underlying client.
func (b *Bus) Close() error {
	return b.client.Close()
}
