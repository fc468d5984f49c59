package ports

import (
	"context"

	"github.com/aretw0/arbor/pkg/domain"
)

// EventSource delivers change events emitted by contributors.
// The returned channel is closed when ctx is done or the source shuts down.
// Events must be delivered in the order each contributor emitted them.
type EventSource interface {
	Events(ctx context.Context) (<-chan domain.Event, error)
}

// EventPublisher is the sending side of a transport (e.g. Redis Pub/Sub).
type EventPublisher interface {
	Publish(ctx context.Context, ev domain.Event) error
}
