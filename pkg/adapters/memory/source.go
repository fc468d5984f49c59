package memory

import (
	"context"
	"sync"

	"github.com/aretw0/arbor/pkg/domain"
)

// Source implements ports.EventSource and ports.EventPublisher over a channel.
// Safe for concurrent use.
type Source struct {
	ch     chan domain.Event
	once   sync.Once
	closed chan struct{}
}

// NewSource creates a source with the given buffer size.
func NewSource(buffer int) *Source {
	return &Source{
		ch:     make(chan domain.Event, buffer),
		closed: make(chan struct{}),
	}
}

// Publish queues an event. It blocks while the buffer is full.
func (s *Source) Publish(ctx context.Context, ev domain.Event) error {
	select {
	case <-s.closed:
		return domain.ErrExecutorClosed
	default:
	}
	select {
	case s.ch <- ev:
		return nil
	case <-s.closed:
		return domain.ErrExecutorClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Events forwards queued events until ctx is done or the source is closed.
func (s *Source) Events(ctx context.Context) (<-chan domain.Event, error) {
	out := make(chan domain.Event)
	go func() {
		defer close(out)
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.closed:
				return
			case ev := <-s.ch:
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

// Close stops the source. Pending events are dropped.
func (s *Source) Close() {
	s.once.Do(func() { close(s.closed) })
}
