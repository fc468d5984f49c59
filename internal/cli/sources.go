package cli

import (
	"context"

	"golang.org/x/sync/errgroup"

	"github.com/aretw0/arbor/pkg/domain"
	"github.com/aretw0/arbor/pkg/ports"
)

// mergeSources combines several event sources into one. Each source keeps
// its own ordering; the merged stream closes once every source has closed.
type mergeSources []ports.EventSource

// Events implements ports.EventSource. It fails if any source fails to start.
func (m mergeSources) Events(ctx context.Context) (<-chan domain.Event, error) {
	ctx, cancel := context.WithCancel(ctx)
	chans := make([]<-chan domain.Event, len(m))
	var g errgroup.Group
	for i, src := range m {
		g.Go(func() error {
			ch, err := src.Events(ctx)
			chans[i] = ch
			return err
		})
	}
	if err := g.Wait(); err != nil {
		cancel()
		return nil, err
	}

	out := make(chan domain.Event)
	var pumps errgroup.Group
	for _, ch := range chans {
		pumps.Go(func() error {
			for ev := range ch {
				select {
				case out <- ev:
				case <-ctx.Done():
					return nil
				}
			}
			return nil
		})
	}
	go func() {
		_ = pumps.Wait()
		cancel()
		close(out)
	}()
	return out, nil
}
