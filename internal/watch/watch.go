// Package watch reports changes to a single file, coalescing bursts of
// writes into one notification.
package watch

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DefaultDebounce is the quiet period before a burst is reported.
const DefaultDebounce = 200 * time.Millisecond

// File watches path until ctx is done. The parent directory is watched so
// editors that replace the file atomically are still seen. The returned
// channel holds at most one pending notification and is closed when the
// watch ends; errors from the watcher go to onError when it is non-nil.
func File(ctx context.Context, path string, debounce time.Duration, onError func(error)) (<-chan struct{}, error) {
	abs, err := filepath.Abs(path)
	if err != nil {
		return nil, err
	}
	fsw, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("failed to create watcher: %w", err)
	}
	if err := fsw.Add(filepath.Dir(abs)); err != nil {
		fsw.Close()
		return nil, fmt.Errorf("failed to watch %s: %w", filepath.Dir(abs), err)
	}
	if debounce <= 0 {
		debounce = DefaultDebounce
	}

	out := make(chan struct{}, 1)
	d := &debouncer{wait: debounce}
	notify := func() {
		select {
		case out <- struct{}{}:
		default:
		}
	}

	go func() {
		defer close(out)
		defer d.stop()
		defer fsw.Close()
		target := filepath.Base(abs)
		for {
			select {
			case <-ctx.Done():
				return
			case ev, ok := <-fsw.Events:
				if !ok {
					return
				}
				if filepath.Base(ev.Name) != target {
					continue
				}
				if ev.Op&(fsnotify.Write|fsnotify.Create|fsnotify.Rename) != 0 {
					d.trigger(notify)
				}
			case err, ok := <-fsw.Errors:
				if !ok {
					return
				}
				if onError != nil {
					onError(err)
				}
			}
		}
	}()
	return out, nil
}

// debouncer runs the last triggered func once wait has passed without a
// new trigger.
type debouncer struct {
	mu    sync.Mutex
	wait  time.Duration
	timer *time.Timer
	done  bool
}

func (d *debouncer) trigger(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.done {
		return
	}
	if d.timer != nil {
		d.timer.Stop()
	}
	d.timer = time.AfterFunc(d.wait, func() {
		d.mu.Lock()
		done := d.done
		d.mu.Unlock()
		if !done {
			fn()
		}
	})
}

func (d *debouncer) stop() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.done = true
	if d.timer != nil {
		d.timer.Stop()
	}
}
