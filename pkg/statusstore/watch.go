package statusstore

import (
	"context"
	"fmt"
	"time"

	"github.com/fsnotify/fsnotify"
)

// DebounceInterval coalesces bursts of record writes into one notification.
const DebounceInterval = 100 * time.Millisecond

// Watch sends on the returned channel after each burst of changes in the
// status directory. The channel is closed when ctx is done or the watcher
// fails. Notifications are dropped while a previous one is unread.
func (s *Store) Watch(ctx context.Context) (<-chan struct{}, error) {
	watcher, err := fsnotify.NewWatcher()
	if err != nil {
		return nil, fmt.Errorf("status watch: %w", err)
	}
	if err := watcher.Add(s.dir); err != nil {
		_ = watcher.Close()
		return nil, fmt.Errorf("status watch %s: %w", s.dir, err)
	}

	out := make(chan struct{}, 1)
	go func() {
		defer close(out)
		defer func() { _ = watcher.Close() }()

		debounce := newDebounceTimer()
		defer debounce.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case _, ok := <-watcher.Events:
				if !ok {
					return
				}
				resetDebounceTimer(debounce)
			case <-debounce.C:
				select {
				case out <- struct{}{}:
				default:
				}
			case _, ok := <-watcher.Errors:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}

func newDebounceTimer() *time.Timer {
	timer := time.NewTimer(0)
	if !timer.Stop() {
		<-timer.C
	}
	return timer
}

func resetDebounceTimer(timer *time.Timer) {
	if !timer.Stop() {
		select {
		case <-timer.C:
		default:
		}
	}
	timer.Reset(DebounceInterval)
}
