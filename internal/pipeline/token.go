package pipeline

import (
	"context"
	"sync"
	"time"

	"github.com/perchlink/perch/internal/bookmarks"
)

// Token is a cooperative cancellation signal for one pipeline run. The
// orchestrator consults it between steps, and in-flight service calls are
// aborted through Done when the flag trips mid-call.
type Token struct {
	done     chan struct{}
	tripOnce sync.Once
	stop     chan struct{}
	stopOnce sync.Once
	wg       sync.WaitGroup
}

// NewToken returns a token that never trips on its own. Useful as the zero
// behavior in tests.
func NewToken() *Token {
	return &Token{
		done: make(chan struct{}),
		stop: make(chan struct{}),
	}
}

// NewCancelledToken returns a token that is already tripped.
func NewCancelledToken() *Token {
	t := NewToken()
	t.trip()
	return t
}

// NewPollingToken returns a token that watches the registry cancellation flag
// for the given run id on the given interval. The flag is checked once
// synchronously so a cancel raced against submission is seen before the first
// step. Stop must be called when the run ends.
func NewPollingToken(ctx context.Context, registry bookmarks.ProcessingRegistry, id string, interval time.Duration) *Token {
	t := NewToken()
	if interval <= 0 {
		interval = 250 * time.Millisecond
	}
	if registry.IsCancelled(ctx, id) {
		t.trip()
		return t
	}

	t.wg.Add(1)
	go func() {
		defer t.wg.Done()
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ticker.C:
				if registry.IsCancelled(ctx, id) {
					t.trip()
					return
				}
			case <-t.stop:
				return
			case <-ctx.Done():
				return
			}
		}
	}()
	return t
}

// Cancelled reports whether the token has tripped.
func (t *Token) Cancelled() bool {
	select {
	case <-t.done:
		return true
	default:
		return false
	}
}

// Done returns a channel closed when the token trips.
func (t *Token) Done() <-chan struct{} {
	return t.done
}

// Stop halts the background poller, if any.
func (t *Token) Stop() {
	t.stopOnce.Do(func() {
		close(t.stop)
	})
	t.wg.Wait()
}

func (t *Token) trip() {
	t.tripOnce.Do(func() {
		close(t.done)
	})
}
