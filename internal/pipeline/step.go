package pipeline

import (
	"context"
	"time"

	"github.com/perchlink/perch/internal/bookmarks"
	"github.com/perchlink/perch/internal/metrics"
)

// StepResult carries the outcome of one enrichment step. A failed step never
// aborts the run; the orchestrator unwraps the result into a default value
// and moves on.
type StepResult[T any] struct {
	Value T
	Err   error
}

// OrDefault returns the step value, or def when the step failed.
func (r StepResult[T]) OrDefault(def T) T {
	if r.Err != nil {
		return def
	}
	return r.Value
}

// runStep invokes one external service call under a bounded timeout, aborting
// the call early when the cancellation token trips mid-flight.
func runStep[T any](ctx context.Context, token *Token, step bookmarks.Step, timeout time.Duration, call func(context.Context) (T, error)) StepResult[T] {
	stepCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	stopAbort := abortOnCancel(token, cancel)
	defer stopAbort()

	start := time.Now()
	v, err := call(stepCtx)
	metrics.ObserveStep(string(step), time.Since(start))
	return StepResult[T]{Value: v, Err: err}
}

// abortOnCancel cancels the step context as soon as the token trips. The
// returned function stops the watch.
func abortOnCancel(token *Token, cancel context.CancelFunc) func() {
	stopped := make(chan struct{})
	go func() {
		select {
		case <-token.Done():
			cancel()
		case <-stopped:
		}
	}()
	return func() { close(stopped) }
}
