// internal/browser/session/context_utils.go
package session

import (
	"context"
	"time"
)

// CombineContext derives a context from ctx1 that is canceled when either
// ctx1 or ctx2 is canceled. Values come from ctx1; for chromedp operations
// ctx1 must be the tab context because it carries the CDP target, while ctx2
// carries the caller's operational deadline.
func CombineContext(ctx1, ctx2 context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(ctx1)

	go func() {
		select {
		case <-ctx2.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()

	return combinedCtx, cancel
}

// valueOnlyContext inherits values from its parent but ignores the parent's
// deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{}                   { return nil }
func (valueOnlyContext) Err() error                              { return nil }

// Detach returns a context that keeps ctx's values (including the CDP target)
// but is not canceled when ctx is. Used for cleanup that must outlive the
// operation that triggered it.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
