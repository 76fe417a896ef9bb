// internal/browser/context_utils.go
package browser

import (
	"context"
	"time"
)

// CombineContext returns a context derived from primary that is also cancelled when
// secondary is done. Values, including the chromedp target, come from primary only;
// secondary contributes the operational deadline.
func CombineContext(primary, secondary context.Context) (context.Context, context.CancelFunc) {
	combinedCtx, cancel := context.WithCancel(primary)
	if secondary == nil || secondary.Done() == nil {
		return combinedCtx, cancel
	}

	go func() {
		select {
		case <-secondary.Done():
			cancel()
		case <-combinedCtx.Done():
		}
	}()
	return combinedCtx, cancel
}

// valueOnlyContext keeps the parent's values but drops its deadline and cancellation.
type valueOnlyContext struct {
	context.Context
}

func (valueOnlyContext) Deadline() (deadline time.Time, ok bool) { return }
func (valueOnlyContext) Done() <-chan struct{} { return nil }
func (valueOnlyContext) Err() error { return nil }

// Detach returns a context that inherits values from ctx but is never cancelled by it.
// Cleanup that must outlive a cancelled caller runs on a detached context.
func Detach(ctx context.Context) context.Context {
	return valueOnlyContext{ctx}
}
