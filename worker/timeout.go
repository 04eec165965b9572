package worker

import (
	"context"
	"time"
)

type timeoutHintKey struct{}

// WithTimeoutHint attaches the operator-configured --timeout value to
// ctx. Per spec.md §5, this is a soft contract: the engine does not
// forcibly kill a handler mid-execution on expiry, it only surfaces the
// hint for the handler's own enforcement and for process supervisors to
// act on out of band.
func WithTimeoutHint(ctx context.Context, d time.Duration) context.Context {
	if d <= 0 {
		return ctx
	}
	return context.WithValue(ctx, timeoutHintKey{}, d)
}

// TimeoutHint retrieves the soft timeout hint set by WithTimeoutHint, if
// any.
func TimeoutHint(ctx context.Context) (time.Duration, bool) {
	d, ok := ctx.Value(timeoutHintKey{}).(time.Duration)
	return d, ok
}
