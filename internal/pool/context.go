package pool

import "context"

type contextKey string

const ctxKeyPool contextKey = "pool"

// WithPool attaches p to ctx. Manager.Acquire draws from it instead of the
// active pool.
func WithPool(ctx context.Context, p Pool) context.Context {
	return context.WithValue(ctx, ctxKeyPool, p)
}

// FromContext returns the pool attached with WithPool, or nil.
func FromContext(ctx context.Context) Pool {
	if p, ok := ctx.Value(ctxKeyPool).(Pool); ok {
		return p
	}
	return nil
}
