package core

import (
	"context"

	"github.com/JonMunkholm/sqlpipe/internal/pool"
)

type contextKey string

const (
	ctxKeyConn   contextKey = "conn"
	ctxKeyDebug  contextKey = "debug"
	ctxKeyLogMsg contextKey = "log_message"
)

// WithConn pins conn for every operation issued with the returned context.
// The caller still owns conn and must release it.
func WithConn(ctx context.Context, conn pool.Conn) context.Context {
	return context.WithValue(ctx, ctxKeyConn, conn)
}

// WithDebug makes operations log their resolved statement text.
func WithDebug(ctx context.Context) context.Context {
	return context.WithValue(ctx, ctxKeyDebug, true)
}

// WithLogMessage sets the message QuerySilent logs when its query fails.
func WithLogMessage(ctx context.Context, msg string) context.Context {
	return context.WithValue(ctx, ctxKeyLogMsg, msg)
}

// ConnFromContext returns the connection pinned with WithConn, or nil.
func ConnFromContext(ctx context.Context) pool.Conn {
	if c, ok := ctx.Value(ctxKeyConn).(pool.Conn); ok {
		return c
	}
	return nil
}

// DebugFromContext reports whether WithDebug was applied.
func DebugFromContext(ctx context.Context) bool {
	v, _ := ctx.Value(ctxKeyDebug).(bool)
	return v
}

func logMessageFromContext(ctx context.Context, fallback string) string {
	if msg, ok := ctx.Value(ctxKeyLogMsg).(string); ok && msg != "" {
		return msg
	}
	return fallback
}
