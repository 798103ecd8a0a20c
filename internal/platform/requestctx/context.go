package requestctx

import (
	"context"
	"maps"
	"strings"
	"sync"

	"go.uber.org/zap"
)

type contextKey int

const (
	loggerKey contextKey = iota
	traceKey
	cartSessionKey
	annotationsKey
)

var noopLogger = zap.NewNop()

// TraceInfo carries the Cloud Trace identifiers extracted from the inbound request.
type TraceInfo struct {
	TraceID   string
	SpanID    string
	Sampled   bool
	ProjectID string
}

// WithLogger stores the request scoped logger.
func WithLogger(ctx context.Context, logger *zap.Logger) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	if logger == nil {
		logger = noopLogger
	}
	return context.WithValue(ctx, loggerKey, logger)
}

// Logger returns the request scoped logger, or a no-op logger when none was injected.
func Logger(ctx context.Context) *zap.Logger {
	if ctx == nil {
		return noopLogger
	}
	if logger, ok := ctx.Value(loggerKey).(*zap.Logger); ok && logger != nil {
		return logger
	}
	return noopLogger
}

// NoopLogger exposes the shared no-op logger.
func NoopLogger() *zap.Logger { return noopLogger }

// WithTrace stores trace metadata on the context.
func WithTrace(ctx context.Context, info TraceInfo) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	return context.WithValue(ctx, traceKey, info)
}

// Trace returns the trace metadata when present.
func Trace(ctx context.Context) (TraceInfo, bool) {
	if ctx == nil {
		return TraceInfo{}, false
	}
	info, ok := ctx.Value(traceKey).(TraceInfo)
	return info, ok
}

// TraceID returns the trace identifier or an empty string.
func TraceID(ctx context.Context) string {
	info, _ := Trace(ctx)
	return info.TraceID
}

// WithCartSession records the guest cart session identifier resolved for the request.
func WithCartSession(ctx context.Context, sessionID string) context.Context {
	if ctx == nil {
		ctx = context.Background()
	}
	sessionID = strings.TrimSpace(sessionID)
	Annotate(ctx, "cart_session", sessionID)
	return context.WithValue(ctx, cartSessionKey, sessionID)
}

// CartSession returns the guest cart session identifier attached to the request.
func CartSession(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(cartSessionKey).(string)
	return id
}

// Annotations collects values discovered deep in the handler chain (the authenticated user,
// the cart session) so outer middleware can log them after the request completes.
type Annotations struct {
	mu     sync.Mutex
	fields map[string]string
}

// WithAnnotations installs an empty annotation holder on the context.
func WithAnnotations(ctx context.Context) (context.Context, *Annotations) {
	if ctx == nil {
		ctx = context.Background()
	}
	a := &Annotations{fields: map[string]string{}}
	return context.WithValue(ctx, annotationsKey, a), a
}

// Annotate records key=value on the holder installed by WithAnnotations, if any.
func Annotate(ctx context.Context, key, value string) {
	if ctx == nil || key == "" || value == "" {
		return
	}
	a, ok := ctx.Value(annotationsKey).(*Annotations)
	if !ok || a == nil {
		return
	}
	a.mu.Lock()
	a.fields[key] = value
	a.mu.Unlock()
}

// Fields returns a copy of the recorded annotations.
func (a *Annotations) Fields() map[string]string {
	if a == nil {
		return nil
	}
	a.mu.Lock()
	defer a.mu.Unlock()
	return maps.Clone(a.fields)
}
