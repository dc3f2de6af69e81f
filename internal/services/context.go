package services

import "context"

type contextKey string

const (
	jobIDKey     contextKey = "job_id"
	kindKey      contextKey = "kind"
	workerKey    contextKey = "worker"
	requestIDKey contextKey = "request_id"
)

// WithJobID annotates context with the external job identifier.
func WithJobID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, jobIDKey, id)
}

// JobIDFromContext extracts the external job identifier if present.
func JobIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(jobIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}

// WithKind annotates context with the operation kind being executed.
func WithKind(ctx context.Context, kind string) context.Context {
	if kind == "" {
		return ctx
	}
	return context.WithValue(ctx, kindKey, kind)
}

// KindFromContext returns the operation kind if present.
func KindFromContext(ctx context.Context) (string, bool) {
	v := ctx.Value(kindKey)
	if str, ok := v.(string); ok && str != "" {
		return str, true
	}
	return "", false
}

// WithWorker annotates context with the worker slot number (1-based).
func WithWorker(ctx context.Context, slot int) context.Context {
	if slot <= 0 {
		return ctx
	}
	return context.WithValue(ctx, workerKey, slot)
}

// WorkerFromContext returns the worker slot if present.
func WorkerFromContext(ctx context.Context) (int, bool) {
	v, ok := ctx.Value(workerKey).(int)
	return v, ok && v > 0
}

// WithRequestID annotates context with a correlation identifier.
func WithRequestID(ctx context.Context, id string) context.Context {
	if id == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, id)
}

// RequestIDFromContext extracts the correlation identifier if present.
func RequestIDFromContext(ctx context.Context) (string, bool) {
	if v, ok := ctx.Value(requestIDKey).(string); ok && v != "" {
		return v, true
	}
	return "", false
}
