package logging

import (
	"context"
	"log/slog"

	"mediaforge/internal/services"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldJobID is the standardized structured logging key for external job identifiers.
	FieldJobID = "job_id"
	// FieldKind is the standardized structured logging key for operation kinds.
	FieldKind = "kind"
	// FieldWorker is the standardized structured logging key for worker slots.
	FieldWorker = "worker"
	// FieldAssetID is the standardized structured logging key for asset identifiers.
	FieldAssetID = "asset_id"
	// FieldCorrelationID is the standardized structured logging key for request correlation identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType tags a log line with a stable machine-readable event name.
	FieldEventType = "event_type"
	// FieldErrorHint carries a short operator-facing next step.
	FieldErrorHint = "error_hint"
)

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if slot, ok := services.WorkerFromContext(ctx); ok {
		fields = append(fields, slog.Int(FieldWorker, slot))
	}
	if id, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldJobID, id))
	}
	if kind, ok := services.KindFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldKind, kind))
	}
	if rid, ok := services.RequestIDFromContext(ctx); ok {
		fields = append(fields, slog.String(FieldCorrelationID, rid))
	}
	return fields
}

// WithContext returns a logger augmented with structured fields derived from the supplied context.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		logger = NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(attrsToArgs(fields)...)
}
