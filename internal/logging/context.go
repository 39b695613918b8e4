package logging

import (
	"context"
	"log/slog"
)

const (
	// FieldComponent is the standardized structured logging key for component names.
	FieldComponent = "component"
	// FieldCollection is the normalized collection key an invocation operates on.
	FieldCollection = "collection"
	// FieldLane names the independent sequence a caller is walking.
	FieldLane = "lane"
	// FieldItemID is the identifier (usually the path) of the item being processed.
	FieldItemID = "item_id"
	// FieldOffset is the zero-based cursor position.
	FieldOffset = "offset"
	// FieldTotal is the collection size snapshot.
	FieldTotal = "total"
	// FieldStatus is the sequence lifecycle status.
	FieldStatus = "status"
	// FieldInvocationID identifies a single driver invocation.
	FieldInvocationID = "invocation_id"
	// FieldCorrelationID is the standardized key for API request identifiers.
	FieldCorrelationID = "correlation_id"
	// FieldEventType categorizes a log line for filtering.
	FieldEventType = "event_type"
	// FieldErrorHint suggests a next step to the operator.
	FieldErrorHint = "error_hint"
	// FieldImpact is the standardized key for user-facing consequence of a warning.
	FieldImpact = "impact"
	// FieldAlert flags warnings or anomalies that should stand out in structured logs.
	FieldAlert = "alert"
)

type contextKey int

const (
	collectionKey contextKey = iota
	laneKey
	invocationKey
	correlationKey
)

// WithCollection stores the collection key on ctx.
func WithCollection(ctx context.Context, key string) context.Context {
	return context.WithValue(ctx, collectionKey, key)
}

// WithLane stores the lane name on ctx.
func WithLane(ctx context.Context, lane string) context.Context {
	return context.WithValue(ctx, laneKey, lane)
}

// WithInvocationID stores the invocation identifier on ctx.
func WithInvocationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, invocationKey, id)
}

// WithCorrelationID stores an API request identifier on ctx.
func WithCorrelationID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, correlationKey, id)
}

// InvocationIDFromContext returns the invocation identifier, if any.
func InvocationIDFromContext(ctx context.Context) (string, bool) {
	return stringFromContext(ctx, invocationKey)
}

// CorrelationIDFromContext returns the API request identifier, if any.
func CorrelationIDFromContext(ctx context.Context) (string, bool) {
	return stringFromContext(ctx, correlationKey)
}

func stringFromContext(ctx context.Context, key contextKey) (string, bool) {
	if ctx == nil {
		return "", false
	}
	value, ok := ctx.Value(key).(string)
	if !ok || value == "" {
		return "", false
	}
	return value, true
}

// ContextFields extracts standardized slog attributes from the provided context.
func ContextFields(ctx context.Context) []slog.Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]slog.Attr, 0, 4)
	if key, ok := stringFromContext(ctx, collectionKey); ok {
		fields = append(fields, slog.String(FieldCollection, key))
	}
	if lane, ok := stringFromContext(ctx, laneKey); ok {
		fields = append(fields, slog.String(FieldLane, lane))
	}
	if id, ok := stringFromContext(ctx, invocationKey); ok {
		fields = append(fields, slog.String(FieldInvocationID, id))
	}
	if id, ok := stringFromContext(ctx, correlationKey); ok {
		fields = append(fields, slog.String(FieldCorrelationID, id))
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
