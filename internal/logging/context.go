package logging

import (
	"context"
	"log/slog"

	"paddock/internal/services"
)

// Shared structured-field names used across daemon and pipeline logs.
const (
	FieldComponent     = "component"
	FieldJobID         = "job_id"
	FieldEpisodeID     = "episode_id"
	FieldStage         = "stage"
	FieldTriggerKind   = "trigger_kind"
	FieldRaceID        = "race_id"
	FieldSceneIndex    = "scene_index"
	FieldCorrelationID = "correlation_id"
	FieldEventType     = "event_type"
	FieldErrorHint     = "error_hint"
)

// ContextFields extracts request-scoped identifiers carried on the context.
func ContextFields(ctx context.Context) []Attr {
	if ctx == nil {
		return nil
	}
	fields := make([]Attr, 0, 3)
	if jobID, ok := services.JobIDFromContext(ctx); ok {
		fields = append(fields, Int64(FieldJobID, jobID))
	}
	if stage, ok := services.StageFromContext(ctx); ok && stage != "" {
		fields = append(fields, String(FieldStage, stage))
	}
	if requestID, ok := services.RequestIDFromContext(ctx); ok && requestID != "" {
		fields = append(fields, String(FieldCorrelationID, requestID))
	}
	return fields
}

// WithContext returns a logger pre-populated with context fields.
func WithContext(ctx context.Context, logger *slog.Logger) *slog.Logger {
	if logger == nil {
		return NewNop()
	}
	fields := ContextFields(ctx)
	if len(fields) == 0 {
		return logger
	}
	return logger.With(Args(fields...)...)
}
