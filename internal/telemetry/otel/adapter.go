package otel

import (
	"context"

	otellog "go.opentelemetry.io/otel/log"

	"territory-service/internal/events"
)

const loggerName = "territory.membership"

// NewEventEmitter returns an events.Emitter that sends membership events as OTel log records.
// If provider is nil, returns a no-op emitter.
func NewEventEmitter(provider otellog.LoggerProvider) events.Emitter {
	if provider == nil {
		return events.Noop{}
	}
	return &logEmitter{logger: provider.Logger(loggerName)}
}

type logEmitter struct {
	logger otellog.Logger
}

// Emit converts ev to a log record. The body is the event type; ids and roles become attributes.
func (e *logEmitter) Emit(ctx context.Context, ev events.Event) error {
	rec := otellog.Record{}
	rec.SetTimestamp(ev.OccurredAt)
	rec.SetSeverity(otellog.SeverityInfo)
	rec.SetEventName(string(ev.Type))
	rec.SetBody(otellog.StringValue(string(ev.Type)))
	rec.AddAttributes(
		otellog.String("event_id", ev.ID),
		otellog.String("congregation_id", ev.CongregationID),
		otellog.String("actor_id", ev.ActorID),
	)
	if ev.TargetID != "" {
		rec.AddAttributes(otellog.String("target_id", ev.TargetID))
	}
	if ev.Role != "" {
		rec.AddAttributes(otellog.String("role", ev.Role))
	}
	if ev.PreviousRole != "" {
		rec.AddAttributes(otellog.String("previous_role", ev.PreviousRole))
	}
	e.logger.Emit(ctx, rec)
	return nil
}
