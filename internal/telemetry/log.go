// internal/telemetry/log.go
package telemetry

import (
	"context"

	"go.uber.org/zap"

	"github.com/xkilldash9x/scalpel-heal/api/schemas"
)

// LogSink writes telemetry to a zap logger. Healed and failed actions log at Info and Warn;
// everything else at Debug.
type LogSink struct {
	logger *zap.Logger
}

var _ Sink = (*LogSink)(nil)

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("telemetry")}
}

func (s *LogSink) RecordHealing(_ context.Context, ev schemas.HealingEvent) {
	fields := []zap.Field{
		zap.String("action", string(ev.Action)),
		zap.String("original_selector", ev.OriginalSelector),
		zap.String("strategy", ev.Strategy),
		zap.Float64("healing_time_ms", ev.HealingTimeMs),
		zap.Int("attempts", ev.Attempts),
	}
	if ev.HealedSelector != "" {
		fields = append(fields, zap.String("healed_selector", ev.HealedSelector))
	}

	switch {
	case !ev.Success:
		s.logger.Warn("Healing failed.", append(fields, zap.String("error", ev.Error))...)
	case ev.Healed():
		s.logger.Info("Selector healed.", fields...)
	default:
		s.logger.Debug("Action succeeded directly.", fields...)
	}
}

func (s *LogSink) RecordOperation(_ context.Context, rec schemas.OperationRecord) {
	s.logger.Debug("Resolution finished.",
		zap.String("operation", rec.Operation),
		zap.String("selector", rec.Selector),
		zap.String("strategy", rec.Strategy),
		zap.Bool("success", rec.Success),
		zap.Float64("response_time_ms", rec.ResponseTimeMs),
		zap.String("reason", rec.Reason),
	)
}
