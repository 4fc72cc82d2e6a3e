package observe

import (
	"context"

	"github.com/rs/zerolog"
)

// LogSink writes events through a structured logger. Failed events log at
// error level, everything else at debug so normal chat traffic stays quiet.
type LogSink struct {
	logger zerolog.Logger
}

func NewLogSink(logger zerolog.Logger) *LogSink {
	return &LogSink{logger: logger}
}

func (s *LogSink) Emit(ctx context.Context, event Event) error {
	_ = ctx
	if s == nil {
		return nil
	}
	event.Normalize()

	var entry *zerolog.Event
	if event.Status == StatusFailed {
		entry = s.logger.Error()
	} else {
		entry = s.logger.Debug()
	}
	entry = entry.
		Str("kind", string(event.Kind)).
		Str("status", string(event.Status)).
		Str("name", event.Name)
	if event.RunID != "" {
		entry = entry.Str("run_id", event.RunID)
	}
	if event.ThreadID != "" {
		entry = entry.Str("thread_id", event.ThreadID)
	}
	if event.ToolName != "" {
		entry = entry.Str("tool", event.ToolName)
	}
	if event.DurationMs > 0 {
		entry = entry.Int64("duration_ms", event.DurationMs)
	}
	if event.Error != "" {
		entry = entry.Str("error", event.Error)
	}
	entry.Msg("observe event")
	return nil
}
