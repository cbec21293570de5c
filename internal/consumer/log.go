package consumer

import (
	"context"

	"github.com/rs/zerolog"
)

// LogConsumer writes one structured line per event.
type LogConsumer struct {
	logger zerolog.Logger
}

func NewLogConsumer(logger zerolog.Logger) *LogConsumer {
	return &LogConsumer{logger: logger}
}

func (c *LogConsumer) Name() string { return "log" }

func (c *LogConsumer) Consume(_ context.Context, ev Event) error {
	c.logger.Info().
		Str("event_id", ev.ID).
		Str("session_id", ev.SessionID).
		Str("record_id", ev.Record.ID).
		Strs("tags", ev.Record.Tags).
		Str("text", ev.Record.Text).
		Msg("feed_record")
	return nil
}
