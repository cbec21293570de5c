package consumer

import (
	"context"
	"errors"
	"time"

	"github.com/danmuck/feedctl/internal/protocol/frame"
)

// Event is one record as handed to a consumer.
type Event struct {
	ID         string       `json:"id"`
	SessionID  string       `json:"session_id"`
	ReceivedAt time.Time    `json:"received_at"`
	Record     frame.Record `json:"record"`
}

// Consumer processes one event at a time.
type Consumer interface {
	Name() string
	Consume(ctx context.Context, ev Event) error
}

// Func adapts a function into a Consumer.
type Func struct {
	Label string
	Fn    func(ctx context.Context, ev Event) error
}

func (f Func) Name() string {
	if f.Label == "" {
		return "func"
	}
	return f.Label
}

func (f Func) Consume(ctx context.Context, ev Event) error {
	return f.Fn(ctx, ev)
}

// Multi delivers to every consumer in order and joins their errors.
type Multi []Consumer

func (m Multi) Name() string { return "multi" }

func (m Multi) Consume(ctx context.Context, ev Event) error {
	var errs []error
	for _, c := range m {
		if err := c.Consume(ctx, ev); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
