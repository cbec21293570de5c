package session

import (
	"context"
	"errors"
	"io"
	"time"

	"github.com/danmuck/feedctl/internal/clock"
	"github.com/danmuck/feedctl/internal/logs"
	"github.com/danmuck/feedctl/internal/protocol/frame"
)

// Sink receives decoded records. Dispatch must not block the reader.
type Sink interface {
	Dispatch(rec frame.Record)
}

// Result is the terminal report of one attempt.
type Result struct {
	ID         string
	Outcome    Outcome
	StatusCode int
	Err        error
	Records    uint64
	Heartbeats uint64
	// Oversized counts lines skipped for exceeding Limits.MaxChunkBytes.
	Oversized uint64
	Started    time.Time
	Ended      time.Time
}

// Session runs exactly one connection attempt. It never reconnects itself.
type Session struct {
	ID      string
	Config  Config
	Opener  Opener
	Request Request
	Sink    Sink
	Clock   clock.Clock
	// OnOpen runs once when a 2xx response arrives, before the first read.
	OnOpen func(statusCode int)
	// OnChunk runs after each chunk is classified.
	OnChunk func(kind frame.Kind)
}

// Run drives the attempt to its single outcome. The watchdog covers the
// initial response wait as well as every gap between chunks. On return the
// watchdog is disarmed and the stream is closed.
func (s *Session) Run(parent context.Context) Result {
	clk := s.Clock
	if clk == nil {
		clk = clock.System{}
	}
	idle := s.Config.IdleTimeout
	if idle <= 0 {
		idle = DefaultConfig().IdleTimeout
	}
	res := Result{ID: s.ID, Started: clk.Now()}

	ctx, cancel := context.WithCancelCause(parent)
	defer cancel(nil)
	wd := NewWatchdog(clk, func() { cancel(ErrIdleTimeout) })
	defer wd.Disarm()

	wd.Arm(idle)
	logs.Debugf("session.Session.Run connecting id=%s url=%q", s.ID, s.Request.URL)
	stream, err := s.Opener.Open(ctx, s.Request)
	if err != nil {
		return s.finish(clk, res, classifyFailure(ctx, parent, err, false), err)
	}
	defer stream.Close()

	res.StatusCode = stream.StatusCode()
	outcome, streaming := ClassifyStatus(res.StatusCode)
	if !streaming {
		wd.Disarm()
		return s.finish(clk, res, outcome, nil)
	}
	logs.Infof("session.Session.Run streaming id=%s status=%d", s.ID, res.StatusCode)
	if s.OnOpen != nil {
		s.OnOpen(res.StatusCode)
	}

	for {
		chunk, err := stream.Next(ctx)
		oversized := errors.Is(err, frame.ErrChunkTooLarge)
		if err != nil && !oversized {
			return s.finish(clk, res, classifyFailure(ctx, parent, err, true), err)
		}
		if cause := context.Cause(ctx); cause != nil {
			return s.finish(clk, res, classifyFailure(ctx, parent, cause, true), cause)
		}
		if !wd.Rearm(idle) {
			return s.finish(clk, res, OutcomeSelfTimeout, ErrIdleTimeout)
		}
		if oversized {
			// The reader already skipped to the next line; the stream stays up.
			res.Oversized++
			logs.Warnf("session.Session.Run dropped oversized chunk id=%s limit=%d dropped=%d", s.ID, s.Config.Limits.MaxChunkBytes, res.Oversized)
			if s.OnChunk != nil {
				s.OnChunk(frame.KindOversized)
			}
			continue
		}

		parsed := frame.Classify(chunk)
		switch parsed.Kind {
		case frame.KindRecord:
			res.Records++
			if s.Sink != nil {
				s.Sink.Dispatch(parsed.Record)
			}
		default:
			res.Heartbeats++
		}
		if s.OnChunk != nil {
			s.OnChunk(parsed.Kind)
		}
	}
}

func (s *Session) finish(clk clock.Clock, res Result, outcome Outcome, err error) Result {
	res.Outcome = outcome
	res.Ended = clk.Now()
	switch outcome {
	case OutcomeOpened, OutcomeCanceled:
		// Clean end of stream or shutdown; the error carries no information.
		res.Err = nil
	case OutcomeSelfTimeout:
		res.Err = ErrIdleTimeout
	default:
		res.Err = err
	}
	logs.Debugf(
		"session.Session.Run done id=%s outcome=%s status=%d records=%d heartbeats=%d oversized=%d err=%v",
		res.ID,
		res.Outcome,
		res.StatusCode,
		res.Records,
		res.Heartbeats,
		res.Oversized,
		res.Err,
	)
	return res
}

// classifyFailure maps an open or read error. Watchdog cancellation is checked
// before anything else so it is never mistaken for a transport timeout.
func classifyFailure(ctx, parent context.Context, err error, streaming bool) Outcome {
	if errors.Is(context.Cause(ctx), ErrIdleTimeout) {
		return OutcomeSelfTimeout
	}
	if parent.Err() != nil {
		return OutcomeCanceled
	}
	if streaming && (errors.Is(err, io.EOF) || errors.Is(err, io.ErrUnexpectedEOF)) {
		return OutcomeOpened
	}
	if IsTransportTimeout(err) {
		return OutcomeTransportTimeout
	}
	return OutcomeFatalTransport
}
