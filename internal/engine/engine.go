package engine

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/feedctl/internal/clock"
	"github.com/danmuck/feedctl/internal/logs"
	"github.com/danmuck/feedctl/internal/observability"
	"github.com/danmuck/feedctl/internal/protocol/frame"
	"github.com/danmuck/feedctl/internal/protocol/session"
)

var (
	ErrNilOpener      = errors.New("engine: nil opener")
	ErrAlreadyRunning = errors.New("engine: already running")
)

// FatalError is the single unrecoverable signal raised by Run.
type FatalError struct {
	Outcome    session.Outcome
	StatusCode int
	Attempt    uint64
	Err        error
}

func (e *FatalError) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("engine: fatal outcome=%s status=%d attempt=%d: %v", e.Outcome, e.StatusCode, e.Attempt, e.Err)
	}
	return fmt.Sprintf("engine: fatal outcome=%s status=%d attempt=%d", e.Outcome, e.StatusCode, e.Attempt)
}

func (e *FatalError) Unwrap() error {
	return e.Err
}

// SessionSinks hands out a sink per session. consumer.Dispatcher satisfies it.
type SessionSinks interface {
	ForSession(sessionID string) session.Sink
}

// Config is the per-engine stream setup.
type Config struct {
	Session session.Config
	Request session.Request
}

// Option customizes an Engine.
type Option func(*Engine)

// WithClock sets the clock used by the idle watchdog.
func WithClock(clk clock.Clock) Option {
	return func(e *Engine) {
		if clk != nil {
			e.clk = clk
		}
	}
}

// WithSleep replaces the backoff wait. It must return early with a non-nil
// error when ctx is done.
func WithSleep(sleep func(ctx context.Context, d time.Duration) error) Option {
	return func(e *Engine) {
		if sleep != nil {
			e.sleep = sleep
		}
	}
}

// WithOnFatal registers a hook invoked once when Run terminates fatally.
func WithOnFatal(fn func(*FatalError)) Option {
	return func(e *Engine) {
		e.onFatal = fn
	}
}

// WithIDs replaces the session id generator.
func WithIDs(next func() string) Option {
	return func(e *Engine) {
		if next != nil {
			e.nextID = next
		}
	}
}

// Snapshot is a point-in-time view of the engine for status reporting.
type Snapshot struct {
	Running      bool              `json:"running"`
	Connected    bool              `json:"connected"`
	SessionID    string            `json:"session_id,omitempty"`
	Attempts     uint64            `json:"attempts"`
	LastOutcome  string            `json:"last_outcome,omitempty"`
	LastStatus   int               `json:"last_status,omitempty"`
	LastError    string            `json:"last_error,omitempty"`
	LastAction   string            `json:"last_action,omitempty"`
	Backoff      time.Duration     `json:"backoff_ns"`
	Records      uint64            `json:"records"`
	Heartbeats   uint64            `json:"heartbeats"`
	Oversized    uint64            `json:"oversized"`
	ConnectedAt  time.Time         `json:"connected_at,omitempty"`
	LastAttempt  time.Time         `json:"last_attempt,omitempty"`
	OutcomeCount map[string]uint64 `json:"outcomes,omitempty"`
}

// Engine runs sessions back to back until a fatal outcome or cancellation.
type Engine struct {
	cfg     Config
	opener  session.Opener
	sink    session.Sink
	sinks   SessionSinks
	clk     clock.Clock
	sleep   func(ctx context.Context, d time.Duration) error
	onFatal func(*FatalError)
	nextID  func() string

	policy  *session.Policy
	running atomic.Bool
	fatal   sync.Once

	records    atomic.Uint64
	heartbeats atomic.Uint64
	oversized  atomic.Uint64

	mu   sync.RWMutex
	snap Snapshot
}

// New builds an engine. sink may be nil; if it implements SessionSinks each
// session gets its own tagged sink.
func New(cfg Config, opener session.Opener, sink session.Sink, opts ...Option) (*Engine, error) {
	if opener == nil {
		return nil, ErrNilOpener
	}
	cfg.Session = cfg.Session.WithDefaults()
	e := &Engine{
		cfg:    cfg,
		opener: opener,
		sink:   sink,
		clk:    clock.System{},
		sleep:  sleepContext,
		nextID: uuid.NewString,
		policy: session.NewPolicy(cfg.Session.Backoff),
		snap:   Snapshot{OutcomeCount: make(map[string]uint64)},
	}
	if s, ok := sink.(SessionSinks); ok {
		e.sinks = s
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Run blocks until ctx is cancelled (nil) or a fatal outcome (*FatalError).
func (e *Engine) Run(ctx context.Context) error {
	if !e.running.CompareAndSwap(false, true) {
		return ErrAlreadyRunning
	}
	e.update(func(s *Snapshot) { s.Running = true })
	defer func() {
		e.running.Store(false)
		e.update(func(s *Snapshot) {
			s.Running = false
			s.Connected = false
		})
		observability.SetConnected(false)
	}()

	logs.Infof("engine.Engine.Run start url=%q idle=%s", e.cfg.Request.URL, e.cfg.Session.IdleTimeout)
	var attempt uint64
	for {
		if ctx.Err() != nil {
			logs.Infof("engine.Engine.Run stopped attempts=%d", attempt)
			return nil
		}
		attempt++
		res := e.runAttempt(ctx, attempt)
		dec := e.policy.Next(res.Outcome)
		e.record(res, dec)

		switch dec.Action {
		case session.ActionContinue, session.ActionRetryImmediately:
			logs.Debugf("engine.Engine.Run retry attempt=%d outcome=%s", attempt, res.Outcome)
			if !emptyOpen(res) {
				continue
			}
			// A 2xx that closes before any line would otherwise reconnect in a tight loop.
			pause := e.cfg.Session.Backoff.LinearStep
			logs.Warnf("engine.Engine.Run empty stream attempt=%d status=%d pause=%s", attempt, res.StatusCode, pause)
			if err := e.sleep(ctx, pause); err != nil {
				logs.Infof("engine.Engine.Run stopped during pause attempts=%d", attempt)
				return nil
			}
		case session.ActionRetryAfterDelay:
			logs.Warnf(
				"engine.Engine.Run backoff attempt=%d outcome=%s status=%d delay=%s err=%v",
				attempt,
				res.Outcome,
				res.StatusCode,
				dec.Delay,
				res.Err,
			)
			if err := e.sleep(ctx, dec.Delay); err != nil {
				logs.Infof("engine.Engine.Run stopped during backoff attempts=%d", attempt)
				return nil
			}
		case session.ActionStop:
			logs.Infof("engine.Engine.Run stopped attempts=%d", attempt)
			return nil
		case session.ActionTerminate:
			fe := &FatalError{Outcome: res.Outcome, StatusCode: res.StatusCode, Attempt: attempt, Err: res.Err}
			logs.Errorf("engine.Engine.Run fatal %v", fe)
			e.fatal.Do(func() {
				if e.onFatal != nil {
					e.onFatal(fe)
				}
			})
			return fe
		}
	}
}

func emptyOpen(res session.Result) bool {
	return res.Outcome == session.OutcomeOpened && res.Records == 0 && res.Heartbeats == 0 && res.Oversized == 0
}

func (e *Engine) runAttempt(ctx context.Context, attempt uint64) session.Result {
	id := e.nextID()
	sink := e.sink
	if e.sinks != nil {
		sink = e.sinks.ForSession(id)
	}
	e.update(func(s *Snapshot) {
		s.SessionID = id
		s.Attempts = attempt
		s.LastAttempt = e.clk.Now()
	})

	sess := &session.Session{
		ID:      id,
		Config:  e.cfg.Session,
		Opener:  e.opener,
		Request: e.cfg.Request,
		Sink:    sink,
		Clock:   e.clk,
		OnOpen: func(status int) {
			e.policy.Opened()
			observability.SetConnected(true)
			observability.SetBackoff(0)
			e.update(func(s *Snapshot) {
				s.Connected = true
				s.Backoff = 0
				s.LastStatus = status
				s.ConnectedAt = e.clk.Now()
			})
		},
		OnChunk: func(kind frame.Kind) {
			observability.RecordChunk(kind.String())
			switch kind {
			case frame.KindRecord:
				e.records.Add(1)
			case frame.KindOversized:
				e.oversized.Add(1)
			default:
				e.heartbeats.Add(1)
			}
		},
	}
	res := sess.Run(ctx)
	observability.SetConnected(false)
	observability.RecordAttempt(res.Outcome.String(), res.Ended.Sub(res.Started))
	return res
}

func (e *Engine) record(res session.Result, dec session.Decision) {
	observability.SetBackoff(dec.State)
	e.update(func(s *Snapshot) {
		s.Connected = false
		s.LastOutcome = res.Outcome.String()
		s.LastStatus = res.StatusCode
		s.LastAction = dec.Action.String()
		s.Backoff = dec.State
		s.LastError = ""
		if res.Err != nil {
			s.LastError = res.Err.Error()
		}
		s.OutcomeCount[res.Outcome.String()]++
	})
}

func (e *Engine) update(fn func(*Snapshot)) {
	e.mu.Lock()
	defer e.mu.Unlock()
	fn(&e.snap)
}

// Snapshot returns a copy of the current engine state.
func (e *Engine) Snapshot() Snapshot {
	e.mu.RLock()
	defer e.mu.RUnlock()
	out := e.snap
	out.Records = e.records.Load()
	out.Heartbeats = e.heartbeats.Load()
	out.Oversized = e.oversized.Load()
	out.OutcomeCount = make(map[string]uint64, len(e.snap.OutcomeCount))
	for k, v := range e.snap.OutcomeCount {
		out.OutcomeCount[k] = v
	}
	return out
}

func sleepContext(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
