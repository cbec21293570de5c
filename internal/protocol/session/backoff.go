package session

import (
	"math"
	"time"
)

// Action is what the reconnect loop does after an attempt.
type Action uint8

const (
	ActionContinue Action = iota
	ActionRetryImmediately
	ActionRetryAfterDelay
	ActionTerminate
	ActionStop
)

func (a Action) String() string {
	switch a {
	case ActionContinue:
		return "continue"
	case ActionRetryImmediately:
		return "retry_immediately"
	case ActionRetryAfterDelay:
		return "retry_after_delay"
	case ActionTerminate:
		return "terminate"
	case ActionStop:
		return "stop"
	default:
		return "unknown"
	}
}

// Decision is the result of feeding one outcome through the backoff table.
// State is the backoff value to carry into the next attempt.
type Decision struct {
	Action Action
	Delay  time.Duration
	State  time.Duration
}

// NextBackoff applies the reconnect table to one outcome. All outcome kinds
// share the same state value.
func NextBackoff(cfg BackoffConfig, outcome Outcome, state time.Duration) Decision {
	if state < 0 {
		state = 0
	}
	switch outcome {
	case OutcomeOpened, OutcomeSelfTimeout:
		return Decision{Action: ActionRetryImmediately}
	case OutcomeTransportTimeout:
		next := state + cfg.LinearStep
		if next > cfg.LinearCap {
			next = cfg.LinearCap
		}
		return Decision{Action: ActionRetryAfterDelay, Delay: next, State: next}
	case OutcomeNotModified:
		return Decision{Action: ActionRetryAfterDelay, Delay: cfg.NotModifiedDelay, State: cfg.NotModifiedDelay}
	case OutcomeRateLimited:
		next := cfg.RateLimitBase
		if state > 0 {
			next = double(state)
		}
		return Decision{Action: ActionRetryAfterDelay, Delay: next, State: next}
	case OutcomeServerError:
		next := cfg.ServerErrorBase
		if state > 0 {
			next = double(state)
		}
		if next > cfg.ServerErrorCap {
			next = cfg.ServerErrorCap
		}
		return Decision{Action: ActionRetryAfterDelay, Delay: next, State: next}
	case OutcomeClientError, OutcomeFatalTransport:
		return Decision{Action: ActionTerminate, State: state}
	case OutcomeCanceled:
		return Decision{Action: ActionStop, State: state}
	default:
		return Decision{Action: ActionTerminate, State: state}
	}
}

// double saturates instead of wrapping; rate-limit growth has no cap.
func double(d time.Duration) time.Duration {
	if d > math.MaxInt64/2 {
		return math.MaxInt64
	}
	return d * 2
}

// Policy owns the backoff value across attempts. It is not safe for
// concurrent use; the reconnect loop is its only caller.
type Policy struct {
	cfg   BackoffConfig
	state time.Duration
}

func NewPolicy(cfg BackoffConfig) *Policy {
	return &Policy{cfg: cfg.WithDefaults()}
}

// Next consumes an attempt outcome and advances the backoff state.
func (p *Policy) Next(outcome Outcome) Decision {
	d := NextBackoff(p.cfg, outcome, p.state)
	p.state = d.State
	return d
}

// Opened records a 2xx stream. Data is flowing, so the backoff resets.
func (p *Policy) Opened() Decision {
	p.state = 0
	return Decision{Action: ActionContinue}
}

func (p *Policy) Current() time.Duration {
	return p.state
}
