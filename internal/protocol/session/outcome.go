package session

import (
	"context"
	"errors"
	"net"
	"net/http"
	"os"
)

// Outcome is the single classified result of one connection attempt.
type Outcome uint8

const (
	// OutcomeOpened: a 2xx stream was received and later ended.
	OutcomeOpened Outcome = iota
	// OutcomeSelfTimeout: the idle watchdog aborted the attempt.
	OutcomeSelfTimeout
	// OutcomeTransportTimeout: dial, handshake, header or read timeout below the watchdog.
	OutcomeTransportTimeout
	OutcomeNotModified
	OutcomeRateLimited
	OutcomeServerError
	// OutcomeClientError: any non-2xx status not covered above.
	OutcomeClientError
	OutcomeFatalTransport
	// OutcomeCanceled: the caller's context ended the attempt.
	OutcomeCanceled
)

func (o Outcome) String() string {
	switch o {
	case OutcomeOpened:
		return "opened"
	case OutcomeSelfTimeout:
		return "self_timeout"
	case OutcomeTransportTimeout:
		return "transport_timeout"
	case OutcomeNotModified:
		return "not_modified"
	case OutcomeRateLimited:
		return "rate_limited"
	case OutcomeServerError:
		return "server_error"
	case OutcomeClientError:
		return "client_error"
	case OutcomeFatalTransport:
		return "fatal_transport"
	case OutcomeCanceled:
		return "canceled"
	default:
		return "unknown"
	}
}

// Outcomes lists every outcome in declaration order.
func Outcomes() []Outcome {
	return []Outcome{
		OutcomeOpened,
		OutcomeSelfTimeout,
		OutcomeTransportTimeout,
		OutcomeNotModified,
		OutcomeRateLimited,
		OutcomeServerError,
		OutcomeClientError,
		OutcomeFatalTransport,
		OutcomeCanceled,
	}
}

const statusEnhanceYourCalm = 420

// ClassifyStatus maps a response status. streaming is true only for 2xx.
func ClassifyStatus(code int) (outcome Outcome, streaming bool) {
	switch {
	case code >= 200 && code < 300:
		return OutcomeOpened, true
	case code == http.StatusNotModified:
		return OutcomeNotModified, false
	case code == statusEnhanceYourCalm, code == http.StatusTooManyRequests:
		return OutcomeRateLimited, false
	case code >= 500 && code < 600:
		return OutcomeServerError, false
	default:
		return OutcomeClientError, false
	}
}

// IsTransportTimeout reports whether err is a network-level timeout.
func IsTransportTimeout(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, os.ErrDeadlineExceeded) || errors.Is(err, context.DeadlineExceeded) {
		return true
	}
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
