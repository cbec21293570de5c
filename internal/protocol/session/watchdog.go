package session

import (
	"errors"
	"sync"
	"time"

	"github.com/danmuck/feedctl/internal/clock"
)

// ErrIdleTimeout is the cancellation cause set when the watchdog fires.
var ErrIdleTimeout = errors.New("session: idle timeout")

// Watchdog is a rearmable one-shot timer. At most one fire is pending at a
// time; a timer superseded by Rearm or Disarm never reaches onFire. After it
// has fired it stays fired.
type Watchdog struct {
	clk    clock.Clock
	onFire func()

	mu    sync.Mutex
	timer clock.Timer
	gen   uint64
	fired bool
}

func NewWatchdog(clk clock.Clock, onFire func()) *Watchdog {
	if clk == nil {
		clk = clock.System{}
	}
	return &Watchdog{clk: clk, onFire: onFire}
}

// Arm schedules a fire after d, replacing any pending one. It is a no-op once
// the watchdog has fired; use Rearm to observe that.
func (w *Watchdog) Arm(d time.Duration) {
	w.Rearm(d)
}

// Rearm cancels the pending fire and schedules a new one after d.
// It returns false once the watchdog has already fired.
func (w *Watchdog) Rearm(d time.Duration) bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	if w.fired {
		return false
	}
	w.stopLocked()
	gen := w.gen
	w.timer = w.clk.AfterFunc(d, func() { w.fire(gen) })
	return true
}

// Disarm cancels the pending fire without replacement.
func (w *Watchdog) Disarm() {
	w.mu.Lock()
	defer w.mu.Unlock()
	w.stopLocked()
}

// Pending reports whether a fire is scheduled.
func (w *Watchdog) Pending() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.timer != nil
}

func (w *Watchdog) Fired() bool {
	w.mu.Lock()
	defer w.mu.Unlock()
	return w.fired
}

func (w *Watchdog) stopLocked() {
	w.gen++
	if w.timer != nil {
		w.timer.Stop()
		w.timer = nil
	}
}

func (w *Watchdog) fire(gen uint64) {
	w.mu.Lock()
	if w.fired || gen != w.gen {
		w.mu.Unlock()
		return
	}
	w.fired = true
	w.timer = nil
	w.mu.Unlock()

	if w.onFire != nil {
		w.onFire()
	}
}
