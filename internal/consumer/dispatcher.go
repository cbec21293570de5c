package consumer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"

	"github.com/danmuck/feedctl/internal/logs"
	"github.com/danmuck/feedctl/internal/observability"
	"github.com/danmuck/feedctl/internal/protocol/frame"
	"github.com/danmuck/feedctl/internal/protocol/session"
)

var (
	ErrNilConsumer      = errors.New("consumer: nil consumer")
	ErrAlreadyStarted   = errors.New("consumer: dispatcher already started")
	ErrNotStarted       = errors.New("consumer: dispatcher not started")
	ErrStopTimeout      = errors.New("consumer: stop timed out waiting for workers")
	errConsumerPanicked = errors.New("consumer: panic")
)

// DispatcherConfig sizes the worker pool.
type DispatcherConfig struct {
	Workers        int
	QueueSize      int
	ConsumeTimeout time.Duration
}

func DefaultDispatcherConfig() DispatcherConfig {
	return DispatcherConfig{
		Workers:        4,
		QueueSize:      1024,
		ConsumeTimeout: 30 * time.Second,
	}
}

// Stats is a point-in-time counter snapshot.
type Stats struct {
	Submitted uint64 `json:"submitted"`
	Processed uint64 `json:"processed"`
	Failed    uint64 `json:"failed"`
	Dropped   uint64 `json:"dropped"`
	Queued    int    `json:"queued"`
}

// Dispatcher fans records out to a bounded worker pool.
type Dispatcher struct {
	consumer Consumer
	cfg      DispatcherConfig
	queue    chan Event
	wg       sync.WaitGroup
	cancel   context.CancelFunc

	lifecycleMu sync.Mutex
	started     bool
	stopped     bool

	submitted atomic.Uint64
	processed atomic.Uint64
	failed    atomic.Uint64
	dropped   atomic.Uint64
}

func NewDispatcher(c Consumer, cfg DispatcherConfig) (*Dispatcher, error) {
	if c == nil {
		return nil, ErrNilConsumer
	}
	def := DefaultDispatcherConfig()
	if cfg.Workers <= 0 {
		cfg.Workers = def.Workers
	}
	if cfg.QueueSize <= 0 {
		cfg.QueueSize = def.QueueSize
	}
	if cfg.ConsumeTimeout <= 0 {
		cfg.ConsumeTimeout = def.ConsumeTimeout
	}
	return &Dispatcher{
		consumer: c,
		cfg:      cfg,
		queue:    make(chan Event, cfg.QueueSize),
	}, nil
}

// Start launches the workers. They keep ctx's values but not its
// cancellation: queued events are drained with a live context and only Stop
// ends the workers.
func (d *Dispatcher) Start(ctx context.Context) error {
	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()
	if d.started {
		return ErrAlreadyStarted
	}
	workerCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	d.cancel = cancel
	for i := 0; i < d.cfg.Workers; i++ {
		d.wg.Add(1)
		go d.worker(workerCtx, i)
	}
	d.started = true
	logs.Debugf("consumer.Dispatcher.Start consumer=%s workers=%d queue=%d", d.consumer.Name(), d.cfg.Workers, d.cfg.QueueSize)
	return nil
}

// Dispatch queues rec without a session id. It satisfies session.Sink.
func (d *Dispatcher) Dispatch(rec frame.Record) {
	d.submit("", rec)
}

// ForSession returns a sink that tags events with the session id.
func (d *Dispatcher) ForSession(sessionID string) session.Sink {
	return sessionSink{d: d, id: sessionID}
}

type sessionSink struct {
	d  *Dispatcher
	id string
}

func (s sessionSink) Dispatch(rec frame.Record) {
	s.d.submit(s.id, rec)
}

func (d *Dispatcher) submit(sessionID string, rec frame.Record) {
	ev := Event{
		ID:         uuid.NewString(),
		SessionID:  sessionID,
		ReceivedAt: time.Now().UTC(),
		Record:     rec,
	}

	d.lifecycleMu.Lock()
	defer d.lifecycleMu.Unlock()
	if !d.started || d.stopped {
		d.drop(ev, "dispatcher not running")
		return
	}
	select {
	case d.queue <- ev:
		d.submitted.Add(1)
		observability.SetQueueDepth(d.consumer.Name(), len(d.queue))
	default:
		d.drop(ev, "queue full")
	}
}

func (d *Dispatcher) drop(ev Event, reason string) {
	d.dropped.Add(1)
	observability.RecordDispatch(d.consumer.Name(), "dropped", 0)
	logs.Warnf("consumer.Dispatcher.Dispatch dropped id=%s record_id=%q reason=%q", ev.ID, ev.Record.ID, reason)
}

// Stop closes the queue and waits up to timeout for queued events to drain.
func (d *Dispatcher) Stop(timeout time.Duration) error {
	d.lifecycleMu.Lock()
	if !d.started {
		d.lifecycleMu.Unlock()
		return ErrNotStarted
	}
	if d.stopped {
		d.lifecycleMu.Unlock()
		return nil
	}
	d.stopped = true
	close(d.queue)
	d.lifecycleMu.Unlock()

	done := make(chan struct{})
	go func() {
		d.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		d.cancel()
		return nil
	case <-time.After(timeout):
		d.cancel()
		return ErrStopTimeout
	}
}

func (d *Dispatcher) Stats() Stats {
	return Stats{
		Submitted: d.submitted.Load(),
		Processed: d.processed.Load(),
		Failed:    d.failed.Load(),
		Dropped:   d.dropped.Load(),
		Queued:    len(d.queue),
	}
}

func (d *Dispatcher) worker(ctx context.Context, id int) {
	defer d.wg.Done()
	for ev := range d.queue {
		observability.SetQueueDepth(d.consumer.Name(), len(d.queue))
		start := time.Now()
		err := d.consume(ctx, ev)
		elapsed := time.Since(start)
		if err != nil {
			d.failed.Add(1)
			observability.RecordDispatch(d.consumer.Name(), "failed", elapsed)
			logs.Warnf("consumer.Dispatcher.worker failed worker=%d id=%s record_id=%q err=%v", id, ev.ID, ev.Record.ID, err)
			continue
		}
		d.processed.Add(1)
		observability.RecordDispatch(d.consumer.Name(), "processed", elapsed)
	}
}

func (d *Dispatcher) consume(ctx context.Context, ev Event) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%w: %v", errConsumerPanicked, r)
		}
	}()
	callCtx, cancel := context.WithTimeout(ctx, d.cfg.ConsumeTimeout)
	defer cancel()
	return d.consumer.Consume(callCtx, ev)
}
