package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/danmuck/feedctl/internal/protocol/frame"
	"github.com/danmuck/feedctl/internal/testutil/clocktest"
	"github.com/danmuck/feedctl/internal/testutil/testlog"
)

const recordChunk = `{"data":{"id":"1","text":"Hello\n@World #tag\r"}}`

type fakeStream struct {
	status  int
	chunks  chan []byte
	end     chan error
	reading chan struct{}
	closed  atomic.Bool
	// lateChunk, when set, is returned only after ctx is cancelled.
	lateChunk []byte
}

func newFakeStream(status int) *fakeStream {
	return &fakeStream{
		status:  status,
		chunks:  make(chan []byte),
		end:     make(chan error, 1),
		reading: make(chan struct{}, 64),
	}
}

func (s *fakeStream) StatusCode() int { return s.status }

func (s *fakeStream) Next(ctx context.Context) ([]byte, error) {
	select {
	case s.reading <- struct{}{}:
	default:
	}
	if s.lateChunk != nil {
		<-ctx.Done()
		return s.lateChunk, nil
	}
	select {
	case c := <-s.chunks:
		return c, nil
	case err := <-s.end:
		return nil, err
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}

func (s *fakeStream) Close() error {
	s.closed.Store(true)
	return nil
}

type fakeOpener struct {
	stream  Stream
	err     error
	block   bool
	opening chan struct{}
	got     Request
}

func (o *fakeOpener) Open(ctx context.Context, req Request) (Stream, error) {
	o.got = req
	if o.block {
		close(o.opening)
		<-ctx.Done()
		return nil, ctx.Err()
	}
	if o.err != nil {
		return nil, o.err
	}
	return o.stream, nil
}

type recordingSink struct {
	mu      sync.Mutex
	records []frame.Record
}

func (s *recordingSink) Dispatch(rec frame.Record) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records = append(s.records, rec)
}

func (s *recordingSink) snapshot() []frame.Record {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]frame.Record(nil), s.records...)
}

type timeoutErr struct{}

func (timeoutErr) Error() string   { return "i/o timeout" }
func (timeoutErr) Timeout() bool   { return true }
func (timeoutErr) Temporary() bool { return true }

func startSession(ctx context.Context, s *Session) <-chan Result {
	done := make(chan Result, 1)
	go func() { done <- s.Run(ctx) }()
	return done
}

func waitResult(t *testing.T, done <-chan Result) Result {
	t.Helper()
	select {
	case res := <-done:
		return res
	case <-time.After(2 * time.Second):
		t.Fatalf("session did not finish")
		return Result{}
	}
}

func waitReading(t *testing.T, s *fakeStream) {
	t.Helper()
	select {
	case <-s.reading:
	case <-time.After(2 * time.Second):
		t.Fatalf("session never started reading")
	}
}

func newTestSession(clk *clocktest.Manual, opener Opener, sink Sink) *Session {
	return &Session{
		ID:      "sess-test",
		Config:  DefaultConfig(),
		Opener:  opener,
		Request: Request{URL: "https://stream.example/feed", BearerToken: "token"},
		Sink:    sink,
		Clock:   clk,
	}
}

func TestSessionStatusClassification(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		status int
		want   Outcome
	}{
		{304, OutcomeNotModified},
		{420, OutcomeRateLimited},
		{429, OutcomeRateLimited},
		{500, OutcomeServerError},
		{503, OutcomeServerError},
		{599, OutcomeServerError},
		{302, OutcomeClientError},
		{400, OutcomeClientError},
		{401, OutcomeClientError},
		{404, OutcomeClientError},
	}
	for _, tc := range cases {
		clk := clocktest.NewManual(time.Unix(1700000000, 0))
		stream := newFakeStream(tc.status)
		sink := &recordingSink{}
		s := newTestSession(clk, &fakeOpener{stream: stream}, sink)

		res := s.Run(context.Background())
		if res.Outcome != tc.want {
			t.Fatalf("status=%d outcome=%s want=%s", tc.status, res.Outcome, tc.want)
		}
		if res.StatusCode != tc.status {
			t.Fatalf("status=%d recorded=%d", tc.status, res.StatusCode)
		}
		if !stream.closed.Load() {
			t.Fatalf("status=%d stream not closed", tc.status)
		}
		if clk.Pending() != 0 {
			t.Fatalf("status=%d left %d pending timers", tc.status, clk.Pending())
		}
		if len(sink.snapshot()) != 0 {
			t.Fatalf("status=%d forwarded records", tc.status)
		}
	}
}

func TestSessionStreamsRecordsUntilEOF(t *testing.T) {
	testlog.Start(t)
	clk := clocktest.NewManual(time.Unix(1700000000, 0))
	stream := newFakeStream(200)
	sink := &recordingSink{}
	opener := &fakeOpener{stream: stream}
	s := newTestSession(clk, opener, sink)
	var opened atomic.Int32
	s.OnOpen = func(code int) {
		if code == 200 {
			opened.Add(1)
		}
	}
	var kinds []frame.Kind
	s.OnChunk = func(k frame.Kind) { kinds = append(kinds, k) }

	done := startSession(context.Background(), s)
	waitReading(t, stream)
	stream.chunks <- []byte(recordChunk)
	waitReading(t, stream)
	stream.chunks <- []byte("\r")
	waitReading(t, stream)
	stream.chunks <- []byte("not json")
	waitReading(t, stream)
	stream.end <- io.EOF

	res := waitResult(t, done)
	if res.Outcome != OutcomeOpened {
		t.Fatalf("unexpected outcome: %s err=%v", res.Outcome, res.Err)
	}
	if res.Err != nil {
		t.Fatalf("clean end should carry no error: %v", res.Err)
	}
	if res.Records != 1 || res.Heartbeats != 2 {
		t.Fatalf("unexpected counters records=%d heartbeats=%d", res.Records, res.Heartbeats)
	}
	if opened.Load() != 1 {
		t.Fatalf("expected one open callback, got %d", opened.Load())
	}
	if len(kinds) != 3 || kinds[0] != frame.KindRecord || kinds[1] != frame.KindHeartbeat {
		t.Fatalf("unexpected chunk kinds: %v", kinds)
	}
	got := sink.snapshot()
	if len(got) != 1 || got[0].Text != "Hello  World  tag " {
		t.Fatalf("unexpected forwarded records: %+v", got)
	}
	if opener.got.BearerToken != "token" {
		t.Fatalf("request not passed through: %+v", opener.got)
	}
	if clk.Pending() != 0 {
		t.Fatalf("left %d pending timers", clk.Pending())
	}
}

func TestSessionIdleWatchdogSelfTimeout(t *testing.T) {
	testlog.Start(t)
	clk := clocktest.NewManual(time.Unix(1700000000, 0))
	stream := newFakeStream(200)
	sink := &recordingSink{}
	s := newTestSession(clk, &fakeOpener{stream: stream}, sink)

	done := startSession(context.Background(), s)
	waitReading(t, stream)
	stream.chunks <- []byte(recordChunk)
	waitReading(t, stream)

	clk.Advance(90 * time.Second)
	res := waitResult(t, done)
	if res.Outcome != OutcomeSelfTimeout {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
	if !errors.Is(res.Err, ErrIdleTimeout) {
		t.Fatalf("unexpected error: %v", res.Err)
	}
	if len(sink.snapshot()) != 1 {
		t.Fatalf("expected only the pre-timeout record, got %d", len(sink.snapshot()))
	}
	if !stream.closed.Load() || clk.Pending() != 0 {
		t.Fatalf("session leaked resources closed=%v pending=%d", stream.closed.Load(), clk.Pending())
	}
}

func TestSessionHeartbeatRearmsWatchdog(t *testing.T) {
	testlog.Start(t)
	clk := clocktest.NewManual(time.Unix(1700000000, 0))
	stream := newFakeStream(200)
	sink := &recordingSink{}
	s := newTestSession(clk, &fakeOpener{stream: stream}, sink)

	done := startSession(context.Background(), s)
	waitReading(t, stream)
	clk.Advance(60 * time.Second)
	stream.chunks <- []byte("{broken")
	waitReading(t, stream)

	// Without the rearm this would cross the original 90s deadline.
	clk.Advance(60 * time.Second)
	select {
	case res := <-done:
		t.Fatalf("session ended early: %s", res.Outcome)
	default:
	}
	if clk.Pending() != 1 {
		t.Fatalf("expected exactly one pending watchdog, got %d", clk.Pending())
	}

	clk.Advance(30 * time.Second)
	res := waitResult(t, done)
	if res.Outcome != OutcomeSelfTimeout {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
	if res.Heartbeats != 1 || len(sink.snapshot()) != 0 {
		t.Fatalf("heartbeat must not be forwarded: heartbeats=%d forwarded=%d", res.Heartbeats, len(sink.snapshot()))
	}
}

func TestSessionNoForwardingAfterWatchdogFire(t *testing.T) {
	testlog.Start(t)
	clk := clocktest.NewManual(time.Unix(1700000000, 0))
	stream := newFakeStream(200)
	stream.lateChunk = []byte(recordChunk)
	sink := &recordingSink{}
	s := newTestSession(clk, &fakeOpener{stream: stream}, sink)

	done := startSession(context.Background(), s)
	waitReading(t, stream)
	clk.Advance(90 * time.Second)

	res := waitResult(t, done)
	if res.Outcome != OutcomeSelfTimeout {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
	if n := len(sink.snapshot()); n != 0 {
		t.Fatalf("forwarded %d records after self timeout", n)
	}
}

func TestSessionWatchdogCoversInitialResponse(t *testing.T) {
	testlog.Start(t)
	clk := clocktest.NewManual(time.Unix(1700000000, 0))
	opener := &fakeOpener{block: true, opening: make(chan struct{})}
	s := newTestSession(clk, opener, &recordingSink{})

	done := startSession(context.Background(), s)
	<-opener.opening
	clk.Advance(90 * time.Second)

	res := waitResult(t, done)
	if res.Outcome != OutcomeSelfTimeout {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
}

func TestSessionTransportErrors(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		err  error
		want Outcome
	}{
		{name: "dial timeout", err: timeoutErr{}, want: OutcomeTransportTimeout},
		{name: "deadline", err: context.DeadlineExceeded, want: OutcomeTransportTimeout},
		{name: "refused", err: errors.New("dial tcp: connection refused"), want: OutcomeFatalTransport},
		{name: "missing url", err: ErrStreamURLRequired, want: OutcomeFatalTransport},
	}
	for _, tc := range cases {
		clk := clocktest.NewManual(time.Unix(1700000000, 0))
		s := newTestSession(clk, &fakeOpener{err: tc.err}, &recordingSink{})
		res := s.Run(context.Background())
		if res.Outcome != tc.want {
			t.Fatalf("%s: outcome=%s want=%s", tc.name, res.Outcome, tc.want)
		}
		if !errors.Is(res.Err, tc.err) {
			t.Fatalf("%s: error not preserved: %v", tc.name, res.Err)
		}
		if clk.Pending() != 0 {
			t.Fatalf("%s: left %d pending timers", tc.name, clk.Pending())
		}
	}
}

func TestSessionReadErrors(t *testing.T) {
	testlog.Start(t)
	cases := []struct {
		name string
		err  error
		want Outcome
	}{
		{name: "read timeout", err: timeoutErr{}, want: OutcomeTransportTimeout},
		{name: "reset", err: errors.New("connection reset by peer"), want: OutcomeFatalTransport},
		{name: "truncated", err: io.ErrUnexpectedEOF, want: OutcomeOpened},
	}
	for _, tc := range cases {
		clk := clocktest.NewManual(time.Unix(1700000000, 0))
		stream := newFakeStream(200)
		s := newTestSession(clk, &fakeOpener{stream: stream}, &recordingSink{})
		done := startSession(context.Background(), s)
		waitReading(t, stream)
		stream.end <- tc.err
		res := waitResult(t, done)
		if res.Outcome != tc.want {
			t.Fatalf("%s: outcome=%s want=%s", tc.name, res.Outcome, tc.want)
		}
		if !stream.closed.Load() || clk.Pending() != 0 {
			t.Fatalf("%s: leaked resources", tc.name)
		}
	}
}

func TestSessionParentCancel(t *testing.T) {
	testlog.Start(t)
	clk := clocktest.NewManual(time.Unix(1700000000, 0))
	stream := newFakeStream(200)
	s := newTestSession(clk, &fakeOpener{stream: stream}, &recordingSink{})

	ctx, cancel := context.WithCancel(context.Background())
	done := startSession(ctx, s)
	waitReading(t, stream)
	cancel()

	res := waitResult(t, done)
	if res.Outcome != OutcomeCanceled {
		t.Fatalf("unexpected outcome: %s", res.Outcome)
	}
	if res.Err != nil {
		t.Fatalf("shutdown should carry no error: %v", res.Err)
	}
	if !stream.closed.Load() || clk.Pending() != 0 {
		t.Fatalf("leaked resources on cancel")
	}
}

func TestSessionSkipsOversizedChunk(t *testing.T) {
	testlog.Start(t)
	clk := clocktest.NewManual(time.Unix(1700000000, 0))
	stream := newFakeStream(200)
	sink := &recordingSink{}
	s := newTestSession(clk, &fakeOpener{stream: stream}, sink)
	var kinds []frame.Kind
	s.OnChunk = func(k frame.Kind) { kinds = append(kinds, k) }

	done := startSession(context.Background(), s)
	waitReading(t, stream)
	clk.Advance(80 * time.Second)
	stream.end <- frame.ErrChunkTooLarge
	waitReading(t, stream)
	// The skipped line rearmed the watchdog.
	clk.Advance(80 * time.Second)
	stream.chunks <- []byte(recordChunk)
	waitReading(t, stream)
	stream.end <- io.EOF

	res := waitResult(t, done)
	if res.Outcome != OutcomeOpened {
		t.Fatalf("oversized chunk must not end the session: outcome=%s err=%v", res.Outcome, res.Err)
	}
	if res.Oversized != 1 || res.Records != 1 || res.Heartbeats != 0 {
		t.Fatalf("unexpected counters: %+v", res)
	}
	if len(kinds) != 2 || kinds[0] != frame.KindOversized || kinds[1] != frame.KindRecord {
		t.Fatalf("unexpected chunk kinds: %v", kinds)
	}
	if got := sink.snapshot(); len(got) != 1 || got[0].Text != "Hello  World  tag " {
		t.Fatalf("record after oversized chunk not forwarded: %+v", got)
	}
}
