package session

import (
	"context"
	"errors"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/labstreaminglayer/App-Zephyr/internal/protocol"
	"github.com/labstreaminglayer/App-Zephyr/internal/sink"
	"github.com/labstreaminglayer/App-Zephyr/internal/transport"
)

// fakeConn is a scripted transport connection. Reads deliver chunks pushed
// via push; Close unblocks pending reads with io.EOF.
type fakeConn struct {
	reads chan []byte

	mu     sync.Mutex
	writes [][]byte

	closeOnce sync.Once
	closed    chan struct{}
}

func newFakeConn() *fakeConn {
	return &fakeConn{
		reads:  make(chan []byte, 16),
		closed: make(chan struct{}),
	}
}

func (c *fakeConn) Read(p []byte) (int, error) {
	select {
	case data := <-c.reads:
		return copy(p, data), nil
	case <-c.closed:
		return 0, io.EOF
	}
}

func (c *fakeConn) Write(p []byte) (int, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.writes = append(c.writes, append([]byte(nil), p...))
	return len(p), nil
}

func (c *fakeConn) Close() error {
	c.closeOnce.Do(func() { close(c.closed) })
	return nil
}

func (c *fakeConn) written() [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([][]byte(nil), c.writes...)
}

// fakeTransport hands out scripted connections in order, then blocks until
// the context is cancelled.
type fakeTransport struct {
	mu    sync.Mutex
	conns []*fakeConn
	opens int
}

func (t *fakeTransport) Open(ctx context.Context, address string) (transport.Conn, error) {
	t.mu.Lock()
	t.opens++
	var conn *fakeConn
	if len(t.conns) > 0 {
		conn = t.conns[0]
		t.conns = t.conns[1:]
	}
	t.mu.Unlock()
	if conn != nil {
		return conn, nil
	}
	<-ctx.Done()
	return nil, ctx.Err()
}

func (t *fakeTransport) openCount() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.opens
}

// noAddressTransport always fails as if discovery found nothing.
type noAddressTransport struct{ opens int }

func (t *noAddressTransport) Open(ctx context.Context, address string) (transport.Conn, error) {
	t.opens++
	return nil, transport.ErrNoAddress
}

// nullSink accepts everything.
type nullSink struct{}

func (nullSink) DeclareStream(meta sink.Metadata) error { return nil }
func (nullSink) PublishBatch(batch sink.Batch) error    { return nil }
func (nullSink) Close() error                           { return nil }

// recordingSink counts deliveries.
type recordingSink struct {
	mu       sync.Mutex
	declared []sink.Metadata
	batches  []sink.Batch
}

func (s *recordingSink) DeclareStream(meta sink.Metadata) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.declared = append(s.declared, meta)
	return nil
}

func (s *recordingSink) PublishBatch(batch sink.Batch) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.batches = append(s.batches, batch)
	return nil
}

func (s *recordingSink) Close() error { return nil }

func (s *recordingSink) counts() (int, int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.declared), len(s.batches)
}

// ecgFrame builds a valid on-wire ECG packet with the given sequence number.
func ecgFrame(seq byte) []byte {
	payload := make([]byte, 88)
	payload[0] = seq
	// Device timestamp: 2025-06-15, noon.
	copy(payload[1:9], []byte{0xE9, 0x07, 6, 15, 0x00, 0x2E, 0x93, 0x02})
	return protocol.Encode(protocol.MsgECG, payload)
}

// stateRecorder collects lifecycle transitions.
type stateRecorder struct {
	mu     sync.Mutex
	states []State
}

func (r *stateRecorder) notify(s State) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.states = append(r.states, s)
}

func (r *stateRecorder) seen(want State) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, s := range r.states {
		if s == want {
			return true
		}
	}
	return false
}

func (r *stateRecorder) last() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.states) == 0 {
		return StateDisconnected
	}
	return r.states[len(r.states)-1]
}

func quietOptions(rec *stateRecorder) Options {
	return Options{
		Address:          "device:7023",
		Streams:          []protocol.StreamID{protocol.StreamECG},
		StreamPrefix:     "Zephyr",
		ConnectTimeout:   5 * time.Second,
		IdleTimeout:      5 * time.Second,
		LifesignInterval: time.Hour, // keep keepalives out of the scripts
		BackoffInitial:   time.Millisecond,
		BackoffMax:       2 * time.Millisecond,
		Notify:           rec.notify,
	}
}

func TestSessionStreamsAndRecovers(t *testing.T) {
	conn := newFakeConn()
	conn.reads <- ecgFrame(1)
	conn.reads <- ecgFrame(2)

	trans := &fakeTransport{conns: []*fakeConn{conn}}
	out := &recordingSink{}
	rec := &stateRecorder{}
	ctrl := New(trans, out, quietOptions(rec))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	// Wait for the pipeline to reach streaming, then kill the link.
	waitFor(t, func() bool { return rec.seen(StateStreaming) })
	conn.Close()

	// The controller must enter recovery and attempt to reconnect.
	waitFor(t, func() bool { return rec.seen(StateRecovering) })
	waitFor(t, func() bool { return trans.openCount() >= 2 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run after user stop = %v, want nil", err)
	}
	ctrl.ClosePublisher()

	if rec.last() != StateDisconnected {
		t.Errorf("final state = %v, want disconnected", rec.last())
	}
	declares, batches := out.counts()
	if declares != 1 {
		t.Errorf("got %d stream declarations, want 1", declares)
	}
	if batches < 1 {
		t.Errorf("got %d batches, want at least 1", batches)
	}
}

func TestSessionRecoversFromChecksumStorm(t *testing.T) {
	conn := newFakeConn()
	conn.reads <- ecgFrame(1)

	trans := &fakeTransport{conns: []*fakeConn{conn}}
	rec := &stateRecorder{}
	opts := quietOptions(rec)
	opts.JunkThreshold = 64
	ctrl := New(trans, nullSink{}, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	waitFor(t, func() bool { return rec.seen(StateStreaming) })

	// A run of bytes with no frame sync in it, longer than the threshold.
	junk := make([]byte, 256)
	for i := range junk {
		junk[i] = 0xAA
	}
	conn.reads <- junk

	// The storm must tear the link down and trigger a reconnect attempt.
	waitFor(t, func() bool { return rec.seen(StateRecovering) })
	waitFor(t, func() bool { return trans.openCount() >= 2 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run after user stop = %v, want nil", err)
	}
	ctrl.ClosePublisher()
}

func TestSessionIdleTimeoutTriggersRecovery(t *testing.T) {
	conn := newFakeConn()
	conn.reads <- ecgFrame(1)

	trans := &fakeTransport{conns: []*fakeConn{conn}}
	rec := &stateRecorder{}
	opts := quietOptions(rec)
	opts.IdleTimeout = 50 * time.Millisecond
	ctrl := New(trans, nullSink{}, opts)

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	// One valid packet starts streaming; after that the link goes silent
	// and the idle timer must force a reconnect.
	waitFor(t, func() bool { return rec.seen(StateStreaming) })
	waitFor(t, func() bool { return rec.seen(StateRecovering) })
	waitFor(t, func() bool { return trans.openCount() >= 2 })

	cancel()
	if err := <-done; err != nil {
		t.Fatalf("Run after user stop = %v, want nil", err)
	}
	ctrl.ClosePublisher()
}

func TestSessionSendsEnableCommandsOnConnect(t *testing.T) {
	conn := newFakeConn()
	trans := &fakeTransport{conns: []*fakeConn{conn}}
	rec := &stateRecorder{}
	ctrl := New(trans, nullSink{}, quietOptions(rec))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	waitFor(t, func() bool { return len(conn.written()) >= 8 })
	cancel()
	<-done

	writes := conn.written()
	ids := make(map[protocol.MessageID]bool)
	var ecgEnable []byte
	for _, frame := range writes {
		if len(frame) < 2 {
			t.Fatalf("short write: %v", frame)
		}
		id := protocol.MessageID(frame[1])
		ids[id] = true
		if id == protocol.MsgSetECGTransmit {
			ecgEnable = frame
		}
	}
	if !ids[protocol.MsgGetSerialNumber] {
		t.Error("serial number query not sent")
	}
	for _, want := range []protocol.MessageID{
		protocol.MsgSetGeneralTransmit,
		protocol.MsgSetBreathingTransmit,
		protocol.MsgSetECGTransmit,
		protocol.MsgSetRtoRTransmit,
		protocol.MsgSetAccelTransmit,
		protocol.MsgSetAccel100MgTransmit,
		protocol.MsgSetSummaryUpdateRate,
	} {
		if !ids[want] {
			t.Errorf("transmit-state command %s not sent", want)
		}
	}
	// Only ECG was requested; its enable payload carries 1.
	if ecgEnable == nil || ecgEnable[3] != 1 {
		t.Errorf("ECG enable frame = %v, want payload 1", ecgEnable)
	}
}

func TestSessionFatalWithoutResolvableAddress(t *testing.T) {
	trans := &noAddressTransport{}
	rec := &stateRecorder{}
	opts := quietOptions(rec)
	opts.Address = ""
	opts.MaxRetries = 3
	ctrl := New(trans, nullSink{}, opts)

	err := ctrl.Run(context.Background())
	if !errors.Is(err, ErrRetriesExceeded) {
		t.Fatalf("Run = %v, want ErrRetriesExceeded", err)
	}
	if trans.opens != 3 {
		t.Errorf("got %d connect attempts, want 3", trans.opens)
	}
	if rec.last() != StateDisconnected {
		t.Errorf("final state = %v, want disconnected", rec.last())
	}
}

func TestSessionUserStopDuringBackoff(t *testing.T) {
	// No scripted connections: Open blocks until cancellation.
	trans := &fakeTransport{}
	rec := &stateRecorder{}
	ctrl := New(trans, nullSink{}, quietOptions(rec))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() { done <- ctrl.Run(ctx) }()

	waitFor(t, func() bool { return trans.openCount() >= 1 })
	cancel()

	select {
	case err := <-done:
		if err != nil {
			t.Errorf("Run after user stop = %v, want nil", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Run did not return after cancellation")
	}
}

func waitFor(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("condition not met within deadline")
}
