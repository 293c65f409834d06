package session

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v4"
	"go.uber.org/zap"

	"github.com/labstreaminglayer/App-Zephyr/internal/logging"
	"github.com/labstreaminglayer/App-Zephyr/internal/metrics"
	"github.com/labstreaminglayer/App-Zephyr/internal/protocol"
	"github.com/labstreaminglayer/App-Zephyr/internal/sink"
	"github.com/labstreaminglayer/App-Zephyr/internal/timebase"
	"github.com/labstreaminglayer/App-Zephyr/internal/transport"
)

// State is the session lifecycle phase.
type State int

const (
	StateDisconnected State = iota
	StateConnecting
	StateStreaming
	StateRecovering
)

func (s State) String() string {
	switch s {
	case StateDisconnected:
		return "disconnected"
	case StateConnecting:
		return "connecting"
	case StateStreaming:
		return "streaming"
	case StateRecovering:
		return "recovering"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// ErrRetriesExceeded is the fatal outcome when no device address could be
// resolved within the configured attempt ceiling.
var ErrRetriesExceeded = errors.New("no device address resolvable within retry ceiling")

// Transient streaming-phase failures that drive recovery.
var (
	errIdleTimeout   = errors.New("no valid packet within idle timeout")
	errChecksumStorm = errors.New("sustained framing failures")
	errConnectStale  = errors.New("no valid packet within connection timeout")
)

// Options configure a session. Zero values select the defaults.
type Options struct {
	// Address of the serial bridge; empty triggers discovery on connect.
	Address string

	// Streams to publish. Empty enables all.
	Streams []protocol.StreamID

	// StreamPrefix is prepended to every declared stream name.
	StreamPrefix string

	// SourceID seeds declared source identifiers when the device serial
	// is not yet known (the serial replaces it once queried).
	SourceID string

	// ConnectTimeout bounds the wait for the first valid packet after the
	// transport opens.
	ConnectTimeout time.Duration

	// IdleTimeout bounds the gap between valid packets while streaming.
	IdleTimeout time.Duration

	// LifesignInterval is the keepalive send period.
	LifesignInterval time.Duration

	// JunkThreshold is the number of consecutively discarded bytes that
	// counts as a checksum-failure storm.
	JunkThreshold uint64

	// MaxRetries caps consecutive failed connect attempts when no address
	// is known. With a known address reconnection retries indefinitely.
	MaxRetries int

	// Backoff bounds for reconnect delays.
	BackoffInitial time.Duration
	BackoffMax     time.Duration

	// Notify, when set, is called synchronously on every state change.
	Notify func(State)
}

func (o *Options) applyDefaults() {
	if len(o.Streams) == 0 {
		o.Streams = protocol.AllStreams
	}
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 20 * time.Second
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = 10 * time.Second
	}
	if o.LifesignInterval == 0 {
		o.LifesignInterval = 2 * time.Second
	}
	if o.JunkThreshold == 0 {
		o.JunkThreshold = 2048
	}
	if o.MaxRetries == 0 {
		o.MaxRetries = 5
	}
	if o.BackoffInitial == 0 {
		o.BackoffInitial = time.Second
	}
	if o.BackoffMax == 0 {
		o.BackoffMax = 30 * time.Second
	}
	if o.SourceID == "" {
		o.SourceID = "zephyr"
	}
}

// Controller owns the session lifecycle: it acquires the transport, drives
// the packet pipeline (frame, decode, reconstruct, publish) from a single
// goroutine, and is the only component that initiates reconnection.
type Controller struct {
	opts  Options
	trans transport.Transport
	out   sink.Sink

	framer *protocol.Framer
	clock  *timebase.Reconstructor
	pub    *sink.Publisher

	serial        string // device serial, once queried
	lastDiscarded uint64

	mu    sync.Mutex
	state State

	// AddressCached is invoked with the resolved serial and address after
	// a successful connect, so the config registry can be updated.
	AddressCached func(serial, address string)
}

// New creates a session controller. The transport and sink are owned by the
// caller; the controller closes neither outside Run's lifetime guarantees.
func New(t transport.Transport, out sink.Sink, opts Options) *Controller {
	opts.applyDefaults()
	return &Controller{
		opts:   opts,
		trans:  t,
		out:    out,
		framer: protocol.NewFramer(),
		clock:  timebase.New(),
		state:  StateDisconnected,
	}
}

// State returns the current lifecycle phase.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

func (c *Controller) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
	metrics.SessionState.Set(float64(s))
	logging.Info("session state", zap.Stringer("state", s))
	if c.opts.Notify != nil {
		c.opts.Notify(s)
	}
}

// Run drives the session until the context is cancelled (user stop, returns
// nil) or the connect retry ceiling is exceeded with no resolvable address
// (returns ErrRetriesExceeded). The transport handle never outlives Run.
func (c *Controller) Run(ctx context.Context) error {
	defer c.setState(StateDisconnected)

	policy := backoff.NewExponentialBackOff()
	policy.InitialInterval = c.opts.BackoffInitial
	policy.MaxInterval = c.opts.BackoffMax
	policy.MaxElapsedTime = 0 // the retry ceiling governs, not elapsed time

	attempts := 0
	for {
		if ctx.Err() != nil {
			return nil
		}
		c.setState(StateConnecting)
		conn, err := c.trans.Open(ctx, c.opts.Address)
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}
			attempts++
			if c.opts.Address == "" && attempts >= c.opts.MaxRetries {
				logging.Error("giving up: no device address resolvable",
					zap.Int("attempts", attempts))
				return fmt.Errorf("%w: %v", ErrRetriesExceeded, err)
			}
			logging.Warn("connect attempt failed",
				zap.Int("attempt", attempts), zap.Error(err))
			if !c.recover(ctx, policy) {
				return nil
			}
			continue
		}

		streamed, err := c.stream(ctx, conn)
		conn.Close()
		if ctx.Err() != nil {
			return nil
		}
		if streamed {
			// The link worked; future failures start a fresh backoff
			// schedule and attempt count.
			attempts = 0
			policy.Reset()
		}
		logging.Warn("streaming interrupted", zap.Error(err))
		if !c.recover(ctx, policy) {
			return nil
		}
	}
}

// recover performs the backoff wait and resets per-link state. Returns
// false when the context was cancelled during the wait.
func (c *Controller) recover(ctx context.Context, policy backoff.BackOff) bool {
	c.setState(StateRecovering)
	metrics.Reconnects.Inc()

	// Sequence counters restart with the link; per-stream clock state and
	// partial frames must not survive into the next connection.
	c.clock.Reset()
	c.framer.Reset()

	delay := policy.NextBackOff()
	logging.Info("reconnect backoff", zap.Duration("delay", delay))
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

type readResult struct {
	data []byte
	err  error
}

// stream runs one connected phase. It returns whether at least one valid
// packet was seen, and the error that ended the phase.
func (c *Controller) stream(ctx context.Context, conn transport.Conn) (bool, error) {
	// A cancelled context must unblock the transport read.
	watchDone := make(chan struct{})
	defer close(watchDone)
	go func() {
		select {
		case <-ctx.Done():
			conn.Close()
		case <-watchDone:
		}
	}()

	if err := c.enableStreams(conn); err != nil {
		return false, fmt.Errorf("enabling streams: %w", err)
	}

	reads := make(chan readResult)
	readerDone := make(chan struct{})
	defer close(readerDone)
	go func() {
		for {
			buf := make([]byte, 512)
			n, err := conn.Read(buf)
			var r readResult
			if n > 0 {
				r.data = buf[:n]
			}
			r.err = err
			select {
			case reads <- r:
			case <-readerDone:
				return
			}
			if err != nil {
				return
			}
		}
	}()

	lifesign := time.NewTicker(c.opts.LifesignInterval)
	defer lifesign.Stop()

	// Until the first valid packet arrives this acts as the connection
	// timeout; afterwards it is the idle timeout.
	idle := time.NewTimer(c.opts.ConnectTimeout)
	defer idle.Stop()

	streaming := false
	for {
		select {
		case <-ctx.Done():
			return streaming, ctx.Err()

		case <-lifesign.C:
			if _, err := conn.Write(protocol.EncodeLifesign()); err != nil {
				return streaming, fmt.Errorf("lifesign write: %w", err)
			}

		case <-idle.C:
			if !streaming {
				return false, errConnectStale
			}
			return true, errIdleTimeout

		case r := <-reads:
			if len(r.data) > 0 {
				logging.LogRawBytes("transport chunk", r.data)
				got, err := c.process(r.data)
				if err != nil {
					return streaming, err
				}
				if got {
					if !streaming {
						streaming = true
						c.setState(StateStreaming)
					}
					if !idle.Stop() {
						select {
						case <-idle.C:
						default:
						}
					}
					idle.Reset(c.opts.IdleTimeout)
				}
			}
			if r.err != nil {
				return streaming, fmt.Errorf("transport read: %w", r.err)
			}
		}
	}
}

// process feeds one transport chunk through the pipeline. Returns whether
// any valid packet was extracted.
func (c *Controller) process(data []byte) (bool, error) {
	packets := c.framer.Feed(data)
	stats := c.framer.Stats()
	if d := stats.Discarded - c.lastDiscarded; d > 0 {
		metrics.BytesDiscarded.Add(float64(d))
	}
	c.lastDiscarded = stats.Discarded

	for _, pkt := range packets {
		metrics.PacketsValidated.Inc()
		c.handlePacket(pkt)
	}
	if stats.JunkRun > c.opts.JunkThreshold {
		return len(packets) > 0, errChecksumStorm
	}
	return len(packets) > 0, nil
}

func (c *Controller) handlePacket(pkt *protocol.Packet) {
	if protocol.PeriodicMessages[pkt.ID] {
		burst, err := protocol.Decode(pkt)
		if err != nil {
			// Malformed payloads degrade one packet, never the session.
			metrics.DecodeErrors.Inc()
			logging.Warn("packet decode failed",
				zap.Stringer("id", pkt.ID), zap.Error(err))
			return
		}
		if c.pub == nil {
			c.pub = sink.NewPublisher(c.out, c.opts.Streams, c.opts.StreamPrefix, c.sourceID())
		}
		stamps := c.clock.Stamp(burst)
		c.pub.Publish(burst, stamps)
		return
	}

	switch pkt.ID {
	case protocol.MsgLifesign:
		// Device echoes keepalives; nothing to do.
	case protocol.MsgGetSerialNumber:
		if pkt.Acked() && len(pkt.Payload) > 0 {
			c.serial = trimSerial(pkt.Payload)
			logging.Info("device serial", zap.String("serial", c.serial))
			if c.AddressCached != nil && c.opts.Address != "" {
				c.AddressCached(c.serial, c.opts.Address)
			}
		}
	default:
		if !pkt.Acked() {
			logging.Warn("command rejected", zap.Stringer("id", pkt.ID))
		}
	}
}

// enableStreams queries the device serial and switches on transmission of
// every packet kind that feeds an enabled stream.
func (c *Controller) enableStreams(conn transport.Conn) error {
	if _, err := conn.Write(protocol.Encode(protocol.MsgGetSerialNumber, nil)); err != nil {
		return err
	}
	enabled := make(map[protocol.MessageID]bool)
	for _, id := range c.opts.Streams {
		enabled[protocol.DataPacketFor[id]] = true
	}
	for dataID := range protocol.TransmitStateForData {
		msg, ok := protocol.EncodeTransmitState(dataID, enabled[dataID])
		if !ok {
			continue
		}
		if _, err := conn.Write(msg); err != nil {
			return err
		}
	}
	return nil
}

func (c *Controller) sourceID() string {
	if c.serial != "" {
		return c.serial
	}
	return c.opts.SourceID
}

// ClosePublisher flushes and stops the publish adapter. Called by the CLI
// after Run returns.
func (c *Controller) ClosePublisher() {
	if c.pub != nil {
		c.pub.Close()
		c.pub = nil
	}
}

// trimSerial strips trailing padding from the serial number reply.
func trimSerial(payload []byte) string {
	end := len(payload)
	for end > 0 && (payload[end-1] == 0 || payload[end-1] == ' ') {
		end--
	}
	return string(payload[:end])
}
