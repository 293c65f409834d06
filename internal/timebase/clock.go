package timebase

import (
	"time"

	"github.com/labstreaminglayer/App-Zephyr/internal/protocol"
)

// MaxDrift is how far the extrapolated clock may drift from the host's
// packet receive time before it is re-anchored. Re-anchoring only ever moves
// the clock forward, so assigned timestamps stay monotonic.
const MaxDrift = time.Second

// streamState is the per-stream clock state. It is created lazily on the
// first burst for a stream and lives for the duration of one session.
type streamState struct {
	lastSeq      byte
	haveSeq      bool
	lastAssigned time.Time
	period       time.Duration
}

// Reconstructor assigns monotonically non-decreasing host timestamps to
// decoded samples. The device free-runs at each stream's nominal rate but
// delivers packets in host-observed bursts; the reconstructor restores the
// nominal spacing within bursts and bounds the absolute error against the
// host clock across them.
//
// A Reconstructor owns all of its per-stream state exclusively; it is not
// safe for concurrent use and is driven from the session's pipeline
// goroutine.
type Reconstructor struct {
	streams map[protocol.StreamID]*streamState

	// floors carries the last assigned stamp of each stream across resets,
	// so stamps stay non-decreasing over a reconnect.
	floors map[protocol.StreamID]time.Time
}

// New creates a Reconstructor with no per-stream state.
func New() *Reconstructor {
	return &Reconstructor{
		streams: make(map[protocol.StreamID]*streamState),
		floors:  make(map[protocol.StreamID]time.Time),
	}
}

// Reset drops all per-stream state. Must be called on reconnection: the
// device restarts its sequence counters, so state from the previous link
// cannot be used to extrapolate across the boundary. The last assigned
// stamp of each stream is kept as a floor for the next anchor.
func (r *Reconstructor) Reset() {
	for id, st := range r.streams {
		if st.haveSeq {
			r.floors[id] = maxTime(r.floors[id], st.lastAssigned)
		}
	}
	r.streams = make(map[protocol.StreamID]*streamState)
}

// Stamp assigns one timestamp per sample in the burst and returns them in
// sample order. Irregular streams (markers) are stamped with the receive
// time directly.
func (r *Reconstructor) Stamp(b *protocol.Burst) []time.Time {
	n := len(b.Samples)
	if n == 0 {
		n = len(b.Marks)
	}
	if n == 0 {
		return nil
	}

	period := protocol.NominalPeriod(b.Stream)
	if period == 0 {
		// Irregular stream: every mark gets the host receive time.
		stamps := make([]time.Time, n)
		for i := range stamps {
			stamps[i] = b.ReceivedAt
		}
		return stamps
	}

	st, ok := r.streams[b.Stream]
	if !ok {
		st = &streamState{period: period}
		r.streams[b.Stream] = st
	}

	start := r.anchor(st, b)
	stamps := make([]time.Time, n)
	for i := range stamps {
		stamps[i] = start.Add(time.Duration(i) * period)
	}
	st.lastAssigned = stamps[n-1]
	st.lastSeq = b.SeqNo
	st.haveSeq = true
	return stamps
}

// anchor picks the timestamp for the first sample of a burst.
func (r *Reconstructor) anchor(st *streamState, b *protocol.Burst) time.Time {
	// First burst of the stream (or after a reset): anchor on the host
	// receive time, clamped past anything assigned before a reset so a
	// fast reconnect cannot step the stream's clock backward.
	if !st.haveSeq {
		if floor, ok := r.floors[b.Stream]; ok {
			return maxTime(b.ReceivedAt, floor.Add(st.period))
		}
		return b.ReceivedAt
	}

	next := st.lastAssigned.Add(st.period)

	// A sequence discontinuity means packets were lost. The missing
	// samples are not synthesized; the clock re-anchors on the receive
	// time so that loss does not accumulate as lag.
	if b.SeqNo != st.lastSeq+1 {
		return maxTime(next, b.ReceivedAt)
	}

	// Contiguous packet: extend the nominal grid, unless extrapolation
	// has drifted too far from the host clock.
	if b.ReceivedAt.Sub(next) > MaxDrift {
		return b.ReceivedAt
	}
	return next
}

func maxTime(a, b time.Time) time.Time {
	if b.After(a) {
		return b
	}
	return a
}
