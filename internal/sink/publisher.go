package sink

import (
	"time"

	"go.uber.org/zap"

	"github.com/labstreaminglayer/App-Zephyr/internal/logging"
	"github.com/labstreaminglayer/App-Zephyr/internal/metrics"
	"github.com/labstreaminglayer/App-Zephyr/internal/protocol"
)

// Publisher routes decoded, timestamped bursts to the enabled output
// streams of a Sink. Streams are declared lazily on their first burst, so
// version-dependent channel layouts (summary V2 vs V3) are known at
// declaration time.
//
// Publication never blocks the decode path: batches pass through a
// single-slot hand-off to a sender goroutine, and when the sink cannot keep
// up the newest batch is dropped rather than queued.
type Publisher struct {
	sink     sink
	enabled  map[protocol.StreamID]bool
	prefix   string
	sourceID string
	declared map[protocol.StreamID]bool

	batches chan Batch
	done    chan struct{}
}

// sink is the subset of Sink the publisher uses (Close stays with the
// session).
type sink interface {
	DeclareStream(meta Metadata) error
	PublishBatch(batch Batch) error
}

// NewPublisher creates a publisher for the given enabled stream set. The
// prefix is prepended to every declared stream name; sourceID seeds the
// per-stream source identifiers (typically the device serial number).
func NewPublisher(s Sink, enabled []protocol.StreamID, prefix, sourceID string) *Publisher {
	set := make(map[protocol.StreamID]bool, len(enabled))
	for _, id := range enabled {
		set[id] = true
	}
	p := &Publisher{
		sink:     s,
		enabled:  set,
		prefix:   prefix,
		sourceID: sourceID,
		declared: make(map[protocol.StreamID]bool),
		batches:  make(chan Batch, 1),
		done:     make(chan struct{}),
	}
	go p.send()
	return p
}

// Enabled reports whether a stream is part of the configured output set.
func (p *Publisher) Enabled(id protocol.StreamID) bool {
	return p.enabled[id]
}

// Publish forwards one burst with its reconstructed timestamps. Disabled
// streams are ignored. Returns false when the batch was dropped because the
// sink was busy.
func (p *Publisher) Publish(b *protocol.Burst, stamps []time.Time) bool {
	if !p.enabled[b.Stream] {
		return true
	}
	if !p.declared[b.Stream] {
		if err := p.declare(b); err != nil {
			logging.Error("stream declaration failed",
				zap.String("stream", string(b.Stream)), zap.Error(err))
			return false
		}
		p.declared[b.Stream] = true
	}

	batch := Batch{
		Stream:     p.name(b.Stream),
		Timestamps: make([]float64, len(stamps)),
		Values:     b.Samples,
		Marks:      b.Marks,
	}
	for i, ts := range stamps {
		batch.Timestamps[i] = float64(ts.UnixNano()) / float64(time.Second)
	}

	select {
	case p.batches <- batch:
		return true
	default:
		// Sink is not keeping up. Dropping the new batch bounds memory;
		// the stream's clock is unaffected since timestamps come from the
		// reconstructor.
		metrics.BatchesDropped.Inc()
		return false
	}
}

// Close stops the sender after the in-flight batch, if any, is delivered.
func (p *Publisher) Close() {
	close(p.batches)
	<-p.done
}

func (p *Publisher) send() {
	defer close(p.done)
	for batch := range p.batches {
		if err := p.sink.PublishBatch(batch); err != nil {
			logging.Warn("batch publish failed",
				zap.String("stream", batch.Stream), zap.Error(err))
			metrics.BatchesDropped.Inc()
			continue
		}
		metrics.SamplesPublished.Add(float64(len(batch.Timestamps)))
	}
}

func (p *Publisher) name(id protocol.StreamID) string {
	return p.prefix + string(id)
}

func (p *Publisher) declare(b *protocol.Burst) error {
	meta := Metadata{
		Name:        p.name(b.Stream),
		ContentType: contentType(b.Stream),
		Channels:    make([]ChannelInfo, len(b.Channels)),
		NominalRate: protocol.NominalRate(b.Stream),
		Format:      "float32",
		SourceID:    p.sourceID + "-" + string(b.Stream),
	}
	if b.Stream == protocol.StreamMarkers {
		meta.Format = "string"
	}
	for i, ch := range b.Channels {
		meta.Channels[i] = ChannelInfo{Label: ch.Label, Unit: ch.Unit, Type: ch.Type}
	}
	logging.Info("declaring stream",
		zap.String("name", meta.Name),
		zap.Int("channels", len(meta.Channels)),
		zap.Float64("nominal_rate", meta.NominalRate))
	return p.sink.DeclareStream(meta)
}

// contentType gives the declared content class of each stream.
func contentType(id protocol.StreamID) string {
	switch id {
	case protocol.StreamECG:
		return "ECG"
	case protocol.StreamResp:
		return "Respiration"
	case protocol.StreamAccel, protocol.StreamAccel100Mg:
		return "Mocap"
	case protocol.StreamMarkers:
		return "Markers"
	default:
		return "Misc"
	}
}
