package sink

// ChannelInfo describes one channel of a declared stream.
type ChannelInfo struct {
	Label string `json:"label" cbor:"label"`
	Unit  string `json:"unit,omitempty" cbor:"unit,omitempty"`
	Type  string `json:"type,omitempty" cbor:"type,omitempty"`
}

// Metadata declares a stream to the sink. It is sent exactly once per
// stream, before the first batch.
type Metadata struct {
	Name        string        `json:"name" cbor:"name"`
	ContentType string        `json:"content_type" cbor:"content_type"`
	Channels    []ChannelInfo `json:"channels" cbor:"channels"`
	NominalRate float64       `json:"nominal_rate" cbor:"nominal_rate"`
	// Format is "float32" for numeric streams or "string" for markers.
	Format   string `json:"format" cbor:"format"`
	SourceID string `json:"source_id" cbor:"source_id"`
}

// Batch is an ordered run of timestamped samples for one stream. Exactly
// one of Values or Marks is populated, matching the stream's Format.
type Batch struct {
	Stream     string      `json:"stream" cbor:"stream"`
	Timestamps []float64   `json:"timestamps" cbor:"timestamps"`
	Values     [][]float64 `json:"values,omitempty" cbor:"values,omitempty"`
	Marks      []string    `json:"marks,omitempty" cbor:"marks,omitempty"`
}

// Sink is the outbound publication contract. Implementations own all
// network I/O; no acknowledgment is awaited by the pipeline.
type Sink interface {
	// DeclareStream announces a stream's metadata. Called once per stream
	// before its first batch.
	DeclareStream(meta Metadata) error

	// PublishBatch delivers one batch of timestamped samples.
	PublishBatch(batch Batch) error

	// Close releases the sink's resources.
	Close() error
}
