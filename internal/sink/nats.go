package sink

import (
	"fmt"
	"strings"

	"github.com/fxamacker/cbor/v2"
	"github.com/nats-io/nats.go"
)

// DefaultSubjectRoot is the subject prefix for all published messages.
const DefaultSubjectRoot = "zephyr"

// NATSSink publishes declared streams and sample batches to a NATS server.
// Declarations go to <root>.decl.<stream> and batches to
// <root>.data.<stream>, both CBOR-encoded. Publication is fire-and-forget;
// NATS buffers and flushes asynchronously.
type NATSSink struct {
	nc   *nats.Conn
	root string
}

// NewNATSSink connects to the given NATS URL (empty uses the default
// localhost URL).
func NewNATSSink(url, subjectRoot string) (*NATSSink, error) {
	if url == "" {
		url = nats.DefaultURL
	}
	if subjectRoot == "" {
		subjectRoot = DefaultSubjectRoot
	}
	nc, err := nats.Connect(url,
		nats.Name("zephyr-bridge"),
		nats.MaxReconnects(-1),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS at %s: %w", url, err)
	}
	return &NATSSink{nc: nc, root: subjectRoot}, nil
}

// DeclareStream publishes the stream metadata.
func (s *NATSSink) DeclareStream(meta Metadata) error {
	data, err := cbor.Marshal(meta)
	if err != nil {
		return fmt.Errorf("encoding declaration for %s: %w", meta.Name, err)
	}
	return s.nc.Publish(s.subject("decl", meta.Name), data)
}

// PublishBatch publishes one sample batch.
func (s *NATSSink) PublishBatch(batch Batch) error {
	data, err := cbor.Marshal(batch)
	if err != nil {
		return fmt.Errorf("encoding batch for %s: %w", batch.Stream, err)
	}
	return s.nc.Publish(s.subject("data", batch.Stream), data)
}

// Close flushes pending messages and drops the connection.
func (s *NATSSink) Close() error {
	err := s.nc.Flush()
	s.nc.Close()
	return err
}

// subject builds a NATS subject, replacing characters that are significant
// in subject syntax.
func (s *NATSSink) subject(kind, stream string) string {
	clean := strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ':
			return '_'
		}
		return r
	}, stream)
	return s.root + "." + kind + "." + clean
}
