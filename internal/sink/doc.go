// Package sink publishes decoded sample streams to downstream consumers.
//
// The Sink interface is the minimal publication contract: declare a stream
// once, then push ordered batches of timestamped samples with no
// acknowledgment. NATSSink is the shipped implementation; the Publisher
// adapter sits between the decode pipeline and a Sink, applying the
// enabled-stream filter, the user's stream name prefix, lazy declarations,
// and a drop-new backpressure policy so a slow consumer can never stall
// decoding.
package sink
