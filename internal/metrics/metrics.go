package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Pipeline counters. All are registered on the default registry and shared
// process-wide; increments are cheap and safe from any goroutine.
var (
	PacketsValidated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zephyr_packets_validated_total",
		Help: "Framed packets that passed checksum and structural validation",
	})
	BytesDiscarded = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zephyr_bytes_discarded_total",
		Help: "Bytes discarded during framing resynchronization",
	})
	DecodeErrors = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zephyr_decode_errors_total",
		Help: "Validated packets whose payload failed to decode",
	})
	SamplesPublished = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zephyr_samples_published_total",
		Help: "Samples handed to the publish sink",
	})
	BatchesDropped = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zephyr_batches_dropped_total",
		Help: "Sample batches dropped because the sink was not keeping up",
	})
	Reconnects = promauto.NewCounter(prometheus.CounterOpts{
		Name: "zephyr_reconnects_total",
		Help: "Transitions into the recovering state",
	})
	SessionState = promauto.NewGauge(prometheus.GaugeOpts{
		Name: "zephyr_session_state",
		Help: "Current session state (0 disconnected, 1 connecting, 2 streaming, 3 recovering)",
	})
)

// Serve exposes the default registry on addr under /metrics. It blocks, so
// callers run it in its own goroutine.
func Serve(addr string) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	return http.ListenAndServe(addr, mux)
}
