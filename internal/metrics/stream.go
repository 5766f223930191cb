// internal/metrics/stream.go
package metrics

import "github.com/prometheus/client_golang/prometheus"

// Search stream Prometheus metrics.
var (
	StreamsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragview",
			Name:      "streams_total",
			Help:      "Total number of search streams by outcome",
		},
		[]string{"outcome"}, // "completed" / "failed" / "cancelled"
	)

	StreamDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Namespace: "ragview",
			Name:      "stream_duration_seconds",
			Help:      "Search stream duration from request to end of stream",
			Buckets:   []float64{0.1, 0.25, 0.5, 1, 2.5, 5, 10, 30, 60},
		},
		[]string{"outcome"},
	)

	TimeToFirstToken = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: "ragview",
			Name:      "stream_time_to_first_token_seconds",
			Help:      "Time from request to the first non-empty summary delta",
			Buckets:   []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
	)

	TokensTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragview",
			Name:      "stream_tokens_total",
			Help:      "Total non-empty summary deltas received",
		},
	)

	ResultsTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: "ragview",
			Name:      "stream_results_total",
			Help:      "Total search result items received",
		},
	)

	FramesDroppedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: "ragview",
			Name:      "frames_dropped_total",
			Help:      "Data frames dropped by the parser",
		},
		[]string{"kind"}, // "malformed" / "unrecognized"
	)
)

func init() {
	prometheus.MustRegister(StreamsTotal)
	prometheus.MustRegister(StreamDuration)
	prometheus.MustRegister(TimeToFirstToken)
	prometheus.MustRegister(TokensTotal)
	prometheus.MustRegister(ResultsTotal)
	prometheus.MustRegister(FramesDroppedTotal)
}
