// Package metrics exposes Prometheus counters for the annotation
// pipeline.
package metrics

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	DecodesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annotator_decodes_total",
			Help: "External decoder invocations by outcome.",
		},
		[]string{"outcome"}, // ok, failed, timeout
	)

	CacheLookupsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annotator_cache_lookups_total",
			Help: "Parse cache lookups by result.",
		},
		[]string{"result"}, // hit, miss, invalid
	)

	ImagesAnnotatedTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "annotator_images_annotated_total",
			Help: "Annotated images by match method.",
		},
		[]string{"method"}, // timestamp, sequential, none, error
	)

	DecodeDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "annotator_decode_duration_seconds",
			Help:    "Wall time of external decoder runs.",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 10),
		},
	)

	BatchDurationSeconds = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "annotator_batch_duration_seconds",
			Help:    "Wall time of batch annotation runs.",
			Buckets: prometheus.ExponentialBuckets(0.05, 2, 12),
		},
	)
)

func init() {
	prometheus.MustRegister(
		DecodesTotal,
		CacheLookupsTotal,
		ImagesAnnotatedTotal,
		DecodeDurationSeconds,
		BatchDurationSeconds,
	)
}

// Handler returns the Prometheus metrics HTTP handler.
func Handler() http.Handler {
	return promhttp.Handler()
}
