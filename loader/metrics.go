package loader

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

type metrics struct {
	requests      prometheus.Counter
	deduplicated  prometheus.Counter
	cancelled     prometheus.Counter
	fetches       *prometheus.CounterVec
	queueLength   prometheus.Gauge
	fetchDuration prometheus.Histogram
}

// newMetrics registers on reg; a nil reg gives unregistered collectors.
func newMetrics(reg prometheus.Registerer) *metrics {
	f := promauto.With(reg)
	return &metrics{
		requests: f.NewCounter(prometheus.CounterOpts{
			Namespace: "nowplaying",
			Subsystem: "image_loader",
			Name:      "requests_total",
			Help:      "Image requests accepted by the loader",
		}),
		deduplicated: f.NewCounter(prometheus.CounterOpts{
			Namespace: "nowplaying",
			Subsystem: "image_loader",
			Name:      "deduplicated_total",
			Help:      "Requests attached to a fetch already in flight",
		}),
		cancelled: f.NewCounter(prometheus.CounterOpts{
			Namespace: "nowplaying",
			Subsystem: "image_loader",
			Name:      "cancelled_total",
			Help:      "Requests cancelled before delivery",
		}),
		fetches: f.NewCounterVec(prometheus.CounterOpts{
			Namespace: "nowplaying",
			Subsystem: "image_loader",
			Name:      "fetches_total",
			Help:      "Fetches handled by the worker, by outcome",
		}, []string{"result"}),
		queueLength: f.NewGauge(prometheus.GaugeOpts{
			Namespace: "nowplaying",
			Subsystem: "image_loader",
			Name:      "queue_length",
			Help:      "Fetches waiting for the worker",
		}),
		fetchDuration: f.NewHistogram(prometheus.HistogramOpts{
			Namespace: "nowplaying",
			Subsystem: "image_loader",
			Name:      "fetch_duration_seconds",
			Help:      "Time spent fetching and decoding one image",
			Buckets:   prometheus.DefBuckets,
		}),
	}
}
