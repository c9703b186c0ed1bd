package observability

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

var (
	RecordsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogsync_records_total",
			Help: "Records processed per pipeline stage and outcome",
		},
		[]string{"stage", "outcome"}, // e.g. stage=embed outcome=failed
	)

	BatchesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogsync_batches_total",
			Help: "Detail batches by result",
		},
		[]string{"outcome"},
	)

	HTTPRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "catalogsync_http_requests_total",
			Help: "Outbound HTTP requests by target and status code",
		},
		[]string{"target", "code"},
	)

	BatchDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "catalogsync_batch_duration_seconds",
			Help:    "Wall time of one detail batch including retries",
			Buckets: prometheus.DefBuckets,
		},
	)
)

func IncRecords(stage, outcome string, n int) {
	if n <= 0 {
		return
	}
	RecordsTotal.WithLabelValues(stage, outcome).Add(float64(n))
}

// Start serves /metrics on port in the background. An empty port disables it.
func Start(port string, log *zap.Logger) {
	if port == "" {
		return
	}
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())
	go func() {
		if err := http.ListenAndServe(":"+port, mux); err != nil {
			log.Warn("metrics server stopped", zap.Error(err))
		}
	}()
}
