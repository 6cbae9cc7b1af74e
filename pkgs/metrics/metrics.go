package metrics

import (
	"fmt"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
)

// Prometheus metrics for the migration pipeline
var (
	ScanQueries = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migrator_scan_queries_total",
			Help: "Ledger log queries issued during discovery",
		},
		[]string{"result"},
	)

	BatchesTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migrator_batches_total",
			Help: "Migration batches executed",
		},
		[]string{"result"},
	)

	UsersMigrated = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "migrator_users_migrated_total",
			Help: "Users confirmed migrated across all batches",
		},
	)

	UsersFailed = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "migrator_users_failed_total",
			Help: "Users whose migration failed or whose batch reverted",
		},
	)

	BatchDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "migrator_batch_duration_seconds",
			Help:    "Submission-to-confirmation duration per batch",
			Buckets: prometheus.DefBuckets,
		},
	)

	AuthorizationAttempts = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "migrator_authorization_attempts_total",
			Help: "Privileged-call authorization attempts by outcome",
		},
		[]string{"outcome"},
	)
)

func init() {
	prometheus.MustRegister(ScanQueries)
	prometheus.MustRegister(BatchesTotal)
	prometheus.MustRegister(UsersMigrated)
	prometheus.MustRegister(UsersFailed)
	prometheus.MustRegister(BatchDuration)
	prometheus.MustRegister(AuthorizationAttempts)
}

// Serve exposes /metrics on the given port in the background
func Serve(port int) {
	go func() {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())

		log.WithField("port", port).Info("Starting metrics server")
		if err := http.ListenAndServe(fmt.Sprintf(":%d", port), mux); err != nil {
			log.WithError(err).Error("Metrics server failed")
		}
	}()
}
