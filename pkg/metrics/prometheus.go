package metrics

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type MetricsCollector struct {
	registry          *prometheus.Registry
	operations        *prometheus.CounterVec
	operationDuration *prometheus.HistogramVec
	mortgagePayments  prometheus.Counter
	mortgagePaidTotal prometheus.Counter
	accounts          *prometheus.GaugeVec
	logger            *slog.Logger
}

func NewMetricsCollector(logger *slog.Logger) *MetricsCollector {
	if logger == nil {
		logger = slog.Default()
	}

	registry := prometheus.NewRegistry()

	collector := &MetricsCollector{
		registry: registry,
		operations: promauto.With(registry).NewCounterVec(prometheus.CounterOpts{
			Name: "ledger_operations_total",
			Help: "Total number of ledger operations by outcome",
		}, []string{"operation", "outcome"}),
		operationDuration: promauto.With(registry).NewHistogramVec(prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Time taken to handle a ledger operation",
			Buckets: prometheus.DefBuckets,
		}, []string{"operation"}),
		mortgagePayments: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_mortgage_payments_total",
			Help: "Total number of monthly mortgage repayments made",
		}),
		mortgagePaidTotal: promauto.With(registry).NewCounter(prometheus.CounterOpts{
			Name: "ledger_mortgage_repaid_pounds_total",
			Help: "Total amount repaid into mortgages, in pounds",
		}),
		accounts: promauto.With(registry).NewGaugeVec(prometheus.GaugeOpts{
			Name: "ledger_accounts",
			Help: "Number of live accounts by kind",
		}, []string{"kind"}),
		logger: logger,
	}

	return collector
}

// RecordOperation counts one operation. outcome is "success" or an error code.
func (m *MetricsCollector) RecordOperation(operation, outcome string, duration time.Duration) {
	m.operations.WithLabelValues(operation, outcome).Inc()
	m.operationDuration.WithLabelValues(operation).Observe(duration.Seconds())
}

func (m *MetricsCollector) RecordMortgagePayment(pounds float64) {
	m.mortgagePayments.Inc()
	m.mortgagePaidTotal.Add(pounds)
}

func (m *MetricsCollector) SetAccountCount(kind string, count int) {
	m.accounts.WithLabelValues(kind).Set(float64(count))
}

func (m *MetricsCollector) GetHandler() http.Handler {
	return promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{})
}

func (m *MetricsCollector) NewMetricsServer(addr string) *http.Server {
	mux := http.NewServeMux()
	mux.Handle("/metrics", m.GetHandler())

	return &http.Server{
		Addr:              addr,
		Handler:           mux,
		ReadHeaderTimeout: 10 * time.Second,
	}
}

func (m *MetricsCollector) Shutdown(ctx context.Context) error {
	m.logger.InfoContext(ctx, "Metrics collector shutdown complete")
	return nil
}
