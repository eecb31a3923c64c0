package metrics

import (
	"errors"

	"blocktix_gateway/internal/ledger"
	"blocktix_gateway/internal/qrpayload"

	"github.com/prometheus/client_golang/prometheus"
)

// Prometheus metrics for ticket verification and ledger access
var (
	TicketVerificationsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ticket_verifications_total",
			Help: "Total number of ticket verifications by outcome status",
		},
		[]string{"status"},
	)

	TicketsMarkedUsedTotal = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "tickets_marked_used_total",
			Help: "Total number of tickets marked as used on the ledger",
		},
	)

	LedgerErrorsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_errors_total",
			Help: "Total number of failed ledger operations by kind",
		},
		[]string{"operation", "kind"},
	)

	LedgerOperationDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "ledger_operation_duration_seconds",
			Help:    "Duration of ledger reads and writes",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)

	QRPayloadsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qr_payloads_total",
			Help: "Total number of QR payloads processed by result",
		},
		[]string{"operation", "result"},
	)

	HTTPRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"route", "method", "code"},
	)

	HTTPRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"route", "method"},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(TicketVerificationsTotal)
	prometheus.MustRegister(TicketsMarkedUsedTotal)
	prometheus.MustRegister(LedgerErrorsTotal)
	prometheus.MustRegister(LedgerOperationDuration)
	prometheus.MustRegister(QRPayloadsTotal)
	prometheus.MustRegister(HTTPRequestsTotal)
	prometheus.MustRegister(HTTPRequestDuration)
}

// ErrorKind maps an error onto a low-cardinality label value.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return "none"
	case errors.Is(err, ledger.ErrNotFound):
		return "not_found"
	case errors.Is(err, ledger.ErrLedgerRejected):
		return "rejected"
	case errors.Is(err, ledger.ErrLedgerUnavailable):
		return "unavailable"
	case errors.Is(err, ledger.ErrContractNotConfigured):
		return "not_configured"
	case errors.Is(err, qrpayload.ErrMalformedPayload):
		return "malformed_payload"
	default:
		return "other"
	}
}

// ObserveLedger records the duration and, on failure, the error kind of one ledger operation.
func ObserveLedger(operation string, seconds float64, err error) {
	LedgerOperationDuration.WithLabelValues(operation).Observe(seconds)
	if err != nil {
		LedgerErrorsTotal.WithLabelValues(operation, ErrorKind(err)).Inc()
	}
}
