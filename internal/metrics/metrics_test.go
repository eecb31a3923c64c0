package metrics

import (
	"errors"
	"fmt"
	"testing"

	"blocktix_gateway/internal/ledger"
	"blocktix_gateway/internal/qrpayload"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
)

func TestErrorKind(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected string
	}{
		{name: "nil", err: nil, expected: "none"},
		{name: "not_found", err: fmt.Errorf("failed to get event: %w", ledger.ErrNotFound), expected: "not_found"},
		{name: "rejected", err: fmt.Errorf("%w: execution reverted", ledger.ErrLedgerRejected), expected: "rejected"},
		{name: "unavailable", err: fmt.Errorf("%w: EOF", ledger.ErrLedgerUnavailable), expected: "unavailable"},
		{name: "not_configured", err: ledger.ErrContractNotConfigured, expected: "not_configured"},
		{name: "malformed", err: qrpayload.ErrMalformedPayload, expected: "malformed_payload"},
		{name: "other", err: errors.New("boom"), expected: "other"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, ErrorKind(tt.err))
		})
	}
}

func TestObserveLedger(t *testing.T) {
	before := testutil.ToFloat64(LedgerErrorsTotal.WithLabelValues("test_read", "rejected"))

	ObserveLedger("test_read", 0.01, nil)
	ObserveLedger("test_read", 0.02, fmt.Errorf("%w: reverted", ledger.ErrLedgerRejected))

	after := testutil.ToFloat64(LedgerErrorsTotal.WithLabelValues("test_read", "rejected"))
	assert.Equal(t, before+1, after)
}

func TestRegister(t *testing.T) {
	reg := prometheus.NewRegistry()
	assert.NotPanics(t, func() {
		reg.MustRegister(TicketVerificationsTotal, TicketsMarkedUsedTotal, LedgerErrorsTotal,
			LedgerOperationDuration, QRPayloadsTotal, HTTPRequestsTotal, HTTPRequestDuration)
	})
}
