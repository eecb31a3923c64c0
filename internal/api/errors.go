package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"blocktix_gateway/internal/ledger"
	"blocktix_gateway/internal/qrpayload"
	"blocktix_gateway/internal/service"

	"go.uber.org/zap"
)

const (
	codeInvalidRequestBody    = "invalid_request_body"
	codeInvalidInput          = "invalid_input"
	codeMalformedPayload      = "malformed_payload"
	codeNotFound              = "not_found"
	codeLedgerRejected        = "ledger_rejected"
	codeLedgerUnavailable     = "ledger_unavailable"
	codeContractNotConfigured = "contract_not_configured"
	codeInternalError         = "internal_error"
)

type errorResponse struct {
	Error string `json:"error"`
	Code  string `json:"code"`
}

func writeError(w http.ResponseWriter, status int, code, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	payload, err := json.Marshal(errorResponse{
		Error: msg,
		Code:  code,
	})
	if err != nil {
		_, _ = w.Write([]byte(`{"error":"internal error","code":"internal_error"}`))
		return
	}
	_, _ = w.Write(payload)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// errorStatus maps a service error to its HTTP status and error code.
func errorStatus(err error) (int, string) {
	switch {
	case errors.Is(err, qrpayload.ErrMalformedPayload):
		return http.StatusBadRequest, codeMalformedPayload
	case errors.Is(err, service.ErrInvalidInput), errors.Is(err, qrpayload.ErrInvalidImage):
		return http.StatusBadRequest, codeInvalidInput
	case errors.Is(err, ledger.ErrNotFound):
		return http.StatusNotFound, codeNotFound
	case errors.Is(err, ledger.ErrLedgerRejected):
		return http.StatusConflict, codeLedgerRejected
	case errors.Is(err, ledger.ErrLedgerUnavailable):
		return http.StatusServiceUnavailable, codeLedgerUnavailable
	case errors.Is(err, ledger.ErrContractNotConfigured):
		return http.StatusServiceUnavailable, codeContractNotConfigured
	default:
		return http.StatusInternalServerError, codeInternalError
	}
}

// writeServiceError reports err with the ledger reason kept in the message.
// Unknown errors are logged and hidden behind a generic message.
func writeServiceError(w http.ResponseWriter, logger *zap.Logger, err error) {
	status, code := errorStatus(err)
	if status == http.StatusInternalServerError {
		logger.Error("request failed", zap.Error(err))
		writeError(w, status, code, "internal error")
		return
	}
	writeError(w, status, code, err.Error())
}
