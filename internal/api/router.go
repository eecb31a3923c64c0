package api

import (
	"net/http"

	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

func NewRouter(h *Handler, logger *zap.Logger) *mux.Router {
	r := mux.NewRouter()
	r.Use(requestLogger(logger), instrument)

	r.HandleFunc("/health", h.Health).Methods(http.MethodGet)
	r.Handle("/metrics", promhttp.Handler()).Methods(http.MethodGet)
	r.HandleFunc("/wallet", h.Wallet).Methods(http.MethodGet)

	r.HandleFunc("/qr/encode", h.EncodePayload).Methods(http.MethodPost)
	r.HandleFunc("/qr/decode", h.DecodePayload).Methods(http.MethodPost)
	r.HandleFunc("/qr/image", h.PayloadImage).Methods(http.MethodGet)

	// /events/count идёт раньше /events/{eventId}
	r.HandleFunc("/events", h.CreateEvent).Methods(http.MethodPost)
	r.HandleFunc("/events/count", h.EventCount).Methods(http.MethodGet)
	r.HandleFunc("/events/{eventId}", h.GetEvent).Methods(http.MethodGet)
	r.HandleFunc("/events/{eventId}/tickets", h.MintTicket).Methods(http.MethodPost)
	r.HandleFunc("/events/{eventId}/tickets/{ticketId}/checkins", h.CheckIns).Methods(http.MethodGet)

	r.HandleFunc("/tickets/verify", h.VerifyTicket).Methods(http.MethodPost)
	r.HandleFunc("/tickets/verify/batch", h.VerifyBatch).Methods(http.MethodPost)
	r.HandleFunc("/tickets/scan", h.ScanTicket).Methods(http.MethodPost)
	r.HandleFunc("/tickets/mark-used", h.MarkUsed).Methods(http.MethodPost)
	r.HandleFunc("/tickets/{tokenId}", h.GetTicket).Methods(http.MethodGet)

	r.NotFoundHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusNotFound, codeNotFound, "route not found")
	})
	r.MethodNotAllowedHandler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		writeError(w, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})

	return r
}
