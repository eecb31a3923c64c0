package api

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"blocktix_gateway/internal/model"
	"blocktix_gateway/internal/qrpayload"
	"blocktix_gateway/internal/service"
	"blocktix_gateway/internal/session"
	"blocktix_gateway/types"

	"github.com/gorilla/mux"
	"go.uber.org/zap"
)

const maxBodyBytes = 1 << 20

// WalletInfo exposes the active connection context.
type WalletInfo interface {
	Info(ctx context.Context) (session.Info, error)
}

type Handler struct {
	verification service.VerificationService
	ticketing    service.TicketingService
	wallet       WalletInfo
	logger       *zap.Logger
}

func NewHandler(verification service.VerificationService, ticketing service.TicketingService, wallet WalletInfo, logger *zap.Logger) *Handler {
	return &Handler{
		verification: verification,
		ticketing:    ticketing,
		wallet:       wallet,
		logger:       logger,
	}
}

// decodeBody reads a JSON body, rejecting unknown fields.
func decodeBody(w http.ResponseWriter, r *http.Request, dst any) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes))
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidRequestBody, fmt.Sprintf("invalid request body: %v", err))
		return false
	}
	return true
}

type outcomeResponse struct {
	model.VerificationOutcome
	Status      model.OutcomeStatus `json:"status"`
	NextAction  model.NextAction    `json:"next_action"`
	CanMarkUsed bool                `json:"can_mark_used"`
}

func newOutcomeResponse(o model.VerificationOutcome) outcomeResponse {
	return outcomeResponse{
		VerificationOutcome: o,
		Status:              o.Status(),
		NextAction:          o.NextAction(),
		CanMarkUsed:         o.CanMarkUsed(),
	}
}

func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handler) Wallet(w http.ResponseWriter, r *http.Request) {
	info, err := h.wallet.Info(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, info)
}

type encodeRequest struct {
	Variant       string `json:"variant"`
	EventID       string `json:"event_id"`
	TicketID      string `json:"ticket_id"`
	WalletAddress string `json:"wallet_address"`
}

type payloadResponse struct {
	Payload string `json:"payload"`
}

func (h *Handler) EncodePayload(w http.ResponseWriter, r *http.Request) {
	var req encodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	variant, err := qrpayload.ParseVariant(req.Variant)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error())
		return
	}

	var text string
	switch variant {
	case qrpayload.VariantEvent:
		text = qrpayload.EncodeEvent(qrpayload.EventRef{EventID: req.EventID})
	case qrpayload.VariantTicket:
		text = qrpayload.EncodeTicket(qrpayload.TicketRef{
			EventID:       req.EventID,
			TicketID:      req.TicketID,
			WalletAddress: req.WalletAddress,
		})
	}
	writeJSON(w, http.StatusOK, payloadResponse{Payload: text})
}

type decodeRequest struct {
	Payload string `json:"payload"`
	Variant string `json:"variant"`
	Strict  bool   `json:"strict"`
}

type decodeResponse struct {
	Variant string `json:"variant"`
	qrpayload.Payload
}

func (h *Handler) DecodePayload(w http.ResponseWriter, r *http.Request) {
	var req decodeRequest
	if !decodeBody(w, r, &req) {
		return
	}

	variant, err := qrpayload.ParseVariant(req.Variant)
	if err != nil {
		writeError(w, http.StatusBadRequest, codeInvalidInput, err.Error())
		return
	}

	decode := qrpayload.Decode
	if req.Strict {
		decode = qrpayload.DecodeStrict
	}
	payload, err := decode(req.Payload, variant)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, decodeResponse{Variant: payload.Variant.String(), Payload: payload})
}

func (h *Handler) PayloadImage(w http.ResponseWriter, r *http.Request) {
	data := r.URL.Query().Get("data")
	if data == "" {
		writeError(w, http.StatusBadRequest, codeInvalidInput, "data query parameter is required")
		return
	}

	size := 0
	if raw := r.URL.Query().Get("size"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < qrpayload.MinImageSize || n > qrpayload.MaxImageSize {
			writeError(w, http.StatusBadRequest, codeInvalidInput,
				fmt.Sprintf("size must be between %d and %d, got %q", qrpayload.MinImageSize, qrpayload.MaxImageSize, raw))
			return
		}
		size = n
	}

	png, err := qrpayload.RenderPNG(data, size)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	w.Header().Set("Content-Type", "image/png")
	w.Header().Set("Cache-Control", "no-store")
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(png)
}

// createEventRequest.Date is RFC 3339 or a plain YYYY-MM-DD day.
type createEventRequest struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Date        string `json:"date"`
	TicketPrice string `json:"ticket_price"`
	MaxTickets  uint64 `json:"max_tickets"`
}

func parseEventDate(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t, nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("%w: invalid date %q", service.ErrInvalidInput, s)
	}
	return t, nil
}

func (h *Handler) CreateEvent(w http.ResponseWriter, r *http.Request) {
	var req createEventRequest
	if !decodeBody(w, r, &req) {
		return
	}

	date, err := parseEventDate(req.Date)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	created, err := h.ticketing.CreateEvent(r.Context(), model.CreateEventInput{
		Name:        req.Name,
		Description: req.Description,
		Date:        date,
		TicketPrice: req.TicketPrice,
		MaxTickets:  req.MaxTickets,
	})
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, created)
}

type countResponse struct {
	Count uint64 `json:"count"`
}

func (h *Handler) EventCount(w http.ResponseWriter, r *http.Request) {
	count, err := h.ticketing.EventCount(r.Context())
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, countResponse{Count: count})
}

func (h *Handler) GetEvent(w http.ResponseWriter, r *http.Request) {
	event, err := h.ticketing.GetEvent(r.Context(), mux.Vars(r)["eventId"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, event)
}

type mintTicketRequest struct {
	AttendeeName string `json:"attendee_name"`
}

func (h *Handler) MintTicket(w http.ResponseWriter, r *http.Request) {
	var req mintTicketRequest
	if !decodeBody(w, r, &req) {
		return
	}

	minted, err := h.ticketing.MintTicket(r.Context(), mux.Vars(r)["eventId"], req.AttendeeName)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusCreated, minted)
}

func (h *Handler) GetTicket(w http.ResponseWriter, r *http.Request) {
	ticket, err := h.ticketing.GetTicket(r.Context(), mux.Vars(r)["tokenId"])
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, ticket)
}

type ticketRequest struct {
	EventID  string `json:"event_id"`
	TicketID string `json:"ticket_id"`
}

func (h *Handler) VerifyTicket(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if !decodeBody(w, r, &req) {
		return
	}

	outcome, err := h.verification.VerifyTicket(r.Context(), req.EventID, req.TicketID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, newOutcomeResponse(outcome))
}

type batchRequest struct {
	Tickets []ticketRequest `json:"tickets"`
}

type batchItem struct {
	EventID  string           `json:"event_id"`
	TicketID string           `json:"ticket_id"`
	Outcome  *outcomeResponse `json:"outcome,omitempty"`
	Error    *errorResponse   `json:"error,omitempty"`
}

type batchResponse struct {
	Results []batchItem `json:"results"`
}

func (h *Handler) VerifyBatch(w http.ResponseWriter, r *http.Request) {
	var req batchRequest
	if !decodeBody(w, r, &req) {
		return
	}

	keys := make([]model.TicketKey, len(req.Tickets))
	for i, t := range req.Tickets {
		keys[i] = model.TicketKey{EventID: t.EventID, TicketID: t.TicketID}
	}

	results, err := h.verification.VerifyTickets(r.Context(), keys)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}

	resp := batchResponse{Results: make([]batchItem, len(results))}
	for i, res := range results {
		item := batchItem{EventID: res.EventID, TicketID: res.TicketID}
		if res.Err != nil {
			_, code := errorStatus(res.Err)
			item.Error = &errorResponse{Error: res.Err.Error(), Code: code}
		} else if res.Outcome != nil {
			o := newOutcomeResponse(*res.Outcome)
			item.Outcome = &o
		}
		resp.Results[i] = item
	}
	writeJSON(w, http.StatusOK, resp)
}

type scanRequest struct {
	Payload string `json:"payload"`
	Strict  bool   `json:"strict"`
}

type scanResponse struct {
	Payload       qrpayload.Payload `json:"payload"`
	Outcome       outcomeResponse   `json:"outcome"`
	WalletMatches *bool             `json:"wallet_matches,omitempty"`
}

func (h *Handler) ScanTicket(w http.ResponseWriter, r *http.Request) {
	var req scanRequest
	if !decodeBody(w, r, &req) {
		return
	}

	result, err := h.verification.VerifyPayload(r.Context(), req.Payload, req.Strict)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, scanResponse{
		Payload:       result.Payload,
		Outcome:       newOutcomeResponse(result.Outcome),
		WalletMatches: result.WalletMatches,
	})
}

func (h *Handler) MarkUsed(w http.ResponseWriter, r *http.Request) {
	var req ticketRequest
	if !decodeBody(w, r, &req) {
		return
	}

	used, err := h.verification.MarkTicketUsed(r.Context(), req.EventID, req.TicketID)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, used)
}

type checkInsResponse struct {
	CheckIns []*types.CheckIn `json:"checkins"`
}

func (h *Handler) CheckIns(w http.ResponseWriter, r *http.Request) {
	vars := mux.Vars(r)

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil {
			writeError(w, http.StatusBadRequest, codeInvalidInput, fmt.Sprintf("invalid limit %q", raw))
			return
		}
		limit = n
	}

	checkIns, err := h.verification.CheckIns(r.Context(), vars["eventId"], vars["ticketId"], limit)
	if err != nil {
		writeServiceError(w, h.logger, err)
		return
	}
	writeJSON(w, http.StatusOK, checkInsResponse{CheckIns: checkIns})
}
