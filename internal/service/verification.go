package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"blocktix_gateway/internal/ledger"
	"blocktix_gateway/internal/messaging"
	"blocktix_gateway/internal/metrics"
	"blocktix_gateway/internal/model"
	"blocktix_gateway/internal/qrpayload"
	"blocktix_gateway/internal/repository"
	"blocktix_gateway/types"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	MaxBatchSize      = 100
	batchConcurrency  = 8
	sideEffectTimeout = 5 * time.Second
)

// ErrInvalidInput is returned for requests rejected before reaching the ledger.
var ErrInvalidInput = errors.New("invalid input")

type VerificationService interface {
	VerifyTicket(ctx context.Context, eventID, ticketID string) (model.VerificationOutcome, error)
	VerifyTickets(ctx context.Context, keys []model.TicketKey) ([]BatchResult, error)
	VerifyPayload(ctx context.Context, text string, strict bool) (*ScanResult, error)
	MarkTicketUsed(ctx context.Context, eventID, ticketID string) (model.TicketUsed, error)
	CheckIns(ctx context.Context, eventID, ticketID string, limit int) ([]*types.CheckIn, error)
}

// BatchResult carries either the outcome or the failure of one pair.
type BatchResult struct {
	EventID  string                     `json:"event_id"`
	TicketID string                     `json:"ticket_id"`
	Outcome  *model.VerificationOutcome `json:"outcome,omitempty"`
	Err      error                      `json:"-"`
}

// ScanResult is the verification of a scanned ticket QR text.
type ScanResult struct {
	Payload qrpayload.Payload         `json:"payload"`
	Outcome model.VerificationOutcome `json:"outcome"`
	// WalletMatches is nil when the payload carried no wallet or the ticket is invalid.
	WalletMatches *bool `json:"wallet_matches,omitempty"`
}

type verificationService struct {
	ledger    ledger.Ledger
	journal   repository.CheckInRepository
	publisher messaging.Publisher
	logger    *zap.Logger
	now       func() time.Time
}

func NewVerificationService(l ledger.Ledger, journal repository.CheckInRepository, publisher messaging.Publisher, logger *zap.Logger) VerificationService {
	return &verificationService{
		ledger:    l,
		journal:   journal,
		publisher: publisher,
		logger:    logger,
		now:       time.Now,
	}
}

// VerifyTicket reads the ticket state from the ledger. Empty ids are passed
// through; the ledger decides that they name no ticket.
func (s *verificationService) VerifyTicket(ctx context.Context, eventID, ticketID string) (model.VerificationOutcome, error) {
	start := time.Now()
	state, err := s.ledger.ReadTicket(ctx, eventID, ticketID)
	metrics.ObserveLedger("read_ticket", time.Since(start).Seconds(), err)

	checkedAt := s.now().UTC()

	var outcome model.VerificationOutcome
	switch {
	case err != nil && ledger.IsNotFound(err):
		s.logger.Debug("ticket has no ledger record", zap.String("event_id", eventID), zap.String("ticket_id", ticketID), zap.Error(err))
		outcome = model.InvalidOutcome(eventID, ticketID, checkedAt)
	case err != nil:
		s.logger.Error("failed to verify ticket", zap.Error(err), zap.String("event_id", eventID), zap.String("ticket_id", ticketID))
		return model.VerificationOutcome{}, fmt.Errorf("failed to verify ticket: %w", err)
	case !state.Valid:
		outcome = model.InvalidOutcome(eventID, ticketID, checkedAt)
	default:
		outcome = model.ValidOutcome(eventID, ticketID, state.Owner, state.AttendeeName, state.IsUsed, checkedAt)
	}

	metrics.TicketVerificationsTotal.WithLabelValues(string(outcome.Status())).Inc()
	s.logger.Info("ticket verified",
		zap.String("event_id", eventID),
		zap.String("ticket_id", ticketID),
		zap.String("status", string(outcome.Status())))

	s.afterVerify(ctx, outcome)
	return outcome, nil
}

// afterVerify journals and announces an outcome. Failures are logged only.
func (s *verificationService) afterVerify(ctx context.Context, outcome model.VerificationOutcome) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if s.journal != nil {
		err := s.journal.Record(ctx, &types.CheckIn{
			EventID:      outcome.EventID,
			TicketID:     outcome.TicketID,
			Action:       types.ActionVerified,
			Outcome:      string(outcome.Status()),
			Owner:        outcome.Owner,
			AttendeeName: outcome.AttendeeName,
		})
		if err != nil {
			s.logger.Warn("failed to journal verification", zap.Error(err))
		}
	}

	if s.publisher != nil {
		if err := s.publisher.PublishTicketVerified(ctx, outcome); err != nil {
			s.logger.Warn("failed to publish verification", zap.Error(err))
		}
	}
}

func (s *verificationService) VerifyTickets(ctx context.Context, keys []model.TicketKey) ([]BatchResult, error) {
	if len(keys) > MaxBatchSize {
		return nil, fmt.Errorf("%w: batch size %d exceeds limit %d", ErrInvalidInput, len(keys), MaxBatchSize)
	}

	results := make([]BatchResult, len(keys))

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(batchConcurrency)

	for i, key := range keys {
		g.Go(func() error {
			results[i] = BatchResult{EventID: key.EventID, TicketID: key.TicketID}

			outcome, err := s.VerifyTicket(gctx, key.EventID, key.TicketID)
			if err != nil {
				results[i].Err = err
				return nil
			}
			results[i].Outcome = &outcome
			return nil
		})
	}

	// Горутины не возвращают ошибок, каждая пишет свой результат
	_ = g.Wait()

	s.logger.Info("batch verified", zap.Int("size", len(keys)))
	return results, nil
}

func (s *verificationService) VerifyPayload(ctx context.Context, text string, strict bool) (*ScanResult, error) {
	decode := qrpayload.Decode
	if strict {
		decode = qrpayload.DecodeStrict
	}

	payload, err := decode(text, qrpayload.VariantTicket)
	if err != nil {
		metrics.QRPayloadsTotal.WithLabelValues("scan", "malformed").Inc()
		s.logger.Warn("failed to decode scanned payload", zap.Error(err), zap.Bool("strict", strict))
		return nil, err
	}
	metrics.QRPayloadsTotal.WithLabelValues("scan", "decoded").Inc()

	outcome, err := s.VerifyTicket(ctx, payload.EventID, payload.TicketID)
	if err != nil {
		return nil, err
	}

	result := &ScanResult{
		Payload: payload,
		Outcome: outcome,
	}
	if payload.WalletAddress != "" && outcome.Valid {
		matches := strings.EqualFold(payload.WalletAddress, outcome.Owner)
		result.WalletMatches = &matches
		if !matches {
			s.logger.Warn("scanned wallet does not match ticket owner",
				zap.String("event_id", payload.EventID),
				zap.String("ticket_id", payload.TicketID),
				zap.String("wallet", payload.WalletAddress),
				zap.String("owner", outcome.Owner))
		}
	}

	return result, nil
}

// MarkTicketUsed submits one ledger write. Whether the ticket may be used is
// decided by the ledger alone.
func (s *verificationService) MarkTicketUsed(ctx context.Context, eventID, ticketID string) (model.TicketUsed, error) {
	start := time.Now()
	used, err := s.ledger.WriteMarkUsed(ctx, eventID, ticketID)
	metrics.ObserveLedger("mark_used", time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Error("failed to mark ticket as used", zap.Error(err), zap.String("event_id", eventID), zap.String("ticket_id", ticketID))
		return model.TicketUsed{}, fmt.Errorf("failed to mark ticket as used: %w", err)
	}

	metrics.TicketsMarkedUsedTotal.Inc()
	s.logger.Info("ticket marked as used",
		zap.String("event_id", eventID),
		zap.String("ticket_id", ticketID),
		zap.String("tx_hash", used.TxHash))

	sctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), sideEffectTimeout)
	defer cancel()

	if s.journal != nil {
		err := s.journal.Record(sctx, &types.CheckIn{
			EventID:  eventID,
			TicketID: ticketID,
			Action:   types.ActionMarkedUsed,
			Outcome:  string(model.OutcomeValidUsed),
			TxHash:   used.TxHash,
		})
		if err != nil {
			s.logger.Warn("failed to journal check-in", zap.Error(err))
		}
	}
	if s.publisher != nil {
		if err := s.publisher.PublishTicketUsed(sctx, used); err != nil {
			s.logger.Warn("failed to publish ticket used", zap.Error(err))
		}
	}

	return used, nil
}

func (s *verificationService) CheckIns(ctx context.Context, eventID, ticketID string, limit int) ([]*types.CheckIn, error) {
	if eventID == "" || ticketID == "" {
		return nil, fmt.Errorf("%w: event id and ticket id are required", ErrInvalidInput)
	}
	if limit < 0 {
		return nil, fmt.Errorf("%w: limit must be non-negative, got %d", ErrInvalidInput, limit)
	}
	if s.journal == nil {
		return []*types.CheckIn{}, nil
	}

	checkIns, err := s.journal.ListByTicket(ctx, eventID, ticketID, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to get check-ins: %w", err)
	}
	return checkIns, nil
}
