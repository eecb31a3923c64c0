package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"blocktix_gateway/internal/ledger"
	"blocktix_gateway/internal/messaging"
	"blocktix_gateway/internal/metrics"
	"blocktix_gateway/internal/model"
	"blocktix_gateway/internal/qrpayload"

	"go.uber.org/zap"
)

type TicketingService interface {
	CreateEvent(ctx context.Context, input model.CreateEventInput) (*model.EventCreated, error)
	MintTicket(ctx context.Context, eventID, attendeeName string) (*model.TicketMinted, error)
	GetEvent(ctx context.Context, eventID string) (*model.Event, error)
	GetTicket(ctx context.Context, tokenID string) (*model.Ticket, error)
	EventCount(ctx context.Context) (uint64, error)
}

type ticketingService struct {
	ledger    ledger.Ledger
	publisher messaging.Publisher
	logger    *zap.Logger
}

func NewTicketingService(l ledger.Ledger, publisher messaging.Publisher, logger *zap.Logger) TicketingService {
	return &ticketingService{
		ledger:    l,
		publisher: publisher,
		logger:    logger,
	}
}

func (s *ticketingService) CreateEvent(ctx context.Context, input model.CreateEventInput) (*model.EventCreated, error) {
	name := strings.TrimSpace(input.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: event name cannot be empty", ErrInvalidInput)
	}
	if input.MaxTickets == 0 {
		return nil, fmt.Errorf("%w: max tickets must be positive", ErrInvalidInput)
	}
	if input.Date.IsZero() {
		return nil, fmt.Errorf("%w: event date is required", ErrInvalidInput)
	}

	priceWei, err := ledger.ParseEther(strings.TrimSpace(input.TicketPrice))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	start := time.Now()
	created, err := s.ledger.WriteCreateEvent(ctx, ledger.NewEvent{
		Name:           name,
		Description:    input.Description,
		Date:           input.Date,
		TicketPriceWei: priceWei,
		MaxTickets:     input.MaxTickets,
	})
	metrics.ObserveLedger("create_event", time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Error("failed to create event", zap.Error(err), zap.String("name", name))
		return nil, fmt.Errorf("failed to create event: %w", err)
	}

	created.QRPayload = qrpayload.EncodeEvent(qrpayload.EventRef{EventID: created.EventID})
	s.logger.Info("event created",
		zap.String("event_id", created.EventID),
		zap.String("tx_hash", created.TxHash),
		zap.String("price_wei", priceWei.String()))

	if s.publisher != nil {
		if err := s.publisher.PublishEventCreated(context.WithoutCancel(ctx), created, name); err != nil {
			s.logger.Warn("failed to publish event created", zap.Error(err))
		}
	}

	return &created, nil
}

// MintTicket buys one ticket for attendeeName, paying the current event price.
func (s *ticketingService) MintTicket(ctx context.Context, eventID, attendeeName string) (*model.TicketMinted, error) {
	attendeeName = strings.TrimSpace(attendeeName)
	if attendeeName == "" {
		return nil, fmt.Errorf("%w: attendee name cannot be empty", ErrInvalidInput)
	}

	event, err := s.GetEvent(ctx, eventID)
	if err != nil {
		return nil, err
	}
	if event.SoldOut() {
		// решает контракт, локальный счётчик может отставать
		s.logger.Warn("event looks sold out, submitting mint anyway",
			zap.String("event_id", eventID),
			zap.Uint64("tickets_sold", event.TicketsSold),
			zap.Uint64("max_tickets", event.MaxTickets))
	}

	start := time.Now()
	minted, err := s.ledger.WriteMintTicket(ctx, eventID, attendeeName, event.TicketPriceWei)
	metrics.ObserveLedger("mint_ticket", time.Since(start).Seconds(), err)
	if err != nil {
		s.logger.Error("failed to mint ticket", zap.Error(err), zap.String("event_id", eventID))
		return nil, fmt.Errorf("failed to mint ticket: %w", err)
	}

	minted.QRPayload = qrpayload.EncodeTicket(qrpayload.TicketRef{
		EventID:       minted.EventID,
		TicketID:      minted.TicketID,
		WalletAddress: minted.Owner,
	})
	s.logger.Info("ticket minted",
		zap.String("event_id", minted.EventID),
		zap.String("ticket_id", minted.TicketID),
		zap.String("owner", minted.Owner),
		zap.String("tx_hash", minted.TxHash))

	if s.publisher != nil {
		if err := s.publisher.PublishTicketMinted(context.WithoutCancel(ctx), minted); err != nil {
			s.logger.Warn("failed to publish ticket minted", zap.Error(err))
		}
	}

	return &minted, nil
}

func (s *ticketingService) GetEvent(ctx context.Context, eventID string) (*model.Event, error) {
	start := time.Now()
	event, err := s.ledger.ReadEvent(ctx, eventID)
	metrics.ObserveLedger("read_event", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("failed to get event: %w", err)
	}
	return event, nil
}

func (s *ticketingService) GetTicket(ctx context.Context, tokenID string) (*model.Ticket, error) {
	start := time.Now()
	ticket, err := s.ledger.ReadTicketByToken(ctx, tokenID)
	metrics.ObserveLedger("read_ticket_by_token", time.Since(start).Seconds(), err)
	if err != nil {
		return nil, fmt.Errorf("failed to get ticket: %w", err)
	}
	return ticket, nil
}

func (s *ticketingService) EventCount(ctx context.Context) (uint64, error) {
	start := time.Now()
	count, err := s.ledger.EventCount(ctx)
	metrics.ObserveLedger("event_count", time.Since(start).Seconds(), err)
	if err != nil {
		return 0, fmt.Errorf("failed to get event count: %w", err)
	}
	return count, nil
}
