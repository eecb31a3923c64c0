package repository

import (
	"context"
	"fmt"

	"blocktix_gateway/types"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"go.uber.org/zap"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

// DB is the subset of *pgxpool.Pool used by the repositories.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// CheckInRepository is the local audit journal of verifications and check-ins.
// The ledger stays the only source of truth for ticket state.
type CheckInRepository interface {
	Record(ctx context.Context, checkIn *types.CheckIn) error
	ListByTicket(ctx context.Context, eventID, ticketID string, limit int) ([]*types.CheckIn, error)
}

type checkInRepository struct {
	db     DB
	logger *zap.Logger
}

func NewCheckInRepository(db DB, logger *zap.Logger) CheckInRepository {
	return &checkInRepository{
		db:     db,
		logger: logger,
	}
}

func (r *checkInRepository) Record(ctx context.Context, checkIn *types.CheckIn) error {
	if checkIn.ID == uuid.Nil {
		checkIn.ID = uuid.New()
	}

	query := `
		INSERT INTO ticket_checkins (id, event_id, ticket_id, action, outcome, owner, attendee_name, tx_hash)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)
		RETURNING created_at
	`

	err := r.db.QueryRow(ctx, query,
		checkIn.ID, checkIn.EventID, checkIn.TicketID, string(checkIn.Action),
		checkIn.Outcome, checkIn.Owner, checkIn.AttendeeName, checkIn.TxHash,
	).Scan(&checkIn.CreatedAt)
	if err != nil {
		r.logger.Error("failed to record check-in", zap.Error(err),
			zap.String("event_id", checkIn.EventID),
			zap.String("ticket_id", checkIn.TicketID),
			zap.String("action", string(checkIn.Action)))
		return fmt.Errorf("failed to record check-in: %w", err)
	}

	r.logger.Debug("check-in recorded",
		zap.String("id", checkIn.ID.String()),
		zap.String("action", string(checkIn.Action)))
	return nil
}

func (r *checkInRepository) ListByTicket(ctx context.Context, eventID, ticketID string, limit int) ([]*types.CheckIn, error) {
	if limit <= 0 {
		limit = DefaultListLimit
	}
	if limit > MaxListLimit {
		limit = MaxListLimit
	}

	query := `
		SELECT id, event_id, ticket_id, action, outcome, owner, attendee_name, tx_hash, created_at
		FROM ticket_checkins
		WHERE event_id = $1 AND ticket_id = $2
		ORDER BY created_at DESC
		LIMIT $3
	`

	rows, err := r.db.Query(ctx, query, eventID, ticketID, limit)
	if err != nil {
		r.logger.Error("failed to list check-ins", zap.Error(err),
			zap.String("event_id", eventID), zap.String("ticket_id", ticketID))
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}
	defer rows.Close()

	checkIns := make([]*types.CheckIn, 0)
	for rows.Next() {
		var c types.CheckIn
		var action string
		err := rows.Scan(&c.ID, &c.EventID, &c.TicketID, &action, &c.Outcome, &c.Owner, &c.AttendeeName, &c.TxHash, &c.CreatedAt)
		if err != nil {
			r.logger.Error("failed to scan check-in", zap.Error(err))
			return nil, fmt.Errorf("failed to scan check-in: %w", err)
		}
		c.Action = types.CheckInAction(action)
		checkIns = append(checkIns, &c)
	}
	if err := rows.Err(); err != nil {
		r.logger.Error("failed to iterate check-ins", zap.Error(err))
		return nil, fmt.Errorf("failed to list check-ins: %w", err)
	}

	return checkIns, nil
}

// Ping checks that the journal database is reachable.
func Ping(ctx context.Context, db DB) error {
	if _, err := db.Exec(ctx, "SELECT 1"); err != nil {
		return fmt.Errorf("failed to ping database: %w", err)
	}
	return nil
}
