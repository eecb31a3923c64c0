package types

import (
	"time"

	"github.com/google/uuid"
)

type CheckInAction string

const (
	ActionVerified   CheckInAction = "verified"
	ActionMarkedUsed CheckInAction = "marked_used"
)

// CheckIn представляет запись в таблице ticket_checkins
type CheckIn struct {
	ID           uuid.UUID     `json:"id" db:"id"`
	EventID      string        `json:"event_id" db:"event_id"`
	TicketID     string        `json:"ticket_id" db:"ticket_id"`
	Action       CheckInAction `json:"action" db:"action"`
	Outcome      string        `json:"outcome,omitempty" db:"outcome"`
	Owner        string        `json:"owner,omitempty" db:"owner"`
	AttendeeName string        `json:"attendee_name,omitempty" db:"attendee_name"`
	TxHash       string        `json:"tx_hash,omitempty" db:"tx_hash"`
	CreatedAt    time.Time     `json:"created_at" db:"created_at"`
}
