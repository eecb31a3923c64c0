package model

import "time"

type OutcomeStatus string

const (
	OutcomeValidUnused OutcomeStatus = "VALID_UNUSED"
	OutcomeValidUsed   OutcomeStatus = "VALID_USED"
	OutcomeInvalid     OutcomeStatus = "INVALID"
)

type NextAction string

const (
	ActionAllowEntry NextAction = "ALLOW_ENTRY"
	ActionFlagReuse  NextAction = "FLAG_REUSE"
	ActionReject     NextAction = "REJECT"
)

// VerificationOutcome is built fresh from one ledger read and never mutated afterwards.
// Owner, AttendeeName and Used are only populated when Valid is true.
type VerificationOutcome struct {
	EventID      string    `json:"event_id"`
	TicketID     string    `json:"ticket_id"`
	Valid        bool      `json:"valid"`
	Owner        string    `json:"owner,omitempty"`
	AttendeeName string    `json:"attendee_name,omitempty"`
	Used         bool      `json:"used"`
	CheckedAt    time.Time `json:"checked_at"`
}

func InvalidOutcome(eventID, ticketID string, at time.Time) VerificationOutcome {
	return VerificationOutcome{
		EventID:   eventID,
		TicketID:  ticketID,
		CheckedAt: at,
	}
}

func ValidOutcome(eventID, ticketID, owner, attendeeName string, used bool, at time.Time) VerificationOutcome {
	return VerificationOutcome{
		EventID:      eventID,
		TicketID:     ticketID,
		Valid:        true,
		Owner:        owner,
		AttendeeName: attendeeName,
		Used:         used,
		CheckedAt:    at,
	}
}

func (o VerificationOutcome) Status() OutcomeStatus {
	switch {
	case !o.Valid:
		return OutcomeInvalid
	case o.Used:
		return OutcomeValidUsed
	default:
		return OutcomeValidUnused
	}
}

func (o VerificationOutcome) NextAction() NextAction {
	switch o.Status() {
	case OutcomeValidUnused:
		return ActionAllowEntry
	case OutcomeValidUsed:
		return ActionFlagReuse
	default:
		return ActionReject
	}
}

// CanMarkUsed is an advisory hint for clients deciding whether to offer the mark-used action.
// The ledger remains the only authority on double use.
func (o VerificationOutcome) CanMarkUsed() bool {
	return o.Status() == OutcomeValidUnused
}
