package model

import (
	"math/big"
	"time"
)

// Event is an event record as stored in the ticketing contract.
type Event struct {
	ID             string    `json:"id"`
	Name           string    `json:"name"`
	Description    string    `json:"description"`
	Date           time.Time `json:"date"`
	TicketPrice    string    `json:"ticket_price"`
	TicketPriceWei *big.Int  `json:"-"`
	MaxTickets     uint64    `json:"max_tickets"`
	TicketsSold    uint64    `json:"tickets_sold"`
	Organizer      string    `json:"organizer"`
}

// SoldOut reports whether every ticket of the event has been minted.
func (e *Event) SoldOut() bool {
	return e.MaxTickets > 0 && e.TicketsSold >= e.MaxTickets
}

type CreateEventInput struct {
	Name        string
	Description string
	Date        time.Time
	// TicketPrice is an ether decimal, e.g. "0.001".
	TicketPrice string
	MaxTickets  uint64
}

type EventCreated struct {
	EventID   string `json:"event_id"`
	TxHash    string `json:"tx_hash"`
	QRPayload string `json:"qr_payload,omitempty"`
}
