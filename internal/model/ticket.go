package model

// Ticket is a minted ticket NFT looked up by token id.
type Ticket struct {
	TokenID      string `json:"token_id"`
	EventID      string `json:"event_id"`
	Owner        string `json:"owner"`
	AttendeeName string `json:"attendee_name"`
	IsUsed       bool   `json:"is_used"`
}

// TicketState is the raw readTicket answer of the ledger for an (event, ticket) pair.
type TicketState struct {
	Valid        bool
	Owner        string
	AttendeeName string
	IsUsed       bool
}

type TicketMinted struct {
	TicketID  string `json:"ticket_id"`
	EventID   string `json:"event_id"`
	Owner     string `json:"owner"`
	TxHash    string `json:"tx_hash"`
	QRPayload string `json:"qr_payload,omitempty"`
}

type TicketUsed struct {
	EventID  string `json:"event_id"`
	TicketID string `json:"ticket_id"`
	TxHash   string `json:"tx_hash"`
}

// TicketKey identifies a ticket within an event.
type TicketKey struct {
	EventID  string `json:"event_id"`
	TicketID string `json:"ticket_id"`
}
