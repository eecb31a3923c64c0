// Package qrpayload encodes event and ticket identity into the colon-delimited
// text carried by QR codes, and decodes scanned text back into identity fields.
//
// Wire format:
//
//	event:<eventId>
//	event:<eventId>:ticket:<ticketId>:wallet:<walletAddress>
//
// Values are not escaped, so a value containing ':' corrupts the payload.
package qrpayload

import (
	"errors"
	"fmt"
	"strings"

	"github.com/ethereum/go-ethereum/common"
)

var ErrMalformedPayload = errors.New("malformed QR payload")

const (
	eventToken  = "event"
	ticketToken = "ticket"
	walletToken = "wallet"
	separator   = ":"
	prefix      = eventToken + separator
)

type Variant int

const (
	VariantEvent Variant = iota
	VariantTicket
)

func (v Variant) String() string {
	switch v {
	case VariantEvent:
		return "event"
	case VariantTicket:
		return "ticket"
	default:
		return fmt.Sprintf("variant(%d)", int(v))
	}
}

func ParseVariant(s string) (Variant, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "event":
		return VariantEvent, nil
	case "ticket":
		return VariantTicket, nil
	default:
		return 0, fmt.Errorf("unknown payload variant %q", s)
	}
}

type EventRef struct {
	EventID string
}

type TicketRef struct {
	EventID       string
	TicketID      string
	WalletAddress string
}

// Payload is the decoded form of a scanned QR text. TicketID and WalletAddress
// are only filled for VariantTicket.
type Payload struct {
	Variant       Variant `json:"-"`
	EventID       string  `json:"event_id"`
	TicketID      string  `json:"ticket_id,omitempty"`
	WalletAddress string  `json:"wallet_address,omitempty"`
}

func (p Payload) EventRef() EventRef {
	return EventRef{EventID: p.EventID}
}

func (p Payload) TicketRef() TicketRef {
	return TicketRef{EventID: p.EventID, TicketID: p.TicketID, WalletAddress: p.WalletAddress}
}

func EncodeEvent(ref EventRef) string {
	return prefix + ref.EventID
}

// EncodeTicket always emits the wallet segment, even when the address is empty.
func EncodeTicket(ref TicketRef) string {
	return strings.Join([]string{
		eventToken, ref.EventID,
		ticketToken, ref.TicketID,
		walletToken, ref.WalletAddress,
	}, separator)
}

// Decode parses text positionally. It only fails when the "event:" prefix is
// missing; any missing positional token decodes to an empty string, and the
// "ticket"/"wallet" literals are not checked.
func Decode(text string, expected Variant) (Payload, error) {
	if !strings.HasPrefix(text, prefix) {
		return Payload{}, fmt.Errorf("%w: missing %q prefix", ErrMalformedPayload, prefix)
	}

	tokens := strings.Split(text, separator)

	switch expected {
	case VariantEvent:
		return Payload{
			Variant: VariantEvent,
			EventID: tokenAt(tokens, 1),
		}, nil
	case VariantTicket:
		return Payload{
			Variant:       VariantTicket,
			EventID:       tokenAt(tokens, 1),
			TicketID:      tokenAt(tokens, 3),
			WalletAddress: tokenAt(tokens, 5),
		}, nil
	default:
		return Payload{}, fmt.Errorf("%w: unsupported variant %s", ErrMalformedPayload, expected)
	}
}

// DecodeStrict is the opt-in validating decoder: literal tokens must sit at
// their positions, ids must be non-empty and a non-empty wallet must be a hex
// address. An event decode also accepts a complete ticket payload.
func DecodeStrict(text string, expected Variant) (Payload, error) {
	payload, err := Decode(text, expected)
	if err != nil {
		return Payload{}, err
	}

	tokens := strings.Split(text, separator)

	switch expected {
	case VariantEvent:
		if len(tokens) != 2 && len(tokens) != 6 {
			return Payload{}, fmt.Errorf("%w: expected 2 or 6 tokens, got %d", ErrMalformedPayload, len(tokens))
		}
		if len(tokens) == 6 {
			if err := checkTicketTokens(tokens); err != nil {
				return Payload{}, err
			}
		}
	case VariantTicket:
		if len(tokens) != 6 {
			return Payload{}, fmt.Errorf("%w: expected 6 tokens, got %d", ErrMalformedPayload, len(tokens))
		}
		if err := checkTicketTokens(tokens); err != nil {
			return Payload{}, err
		}
	}

	if payload.EventID == "" {
		return Payload{}, fmt.Errorf("%w: empty event id", ErrMalformedPayload)
	}

	return payload, nil
}

func checkTicketTokens(tokens []string) error {
	if tokens[2] != ticketToken {
		return fmt.Errorf("%w: expected %q at position 2, got %q", ErrMalformedPayload, ticketToken, tokens[2])
	}
	if tokens[4] != walletToken {
		return fmt.Errorf("%w: expected %q at position 4, got %q", ErrMalformedPayload, walletToken, tokens[4])
	}
	if tokens[3] == "" {
		return fmt.Errorf("%w: empty ticket id", ErrMalformedPayload)
	}
	if wallet := tokens[5]; wallet != "" && !common.IsHexAddress(wallet) {
		return fmt.Errorf("%w: invalid wallet address %q", ErrMalformedPayload, wallet)
	}
	return nil
}

func tokenAt(tokens []string, i int) string {
	if i < len(tokens) {
		return tokens[i]
	}
	return ""
}
