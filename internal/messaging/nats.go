package messaging

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"blocktix_gateway/internal/model"
	"blocktix_gateway/internal/session"

	"github.com/nats-io/nats.go"
	"go.uber.org/zap"
)

const (
	SubjectTicketVerified = "ticket.verified"
	SubjectTicketUsed     = "ticket.used"
	SubjectEventCreated   = "event.created"
	SubjectTicketMinted   = "ticket.minted"
	SubjectWalletChanged  = "wallet.changed"
)

// Publisher emits ticketing notifications. Delivery is best-effort.
type Publisher interface {
	PublishTicketVerified(ctx context.Context, outcome model.VerificationOutcome) error
	PublishTicketUsed(ctx context.Context, used model.TicketUsed) error
	PublishEventCreated(ctx context.Context, created model.EventCreated, name string) error
	PublishTicketMinted(ctx context.Context, minted model.TicketMinted) error
}

type NATSClient interface {
	Publisher
	SubscribeToWalletChanged(ctx context.Context, handler func(session.AccountChange)) error
	Close()
}

// Интерфейс для nats.Conn
type natsConnection interface {
	Publish(subj string, data []byte) error
	Subscribe(subj string, cb nats.MsgHandler) (*nats.Subscription, error)
	Close()
}

type natsClient struct {
	conn   natsConnection
	logger *zap.Logger
}

func NewNATSClient(url string, logger *zap.Logger) (NATSClient, error) {
	conn, err := nats.Connect(url,
		nats.Name("blocktix_gateway"),
		nats.MaxReconnects(-1),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				logger.Warn("NATS disconnected", zap.Error(err))
			}
		}),
		nats.ReconnectHandler(func(c *nats.Conn) {
			logger.Info("NATS reconnected", zap.String("url", c.ConnectedUrl()))
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	logger.Info("connected to NATS", zap.String("url", url))
	return newNATSClient(conn, logger), nil
}

func newNATSClient(conn natsConnection, logger *zap.Logger) *natsClient {
	return &natsClient{
		conn:   conn,
		logger: logger,
	}
}

type TicketVerifiedMessage struct {
	EventID      string    `json:"event_id"`
	TicketID     string    `json:"ticket_id"`
	Status       string    `json:"status"`
	Owner        string    `json:"owner,omitempty"`
	AttendeeName string    `json:"attendee_name,omitempty"`
	CheckedAt    time.Time `json:"checked_at"`
}

type TicketUsedMessage struct {
	EventID  string `json:"event_id"`
	TicketID string `json:"ticket_id"`
	TxHash   string `json:"tx_hash"`
}

type EventCreatedMessage struct {
	EventID string `json:"event_id"`
	Name    string `json:"name"`
	TxHash  string `json:"tx_hash"`
}

type TicketMintedMessage struct {
	EventID  string `json:"event_id"`
	TicketID string `json:"ticket_id"`
	Owner    string `json:"owner"`
	TxHash   string `json:"tx_hash"`
}

type WalletChangedMessage struct {
	Address string `json:"address"`
	ChainID int64  `json:"chain_id"`
}

func (c *natsClient) publish(subject string, msg any, fields ...zap.Field) error {
	data, err := json.Marshal(msg)
	if err != nil {
		c.logger.Error("failed to marshal message", append(fields, zap.Error(err), zap.String("subject", subject))...)
		return fmt.Errorf("failed to marshal %s message: %w", subject, err)
	}

	if err := c.conn.Publish(subject, data); err != nil {
		c.logger.Error("failed to publish message", append(fields, zap.Error(err), zap.String("subject", subject))...)
		return fmt.Errorf("failed to publish %s message: %w", subject, err)
	}

	c.logger.Debug("message published", append(fields, zap.String("subject", subject))...)
	return nil
}

func (c *natsClient) PublishTicketVerified(ctx context.Context, outcome model.VerificationOutcome) error {
	return c.publish(SubjectTicketVerified, TicketVerifiedMessage{
		EventID:      outcome.EventID,
		TicketID:     outcome.TicketID,
		Status:       string(outcome.Status()),
		Owner:        outcome.Owner,
		AttendeeName: outcome.AttendeeName,
		CheckedAt:    outcome.CheckedAt,
	}, zap.String("event_id", outcome.EventID), zap.String("ticket_id", outcome.TicketID))
}

func (c *natsClient) PublishTicketUsed(ctx context.Context, used model.TicketUsed) error {
	return c.publish(SubjectTicketUsed, TicketUsedMessage{
		EventID:  used.EventID,
		TicketID: used.TicketID,
		TxHash:   used.TxHash,
	}, zap.String("event_id", used.EventID), zap.String("ticket_id", used.TicketID))
}

func (c *natsClient) PublishEventCreated(ctx context.Context, created model.EventCreated, name string) error {
	return c.publish(SubjectEventCreated, EventCreatedMessage{
		EventID: created.EventID,
		Name:    name,
		TxHash:  created.TxHash,
	}, zap.String("event_id", created.EventID))
}

func (c *natsClient) PublishTicketMinted(ctx context.Context, minted model.TicketMinted) error {
	return c.publish(SubjectTicketMinted, TicketMintedMessage{
		EventID:  minted.EventID,
		TicketID: minted.TicketID,
		Owner:    minted.Owner,
		TxHash:   minted.TxHash,
	}, zap.String("event_id", minted.EventID), zap.String("ticket_id", minted.TicketID))
}

func (c *natsClient) SubscribeToWalletChanged(ctx context.Context, handler func(session.AccountChange)) error {
	_, err := c.conn.Subscribe(SubjectWalletChanged, func(msg *nats.Msg) {
		var changed WalletChangedMessage
		if err := json.Unmarshal(msg.Data, &changed); err != nil {
			c.logger.Error("failed to unmarshal wallet changed message", zap.Error(err))
			return
		}

		handler(session.AccountChange{
			Address: changed.Address,
			ChainID: changed.ChainID,
		})
		c.logger.Info("wallet changed message processed", zap.String("address", changed.Address), zap.Int64("chain_id", changed.ChainID))
	})
	if err != nil {
		c.logger.Error("failed to subscribe to wallet changed", zap.Error(err))
		return fmt.Errorf("failed to subscribe to wallet changed: %w", err)
	}

	c.logger.Info("subscribed to wallet changed messages")
	return nil
}

func (c *natsClient) Close() {
	if c.conn != nil {
		c.conn.Close()
		c.logger.Info("NATS connection closed")
	}
}
