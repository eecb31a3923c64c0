package ledger

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"sync"
	"time"

	"blocktix_gateway/internal/model"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"go.uber.org/zap"
)

// Ledger is the consumed interface of the EventTicketing contract.
type Ledger interface {
	ReadEvent(ctx context.Context, eventID string) (*model.Event, error)
	ReadTicket(ctx context.Context, eventID, ticketID string) (model.TicketState, error)
	ReadTicketByToken(ctx context.Context, tokenID string) (*model.Ticket, error)
	EventCount(ctx context.Context) (uint64, error)
	WriteCreateEvent(ctx context.Context, ev NewEvent) (model.EventCreated, error)
	WriteMintTicket(ctx context.Context, eventID, attendeeName string, priceWei *big.Int) (model.TicketMinted, error)
	WriteMarkUsed(ctx context.Context, eventID, ticketID string) (model.TicketUsed, error)
	ContractAddress() string
}

// Backend is the RPC surface the adapter needs; *ethclient.Client satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
}

// Connection is the connection context the adapter is bound to.
type Connection interface {
	Backend() Backend
	// Transactor returns the signing options of the active account, or
	// ErrWalletNotConnected for a read-only connection.
	Transactor() (*bind.TransactOpts, error)
}

type NewEvent struct {
	Name           string
	Description    string
	Date           time.Time
	TicketPriceWei *big.Int
	MaxTickets     uint64
}

type Options struct {
	CallTimeout time.Duration
	TxTimeout   time.Duration
}

type contractLedger struct {
	conn     Connection
	address  common.Address
	abi      abi.ABI
	contract *bind.BoundContract
	opts     Options
	logger   *zap.Logger

	// sendMu covers nonce assignment and SendTransaction, not the wait for the receipt.
	sendMu sync.Mutex
	nonces map[common.Address]uint64
}

func New(conn Connection, contractAddress string, opts Options, logger *zap.Logger) (Ledger, error) {
	if !common.IsHexAddress(contractAddress) {
		return nil, fmt.Errorf("%w: invalid address %q", ErrContractNotConfigured, contractAddress)
	}
	address := common.HexToAddress(contractAddress)
	if address == (common.Address{}) {
		return nil, ErrContractNotConfigured
	}

	parsed, err := abi.JSON(strings.NewReader(EventTicketingABI))
	if err != nil {
		return nil, fmt.Errorf("failed to parse contract abi: %w", err)
	}

	backend := conn.Backend()
	logger.Info("ledger contract bound", zap.String("contract", address.Hex()))

	return &contractLedger{
		conn:     conn,
		address:  address,
		abi:      parsed,
		contract: bind.NewBoundContract(address, parsed, backend, backend, backend),
		opts:     opts,
		logger:   logger,
		nonces:   make(map[common.Address]uint64),
	}, nil
}

func (l *contractLedger) ContractAddress() string {
	return l.address.Hex()
}

func (l *contractLedger) call(ctx context.Context, method string, params ...interface{}) ([]interface{}, error) {
	ctx, cancel := context.WithTimeout(ctx, l.opts.CallTimeout)
	defer cancel()

	var out []interface{}
	if err := l.contract.Call(&bind.CallOpts{Context: ctx}, &out, method, params...); err != nil {
		return nil, classify(err)
	}
	return out, nil
}

func (l *contractLedger) ReadEvent(ctx context.Context, eventID string) (*model.Event, error) {
	id, ok := parseID(eventID)
	if !ok {
		return nil, fmt.Errorf("%w: event %q", ErrNotFound, eventID)
	}

	out, err := l.call(ctx, "getEvent", id)
	if err != nil {
		l.logger.Error("failed to read event", zap.Error(err), zap.String("event_id", eventID))
		return nil, fmt.Errorf("failed to get event %s: %w", eventID, err)
	}

	name := *abi.ConvertType(out[0], new(string)).(*string)
	description := *abi.ConvertType(out[1], new(string)).(*string)
	date := *abi.ConvertType(out[2], new(*big.Int)).(**big.Int)
	price := *abi.ConvertType(out[3], new(*big.Int)).(**big.Int)
	maxTickets := *abi.ConvertType(out[4], new(*big.Int)).(**big.Int)
	sold := *abi.ConvertType(out[5], new(*big.Int)).(**big.Int)
	organizer := *abi.ConvertType(out[6], new(common.Address)).(*common.Address)

	if organizer == (common.Address{}) {
		return nil, fmt.Errorf("%w: event %s", ErrNotFound, eventID)
	}

	return &model.Event{
		ID:             eventID,
		Name:           name,
		Description:    description,
		Date:           time.Unix(clampInt64(date), 0).UTC(),
		TicketPrice:    FormatEther(price),
		TicketPriceWei: price,
		MaxTickets:     clampUint64(maxTickets),
		TicketsSold:    clampUint64(sold),
		Organizer:      organizer.Hex(),
	}, nil
}

func (l *contractLedger) ReadTicket(ctx context.Context, eventID, ticketID string) (model.TicketState, error) {
	eid, ok := parseID(eventID)
	if !ok {
		return model.TicketState{}, fmt.Errorf("%w: event %q", ErrNotFound, eventID)
	}
	tid, ok := parseID(ticketID)
	if !ok {
		return model.TicketState{}, fmt.Errorf("%w: ticket %q", ErrNotFound, ticketID)
	}

	out, err := l.call(ctx, "verifyTicket", eid, tid)
	if err != nil {
		l.logger.Error("failed to read ticket", zap.Error(err), zap.String("event_id", eventID), zap.String("ticket_id", ticketID))
		return model.TicketState{}, fmt.Errorf("failed to verify ticket: %w", err)
	}

	state := model.TicketState{
		Valid:        *abi.ConvertType(out[0], new(bool)).(*bool),
		AttendeeName: *abi.ConvertType(out[2], new(string)).(*string),
		IsUsed:       *abi.ConvertType(out[3], new(bool)).(*bool),
	}
	if owner := *abi.ConvertType(out[1], new(common.Address)).(*common.Address); owner != (common.Address{}) {
		state.Owner = owner.Hex()
	}
	return state, nil
}

func (l *contractLedger) ReadTicketByToken(ctx context.Context, tokenID string) (*model.Ticket, error) {
	id, ok := parseID(tokenID)
	if !ok {
		return nil, fmt.Errorf("%w: ticket %q", ErrNotFound, tokenID)
	}

	out, err := l.call(ctx, "getTicket", id)
	if err != nil {
		l.logger.Error("failed to read ticket by token", zap.Error(err), zap.String("token_id", tokenID))
		return nil, fmt.Errorf("failed to get ticket %s: %w", tokenID, err)
	}

	eventID := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	owner := *abi.ConvertType(out[1], new(common.Address)).(*common.Address)
	if owner == (common.Address{}) {
		return nil, fmt.Errorf("%w: ticket %s", ErrNotFound, tokenID)
	}

	return &model.Ticket{
		TokenID:      tokenID,
		EventID:      eventID.String(),
		Owner:        owner.Hex(),
		AttendeeName: *abi.ConvertType(out[2], new(string)).(*string),
		IsUsed:       *abi.ConvertType(out[3], new(bool)).(*bool),
	}, nil
}

func (l *contractLedger) EventCount(ctx context.Context) (uint64, error) {
	out, err := l.call(ctx, "eventCount")
	if err != nil {
		l.logger.Error("failed to read event count", zap.Error(err))
		return 0, fmt.Errorf("failed to get event count: %w", err)
	}

	return clampUint64(*abi.ConvertType(out[0], new(*big.Int)).(**big.Int)), nil
}

// transact sends a contract transaction and waits for its receipt. A reverted
// receipt is reported as ErrLedgerRejected.
func (l *contractLedger) transact(ctx context.Context, value *big.Int, method string, params ...interface{}) (*types.Transaction, *types.Receipt, error) {
	base, err := l.conn.Transactor()
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", ErrLedgerRejected, err)
	}

	ctx, cancel := context.WithTimeout(ctx, l.opts.TxTimeout)
	defer cancel()

	opts := *base
	opts.Context = ctx
	opts.Value = value

	tx, err := l.send(&opts, method, params...)
	if err != nil {
		return nil, nil, classify(err)
	}

	l.logger.Info("transaction sent", zap.String("method", method), zap.String("tx_hash", tx.Hash().Hex()))

	receipt, err := bind.WaitMined(ctx, l.conn.Backend(), tx)
	if err != nil {
		return tx, nil, classify(err)
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		return tx, receipt, fmt.Errorf("%w: transaction reverted: %s", ErrLedgerRejected, tx.Hash().Hex())
	}

	return tx, receipt, nil
}

// send assigns the next nonce of the signing account and submits the
// transaction. Concurrent writes from one account are sent one at a time.
func (l *contractLedger) send(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error) {
	l.sendMu.Lock()
	defer l.sendMu.Unlock()

	if opts.Nonce == nil {
		pending, err := l.conn.Backend().PendingNonceAt(opts.Context, opts.From)
		if err != nil {
			return nil, fmt.Errorf("failed to get pending nonce: %w", err)
		}
		// узел может ещё не видеть только что отправленные транзакции
		if next, ok := l.nonces[opts.From]; ok && next > pending {
			pending = next
		}
		opts.Nonce = new(big.Int).SetUint64(pending)
	}

	tx, err := l.contract.Transact(opts, method, params...)
	if err != nil {
		delete(l.nonces, opts.From)
		return nil, err
	}
	l.nonces[opts.From] = tx.Nonce() + 1
	return tx, nil
}

type eventCreatedLog struct {
	EventId   *big.Int
	Name      string
	Organizer common.Address
}

type ticketMintedLog struct {
	EventId      *big.Int
	TokenId      *big.Int
	Owner        common.Address
	AttendeeName string
}

// findLog unpacks the first receipt log emitted by the contract for event.
func (l *contractLedger) findLog(receipt *types.Receipt, event string, out interface{}) bool {
	id := l.abi.Events[event].ID
	for _, lg := range receipt.Logs {
		if lg == nil || lg.Address != l.address || len(lg.Topics) == 0 || lg.Topics[0] != id {
			continue
		}
		if err := l.contract.UnpackLog(out, event, *lg); err != nil {
			l.logger.Warn("failed to unpack log", zap.String("event", event), zap.Error(err))
			continue
		}
		return true
	}
	return false
}

func (l *contractLedger) WriteCreateEvent(ctx context.Context, ev NewEvent) (model.EventCreated, error) {
	tx, receipt, err := l.transact(ctx, nil, "createEvent",
		ev.Name,
		ev.Description,
		big.NewInt(ev.Date.Unix()),
		ev.TicketPriceWei,
		new(big.Int).SetUint64(ev.MaxTickets),
	)
	if err != nil {
		l.logger.Error("failed to create event", zap.Error(err), zap.String("name", ev.Name))
		return model.EventCreated{}, fmt.Errorf("failed to create event: %w", err)
	}

	var created eventCreatedLog
	if !l.findLog(receipt, "EventCreated", &created) {
		return model.EventCreated{}, fmt.Errorf("%w: event creation failed, no EventCreated log in %s", ErrLedgerRejected, tx.Hash().Hex())
	}

	return model.EventCreated{
		EventID: created.EventId.String(),
		TxHash:  tx.Hash().Hex(),
	}, nil
}

func (l *contractLedger) WriteMintTicket(ctx context.Context, eventID, attendeeName string, priceWei *big.Int) (model.TicketMinted, error) {
	id, ok := parseID(eventID)
	if !ok {
		return model.TicketMinted{}, fmt.Errorf("%w: invalid event id %q", ErrLedgerRejected, eventID)
	}

	tx, receipt, err := l.transact(ctx, priceWei, "mintTicket", id, attendeeName)
	if err != nil {
		l.logger.Error("failed to mint ticket", zap.Error(err), zap.String("event_id", eventID))
		return model.TicketMinted{}, fmt.Errorf("failed to mint ticket: %w", err)
	}

	var minted ticketMintedLog
	if !l.findLog(receipt, "TicketMinted", &minted) {
		return model.TicketMinted{}, fmt.Errorf("%w: ticket minting failed, no TicketMinted log in %s", ErrLedgerRejected, tx.Hash().Hex())
	}

	return model.TicketMinted{
		TicketID: minted.TokenId.String(),
		EventID:  minted.EventId.String(),
		Owner:    minted.Owner.Hex(),
		TxHash:   tx.Hash().Hex(),
	}, nil
}

func (l *contractLedger) WriteMarkUsed(ctx context.Context, eventID, ticketID string) (model.TicketUsed, error) {
	eid, ok := parseID(eventID)
	if !ok {
		return model.TicketUsed{}, fmt.Errorf("%w: invalid event id %q", ErrLedgerRejected, eventID)
	}
	tid, ok := parseID(ticketID)
	if !ok {
		return model.TicketUsed{}, fmt.Errorf("%w: invalid ticket id %q", ErrLedgerRejected, ticketID)
	}

	tx, _, err := l.transact(ctx, nil, "markTicketUsed", eid, tid)
	if err != nil {
		l.logger.Error("failed to mark ticket used", zap.Error(err), zap.String("event_id", eventID), zap.String("ticket_id", ticketID))
		if tx != nil {
			return model.TicketUsed{}, fmt.Errorf("failed to mark ticket as used (tx %s): %w", tx.Hash().Hex(), err)
		}
		return model.TicketUsed{}, fmt.Errorf("failed to mark ticket as used: %w", err)
	}

	return model.TicketUsed{
		EventID:  eventID,
		TicketID: ticketID,
		TxHash:   tx.Hash().Hex(),
	}, nil
}

var maxUint256 = new(big.Int).Sub(new(big.Int).Lsh(big.NewInt(1), 256), big.NewInt(1))

// parseID accepts a base-10 uint256. Anything else cannot name a ledger record.
func parseID(s string) (*big.Int, bool) {
	if s == "" {
		return nil, false
	}
	for _, r := range s {
		if r < '0' || r > '9' {
			return nil, false
		}
	}
	id, ok := new(big.Int).SetString(s, 10)
	if !ok || id.Cmp(maxUint256) > 0 {
		return nil, false
	}
	return id, true
}

func clampUint64(v *big.Int) uint64 {
	if v == nil || v.Sign() < 0 {
		return 0
	}
	if !v.IsUint64() {
		return ^uint64(0)
	}
	return v.Uint64()
}

func clampInt64(v *big.Int) int64 {
	if v == nil || v.Sign() < 0 {
		return 0
	}
	if !v.IsInt64() {
		return 1<<63 - 1
	}
	return v.Int64()
}

// IsNotFound reports whether err means the ledger holds no record for the id.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrNotFound)
}

// unconfigured answers every call with ErrContractNotConfigured so the rest of
// the gateway can run without a contract address.
type unconfigured struct{}

func Unconfigured() Ledger { return unconfigured{} }

func (unconfigured) ReadEvent(context.Context, string) (*model.Event, error) {
	return nil, ErrContractNotConfigured
}

func (unconfigured) ReadTicket(context.Context, string, string) (model.TicketState, error) {
	return model.TicketState{}, ErrContractNotConfigured
}

func (unconfigured) ReadTicketByToken(context.Context, string) (*model.Ticket, error) {
	return nil, ErrContractNotConfigured
}

func (unconfigured) EventCount(context.Context) (uint64, error) {
	return 0, ErrContractNotConfigured
}

func (unconfigured) WriteCreateEvent(context.Context, NewEvent) (model.EventCreated, error) {
	return model.EventCreated{}, ErrContractNotConfigured
}

func (unconfigured) WriteMintTicket(context.Context, string, string, *big.Int) (model.TicketMinted, error) {
	return model.TicketMinted{}, ErrContractNotConfigured
}

func (unconfigured) WriteMarkUsed(context.Context, string, string) (model.TicketUsed, error) {
	return model.TicketUsed{}, ErrContractNotConfigured
}

func (unconfigured) ContractAddress() string { return "" }
