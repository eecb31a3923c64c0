package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strconv"
	"strings"
	"sync"
	"testing"
	"time"

	"blocktix_gateway/internal/model"

	"github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

const testContract = "0x5FbDB2315678afecb367f032d93F642f64180aa3"

var (
	testAbi, _ = abi.JSON(strings.NewReader(EventTicketingABI))
	organizer  = common.HexToAddress("0x70997970C51812dc3A010C7d01b50e0d17dc79C8")
	holder     = common.HexToAddress("0x3C44CdDdB6a900fa2b585dd299e03d12FA4293BC")
)

// fakeBackend answers contract calls by method name. Methods not overridden
// panic through the nil embedded interface. Like a txpool it hands out the
// number of accepted transactions as the pending nonce and refuses any other.
type fakeBackend struct {
	bind.ContractBackend

	mu       sync.Mutex
	calls    []string
	callFunc func(method string, args []interface{}) ([]interface{}, error)
	sendFunc func(tx *types.Transaction) error
	logsFunc func(tx *types.Transaction) []*types.Log
	status   uint64
	sent     []*types.Transaction

	// stalePending keeps the pending nonce at zero, as a lagging node would.
	stalePending bool
}

func (f *fakeBackend) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	method, err := testAbi.MethodById(msg.Data[:4])
	if err != nil {
		return nil, err
	}
	args, err := method.Inputs.Unpack(msg.Data[4:])
	if err != nil {
		return nil, err
	}

	f.mu.Lock()
	f.calls = append(f.calls, method.Name)
	f.mu.Unlock()

	values, err := f.callFunc(method.Name, args)
	if err != nil {
		return nil, err
	}
	return method.Outputs.Pack(values...)
}

func (f *fakeBackend) CodeAt(ctx context.Context, contract common.Address, block *big.Int) ([]byte, error) {
	return []byte{0x60, 0x80}, nil
}

func (f *fakeBackend) SendTransaction(ctx context.Context, tx *types.Transaction) error {
	if f.sendFunc != nil {
		if err := f.sendFunc(tx); err != nil {
			return err
		}
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if next := uint64(len(f.sent)); tx.Nonce() < next {
		return fmt.Errorf("nonce too low: next nonce %d, tx nonce %d", next, tx.Nonce())
	} else if tx.Nonce() > next {
		return fmt.Errorf("nonce too high: next nonce %d, tx nonce %d", next, tx.Nonce())
	}
	f.sent = append(f.sent, tx)
	return nil
}

func (f *fakeBackend) PendingNonceAt(ctx context.Context, account common.Address) (uint64, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.stalePending {
		return 0, nil
	}
	return uint64(len(f.sent)), nil
}

func (f *fakeBackend) TransactionReceipt(ctx context.Context, hash common.Hash) (*types.Receipt, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, tx := range f.sent {
		if tx.Hash() != hash {
			continue
		}
		receipt := &types.Receipt{Status: f.status, TxHash: hash}
		if f.logsFunc != nil {
			receipt.Logs = f.logsFunc(tx)
		}
		return receipt, nil
	}
	return nil, ethereum.NotFound
}

type fakeConnection struct {
	backend *fakeBackend
	opts    *bind.TransactOpts
}

func (c *fakeConnection) Backend() Backend { return c.backend }

func (c *fakeConnection) Transactor() (*bind.TransactOpts, error) {
	if c.opts == nil {
		return nil, ErrWalletNotConnected
	}
	return c.opts, nil
}

func newTestLedger(t *testing.T, backend *fakeBackend, withWallet bool) Ledger {
	t.Helper()

	conn := &fakeConnection{backend: backend}
	if withWallet {
		key, err := crypto.GenerateKey()
		require.NoError(t, err)
		opts, err := bind.NewKeyedTransactorWithChainID(key, big.NewInt(11155111))
		require.NoError(t, err)
		opts.GasPrice = big.NewInt(1_000_000_000)
		opts.GasLimit = 300000
		conn.opts = opts
	}

	l, err := New(conn, testContract, Options{CallTimeout: time.Second, TxTimeout: 5 * time.Second}, zaptest.NewLogger(t))
	require.NoError(t, err)
	return l
}

func eventLog(name string, data []byte, topics ...common.Hash) *types.Log {
	return &types.Log{
		Address: common.HexToAddress(testContract),
		Topics:  append([]common.Hash{testAbi.Events[name].ID}, topics...),
		Data:    data,
	}
}

func TestNew(t *testing.T) {
	conn := &fakeConnection{backend: &fakeBackend{}}
	opts := Options{CallTimeout: time.Second, TxTimeout: time.Second}

	tests := []struct {
		name    string
		address string
		wantErr error
	}{
		{name: "zero_address", address: "0x0000000000000000000000000000000000000000", wantErr: ErrContractNotConfigured},
		{name: "not_an_address", address: "contract", wantErr: ErrContractNotConfigured},
		{name: "valid_address", address: testContract},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			l, err := New(conn, tt.address, opts, zaptest.NewLogger(t))
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, testContract, l.ContractAddress())
		})
	}
}

func TestReadTicket(t *testing.T) {
	tests := []struct {
		name      string
		eventID   string
		ticketID  string
		callFunc  func(string, []interface{}) ([]interface{}, error)
		expected  model.TicketState
		wantErr   error
		wantCalls int
	}{
		{
			name:     "valid_unused",
			eventID:  "1",
			ticketID: "7",
			callFunc: func(method string, args []interface{}) ([]interface{}, error) {
				return []interface{}{true, holder, "Alice", false}, nil
			},
			expected:  model.TicketState{Valid: true, Owner: holder.Hex(), AttendeeName: "Alice"},
			wantCalls: 1,
		},
		{
			name:     "valid_used",
			eventID:  "1",
			ticketID: "7",
			callFunc: func(method string, args []interface{}) ([]interface{}, error) {
				return []interface{}{true, holder, "Alice", true}, nil
			},
			expected:  model.TicketState{Valid: true, Owner: holder.Hex(), AttendeeName: "Alice", IsUsed: true},
			wantCalls: 1,
		},
		{
			name:     "invalid_ticket_zero_owner",
			eventID:  "1",
			ticketID: "99",
			callFunc: func(method string, args []interface{}) ([]interface{}, error) {
				return []interface{}{false, common.Address{}, "", false}, nil
			},
			expected:  model.TicketState{},
			wantCalls: 1,
		},
		{
			name:     "revert_nonexistent",
			eventID:  "1",
			ticketID: "99",
			callFunc: func(method string, args []interface{}) ([]interface{}, error) {
				return nil, errors.New("execution reverted: Ticket does not exist")
			},
			wantErr:   ErrNotFound,
			wantCalls: 1,
		},
		{
			name:     "transport_failure",
			eventID:  "1",
			ticketID: "7",
			callFunc: func(method string, args []interface{}) ([]interface{}, error) {
				return nil, errors.New("dial tcp 127.0.0.1:8545: connect: connection refused")
			},
			wantErr:   ErrLedgerUnavailable,
			wantCalls: 1,
		},
		{
			name:      "empty_event_id",
			eventID:   "",
			ticketID:  "7",
			wantErr:   ErrNotFound,
			wantCalls: 0,
		},
		{
			name:      "non_numeric_ticket_id",
			eventID:   "1",
			ticketID:  "abc",
			wantErr:   ErrNotFound,
			wantCalls: 0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			backend := &fakeBackend{callFunc: tt.callFunc}
			l := newTestLedger(t, backend, false)

			state, err := l.ReadTicket(context.Background(), tt.eventID, tt.ticketID)
			assert.Len(t, backend.calls, tt.wantCalls)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.expected, state)
		})
	}
}

func TestReadTicketPassesIDs(t *testing.T) {
	var gotEvent, gotTicket *big.Int
	backend := &fakeBackend{callFunc: func(method string, args []interface{}) ([]interface{}, error) {
		gotEvent = args[0].(*big.Int)
		gotTicket = args[1].(*big.Int)
		return []interface{}{true, holder, "Bob", false}, nil
	}}
	l := newTestLedger(t, backend, false)

	_, err := l.ReadTicket(context.Background(), "42", "115792089237316195423570985008687907853269984665640564039457584007913129639935")
	require.NoError(t, err)
	assert.Equal(t, "42", gotEvent.String())
	assert.Equal(t, maxUint256.String(), gotTicket.String())

	_, err = l.ReadTicket(context.Background(), "42", "115792089237316195423570985008687907853269984665640564039457584007913129639936")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadEvent(t *testing.T) {
	date := time.Date(2025, 6, 1, 18, 0, 0, 0, time.UTC)
	price, _ := new(big.Int).SetString("10000000000000000", 10)

	backend := &fakeBackend{callFunc: func(method string, args []interface{}) ([]interface{}, error) {
		require.Equal(t, "getEvent", method)
		if args[0].(*big.Int).Int64() != 3 {
			return []interface{}{"", "", big.NewInt(0), big.NewInt(0), big.NewInt(0), big.NewInt(0), common.Address{}}, nil
		}
		return []interface{}{
			"DevCon", "Annual conference", big.NewInt(date.Unix()), price,
			big.NewInt(100), big.NewInt(12), organizer,
		}, nil
	}}
	l := newTestLedger(t, backend, false)

	ev, err := l.ReadEvent(context.Background(), "3")
	require.NoError(t, err)
	assert.Equal(t, "3", ev.ID)
	assert.Equal(t, "DevCon", ev.Name)
	assert.Equal(t, "Annual conference", ev.Description)
	assert.True(t, date.Equal(ev.Date))
	assert.Equal(t, "0.01", ev.TicketPrice)
	assert.Equal(t, 0, price.Cmp(ev.TicketPriceWei))
	assert.Equal(t, uint64(100), ev.MaxTickets)
	assert.Equal(t, uint64(12), ev.TicketsSold)
	assert.Equal(t, organizer.Hex(), ev.Organizer)

	_, err = l.ReadEvent(context.Background(), "4")
	require.ErrorIs(t, err, ErrNotFound)
}

func TestReadTicketByToken(t *testing.T) {
	backend := &fakeBackend{callFunc: func(method string, args []interface{}) ([]interface{}, error) {
		require.Equal(t, "getTicket", method)
		return []interface{}{big.NewInt(2), holder, "Carol", true}, nil
	}}
	l := newTestLedger(t, backend, false)

	ticket, err := l.ReadTicketByToken(context.Background(), "11")
	require.NoError(t, err)
	assert.Equal(t, "11", ticket.TokenID)
	assert.Equal(t, "2", ticket.EventID)
	assert.Equal(t, holder.Hex(), ticket.Owner)
	assert.Equal(t, "Carol", ticket.AttendeeName)
	assert.True(t, ticket.IsUsed)
}

func TestEventCount(t *testing.T) {
	backend := &fakeBackend{callFunc: func(method string, args []interface{}) ([]interface{}, error) {
		return []interface{}{big.NewInt(5)}, nil
	}}
	l := newTestLedger(t, backend, false)

	count, err := l.EventCount(context.Background())
	require.NoError(t, err)
	assert.Equal(t, uint64(5), count)
}

func TestWriteMarkUsed(t *testing.T) {
	t.Run("success", func(t *testing.T) {
		backend := &fakeBackend{status: types.ReceiptStatusSuccessful}
		l := newTestLedger(t, backend, true)

		used, err := l.WriteMarkUsed(context.Background(), "1", "7")
		require.NoError(t, err)
		require.Len(t, backend.sent, 1)
		assert.Equal(t, backend.sent[0].Hash().Hex(), used.TxHash)
		assert.Equal(t, "1", used.EventID)
		assert.Equal(t, "7", used.TicketID)

		method, err := testAbi.MethodById(backend.sent[0].Data()[:4])
		require.NoError(t, err)
		assert.Equal(t, "markTicketUsed", method.Name)
	})

	t.Run("wallet_not_connected", func(t *testing.T) {
		backend := &fakeBackend{}
		l := newTestLedger(t, backend, false)

		_, err := l.WriteMarkUsed(context.Background(), "1", "7")
		require.ErrorIs(t, err, ErrLedgerRejected)
		assert.Contains(t, err.Error(), "wallet not connected")
		assert.Empty(t, backend.sent)
	})

	t.Run("reverted_receipt", func(t *testing.T) {
		backend := &fakeBackend{status: types.ReceiptStatusFailed}
		l := newTestLedger(t, backend, true)

		_, err := l.WriteMarkUsed(context.Background(), "1", "7")
		require.ErrorIs(t, err, ErrLedgerRejected)
	})

	t.Run("send_rejected", func(t *testing.T) {
		backend := &fakeBackend{sendFunc: func(tx *types.Transaction) error {
			return errors.New("insufficient funds for gas * price + value")
		}}
		l := newTestLedger(t, backend, true)

		_, err := l.WriteMarkUsed(context.Background(), "1", "7")
		require.ErrorIs(t, err, ErrLedgerRejected)
	})

	t.Run("empty_ticket_id", func(t *testing.T) {
		backend := &fakeBackend{}
		l := newTestLedger(t, backend, true)

		_, err := l.WriteMarkUsed(context.Background(), "1", "")
		require.ErrorIs(t, err, ErrLedgerRejected)
		assert.Empty(t, backend.sent)
	})
}

func TestWriteCreateEvent(t *testing.T) {
	input := NewEvent{
		Name:           "DevCon",
		Description:    "Annual conference",
		Date:           time.Date(2025, 6, 1, 0, 0, 0, 0, time.UTC),
		TicketPriceWei: big.NewInt(1000),
		MaxTickets:     50,
	}

	t.Run("parses_event_id_from_log", func(t *testing.T) {
		backend := &fakeBackend{
			status: types.ReceiptStatusSuccessful,
			logsFunc: func(tx *types.Transaction) []*types.Log {
				data, err := testAbi.Events["EventCreated"].Inputs.NonIndexed().Pack("DevCon")
				require.NoError(t, err)
				foreign := eventLog("EventCreated", data, common.BigToHash(big.NewInt(99)), common.BytesToHash(organizer.Bytes()))
				foreign.Address = organizer
				return []*types.Log{
					foreign,
					eventLog("EventCreated", data, common.BigToHash(big.NewInt(4)), common.BytesToHash(organizer.Bytes())),
				}
			},
		}
		l := newTestLedger(t, backend, true)

		created, err := l.WriteCreateEvent(context.Background(), input)
		require.NoError(t, err)
		assert.Equal(t, "4", created.EventID)
		assert.Equal(t, backend.sent[0].Hash().Hex(), created.TxHash)

		args, err := testAbi.Methods["createEvent"].Inputs.Unpack(backend.sent[0].Data()[4:])
		require.NoError(t, err)
		assert.Equal(t, "DevCon", args[0])
		assert.Equal(t, input.Date.Unix(), args[2].(*big.Int).Int64())
		assert.Equal(t, int64(50), args[4].(*big.Int).Int64())
	})

	t.Run("missing_log", func(t *testing.T) {
		backend := &fakeBackend{status: types.ReceiptStatusSuccessful}
		l := newTestLedger(t, backend, true)

		_, err := l.WriteCreateEvent(context.Background(), input)
		require.ErrorIs(t, err, ErrLedgerRejected)
		assert.Contains(t, err.Error(), "event creation failed")
	})
}

func TestWriteMintTicket(t *testing.T) {
	backend := &fakeBackend{
		status: types.ReceiptStatusSuccessful,
		logsFunc: func(tx *types.Transaction) []*types.Log {
			data, err := testAbi.Events["TicketMinted"].Inputs.NonIndexed().Pack("Alice")
			require.NoError(t, err)
			return []*types.Log{eventLog("TicketMinted", data,
				common.BigToHash(big.NewInt(2)),
				common.BigToHash(big.NewInt(17)),
				common.BytesToHash(holder.Bytes()),
			)}
		},
	}
	l := newTestLedger(t, backend, true)

	minted, err := l.WriteMintTicket(context.Background(), "2", "Alice", big.NewInt(1000))
	require.NoError(t, err)
	assert.Equal(t, "17", minted.TicketID)
	assert.Equal(t, "2", minted.EventID)
	assert.Equal(t, holder.Hex(), minted.Owner)
	assert.Equal(t, int64(1000), backend.sent[0].Value().Int64())
}

// rpcError mirrors the JSON-RPC error of go-ethereum's rpc client.
type rpcError struct {
	code int
	msg  string
	data interface{}
}

func (e *rpcError) Error() string          { return e.msg }
func (e *rpcError) ErrorCode() int         { return e.code }
func (e *rpcError) ErrorData() interface{} { return e.data }

func TestClassify(t *testing.T) {
	tests := []struct {
		name     string
		err      error
		expected error
	}{
		{name: "deadline", err: context.DeadlineExceeded, expected: ErrLedgerUnavailable},
		{name: "no_code", err: bind.ErrNoCode, expected: ErrLedgerRejected},
		{name: "revert", err: errors.New("execution reverted: Ticket already used"), expected: ErrLedgerRejected},
		{name: "nonexistent", err: errors.New("execution reverted: ERC721: invalid token ID"), expected: ErrNotFound},
		{name: "unknown", err: errors.New("EOF"), expected: ErrLedgerUnavailable},
		{name: "already_classified", err: ErrLedgerRejected, expected: ErrLedgerRejected},
		{name: "rpc_rate_limited", err: &rpcError{code: -32005, msg: "daily request limit exceeded"}, expected: ErrLedgerUnavailable},
		{name: "rpc_internal", err: &rpcError{code: -32603, msg: "internal error"}, expected: ErrLedgerUnavailable},
		{name: "rpc_header_not_found", err: &rpcError{code: -32000, msg: "header not found"}, expected: ErrLedgerUnavailable},
		{name: "rpc_revert_code", err: &rpcError{code: 3, msg: "execution reverted", data: "0x08c379a0"}, expected: ErrLedgerRejected},
		{name: "rpc_revert_data", err: &rpcError{code: -32015, msg: "vm error", data: "0x"}, expected: ErrLedgerRejected},
		{name: "rpc_insufficient_funds", err: &rpcError{code: -32000, msg: "insufficient funds for gas * price + value"}, expected: ErrLedgerRejected},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.ErrorIs(t, classify(tt.err), tt.expected)
		})
	}
}

func TestUnconfigured(t *testing.T) {
	l := Unconfigured()
	ctx := context.Background()

	_, err := l.ReadTicket(ctx, "1", "1")
	assert.ErrorIs(t, err, ErrContractNotConfigured)
	_, err = l.ReadEvent(ctx, "1")
	assert.ErrorIs(t, err, ErrContractNotConfigured)
	_, err = l.EventCount(ctx)
	assert.ErrorIs(t, err, ErrContractNotConfigured)
	_, err = l.WriteMarkUsed(ctx, "1", "1")
	assert.ErrorIs(t, err, ErrContractNotConfigured)
	_, err = l.WriteMintTicket(ctx, "1", "Alice", big.NewInt(1))
	assert.ErrorIs(t, err, ErrContractNotConfigured)
	assert.Empty(t, l.ContractAddress())
}

func TestConcurrentWritesUseDistinctNonces(t *testing.T) {
	backend := &fakeBackend{status: types.ReceiptStatusSuccessful}
	l := newTestLedger(t, backend, true)

	errs := make([]error, 4)
	var wg sync.WaitGroup
	for i := range errs {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, errs[i] = l.WriteMarkUsed(context.Background(), "1", strconv.Itoa(7+i))
		}()
	}
	wg.Wait()

	for i, err := range errs {
		require.NoError(t, err, "ticket %d", 7+i)
	}
	require.Len(t, backend.sent, 4)

	nonces := make(map[uint64]bool)
	for _, tx := range backend.sent {
		nonces[tx.Nonce()] = true
	}
	assert.Len(t, nonces, 4)
}

func TestWritesWithLaggingPendingNonce(t *testing.T) {
	failNext := false
	backend := &fakeBackend{
		status:       types.ReceiptStatusSuccessful,
		stalePending: true,
		sendFunc: func(tx *types.Transaction) error {
			if failNext {
				failNext = false
				return errors.New("insufficient funds for gas * price + value")
			}
			return nil
		},
	}
	l := newTestLedger(t, backend, true)

	_, err := l.WriteMarkUsed(context.Background(), "1", "7")
	require.NoError(t, err)
	_, err = l.WriteMarkUsed(context.Background(), "1", "8")
	require.NoError(t, err)
	require.Len(t, backend.sent, 2)
	assert.Equal(t, uint64(1), backend.sent[1].Nonce())

	// после ошибки отправки nonce снова берётся у узла
	failNext = true
	_, err = l.WriteMarkUsed(context.Background(), "1", "9")
	require.ErrorIs(t, err, ErrLedgerRejected)

	backend.stalePending = false
	_, err = l.WriteMarkUsed(context.Background(), "1", "9")
	require.NoError(t, err)
	assert.Equal(t, uint64(2), backend.sent[2].Nonce())
}

type clientConnection struct {
	backend Backend
}

func (c *clientConnection) Backend() Backend { return c.backend }

func (c *clientConnection) Transactor() (*bind.TransactOpts, error) {
	return nil, ErrWalletNotConnected
}

func TestReadTicketProviderErrorIsUnavailable(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			ID json.RawMessage `json:"id"`
		}
		_ = json.NewDecoder(r.Body).Decode(&req)
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `{"jsonrpc":"2.0","id":%s,"error":{"code":-32005,"message":"daily request limit exceeded"}}`, req.ID)
	}))
	defer srv.Close()

	client, err := ethclient.Dial(srv.URL)
	require.NoError(t, err)
	defer client.Close()

	l, err := New(&clientConnection{backend: client}, testContract,
		Options{CallTimeout: time.Second, TxTimeout: time.Second}, zaptest.NewLogger(t))
	require.NoError(t, err)

	_, err = l.ReadTicket(context.Background(), "1", "1")
	require.ErrorIs(t, err, ErrLedgerUnavailable)
	assert.NotErrorIs(t, err, ErrLedgerRejected)
	assert.Contains(t, err.Error(), "daily request limit exceeded")
}
