package session

import (
	"context"
	"crypto/ecdsa"
	"fmt"
	"math/big"
	"strings"
	"sync"

	"blocktix_gateway/internal/config"
	"blocktix_gateway/internal/ledger"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/crypto"
	"github.com/ethereum/go-ethereum/ethclient"
	"go.uber.org/zap"
)

// Backend is the RPC surface of a session; *ethclient.Client satisfies it.
type Backend interface {
	ledger.Backend
	ChainID(ctx context.Context) (*big.Int, error)
	BalanceAt(ctx context.Context, account common.Address, blockNumber *big.Int) (*big.Int, error)
}

// Info describes the active connection as shown to operators.
type Info struct {
	Address        string `json:"address,omitempty"`
	ChainID        int64  `json:"chain_id"`
	RequiredChain  int64  `json:"required_chain_id"`
	Balance        string `json:"balance,omitempty"`
	IsCorrectChain bool   `json:"is_correct_chain"`
	ReadOnly       bool   `json:"read_only"`
}

// Session is the single connection context of the process. It is created once
// at start-up and handed to everything that talks to the ledger.
type Session struct {
	backend  Backend
	key      *ecdsa.PrivateKey
	address  common.Address
	required *big.Int
	logger   *zap.Logger

	mu      sync.RWMutex
	chainID *big.Int
	opts    *bind.TransactOpts

	closer func()
}

// Connect dials the configured RPC endpoint and builds the session.
func Connect(ctx context.Context, cfg config.LedgerConfig, logger *zap.Logger) (*Session, error) {
	client, err := ethclient.DialContext(ctx, cfg.RPCURL)
	if err != nil {
		return nil, fmt.Errorf("%w: failed to dial %s: %v", ledger.ErrLedgerUnavailable, cfg.RPCURL, err)
	}

	s, err := New(ctx, client, cfg, logger)
	if err != nil {
		client.Close()
		return nil, err
	}
	s.closer = client.Close
	return s, nil
}

// New builds a session on top of an existing backend.
func New(ctx context.Context, backend Backend, cfg config.LedgerConfig, logger *zap.Logger) (*Session, error) {
	s := &Session{
		backend:  backend,
		required: big.NewInt(cfg.ChainID),
		logger:   logger,
	}

	if cfg.PrivateKey != "" {
		key, err := crypto.HexToECDSA(strings.TrimPrefix(cfg.PrivateKey, "0x"))
		if err != nil {
			return nil, fmt.Errorf("failed to parse private key: %w", err)
		}
		s.key = key
		s.address = crypto.PubkeyToAddress(key.PublicKey)
	}

	if err := s.Refresh(ctx); err != nil {
		return nil, err
	}

	logger.Info("Ledger session established",
		zap.String("address", s.addressHex()),
		zap.Int64("chain_id", s.currentChain().Int64()),
		zap.Bool("read_only", s.key == nil))

	return s, nil
}

// Refresh re-reads the chain id from the backend and rebuilds the signer for it.
func (s *Session) Refresh(ctx context.Context) error {
	chainID, err := s.backend.ChainID(ctx)
	if err != nil {
		return fmt.Errorf("%w: failed to get chain id: %v", ledger.ErrLedgerUnavailable, err)
	}

	var opts *bind.TransactOpts
	if s.key != nil {
		opts, err = bind.NewKeyedTransactorWithChainID(s.key, chainID)
		if err != nil {
			return fmt.Errorf("failed to create transactor: %w", err)
		}
	}

	s.mu.Lock()
	s.chainID = chainID
	s.opts = opts
	s.mu.Unlock()

	if chainID.Cmp(s.required) != 0 {
		s.logger.Warn("Connected to unexpected network",
			zap.String("chain_id", chainID.String()),
			zap.String("required_chain_id", s.required.String()))
	}
	return nil
}

func (s *Session) Backend() ledger.Backend {
	return s.backend
}

// Transactor returns signing options for the session account. Writes are
// refused when no key is loaded or the node is on another network.
func (s *Session) Transactor() (*bind.TransactOpts, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	if s.opts == nil {
		return nil, ledger.ErrWalletNotConnected
	}
	if s.chainID.Cmp(s.required) != 0 {
		return nil, fmt.Errorf("wrong network: connected to chain %s, switch to chain %s", s.chainID, s.required)
	}
	return s.opts, nil
}

func (s *Session) Info(ctx context.Context) (Info, error) {
	chainID := s.currentChain()
	info := Info{
		ChainID:        chainID.Int64(),
		RequiredChain:  s.required.Int64(),
		IsCorrectChain: chainID.Cmp(s.required) == 0,
		ReadOnly:       s.key == nil,
	}
	if s.key == nil {
		return info, nil
	}

	info.Address = s.address.Hex()
	balance, err := s.backend.BalanceAt(ctx, s.address, nil)
	if err != nil {
		s.logger.Error("Failed to get balance", zap.Error(err), zap.String("address", info.Address))
		return info, fmt.Errorf("%w: failed to get balance: %v", ledger.ErrLedgerUnavailable, err)
	}
	info.Balance = ledger.FormatEther(balance)
	return info, nil
}

// Address is the hex address of the session account, empty when read-only.
func (s *Session) Address() string {
	if s.key == nil {
		return ""
	}
	return s.address.Hex()
}

func (s *Session) Close() {
	if s.closer != nil {
		s.closer()
	}
}

func (s *Session) currentChain() *big.Int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return new(big.Int).Set(s.chainID)
}

func (s *Session) addressHex() string {
	if a := s.Address(); a != "" {
		return a
	}
	return "read-only"
}
