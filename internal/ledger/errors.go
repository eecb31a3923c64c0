package ledger

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/rpc"
)

var (
	// ErrLedgerUnavailable covers transport failures: dial errors, timeouts, dropped connections.
	ErrLedgerUnavailable = errors.New("ledger unavailable")
	// ErrLedgerRejected means the ledger answered but refused the call (revert, funds, wrong network).
	ErrLedgerRejected = errors.New("ledger rejected")
	// ErrNotFound means the queried id has no ledger record.
	ErrNotFound = errors.New("not found")

	ErrContractNotConfigured = errors.New("contract address not configured")
	ErrWalletNotConnected    = errors.New("wallet not connected")
)

var notFoundReasons = []string{
	"does not exist",
	"nonexistent",
	"invalid event",
	"invalid token",
}

var rejectedReasons = []string{
	"execution reverted",
	"insufficient funds",
	"nonce too low",
	"replacement transaction underpriced",
	"already known",
	"gas required exceeds",
	"intrinsic gas too low",
	"invalid sender",
	"transaction reverted",
}

// revertErrorCode is the JSON-RPC code nodes use for execution reverts.
const revertErrorCode = 3

// isRevert reports whether a node error carries a revert. Every JSON-RPC error
// implements rpc.DataError, so only a non-nil payload or the revert code count.
func isRevert(err error) bool {
	var rpcErr rpc.Error
	if errors.As(err, &rpcErr) && rpcErr.ErrorCode() == revertErrorCode {
		return true
	}
	var dataErr rpc.DataError
	return errors.As(err, &dataErr) && dataErr.ErrorData() != nil
}

// classify maps a go-ethereum error onto the ledger error taxonomy, keeping the
// underlying reason in the message.
func classify(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrLedgerUnavailable) || errors.Is(err, ErrLedgerRejected) || errors.Is(err, ErrNotFound) {
		return err
	}

	msg := strings.ToLower(err.Error())

	for _, reason := range notFoundReasons {
		if strings.Contains(msg, reason) {
			return fmt.Errorf("%w: %v", ErrNotFound, err)
		}
	}

	if errors.Is(err, context.DeadlineExceeded) || errors.Is(err, context.Canceled) {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	if errors.Is(err, bind.ErrNoCode) {
		return fmt.Errorf("%w: no contract code at address, check the network: %v", ErrLedgerRejected, err)
	}

	if isRevert(err) {
		return fmt.Errorf("%w: %v", ErrLedgerRejected, err)
	}

	for _, reason := range rejectedReasons {
		if strings.Contains(msg, reason) {
			return fmt.Errorf("%w: %v", ErrLedgerRejected, err)
		}
	}

	var netErr net.Error
	if errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
	}

	return fmt.Errorf("%w: %v", ErrLedgerUnavailable, err)
}
