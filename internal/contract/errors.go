package contract

import (
	"errors"
	"fmt"

	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoSession        = errors.New("no wallet session")
	ErrReverted         = errors.New("transaction reverted")
	ErrGasLimitExceeded = errors.New("transaction exceeded the gas limit")
)

// ReadError is a failed contract read.
type ReadError struct {
	Method string
	Err    error
}

func (e *ReadError) Error() string { return fmt.Sprintf("read %s: %v", e.Method, e.Err) }
func (e *ReadError) Unwrap() error { return e.Err }

// WriteError is a rejected, reverted or out-of-gas wave transaction.
// TxHash is zero when the transaction was never sent.
type WriteError struct {
	TxHash common.Hash
	Err    error
}

func (e *WriteError) Error() string {
	if e.TxHash == (common.Hash{}) {
		return fmt.Sprintf("submit wave: %v", e.Err)
	}
	return fmt.Sprintf("submit wave %s: %v", e.TxHash.Hex(), e.Err)
}

func (e *WriteError) Unwrap() error { return e.Err }

// SubscriptionError is a failed or dropped NewWave stream.
type SubscriptionError struct {
	ID  string
	Err error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription %s: %v", e.ID, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }
