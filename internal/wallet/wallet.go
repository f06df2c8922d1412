// Package wallet connects the user to a signing wallet. A Modal keeps the
// registered providers and remembers the last successful one across restarts,
// so a later start can reconnect without asking again.
package wallet

import (
	"context"
	"errors"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
)

var (
	ErrNoProvider       = errors.New("no wallet provider available")
	ErrCancelled        = errors.New("cancelled by user")
	ErrNoCachedProvider = errors.New("no cached wallet provider")
	ErrDisconnected     = errors.New("disconnected while connecting")
)

// ConnectionError is returned by every failed connect. It unwraps to the cause.
type ConnectionError struct {
	Provider string
	Err      error
}

func (e *ConnectionError) Error() string {
	if e.Provider == "" {
		return fmt.Sprintf("wallet connection failed: %v", e.Err)
	}
	return fmt.Sprintf("wallet connection via %s failed: %v", e.Provider, e.Err)
}

func (e *ConnectionError) Unwrap() error { return e.Err }

// Session is a connected wallet: an address and the capability to sign for it.
type Session struct {
	ProviderID string
	Address    common.Address
	ChainID    *big.Int

	signer bind.SignerFn
}

// NewSession builds a session around signer.
func NewSession(providerID string, addr common.Address, chainID *big.Int, signer bind.SignerFn) *Session {
	return &Session{ProviderID: providerID, Address: addr, ChainID: chainID, signer: signer}
}

// CallOpts returns read options issued from the session's address.
func (s *Session) CallOpts(ctx context.Context) *bind.CallOpts {
	if s == nil {
		return &bind.CallOpts{Context: ctx}
	}
	return &bind.CallOpts{Context: ctx, From: s.Address}
}

// TransactOpts returns fresh transaction options signed by the session.
func (s *Session) TransactOpts(ctx context.Context) *bind.TransactOpts {
	return &bind.TransactOpts{Context: ctx, From: s.Address, Signer: s.signer}
}

// Display is what the selection prompt shows for a provider.
type Display struct {
	Name        string
	Description string
}

// Provider is one way of obtaining a Session.
type Provider interface {
	ID() string
	Display() Display
	Connect(ctx context.Context, p Prompter) (*Session, error)
}

// Option is one entry of a Select prompt.
type Option struct {
	Label string
	Value string
}

// Prompter asks the user for input during a connect. Implementations return
// ErrCancelled when the user aborts.
type Prompter interface {
	Select(ctx context.Context, title string, options []Option) (string, error)
	Secret(ctx context.Context, title string) (string, error)
	Input(ctx context.Context, title string) (string, error)
	Notify(ctx context.Context, message string)
}

// releaser is implemented by providers holding resources for a live session.
type releaser interface {
	Release(s *Session)
}
