// Package contract is the gateway to the WavePortal contract: it reads the
// wave log, sends new waves and streams NewWave events.
package contract

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/samber/lo"

	"github.com/comigor/waveportal-go/internal/logger"
	"github.com/comigor/waveportal-go/internal/metrics"
	"github.com/comigor/waveportal-go/internal/wallet"
)

// EventID identifies a NewWave log. It is zero for messages obtained from
// getAllWaves, which carries no log position.
type EventID struct {
	TxHash common.Hash
	Index  uint
}

func (id EventID) IsZero() bool { return id == EventID{} }

// Message is one wave.
type Message struct {
	Sender common.Address
	SentAt time.Time
	Text   string
	Event  EventID
	Block  uint64
}

// Listing is the full wave list as of Block.
type Listing struct {
	Messages []Message
	Block    uint64
}

// Receipt describes a confirmed wave.
type Receipt struct {
	TxHash  common.Hash
	Block   uint64
	Message *Message
}

// Backend is the node connection the gateway needs. *ethclient.Client
// satisfies it.
type Backend interface {
	bind.ContractBackend
	bind.DeployBackend
	BlockNumber(ctx context.Context) (uint64, error)
}

// boundContract is the subset of *bind.BoundContract used here.
type boundContract interface {
	Call(opts *bind.CallOpts, results *[]interface{}, method string, params ...interface{}) error
	Transact(opts *bind.TransactOpts, method string, params ...interface{}) (*types.Transaction, error)
	FilterLogs(opts *bind.FilterOpts, name string, query ...[]interface{}) (chan types.Log, event.Subscription, error)
	WatchLogs(opts *bind.WatchOpts, name string, query ...[]interface{}) (chan types.Log, event.Subscription, error)
	UnpackLog(out interface{}, event string, log types.Log) error
}

type headReader interface {
	BlockNumber(ctx context.Context) (uint64, error)
}

// Gateway wraps the deployed WavePortal contract.
type Gateway struct {
	address   common.Address
	contract  boundContract
	chain     headReader
	waitMined func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error)
}

// New binds the gateway to the WavePortal contract through backend.
func New(backend Backend) *Gateway {
	bound := bind.NewBoundContract(Address, ABI, backend, backend, backend)
	return newGateway(Address, bound, backend, func(ctx context.Context, tx *types.Transaction) (*types.Receipt, error) {
		return bind.WaitMined(ctx, backend, tx)
	})
}

func newGateway(addr common.Address, c boundContract, chain headReader, waitMined func(context.Context, *types.Transaction) (*types.Receipt, error)) *Gateway {
	return &Gateway{address: addr, contract: c, chain: chain, waitMined: waitMined}
}

// wave mirrors the contract's Wave struct.
type wave struct {
	Waver     common.Address
	Message   string
	Timestamp *big.Int
}

// newWaveEvent mirrors the NewWave event.
type newWaveEvent struct {
	From      common.Address
	Timestamp *big.Int
	Message   string
}

// ListMessages reads every wave, pinned to the current head so a subscription
// from Listing.Block+1 continues exactly where the list ends.
func (g *Gateway) ListMessages(ctx context.Context, sess *wallet.Session) (listing Listing, err error) {
	defer func() { metrics.GatewayCalls.WithLabelValues("list", metrics.Result(err)).Inc() }()

	head, err := g.chain.BlockNumber(ctx)
	if err != nil {
		return Listing{}, &ReadError{Method: methodGetAllWaves, Err: fmt.Errorf("head block: %w", err)}
	}

	opts := sess.CallOpts(ctx)
	opts.BlockNumber = new(big.Int).SetUint64(head)
	var out []interface{}
	if err := g.contract.Call(opts, &out, methodGetAllWaves); err != nil {
		return Listing{}, &ReadError{Method: methodGetAllWaves, Err: err}
	}
	if len(out) == 0 {
		return Listing{}, &ReadError{Method: methodGetAllWaves, Err: errors.New("empty result")}
	}
	waves := *abi.ConvertType(out[0], new([]wave)).(*[]wave)

	listing = Listing{
		Block: head,
		Messages: lo.Map(waves, func(w wave, _ int) Message {
			return Message{Sender: w.Waver, SentAt: unixTime(w.Timestamp), Text: w.Message}
		}),
	}
	logger.L.Debug("waves listed", "count", len(listing.Messages), "block", head)
	return listing, nil
}

// TotalMessages reads the contract's wave counter.
func (g *Gateway) TotalMessages(ctx context.Context, sess *wallet.Session) (total uint64, err error) {
	defer func() { metrics.GatewayCalls.WithLabelValues("total", metrics.Result(err)).Inc() }()

	var out []interface{}
	if err := g.contract.Call(sess.CallOpts(ctx), &out, methodGetTotalWaves); err != nil {
		return 0, &ReadError{Method: methodGetTotalWaves, Err: err}
	}
	if len(out) == 0 {
		return 0, &ReadError{Method: methodGetTotalWaves, Err: errors.New("empty result")}
	}
	n := *abi.ConvertType(out[0], new(*big.Int)).(**big.Int)
	if n == nil || !n.IsUint64() {
		return 0, &ReadError{Method: methodGetTotalWaves, Err: fmt.Errorf("unexpected total %v", n)}
	}
	return n.Uint64(), nil
}

// SubmitMessage sends wave(text) with the fixed gas limit and blocks until
// the transaction is mined. Nothing is retried.
func (g *Gateway) SubmitMessage(ctx context.Context, sess *wallet.Session, text string) (rcpt Receipt, err error) {
	defer func() { metrics.GatewayCalls.WithLabelValues("submit", metrics.Result(err)).Inc() }()

	if sess == nil {
		return Receipt{}, &WriteError{Err: ErrNoSession}
	}
	opts := sess.TransactOpts(ctx)
	opts.GasLimit = GasLimit

	start := time.Now()
	tx, err := g.contract.Transact(opts, methodWave, text)
	if err != nil {
		return Receipt{}, &WriteError{Err: err}
	}
	logger.L.Info("mining", "tx", tx.Hash().Hex())

	receipt, err := g.waitMined(ctx, tx)
	if err != nil {
		return Receipt{}, &WriteError{TxHash: tx.Hash(), Err: fmt.Errorf("wait for receipt: %w", err)}
	}
	if receipt.Status != types.ReceiptStatusSuccessful {
		cause := ErrReverted
		if receipt.GasUsed >= tx.Gas() {
			cause = ErrGasLimitExceeded
		}
		return Receipt{}, &WriteError{TxHash: tx.Hash(), Err: cause}
	}
	metrics.SubmitDuration.Observe(time.Since(start).Seconds())

	rcpt = Receipt{TxHash: tx.Hash()}
	if receipt.BlockNumber != nil {
		rcpt.Block = receipt.BlockNumber.Uint64()
	}
	for _, l := range receipt.Logs {
		if l == nil {
			continue
		}
		if msg, err := g.decode(*l); err == nil {
			rcpt.Message = &msg
			break
		}
	}
	logger.L.Info("mined", "tx", tx.Hash().Hex(), "block", rcpt.Block, "gas_used", receipt.GasUsed)
	return rcpt, nil
}

// Subscribe streams NewWave events to onNew. With from > 0 the events
// between from and the head are replayed first. Every event is delivered
// once, in order; the returned handle stops delivery.
func (g *Gateway) Subscribe(ctx context.Context, sess *wallet.Session, from uint64, onNew func(Message)) (*Subscription, error) {
	ctx, cancel := context.WithCancel(ctx)
	logs, watch, err := g.contract.WatchLogs(&bind.WatchOpts{Context: ctx}, eventNewWave)
	if err != nil {
		cancel()
		metrics.SubscriptionErrors.Inc()
		return nil, &SubscriptionError{Err: err}
	}

	s := newSubscription(cancel)
	metrics.ActiveSubscriptions.Inc()
	fields := []any{"id", s.id, "from", from}
	if sess != nil {
		fields = append(fields, "address", sess.Address.Hex())
	}
	logger.L.Info("subscribed to NewWave", fields...)

	go s.run(ctx, g, from, logs, watch, onNew)
	return s, nil
}

// Unsubscribe stops s. No callback runs after it returns.
func (g *Gateway) Unsubscribe(s *Subscription) {
	if s != nil {
		s.Unsubscribe()
	}
}

func (g *Gateway) decode(l types.Log) (Message, error) {
	if l.Address != g.address {
		return Message{}, fmt.Errorf("log from %s", l.Address.Hex())
	}
	var ev newWaveEvent
	if err := g.contract.UnpackLog(&ev, eventNewWave, l); err != nil {
		return Message{}, err
	}
	return Message{
		Sender: ev.From,
		SentAt: unixTime(ev.Timestamp),
		Text:   ev.Message,
		Event:  EventID{TxHash: l.TxHash, Index: l.Index},
		Block:  l.BlockNumber,
	}, nil
}

func unixTime(ts *big.Int) time.Time {
	if ts == nil {
		return time.Time{}
	}
	return time.Unix(ts.Int64(), 0)
}
