package contract

import (
	"context"
	"fmt"
	"sync"

	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/ethereum/go-ethereum/event"
	"github.com/google/uuid"

	"github.com/comigor/waveportal-go/internal/logger"
	"github.com/comigor/waveportal-go/internal/metrics"
)

// seenDepth is how many blocks behind the newest delivered event the
// duplicate filter keeps entries for.
const seenDepth = 128

// Subscription is a live NewWave stream. It is released by Unsubscribe or by
// cancelling the context it was created with.
type Subscription struct {
	id     string
	cancel context.CancelFunc
	done   chan struct{}
	once   sync.Once

	mu  sync.Mutex
	err error

	// owned by the run goroutine
	seen   map[EventID]uint64
	newest uint64
}

func newSubscription(cancel context.CancelFunc) *Subscription {
	return &Subscription{
		id:     uuid.NewString(),
		cancel: cancel,
		done:   make(chan struct{}),
		seen:   make(map[EventID]uint64),
	}
}

// ID identifies the subscription in logs.
func (s *Subscription) ID() string { return s.id }

// Done is closed once delivery has stopped for good.
func (s *Subscription) Done() <-chan struct{} { return s.done }

// Err returns the *SubscriptionError that ended the stream, if any.
func (s *Subscription) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.err
}

// Unsubscribe cancels the stream and waits for the delivery goroutine to
// exit. It must not be called from inside the callback.
func (s *Subscription) Unsubscribe() {
	s.once.Do(func() {
		s.cancel()
		<-s.done
		metrics.ActiveSubscriptions.Dec()
		logger.L.Info("unsubscribed from NewWave", "id", s.id)
	})
}

func (s *Subscription) run(ctx context.Context, g *Gateway, from uint64, logs chan types.Log, watch event.Subscription, onNew func(Message)) {
	defer close(s.done)
	defer watch.Unsubscribe()

	if from > 0 {
		if err := s.replay(ctx, g, from, onNew); err != nil && ctx.Err() == nil {
			s.fail(fmt.Errorf("replay from block %d: %w", from, err))
		}
	}

	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-watch.Err():
			if ok && err != nil {
				s.fail(err)
			}
			return
		case l := <-logs:
			s.deliver(ctx, g, l, onNew)
		}
	}
}

// replay delivers the events logged between from and the head.
func (s *Subscription) replay(ctx context.Context, g *Gateway, from uint64, onNew func(Message)) error {
	logs, sub, err := g.contract.FilterLogs(&bind.FilterOpts{Start: from, Context: ctx}, eventNewWave)
	if err != nil {
		return err
	}
	defer sub.Unsubscribe()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case l := <-logs:
			s.deliver(ctx, g, l, onNew)
		case err, ok := <-sub.Err():
			if ok && err != nil {
				return err
			}
			// the producer is done; pick up whatever is still buffered
			for {
				select {
				case l := <-logs:
					s.deliver(ctx, g, l, onNew)
				default:
					return nil
				}
			}
		}
	}
}

func (s *Subscription) deliver(ctx context.Context, g *Gateway, l types.Log, onNew func(Message)) {
	if l.Removed {
		return
	}
	id := EventID{TxHash: l.TxHash, Index: l.Index}
	if _, dup := s.seen[id]; dup {
		return
	}
	msg, err := g.decode(l)
	if err != nil {
		logger.L.Warn("skipping undecodable NewWave log", "tx", l.TxHash.Hex(), "index", l.Index, "error", err)
		return
	}
	s.remember(id, l.BlockNumber)

	if ctx.Err() != nil {
		return
	}
	metrics.Notifications.Inc()
	onNew(msg)
}

func (s *Subscription) remember(id EventID, block uint64) {
	s.seen[id] = block
	if block > s.newest {
		s.newest = block
	}
	if len(s.seen) <= 2*seenDepth || s.newest < seenDepth {
		return
	}
	for k, b := range s.seen {
		if b < s.newest-seenDepth {
			delete(s.seen, k)
		}
	}
}

func (s *Subscription) fail(err error) {
	serr := &SubscriptionError{ID: s.id, Err: err}
	metrics.SubscriptionErrors.Inc()
	logger.L.Error("NewWave subscription failed", "id", s.id, "error", err)

	s.mu.Lock()
	s.err = serr
	s.mu.Unlock()
}
