// Package portal holds the view state of the wave portal: the wallet
// session, the wave list, the draft and the live subscription, driven by a
// single event loop.
package portal

import (
	"context"
	"errors"
	"sync"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/qmuntal/stateless"

	"github.com/comigor/waveportal-go/internal/contract"
	"github.com/comigor/waveportal-go/internal/logger"
	"github.com/comigor/waveportal-go/internal/wallet"
)

var (
	// ErrNotConnected is recorded when a wave is sent without a session.
	ErrNotConnected = errors.New("wallet not connected")
	// ErrSubmitInFlight is returned by Wave while another wave is mining.
	ErrSubmitInFlight = errors.New("a wave is already being submitted")
	// ErrStopped is returned by Wave once Run has returned.
	ErrStopped = errors.New("portal stopped")
)

// View is a snapshot of the portal, safe to keep and read from any goroutine.
type View struct {
	State    State
	Address  common.Address
	Messages []contract.Message
	Draft    string
	// LastTx is the hash of the last confirmed wave.
	LastTx    common.Hash
	LastError error
}

// Connected reports whether a wallet session is held.
func (v View) Connected() bool { return v.State.Online() }

// Options tunes the controller's calls.
type Options struct {
	// ReadTimeout bounds each contract read.
	ReadTimeout time.Duration
	// ConfirmTimeout bounds the wait for a wave receipt.
	ConfirmTimeout time.Duration
}

func (o Options) withDefaults() Options {
	if o.ReadTimeout <= 0 {
		o.ReadTimeout = 30 * time.Second
	}
	if o.ConfirmTimeout <= 0 {
		o.ConfirmTimeout = 5 * time.Minute
	}
	return o
}

// Controller owns the view state. Everything it holds is touched only by the
// Run loop; callers interact through the request methods and read View or
// Updates.
type Controller struct {
	wallet  SessionProvider
	gateway Gateway
	opts    Options

	events  chan event
	updates chan View
	view    atomic.Pointer[View]
	stopped chan struct{}
	ops     sync.WaitGroup

	// loop state
	fsm       *stateless.StateMachine
	runCtx    context.Context
	epoch     uint64
	epochCtx  context.Context
	endEpoch  context.CancelFunc
	sess      *wallet.Session
	listBlock uint64
	messages  []contract.Message
	seen      map[contract.EventID]struct{}
	draft     string
	lastTx    common.Hash
	lastErr   error

	scope    context.Context
	endScope context.CancelFunc
	sub      Subscription
}

// New creates a controller. Nothing happens until Run is called.
func New(w SessionProvider, g Gateway, opts Options) *Controller {
	c := &Controller{
		wallet:  w,
		gateway: g,
		opts:    opts.withDefaults(),
		events:  make(chan event, 64),
		updates: make(chan View, 1),
		stopped: make(chan struct{}),
		seen:    make(map[contract.EventID]struct{}),
	}
	c.fsm = c.newMachine()
	c.view.Store(&View{State: StateDisconnected})
	return c
}

// View returns the latest published snapshot.
func (c *Controller) View() View { return *c.view.Load() }

// Updates delivers snapshots as they change. Only the newest pending one is
// kept, so a slow reader skips intermediate views.
func (c *Controller) Updates() <-chan View { return c.updates }

// Connect asks the user to pick a wallet provider and connects through it.
func (c *Controller) Connect() { c.post(connectRequested{}) }

// Disconnect drops the session and the cached provider.
func (c *Controller) Disconnect() { c.post(disconnectRequested{}) }

// SetDraft replaces the text of the next wave.
func (c *Controller) SetDraft(text string) { c.post(draftChanged{text: text}) }

// Send submits the current draft.
func (c *Controller) Send() { c.post(sendRequested{}) }

// Wave makes text the draft and submits it in one step. It returns once the
// submission has started, or ErrNotConnected or ErrSubmitInFlight when it
// could not start. The outcome shows up in later views.
func (c *Controller) Wave(ctx context.Context, text string) error {
	reply := make(chan error, 1)
	if !c.post(sendRequested{text: &text, reply: reply}) {
		return ErrStopped
	}
	select {
	case err := <-reply:
		return err
	case <-ctx.Done():
		return ctx.Err()
	case <-c.stopped:
		return ErrStopped
	}
}

// Run drives the controller until ctx is cancelled. When a provider is
// cached it reconnects to it first. On return the subscription is released
// and every pending call has finished.
func (c *Controller) Run(ctx context.Context) error {
	c.runCtx = ctx
	c.epochCtx, c.endEpoch = context.WithCancel(ctx)
	c.publish()

	if c.wallet.HasCachedSession() {
		logger.L.Info("reconnecting cached wallet session")
		c.startConnect(true)
		c.publish()
	}

	for {
		select {
		case <-ctx.Done():
			c.teardown()
			return nil
		case ev := <-c.events:
			c.handle(ev)
			c.publish()
		}
	}
}

func (c *Controller) post(ev event) bool {
	select {
	case <-c.stopped:
		return false
	default:
	}
	select {
	case c.events <- ev:
		return true
	case <-c.stopped:
		return false
	}
}

// goOp runs fn outside the loop, tied to the current epoch.
func (c *Controller) goOp(fn func(ctx context.Context, epoch uint64)) {
	ctx, epoch := c.epochCtx, c.epoch
	c.ops.Add(1)
	go func() {
		defer c.ops.Done()
		fn(ctx, epoch)
	}()
}

func (c *Controller) handle(ev event) {
	switch ev := ev.(type) {
	case connectRequested:
		if c.state() != StateDisconnected {
			logger.L.Debug("connect ignored", "state", c.state())
			return
		}
		c.startConnect(false)

	case connectFinished:
		if ev.epoch != c.epoch {
			return
		}
		c.finishConnect(ev)

	case subscribed:
		c.adoptSubscription(ev)

	case messageArrived:
		if ev.epoch != c.epoch || !c.state().Online() {
			return
		}
		if c.appendMessage(ev.msg) {
			c.fire(triggerMessageArrived)
		}

	case draftChanged:
		c.draft = ev.text

	case sendRequested:
		err := c.startSubmit(ev.text)
		if ev.reply != nil {
			ev.reply <- err
		}

	case submitFinished:
		if ev.epoch != c.epoch || c.state() != StateSubmitting {
			return
		}
		c.finishSubmit(ev)

	case disconnectRequested:
		c.disconnect()
	}
}

func (c *Controller) startConnect(silent bool) {
	c.lastErr = nil
	c.fire(triggerConnect)

	c.goOp(func(ctx context.Context, epoch uint64) {
		var (
			sess *wallet.Session
			err  error
		)
		if silent {
			sess, err = c.wallet.Reconnect(ctx)
		} else {
			sess, err = c.wallet.Connect(ctx)
		}
		res := connectFinished{epoch: epoch, sess: sess, err: err}
		if err == nil {
			readCtx, cancel := context.WithTimeout(ctx, c.opts.ReadTimeout)
			res.listing, res.readErr = c.gateway.ListMessages(readCtx, sess)
			cancel()
		}
		c.post(res)
	})
}

func (c *Controller) finishConnect(ev connectFinished) {
	if ev.err != nil {
		logger.L.Error("wallet connection failed", "error", ev.err)
		c.lastErr = ev.err
		c.fire(triggerConnectFailed)
		return
	}

	c.sess = ev.sess
	c.messages = nil
	c.listBlock = 0
	clear(c.seen)
	if ev.readErr != nil {
		// stay connected with an empty list; the subscription starts at the head
		logger.L.Error("reading waves failed", "error", ev.readErr)
		c.lastErr = ev.readErr
	} else {
		c.messages = append(c.messages, ev.listing.Messages...)
		c.listBlock = ev.listing.Block
	}
	logger.L.Info("wallet connected", "address", ev.sess.Address.Hex(), "provider", ev.sess.ProviderID, "waves", len(c.messages))
	c.fire(triggerConnectSucceeded)
}

// acquireSubscription runs on entry to StateOnline.
func (c *Controller) acquireSubscription(context.Context, ...any) error {
	c.scope, c.endScope = context.WithCancel(c.epochCtx)
	scope, sess := c.scope, c.sess
	var from uint64
	if c.listBlock > 0 {
		from = c.listBlock + 1
	}

	c.goOp(func(_ context.Context, epoch uint64) {
		onNew := func(m contract.Message) {
			select {
			case c.events <- messageArrived{epoch: epoch, msg: m}:
			case <-scope.Done():
			case <-c.stopped:
			}
		}
		sub, err := c.gateway.Subscribe(scope, sess, from, onNew)
		if !c.post(subscribed{epoch: epoch, scope: scope, sub: sub, err: err}) && sub != nil {
			sub.Unsubscribe()
		}
	})
	return nil
}

func (c *Controller) adoptSubscription(ev subscribed) {
	if ev.err != nil {
		if ev.epoch == c.epoch && ev.scope == c.scope {
			logger.L.Error("subscribing to waves failed", "error", ev.err)
			c.lastErr = ev.err
		}
		return
	}
	if ev.epoch != c.epoch || ev.scope != c.scope || ev.scope.Err() != nil {
		ev.sub.Unsubscribe()
		return
	}
	c.sub = ev.sub
}

// releaseSubscription runs on exit from StateOnline. The scope is cancelled
// first so a callback blocked on the loop returns before Unsubscribe waits.
func (c *Controller) releaseSubscription(context.Context, ...any) error {
	if c.endScope != nil {
		c.endScope()
	}
	if c.sub != nil {
		c.sub.Unsubscribe()
	}
	c.scope, c.endScope, c.sub = nil, nil, nil
	return nil
}

func (c *Controller) startSubmit(text *string) error {
	switch st := c.state(); {
	case st == StateSubmitting:
		logger.L.Debug("send ignored", "state", st)
		return ErrSubmitInFlight
	case !st.Online():
		logger.L.Debug("send ignored", "state", st)
		c.lastErr = &contract.WriteError{Err: ErrNotConnected}
		return c.lastErr
	}
	if text != nil {
		c.draft = *text
	}
	c.lastErr = nil
	c.fire(triggerSend)

	sess, submitted := c.sess, c.draft
	c.goOp(func(ctx context.Context, epoch uint64) {
		c.logTotal(ctx, sess, "waves before submit")

		submitCtx, cancel := context.WithTimeout(ctx, c.opts.ConfirmTimeout)
		rcpt, err := c.gateway.SubmitMessage(submitCtx, sess, submitted)
		cancel()
		if err == nil {
			c.logTotal(ctx, sess, "waves after submit")
		}
		c.post(submitFinished{epoch: epoch, text: submitted, rcpt: rcpt, err: err})
	})
	return nil
}

func (c *Controller) logTotal(ctx context.Context, sess *wallet.Session, msg string) {
	ctx, cancel := context.WithTimeout(ctx, c.opts.ReadTimeout)
	defer cancel()
	total, err := c.gateway.TotalMessages(ctx, sess)
	if err != nil {
		logger.L.Warn("reading wave total failed", "error", err)
		return
	}
	logger.L.Info(msg, "total", total)
}

func (c *Controller) finishSubmit(ev submitFinished) {
	if ev.err != nil {
		logger.L.Error("wave failed", "error", ev.err)
		c.lastErr = ev.err
		c.fire(triggerSubmitFailed)
		return
	}
	// text typed while mining stays
	if c.draft == ev.text {
		c.draft = ""
	}
	c.lastTx = ev.rcpt.TxHash
	if ev.rcpt.Message != nil {
		c.appendMessage(*ev.rcpt.Message)
	}
	c.fire(triggerSubmitConfirmed)
}

// appendMessage adds m unless an event with the same identity is already
// shown. Messages without an event identity are always added.
func (c *Controller) appendMessage(m contract.Message) bool {
	if !m.Event.IsZero() {
		if _, dup := c.seen[m.Event]; dup {
			return false
		}
		c.seen[m.Event] = struct{}{}
	}
	c.messages = append(c.messages, m)
	return true
}

func (c *Controller) disconnect() {
	st := c.state()
	if st == StateDisconnected {
		return
	}
	c.fire(triggerDisconnect)
	c.wallet.Disconnect()
	c.endEpoch()
	c.epoch++
	c.epochCtx, c.endEpoch = context.WithCancel(c.runCtx)

	c.sess = nil
	c.messages = nil
	c.listBlock = 0
	clear(c.seen)
	c.lastErr = nil
	logger.L.Info("wallet disconnected", "from", st)
}

func (c *Controller) teardown() {
	if c.state().Online() {
		_ = c.releaseSubscription(context.Background())
	}
	c.endEpoch()
	close(c.stopped)
	c.ops.Wait()

	for {
		select {
		case ev := <-c.events:
			if s, ok := ev.(subscribed); ok && s.sub != nil {
				s.sub.Unsubscribe()
			}
		default:
			logger.L.Debug("view controller stopped")
			return
		}
	}
}

func (c *Controller) state() State {
	return c.fsm.MustState().(State)
}

func (c *Controller) fire(t trigger) {
	if err := c.fsm.FireCtx(c.runCtx, t); err != nil {
		logger.L.Warn("view transition rejected", "state", c.state(), "trigger", t, "error", err)
	}
}

func (c *Controller) publish() {
	v := View{
		State:     c.state(),
		Messages:  append([]contract.Message(nil), c.messages...),
		Draft:     c.draft,
		LastTx:    c.lastTx,
		LastError: c.lastErr,
	}
	if c.sess != nil && v.State.Online() {
		v.Address = c.sess.Address
	}
	c.view.Store(&v)

	select {
	case <-c.updates:
	default:
	}
	select {
	case c.updates <- v:
	default:
	}
}
