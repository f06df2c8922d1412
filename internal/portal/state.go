package portal

import (
	"context"

	"github.com/qmuntal/stateless"

	"github.com/comigor/waveportal-go/internal/logger"
	"github.com/comigor/waveportal-go/internal/metrics"
)

// State is a view state.
type State string

const (
	StateDisconnected          State = "Disconnected"
	StateConnecting            State = "Connecting"
	StateConnectedEmpty        State = "ConnectedNoMessages"
	StateConnectedWithMessages State = "ConnectedWithMessages"
	StateSubmitting            State = "Submitting"

	// StateOnline is the superstate of every state holding a session and a
	// live subscription. The machine is never in it directly.
	StateOnline State = "Online"
)

// Online reports whether s holds a wallet session.
func (s State) Online() bool {
	switch s {
	case StateConnectedEmpty, StateConnectedWithMessages, StateSubmitting:
		return true
	}
	return false
}

type trigger string

const (
	triggerConnect          trigger = "Connect"
	triggerConnectSucceeded trigger = "ConnectSucceeded"
	triggerConnectFailed    trigger = "ConnectFailed"
	triggerMessageArrived   trigger = "MessageArrived"
	triggerSend             trigger = "Send"
	triggerSubmitConfirmed  trigger = "SubmitConfirmed"
	triggerSubmitFailed     trigger = "SubmitFailed"
	triggerDisconnect       trigger = "Disconnect"
)

func (c *Controller) newMachine() *stateless.StateMachine {
	fsm := stateless.NewStateMachine(StateDisconnected)

	fsm.Configure(StateDisconnected).
		Permit(triggerConnect, StateConnecting).
		Ignore(triggerDisconnect)

	fsm.Configure(StateConnecting).
		Permit(triggerConnectSucceeded, StateConnectedEmpty, c.listEmpty).
		Permit(triggerConnectSucceeded, StateConnectedWithMessages, c.listFilled).
		Permit(triggerConnectFailed, StateDisconnected).
		Permit(triggerDisconnect, StateDisconnected)

	fsm.Configure(StateOnline).
		OnEntry(c.acquireSubscription).
		OnExit(c.releaseSubscription).
		Permit(triggerDisconnect, StateDisconnected)

	fsm.Configure(StateConnectedEmpty).
		SubstateOf(StateOnline).
		Permit(triggerSend, StateSubmitting).
		Permit(triggerMessageArrived, StateConnectedWithMessages)

	fsm.Configure(StateConnectedWithMessages).
		SubstateOf(StateOnline).
		Permit(triggerSend, StateSubmitting).
		Ignore(triggerMessageArrived)

	fsm.Configure(StateSubmitting).
		SubstateOf(StateOnline).
		Permit(triggerSubmitConfirmed, StateConnectedEmpty, c.listEmpty).
		Permit(triggerSubmitConfirmed, StateConnectedWithMessages, c.listFilled).
		Permit(triggerSubmitFailed, StateConnectedEmpty, c.listEmpty).
		Permit(triggerSubmitFailed, StateConnectedWithMessages, c.listFilled).
		Ignore(triggerMessageArrived)

	fsm.OnTransitioned(func(_ context.Context, t stateless.Transition) {
		metrics.Transitions.WithLabelValues(string(t.Destination.(State))).Inc()
		logger.L.Debug("view state changed", "from", t.Source, "to", t.Destination, "trigger", t.Trigger)
	})
	return fsm
}

func (c *Controller) listEmpty(context.Context, ...any) bool  { return len(c.messages) == 0 }
func (c *Controller) listFilled(context.Context, ...any) bool { return len(c.messages) > 0 }
