package portal

import (
	"context"

	"github.com/comigor/waveportal-go/internal/contract"
	"github.com/comigor/waveportal-go/internal/wallet"
)

// event is anything posted to the controller loop. Results of calls made
// outside the loop carry the epoch they started in; a disconnect starts a
// new epoch and makes older results stale.
type event interface{ isEvent() }

type connectRequested struct{}

type connectFinished struct {
	epoch   uint64
	sess    *wallet.Session
	err     error
	listing contract.Listing
	readErr error
}

type subscribed struct {
	epoch uint64
	scope context.Context
	sub   Subscription
	err   error
}

type messageArrived struct {
	epoch uint64
	msg   contract.Message
}

type draftChanged struct{ text string }

// sendRequested submits the draft, or text when it is set. reply, when set,
// learns whether the submission started.
type sendRequested struct {
	text  *string
	reply chan<- error
}

type submitFinished struct {
	epoch uint64
	text  string
	rcpt  contract.Receipt
	err   error
}

type disconnectRequested struct{}

func (connectRequested) isEvent()    {}
func (connectFinished) isEvent()     {}
func (subscribed) isEvent()          {}
func (messageArrived) isEvent()      {}
func (draftChanged) isEvent()        {}
func (sendRequested) isEvent()       {}
func (submitFinished) isEvent()      {}
func (disconnectRequested) isEvent() {}
