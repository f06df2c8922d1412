package portal

import (
	"context"

	"github.com/comigor/waveportal-go/internal/contract"
	"github.com/comigor/waveportal-go/internal/wallet"
)

// SessionProvider is the wallet side of the portal. *wallet.Modal satisfies it.
type SessionProvider interface {
	HasCachedSession() bool
	Connect(ctx context.Context) (*wallet.Session, error)
	Reconnect(ctx context.Context) (*wallet.Session, error)
	Disconnect()
}

// Subscription is a live NewWave stream held while the portal is online.
type Subscription interface {
	Unsubscribe()
}

// Gateway is the contract side of the portal. Use FromContract to adapt a
// *contract.Gateway.
type Gateway interface {
	ListMessages(ctx context.Context, sess *wallet.Session) (contract.Listing, error)
	TotalMessages(ctx context.Context, sess *wallet.Session) (uint64, error)
	SubmitMessage(ctx context.Context, sess *wallet.Session, text string) (contract.Receipt, error)
	Subscribe(ctx context.Context, sess *wallet.Session, from uint64, onNew func(contract.Message)) (Subscription, error)
}

type contractGateway struct {
	*contract.Gateway
}

// FromContract adapts g to Gateway.
func FromContract(g *contract.Gateway) Gateway {
	return contractGateway{Gateway: g}
}

func (g contractGateway) Subscribe(ctx context.Context, sess *wallet.Session, from uint64, onNew func(contract.Message)) (Subscription, error) {
	sub, err := g.Gateway.Subscribe(ctx, sess, from, onNew)
	if err != nil {
		return nil, err
	}
	return sub, nil
}
