package contract

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/ethclient"
)

// Dial connects to the node at rawURL. A chainID of 0 is resolved from the node.
func Dial(ctx context.Context, rawURL string, chainID int64) (*ethclient.Client, *big.Int, error) {
	client, err := ethclient.DialContext(ctx, rawURL)
	if err != nil {
		return nil, nil, fmt.Errorf("dial %s: %w", rawURL, err)
	}
	if chainID > 0 {
		return client, big.NewInt(chainID), nil
	}
	id, err := client.ChainID(ctx)
	if err != nil {
		client.Close()
		return nil, nil, fmt.Errorf("chain id: %w", err)
	}
	return client, id, nil
}
