package wallet

import (
	"context"
	"fmt"
	"math/big"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/abi/bind"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/samber/lo"
)

const ProviderKeystore = "keystore"

// KeystoreProvider signs with accounts of an encrypted go-ethereum keystore.
type KeystoreProvider struct {
	ks      *keystore.KeyStore
	chainID *big.Int
}

// NewKeystoreProvider opens (or creates) the keystore directory dir.
func NewKeystoreProvider(dir string, chainID *big.Int) *KeystoreProvider {
	return NewKeystoreProviderFrom(keystore.NewKeyStore(dir, keystore.StandardScryptN, keystore.StandardScryptP), chainID)
}

// NewKeystoreProviderFrom wraps an already opened keystore.
func NewKeystoreProviderFrom(ks *keystore.KeyStore, chainID *big.Int) *KeystoreProvider {
	return &KeystoreProvider{ks: ks, chainID: chainID}
}

func (p *KeystoreProvider) ID() string { return ProviderKeystore }

func (p *KeystoreProvider) Display() Display {
	return Display{Name: "Keystore", Description: "local encrypted key files"}
}

// Connect picks an account (asking when there are several) and unlocks it.
func (p *KeystoreProvider) Connect(ctx context.Context, pr Prompter) (*Session, error) {
	accs := p.ks.Accounts()
	if len(accs) == 0 {
		return nil, fmt.Errorf("keystore has no accounts: %w", ErrNoProvider)
	}

	acct := accs[0]
	if len(accs) > 1 {
		options := lo.Map(accs, func(a accounts.Account, _ int) Option {
			return Option{Label: a.Address.Hex(), Value: a.Address.Hex()}
		})
		choice, err := pr.Select(ctx, "Choose an account", options)
		if err != nil {
			return nil, err
		}
		acct = accounts.Account{Address: common.HexToAddress(choice)}
	}
	return p.unlock(ctx, pr, acct, ProviderKeystore)
}

// ConnectAccount unlocks the keystore account holding addr.
func (p *KeystoreProvider) ConnectAccount(ctx context.Context, pr Prompter, addr common.Address, providerID string) (*Session, error) {
	if !p.ks.HasAddress(addr) {
		return nil, fmt.Errorf("no keystore account for %s: %w", addr.Hex(), ErrNoProvider)
	}
	return p.unlock(ctx, pr, accounts.Account{Address: addr}, providerID)
}

func (p *KeystoreProvider) unlock(ctx context.Context, pr Prompter, acct accounts.Account, providerID string) (*Session, error) {
	found, err := p.ks.Find(acct)
	if err != nil {
		return nil, fmt.Errorf("find account %s: %w", acct.Address.Hex(), err)
	}
	acct = found
	pass, err := pr.Secret(ctx, "Passphrase for "+acct.Address.Hex())
	if err != nil {
		return nil, err
	}
	if err := p.ks.Unlock(acct, pass); err != nil {
		return nil, fmt.Errorf("unlock %s: %w", acct.Address.Hex(), err)
	}

	opts, err := bind.NewKeyStoreTransactorWithChainID(p.ks, acct, p.chainID)
	if err != nil {
		return nil, fmt.Errorf("keystore transactor: %w", err)
	}
	return NewSession(providerID, acct.Address, p.chainID, opts.Signer), nil
}

// Release locks the session's account again.
func (p *KeystoreProvider) Release(s *Session) {
	_ = p.ks.Lock(s.Address)
}
