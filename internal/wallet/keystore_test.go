package wallet

import (
	"context"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/accounts"
	"github.com/ethereum/go-ethereum/accounts/keystore"
	"github.com/ethereum/go-ethereum/common"
	"github.com/ethereum/go-ethereum/core/types"
	"github.com/stretchr/testify/require"
)

var testChainID = big.NewInt(1337)

func newTestKeystore(t *testing.T, passphrases ...string) (*keystore.KeyStore, []accounts.Account) {
	t.Helper()
	ks := keystore.NewKeyStore(t.TempDir(), keystore.LightScryptN, keystore.LightScryptP)
	var accs []accounts.Account
	for _, pw := range passphrases {
		acct, err := ks.NewAccount(pw)
		require.NoError(t, err)
		accs = append(accs, acct)
	}
	return ks, accs
}

func signWith(t *testing.T, sess *Session) (*types.Transaction, error) {
	t.Helper()
	tx := types.NewTx(&types.LegacyTx{Nonce: 1, GasPrice: big.NewInt(1), Gas: 21000, To: &common.Address{}, Value: big.NewInt(0)})
	opts := sess.TransactOpts(context.Background())
	return opts.Signer(sess.Address, tx)
}

func TestKeystoreConnect_UnlocksAndSigns(t *testing.T) {
	ks, accs := newTestKeystore(t, "pw")
	p := NewKeystoreProviderFrom(ks, testChainID)

	var asked string
	pr := &mockPrompter{SecretFunc: func(_ context.Context, title string) (string, error) {
		asked = title
		return "pw", nil
	}}
	sess, err := p.Connect(context.Background(), pr)
	require.NoError(t, err)
	require.Equal(t, accs[0].Address, sess.Address)
	require.Equal(t, ProviderKeystore, sess.ProviderID)
	require.Contains(t, asked, accs[0].Address.Hex())

	signed, err := signWith(t, sess)
	require.NoError(t, err)
	from, err := types.Sender(types.LatestSignerForChainID(testChainID), signed)
	require.NoError(t, err)
	require.Equal(t, accs[0].Address, from)

	p.Release(sess)
	_, err = signWith(t, sess)
	require.Error(t, err)
}

func TestKeystoreConnect_WrongPassphrase(t *testing.T) {
	ks, _ := newTestKeystore(t, "pw")
	p := NewKeystoreProviderFrom(ks, testChainID)

	pr := &mockPrompter{SecretFunc: func(context.Context, string) (string, error) { return "nope", nil }}
	_, err := p.Connect(context.Background(), pr)
	require.Error(t, err)
}

func TestKeystoreConnect_Empty(t *testing.T) {
	ks, _ := newTestKeystore(t)
	p := NewKeystoreProviderFrom(ks, testChainID)

	_, err := p.Connect(context.Background(), &mockPrompter{})
	require.ErrorIs(t, err, ErrNoProvider)
}

func TestKeystoreConnect_ChoosesAmongAccounts(t *testing.T) {
	ks, accs := newTestKeystore(t, "a", "b")
	p := NewKeystoreProviderFrom(ks, testChainID)

	pr := &mockPrompter{
		SelectFunc: func(_ context.Context, _ string, options []Option) (string, error) {
			require.Len(t, options, 2)
			return accs[1].Address.Hex(), nil
		},
		SecretFunc: func(context.Context, string) (string, error) { return "b", nil },
	}
	sess, err := p.Connect(context.Background(), pr)
	require.NoError(t, err)
	require.Equal(t, accs[1].Address, sess.Address)
}

func TestKeystoreConnect_CancelledPassphrase(t *testing.T) {
	ks, _ := newTestKeystore(t, "pw")
	p := NewKeystoreProviderFrom(ks, testChainID)

	pr := &mockPrompter{SecretFunc: func(context.Context, string) (string, error) { return "", ErrCancelled }}
	_, err := p.Connect(context.Background(), pr)
	require.ErrorIs(t, err, ErrCancelled)
}
