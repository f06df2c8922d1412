package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

const sampleConfig = `
node:
  rpc_url: ws://node.example:8546
  chain_id: 5
  read_timeout: 10s
wallet:
  keystore_dir: /tmp/ks
  provider: keystore
server:
  host: 0.0.0.0
  port: "9090"
log:
  level: debug
`

// TestLoad_FromEnvPath verifies that Load reads the file named by CONFIG_PATH.
func TestLoad_FromEnvPath(t *testing.T) {
	tmp, err := os.CreateTemp(t.TempDir(), "cfg-*.yaml")
	if err != nil {
		t.Fatalf("temp file: %v", err)
	}
	if _, err := tmp.WriteString(sampleConfig); err != nil {
		t.Fatalf("write: %v", err)
	}
	tmp.Close()

	t.Setenv("CONFIG_PATH", tmp.Name())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "ws://node.example:8546", cfg.Node.RPCURL)
	require.EqualValues(t, 5, cfg.Node.ChainID)
	require.Equal(t, 10*time.Second, cfg.Node.ReadTimeout)
	require.Equal(t, "/tmp/ks", cfg.Wallet.KeystoreDir)
	require.Equal(t, "keystore", cfg.Wallet.Provider)
	require.Equal(t, "9090", cfg.Server.Port)
	require.Equal(t, "debug", cfg.Log.Level)

	// untouched keys keep their defaults
	require.Equal(t, 5*time.Minute, cfg.Node.ConfirmTimeout)
	require.Equal(t, "waveportal.db", cfg.Wallet.SessionDB)
	require.Equal(t, "https://auth.unstoppabledomains.com/oauth2/token", cfg.UAuth.TokenURL)
}

func TestLoad_DefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", "")
	t.Chdir(t.TempDir())

	cfg, err := Load("")
	require.NoError(t, err)
	require.Equal(t, "ws://127.0.0.1:8545", cfg.Node.RPCURL)
	require.Equal(t, "info", cfg.Log.Level)
}

func TestLoad_ExplicitMissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.Error(t, err)
}
