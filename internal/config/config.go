package config

import (
	"errors"
	"os"
	"time"

	"github.com/spf13/viper"
)

// Config holds the application configuration
type Config struct {
	Node   NodeConfig   `mapstructure:"node"`
	Wallet WalletConfig `mapstructure:"wallet"`
	UAuth  UAuthConfig  `mapstructure:"uauth"`
	Server ServerConfig `mapstructure:"server"`
	Log    LogConfig    `mapstructure:"log"`
}

// NodeConfig holds the Ethereum node connection settings
type NodeConfig struct {
	RPCURL         string        `mapstructure:"rpc_url"`
	ChainID        int64         `mapstructure:"chain_id"`
	ReadTimeout    time.Duration `mapstructure:"read_timeout"`
	ConfirmTimeout time.Duration `mapstructure:"confirm_timeout"`
}

// WalletConfig holds the wallet provider settings
type WalletConfig struct {
	KeystoreDir    string `mapstructure:"keystore_dir"`
	SessionDB      string `mapstructure:"session_db"`
	Provider       string `mapstructure:"provider"`
	PassphraseFile string `mapstructure:"passphrase_file"`
}

// UAuthConfig holds the identity endpoints of the custom provider.
// Client id, redirect URI and scope are fixed, see wallet.UAuthOptions.
type UAuthConfig struct {
	AuthURL  string `mapstructure:"auth_url"`
	TokenURL string `mapstructure:"token_url"`
	// IDTokenKeyFile is the issuer's PEM public key. Empty skips the
	// id token signature check.
	IDTokenKeyFile string `mapstructure:"id_token_key_file"`
}

// ServerConfig holds the server configuration
type ServerConfig struct {
	Host string `mapstructure:"host"`
	Port string `mapstructure:"port"`
}

// LogConfig holds the logger configuration
type LogConfig struct {
	Level string `mapstructure:"level"`
	File  string `mapstructure:"file"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("node.rpc_url", "ws://127.0.0.1:8545")
	v.SetDefault("node.chain_id", 0)
	v.SetDefault("node.read_timeout", 30*time.Second)
	v.SetDefault("node.confirm_timeout", 5*time.Minute)
	v.SetDefault("wallet.keystore_dir", "keystore")
	v.SetDefault("wallet.session_db", "waveportal.db")
	v.SetDefault("uauth.auth_url", "https://auth.unstoppabledomains.com/oauth2/auth")
	v.SetDefault("uauth.token_url", "https://auth.unstoppabledomains.com/oauth2/token")
	v.SetDefault("uauth.id_token_key_file", "")
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", "8080")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.file", "waveportal.log")
}

// Load loads the configuration from path, from $CONFIG_PATH when path is
// empty, or from config.yaml in the working directory. A missing config.yaml
// is not an error: the defaults are used.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	if path == "" {
		path = os.Getenv("CONFIG_PATH")
	}
	if path != "" {
		v.SetConfigFile(path)
	} else {
		v.SetConfigName("config")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
	}

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path != "" || !errors.As(err, &notFound) {
			return nil, err
		}
	}

	var config Config
	if err := v.Unmarshal(&config); err != nil {
		return nil, err
	}

	return &config, nil
}
