// Package config defines all configuration for the market client.
// Config is loaded from a YAML file (default: configs/config.yaml) with
// sensitive fields overridable via FHEM_* environment variables.
package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/spf13/viper"
)

// SepoliaChainID is the only chain the FHE co-processor network runs on.
// Encryption key material is bound to this chain; the client refuses to
// start against anything else.
const SepoliaChainID = 11155111

// Config is the top-level configuration. Maps directly to the YAML file structure.
type Config struct {
	RPC       RPCConfig       `mapstructure:"rpc"`
	Contract  ContractConfig  `mapstructure:"contract"`
	Relayer   RelayerConfig   `mapstructure:"relayer"`
	Wallet    WalletConfig    `mapstructure:"wallet"`
	Store     StoreConfig     `mapstructure:"store"`
	Logging   LoggingConfig   `mapstructure:"logging"`
	Dashboard DashboardConfig `mapstructure:"dashboard"`
}

// RPCConfig holds the Ethereum node endpoints. HTTPURL serves reads and
// transaction submission; WSURL, when set, enables the contract event watcher.
type RPCConfig struct {
	HTTPURL string `mapstructure:"http_url"`
	WSURL   string `mapstructure:"ws_url"`
	ChainID int64  `mapstructure:"chain_id"`
}

// ContractConfig identifies the prediction market contract.
type ContractConfig struct {
	Address string `mapstructure:"address"`
}

// RelayerConfig points at the FHE relayer service used to build encrypted
// inputs and run public decryptions.
type RelayerConfig struct {
	BaseURL string        `mapstructure:"base_url"`
	Timeout time.Duration `mapstructure:"timeout"`
}

// WalletConfig holds the signing key. PrivateKey may be empty, in which case
// the client runs read-only: browsing and position views work, trades do not.
type WalletConfig struct {
	PrivateKey string `mapstructure:"private_key"`
}

// StoreConfig tunes the market store's fetch behavior.
type StoreConfig struct {
	FetchConcurrency int `mapstructure:"fetch_concurrency"`
}

type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// DashboardConfig controls the local read-only dashboard server.
type DashboardConfig struct {
	Enabled        bool     `mapstructure:"enabled"`
	Port           int      `mapstructure:"port"`
	AllowedOrigins []string `mapstructure:"allowed_origins"`
}

// Load reads config from a YAML file with env var overrides.
// Sensitive fields use env vars: FHEM_PRIVATE_KEY, FHEM_RPC_URL.
func Load(path string) (*Config, error) {
	v := viper.New()
	v.SetConfigFile(path)
	v.SetEnvPrefix("FHEM")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	v.SetDefault("store.fetch_concurrency", 8)
	v.SetDefault("relayer.timeout", 30*time.Second)
	v.SetDefault("rpc.chain_id", SepoliaChainID)

	if err := v.ReadInConfig(); err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}

	// Override sensitive fields from env
	if key := os.Getenv("FHEM_PRIVATE_KEY"); key != "" {
		cfg.Wallet.PrivateKey = key
	}
	if url := os.Getenv("FHEM_RPC_URL"); url != "" {
		cfg.RPC.HTTPURL = url
	}
	if url := os.Getenv("FHEM_RPC_WS_URL"); url != "" {
		cfg.RPC.WSURL = url
	}

	return &cfg, nil
}

// Validate checks all required fields and value ranges.
func (c *Config) Validate() error {
	if c.RPC.HTTPURL == "" {
		return fmt.Errorf("rpc.http_url is required (set FHEM_RPC_URL)")
	}
	if c.RPC.ChainID != SepoliaChainID {
		return fmt.Errorf("rpc.chain_id must be %d (Sepolia): the FHE co-processor is only deployed there", SepoliaChainID)
	}
	if c.Contract.Address == "" {
		return fmt.Errorf("contract.address is required")
	}
	if !common.IsHexAddress(c.Contract.Address) {
		return fmt.Errorf("contract.address %q is not a valid address", c.Contract.Address)
	}
	if c.Relayer.BaseURL == "" {
		return fmt.Errorf("relayer.base_url is required")
	}
	if c.Store.FetchConcurrency < 1 {
		return fmt.Errorf("store.fetch_concurrency must be >= 1")
	}
	if c.Dashboard.Enabled && c.Dashboard.Port == 0 {
		return fmt.Errorf("dashboard.port is required when dashboard.enabled")
	}
	return nil
}
