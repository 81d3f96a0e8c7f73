package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"go.uber.org/zap"
)

// Supported networks
const (
	Mainnet = "mainnet"
	Rinkeby = "rinkeby"
)

// DefaultConfigFile is looked up in the home directory when no --config is given
const DefaultConfigFile = ".bracketbot.json"

type Config struct {
	// Chain and network settings
	Network     string `json:"network"`
	ChainID     uint64 `json:"chain_id"`
	RPCEndpoint string `json:"rpc_endpoint"`

	// Deployed contracts
	Contracts ContractsConfig `json:"contracts"`

	// External services
	PriceFeedURL      string          `json:"price_feed_url"`
	RelayURL          string          `json:"relay_url"`
	NetworkTimeout    time.Duration   `json:"network_timeout"`
	PriceFeedAttempts int             `json:"price_feed_attempts"`
	PriceFeedRetry    time.Duration   `json:"price_feed_retry"`
	PriceRateLimit    RateLimitConfig `json:"price_rate_limit"`
	RelayAttempts     int             `json:"relay_attempts"`
	RelayRetry        time.Duration   `json:"relay_retry"`
	RelayRateLimit    RateLimitConfig `json:"relay_rate_limit"`

	// Local settings
	TokenCacheSize     int    `json:"token_cache_size"`
	DepositFile        string `json:"deposit_file"`
	PrometheusEnabled  bool   `json:"prometheus_enabled"`
	PrometheusEndpoint string `json:"prometheus_endpoint"`

	// Internal components
	Logger *zap.Logger `json:"-"`
}

// ContractsConfig holds the addresses the bracket fleet interacts with
type ContractsConfig struct {
	BatchExchange common.Address `json:"batch_exchange"`
	MultiSend     common.Address `json:"multi_send"`
	// SafeTemplate is the Safe master copy every bracket proxies to
	SafeTemplate common.Address `json:"safe_template"`
	ProxyFactory common.Address `json:"proxy_factory"`
	// FleetFactory deploys brackets deterministically; needed by deploy and addresses
	FleetFactory common.Address `json:"fleet_factory"`
}

type RateLimitConfig struct {
	RequestsPerSecond float64 `json:"requests_per_second"`
	BurstSize         int     `json:"burst_size"`
}

// networkDefaults are the public deployments of the exchange and the Safe
// v1.1.1 contracts
var networkDefaults = map[string]struct {
	chainID  uint64
	exchange common.Address
}{
	Mainnet: {1, common.HexToAddress("0x6F400810b62df8E13fded51bE75fF5393eaa841F")},
	Rinkeby: {4, common.HexToAddress("0xC576eA7bd102F7E476368a5E98FA455d1Ea34dE2")},
}

var (
	safeTemplateV111 = common.HexToAddress("0x34CfAC646f301356fAa8B21e94227e3583Fe3F5F")
	proxyFactoryV111 = common.HexToAddress("0x76E2cFc1F5Fa8F6a5b3fC4c8F4788F0116861F9B")
	multiSendV111    = common.HexToAddress("0x8D29bE29923b68abfDD21e541b9374737B49cdAD")
)

// IsSupportedNetwork reports whether defaults exist for network
func IsSupportedNetwork(network string) bool {
	_, ok := networkDefaults[network]
	return ok
}

func (c *Config) ValidateConfig() error {
	var errors []string

	// Validate Chain and Network settings
	if !IsSupportedNetwork(c.Network) {
		errors = append(errors, fmt.Sprintf("network must be one of mainnet, rinkeby (got %q)", c.Network))
	}
	if c.ChainID == 0 {
		errors = append(errors, "chain_id must be specified")
	}
	if c.RPCEndpoint == "" {
		errors = append(errors, "rpc_endpoint must be specified")
	}

	// Validate Contracts
	if err := c.Contracts.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("contracts error: %v", err))
	}

	if c.NetworkTimeout <= 0 {
		errors = append(errors, "network_timeout must be positive")
	}
	if c.PriceFeedAttempts <= 0 {
		errors = append(errors, "price_feed_attempts must be positive")
	}
	if c.RelayAttempts <= 0 {
		errors = append(errors, "relay_attempts must be positive")
	}
	if c.TokenCacheSize <= 0 {
		errors = append(errors, "token_cache_size must be positive")
	}

	// Validate Rate Limits
	if err := c.PriceRateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("price feed rate limit error: %v", err))
	}
	if err := c.RelayRateLimit.Validate(); err != nil {
		errors = append(errors, fmt.Sprintf("relay rate limit error: %v", err))
	}

	if len(errors) > 0 {
		return fmt.Errorf("configuration validation failed: %s", strings.Join(errors, "; "))
	}

	return nil
}

func (c *ContractsConfig) Validate() error {
	var missing []string
	zero := common.Address{}
	if c.BatchExchange == zero {
		missing = append(missing, "batch_exchange")
	}
	if c.MultiSend == zero {
		missing = append(missing, "multi_send")
	}
	if c.SafeTemplate == zero {
		missing = append(missing, "safe_template")
	}
	if c.ProxyFactory == zero {
		missing = append(missing, "proxy_factory")
	}
	if len(missing) > 0 {
		return fmt.Errorf("missing addresses: %s", strings.Join(missing, ", "))
	}
	return nil
}

// RequireFleetFactory fails unless a fleet factory is configured
func (c *ContractsConfig) RequireFleetFactory() error {
	if c.FleetFactory == (common.Address{}) {
		return fmt.Errorf("contracts.fleet_factory must be configured to deploy or predict brackets")
	}
	return nil
}

func (r *RateLimitConfig) Validate() error {
	if r.RequestsPerSecond <= 0 {
		return fmt.Errorf("requests per second must be positive")
	}
	if r.BurstSize <= 0 {
		return fmt.Errorf("burst size must be positive")
	}

	return nil
}

func defaultPath(cfgFile string) (string, error) {
	if cfgFile != "" {
		return cfgFile, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user home directory: %w", err)
	}
	return filepath.Join(home, DefaultConfigFile), nil
}

// LoadConfig reads a JSON config on top of the defaults of network. A missing
// default config file is not an error; an explicitly given one is.
func LoadConfig(cfgFile, network string, logger *zap.Logger) (*Config, error) {
	explicit := cfgFile != ""
	path, err := defaultPath(cfgFile)
	if err != nil {
		return nil, err
	}

	config, err := NewConfig(network)
	if err != nil {
		return nil, err
	}

	file, err := os.Open(path)
	switch {
	case err == nil:
		defer file.Close()
		if err := json.NewDecoder(file).Decode(config); err != nil {
			return nil, fmt.Errorf("failed to decode config file: %w", err)
		}
	case os.IsNotExist(err) && !explicit:
	default:
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}

	if config.RPCEndpoint == "" {
		endpoint, err := InfuraEndpoint(config.Network)
		if err == nil {
			config.RPCEndpoint = endpoint
		}
	}

	if logger == nil {
		logger = zap.NewNop()
	}
	config.Logger = logger

	// Validate configuration
	if err := config.ValidateConfig(); err != nil {
		return nil, err
	}

	return config, nil
}

func SaveConfig(cfg *Config, cfgFile string) error {
	path, err := defaultPath(cfgFile)
	if err != nil {
		return err
	}

	file, err := os.Create(path)
	if err != nil {
		return err
	}
	defer file.Close()

	encoder := json.NewEncoder(file)
	encoder.SetIndent("", "    ")
	return encoder.Encode(cfg)
}

// NewConfig returns the defaults of network, an empty network meaning the
// NETWORK environment variable or rinkeby
func NewConfig(network string) (*Config, error) {
	if network == "" {
		network = GetEnvWithDefault(EnvNetwork, Rinkeby)
	}
	defaults, ok := networkDefaults[network]
	if !ok {
		return nil, fmt.Errorf("unsupported network: %s", network)
	}

	return &Config{
		Network: network,
		ChainID: defaults.chainID,
		Contracts: ContractsConfig{
			BatchExchange: defaults.exchange,
			MultiSend:     multiSendV111,
			SafeTemplate:  safeTemplateV111,
			ProxyFactory:  proxyFactoryV111,
		},
		PriceFeedURL:      "https://api-v2.dex.ag",
		NetworkTimeout:    10 * time.Second,
		PriceFeedAttempts: 3,
		PriceFeedRetry:    time.Second,
		PriceRateLimit: RateLimitConfig{
			RequestsPerSecond: 5,
			BurstSize:         5,
		},
		RelayAttempts: 3,
		RelayRetry:    time.Second,
		RelayRateLimit: RateLimitConfig{
			RequestsPerSecond: 2,
			BurstSize:         2,
		},
		TokenCacheSize: 128,
		DepositFile:    "./automaticallyGeneratedDeposits.json",
		Logger:         zap.NewNop(),
	}, nil
}
