package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap/zaptest"
)

func TestNewConfig(t *testing.T) {
	cfg, err := NewConfig(Mainnet)
	require.NoError(t, err)
	assert.Equal(t, uint64(1), cfg.ChainID)
	assert.Equal(t, common.HexToAddress("0x6F400810b62df8E13fded51bE75fF5393eaa841F"), cfg.Contracts.BatchExchange)
	assert.NoError(t, cfg.Contracts.Validate())
	assert.Error(t, cfg.Contracts.RequireFleetFactory())

	cfg, err = NewConfig(Rinkeby)
	require.NoError(t, err)
	assert.Equal(t, uint64(4), cfg.ChainID)

	t.Setenv(EnvNetwork, Mainnet)
	cfg, err = NewConfig("")
	require.NoError(t, err)
	assert.Equal(t, Mainnet, cfg.Network)

	_, err = NewConfig("ropsten")
	assert.Error(t, err)
}

func TestValidateConfig(t *testing.T) {
	cfg, err := NewConfig(Rinkeby)
	require.NoError(t, err)
	cfg.RPCEndpoint = "http://localhost:8545"
	require.NoError(t, cfg.ValidateConfig())

	cfg.RPCEndpoint = ""
	cfg.Contracts.MultiSend = common.Address{}
	cfg.RelayRateLimit.BurstSize = 0
	err = cfg.ValidateConfig()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "rpc_endpoint must be specified; contracts error: missing addresses: multi_send; relay rate limit error")
}

func TestLoadConfig(t *testing.T) {
	logger := zaptest.NewLogger(t)
	dir := t.TempDir()

	t.Run("OverridesDefaults", func(t *testing.T) {
		path := filepath.Join(dir, "config.json")
		require.NoError(t, os.WriteFile(path, []byte(`{
			"rpc_endpoint": "http://node:8545",
			"contracts": {"fleet_factory": "0x00000000000000000000000000000000000000ff"},
			"token_cache_size": 16
		}`), 0o644))

		cfg, err := LoadConfig(path, Rinkeby, logger)
		require.NoError(t, err)
		assert.Equal(t, "http://node:8545", cfg.RPCEndpoint)
		assert.Equal(t, 16, cfg.TokenCacheSize)
		assert.Equal(t, common.HexToAddress("0xff"), cfg.Contracts.FleetFactory)
		assert.Equal(t, safeTemplateV111, cfg.Contracts.SafeTemplate, "unset fields keep their defaults")
		assert.NoError(t, cfg.Contracts.RequireFleetFactory())
	})

	t.Run("ExplicitFileMissing", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(dir, "missing.json"), Rinkeby, logger)
		assert.Error(t, err)
	})

	t.Run("InfuraFallback", func(t *testing.T) {
		t.Setenv("HOME", dir)
		t.Setenv(EnvInfuraKey, "abc")
		cfg, err := LoadConfig("", Mainnet, logger)
		require.NoError(t, err)
		assert.Equal(t, "https://mainnet.infura.io/v3/abc", cfg.RPCEndpoint)
	})

	t.Run("Invalid", func(t *testing.T) {
		path := filepath.Join(dir, "invalid.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"rpc_endpoint": "http://node:8545", "price_feed_attempts": 0}`), 0o644))
		_, err := LoadConfig(path, Rinkeby, logger)
		assert.Error(t, err)

		path = filepath.Join(dir, "no-relay-attempts.json")
		require.NoError(t, os.WriteFile(path, []byte(`{"rpc_endpoint": "http://node:8545", "relay_attempts": 0}`), 0o644))
		_, err = LoadConfig(path, Rinkeby, logger)
		require.Error(t, err)
		assert.Contains(t, err.Error(), "relay_attempts must be positive")
	})

	t.Run("SaveRoundTrip", func(t *testing.T) {
		cfg, err := NewConfig(Mainnet)
		require.NoError(t, err)
		cfg.RPCEndpoint = "http://node:8545"
		path := filepath.Join(dir, "saved.json")
		require.NoError(t, SaveConfig(cfg, path))

		loaded, err := LoadConfig(path, Rinkeby, logger)
		require.NoError(t, err)
		assert.Equal(t, Mainnet, loaded.Network)
		assert.Equal(t, cfg.Contracts, loaded.Contracts)
	})
}

func TestEnv(t *testing.T) {
	dir := t.TempDir()
	envFile := filepath.Join(dir, ".env")
	require.NoError(t, os.WriteFile(envFile, []byte("PK=0x0101010101010101010101010101010101010101010101010101010101010101\n"), 0o644))

	t.Setenv(EnvPrivateKey, "")
	require.NoError(t, os.Unsetenv(EnvPrivateKey))
	require.NoError(t, LoadEnv(envFile))

	key, err := LoadSigner()
	require.NoError(t, err)
	assert.NotNil(t, key)

	t.Setenv(EnvPrivateKey, "not-a-key")
	_, err = LoadSigner()
	assert.Error(t, err)

	assert.Error(t, LoadEnv(filepath.Join(dir, "missing.env")))

	t.Setenv(EnvInfuraKey, "")
	_, err = InfuraEndpoint(Mainnet)
	assert.Error(t, err)
}

func TestLoadStrategy(t *testing.T) {
	dir := t.TempDir()

	t.Run("Valid", func(t *testing.T) {
		path := filepath.Join(dir, "strategy.yaml")
		require.NoError(t, os.WriteFile(path, []byte(`
master: "0x0000000000000000000000000000000000000001"
base_token_id: 1
quote_token_id: 4
deposit_base: "3"
deposit_quote: "1000"
current_price: 110
lowest_limit: 100
highest_limit: 121
num_brackets: 2
brackets:
  - "0x00000000000000000000000000000000000000b0"
  - "0x00000000000000000000000000000000000000b1"
`), 0o644))

		strategy, err := LoadStrategy(path)
		require.NoError(t, err)
		assert.Equal(t, uint16(4), strategy.QuoteTokenID)
		assert.Equal(t, 121.0, strategy.HighestLimit)
		assert.Equal(t, []common.Address{common.HexToAddress("0xb0"), common.HexToAddress("0xb1")}, strategy.BracketAddresses())
	})

	invalid := map[string]string{
		"UnknownField": "masterr: 0x01\n",
		"BadAddress":   "master: nope\n",
		"CountMismatch": `num_brackets: 3
brackets: ["0x00000000000000000000000000000000000000b0"]
`,
		"NegativePrice": "lowest_limit: -1\n",
	}
	for name, content := range invalid {
		t.Run(name, func(t *testing.T) {
			path := filepath.Join(dir, name+".yaml")
			require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
			_, err := LoadStrategy(path)
			assert.Error(t, err)
		})
	}

	_, err := LoadStrategy(filepath.Join(dir, "missing.yaml"))
	assert.Error(t, err)
}
