package daemon

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/relayer"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()

	path := filepath.Join(t.TempDir(), "relayer.toml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))

	return path
}

func TestLoadConfig(t *testing.T) {
	t.Run("defaults without a file", func(t *testing.T) {
		config, err := LoadConfig("")
		require.NoError(t, err)
		require.Equal(t, DefaultConfig(), config)
		require.NoError(t, config.Validate())
	})

	t.Run("file overrides defaults", func(t *testing.T) {
		path := writeConfig(t, `
network = "testnet"
grpc_port = 6000
metrics_port = 9100

[[chains]]
chain = "ethereum"
adapter = "gateway"
url = "https://eth-gateway.internal"
api_key = "secret-key"
contract = "0xHTLC"
poll_wait = "5s"
gas_estimate = "0.004"

[[chains]]
chain = "near"
adapter = "simulated"
relayer_address = "relayer.testnet"
liquidity = "1000"

[[feeds]]
name = "backup"
kind = "http"
url = "https://prices.internal"
priority = 2

[[feeds]]
kind = "coingecko"
priority = 1

[oracle]
cache_ttl = "30s"

[oracle.fallback]
eth = "3000"
NEAR = "5"

[relayer]
fill_mode = "resolvers"
fee_bps = 10
default_timelock = "3h"
sweep_interval = "15s"
`)

		config, err := LoadConfig(path)
		require.NoError(t, err)
		require.NoError(t, config.Validate())

		require.Equal(t, chain.Testnet, config.Network)
		require.Equal(t, uint32(6000), config.GRPCPort)
		require.Equal(t, uint32(9100), config.MetricsPort)
		require.Len(t, config.Chains, 2)
		require.Equal(t, ChainConfig{
			Chain:       models.Ethereum,
			Adapter:     AdapterGateway,
			URL:         "https://eth-gateway.internal",
			APIKey:      "secret-key",
			Contract:    "0xHTLC",
			PollWait:    Duration(5 * time.Second),
			GasEstimate: "0.004",
		}, config.Chains[0])
		require.Equal(t, Duration(30*time.Second), config.Oracle.CacheTTL)
		require.Equal(t, 128, config.Oracle.CacheSize)

		feeds := config.SortedFeeds()
		require.Equal(t, FeedCoinGecko, feeds[0].Kind)
		require.Equal(t, "backup", feeds[1].Name)

		fallback, err := config.FallbackTable()
		require.NoError(t, err)
		require.Equal(t, "3000", fallback["ETH"].String())
		require.Equal(t, "5", fallback["NEAR"].String())

		r := config.RelayerConfig()
		require.Equal(t, relayer.FillModeResolvers, r.FillMode)
		require.Equal(t, int64(10), r.FeeBps)
		require.Equal(t, 3*time.Hour, r.DefaultTimelock)
		require.Equal(t, 15*time.Second, r.SweepInterval)
		require.Equal(t, relayer.NewConfig().PurgeInterval, r.PurgeInterval)
		require.Equal(t, chain.Testnet, r.Network)
		require.Equal(t, "0.004", r.GasEstimates[models.Ethereum].String())
		require.Equal(t, "0.003", r.GasEstimates[models.Near].String())
	})

	t.Run("unknown key", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "gprc_port = 1\n"))
		require.Error(t, err)
	})

	t.Run("bad duration", func(t *testing.T) {
		_, err := LoadConfig(writeConfig(t, "[relayer]\nsweep_interval = \"soon\"\n"))
		require.Error(t, err)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.toml"))
		require.Error(t, err)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{name: "unknown network", mutate: func(c *Config) { c.Network = "signet" }},
		{name: "unknown chain", mutate: func(c *Config) { c.Chains[0].Chain = "solana" }},
		{name: "duplicated chain", mutate: func(c *Config) { c.Chains[1].Chain = models.Ethereum }},
		{name: "single chain", mutate: func(c *Config) { c.Chains = c.Chains[:1] }},
		{name: "unknown adapter", mutate: func(c *Config) { c.Chains[0].Adapter = "rpc" }},
		{name: "gateway without url", mutate: func(c *Config) { c.Chains[0].Adapter = AdapterGateway }},
		{name: "simulated without address", mutate: func(c *Config) { c.Chains[0].RelayerAddress = "" }},
		{name: "negative liquidity", mutate: func(c *Config) { c.Chains[0].Liquidity = "-1" }},
		{name: "bad gas estimate", mutate: func(c *Config) { c.Chains[0].GasEstimate = "cheap" }},
		{name: "unknown feed", mutate: func(c *Config) { c.Feeds = []FeedConfig{{Name: "x", Kind: "ws", URL: "ws://x"}} }},
		{name: "http feed without url", mutate: func(c *Config) { c.Feeds = []FeedConfig{{Name: "x", Kind: FeedHTTP}} }},
		{
			name: "duplicated feed",
			mutate: func(c *Config) {
				c.Feeds = []FeedConfig{{Kind: FeedCoinGecko}, {Kind: FeedCoinGecko}}
			},
		},
		{name: "zero cache ttl", mutate: func(c *Config) { c.Oracle.CacheTTL = 0 }},
		{name: "bad fallback price", mutate: func(c *Config) { c.Oracle.Fallback["ETH"] = "0" }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(config)
			require.ErrorIs(t, config.Validate(), ErrInvalidConfig)
		})
	}
}

func TestConfig_ValidateRelayerSettings(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*RelayerConfig)
	}{
		{name: "fee above cap", mutate: func(c *RelayerConfig) { c.FeeBps = 5000 }},
		{name: "unknown fill mode", mutate: func(c *RelayerConfig) { c.FillMode = "auction" }},
		{name: "no workers", mutate: func(c *RelayerConfig) { c.Workers = 0 }},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			config := DefaultConfig()
			tt.mutate(&config.Relayer)
			require.ErrorIs(t, config.Validate(), relayer.ErrInvalidConfig)
		})
	}
}
