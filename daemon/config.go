package daemon

import (
	"errors"
	"fmt"
	"os"
	"slices"
	"strings"
	"time"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/oracle"
	"github.com/40acres/htlc-bridge/relayer"
	"github.com/pelletier/go-toml/v2"
	"github.com/shopspring/decimal"
)

var ErrInvalidConfig = errors.New("invalid daemon config")

const (
	AdapterGateway   = "gateway"
	AdapterSimulated = "simulated"

	FeedHTTP      = "http"
	FeedCoinGecko = "coingecko"
)

// Duration reads "90s" or "2h" style values from TOML.
type Duration time.Duration

func (d *Duration) UnmarshalText(text []byte) error {
	parsed, err := time.ParseDuration(string(text))
	if err != nil {
		return err
	}
	*d = Duration(parsed)

	return nil
}

func (d Duration) MarshalText() ([]byte, error) {
	return []byte(time.Duration(d).String()), nil
}

// ChainConfig describes how to reach one ledger.
type ChainConfig struct {
	Chain models.Chain `toml:"chain"`
	// gateway or simulated
	Adapter  string   `toml:"adapter"`
	URL      string   `toml:"url"`
	APIKey   string   `toml:"api_key"`
	Contract string   `toml:"contract"`
	PollWait Duration `toml:"poll_wait"`
	// Simulated ledgers only
	RelayerAddress string `toml:"relayer_address"`
	Liquidity      string `toml:"liquidity"`
	// Whole units of the chain asset, quoted to users
	GasEstimate string `toml:"gas_estimate"`
}

type FeedConfig struct {
	Name string `toml:"name"`
	// http or coingecko
	Kind     string `toml:"kind"`
	URL      string `toml:"url"`
	APIKey   string `toml:"api_key"`
	Priority int    `toml:"priority"`
}

type OracleConfig struct {
	MinFeedInterval Duration `toml:"min_feed_interval"`
	CacheTTL        Duration `toml:"cache_ttl"`
	CacheSize       int      `toml:"cache_size"`
	MaxRetries      uint64   `toml:"max_retries"`
	InitialBackoff  Duration `toml:"initial_backoff"`
	MaxBackoff      Duration `toml:"max_backoff"`
	// USD price per asset symbol, used when every feed fails
	Fallback map[string]string `toml:"fallback"`
}

type RelayerConfig struct {
	FillMode             string   `toml:"fill_mode"`
	FeeBps               int64    `toml:"fee_bps"`
	RefuseFallbackQuotes bool     `toml:"refuse_fallback_quotes"`
	DefaultTimelock      Duration `toml:"default_timelock"`
	MinTimelock          Duration `toml:"min_timelock"`
	MaxTimelock          Duration `toml:"max_timelock"`
	TimelockSafetyMargin Duration `toml:"timelock_safety_margin"`
	MaxRetries           uint64   `toml:"max_retries"`
	InitialBackoff       Duration `toml:"initial_backoff"`
	MaxBackoff           Duration `toml:"max_backoff"`
	CallTimeout          Duration `toml:"call_timeout"`
	SweepInterval        Duration `toml:"sweep_interval"`
	PurgeInterval        Duration `toml:"purge_interval"`
	AuditRetention       Duration `toml:"audit_retention"`
	MaxRefundAttempts    int      `toml:"max_refund_attempts"`
	Workers              int      `toml:"workers"`
	AuctionStartBps      int64    `toml:"auction_start_bps"`
	AuctionFloorBps      int64    `toml:"auction_floor_bps"`
	AuctionDuration      Duration `toml:"auction_duration"`
}

type Config struct {
	Network     chain.Network `toml:"network"`
	GRPCPort    uint32        `toml:"grpc_port"`
	MetricsPort uint32        `toml:"metrics_port"`

	Chains  []ChainConfig `toml:"chains"`
	Feeds   []FeedConfig  `toml:"feeds"`
	Oracle  OracleConfig  `toml:"oracle"`
	Relayer RelayerConfig `toml:"relayer"`
}

// DefaultConfig runs the three chains against simulated ledgers, which is
// only useful for development.
func DefaultConfig() *Config {
	r := relayer.NewConfig()
	o := oracle.DefaultConfig()

	return &Config{
		Network:  chain.Mainnet,
		GRPCPort: 50051,
		Chains: []ChainConfig{
			{Chain: models.Ethereum, Adapter: AdapterSimulated, RelayerAddress: "0x000000000000000000000000000000000000dEaD"},
			{Chain: models.Near, Adapter: AdapterSimulated, RelayerAddress: "relayer.near"},
			{Chain: models.Bitcoin, Adapter: AdapterSimulated, RelayerAddress: "bc1qw508d6qejxtdg4y5r3zarvary0c5xw7kv8f3t4"},
		},
		Oracle: OracleConfig{
			MinFeedInterval: Duration(o.MinFeedInterval),
			CacheTTL:        Duration(time.Minute),
			CacheSize:       128,
			MaxRetries:      o.MaxRetries,
			InitialBackoff:  Duration(o.InitialBackoff),
			MaxBackoff:      Duration(o.MaxBackoff),
			Fallback:        map[string]string{},
		},
		Relayer: RelayerConfig{
			FillMode:             string(r.FillMode),
			FeeBps:               r.FeeBps,
			DefaultTimelock:      Duration(r.DefaultTimelock),
			MinTimelock:          Duration(r.MinTimelock),
			MaxTimelock:          Duration(r.MaxTimelock),
			TimelockSafetyMargin: Duration(r.TimelockSafetyMargin),
			MaxRetries:           r.MaxRetries,
			InitialBackoff:       Duration(r.InitialBackoff),
			MaxBackoff:           Duration(r.MaxBackoff),
			CallTimeout:          Duration(r.CallTimeout),
			SweepInterval:        Duration(r.SweepInterval),
			PurgeInterval:        Duration(r.PurgeInterval),
			AuditRetention:       Duration(r.AuditRetention),
			MaxRefundAttempts:    r.MaxRefundAttempts,
			Workers:              r.Workers,
			AuctionStartBps:      r.AuctionStartBps,
			AuctionFloorBps:      r.AuctionFloorBps,
			AuctionDuration:      Duration(r.AuctionDuration),
		},
	}
}

// LoadConfig reads a TOML file over the defaults. An empty path returns the
// defaults. Unknown keys are rejected.
func LoadConfig(path string) (*Config, error) {
	config := DefaultConfig()
	if path == "" {
		return config, nil
	}

	file, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open config file: %w", err)
	}
	defer file.Close()

	// A chains section in the file replaces the simulated defaults as a whole.
	defaults := config.Chains
	config.Chains = nil

	decoder := toml.NewDecoder(file).DisallowUnknownFields()
	if err := decoder.Decode(config); err != nil {
		return nil, fmt.Errorf("failed to decode config file %s: %w", path, err)
	}
	if len(config.Chains) == 0 {
		config.Chains = defaults
	}

	return config, nil
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	switch c.Network {
	case chain.Mainnet, chain.Testnet, chain.Regtest:
	default:
		return invalid("unknown network %q", c.Network)
	}

	seen := map[models.Chain]bool{}
	for _, cc := range c.Chains {
		if !cc.Chain.IsValid() {
			return invalid("unknown chain %q", cc.Chain)
		}
		if seen[cc.Chain] {
			return invalid("chain %s configured twice", cc.Chain)
		}
		seen[cc.Chain] = true

		switch cc.Adapter {
		case AdapterGateway:
			if cc.URL == "" {
				return invalid("%s gateway needs a url", cc.Chain)
			}
		case AdapterSimulated:
			if cc.RelayerAddress == "" {
				return invalid("simulated %s ledger needs a relayer address", cc.Chain)
			}
			if _, err := optionalDecimal(cc.Liquidity); err != nil {
				return invalid("%s liquidity: %v", cc.Chain, err)
			}
		default:
			return invalid("unknown adapter %q for %s", cc.Adapter, cc.Chain)
		}
		if _, err := optionalDecimal(cc.GasEstimate); err != nil {
			return invalid("%s gas estimate: %v", cc.Chain, err)
		}
	}
	if len(seen) < 2 {
		return invalid("at least two chains are required")
	}

	names := map[string]bool{}
	for _, f := range c.Feeds {
		if f.Kind != FeedHTTP && f.Kind != FeedCoinGecko {
			return invalid("unknown feed kind %q", f.Kind)
		}
		if f.URL == "" && f.Kind != FeedCoinGecko {
			return invalid("feed %s needs a url", f.Name)
		}
		if names[f.feedName()] {
			return invalid("feed %s configured twice", f.feedName())
		}
		names[f.feedName()] = true
	}

	if c.Oracle.CacheTTL <= 0 || c.Oracle.CacheSize <= 0 {
		return invalid("rate cache ttl and size must be positive")
	}
	if _, err := c.FallbackTable(); err != nil {
		return err
	}

	return c.RelayerConfig().Validate()
}

func (f FeedConfig) feedName() string {
	if f.Kind == FeedCoinGecko && f.Name == "" {
		return FeedCoinGecko
	}

	return f.Name
}

func optionalDecimal(value string) (*decimal.Decimal, error) {
	if value == "" {
		return nil, nil
	}
	d, err := decimal.NewFromString(value)
	if err != nil {
		return nil, err
	}
	if d.IsNegative() {
		return nil, errors.New("must not be negative")
	}

	return &d, nil
}

// FallbackTable parses the configured USD prices, keyed by upper case
// symbol.
func (c *Config) FallbackTable() (oracle.FallbackTable, error) {
	table := oracle.FallbackTable{}
	for symbol, value := range c.Oracle.Fallback {
		price, err := decimal.NewFromString(value)
		if err != nil || !price.IsPositive() {
			return nil, invalid("fallback price of %s must be a positive decimal", symbol)
		}
		table[strings.ToUpper(symbol)] = price
	}

	return table, nil
}

func (c *Config) OracleConfig() oracle.Config {
	return oracle.Config{
		MinFeedInterval: time.Duration(c.Oracle.MinFeedInterval),
		MaxRetries:      c.Oracle.MaxRetries,
		InitialBackoff:  time.Duration(c.Oracle.InitialBackoff),
		MaxBackoff:      time.Duration(c.Oracle.MaxBackoff),
	}
}

// SortedFeeds returns the feeds by ascending priority, keeping file order
// between equal priorities.
func (c *Config) SortedFeeds() []FeedConfig {
	feeds := slices.Clone(c.Feeds)
	slices.SortStableFunc(feeds, func(a, b FeedConfig) int {
		return a.Priority - b.Priority
	})

	return feeds
}

func (c *Config) RelayerConfig() *relayer.Config {
	r := c.Relayer
	config := relayer.NewConfig()
	config.Network = c.Network
	config.FillMode = relayer.FillMode(r.FillMode)
	config.FeeBps = r.FeeBps
	config.RefuseFallbackQuotes = r.RefuseFallbackQuotes
	config.DefaultTimelock = time.Duration(r.DefaultTimelock)
	config.MinTimelock = time.Duration(r.MinTimelock)
	config.MaxTimelock = time.Duration(r.MaxTimelock)
	config.TimelockSafetyMargin = time.Duration(r.TimelockSafetyMargin)
	config.MaxRetries = r.MaxRetries
	config.InitialBackoff = time.Duration(r.InitialBackoff)
	config.MaxBackoff = time.Duration(r.MaxBackoff)
	config.CallTimeout = time.Duration(r.CallTimeout)
	config.SweepInterval = time.Duration(r.SweepInterval)
	config.PurgeInterval = time.Duration(r.PurgeInterval)
	config.AuditRetention = time.Duration(r.AuditRetention)
	config.MaxRefundAttempts = r.MaxRefundAttempts
	config.Workers = r.Workers
	config.AuctionStartBps = r.AuctionStartBps
	config.AuctionFloorBps = r.AuctionFloorBps
	config.AuctionDuration = time.Duration(r.AuctionDuration)

	for _, cc := range c.Chains {
		if gas, err := optionalDecimal(cc.GasEstimate); err == nil && gas != nil {
			config.GasEstimates[cc.Chain] = *gas
		}
	}

	return config
}
