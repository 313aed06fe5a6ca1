package relayer

import (
	"errors"
	"fmt"
	"time"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/crypto"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/oracle"
	"github.com/shopspring/decimal"
)

var ErrInvalidConfig = errors.New("invalid relayer config")

// FillMode decides who funds destination escrows.
type FillMode string

const (
	// The relayer locks the whole counter amount itself.
	FillModeRelayer FillMode = "relayer"
	// Resolvers lock destination escrows, possibly several per swap.
	FillModeResolvers FillMode = "resolvers"
)

func (m FillMode) IsValid() bool {
	return m == FillModeRelayer || m == FillModeResolvers
}

type Config struct {
	Network  chain.Network
	FillMode FillMode
	// Fee retained on the principal, in basis points
	FeeBps int64
	// Refuse quotes priced from the fallback table
	RefuseFallbackQuotes bool

	DefaultTimelock time.Duration
	MinTimelock     time.Duration
	MaxTimelock     time.Duration
	// How much earlier than the source escrow the destination escrow expires
	TimelockSafetyMargin time.Duration

	// Outbound ledger calls
	MaxRetries     uint64
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
	CallTimeout    time.Duration

	SweepInterval     time.Duration
	PurgeInterval     time.Duration
	AuditRetention    time.Duration
	MaxRefundAttempts int
	Workers           int

	// Resolver incentive, in basis points of the counter amount
	AuctionStartBps int64
	AuctionFloorBps int64
	AuctionDuration time.Duration

	// Gas estimates per destination chain, in whole units of its asset
	GasEstimates map[models.Chain]decimal.Decimal
}

func NewConfig() *Config {
	return &Config{
		Network:              chain.Mainnet,
		FillMode:             FillModeRelayer,
		FeeBps:               oracle.DefaultFeeBps,
		DefaultTimelock:      2 * time.Hour,
		MinTimelock:          crypto.DefaultMinTimelock,
		MaxTimelock:          crypto.DefaultMaxTimelock,
		TimelockSafetyMargin: 30 * time.Minute,
		MaxRetries:           3,
		InitialBackoff:       500 * time.Millisecond,
		MaxBackoff:           10 * time.Second,
		CallTimeout:          30 * time.Second,
		SweepInterval:        30 * time.Second,
		PurgeInterval:        time.Hour,
		AuditRetention:       7 * 24 * time.Hour,
		MaxRefundAttempts:    5,
		Workers:              8,
		AuctionStartBps:      50,
		AuctionFloorBps:      5,
		AuctionDuration:      10 * time.Minute,
		GasEstimates: map[models.Chain]decimal.Decimal{
			models.Ethereum: decimal.RequireFromString("0.0021"),
			models.Near:     decimal.RequireFromString("0.003"),
			models.Bitcoin:  decimal.RequireFromString("0.00002"),
		},
	}
}

func invalid(format string, args ...any) error {
	return fmt.Errorf("%w: %s", ErrInvalidConfig, fmt.Sprintf(format, args...))
}

func (c *Config) Validate() error {
	switch {
	case !c.FillMode.IsValid():
		return invalid("unknown fill mode %q", c.FillMode)
	case c.FeeBps < 0 || c.FeeBps > oracle.MaxFeeBps:
		return invalid("fee must be between 0 and %d bps", oracle.MaxFeeBps)
	case c.MinTimelock <= 0:
		return invalid("min timelock must be positive")
	case c.MaxTimelock < c.MinTimelock:
		return invalid("max timelock must not be below min timelock")
	case c.DefaultTimelock < c.MinTimelock || c.DefaultTimelock > c.MaxTimelock:
		return invalid("default timelock must be within [%s, %s]", c.MinTimelock, c.MaxTimelock)
	case c.TimelockSafetyMargin <= 0:
		return invalid("timelock safety margin must be positive")
	case c.DefaultTimelock-c.TimelockSafetyMargin < c.MinTimelock:
		return invalid("default timelock leaves less than %s for the destination leg", c.MinTimelock)
	case c.InitialBackoff <= 0 || c.MaxBackoff < c.InitialBackoff:
		return invalid("backoff bounds must be positive and ordered")
	case c.CallTimeout <= 0:
		return invalid("call timeout must be positive")
	case c.SweepInterval <= 0 || c.PurgeInterval <= 0:
		return invalid("sweep and purge intervals must be positive")
	case c.AuditRetention <= 0:
		return invalid("audit retention must be positive")
	case c.MaxRefundAttempts <= 0:
		return invalid("max refund attempts must be positive")
	case c.Workers <= 0:
		return invalid("workers must be positive")
	case c.AuctionStartBps < c.AuctionFloorBps || c.AuctionFloorBps < 0:
		return invalid("auction must start at or above a non-negative floor")
	case c.AuctionDuration <= 0:
		return invalid("auction duration must be positive")
	}

	return nil
}
