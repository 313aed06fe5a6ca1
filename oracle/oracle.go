package oracle

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/40acres/htlc-bridge/money"
	"github.com/cenkalti/backoff/v4"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

const (
	FallbackSource = "fallback"
	IdentitySource = "identity"

	DefaultFeeBps = 30
	MaxFeeBps     = 1000
)

var (
	ErrThrottled        = errors.New("price feed throttled the request")
	ErrNoRate           = errors.New("no rate available")
	ErrStaleRate        = errors.New("price feed returned a stale rate")
	ErrUnexpectedStatus = errors.New("unexpected status code")
	ErrInvalidFee       = fmt.Errorf("fee must be between 0 and %d bps", MaxFeeBps)
)

//go:generate go tool mockgen -destination=mock.go -package=oracle . Feed

// Feed is an upstream price source. FetchRate returns how many units of to
// one unit of from is worth, and when the feed observed it.
type Feed interface {
	Name() string
	FetchRate(ctx context.Context, from, to string) (decimal.Decimal, time.Time, error)
}

type CachedRate struct {
	Pair      string
	Rate      decimal.Decimal
	Source    string
	FetchedAt time.Time
}

func (r CachedRate) IsFallback() bool {
	return r.Source == FallbackSource
}

type Conversion struct {
	Amount decimal.Decimal
	Rate   decimal.Decimal
	Source string
}

type Config struct {
	// Minimum spacing between two requests to the same feed
	MinFeedInterval time.Duration
	MaxRetries      uint64
	InitialBackoff  time.Duration
	MaxBackoff      time.Duration
}

func DefaultConfig() Config {
	return Config{
		MinFeedInterval: time.Second,
		MaxRetries:      3,
		InitialBackoff:  500 * time.Millisecond,
		MaxBackoff:      8 * time.Second,
	}
}

type feedEntry struct {
	feed    Feed
	limiter *rate.Limiter
}

type Oracle struct {
	feeds    []feedEntry
	cache    *RateCache
	fallback FallbackTable
	config   Config
	now      func() time.Time
}

// New builds an oracle querying feeds in the given priority order.
func New(feeds []Feed, cache *RateCache, fallback FallbackTable, config Config) *Oracle {
	o := &Oracle{
		cache:    cache,
		fallback: fallback,
		config:   config,
		now:      time.Now,
	}
	for _, f := range feeds {
		limit := rate.Inf
		if config.MinFeedInterval > 0 {
			limit = rate.Every(config.MinFeedInterval)
		}
		o.feeds = append(o.feeds, feedEntry{feed: f, limiter: rate.NewLimiter(limit, 1)})
	}

	return o
}

func pairKey(from, to money.Asset) string {
	return from.Symbol + "/" + to.Symbol
}

// GetRate returns a fresh rate for from -> to. Feeds are tried in order; if
// all fail the fallback table is used and the result is tagged as such.
func (o *Oracle) GetRate(ctx context.Context, from, to money.Asset) (CachedRate, error) {
	pair := pairKey(from, to)
	if from.Symbol == to.Symbol {
		return CachedRate{Pair: pair, Rate: decimal.NewFromInt(1), Source: IdentitySource, FetchedAt: o.now()}, nil
	}

	if cached, ok := o.cache.Get(pair); ok {
		return cached, nil
	}

	logger := log.WithField("pair", pair)
	for _, entry := range o.feeds {
		value, observedAt, err := o.fetch(ctx, entry, from, to)
		if err != nil {
			if ctx.Err() != nil {
				return CachedRate{}, ctx.Err()
			}
			logger.WithError(err).WithField("feed", entry.feed.Name()).Warn("price feed failed")

			continue
		}

		result := CachedRate{Pair: pair, Rate: value, Source: entry.feed.Name(), FetchedAt: observedAt}
		o.cache.Add(result)

		return result, nil
	}

	value, ok := o.fallback.Rate(from, to)
	if !ok {
		return CachedRate{}, fmt.Errorf("%w for %s", ErrNoRate, pair)
	}
	logger.Warn("all price feeds failed, using fallback rate")

	return CachedRate{Pair: pair, Rate: value, Source: FallbackSource, FetchedAt: o.now()}, nil
}

func (o *Oracle) fetch(ctx context.Context, entry feedEntry, from, to money.Asset) (decimal.Decimal, time.Time, error) {
	var (
		value      decimal.Decimal
		observedAt time.Time
	)

	operation := func() error {
		if err := entry.limiter.Wait(ctx); err != nil {
			return backoff.Permanent(err)
		}

		var err error
		value, observedAt, err = entry.feed.FetchRate(ctx, from.Symbol, to.Symbol)
		if errors.Is(err, ErrThrottled) {
			return err
		}
		if err != nil {
			return backoff.Permanent(err)
		}

		return nil
	}

	b := backoff.NewExponentialBackOff()
	b.InitialInterval = o.config.InitialBackoff
	b.MaxInterval = o.config.MaxBackoff
	b.Multiplier = 2
	b.RandomizationFactor = 0
	b.MaxElapsedTime = 0

	notify := func(err error, wait time.Duration) {
		log.WithError(err).WithField("feed", entry.feed.Name()).Debugf("retrying in %s", wait)
	}
	err := backoff.RetryNotify(operation, backoff.WithContext(backoff.WithMaxRetries(b, o.config.MaxRetries), ctx), notify)
	if err != nil {
		return decimal.Zero, time.Time{}, err
	}

	if !value.IsPositive() {
		return decimal.Zero, time.Time{}, fmt.Errorf("%w: non positive rate %s", ErrNoRate, value)
	}
	if observedAt.IsZero() {
		observedAt = o.now()
	}
	if o.now().Sub(observedAt) > o.cache.TTL() {
		return decimal.Zero, time.Time{}, fmt.Errorf("%w: observed at %s", ErrStaleRate, observedAt)
	}

	return value, observedAt, nil
}

// Convert turns amount of from into to, rounded down to the precision of to.
func (o *Oracle) Convert(ctx context.Context, amount decimal.Decimal, from, to money.Asset) (Conversion, error) {
	if amount.IsNegative() {
		return Conversion{}, money.ErrNegativeAmount
	}

	r, err := o.GetRate(ctx, from, to)
	if err != nil {
		return Conversion{}, err
	}

	return Conversion{
		Amount: to.Round(amount.Mul(r.Rate)),
		Rate:   r.Rate,
		Source: r.Source,
	}, nil
}

// CalculateFee returns the fee for feeBps basis points of amount, rounded
// down, and what remains.
func CalculateFee(amount decimal.Decimal, feeBps int64, asset money.Asset) (fee, net decimal.Decimal, err error) {
	if amount.IsNegative() {
		return decimal.Zero, decimal.Zero, money.ErrNegativeAmount
	}
	if feeBps < 0 || feeBps > MaxFeeBps {
		return decimal.Zero, decimal.Zero, ErrInvalidFee
	}

	fee = asset.Round(amount.Mul(decimal.NewFromInt(feeBps)).Shift(-4))

	return fee, amount.Sub(fee), nil
}
