package relayer

import (
	"context"
	"fmt"
	"time"

	"github.com/40acres/htlc-bridge/auction"
	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/oracle"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type QuoteRequest struct {
	SourceChain      models.Chain
	DestinationChain models.Chain
	// Whole units of the source asset
	Amount decimal.Decimal
}

type Quote struct {
	// Whole units of the destination asset the beneficiary receives
	CounterAmount decimal.Decimal
	Rate          decimal.Decimal
	// Fee and net principal, in source units
	Fee    decimal.Decimal
	Net    decimal.Decimal
	Source string
	// Priced from the fallback table
	Fallback bool
	// Destination chain gas for the counter escrow
	EstimatedGas decimal.Decimal
	// Opening Dutch auction incentive offered to resolvers
	ResolverIncentiveBps decimal.Decimal
}

func (r *Relayer) GetQuote(ctx context.Context, req QuoteRequest) (*Quote, error) {
	if err := r.validateRoute(req.SourceChain, req.DestinationChain); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, validation("amount", "must be positive", nil)
	}

	q, err := r.quote(ctx, req.SourceChain, req.DestinationChain, req.Amount)
	if err != nil {
		return nil, err
	}
	q.ResolverIncentiveBps = r.auction().Start

	return q, nil
}

// quote takes the fee from the principal and converts what remains. The
// counter amount is fixed here and never recomputed.
func (r *Relayer) quote(ctx context.Context, src, dst models.Chain, amount decimal.Decimal) (*Quote, error) {
	srcAsset, err := chain.AssetOf(src)
	if err != nil {
		return nil, validation("source_chain", err.Error(), err)
	}
	dstAsset, err := chain.AssetOf(dst)
	if err != nil {
		return nil, validation("destination_chain", err.Error(), err)
	}

	fee, net, err := oracle.CalculateFee(amount, r.config.FeeBps, srcAsset)
	if err != nil {
		return nil, validation("amount", err.Error(), err)
	}

	conv, err := r.prices.Convert(ctx, net, srcAsset, dstAsset)
	if err != nil {
		return nil, fmt.Errorf("failed to convert %s %s to %s: %w", net, srcAsset, dstAsset, err)
	}

	fallback := conv.Source == oracle.FallbackSource
	if fallback {
		if r.config.RefuseFallbackQuotes {
			return nil, ErrFallbackRefused
		}
		log.Warnf("quote for %s %s -> %s priced from the fallback table", amount, srcAsset, dstAsset)
	}
	if !conv.Amount.IsPositive() {
		return nil, validation("amount", "too small to cover the fee", ErrAmountTooSmall)
	}

	return &Quote{
		CounterAmount: conv.Amount,
		Rate:          conv.Rate,
		Fee:           fee,
		Net:           net,
		Source:        conv.Source,
		Fallback:      fallback,
		EstimatedGas:  r.config.GasEstimates[dst],
	}, nil
}

func (r *Relayer) validateRoute(src, dst models.Chain) error {
	if _, err := r.adapters.Get(src); err != nil {
		return validation("source_chain", err.Error(), err)
	}
	if _, err := r.adapters.Get(dst); err != nil {
		return validation("destination_chain", err.Error(), err)
	}
	if src == dst {
		return validation("destination_chain", "must differ from the source chain", nil)
	}

	return nil
}

// destinationTimelock places the counter escrow deadline a safety margin
// before the source deadline, within the configured window.
func (r *Relayer) destinationTimelock(source time.Time) (time.Time, error) {
	now := r.now()

	dst := source.Add(-r.config.TimelockSafetyMargin)
	if latest := now.Add(r.config.MaxTimelock); dst.After(latest) {
		dst = latest
	}
	if dst.Before(now.Add(r.config.MinTimelock)) {
		return time.Time{}, validation("timelock", fmt.Sprintf("leaves less than %s for the destination leg", r.config.MinTimelock), nil)
	}

	return dst, nil
}

func (r *Relayer) auction() auction.Schedule {
	return auction.Schedule{
		Start:    decimal.NewFromInt(r.config.AuctionStartBps),
		Floor:    decimal.NewFromInt(r.config.AuctionFloorBps),
		Duration: r.config.AuctionDuration,
	}
}
