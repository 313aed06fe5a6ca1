// Package auction prices resolver incentives with a linear Dutch auction.
package auction

import (
	"time"

	"github.com/shopspring/decimal"
)

// CurrentPrice interpolates linearly from start at elapsed=0 down to floor at
// elapsed>=decay. The result never rises over time and never leaves
// [floor, start].
func CurrentPrice(start, floor decimal.Decimal, elapsed, decay time.Duration) decimal.Decimal {
	if start.LessThanOrEqual(floor) {
		return floor
	}
	if elapsed <= 0 {
		return start
	}
	if decay <= 0 || elapsed >= decay {
		return floor
	}

	progress := decimal.NewFromInt(int64(elapsed)).Div(decimal.NewFromInt(int64(decay)))
	price := start.Sub(start.Sub(floor).Mul(progress))

	return decimal.Max(floor, decimal.Min(start, price))
}

// Schedule is a Dutch auction anchored at a start time.
type Schedule struct {
	Start    decimal.Decimal
	Floor    decimal.Decimal
	Duration time.Duration
}

func (s Schedule) PriceAt(startedAt, now time.Time) decimal.Decimal {
	return CurrentPrice(s.Start, s.Floor, now.Sub(startedAt), s.Duration)
}
