package money

import (
	"errors"
	"fmt"

	"github.com/shopspring/decimal"
)

// Asset is the native unit of a ledger. Amounts are carried around in whole
// units (1.5 ETH) and only turned into base units (wei, yoctoNEAR, sats) at
// the adapter boundary.
type Asset struct {
	Symbol   string
	Decimals int32
}

var (
	ETH  = Asset{Symbol: "ETH", Decimals: 18}
	NEAR = Asset{Symbol: "NEAR", Decimals: 24}
	BTC  = Asset{Symbol: "BTC", Decimals: 8}
	USD  = Asset{Symbol: "USD", Decimals: 2}
)

// ErrNegativeAmount is returned when trying to use a negative amount.
var ErrNegativeAmount = errors.New("amount cannot be negative")

func (a Asset) String() string {
	return a.Symbol
}

// ToBaseUnits converts a whole-unit amount to the asset's smallest unit,
// dropping anything below one base unit.
func (a Asset) ToBaseUnits(amount decimal.Decimal) (decimal.Decimal, error) {
	if amount.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}

	return amount.Shift(a.Decimals).Truncate(0), nil
}

func (a Asset) FromBaseUnits(base decimal.Decimal) decimal.Decimal {
	return base.Shift(-a.Decimals)
}

// Round rounds an amount down to the asset precision.
func (a Asset) Round(amount decimal.Decimal) decimal.Decimal {
	return amount.RoundDown(a.Decimals)
}

// Parse reads a positive whole-unit amount such as "1.25".
func Parse(value string) (decimal.Decimal, error) {
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, ErrNegativeAmount
	}

	return amount, nil
}
