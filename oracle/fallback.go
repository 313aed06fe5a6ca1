package oracle

import (
	"github.com/40acres/htlc-bridge/money"
	"github.com/shopspring/decimal"
)

const fallbackPrecision = 18

// FallbackTable holds static USD prices per asset symbol.
type FallbackTable map[string]decimal.Decimal

// Rate derives from -> to through USD.
func (t FallbackTable) Rate(from, to money.Asset) (decimal.Decimal, bool) {
	fromUSD, ok := t.usd(from.Symbol)
	if !ok {
		return decimal.Zero, false
	}
	toUSD, ok := t.usd(to.Symbol)
	if !ok {
		return decimal.Zero, false
	}

	return fromUSD.DivRound(toUSD, fallbackPrecision), true
}

func (t FallbackTable) usd(symbol string) (decimal.Decimal, bool) {
	if symbol == money.USD.Symbol {
		return decimal.NewFromInt(1), true
	}
	price, ok := t[symbol]
	if !ok || !price.IsPositive() {
		return decimal.Zero, false
	}

	return price, true
}
