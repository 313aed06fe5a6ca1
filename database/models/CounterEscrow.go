package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// CounterEscrow is a destination chain escrow locked under the swap hashlock,
// either by the relayer itself or by a resolver.
type CounterEscrow struct {
	SwapID           string          `gorm:"primaryKey"`
	EscrowRef        string          `gorm:"primaryKey"`
	Amount           decimal.Decimal `gorm:"type:numeric;not null"`
	CreatedByRelayer bool            `gorm:"not null;default:false"`
	TxRef            string          `gorm:"not null;default:''"`
	RefundTx         string          `gorm:"not null;default:''"`
	// Resolver incentive in force when a resolver escrow was recorded
	IncentiveBps decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	// Set when the escrow was claimed while the swap could no longer take fills
	WithdrawTx string    `gorm:"not null;default:''"`
	CreatedAt  time.Time `gorm:"autoCreateTime"`
}

func (CounterEscrow) TableName() string {
	return "counter_escrows"
}
