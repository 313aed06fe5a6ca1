package models

import (
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// PartialFill is a destination escrow settled to the beneficiary.
type PartialFill struct {
	FillID    uuid.UUID       `gorm:"type:uuid;primaryKey"`
	SwapID    string          `gorm:"not null;uniqueIndex:idx_fill_escrow"`
	EscrowRef string          `gorm:"not null;uniqueIndex:idx_fill_escrow"`
	Amount    decimal.Decimal `gorm:"type:numeric;not null"`
	TxRef     string          `gorm:"not null;default:''"`
	Position  int             `gorm:"not null"`
	CreatedAt time.Time       `gorm:"autoCreateTime"`
}

func (PartialFill) TableName() string {
	return "partial_fills"
}
