package models

import (
	"time"

	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/shopspring/decimal"
)

// SwapIntent is a swap submitted through the API that waits for its source
// escrow to show up on chain.
type SwapIntent struct {
	ID                 string            `gorm:"primaryKey"`
	Hashlock           lntypes.Hash      `gorm:"serializer:hash;uniqueIndex;not null"`
	Secret             *lntypes.Preimage `gorm:"serializer:preimage;not null"`
	SourceChain        Chain             `gorm:"type:chain;not null"`
	DestinationChain   Chain             `gorm:"type:chain;not null"`
	Amount             decimal.Decimal   `gorm:"type:numeric;not null"`
	InitiatorAddress   string            `gorm:"not null;default:''"`
	BeneficiaryAddress string            `gorm:"not null"`
	Timelock           time.Time         `gorm:"not null"`
	ExpiresAt          time.Time         `gorm:"not null;index"`
	CreatedAt          time.Time         `gorm:"autoCreateTime"`
}

func (SwapIntent) TableName() string {
	return "swap_intents"
}
