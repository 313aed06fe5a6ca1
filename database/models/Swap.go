package models

import (
	"fmt"
	"time"

	"github.com/40acres/htlc-bridge/crypto"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/shopspring/decimal"
)

type Swap struct {
	// Hex sha256 of initiator-beneficiary-hashlock-timelock, or the intent id
	// when the swap was submitted through the API.
	ID       string            `gorm:"primaryKey"`
	Hashlock lntypes.Hash      `gorm:"serializer:hash;uniqueIndex;not null"`
	Secret   *lntypes.Preimage `gorm:"serializer:preimage"`

	SourceChain      Chain `gorm:"type:chain;not null"`
	DestinationChain Chain `gorm:"type:chain;not null"`

	// Whole units of the source asset
	PrincipalAmount decimal.Decimal `gorm:"type:numeric;not null"`
	// Whole units of the destination asset, fixed at quote time
	CounterAmount decimal.Decimal `gorm:"type:numeric;not null"`
	FeeAmount     decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	QuoteRate     decimal.Decimal `gorm:"type:numeric;not null;default:0"`
	QuoteSource   string          `gorm:"not null;default:''"`

	InitiatorAddress   string `gorm:"not null;index"`
	BeneficiaryAddress string `gorm:"not null;index"`

	// Source escrow
	SourceEscrowRef  string `gorm:"not null;default:''"`
	SourceTxRef      string `gorm:"not null;default:''"`
	SourceWithdrawTx string `gorm:"not null;default:''"`
	SourceRefundTx   string `gorm:"not null;default:''"`

	Timelock            time.Time `gorm:"not null"`
	DestinationTimelock time.Time `gorm:"not null;index"`

	Status           SwapStatus `gorm:"type:swap_status;not null;index"`
	RecoveryAttempts int        `gorm:"not null;default:0"`
	LastError        string     `gorm:"not null;default:''"`

	Fills          []PartialFill   `gorm:"foreignKey:SwapID;constraint:OnDelete:CASCADE"`
	CounterEscrows []CounterEscrow `gorm:"foreignKey:SwapID;constraint:OnDelete:CASCADE"`

	CreatedAt time.Time `gorm:"autoCreateTime"`
	UpdatedAt time.Time `gorm:"autoUpdateTime;index"`
}

func (Swap) TableName() string {
	return "swaps"
}

// SwapID derives the deterministic identifier of a swap.
func SwapID(initiator, beneficiary string, hashlock lntypes.Hash, timelock time.Time) string {
	return crypto.HashOf([]byte(fmt.Sprintf("%s-%s-%s-%d", initiator, beneficiary, hashlock, timelock.Unix())))
}

func (s *Swap) FilledAmount() decimal.Decimal {
	total := decimal.Zero
	for _, f := range s.Fills {
		total = total.Add(f.Amount)
	}

	return total
}

func (s *Swap) EscrowedAmount() decimal.Decimal {
	total := decimal.Zero
	for _, e := range s.CounterEscrows {
		total = total.Add(e.Amount)
	}

	return total
}

func (s *Swap) IsFullyFilled() bool {
	return s.FilledAmount().Equal(s.CounterAmount)
}

func (s *Swap) IsFullyEscrowed() bool {
	return s.EscrowedAmount().GreaterThanOrEqual(s.CounterAmount)
}

func (s *Swap) HasFill(escrowRef string) bool {
	for _, f := range s.Fills {
		if f.EscrowRef == escrowRef {
			return true
		}
	}

	return false
}

func (s *Swap) CounterEscrow(escrowRef string) *CounterEscrow {
	for i := range s.CounterEscrows {
		if s.CounterEscrows[i].EscrowRef == escrowRef {
			return &s.CounterEscrows[i]
		}
	}

	return nil
}

// IsSettled reports whether the escrow no longer holds funds.
func (s *Swap) IsSettled(e CounterEscrow) bool {
	return e.RefundTx != "" || e.WithdrawTx != "" || s.HasFill(e.EscrowRef)
}

// UnsettledEscrows returns counter escrows still holding funds.
func (s *Swap) UnsettledEscrows() []CounterEscrow {
	var out []CounterEscrow
	for _, e := range s.CounterEscrows {
		if !s.IsSettled(e) {
			out = append(out, e)
		}
	}

	return out
}

// LegsRefunded reports whether the source escrow and every relayer escrow
// have been closed, by a refund or a late claim.
func (s *Swap) LegsRefunded() bool {
	if s.SourceRefundTx == "" && s.SourceWithdrawTx == "" {
		return false
	}
	for _, e := range s.CounterEscrows {
		if e.CreatedByRelayer && !s.IsSettled(e) {
			return false
		}
	}

	return true
}

// CounterClaimed reports whether the beneficiary withdrew any counter escrow.
func (s *Swap) CounterClaimed() bool {
	for _, e := range s.CounterEscrows {
		if e.WithdrawTx != "" || s.HasFill(e.EscrowRef) {
			return true
		}
	}

	return false
}

// NeedsRecovery reports whether an outbound action is still owed on the swap.
func (s *Swap) NeedsRecovery() bool {
	switch s.Status {
	case StatusExpired:
		return true
	case StatusFailed:
		return s.SourceEscrowRef != "" && s.SourceRefundTx == "" && s.SourceWithdrawTx == ""
	case StatusCompleted:
		return s.SourceWithdrawTx == ""
	case StatusLocked:
		return s.Secret != nil
	}

	return false
}

// Clone returns a deep copy so callers cannot alias registry state.
func (s *Swap) Clone() *Swap {
	c := *s
	if s.Secret != nil {
		secret := *s.Secret
		c.Secret = &secret
	}
	c.Fills = append([]PartialFill(nil), s.Fills...)
	c.CounterEscrows = append([]CounterEscrow(nil), s.CounterEscrows...)

	return &c
}
