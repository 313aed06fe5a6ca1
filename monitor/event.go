package monitor

import (
	"time"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Kind string

const (
	EscrowCreated   Kind = "ESCROW_CREATED"
	SecretRevealed  Kind = "SECRET_REVEALED"
	EscrowCompleted Kind = "ESCROW_COMPLETED"
	EscrowRefunded  Kind = "ESCROW_REFUNDED"
)

// Event is a ledger event in chain independent form. Fields a kind does not
// carry are left zero: refunds only name the escrow, reveals carry the
// secret and the hashlock derived from it.
type Event struct {
	Kind      Kind
	Chain     models.Chain
	Sequence  uint64
	TxRef     string
	EscrowRef string
	Hashlock  lntypes.Hash
	Secret    *lntypes.Preimage
	// Whole units of the chain asset
	Amount   decimal.Decimal
	Timelock time.Time
	Sender   string
	Receiver string
	// Routing hints carried by source escrows
	DestinationChain   models.Chain
	DestinationAddress string
	ObservedAt         time.Time
}

func (e Event) Fields() log.Fields {
	fields := log.Fields{
		"kind":       e.Kind,
		"chain":      e.Chain,
		"sequence":   e.Sequence,
		"escrow_ref": e.EscrowRef,
		"tx_ref":     e.TxRef,
	}
	if e.Hashlock != (lntypes.Hash{}) {
		fields["hashlock"] = e.Hashlock.String()
	}

	return fields
}
