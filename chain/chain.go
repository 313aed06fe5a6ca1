package chain

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/money"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/shopspring/decimal"
)

var (
	ErrSecretMismatch        = errors.New("secret does not match the escrow hashlock")
	ErrEscrowNotFound        = errors.New("escrow not found")
	ErrAlreadyWithdrawn      = errors.New("escrow already withdrawn")
	ErrAlreadyRefunded       = errors.New("escrow already refunded")
	ErrTimelockNotExpired    = errors.New("escrow timelock not expired")
	ErrInsufficientLiquidity = errors.New("insufficient liquidity")
	ErrDisconnected          = errors.New("event stream disconnected")
	ErrUnsupportedChain      = errors.New("unsupported chain")
)

type transientError struct {
	err error
}

func (e *transientError) Error() string {
	return fmt.Sprintf("transient: %v", e.err)
}

func (e *transientError) Unwrap() error {
	return e.err
}

// Transient marks err as a retryable infrastructure failure.
func Transient(err error) error {
	if err == nil {
		return nil
	}

	return &transientError{err: err}
}

func IsTransient(err error) bool {
	var t *transientError

	return errors.As(err, &t) || errors.Is(err, context.DeadlineExceeded) || errors.Is(err, ErrDisconnected)
}

type EscrowRequest struct {
	Hashlock    lntypes.Hash
	Timelock    time.Time
	Beneficiary string
	// Whole units of the chain asset
	Amount decimal.Decimal
}

type EscrowReceipt struct {
	EscrowRef string
	TxRef     string
}

type EscrowState string

const (
	EscrowActive    EscrowState = "active"
	EscrowWithdrawn EscrowState = "withdrawn"
	EscrowRefunded  EscrowState = "refunded"
)

type Escrow struct {
	Ref         string
	Hashlock    lntypes.Hash
	Sender      string
	Beneficiary string
	Amount      decimal.Decimal
	Timelock    time.Time
	State       EscrowState
	Secret      *lntypes.Preimage
}

// NativeEvent is a ledger event as emitted by the chain, before
// normalization. Sequence is strictly increasing per chain.
type NativeEvent struct {
	Chain      models.Chain    `json:"chain"`
	Sequence   uint64          `json:"sequence"`
	TxRef      string          `json:"txRef"`
	Name       string          `json:"name"`
	Payload    json.RawMessage `json:"payload"`
	ObservedAt time.Time       `json:"observedAt"`
}

//go:generate go tool mockgen -destination=mock.go -package=chain . Adapter

// Adapter is the boundary to one ledger. Amounts are whole units of the
// chain asset.
type Adapter interface {
	Chain() models.Chain
	CreateEscrow(ctx context.Context, req EscrowRequest) (EscrowReceipt, error)
	Withdraw(ctx context.Context, escrowRef string, secret lntypes.Preimage) (string, error)
	Refund(ctx context.Context, escrowRef string) (string, error)
	GetEscrow(ctx context.Context, escrowRef string) (*Escrow, error)
	// Watch streams events with a sequence above after into sink until ctx
	// is done or the stream breaks.
	Watch(ctx context.Context, after uint64, sink chan<- NativeEvent) error
	EventsSince(ctx context.Context, after uint64, limit int) ([]NativeEvent, error)
}

// Set holds one adapter per chain.
type Set map[models.Chain]Adapter

func NewSet(adapters ...Adapter) Set {
	set := make(Set, len(adapters))
	for _, a := range adapters {
		set[a.Chain()] = a
	}

	return set
}

func (s Set) Get(c models.Chain) (Adapter, error) {
	a, ok := s[c]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnsupportedChain, c)
	}

	return a, nil
}

func AssetOf(c models.Chain) (money.Asset, error) {
	switch c {
	case models.Ethereum:
		return money.ETH, nil
	case models.Near:
		return money.NEAR, nil
	case models.Bitcoin:
		return money.BTC, nil
	}

	return money.Asset{}, fmt.Errorf("%w: %s", ErrUnsupportedChain, c)
}
