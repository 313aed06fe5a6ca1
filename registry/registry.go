package registry

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/lightningnetwork/lnd/lntypes"
)

var (
	ErrSwapNotFound       = errors.New("swap not found")
	ErrIntentNotFound     = errors.New("swap intent not found")
	ErrDuplicateHashlock  = errors.New("hashlock already registered")
	ErrStatusMismatch     = errors.New("swap status does not match the expected status")
	ErrConsistency        = errors.New("consistency violation")
	ErrFillExceedsCounter = errors.New("fill would exceed the counter amount")
	ErrFillNotAllowed     = errors.New("fills can only be recorded on locked swaps")
	ErrInvalidSecret      = errors.New("secret does not hash to the swap hashlock")
	ErrInvalidSwap        = errors.New("invalid swap")
)

// TransitionError is returned for a status change the state machine does not
// allow.
type TransitionError struct {
	From models.SwapStatus
	To   models.SwapStatus
}

func (e *TransitionError) Error() string {
	return fmt.Sprintf("illegal transition %s -> %s", e.From, e.To)
}

// Mutation edits a copy of the swap inside an atomic update. It must not change
// the status: that is the job of Transition.
type Mutation func(*models.Swap) error

// Registry is the authoritative store of swaps. Every write is atomic per
// swap and returns the committed state.
type Registry interface {
	Create(ctx context.Context, swap *models.Swap) error
	Get(ctx context.Context, id string) (*models.Swap, error)
	GetByHashlock(ctx context.Context, hashlock lntypes.Hash) (*models.Swap, error)
	// GetByEscrowRef finds the swap owning an escrow, either the source
	// escrow or one of its counter escrows.
	GetByEscrowRef(ctx context.Context, chain models.Chain, escrowRef string) (*models.Swap, error)
	ListByAccount(ctx context.Context, account string, offset, limit int) ([]*models.Swap, error)
	Transition(ctx context.Context, id string, from, to models.SwapStatus, mutate Mutation) (*models.Swap, error)
	Update(ctx context.Context, id string, mutate Mutation) (*models.Swap, error)
	// RecordFill appends a fill. Recording the same escrow twice is a no-op.
	RecordFill(ctx context.Context, id string, fill models.PartialFill) (*models.Swap, error)
	// SweepExpired returns CREATED and LOCKED swaps whose destination
	// deadline is not after now.
	SweepExpired(ctx context.Context, now time.Time) ([]*models.Swap, error)
	PendingRecovery(ctx context.Context) ([]*models.Swap, error)
	// Purge deletes settled swaps last updated before the cutoff.
	Purge(ctx context.Context, before time.Time) (int64, error)
}

type IntentStore interface {
	CreateIntent(ctx context.Context, intent *models.SwapIntent) error
	GetIntent(ctx context.Context, id string) (*models.SwapIntent, error)
	GetIntentByHashlock(ctx context.Context, hashlock lntypes.Hash) (*models.SwapIntent, error)
	DeleteIntent(ctx context.Context, id string) error
	PurgeIntents(ctx context.Context, before time.Time) (int64, error)
}

// CursorStore keeps the last processed event sequence per chain. Zero means
// nothing was processed yet.
type CursorStore interface {
	GetCursor(ctx context.Context, chain models.Chain) (uint64, error)
	SaveCursor(ctx context.Context, chain models.Chain, sequence uint64) error
}

type Store interface {
	Registry
	IntentStore
	CursorStore
}
