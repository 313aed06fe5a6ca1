package registry

import (
	"fmt"
	"time"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/google/uuid"
)

var transitions = map[models.SwapStatus][]models.SwapStatus{
	models.StatusCreated: {models.StatusLocked, models.StatusFailed},
	models.StatusLocked:  {models.StatusCompleted, models.StatusExpired, models.StatusFailed},
	models.StatusExpired: {models.StatusRefunded},
}

func CanTransition(from, to models.SwapStatus) bool {
	for _, allowed := range transitions[from] {
		if allowed == to {
			return true
		}
	}

	return false
}

// ValidateNew checks a swap before its first insert and fills defaults.
func ValidateNew(swap *models.Swap, now time.Time) error {
	switch {
	case swap.ID == "":
		return fmt.Errorf("%w: missing id", ErrInvalidSwap)
	case !swap.SourceChain.IsValid() || !swap.DestinationChain.IsValid():
		return fmt.Errorf("%w: unknown chain", ErrInvalidSwap)
	case swap.SourceChain == swap.DestinationChain:
		return fmt.Errorf("%w: source and destination chain must differ", ErrInvalidSwap)
	case !swap.PrincipalAmount.IsPositive() || !swap.CounterAmount.IsPositive():
		return fmt.Errorf("%w: amounts must be positive", ErrInvalidSwap)
	case !swap.DestinationTimelock.Before(swap.Timelock):
		return fmt.Errorf("%w: destination timelock must be before the source timelock", ErrInvalidSwap)
	case len(swap.Fills) > 0:
		return fmt.Errorf("%w: a new swap cannot carry fills", ErrInvalidSwap)
	case swap.Status != "" && swap.Status != models.StatusCreated:
		return fmt.Errorf("%w: a new swap must be %s", ErrInvalidSwap, models.StatusCreated)
	case swap.Secret != nil && !swap.Secret.Matches(swap.Hashlock):
		return ErrInvalidSecret
	}

	swap.Status = models.StatusCreated
	if swap.CreatedAt.IsZero() {
		swap.CreatedAt = now
	}
	swap.UpdatedAt = now
	for i := range swap.CounterEscrows {
		swap.CounterEscrows[i].SwapID = swap.ID
	}

	return nil
}

// ApplyTransition computes the next state of current for a from -> to
// transition. current is never modified.
func ApplyTransition(current *models.Swap, from, to models.SwapStatus, mutate Mutation, now time.Time) (*models.Swap, error) {
	if !CanTransition(from, to) {
		return nil, &TransitionError{From: from, To: to}
	}
	if current.Status != from {
		return nil, fmt.Errorf("%w: swap %s is %s, expected %s", ErrStatusMismatch, current.ID, current.Status, from)
	}

	next, err := mutated(current, mutate)
	if err != nil {
		return nil, err
	}

	if to == models.StatusLocked && !next.IsFullyEscrowed() {
		return nil, fmt.Errorf("%w: counter escrows %s do not cover %s", ErrConsistency, next.EscrowedAmount(), next.CounterAmount)
	}
	if to == models.StatusCompleted && !next.IsFullyFilled() {
		return nil, fmt.Errorf("%w: fills %s do not cover %s", ErrConsistency, next.FilledAmount(), next.CounterAmount)
	}

	next.Status = to
	next.UpdatedAt = now

	return next, nil
}

func ApplyUpdate(current *models.Swap, mutate Mutation, now time.Time) (*models.Swap, error) {
	next, err := mutated(current, mutate)
	if err != nil {
		return nil, err
	}
	next.UpdatedAt = now

	return next, nil
}

// ApplyFill appends fill to current. changed is false when the escrow was
// already recorded.
func ApplyFill(current *models.Swap, fill models.PartialFill, now time.Time) (next *models.Swap, changed bool, err error) {
	if fill.EscrowRef == "" {
		return nil, false, fmt.Errorf("%w: fill without escrow reference", ErrConsistency)
	}
	if current.HasFill(fill.EscrowRef) {
		return current.Clone(), false, nil
	}
	if current.Status != models.StatusLocked {
		return nil, false, fmt.Errorf("%w: swap %s is %s", ErrFillNotAllowed, current.ID, current.Status)
	}
	if !fill.Amount.IsPositive() {
		return nil, false, fmt.Errorf("%w: fill amount must be positive", ErrConsistency)
	}

	total := current.FilledAmount().Add(fill.Amount)
	if total.GreaterThan(current.CounterAmount) {
		return nil, false, fmt.Errorf("%w: %s + %s > %s", ErrFillExceedsCounter, current.FilledAmount(), fill.Amount, current.CounterAmount)
	}

	next = current.Clone()
	if fill.FillID == uuid.Nil {
		fill.FillID = uuid.New()
	}
	fill.SwapID = current.ID
	fill.Position = len(next.Fills)
	if fill.CreatedAt.IsZero() {
		fill.CreatedAt = now
	}
	next.Fills = append(next.Fills, fill)
	if next.IsFullyFilled() {
		next.Status = models.StatusCompleted
	}
	next.UpdatedAt = now

	return next, true, nil
}

func mutated(current *models.Swap, mutate Mutation) (*models.Swap, error) {
	next := current.Clone()
	if mutate != nil {
		if err := mutate(next); err != nil {
			return nil, err
		}
	}
	if err := checkInvariants(current, next); err != nil {
		return nil, err
	}
	for i := range next.CounterEscrows {
		next.CounterEscrows[i].SwapID = next.ID
	}

	return next, nil
}

func checkInvariants(prev, next *models.Swap) error {
	switch {
	case next.ID != prev.ID:
		return fmt.Errorf("%w: id is immutable", ErrConsistency)
	case next.Hashlock != prev.Hashlock:
		return fmt.Errorf("%w: hashlock is immutable", ErrConsistency)
	case !next.CounterAmount.Equal(prev.CounterAmount) || !next.PrincipalAmount.Equal(prev.PrincipalAmount):
		return fmt.Errorf("%w: amounts are immutable", ErrConsistency)
	case next.SourceChain != prev.SourceChain || next.DestinationChain != prev.DestinationChain:
		return fmt.Errorf("%w: chains are immutable", ErrConsistency)
	case next.Status != prev.Status:
		return fmt.Errorf("%w: status can only change through a transition", ErrConsistency)
	case len(next.Fills) != len(prev.Fills):
		return fmt.Errorf("%w: fills can only be added through RecordFill", ErrConsistency)
	}

	if prev.Secret != nil && (next.Secret == nil || *next.Secret != *prev.Secret) {
		return fmt.Errorf("%w: secret can only be set once", ErrConsistency)
	}
	if next.Secret != nil && !next.Secret.Matches(next.Hashlock) {
		return ErrInvalidSecret
	}

	if len(next.CounterEscrows) < len(prev.CounterEscrows) {
		return fmt.Errorf("%w: counter escrows cannot be removed", ErrConsistency)
	}
	for i, e := range prev.CounterEscrows {
		n := next.CounterEscrows[i]
		if n.EscrowRef != e.EscrowRef || !n.Amount.Equal(e.Amount) {
			return fmt.Errorf("%w: counter escrow %s was modified", ErrConsistency, e.EscrowRef)
		}
	}
	seen := make(map[string]struct{}, len(next.CounterEscrows))
	for _, e := range next.CounterEscrows {
		if _, dup := seen[e.EscrowRef]; dup {
			return fmt.Errorf("%w: duplicate counter escrow %s", ErrConsistency, e.EscrowRef)
		}
		seen[e.EscrowRef] = struct{}{}
		if !e.Amount.IsPositive() {
			return fmt.Errorf("%w: counter escrow %s has no amount", ErrConsistency, e.EscrowRef)
		}
	}
	if next.EscrowedAmount().GreaterThan(next.CounterAmount) {
		return fmt.Errorf("%w: counter escrows %s exceed %s", ErrConsistency, next.EscrowedAmount(), next.CounterAmount)
	}

	return nil
}
