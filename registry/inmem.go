package registry

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/lightningnetwork/lnd/lntypes"
)

// InmemRegistry is a Store kept in process memory. State is lost on restart.
type InmemRegistry struct {
	swaps        map[string]*models.Swap
	byHashlock   map[lntypes.Hash]string
	intents      map[string]*models.SwapIntent
	intentByHash map[lntypes.Hash]string
	cursors      map[models.Chain]uint64
	now          func() time.Time

	sync.RWMutex
}

var _ Store = (*InmemRegistry)(nil)

func NewInmemRegistry() *InmemRegistry {
	return &InmemRegistry{
		swaps:        make(map[string]*models.Swap),
		byHashlock:   make(map[lntypes.Hash]string),
		intents:      make(map[string]*models.SwapIntent),
		intentByHash: make(map[lntypes.Hash]string),
		cursors:      make(map[models.Chain]uint64),
		now:          time.Now,
	}
}

// WithClock replaces the clock used for timestamps.
func (r *InmemRegistry) WithClock(now func() time.Time) *InmemRegistry {
	r.now = now

	return r
}

func (r *InmemRegistry) Create(_ context.Context, swap *models.Swap) error {
	r.Lock()
	defer r.Unlock()

	if err := ValidateNew(swap, r.now()); err != nil {
		return err
	}
	if _, ok := r.byHashlock[swap.Hashlock]; ok {
		return ErrDuplicateHashlock
	}
	if _, ok := r.swaps[swap.ID]; ok {
		return ErrDuplicateHashlock
	}

	r.swaps[swap.ID] = swap.Clone()
	r.byHashlock[swap.Hashlock] = swap.ID

	return nil
}

func (r *InmemRegistry) Get(_ context.Context, id string) (*models.Swap, error) {
	r.RLock()
	defer r.RUnlock()

	swap, ok := r.swaps[id]
	if !ok {
		return nil, ErrSwapNotFound
	}

	return swap.Clone(), nil
}

func (r *InmemRegistry) GetByHashlock(ctx context.Context, hashlock lntypes.Hash) (*models.Swap, error) {
	r.RLock()
	id, ok := r.byHashlock[hashlock]
	r.RUnlock()
	if !ok {
		return nil, ErrSwapNotFound
	}

	return r.Get(ctx, id)
}

func (r *InmemRegistry) GetByEscrowRef(_ context.Context, chain models.Chain, escrowRef string) (*models.Swap, error) {
	r.RLock()
	defer r.RUnlock()

	for _, swap := range r.swaps {
		if swap.SourceChain == chain && swap.SourceEscrowRef == escrowRef {
			return swap.Clone(), nil
		}
		if swap.DestinationChain == chain && swap.CounterEscrow(escrowRef) != nil {
			return swap.Clone(), nil
		}
	}

	return nil, ErrSwapNotFound
}

func (r *InmemRegistry) ListByAccount(_ context.Context, account string, offset, limit int) ([]*models.Swap, error) {
	r.RLock()
	defer r.RUnlock()

	var matches []*models.Swap
	for _, swap := range r.swaps {
		if swap.InitiatorAddress == account || swap.BeneficiaryAddress == account {
			matches = append(matches, swap)
		}
	}
	sortByCreation(matches)

	return page(matches, offset, limit), nil
}

func (r *InmemRegistry) Transition(_ context.Context, id string, from, to models.SwapStatus, mutate Mutation) (*models.Swap, error) {
	r.Lock()
	defer r.Unlock()

	current, ok := r.swaps[id]
	if !ok {
		return nil, ErrSwapNotFound
	}

	next, err := ApplyTransition(current, from, to, mutate, r.now())
	if err != nil {
		return nil, err
	}
	r.swaps[id] = next

	return next.Clone(), nil
}

func (r *InmemRegistry) Update(_ context.Context, id string, mutate Mutation) (*models.Swap, error) {
	r.Lock()
	defer r.Unlock()

	current, ok := r.swaps[id]
	if !ok {
		return nil, ErrSwapNotFound
	}

	next, err := ApplyUpdate(current, mutate, r.now())
	if err != nil {
		return nil, err
	}
	r.swaps[id] = next

	return next.Clone(), nil
}

func (r *InmemRegistry) RecordFill(_ context.Context, id string, fill models.PartialFill) (*models.Swap, error) {
	r.Lock()
	defer r.Unlock()

	current, ok := r.swaps[id]
	if !ok {
		return nil, ErrSwapNotFound
	}

	next, changed, err := ApplyFill(current, fill, r.now())
	if err != nil {
		return nil, err
	}
	if changed {
		r.swaps[id] = next
	}

	return next.Clone(), nil
}

func (r *InmemRegistry) SweepExpired(_ context.Context, now time.Time) ([]*models.Swap, error) {
	r.RLock()
	defer r.RUnlock()

	var expired []*models.Swap
	for _, swap := range r.swaps {
		if swap.Status != models.StatusCreated && swap.Status != models.StatusLocked {
			continue
		}
		if !swap.DestinationTimelock.After(now) {
			expired = append(expired, swap.Clone())
		}
	}
	sort.Slice(expired, func(i, j int) bool {
		return expired[i].DestinationTimelock.Before(expired[j].DestinationTimelock)
	})

	return expired, nil
}

func (r *InmemRegistry) PendingRecovery(_ context.Context) ([]*models.Swap, error) {
	r.RLock()
	defer r.RUnlock()

	var pending []*models.Swap
	for _, swap := range r.swaps {
		if swap.NeedsRecovery() {
			pending = append(pending, swap.Clone())
		}
	}
	sortByCreation(pending)

	return pending, nil
}

func (r *InmemRegistry) Purge(_ context.Context, before time.Time) (int64, error) {
	r.Lock()
	defer r.Unlock()

	var purged int64
	for id, swap := range r.swaps {
		if swap.Status.IsTerminal() && !swap.NeedsRecovery() && swap.UpdatedAt.Before(before) {
			delete(r.swaps, id)
			delete(r.byHashlock, swap.Hashlock)
			purged++
		}
	}

	return purged, nil
}

func (r *InmemRegistry) CreateIntent(_ context.Context, intent *models.SwapIntent) error {
	r.Lock()
	defer r.Unlock()

	if _, ok := r.byHashlock[intent.Hashlock]; ok {
		return ErrDuplicateHashlock
	}
	if _, ok := r.intentByHash[intent.Hashlock]; ok {
		return ErrDuplicateHashlock
	}
	if intent.CreatedAt.IsZero() {
		intent.CreatedAt = r.now()
	}

	c := *intent
	r.intents[intent.ID] = &c
	r.intentByHash[intent.Hashlock] = intent.ID

	return nil
}

func (r *InmemRegistry) GetIntent(_ context.Context, id string) (*models.SwapIntent, error) {
	r.RLock()
	defer r.RUnlock()

	intent, ok := r.intents[id]
	if !ok {
		return nil, ErrIntentNotFound
	}
	c := *intent

	return &c, nil
}

func (r *InmemRegistry) GetIntentByHashlock(ctx context.Context, hashlock lntypes.Hash) (*models.SwapIntent, error) {
	r.RLock()
	id, ok := r.intentByHash[hashlock]
	r.RUnlock()
	if !ok {
		return nil, ErrIntentNotFound
	}

	return r.GetIntent(ctx, id)
}

func (r *InmemRegistry) DeleteIntent(_ context.Context, id string) error {
	r.Lock()
	defer r.Unlock()

	intent, ok := r.intents[id]
	if !ok {
		return ErrIntentNotFound
	}
	delete(r.intents, id)
	delete(r.intentByHash, intent.Hashlock)

	return nil
}

func (r *InmemRegistry) PurgeIntents(_ context.Context, before time.Time) (int64, error) {
	r.Lock()
	defer r.Unlock()

	var purged int64
	for id, intent := range r.intents {
		if intent.ExpiresAt.Before(before) {
			delete(r.intents, id)
			delete(r.intentByHash, intent.Hashlock)
			purged++
		}
	}

	return purged, nil
}

func (r *InmemRegistry) GetCursor(_ context.Context, chain models.Chain) (uint64, error) {
	r.RLock()
	defer r.RUnlock()

	return r.cursors[chain], nil
}

func (r *InmemRegistry) SaveCursor(_ context.Context, chain models.Chain, sequence uint64) error {
	r.Lock()
	defer r.Unlock()

	if sequence > r.cursors[chain] {
		r.cursors[chain] = sequence
	}

	return nil
}

func sortByCreation(swaps []*models.Swap) {
	sort.Slice(swaps, func(i, j int) bool {
		if swaps[i].CreatedAt.Equal(swaps[j].CreatedAt) {
			return swaps[i].ID < swaps[j].ID
		}

		return swaps[i].CreatedAt.Before(swaps[j].CreatedAt)
	})
}

func page(swaps []*models.Swap, offset, limit int) []*models.Swap {
	if offset >= len(swaps) {
		return []*models.Swap{}
	}
	swaps = swaps[offset:]
	if limit > 0 && limit < len(swaps) {
		swaps = swaps[:limit]
	}

	out := make([]*models.Swap, 0, len(swaps))
	for _, s := range swaps {
		out = append(out, s.Clone())
	}

	return out
}
