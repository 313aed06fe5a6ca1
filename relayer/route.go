package relayer

import (
	"context"
	"crypto/sha256"
	"encoding/binary"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/monitor"
	"github.com/40acres/htlc-bridge/registry"
	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/lightningnetwork/lnd/lntypes"
)

const maxRoutes = 4096

type escrowKey struct {
	chain models.Chain
	ref   string
}

// router assigns events to workers by hashlock. Refunds only name their
// escrow, so the hashlock is taken from the EscrowCreated event that came
// before them on the bus or, for escrows created before this process
// started, from the registry.
type router struct {
	store   registry.Store
	workers int
	routes  *lru.Cache[escrowKey, lntypes.Hash]
}

func newRouter(store registry.Store, workers int) *router {
	routes, err := lru.New[escrowKey, lntypes.Hash](maxRoutes)
	if err != nil {
		panic(err)
	}

	return &router{store: store, workers: workers, routes: routes}
}

func (r *router) hashlock(ctx context.Context, ev monitor.Event) lntypes.Hash {
	key := escrowKey{chain: ev.Chain, ref: ev.EscrowRef}
	if ev.Hashlock != (lntypes.Hash{}) {
		if ev.Kind == monitor.EscrowCreated {
			r.routes.Add(key, ev.Hashlock)
		}

		return ev.Hashlock
	}

	if hashlock, ok := r.routes.Get(key); ok {
		return hashlock
	}
	if swap, err := r.store.GetByEscrowRef(ctx, ev.Chain, ev.EscrowRef); err == nil {
		r.routes.Add(key, swap.Hashlock)

		return swap.Hashlock
	}

	// Unknown escrow, the handler drops it.
	return sha256.Sum256([]byte(ev.Chain.String() + ev.EscrowRef))
}

func (r *router) worker(ctx context.Context, ev monitor.Event) int {
	key := r.hashlock(ctx, ev)

	return int(binary.BigEndian.Uint32(key[:4]) % uint32(r.workers)) //nolint:gosec // small worker count
}
