// Package registrytest holds the behaviour every registry.Store must share.
package registrytest

import (
	"bytes"
	"context"
	"sync"
	"testing"
	"time"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/registry"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// Secret returns a deterministic secret built from seed.
func Secret(seed byte) lntypes.Preimage {
	var p lntypes.Preimage
	copy(p[:], bytes.Repeat([]byte{seed}, lntypes.PreimageSize))

	return p
}

// NewSwap returns a valid CREATED swap from ethereum to near for 10 NEAR.
func NewSwap(seed byte) *models.Swap {
	secret := Secret(seed)
	timelock := time.Now().Add(2 * time.Hour).Truncate(time.Second)

	swap := &models.Swap{
		Hashlock:            secret.Hash(),
		SourceChain:         models.Ethereum,
		DestinationChain:    models.Near,
		PrincipalAmount:     decimal.NewFromInt(1),
		CounterAmount:       decimal.NewFromInt(10),
		InitiatorAddress:    "0x00000000000000000000000000000000000000a1",
		BeneficiaryAddress:  "bob.near",
		SourceEscrowRef:     "src-" + secret.Hash().String()[:8],
		Timelock:            timelock,
		DestinationTimelock: timelock.Add(-30 * time.Minute),
	}
	swap.ID = models.SwapID(swap.InitiatorAddress, swap.BeneficiaryAddress, swap.Hashlock, swap.Timelock)

	return swap
}

func escrow(ref string, amount int64) models.CounterEscrow {
	return models.CounterEscrow{EscrowRef: ref, Amount: decimal.NewFromInt(amount), CreatedByRelayer: true}
}

func addEscrows(escrows ...models.CounterEscrow) registry.Mutation {
	return func(s *models.Swap) error {
		s.CounterEscrows = append(s.CounterEscrows, escrows...)

		return nil
	}
}

// Locked creates a swap and moves it to LOCKED with the given escrows.
func Locked(t *testing.T, store registry.Store, swap *models.Swap, escrows ...models.CounterEscrow) *models.Swap {
	t.Helper()
	ctx := context.Background()

	require.NoError(t, store.Create(ctx, swap))
	if len(escrows) == 0 {
		escrows = []models.CounterEscrow{escrow("dst-1", swap.CounterAmount.IntPart())}
	}
	locked, err := store.Transition(ctx, swap.ID, models.StatusCreated, models.StatusLocked, addEscrows(escrows...))
	require.NoError(t, err)

	return locked
}

// Run exercises a registry.Store implementation. newStore must return an
// empty store for every call.
func Run(t *testing.T, newStore func(t *testing.T) registry.Store) {
	t.Helper()
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		store := newStore(t)
		swap := NewSwap(1)
		require.NoError(t, store.Create(ctx, swap))

		got, err := store.Get(ctx, swap.ID)
		require.NoError(t, err)
		require.Equal(t, models.StatusCreated, got.Status)
		require.Equal(t, swap.Hashlock, got.Hashlock)
		require.True(t, swap.CounterAmount.Equal(got.CounterAmount))
		require.Nil(t, got.Secret)

		byHash, err := store.GetByHashlock(ctx, swap.Hashlock)
		require.NoError(t, err)
		require.Equal(t, swap.ID, byHash.ID)

		_, err = store.Get(ctx, "missing")
		require.ErrorIs(t, err, registry.ErrSwapNotFound)
	})

	t.Run("duplicate hashlock is rejected", func(t *testing.T) {
		store := newStore(t)
		require.NoError(t, store.Create(ctx, NewSwap(2)))

		dup := NewSwap(2)
		dup.ID = "other-id"
		require.ErrorIs(t, store.Create(ctx, dup), registry.ErrDuplicateHashlock)
	})

	t.Run("invalid swap is rejected", func(t *testing.T) {
		store := newStore(t)
		swap := NewSwap(3)
		swap.DestinationTimelock = swap.Timelock
		require.ErrorIs(t, store.Create(ctx, swap), registry.ErrInvalidSwap)

		swap = NewSwap(3)
		swap.DestinationChain = swap.SourceChain
		require.ErrorIs(t, store.Create(ctx, swap), registry.ErrInvalidSwap)
	})

	t.Run("legal transitions", func(t *testing.T) {
		store := newStore(t)
		swap := Locked(t, store, NewSwap(4))
		require.Equal(t, models.StatusLocked, swap.Status)
		require.Len(t, swap.CounterEscrows, 1)

		expired, err := store.Transition(ctx, swap.ID, models.StatusLocked, models.StatusExpired, nil)
		require.NoError(t, err)
		require.Equal(t, models.StatusExpired, expired.Status)

		refunded, err := store.Transition(ctx, swap.ID, models.StatusExpired, models.StatusRefunded, func(s *models.Swap) error {
			s.SourceRefundTx = "refund-src"
			s.CounterEscrows[0].RefundTx = "refund-dst"

			return nil
		})
		require.NoError(t, err)
		require.Equal(t, models.StatusRefunded, refunded.Status)
		require.Equal(t, "refund-dst", refunded.CounterEscrows[0].RefundTx)
	})

	t.Run("illegal transition", func(t *testing.T) {
		store := newStore(t)
		swap := NewSwap(5)
		require.NoError(t, store.Create(ctx, swap))

		_, err := store.Transition(ctx, swap.ID, models.StatusCreated, models.StatusCompleted, nil)
		var terr *registry.TransitionError
		require.ErrorAs(t, err, &terr)
		require.Equal(t, models.StatusCreated, terr.From)
		require.Equal(t, models.StatusCompleted, terr.To)

		_, err = store.Transition(ctx, swap.ID, models.StatusRefunded, models.StatusLocked, nil)
		require.ErrorAs(t, err, &terr)
	})

	t.Run("status mismatch", func(t *testing.T) {
		store := newStore(t)
		swap := NewSwap(6)
		require.NoError(t, store.Create(ctx, swap))

		_, err := store.Transition(ctx, swap.ID, models.StatusLocked, models.StatusExpired, nil)
		require.ErrorIs(t, err, registry.ErrStatusMismatch)

		got, err := store.Get(ctx, swap.ID)
		require.NoError(t, err)
		require.Equal(t, models.StatusCreated, got.Status)
	})

	t.Run("locking requires covering escrows", func(t *testing.T) {
		store := newStore(t)
		swap := NewSwap(7)
		require.NoError(t, store.Create(ctx, swap))

		_, err := store.Transition(ctx, swap.ID, models.StatusCreated, models.StatusLocked, addEscrows(escrow("dst", 4)))
		require.ErrorIs(t, err, registry.ErrConsistency)

		_, err = store.Transition(ctx, swap.ID, models.StatusCreated, models.StatusLocked, addEscrows(escrow("dst", 11)))
		require.ErrorIs(t, err, registry.ErrConsistency)
	})

	t.Run("concurrent transitions have a single winner", func(t *testing.T) {
		store := newStore(t)
		swap := NewSwap(8)
		require.NoError(t, store.Create(ctx, swap))

		var wg sync.WaitGroup
		results := make(chan error, 8)
		for range 8 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, err := store.Transition(ctx, swap.ID, models.StatusCreated, models.StatusFailed, nil)
				results <- err
			}()
		}
		wg.Wait()
		close(results)

		var wins int
		for err := range results {
			if err == nil {
				wins++

				continue
			}
			require.ErrorIs(t, err, registry.ErrStatusMismatch)
		}
		require.Equal(t, 1, wins)
	})

	t.Run("immutable fields", func(t *testing.T) {
		store := newStore(t)
		swap := NewSwap(9)
		require.NoError(t, store.Create(ctx, swap))

		_, err := store.Update(ctx, swap.ID, func(s *models.Swap) error {
			s.CounterAmount = decimal.NewFromInt(99)

			return nil
		})
		require.ErrorIs(t, err, registry.ErrConsistency)

		_, err = store.Update(ctx, swap.ID, func(s *models.Swap) error {
			s.Hashlock = lntypes.Hash{}

			return nil
		})
		require.ErrorIs(t, err, registry.ErrConsistency)

		_, err = store.Update(ctx, swap.ID, func(s *models.Swap) error {
			s.Status = models.StatusLocked

			return nil
		})
		require.ErrorIs(t, err, registry.ErrConsistency)
	})

	t.Run("secret is set once and must match", func(t *testing.T) {
		store := newStore(t)
		swap := NewSwap(10)
		require.NoError(t, store.Create(ctx, swap))

		wrong := Secret(99)
		_, err := store.Update(ctx, swap.ID, func(s *models.Swap) error {
			s.Secret = &wrong

			return nil
		})
		require.ErrorIs(t, err, registry.ErrInvalidSecret)

		secret := Secret(10)
		updated, err := store.Update(ctx, swap.ID, func(s *models.Swap) error {
			s.Secret = &secret

			return nil
		})
		require.NoError(t, err)
		require.Equal(t, secret, *updated.Secret)

		_, err = store.Update(ctx, swap.ID, func(s *models.Swap) error {
			s.Secret = nil

			return nil
		})
		require.ErrorIs(t, err, registry.ErrConsistency)

		got, err := store.Get(ctx, swap.ID)
		require.NoError(t, err)
		require.Equal(t, secret, *got.Secret)
	})

	t.Run("fills complete the swap", func(t *testing.T) {
		store := newStore(t)
		swap := Locked(t, store, NewSwap(11), escrow("a", 4), escrow("b", 6))

		got, err := store.RecordFill(ctx, swap.ID, models.PartialFill{EscrowRef: "a", Amount: decimal.NewFromInt(4), TxRef: "tx-a"})
		require.NoError(t, err)
		require.Equal(t, models.StatusLocked, got.Status)
		require.Len(t, got.Fills, 1)

		got, err = store.RecordFill(ctx, swap.ID, models.PartialFill{EscrowRef: "a", Amount: decimal.NewFromInt(4), TxRef: "tx-a"})
		require.NoError(t, err)
		require.Len(t, got.Fills, 1)

		got, err = store.RecordFill(ctx, swap.ID, models.PartialFill{EscrowRef: "b", Amount: decimal.NewFromInt(6), TxRef: "tx-b"})
		require.NoError(t, err)
		require.Equal(t, models.StatusCompleted, got.Status)
		require.Len(t, got.Fills, 2)
		require.Equal(t, "a", got.Fills[0].EscrowRef)
		require.Equal(t, "b", got.Fills[1].EscrowRef)
		require.True(t, got.FilledAmount().Equal(got.CounterAmount))
	})

	t.Run("fills cannot exceed the counter amount", func(t *testing.T) {
		store := newStore(t)
		swap := Locked(t, store, NewSwap(12), escrow("a", 10))

		_, err := store.RecordFill(ctx, swap.ID, models.PartialFill{EscrowRef: "a", Amount: decimal.NewFromInt(11)})
		require.ErrorIs(t, err, registry.ErrFillExceedsCounter)

		got, err := store.Get(ctx, swap.ID)
		require.NoError(t, err)
		require.Empty(t, got.Fills)
	})

	t.Run("fills require a locked swap", func(t *testing.T) {
		store := newStore(t)
		swap := NewSwap(13)
		require.NoError(t, store.Create(ctx, swap))

		_, err := store.RecordFill(ctx, swap.ID, models.PartialFill{EscrowRef: "a", Amount: decimal.NewFromInt(1)})
		require.ErrorIs(t, err, registry.ErrFillNotAllowed)
	})

	t.Run("concurrent fills never overflow", func(t *testing.T) {
		store := newStore(t)
		swap := Locked(t, store, NewSwap(14), escrow("a", 10))

		var wg sync.WaitGroup
		for i := range 10 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				_, _ = store.RecordFill(ctx, swap.ID, models.PartialFill{
					EscrowRef: string(rune('a' + i)),
					Amount:    decimal.NewFromInt(3),
				})
			}()
		}
		wg.Wait()

		got, err := store.Get(ctx, swap.ID)
		require.NoError(t, err)
		require.Len(t, got.Fills, 3)
		require.True(t, got.FilledAmount().LessThanOrEqual(got.CounterAmount))
		require.Equal(t, models.StatusLocked, got.Status)
	})

	t.Run("sweep returns expired open swaps", func(t *testing.T) {
		store := newStore(t)
		now := time.Now()

		open := NewSwap(15)
		require.NoError(t, store.Create(ctx, open))

		due := NewSwap(16)
		due.Timelock = now.Add(time.Minute).Truncate(time.Second)
		due.DestinationTimelock = now.Add(-time.Minute).Truncate(time.Second)
		due.ID = "due"
		require.NoError(t, store.Create(ctx, due))

		done := NewSwap(17)
		done.Timelock = due.Timelock
		done.DestinationTimelock = due.DestinationTimelock
		done.ID = "done"
		require.NoError(t, store.Create(ctx, done))
		_, err := store.Transition(ctx, done.ID, models.StatusCreated, models.StatusFailed, nil)
		require.NoError(t, err)

		expired, err := store.SweepExpired(ctx, now)
		require.NoError(t, err)
		require.Len(t, expired, 1)
		require.Equal(t, "due", expired[0].ID)
	})

	t.Run("pending recovery and purge", func(t *testing.T) {
		store := newStore(t)

		failed := NewSwap(18)
		require.NoError(t, store.Create(ctx, failed))
		_, err := store.Transition(ctx, failed.ID, models.StatusCreated, models.StatusFailed, nil)
		require.NoError(t, err)

		settled := NewSwap(19)
		require.NoError(t, store.Create(ctx, settled))
		_, err = store.Transition(ctx, settled.ID, models.StatusCreated, models.StatusFailed, func(s *models.Swap) error {
			s.SourceRefundTx = "refund"

			return nil
		})
		require.NoError(t, err)

		pending, err := store.PendingRecovery(ctx)
		require.NoError(t, err)
		require.Len(t, pending, 1)
		require.Equal(t, failed.ID, pending[0].ID)

		purged, err := store.Purge(ctx, time.Now().Add(time.Hour))
		require.NoError(t, err)
		require.EqualValues(t, 1, purged)

		_, err = store.Get(ctx, settled.ID)
		require.ErrorIs(t, err, registry.ErrSwapNotFound)
		_, err = store.Get(ctx, failed.ID)
		require.NoError(t, err)
	})

	t.Run("lookup by escrow reference", func(t *testing.T) {
		store := newStore(t)
		swap := Locked(t, store, NewSwap(20), escrow("dst-20", 10))

		got, err := store.GetByEscrowRef(ctx, models.Near, "dst-20")
		require.NoError(t, err)
		require.Equal(t, swap.ID, got.ID)

		got, err = store.GetByEscrowRef(ctx, models.Ethereum, swap.SourceEscrowRef)
		require.NoError(t, err)
		require.Equal(t, swap.ID, got.ID)

		_, err = store.GetByEscrowRef(ctx, models.Bitcoin, "dst-20")
		require.ErrorIs(t, err, registry.ErrSwapNotFound)
	})

	t.Run("list by account pages results", func(t *testing.T) {
		store := newStore(t)
		for seed := byte(21); seed < 26; seed++ {
			require.NoError(t, store.Create(ctx, NewSwap(seed)))
		}
		other := NewSwap(26)
		other.InitiatorAddress = "0x00000000000000000000000000000000000000b2"
		other.ID = "other"
		require.NoError(t, store.Create(ctx, other))

		all, err := store.ListByAccount(ctx, "bob.near", 0, 0)
		require.NoError(t, err)
		require.Len(t, all, 6)

		first, err := store.ListByAccount(ctx, "0x00000000000000000000000000000000000000a1", 0, 2)
		require.NoError(t, err)
		require.Len(t, first, 2)

		rest, err := store.ListByAccount(ctx, "0x00000000000000000000000000000000000000a1", 2, 10)
		require.NoError(t, err)
		require.Len(t, rest, 3)

		none, err := store.ListByAccount(ctx, "0x00000000000000000000000000000000000000a1", 10, 10)
		require.NoError(t, err)
		require.Empty(t, none)
	})

	t.Run("intents", func(t *testing.T) {
		store := newStore(t)
		secret := Secret(30)
		intent := &models.SwapIntent{
			ID:                 "intent-1",
			Hashlock:           secret.Hash(),
			Secret:             &secret,
			SourceChain:        models.Near,
			DestinationChain:   models.Bitcoin,
			Amount:             decimal.NewFromInt(5),
			BeneficiaryAddress: "bcrt1qbeneficiary",
			Timelock:           time.Now().Add(time.Hour),
			ExpiresAt:          time.Now().Add(-time.Minute),
		}
		require.NoError(t, store.CreateIntent(ctx, intent))
		require.ErrorIs(t, store.CreateIntent(ctx, intent), registry.ErrDuplicateHashlock)

		got, err := store.GetIntentByHashlock(ctx, secret.Hash())
		require.NoError(t, err)
		require.Equal(t, "intent-1", got.ID)
		require.Equal(t, secret, *got.Secret)

		purged, err := store.PurgeIntents(ctx, time.Now())
		require.NoError(t, err)
		require.EqualValues(t, 1, purged)

		_, err = store.GetIntent(ctx, "intent-1")
		require.ErrorIs(t, err, registry.ErrIntentNotFound)
		require.ErrorIs(t, store.DeleteIntent(ctx, "intent-1"), registry.ErrIntentNotFound)
	})

	t.Run("cursors only move forward", func(t *testing.T) {
		store := newStore(t)

		seq, err := store.GetCursor(ctx, models.Near)
		require.NoError(t, err)
		require.Zero(t, seq)

		require.NoError(t, store.SaveCursor(ctx, models.Near, 7))
		require.NoError(t, store.SaveCursor(ctx, models.Near, 5))

		seq, err = store.GetCursor(ctx, models.Near)
		require.NoError(t, err)
		require.EqualValues(t, 7, seq)
	})
}
