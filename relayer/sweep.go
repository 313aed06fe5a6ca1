package relayer

import (
	"context"
	"errors"
	"fmt"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/crypto"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/scheduler"
	"github.com/lightningnetwork/lnd/lntypes"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Tasks returns the periodic maintenance of the relayer.
func (r *Relayer) Tasks() []scheduler.Task {
	return []scheduler.Task{
		{Name: "sweep", Interval: r.config.SweepInterval, Run: r.Sweep, RunOnStart: true},
		{Name: "purge", Interval: r.config.PurgeInterval, Run: r.Purge},
	}
}

// Sweep expires swaps past their destination deadline and retries every
// outbound action still owed.
func (r *Relayer) Sweep(ctx context.Context) error {
	now := r.now()

	expired, err := r.store.SweepExpired(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to list expired swaps: %w", err)
	}
	pending, err := r.store.PendingRecovery(ctx)
	if err != nil {
		return fmt.Errorf("failed to list swaps pending recovery: %w", err)
	}
	sweepSize.Set(float64(len(expired) + len(pending)))
	if len(expired)+len(pending) > 0 {
		log.Infof("sweep: %d expired, %d pending recovery", len(expired), len(pending))
	}

	var errs error
	for _, swap := range expired {
		errs = multierr.Append(errs, r.withSwap(ctx, swap, r.expire))
	}
	for _, swap := range pending {
		errs = multierr.Append(errs, r.withSwap(ctx, swap, r.recover))
	}

	if dropped := r.orphans.expire(now); dropped > 0 {
		log.Infof("dropped %d expired orphan escrows", dropped)
	}

	return errs
}

// withSwap runs fn on the current state of swap under its hashlock lock, so a
// decision never acts on a status an event handler already changed.
func (r *Relayer) withSwap(ctx context.Context, swap *models.Swap, fn func(context.Context, *models.Swap) error) error {
	unlock := r.locks.Lock(swap.Hashlock)
	defer unlock()

	current, err := r.store.Get(ctx, swap.ID)
	if err != nil {
		return fmt.Errorf("failed to reload swap %s: %w", swap.ID, err)
	}

	return fn(ctx, current)
}

func (r *Relayer) expire(ctx context.Context, swap *models.Swap) error {
	if swap.DestinationTimelock.After(r.now()) {
		return nil
	}

	switch swap.Status {
	case models.StatusCreated:
		failed, err := r.transition(ctx, swap, models.StatusFailed, func(s *models.Swap) error {
			s.LastError = "destination deadline passed before the counter leg was locked"

			return nil
		})
		if err != nil {
			return err
		}

		return r.refundLegs(ctx, failed)

	case models.StatusLocked:
		if swap.Secret != nil {
			return r.settle(ctx, swap, *swap.Secret, nil)
		}
		// A claim whose reveal event never reached us still settles the swap.
		if secret := r.secretOnChain(ctx, swap); secret != nil {
			log.WithFields(swapFields(swap)).Warn("counter escrow claimed without a reveal event, settling from chain state")

			return r.settle(ctx, swap, *secret, nil)
		}
		expired, err := r.transition(ctx, swap, models.StatusExpired, nil)
		if err != nil {
			return err
		}

		return r.refundLegs(ctx, expired)
	}

	return nil
}

func (r *Relayer) recover(ctx context.Context, swap *models.Swap) error {
	if !swap.NeedsRecovery() {
		return nil
	}

	switch swap.Status {
	case models.StatusExpired, models.StatusFailed:
		return r.refundLegs(ctx, swap)
	case models.StatusLocked, models.StatusCompleted:
		if swap.Secret == nil {
			log.WithFields(swapFields(swap)).Warn("cannot withdraw the source leg without a secret")

			return nil
		}

		return r.settle(ctx, swap, *swap.Secret, nil)
	}

	return nil
}

// refundLegs refunds the relayer escrows once the destination deadline passed
// and the source escrow once the source deadline passed. A swap whose legs
// are all closed becomes REFUNDED.
func (r *Relayer) refundLegs(ctx context.Context, swap *models.Swap) error {
	logger := log.WithFields(swapFields(swap))
	now := r.now()

	var failures error
	if !now.Before(swap.DestinationTimelock) {
		for _, escrow := range swap.UnsettledEscrows() {
			if !escrow.CreatedByRelayer {
				continue
			}

			txRef, err := r.refund(ctx, logger, swap.DestinationChain, escrow.EscrowRef)
			if err != nil && !errors.Is(err, chain.ErrAlreadyWithdrawn) {
				failures = multierr.Append(failures, fmt.Errorf("refund counter escrow %s: %w", escrow.EscrowRef, err))

				continue
			}

			ref := escrow.EscrowRef
			claimed := errors.Is(err, chain.ErrAlreadyWithdrawn)
			next, uerr := r.store.Update(ctx, swap.ID, func(s *models.Swap) error {
				e := s.CounterEscrow(ref)
				if claimed {
					e.WithdrawTx = unknownTx
				} else {
					e.RefundTx = txRef
				}

				return nil
			})
			if uerr != nil {
				return fmt.Errorf("failed to record counter refund: %w", uerr)
			}
			swap = next
			logger.WithField("escrow_ref", ref).Info("counter escrow closed")

			if claimed && swap.Secret == nil {
				if secret := r.secretOnChain(ctx, swap); secret != nil {
					if swap, err = r.rememberSecret(ctx, swap, *secret); err != nil {
						return err
					}
				}
			}
		}
	}

	// The beneficiary holds counter funds, so the source leg belongs to the
	// relayer and is never refunded.
	if swap.CounterClaimed() {
		if err := r.recoverSourceLeg(ctx, swap); err != nil {
			return multierr.Append(failures, err)
		}
	} else if swap.SourceEscrowRef != "" && swap.SourceRefundTx == "" && swap.SourceWithdrawTx == "" {
		if now.Before(swap.Timelock) {
			logger.Debugf("source escrow refundable after %s", swap.Timelock)
		} else {
			txRef, err := r.refund(ctx, logger, swap.SourceChain, swap.SourceEscrowRef)
			if err != nil && !errors.Is(err, chain.ErrAlreadyWithdrawn) {
				failures = multierr.Append(failures, fmt.Errorf("refund source escrow: %w", err))
			} else {
				next, uerr := r.store.Update(ctx, swap.ID, func(s *models.Swap) error {
					if errors.Is(err, chain.ErrAlreadyWithdrawn) {
						s.SourceWithdrawTx = unknownTx
					} else {
						s.SourceRefundTx = txRef
					}

					return nil
				})
				if uerr != nil {
					return fmt.Errorf("failed to record source refund: %w", uerr)
				}
				swap = next
				logger.Info("source escrow refunded")
			}
		}
	}

	if failures != nil {
		swap = r.recordFailure(ctx, swap, "refund", failures)
		if swap.RecoveryAttempts > r.config.MaxRefundAttempts {
			r.alert(ctx, Alert{
				SwapID:    swap.ID,
				Hashlock:  swap.Hashlock.String(),
				Operation: "refund",
				Attempts:  swap.RecoveryAttempts,
				Err:       failures,
			})
		}

		return failures
	}

	return r.closeIfRefunded(ctx, swap)
}

// recoverSourceLeg withdraws the source escrow of an expired swap whose
// counter escrow was claimed late. The swap stays EXPIRED for operators.
func (r *Relayer) recoverSourceLeg(ctx context.Context, swap *models.Swap) error {
	if swap.SourceWithdrawTx != "" || swap.SourceRefundTx != "" {
		return nil
	}
	logger := log.WithFields(swapFields(swap)).WithField("security", true)

	if swap.Secret == nil {
		err := errors.New("counter escrow claimed but the secret is not known")
		swap = r.recordFailure(ctx, swap, "withdraw source escrow", err)
		r.alert(ctx, Alert{SwapID: swap.ID, Hashlock: swap.Hashlock.String(), Operation: "withdraw_source_escrow", Attempts: swap.RecoveryAttempts, Err: err})

		return err
	}

	logger.Warn("counter escrow was claimed late, withdrawing the source leg")
	r.withdrawSource(ctx, swap, *swap.Secret, nil)

	return nil
}

// secretOnChain reads the counter escrows of swap back from the destination
// chain and returns the secret of the first one already claimed.
func (r *Relayer) secretOnChain(ctx context.Context, swap *models.Swap) *lntypes.Preimage {
	adapter, err := r.adapters.Get(swap.DestinationChain)
	if err != nil {
		return nil
	}
	logger := log.WithFields(swapFields(swap))

	for _, e := range swap.CounterEscrows {
		if e.RefundTx != "" {
			continue
		}

		var escrow *chain.Escrow
		err := r.retry(ctx, logger, "counter escrow lookup", func(ctx context.Context) error {
			var err error
			escrow, err = adapter.GetEscrow(ctx, e.EscrowRef)

			return err
		})
		if err != nil {
			logger.WithError(err).WithField("escrow_ref", e.EscrowRef).Warn("could not read counter escrow")

			continue
		}
		if escrow.State == chain.EscrowWithdrawn && escrow.Secret != nil && crypto.VerifySecret(*escrow.Secret, swap.Hashlock) {
			return escrow.Secret
		}
	}

	return nil
}

// refund calls the adapter with retries. An escrow refunded by someone else
// counts as refunded.
func (r *Relayer) refund(ctx context.Context, logger *log.Entry, c models.Chain, escrowRef string) (string, error) {
	adapter, err := r.adapters.Get(c)
	if err != nil {
		return "", err
	}

	var txRef string
	err = r.retry(ctx, logger, "refund", func(ctx context.Context) error {
		var err error
		txRef, err = adapter.Refund(ctx, escrowRef)

		return err
	})
	if errors.Is(err, chain.ErrAlreadyRefunded) {
		return unknownTx, nil
	}

	return txRef, err
}

// Purge drops settled swaps past the audit window and expired intents.
func (r *Relayer) Purge(ctx context.Context) error {
	now := r.now()

	swaps, err := r.store.Purge(ctx, now.Add(-r.config.AuditRetention))
	if err != nil {
		return fmt.Errorf("failed to purge swaps: %w", err)
	}
	intents, err := r.store.PurgeIntents(ctx, now)
	if err != nil {
		return fmt.Errorf("failed to purge intents: %w", err)
	}
	if swaps+intents > 0 {
		log.Infof("purged %d swaps and %d intents", swaps, intents)
	}

	return nil
}
