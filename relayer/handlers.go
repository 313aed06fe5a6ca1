package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/crypto"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/monitor"
	"github.com/40acres/htlc-bridge/registry"
	"github.com/lightningnetwork/lnd/lntypes"
	log "github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// unknownTx marks a leg closed by a transaction the relayer did not observe.
// The matching chain event replaces it when it arrives.
const unknownTx = "unknown"

func (r *Relayer) onEscrowCreated(ctx context.Context, ev monitor.Event) error {
	unlock := r.locks.Lock(ev.Hashlock)
	defer unlock()

	swap, err := r.store.GetByHashlock(ctx, ev.Hashlock)
	switch {
	case err == nil:
		return r.onKnownEscrow(ctx, swap, ev)
	case !errors.Is(err, registry.ErrSwapNotFound):
		return fmt.Errorf("failed to look up hashlock: %w", err)
	}

	intent, err := r.store.GetIntentByHashlock(ctx, ev.Hashlock)
	switch {
	case err == nil:
		if intent.SourceChain != ev.Chain {
			return r.orphan(ev)
		}

		return r.createSwap(ctx, ev, intent)
	case !errors.Is(err, registry.ErrIntentNotFound):
		return fmt.Errorf("failed to look up intent: %w", err)
	}

	if ev.DestinationChain == "" {
		return r.orphan(ev)
	}

	return r.createSwap(ctx, ev, nil)
}

// orphan keeps an escrow that cannot be matched to a swap yet.
func (r *Relayer) orphan(ev monitor.Event) error {
	logger := log.WithFields(ev.Fields())
	if r.config.FillMode != FillModeResolvers {
		logger.Debug("ignoring escrow without routing hints")

		return nil
	}
	if !r.orphans.add(ev) {
		logger.Warn("orphan buffer full, dropping escrow")

		return nil
	}
	logger.Info("holding escrow until its source escrow is observed")

	return nil
}

func (r *Relayer) onKnownEscrow(ctx context.Context, swap *models.Swap, ev monitor.Event) error {
	logger := log.WithFields(swapFields(swap)).WithField("escrow_ref", ev.EscrowRef)

	switch {
	case ev.Chain == swap.SourceChain && ev.EscrowRef == swap.SourceEscrowRef:
		logger.Debug("source escrow already registered")

		return nil
	case ev.Chain == swap.DestinationChain:
		_, err := r.addCounterEscrow(ctx, swap, ev)

		return err
	default:
		logger.WithField("security", true).Warnf("escrow on %s reuses the hashlock of a known swap", ev.Chain)

		return nil
	}
}

func (r *Relayer) createSwap(ctx context.Context, ev monitor.Event, intent *models.SwapIntent) error {
	logger := log.WithFields(ev.Fields())

	id := models.SwapID(ev.Sender, ev.DestinationAddress, ev.Hashlock, ev.Timelock)
	dst, beneficiary := ev.DestinationChain, ev.DestinationAddress
	if intent != nil {
		id, dst, beneficiary = intent.ID, intent.DestinationChain, intent.BeneficiaryAddress
		if !ev.Amount.Equal(intent.Amount) {
			logger.Warnf("source escrow locks %s, the submitted amount was %s", ev.Amount, intent.Amount)
		}
	}

	dstTimelock, err := r.validateSource(ev, dst, beneficiary)
	if err != nil {
		return err
	}

	q, err := r.quote(ctx, ev.Chain, dst, ev.Amount)
	if err != nil {
		if !IsValidationError(err) {
			r.alert(ctx, Alert{Hashlock: ev.Hashlock.String(), Operation: "quote", Err: err})
		}

		return fmt.Errorf("failed to quote source escrow %s: %w", ev.EscrowRef, err)
	}

	swap := &models.Swap{
		ID:                  id,
		Hashlock:            ev.Hashlock,
		SourceChain:         ev.Chain,
		DestinationChain:    dst,
		PrincipalAmount:     ev.Amount,
		CounterAmount:       q.CounterAmount,
		FeeAmount:           q.Fee,
		QuoteRate:           q.Rate,
		QuoteSource:         q.Source,
		InitiatorAddress:    ev.Sender,
		BeneficiaryAddress:  beneficiary,
		SourceEscrowRef:     ev.EscrowRef,
		SourceTxRef:         ev.TxRef,
		Timelock:            ev.Timelock,
		DestinationTimelock: dstTimelock,
	}
	if err := r.store.Create(ctx, swap); err != nil {
		if errors.Is(err, registry.ErrDuplicateHashlock) {
			logger.Debug("swap already created")

			return nil
		}

		return fmt.Errorf("failed to create swap: %w", err)
	}
	log.WithFields(swapFields(swap)).Infof("swap created: %s %s -> %s %s at %s (%s)",
		swap.PrincipalAmount, swap.SourceChain, swap.CounterAmount, swap.DestinationChain, swap.QuoteRate, swap.QuoteSource)

	if r.config.FillMode == FillModeResolvers {
		for _, orphan := range r.orphans.take(swap.Hashlock) {
			next, err := r.addCounterEscrow(ctx, swap, orphan)
			if err != nil {
				logEventError(orphan, err)

				continue
			}
			swap = next
		}

		return nil
	}

	return r.lockCounterLeg(ctx, swap)
}

func (r *Relayer) validateSource(ev monitor.Event, dst models.Chain, beneficiary string) (time.Time, error) {
	if err := r.validateRoute(ev.Chain, dst); err != nil {
		return time.Time{}, err
	}
	if err := chain.ValidateAddress(dst, r.config.Network, beneficiary); err != nil {
		return time.Time{}, validation("beneficiary_address", err.Error(), err)
	}
	if !ev.Amount.IsPositive() {
		return time.Time{}, validation("amount", "must be positive", nil)
	}
	if !ev.Timelock.After(r.now()) {
		return time.Time{}, validation("timelock", "is not in the future", nil)
	}

	return r.destinationTimelock(ev.Timelock)
}

// lockCounterLeg escrows the counter amount on the destination chain.
func (r *Relayer) lockCounterLeg(ctx context.Context, swap *models.Swap) error {
	logger := log.WithFields(swapFields(swap))

	adapter, err := r.adapters.Get(swap.DestinationChain)
	if err != nil {
		return err
	}

	req := chain.EscrowRequest{
		Hashlock:    swap.Hashlock,
		Timelock:    swap.DestinationTimelock,
		Beneficiary: swap.BeneficiaryAddress,
		Amount:      swap.CounterAmount,
	}
	var receipt chain.EscrowReceipt
	err = r.retry(ctx, logger, "counter escrow creation", func(ctx context.Context) error {
		var err error
		receipt, err = adapter.CreateEscrow(ctx, req)

		return err
	})
	if err != nil {
		if ctx.Err() != nil {
			return err
		}
		logger.WithError(err).Error("could not lock the counter leg")
		r.alert(ctx, Alert{
			SwapID:    swap.ID,
			Hashlock:  swap.Hashlock.String(),
			Operation: "create_counter_escrow",
			Attempts:  int(r.config.MaxRetries) + 1, //nolint:gosec // small retry count
			Err:       err,
		})
		_, terr := r.transition(ctx, swap, models.StatusFailed, func(s *models.Swap) error {
			s.LastError = fmt.Sprintf("create counter escrow: %v", err)

			return nil
		})

		return terr
	}

	escrow := models.CounterEscrow{
		EscrowRef:        receipt.EscrowRef,
		Amount:           swap.CounterAmount,
		CreatedByRelayer: true,
		TxRef:            receipt.TxRef,
	}
	record := func(s *models.Swap) error {
		s.CounterEscrows = append(s.CounterEscrows, escrow)

		return nil
	}
	locked, err := r.transition(ctx, swap, models.StatusLocked, record)
	if err != nil {
		// The escrow exists on chain, keep it so the sweep can refund it.
		if _, uerr := r.store.Update(ctx, swap.ID, record); uerr != nil {
			err = multierr.Append(err, uerr)
		}
		r.alert(ctx, Alert{SwapID: swap.ID, Hashlock: swap.Hashlock.String(), Operation: "lock_swap", Err: err})

		return err
	}

	return r.afterLocked(ctx, locked)
}

// afterLocked reveals the secret of a locked swap when the relayer holds it,
// either from an earlier reveal or from a submitted intent.
func (r *Relayer) afterLocked(ctx context.Context, swap *models.Swap) error {
	if swap.Secret != nil {
		return r.settle(ctx, swap, *swap.Secret, nil)
	}

	intent, err := r.store.GetIntentByHashlock(ctx, swap.Hashlock)
	if errors.Is(err, registry.ErrIntentNotFound) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up intent: %w", err)
	}
	log.WithFields(swapFields(swap)).Info("revealing the secret of a submitted swap")

	return r.settle(ctx, swap, *intent.Secret, nil)
}

// addCounterEscrow records a resolver escrow and locks the swap once the
// escrows cover the counter amount.
func (r *Relayer) addCounterEscrow(ctx context.Context, swap *models.Swap, ev monitor.Event) (*models.Swap, error) {
	logger := log.WithFields(swapFields(swap)).WithField("escrow_ref", ev.EscrowRef)

	if swap.CounterEscrow(ev.EscrowRef) != nil {
		logger.Debug("counter escrow already recorded")

		return swap, nil
	}
	if r.config.FillMode != FillModeResolvers {
		logger.Warn("ignoring third party counter escrow")

		return swap, nil
	}
	if swap.Status != models.StatusCreated && swap.Status != models.StatusLocked {
		logger.Warnf("ignoring counter escrow on a %s swap", swap.Status)

		return swap, nil
	}

	remaining := swap.CounterAmount.Sub(swap.EscrowedAmount())
	switch {
	case ev.Receiver != swap.BeneficiaryAddress:
		return swap, validation("receiver", "counter escrow does not pay the swap beneficiary", nil)
	case !ev.Timelock.Before(swap.Timelock):
		logger.WithField("security", true).Warn("counter escrow outlives the source escrow")

		return swap, validation("timelock", "counter escrow must expire before the source escrow", nil)
	case !ev.Timelock.After(r.now()):
		return swap, validation("timelock", "counter escrow already expired", nil)
	case !ev.Amount.IsPositive():
		return swap, validation("amount", "must be positive", nil)
	case ev.Amount.GreaterThan(remaining):
		return swap, validation("amount", fmt.Sprintf("%s exceeds the %s still to escrow", ev.Amount, remaining), nil)
	}

	incentive := r.auction().PriceAt(swap.CreatedAt, r.now())
	updated, err := r.store.Update(ctx, swap.ID, func(s *models.Swap) error {
		s.CounterEscrows = append(s.CounterEscrows, models.CounterEscrow{
			EscrowRef:    ev.EscrowRef,
			Amount:       ev.Amount,
			TxRef:        ev.TxRef,
			IncentiveBps: incentive,
		})

		return nil
	})
	if err != nil {
		return swap, fmt.Errorf("failed to record counter escrow: %w", err)
	}
	logger.Infof("counter escrow of %s recorded at %s bps incentive, %s of %s escrowed", ev.Amount, incentive, updated.EscrowedAmount(), updated.CounterAmount)

	if updated.Status != models.StatusCreated || !updated.IsFullyEscrowed() {
		return updated, nil
	}

	locked, err := r.transition(ctx, updated, models.StatusLocked, nil)
	if err != nil {
		return updated, err
	}

	return locked, r.afterLocked(ctx, locked)
}

func (r *Relayer) onSecretRevealed(ctx context.Context, ev monitor.Event) error {
	if ev.Secret == nil {
		return validation("secret", "missing from reveal event", nil)
	}

	unlock := r.locks.Lock(ev.Hashlock)
	defer unlock()

	swap, err := r.store.GetByHashlock(ctx, ev.Hashlock)
	if errors.Is(err, registry.ErrSwapNotFound) {
		log.WithFields(ev.Fields()).Debug("secret revealed for an unknown hashlock")

		return nil
	}
	if err != nil {
		return fmt.Errorf("failed to look up hashlock: %w", err)
	}

	return r.settle(ctx, swap, *ev.Secret, &ev)
}

// settle finishes a swap whose secret is known: every open counter escrow is
// withdrawn to the beneficiary and the source escrow to the relayer. origin
// is the event that revealed the secret, if any. Callers hold the hashlock.
func (r *Relayer) settle(ctx context.Context, swap *models.Swap, secret lntypes.Preimage, origin *monitor.Event) error {
	logger := log.WithFields(swapFields(swap))

	if !crypto.VerifySecret(secret, swap.Hashlock) {
		logger.WithField("security", true).Warn("rejected a secret that does not match the hashlock")

		return validation("secret", "does not hash to the swap hashlock", registry.ErrInvalidSecret)
	}

	switch swap.Status {
	case models.StatusCompleted:
		if swap.SourceWithdrawTx != "" {
			logger.Debug("swap already completed, ignoring reveal")

			return nil
		}
	case models.StatusLocked:
	case models.StatusCreated:
		logger.Warn("secret revealed before the counter leg was locked")
		_, err := r.rememberSecret(ctx, swap, secret)

		return err
	default:
		return r.settleLate(ctx, swap, secret, origin)
	}

	swap, err := r.rememberSecret(ctx, swap, secret)
	if err != nil {
		return err
	}

	swap, err = r.settleDestination(ctx, swap, secret, origin)
	r.withdrawSource(ctx, swap, secret, origin)

	return err
}

func (r *Relayer) rememberSecret(ctx context.Context, swap *models.Swap, secret lntypes.Preimage) (*models.Swap, error) {
	if swap.Secret != nil {
		return swap, nil
	}

	updated, err := r.store.Update(ctx, swap.ID, func(s *models.Swap) error {
		s.Secret = &secret

		return nil
	})
	if err != nil {
		return swap, fmt.Errorf("failed to record secret: %w", err)
	}
	log.WithFields(swapFields(updated)).Info("secret recorded")

	return updated, nil
}

// settleLate handles a reveal on a swap that already gave up. If a counter
// escrow was claimed anyway the source leg is recovered.
func (r *Relayer) settleLate(ctx context.Context, swap *models.Swap, secret lntypes.Preimage, origin *monitor.Event) error {
	logger := log.WithFields(swapFields(swap)).WithField("security", true)
	logger.Warnf("secret revealed on a %s swap", swap.Status)

	swap, err := r.rememberSecret(ctx, swap, secret)
	if err != nil {
		return err
	}
	if origin == nil || origin.Chain != swap.DestinationChain || swap.CounterEscrow(origin.EscrowRef) == nil {
		return nil
	}

	swap, err = r.store.Update(ctx, swap.ID, func(s *models.Swap) error {
		if e := s.CounterEscrow(origin.EscrowRef); e.RefundTx == "" && e.WithdrawTx == "" {
			e.WithdrawTx = origin.TxRef
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record late claim: %w", err)
	}
	logger.Warnf("counter escrow %s was claimed late, recovering the source leg", origin.EscrowRef)
	r.withdrawSource(ctx, swap, secret, origin)

	return nil
}

// settleDestination withdraws every open counter escrow with the secret and
// records each as a fill. The last fill completes the swap.
func (r *Relayer) settleDestination(ctx context.Context, swap *models.Swap, secret lntypes.Preimage, origin *monitor.Event) (*models.Swap, error) {
	logger := log.WithFields(swapFields(swap))

	adapter, err := r.adapters.Get(swap.DestinationChain)
	if err != nil {
		return swap, err
	}

	var errs error
	for _, escrow := range swap.UnsettledEscrows() {
		txRef := ""
		if origin != nil && origin.Chain == swap.DestinationChain && origin.EscrowRef == escrow.EscrowRef {
			txRef = origin.TxRef
		} else {
			err := r.retry(ctx, logger, "counter escrow withdrawal", func(ctx context.Context) error {
				var err error
				txRef, err = adapter.Withdraw(ctx, escrow.EscrowRef, secret)

				return err
			})
			switch {
			case errors.Is(err, chain.ErrAlreadyWithdrawn):
				txRef = unknownTx
			case err != nil:
				swap = r.recordFailure(ctx, swap, "withdraw counter escrow "+escrow.EscrowRef, err)
				r.alert(ctx, Alert{SwapID: swap.ID, Hashlock: swap.Hashlock.String(), Operation: "withdraw_counter_escrow", Attempts: swap.RecoveryAttempts, Err: err})
				errs = multierr.Append(errs, err)

				continue
			}
		}

		next, err := r.recordFill(ctx, swap, escrow, txRef)
		if err != nil {
			errs = multierr.Append(errs, err)

			continue
		}
		swap = next
	}

	return swap, errs
}

func (r *Relayer) recordFill(ctx context.Context, swap *models.Swap, escrow models.CounterEscrow, txRef string) (*models.Swap, error) {
	next, err := r.store.RecordFill(ctx, swap.ID, models.PartialFill{
		EscrowRef: escrow.EscrowRef,
		Amount:    escrow.Amount,
		TxRef:     txRef,
	})
	if err != nil {
		return swap, fmt.Errorf("failed to record fill for %s: %w", escrow.EscrowRef, err)
	}

	logger := log.WithFields(swapFields(next))
	logger.Infof("fill of %s recorded, %s of %s filled", escrow.Amount, next.FilledAmount(), next.CounterAmount)
	if next.Status == models.StatusCompleted && swap.Status != models.StatusCompleted {
		transitions.WithLabelValues(swap.Status.String(), next.Status.String()).Inc()
		logger.Infof("swap %s -> %s", swap.Status, next.Status)
	}

	return next, nil
}

// withdrawSource claims the source escrow for the relayer. Failures are
// alerted and left to the sweep.
func (r *Relayer) withdrawSource(ctx context.Context, swap *models.Swap, secret lntypes.Preimage, origin *monitor.Event) *models.Swap {
	if swap.SourceEscrowRef == "" || swap.SourceRefundTx != "" || (swap.SourceWithdrawTx != "" && swap.SourceWithdrawTx != unknownTx) {
		return swap
	}
	logger := log.WithFields(swapFields(swap))

	var txRef string
	switch {
	case origin != nil && origin.Chain == swap.SourceChain && origin.EscrowRef == swap.SourceEscrowRef:
		txRef = origin.TxRef
	case swap.SourceWithdrawTx == unknownTx:
		return swap
	default:
		adapter, err := r.adapters.Get(swap.SourceChain)
		if err == nil {
			err = r.retry(ctx, logger, "source withdrawal", func(ctx context.Context) error {
				var err error
				txRef, err = adapter.Withdraw(ctx, swap.SourceEscrowRef, secret)

				return err
			})
		}
		switch {
		case errors.Is(err, chain.ErrAlreadyWithdrawn):
			txRef = unknownTx
		case err != nil:
			swap = r.recordFailure(ctx, swap, "withdraw source escrow", err)
			r.alert(ctx, Alert{SwapID: swap.ID, Hashlock: swap.Hashlock.String(), Operation: "withdraw_source_escrow", Attempts: swap.RecoveryAttempts, Err: err})

			return swap
		}
	}

	updated, err := r.store.Update(ctx, swap.ID, func(s *models.Swap) error {
		s.SourceWithdrawTx = txRef

		return nil
	})
	if err != nil {
		logger.WithError(err).Error("could not record source withdrawal")

		return swap
	}
	logger.WithField("tx_ref", txRef).Info("source leg withdrawn")

	return updated
}

// recordFailure keeps the failure on the swap for operators and the sweep.
func (r *Relayer) recordFailure(ctx context.Context, swap *models.Swap, operation string, cause error) *models.Swap {
	updated, err := r.store.Update(ctx, swap.ID, func(s *models.Swap) error {
		s.RecoveryAttempts++
		s.LastError = fmt.Sprintf("%s: %v", operation, cause)

		return nil
	})
	if err != nil {
		log.WithFields(swapFields(swap)).WithError(err).Error("could not record failure")

		return swap
	}

	return updated
}

// lockByEscrow finds the swap owning an escrow and takes its hashlock. swap
// is nil when the escrow is unknown.
func (r *Relayer) lockByEscrow(ctx context.Context, ev monitor.Event) (*models.Swap, func(), error) {
	swap, err := r.store.GetByEscrowRef(ctx, ev.Chain, ev.EscrowRef)
	if errors.Is(err, registry.ErrSwapNotFound) {
		log.WithFields(ev.Fields()).Debug("event for an unknown escrow")

		return nil, nil, nil
	}
	if err != nil {
		return nil, nil, fmt.Errorf("failed to look up escrow: %w", err)
	}

	unlock := r.locks.Lock(swap.Hashlock)
	swap, err = r.store.Get(ctx, swap.ID)
	if err != nil {
		unlock()

		return nil, nil, fmt.Errorf("failed to reload swap: %w", err)
	}

	return swap, unlock, nil
}

func (r *Relayer) onEscrowCompleted(ctx context.Context, ev monitor.Event) error {
	swap, unlock, err := r.lockByEscrow(ctx, ev)
	if err != nil || swap == nil {
		return err
	}
	defer unlock()

	if ev.Chain == swap.SourceChain && ev.EscrowRef == swap.SourceEscrowRef {
		if swap.SourceWithdrawTx != "" && swap.SourceWithdrawTx != unknownTx {
			return nil
		}
		_, err := r.store.Update(ctx, swap.ID, func(s *models.Swap) error {
			s.SourceWithdrawTx = ev.TxRef

			return nil
		})

		return err
	}

	escrow := swap.CounterEscrow(ev.EscrowRef)
	if escrow == nil || swap.IsSettled(*escrow) {
		return nil
	}
	if swap.Status == models.StatusLocked {
		_, err := r.recordFill(ctx, swap, *escrow, ev.TxRef)

		return err
	}

	_, err = r.store.Update(ctx, swap.ID, func(s *models.Swap) error {
		s.CounterEscrow(ev.EscrowRef).WithdrawTx = ev.TxRef

		return nil
	})

	return err
}

func (r *Relayer) onEscrowRefunded(ctx context.Context, ev monitor.Event) error {
	swap, unlock, err := r.lockByEscrow(ctx, ev)
	if err != nil || swap == nil {
		return err
	}
	defer unlock()

	updated, err := r.store.Update(ctx, swap.ID, func(s *models.Swap) error {
		if ev.Chain == s.SourceChain && ev.EscrowRef == s.SourceEscrowRef {
			if s.SourceRefundTx == "" || s.SourceRefundTx == unknownTx {
				s.SourceRefundTx = ev.TxRef
			}

			return nil
		}
		if e := s.CounterEscrow(ev.EscrowRef); e != nil && (e.RefundTx == "" || e.RefundTx == unknownTx) {
			e.RefundTx = ev.TxRef
		}

		return nil
	})
	if err != nil {
		return fmt.Errorf("failed to record refund: %w", err)
	}
	log.WithFields(swapFields(updated)).WithField("escrow_ref", ev.EscrowRef).Info("escrow refunded")

	return r.closeIfRefunded(ctx, updated)
}

func (r *Relayer) closeIfRefunded(ctx context.Context, swap *models.Swap) error {
	if swap.Status != models.StatusExpired || !swap.LegsRefunded() || swap.CounterClaimed() {
		return nil
	}
	_, err := r.transition(ctx, swap, models.StatusRefunded, nil)

	return err
}
