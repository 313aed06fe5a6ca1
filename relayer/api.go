package relayer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/crypto"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/registry"
	"github.com/google/uuid"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

const (
	DefaultListLimit = 50
	MaxListLimit     = 500
)

type SubmitSwapRequest struct {
	SourceChain        models.Chain
	DestinationChain   models.Chain
	Amount             decimal.Decimal
	BeneficiaryAddress string
	// Optional; checked against the source chain when set
	InitiatorAddress string
	// Zero selects the configured default
	Timelock time.Duration
}

// SubmitSwapResponse tells the initiator how to lock the source escrow.
type SubmitSwapResponse struct {
	SwapID              string
	Hashlock            lntypes.Hash
	Timelock            time.Time
	DestinationTimelock time.Time
	Quote               Quote
}

type SwapStatus struct {
	ID       string
	Hashlock lntypes.Hash
	// Empty while the source escrow has not been observed
	Status         models.SwapStatus
	AwaitingSource bool

	SourceChain      models.Chain
	DestinationChain models.Chain
	PrincipalAmount  decimal.Decimal
	CounterAmount    decimal.Decimal
	FilledAmount     decimal.Decimal
	Fills            []models.PartialFill
	CounterEscrows   []models.CounterEscrow

	SourceEscrowRef     string
	Timelock            time.Time
	DestinationTimelock time.Time
	SecretRevealed      bool
	LastError           string
	// Current Dutch auction incentive, only while resolvers can still fill
	ResolverIncentiveBps decimal.Decimal

	CreatedAt time.Time
	UpdatedAt time.Time
}

// SubmitSwap generates the secret of a new swap and waits for the initiator
// to lock the source escrow under its hashlock.
func (r *Relayer) SubmitSwap(ctx context.Context, req SubmitSwapRequest) (*SubmitSwapResponse, error) {
	if err := r.validateRoute(req.SourceChain, req.DestinationChain); err != nil {
		return nil, err
	}
	if !req.Amount.IsPositive() {
		return nil, validation("amount", "must be positive", nil)
	}
	if err := chain.ValidateAddress(req.DestinationChain, r.config.Network, req.BeneficiaryAddress); err != nil {
		return nil, validation("beneficiary_address", err.Error(), err)
	}
	if req.InitiatorAddress != "" {
		if err := chain.ValidateAddress(req.SourceChain, r.config.Network, req.InitiatorAddress); err != nil {
			return nil, validation("initiator_address", err.Error(), err)
		}
	}

	q, err := r.quote(ctx, req.SourceChain, req.DestinationChain, req.Amount)
	if err != nil {
		return nil, err
	}
	q.ResolverIncentiveBps = r.auction().Start

	duration := req.Timelock
	if duration == 0 {
		duration = r.config.DefaultTimelock
	}
	commitment, err := r.secrets.Generate()
	if err != nil {
		return nil, fmt.Errorf("failed to generate secret: %w", err)
	}
	timelock := r.secrets.DeriveDeadline(duration).Truncate(time.Second)
	dstTimelock, err := r.destinationTimelock(timelock)
	if err != nil {
		return nil, err
	}

	intent := &models.SwapIntent{
		ID:                 uuid.NewString(),
		Hashlock:           commitment.Hashlock,
		Secret:             &commitment.Secret,
		SourceChain:        req.SourceChain,
		DestinationChain:   req.DestinationChain,
		Amount:             req.Amount,
		InitiatorAddress:   req.InitiatorAddress,
		BeneficiaryAddress: req.BeneficiaryAddress,
		Timelock:           timelock,
		ExpiresAt:          timelock,
	}
	if err := r.store.CreateIntent(ctx, intent); err != nil {
		return nil, fmt.Errorf("failed to store swap intent: %w", err)
	}
	log.WithFields(log.Fields{
		"swap_id":  intent.ID,
		"hashlock": intent.Hashlock.String(),
	}).Infof("swap submitted: %s %s -> %s", req.Amount, req.SourceChain, req.DestinationChain)

	return &SubmitSwapResponse{
		SwapID:              intent.ID,
		Hashlock:            intent.Hashlock,
		Timelock:            timelock,
		DestinationTimelock: dstTimelock,
		Quote:               *q,
	}, nil
}

func (r *Relayer) GetSwapStatus(ctx context.Context, id string) (*SwapStatus, error) {
	swap, err := r.store.Get(ctx, id)
	if err == nil {
		return r.status(swap), nil
	}
	if !errors.Is(err, registry.ErrSwapNotFound) {
		return nil, fmt.Errorf("failed to get swap: %w", err)
	}

	intent, err := r.store.GetIntent(ctx, id)
	if errors.Is(err, registry.ErrIntentNotFound) {
		return nil, fmt.Errorf("%w: %s", ErrUnknownSwap, id)
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get swap intent: %w", err)
	}

	return &SwapStatus{
		ID:               intent.ID,
		Hashlock:         intent.Hashlock,
		AwaitingSource:   true,
		SourceChain:      intent.SourceChain,
		DestinationChain: intent.DestinationChain,
		PrincipalAmount:  intent.Amount,
		FilledAmount:     decimal.Zero,
		Timelock:         intent.Timelock,
		CreatedAt:        intent.CreatedAt,
		UpdatedAt:        intent.CreatedAt,
	}, nil
}

// ListSwaps pages through the swaps an account initiated or receives.
func (r *Relayer) ListSwaps(ctx context.Context, account string, offset, limit int) ([]*SwapStatus, error) {
	if account == "" {
		return nil, validation("account", "is required", nil)
	}
	if offset < 0 {
		return nil, validation("offset", "must not be negative", nil)
	}
	if limit <= 0 {
		limit = DefaultListLimit
	}
	limit = min(limit, MaxListLimit)

	swaps, err := r.store.ListByAccount(ctx, account, offset, limit)
	if err != nil {
		return nil, fmt.Errorf("failed to list swaps: %w", err)
	}

	out := make([]*SwapStatus, 0, len(swaps))
	for _, swap := range swaps {
		out = append(out, r.status(swap))
	}

	return out, nil
}

func (r *Relayer) status(swap *models.Swap) *SwapStatus {
	s := &SwapStatus{
		ID:                  swap.ID,
		Hashlock:            swap.Hashlock,
		Status:              swap.Status,
		SourceChain:         swap.SourceChain,
		DestinationChain:    swap.DestinationChain,
		PrincipalAmount:     swap.PrincipalAmount,
		CounterAmount:       swap.CounterAmount,
		FilledAmount:        swap.FilledAmount(),
		Fills:               swap.Fills,
		CounterEscrows:      swap.CounterEscrows,
		SourceEscrowRef:     swap.SourceEscrowRef,
		Timelock:            swap.Timelock,
		DestinationTimelock: swap.DestinationTimelock,
		SecretRevealed:      swap.Secret != nil,
		LastError:           swap.LastError,
		CreatedAt:           swap.CreatedAt,
		UpdatedAt:           swap.UpdatedAt,
	}
	if swap.Status == models.StatusCreated {
		s.ResolverIncentiveBps = r.auction().PriceAt(swap.CreatedAt, r.now())
	}

	return s
}

// RevealSecret settles a locked swap with a secret handed in by its
// initiator. A secret that does not match leaves the swap untouched.
func (r *Relayer) RevealSecret(ctx context.Context, id, secret string) error {
	preimage, err := crypto.ParseSecret(secret)
	if err != nil {
		return validation("secret", err.Error(), err)
	}

	swap, err := r.store.Get(ctx, id)
	if errors.Is(err, registry.ErrSwapNotFound) {
		return r.revealIntent(ctx, id, preimage)
	}
	if err != nil {
		return fmt.Errorf("failed to get swap: %w", err)
	}

	unlock := r.locks.Lock(swap.Hashlock)
	defer unlock()

	swap, err = r.store.Get(ctx, id)
	if err != nil {
		return fmt.Errorf("failed to reload swap: %w", err)
	}
	logger := log.WithFields(swapFields(swap))
	if !crypto.VerifySecret(preimage, swap.Hashlock) {
		logger.WithField("security", true).Warn("rejected a revealed secret that does not match the hashlock")

		return validation("secret", "does not hash to the swap hashlock", registry.ErrInvalidSecret)
	}

	switch swap.Status {
	case models.StatusCreated:
		return ErrNotReady
	case models.StatusLocked, models.StatusCompleted:
	default:
		return fmt.Errorf("%w: %s", ErrSwapClosed, swap.Status)
	}

	if err := r.settle(ctx, swap, preimage, nil); err != nil {
		current, gerr := r.store.Get(ctx, id)
		if gerr != nil || current.Secret == nil {
			return err
		}
		logger.WithError(err).Warn("secret recorded, settlement will be retried by the sweep")
	}

	return nil
}

func (r *Relayer) revealIntent(ctx context.Context, id string, secret lntypes.Preimage) error {
	intent, err := r.store.GetIntent(ctx, id)
	if errors.Is(err, registry.ErrIntentNotFound) {
		return fmt.Errorf("%w: %s", ErrUnknownSwap, id)
	}
	if err != nil {
		return fmt.Errorf("failed to get swap intent: %w", err)
	}
	if !crypto.VerifySecret(secret, intent.Hashlock) {
		return validation("secret", "does not hash to the swap hashlock", registry.ErrInvalidSecret)
	}

	return ErrNotReady
}
