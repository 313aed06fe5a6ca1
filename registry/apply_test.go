package registry

import (
	"testing"
	"time"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func TestCanTransition(t *testing.T) {
	all := []models.SwapStatus{
		models.StatusCreated, models.StatusLocked, models.StatusCompleted,
		models.StatusFailed, models.StatusExpired, models.StatusRefunded,
	}
	allowed := map[[2]models.SwapStatus]bool{
		{models.StatusCreated, models.StatusLocked}:   true,
		{models.StatusCreated, models.StatusFailed}:   true,
		{models.StatusLocked, models.StatusCompleted}: true,
		{models.StatusLocked, models.StatusExpired}:   true,
		{models.StatusLocked, models.StatusFailed}:    true,
		{models.StatusExpired, models.StatusRefunded}: true,
	}

	for _, from := range all {
		for _, to := range all {
			want := allowed[[2]models.SwapStatus{from, to}]
			require.Equal(t, want, CanTransition(from, to), "%s -> %s", from, to)
		}
	}
}

func TestApplyTransition_DoesNotModifyCurrent(t *testing.T) {
	current := &models.Swap{
		ID:            "swap",
		Status:        models.StatusCreated,
		CounterAmount: decimal.NewFromInt(2),
	}

	next, err := ApplyTransition(current, models.StatusCreated, models.StatusLocked, func(s *models.Swap) error {
		s.CounterEscrows = append(s.CounterEscrows, models.CounterEscrow{EscrowRef: "e", Amount: decimal.NewFromInt(2)})
		s.LastError = "note"

		return nil
	}, time.Unix(100, 0))
	require.NoError(t, err)
	require.Equal(t, models.StatusLocked, next.Status)
	require.Equal(t, "swap", next.CounterEscrows[0].SwapID)

	require.Equal(t, models.StatusCreated, current.Status)
	require.Empty(t, current.CounterEscrows)
	require.Empty(t, current.LastError)
}

func TestApplyUpdate_CounterEscrowsAreAppendOnly(t *testing.T) {
	current := &models.Swap{
		ID:            "swap",
		Status:        models.StatusLocked,
		CounterAmount: decimal.NewFromInt(2),
		CounterEscrows: []models.CounterEscrow{
			{EscrowRef: "e", Amount: decimal.NewFromInt(2)},
		},
	}

	_, err := ApplyUpdate(current, func(s *models.Swap) error {
		s.CounterEscrows = nil

		return nil
	}, time.Now())
	require.ErrorIs(t, err, ErrConsistency)

	_, err = ApplyUpdate(current, func(s *models.Swap) error {
		s.CounterEscrows[0].Amount = decimal.NewFromInt(1)

		return nil
	}, time.Now())
	require.ErrorIs(t, err, ErrConsistency)

	next, err := ApplyUpdate(current, func(s *models.Swap) error {
		s.CounterEscrows[0].RefundTx = "refund"

		return nil
	}, time.Now())
	require.NoError(t, err)
	require.Equal(t, "refund", next.CounterEscrows[0].RefundTx)
}

func TestApplyFill_RejectsNonPositiveAmounts(t *testing.T) {
	current := &models.Swap{ID: "swap", Status: models.StatusLocked, CounterAmount: decimal.NewFromInt(2)}

	_, _, err := ApplyFill(current, models.PartialFill{EscrowRef: "e", Amount: decimal.Zero}, time.Now())
	require.ErrorIs(t, err, ErrConsistency)

	_, _, err = ApplyFill(current, models.PartialFill{Amount: decimal.NewFromInt(1)}, time.Now())
	require.ErrorIs(t, err, ErrConsistency)
}
