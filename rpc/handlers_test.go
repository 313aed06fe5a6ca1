package rpc

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/relayer"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func testQuote() relayer.Quote {
	return relayer.Quote{
		CounterAmount:        decimal.RequireFromString("9.97"),
		Rate:                 decimal.NewFromInt(10),
		Fee:                  decimal.RequireFromString("0.003"),
		Net:                  decimal.RequireFromString("0.997"),
		Source:               "coingecko",
		EstimatedGas:         decimal.RequireFromString("0.003"),
		ResolverIncentiveBps: decimal.NewFromInt(50),
	}
}

func TestServer_SubmitSwap(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mock := NewMockRelayer(ctrl)
	server := NewRPCServer(0, mock)
	timelock := time.Date(2026, 3, 1, 14, 0, 0, 0, time.UTC)

	tests := []struct {
		name  string
		setup func()
		req   *SubmitSwapRequest
		want  *SubmitSwapResponse
		code  codes.Code
	}{
		{
			name: "submitted",
			setup: func() {
				mock.EXPECT().SubmitSwap(ctx, relayer.SubmitSwapRequest{
					SourceChain:        models.Ethereum,
					DestinationChain:   models.Near,
					Amount:             decimal.RequireFromString("1.5"),
					BeneficiaryAddress: "bob.near",
					Timelock:           time.Hour,
				}).Return(&relayer.SubmitSwapResponse{
					SwapID:              "swap-1",
					Hashlock:            lntypes.Hash{1},
					Timelock:            timelock,
					DestinationTimelock: timelock.Add(-30 * time.Minute),
					Quote:               testQuote(),
				}, nil)
			},
			req: &SubmitSwapRequest{
				SourceChain:        "ETHEREUM",
				DestinationChain:   "near",
				Amount:             "1.5",
				BeneficiaryAddress: "bob.near",
				TimelockSeconds:    3600,
			},
			want: &SubmitSwapResponse{
				SwapID:              "swap-1",
				Hashlock:            lntypes.Hash{1}.String(),
				Timelock:            timelock,
				DestinationTimelock: timelock.Add(-30 * time.Minute),
				Quote: &Quote{
					CounterAmount:        "9.97",
					Rate:                 "10",
					Fee:                  "0.003",
					NetAmount:            "0.997",
					Source:               "coingecko",
					EstimatedGas:         "0.003",
					ResolverIncentiveBps: "50",
				},
			},
		},
		{
			name:  "unknown chain",
			setup: func() {},
			req:   &SubmitSwapRequest{SourceChain: "solana", DestinationChain: "near", Amount: "1"},
			code:  codes.InvalidArgument,
		},
		{
			name:  "malformed amount",
			setup: func() {},
			req:   &SubmitSwapRequest{SourceChain: "ethereum", DestinationChain: "near", Amount: "1,5"},
			code:  codes.InvalidArgument,
		},
		{
			name:  "negative timelock",
			setup: func() {},
			req:   &SubmitSwapRequest{SourceChain: "ethereum", DestinationChain: "near", Amount: "1", TimelockSeconds: -1},
			code:  codes.InvalidArgument,
		},
		{
			name: "rejected by the relayer",
			setup: func() {
				mock.EXPECT().SubmitSwap(ctx, gomock.Any()).Return(nil, &relayer.ValidationError{Field: "beneficiary_address", Reason: "bad"})
			},
			req:  &SubmitSwapRequest{SourceChain: "ethereum", DestinationChain: "near", Amount: "1", BeneficiaryAddress: "x"},
			code: codes.InvalidArgument,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			tt.setup()

			got, err := server.SubmitSwap(ctx, tt.req)
			if tt.code != codes.OK {
				require.Equal(t, tt.code, status.Code(err))

				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestServer_GetSwapStatus(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mock := NewMockRelayer(ctrl)
	server := NewRPCServer(0, mock)
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

	t.Run("locked swap", func(t *testing.T) {
		mock.EXPECT().GetSwapStatus(ctx, "swap-1").Return(&relayer.SwapStatus{
			ID:                  "swap-1",
			Status:              models.StatusLocked,
			SourceChain:         models.Ethereum,
			DestinationChain:    models.Near,
			PrincipalAmount:     decimal.NewFromInt(1),
			CounterAmount:       decimal.RequireFromString("9.97"),
			FilledAmount:        decimal.RequireFromString("4"),
			Fills:               []models.PartialFill{{EscrowRef: "e1", Amount: decimal.NewFromInt(4), TxRef: "tx1"}},
			CounterEscrows:      []models.CounterEscrow{{EscrowRef: "e1", Amount: decimal.NewFromInt(4)}, {EscrowRef: "e2", Amount: decimal.RequireFromString("5.97"), IncentiveBps: decimal.RequireFromString("27.5")}},
			Timelock:            now.Add(time.Hour),
			DestinationTimelock: now.Add(30 * time.Minute),
			SecretRevealed:      true,
			CreatedAt:           now,
			UpdatedAt:           now,
		}, nil)

		got, err := server.GetSwapStatus(ctx, &GetSwapStatusRequest{SwapID: "swap-1"})
		require.NoError(t, err)
		require.Equal(t, "LOCKED", got.Status)
		require.Equal(t, "9.97", got.CounterAmount)
		require.Equal(t, "4", got.FilledAmount)
		require.Len(t, got.Fills, 1)
		require.Len(t, got.CounterEscrows, 2)
		require.Equal(t, "5.97", got.CounterEscrows[1].Amount)
		require.Empty(t, got.CounterEscrows[0].IncentiveBps)
		require.Equal(t, "27.5", got.CounterEscrows[1].IncentiveBps)
		require.True(t, got.SecretRevealed)
		require.Empty(t, got.ResolverIncentiveBps)
	})

	t.Run("awaiting source escrow", func(t *testing.T) {
		mock.EXPECT().GetSwapStatus(ctx, "intent-1").Return(&relayer.SwapStatus{
			ID:               "intent-1",
			AwaitingSource:   true,
			SourceChain:      models.Ethereum,
			DestinationChain: models.Near,
			PrincipalAmount:  decimal.NewFromInt(1),
			FilledAmount:     decimal.Zero,
			Timelock:         now.Add(time.Hour),
		}, nil)

		got, err := server.GetSwapStatus(ctx, &GetSwapStatusRequest{SwapID: "intent-1"})
		require.NoError(t, err)
		require.Equal(t, "AWAITING_SOURCE", got.Status)
		require.Empty(t, got.CounterAmount)
		require.True(t, got.DestinationTimelock.IsZero())
	})

	t.Run("unknown swap", func(t *testing.T) {
		mock.EXPECT().GetSwapStatus(ctx, "missing").Return(nil, fmt.Errorf("%w: missing", relayer.ErrUnknownSwap))

		_, err := server.GetSwapStatus(ctx, &GetSwapStatusRequest{SwapID: "missing"})
		require.Equal(t, codes.NotFound, status.Code(err))
	})

	t.Run("missing id", func(t *testing.T) {
		_, err := server.GetSwapStatus(ctx, &GetSwapStatusRequest{})
		require.Equal(t, codes.InvalidArgument, status.Code(err))
	})
}

func TestServer_RevealSecret(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mock := NewMockRelayer(ctrl)
	server := NewRPCServer(0, mock)

	tests := []struct {
		name string
		err  error
		code codes.Code
	}{
		{name: "settled", err: nil, code: codes.OK},
		{name: "wrong secret", err: &relayer.ValidationError{Field: "secret", Reason: "does not hash to the swap hashlock"}, code: codes.InvalidArgument},
		{name: "not locked yet", err: relayer.ErrNotReady, code: codes.FailedPrecondition},
		{name: "closed", err: fmt.Errorf("%w: REFUNDED", relayer.ErrSwapClosed), code: codes.FailedPrecondition},
		{name: "store failure", err: errors.New("connection reset"), code: codes.Internal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			mock.EXPECT().RevealSecret(ctx, "swap-1", "ab").Return(tt.err)

			_, err := server.RevealSecret(ctx, &RevealSecretRequest{SwapID: "swap-1", Secret: "ab"})
			require.Equal(t, tt.code, status.Code(err))
		})
	}
}

func TestServer_GetQuote(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mock := NewMockRelayer(ctrl)
	server := NewRPCServer(0, mock)

	q := testQuote()
	q.Fallback = true
	mock.EXPECT().GetQuote(ctx, relayer.QuoteRequest{
		SourceChain:      models.Near,
		DestinationChain: models.Bitcoin,
		Amount:           decimal.NewFromInt(100),
	}).Return(&q, nil)

	got, err := server.GetQuote(ctx, &GetQuoteRequest{SourceChain: "near", DestinationChain: "bitcoin", Amount: "100"})
	require.NoError(t, err)
	require.True(t, got.Fallback)
	require.Equal(t, "9.97", got.CounterAmount)

	mock.EXPECT().GetQuote(ctx, gomock.Any()).Return(nil, relayer.ErrFallbackRefused)
	_, err = server.GetQuote(ctx, &GetQuoteRequest{SourceChain: "near", DestinationChain: "bitcoin", Amount: "100"})
	require.Equal(t, codes.Unavailable, status.Code(err))

	_, err = server.GetQuote(ctx, &GetQuoteRequest{SourceChain: "near", DestinationChain: "bitcoin", Amount: "-1"})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_ListSwaps(t *testing.T) {
	ctx := context.Background()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	mock := NewMockRelayer(ctrl)
	server := NewRPCServer(0, mock)

	mock.EXPECT().ListSwaps(ctx, "bob.near", 10, 5).Return([]*relayer.SwapStatus{
		{ID: "a", Status: models.StatusCompleted},
		{ID: "b", Status: models.StatusCreated, ResolverIncentiveBps: decimal.NewFromInt(27)},
	}, nil)

	got, err := server.ListSwaps(ctx, &ListSwapsRequest{Account: "bob.near", Offset: 10, Limit: 5})
	require.NoError(t, err)
	require.Len(t, got.Swaps, 2)
	require.Equal(t, "COMPLETED", got.Swaps[0].Status)
	require.Equal(t, "27", got.Swaps[1].ResolverIncentiveBps)
}
