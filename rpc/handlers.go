package rpc

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/money"
	"github.com/40acres/htlc-bridge/relayer"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/status"
)

func (server *Server) SubmitSwap(ctx context.Context, req *SubmitSwapRequest) (*SubmitSwapResponse, error) {
	log.Infof("Received SubmitSwap request: %+v", req)

	src, err := parseChain("sourceChain", req.SourceChain)
	if err != nil {
		return nil, err
	}
	dst, err := parseChain("destinationChain", req.DestinationChain)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}
	if req.TimelockSeconds < 0 {
		return nil, status.Error(codes.InvalidArgument, "timelockSeconds must not be negative")
	}

	resp, err := server.relayer.SubmitSwap(ctx, relayer.SubmitSwapRequest{
		SourceChain:        src,
		DestinationChain:   dst,
		Amount:             amount,
		BeneficiaryAddress: req.BeneficiaryAddress,
		InitiatorAddress:   req.InitiatorAddress,
		Timelock:           time.Duration(req.TimelockSeconds) * time.Second,
	})
	if err != nil {
		return nil, toStatus(err)
	}

	return &SubmitSwapResponse{
		SwapID:              resp.SwapID,
		Hashlock:            resp.Hashlock.String(),
		Timelock:            resp.Timelock.UTC(),
		DestinationTimelock: resp.DestinationTimelock.UTC(),
		Quote:               toQuote(&resp.Quote),
	}, nil
}

func (server *Server) GetSwapStatus(ctx context.Context, req *GetSwapStatusRequest) (*SwapStatus, error) {
	if req.SwapID == "" {
		return nil, status.Error(codes.InvalidArgument, "swapId is required")
	}

	s, err := server.relayer.GetSwapStatus(ctx, req.SwapID)
	if err != nil {
		return nil, toStatus(err)
	}

	return toSwapStatus(s), nil
}

func (server *Server) RevealSecret(ctx context.Context, req *RevealSecretRequest) (*RevealSecretResponse, error) {
	if req.SwapID == "" {
		return nil, status.Error(codes.InvalidArgument, "swapId is required")
	}
	if err := server.relayer.RevealSecret(ctx, req.SwapID, req.Secret); err != nil {
		return nil, toStatus(err)
	}

	return &RevealSecretResponse{}, nil
}

func (server *Server) GetQuote(ctx context.Context, req *GetQuoteRequest) (*Quote, error) {
	src, err := parseChain("sourceChain", req.SourceChain)
	if err != nil {
		return nil, err
	}
	dst, err := parseChain("destinationChain", req.DestinationChain)
	if err != nil {
		return nil, err
	}
	amount, err := parseAmount(req.Amount)
	if err != nil {
		return nil, err
	}

	q, err := server.relayer.GetQuote(ctx, relayer.QuoteRequest{SourceChain: src, DestinationChain: dst, Amount: amount})
	if err != nil {
		return nil, toStatus(err)
	}

	return toQuote(q), nil
}

func (server *Server) ListSwaps(ctx context.Context, req *ListSwapsRequest) (*ListSwapsResponse, error) {
	swaps, err := server.relayer.ListSwaps(ctx, req.Account, req.Offset, req.Limit)
	if err != nil {
		return nil, toStatus(err)
	}

	resp := &ListSwapsResponse{Swaps: make([]*SwapStatus, 0, len(swaps))}
	for _, s := range swaps {
		resp.Swaps = append(resp.Swaps, toSwapStatus(s))
	}

	return resp, nil
}

func parseChain(field, value string) (models.Chain, error) {
	c := models.Chain(strings.ToLower(strings.TrimSpace(value)))
	if !c.IsValid() {
		return "", status.Errorf(codes.InvalidArgument, "%s: unknown chain %q", field, value)
	}

	return c, nil
}

func parseAmount(value string) (decimal.Decimal, error) {
	amount, err := money.Parse(value)
	if err != nil {
		return decimal.Zero, status.Errorf(codes.InvalidArgument, "amount: %v", err)
	}

	return amount, nil
}

// toStatus maps relayer errors to gRPC codes.
func toStatus(err error) error {
	var verr *relayer.ValidationError
	switch {
	case errors.As(err, &verr):
		return status.Error(codes.InvalidArgument, verr.Error())
	case errors.Is(err, relayer.ErrUnknownSwap):
		return status.Error(codes.NotFound, err.Error())
	case errors.Is(err, relayer.ErrNotReady), errors.Is(err, relayer.ErrSwapClosed):
		return status.Error(codes.FailedPrecondition, err.Error())
	case errors.Is(err, relayer.ErrFallbackRefused):
		return status.Error(codes.Unavailable, err.Error())
	case errors.Is(err, context.Canceled):
		return status.Error(codes.Canceled, err.Error())
	case errors.Is(err, context.DeadlineExceeded):
		return status.Error(codes.DeadlineExceeded, err.Error())
	}
	log.WithError(err).Error("internal error")

	return status.Error(codes.Internal, "internal error")
}

func toQuote(q *relayer.Quote) *Quote {
	return &Quote{
		CounterAmount:        q.CounterAmount.String(),
		Rate:                 q.Rate.String(),
		Fee:                  q.Fee.String(),
		NetAmount:            q.Net.String(),
		Source:               q.Source,
		Fallback:             q.Fallback,
		EstimatedGas:         q.EstimatedGas.String(),
		ResolverIncentiveBps: q.ResolverIncentiveBps.String(),
	}
}

func toSwapStatus(s *relayer.SwapStatus) *SwapStatus {
	out := &SwapStatus{
		SwapID:           s.ID,
		Hashlock:         s.Hashlock.String(),
		Status:           s.Status.String(),
		AwaitingSource:   s.AwaitingSource,
		SourceChain:      s.SourceChain.String(),
		DestinationChain: s.DestinationChain.String(),
		PrincipalAmount:  s.PrincipalAmount.String(),
		FilledAmount:     s.FilledAmount.String(),
		SourceEscrowRef:  s.SourceEscrowRef,
		Timelock:         s.Timelock.UTC(),
		SecretRevealed:   s.SecretRevealed,
		LastError:        s.LastError,
		CreatedAt:        s.CreatedAt.UTC(),
		UpdatedAt:        s.UpdatedAt.UTC(),
	}
	if s.AwaitingSource {
		out.Status = "AWAITING_SOURCE"
	} else {
		out.CounterAmount = s.CounterAmount.String()
		out.DestinationTimelock = s.DestinationTimelock.UTC()
	}
	if !s.ResolverIncentiveBps.IsZero() {
		out.ResolverIncentiveBps = s.ResolverIncentiveBps.String()
	}
	for _, f := range s.Fills {
		out.Fills = append(out.Fills, Fill{EscrowRef: f.EscrowRef, Amount: f.Amount.String(), TxRef: f.TxRef, Position: f.Position})
	}
	for _, e := range s.CounterEscrows {
		escrow := CounterEscrow{
			EscrowRef:        e.EscrowRef,
			Amount:           e.Amount.String(),
			CreatedByRelayer: e.CreatedByRelayer,
			RefundTx:         e.RefundTx,
			WithdrawTx:       e.WithdrawTx,
		}
		if !e.IncentiveBps.IsZero() {
			escrow.IncentiveBps = e.IncentiveBps.String()
		}
		out.CounterEscrows = append(out.CounterEscrows, escrow)
	}

	return out
}
