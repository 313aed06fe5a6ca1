package rpc

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/relayer"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
	"google.golang.org/grpc"
	"google.golang.org/grpc/codes"
	"google.golang.org/grpc/credentials/insecure"
	"google.golang.org/grpc/status"
)

// serve starts the server on a loopback port and returns a connected client.
func serve(t *testing.T, r Relayer) RelayerServiceClient {
	t.Helper()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)

	server := NewRPCServer(0, r)
	errChan := make(chan error, 1)
	go func() {
		errChan <- server.Serve(listener)
	}()

	conn, err := grpc.NewClient(listener.Addr().String(), grpc.WithTransportCredentials(insecure.NewCredentials()))
	require.NoError(t, err)

	t.Cleanup(func() {
		require.NoError(t, conn.Close())
		server.Stop()
		require.NoError(t, <-errChan)
	})

	return NewRelayerServiceClient(conn)
}

func TestServer_RoundTrip(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)
	mock := NewMockRelayer(ctrl)
	client := serve(t, mock)

	q := testQuote()
	mock.EXPECT().GetQuote(gomock.Any(), relayer.QuoteRequest{
		SourceChain:      models.Ethereum,
		DestinationChain: models.Near,
		Amount:           decimal.NewFromInt(1),
	}).Return(&q, nil)

	got, err := client.GetQuote(ctx, &GetQuoteRequest{SourceChain: "ethereum", DestinationChain: "near", Amount: "1"})
	require.NoError(t, err)
	require.Equal(t, "9.97", got.CounterAmount)
	require.Equal(t, "50", got.ResolverIncentiveBps)

	mock.EXPECT().RevealSecret(gomock.Any(), "swap-1", "00").Return(relayer.ErrNotReady)
	_, err = client.RevealSecret(ctx, &RevealSecretRequest{SwapID: "swap-1", Secret: "00"})
	require.Equal(t, codes.FailedPrecondition, status.Code(err))

	_, err = client.GetSwapStatus(ctx, &GetSwapStatusRequest{})
	require.Equal(t, codes.InvalidArgument, status.Code(err))
}

func TestServer_StopBeforeServe(t *testing.T) {
	server := NewRPCServer(0, nil)
	server.Stop()

	listener, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	require.NoError(t, server.Serve(listener))
}
