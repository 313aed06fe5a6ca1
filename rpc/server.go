package rpc

import (
	"context"
	"errors"
	"fmt"
	"net"
	"time"

	"github.com/40acres/htlc-bridge/relayer"
	log "github.com/sirupsen/logrus"
	"google.golang.org/grpc"
	"google.golang.org/grpc/status"
)

//go:generate go tool mockgen -destination=mock.go -package=rpc . Relayer

// Relayer is the part of the orchestrator exposed over gRPC.
type Relayer interface {
	SubmitSwap(ctx context.Context, req relayer.SubmitSwapRequest) (*relayer.SubmitSwapResponse, error)
	GetSwapStatus(ctx context.Context, id string) (*relayer.SwapStatus, error)
	RevealSecret(ctx context.Context, id, secret string) error
	GetQuote(ctx context.Context, req relayer.QuoteRequest) (*relayer.Quote, error)
	ListSwaps(ctx context.Context, account string, offset, limit int) ([]*relayer.SwapStatus, error)
}

type Server struct {
	relayer    Relayer
	port       uint32
	grpcServer *grpc.Server
}

var _ RelayerServiceServer = (*Server)(nil)

func NewRPCServer(port uint32, r Relayer) *Server {
	server := &Server{
		relayer: r,
		port:    port,
	}
	server.grpcServer = grpc.NewServer(grpc.ChainUnaryInterceptor(logRequests))
	RegisterRelayerServiceServer(server.grpcServer, server)

	return server
}

// ListenAndServe blocks until Stop is called.
func (server *Server) ListenAndServe() error {
	listener, err := net.Listen("tcp", fmt.Sprintf(":%d", server.port))
	if err != nil {
		return fmt.Errorf("failed to listen to port: %w", err)
	}
	log.Infof("gRPC server listening on %s", listener.Addr())

	return server.Serve(listener)
}

func (server *Server) Serve(listener net.Listener) error {
	if err := server.grpcServer.Serve(listener); err != nil && !errors.Is(err, grpc.ErrServerStopped) {
		return fmt.Errorf("failed to initialize grpc server: %w", err)
	}

	return nil
}

func (server *Server) Stop() {
	server.grpcServer.GracefulStop()
}

func logRequests(ctx context.Context, req any, info *grpc.UnaryServerInfo, handler grpc.UnaryHandler) (any, error) {
	start := time.Now()
	resp, err := handler(ctx, req)

	logger := log.WithFields(log.Fields{
		"method":   info.FullMethod,
		"duration": time.Since(start),
		"code":     status.Code(err).String(),
	})
	if err != nil {
		logger.WithError(err).Warn("request failed")
	} else {
		logger.Debug("request served")
	}

	return resp, err
}
