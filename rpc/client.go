package rpc

import (
	"fmt"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

func NewConnection(host string, port uint32) (*grpc.ClientConn, error) {
	conn, err := grpc.NewClient(
		fmt.Sprintf("%s:%d", host, port),
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithDefaultCallOptions(grpc.CallContentSubtype(CodecName)),
	)
	if err != nil {
		return nil, fmt.Errorf("could not connect to %s:%d: %w", host, port, err)
	}

	return conn, nil
}

// NewRPCClient returns a client for the daemon and a function closing its
// connection.
func NewRPCClient(host string, port uint32) (RelayerServiceClient, func() error, error) {
	conn, err := NewConnection(host, port)
	if err != nil {
		return nil, nil, err
	}

	return NewRelayerServiceClient(conn), conn.Close, nil
}
