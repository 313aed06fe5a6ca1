package rpc

import (
	"testing"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/connectivity"
)

func TestNewConnection(t *testing.T) {
	connection, err := NewConnection("localhost", 50051)
	require.NoError(t, err)
	require.Equal(t, connectivity.Idle, connection.GetState())
	require.NoError(t, connection.Close())
}

func TestNewRPCClient(t *testing.T) {
	client, closeConn, err := NewRPCClient("localhost", 50051)
	require.NoError(t, err)
	require.NotNil(t, client)
	require.NoError(t, closeConn())
}
