package rpc

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"
	"google.golang.org/grpc/encoding"
)

func TestJSONCodecRegistered(t *testing.T) {
	codec := encoding.GetCodec(CodecName)
	require.NotNil(t, codec)

	in := &SwapStatus{
		SwapID:    "swap-1",
		Status:    "LOCKED",
		Timelock:  time.Date(2026, 3, 1, 13, 0, 0, 0, time.UTC),
		CreatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC),
	}
	raw, err := codec.Marshal(in)
	require.NoError(t, err)
	require.Contains(t, string(raw), `"swapId":"swap-1"`)
	require.NotContains(t, string(raw), "destinationTimelock")

	out := &SwapStatus{}
	require.NoError(t, codec.Unmarshal(raw, out))
	require.Equal(t, in, out)

	require.NoError(t, codec.Unmarshal(nil, &RevealSecretResponse{}))
	require.Error(t, codec.Unmarshal([]byte("{"), out))
}

func TestMarshalIndent(t *testing.T) {
	got, err := MarshalIndent(&RevealSecretRequest{SwapID: "a", Secret: "b"})
	require.NoError(t, err)
	require.Equal(t, "{\n  \"swapId\": \"a\",\n  \"secret\": \"b\"\n}", got)
}
