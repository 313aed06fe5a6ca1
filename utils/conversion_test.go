package utils

import (
	"math"
	"testing"

	"github.com/stretchr/testify/require"
)

func TestSafeUint64ToInt64(t *testing.T) {
	got, err := SafeUint64ToInt64(42)
	require.NoError(t, err)
	require.EqualValues(t, 42, got)

	_, err = SafeUint64ToInt64(math.MaxUint64)
	require.Error(t, err)
}

func TestSafeInt64ToUint64(t *testing.T) {
	got, err := SafeInt64ToUint64(42)
	require.NoError(t, err)
	require.EqualValues(t, 42, got)

	_, err = SafeInt64ToUint64(-1)
	require.Error(t, err)
}

func TestSafeInt64ToUint32(t *testing.T) {
	tests := []struct {
		name    string
		value   int64
		wantErr bool
	}{
		{name: "zero", value: 0},
		{name: "port", value: 50051},
		{name: "negative", value: -1, wantErr: true},
		{name: "too large", value: math.MaxUint32 + 1, wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := SafeInt64ToUint32(tt.value)
			if tt.wantErr {
				require.Error(t, err)

				return
			}
			require.NoError(t, err)
			require.EqualValues(t, tt.value, got)
		})
	}
}
