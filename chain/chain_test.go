package chain

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/money"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"
)

func TestValidateAddress(t *testing.T) {
	tests := []struct {
		name    string
		chain   models.Chain
		network Network
		address string
		wantErr bool
	}{
		{name: "evm lowercase", chain: models.Ethereum, address: "0x52908400098527886e0f7030069857d2e4169ee7"},
		{name: "evm checksummed", chain: models.Ethereum, address: "0x52908400098527886E0F7030069857D2E4169EE7"},
		{name: "evm mixed case checksum", chain: models.Ethereum, address: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAed"},
		{name: "evm bad checksum", chain: models.Ethereum, address: "0x5aAeb6053F3E94C9b9A09f33669435E7Ef1BeAeD", wantErr: true},
		{name: "evm missing prefix", chain: models.Ethereum, address: "52908400098527886e0f7030069857d2e4169ee7", wantErr: true},
		{name: "evm too short", chain: models.Ethereum, address: "0x1234", wantErr: true},
		{name: "near named account", chain: models.Near, address: "alice.testnet"},
		{name: "near sub account", chain: models.Near, address: "htlc_bridge.alice-1.near"},
		{name: "near implicit account", chain: models.Near, address: "98793cd91a3f870fb126f66285808c7e094afcfc4eda8a970f6648cdf0dbd6de"},
		{name: "near uppercase", chain: models.Near, address: "Alice.near", wantErr: true},
		{name: "near too short", chain: models.Near, address: "a", wantErr: true},
		{name: "near double dot", chain: models.Near, address: "alice..near", wantErr: true},
		{name: "bitcoin mainnet", chain: models.Bitcoin, network: Mainnet, address: "bc1qar0srrr7xfkvy5l643lydnw9re59gtzzwf5mdq"},
		{name: "bitcoin regtest", chain: models.Bitcoin, network: Regtest, address: "bcrt1q6z64a43mjgkcq0ul2znwneq3spghrlau9slefp"},
		{name: "bitcoin wrong network", chain: models.Bitcoin, network: Mainnet, address: "bcrt1q6z64a43mjgkcq0ul2znwneq3spghrlau9slefp", wantErr: true},
		{name: "bitcoin garbage", chain: models.Bitcoin, network: Mainnet, address: "not-an-address", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateAddress(tt.chain, tt.network, tt.address)
			if tt.wantErr {
				require.ErrorIs(t, err, ErrInvalidAddress)

				return
			}
			require.NoError(t, err)
		})
	}
}

func TestValidateAddress_UnknownChain(t *testing.T) {
	err := ValidateAddress(models.Chain("solana"), Mainnet, "x")
	require.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestTransient(t *testing.T) {
	base := errors.New("connection reset")

	require.Nil(t, Transient(nil))
	require.True(t, IsTransient(Transient(base)))
	require.True(t, IsTransient(fmt.Errorf("wrapped: %w", Transient(base))))
	require.ErrorIs(t, Transient(base), base)
	require.True(t, IsTransient(context.DeadlineExceeded))
	require.False(t, IsTransient(base))
	require.False(t, IsTransient(ErrSecretMismatch))
}

func TestSet(t *testing.T) {
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	near := NewMockAdapter(ctrl)
	near.EXPECT().Chain().Return(models.Near).AnyTimes()

	set := NewSet(near)
	got, err := set.Get(models.Near)
	require.NoError(t, err)
	require.Equal(t, near, got)

	_, err = set.Get(models.Bitcoin)
	require.ErrorIs(t, err, ErrUnsupportedChain)
}

func TestAssetOf(t *testing.T) {
	asset, err := AssetOf(models.Near)
	require.NoError(t, err)
	require.Equal(t, money.NEAR, asset)

	_, err = AssetOf(models.Chain("doge"))
	require.ErrorIs(t, err, ErrUnsupportedChain)
}
