package daemon

import (
	"context"
	"net"
	"testing"
	"time"

	"github.com/40acres/htlc-bridge/chain/simulated"
	"github.com/40acres/htlc-bridge/crypto"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/money"
	"github.com/40acres/htlc-bridge/registry"
	"github.com/40acres/htlc-bridge/rpc"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

const (
	ethRelayer = "0x3333333333333333333333333333333333333333"
	alice      = "0x1111111111111111111111111111111111111111"
	bob        = "bob.near"
)

func testConfig() *Config {
	config := DefaultConfig()
	config.GRPCPort = 0
	config.Chains = []ChainConfig{
		{Chain: models.Ethereum, Adapter: AdapterSimulated, RelayerAddress: ethRelayer},
		{Chain: models.Near, Adapter: AdapterSimulated, RelayerAddress: "relayer.near"},
	}
	config.Oracle.Fallback = map[string]string{"ETH": "3000", "NEAR": "5"}
	config.Relayer.InitialBackoff = Duration(time.Millisecond)
	config.Relayer.MaxBackoff = Duration(2 * time.Millisecond)

	return config
}

func TestNew(t *testing.T) {
	d, err := New(testConfig(), registry.NewInmemRegistry())
	require.NoError(t, err)
	require.Len(t, d.Adapters(), 2)
	require.NotNil(t, d.Relayer())
	require.Nil(t, d.metrics)

	config := testConfig()
	config.MetricsPort = 9464
	d, err = New(config, registry.NewInmemRegistry())
	require.NoError(t, err)
	require.Equal(t, ":9464", d.metrics.Addr)

	config = testConfig()
	config.Chains = config.Chains[:1]
	_, err = New(config, registry.NewInmemRegistry())
	require.ErrorIs(t, err, ErrInvalidConfig)
}

func TestBuildOracle(t *testing.T) {
	config := testConfig()
	config.Feeds = []FeedConfig{
		{Name: "primary", Kind: FeedHTTP, URL: "http://127.0.0.1:1"},
		{Kind: FeedCoinGecko, URL: "http://127.0.0.1:1"},
	}
	config.Oracle.MaxRetries = 0

	prices, err := buildOracle(config)
	require.NoError(t, err)

	// Both feeds are unreachable, the fallback table answers.
	rate, err := prices.GetRate(context.Background(), money.ETH, money.NEAR)
	require.NoError(t, err)
	require.True(t, rate.IsFallback())
	require.Equal(t, "600", rate.Rate.String())
}

func TestDaemon_Run(t *testing.T) {
	d, err := New(testConfig(), registry.NewInmemRegistry())
	require.NoError(t, err)
	addr, err := d.Listen()
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan error, 1)
	go func() { done <- d.Run(ctx) }()

	client, closeConn, err := rpc.NewRPCClient("127.0.0.1", uint32(addr.(*net.TCPAddr).Port))
	require.NoError(t, err)
	defer func() { require.NoError(t, closeConn()) }()

	resp, err := client.SubmitSwap(ctx, &rpc.SubmitSwapRequest{
		SourceChain:        "ethereum",
		DestinationChain:   "near",
		Amount:             "1",
		BeneficiaryAddress: bob,
		InitiatorAddress:   alice,
	})
	require.NoError(t, err)
	require.Equal(t, "598.2", resp.Quote.CounterAmount)

	hashlock, err := crypto.ParseHashlock(resp.Hashlock)
	require.NoError(t, err)
	eth, ok := d.Adapters()[models.Ethereum].(*simulated.Ledger)
	require.True(t, ok)
	_, err = eth.Lock(alice, ethRelayer, hashlock, resp.Timelock, decimal.NewFromInt(1), "", "")
	require.NoError(t, err)

	require.Eventually(t, func() bool {
		status, err := client.GetSwapStatus(ctx, &rpc.GetSwapStatusRequest{SwapID: resp.SwapID})

		return err == nil && status.Status == models.StatusCompleted.String()
	}, 10*time.Second, 20*time.Millisecond)

	status, err := client.GetSwapStatus(ctx, &rpc.GetSwapStatusRequest{SwapID: resp.SwapID})
	require.NoError(t, err)
	require.True(t, status.SecretRevealed)
	require.Equal(t, "598.2", status.FilledAmount)

	cancel()
	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(10 * time.Second):
		t.Fatal("daemon did not stop")
	}
}
