package simulated

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

type clock struct {
	now time.Time
}

func (c *clock) Now() time.Time {
	return c.now
}

func testSecret() lntypes.Preimage {
	var p lntypes.Preimage
	p[0] = 7

	return p
}

func TestLedger_EscrowLifecycle(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	ledger, err := New(models.Near, "relayer.near", WithClock(clk.Now))
	require.NoError(t, err)

	secret := testSecret()
	receipt, err := ledger.CreateEscrow(ctx, chain.EscrowRequest{
		Hashlock:    secret.Hash(),
		Timelock:    clk.now.Add(time.Hour),
		Beneficiary: "bob.near",
		Amount:      decimal.RequireFromString("2.5"),
	})
	require.NoError(t, err)
	require.NotEmpty(t, receipt.EscrowRef)

	_, err = ledger.Withdraw(ctx, receipt.EscrowRef, lntypes.Preimage{})
	require.ErrorIs(t, err, chain.ErrSecretMismatch)

	_, err = ledger.Refund(ctx, receipt.EscrowRef)
	require.ErrorIs(t, err, chain.ErrTimelockNotExpired)

	txRef, err := ledger.Withdraw(ctx, receipt.EscrowRef, secret)
	require.NoError(t, err)
	require.NotEmpty(t, txRef)

	_, err = ledger.Withdraw(ctx, receipt.EscrowRef, secret)
	require.ErrorIs(t, err, chain.ErrAlreadyWithdrawn)

	escrow, err := ledger.GetEscrow(ctx, receipt.EscrowRef)
	require.NoError(t, err)
	require.Equal(t, chain.EscrowWithdrawn, escrow.State)
	require.Equal(t, secret, *escrow.Secret)

	events, err := ledger.EventsSince(ctx, 0, 0)
	require.NoError(t, err)
	require.Len(t, events, 2)
	require.Equal(t, chain.NearSwapInitiatedEvent, events[0].Name)
	require.Equal(t, chain.NearSwapClaimedEvent, events[1].Name)
	require.EqualValues(t, 2, events[1].Sequence)

	var initiated chain.NearSwapInitiated
	require.NoError(t, json.Unmarshal(events[0].Payload, &initiated))
	require.Equal(t, "2500000000000000000000000", initiated.Amount)
	require.Equal(t, uint64(clk.now.Add(time.Hour).UnixNano()), initiated.Timelock)
}

func TestLedger_RefundAfterTimelock(t *testing.T) {
	ctx := context.Background()
	clk := &clock{now: time.Unix(1_700_000_000, 0)}
	ledger, err := New(models.Ethereum, "0x00000000000000000000000000000000000000aa", WithClock(clk.Now), WithLiquidity(decimal.NewFromInt(1)))
	require.NoError(t, err)

	secret := testSecret()
	req := chain.EscrowRequest{
		Hashlock:    secret.Hash(),
		Timelock:    clk.now.Add(time.Minute),
		Beneficiary: "0x00000000000000000000000000000000000000bb",
		Amount:      decimal.NewFromInt(1),
	}
	receipt, err := ledger.CreateEscrow(ctx, req)
	require.NoError(t, err)

	_, err = ledger.CreateEscrow(ctx, req)
	require.ErrorIs(t, err, chain.ErrInsufficientLiquidity)

	clk.now = clk.now.Add(2 * time.Minute)
	_, err = ledger.Refund(ctx, receipt.EscrowRef)
	require.NoError(t, err)

	_, err = ledger.Refund(ctx, receipt.EscrowRef)
	require.ErrorIs(t, err, chain.ErrAlreadyRefunded)
}

func TestLedger_FailNext(t *testing.T) {
	ctx := context.Background()
	ledger, err := New(models.Bitcoin, "bcrt1qqypqxpq9qcrsszg2pvxq6rs0zqg3yyc5phstwt")
	require.NoError(t, err)

	boom := chain.Transient(errors.New("rpc timeout"))
	ledger.FailNext(boom)

	secret := testSecret()
	req := chain.EscrowRequest{
		Hashlock:    secret.Hash(),
		Timelock:    time.Now().Add(time.Hour),
		Beneficiary: "bcrt1q6z64a43mjgkcq0ul2znwneq3spghrlau9slefp",
		Amount:      decimal.RequireFromString("0.1"),
	}
	_, err = ledger.CreateEscrow(ctx, req)
	require.ErrorIs(t, err, boom)

	receipt, err := ledger.CreateEscrow(ctx, req)
	require.NoError(t, err)
	require.Contains(t, receipt.EscrowRef, ":0")
}

func TestLedger_WatchDisconnectAndDrops(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	ledger, err := New(models.Ethereum, "0x00000000000000000000000000000000000000aa")
	require.NoError(t, err)

	lock := func() {
		_, err := ledger.Lock("0x00000000000000000000000000000000000000cc", "0x00000000000000000000000000000000000000aa",
			lntypes.Hash{byte(time.Now().UnixNano())}, time.Now().Add(time.Hour), decimal.NewFromInt(1), models.Near, "bob.near")
		require.NoError(t, err)
	}

	sink := make(chan chain.NativeEvent, 10)
	done := make(chan error, 1)
	go func() {
		done <- ledger.Watch(ctx, 0, sink)
	}()

	ledger.DropNextLive(1)
	lock()
	lock()

	ev := <-sink
	require.EqualValues(t, 2, ev.Sequence)

	ledger.Disconnect()
	err = <-done
	require.True(t, chain.IsTransient(err))
	require.ErrorIs(t, err, chain.ErrDisconnected)

	missed, err := ledger.EventsSince(ctx, 0, 1)
	require.NoError(t, err)
	require.Len(t, missed, 1)
	require.EqualValues(t, 1, missed[0].Sequence)
}
