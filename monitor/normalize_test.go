package monitor

import (
	"encoding/base64"
	"encoding/json"
	"testing"
	"time"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

func testSecret() lntypes.Preimage {
	var p lntypes.Preimage
	for i := range p {
		p[i] = byte(i + 1)
	}

	return p
}

func native(t *testing.T, c models.Chain, name string, payload any) chain.NativeEvent {
	t.Helper()

	raw, err := json.Marshal(payload)
	require.NoError(t, err)

	return chain.NativeEvent{
		Chain:      c,
		Sequence:   7,
		TxRef:      "tx-7",
		Name:       name,
		Payload:    raw,
		ObservedAt: time.Unix(1_700_000_000, 0),
	}
}

func TestNormalize(t *testing.T) {
	secret := testSecret()
	hashlock := secret.Hash()

	tests := []struct {
		name   string
		event  func(t *testing.T) chain.NativeEvent
		verify func(t *testing.T, events []Event)
		err    error
	}{
		{
			name: "EVM escrow created",
			event: func(t *testing.T) chain.NativeEvent {
				return native(t, models.Ethereum, chain.EVMEscrowCreatedEvent, chain.EVMEscrowCreated{
					ContractID: "0xabc",
					Sender:     "0x1111111111111111111111111111111111111111",
					Receiver:   "0x2222222222222222222222222222222222222222",
					Amount:     "1500000000000000000",
					Hashlock:   "0x" + hashlock.String(),
					Timelock:   1_700_003_600,
					DstChain:   "near",
					DstAddress: "bob.near",
				})
			},
			verify: func(t *testing.T, events []Event) {
				require.Len(t, events, 1)
				ev := events[0]
				require.Equal(t, EscrowCreated, ev.Kind)
				require.Equal(t, models.Ethereum, ev.Chain)
				require.Equal(t, uint64(7), ev.Sequence)
				require.Equal(t, "tx-7", ev.TxRef)
				require.Equal(t, "0xabc", ev.EscrowRef)
				require.Equal(t, hashlock, ev.Hashlock)
				require.True(t, decimal.RequireFromString("1.5").Equal(ev.Amount))
				require.Equal(t, time.Unix(1_700_003_600, 0), ev.Timelock)
				require.Equal(t, models.Near, ev.DestinationChain)
				require.Equal(t, "bob.near", ev.DestinationAddress)
				require.Nil(t, ev.Secret)
			},
		},
		{
			name: "EVM withdrawal reveals then completes",
			event: func(t *testing.T) chain.NativeEvent {
				return native(t, models.Ethereum, chain.EVMWithdrawnEvent, chain.EVMWithdrawn{
					ContractID: "0xabc",
					Preimage:   "0x" + secret.String(),
				})
			},
			verify: func(t *testing.T, events []Event) {
				require.Len(t, events, 2)
				require.Equal(t, SecretRevealed, events[0].Kind)
				require.Equal(t, EscrowCompleted, events[1].Kind)
				for _, ev := range events {
					require.Equal(t, "0xabc", ev.EscrowRef)
					require.Equal(t, hashlock, ev.Hashlock)
					require.NotNil(t, ev.Secret)
					require.Equal(t, secret, *ev.Secret)
				}
			},
		},
		{
			name: "EVM refund",
			event: func(t *testing.T) chain.NativeEvent {
				return native(t, models.Ethereum, chain.EVMRefundedEvent, chain.EVMRefunded{ContractID: "0xabc"})
			},
			verify: func(t *testing.T, events []Event) {
				require.Len(t, events, 1)
				require.Equal(t, EscrowRefunded, events[0].Kind)
				require.Equal(t, "0xabc", events[0].EscrowRef)
			},
		},
		{
			name: "NEAR swap initiated with nanosecond timelock",
			event: func(t *testing.T) chain.NativeEvent {
				return native(t, models.Near, chain.NearSwapInitiatedEvent, chain.NearSwapInitiated{
					SwapID:   "swap-1",
					Sender:   "alice.near",
					Receiver: "relayer.near",
					Amount:   "2000000000000000000000000",
					Hashlock: hashlock.String(),
					Timelock: 1_700_003_600_000_000_000,
					DstChain: "bitcoin",
				})
			},
			verify: func(t *testing.T, events []Event) {
				require.Len(t, events, 1)
				ev := events[0]
				require.Equal(t, EscrowCreated, ev.Kind)
				require.True(t, decimal.NewFromInt(2).Equal(ev.Amount))
				require.Equal(t, time.Unix(1_700_003_600, 0), ev.Timelock)
				require.Equal(t, "alice.near", ev.Sender)
				require.Equal(t, models.Bitcoin, ev.DestinationChain)
			},
		},
		{
			name: "NEAR claim with base64 secret",
			event: func(t *testing.T) chain.NativeEvent {
				return native(t, models.Near, chain.NearSwapClaimedEvent, chain.NearSwapClaimed{
					SwapID:  "swap-1",
					Claimer: "bob.near",
					Secret:  base64.StdEncoding.EncodeToString(secret[:]),
					Amount:  "500000000000000000000000",
				})
			},
			verify: func(t *testing.T, events []Event) {
				require.Len(t, events, 2)
				require.Equal(t, SecretRevealed, events[0].Kind)
				require.Equal(t, hashlock, events[0].Hashlock)
				require.True(t, decimal.RequireFromString("0.5").Equal(events[1].Amount))
			},
		},
		{
			name: "NEAR claim with hex secret",
			event: func(t *testing.T) chain.NativeEvent {
				return native(t, models.Near, chain.NearSwapClaimedEvent, chain.NearSwapClaimed{
					SwapID: "swap-1",
					Secret: secret.String(),
				})
			},
			verify: func(t *testing.T, events []Event) {
				require.Len(t, events, 2)
				require.Equal(t, secret, *events[0].Secret)
			},
		},
		{
			name: "Bitcoin HTLC funded",
			event: func(t *testing.T) chain.NativeEvent {
				return native(t, models.Bitcoin, chain.BitcoinHTLCFundedEvent, chain.BitcoinHTLCFunded{
					Outpoint:      "deadbeef:0",
					PaymentHash:   hashlock.String(),
					RefundAddress: "bcrt1q6z64a43mjgkcq0ul2znwneq3spghrlau9slefp",
					ClaimAddress:  "bcrt1qqypqxpq9qcrsszg2pvxq6rs0zqg3yyc5phstwt",
					ValueSats:     150_000,
					Locktime:      1_700_003_600,
				})
			},
			verify: func(t *testing.T, events []Event) {
				require.Len(t, events, 1)
				ev := events[0]
				require.Equal(t, "deadbeef:0", ev.EscrowRef)
				require.True(t, decimal.RequireFromString("0.0015").Equal(ev.Amount))
				require.Equal(t, models.Chain(""), ev.DestinationChain)
			},
		},
		{
			name: "Bitcoin HTLC refunded",
			event: func(t *testing.T) chain.NativeEvent {
				return native(t, models.Bitcoin, chain.BitcoinHTLCRefundedEvent, chain.BitcoinHTLCRefunded{Outpoint: "deadbeef:0"})
			},
			verify: func(t *testing.T, events []Event) {
				require.Len(t, events, 1)
				require.Equal(t, EscrowRefunded, events[0].Kind)
			},
		},
		{
			name: "Unknown event names are ignored",
			event: func(t *testing.T) chain.NativeEvent {
				return native(t, models.Ethereum, "OwnershipTransferred", map[string]string{"owner": "0x0"})
			},
			verify: func(t *testing.T, events []Event) {
				require.Empty(t, events)
			},
		},
		{
			name: "Short hashlock",
			event: func(t *testing.T) chain.NativeEvent {
				return native(t, models.Ethereum, chain.EVMEscrowCreatedEvent, chain.EVMEscrowCreated{
					ContractID: "0xabc",
					Receiver:   "0x2222222222222222222222222222222222222222",
					Amount:     "1",
					Hashlock:   "0xabcd",
				})
			},
			err: ErrMalformedEvent,
		},
		{
			name: "Invalid JSON",
			event: func(t *testing.T) chain.NativeEvent {
				ev := native(t, models.Near, chain.NearSwapRefundedEvent, nil)
				ev.Payload = []byte("{")

				return ev
			},
			err: ErrMalformedEvent,
		},
		{
			name: "Negative amount",
			event: func(t *testing.T) chain.NativeEvent {
				return native(t, models.Near, chain.NearSwapInitiatedEvent, chain.NearSwapInitiated{
					SwapID:   "swap-1",
					Receiver: "relayer.near",
					Amount:   "-1",
					Hashlock: hashlock.String(),
				})
			},
			err: ErrMalformedEvent,
		},
		{
			name: "Unknown destination chain",
			event: func(t *testing.T) chain.NativeEvent {
				return native(t, models.Bitcoin, chain.BitcoinHTLCFundedEvent, chain.BitcoinHTLCFunded{
					Outpoint:     "deadbeef:0",
					PaymentHash:  hashlock.String(),
					ClaimAddress: "bcrt1qqypqxpq9qcrsszg2pvxq6rs0zqg3yyc5phstwt",
					ValueSats:    1,
					DstChain:     "solana",
				})
			},
			err: ErrMalformedEvent,
		},
		{
			name: "Missing escrow reference",
			event: func(t *testing.T) chain.NativeEvent {
				return native(t, models.Bitcoin, chain.BitcoinHTLCClaimedEvent, chain.BitcoinHTLCClaimed{Preimage: secret.String()})
			},
			err: ErrMalformedEvent,
		},
		{
			name: "Unsupported chain",
			event: func(t *testing.T) chain.NativeEvent {
				return native(t, models.Chain("solana"), "anything", nil)
			},
			err: chain.ErrUnsupportedChain,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			events, err := Normalize(tt.event(t))
			if tt.err != nil {
				require.ErrorIs(t, err, tt.err)

				return
			}
			require.NoError(t, err)
			tt.verify(t, events)
		})
	}
}
