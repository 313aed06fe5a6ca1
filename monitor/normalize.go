package monitor

import (
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/crypto"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/money"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/shopspring/decimal"
)

var ErrMalformedEvent = errors.New("malformed native event")

// Normalizer turns one native event into zero or more events. Event names it
// does not know are ignored.
type Normalizer func(chain.NativeEvent) ([]Event, error)

var normalizers = map[models.Chain]Normalizer{
	models.Ethereum: normalizeEVM,
	models.Near:     normalizeNear,
	models.Bitcoin:  normalizeBitcoin,
}

func Normalize(native chain.NativeEvent) ([]Event, error) {
	normalize, ok := normalizers[native.Chain]
	if !ok {
		return nil, fmt.Errorf("%w: %s", chain.ErrUnsupportedChain, native.Chain)
	}

	events, err := normalize(native)
	if err != nil {
		return nil, fmt.Errorf("%w: %s #%d %s: %w", ErrMalformedEvent, native.Chain, native.Sequence, native.Name, err)
	}

	return events, nil
}

func base(native chain.NativeEvent, kind Kind, escrowRef string) Event {
	return Event{
		Kind:       kind,
		Chain:      native.Chain,
		Sequence:   native.Sequence,
		TxRef:      native.TxRef,
		EscrowRef:  escrowRef,
		ObservedAt: native.ObservedAt,
	}
}

// revealed expands a withdrawal into the reveal and the completion of the
// escrow it settled.
func revealed(native chain.NativeEvent, escrowRef string, secret lntypes.Preimage, amount decimal.Decimal) []Event {
	reveal := base(native, SecretRevealed, escrowRef)
	reveal.Secret = &secret
	reveal.Hashlock = secret.Hash()
	reveal.Amount = amount

	completed := reveal
	completed.Kind = EscrowCompleted

	return []Event{reveal, completed}
}

func decode(native chain.NativeEvent, out any) error {
	if err := json.Unmarshal(native.Payload, out); err != nil {
		return fmt.Errorf("failed to decode payload: %w", err)
	}

	return nil
}

func fromBase(asset money.Asset, value string) (decimal.Decimal, error) {
	if value == "" {
		return decimal.Zero, nil
	}
	amount, err := decimal.NewFromString(value)
	if err != nil {
		return decimal.Zero, fmt.Errorf("invalid amount %q: %w", value, err)
	}
	if amount.IsNegative() {
		return decimal.Zero, money.ErrNegativeAmount
	}

	return asset.FromBaseUnits(amount), nil
}

func destination(value string) (models.Chain, error) {
	if value == "" {
		return "", nil
	}
	c := models.Chain(value)
	if !c.IsValid() {
		return "", fmt.Errorf("%w: %s", chain.ErrUnsupportedChain, value)
	}

	return c, nil
}

func required(fields map[string]string) error {
	for name, value := range fields {
		if value == "" {
			return fmt.Errorf("missing %s", name)
		}
	}

	return nil
}

func normalizeEVM(native chain.NativeEvent) ([]Event, error) {
	switch native.Name {
	case chain.EVMEscrowCreatedEvent:
		var p chain.EVMEscrowCreated
		if err := decode(native, &p); err != nil {
			return nil, err
		}
		if err := required(map[string]string{"contractId": p.ContractID, "receiver": p.Receiver}); err != nil {
			return nil, err
		}
		hashlock, err := crypto.ParseHashlock(p.Hashlock)
		if err != nil {
			return nil, err
		}
		amount, err := fromBase(money.ETH, p.Amount)
		if err != nil {
			return nil, err
		}
		dst, err := destination(p.DstChain)
		if err != nil {
			return nil, err
		}

		ev := base(native, EscrowCreated, p.ContractID)
		ev.Hashlock = hashlock
		ev.Amount = amount
		ev.Timelock = time.Unix(p.Timelock, 0)
		ev.Sender = p.Sender
		ev.Receiver = p.Receiver
		ev.DestinationChain = dst
		ev.DestinationAddress = p.DstAddress

		return []Event{ev}, nil

	case chain.EVMWithdrawnEvent:
		var p chain.EVMWithdrawn
		if err := decode(native, &p); err != nil {
			return nil, err
		}
		if err := required(map[string]string{"contractId": p.ContractID}); err != nil {
			return nil, err
		}
		secret, err := crypto.ParseSecret(p.Preimage)
		if err != nil {
			return nil, err
		}

		return revealed(native, p.ContractID, secret, decimal.Zero), nil

	case chain.EVMRefundedEvent:
		var p chain.EVMRefunded
		if err := decode(native, &p); err != nil {
			return nil, err
		}
		if err := required(map[string]string{"contractId": p.ContractID}); err != nil {
			return nil, err
		}

		return []Event{base(native, EscrowRefunded, p.ContractID)}, nil
	}

	return nil, nil
}

// nearSecret accepts the base64 encoding the contract logs, and hex.
func nearSecret(value string) (lntypes.Preimage, error) {
	raw, err := base64.StdEncoding.DecodeString(value)
	if err == nil && len(raw) == lntypes.PreimageSize {
		return lntypes.MakePreimage(raw)
	}

	return crypto.ParseSecret(value)
}

func normalizeNear(native chain.NativeEvent) ([]Event, error) {
	switch native.Name {
	case chain.NearSwapInitiatedEvent:
		var p chain.NearSwapInitiated
		if err := decode(native, &p); err != nil {
			return nil, err
		}
		if err := required(map[string]string{"swap_id": p.SwapID, "receiver": p.Receiver}); err != nil {
			return nil, err
		}
		hashlock, err := crypto.ParseHashlock(p.Hashlock)
		if err != nil {
			return nil, err
		}
		amount, err := fromBase(money.NEAR, p.Amount)
		if err != nil {
			return nil, err
		}
		dst, err := destination(p.DstChain)
		if err != nil {
			return nil, err
		}

		ev := base(native, EscrowCreated, p.SwapID)
		ev.Hashlock = hashlock
		ev.Amount = amount
		// NEAR block timestamps are nanoseconds
		ev.Timelock = time.Unix(0, int64(p.Timelock)) //nolint:gosec // nanosecond timestamps fit until 2262
		ev.Sender = p.Sender
		ev.Receiver = p.Receiver
		ev.DestinationChain = dst
		ev.DestinationAddress = p.DstAddress

		return []Event{ev}, nil

	case chain.NearSwapClaimedEvent:
		var p chain.NearSwapClaimed
		if err := decode(native, &p); err != nil {
			return nil, err
		}
		if err := required(map[string]string{"swap_id": p.SwapID}); err != nil {
			return nil, err
		}
		secret, err := nearSecret(p.Secret)
		if err != nil {
			return nil, err
		}
		amount, err := fromBase(money.NEAR, p.Amount)
		if err != nil {
			return nil, err
		}

		return revealed(native, p.SwapID, secret, amount), nil

	case chain.NearSwapRefundedEvent:
		var p chain.NearSwapRefunded
		if err := decode(native, &p); err != nil {
			return nil, err
		}
		if err := required(map[string]string{"swap_id": p.SwapID}); err != nil {
			return nil, err
		}
		amount, err := fromBase(money.NEAR, p.Amount)
		if err != nil {
			return nil, err
		}

		ev := base(native, EscrowRefunded, p.SwapID)
		ev.Amount = amount
		ev.Sender = p.Refunder

		return []Event{ev}, nil
	}

	return nil, nil
}

func normalizeBitcoin(native chain.NativeEvent) ([]Event, error) {
	switch native.Name {
	case chain.BitcoinHTLCFundedEvent:
		var p chain.BitcoinHTLCFunded
		if err := decode(native, &p); err != nil {
			return nil, err
		}
		if err := required(map[string]string{"outpoint": p.Outpoint, "claim_address": p.ClaimAddress}); err != nil {
			return nil, err
		}
		if p.ValueSats < 0 {
			return nil, money.ErrNegativeAmount
		}
		hashlock, err := crypto.ParseHashlock(p.PaymentHash)
		if err != nil {
			return nil, err
		}
		dst, err := destination(p.DstChain)
		if err != nil {
			return nil, err
		}

		ev := base(native, EscrowCreated, p.Outpoint)
		ev.Hashlock = hashlock
		ev.Amount = money.BTC.FromBaseUnits(decimal.NewFromInt(p.ValueSats))
		ev.Timelock = time.Unix(p.Locktime, 0)
		ev.Sender = p.RefundAddress
		ev.Receiver = p.ClaimAddress
		ev.DestinationChain = dst
		ev.DestinationAddress = p.DstAddress

		return []Event{ev}, nil

	case chain.BitcoinHTLCClaimedEvent:
		var p chain.BitcoinHTLCClaimed
		if err := decode(native, &p); err != nil {
			return nil, err
		}
		if err := required(map[string]string{"outpoint": p.Outpoint}); err != nil {
			return nil, err
		}
		secret, err := crypto.ParseSecret(p.Preimage)
		if err != nil {
			return nil, err
		}

		return revealed(native, p.Outpoint, secret, decimal.Zero), nil

	case chain.BitcoinHTLCRefundedEvent:
		var p chain.BitcoinHTLCRefunded
		if err := decode(native, &p); err != nil {
			return nil, err
		}
		if err := required(map[string]string{"outpoint": p.Outpoint}); err != nil {
			return nil, err
		}

		return []Event{base(native, EscrowRefunded, p.Outpoint)}, nil
	}

	return nil, nil
}
