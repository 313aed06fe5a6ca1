// Package simulated is an in-memory escrow ledger speaking the native event
// format of each chain. It backs the daemon in "simulated" mode and the
// end-to-end tests.
package simulated

import (
	"context"
	"encoding/base64"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/crypto"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/money"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
)

type Ledger struct {
	chain          models.Chain
	asset          money.Asset
	relayerAddress string
	now            func() time.Time

	mu           sync.Mutex
	escrows      map[string]*chain.Escrow
	events       []chain.NativeEvent
	changed      chan struct{}
	disconnect   chan struct{}
	liquidity    *decimal.Decimal
	failures     []error
	dropNextLive int
	counter      int
}

var _ chain.Adapter = (*Ledger)(nil)

type Option func(*Ledger)

func WithClock(now func() time.Time) Option {
	return func(l *Ledger) {
		l.now = now
	}
}

// WithLiquidity bounds the total the relayer can lock.
func WithLiquidity(amount decimal.Decimal) Option {
	return func(l *Ledger) {
		l.liquidity = &amount
	}
}

func New(c models.Chain, relayerAddress string, opts ...Option) (*Ledger, error) {
	asset, err := chain.AssetOf(c)
	if err != nil {
		return nil, err
	}

	l := &Ledger{
		chain:          c,
		asset:          asset,
		relayerAddress: relayerAddress,
		now:            time.Now,
		escrows:        make(map[string]*chain.Escrow),
		changed:        make(chan struct{}),
		disconnect:     make(chan struct{}),
	}
	for _, opt := range opts {
		opt(l)
	}

	return l, nil
}

func (l *Ledger) Chain() models.Chain {
	return l.chain
}

// Lock creates an escrow on behalf of a user. dstChain and dstAddress are
// the routing hints a source escrow carries.
func (l *Ledger) Lock(sender, beneficiary string, hashlock lntypes.Hash, timelock time.Time, amount decimal.Decimal, dstChain models.Chain, dstAddress string) (chain.EscrowReceipt, error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	return l.lock(sender, beneficiary, hashlock, timelock, amount, dstChain, dstAddress)
}

func (l *Ledger) CreateEscrow(ctx context.Context, req chain.EscrowRequest) (chain.EscrowReceipt, error) {
	if err := ctx.Err(); err != nil {
		return chain.EscrowReceipt{}, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.popFailure(); err != nil {
		return chain.EscrowReceipt{}, err
	}
	if l.liquidity != nil {
		if l.liquidity.LessThan(req.Amount) {
			return chain.EscrowReceipt{}, fmt.Errorf("%w: have %s %s, need %s", chain.ErrInsufficientLiquidity, l.liquidity, l.asset, req.Amount)
		}
		remaining := l.liquidity.Sub(req.Amount)
		l.liquidity = &remaining
	}

	return l.lock(l.relayerAddress, req.Beneficiary, req.Hashlock, req.Timelock, req.Amount, "", "")
}

func (l *Ledger) Withdraw(ctx context.Context, escrowRef string, secret lntypes.Preimage) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.popFailure(); err != nil {
		return "", err
	}

	escrow, err := l.active(escrowRef)
	if err != nil {
		return "", err
	}
	if !secret.Matches(escrow.Hashlock) {
		return "", chain.ErrSecretMismatch
	}

	escrow.State = chain.EscrowWithdrawn
	escrow.Secret = &secret
	txRef := l.txRef()

	switch l.chain {
	case models.Ethereum:
		l.emit(chain.EVMWithdrawnEvent, txRef, chain.EVMWithdrawn{ContractID: escrowRef, Preimage: "0x" + secret.String()})
	case models.Near:
		l.emit(chain.NearSwapClaimedEvent, txRef, chain.NearSwapClaimed{
			SwapID:  escrowRef,
			Claimer: escrow.Beneficiary,
			Secret:  base64.StdEncoding.EncodeToString(secret[:]),
			Amount:  l.base(escrow.Amount),
		})
	case models.Bitcoin:
		l.emit(chain.BitcoinHTLCClaimedEvent, txRef, chain.BitcoinHTLCClaimed{Outpoint: escrowRef, Preimage: secret.String(), SpendTxID: txRef})
	}

	return txRef, nil
}

func (l *Ledger) Refund(ctx context.Context, escrowRef string) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	if err := l.popFailure(); err != nil {
		return "", err
	}

	escrow, err := l.active(escrowRef)
	if err != nil {
		return "", err
	}
	if l.now().Before(escrow.Timelock) {
		return "", chain.ErrTimelockNotExpired
	}

	escrow.State = chain.EscrowRefunded
	if escrow.Sender == l.relayerAddress && l.liquidity != nil {
		restored := l.liquidity.Add(escrow.Amount)
		l.liquidity = &restored
	}
	txRef := l.txRef()

	switch l.chain {
	case models.Ethereum:
		l.emit(chain.EVMRefundedEvent, txRef, chain.EVMRefunded{ContractID: escrowRef})
	case models.Near:
		l.emit(chain.NearSwapRefundedEvent, txRef, chain.NearSwapRefunded{SwapID: escrowRef, Refunder: escrow.Sender, Amount: l.base(escrow.Amount)})
	case models.Bitcoin:
		l.emit(chain.BitcoinHTLCRefundedEvent, txRef, chain.BitcoinHTLCRefunded{Outpoint: escrowRef, SpendTxID: txRef})
	}

	return txRef, nil
}

func (l *Ledger) GetEscrow(ctx context.Context, escrowRef string) (*chain.Escrow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	escrow, ok := l.escrows[escrowRef]
	if !ok {
		return nil, chain.ErrEscrowNotFound
	}
	c := *escrow

	return &c, nil
}

func (l *Ledger) EventsSince(ctx context.Context, after uint64, limit int) ([]chain.NativeEvent, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.since(after, limit), nil
}

func (l *Ledger) Watch(ctx context.Context, after uint64, sink chan<- chain.NativeEvent) error {
	for {
		l.mu.Lock()
		pending := l.since(after, 0)
		changed := l.changed
		disconnect := l.disconnect
		l.mu.Unlock()

		for _, ev := range pending {
			after = ev.Sequence
			if l.dropLive() {
				log.WithField("chain", l.chain).Debugf("dropping live event %d", ev.Sequence)

				continue
			}
			select {
			case sink <- ev:
			case <-ctx.Done():
				return ctx.Err()
			case <-disconnect:
				return chain.Transient(chain.ErrDisconnected)
			}
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return ctx.Err()
		case <-disconnect:
			return chain.Transient(chain.ErrDisconnected)
		}
	}
}

// Disconnect breaks every active Watch stream.
func (l *Ledger) Disconnect() {
	l.mu.Lock()
	defer l.mu.Unlock()

	close(l.disconnect)
	l.disconnect = make(chan struct{})
}

// DropNextLive makes Watch silently skip the next n events, as a flaky
// websocket would. They remain available through EventsSince.
func (l *Ledger) DropNextLive(n int) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.dropNextLive += n
}

// FailNext makes the next outbound calls return the given errors in order.
func (l *Ledger) FailNext(errs ...error) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.failures = append(l.failures, errs...)
}

func (l *Ledger) SetLiquidity(amount decimal.Decimal) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.liquidity = &amount
}

// Escrows returns every escrow locked under hashlock.
func (l *Ledger) Escrows(hashlock lntypes.Hash) []chain.Escrow {
	l.mu.Lock()
	defer l.mu.Unlock()

	var out []chain.Escrow
	for _, e := range l.escrows {
		if e.Hashlock == hashlock {
			out = append(out, *e)
		}
	}

	return out
}

func (l *Ledger) dropLive() bool {
	l.mu.Lock()
	defer l.mu.Unlock()

	if l.dropNextLive == 0 {
		return false
	}
	l.dropNextLive--

	return true
}

func (l *Ledger) popFailure() error {
	if len(l.failures) == 0 {
		return nil
	}
	err := l.failures[0]
	l.failures = l.failures[1:]

	return err
}

func (l *Ledger) active(escrowRef string) (*chain.Escrow, error) {
	escrow, ok := l.escrows[escrowRef]
	if !ok {
		return nil, chain.ErrEscrowNotFound
	}
	switch escrow.State {
	case chain.EscrowWithdrawn:
		return nil, chain.ErrAlreadyWithdrawn
	case chain.EscrowRefunded:
		return nil, chain.ErrAlreadyRefunded
	}

	return escrow, nil
}

func (l *Ledger) lock(sender, beneficiary string, hashlock lntypes.Hash, timelock time.Time, amount decimal.Decimal, dstChain models.Chain, dstAddress string) (chain.EscrowReceipt, error) {
	if !amount.IsPositive() {
		return chain.EscrowReceipt{}, fmt.Errorf("escrow amount must be positive, got %s", amount)
	}
	if !timelock.After(l.now()) {
		return chain.EscrowReceipt{}, fmt.Errorf("timelock %s is not in the future", timelock)
	}

	l.counter++
	seed := fmt.Sprintf("%s-%s-%s-%s-%d", l.chain, sender, beneficiary, hashlock, l.counter)
	txRef := l.txRef()

	var ref string
	switch l.chain {
	case models.Ethereum:
		ref = "0x" + crypto.HashOf([]byte(seed))
	case models.Bitcoin:
		ref = txRef + ":0"
	default:
		ref = crypto.HashOf([]byte(seed))
	}

	amount = l.asset.Round(amount)
	l.escrows[ref] = &chain.Escrow{
		Ref:         ref,
		Hashlock:    hashlock,
		Sender:      sender,
		Beneficiary: beneficiary,
		Amount:      amount,
		Timelock:    timelock,
		State:       chain.EscrowActive,
	}

	switch l.chain {
	case models.Ethereum:
		l.emit(chain.EVMEscrowCreatedEvent, txRef, chain.EVMEscrowCreated{
			ContractID: ref,
			Sender:     sender,
			Receiver:   beneficiary,
			Amount:     l.base(amount),
			Hashlock:   "0x" + hashlock.String(),
			Timelock:   timelock.Unix(),
			DstChain:   dstChain.String(),
			DstAddress: dstAddress,
		})
	case models.Near:
		l.emit(chain.NearSwapInitiatedEvent, txRef, chain.NearSwapInitiated{
			SwapID:     ref,
			Sender:     sender,
			Receiver:   beneficiary,
			Amount:     l.base(amount),
			Hashlock:   hashlock.String(),
			Timelock:   uint64(timelock.UnixNano()), //nolint:gosec // timelocks are in the future
			DstChain:   dstChain.String(),
			DstAddress: dstAddress,
		})
	case models.Bitcoin:
		l.emit(chain.BitcoinHTLCFundedEvent, txRef, chain.BitcoinHTLCFunded{
			Outpoint:      ref,
			PaymentHash:   hashlock.String(),
			RefundAddress: sender,
			ClaimAddress:  beneficiary,
			ValueSats:     amount.Shift(l.asset.Decimals).IntPart(),
			Locktime:      timelock.Unix(),
			DstChain:      dstChain.String(),
			DstAddress:    dstAddress,
		})
	}

	return chain.EscrowReceipt{EscrowRef: ref, TxRef: txRef}, nil
}

func (l *Ledger) base(amount decimal.Decimal) string {
	base, err := l.asset.ToBaseUnits(amount)
	if err != nil {
		return "0"
	}

	return base.String()
}

func (l *Ledger) txRef() string {
	l.counter++

	return crypto.HashOf([]byte(fmt.Sprintf("%s-tx-%d", l.chain, l.counter)))
}

func (l *Ledger) emit(name, txRef string, payload any) {
	raw, err := json.Marshal(payload)
	if err != nil {
		log.WithError(err).Errorf("could not encode %s payload", name)

		return
	}

	l.events = append(l.events, chain.NativeEvent{
		Chain:      l.chain,
		Sequence:   uint64(len(l.events) + 1),
		TxRef:      txRef,
		Name:       name,
		Payload:    raw,
		ObservedAt: l.now(),
	})
	close(l.changed)
	l.changed = make(chan struct{})
}

func (l *Ledger) since(after uint64, limit int) []chain.NativeEvent {
	if after >= uint64(len(l.events)) {
		return nil
	}
	out := l.events[after:]
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}

	return append([]chain.NativeEvent(nil), out...)
}

// RawEvent injects an arbitrary native event, used to feed malformed or
// foreign payloads to consumers.
func (l *Ledger) RawEvent(name string, payload []byte) {
	l.mu.Lock()
	defer l.mu.Unlock()

	l.events = append(l.events, chain.NativeEvent{
		Chain:      l.chain,
		Sequence:   uint64(len(l.events) + 1),
		TxRef:      hex.EncodeToString(payload[:min(len(payload), 8)]),
		Name:       name,
		Payload:    payload,
		ObservedAt: l.now(),
	})
	close(l.changed)
	l.changed = make(chan struct{})
}
