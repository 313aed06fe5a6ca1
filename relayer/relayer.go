// Package relayer drives swaps through their lifecycle. It consumes the
// normalized event bus, calls the chain adapters and keeps the registry as
// the single source of truth.
package relayer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/crypto"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/money"
	"github.com/40acres/htlc-bridge/monitor"
	"github.com/40acres/htlc-bridge/oracle"
	"github.com/40acres/htlc-bridge/registry"
	"github.com/lightningnetwork/lnd/lntypes"
	"github.com/shopspring/decimal"
	log "github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
	"golang.org/x/sync/errgroup"
)

const tracerName = "github.com/40acres/htlc-bridge/relayer"

// PriceOracle sizes counter legs.
type PriceOracle interface {
	Convert(ctx context.Context, amount decimal.Decimal, from, to money.Asset) (oracle.Conversion, error)
}

type Relayer struct {
	config   *Config
	store    registry.Store
	adapters chain.Set
	prices   PriceOracle
	secrets  *crypto.Generator
	alerter  Alerter
	now      func() time.Time
	tracer   trace.Tracer

	locks   *keyedMutex
	orphans *orphans
}

type Option func(*Relayer)

func WithAlerter(a Alerter) Option {
	return func(r *Relayer) {
		r.alerter = a
	}
}

func WithClock(now func() time.Time) Option {
	return func(r *Relayer) {
		r.now = now
	}
}

func New(config *Config, store registry.Store, adapters chain.Set, prices PriceOracle, secrets *crypto.Generator, opts ...Option) (*Relayer, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}
	if len(adapters) < 2 {
		return nil, fmt.Errorf("%w: at least two chains are required", ErrInvalidConfig)
	}

	r := &Relayer{
		config:   config,
		store:    store,
		adapters: adapters,
		prices:   prices,
		secrets:  secrets,
		alerter:  LogAlerter{},
		now:      time.Now,
		tracer:   otel.Tracer(tracerName),
		locks:    newKeyedMutex(),
		orphans:  newOrphans(),
	}
	for _, opt := range opts {
		opt(r)
	}

	return r, nil
}

// EventSource is the bus Run consumes. Ack is called once an event was
// handled so its chain position can be persisted.
type EventSource interface {
	Events() <-chan monitor.Event
	Ack(ctx context.Context, ev monitor.Event) error
}

// Run consumes events until the bus is closed or ctx is done. Events
// sharing a hashlock are handled in order by the same worker. Events still
// queued when ctx ends are not acknowledged and come back on restart.
func (r *Relayer) Run(ctx context.Context, source EventSource) error {
	log.Infof("relayer started with %d workers in %s mode", r.config.Workers, r.config.FillMode)

	routes := newRouter(r.store, r.config.Workers)
	queues := make([]chan monitor.Event, r.config.Workers)
	g, ctx := errgroup.WithContext(ctx)
	for i := range queues {
		queue := make(chan monitor.Event, 64)
		queues[i] = queue
		g.Go(func() error {
			for ev := range queue {
				if ctx.Err() != nil {
					continue
				}
				if err := r.HandleEvent(ctx, ev); err != nil && ctx.Err() == nil {
					logEventError(ev, err)
				}
				if ctx.Err() != nil {
					continue
				}
				if err := source.Ack(ctx, ev); err != nil {
					log.WithFields(ev.Fields()).WithError(err).Error("failed to acknowledge event")
				}
			}

			return nil
		})
	}

	g.Go(func() error {
		defer func() {
			for _, q := range queues {
				close(q)
			}
		}()

		events := source.Events()
		for {
			select {
			case ev, ok := <-events:
				if !ok {
					return nil
				}
				select {
				case queues[routes.worker(ctx, ev)] <- ev:
				case <-ctx.Done():
					return nil
				}
			case <-ctx.Done():
				return nil
			}
		}
	})

	err := g.Wait()
	log.Info("relayer stopped")

	return err
}

func logEventError(ev monitor.Event, err error) {
	logger := log.WithFields(ev.Fields()).WithError(err)
	switch {
	case IsValidationError(err):
		logger.Warn("event rejected")
	case errors.Is(err, registry.ErrInvalidSecret), errors.Is(err, registry.ErrConsistency), errors.Is(err, registry.ErrFillExceedsCounter):
		logger.WithField("security", true).Error("consistency violation")
	default:
		logger.Error("failed to handle event")
	}
}

// HandleEvent applies one bus event. It is safe to call concurrently and
// idempotent for re-delivered events.
func (r *Relayer) HandleEvent(ctx context.Context, ev monitor.Event) error {
	ctx, span := r.tracer.Start(ctx, "relayer.HandleEvent", trace.WithAttributes(
		attribute.String("event.kind", string(ev.Kind)),
		attribute.String("event.chain", ev.Chain.String()),
		attribute.Int64("event.sequence", int64(ev.Sequence)), //nolint:gosec // sequences fit in int64
		attribute.String("event.escrow_ref", ev.EscrowRef),
	))
	defer span.End()

	var err error
	switch ev.Kind {
	case monitor.EscrowCreated:
		err = r.onEscrowCreated(ctx, ev)
	case monitor.SecretRevealed:
		err = r.onSecretRevealed(ctx, ev)
	case monitor.EscrowCompleted:
		err = r.onEscrowCompleted(ctx, ev)
	case monitor.EscrowRefunded:
		err = r.onEscrowRefunded(ctx, ev)
	default:
		err = fmt.Errorf("unknown event kind %q", ev.Kind)
	}

	result := "ok"
	if err != nil {
		result = "error"
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	handled.WithLabelValues(string(ev.Kind), result).Inc()

	return err
}

// transition commits a status change and reports it.
func (r *Relayer) transition(ctx context.Context, swap *models.Swap, to models.SwapStatus, mutate registry.Mutation) (*models.Swap, error) {
	next, err := r.store.Transition(ctx, swap.ID, swap.Status, to, mutate)
	if err != nil {
		return nil, fmt.Errorf("failed to move swap %s from %s to %s: %w", swap.ID, swap.Status, to, err)
	}

	transitions.WithLabelValues(swap.Status.String(), to.String()).Inc()
	log.WithFields(swapFields(next)).Infof("swap %s -> %s", swap.Status, to)

	return next, nil
}

func swapFields(swap *models.Swap) log.Fields {
	return log.Fields{
		"swap_id":  swap.ID,
		"hashlock": swap.Hashlock.String(),
		"status":   swap.Status,
	}
}

// orphans buffers destination escrows observed before the source escrow of
// their hashlock.
type orphans struct {
	mu     sync.Mutex
	events map[lntypes.Hash][]monitor.Event
}

const (
	maxOrphans        = 1024
	maxOrphansPerSwap = 16
)

func newOrphans() *orphans {
	return &orphans{events: make(map[lntypes.Hash][]monitor.Event)}
}

func (o *orphans) add(ev monitor.Event) bool {
	o.mu.Lock()
	defer o.mu.Unlock()

	if len(o.events) >= maxOrphans || len(o.events[ev.Hashlock]) >= maxOrphansPerSwap {
		return false
	}
	for _, known := range o.events[ev.Hashlock] {
		if known.Chain == ev.Chain && known.EscrowRef == ev.EscrowRef {
			return true
		}
	}
	o.events[ev.Hashlock] = append(o.events[ev.Hashlock], ev)

	return true
}

func (o *orphans) take(hashlock lntypes.Hash) []monitor.Event {
	o.mu.Lock()
	defer o.mu.Unlock()

	events := o.events[hashlock]
	delete(o.events, hashlock)

	return events
}

// expire drops escrows whose timelock passed without a matching swap.
func (o *orphans) expire(now time.Time) int {
	o.mu.Lock()
	defer o.mu.Unlock()

	dropped := 0
	for hashlock, events := range o.events {
		kept := events[:0]
		for _, ev := range events {
			if ev.Timelock.After(now) {
				kept = append(kept, ev)
			} else {
				dropped++
			}
		}
		if len(kept) == 0 {
			delete(o.events, hashlock)
		} else {
			o.events[hashlock] = kept
		}
	}

	return dropped
}
