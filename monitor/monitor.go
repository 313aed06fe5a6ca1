package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/database/models"
	"github.com/40acres/htlc-bridge/registry"
	"github.com/cenkalti/backoff/v4"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPageSize       = 100
	DefaultBufferSize     = 256
	DefaultInitialBackoff = 500 * time.Millisecond
	DefaultMaxBackoff     = 30 * time.Second
)

type Config struct {
	// Events fetched per EventsSince call while backfilling
	PageSize int
	// Capacity of the bus and of each live sink
	BufferSize     int
	InitialBackoff time.Duration
	MaxBackoff     time.Duration
}

func DefaultConfig() Config {
	return Config{
		PageSize:       DefaultPageSize,
		BufferSize:     DefaultBufferSize,
		InitialBackoff: DefaultInitialBackoff,
		MaxBackoff:     DefaultMaxBackoff,
	}
}

// Monitor follows every adapter from its persisted cursor and publishes
// normalized events on a single bus. Events of one chain reach the bus in
// sequence order, each exactly once per process lifetime. The persisted
// cursor only covers acknowledged events, so anything still queued when the
// process dies is delivered again on the next start.
type Monitor struct {
	adapters []chain.Adapter
	cursors  registry.CursorStore
	config   Config
	events   chan Event

	mu    sync.Mutex
	marks map[models.Chain]*watermark
}

func New(adapters chain.Set, cursors registry.CursorStore, config Config) *Monitor {
	if config.PageSize <= 0 {
		config.PageSize = DefaultPageSize
	}
	if config.BufferSize <= 0 {
		config.BufferSize = DefaultBufferSize
	}
	if config.InitialBackoff <= 0 {
		config.InitialBackoff = DefaultInitialBackoff
	}
	if config.MaxBackoff < config.InitialBackoff {
		config.MaxBackoff = config.InitialBackoff
	}

	m := &Monitor{
		cursors: cursors,
		config:  config,
		events:  make(chan Event, config.BufferSize),
		marks:   make(map[models.Chain]*watermark),
	}
	for _, a := range adapters {
		m.adapters = append(m.adapters, a)
	}

	return m
}

// Events is closed once Run returns.
func (m *Monitor) Events() <-chan Event {
	return m.events
}

// Ack marks ev as handled. Once every event up to a sequence of its chain is
// acknowledged the cursor of that chain is persisted.
func (m *Monitor) Ack(ctx context.Context, ev Event) error {
	mark := m.mark(ev.Chain)
	if mark == nil {
		return nil
	}
	cursor, moved := mark.ack(ev.Sequence)
	if !moved {
		return nil
	}

	return m.commit(ctx, ev.Chain, cursor)
}

func (m *Monitor) mark(c models.Chain) *watermark {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.marks[c]
}

func (m *Monitor) commit(ctx context.Context, c models.Chain, cursor uint64) error {
	if err := m.cursors.SaveCursor(ctx, c, cursor); err != nil {
		return fmt.Errorf("could not persist %s cursor %d: %w", c, cursor, err)
	}

	return nil
}

// Run blocks until ctx is done or a listener fails permanently.
func (m *Monitor) Run(ctx context.Context) error {
	defer close(m.events)

	g, ctx := errgroup.WithContext(ctx)
	for _, a := range m.adapters {
		g.Go(func() error {
			return m.listen(ctx, a)
		})
	}

	return g.Wait()
}

func (m *Monitor) newBackoff() *backoff.ExponentialBackOff {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = m.config.InitialBackoff
	b.MaxInterval = m.config.MaxBackoff
	b.Multiplier = 2
	b.MaxElapsedTime = 0
	b.Reset()

	return b
}

func (m *Monitor) listen(ctx context.Context, a chain.Adapter) error {
	logger := log.WithField("chain", a.Chain())

	cursor, err := m.cursors.GetCursor(ctx, a.Chain())
	if err != nil {
		return fmt.Errorf("failed to load %s cursor: %w", a.Chain(), err)
	}
	logger.Infof("monitoring from sequence %d", cursor)

	mark := newWatermark(cursor)
	m.mu.Lock()
	m.marks[a.Chain()] = mark
	m.mu.Unlock()

	b := m.newBackoff()
	for {
		start := cursor
		cursor, err = m.backfill(ctx, a, cursor)
		if err == nil {
			cursor, err = m.watch(ctx, a, cursor)
		}
		if ctx.Err() != nil {
			return nil
		}
		if cursor > start {
			b.Reset()
		}

		wait := b.NextBackOff()
		logger.WithError(err).Warnf("event stream interrupted at sequence %d, resubscribing in %s", cursor, wait)
		resubscriptions.WithLabelValues(a.Chain().String()).Inc()

		select {
		case <-time.After(wait):
		case <-ctx.Done():
			return nil
		}
	}
}

// backfill delivers everything the adapter recorded after cursor.
func (m *Monitor) backfill(ctx context.Context, a chain.Adapter, cursor uint64) (uint64, error) {
	for {
		page, err := a.EventsSince(ctx, cursor, m.config.PageSize)
		if err != nil {
			return cursor, fmt.Errorf("failed to backfill %s after %d: %w", a.Chain(), cursor, err)
		}

		for _, native := range page {
			if native.Sequence <= cursor {
				continue
			}
			cursor, err = m.deliver(ctx, a, native)
			if err != nil {
				return cursor, err
			}
		}

		if len(page) < m.config.PageSize {
			return cursor, nil
		}
	}
}

func (m *Monitor) watch(ctx context.Context, a chain.Adapter, cursor uint64) (uint64, error) {
	watchCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	sink := make(chan chain.NativeEvent, m.config.BufferSize)
	done := make(chan error, 1)
	go func() {
		done <- a.Watch(watchCtx, cursor, sink)
	}()

	var err error
	for {
		select {
		case native := <-sink:
			cursor, err = m.receive(ctx, a, native, cursor)
			if err != nil {
				return cursor, err
			}

		case werr := <-done:
			// Drain what the stream delivered before it broke.
			for {
				select {
				case native := <-sink:
					cursor, err = m.receive(ctx, a, native, cursor)
					if err != nil {
						return cursor, err
					}
				default:
					if werr == nil {
						werr = chain.ErrDisconnected
					}

					return cursor, werr
				}
			}

		case <-ctx.Done():
			return cursor, ctx.Err()
		}
	}
}

// receive applies overlap and gap rules to a live event.
func (m *Monitor) receive(ctx context.Context, a chain.Adapter, native chain.NativeEvent, cursor uint64) (uint64, error) {
	if native.Sequence <= cursor {
		return cursor, nil
	}

	if native.Sequence > cursor+1 {
		log.WithField("chain", a.Chain()).Warnf("gap between %d and %d in live stream, backfilling", cursor, native.Sequence)
		gaps.WithLabelValues(a.Chain().String()).Inc()

		var err error
		cursor, err = m.backfill(ctx, a, cursor)
		if err != nil {
			return cursor, err
		}
		if native.Sequence <= cursor {
			return cursor, nil
		}
	}

	return m.deliver(ctx, a, native)
}

// deliver publishes the normalized events of native. The cursor follows
// once they are acknowledged. Malformed payloads are skipped so one bad log
// cannot stall the chain.
func (m *Monitor) deliver(ctx context.Context, a chain.Adapter, native chain.NativeEvent) (uint64, error) {
	events, err := Normalize(native)
	if err != nil {
		log.WithError(err).WithField("chain", native.Chain).Warn("skipping event")
		malformed.WithLabelValues(native.Chain.String()).Inc()
		events = nil
	}

	mark := m.mark(a.Chain())
	mark.publish(native.Sequence, len(events))

	for _, ev := range events {
		select {
		case m.events <- ev:
			normalized.WithLabelValues(ev.Chain.String(), string(ev.Kind)).Inc()
		case <-ctx.Done():
			return native.Sequence - 1, ctx.Err()
		}
	}

	if len(events) == 0 {
		if cursor, moved := mark.flush(); moved {
			if err := m.commit(ctx, a.Chain(), cursor); err != nil && !errors.Is(err, context.Canceled) {
				log.WithError(err).WithField("chain", a.Chain()).Error("could not persist cursor")
			}
		}
	}

	return native.Sequence, nil
}
