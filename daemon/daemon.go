// Package daemon wires the relayer, its ledgers and its upstream surface into
// one process.
package daemon

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/chain/gateway"
	"github.com/40acres/htlc-bridge/chain/simulated"
	"github.com/40acres/htlc-bridge/crypto"
	"github.com/40acres/htlc-bridge/monitor"
	"github.com/40acres/htlc-bridge/oracle"
	"github.com/40acres/htlc-bridge/registry"
	"github.com/40acres/htlc-bridge/relayer"
	"github.com/40acres/htlc-bridge/rpc"
	"github.com/40acres/htlc-bridge/scheduler"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	log "github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

const shutdownTimeout = 10 * time.Second

type Daemon struct {
	config    *Config
	adapters  chain.Set
	relayer   *relayer.Relayer
	monitor   *monitor.Monitor
	scheduler *scheduler.Scheduler
	server    *rpc.Server
	listener  net.Listener
	metrics   *http.Server
}

// New builds every component without starting any of them.
func New(config *Config, store registry.Store) (*Daemon, error) {
	if err := config.Validate(); err != nil {
		return nil, err
	}

	adapters, err := buildAdapters(config)
	if err != nil {
		return nil, err
	}
	prices, err := buildOracle(config)
	if err != nil {
		return nil, err
	}

	relayerConfig := config.RelayerConfig()
	secrets, err := crypto.NewGenerator(relayerConfig.MinTimelock, relayerConfig.MaxTimelock)
	if err != nil {
		return nil, err
	}
	r, err := relayer.New(relayerConfig, store, adapters, prices, secrets)
	if err != nil {
		return nil, fmt.Errorf("failed to create relayer: %w", err)
	}

	tasks := scheduler.New()
	for _, task := range r.Tasks() {
		if err := tasks.Add(task); err != nil {
			return nil, err
		}
	}

	d := &Daemon{
		config:    config,
		adapters:  adapters,
		relayer:   r,
		monitor:   monitor.New(adapters, store, monitor.DefaultConfig()),
		scheduler: tasks,
		server:    rpc.NewRPCServer(config.GRPCPort, r),
	}
	if config.MetricsPort != 0 {
		mux := http.NewServeMux()
		mux.Handle("/metrics", promhttp.Handler())
		d.metrics = &http.Server{
			Addr:              fmt.Sprintf(":%d", config.MetricsPort),
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		}
	}

	return d, nil
}

func buildAdapters(config *Config) (chain.Set, error) {
	adapters := make([]chain.Adapter, 0, len(config.Chains))
	for _, cc := range config.Chains {
		switch cc.Adapter {
		case AdapterGateway:
			options := []gateway.Option{gateway.WithAPIKey(cc.APIKey)}
			if cc.PollWait > 0 {
				options = append(options, gateway.WithPollWait(time.Duration(cc.PollWait)))
			}
			adapters = append(adapters, gateway.New(cc.Chain, cc.URL, cc.Contract, options...))
		case AdapterSimulated:
			var options []simulated.Option
			liquidity, err := optionalDecimal(cc.Liquidity)
			if err != nil {
				return nil, err
			}
			if liquidity != nil {
				options = append(options, simulated.WithLiquidity(*liquidity))
			}
			ledger, err := simulated.New(cc.Chain, cc.RelayerAddress, options...)
			if err != nil {
				return nil, fmt.Errorf("failed to create simulated %s ledger: %w", cc.Chain, err)
			}
			log.Warnf("⚠️ %s runs on a simulated ledger", cc.Chain)
			adapters = append(adapters, ledger)
		default:
			return nil, invalid("unknown adapter %q for %s", cc.Adapter, cc.Chain)
		}
	}

	return chain.NewSet(adapters...), nil
}

func buildOracle(config *Config) (*oracle.Oracle, error) {
	fallback, err := config.FallbackTable()
	if err != nil {
		return nil, err
	}

	var feeds []oracle.Feed
	for _, f := range config.SortedFeeds() {
		options := []oracle.FeedOption{oracle.WithAPIKey(f.APIKey)}
		switch f.Kind {
		case FeedHTTP:
			feeds = append(feeds, oracle.NewHTTPFeed(f.Name, f.URL, options...))
		case FeedCoinGecko:
			feeds = append(feeds, oracle.NewCoinGeckoFeed(f.URL, options...))
		}
	}
	if len(feeds) == 0 {
		log.Warn("⚠️ No price feeds configured, quotes come from the fallback table")
	}

	cache := oracle.NewRateCache(config.Oracle.CacheSize, time.Duration(config.Oracle.CacheTTL))

	return oracle.New(feeds, cache, fallback, config.OracleConfig()), nil
}

func (d *Daemon) Adapters() chain.Set {
	return d.adapters
}

func (d *Daemon) Relayer() *relayer.Relayer {
	return d.relayer
}

// Listen binds the gRPC port ahead of Run.
func (d *Daemon) Listen() (net.Addr, error) {
	if d.listener == nil {
		listener, err := net.Listen("tcp", fmt.Sprintf(":%d", d.config.GRPCPort))
		if err != nil {
			return nil, fmt.Errorf("failed to listen to port: %w", err)
		}
		d.listener = listener
	}

	return d.listener.Addr(), nil
}

// Run blocks until ctx is done or a component fails, then stops the rest.
func (d *Daemon) Run(ctx context.Context) error {
	log.Info("Starting htlc-bridge relayer")

	addr, err := d.Listen()
	if err != nil {
		return err
	}

	if err := d.scheduler.Start(ctx); err != nil {
		return err
	}

	g, ctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return d.monitor.Run(ctx)
	})
	g.Go(func() error {
		return d.relayer.Run(ctx, d.monitor)
	})
	g.Go(func() error {
		log.Infof("gRPC server listening on %s", addr)

		return d.server.Serve(d.listener)
	})
	if d.metrics != nil {
		g.Go(func() error {
			log.Infof("metrics served on %s/metrics", d.metrics.Addr)
			if err := d.metrics.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return fmt.Errorf("failed to serve metrics: %w", err)
			}

			return nil
		})
	}

	g.Go(func() error {
		<-ctx.Done()
		log.Info("Shutting down htlc-bridge relayer")

		d.scheduler.Stop()
		d.server.Stop()
		if d.metrics != nil {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
			defer cancel()
			if err := d.metrics.Shutdown(shutdownCtx); err != nil {
				log.Errorf("failed to stop metrics server: %v", err)
			}
		}

		return nil
	})

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}

	return nil
}

func Start(ctx context.Context, config *Config, store registry.Store) error {
	d, err := New(config, store)
	if err != nil {
		return err
	}

	return d.Run(ctx)
}
