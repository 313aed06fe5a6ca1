package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/40acres/htlc-bridge/chain"
	"github.com/40acres/htlc-bridge/daemon"
	"github.com/40acres/htlc-bridge/database"
	"github.com/40acres/htlc-bridge/registry"
	"github.com/40acres/htlc-bridge/utils"
	log "github.com/sirupsen/logrus"
	"github.com/urfave/cli/v3"

	_ "github.com/40acres/htlc-bridge/logging"
	_ "github.com/lib/pq"
)

// MemoryHost keeps the registry in memory; nothing survives a restart.
const MemoryHost = "memory"

func validatePort(port int64) (uint32, error) {
	if port > 65535 {
		return 0, fmt.Errorf("port number %d is invalid: must be between 0 and 65535", port)
	}
	value, err := utils.SafeInt64ToUint32(port)
	if err != nil {
		return 0, fmt.Errorf("port number %d is invalid: %w", port, err)
	}

	return value, nil
}

func main() {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGTERM, syscall.SIGINT)
	go func() {
		<-sigChan
		log.Info("Received signal, shutting down")
		cancel()
	}()

	app := &cli.Command{
		Name:  "relayerd",
		Usage: "Cross-chain HTLC swap relayer",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "db-host",
				Usage: "Database host, \"embedded\" for a local postgres or \"memory\" for no persistence",
				Value: database.EmbeddedHost,
			},
			&cli.StringFlag{
				Name:  "db-user",
				Usage: "Database username",
				Value: "relayer",
			},
			&cli.StringFlag{
				Name:  "db-password",
				Usage: "Database password",
				Value: "relayer",
			},
			&cli.StringFlag{
				Name:  "db-name",
				Usage: "Database name",
				Value: "postgres",
			},
			&cli.IntFlag{
				Name:  "db-port",
				Usage: "Database port",
				Value: 5433,
			},
			&cli.StringFlag{
				Name:  "db-data-path",
				Usage: "Database path",
				Value: "./.data",
			},
			&cli.BoolFlag{
				Name:  "db-keep-alive",
				Usage: "Keep the database running after the daemon stops for embedded databases",
				Value: false,
			},
			&grpcPort,
			&testnet,
			&regtest,
		},
		Commands: []*cli.Command{
			{
				Name:  "start",
				Usage: "Start the relayer daemon",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "config",
						Usage: "Path to a TOML config file",
					},
					&cli.IntFlag{
						Name:  "metrics-port",
						Usage: "Serve prometheus metrics on this port, 0 disables them",
					},
				},
				Action: start,
			},
			{
				Name:  "swap",
				Usage: "Swap operations against a running daemon",
				Flags: []cli.Flag{
					&cli.StringFlag{
						Name:  "host",
						Usage: "Daemon host",
						Value: "localhost",
					},
				},
				Commands: swapCommands,
			},
			{
				Name:  "database",
				Usage: "Database operations",
				Commands: []*cli.Command{
					{
						Name:  "migrate",
						Usage: "Migrate the database",
						Action: withDatabase(func(db *database.Database) error {
							return db.MigrateDatabase()
						}),
					},
					{
						Name:  "rollback",
						Usage: "Rollback the database",
						Action: withDatabase(func(db *database.Database) error {
							return db.Rollback()
						}),
					},
					{
						Name:  "reset",
						Usage: "Reset the database",
						Action: withDatabase(func(db *database.Database) error {
							return db.Reset()
						}),
					},
				},
			},
			{
				Name:  "help",
				Usage: "Show help",
				Action: func(ctx context.Context, cmd *cli.Command) error {
					return cli.ShowAppHelp(cmd)
				},
			},
		},
	}

	if err := app.Run(ctx, os.Args); err != nil {
		log.Fatal(err)
	}
}

var regtest = cli.BoolFlag{
	Name:  "regtest",
	Usage: "Use regtest network",
}
var testnet = cli.BoolFlag{
	Name:  "testnet",
	Usage: "Use testnet network",
}

var grpcPort = cli.IntFlag{
	Name:  "grpc-port",
	Usage: "Grpc port for client to daemon communication",
	Value: 50051,
}

func start(ctx context.Context, c *cli.Command) error {
	config, err := daemon.LoadConfig(c.String("config"))
	if err != nil {
		return err
	}
	if err := applyFlags(c, config); err != nil {
		return err
	}

	store, closeStore, err := openStore(c)
	if err != nil {
		return err
	}
	defer func() {
		if err := closeStore(); err != nil {
			log.Errorf("❌ Could not close database: %v", err)
		}
	}()

	return daemon.Start(ctx, config, store)
}

// applyFlags lets command line flags win over the config file.
func applyFlags(c *cli.Command, config *daemon.Config) error {
	if c.IsSet("grpc-port") || c.String("config") == "" {
		port, err := validatePort(c.Int("grpc-port"))
		if err != nil {
			return err
		}
		config.GRPCPort = port
	}
	if c.IsSet("metrics-port") {
		port, err := validatePort(c.Int("metrics-port"))
		if err != nil {
			return err
		}
		config.MetricsPort = port
	}

	switch {
	case c.Bool("regtest"):
		config.Network = chain.Regtest
	case c.Bool("testnet"):
		config.Network = chain.Testnet
	}

	return nil
}

func openStore(c *cli.Command) (registry.Store, func() error, error) {
	if c.String("db-host") == MemoryHost {
		log.Warn("⚠️ Swaps are kept in memory and lost on restart")

		return registry.NewInmemRegistry(), func() error { return nil }, nil
	}

	db, closeDb, err := StartDatabase(c)
	if err != nil {
		return nil, nil, err
	}

	if db.IsEmbedded() {
		if err := db.MigrateDatabase(); err != nil {
			return nil, nil, fmt.Errorf("%w (close: %v)", err, closeDb())
		}
	} else {
		log.Info("🔍 Skipping database migration")
	}

	return db, closeDb, nil
}

func withDatabase(run func(db *database.Database) error) cli.ActionFunc {
	return func(ctx context.Context, cmd *cli.Command) error {
		db, closeDb, err := StartDatabase(cmd)
		if err != nil {
			return err
		}
		defer func() {
			if err := closeDb(); err != nil {
				log.Errorf("❌ Could not close database: %v", err)
			}
		}()

		return run(db)
	}
}

func StartDatabase(cmd *cli.Command) (*database.Database, func() error, error) {
	if cmd.String("db-host") == MemoryHost {
		return nil, nil, fmt.Errorf("❌ database commands need a postgres host, not %q", MemoryHost)
	}
	port, err := validatePort(cmd.Int("db-port"))
	if err != nil {
		return nil, nil, err
	}

	db, closeDb, err := database.NewDatabase(
		cmd.String("db-user"),
		cmd.String("db-password"),
		cmd.String("db-name"),
		port,
		cmd.String("db-data-path"),
		cmd.String("db-host"),
		cmd.Bool("db-keep-alive"),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("❌ Could not connect to database: %w", err)
	}

	return db, closeDb, nil
}
