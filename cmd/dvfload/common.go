package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/opendvf/dvfload/internal/config"
	"github.com/opendvf/dvfload/internal/retry"
	"github.com/opendvf/dvfload/internal/store"
)

// storeFlags are the connection flags shared by every subcommand.
type storeFlags struct {
	configPath *string
	host       *string
	port       *int
	user       *string
	password   *string
	database   *string
	sslmode    *string
	verbose    *bool
}

func registerStoreFlags(fs *flag.FlagSet) *storeFlags {
	return &storeFlags{
		configPath: fs.String("config", "", "Path to YAML config file"),
		host:       fs.String("db-host", "", "PostgreSQL host"),
		port:       fs.Int("db-port", 0, "PostgreSQL port"),
		user:       fs.String("db-user", "", "PostgreSQL user"),
		password:   fs.String("db-password", "", "PostgreSQL password"),
		database:   fs.String("db-name", "", "PostgreSQL database name"),
		sslmode:    fs.String("db-sslmode", "", "PostgreSQL sslmode"),
		verbose:    fs.Bool("verbose", false, "Enable debug logging"),
	}
}

// loadConfig layers defaults, config file, environment, and flags, in that
// order of precedence.
func (sf *storeFlags) loadConfig(overrides config.Config) (config.Config, error) {
	cfg := config.Default()
	if *sf.configPath != "" {
		fileCfg, err := config.LoadFromFile(*sf.configPath)
		if err != nil {
			return config.Config{}, err
		}
		cfg = fileCfg
	}
	if err := cfg.LoadFromEnv(); err != nil {
		return config.Config{}, err
	}

	overrides.Store.Host = *sf.host
	overrides.Store.Port = *sf.port
	overrides.Store.User = *sf.user
	overrides.Store.Password = *sf.password
	overrides.Store.Database = *sf.database
	overrides.Store.SSLMode = *sf.sslmode

	cfg = cfg.Merge(overrides)
	if err := cfg.Validate(); err != nil {
		return config.Config{}, err
	}
	return cfg, nil
}

func (sf *storeFlags) logger() *slog.Logger {
	level := slog.LevelWarn
	if *sf.verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))
}

// openStore connects to Postgres. An unreachable store is an unrecoverable
// startup error.
func openStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (*store.Store, error) {
	return store.Open(ctx, cfg.Store.DSN(), store.Options{
		Retry:  retryPolicy(cfg.Retry),
		Logger: logger,
	})
}

func retryPolicy(rc config.RetryConfig) retry.Policy {
	return retry.Policy{
		Attempts:   rc.Attempts,
		Backoff:    rc.Backoff,
		MaxBackoff: rc.MaxBackoff,
	}
}

// signalContext returns a context cancelled on SIGINT or SIGTERM.
func signalContext() (context.Context, context.CancelFunc) {
	ctx, cancel := context.WithCancel(context.Background())

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		<-sigCh
		fmt.Fprintln(os.Stderr, "\n[dvfload] Received interrupt, finishing current batch...")
		cancel()
	}()

	return ctx, cancel
}
