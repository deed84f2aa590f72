package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"golang.org/x/time/rate"

	"crossfund/internal/config"
	"crossfund/internal/oracle"
	"crossfund/internal/remote"
	"crossfund/internal/storage/postgres"
)

func main() {
	if err := config.LoadDotEnv(os.Getenv("CROSSFUND_ENV_FILE")); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}

	root := &cobra.Command{
		Use:          "crossfund",
		Short:        "Cross-chain contribution ledger",
		SilenceUsage: true,
	}

	root.PersistentFlags().String("config", "", "config file path")

	root.AddCommand(newServeCmd(), newPricesCmd(), newRecordCmd(), newFundingCmd())

	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func addOracleFlags(cmd *cobra.Command) {
	cmd.Flags().String("price-url", "", "price API URL template (%s is replaced by the feed ids)")
	cmd.Flags().Duration("price-staleness", oracle.DefaultStaleness, "how long a price snapshot stays fresh")
	cmd.Flags().Duration("feed-timeout", oracle.DefaultFeedTimeout, "per-feed fetch timeout")
	cmd.Flags().Duration("feed-retry-interval", oracle.DefaultRetryInterval, "wait before retrying after every feed failed")
	cmd.Flags().Float64("feed-rate", 2, "price API requests per second")
	cmd.Flags().Int("feed-burst", 3, "price API request burst")
}

func addBackendFlags(cmd *cobra.Command) {
	cmd.Flags().String("backend", config.BackendHTTP, "persistence backend (http, postgres, none)")
	cmd.Flags().String("backend-url", "", "CRUD API base URL for the http backend")
	cmd.Flags().String("pg-dsn", "", "Postgres DSN for the postgres backend")
	cmd.Flags().Int("queue-size", remote.DefaultQueueSize, "persistence outbox capacity")
	cmd.Flags().Int("max-retries", remote.DefaultMaxRetries, "maximum retry attempts per backend call")
	cmd.Flags().Duration("retry-backoff", remote.DefaultRetryDelay, "initial retry backoff")
	cmd.Flags().Duration("call-timeout", remote.DefaultCallTimeout, "timeout per backend call")
}

func addLogFlag(cmd *cobra.Command) {
	cmd.Flags().String("log-level", "info", "log level (debug, info, warn, error)")
}

func newOracle(cfg config.OracleConfig, logger *zap.Logger) *oracle.Cache {
	client := &http.Client{Timeout: cfg.FeedTimeout}
	limiter := rate.NewLimiter(rate.Limit(cfg.FeedRate), cfg.FeedBurst)
	feeds := oracle.NewDefaultFeeds(cfg.PriceURL, client, limiter)
	return oracle.NewCache(feeds, oracle.Options{
		Staleness:     cfg.Staleness,
		FeedTimeout:   cfg.FeedTimeout,
		RetryInterval: cfg.RetryInterval,
	}, logger)
}

// openBackend connects the configured backend. The returned close func is never nil.
func openBackend(ctx context.Context, cfg config.BackendConfig, logger *zap.Logger) (remote.Backend, func(), error) {
	switch cfg.Kind {
	case config.BackendPostgres:
		store, err := postgres.NewStore(ctx, cfg.PGDSN)
		if err != nil {
			return nil, nil, fmt.Errorf("connect postgres: %w", err)
		}
		if err := store.EnsureSchema(ctx); err != nil {
			store.Close()
			return nil, nil, err
		}
		logger.Info("using postgres backend")
		return store, store.Close, nil
	case config.BackendNone:
		logger.Warn("persistence disabled, contributions live in memory only")
		return remote.NopBackend{}, func() {}, nil
	default:
		logger.Info("using http backend", zap.String("url", cfg.URL))
		client := &http.Client{Timeout: cfg.CallTimeout + time.Second}
		return remote.NewHTTPBackend(cfg.URL, client), func() {}, nil
	}
}

func newSyncer(backend remote.Backend, cfg config.BackendConfig, logger *zap.Logger) *remote.Syncer {
	return remote.NewSyncer(backend, remote.Options{
		QueueSize:   cfg.QueueSize,
		CallTimeout: cfg.CallTimeout,
		MaxRetries:  cfg.MaxRetries,
		RetryDelay:  cfg.RetryBackoff,
	}, logger)
}

func newLogger(level string) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	cfg.Level = zap.NewAtomicLevel()
	if err := cfg.Level.UnmarshalText([]byte(level)); err != nil {
		return nil, err
	}

	cfg.EncoderConfig.TimeKey = "ts"
	cfg.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	return cfg.Build()
}
