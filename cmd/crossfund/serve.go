package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"crossfund/internal/api"
	"crossfund/internal/config"
	"crossfund/internal/ledger"
	"crossfund/internal/notify"
	"crossfund/internal/storage"
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the contribution ledger HTTP API",
		RunE:  runServe,
	}

	cmd.Flags().String("listen", ":8080", "HTTP listen address")
	cmd.Flags().String("journal", "./data/contributions.jsonl", "contribution journal JSONL path (empty disables)")
	cmd.Flags().StringSlice("kafka-brokers", nil, "Kafka brokers for contribution events (comma-separated)")
	cmd.Flags().String("kafka-topic", "contributions", "Kafka topic for contribution events")
	cmd.Flags().Float64("rate-limit", 10, "API requests per second (0 disables)")
	cmd.Flags().Int("rate-burst", 30, "API request burst")
	cmd.Flags().Duration("bootstrap-ttl", 0, "reload a project from the backend after this long (0 loads once)")
	addOracleFlags(cmd)
	addBackendFlags(cmd)
	addLogFlag(cmd)
	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadServe(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg.Backend, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	prices := newOracle(cfg.Oracle, logger)
	syncer := newSyncer(backend, cfg.Backend, logger)
	l := ledger.New(prices, syncer, logger)

	if cfg.Journal != "" {
		l.Subscribe(storage.NewJournal(cfg.Journal, logger).Subscriber())
	}

	broadcaster := notify.NewBroadcaster(logger)
	defer broadcaster.Close()
	l.Subscribe(broadcaster.Subscriber())

	var publisher *notify.KafkaPublisher
	if len(cfg.KafkaBrokers) > 0 {
		publisher = notify.NewKafkaPublisher(notify.KafkaConfig{
			Brokers: cfg.KafkaBrokers,
			Topic:   cfg.KafkaTopic,
		}, logger)
		defer publisher.Close()
		l.Subscribe(publisher.Subscriber())
	}

	server := api.NewServer(api.Options{
		Addr:         cfg.Listen,
		RateLimit:    cfg.RateLimit,
		RateBurst:    cfg.RateBurst,
		BootstrapTTL: cfg.BootstrapTTL,
		WebSocket:    broadcaster.Handler(),
	}, l, prices, logger)

	logger.Info("crossfund start",
		zap.String("listen", cfg.Listen),
		zap.String("backend", cfg.Backend.Kind),
		zap.String("journal", cfg.Journal),
		zap.Strings("kafka_brokers", cfg.KafkaBrokers),
		zap.Duration("price_staleness", cfg.Oracle.Staleness),
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return syncer.Run(gctx) })
	if publisher != nil {
		g.Go(func() error { return publisher.Run(gctx) })
	}
	g.Go(func() error { return server.Run(gctx) })

	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		return err
	}
	logger.Info("crossfund stopped")
	return nil
}
