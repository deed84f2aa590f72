package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"crossfund/internal/config"
	"crossfund/internal/ledger"
	"crossfund/internal/model"
)

func newRecordCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "record",
		Short: "Record a single contribution and persist it",
		RunE:  runRecord,
	}

	cmd.Flags().String("project", "", "project id")
	cmd.Flags().String("contributor", "", "contributor wallet address")
	cmd.Flags().String("chain", "", "chain (stellar, ethereum, polygon)")
	cmd.Flags().String("currency", "", "currency (XLM, ETH, MATIC)")
	cmd.Flags().Float64("amount", 0, "amount in native units")
	cmd.Flags().String("tx-hash", "", "transaction hash")
	addOracleFlags(cmd)
	addBackendFlags(cmd)
	addLogFlag(cmd)
	return cmd
}

func runRecord(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadRecord(cfgFile, cmd.Flags())
	if err != nil {
		return err
	}

	logger, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	defer logger.Sync()

	chain, err := model.ParseChain(cfg.Chain)
	if err != nil {
		return err
	}
	currency, err := model.ParseCurrency(cfg.Currency)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	backend, closeBackend, err := openBackend(ctx, cfg.Backend, logger)
	if err != nil {
		return err
	}
	defer closeBackend()

	syncer := newSyncer(backend, cfg.Backend, logger)
	l := ledger.New(newOracle(cfg.Oracle, logger), syncer, logger)
	l.LoadFromRemote(ctx, cfg.Project)

	rec, err := l.RecordContribution(ctx, ledger.Input{
		ProjectID:   cfg.Project,
		Contributor: cfg.Contributor,
		Chain:       chain,
		Currency:    currency,
		Amount:      cfg.Amount,
		TxHash:      cfg.TxHash,
	})
	if err != nil {
		return err
	}

	switch queued := syncer.Pending(); {
	case queued == 0:
		logger.Info("contribution already recorded", zap.String("contribution_id", rec.ID))
	case syncer.Flush(ctx) == queued:
		logger.Info("contribution persisted", zap.String("contribution_id", rec.ID))
	default:
		logger.Warn("contribution recorded but not persisted", zap.String("contribution_id", rec.ID))
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(rec)
}
