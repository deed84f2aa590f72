package main

import (
	"context"
	"encoding/json"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"crossfund/internal/config"
	"crossfund/internal/ledger"
)

func newFundingCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "funding",
		Short: "Load a project from the backend and print its funding aggregate",
		RunE:  runFunding,
	}

	cmd.Flags().String("project", "", "project id")
	addBackendFlags(cmd)
	addLogFlag(cmd)
	return cmd
}

func runFunding(cmd *cobra.Command, _ []string) error {
	cfgFile, _ := cmd.Flags().GetString("config")
	cfg, err := config.LoadFunding(cfgFile, cmd.Flags())
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

	// Funding reads stored USD values only, so no price source is needed.
	l := ledger.New(nil, newSyncer(backend, cfg.Backend, logger), logger)
	l.LoadFromRemote(ctx, cfg.Project)

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(l.ProjectFunding(cfg.Project))
}
