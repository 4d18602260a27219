package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"github.com/loykin/devstack/internal/app"
	"github.com/loykin/devstack/internal/config"
	"github.com/loykin/devstack/internal/logger"
)

func createServeCommand(flags *GlobalFlags) *cobra.Command {
	var listen string
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the devstack daemon",
		Long: `Start the daemon: kill processes left over by a previous run, adopt
services that are already listening, start auto-start services and serve the
API until SIGINT or SIGTERM, then stop everything it runs.

Examples:
  devstack serve
  devstack serve --config devstack.toml --listen 127.0.0.1:9000`,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := config.Load(flags.ConfigPath)
			if err != nil {
				return err
			}
			if listen != "" {
				cfg.Server.Listen = listen
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVar(&listen, "listen", "", "API listen address (overrides [server].listen)")
	return cmd
}

func runServe(parent context.Context, cfg *config.Config) error {
	if parent == nil {
		parent = context.Background()
	}
	log, closer, err := logger.New(cfg.Log, os.Stderr)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	ctx, stop := signal.NotifyContext(parent, os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := app.New(ctx, cfg, log)
	if err != nil {
		return fmt.Errorf("start devstack: %w", err)
	}
	for _, line := range a.Cleanup {
		log.Info(line)
	}
	runErr := a.Run(ctx)

	log.Info("shutting down")
	sctx, cancel := context.WithTimeout(context.Background(), time.Minute)
	defer cancel()
	if err := a.Shutdown(sctx); err != nil {
		log.Warn("shutdown incomplete", "error", err)
	}
	return runErr
}
