package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"

	"election-backend/api"
	"election-backend/config"
	"election-backend/service"
	"election-backend/storage"
)

func serveRun(cmd *cobra.Command, _ []string, cfg *config.Config) {
	logger := commonRun(cfg)
	if err := run(cmd.Context(), cfg, logger); err != nil {
		slog.Error(err.Error())
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *slog.Logger) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	shutdownTimeout, err := cfg.ShutdownDuration()
	if err != nil {
		return err
	}

	store, err := storage.Open(storage.Options{
		Backend: cfg.Storage.Backend,
		Path:    cfg.Storage.Path,
		DSN:     cfg.Storage.DSN,
		Logger:  logger,
	})
	if err != nil {
		return fmt.Errorf("opening storage: %w", err)
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error(
				"failed to close storage",
				"component", programName,
				"error", err,
			)
		}
	}()

	serviceOpts := []service.VotingServiceOptionFunc{
		service.WithLogger(logger),
		service.WithRequireRegistration(cfg.Voting.RequireRegistration),
	}
	var serverOpts []api.ServerOptionFunc
	if cfg.Metrics.Enabled {
		registry := prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		serviceOpts = append(serviceOpts, service.WithMetrics(service.NewMetricsCollector(registry)))
		serverOpts = append(serverOpts, api.WithMetrics(registry))
	}

	votingService, err := service.NewVotingService(ctx, store, serviceOpts...)
	if err != nil {
		return fmt.Errorf("starting voting service: %w", err)
	}

	queue := service.NewQueueProcessor(votingService, cfg.Queue.Size, cfg.Queue.Workers)
	queue.Start()
	defer queue.Stop()

	server := api.NewServer(
		votingService,
		append(serverOpts, api.WithLogger(logger), api.WithQueue(queue))...,
	)

	errCh := make(chan error, 1)
	go func() {
		errCh <- server.Start(cfg.ListenAddr())
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("serving API: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info(
		"shutting down",
		"component", programName,
		"timeout", shutdownTimeout,
	)
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil && !errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("shutting down API: %w", err)
	}
	return <-errCh
}

func serveCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the election API server",
		Run: func(cmd *cobra.Command, args []string) {
			cfg := config.FromContext(cmd.Context())
			if cfg == nil {
				slog.Error("no config found in context")
				os.Exit(1)
			}
			serveRun(cmd, args, cfg)
		},
	}
	return cmd
}
