package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	googlemonitoring "github.com/promptrelay/promptrelay/googleMonitoring"
	"github.com/promptrelay/promptrelay/internal/config"
	"github.com/promptrelay/promptrelay/internal/server"
	"github.com/promptrelay/promptrelay/llm"
	"github.com/promptrelay/promptrelay/logger"
)

const (
	metricsPushInterval = 60 * time.Second
	shutdownTimeout     = 10 * time.Second
)

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	var (
		env        string
		configPath string
		debug      bool
	)

	defaultEnv := os.Getenv("APP_ENV")
	if defaultEnv == "" {
		defaultEnv = "default"
	}

	cmd := &cobra.Command{
		Use:          "promptrelay",
		Short:        "HTTP relay that forwards prompts and images to an LLM provider",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return run(cmd.Context(), env, configPath, debug)
		},
	}

	cmd.Flags().StringVar(&env, "env", defaultEnv, "config file name (without extension)")
	cmd.Flags().StringVar(&configPath, "config-path", ".", "directory holding the config file")
	cmd.Flags().BoolVar(&debug, "debug", false, "enable debug logging")

	return cmd
}

func run(ctx context.Context, env, configPath string, debug bool) error {
	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	// Initialize configuration
	cfg, err := config.LoadConfig(env, configPath)
	if err != nil {
		return fmt.Errorf("failed to load config: %w", err)
	}

	log := logger.NewLogger(debug || cfg.Logging.Debug)
	defer func() { _ = log.Sync() }()

	// Initialize LLM Client
	llmClient, err := llm.NewClient(cfg.LLM)
	if err != nil {
		return fmt.Errorf("failed to create llm client: %w", err)
	}

	// Metrics registry
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	// Google Monitoring Client
	monitoringClient, err := googlemonitoring.NewMonitoringClient(ctx, cfg.GoogleService.ProjectId, cfg.GoogleService.JsonKey, registry)
	if err != nil {
		return fmt.Errorf("failed to create monitoring client: %w", err)
	}
	defer monitoringClient.Close()

	if monitoringClient.Pushing() {
		go monitoringClient.RunPusher(ctx, metricsPushInterval, func(err error) {
			log.Warn("failed to push metrics", zap.Error(err))
		})
	}

	router := server.NewRouter(cfg, log, llmClient, monitoringClient, registry)

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: router,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("provider", cfg.LLM.Provider),
			zap.Bool("metrics_push", monitoringClient.Pushing()),
		)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err, ok := <-errCh:
		if ok {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	return nil
}
