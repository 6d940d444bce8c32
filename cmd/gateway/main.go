package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"persona-gateway/config"
	"persona-gateway/internal/logger"

	"github.com/spf13/cobra"
)

var (
	configPath string
	logLevel   string
	port       int
)

var rootCmd = &cobra.Command{
	Use:   "gateway",
	Short: "Persona chat gateway",
	Long: `Gateway in front of a local or remote inference engine that serves
character conversations over HTTP, with per-character memory.`,
	SilenceUsage: true,
	RunE:         run,
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	rootCmd.Flags().StringVarP(&configPath, "config", "c", "config/config.yml", "Path to the yaml config file")
	rootCmd.Flags().StringVar(&logLevel, "log-level", "", "Override log level (debug|info|warn|error)")
	rootCmd.Flags().IntVarP(&port, "port", "p", 0, "Override the HTTP port")
}

func run(cmd *cobra.Command, _ []string) error {
	cfg, err := config.LoadConfig(configPath)
	if err != nil {
		return err
	}
	if port > 0 {
		cfg.Server.Port = port
	}
	if logLevel != "" {
		cfg.Log.Level = logLevel
	}
	if err := logger.Configure(cfg.Log.Level, cfg.Log.File); err != nil {
		return fmt.Errorf("configure logger: %w", err)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	app, err := build(ctx, cfg)
	if err != nil {
		return err
	}
	defer app.close()

	srv := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Server.Port),
		Handler: app.router,
	}
	errCh := make(chan error, 2)
	go func() {
		logger.Info("gateway listening", "port", cfg.Server.Port, "engine", cfg.Engine.Kind, "model", cfg.Engine.Model)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()
	if app.grpc != nil {
		go func() {
			if err := app.grpc.ListenAndServe(cfg.Server.GRPCPort); err != nil {
				errCh <- err
			}
		}()
	}
	if app.registry != nil {
		if err := app.registry.Start(); err != nil {
			logger.Error("consul registration failed", "error", err)
		}
	}

	select {
	case <-ctx.Done():
		logger.Info("shutting down")
	case err = <-errCh:
		logger.Error("server stopped", "error", err)
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if app.registry != nil {
		app.registry.Stop()
	}
	if serr := srv.Shutdown(shutdownCtx); serr != nil {
		logger.Error("http shutdown", "error", serr)
	}
	if app.grpc != nil {
		app.grpc.Stop()
	}
	return err
}
