package cli

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/spf13/cobra"

	"github.com/HumansWindow/lastproject-sub008/internal/control"
	"github.com/HumansWindow/lastproject-sub008/internal/core/config"
)

var (
	cfgPath string
	isDebug bool
)

var rootCmd = &cobra.Command{
	Use:   "minterd",
	Short: "Minterd token minting service",
	Long:  `Minterd drains a durable minting queue against blockchain RPC endpoints with automatic failover.`,
	Run:   runMinter,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

func init() {
	rootCmd.PersistentFlags().StringVar(&cfgPath, "config", "config.yaml", "config file (default is config.yaml)")
	rootCmd.PersistentFlags().BoolVar(&isDebug, "debug", false, "enable debug logging")
}

func initLogger(cfg *config.AppConfig) *slog.Logger {
	level := slog.LevelInfo
	if isDebug || (cfg != nil && cfg.Logging.Level == "debug") {
		level = slog.LevelDebug
	}

	var handler slog.Handler
	if cfg != nil && cfg.Logging.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	} else {
		handler = tint.NewHandler(os.Stderr, &tint.Options{
			Level:      level,
			TimeFormat: time.RFC3339,
		})
	}

	log := slog.New(handler)
	slog.SetDefault(log)
	return log
}

func runMinter(cmd *cobra.Command, args []string) {
	_ = godotenv.Load()

	cfg, err := config.Load(cfgPath)
	if err != nil {
		initLogger(nil)
		slog.Error("Failed to load config", "error", err)
		os.Exit(1)
	}

	log := initLogger(cfg)

	app, err := control.NewMinter(cfg, log)
	if err != nil {
		log.Error("Failed to initialize Minter", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	if err := app.Start(ctx); err != nil {
		log.Error("Failed to start Minter", "error", err)
		os.Exit(1)
	}

	log.Info("Minter started", "config", cfgPath)

	sig := <-sigChan
	log.Info("Received signal, shutting down...", "signal", sig)

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer shutdownCancel()

	if err := app.Stop(shutdownCtx); err != nil {
		log.Error("Error during shutdown", "error", err)
		os.Exit(1)
	}
}
