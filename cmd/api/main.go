package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/markdave123-py/AgroIntelX/internal/app"
	"github.com/markdave123-py/AgroIntelX/internal/config"
	"github.com/markdave123-py/AgroIntelX/internal/logging"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := config.LoadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logger, err := logging.New(cfg.IsDevelopment(), cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("AgroIntelX stopped with error", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	logger.Info("AgroIntelX stopped")
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger) error {
	application, err := app.NewApp(ctx, cfg, logger)
	if err != nil {
		return fmt.Errorf("startup failed: %w", err)
	}
	defer application.Close()

	logger.Info("AgroIntelX is running", zap.String("env", cfg.Env), zap.String("llm_provider", cfg.LLMProvider))
	return application.Run(ctx)
}
