package main

import (
	"context"
	"errors"
	"os"

	"go.uber.org/zap"

	"github.com/aarons-archive/skeleton-clique-bot/internal/app"
	"github.com/aarons-archive/skeleton-clique-bot/internal/config"
	"github.com/aarons-archive/skeleton-clique-bot/internal/logger"
)

// Exit codes.
const (
	exitRuntime = 1
	exitConfig  = 2
	exitStartup = 3
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// No logger yet; exit immediately.
		_, _ = os.Stderr.WriteString("config error: " + err.Error() + "\n")
		os.Exit(exitConfig)
	}

	log, err := logger.New(cfg.LogLevel)
	if err != nil {
		_, _ = os.Stderr.WriteString("logger init error: " + err.Error() + "\n")
		os.Exit(exitConfig)
	}

	os.Exit(run(cfg, log))
}

func run(cfg config.Config, log *zap.Logger) int {
	// Ignore sync error (common on some platforms).
	defer func() { _ = log.Sync() }()

	application, err := app.New(cfg, log)
	if err != nil {
		log.Error("app init failed", zap.Error(err))
		return exitStartup
	}

	err = application.Run(context.Background())
	var se *app.StartupError
	switch {
	case err == nil:
		return 0
	case errors.As(err, &se):
		log.Error("startup aborted", zap.String("step", se.Step), zap.Error(se.Err))
		return exitStartup
	default:
		log.Error("app run failed", zap.Error(err))
		return exitRuntime
	}
}
