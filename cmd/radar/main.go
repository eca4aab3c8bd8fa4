package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/lueurxax/telegram-event-radar/internal/app"
	"github.com/lueurxax/telegram-event-radar/internal/platform/config"
	db "github.com/lueurxax/telegram-event-radar/internal/storage"
)

func main() {
	mode := flag.String("mode", "serve",
		"Run mode (serve, batch, split, cleanup, analyze, backfill, trends, assign, classify)")
	messageID := flag.Int64("message", 0, "Message id for assign/classify modes")

	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	logger := newLogger(cfg.AppEnv)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	database, err := db.New(ctx, cfg.PostgresDSN, &logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to connect to database")
	}
	defer database.Close()

	if err := database.Migrate(ctx); err != nil {
		logger.Fatal().Err(err).Msg("failed to run migrations")
	}

	application := app.New(cfg, database, &logger)

	if err := runMode(ctx, application, *mode, *messageID); err != nil {
		if errors.Is(err, context.Canceled) {
			logger.Info().Msg("application stopped")
			return
		}

		logger.Fatal().Err(err).Msg("application error")
	}
}

func runMode(ctx context.Context, application *app.App, mode string, messageID int64) error {
	switch mode {
	case "serve":
		go func() {
			if err := application.StartHealthServer(ctx); err != nil {
				log.Printf("health check server error: %v", err)
			}
		}()

		return application.RunMaintenanceLoop(ctx)
	case "batch":
		return application.RunBatch(ctx)
	case "split":
		return application.RunSplit(ctx)
	case "cleanup":
		return application.RunCleanup(ctx)
	case "analyze":
		return application.RunAnalyze(ctx)
	case "backfill":
		return application.RunBackfill(ctx)
	case "trends":
		return application.RunTrends(ctx)
	case "assign":
		if messageID == 0 {
			return errors.New("assign mode requires -message")
		}

		return application.RunAssign(ctx, messageID)
	case "classify":
		if messageID == 0 {
			return errors.New("classify mode requires -message")
		}

		return application.RunClassify(ctx, messageID)
	default:
		return fmt.Errorf("unknown mode: %s", mode)
	}
}

func newLogger(appEnv string) zerolog.Logger {
	if appEnv == "local" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).With().Timestamp().Logger()
	}

	return zerolog.New(os.Stderr).With().Timestamp().Logger()
}
