// Package main contains the entrypoint for the chat ingestion and reply
// engine.
package main

import (
	"context"
	"errors"
	"flag"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/caixaflow/caixabot/internal/ai"
	"github.com/caixaflow/caixabot/internal/api"
	"github.com/caixaflow/caixabot/internal/bot"
	"github.com/caixaflow/caixabot/internal/config"
	"github.com/caixaflow/caixabot/internal/database"
	"github.com/caixaflow/caixabot/internal/logger"

	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	exitCode := run(ctx)
	stop() // Ensure context cancellation is signaled before exit
	os.Exit(exitCode)
}

// run initializes all application components (config, logger, db, engine,
// HTTP server), blocks until shutdown, and returns an exit code (0 for
// success, 1 for failure).
func run(ctx context.Context) int {
	configPath := flag.String("config", "./config.yaml", "Path to configuration file")
	flag.Parse()

	cfg, err := config.LoadConfig(*configPath)
	if err != nil {
		slog.Error("Failed to load configuration", "path", *configPath, "error", err)
		return 1
	}

	log := logger.NewLogger(cfg.Log.Level, cfg.Log.JSON)
	slog.SetDefault(log)
	log.Info("Logger initialized", "level", cfg.Log.Level, "json", cfg.Log.JSON)

	db, err := database.NewDB(cfg.Database.Path)
	if err != nil {
		log.Error("Failed to connect to database", "path", cfg.Database.Path, "error", err)
		return 1
	}
	defer database.CloseDB(db) // Ensure DB is closed on function exit
	store := database.NewStore(db, log)

	// Built lazily so replacing bot settings can swap model and prompt
	// without restarting the process.
	newResponder := func(ctx context.Context, reply config.AIReplyConfig) (ai.Responder, error) {
		if cfg.AI.APIKey == "" {
			log.Warn("No AI API key configured, AI replies disabled")
			return nil, nil
		}
		return ai.NewResponder(ctx, cfg.AI, reply, log)
	}

	processor := bot.NewProcessor(log, store, nil, nil, cfg.Bot)
	engine := bot.NewBot(log, store, processor, cfg.Bot, newResponder)

	srv := api.NewServer(log, cfg.Server.Addr,
		api.NewWebhookHandler(log, engine),
		api.NewSettingsHandler(log, engine),
		api.NewTemplateHandler(log, store),
		api.NewConversationHandler(log, store),
		api.NewHealthHandler(engine, store),
	)

	log.Info("Starting engine...")
	runErr := engine.Run(ctx, srv) // Run blocks until context is cancelled or an error occurs
	log.Info("Engine run loop finished. Initiating shutdown...")

	if runErr != nil && !errors.Is(runErr, context.Canceled) {
		log.Error("Engine stopped due to error", "error", runErr)
		// Allow logs to flush before exiting on error
		time.Sleep(time.Second)
		return 1
	}

	log.Info("Engine stopped gracefully.")
	time.Sleep(time.Second)
	return 0
}
