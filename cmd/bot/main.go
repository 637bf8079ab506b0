package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/lmittmann/tint"

	"github.com/mixelka/expensesync/internal/analytics"
	"github.com/mixelka/expensesync/internal/cards"
	"github.com/mixelka/expensesync/internal/categorizer"
	"github.com/mixelka/expensesync/internal/config"
	"github.com/mixelka/expensesync/internal/database"
	"github.com/mixelka/expensesync/internal/email"
	"github.com/mixelka/expensesync/internal/expenses"
	"github.com/mixelka/expensesync/internal/formatter"
	"github.com/mixelka/expensesync/internal/ingest"
	"github.com/mixelka/expensesync/internal/jobs"
	"github.com/mixelka/expensesync/internal/parser"
	"github.com/mixelka/expensesync/internal/secret"
	"github.com/mixelka/expensesync/internal/telegram"
)

const (
	shutdownTimeout = 30 * time.Second
	janitorInterval = 5 * time.Minute
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}

	// Setup logger
	logger := setupLogger(cfg.LogLevel, cfg.LogFormat)
	logger.Info("starting expense sync bot")

	// Connect to database
	db, err := database.New(cfg.DatabasePath)
	if err != nil {
		logger.Error("failed to connect to database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	// Run migrations
	ctx := context.Background()
	if err := db.Migrate(ctx); err != nil {
		logger.Error("failed to run migrations", "error", err)
		os.Exit(1)
	}
	logger.Info("database migrations completed")

	catalog := cards.DefaultCatalog()
	if cfg.CardsFile != "" {
		catalog, err = cards.LoadCatalog(cfg.CardsFile)
		if err != nil {
			logger.Error("failed to load card catalog", "path", cfg.CardsFile, "error", err)
			os.Exit(1)
		}
	}
	cardResolver := cards.NewResolver(catalog, logger)
	logger.Info("card catalog loaded", "cards", len(catalog))

	box, err := secret.New([]byte(cfg.EncryptionKey))
	if err != nil {
		logger.Error("failed to create password cipher", "error", err)
		os.Exit(1)
	}

	// Analytics
	cache := analytics.NewCache(cfg.AnalyticsCacheTTL)
	analyticsService := analytics.NewService(analytics.Deps{
		Store:    db,
		Cache:    cache,
		Resolver: cardResolver,
		Engine:   cards.NewEngine(cardResolver, db),
		Logger:   logger,
	})

	// Ingestion
	emailManager := email.NewManager(db, box.Decrypt, cfg.IMAPDialTimeout, logger)
	batcher := ingest.NewBatcher(ingest.Deps{
		Provider:     emailManager,
		Emails:       db,
		Transactions: db,
		Statements:   db,
		Parsers:      parser.Default(),
		Categorizer:  categorizer.New(cfg.ReviewThreshold),
		Cards:        cardResolver,
		Logger:       logger,
		Options: ingest.Options{
			SyncBatchSize:      cfg.SyncBatchSize,
			ReprocessBatchSize: cfg.ReprocessBatchSize,
			Concurrency:        cfg.SyncEmailConcurrency,
			DeferParsing:       cfg.DeferParsing,
		},
	})

	orchestrator := jobs.New(jobs.Deps{
		Store:    db,
		Contexts: db,
		Ingester: batcher,
		Cache:    cache,
		Queries:  jobs.NewQueryBuilder(db, cfg.SyncKeywords, cfg.SyncLookback, cfg.SyncSkewOffset, logger),
		Logger:   logger,
		Options: jobs.Options{
			Workers:         cfg.JobWorkers,
			QueueSize:       cfg.JobQueueSize,
			Category:        cfg.EmailCategory,
			PostSyncParse:   cfg.PostSyncParse,
			PostSyncMaxWait: cfg.PostSyncMaxWait,
		},
	})
	orchestrator.Start()

	// Create bot
	bot, err := telegram.NewBot(telegram.BotDeps{
		Token:      cfg.TelegramToken,
		Accounts:   db,
		Mail:       emailManager,
		Servers:    email.NewResolver(3 * time.Second),
		Secrets:    box,
		Jobs:       orchestrator,
		Analytics:  analyticsService,
		Expenses:   expenses.NewService(db, cache, logger),
		Formatter:  formatter.NewTelegramFormatter(),
		Logger:     logger,
		NotifyWait: cfg.PostSyncMaxWait,
	})
	if err != nil {
		logger.Error("failed to create bot", "error", err)
		os.Exit(1)
	}

	// Setup graceful shutdown
	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	go analyticsService.RunJanitor(ctx, janitorInterval)

	// Start bot
	logger.Info("bot is running, press Ctrl+C to stop")
	bot.Start(ctx)

	logger.Info("shutting down...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := orchestrator.Shutdown(shutdownCtx); err != nil {
		logger.Warn("job workers did not drain in time", "error", err)
	}
	emailManager.StopAll()

	logger.Info("bot stopped")
}

func setupLogger(level, format string) *slog.Logger {
	var handler slog.Handler
	logLevel := parseLevel(level)

	if format == "json" {
		handler = slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
			Level: logLevel,
		})
	} else {
		// Pretty colored output for console
		handler = tint.NewHandler(os.Stdout, &tint.Options{
			Level:      logLevel,
			TimeFormat: time.DateTime,
		})
	}

	return slog.New(handler)
}

func parseLevel(level string) slog.Level {
	switch level {
	case "debug":
		return slog.LevelDebug
	case "warn":
		return slog.LevelWarn
	case "error":
		return slog.LevelError
	default:
		return slog.LevelInfo
	}
}
