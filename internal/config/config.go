package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/caarlos0/env/v11"
	"github.com/joho/godotenv"
)

// Config application configuration
type Config struct {
	// Telegram
	TelegramToken string `env:"TELEGRAM_BOT_TOKEN,required,notEmpty"`

	// Database
	DatabasePath string `env:"DATABASE_PATH" envDefault:"./data/expensesync.db"`

	// Email
	IMAPDialTimeout time.Duration `env:"IMAP_DIAL_TIMEOUT" envDefault:"30s"`
	EmailCategory   string        `env:"EMAIL_CATEGORY" envDefault:"expenses"`

	// Sync
	SyncBatchSize        int           `env:"SYNC_BATCH_SIZE" envDefault:"100"`
	ReprocessBatchSize   int           `env:"REPROCESS_BATCH_SIZE" envDefault:"20"`
	SyncEmailConcurrency int           `env:"SYNC_EMAIL_CONCURRENCY" envDefault:"8"`
	SyncLookback         time.Duration `env:"SYNC_LOOKBACK" envDefault:"4320h"` // 180 days
	SyncSkewOffset       time.Duration `env:"SYNC_SKEW_OFFSET" envDefault:"10m"`
	SyncKeywords         []string      `env:"SYNC_KEYWORDS" envSeparator:","` // empty means built-in list
	DeferParsing         bool          `env:"DEFER_PARSING" envDefault:"false"`
	PostSyncParse        bool          `env:"POST_SYNC_PARSE" envDefault:"true"`
	PostSyncMaxWait      time.Duration `env:"POST_SYNC_MAX_WAIT" envDefault:"30m"`

	// Jobs
	JobWorkers   int `env:"JOB_WORKERS" envDefault:"2"`
	JobQueueSize int `env:"JOB_QUEUE_SIZE" envDefault:"64"`

	// Analytics
	AnalyticsCacheTTL time.Duration `env:"ANALYTICS_CACHE_TTL" envDefault:"60s"`
	ReviewThreshold   float64       `env:"REVIEW_THRESHOLD" envDefault:"0.7"`
	CardsFile         string        `env:"CARDS_FILE"` // YAML card catalog, built-in if empty

	// Security
	EncryptionKey string `env:"ENCRYPTION_KEY,required,notEmpty"`

	// Logging
	LogLevel  string `env:"LOG_LEVEL" envDefault:"info"`
	LogFormat string `env:"LOG_FORMAT" envDefault:"text"` // "json" or "text"
}

// Load loads configuration from environment variables
func Load() (*Config, error) {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	cfg, err := env.ParseAs[Config]()
	if err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate checks value ranges that struct tags cannot express
func (c *Config) Validate() error {
	var errs []error

	// 32 bytes for AES-256
	if len(c.EncryptionKey) != 32 {
		errs = append(errs, fmt.Errorf("ENCRYPTION_KEY must be exactly 32 bytes, got %d", len(c.EncryptionKey)))
	}

	positive := map[string]int{
		"SYNC_BATCH_SIZE":        c.SyncBatchSize,
		"REPROCESS_BATCH_SIZE":   c.ReprocessBatchSize,
		"SYNC_EMAIL_CONCURRENCY": c.SyncEmailConcurrency,
		"JOB_WORKERS":            c.JobWorkers,
		"JOB_QUEUE_SIZE":         c.JobQueueSize,
	}
	for name, v := range positive {
		if v <= 0 {
			errs = append(errs, fmt.Errorf("%s must be positive, got %d", name, v))
		}
	}

	if c.SyncLookback <= 0 {
		errs = append(errs, fmt.Errorf("SYNC_LOOKBACK must be positive, got %s", c.SyncLookback))
	}
	if c.SyncSkewOffset < 0 {
		errs = append(errs, fmt.Errorf("SYNC_SKEW_OFFSET must not be negative, got %s", c.SyncSkewOffset))
	}
	if c.ReviewThreshold <= 0 || c.ReviewThreshold > 1 {
		errs = append(errs, fmt.Errorf("REVIEW_THRESHOLD must be in (0, 1], got %v", c.ReviewThreshold))
	}
	if strings.TrimSpace(c.EmailCategory) == "" {
		errs = append(errs, errors.New("EMAIL_CATEGORY must not be empty"))
	}
	switch c.LogFormat {
	case "text", "json":
	default:
		errs = append(errs, fmt.Errorf("LOG_FORMAT must be text or json, got %q", c.LogFormat))
	}

	return errors.Join(errs...)
}
