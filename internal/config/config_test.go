package config

import (
	"strings"
	"testing"
	"time"
)

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("TELEGRAM_BOT_TOKEN", "123:abc")
	t.Setenv("ENCRYPTION_KEY", strings.Repeat("x", 32))
}

func TestLoadDefaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.SyncBatchSize != 100 || cfg.ReprocessBatchSize != 20 || cfg.SyncEmailConcurrency != 8 {
		t.Fatalf("got batch sizes %d/%d/%d, want 100/20/8", cfg.SyncBatchSize, cfg.ReprocessBatchSize, cfg.SyncEmailConcurrency)
	}
	if cfg.SyncLookback != 180*24*time.Hour {
		t.Fatalf("got lookback %s, want 180 days", cfg.SyncLookback)
	}
	if cfg.SyncSkewOffset != 10*time.Minute || cfg.AnalyticsCacheTTL != time.Minute {
		t.Fatalf("got skew %s ttl %s", cfg.SyncSkewOffset, cfg.AnalyticsCacheTTL)
	}
	if !cfg.PostSyncParse || cfg.DeferParsing {
		t.Fatalf("got post-sync %v defer %v, want true false", cfg.PostSyncParse, cfg.DeferParsing)
	}
	if cfg.EmailCategory != "expenses" || len(cfg.SyncKeywords) != 0 {
		t.Fatalf("got category %q keywords %v", cfg.EmailCategory, cfg.SyncKeywords)
	}
}

func TestLoadOverrides(t *testing.T) {
	setRequired(t)
	t.Setenv("SYNC_KEYWORDS", "debited,transaction alert")
	t.Setenv("JOB_WORKERS", "4")
	t.Setenv("DEFER_PARSING", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if len(cfg.SyncKeywords) != 2 || cfg.SyncKeywords[1] != "transaction alert" {
		t.Fatalf("got keywords %q", cfg.SyncKeywords)
	}
	if cfg.JobWorkers != 4 || !cfg.DeferParsing {
		t.Fatalf("got workers %d defer %v", cfg.JobWorkers, cfg.DeferParsing)
	}
}

func TestLoadValidation(t *testing.T) {
	tests := []struct {
		name string
		key  string
		val  string
	}{
		{"short key", "ENCRYPTION_KEY", "short"},
		{"zero batch", "SYNC_BATCH_SIZE", "0"},
		{"threshold", "REVIEW_THRESHOLD", "1.5"},
		{"log format", "LOG_FORMAT", "xml"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.val)
			if _, err := Load(); err == nil || !strings.Contains(err.Error(), tt.key) {
				t.Fatalf("got %v, want error naming %s", err, tt.key)
			}
		})
	}
}

func TestLoadRequiresToken(t *testing.T) {
	t.Setenv("TELEGRAM_BOT_TOKEN", "")
	t.Setenv("ENCRYPTION_KEY", strings.Repeat("x", 32))
	if _, err := Load(); err == nil {
		t.Fatal("expected error without TELEGRAM_BOT_TOKEN")
	}
}
