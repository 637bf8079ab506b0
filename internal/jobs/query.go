package jobs

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/mixelka/expensesync/internal/database"
	"github.com/mixelka/expensesync/pkg/models"
)

// DefaultKeywords are matched against email subjects on sync
var DefaultKeywords = []string{"debited", "credited", "transaction", "spent", "statement", "UPI"}

// LastSyncFinder finds the most recent completed sync
type LastSyncFinder interface {
	LastCompletedSync(ctx context.Context, userID int64, category string) (*models.SyncJob, error)
}

// QueryBuilder builds the provider search for a sync without an explicit
// query: incremental from the last completed sync, or a fixed lookback.
type QueryBuilder struct {
	jobs     LastSyncFinder
	keywords []string
	lookback time.Duration
	skew     time.Duration
	logger   *slog.Logger
}

// NewQueryBuilder creates a query builder
func NewQueryBuilder(jobs LastSyncFinder, keywords []string, lookback, skew time.Duration, logger *slog.Logger) *QueryBuilder {
	if len(keywords) == 0 {
		keywords = DefaultKeywords
	}
	if lookback <= 0 {
		lookback = 180 * 24 * time.Hour
	}
	return &QueryBuilder{
		jobs:     jobs,
		keywords: keywords,
		lookback: lookback,
		skew:     skew,
		logger:   logger.With("component", "sync_query"),
	}
}

// Build returns the search query for a user's next sync
func (q *QueryBuilder) Build(ctx context.Context, userID int64, category string) string {
	subject := q.subjectClause()

	last, err := q.jobs.LastCompletedSync(ctx, userID, category)
	switch {
	case err == nil && last.CompletedAt != nil:
		since := last.CompletedAt.Add(-q.skew)
		return fmt.Sprintf("%s after:%d", subject, since.Unix())
	case err != nil && !errors.Is(err, database.ErrNotFound):
		// A wider window only costs refetching emails that dedup away
		q.logger.Warn("failed to load last sync, using full lookback", "user_id", userID, "error", err)
	}

	days := int(math.Ceil(q.lookback.Hours() / 24))
	return fmt.Sprintf("%s newer_than:%dd", subject, days)
}

func (q *QueryBuilder) subjectClause() string {
	terms := make([]string, 0, len(q.keywords))
	for _, k := range q.keywords {
		k = strings.TrimSpace(k)
		if k == "" {
			continue
		}
		if strings.ContainsAny(k, " \t") {
			k = `"` + k + `"`
		}
		terms = append(terms, k)
	}
	return "subject:(" + strings.Join(terms, " OR ") + ")"
}
