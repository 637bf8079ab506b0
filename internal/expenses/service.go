// Package expenses applies user edits to transactions and rules.
package expenses

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/jmoiron/sqlx/types"

	"github.com/mixelka/expensesync/internal/categorizer"
	"github.com/mixelka/expensesync/internal/database"
	"github.com/mixelka/expensesync/pkg/models"
)

// ErrEmptyCategory is returned when an edit carries no category
var ErrEmptyCategory = errors.New("category is required")

// Store is the write side of transactions and merchant rules
type Store interface {
	GetTransaction(ctx context.Context, userID, id int64) (*models.Transaction, error)
	ListTransactions(ctx context.Context, filter database.TransactionFilter) ([]*models.Transaction, error)
	CountTransactions(ctx context.Context, filter database.TransactionFilter) (int, error)
	UpdateTransactionCategory(ctx context.Context, userID, id int64, upd models.CategoryUpdate) error
	BulkUpdateCategory(ctx context.Context, userID int64, ids []int64, upd models.CategoryUpdate) (int64, error)
	BulkCategorizeByMerchant(ctx context.Context, userID int64, merchantKey string, upd models.CategoryUpdate) (int64, error)
	UpsertRule(ctx context.Context, rule *models.MerchantRule) error
	FindAllRules(ctx context.Context, userID int64) ([]*models.MerchantRule, error)
}

// Invalidator drops cached aggregates of a user
type Invalidator interface {
	InvalidateUser(userID int64)
}

// Service applies category edits. Every successful mutation invalidates the
// user's analytics before returning.
type Service struct {
	store  Store
	cache  Invalidator
	logger *slog.Logger
}

// NewService creates an expenses service
func NewService(store Store, cache Invalidator, logger *slog.Logger) *Service {
	return &Service{
		store:  store,
		cache:  cache,
		logger: logger.With("component", "expenses"),
	}
}

// UpdateTransaction sets the category of one transaction. The edit is marked
// manual so reprocessing keeps it.
func (s *Service) UpdateTransaction(ctx context.Context, userID, id int64, upd models.CategoryUpdate) (*models.Transaction, error) {
	upd, err := normalize(upd)
	if err != nil {
		return nil, err
	}
	if err := s.store.UpdateTransactionCategory(ctx, userID, id, upd); err != nil {
		return nil, err
	}
	s.cache.InvalidateUser(userID)

	return s.store.GetTransaction(ctx, userID, id)
}

// Confirm accepts a transaction's current category as correct, taking it
// off the review queue.
func (s *Service) Confirm(ctx context.Context, userID, id int64) (*models.Transaction, error) {
	t, err := s.store.GetTransaction(ctx, userID, id)
	if err != nil {
		return nil, err
	}
	return s.UpdateTransaction(ctx, userID, id, models.CategoryUpdate{
		Category:         t.Category,
		Subcategory:      t.Subcategory,
		CategoryMetadata: types.JSONText(`{"source":"confirmed"}`),
	})
}

// BulkUpdate sets the category of several transactions
func (s *Service) BulkUpdate(ctx context.Context, userID int64, ids []int64, upd models.CategoryUpdate) (int64, error) {
	upd, err := normalize(upd)
	if err != nil {
		return 0, err
	}
	n, err := s.store.BulkUpdateCategory(ctx, userID, ids, upd)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.cache.InvalidateUser(userID)
	}
	return n, nil
}

// CategorizeMerchant stores a merchant rule and applies it to the merchant's
// existing transactions that were not edited by hand. Future syncs pick the
// rule up through the categorization context.
func (s *Service) CategorizeMerchant(ctx context.Context, userID int64, merchant string, upd models.CategoryUpdate) (int64, error) {
	key := categorizer.NormalizeMerchant(merchant)
	if key == "" {
		return 0, fmt.Errorf("merchant is required")
	}
	upd, err := normalize(upd)
	if err != nil {
		return 0, err
	}

	rule := &models.MerchantRule{
		UserID:           userID,
		Merchant:         key,
		Category:         upd.Category,
		Subcategory:      upd.Subcategory,
		CategoryMetadata: upd.CategoryMetadata,
	}
	if err := s.store.UpsertRule(ctx, rule); err != nil {
		return 0, err
	}
	// The rule is durable even if the bulk update below fails
	s.cache.InvalidateUser(userID)

	n, err := s.store.BulkCategorizeByMerchant(ctx, userID, key, upd)
	if err != nil {
		return 0, fmt.Errorf("rule saved but existing transactions were not updated: %w", err)
	}
	s.cache.InvalidateUser(userID)

	s.logger.Info("merchant categorized", "user_id", userID, "merchant", key, "category", upd.Category, "updated", n)
	return n, nil
}

// Rules lists a user's merchant rules
func (s *Service) Rules(ctx context.Context, userID int64) ([]*models.MerchantRule, error) {
	return s.store.FindAllRules(ctx, userID)
}

// ReviewQueue returns transactions flagged for review, newest first
func (s *Service) ReviewQueue(ctx context.Context, userID int64, limit int) ([]*models.Transaction, int, error) {
	flagged := true
	filter := database.TransactionFilter{UserID: userID, RequiresReview: &flagged, Limit: limit}

	total, err := s.store.CountTransactions(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	txs, err := s.store.ListTransactions(ctx, filter)
	if err != nil {
		return nil, 0, err
	}
	return txs, total, nil
}

func normalize(upd models.CategoryUpdate) (models.CategoryUpdate, error) {
	upd.Category = strings.TrimSpace(upd.Category)
	upd.Subcategory = strings.TrimSpace(upd.Subcategory)
	if upd.Category == "" {
		return upd, ErrEmptyCategory
	}
	if len(upd.CategoryMetadata) == 0 {
		upd.CategoryMetadata = types.JSONText(`{"source":"manual"}`)
	}
	return upd, nil
}
