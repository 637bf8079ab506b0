package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mixelka/expensesync/pkg/models"
)

// TransactionFilter selects transactions for listing
type TransactionFilter struct {
	UserID         int64
	Range          *models.DateRange
	Category       string
	MerchantKey    string
	RequiresReview *bool
	Limit          int
	Offset         int
}

const upsertTransactionQuery = `
	INSERT INTO transactions (
		user_id, email_id, provider_message_id, merchant_raw, merchant_key, vpa, transaction_mode,
		amount, transaction_type, transaction_date, category, subcategory, confidence,
		categorization_method, requires_review, category_metadata, card_last4, card_name,
		manually_edited, created_at, updated_at
	) VALUES (
		:user_id, :email_id, :provider_message_id, :merchant_raw, :merchant_key, :vpa, :transaction_mode,
		:amount, :transaction_type, :transaction_date, :category, :subcategory, :confidence,
		:categorization_method, :requires_review, :category_metadata, :card_last4, :card_name,
		false, :created_at, :updated_at
	)
	ON CONFLICT(user_id, provider_message_id, merchant_raw, amount, transaction_date) DO UPDATE SET
		email_id = excluded.email_id,
		merchant_key = excluded.merchant_key,
		vpa = excluded.vpa,
		transaction_mode = excluded.transaction_mode,
		transaction_type = excluded.transaction_type,
		category = excluded.category,
		subcategory = excluded.subcategory,
		confidence = excluded.confidence,
		categorization_method = excluded.categorization_method,
		requires_review = excluded.requires_review,
		category_metadata = excluded.category_metadata,
		card_last4 = excluded.card_last4,
		card_name = excluded.card_name,
		updated_at = excluded.updated_at
	WHERE transactions.manually_edited = false
`

// UpsertTransactions inserts or recomputes transactions in one database
// transaction. Manually edited rows keep their category.
func (db *DB) UpsertTransactions(ctx context.Context, txs []*models.Transaction) (int, error) {
	if len(txs) == 0 {
		return 0, nil
	}

	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	stmt, err := tx.PrepareNamedContext(ctx, upsertTransactionQuery)
	if err != nil {
		return 0, fmt.Errorf("failed to prepare transaction upsert: %w", err)
	}
	defer stmt.Close()

	now := time.Now().UTC()
	for _, t := range txs {
		t.TransactionDate = t.TransactionDate.UTC()
		t.CreatedAt = now
		t.UpdatedAt = now
		if _, err := stmt.ExecContext(ctx, t); err != nil {
			return 0, fmt.Errorf("failed to upsert transaction: %w", err)
		}
	}

	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("failed to commit transactions: %w", err)
	}
	return len(txs), nil
}

// GetTransaction returns a user's transaction by ID
func (db *DB) GetTransaction(ctx context.Context, userID, id int64) (*models.Transaction, error) {
	var t models.Transaction
	err := db.GetContext(ctx, &t, `SELECT * FROM transactions WHERE id = ? AND user_id = ?`, id, userID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get transaction: %w", err)
	}
	return &t, nil
}

// ListTransactions returns transactions newest first
func (db *DB) ListTransactions(ctx context.Context, filter TransactionFilter) ([]*models.Transaction, error) {
	where, args := transactionWhere(filter)
	query := `SELECT * FROM transactions WHERE ` + where + ` ORDER BY transaction_date DESC, id DESC LIMIT ? OFFSET ?`
	args = append(args, pageLimit(filter.Limit), filter.Offset)

	var txs []*models.Transaction
	if err := db.SelectContext(ctx, &txs, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list transactions: %w", err)
	}
	return txs, nil
}

// CountTransactions counts transactions matching the filter
func (db *DB) CountTransactions(ctx context.Context, filter TransactionFilter) (int, error) {
	where, args := transactionWhere(filter)
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM transactions WHERE `+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count transactions: %w", err)
	}
	return n, nil
}

// UpdateTransactionCategory applies a manual edit to one transaction
func (db *DB) UpdateTransactionCategory(ctx context.Context, userID, id int64, upd models.CategoryUpdate) error {
	n, err := db.BulkUpdateCategory(ctx, userID, []int64{id}, upd)
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

// BulkUpdateCategory applies a manual edit to several transactions
func (db *DB) BulkUpdateCategory(ctx context.Context, userID int64, ids []int64, upd models.CategoryUpdate) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	query, args, err := sqlx.In(`
		UPDATE transactions
		SET category = ?, subcategory = ?, category_metadata = ?, categorization_method = ?,
			confidence = 1, requires_review = false, manually_edited = true, updated_at = ?
		WHERE user_id = ? AND id IN (?)
	`, upd.Category, upd.Subcategory, upd.CategoryMetadata, models.MethodRule, time.Now().UTC(), userID, ids)
	if err != nil {
		return 0, fmt.Errorf("failed to build bulk update: %w", err)
	}

	result, err := db.ExecContext(ctx, db.Rebind(query), args...)
	if err != nil {
		return 0, fmt.Errorf("failed to bulk update transactions: %w", err)
	}
	return result.RowsAffected()
}

// BulkCategorizeByMerchant applies a merchant rule to the merchant's existing
// transactions. Manual edits are left alone.
func (db *DB) BulkCategorizeByMerchant(ctx context.Context, userID int64, merchantKey string, upd models.CategoryUpdate) (int64, error) {
	result, err := db.ExecContext(ctx, `
		UPDATE transactions
		SET category = ?, subcategory = ?, category_metadata = ?, categorization_method = ?,
			confidence = 1, requires_review = false, updated_at = ?
		WHERE user_id = ? AND merchant_key = ? AND manually_edited = false
	`, upd.Category, upd.Subcategory, upd.CategoryMetadata, models.MethodRule, time.Now().UTC(), userID, merchantKey)
	if err != nil {
		return 0, fmt.Errorf("failed to categorize by merchant: %w", err)
	}
	return result.RowsAffected()
}

// MerchantHistory returns how often each merchant was assigned each category
// by a rule, a manual edit or historical inference.
func (db *DB) MerchantHistory(ctx context.Context, userID int64) ([]models.MerchantCategoryCount, error) {
	var rows []models.MerchantCategoryCount
	err := db.SelectContext(ctx, &rows, `
		SELECT merchant_key AS merchant, category, subcategory, COUNT(*) AS cnt
		FROM transactions
		WHERE user_id = ? AND merchant_key != '' AND category != '' AND categorization_method != ?
		GROUP BY merchant_key, category, subcategory
	`, userID, models.MethodHeuristic)
	if err != nil {
		return nil, fmt.Errorf("failed to load merchant history: %w", err)
	}
	return rows, nil
}

func transactionWhere(filter TransactionFilter) (string, []any) {
	conds := []string{"user_id = ?"}
	args := []any{filter.UserID}
	if filter.Range != nil {
		conds = append(conds, "transaction_date >= ?", "transaction_date < ?")
		args = append(args, filter.Range.From.UTC(), filter.Range.To.UTC())
	}
	if filter.Category != "" {
		conds = append(conds, "category = ?")
		args = append(args, filter.Category)
	}
	if filter.MerchantKey != "" {
		conds = append(conds, "merchant_key = ?")
		args = append(args, filter.MerchantKey)
	}
	if filter.RequiresReview != nil {
		conds = append(conds, "requires_review = ?")
		args = append(args, *filter.RequiresReview)
	}
	return strings.Join(conds, " AND "), args
}
