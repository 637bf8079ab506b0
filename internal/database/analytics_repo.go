package database

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/mixelka/expensesync/pkg/models"
)

// Aggregations only count debits. Day and weekday buckets are shifted by the
// UTC offset of the range start so that they follow the user's calendar.

// SpendByCategory aggregates spend per category
func (db *DB) SpendByCategory(ctx context.Context, userID int64, r models.DateRange) ([]models.CategorySpend, error) {
	var rows []models.CategorySpend
	err := db.SelectContext(ctx, &rows, `
		SELECT category, subcategory, ROUND(COALESCE(SUM(amount), 0), 2) AS total, COUNT(*) AS cnt
		FROM transactions
		WHERE user_id = ? AND transaction_type = ? AND transaction_date >= ? AND transaction_date < ?
		GROUP BY category, subcategory
		ORDER BY total DESC
	`, userID, models.Debit, r.From.UTC(), r.To.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate spend by category: %w", err)
	}
	return rows, nil
}

// SpendByMode aggregates spend per transaction mode
func (db *DB) SpendByMode(ctx context.Context, userID int64, r models.DateRange) ([]models.ModeSpend, error) {
	var rows []models.ModeSpend
	err := db.SelectContext(ctx, &rows, `
		SELECT transaction_mode AS mode, ROUND(COALESCE(SUM(amount), 0), 2) AS total, COUNT(*) AS cnt
		FROM transactions
		WHERE user_id = ? AND transaction_type = ? AND transaction_date >= ? AND transaction_date < ?
		GROUP BY transaction_mode
		ORDER BY total DESC
	`, userID, models.Debit, r.From.UTC(), r.To.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate spend by mode: %w", err)
	}
	return rows, nil
}

// SpendByCard aggregates spend per card
func (db *DB) SpendByCard(ctx context.Context, userID int64, r models.DateRange) ([]models.CardSpend, error) {
	var rows []models.CardSpend
	err := db.SelectContext(ctx, &rows, `
		SELECT card_last4, ROUND(COALESCE(SUM(amount), 0), 2) AS total, COUNT(*) AS cnt
		FROM transactions
		WHERE user_id = ? AND transaction_type = ? AND card_last4 != ''
			AND transaction_date >= ? AND transaction_date < ?
		GROUP BY card_last4
		ORDER BY total DESC
	`, userID, models.Debit, r.From.UTC(), r.To.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate spend by card: %w", err)
	}
	return rows, nil
}

// SpendByWeekday aggregates spend per day of week
func (db *DB) SpendByWeekday(ctx context.Context, userID int64, r models.DateRange) ([]models.WeekdaySpend, error) {
	var rows []models.WeekdaySpend
	err := db.SelectContext(ctx, &rows, `
		SELECT CAST(strftime('%w', transaction_date, ?) AS INTEGER) AS weekday,
			ROUND(COALESCE(SUM(amount), 0), 2) AS total, COUNT(*) AS cnt
		FROM transactions
		WHERE user_id = ? AND transaction_type = ? AND transaction_date >= ? AND transaction_date < ?
		GROUP BY weekday
		ORDER BY weekday
	`, offsetModifier(r.From), userID, models.Debit, r.From.UTC(), r.To.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate spend by weekday: %w", err)
	}
	return rows, nil
}

// DailySpend returns spend per calendar day in ascending order
func (db *DB) DailySpend(ctx context.Context, userID int64, r models.DateRange) ([]models.DailySpend, error) {
	var rows []models.DailySpend
	err := db.SelectContext(ctx, &rows, `
		SELECT date(transaction_date, ?) AS day, ROUND(COALESCE(SUM(amount), 0), 2) AS total
		FROM transactions
		WHERE user_id = ? AND transaction_type = ? AND transaction_date >= ? AND transaction_date < ?
		GROUP BY day
		ORDER BY day
	`, offsetModifier(r.From), userID, models.Debit, r.From.UTC(), r.To.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to aggregate daily spend: %w", err)
	}
	return rows, nil
}

// PeriodTotals sums debits and credits over a range
func (db *DB) PeriodTotals(ctx context.Context, userID int64, r models.DateRange) (models.PeriodTotals, error) {
	var totals models.PeriodTotals
	err := db.GetContext(ctx, &totals, `
		SELECT
			ROUND(COALESCE(SUM(CASE WHEN transaction_type = ? THEN amount END), 0), 2) AS debits,
			ROUND(COALESCE(SUM(CASE WHEN transaction_type = ? THEN amount END), 0), 2) AS credits,
			COUNT(*) AS cnt
		FROM transactions
		WHERE user_id = ? AND transaction_date >= ? AND transaction_date < ?
	`, models.Debit, models.Credit, userID, r.From.UTC(), r.To.UTC())
	if err != nil {
		return models.PeriodTotals{}, fmt.Errorf("failed to compute period totals: %w", err)
	}
	return totals, nil
}

// TopMerchants returns the merchants with the highest spend
func (db *DB) TopMerchants(ctx context.Context, userID int64, r models.DateRange, limit int) ([]models.MerchantSpend, error) {
	var rows []models.MerchantSpend
	err := db.SelectContext(ctx, &rows, `
		SELECT MIN(merchant_raw) AS merchant, ROUND(COALESCE(SUM(amount), 0), 2) AS total, COUNT(*) AS cnt
		FROM transactions
		WHERE user_id = ? AND transaction_type = ? AND merchant_key != ''
			AND transaction_date >= ? AND transaction_date < ?
		GROUP BY merchant_key
		ORDER BY total DESC
		LIMIT ?
	`, userID, models.Debit, r.From.UTC(), r.To.UTC(), pageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get top merchants: %w", err)
	}
	return rows, nil
}

// LargestTransactions returns the biggest debits in a range
func (db *DB) LargestTransactions(ctx context.Context, userID int64, r models.DateRange, limit int) ([]*models.Transaction, error) {
	var txs []*models.Transaction
	err := db.SelectContext(ctx, &txs, `
		SELECT * FROM transactions
		WHERE user_id = ? AND transaction_type = ? AND transaction_date >= ? AND transaction_date < ?
		ORDER BY amount DESC, id ASC
		LIMIT ?
	`, userID, models.Debit, r.From.UTC(), r.To.UTC(), pageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to get largest transactions: %w", err)
	}
	return txs, nil
}

// CardDailySpend returns per-card, per-day spend for a set of cards over one
// covering range, in a single query.
func (db *DB) CardDailySpend(ctx context.Context, userID int64, cards []string, r models.DateRange) ([]models.CardDailySpend, error) {
	if len(cards) == 0 {
		return nil, nil
	}
	query, args, err := sqlx.In(`
		SELECT card_last4, date(transaction_date, ?) AS day, ROUND(COALESCE(SUM(amount), 0), 2) AS total
		FROM transactions
		WHERE user_id = ? AND transaction_type = ? AND card_last4 IN (?)
			AND transaction_date >= ? AND transaction_date < ?
		GROUP BY card_last4, day
		ORDER BY card_last4, day
	`, offsetModifier(r.From), userID, models.Debit, cards, r.From.UTC(), r.To.UTC())
	if err != nil {
		return nil, fmt.Errorf("failed to build card spend query: %w", err)
	}

	var rows []models.CardDailySpend
	if err := db.SelectContext(ctx, &rows, db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("failed to get card spend: %w", err)
	}
	return rows, nil
}

// offsetModifier is an SQLite date modifier shifting UTC into t's zone
func offsetModifier(t time.Time) string {
	_, offset := t.Zone()
	return fmt.Sprintf("%+d seconds", offset)
}
