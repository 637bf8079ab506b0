package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mixelka/expensesync/pkg/models"
)

// FindAllRules returns every merchant rule of a user
func (db *DB) FindAllRules(ctx context.Context, userID int64) ([]*models.MerchantRule, error) {
	var rules []*models.MerchantRule
	err := db.SelectContext(ctx, &rules, `SELECT * FROM merchant_rules WHERE user_id = ? ORDER BY merchant`, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get merchant rules: %w", err)
	}
	return rules, nil
}

// UpsertRule creates or replaces the rule for (user, merchant)
func (db *DB) UpsertRule(ctx context.Context, rule *models.MerchantRule) error {
	now := time.Now().UTC()
	_, err := db.ExecContext(ctx, `
		INSERT INTO merchant_rules (user_id, merchant, category, subcategory, category_metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, merchant) DO UPDATE SET
			category = excluded.category,
			subcategory = excluded.subcategory,
			category_metadata = excluded.category_metadata,
			updated_at = excluded.updated_at
	`, rule.UserID, rule.Merchant, rule.Category, rule.Subcategory, rule.CategoryMetadata, now, now)
	if err != nil {
		return fmt.Errorf("failed to upsert merchant rule: %w", err)
	}
	rule.UpdatedAt = now
	return nil
}
