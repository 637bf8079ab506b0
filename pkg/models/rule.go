package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
)

// MerchantRule is a user-authored merchant to category mapping
type MerchantRule struct {
	ID               int64          `db:"id"`
	UserID           int64          `db:"user_id"`
	Merchant         string         `db:"merchant"` // Normalized, matched case-insensitively
	Category         string         `db:"category"`
	Subcategory      string         `db:"subcategory"`
	CategoryMetadata types.JSONText `db:"category_metadata"`
	CreatedAt        time.Time      `db:"created_at"`
	UpdatedAt        time.Time      `db:"updated_at"`
}

// MerchantCategoryCount is one row of a user's categorization history
type MerchantCategoryCount struct {
	Merchant    string `db:"merchant"`
	Category    string `db:"category"`
	Subcategory string `db:"subcategory"`
	Count       int    `db:"cnt"`
}
