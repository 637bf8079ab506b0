package models

import (
	"time"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"
)

// CategorizationMethod tells which rule produced a transaction's category
type CategorizationMethod string

const (
	MethodRule       CategorizationMethod = "rule"
	MethodHistorical CategorizationMethod = "historical"
	MethodHeuristic  CategorizationMethod = "heuristic"
)

// TransactionType is the direction of money movement
type TransactionType string

const (
	Debit  TransactionType = "debit"
	Credit TransactionType = "credit"
)

// Transaction represents a financial transaction extracted from an email
type Transaction struct {
	ID                   int64                `db:"id"`
	UserID               int64                `db:"user_id"`
	EmailID              int64                `db:"email_id"`            // Source RawEmail
	ProviderMessageID    string               `db:"provider_message_id"` // Part of the uniqueness key
	MerchantRaw          string               `db:"merchant_raw"`
	MerchantKey          string               `db:"merchant_key"`     // Normalized merchant, set by the categorizer
	VPA                  string               `db:"vpa"`              // UPI virtual payment address
	TransactionMode      string               `db:"transaction_mode"` // upi, card, netbanking, atm, ...
	Amount               decimal.Decimal      `db:"amount"`
	TransactionType      TransactionType      `db:"transaction_type"`
	TransactionDate      time.Time            `db:"transaction_date"`
	Category             string               `db:"category"`
	Subcategory          string               `db:"subcategory"`
	Confidence           float64              `db:"confidence"`
	CategorizationMethod CategorizationMethod `db:"categorization_method"`
	RequiresReview       bool                 `db:"requires_review"`
	CategoryMetadata     types.JSONText       `db:"category_metadata"`
	CardLast4            string               `db:"card_last4"`
	CardName             string               `db:"card_name"`
	ManuallyEdited       bool                 `db:"manually_edited"` // Reprocess never overwrites these
	CreatedAt            time.Time            `db:"created_at"`
	UpdatedAt            time.Time            `db:"updated_at"`
}

// CategoryUpdate is a manual or bulk category change
type CategoryUpdate struct {
	Category         string
	Subcategory      string
	CategoryMetadata types.JSONText
}
