package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// Statement represents a credit card statement extracted from an email
type Statement struct {
	ID                int64           `db:"id"`
	UserID            int64           `db:"user_id"`
	EmailID           int64           `db:"email_id"`
	ProviderMessageID string          `db:"provider_message_id"`
	CardLast4         string          `db:"card_last4"`
	Bank              string          `db:"bank"`
	StatementDate     time.Time       `db:"statement_date"`
	DueDate           time.Time       `db:"due_date"`
	TotalDue          decimal.Decimal `db:"total_due"`
	MinimumDue        decimal.Decimal `db:"minimum_due"`
	CreatedAt         time.Time       `db:"created_at"`
}
