package models

import (
	"time"

	"github.com/shopspring/decimal"
)

// DateRange is a half-open [From, To) window
type DateRange struct {
	From time.Time `json:"from"`
	To   time.Time `json:"to"`
}

// Contains reports whether t falls inside the range
func (r DateRange) Contains(t time.Time) bool {
	return !t.Before(r.From) && t.Before(r.To)
}

// CategorySpend is spend aggregated by category
type CategorySpend struct {
	Category    string          `db:"category"`
	Subcategory string          `db:"subcategory"`
	Total       decimal.Decimal `db:"total"`
	Count       int             `db:"cnt"`
}

// ModeSpend is spend aggregated by transaction mode
type ModeSpend struct {
	Mode  string          `db:"mode"`
	Total decimal.Decimal `db:"total"`
	Count int             `db:"cnt"`
}

// CardSpend is spend aggregated by card, enriched after the query
type CardSpend struct {
	CardLast4 string          `db:"card_last4"`
	Total     decimal.Decimal `db:"total"`
	Count     int             `db:"cnt"`
	CardName  string          `db:"-"`
	Bank      string          `db:"-"`
	Icon      string          `db:"-"`
}

// WeekdaySpend is spend aggregated by day of week (0 = Sunday)
type WeekdaySpend struct {
	Weekday int             `db:"weekday"`
	Total   decimal.Decimal `db:"total"`
	Count   int             `db:"cnt"`
}

// DailySpend is spend for one calendar day
type DailySpend struct {
	Day        string          `db:"day"` // YYYY-MM-DD
	Total      decimal.Decimal `db:"total"`
	Cumulative decimal.Decimal `db:"-"`
}

// CardDailySpend is spend for one card on one day
type CardDailySpend struct {
	CardLast4 string          `db:"card_last4"`
	Day       string          `db:"day"` // YYYY-MM-DD
	Total     decimal.Decimal `db:"total"`
}

// PeriodTotals summarises debits and credits over a range
type PeriodTotals struct {
	Debits  decimal.Decimal `db:"debits"`
	Credits decimal.Decimal `db:"credits"`
	Count   int             `db:"cnt"`
}

// MerchantSpend is spend aggregated by merchant
type MerchantSpend struct {
	Merchant string          `db:"merchant"`
	Total    decimal.Decimal `db:"total"`
	Count    int             `db:"cnt"`
}
