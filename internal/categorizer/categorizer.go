// Package categorizer assigns spending categories to transactions using a
// fixed precedence: explicit merchant rule, then the merchant's historical
// category, then built-in payment-signal heuristics.
package categorizer

import (
	"encoding/json"

	"github.com/jmoiron/sqlx/types"
	"github.com/shopspring/decimal"

	"github.com/mixelka/expensesync/pkg/models"
)

const (
	ruleConfidence       = 1.0
	historicalConfidence = 0.9

	// DefaultReviewThreshold flags heuristic results below this confidence
	DefaultReviewThreshold = 0.7
)

// Signal is what a parser extracted about a transaction
type Signal struct {
	Merchant string
	VPA      string
	Mode     string
	Amount   decimal.Decimal
	Type     models.TransactionType
}

// SignalOf builds a Signal from a parsed transaction
func SignalOf(t *models.Transaction) Signal {
	return Signal{
		Merchant: t.MerchantRaw,
		VPA:      t.VPA,
		Mode:     t.TransactionMode,
		Amount:   t.Amount,
		Type:     t.TransactionType,
	}
}

// Result is the outcome of categorizing one transaction
type Result struct {
	Category         string
	Subcategory      string
	Confidence       float64
	Method           models.CategorizationMethod
	RequiresReview   bool
	CategoryMetadata types.JSONText
	MerchantKey      string
}

// Categorizer is immutable after construction
type Categorizer struct {
	reviewThreshold float64
	keywords        []keywordRule
}

// New creates a categorizer with the built-in heuristics
func New(reviewThreshold float64) *Categorizer {
	if reviewThreshold <= 0 || reviewThreshold > 1 {
		reviewThreshold = DefaultReviewThreshold
	}
	return &Categorizer{
		reviewThreshold: reviewThreshold,
		keywords:        defaultKeywords(),
	}
}

// Categorize classifies a signal. It never consults storage; everything it
// needs about the user is in ctx.
func (c *Categorizer) Categorize(sig Signal, ctx *Context) Result {
	key := MerchantKey(sig.Merchant, sig.VPA)

	if key != "" {
		if r, ok := ctx.rule(key); ok {
			meta := r.CategoryMetadata
			if len(meta) == 0 {
				meta = metadata(map[string]any{"rule": r.Merchant})
			}
			return Result{
				Category:         r.Category,
				Subcategory:      r.Subcategory,
				Confidence:       ruleConfidence,
				Method:           models.MethodRule,
				CategoryMetadata: meta,
				MerchantKey:      key,
			}
		}

		if h, ok := ctx.historical(key); ok {
			return Result{
				Category:    h.category,
				Subcategory: h.subcategory,
				Confidence:  historicalConfidence,
				Method:      models.MethodHistorical,
				CategoryMetadata: metadata(map[string]any{
					"matches": h.count,
					"seen":    h.total,
				}),
				MerchantKey: key,
			}
		}
	}

	res := c.heuristic(sig)
	res.MerchantKey = key
	res.Method = models.MethodHeuristic
	res.RequiresReview = res.Confidence < c.reviewThreshold
	return res
}

// Apply categorizes t in place
func (c *Categorizer) Apply(t *models.Transaction, ctx *Context) {
	res := c.Categorize(SignalOf(t), ctx)
	t.MerchantKey = res.MerchantKey
	t.Category = res.Category
	t.Subcategory = res.Subcategory
	t.Confidence = res.Confidence
	t.CategorizationMethod = res.Method
	t.RequiresReview = res.RequiresReview
	t.CategoryMetadata = res.CategoryMetadata
}

func metadata(pairs map[string]any) types.JSONText {
	b, err := json.Marshal(pairs)
	if err != nil {
		return types.JSONText("{}")
	}
	return types.JSONText(b)
}
