package categorizer

import (
	"sort"
	"strings"

	"github.com/mixelka/expensesync/pkg/models"
)

// Context is the per-job categorization state: explicit merchant rules and
// the historical category of each merchant. It is built once per job run and
// is read-only afterwards, so concurrent workers may share it.
type Context struct {
	rules   map[string]*models.MerchantRule
	history map[string]inferred
}

type inferred struct {
	category    string
	subcategory string
	count       int
	total       int
}

// NewContext indexes rules and history by normalized merchant
func NewContext(rules []*models.MerchantRule, history []models.MerchantCategoryCount) *Context {
	c := &Context{
		rules:   make(map[string]*models.MerchantRule, len(rules)),
		history: make(map[string]inferred),
	}
	for _, r := range rules {
		key := NormalizeMerchant(r.Merchant)
		if key == "" {
			continue
		}
		c.rules[key] = r
	}

	// Deterministic pick of the most common category: ties go to the
	// lexicographically smaller category.
	sorted := append([]models.MerchantCategoryCount(nil), history...)
	sort.Slice(sorted, func(i, j int) bool {
		if sorted[i].Category != sorted[j].Category {
			return sorted[i].Category < sorted[j].Category
		}
		return sorted[i].Subcategory < sorted[j].Subcategory
	})
	for _, h := range sorted {
		key := NormalizeMerchant(h.Merchant)
		if key == "" || h.Category == "" {
			continue
		}
		cur := c.history[key]
		cur.total += h.Count
		if h.Count > cur.count {
			cur.category, cur.subcategory, cur.count = h.Category, h.Subcategory, h.Count
		}
		c.history[key] = cur
	}
	return c
}

// Rules returns the number of indexed merchant rules
func (c *Context) Rules() int { return len(c.rules) }

func (c *Context) rule(key string) (*models.MerchantRule, bool) {
	if c == nil {
		return nil, false
	}
	r, ok := c.rules[key]
	return r, ok
}

func (c *Context) historical(key string) (inferred, bool) {
	if c == nil {
		return inferred{}, false
	}
	h, ok := c.history[key]
	return h, ok
}

// NormalizeMerchant lowercases and collapses whitespace
func NormalizeMerchant(s string) string {
	return strings.Join(strings.Fields(strings.ToLower(s)), " ")
}

// MerchantKey is the lookup key of a transaction: its merchant name, or its
// VPA when the email carried no merchant name.
func MerchantKey(merchant, vpa string) string {
	if key := NormalizeMerchant(merchant); key != "" {
		return key
	}
	return NormalizeMerchant(vpa)
}
