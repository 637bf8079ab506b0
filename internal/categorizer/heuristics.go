package categorizer

import (
	"regexp"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mixelka/expensesync/pkg/models"
)

type keywordRule struct {
	keyword     string
	category    string
	subcategory string
}

func defaultKeywords() []keywordRule {
	return []keywordRule{
		{"swiggy", "Food & Dining", "Food Delivery"},
		{"zomato", "Food & Dining", "Food Delivery"},
		{"dominos", "Food & Dining", "Restaurants"},
		{"starbucks", "Food & Dining", "Cafes"},
		{"bigbasket", "Groceries", ""},
		{"blinkit", "Groceries", ""},
		{"zepto", "Groceries", ""},
		{"dmart", "Groceries", ""},
		{"uber", "Transport", "Ride Hailing"},
		{"ola", "Transport", "Ride Hailing"},
		{"rapido", "Transport", "Ride Hailing"},
		{"irctc", "Travel", "Trains"},
		{"makemytrip", "Travel", ""},
		{"indigo", "Travel", "Flights"},
		{"amazon", "Shopping", "Online"},
		{"flipkart", "Shopping", "Online"},
		{"myntra", "Shopping", "Apparel"},
		{"netflix", "Entertainment", "Streaming"},
		{"spotify", "Entertainment", "Streaming"},
		{"hotstar", "Entertainment", "Streaming"},
		{"bookmyshow", "Entertainment", "Movies"},
		{"airtel", "Bills & Utilities", "Telecom"},
		{"jio", "Bills & Utilities", "Telecom"},
		{"electricity", "Bills & Utilities", "Electricity"},
		{"bescom", "Bills & Utilities", "Electricity"},
		{"apollo", "Health", "Pharmacy"},
		{"pharmeasy", "Health", "Pharmacy"},
		{"hpcl", "Fuel", ""},
		{"bpcl", "Fuel", ""},
		{"indian oil", "Fuel", ""},
		{"zerodha", "Investments", ""},
		{"groww", "Investments", ""},
	}
}

var (
	// 10-digit phone number or a person-style handle on a UPI app
	personalVPA = regexp.MustCompile(`^(\d{10}|[a-z][a-z0-9._-]*)@(ybl|ibl|axl|okaxis|okhdfcbank|okicici|oksbi|paytm|upi|apl)$`)
	merchantVPA = regexp.MustCompile(`(merchant|pay|store|shop|biz|razorpay|cashfree|paytm-|bharatpe)`)

	smallTicket = decimal.NewFromInt(200)
)

// heuristic classifies by payment signals alone
func (c *Categorizer) heuristic(sig Signal) Result {
	merchant := NormalizeMerchant(sig.Merchant)
	vpa := strings.ToLower(strings.TrimSpace(sig.VPA))
	mode := strings.ToLower(strings.TrimSpace(sig.Mode))

	if sig.Type == models.Credit {
		if containsAny(merchant, "refund", "reversal", "cashback") {
			return heuristicResult("Refunds", "", 0.85, "credit_keyword")
		}
		return heuristicResult("Income", "", 0.6, "credit")
	}

	if mode == "atm" || containsAny(merchant, "atm", "cash withdrawal") {
		return heuristicResult("Cash Withdrawal", "", 0.9, "atm")
	}

	for _, k := range c.keywords {
		if matchesKeyword(merchant, k.keyword) || matchesKeyword(vpa, k.keyword) {
			res := heuristicResult(k.category, k.subcategory, 0.8, "merchant_keyword")
			res.CategoryMetadata = metadata(map[string]any{"signal": "merchant_keyword", "keyword": k.keyword})
			return res
		}
	}

	if vpa != "" {
		handle, _, _ := strings.Cut(vpa, "@")
		if personalVPA.MatchString(vpa) && !merchantVPA.MatchString(handle) {
			return heuristicResult("Transfers", "Person to Person", 0.6, "personal_vpa")
		}
		if sig.Amount.LessThan(smallTicket) {
			return heuristicResult("Miscellaneous", "Small UPI Payments", 0.4, "small_upi")
		}
	}

	if mode == "netbanking" || mode == "neft" || mode == "imps" || mode == "rtgs" {
		return heuristicResult("Transfers", "Bank Transfer", 0.5, "bank_transfer")
	}

	return heuristicResult("Uncategorized", "", 0.2, "default")
}

func heuristicResult(category, subcategory string, confidence float64, signal string) Result {
	return Result{
		Category:         category,
		Subcategory:      subcategory,
		Confidence:       confidence,
		CategoryMetadata: metadata(map[string]any{"signal": signal}),
	}
}

// matchesKeyword matches whole words so that "ola" does not hit "motorola"
func matchesKeyword(s, keyword string) bool {
	if s == "" {
		return false
	}
	idx := strings.Index(s, keyword)
	for idx >= 0 {
		end := idx + len(keyword)
		if (idx == 0 || !isWordByte(s[idx-1])) && (end == len(s) || !isWordByte(s[end])) {
			return true
		}
		next := strings.Index(s[idx+1:], keyword)
		if next < 0 {
			break
		}
		idx += next + 1
	}
	return false
}

func isWordByte(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= '0' && b <= '9'
}

func containsAny(s string, subs ...string) bool {
	for _, sub := range subs {
		if strings.Contains(s, sub) {
			return true
		}
	}
	return false
}
