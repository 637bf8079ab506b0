package categorizer

import (
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mixelka/expensesync/pkg/models"
)

func debit(merchant, vpa, mode string, amount int64) Signal {
	return Signal{
		Merchant: merchant,
		VPA:      vpa,
		Mode:     mode,
		Amount:   decimal.NewFromInt(amount),
		Type:     models.Debit,
	}
}

func TestExplicitRuleBeatsHistory(t *testing.T) {
	ctx := NewContext(
		[]*models.MerchantRule{{Merchant: "  Swiggy ", Category: "Office Meals", Subcategory: "Team"}},
		[]models.MerchantCategoryCount{{Merchant: "swiggy", Category: "Food & Dining", Count: 40}},
	)
	c := New(0.7)

	got := c.Categorize(debit("SWIGGY", "", "upi", 450), ctx)
	if got.Category != "Office Meals" || got.Subcategory != "Team" {
		t.Fatalf("got %q/%q, want Office Meals/Team", got.Category, got.Subcategory)
	}
	if got.Method != models.MethodRule {
		t.Fatalf("got method %q, want rule", got.Method)
	}
	if got.RequiresReview {
		t.Fatal("rule result should not require review")
	}
	if got.MerchantKey != "swiggy" {
		t.Fatalf("got merchant key %q, want swiggy", got.MerchantKey)
	}
}

func TestHistoryBeatsHeuristic(t *testing.T) {
	ctx := NewContext(nil, []models.MerchantCategoryCount{
		{Merchant: "uber india", Category: "Business Travel", Count: 5},
		{Merchant: "uber india", Category: "Transport", Subcategory: "Ride Hailing", Count: 2},
	})
	got := New(0).Categorize(debit("Uber  India", "", "card", 300), ctx)
	if got.Category != "Business Travel" {
		t.Fatalf("got %q, want Business Travel", got.Category)
	}
	if got.Method != models.MethodHistorical {
		t.Fatalf("got method %q, want historical", got.Method)
	}
}

func TestHistoryTieBreakIsDeterministic(t *testing.T) {
	history := []models.MerchantCategoryCount{
		{Merchant: "cafe", Category: "Zeta", Count: 3},
		{Merchant: "cafe", Category: "Alpha", Count: 3},
	}
	for i := 0; i < 5; i++ {
		got := New(0).Categorize(debit("cafe", "", "", 10), NewContext(nil, history))
		if got.Category != "Alpha" {
			t.Fatalf("run %d: got %q, want Alpha", i, got.Category)
		}
	}
}

func TestVPAIsMerchantKeyWhenNameMissing(t *testing.T) {
	ctx := NewContext([]*models.MerchantRule{{Merchant: "landlord@okaxis", Category: "Rent"}}, nil)
	got := New(0).Categorize(debit("", "Landlord@OKAXIS", "upi", 25000), ctx)
	if got.Category != "Rent" || got.Method != models.MethodRule {
		t.Fatalf("got %q via %q, want Rent via rule", got.Category, got.Method)
	}
}

func TestHeuristics(t *testing.T) {
	c := New(0.7)
	tests := []struct {
		name       string
		sig        Signal
		category   string
		wantReview bool
	}{
		{"keyword in merchant", debit("Zomato Ltd", "", "card", 600), "Food & Dining", false},
		{"keyword in vpa", debit("", "uber.india@axisbank", "upi", 250), "Transport", false},
		{"keyword is whole word", debit("Motorola Store", "", "card", 9000), "Uncategorized", true},
		{"atm mode", debit("", "", "atm", 2000), "Cash Withdrawal", false},
		{"personal vpa", debit("", "9876543210@paytm", "upi", 1500), "Transfers", true},
		{"small unknown upi", debit("", "chaiwala.store@ybl", "upi", 30), "Miscellaneous", true},
		{"bank transfer", debit("", "", "neft", 10000), "Transfers", true},
		{"unknown", debit("ACME CORP", "", "card", 999), "Uncategorized", true},
		{"refund credit", Signal{Merchant: "Amazon Refund", Type: models.Credit, Amount: decimal.NewFromInt(10)}, "Refunds", false},
		{"plain credit", Signal{Merchant: "Employer", Type: models.Credit, Amount: decimal.NewFromInt(10)}, "Income", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := c.Categorize(tt.sig, NewContext(nil, nil))
			if got.Category != tt.category {
				t.Fatalf("got category %q, want %q", got.Category, tt.category)
			}
			if got.Method != models.MethodHeuristic {
				t.Fatalf("got method %q, want heuristic", got.Method)
			}
			if got.RequiresReview != tt.wantReview {
				t.Fatalf("got requiresReview %v (confidence %.2f), want %v", got.RequiresReview, got.Confidence, tt.wantReview)
			}
		})
	}
}

func TestNilContextFallsBackToHeuristic(t *testing.T) {
	got := New(0).Categorize(debit("Netflix", "", "card", 649), nil)
	if got.Category != "Entertainment" {
		t.Fatalf("got %q, want Entertainment", got.Category)
	}
}

func TestApply(t *testing.T) {
	tx := &models.Transaction{MerchantRaw: "Big  Bazaar", Amount: decimal.NewFromInt(100), TransactionType: models.Debit}
	ctx := NewContext([]*models.MerchantRule{{Merchant: "big bazaar", Category: "Groceries"}}, nil)
	New(0).Apply(tx, ctx)

	if tx.Category != "Groceries" || tx.MerchantKey != "big bazaar" || tx.Confidence != 1 {
		t.Fatalf("unexpected transaction after apply: %+v", tx)
	}
	if string(tx.CategoryMetadata) == "" {
		t.Fatal("expected category metadata to be set")
	}
}
