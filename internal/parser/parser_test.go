package parser

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixelka/expensesync/pkg/models"
)

var received = time.Date(2024, 5, 15, 14, 30, 0, 0, time.UTC)

func alert(subject, body string) *models.RawEmail {
	return &models.RawEmail{
		ID:                1,
		UserID:            7,
		ProviderMessageID: "X",
		Subject:           subject,
		BodyText:          body,
		ReceivedAt:        received,
	}
}

func TestAlertParser(t *testing.T) {
	tests := []struct {
		name     string
		email    *models.RawEmail
		amount   string
		txType   models.TransactionType
		merchant string
		vpa      string
		mode     string
		card     string
		date     time.Time
	}{
		{
			name:     "card spend",
			email:    alert("Transaction alert", "Rs.450.00 spent on your HDFC Bank Credit Card ending 4321 at SWIGGY on 2024-05-15."),
			amount:   "450",
			txType:   models.Debit,
			merchant: "SWIGGY",
			mode:     ModeCard,
			card:     "4321",
			date:     received,
		},
		{
			name:     "upi debit",
			email:    alert("You have done a UPI txn", "Dear Customer, Rs.1,250.50 has been debited from account **1234 to VPA ramesh.k@okaxis RAMESH KUMAR on 12-05-24."),
			amount:   "1250.5",
			txType:   models.Debit,
			merchant: "RAMESH KUMAR",
			vpa:      "ramesh.k@okaxis",
			mode:     ModeUPI,
			date:     time.Date(2024, 5, 12, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "refund credit",
			email:    alert("Refund processed", "INR 299 credited to your a/c XX1234 towards AMAZON PAY refund on 10 May 2024."),
			amount:   "299",
			txType:   models.Credit,
			merchant: "AMAZON PAY refund",
			mode:     ModeOther,
			date:     time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC),
		},
		{
			name:     "atm withdrawal",
			email:    alert("ATM withdrawal", "₹2000 withdrawn at ATM MG ROAD on 15/05/2024"),
			amount:   "2000",
			txType:   models.Debit,
			merchant: "ATM MG ROAD",
			mode:     ModeATM,
			date:     received,
		},
	}

	p := NewAlertParser()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if !p.CanParse(tt.email) {
				t.Fatal("CanParse returned false")
			}
			txs, err := p.ParseTransactions(tt.email)
			if err != nil {
				t.Fatalf("ParseTransactions: %v", err)
			}
			if len(txs) != 1 {
				t.Fatalf("got %d transactions, want 1", len(txs))
			}
			tx := txs[0]
			if !tx.Amount.Equal(decimal.RequireFromString(tt.amount)) {
				t.Fatalf("amount: got %s, want %s", tx.Amount, tt.amount)
			}
			if tx.TransactionType != tt.txType {
				t.Fatalf("type: got %s, want %s", tx.TransactionType, tt.txType)
			}
			if tx.MerchantRaw != tt.merchant {
				t.Fatalf("merchant: got %q, want %q", tx.MerchantRaw, tt.merchant)
			}
			if tx.VPA != tt.vpa {
				t.Fatalf("vpa: got %q, want %q", tx.VPA, tt.vpa)
			}
			if tx.TransactionMode != tt.mode {
				t.Fatalf("mode: got %q, want %q", tx.TransactionMode, tt.mode)
			}
			if tx.CardLast4 != tt.card {
				t.Fatalf("card: got %q, want %q", tx.CardLast4, tt.card)
			}
			if !tx.TransactionDate.Equal(tt.date) {
				t.Fatalf("date: got %v, want %v", tx.TransactionDate, tt.date)
			}
			if tx.ProviderMessageID != "X" || tx.UserID != 7 || tx.EmailID != 1 {
				t.Fatalf("source fields not copied: %+v", tx)
			}
		})
	}
}

func TestAlertParserRejectsNewsletters(t *testing.T) {
	p := NewAlertParser()
	for _, e := range []*models.RawEmail{
		alert("Weekly digest", "Top stories this week"),
		alert("Offer", "Get 10% off on Rs.500 orders"),
	} {
		if p.CanParse(e) {
			t.Fatalf("CanParse(%q) = true, want false", e.Subject)
		}
	}
}

func TestStatementParser(t *testing.T) {
	e := &models.RawEmail{
		ID:                3,
		UserID:            7,
		ProviderMessageID: "S1",
		FromName:          "HDFC Bank Credit Cards",
		Subject:           "Your HDFC Bank Credit Card statement for May 2024",
		BodyHTML: `<html><body><table>
			<tr><td>Card Number</td><td>XXXX XXXX XXXX 4321</td></tr>
			<tr><td>Statement Date</td><td>05/05/2024</td></tr>
			<tr><td>Payment Due Date</td><td>25/05/2024</td></tr>
			<tr><td>Total Amount Due</td><td>Rs. 45,210.75</td></tr>
			<tr><td>Minimum Amount Due</td><td>Rs. 2,260.00</td></tr>
		</table></body></html>`,
		ReceivedAt: received,
	}

	reg := Default()
	p, ok := reg.Select(e)
	if !ok || p.Name() != "statement" {
		t.Fatalf("got parser %v, want statement", p)
	}

	st, err := p.ParseStatement(e)
	if err != nil || st == nil {
		t.Fatalf("ParseStatement: %v, %v", st, err)
	}
	if !st.TotalDue.Equal(decimal.RequireFromString("45210.75")) {
		t.Fatalf("total: got %s", st.TotalDue)
	}
	if !st.MinimumDue.Equal(decimal.NewFromInt(2260)) {
		t.Fatalf("minimum: got %s", st.MinimumDue)
	}
	if !st.DueDate.Equal(time.Date(2024, 5, 25, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("due date: got %v", st.DueDate)
	}
	if !st.StatementDate.Equal(time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("statement date: got %v", st.StatementDate)
	}
	if st.CardLast4 != "4321" || st.Bank != "HDFC Bank" {
		t.Fatalf("got card %q bank %q", st.CardLast4, st.Bank)
	}
}

type stubParser struct {
	name string
	ok   bool
}

func (s stubParser) Name() string                   { return s.name }
func (s stubParser) CanParse(*models.RawEmail) bool { return s.ok }
func (s stubParser) ParseTransactions(*models.RawEmail) ([]*models.Transaction, error) {
	return nil, nil
}
func (s stubParser) ParseStatement(*models.RawEmail) (*models.Statement, error) { return nil, nil }

func TestRegistrySelectsFirstMatch(t *testing.T) {
	reg := NewRegistry(stubParser{"a", false}, stubParser{"b", true})
	reg.Register(stubParser{"c", true})

	p, ok := reg.Select(&models.RawEmail{})
	if !ok || p.Name() != "b" {
		t.Fatalf("got %v, want b", p)
	}

	if _, ok := NewRegistry(stubParser{"a", false}).Select(&models.RawEmail{}); ok {
		t.Fatal("expected no match")
	}
}

func TestHTMLText(t *testing.T) {
	got, err := HTMLText(`<html><head><style>p{}</style></head><body><p>Hello&nbsp;there</p><div>Rs.&#8203;100</div><script>x()</script></body></html>`)
	if err != nil {
		t.Fatal(err)
	}
	want := "Hello there\nRs.100"
	if got != want {
		t.Fatalf("got %q, want %q", got, want)
	}
}
