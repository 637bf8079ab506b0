package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/mixelka/expensesync/pkg/models"
)

var (
	debitWords  = []string{"debited", "spent", "withdrawn", "paid", "sent", "purchase", "charged"}
	creditWords = []string{"credited", "received", "refund", "reversed", "deposited"}

	merchantPatterns = []*regexp.Regexp{
		// "to VPA abc@okaxis ABC STORES on 15-05-24"
		regexp.MustCompile(`(?i)\bto\s+vpa\s+\S+\s+([A-Za-z][A-Za-z0-9 &'._\-]{1,60}?)\s+on\b`),
		// "at SWIGGY on 15-05-2024", "at AMAZON PAY INDIA."
		regexp.MustCompile(`(?i)\bat\s+([A-Za-z0-9][A-Za-z0-9 &'._\-*]{1,60}?)(?:\s+(?:on|using|via|dated|ref|for|with)\b|[.,;]\s|[.,;]?\s*$)`),
		// "Info: UPI/NETFLIX/..." and "towards NETFLIX"
		regexp.MustCompile(`(?i)\b(?:info|towards)\s*:?\s*([A-Za-z0-9][A-Za-z0-9 &'._/\-]{1,60}?)(?:\s+(?:on|ref|via)\b|[.,;]\s|[.,;]?\s*$)`),
		// "paid to John Doe on", "received from ACME CORP on"
		regexp.MustCompile(`(?i)\b(?:to|from|by)\s+([A-Za-z][A-Za-z0-9 &'._\-]{1,60}?)\s+(?:on|ref|via)\b`),
	}

	notMerchant = []string{"your", "a/c", "ac ", "account", "vpa", "card", "the ", "you"}
)

// AlertParser reads single-transaction debit and credit alerts
type AlertParser struct{}

// NewAlertParser creates the generic bank alert parser
func NewAlertParser() *AlertParser {
	return &AlertParser{}
}

// Name implements Parser
func (p *AlertParser) Name() string { return "alert" }

// CanParse accepts emails that mention an amount and a debit or credit verb
func (p *AlertParser) CanParse(email *models.RawEmail) bool {
	text := email.Subject + "\n" + Body(email)
	if _, ok := findAmount(text); !ok {
		return false
	}
	_, ok := direction(strings.ToLower(text))
	return ok
}

// ParseTransactions extracts the transaction of an alert
func (p *AlertParser) ParseTransactions(email *models.RawEmail) ([]*models.Transaction, error) {
	body := Body(email)
	text := email.Subject + "\n" + body
	lower := strings.ToLower(text)

	amount, ok := findAmount(body)
	if !ok {
		if amount, ok = findAmount(email.Subject); !ok {
			return nil, nil
		}
	}
	txType, ok := direction(lower)
	if !ok || !amount.IsPositive() {
		return nil, nil
	}

	vpa := findVPA(body)
	card := findCardLast4(text)

	tx := &models.Transaction{
		UserID:            email.UserID,
		EmailID:           email.ID,
		ProviderMessageID: email.ProviderMessageID,
		MerchantRaw:       findMerchant(body, vpa),
		VPA:               vpa,
		TransactionMode:   detectMode(lower, vpa, card),
		Amount:            amount,
		TransactionType:   txType,
		TransactionDate:   transactionDate(body, email.ReceivedAt),
		CardLast4:         card,
	}
	return []*models.Transaction{tx}, nil
}

// ParseStatement implements Parser; alerts carry no statement
func (p *AlertParser) ParseStatement(*models.RawEmail) (*models.Statement, error) {
	return nil, nil
}

// direction picks debit or credit by whichever verb appears first
func direction(lower string) (models.TransactionType, bool) {
	d := firstIndex(lower, debitWords)
	c := firstIndex(lower, creditWords)
	switch {
	case d < 0 && c < 0:
		return "", false
	case c < 0 || (d >= 0 && d < c):
		return models.Debit, true
	default:
		return models.Credit, true
	}
}

func firstIndex(s string, words []string) int {
	best := -1
	for _, w := range words {
		if i := strings.Index(s, w); i >= 0 && (best < 0 || i < best) {
			best = i
		}
	}
	return best
}

func findMerchant(body, vpa string) string {
	for _, p := range merchantPatterns {
		for _, m := range p.FindAllStringSubmatch(body, -1) {
			name := strings.Trim(strings.TrimSpace(m[1]), ".,;:-/")
			if name == "" || looksLikeAccount(name) {
				continue
			}
			return name
		}
	}
	if vpa != "" {
		handle, _, _ := strings.Cut(vpa, "@")
		return handle
	}
	return ""
}

func looksLikeAccount(name string) bool {
	lower := strings.ToLower(name) + " "
	for _, w := range notMerchant {
		if strings.HasPrefix(lower, w) {
			return true
		}
	}
	return false
}

// transactionDate keeps the received timestamp when the alert is for the same
// day, otherwise it uses the date printed in the alert at midnight UTC
func transactionDate(body string, received time.Time) time.Time {
	received = received.UTC()
	d, ok := findDate(body, time.UTC)
	if !ok {
		return received
	}
	if d.Year() == received.Year() && d.YearDay() == received.YearDay() {
		return received
	}
	if d.After(received) {
		return received
	}
	return d
}
