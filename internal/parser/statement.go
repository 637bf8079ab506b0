package parser

import (
	"regexp"
	"strings"
	"time"

	"github.com/mixelka/expensesync/pkg/models"
)

var (
	totalDueLabels   = []string{"total amount due", "total due", "total outstanding", "closing balance"}
	minimumDueLabels = []string{"minimum amount due", "minimum due", "min. amount due", "min amount due"}
	dueDateLabels    = []string{"payment due date", "due date", "pay by"}
	stmtDateLabels   = []string{"statement date", "statement generated on", "billing date"}

	bankRegex = regexp.MustCompile(`\b([A-Z][A-Za-z]+\s+Bank)\b`)
)

// StatementParser reads credit card statement notifications
type StatementParser struct{}

// NewStatementParser creates the card statement parser
func NewStatementParser() *StatementParser {
	return &StatementParser{}
}

// Name implements Parser
func (p *StatementParser) Name() string { return "statement" }

// CanParse accepts statement emails that state a total due
func (p *StatementParser) CanParse(email *models.RawEmail) bool {
	if !strings.Contains(strings.ToLower(email.Subject), "statement") {
		return false
	}
	_, ok := amountAfter(Body(email), totalDueLabels...)
	return ok
}

// ParseTransactions implements Parser; statements are not itemised here
func (p *StatementParser) ParseTransactions(*models.RawEmail) ([]*models.Transaction, error) {
	return nil, nil
}

// ParseStatement extracts totals and dates of a card statement
func (p *StatementParser) ParseStatement(email *models.RawEmail) (*models.Statement, error) {
	body := Body(email)
	text := email.Subject + "\n" + body

	total, ok := amountAfter(body, totalDueLabels...)
	if !ok {
		return nil, nil
	}
	minimum, _ := amountAfter(body, minimumDueLabels...)

	received := email.ReceivedAt.UTC()
	stmtDate, ok := dateAfter(body, time.UTC, stmtDateLabels...)
	if !ok {
		stmtDate = received
	}
	dueDate, _ := dateAfter(body, time.UTC, dueDateLabels...)

	return &models.Statement{
		UserID:            email.UserID,
		EmailID:           email.ID,
		ProviderMessageID: email.ProviderMessageID,
		CardLast4:         findCardLast4(text),
		Bank:              findBank(email, text),
		StatementDate:     stmtDate,
		DueDate:           dueDate,
		TotalDue:          total,
		MinimumDue:        minimum,
	}, nil
}

func findBank(email *models.RawEmail, text string) string {
	if m := bankRegex.FindStringSubmatch(email.FromName); m != nil {
		return m[1]
	}
	if m := bankRegex.FindStringSubmatch(text); m != nil {
		return m[1]
	}
	return email.FromName
}
