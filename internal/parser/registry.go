// Package parser extracts transactions and statements from bank emails.
package parser

import (
	"github.com/mixelka/expensesync/pkg/models"
)

// Parser understands one family of emails. Transactions it returns carry
// extracted fields only; categorization happens downstream.
type Parser interface {
	Name() string
	CanParse(email *models.RawEmail) bool
	ParseTransactions(email *models.RawEmail) ([]*models.Transaction, error)
	// ParseStatement returns nil when the email holds no statement
	ParseStatement(email *models.RawEmail) (*models.Statement, error)
}

// Registry selects parsers in registration order
type Registry struct {
	parsers []Parser
}

// NewRegistry creates a registry with the given parsers, first has priority
func NewRegistry(parsers ...Parser) *Registry {
	return &Registry{parsers: parsers}
}

// Default returns the built-in parsers: statements first, then alerts
func Default() *Registry {
	return NewRegistry(NewStatementParser(), NewAlertParser())
}

// Register appends a parser with the lowest priority
func (r *Registry) Register(p Parser) {
	r.parsers = append(r.parsers, p)
}

// Select returns the first parser that accepts the email
func (r *Registry) Select(email *models.RawEmail) (Parser, bool) {
	for _, p := range r.parsers {
		if p.CanParse(email) {
			return p, true
		}
	}
	return nil, false
}
