package database

import (
	"context"
	"fmt"
	"time"

	"github.com/mixelka/expensesync/pkg/models"
)

// UpsertStatement stores a statement once per source email. It reports
// whether a new row was written.
func (db *DB) UpsertStatement(ctx context.Context, st *models.Statement) (bool, error) {
	now := time.Now().UTC()
	result, err := db.ExecContext(ctx, `
		INSERT INTO statements (user_id, email_id, provider_message_id, card_last4, bank, statement_date, due_date, total_due, minimum_due, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(user_id, provider_message_id) DO NOTHING
	`,
		st.UserID,
		st.EmailID,
		st.ProviderMessageID,
		st.CardLast4,
		st.Bank,
		st.StatementDate.UTC(),
		st.DueDate.UTC(),
		st.TotalDue,
		st.MinimumDue,
		now,
	)
	if err != nil {
		return false, fmt.Errorf("failed to upsert statement: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rowsAffected > 0, nil
}

// ListStatements returns a user's statements, latest first
func (db *DB) ListStatements(ctx context.Context, userID int64, limit int) ([]*models.Statement, error) {
	var statements []*models.Statement
	err := db.SelectContext(ctx, &statements,
		`SELECT * FROM statements WHERE user_id = ? ORDER BY statement_date DESC LIMIT ?`, userID, pageLimit(limit))
	if err != nil {
		return nil, fmt.Errorf("failed to list statements: %w", err)
	}
	return statements, nil
}
