package database

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/mixelka/expensesync/pkg/models"
)

// UpsertEmail inserts an email or refreshes the stored copy. Emails are keyed
// by (user_id, provider_message_id); the processed flag survives updates and
// is copied into email.Processed.
func (db *DB) UpsertEmail(ctx context.Context, email *models.RawEmail) (bool, int64, error) {
	tx, err := db.BeginTxx(ctx, nil)
	if err != nil {
		return false, 0, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	now := time.Now().UTC()
	result, err := tx.ExecContext(ctx, `
		INSERT INTO raw_emails (user_id, category, provider_message_id, from_addr, from_name, subject, body_text, body_html, snippet, received_at, processed, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, false, ?, ?)
		ON CONFLICT(user_id, provider_message_id) DO NOTHING
	`,
		email.UserID,
		email.Category,
		email.ProviderMessageID,
		email.FromAddr,
		email.FromName,
		email.Subject,
		email.BodyText,
		email.BodyHTML,
		email.Snippet,
		email.ReceivedAt.UTC(),
		now,
		now,
	)
	if err != nil {
		return false, 0, fmt.Errorf("failed to insert email: %w", err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return false, 0, fmt.Errorf("failed to get rows affected: %w", err)
	}

	var (
		id        int64
		processed bool
	)
	isNew := rowsAffected > 0
	if isNew {
		if id, err = result.LastInsertId(); err != nil {
			return false, 0, fmt.Errorf("failed to get last insert id: %w", err)
		}
	} else {
		_, err = tx.ExecContext(ctx, `
			UPDATE raw_emails
			SET from_addr = ?, from_name = ?, subject = ?, body_text = ?, body_html = ?, snippet = ?, updated_at = ?
			WHERE user_id = ? AND provider_message_id = ?
		`,
			email.FromAddr, email.FromName, email.Subject, email.BodyText, email.BodyHTML, email.Snippet, now,
			email.UserID, email.ProviderMessageID,
		)
		if err != nil {
			return false, 0, fmt.Errorf("failed to update email: %w", err)
		}
		var stored struct {
			ID        int64 `db:"id"`
			Processed bool  `db:"processed"`
		}
		err = tx.GetContext(ctx, &stored,
			`SELECT id, processed FROM raw_emails WHERE user_id = ? AND provider_message_id = ?`,
			email.UserID, email.ProviderMessageID)
		if err != nil {
			return false, 0, fmt.Errorf("failed to get email id: %w", err)
		}
		id, processed = stored.ID, stored.Processed
	}

	if err := tx.Commit(); err != nil {
		return false, 0, fmt.Errorf("failed to commit email upsert: %w", err)
	}

	email.ID = id
	email.Processed = processed
	return isNew, id, nil
}

// MarkEmailProcessed flags an email as successfully parsed
func (db *DB) MarkEmailProcessed(ctx context.Context, id int64) error {
	query := `UPDATE raw_emails SET processed = true, updated_at = ? WHERE id = ?`
	_, err := db.ExecContext(ctx, query, time.Now().UTC(), id)
	if err != nil {
		return fmt.Errorf("failed to mark email processed: %w", err)
	}
	return nil
}

// ListEmails returns one keyset page of stored emails ordered by id
func (db *DB) ListEmails(ctx context.Context, filter models.EmailFilter) ([]*models.RawEmail, error) {
	where, args := emailWhere(filter)
	query := `SELECT * FROM raw_emails WHERE ` + where + ` AND id > ? ORDER BY id ASC LIMIT ?`
	args = append(args, filter.AfterID, pageLimit(filter.Limit))

	var emails []*models.RawEmail
	if err := db.SelectContext(ctx, &emails, query, args...); err != nil {
		return nil, fmt.Errorf("failed to list emails: %w", err)
	}
	return emails, nil
}

// CountEmails counts stored emails matching the filter (cursor and limit ignored)
func (db *DB) CountEmails(ctx context.Context, filter models.EmailFilter) (int, error) {
	where, args := emailWhere(filter)
	var n int
	if err := db.GetContext(ctx, &n, `SELECT COUNT(*) FROM raw_emails WHERE `+where, args...); err != nil {
		return 0, fmt.Errorf("failed to count emails: %w", err)
	}
	return n, nil
}

func emailWhere(filter models.EmailFilter) (string, []any) {
	conds := []string{"user_id = ?", "category = ?"}
	args := []any{filter.UserID, filter.Category}
	if filter.OnlyUnprocessed {
		conds = append(conds, "processed = false")
	}
	return strings.Join(conds, " AND "), args
}

func pageLimit(limit int) int {
	if limit <= 0 || limit > 500 {
		return 100
	}
	return limit
}
