package models

import "time"

// RawEmail represents a stored email fetched from the user's mailbox
type RawEmail struct {
	ID                int64     `db:"id"`
	UserID            int64     `db:"user_id"`
	Category          string    `db:"category"`            // Sync category tag, e.g. "expenses"
	ProviderMessageID string    `db:"provider_message_id"` // Natural key for dedup
	FromAddr          string    `db:"from_addr"`
	FromName          string    `db:"from_name"`
	Subject           string    `db:"subject"`
	BodyText          string    `db:"body_text"`
	BodyHTML          string    `db:"body_html"`
	Snippet           string    `db:"snippet"`
	ReceivedAt        time.Time `db:"received_at"`
	Processed         bool      `db:"processed"` // Set once a parse attempt succeeded
	CreatedAt         time.Time `db:"created_at"`
	UpdatedAt         time.Time `db:"updated_at"`
}

// EmailFilter selects stored emails for reprocessing
type EmailFilter struct {
	UserID          int64
	Category        string
	OnlyUnprocessed bool
	AfterID         int64 // Keyset cursor, exclusive
	Limit           int
}

// MailAccount represents a connected mailbox
type MailAccount struct {
	ID         int64     `db:"id"`
	UserID     int64     `db:"user_id"` // Telegram user ID
	Email      string    `db:"email"`
	Password   string    `db:"password"`    // Encrypted password
	IMAPServer string    `db:"imap_server"` // e.g., imap.gmail.com:993
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}
