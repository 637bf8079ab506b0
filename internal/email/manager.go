package email

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/mixelka/expensesync/pkg/models"
)

// AccountStore looks up a user's connected mailbox
type AccountStore interface {
	GetAccountByUserID(ctx context.Context, userID int64) (*models.MailAccount, error)
}

// DecryptFunc turns a stored password back into plaintext
type DecryptFunc func(encrypted string) (string, error)

// Manager keeps one IMAP session per user and serves as the mail provider
// for syncs. A session that fails mid-command is dropped and redialed once.
type Manager struct {
	accounts    AccountStore
	decrypt     DecryptFunc
	dialTimeout time.Duration
	logger      *slog.Logger
	now         func() time.Time

	mu      sync.Mutex
	clients map[int64]*Client
}

// NewManager creates a new email manager
func NewManager(accounts AccountStore, decrypt DecryptFunc, dialTimeout time.Duration, logger *slog.Logger) *Manager {
	return &Manager{
		accounts:    accounts,
		decrypt:     decrypt,
		dialTimeout: dialTimeout,
		logger:      logger.With("component", "email_manager"),
		now:         time.Now,
		clients:     make(map[int64]*Client),
	}
}

// TestConnection tests an IMAP login without keeping the session
func (m *Manager) TestConnection(ctx context.Context, email, password, server string) error {
	client := NewClient(ClientConfig{
		Email:       email,
		Password:    password,
		Server:      server,
		DialTimeout: m.dialTimeout,
	}, m.logger)

	if err := client.Connect(ctx); err != nil {
		return err
	}
	client.Close()
	return nil
}

// ListEmails returns the ids of messages matching a sync query
func (m *Manager) ListEmails(ctx context.Context, userID int64, query string) ([]string, error) {
	criteria, err := ParseQuery(query, m.now())
	if err != nil {
		return nil, fmt.Errorf("failed to parse query: %w", err)
	}

	var ids []string
	err = m.withClient(ctx, userID, func(c *Client) error {
		var err error
		ids, err = c.Search(ctx, criteria)
		return err
	})
	if err != nil {
		return nil, err
	}
	return ids, nil
}

// FetchContentBatch loads the full content of the given messages
func (m *Manager) FetchContentBatch(ctx context.Context, userID int64, ids []string) ([]*models.RawEmail, error) {
	var emails []*models.RawEmail
	err := m.withClient(ctx, userID, func(c *Client) error {
		var err error
		emails, err = c.Fetch(ctx, ids)
		return err
	})
	if err != nil {
		return nil, err
	}
	for _, e := range emails {
		e.UserID = userID
	}
	return emails, nil
}

func (m *Manager) withClient(ctx context.Context, userID int64, fn func(*Client) error) error {
	c, err := m.client(ctx, userID)
	if err != nil {
		return err
	}
	err = fn(c)
	if err == nil || ctx.Err() != nil {
		return err
	}

	m.logger.Warn("IMAP command failed, reconnecting", "user_id", userID, "error", err)
	m.Remove(userID)
	c, err = m.client(ctx, userID)
	if err != nil {
		return err
	}
	return fn(c)
}

func (m *Manager) client(ctx context.Context, userID int64) (*Client, error) {
	m.mu.Lock()
	c, ok := m.clients[userID]
	m.mu.Unlock()
	if ok && c.IsConnected() {
		return c, nil
	}

	account, err := m.accounts.GetAccountByUserID(ctx, userID)
	if err != nil {
		return nil, fmt.Errorf("failed to get mail account: %w", err)
	}
	password, err := m.decrypt(account.Password)
	if err != nil {
		return nil, fmt.Errorf("failed to decrypt password: %w", err)
	}

	c = NewClient(ClientConfig{
		Email:       account.Email,
		Password:    password,
		Server:      account.IMAPServer,
		DialTimeout: m.dialTimeout,
	}, m.logger)
	if err := c.Connect(ctx); err != nil {
		return nil, err
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	// Another job may have connected meanwhile; keep the first session.
	if existing, ok := m.clients[userID]; ok && existing.IsConnected() {
		go c.Close()
		return existing, nil
	}
	m.clients[userID] = c
	return c, nil
}

// Remove closes and forgets a user's session
func (m *Manager) Remove(userID int64) {
	m.mu.Lock()
	c, ok := m.clients[userID]
	delete(m.clients, userID)
	m.mu.Unlock()

	if ok {
		c.Close()
	}
}

// StopAll closes every session
func (m *Manager) StopAll() {
	m.mu.Lock()
	clients := m.clients
	m.clients = make(map[int64]*Client)
	m.mu.Unlock()

	m.logger.Info("stopping all email clients", "count", len(clients))

	var wg sync.WaitGroup
	for _, c := range clients {
		wg.Add(1)
		go func(c *Client) {
			defer wg.Done()
			c.Close()
		}(c)
	}
	wg.Wait()
}
