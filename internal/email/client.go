package email

import (
	"context"
	"crypto/tls"
	"fmt"
	"io"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"sync"
	"time"
	"unicode/utf8"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-imap/client"
	_ "github.com/emersion/go-message/charset"
	"github.com/emersion/go-message/mail"

	"github.com/mixelka/expensesync/pkg/models"
)

const (
	defaultDialTimeout = 30 * time.Second
	snippetLength      = 200
	mailbox            = "INBOX"
)

// ClientConfig configuration for IMAP client
type ClientConfig struct {
	Email       string
	Password    string
	Server      string // host:port
	DialTimeout time.Duration
}

// Client is a read-only IMAP session on one mailbox. Calls are serialized;
// go-imap v1 does not allow concurrent commands on one connection.
type Client struct {
	config      ClientConfig
	client      *client.Client
	logger      *slog.Logger
	mu          sync.Mutex
	uidValidity uint32
}

// NewClient creates a new IMAP client
func NewClient(cfg ClientConfig, logger *slog.Logger) *Client {
	if cfg.DialTimeout == 0 {
		cfg.DialTimeout = defaultDialTimeout
	}
	return &Client{
		config: cfg,
		logger: logger.With("email", cfg.Email),
	}
}

// Connect dials, logs in and selects INBOX read-only
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client != nil {
		return nil
	}

	c.logger.Info("connecting to IMAP server", "server", c.config.Server)

	dialer := &tls.Dialer{NetDialer: &net.Dialer{Timeout: c.config.DialTimeout}}
	conn, err := dialer.DialContext(ctx, "tcp", c.config.Server)
	if err != nil {
		return fmt.Errorf("failed to connect: %w", err)
	}

	imapClient, err := client.New(conn)
	if err != nil {
		conn.Close()
		return fmt.Errorf("failed to create IMAP client: %w", err)
	}
	imapClient.Timeout = c.config.DialTimeout

	if err := imapClient.Login(c.config.Email, c.config.Password); err != nil {
		imapClient.Logout()
		return fmt.Errorf("failed to login: %w", err)
	}

	mbox, err := imapClient.Select(mailbox, true)
	if err != nil {
		imapClient.Logout()
		return fmt.Errorf("failed to select %s: %w", mailbox, err)
	}

	c.client = imapClient
	c.uidValidity = mbox.UidValidity
	c.logger.Info("connected to IMAP server", "messages", mbox.Messages, "uid_validity", mbox.UidValidity)

	return nil
}

// Search returns the message ids matching criteria, oldest first
func (c *Client) Search(ctx context.Context, criteria *imap.SearchCriteria) ([]string, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	uids, err := c.client.UidSearch(criteria)
	if err != nil {
		return nil, fmt.Errorf("failed to search: %w", err)
	}

	ids := make([]string, 0, len(uids))
	for _, uid := range uids {
		ids = append(ids, formatID(c.uidValidity, uid))
	}
	return ids, nil
}

// Fetch loads full messages by id. Ids from an older UIDVALIDITY no longer
// address the same messages and are skipped.
func (c *Client) Fetch(ctx context.Context, ids []string) ([]*models.RawEmail, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.client == nil {
		return nil, fmt.Errorf("not connected")
	}

	seqSet := new(imap.SeqSet)
	for _, id := range ids {
		validity, uid, err := parseID(id)
		if err != nil {
			return nil, err
		}
		if validity != c.uidValidity {
			c.logger.Warn("skipping message from stale mailbox", "id", id, "uid_validity", c.uidValidity)
			continue
		}
		seqSet.AddNum(uid)
	}
	if seqSet.Empty() {
		return nil, nil
	}

	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{imap.FetchEnvelope, imap.FetchUid, imap.FetchInternalDate, section.FetchItem()}

	messages := make(chan *imap.Message, 16)
	done := make(chan error, 1)
	go func() {
		done <- c.client.UidFetch(seqSet, items, messages)
	}()

	var emails []*models.RawEmail
	for msg := range messages {
		emails = append(emails, c.parseMessage(msg, section))
	}

	if err := <-done; err != nil {
		return emails, fmt.Errorf("failed to fetch: %w", err)
	}
	return emails, nil
}

// parseMessage converts a fetched message. Body read errors leave the
// bodies empty; the parsers fall back to the snippet.
func (c *Client) parseMessage(msg *imap.Message, section *imap.BodySectionName) *models.RawEmail {
	email := &models.RawEmail{
		ProviderMessageID: formatID(c.uidValidity, msg.Uid),
		ReceivedAt:        msg.InternalDate.UTC(),
	}

	if msg.Envelope != nil {
		email.Subject = msg.Envelope.Subject
		if email.ReceivedAt.IsZero() {
			email.ReceivedAt = msg.Envelope.Date.UTC()
		}
		if len(msg.Envelope.From) > 0 {
			from := msg.Envelope.From[0]
			email.FromName = from.PersonalName
			email.FromAddr = strings.ToLower(from.Address())
		}
	}

	if body := msg.GetBody(section); body != nil {
		if err := readBodies(body, email); err != nil {
			c.logger.Warn("failed to read message body", "uid", msg.Uid, "error", err)
		}
	}

	email.Snippet = snippet(email.BodyText)
	return email
}

func readBodies(r io.Reader, email *models.RawEmail) error {
	mr, err := mail.CreateReader(r)
	if err != nil {
		return fmt.Errorf("failed to create mail reader: %w", err)
	}

	for {
		part, err := mr.NextPart()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return fmt.Errorf("failed to read part: %w", err)
		}

		h, ok := part.Header.(*mail.InlineHeader)
		if !ok {
			continue
		}
		ct, _, _ := h.ContentType()
		body, err := io.ReadAll(part.Body)
		if err != nil {
			continue
		}

		switch {
		case strings.HasPrefix(ct, "text/html") && email.BodyHTML == "":
			email.BodyHTML = string(body)
		case strings.HasPrefix(ct, "text/plain") && email.BodyText == "":
			email.BodyText = string(body)
		}
	}
}

func snippet(text string) string {
	text = strings.Join(strings.Fields(text), " ")
	if utf8.RuneCountInString(text) <= snippetLength {
		return text
	}
	return string([]rune(text)[:snippetLength])
}

// Message ids are "<uidvalidity>.<uid>": a UID alone is only unique within
// one UIDVALIDITY epoch of the mailbox.
func formatID(validity, uid uint32) string {
	return strconv.FormatUint(uint64(validity), 10) + "." + strconv.FormatUint(uint64(uid), 10)
}

func parseID(id string) (uint32, uint32, error) {
	v, u, ok := strings.Cut(id, ".")
	if !ok {
		return 0, 0, fmt.Errorf("invalid message id %q", id)
	}
	validity, err := strconv.ParseUint(v, 10, 32)
	if err != nil {
		return 0, 0, fmt.Errorf("invalid message id %q: %w", id, err)
	}
	uid, err := strconv.ParseUint(u, 10, 32)
	if err != nil || uid == 0 {
		return 0, 0, fmt.Errorf("invalid message id %q", id)
	}
	return uint32(validity), uint32(uid), nil
}

// Close logs out, forcing the connection closed if the server stalls
func (c *Client) Close() {
	c.mu.Lock()
	imapClient := c.client
	c.client = nil
	c.mu.Unlock()

	if imapClient == nil {
		return
	}

	done := make(chan struct{})
	go func() {
		imapClient.Logout()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		imapClient.Terminate()
	}
}

// IsConnected returns whether the client holds a live session
func (c *Client) IsConnected() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.client != nil
}
