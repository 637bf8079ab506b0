// Package ingest moves email through fetch, dedup, parse and categorization
// in bounded batches.
package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/mixelka/expensesync/internal/cards"
	"github.com/mixelka/expensesync/internal/categorizer"
	"github.com/mixelka/expensesync/internal/parser"
	"github.com/mixelka/expensesync/pkg/models"
)

const (
	DefaultSyncBatchSize      = 100
	DefaultReprocessBatchSize = 20
	DefaultConcurrency        = 8
)

// MailProvider lists and fetches a user's email
type MailProvider interface {
	ListEmails(ctx context.Context, userID int64, query string) ([]string, error)
	FetchContentBatch(ctx context.Context, userID int64, ids []string) ([]*models.RawEmail, error)
}

// EmailStore persists raw emails. UpsertEmail sets email.ID and copies the
// stored processed flag into email.Processed.
type EmailStore interface {
	UpsertEmail(ctx context.Context, email *models.RawEmail) (bool, int64, error)
	MarkEmailProcessed(ctx context.Context, id int64) error
	ListEmails(ctx context.Context, filter models.EmailFilter) ([]*models.RawEmail, error)
	CountEmails(ctx context.Context, filter models.EmailFilter) (int, error)
}

// TransactionStore persists parsed transactions
type TransactionStore interface {
	UpsertTransactions(ctx context.Context, txs []*models.Transaction) (int, error)
}

// StatementStore persists parsed statements
type StatementStore interface {
	UpsertStatement(ctx context.Context, st *models.Statement) (bool, error)
}

// ParserSelector picks the parser for an email
type ParserSelector interface {
	Select(email *models.RawEmail) (parser.Parser, bool)
}

// CardResolver looks up card metadata
type CardResolver interface {
	Resolve(last4 string) (cards.Card, bool)
}

// Progress receives job counters as batches finish
type Progress interface {
	SetTotal(ctx context.Context, total int) error
	Add(ctx context.Context, delta models.JobProgress) error
}

// Run describes one job execution
type Run struct {
	JobID    string
	UserID   int64
	Category string
	// Context is built once per run and shared by all workers
	Context  *categorizer.Context
	Progress Progress
}

// Options tunes batching
type Options struct {
	SyncBatchSize      int
	ReprocessBatchSize int
	Concurrency        int
	// DeferParsing stores emails during sync without parsing them
	DeferParsing bool
}

// Deps holds batcher dependencies
type Deps struct {
	Provider     MailProvider
	Emails       EmailStore
	Transactions TransactionStore
	Statements   StatementStore
	Parsers      ParserSelector
	Categorizer  *categorizer.Categorizer
	Cards        CardResolver
	Logger       *slog.Logger
	Options      Options
}

// Batcher runs sync and reprocess passes
type Batcher struct {
	provider     MailProvider
	emails       EmailStore
	transactions TransactionStore
	statements   StatementStore
	parsers      ParserSelector
	categorizer  *categorizer.Categorizer
	cards        CardResolver
	logger       *slog.Logger
	opts         Options
}

// NewBatcher creates a batcher
func NewBatcher(deps Deps) *Batcher {
	opts := deps.Options
	if opts.SyncBatchSize <= 0 {
		opts.SyncBatchSize = DefaultSyncBatchSize
	}
	if opts.ReprocessBatchSize <= 0 {
		opts.ReprocessBatchSize = DefaultReprocessBatchSize
	}
	if opts.Concurrency <= 0 {
		opts.Concurrency = DefaultConcurrency
	}
	return &Batcher{
		provider:     deps.Provider,
		emails:       deps.Emails,
		transactions: deps.Transactions,
		statements:   deps.Statements,
		parsers:      deps.Parsers,
		categorizer:  deps.Categorizer,
		cards:        deps.Cards,
		logger:       deps.Logger.With("component", "ingest"),
		opts:         opts,
	}
}

// Sync lists the emails matching query and ingests them batch by batch. A
// failed batch fetch skips that batch; a failed email skips that email.
func (b *Batcher) Sync(ctx context.Context, run Run, query string) (models.JobProgress, error) {
	log := b.logger.With("job_id", run.JobID, "user_id", run.UserID)

	ids, err := b.provider.ListEmails(ctx, run.UserID, query)
	if err != nil {
		return models.JobProgress{}, fmt.Errorf("failed to list emails: %w", err)
	}
	ids = dedupe(ids)
	if err := run.Progress.SetTotal(ctx, len(ids)); err != nil {
		return models.JobProgress{}, fmt.Errorf("failed to set job total: %w", err)
	}
	log.Info("sync started", "emails", len(ids), "query", query)

	var total models.JobProgress
	for start := 0; start < len(ids); start += b.opts.SyncBatchSize {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		end := min(start+b.opts.SyncBatchSize, len(ids))
		batch := ids[start:end]

		delta := models.JobProgress{Processed: len(batch)}
		emails, err := b.provider.FetchContentBatch(ctx, run.UserID, batch)
		if err != nil {
			log.Error("batch fetch failed, skipping", "from", start, "to", end, "error", err)
		} else {
			got := b.ingestBatch(ctx, log, run, emails)
			delta.New, delta.Transactions, delta.Statements = got.New, got.Transactions, got.Statements
		}

		total = addProgress(total, delta)
		if err := run.Progress.Add(ctx, delta); err != nil {
			return total, fmt.Errorf("failed to record progress: %w", err)
		}
	}

	log.Info("sync finished", "new", total.New, "transactions", total.Transactions, "statements", total.Statements)
	return total, nil
}

// Reprocess re-parses stored emails without contacting the mail provider
func (b *Batcher) Reprocess(ctx context.Context, run Run, onlyUnprocessed bool) (models.JobProgress, error) {
	log := b.logger.With("job_id", run.JobID, "user_id", run.UserID)

	filter := models.EmailFilter{
		UserID:          run.UserID,
		Category:        run.Category,
		OnlyUnprocessed: onlyUnprocessed,
		Limit:           b.opts.ReprocessBatchSize,
	}
	n, err := b.emails.CountEmails(ctx, filter)
	if err != nil {
		return models.JobProgress{}, err
	}
	if err := run.Progress.SetTotal(ctx, n); err != nil {
		return models.JobProgress{}, fmt.Errorf("failed to set job total: %w", err)
	}
	log.Info("reprocess started", "emails", n, "only_unprocessed", onlyUnprocessed)

	// Keyset paging: processed emails leave the unprocessed set, so offsets
	// would skip rows.
	var total models.JobProgress
	for {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		page, err := b.emails.ListEmails(ctx, filter)
		if err != nil {
			return total, err
		}
		if len(page) == 0 {
			break
		}
		filter.AfterID = page[len(page)-1].ID

		delta := b.parseBatch(ctx, log, run, page)
		delta.Processed = len(page)
		total = addProgress(total, delta)
		if err := run.Progress.Add(ctx, delta); err != nil {
			return total, fmt.Errorf("failed to record progress: %w", err)
		}
	}

	log.Info("reprocess finished", "transactions", total.Transactions, "statements", total.Statements)
	return total, nil
}

// ingestBatch stores fetched emails and parses them concurrently
func (b *Batcher) ingestBatch(ctx context.Context, log *slog.Logger, run Run, emails []*models.RawEmail) models.JobProgress {
	return b.fanOut(ctx, emails, func(ctx context.Context, email *models.RawEmail) (models.JobProgress, error) {
		email.UserID = run.UserID
		email.Category = run.Category

		isNew, _, err := b.emails.UpsertEmail(ctx, email)
		if err != nil {
			return models.JobProgress{}, err
		}
		var p models.JobProgress
		if isNew {
			p.New = 1
		}
		if b.opts.DeferParsing {
			return p, nil
		}

		// Stored but never parsed emails still owe their statement
		parsed, err := b.parseEmail(ctx, run, email, isNew || !email.Processed)
		p.Transactions, p.Statements = parsed.Transactions, parsed.Statements
		return p, err
	}, log)
}

// parseBatch re-parses stored emails concurrently
func (b *Batcher) parseBatch(ctx context.Context, log *slog.Logger, run Run, emails []*models.RawEmail) models.JobProgress {
	return b.fanOut(ctx, emails, func(ctx context.Context, email *models.RawEmail) (models.JobProgress, error) {
		// Statements of emails that were never parsed are still missing
		return b.parseEmail(ctx, run, email, !email.Processed)
	}, log)
}

func (b *Batcher) fanOut(ctx context.Context, emails []*models.RawEmail, fn func(context.Context, *models.RawEmail) (models.JobProgress, error), log *slog.Logger) models.JobProgress {
	var (
		mu  sync.Mutex
		sum models.JobProgress
	)
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(b.opts.Concurrency)

	for _, email := range emails {
		g.Go(func() error {
			p, err := b.safeProcess(gctx, email, fn)
			if err != nil {
				log.Warn("email skipped", "message_id", email.ProviderMessageID, "error", err)
			}
			mu.Lock()
			sum = addProgress(sum, p)
			mu.Unlock()
			// per-email failures never cancel the batch
			return nil
		})
	}
	_ = g.Wait()
	return sum
}

func (b *Batcher) safeProcess(ctx context.Context, email *models.RawEmail, fn func(context.Context, *models.RawEmail) (models.JobProgress, error)) (p models.JobProgress, err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("panic while processing email: %v", r)
		}
	}()
	return fn(ctx, email)
}

// parseEmail extracts, categorizes and stores an email's transactions and,
// when withStatement is set, its statement. The email is marked processed
// once everything is stored, including when no parser accepts it.
func (b *Batcher) parseEmail(ctx context.Context, run Run, email *models.RawEmail, withStatement bool) (models.JobProgress, error) {
	var p models.JobProgress

	prs, ok := b.parsers.Select(email)
	if !ok {
		return p, b.emails.MarkEmailProcessed(ctx, email.ID)
	}

	txs, err := prs.ParseTransactions(email)
	if err != nil {
		return p, fmt.Errorf("parser %s: %w", prs.Name(), err)
	}
	for _, tx := range txs {
		tx.UserID = run.UserID
		tx.EmailID = email.ID
		tx.ProviderMessageID = email.ProviderMessageID
		if c, ok := b.cards.Resolve(tx.CardLast4); ok && tx.CardLast4 != "" {
			tx.CardName = c.Name
		}
		b.categorizer.Apply(tx, run.Context)
	}
	if p.Transactions, err = b.transactions.UpsertTransactions(ctx, txs); err != nil {
		return p, err
	}

	if withStatement {
		st, err := prs.ParseStatement(email)
		if err != nil {
			return p, fmt.Errorf("parser %s statement: %w", prs.Name(), err)
		}
		if st != nil {
			st.UserID = run.UserID
			st.EmailID = email.ID
			st.ProviderMessageID = email.ProviderMessageID
			inserted, err := b.statements.UpsertStatement(ctx, st)
			if err != nil {
				return p, err
			}
			if inserted {
				p.Statements = 1
			}
		}
	}

	if err := b.emails.MarkEmailProcessed(ctx, email.ID); err != nil {
		return p, err
	}
	return p, nil
}

func addProgress(a, b models.JobProgress) models.JobProgress {
	return models.JobProgress{
		Processed:    a.Processed + b.Processed,
		New:          a.New + b.New,
		Transactions: a.Transactions + b.Transactions,
		Statements:   a.Statements + b.Statements,
	}
}

func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := ids[:0:0]
	for _, id := range ids {
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
