package ingest

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"sort"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixelka/expensesync/internal/cards"
	"github.com/mixelka/expensesync/internal/categorizer"
	"github.com/mixelka/expensesync/internal/parser"
	"github.com/mixelka/expensesync/pkg/models"
)

var txDate = time.Date(2024, 5, 10, 0, 0, 0, 0, time.UTC)

type fakeProvider struct {
	ids      []string
	failWith string // fetches of a batch containing this id fail
	fetches  int
}

func (f *fakeProvider) ListEmails(context.Context, int64, string) ([]string, error) {
	return f.ids, nil
}

func (f *fakeProvider) FetchContentBatch(_ context.Context, _ int64, ids []string) ([]*models.RawEmail, error) {
	f.fetches++
	out := make([]*models.RawEmail, 0, len(ids))
	for _, id := range ids {
		if id == f.failWith {
			return nil, errors.New("provider unavailable")
		}
		out = append(out, &models.RawEmail{ProviderMessageID: id, Subject: id, ReceivedAt: txDate})
	}
	return out, nil
}

type memStore struct {
	mu         sync.Mutex
	nextID     int64
	emails     map[string]*models.RawEmail
	txs        map[string]models.Transaction
	statements map[string]bool
}

func newMemStore() *memStore {
	return &memStore{
		emails:     make(map[string]*models.RawEmail),
		txs:        make(map[string]models.Transaction),
		statements: make(map[string]bool),
	}
}

func (m *memStore) UpsertEmail(_ context.Context, e *models.RawEmail) (bool, int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	key := fmt.Sprintf("%d/%s", e.UserID, e.ProviderMessageID)
	if existing, ok := m.emails[key]; ok {
		e.ID = existing.ID
		e.Processed = existing.Processed
		return false, existing.ID, nil
	}
	m.nextID++
	cp := *e
	cp.ID = m.nextID
	m.emails[key] = &cp
	e.ID = cp.ID
	return true, cp.ID, nil
}

func (m *memStore) MarkEmailProcessed(_ context.Context, id int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, e := range m.emails {
		if e.ID == id {
			e.Processed = true
		}
	}
	return nil
}

func (m *memStore) matching(f models.EmailFilter) []*models.RawEmail {
	var out []*models.RawEmail
	for _, e := range m.emails {
		if e.UserID != f.UserID || e.Category != f.Category || (f.OnlyUnprocessed && e.Processed) {
			continue
		}
		cp := *e
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (m *memStore) ListEmails(_ context.Context, f models.EmailFilter) ([]*models.RawEmail, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var page []*models.RawEmail
	for _, e := range m.matching(f) {
		if e.ID > f.AfterID && len(page) < f.Limit {
			page = append(page, e)
		}
	}
	return page, nil
}

func (m *memStore) CountEmails(_ context.Context, f models.EmailFilter) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.matching(f)), nil
}

func (m *memStore) UpsertTransactions(_ context.Context, txs []*models.Transaction) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, t := range txs {
		key := fmt.Sprintf("%d/%s/%s/%s/%s", t.UserID, t.ProviderMessageID, t.MerchantRaw, t.Amount, t.TransactionDate.Format(time.RFC3339))
		m.txs[key] = *t
	}
	return len(txs), nil
}

func (m *memStore) UpsertStatement(_ context.Context, st *models.Statement) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	key := fmt.Sprintf("%d/%s", st.UserID, st.ProviderMessageID)
	if m.statements[key] {
		return false, nil
	}
	m.statements[key] = true
	return true, nil
}

// subjectParser turns "m1" into one transaction at merchant m1. Subjects
// starting with "stmt" also carry a statement and "bad" fails to parse.
type subjectParser struct{}

func (subjectParser) Name() string { return "subject" }

func (subjectParser) CanParse(e *models.RawEmail) bool { return !strings.HasPrefix(e.Subject, "skip") }

func (subjectParser) ParseTransactions(e *models.RawEmail) ([]*models.Transaction, error) {
	if strings.HasPrefix(e.Subject, "bad") {
		return nil, errors.New("garbled alert")
	}
	return []*models.Transaction{{
		MerchantRaw:     e.Subject,
		Amount:          decimal.NewFromInt(100),
		TransactionType: models.Debit,
		TransactionDate: txDate,
		CardLast4:       "4321",
	}}, nil
}

func (subjectParser) ParseStatement(e *models.RawEmail) (*models.Statement, error) {
	if !strings.HasPrefix(e.Subject, "stmt") {
		return nil, nil
	}
	return &models.Statement{TotalDue: decimal.NewFromInt(1000)}, nil
}

type recorder struct {
	mu    sync.Mutex
	total int
	sum   models.JobProgress
	adds  int
}

func (r *recorder) SetTotal(_ context.Context, n int) error {
	r.total = n
	return nil
}

func (r *recorder) Add(_ context.Context, d models.JobProgress) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.adds++
	r.sum = addProgress(r.sum, d)
	return nil
}

func newTestBatcher(p MailProvider, store *memStore, opts Options) *Batcher {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	return NewBatcher(Deps{
		Provider:     p,
		Emails:       store,
		Transactions: store,
		Statements:   store,
		Parsers:      parser.NewRegistry(subjectParser{}),
		Categorizer:  categorizer.New(categorizer.DefaultReviewThreshold),
		Cards:        cards.NewResolver(cards.DefaultCatalog(), logger),
		Logger:       logger,
		Options:      opts,
	})
}

func newRun(progress Progress) Run {
	return Run{JobID: "job", UserID: 7, Category: "expenses", Context: categorizer.NewContext(nil, nil), Progress: progress}
}

func ids(n int) []string {
	out := make([]string, n)
	for i := range out {
		out[i] = fmt.Sprintf("m%d", i+1)
	}
	return out
}

func TestSyncSkipsFailedBatch(t *testing.T) {
	provider := &fakeProvider{ids: ids(10), failWith: "m3"}
	store := newMemStore()
	b := newTestBatcher(provider, store, Options{SyncBatchSize: 2})
	rec := &recorder{}

	got, err := b.Sync(context.Background(), newRun(rec), "q")
	if err != nil {
		t.Fatalf("Sync: %v", err)
	}
	if provider.fetches != 5 {
		t.Fatalf("got %d fetches, want 5", provider.fetches)
	}
	if rec.total != 10 || rec.sum.Processed != 10 || rec.adds != 5 {
		t.Fatalf("got total %d processed %d adds %d, want 10/10/5", rec.total, rec.sum.Processed, rec.adds)
	}
	if got.New != 8 || got.Transactions != 8 || rec.sum.New != 8 {
		t.Fatalf("got %+v, want 8 new emails and transactions", got)
	}
	if _, ok := store.emails["7/m3"]; ok {
		t.Fatal("email from the failed batch should not be stored")
	}
}

func TestDuplicateSyncDoesNotDuplicate(t *testing.T) {
	provider := &fakeProvider{ids: []string{"m1", "stmt1", "m1"}}
	store := newMemStore()
	b := newTestBatcher(provider, store, Options{})

	first, err := b.Sync(context.Background(), newRun(&recorder{}), "q")
	if err != nil {
		t.Fatal(err)
	}
	second, err := b.Sync(context.Background(), newRun(&recorder{}), "q")
	if err != nil {
		t.Fatal(err)
	}

	if len(store.emails) != 2 || len(store.txs) != 2 || len(store.statements) != 1 {
		t.Fatalf("got %d emails %d txs %d statements, want 2/2/1", len(store.emails), len(store.txs), len(store.statements))
	}
	if first.New != 2 || first.Statements != 1 {
		t.Fatalf("first run: got %+v", first)
	}
	if second.New != 0 || second.Statements != 0 || second.Transactions != 2 {
		t.Fatalf("second run: got %+v, want no new emails or statements", second)
	}
}

func TestReprocessIsIdempotent(t *testing.T) {
	provider := &fakeProvider{ids: ids(45)}
	store := newMemStore()
	b := newTestBatcher(provider, store, Options{ReprocessBatchSize: 20})
	ctx := context.Background()

	if _, err := b.Sync(ctx, newRun(&recorder{}), "q"); err != nil {
		t.Fatal(err)
	}
	snapshot := func() map[string]models.Transaction {
		out := make(map[string]models.Transaction, len(store.txs))
		for k, v := range store.txs {
			out[k] = v
		}
		return out
	}

	rec := &recorder{}
	if _, err := b.Reprocess(ctx, newRun(rec), false); err != nil {
		t.Fatal(err)
	}
	if rec.total != 45 || rec.sum.Processed != 45 || rec.adds != 3 {
		t.Fatalf("got total %d processed %d in %d batches, want 45/45/3", rec.total, rec.sum.Processed, rec.adds)
	}
	once := snapshot()

	if _, err := b.Reprocess(ctx, newRun(&recorder{}), false); err != nil {
		t.Fatal(err)
	}
	twice := snapshot()

	if len(once) != 45 || len(twice) != 45 {
		t.Fatalf("got %d then %d transactions, want 45", len(once), len(twice))
	}
	for k, a := range once {
		c := twice[k]
		if a.Category != c.Category || a.Confidence != c.Confidence || !a.Amount.Equal(c.Amount) || a.CardName != c.CardName {
			t.Fatalf("transaction %s drifted: %+v vs %+v", k, a, c)
		}
	}
}

func TestDeferredParsingThenReprocessUnprocessed(t *testing.T) {
	provider := &fakeProvider{ids: []string{"m1", "stmt1", "skip1"}}
	store := newMemStore()
	b := newTestBatcher(provider, store, Options{DeferParsing: true})
	ctx := context.Background()

	got, err := b.Sync(ctx, newRun(&recorder{}), "q")
	if err != nil {
		t.Fatal(err)
	}
	if got.New != 3 || got.Transactions != 0 || len(store.txs) != 0 {
		t.Fatalf("got %+v, want stored but unparsed emails", got)
	}

	got, err = b.Reprocess(ctx, newRun(&recorder{}), true)
	if err != nil {
		t.Fatal(err)
	}
	if got.Processed != 3 || got.Transactions != 2 || got.Statements != 1 {
		t.Fatalf("got %+v, want 3 processed, 2 transactions, 1 statement", got)
	}
	for _, e := range store.emails {
		if !e.Processed {
			t.Fatalf("email %s left unprocessed", e.ProviderMessageID)
		}
	}

	n, _ := store.CountEmails(ctx, models.EmailFilter{UserID: 7, Category: "expenses", OnlyUnprocessed: true})
	if n != 0 {
		t.Fatalf("got %d unprocessed, want 0", n)
	}
}

func TestResyncStoresStatementOfUnparsedEmail(t *testing.T) {
	provider := &fakeProvider{ids: []string{"stmt1"}}
	store := newMemStore()
	ctx := context.Background()

	deferred := newTestBatcher(provider, store, Options{DeferParsing: true})
	if _, err := deferred.Sync(ctx, newRun(&recorder{}), "q"); err != nil {
		t.Fatal(err)
	}

	b := newTestBatcher(provider, store, Options{})
	got, err := b.Sync(ctx, newRun(&recorder{}), "q")
	if err != nil {
		t.Fatal(err)
	}
	if got.New != 0 || got.Transactions != 1 || got.Statements != 1 {
		t.Fatalf("got %+v, want the known email parsed with its statement", got)
	}

	got, err = b.Reprocess(ctx, newRun(&recorder{}), false)
	if err != nil {
		t.Fatal(err)
	}
	if got.Statements != 0 || len(store.statements) != 1 {
		t.Fatalf("got %+v and %d stored statements, want exactly one statement", got, len(store.statements))
	}
	if !store.emails["7/stmt1"].Processed {
		t.Fatal("email should be processed after the resync")
	}
}

func TestBadEmailDoesNotStopBatch(t *testing.T) {
	provider := &fakeProvider{ids: []string{"m1", "bad1", "m2"}}
	store := newMemStore()
	b := newTestBatcher(provider, store, Options{})

	got, err := b.Sync(context.Background(), newRun(&recorder{}), "q")
	if err != nil {
		t.Fatal(err)
	}
	if got.New != 3 || got.Transactions != 2 {
		t.Fatalf("got %+v, want 3 new and 2 transactions", got)
	}
	if store.emails["7/bad1"].Processed {
		t.Fatal("email that failed to parse should stay unprocessed")
	}
}

func TestCategorizationAndCardName(t *testing.T) {
	provider := &fakeProvider{ids: []string{"swiggy"}}
	store := newMemStore()
	b := newTestBatcher(provider, store, Options{})

	run := newRun(&recorder{})
	run.Context = categorizer.NewContext([]*models.MerchantRule{{Merchant: "SWIGGY", Category: "Eating Out"}}, nil)
	if _, err := b.Sync(context.Background(), run, "q"); err != nil {
		t.Fatal(err)
	}

	for _, tx := range store.txs {
		if tx.Category != "Eating Out" || tx.CategorizationMethod != models.MethodRule {
			t.Fatalf("got %s via %s, want rule category", tx.Category, tx.CategorizationMethod)
		}
		if tx.CardName != "Regalia Gold" {
			t.Fatalf("got card %q, want Regalia Gold", tx.CardName)
		}
	}
}
