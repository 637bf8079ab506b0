package database

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixelka/expensesync/pkg/models"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	db, err := New(":memory:")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	if err := db.Migrate(context.Background()); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func rawEmail(id string) *models.RawEmail {
	return &models.RawEmail{
		UserID:            1,
		Category:          "expenses",
		ProviderMessageID: id,
		Subject:           "Transaction alert",
		ReceivedAt:        time.Date(2024, 5, 10, 9, 0, 0, 0, time.UTC),
	}
}

func TestUpsertEmailIsIdempotent(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	isNew, id, err := db.UpsertEmail(ctx, rawEmail("m1"))
	if err != nil || !isNew || id == 0 {
		t.Fatalf("got new=%v id=%d err=%v, want a new row", isNew, id, err)
	}
	if err := db.MarkEmailProcessed(ctx, id); err != nil {
		t.Fatalf("MarkEmailProcessed: %v", err)
	}

	again := rawEmail("m1")
	again.Subject = "Transaction alert (updated)"
	isNew, id2, err := db.UpsertEmail(ctx, again)
	if err != nil || isNew || id2 != id {
		t.Fatalf("got new=%v id=%d err=%v, want existing row %d", isNew, id2, err, id)
	}
	if !again.Processed {
		t.Fatal("upsert should report the stored processed flag")
	}

	filter := models.EmailFilter{UserID: 1, Category: "expenses"}
	if n, _ := db.CountEmails(ctx, filter); n != 1 {
		t.Fatalf("got %d emails, want 1", n)
	}
	filter.OnlyUnprocessed = true
	if n, _ := db.CountEmails(ctx, filter); n != 0 {
		t.Fatalf("got %d unprocessed, want 0: the processed flag must survive a refresh", n)
	}

	emails, _ := db.ListEmails(ctx, models.EmailFilter{UserID: 1, Category: "expenses"})
	if len(emails) != 1 || emails[0].Subject != "Transaction alert (updated)" {
		t.Fatalf("got %+v, want refreshed subject", emails)
	}
}

func TestListEmailsKeysetPages(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	for i := 0; i < 5; i++ {
		if _, _, err := db.UpsertEmail(ctx, rawEmail(fmt.Sprintf("m%d", i))); err != nil {
			t.Fatal(err)
		}
	}

	filter := models.EmailFilter{UserID: 1, Category: "expenses", Limit: 2}
	var seen []string
	for {
		page, err := db.ListEmails(ctx, filter)
		if err != nil {
			t.Fatalf("ListEmails: %v", err)
		}
		if len(page) == 0 {
			break
		}
		for _, e := range page {
			seen = append(seen, e.ProviderMessageID)
		}
		filter.AfterID = page[len(page)-1].ID
	}
	if fmt.Sprint(seen) != "[m0 m1 m2 m3 m4]" {
		t.Fatalf("got %v, want every email once in id order", seen)
	}
}

func TestJobTransitions(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	job := &models.SyncJob{ID: "job-1", UserID: 1, Kind: models.JobSync, Category: "expenses"}
	if err := db.CreateJob(ctx, job); err != nil {
		t.Fatalf("CreateJob: %v", err)
	}
	if err := db.CompleteJob(ctx, job.ID); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition completing a pending job", err)
	}

	if err := db.MarkJobProcessing(ctx, job.ID); err != nil {
		t.Fatalf("MarkJobProcessing: %v", err)
	}
	if err := db.SetJobTotal(ctx, job.ID, 10); err != nil {
		t.Fatalf("SetJobTotal: %v", err)
	}
	if err := db.IncrementJobProgress(ctx, job.ID, models.JobProgress{Processed: 15, New: 4, Transactions: 3, Statements: 1}); err != nil {
		t.Fatalf("IncrementJobProgress: %v", err)
	}

	got, _ := db.GetJob(ctx, job.ID)
	if got.ProcessedEmails != 10 || got.NewEmails != 4 || got.Transactions != 3 || got.Statements != 1 {
		t.Fatalf("got %+v, want processed clamped to the total", got)
	}

	if err := db.CompleteJob(ctx, job.ID); err != nil {
		t.Fatalf("CompleteJob: %v", err)
	}
	if err := db.FailJob(ctx, job.ID, "late"); !errors.Is(err, ErrInvalidTransition) {
		t.Fatalf("got %v, want ErrInvalidTransition failing a completed job", err)
	}

	got, _ = db.GetJob(ctx, job.ID)
	if got.Status != models.JobCompleted || got.CompletedAt == nil || got.ErrorMessage != nil {
		t.Fatalf("got %+v, want completed job", got)
	}

	last, err := db.LastCompletedSync(ctx, 1, "expenses")
	if err != nil || last.ID != job.ID {
		t.Fatalf("got %v %v, want job-1", last, err)
	}
	if _, err := db.LastCompletedSync(ctx, 2, "expenses"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
	if _, err := db.GetJob(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}

func TestFailPendingJob(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	db.CreateJob(ctx, &models.SyncJob{ID: "job-2", UserID: 1, Kind: models.JobReprocess, Category: "expenses"})
	if err := db.FailJob(ctx, "job-2", "job queue is full"); err != nil {
		t.Fatalf("FailJob: %v", err)
	}
	got, _ := db.GetJob(ctx, "job-2")
	if got.Status != models.JobFailed || got.ErrorMessage == nil || *got.ErrorMessage != "job queue is full" {
		t.Fatalf("got %+v, want failed job with message", got)
	}
}

func seedSpend(t *testing.T, db *DB) {
	t.Helper()
	at := func(s string) time.Time {
		ts, err := time.Parse(time.RFC3339, s)
		if err != nil {
			t.Fatal(err)
		}
		return ts
	}
	txs := []*models.Transaction{
		{ProviderMessageID: "a", MerchantRaw: "Swiggy", MerchantKey: "swiggy", Amount: decimal.RequireFromString("250.50"), TransactionType: models.Debit, TransactionDate: at("2024-05-02T08:00:00Z"), Category: "Food", CategorizationMethod: models.MethodRule, CardLast4: "1234"},
		{ProviderMessageID: "b", MerchantRaw: "SWIGGY", MerchantKey: "swiggy", Amount: decimal.NewFromInt(400), TransactionType: models.Debit, TransactionDate: at("2024-05-10T20:00:00Z"), Category: "Food", CategorizationMethod: models.MethodHistorical, CardLast4: "1234"},
		{ProviderMessageID: "c", MerchantRaw: "Uber", MerchantKey: "uber", Amount: decimal.NewFromInt(300), TransactionType: models.Debit, TransactionDate: at("2024-05-03T10:00:00Z"), Category: "Transport", CategorizationMethod: models.MethodHeuristic},
		{ProviderMessageID: "d", MerchantRaw: "Refund", MerchantKey: "refund", Amount: decimal.NewFromInt(100), TransactionType: models.Credit, TransactionDate: at("2024-05-04T10:00:00Z"), Category: "Refunds", CategorizationMethod: models.MethodHeuristic},
		{ProviderMessageID: "e", MerchantRaw: "Swiggy", MerchantKey: "swiggy", Amount: decimal.NewFromInt(999), TransactionType: models.Debit, TransactionDate: at("2024-06-01T10:00:00Z"), Category: "Food", CategorizationMethod: models.MethodRule, CardLast4: "1234"},
	}
	for _, tx := range txs {
		tx.UserID = 1
		tx.CategoryMetadata = []byte(`{}`)
	}
	if _, err := db.UpsertTransactions(context.Background(), txs); err != nil {
		t.Fatalf("seed: %v", err)
	}
}

func TestAggregates(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedSpend(t, db)

	may := models.DateRange{
		From: time.Date(2024, 5, 1, 0, 0, 0, 0, time.UTC),
		To:   time.Date(2024, 6, 1, 0, 0, 0, 0, time.UTC),
	}

	totals, err := db.PeriodTotals(ctx, 1, may)
	if err != nil {
		t.Fatalf("PeriodTotals: %v", err)
	}
	if !totals.Debits.Equal(decimal.RequireFromString("950.5")) || !totals.Credits.Equal(decimal.NewFromInt(100)) || totals.Count != 4 {
		t.Fatalf("got %+v, want debits 950.5 credits 100 count 4", totals)
	}

	cats, _ := db.SpendByCategory(ctx, 1, may)
	if len(cats) != 2 || cats[0].Category != "Food" || !cats[0].Total.Equal(decimal.RequireFromString("650.5")) {
		t.Fatalf("got %+v, want Food first at 650.5", cats)
	}

	top, _ := db.TopMerchants(ctx, 1, may, 5)
	if len(top) != 2 || top[0].Count != 2 || !top[0].Total.Equal(decimal.RequireFromString("650.5")) {
		t.Fatalf("got %+v, want swiggy variants merged", top)
	}

	empty, err := db.PeriodTotals(ctx, 2, may)
	if err != nil || !empty.Debits.IsZero() || empty.Count != 0 {
		t.Fatalf("got %+v %v, want zero totals for a user without data", empty, err)
	}
}

func TestCardDailySpendFollowsRangeZone(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)
	seedSpend(t, db)

	ist := time.FixedZone("IST", 5*3600+1800)
	r := models.DateRange{
		From: time.Date(2024, 5, 1, 0, 0, 0, 0, ist),
		To:   time.Date(2024, 6, 1, 0, 0, 0, 0, ist),
	}
	rows, err := db.CardDailySpend(ctx, 1, []string{"1234", "9999"}, r)
	if err != nil {
		t.Fatalf("CardDailySpend: %v", err)
	}
	// 2024-05-10 20:00 UTC is already the 11th in India
	want := map[string]string{"2024-05-02": "250.5", "2024-05-11": "400"}
	if len(rows) != len(want) {
		t.Fatalf("got %+v, want %v", rows, want)
	}
	for _, row := range rows {
		if w, ok := want[row.Day]; !ok || !row.Total.Equal(decimal.RequireFromString(w)) {
			t.Fatalf("got %s=%s, want %v", row.Day, row.Total, want)
		}
	}
}

func TestMerchantHistorySkipsHeuristics(t *testing.T) {
	db := newTestDB(t)
	seedSpend(t, db)

	history, err := db.MerchantHistory(context.Background(), 1)
	if err != nil {
		t.Fatalf("MerchantHistory: %v", err)
	}
	for _, h := range history {
		if h.Merchant != "swiggy" {
			t.Fatalf("got %+v, want only swiggy (others were heuristic)", h)
		}
	}
	if len(history) != 1 || history[0].Count != 3 {
		t.Fatalf("got %+v, want one swiggy/Food row of 3", history)
	}
}

func TestUpsertStatementOncePerEmail(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	st := &models.Statement{
		UserID:            1,
		ProviderMessageID: "s1",
		CardLast4:         "1234",
		StatementDate:     time.Date(2024, 5, 5, 0, 0, 0, 0, time.UTC),
		DueDate:           time.Date(2024, 5, 25, 0, 0, 0, 0, time.UTC),
		TotalDue:          decimal.RequireFromString("12345.67"),
		MinimumDue:        decimal.NewFromInt(620),
	}
	if created, err := db.UpsertStatement(ctx, st); err != nil || !created {
		t.Fatalf("got %v %v, want created", created, err)
	}
	if created, err := db.UpsertStatement(ctx, st); err != nil || created {
		t.Fatalf("got %v %v, want duplicate ignored", created, err)
	}

	list, _ := db.ListStatements(ctx, 1, 10)
	if len(list) != 1 || !list[0].TotalDue.Equal(st.TotalDue) {
		t.Fatalf("got %+v, want one statement", list)
	}
}

func TestAccounts(t *testing.T) {
	ctx := context.Background()
	db := newTestDB(t)

	acc := &models.MailAccount{UserID: 1, Email: "me@gmail.com", Password: "sealed", IMAPServer: "imap.gmail.com:993"}
	if err := db.CreateAccount(ctx, acc); err != nil || acc.ID == 0 {
		t.Fatalf("CreateAccount: %v", err)
	}
	if err := db.CreateAccount(ctx, &models.MailAccount{UserID: 1, Email: "other@gmail.com", Password: "x", IMAPServer: "y"}); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("got %v, want ErrAlreadyExists", err)
	}

	got, err := db.GetAccountByUserID(ctx, 1)
	if err != nil || got.Email != "me@gmail.com" {
		t.Fatalf("got %+v %v", got, err)
	}

	if err := db.DeleteAccountByUserID(ctx, 1); err != nil {
		t.Fatalf("DeleteAccountByUserID: %v", err)
	}
	if _, err := db.GetAccountByUserID(ctx, 1); !errors.Is(err, ErrNotFound) {
		t.Fatalf("got %v, want ErrNotFound", err)
	}
}
