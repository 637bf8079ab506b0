package analytics

import (
	"context"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixelka/expensesync/internal/cards"
	"github.com/mixelka/expensesync/pkg/models"
)

type fakeStore struct {
	calls map[string]int
	daily []models.DailySpend
	cards []models.CardSpend
}

func (f *fakeStore) hit(name string) {
	if f.calls == nil {
		f.calls = make(map[string]int)
	}
	f.calls[name]++
}

func (f *fakeStore) SpendByCategory(context.Context, int64, models.DateRange) ([]models.CategorySpend, error) {
	f.hit("category")
	return []models.CategorySpend{{Category: "Food", Total: decimal.NewFromInt(int64(f.calls["category"]))}}, nil
}

func (f *fakeStore) SpendByMode(context.Context, int64, models.DateRange) ([]models.ModeSpend, error) {
	f.hit("mode")
	return nil, nil
}

func (f *fakeStore) SpendByCard(context.Context, int64, models.DateRange) ([]models.CardSpend, error) {
	f.hit("card")
	out := make([]models.CardSpend, len(f.cards))
	copy(out, f.cards)
	return out, nil
}

func (f *fakeStore) SpendByWeekday(context.Context, int64, models.DateRange) ([]models.WeekdaySpend, error) {
	f.hit("weekday")
	return nil, nil
}

func (f *fakeStore) DailySpend(context.Context, int64, models.DateRange) ([]models.DailySpend, error) {
	f.hit("daily")
	out := make([]models.DailySpend, len(f.daily))
	copy(out, f.daily)
	return out, nil
}

func (f *fakeStore) PeriodTotals(context.Context, int64, models.DateRange) (models.PeriodTotals, error) {
	f.hit("totals")
	return models.PeriodTotals{Debits: decimal.NewFromInt(100), Count: 1}, nil
}

func (f *fakeStore) TopMerchants(context.Context, int64, models.DateRange, int) ([]models.MerchantSpend, error) {
	f.hit("merchants")
	return nil, nil
}

func (f *fakeStore) LargestTransactions(context.Context, int64, models.DateRange, int) ([]*models.Transaction, error) {
	f.hit("largest")
	return nil, nil
}

func newTestService(store *fakeStore) *Service {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	resolver := cards.NewResolver(cards.DefaultCatalog(), logger)
	return NewService(Deps{
		Store:    store,
		Cache:    NewCache(time.Minute),
		Resolver: resolver,
		Logger:   logger,
	})
}

func TestReadAfterInvalidationIsFresh(t *testing.T) {
	ctx := context.Background()
	store := &fakeStore{}
	svc := newTestService(store)
	r := MonthRange(time.Date(2024, 5, 15, 0, 0, 0, 0, time.UTC))

	first, _ := svc.SpendByCategory(ctx, 7, r)
	again, _ := svc.SpendByCategory(ctx, 7, r)
	if store.calls["category"] != 1 || !again[0].Total.Equal(first[0].Total) {
		t.Fatalf("got %d store calls, want 1 (cached)", store.calls["category"])
	}

	svc.cache.InvalidateUser(7)
	fresh, _ := svc.SpendByCategory(ctx, 7, r)
	if store.calls["category"] != 2 || !fresh[0].Total.Equal(decimal.NewFromInt(2)) {
		t.Fatalf("got %s after invalidation, want a recomputed value", fresh[0].Total)
	}
}

func TestCumulativeSpend(t *testing.T) {
	store := &fakeStore{daily: []models.DailySpend{
		{Day: "2024-05-01", Total: decimal.NewFromInt(100)},
		{Day: "2024-05-03", Total: decimal.NewFromInt(50)},
		{Day: "2024-05-04", Total: decimal.RequireFromString("25.50")},
	}}
	svc := newTestService(store)

	got, err := svc.CumulativeSpend(context.Background(), 1, LastDays(time.Now(), 30))
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"100", "150", "175.5"}
	for i, w := range want {
		if !got[i].Cumulative.Equal(decimal.RequireFromString(w)) {
			t.Fatalf("day %d: got %s, want %s", i, got[i].Cumulative, w)
		}
	}
}

func TestSpendByCardEnrichment(t *testing.T) {
	store := &fakeStore{cards: []models.CardSpend{
		{CardLast4: "4321", Total: decimal.NewFromInt(10)},
		{CardLast4: "0000", Total: decimal.NewFromInt(5)},
	}}
	svc := newTestService(store)

	got, err := svc.SpendByCard(context.Background(), 1, LastDays(time.Now(), 7))
	if err != nil {
		t.Fatal(err)
	}
	if got[0].CardName != "Regalia Gold" || got[0].Bank != "HDFC Bank" {
		t.Fatalf("got %+v, want Regalia Gold", got[0])
	}
	if got[1].CardName != "" {
		t.Fatalf("unknown card should stay bare, got %+v", got[1])
	}
}

func TestRanges(t *testing.T) {
	now := time.Date(2024, 2, 15, 18, 0, 0, 0, time.UTC)

	m := MonthRange(now)
	if !m.From.Equal(time.Date(2024, 2, 1, 0, 0, 0, 0, time.UTC)) || !m.To.Equal(time.Date(2024, 3, 1, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("got %v - %v", m.From, m.To)
	}

	l := LastDays(now, 7)
	if !l.From.Equal(time.Date(2024, 2, 9, 0, 0, 0, 0, time.UTC)) || !l.To.Equal(time.Date(2024, 2, 16, 0, 0, 0, 0, time.UTC)) {
		t.Fatalf("got %v - %v", l.From, l.To)
	}
	if !l.Contains(now) {
		t.Fatal("last days should include now")
	}
}
