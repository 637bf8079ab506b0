package analytics

import (
	"context"
	"log/slog"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixelka/expensesync/internal/cards"
	"github.com/mixelka/expensesync/pkg/models"
)

// Store is the aggregation side of the transaction repository
type Store interface {
	SpendByCategory(ctx context.Context, userID int64, r models.DateRange) ([]models.CategorySpend, error)
	SpendByMode(ctx context.Context, userID int64, r models.DateRange) ([]models.ModeSpend, error)
	SpendByCard(ctx context.Context, userID int64, r models.DateRange) ([]models.CardSpend, error)
	SpendByWeekday(ctx context.Context, userID int64, r models.DateRange) ([]models.WeekdaySpend, error)
	DailySpend(ctx context.Context, userID int64, r models.DateRange) ([]models.DailySpend, error)
	PeriodTotals(ctx context.Context, userID int64, r models.DateRange) (models.PeriodTotals, error)
	TopMerchants(ctx context.Context, userID int64, r models.DateRange, limit int) ([]models.MerchantSpend, error)
	LargestTransactions(ctx context.Context, userID int64, r models.DateRange, limit int) ([]*models.Transaction, error)
}

// Service answers analytics reads through the cache
type Service struct {
	store    Store
	cache    *Cache
	resolver *cards.Resolver
	engine   *cards.Engine
	logger   *slog.Logger
	now      func() time.Time
}

// Deps holds service dependencies
type Deps struct {
	Store    Store
	Cache    *Cache
	Resolver *cards.Resolver
	Engine   *cards.Engine
	Logger   *slog.Logger
}

// NewService creates an analytics service
func NewService(deps Deps) *Service {
	return &Service{
		store:    deps.Store,
		cache:    deps.Cache,
		resolver: deps.Resolver,
		engine:   deps.Engine,
		logger:   deps.Logger.With("component", "analytics"),
		now:      time.Now,
	}
}

type rangeParams struct {
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Limit int       `json:"limit,omitempty"`
}

func params(r models.DateRange, limit int) rangeParams {
	return rangeParams{From: r.From.UTC(), To: r.To.UTC(), Limit: limit}
}

// SpendByCategory returns debit totals per category
func (s *Service) SpendByCategory(ctx context.Context, userID int64, r models.DateRange) ([]models.CategorySpend, error) {
	return Remember(ctx, s.cache, userID, "category", params(r, 0), func(ctx context.Context) ([]models.CategorySpend, error) {
		return s.store.SpendByCategory(ctx, userID, r)
	})
}

// SpendByMode returns debit totals per payment mode
func (s *Service) SpendByMode(ctx context.Context, userID int64, r models.DateRange) ([]models.ModeSpend, error) {
	return Remember(ctx, s.cache, userID, "mode", params(r, 0), func(ctx context.Context) ([]models.ModeSpend, error) {
		return s.store.SpendByMode(ctx, userID, r)
	})
}

// SpendByCard returns debit totals per card with card metadata filled in
func (s *Service) SpendByCard(ctx context.Context, userID int64, r models.DateRange) ([]models.CardSpend, error) {
	return Remember(ctx, s.cache, userID, "card", params(r, 0), func(ctx context.Context) ([]models.CardSpend, error) {
		rows, err := s.store.SpendByCard(ctx, userID, r)
		if err != nil {
			return nil, err
		}
		for i := range rows {
			if c, ok := s.resolver.Resolve(rows[i].CardLast4); ok {
				rows[i].CardName = c.Name
				rows[i].Bank = c.Bank
				rows[i].Icon = c.Icon
			}
		}
		return rows, nil
	})
}

// SpendByWeekday returns debit totals per day of week
func (s *Service) SpendByWeekday(ctx context.Context, userID int64, r models.DateRange) ([]models.WeekdaySpend, error) {
	return Remember(ctx, s.cache, userID, "weekday", params(r, 0), func(ctx context.Context) ([]models.WeekdaySpend, error) {
		return s.store.SpendByWeekday(ctx, userID, r)
	})
}

// CumulativeSpend returns daily debit totals with a running sum
func (s *Service) CumulativeSpend(ctx context.Context, userID int64, r models.DateRange) ([]models.DailySpend, error) {
	return Remember(ctx, s.cache, userID, "cumulative", params(r, 0), func(ctx context.Context) ([]models.DailySpend, error) {
		rows, err := s.store.DailySpend(ctx, userID, r)
		if err != nil {
			return nil, err
		}
		running := decimal.Zero
		for i := range rows {
			running = running.Add(rows[i].Total)
			rows[i].Cumulative = running
		}
		return rows, nil
	})
}

// PeriodTotals returns debit and credit totals
func (s *Service) PeriodTotals(ctx context.Context, userID int64, r models.DateRange) (models.PeriodTotals, error) {
	return Remember(ctx, s.cache, userID, "totals", params(r, 0), func(ctx context.Context) (models.PeriodTotals, error) {
		return s.store.PeriodTotals(ctx, userID, r)
	})
}

// TopMerchants returns the merchants with the highest spend
func (s *Service) TopMerchants(ctx context.Context, userID int64, r models.DateRange, limit int) ([]models.MerchantSpend, error) {
	return Remember(ctx, s.cache, userID, "merchants", params(r, limit), func(ctx context.Context) ([]models.MerchantSpend, error) {
		return s.store.TopMerchants(ctx, userID, r, limit)
	})
}

// LargestTransactions returns the biggest debits
func (s *Service) LargestTransactions(ctx context.Context, userID int64, r models.DateRange, limit int) ([]*models.Transaction, error) {
	return Remember(ctx, s.cache, userID, "largest", params(r, limit), func(ctx context.Context) ([]*models.Transaction, error) {
		return s.store.LargestTransactions(ctx, userID, r, limit)
	})
}

// CardMilestones evaluates every configured card milestone as of now
func (s *Service) CardMilestones(ctx context.Context, userID int64) ([]cards.CardProgress, error) {
	now := s.now()
	return Remember(ctx, s.cache, userID, "milestones", now.Format("2006-01-02"), func(ctx context.Context) ([]cards.CardProgress, error) {
		return s.engine.Progress(ctx, userID, nil, now)
	})
}

// Summary is the overview shown for a period
type Summary struct {
	Range      models.DateRange
	Totals     models.PeriodTotals
	Categories []models.CategorySpend
	Merchants  []models.MerchantSpend
}

// Summary combines totals, categories and top merchants for a range
func (s *Service) Summary(ctx context.Context, userID int64, r models.DateRange) (*Summary, error) {
	totals, err := s.PeriodTotals(ctx, userID, r)
	if err != nil {
		return nil, err
	}
	categories, err := s.SpendByCategory(ctx, userID, r)
	if err != nil {
		return nil, err
	}
	merchants, err := s.TopMerchants(ctx, userID, r, 5)
	if err != nil {
		return nil, err
	}
	return &Summary{Range: r, Totals: totals, Categories: categories, Merchants: merchants}, nil
}

// RunJanitor sweeps expired cache entries until ctx is done
func (s *Service) RunJanitor(ctx context.Context, every time.Duration) {
	ticker := time.NewTicker(every)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if n := s.cache.Sweep(); n > 0 {
				s.logger.Debug("swept analytics cache", "removed", n)
			}
		}
	}
}

// MonthRange is the calendar month containing now
func MonthRange(now time.Time) models.DateRange {
	start := time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, now.Location())
	return models.DateRange{From: start, To: start.AddDate(0, 1, 0)}
}

// LastDays is the n days up to and including today
func LastDays(now time.Time, n int) models.DateRange {
	end := time.Date(now.Year(), now.Month(), now.Day(), 0, 0, 0, 0, now.Location()).AddDate(0, 0, 1)
	return models.DateRange{From: end.AddDate(0, 0, -n), To: end}
}
