package cards

import (
	"context"
	"fmt"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixelka/expensesync/pkg/models"
)

// SpendSource returns per-card daily spend over one covering range
type SpendSource interface {
	CardDailySpend(ctx context.Context, userID int64, cards []string, r models.DateRange) ([]models.CardDailySpend, error)
}

// CardProgress is every milestone of one card, evaluated
type CardProgress struct {
	Card       Card
	Milestones []Progress
}

// Engine evaluates milestones for many cards with a single spend lookup
type Engine struct {
	resolver *Resolver
	spend    SpendSource
}

// NewEngine creates a milestone engine
func NewEngine(resolver *Resolver, spend SpendSource) *Engine {
	return &Engine{resolver: resolver, spend: spend}
}

// Progress evaluates the milestones of the given cards, or of every
// configured card when last4s is empty. All windows are fetched in one query
// spanning their union and sliced in memory.
func (e *Engine) Progress(ctx context.Context, userID int64, last4s []string, now time.Time) ([]CardProgress, error) {
	var cards []Card
	if len(last4s) == 0 {
		cards = e.resolver.WithMilestones()
	} else {
		for _, l := range last4s {
			if c, ok := e.resolver.Resolve(l); ok && len(c.Milestones) > 0 {
				cards = append(cards, c)
			}
		}
	}
	if len(cards) == 0 {
		return nil, nil
	}

	periods := make([][]Period, len(cards))
	var union models.DateRange
	ids := make([]string, 0, len(cards))
	for i, c := range cards {
		ids = append(ids, c.Last4)
		periods[i] = make([]Period, len(c.Milestones))
		for j, m := range c.Milestones {
			p := m.Period(now)
			periods[i][j] = p
			if union.From.IsZero() || p.From.Before(union.From) {
				union.From = p.From
			}
			if p.To.After(union.To) {
				union.To = p.To
			}
		}
	}

	rows, err := e.spend.CardDailySpend(ctx, userID, ids, union)
	if err != nil {
		return nil, fmt.Errorf("failed to load card spend: %w", err)
	}

	byCard := make(map[string][]dayTotal, len(cards))
	for _, r := range rows {
		day, err := time.ParseInLocation(dateLayout, r.Day, now.Location())
		if err != nil {
			return nil, fmt.Errorf("failed to parse spend day %q: %w", r.Day, err)
		}
		byCard[r.CardLast4] = append(byCard[r.CardLast4], dayTotal{day: day, total: r.Total})
	}

	out := make([]CardProgress, 0, len(cards))
	for i, c := range cards {
		cp := CardProgress{Card: c, Milestones: make([]Progress, 0, len(c.Milestones))}
		for j, m := range c.Milestones {
			p := periods[i][j]
			cp.Milestones = append(cp.Milestones, Evaluate(m, p, sumWithin(byCard[c.Last4], p.DateRange), now))
		}
		out = append(out, cp)
	}
	return out, nil
}

type dayTotal struct {
	day   time.Time
	total decimal.Decimal
}

func sumWithin(days []dayTotal, r models.DateRange) decimal.Decimal {
	sum := decimal.Zero
	for _, d := range days {
		if r.Contains(d.day) {
			sum = sum.Add(d.total)
		}
	}
	return sum
}
