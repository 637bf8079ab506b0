package cards

import (
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixelka/expensesync/pkg/models"
)

// Period is the window a milestone is evaluated over. End is exclusive:
// an inclusive end date at 23:59:59 is stored as the following midnight.
type Period struct {
	models.DateRange
	Label string
}

var quarterMonths = [4]string{"Jan–Mar", "Apr–Jun", "Jul–Sep", "Oct–Dec"}

// Period resolves the milestone window that contains now, in now's location
func (m Milestone) Period(now time.Time) Period {
	loc := now.Location()

	switch {
	case m.Duration == Quarterly:
		q := (int(now.Month()) - 1) / 3
		start := time.Date(now.Year(), time.Month(q*3+1), 1, 0, 0, 0, 0, loc)
		return Period{
			DateRange: models.DateRange{From: start, To: start.AddDate(0, 3, 0)},
			Label:     fmt.Sprintf("Q%d %d (%s)", q+1, now.Year(), quarterMonths[q]),
		}

	case m.StartDate != "" && m.EndDate != "":
		start, errS := time.ParseInLocation(dateLayout, m.StartDate, loc)
		end, errE := time.ParseInLocation(dateLayout, m.EndDate, loc)
		if errS == nil && errE == nil {
			return Period{
				DateRange: models.DateRange{From: start, To: end.AddDate(0, 0, 1)},
				Label:     fmt.Sprintf("%s – %s", start.Format("02 Jan 2006"), end.Format("02 Jan 2006")),
			}
		}
	}

	start := time.Date(now.Year(), time.January, 1, 0, 0, 0, 0, loc)
	return Period{
		DateRange: models.DateRange{From: start, To: start.AddDate(1, 0, 0)},
		Label:     fmt.Sprintf("%d", now.Year()),
	}
}

// Progress is a milestone evaluated against spend so far
type Progress struct {
	Milestone           Milestone
	Period              Period
	Spend               decimal.Decimal
	Remaining           decimal.Decimal
	Percentage          float64
	DailyRate           decimal.Decimal
	DaysRemaining       int
	EstimatedCompletion *time.Time
	OnTrack             bool
}

// Achieved reports whether the target has been reached
func (p Progress) Achieved() bool {
	return !p.Remaining.IsPositive()
}

var hundred = decimal.NewFromInt(100)

// Evaluate computes progress, remaining amount and a completion forecast
// from the average daily spend since the period started.
func Evaluate(m Milestone, period Period, spend decimal.Decimal, now time.Time) Progress {
	p := Progress{
		Milestone: m,
		Period:    period,
		Spend:     spend,
		Remaining: decimal.Max(decimal.Zero, m.Amount.Sub(spend)),
	}

	if m.Amount.IsPositive() {
		pct, _ := spend.Div(m.Amount).Mul(hundred).Float64()
		p.Percentage = math.Max(0, math.Min(100, pct))
	} else {
		p.Percentage = 100
	}

	today := startOfDay(now)
	elapsed := calendarDays(period.From, today)
	if elapsed < 1 {
		elapsed = 1
	}
	p.DailyRate = spend.Div(decimal.NewFromInt(int64(elapsed)))

	if p.DailyRate.IsPositive() && p.Remaining.IsPositive() {
		p.DaysRemaining = int(p.Remaining.Div(p.DailyRate).Ceil().IntPart())
		eta := today.AddDate(0, 0, p.DaysRemaining)
		p.EstimatedCompletion = &eta
	}

	switch {
	case !p.Remaining.IsPositive():
		p.OnTrack = true
	case p.EstimatedCompletion != nil:
		p.OnTrack = p.EstimatedCompletion.Before(period.To)
	}
	return p
}

func startOfDay(t time.Time) time.Time {
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, t.Location())
}

// calendarDays counts midnights between the dates of from and to. Dates are
// compared in UTC so DST shifts cannot shorten a day.
func calendarDays(from, to time.Time) int {
	a := time.Date(from.Year(), from.Month(), from.Day(), 0, 0, 0, 0, time.UTC)
	b := time.Date(to.Year(), to.Month(), to.Day(), 0, 0, 0, 0, time.UTC)
	return int(b.Sub(a).Hours() / 24)
}
