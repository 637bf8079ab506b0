package formatter

import (
	"fmt"
	"strings"
	"time"

	"github.com/shopspring/decimal"

	"github.com/mixelka/expensesync/internal/analytics"
	"github.com/mixelka/expensesync/internal/cards"
	"github.com/mixelka/expensesync/pkg/models"
)

// TelegramFormatter renders bot replies as Telegram HTML
type TelegramFormatter struct {
	maxLength int
}

// NewTelegramFormatter creates a new Telegram formatter
func NewTelegramFormatter() *TelegramFormatter {
	return &TelegramFormatter{
		maxLength: 4000, // Leave room for markup
	}
}

var statusIcons = map[models.JobStatus]string{
	models.JobPending:    "⏳",
	models.JobProcessing: "🔄",
	models.JobCompleted:  "✅",
	models.JobFailed:     "❌",
}

// FormatJobStatus formats one job's progress
func (f *TelegramFormatter) FormatJobStatus(v models.JobStatusView) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "%s <b>%s</b> <code>%s</code>\n", statusIcons[v.Status], f.escapeHTML(string(v.Kind)), f.escapeHTML(v.JobID))
	fmt.Fprintf(&sb, "<b>Status:</b> %s\n", v.Status)
	fmt.Fprintf(&sb, "<b>Emails:</b> %d/%d", v.ProcessedEmails, v.TotalEmails)
	if v.Kind == models.JobSync {
		fmt.Fprintf(&sb, " (%d new)", v.NewEmails)
	}
	fmt.Fprintf(&sb, "\n<b>Transactions:</b> %d\n<b>Statements:</b> %d", v.Transactions, v.Statements)
	if v.ErrorMessage != "" {
		fmt.Fprintf(&sb, "\n<b>Error:</b> %s", f.escapeHTML(v.ErrorMessage))
	}
	return sb.String()
}

// FormatJobList formats recent jobs, newest first
func (f *TelegramFormatter) FormatJobList(jobs []models.JobStatusView) string {
	if len(jobs) == 0 {
		return "No sync jobs yet. Use /sync to start one."
	}

	var sb strings.Builder
	sb.WriteString("<b>Recent jobs</b>\n")
	for _, j := range jobs {
		fmt.Fprintf(&sb, "\n%s %s %d/%d, %d txns <code>%s</code>",
			statusIcons[j.Status], j.Kind, j.ProcessedEmails, j.TotalEmails, j.Transactions, f.escapeHTML(j.JobID))
	}
	return sb.String()
}

// FormatSummary formats the spend overview of a period
func (f *TelegramFormatter) FormatSummary(s *analytics.Summary) string {
	var sb strings.Builder

	fmt.Fprintf(&sb, "<b>Spend %s</b>\n", formatRange(s.Range))
	fmt.Fprintf(&sb, "Debits: <b>%s</b>\nCredits: %s\nTransactions: %d\n",
		FormatAmount(s.Totals.Debits), FormatAmount(s.Totals.Credits), s.Totals.Count)

	if len(s.Categories) > 0 {
		sb.WriteString("\n<b>By category</b>\n")
		for _, c := range s.Categories {
			name := c.Category
			if c.Subcategory != "" {
				name += " / " + c.Subcategory
			}
			fmt.Fprintf(&sb, "%s: %s (%d)\n", f.escapeHTML(name), FormatAmount(c.Total), c.Count)
		}
	}

	if len(s.Merchants) > 0 {
		sb.WriteString("\n<b>Top merchants</b>\n")
		f.writeMerchants(&sb, s.Merchants)
	}
	return f.truncate(sb.String())
}

// FormatTopMerchants formats a merchant ranking
func (f *TelegramFormatter) FormatTopMerchants(r models.DateRange, merchants []models.MerchantSpend) string {
	if len(merchants) == 0 {
		return fmt.Sprintf("No spend %s.", formatRange(r))
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>Top merchants %s</b>\n", formatRange(r))
	f.writeMerchants(&sb, merchants)
	return f.truncate(sb.String())
}

func (f *TelegramFormatter) writeMerchants(sb *strings.Builder, merchants []models.MerchantSpend) {
	for i, m := range merchants {
		fmt.Fprintf(sb, "%d. %s: %s (%d)\n", i+1, f.escapeHTML(m.Merchant), FormatAmount(m.Total), m.Count)
	}
}

// FormatCards formats per-card spend and milestone progress
func (f *TelegramFormatter) FormatCards(spend []models.CardSpend, progress []cards.CardProgress) string {
	if len(spend) == 0 && len(progress) == 0 {
		return "No card spend this month."
	}

	var sb strings.Builder
	if len(spend) > 0 {
		sb.WriteString("<b>Cards this month</b>\n")
		for _, c := range spend {
			name := c.CardName
			if name == "" {
				name = "Card"
			}
			fmt.Fprintf(&sb, "%s %s ••%s: %s (%d)\n", c.Icon, f.escapeHTML(name), c.CardLast4, FormatAmount(c.Total), c.Count)
		}
	}

	for _, cp := range progress {
		fmt.Fprintf(&sb, "\n<b>%s %s</b>\n", cp.Card.Icon, f.escapeHTML(cp.Card.Name))
		for _, p := range cp.Milestones {
			sb.WriteString(f.formatProgress(p))
		}
	}
	return f.truncate(strings.TrimLeft(sb.String(), "\n"))
}

func (f *TelegramFormatter) formatProgress(p cards.Progress) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s (%s)\n", f.escapeHTML(p.Milestone.Description), f.escapeHTML(p.Period.Label))
	fmt.Fprintf(&sb, "%s %.0f%% %s / %s\n", progressBar(p.Percentage), p.Percentage, FormatAmount(p.Spend), FormatAmount(p.Milestone.Amount))

	switch {
	case p.Achieved():
		sb.WriteString("🎉 Achieved\n")
	case p.EstimatedCompletion != nil:
		track := "behind"
		if p.OnTrack {
			track = "on track"
		}
		fmt.Fprintf(&sb, "%s to go, ETA %s (%s)\n", FormatAmount(p.Remaining), p.EstimatedCompletion.Format("02 Jan 2006"), track)
	default:
		fmt.Fprintf(&sb, "%s to go, no spend yet\n", FormatAmount(p.Remaining))
	}
	return sb.String()
}

// FormatTransaction formats one transaction on a single line
func (f *TelegramFormatter) FormatTransaction(t *models.Transaction) string {
	name := t.MerchantRaw
	if name == "" {
		name = t.VPA
	}
	sign := "-"
	if t.TransactionType == models.Credit {
		sign = "+"
	}
	category := t.Category
	if t.Subcategory != "" {
		category += " / " + t.Subcategory
	}
	return fmt.Sprintf("#%d %s %s%s %s → %s", t.ID, t.TransactionDate.Format("02 Jan"), sign,
		FormatAmount(t.Amount), f.escapeHTML(name), f.escapeHTML(category))
}

// FormatReviewQueue formats transactions awaiting confirmation
func (f *TelegramFormatter) FormatReviewQueue(txs []*models.Transaction, total int) string {
	if total == 0 {
		return "Nothing to review 👌"
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "<b>To review:</b> %d\n\n", total)
	for _, t := range txs {
		sb.WriteString(f.FormatTransaction(t))
		fmt.Fprintf(&sb, " <i>(%.0f%%)</i>\n", t.Confidence*100)
	}
	if total > len(txs) {
		fmt.Fprintf(&sb, "\n… and %d more", total-len(txs))
	}
	sb.WriteString("\nFix one with /recat &lt;id&gt; &lt;category&gt;[/subcategory]")
	return f.truncate(sb.String())
}

// FormatRules formats a user's merchant rules
func (f *TelegramFormatter) FormatRules(rules []*models.MerchantRule) string {
	if len(rules) == 0 {
		return "No merchant rules yet. Add one with /rule &lt;merchant&gt; = &lt;category&gt;"
	}

	var sb strings.Builder
	sb.WriteString("<b>Merchant rules</b>\n")
	for _, r := range rules {
		category := r.Category
		if r.Subcategory != "" {
			category += " / " + r.Subcategory
		}
		fmt.Fprintf(&sb, "%s → %s\n", f.escapeHTML(r.Merchant), f.escapeHTML(category))
	}
	return f.truncate(sb.String())
}

// FormatAmount renders rupees with Indian digit grouping, e.g. ₹1,23,456.50
func FormatAmount(d decimal.Decimal) string {
	sign := ""
	if d.IsNegative() {
		sign = "-"
		d = d.Neg()
	}

	whole, frac, _ := strings.Cut(d.StringFixed(2), ".")
	if len(whole) > 3 {
		head, tail := whole[:len(whole)-3], whole[len(whole)-3:]
		var groups []string
		for len(head) > 2 {
			groups = append([]string{head[len(head)-2:]}, groups...)
			head = head[:len(head)-2]
		}
		groups = append([]string{head}, groups...)
		whole = strings.Join(groups, ",") + "," + tail
	}
	return sign + "₹" + whole + "." + frac
}

func formatRange(r models.DateRange) string {
	last := r.To.Add(-time.Nanosecond)
	return fmt.Sprintf("%s – %s", r.From.Format("02 Jan"), last.Format("02 Jan 2006"))
}

func progressBar(pct float64) string {
	filled := int(pct / 10)
	return strings.Repeat("▓", filled) + strings.Repeat("░", 10-filled)
}

var htmlEscaper = strings.NewReplacer("&", "&amp;", "<", "&lt;", ">", "&gt;")

// Escape escapes HTML special characters for Telegram
func Escape(s string) string {
	return htmlEscaper.Replace(s)
}

func (f *TelegramFormatter) escapeHTML(s string) string {
	return Escape(s)
}

// truncate cuts at a line boundary so no HTML tag is split
func (f *TelegramFormatter) truncate(s string) string {
	runes := []rune(s)
	if len(runes) <= f.maxLength {
		return s
	}
	cut := string(runes[:f.maxLength])
	if i := strings.LastIndex(cut, "\n"); i > 0 {
		cut = cut[:i]
	}
	return cut + "\n<i>… truncated</i>"
}
