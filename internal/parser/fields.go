package parser

import (
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/shopspring/decimal"
)

// Transaction modes as stored on transactions
const (
	ModeUPI        = "upi"
	ModeCard       = "card"
	ModeATM        = "atm"
	ModeNetBanking = "netbanking"
	ModeNEFT       = "neft"
	ModeIMPS       = "imps"
	ModeRTGS       = "rtgs"
	ModeOther      = "other"
)

var (
	amountRegex = regexp.MustCompile(`(?i)(?:rs\.?|inr|₹)\s*([0-9][0-9,]*(?:\.[0-9]{1,2})?)`)
	vpaRegex    = regexp.MustCompile(`[a-zA-Z0-9][a-zA-Z0-9.\-_]*@[a-zA-Z][a-zA-Z0-9]+`)

	cardPatterns = []*regexp.Regexp{
		regexp.MustCompile(`(?i)card\s*(?:no\.?|number)?\s*(?:ending\s*(?:with|in)?)?\s*[:\-]?[x*\s]*(\d{4})\b`),
		regexp.MustCompile(`(?i)card[^.\n]{0,40}?ending\s*(?:with|in)?[x*\s]*(\d{4})\b`),
	}

	datePatterns = []struct {
		regex  *regexp.Regexp
		layout func(m []string) (time.Time, bool)
	}{
		{regexp.MustCompile(`\b(\d{4})-(\d{2})-(\d{2})\b`), func(m []string) (time.Time, bool) {
			return civilDate(m[1], m[2], m[3])
		}},
		{regexp.MustCompile(`\b(\d{1,2})[-/.](\d{1,2})[-/.](\d{2,4})\b`), func(m []string) (time.Time, bool) {
			return civilDate(m[3], m[2], m[1])
		}},
		{regexp.MustCompile(`(?i)\b(\d{1,2})[- ]?(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*[-, ]+(\d{2,4})\b`), func(m []string) (time.Time, bool) {
			mon, ok := months[strings.ToLower(m[2])]
			if !ok {
				return time.Time{}, false
			}
			return civilDate(m[3], strconv.Itoa(mon), m[1])
		}},
		{regexp.MustCompile(`(?i)\b(jan|feb|mar|apr|may|jun|jul|aug|sep|oct|nov|dec)[a-z]*\s+(\d{1,2}),?\s+(\d{4})\b`), func(m []string) (time.Time, bool) {
			mon, ok := months[strings.ToLower(m[1])]
			if !ok {
				return time.Time{}, false
			}
			return civilDate(m[3], strconv.Itoa(mon), m[2])
		}},
	}

	months = map[string]int{
		"jan": 1, "feb": 2, "mar": 3, "apr": 4, "may": 5, "jun": 6,
		"jul": 7, "aug": 8, "sep": 9, "oct": 10, "nov": 11, "dec": 12,
	}
)

// parseAmount reads a number like "1,23,456.70"
func parseAmount(s string) (decimal.Decimal, bool) {
	d, err := decimal.NewFromString(strings.ReplaceAll(s, ",", ""))
	if err != nil {
		return decimal.Zero, false
	}
	return d, true
}

// findAmount returns the first currency amount in text
func findAmount(text string) (decimal.Decimal, bool) {
	m := amountRegex.FindStringSubmatch(text)
	if m == nil {
		return decimal.Zero, false
	}
	return parseAmount(m[1])
}

// amountAfter returns the first currency amount that follows one of the labels
func amountAfter(text string, labels ...string) (decimal.Decimal, bool) {
	lower := strings.ToLower(text)
	for _, label := range labels {
		idx := strings.Index(lower, label)
		if idx < 0 {
			continue
		}
		window := text[idx+len(label):]
		if len(window) > 80 {
			window = window[:80]
		}
		if d, ok := findAmount(window); ok {
			return d, true
		}
		// some banks print the bare number after the label
		if m := bareNumber.FindStringSubmatch(window); m != nil {
			return parseAmount(m[1])
		}
	}
	return decimal.Zero, false
}

var bareNumber = regexp.MustCompile(`^[\s:\-]*([0-9][0-9,]*\.[0-9]{2})\b`)

// findVPA returns the first UPI address, skipping ordinary email addresses
func findVPA(text string) string {
	for _, loc := range vpaRegex.FindAllStringIndex(text, -1) {
		end := loc[1]
		if end+1 < len(text) && text[end] == '.' && isLetter(text[end+1]) {
			continue
		}
		return strings.ToLower(text[loc[0]:end])
	}
	return ""
}

func isLetter(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z'
}

// findCardLast4 returns the last four digits of a card mentioned in text
func findCardLast4(text string) string {
	for _, p := range cardPatterns {
		if m := p.FindStringSubmatch(text); m != nil {
			return m[1]
		}
	}
	return ""
}

// findDate returns the first calendar date in text, in loc
func findDate(text string, loc *time.Location) (time.Time, bool) {
	for _, p := range datePatterns {
		for _, m := range p.regex.FindAllStringSubmatch(text, -1) {
			if t, ok := p.layout(m); ok {
				return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, loc), true
			}
		}
	}
	return time.Time{}, false
}

// dateAfter returns the first date that follows one of the labels
func dateAfter(text string, loc *time.Location, labels ...string) (time.Time, bool) {
	lower := strings.ToLower(text)
	for _, label := range labels {
		idx := strings.Index(lower, label)
		if idx < 0 {
			continue
		}
		window := text[idx+len(label):]
		if len(window) > 60 {
			window = window[:60]
		}
		if t, ok := findDate(window, loc); ok {
			return t, true
		}
	}
	return time.Time{}, false
}

func civilDate(y, m, d string) (time.Time, bool) {
	year, err1 := strconv.Atoi(y)
	month, err2 := strconv.Atoi(m)
	day, err3 := strconv.Atoi(d)
	if err1 != nil || err2 != nil || err3 != nil {
		return time.Time{}, false
	}
	if year < 100 {
		year += 2000
	}
	if month < 1 || month > 12 || day < 1 || day > 31 {
		return time.Time{}, false
	}
	t := time.Date(year, time.Month(month), day, 0, 0, 0, 0, time.UTC)
	// rejects 31-02 and the like, which time.Date would normalise
	if t.Day() != day {
		return time.Time{}, false
	}
	return t, true
}

// detectMode infers the payment rail from the alert text
func detectMode(lower, vpa, card string) string {
	switch {
	case vpa != "" || containsWord(lower, "upi"):
		return ModeUPI
	case containsWord(lower, "atm"):
		return ModeATM
	case containsWord(lower, "neft"):
		return ModeNEFT
	case containsWord(lower, "imps"):
		return ModeIMPS
	case containsWord(lower, "rtgs"):
		return ModeRTGS
	case card != "" || strings.Contains(lower, "credit card") || strings.Contains(lower, "debit card"):
		return ModeCard
	case strings.Contains(lower, "net banking") || strings.Contains(lower, "netbanking"):
		return ModeNetBanking
	}
	return ModeOther
}

func containsWord(s, word string) bool {
	for i := strings.Index(s, word); i >= 0; {
		end := i + len(word)
		if (i == 0 || !isWordChar(s[i-1])) && (end == len(s) || !isWordChar(s[end])) {
			return true
		}
		next := strings.Index(s[i+1:], word)
		if next < 0 {
			return false
		}
		i += next + 1
	}
	return false
}

func isWordChar(b byte) bool {
	return b >= 'a' && b <= 'z' || b >= 'A' && b <= 'Z' || b >= '0' && b <= '9'
}
