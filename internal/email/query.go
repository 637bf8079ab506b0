package email

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/emersion/go-imap"
)

// ParseQuery translates the search syntax used for syncs into IMAP SEARCH
// criteria. Supported terms:
//
//	subject:(a OR "b c")   subject contains any of the terms
//	subject:word           subject contains word
//	after:<unix seconds>   received on or after that day
//	newer_than:<n>d        received within the last n days
//
// IMAP date searches have day granularity, so after: may return a few
// messages from earlier that same day.
func ParseQuery(query string, now time.Time) (*imap.SearchCriteria, error) {
	criteria := imap.NewSearchCriteria()
	rest := strings.TrimSpace(query)

	for rest != "" {
		var term string
		term, rest = nextTerm(rest)

		key, value, ok := strings.Cut(term, ":")
		if !ok {
			return nil, fmt.Errorf("unsupported search term %q", term)
		}
		switch strings.ToLower(key) {
		case "subject":
			words := subjectTerms(value)
			if len(words) == 0 {
				return nil, fmt.Errorf("empty subject clause")
			}
			if len(words) == 1 {
				criteria.Header.Add("Subject", words[0])
			} else {
				criteria.Or = append(criteria.Or, orSubjects(words))
			}
		case "after":
			sec, err := strconv.ParseInt(value, 10, 64)
			if err != nil {
				return nil, fmt.Errorf("invalid after value %q: %w", value, err)
			}
			criteria.Since = time.Unix(sec, 0).UTC()
		case "newer_than":
			days, err := strconv.Atoi(strings.TrimSuffix(value, "d"))
			if err != nil || !strings.HasSuffix(value, "d") || days <= 0 {
				return nil, fmt.Errorf("invalid newer_than value %q", value)
			}
			criteria.Since = now.AddDate(0, 0, -days)
		default:
			return nil, fmt.Errorf("unsupported search key %q", key)
		}
	}
	return criteria, nil
}

// nextTerm splits off one term, keeping parentheses and quotes together
func nextTerm(s string) (string, string) {
	depth := 0
	quoted := false
	for i, r := range s {
		switch {
		case r == '"':
			quoted = !quoted
		case quoted:
		case r == '(':
			depth++
		case r == ')':
			depth--
		case r == ' ' && depth == 0:
			return s[:i], strings.TrimSpace(s[i+1:])
		}
	}
	return s, ""
}

func subjectTerms(value string) []string {
	value = strings.TrimSpace(value)
	if strings.HasPrefix(value, "(") && strings.HasSuffix(value, ")") {
		value = value[1 : len(value)-1]
	}

	var terms []string
	for _, part := range splitOr(value) {
		part = strings.Trim(strings.TrimSpace(part), `"`)
		if part != "" {
			terms = append(terms, part)
		}
	}
	return terms
}

// splitOr splits on " OR " outside quotes
func splitOr(s string) []string {
	var (
		parts  []string
		start  int
		quoted bool
	)
	for i := 0; i < len(s); i++ {
		switch {
		case s[i] == '"':
			quoted = !quoted
		case !quoted && strings.HasPrefix(s[i:], " OR "):
			parts = append(parts, s[start:i])
			start = i + len(" OR ")
			i = start - 1
		}
	}
	return append(parts, s[start:])
}

// orSubjects nests terms as OR(a, OR(b, c))
func orSubjects(words []string) [2]*imap.SearchCriteria {
	left := imap.NewSearchCriteria()
	left.Header.Add("Subject", words[0])

	right := imap.NewSearchCriteria()
	if len(words) == 2 {
		right.Header.Add("Subject", words[1])
	} else {
		right.Or = append(right.Or, orSubjects(words[1:]))
	}
	return [2]*imap.SearchCriteria{left, right}
}
