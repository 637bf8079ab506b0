package parser

import (
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/mixelka/expensesync/pkg/models"
)

var (
	spaceRegex     = regexp.MustCompile(`[\t\f\r\v \x{00A0}]+`)
	invisibleRegex = regexp.MustCompile(`[\x{200B}-\x{200D}\x{FEFF}\x{00AD}\x{034F}\x{061C}\x{180E}\x{2060}-\x{2064}\x{FE00}-\x{FE0F}]+`)
)

// HTMLText flattens an HTML body into one text line per block element.
// Table cells are separated by a space so "Amount" and "Rs. 100" stay on
// one line.
func HTMLText(html string) (string, error) {
	if html == "" {
		return "", nil
	}

	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return "", err
	}

	doc.Find("script, style, head, meta, link").Remove()
	doc.Find("p, div, br, h1, h2, h3, h4, h5, h6, li, tr").Each(func(_ int, s *goquery.Selection) {
		s.PrependHtml("\n")
	})
	doc.Find("td, th").Each(func(_ int, s *goquery.Selection) {
		s.AppendHtml(" ")
	})

	return cleanText(doc.Text()), nil
}

func cleanText(text string) string {
	text = invisibleRegex.ReplaceAllString(text, "")
	text = spaceRegex.ReplaceAllString(text, " ")

	lines := strings.Split(text, "\n")
	kept := lines[:0]
	for _, line := range lines {
		if line = strings.TrimSpace(line); line != "" {
			kept = append(kept, line)
		}
	}
	return strings.Join(kept, "\n")
}

// Body returns the searchable text of an email: the plain part when present,
// the flattened HTML part otherwise, and the snippet as a last resort
func Body(email *models.RawEmail) string {
	if t := strings.TrimSpace(email.BodyText); t != "" {
		return cleanText(t)
	}
	if email.BodyHTML != "" {
		if t, err := HTMLText(email.BodyHTML); err == nil && t != "" {
			return t
		}
	}
	return cleanText(email.Snippet)
}
