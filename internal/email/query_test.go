package email

import (
	"testing"
	"time"
)

func TestParseQuerySubjectsAndWindow(t *testing.T) {
	now := time.Date(2024, 5, 15, 12, 0, 0, 0, time.UTC)

	c, err := ParseQuery(`subject:(debited OR "transaction alert") newer_than:90d`, now)
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if len(c.Or) != 1 {
		t.Fatalf("got %d OR clauses, want 1", len(c.Or))
	}
	if got := c.Or[0][0].Header.Get("Subject"); got != "debited" {
		t.Fatalf("got left subject %q, want debited", got)
	}
	if got := c.Or[0][1].Header.Get("Subject"); got != "transaction alert" {
		t.Fatalf("got right subject %q, want %q", got, "transaction alert")
	}
	if want := now.AddDate(0, 0, -90); !c.Since.Equal(want) {
		t.Fatalf("got since %v, want %v", c.Since, want)
	}
}

func TestParseQueryNestsMoreThanTwoSubjects(t *testing.T) {
	c, err := ParseQuery("subject:(a OR b OR c) after:1715759400", time.Now())
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	right := c.Or[0][1]
	if len(right.Or) != 1 {
		t.Fatalf("got %d nested OR clauses, want 1", len(right.Or))
	}
	if got := right.Or[0][0].Header.Get("Subject") + right.Or[0][1].Header.Get("Subject"); got != "bc" {
		t.Fatalf("got nested subjects %q, want bc", got)
	}
	if want := time.Unix(1715759400, 0).UTC(); !c.Since.Equal(want) {
		t.Fatalf("got since %v, want %v", c.Since, want)
	}
}

func TestParseQuerySingleSubject(t *testing.T) {
	c, err := ParseQuery("subject:statement", time.Now())
	if err != nil {
		t.Fatalf("ParseQuery: %v", err)
	}
	if len(c.Or) != 0 || c.Header.Get("Subject") != "statement" {
		t.Fatalf("got %+v, want plain subject criterion", c)
	}
}

func TestParseQueryRejectsUnsupported(t *testing.T) {
	for _, q := range []string{
		"debited",
		"from:bank@example.com",
		"newer_than:abc",
		"newer_than:10h",
		"after:yesterday",
		"subject:()",
	} {
		if _, err := ParseQuery(q, time.Now()); err == nil {
			t.Fatalf("ParseQuery(%q): expected error", q)
		}
	}
}
