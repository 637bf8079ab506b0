package telegram

import (
	"testing"

	"github.com/go-telegram/bot/models"
)

func TestCommandArgs(t *testing.T) {
	tests := []struct {
		text, name, args string
	}{
		{"/sync", "/sync", ""},
		{"/Status@ExpenseBot  0190a5b2 ", "/status", "0190a5b2"},
		{"/rule swiggy = Food/Delivery", "/rule", "swiggy = Food/Delivery"},
	}
	for _, tt := range tests {
		name, args := commandArgs(tt.text)
		if name != tt.name || args != tt.args {
			t.Fatalf("commandArgs(%q): got %q %q, want %q %q", tt.text, name, args, tt.name, tt.args)
		}
	}
}

func TestMatchCommandIsExact(t *testing.T) {
	match := matchCommand("/rule")
	msg := func(text string) *models.Update { return &models.Update{Message: &models.Message{Text: text}} }

	if !match(msg("/rule a = b")) || !match(msg("/rule@bot a = b")) {
		t.Fatal("expected /rule to match")
	}
	if match(msg("/rules")) {
		t.Fatal("/rule must not match /rules")
	}
	if match(&models.Update{}) {
		t.Fatal("updates without a message must not match")
	}
}

func TestParseRule(t *testing.T) {
	merchant, upd, err := parseRule("  Swiggy Instamart = Groceries / Quick Commerce ")
	if err != nil {
		t.Fatalf("parseRule: %v", err)
	}
	if merchant != "Swiggy Instamart" || upd.Category != "Groceries" || upd.Subcategory != "Quick Commerce" {
		t.Fatalf("got %q %+v", merchant, upd)
	}

	for _, bad := range []string{"", "swiggy", "= Food", "swiggy = ", "swiggy = /Sub"} {
		if _, _, err := parseRule(bad); err == nil {
			t.Fatalf("parseRule(%q): expected error", bad)
		}
	}
}

func TestParseRecat(t *testing.T) {
	id, upd, err := parseRecat("#42 Travel/Flights")
	if err != nil || id != 42 || upd.Category != "Travel" || upd.Subcategory != "Flights" {
		t.Fatalf("got %d %+v %v", id, upd, err)
	}
	for _, bad := range []string{"", "x Travel", "0 Travel", "42"} {
		if _, _, err := parseRecat(bad); err == nil {
			t.Fatalf("parseRecat(%q): expected error", bad)
		}
	}
}

func TestParseDays(t *testing.T) {
	for in, want := range map[string]int{"": 0, "7": 7, "30d": 30} {
		got, err := parseDays(in)
		if err != nil || got != want {
			t.Fatalf("parseDays(%q): got %d %v, want %d", in, got, err, want)
		}
	}
	for _, bad := range []string{"0", "-3", "abc", "400"} {
		if _, err := parseDays(bad); err == nil {
			t.Fatalf("parseDays(%q): expected error", bad)
		}
	}
}
