// Package cards resolves card metadata from static configuration and tracks
// spend milestones of card programs.
package cards

import (
	"fmt"
	"log/slog"
	"os"
	"sort"
	"time"

	"github.com/shopspring/decimal"
	"gopkg.in/yaml.v3"
)

// MilestoneType is what reaching a milestone earns
type MilestoneType string

const (
	MilestoneSpend     MilestoneType = "spend"
	MilestoneFeeWaiver MilestoneType = "fee-waiver"
)

// Duration is the window a milestone is measured over
type Duration string

const (
	Quarterly Duration = "quarterly"
	Yearly    Duration = "yearly"
)

const dateLayout = "2006-01-02"

// Milestone is a spend target of a card program
type Milestone struct {
	ID          string          `yaml:"id"`
	Description string          `yaml:"description"`
	Type        MilestoneType   `yaml:"type"`
	Amount      decimal.Decimal `yaml:"amount"`
	Duration    Duration        `yaml:"duration"`
	StartDate   string          `yaml:"start_date,omitempty"` // YYYY-MM-DD, yearly only
	EndDate     string          `yaml:"end_date,omitempty"`   // YYYY-MM-DD, inclusive
}

// Card is static metadata of one card
type Card struct {
	Last4      string      `yaml:"last4"`
	Name       string      `yaml:"name"`
	Bank       string      `yaml:"bank"`
	Icon       string      `yaml:"icon"`
	Milestones []Milestone `yaml:"milestones"`
}

type catalogFile struct {
	Cards []Card `yaml:"cards"`
}

// LoadCatalog reads a YAML card catalog
func LoadCatalog(path string) ([]Card, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read card catalog: %w", err)
	}
	return ParseCatalog(data)
}

// ParseCatalog decodes and validates a YAML card catalog
func ParseCatalog(data []byte) ([]Card, error) {
	var f catalogFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("failed to parse card catalog: %w", err)
	}
	for _, c := range f.Cards {
		if len(c.Last4) != 4 {
			return nil, fmt.Errorf("card %q: last4 must have 4 digits, got %q", c.Name, c.Last4)
		}
		for _, m := range c.Milestones {
			if err := m.validate(); err != nil {
				return nil, fmt.Errorf("card %s milestone %q: %w", c.Last4, m.ID, err)
			}
		}
	}
	return f.Cards, nil
}

func (m Milestone) validate() error {
	if m.Duration != Quarterly && m.Duration != Yearly {
		return fmt.Errorf("unknown duration %q", m.Duration)
	}
	if m.Type != MilestoneSpend && m.Type != MilestoneFeeWaiver {
		return fmt.Errorf("unknown type %q", m.Type)
	}
	if !m.Amount.IsPositive() {
		return fmt.Errorf("amount must be positive")
	}
	if (m.StartDate == "") != (m.EndDate == "") {
		return fmt.Errorf("start_date and end_date must be set together")
	}
	if m.StartDate != "" {
		start, err := time.Parse(dateLayout, m.StartDate)
		if err != nil {
			return fmt.Errorf("invalid start_date: %w", err)
		}
		end, err := time.Parse(dateLayout, m.EndDate)
		if err != nil {
			return fmt.Errorf("invalid end_date: %w", err)
		}
		if end.Before(start) {
			return fmt.Errorf("end_date before start_date")
		}
	}
	return nil
}

// DefaultCatalog is used when no catalog file is configured
func DefaultCatalog() []Card {
	return []Card{
		{
			Last4: "4321", Name: "Regalia Gold", Bank: "HDFC Bank", Icon: "💳",
			Milestones: []Milestone{
				{ID: "regalia-q", Description: "Quarterly spend bonus", Type: MilestoneSpend, Amount: decimal.NewFromInt(150000), Duration: Quarterly},
				{ID: "regalia-fee", Description: "Annual fee waiver", Type: MilestoneFeeWaiver, Amount: decimal.NewFromInt(400000), Duration: Yearly},
			},
		},
		{
			Last4: "9876", Name: "Ace", Bank: "Axis Bank", Icon: "🂡",
			Milestones: []Milestone{
				{ID: "ace-fee", Description: "Annual fee waiver", Type: MilestoneFeeWaiver, Amount: decimal.NewFromInt(200000), Duration: Yearly},
			},
		},
		{Last4: "1111", Name: "Cashback", Bank: "SBI Card", Icon: "🟦"},
	}
}

// Resolver maps card last-4 digits to card metadata. It is immutable.
type Resolver struct {
	cards map[string]Card
}

// NewResolver indexes a catalog. Two cards sharing last-4 digits cannot be
// told apart; the first one wins and the collision is logged.
func NewResolver(catalog []Card, logger *slog.Logger) *Resolver {
	r := &Resolver{cards: make(map[string]Card, len(catalog))}
	for _, c := range catalog {
		if existing, dup := r.cards[c.Last4]; dup {
			logger.Warn("ambiguous card last4 in catalog, keeping first",
				"last4", c.Last4, "kept", existing.Name, "ignored", c.Name)
			continue
		}
		r.cards[c.Last4] = c
	}
	return r
}

// Resolve returns the card for last-4 digits
func (r *Resolver) Resolve(last4 string) (Card, bool) {
	c, ok := r.cards[last4]
	return c, ok
}

// WithMilestones returns every card that has at least one milestone
func (r *Resolver) WithMilestones() []Card {
	var out []Card
	for _, c := range r.cards {
		if len(c.Milestones) > 0 {
			out = append(out, c)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Last4 < out[j].Last4 })
	return out
}
