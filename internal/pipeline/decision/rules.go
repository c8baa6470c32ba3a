// Package decision turns an enriched lead into a suggested action. Decide
// encodes the per-stage contact cadence; ApplyCooldown suppresses actions on
// channels that were used too recently.
package decision

import (
	"errors"
	"fmt"
	"os"
	"slices"

	"lead_triage_backend/internal/pipeline/domain"

	"gopkg.in/yaml.v3"
)

// Tier is a lead's value class.
type Tier string

const (
	TierHigh     Tier = "high"
	TierStandard Tier = "standard"
	TierLow      Tier = "low"
)

// Thresholds are business-day offsets for one cadence ladder.
// HVExtra is only set for the high tier.
type Thresholds struct {
	Call     int  `yaml:"call"`
	Followup int  `yaml:"followup"`
	Final    int  `yaml:"final"`
	HVExtra  *int `yaml:"hv_extra"`
	Move     int  `yaml:"move"`
}

// Cooldown windows in business days.
type Cooldown struct {
	MultiChannel int             `yaml:"multi_channel"`
	Call         int             `yaml:"call"`
	Email        int             `yaml:"email"`
	Bypass       []domain.Action `yaml:"bypass"`
}

// Rules holds every tunable the engine reads.
type Rules struct {
	Tiers            map[Tier]Thresholds `yaml:"tiers"`
	QuoteSent        Thresholds          `yaml:"quote_sent"`
	MinAttempts      map[Tier]int        `yaml:"min_attempts"`
	BudgetTiers      map[string]Tier     `yaml:"budget_tiers"`
	HighValueMin     float64             `yaml:"high_value_min"`
	StandardValueMin float64             `yaml:"standard_value_min"`
	Cooldown         Cooldown            `yaml:"cooldown"`
}

func intPtr(v int) *int { return &v }

// DefaultRules are the production cadences.
func DefaultRules() Rules {
	return Rules{
		Tiers: map[Tier]Thresholds{
			TierHigh:     {Call: 1, Followup: 3, Final: 6, HVExtra: intPtr(10), Move: 14},
			TierStandard: {Call: 1, Followup: 3, Final: 6, Move: 10},
			TierLow:      {Call: 1, Followup: 2, Final: 5, Move: 7},
		},
		QuoteSent: Thresholds{Call: 1, Followup: 2, Final: 5, Move: 7},
		MinAttempts: map[Tier]int{
			TierHigh:     4,
			TierStandard: 3,
			TierLow:      3,
		},
		BudgetTiers: map[string]Tier{
			"$0 - $149":   TierLow,
			"$150 - $499": TierStandard,
			"$500 - $999": TierStandard,
			"$1,000+":     TierHigh,
		},
		HighValueMin:     1000,
		StandardValueMin: 150,
		Cooldown: Cooldown{
			MultiChannel: 3,
			Call:         3,
			Email:        2,
			Bypass:       []domain.Action{domain.ActionReply, domain.ActionOutreach, domain.ActionMove},
		},
	}
}

// LoadRules overlays the YAML file at path on DefaultRules. An empty path
// returns the defaults.
func LoadRules(path string) (Rules, error) {
	rules := DefaultRules()
	if path == "" {
		return rules, nil
	}

	f, err := os.Open(path)
	if err != nil {
		return Rules{}, fmt.Errorf("open triage rules: %w", err)
	}
	defer f.Close()

	dec := yaml.NewDecoder(f)
	dec.KnownFields(true)
	if err := dec.Decode(&rules); err != nil {
		return Rules{}, fmt.Errorf("parse triage rules %s: %w", path, err)
	}
	if err := rules.Validate(); err != nil {
		return Rules{}, fmt.Errorf("invalid triage rules %s: %w", path, err)
	}
	return rules, nil
}

// Validate checks that every ladder is ordered and every tier is configured.
func (r Rules) Validate() error {
	var errs []error
	for _, tier := range []Tier{TierHigh, TierStandard, TierLow} {
		t, ok := r.Tiers[tier]
		if !ok {
			errs = append(errs, fmt.Errorf("tier %s: missing thresholds", tier))
			continue
		}
		if err := t.validate(); err != nil {
			errs = append(errs, fmt.Errorf("tier %s: %w", tier, err))
		}
		if r.MinAttempts[tier] < 1 {
			errs = append(errs, fmt.Errorf("tier %s: min_attempts must be at least 1", tier))
		}
	}
	if err := r.QuoteSent.validate(); err != nil {
		errs = append(errs, fmt.Errorf("quote_sent: %w", err))
	}
	if r.StandardValueMin > r.HighValueMin {
		errs = append(errs, errors.New("standard_value_min must not exceed high_value_min"))
	}
	if r.Cooldown.MultiChannel < 0 || r.Cooldown.Call < 0 || r.Cooldown.Email < 0 {
		errs = append(errs, errors.New("cooldown windows must not be negative"))
	}
	return errors.Join(errs...)
}

func (t Thresholds) validate() error {
	if t.Call < 0 || t.Call > t.Followup || t.Followup > t.Final || t.Final > t.Move {
		return fmt.Errorf("thresholds must satisfy 0 <= call <= followup <= final <= move, got %d/%d/%d/%d", t.Call, t.Followup, t.Final, t.Move)
	}
	if t.HVExtra != nil && (*t.HVExtra < t.Final || *t.HVExtra > t.Move) {
		return fmt.Errorf("hv_extra %d must lie between final and move", *t.HVExtra)
	}
	return nil
}

func (r Rules) bypassesCooldown(a domain.Action) bool {
	return slices.Contains(r.Cooldown.Bypass, a)
}
