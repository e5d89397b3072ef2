package valuation

import (
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/sportsmockery/gm-trade-engine/internal/model"
)

// RoundBand is the value of the first and last slot in a draft round.
type RoundBand struct {
	Top    float64 `yaml:"top"`
	Bottom float64 `yaml:"bottom"`
}

// Tables holds every constant the engine values assets with. The zero value
// is not usable; start from DefaultTables.
type Tables struct {
	PlayerTiers   map[model.PerformanceTier]float64 `yaml:"player_tiers"`
	ProspectTiers map[model.ProspectTier]float64    `yaml:"prospect_tiers"`

	// SalaryCaps is in millions, keyed by sport.
	SalaryCaps       map[string]float64 `yaml:"salary_caps"`
	DefaultSalaryCap float64            `yaml:"default_salary_cap"`

	// PositionScarcity is keyed by sport then upper-case position.
	PositionScarcity map[string]map[string]float64 `yaml:"position_scarcity"`

	TeamsPerRound        map[string]int `yaml:"teams_per_round"`
	DefaultTeamsPerRound int            `yaml:"default_teams_per_round"`
	Rounds               []RoundBand    `yaml:"rounds"`
	// LaterRoundDecay shrinks the last configured band for each extra round.
	LaterRoundDecay float64 `yaml:"later_round_decay"`
	// UnknownSlotDiscount applies to picks without a pick number.
	UnknownSlotDiscount float64 `yaml:"unknown_slot_discount"`
	// FutureYearDiscount applies once per year past the current draft.
	FutureYearDiscount float64 `yaml:"future_year_discount"`
	MaxFutureYears     int     `yaml:"max_future_years"`
}

// DefaultTables returns the built-in valuation constants.
func DefaultTables() Tables {
	return Tables{
		PlayerTiers: map[model.PerformanceTier]float64{
			model.TierElite:        100,
			model.TierProLevel:     78,
			model.TierGood:         58,
			model.TierAverage:      38,
			model.TierBelowAverage: 20,
		},
		ProspectTiers: map[model.ProspectTier]float64{
			model.ProspectElite: 70,
			model.ProspectHigh:  50,
			model.ProspectMid:   32,
			model.ProspectLow:   18,
		},
		SalaryCaps: map[string]float64{
			"nfl": 255.4,
			"nba": 140.6,
			"mlb": 237.0,
			"nhl": 88.0,
		},
		DefaultSalaryCap: 150,
		PositionScarcity: map[string]map[string]float64{
			"nfl": {
				"QB":   1.5,
				"EDGE": 1.2,
				"DE":   1.2,
				"OT":   1.15,
				"WR":   1.1,
				"CB":   1.1,
				"TE":   0.95,
				"LB":   0.95,
				"S":    0.95,
				"G":    0.9,
				"C":    0.9,
				"RB":   0.85,
				"K":    0.5,
				"P":    0.5,
			},
			"nba": {
				"PG": 1.05,
				"C":  0.95,
			},
			"mlb": {
				"SP": 1.15,
				"SS": 1.1,
				"C":  1.05,
				"DH": 0.85,
				"RP": 0.7,
			},
			"nhl": {
				"G": 1.15,
				"C": 1.1,
				"D": 1.05,
			},
		},
		TeamsPerRound: map[string]int{
			"nfl": 32,
			"nba": 30,
			"mlb": 30,
			"nhl": 32,
		},
		DefaultTeamsPerRound: 30,
		Rounds: []RoundBand{
			{90, 50},
			{46, 30},
			{28, 20},
			{18, 13},
			{12, 9},
			{8.5, 6},
			{5.5, 4},
		},
		LaterRoundDecay:     0.7,
		UnknownSlotDiscount: 0.95,
		FutureYearDiscount:  0.95,
		MaxFutureYears:      3,
	}
}

// Validate checks that every table the engine reads is populated and that
// round bands strictly decrease.
func (t Tables) Validate() error {
	for _, tier := range []model.PerformanceTier{model.TierElite, model.TierProLevel, model.TierGood, model.TierAverage, model.TierBelowAverage} {
		if t.PlayerTiers[tier] <= 0 {
			return fmt.Errorf("player_tiers.%s must be > 0", tier)
		}
	}
	for _, tier := range []model.ProspectTier{model.ProspectElite, model.ProspectHigh, model.ProspectMid, model.ProspectLow} {
		if t.ProspectTiers[tier] <= 0 {
			return fmt.Errorf("prospect_tiers.%s must be > 0", tier)
		}
	}
	if t.DefaultSalaryCap <= 0 {
		return errors.New("default_salary_cap must be > 0")
	}
	if t.DefaultTeamsPerRound < 2 {
		return fmt.Errorf("default_teams_per_round must be >= 2, got %d", t.DefaultTeamsPerRound)
	}
	if len(t.Rounds) == 0 {
		return errors.New("rounds must not be empty")
	}
	for i, b := range t.Rounds {
		if b.Bottom <= 0 || b.Top <= b.Bottom {
			return fmt.Errorf("rounds[%d] needs top > bottom > 0, got %v/%v", i, b.Top, b.Bottom)
		}
		if i > 0 && b.Top >= t.Rounds[i-1].Bottom {
			return fmt.Errorf("rounds[%d] top %v must be below round %d bottom %v", i, b.Top, i, t.Rounds[i-1].Bottom)
		}
	}
	for name, f := range map[string]float64{
		"later_round_decay":     t.LaterRoundDecay,
		"unknown_slot_discount": t.UnknownSlotDiscount,
		"future_year_discount":  t.FutureYearDiscount,
	} {
		if f <= 0 || f > 1 {
			return fmt.Errorf("%s must be within (0,1], got %v", name, f)
		}
	}
	if t.MaxFutureYears < 0 {
		return fmt.Errorf("max_future_years must be >= 0, got %d", t.MaxFutureYears)
	}
	return nil
}

func (t Tables) salaryCap(sport string) float64 {
	if c, ok := t.SalaryCaps[sport]; ok && c > 0 {
		return c
	}
	return t.DefaultSalaryCap
}

func (t Tables) teams(sport string) int {
	if n, ok := t.TeamsPerRound[sport]; ok && n > 1 {
		return n
	}
	return t.DefaultTeamsPerRound
}

// PositionMultiplier returns nil when the position has no scarcity entry.
func (t Tables) PositionMultiplier(sport, position string) *float64 {
	byPos, ok := t.PositionScarcity[model.NormalizeSport(sport)]
	if !ok {
		return nil
	}
	m, ok := byPos[strings.ToUpper(strings.TrimSpace(position))]
	if !ok {
		return nil
	}
	return &m
}

// band returns the value band for a 1-based round.
func (t Tables) band(round int) RoundBand {
	if round <= len(t.Rounds) {
		return t.Rounds[round-1]
	}
	last := t.Rounds[len(t.Rounds)-1]
	f := math.Pow(t.LaterRoundDecay, float64(round-len(t.Rounds)))
	return RoundBand{Top: last.Top * f, Bottom: last.Bottom * f}
}

// Buckets map a final value onto a draft-pick equivalent, highest first.
var buckets = []struct {
	min   float64
	label string
}{
	{95, "Top-5 Pick"},
	{80, "Top-10 Pick"},
	{65, "Mid 1st Round Pick"},
	{52, "Late 1st Round Pick"},
	{40, "2nd Round Pick"},
	{28, "3rd Round Pick"},
	{18, "4th Round Pick"},
	{10, "Day 3 Pick"},
}

// DraftPickEquivalent maps a value onto its draft-pick bucket.
func DraftPickEquivalent(value float64) string {
	for _, b := range buckets {
		if value >= b.min {
			return b.label
		}
	}
	return "Priority Free Agent"
}
