// Package valuation prices a single tradeable asset.
//
// Every breakdown satisfies
//
//	FinalValue = round(BaseValue × AgeMultiplier × ContractMultiplier ×
//	                   (CapMultiplier ?? 1) × (PositionMultiplier ?? 1))
//
// where round keeps one decimal place. Valuation is pure: the same asset and
// Context always produce the same breakdown.
package valuation

import (
	"errors"
	"fmt"
	"math"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sportsmockery/gm-trade-engine/internal/aging"
	"github.com/sportsmockery/gm-trade-engine/internal/model"
)

// ErrDegenerateValuation is returned when an asset's context cannot produce a
// finite, non-negative value. It indicates bad input data, not a user error.
var ErrDegenerateValuation = errors.New("valuation: degenerate valuation")

// Context carries the trade-level facts an asset is valued against.
type Context struct {
	Sport string
	// DraftYear is the upcoming draft. Zero lets the engine decide.
	DraftYear int
}

// Engine values assets. It is immutable and safe for concurrent use.
type Engine struct {
	curve     *aging.Curve
	tables    Tables
	draftYear int
	now       func() time.Time
}

// NewEngine creates an engine. draftYear pins the upcoming draft; zero
// derives it from the clock.
func NewEngine(curve *aging.Curve, tables Tables, draftYear int) *Engine {
	return &Engine{
		curve:     curve,
		tables:    tables,
		draftYear: draftYear,
		now:       time.Now,
	}
}

// Curve returns the aging curve the engine classifies players with.
func (e *Engine) Curve() *aging.Curve { return e.curve }

// Tables returns the engine's valuation constants.
func (e *Engine) Tables() Tables { return e.tables }

// Valuate prices one asset.
func (e *Engine) Valuate(asset model.Asset, ctx Context) (model.ValuationBreakdown, error) {
	ctx.Sport = model.NormalizeSport(ctx.Sport)

	var (
		b   model.ValuationBreakdown
		err error
	)
	switch a := asset.(type) {
	case *model.Player:
		b, err = e.player(a, ctx)
	case *model.DraftPick:
		b, err = e.pick(a, ctx)
	case *model.Prospect:
		b, err = e.prospect(a, ctx)
	default:
		return model.ValuationBreakdown{}, fmt.Errorf("valuation: unsupported asset %T", asset)
	}
	if err != nil {
		return model.ValuationBreakdown{}, err
	}

	b.DraftPickEquivalent = DraftPickEquivalent(b.FinalValue)
	return b, nil
}

func (e *Engine) player(p *model.Player, ctx Context) (model.ValuationBreakdown, error) {
	if !finite(p.Age) || p.Age < 0 {
		return model.ValuationBreakdown{}, fmt.Errorf("%w: player %q has age %v", ErrDegenerateValuation, p.ID, p.Age)
	}
	if p.ContractYearsRemaining < 0 {
		return model.ValuationBreakdown{}, fmt.Errorf("%w: player %q has %d contract years",
			ErrDegenerateValuation, p.ID, p.ContractYearsRemaining)
	}
	if p.CapHit.IsNegative() {
		return model.ValuationBreakdown{}, fmt.Errorf("%w: player %q has cap hit %s", ErrDegenerateValuation, p.ID, p.CapHit)
	}

	base := e.tables.PlayerTiers[p.Tier]
	age := e.curve.Classify(ctx.Sport, p.Position, p.Age)
	contract := contractMultiplier(age.Phase, p.ContractYearsRemaining)

	b := model.ValuationBreakdown{
		AssetKind:             model.KindPlayer,
		BaseValue:             base,
		AgeMultiplier:         age.Multiplier,
		AgeAdjustedValue:      round1(base * age.Multiplier),
		ContractMultiplier:    contract,
		ContractAdjustedValue: round1(base * age.Multiplier * contract),
		Assessment:            string(age.Phase),
	}

	if p.ContractYearsRemaining <= 1 {
		b.Notes = append(b.Notes, "one-year rental")
	}
	if age.PrimeYearsRemaining > 0 {
		b.Notes = append(b.Notes, fmt.Sprintf("%d prime years remaining", age.PrimeYearsRemaining))
	}

	if p.CapHit.IsPositive() {
		capHit, _ := p.CapHit.Float64()
		salaryCap := e.tables.salaryCap(ctx.Sport)
		m := clamp(1-1.5*capHit/salaryCap, 0.60, 1.0)
		b.CapMultiplier = &m
		b.Notes = append(b.Notes, fmt.Sprintf("cap hit %sM of %sM cap", p.CapHit.StringFixed(1),
			decimal.NewFromFloat(salaryCap).StringFixed(1)))
	}
	b.PositionMultiplier = e.tables.PositionMultiplier(ctx.Sport, p.Position)

	return finish(b, p.ID)
}

func (e *Engine) pick(p *model.DraftPick, ctx Context) (model.ValuationBreakdown, error) {
	if p.Round < 1 {
		return model.ValuationBreakdown{}, fmt.Errorf("%w: draft pick round %d", ErrDegenerateValuation, p.Round)
	}

	band := e.tables.band(p.Round)
	teams := e.tables.teams(ctx.Sport)

	var value float64
	b := model.ValuationBreakdown{
		AssetKind:          model.KindDraftPick,
		AgeMultiplier:      1,
		ContractMultiplier: 1,
	}

	if p.PickNumber != nil {
		value = slotValue(band, teams, *p.PickNumber)
	} else {
		value = (band.Top + band.Bottom) / 2 * e.tables.UnknownSlotDiscount
		b.Notes = append(b.Notes, "slot unknown: mid-round estimate")
	}

	draftYear := e.currentDraftYear(ctx)
	if out := p.Year - draftYear; out > 0 {
		if out > e.tables.MaxFutureYears {
			out = e.tables.MaxFutureYears
		}
		value *= math.Pow(e.tables.FutureYearDiscount, float64(out))
		b.Notes = append(b.Notes, fmt.Sprintf("%d draft(s) out", p.Year-draftYear))
	}
	if p.Condition != "" {
		b.Notes = append(b.Notes, "conditional: "+p.Condition)
	}

	b.BaseValue = round1(value)
	b.AgeAdjustedValue = b.BaseValue
	b.ContractAdjustedValue = b.BaseValue
	return finish(b, p.Ticker())
}

func (e *Engine) prospect(p *model.Prospect, ctx Context) (model.ValuationBreakdown, error) {
	if p.OrganizationRank < 1 {
		return model.ValuationBreakdown{}, fmt.Errorf("%w: prospect %q has rank %d",
			ErrDegenerateValuation, p.ID, p.OrganizationRank)
	}

	rank := math.Max(0.70, 1.15-0.015*float64(p.OrganizationRank-1))
	base := round1(e.tables.ProspectTiers[p.Tier] * rank)

	ageFactor := 1.0
	b := model.ValuationBreakdown{
		AssetKind:          model.KindProspect,
		BaseValue:          base,
		ContractMultiplier: 1,
	}
	if p.Age != nil {
		if !finite(*p.Age) || *p.Age < 0 {
			return model.ValuationBreakdown{}, fmt.Errorf("%w: prospect %q has age %v", ErrDegenerateValuation, p.ID, *p.Age)
		}
		age := e.curve.Classify(ctx.Sport, p.Position, *p.Age)
		ageFactor = prospectAgeFactor(age)
		b.Assessment = string(age.Phase)
	} else {
		b.Notes = append(b.Notes, "age unknown")
	}
	b.Notes = append(b.Notes, fmt.Sprintf("organization rank #%d", p.OrganizationRank))

	b.AgeMultiplier = ageFactor
	b.AgeAdjustedValue = round1(base * ageFactor)
	b.ContractAdjustedValue = b.AgeAdjustedValue
	return finish(b, p.ID)
}

// finish computes FinalValue from the reported factors and rejects
// non-finite or negative results.
func finish(b model.ValuationBreakdown, id string) (model.ValuationBreakdown, error) {
	v := b.BaseValue * b.AgeMultiplier * b.ContractMultiplier
	if b.CapMultiplier != nil {
		v *= *b.CapMultiplier
	}
	if b.PositionMultiplier != nil {
		v *= *b.PositionMultiplier
	}
	if !finite(v) || v < 0 {
		return model.ValuationBreakdown{}, fmt.Errorf("%w: %s %q final value %v", ErrDegenerateValuation, b.AssetKind, id, v)
	}
	b.FinalValue = round1(v)
	return b, nil
}

// currentDraftYear resolves the upcoming draft: the context wins, then the
// pinned year, then the clock (drafts after June roll to next year).
func (e *Engine) currentDraftYear(ctx Context) int {
	if ctx.DraftYear > 0 {
		return ctx.DraftYear
	}
	if e.draftYear > 0 {
		return e.draftYear
	}
	now := e.now()
	if now.Month() <= time.June {
		return now.Year()
	}
	return now.Year() + 1
}

// slotValue interpolates linearly from Top at pick 1 to Bottom at the last
// pick of the round. Compensatory picks beyond that keep shrinking.
func slotValue(band RoundBand, teams, pick int) float64 {
	if pick <= 1 {
		return band.Top
	}
	if pick <= teams {
		return band.Top - (band.Top-band.Bottom)*float64(pick-1)/float64(teams-1)
	}
	return band.Bottom * float64(teams) / float64(pick)
}

// contractMultiplier rewards years of control for ascending players and
// penalizes long commitments to declining ones.
func contractMultiplier(phase aging.Phase, years int) float64 {
	switch phase {
	case aging.Declining, aging.PastPrime:
		switch {
		case years <= 1:
			return 0.90
		case years == 2:
			return 0.95
		case years == 3:
			return 0.90
		default:
			return math.Max(0.70, 0.85-0.05*float64(years-4))
		}
	default:
		switch {
		case years <= 1:
			return 0.80
		case years == 2:
			return 1.00
		case years == 3:
			return 1.10
		case years == 4:
			return 1.15
		default:
			return 1.20
		}
	}
}

// prospectAgeFactor halves the veteran aging effect.
func prospectAgeFactor(a aging.Assessment) float64 {
	switch a.Phase {
	case aging.Developing:
		return 1.0
	case aging.InPrime:
		return 0.95
	default:
		return 1 - 0.5*(1-a.Multiplier)
	}
}

func round1(v float64) float64 {
	if !finite(v) {
		return v
	}
	f, _ := decimal.NewFromFloat(v).Round(1).Float64()
	return f
}

func clamp(v, lo, hi float64) float64 {
	return math.Min(hi, math.Max(lo, v))
}

func finite(v float64) bool {
	return !math.IsNaN(v) && !math.IsInf(v, 0)
}
