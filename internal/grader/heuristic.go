package grader

import (
	"context"
	"fmt"
	"strings"

	"github.com/sportsmockery/gm-trade-engine/internal/model"
	"github.com/sportsmockery/gm-trade-engine/internal/policy"
	"github.com/sportsmockery/gm-trade-engine/internal/valuation"
)

// Heuristic grades trades locally from asset valuations. It never fails
// and is deterministic for a given request.
type Heuristic struct {
	tables valuation.Tables
}

// NewHeuristic creates a heuristic grader that weighs team fit with the
// position scarcity table in tables.
func NewHeuristic(tables valuation.Tables) *Heuristic {
	return &Heuristic{tables: tables}
}

// side accumulates home-perspective received and sent totals.
type side struct {
	received, sent float64
}

func (s *side) add(v float64, toHome, fromHome bool) {
	if toHome {
		s.received += v
	}
	if fromHome {
		s.sent += v
	}
}

func (s side) score() int { return policy.Balance(s.received, s.sent) }

// Grade scores the home team's side of the trade.
func (h *Heuristic) Grade(_ context.Context, req Request) (Result, error) {
	if req.Verdict.Empty {
		return Result{
			Score:     50,
			Reasoning: EmptyTradeReasoning,
			Breakdown: model.GradeBreakdown{TalentBalance: 50, ContractValue: 50, TeamFit: 50, FutureAssets: 50},
		}, nil
	}

	var talent, contract, fit, future side
	for _, a := range req.Assets {
		toHome, fromHome := a.To == req.Home, a.From == req.Home
		if !toHome && !fromHome {
			continue
		}
		v := a.Valuation

		switch asset := a.Asset.(type) {
		case *model.Player:
			talent.add(v.AgeAdjustedValue, toHome, fromHome)
			contract.add(v.FinalValue, toHome, fromHome)
			fit.add(v.ContractAdjustedValue*h.weight(req.Sport, asset.Position), toHome, fromHome)
		case *model.Prospect:
			fit.add(v.ContractAdjustedValue*h.weight(req.Sport, asset.Position), toHome, fromHome)
			future.add(v.FinalValue, toHome, fromHome)
		case *model.DraftPick:
			future.add(v.FinalValue, toHome, fromHome)
		}
	}

	home := req.Ledger(req.Home)
	return Result{
		Score:     policy.Balance(home.Received, home.Sent),
		Reasoning: reasoning(req, home),
		Breakdown: model.GradeBreakdown{
			TalentBalance: talent.score(),
			ContractValue: contract.score(),
			TeamFit:       fit.score(),
			FutureAssets:  future.score(),
		},
	}, nil
}

func (h *Heuristic) weight(sport, position string) float64 {
	if m := h.tables.PositionMultiplier(sport, position); m != nil {
		return *m
	}
	return 1
}

func reasoning(req Request, home policy.Ledger) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "%s receives %.1f in value and sends %.1f (net %+.1f).",
		strings.ToUpper(home.Team), home.Received, home.Sent, home.Net())

	if best, ok := headline(req, home.Team); ok {
		fmt.Fprintf(&sb, " Headline asset: %s valued at %.1f (%s).",
			describe(best.Asset), best.Valuation.FinalValue, best.Valuation.DraftPickEquivalent)
	}

	if len(req.Verdict.Rejecting) > 0 {
		for _, team := range req.Verdict.Rejecting {
			l := req.Ledger(team)
			fmt.Fprintf(&sb, " %s declines: it would receive %.1f for %.1f sent.",
				strings.ToUpper(team), l.Received, l.Sent)
		}
	} else {
		sb.WriteString(" Every counterparty accepts.")
	}

	for _, team := range req.Verdict.Endangered {
		l := req.Ledger(team)
		fmt.Fprintf(&sb, " Dangerous for %s: it gives up %.1f and gets back only %.1f.",
			strings.ToUpper(team), l.Sent, l.Received)
	}
	return sb.String()
}

// headline is the most valuable asset the home team receives.
func headline(req Request, home string) (AssetValuation, bool) {
	var (
		best  AssetValuation
		found bool
	)
	for _, a := range req.Assets {
		if a.To != home {
			continue
		}
		v, b := a.Valuation.FinalValue, best.Valuation.FinalValue
		if !found || v > b || (v == b && describe(a.Asset) < describe(best.Asset)) {
			best, found = a, true
		}
	}
	return best, found
}

func describe(a model.Asset) string {
	switch v := a.(type) {
	case *model.Player:
		name := v.Name
		if name == "" {
			name = v.ID
		}
		return fmt.Sprintf("%s %s", strings.ToUpper(v.Position), name)
	case *model.DraftPick:
		return v.Ticker() + " pick"
	case *model.Prospect:
		name := v.Name
		if name == "" {
			name = v.ID
		}
		return fmt.Sprintf("prospect %s %s", strings.ToUpper(v.Position), name)
	default:
		return "asset"
	}
}
