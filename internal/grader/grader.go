// Package grader turns valued trade assets into a score, reasoning and
// breakdown. Graders are only consulted on a cache miss.
package grader

import (
	"context"
	"errors"

	"github.com/sportsmockery/gm-trade-engine/internal/model"
	"github.com/sportsmockery/gm-trade-engine/internal/policy"
)

// ErrUnavailable is returned when an external grader fails or times out.
// Callers may retry.
var ErrUnavailable = errors.New("grader: grading service unavailable")

// EmptyTradeReasoning is the reasoning for a trade where nothing moves.
const EmptyTradeReasoning = "No assets change hands."

// AssetValuation is one flow together with its computed value.
type AssetValuation struct {
	From      string                   `json:"from"`
	To        string                   `json:"to"`
	Asset     model.Asset              `json:"asset"`
	Valuation model.ValuationBreakdown `json:"valuation"`
}

// Request is everything a grader needs to grade one trade.
type Request struct {
	Sport        string           `json:"sport"`
	Home         string           `json:"home_team"`
	Participants []string         `json:"participants"`
	Assets       []AssetValuation `json:"assets"`
	Ledgers      []policy.Ledger  `json:"ledgers"`
	Verdict      policy.Verdict   `json:"verdict"`
}

// Result is a grader's answer. Status and danger come from policy, not the
// grader.
type Result struct {
	Score     int                  `json:"score"`
	Reasoning string               `json:"reasoning"`
	Breakdown model.GradeBreakdown `json:"breakdown"`
}

// Grader grades a trade.
type Grader interface {
	Grade(ctx context.Context, req Request) (Result, error)
}

// NewRequest totals each participant's ledger and applies the policy.
// Team identifiers must already be normalized.
func NewRequest(sport, home string, participants []string, assets []AssetValuation, p policy.Policy) Request {
	ledgers := make([]policy.Ledger, len(participants))
	index := make(map[string]int, len(participants))
	for i, team := range participants {
		ledgers[i].Team = team
		index[team] = i
	}
	for _, a := range assets {
		v := a.Valuation.FinalValue
		if i, ok := index[a.From]; ok {
			ledgers[i].Sent += v
		}
		if i, ok := index[a.To]; ok {
			ledgers[i].Received += v
		}
	}

	return Request{
		Sport:        sport,
		Home:         home,
		Participants: participants,
		Assets:       assets,
		Ledgers:      ledgers,
		Verdict:      p.Judge(home, ledgers),
	}
}

// Ledger returns the named participant's ledger.
func (r Request) Ledger(team string) policy.Ledger {
	for _, l := range r.Ledgers {
		if l.Team == team {
			return l
		}
	}
	return policy.Ledger{Team: team}
}
