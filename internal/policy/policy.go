// Package policy decides whether a trade is accepted and whether it is
// dangerous, from each participant's sent and received value.
//
// A counterparty accepts when the value it receives is at least
// (1 - AcceptTolerance) of the value it sends. A trade is dangerous when any
// participant receives less than DangerRatio of what it sends. The home team
// proposes the trade, so only counterparties vote on acceptance.
package policy

import (
	"errors"
	"fmt"
	"math"

	"github.com/sportsmockery/gm-trade-engine/internal/model"
)

var (
	// ErrInvalidTolerance is returned when AcceptTolerance is outside [0, 1).
	ErrInvalidTolerance = errors.New("policy: accept tolerance must be in [0, 1)")

	// ErrInvalidDangerRatio is returned when DangerRatio is outside (0, 1].
	ErrInvalidDangerRatio = errors.New("policy: danger ratio must be in (0, 1]")
)

// Ledger is one participant's side of a trade, in final (contract-adjusted)
// value.
type Ledger struct {
	Team     string  `json:"team"`
	Sent     float64 `json:"sent"`
	Received float64 `json:"received"`
}

// Net is received minus sent.
func (l Ledger) Net() float64 { return l.Received - l.Sent }

// Policy holds the acceptance and danger thresholds.
type Policy struct {
	AcceptTolerance float64 `yaml:"accept_tolerance"`
	DangerRatio     float64 `yaml:"danger_ratio"`
}

// Default returns the standard thresholds.
func Default() Policy {
	return Policy{AcceptTolerance: 0.15, DangerRatio: 0.60}
}

// Validate checks that both thresholds are usable.
func (p Policy) Validate() error {
	if p.AcceptTolerance < 0 || p.AcceptTolerance >= 1 || math.IsNaN(p.AcceptTolerance) {
		return fmt.Errorf("%w: got %v", ErrInvalidTolerance, p.AcceptTolerance)
	}
	if p.DangerRatio <= 0 || p.DangerRatio > 1 || math.IsNaN(p.DangerRatio) {
		return fmt.Errorf("%w: got %v", ErrInvalidDangerRatio, p.DangerRatio)
	}
	return nil
}

// Verdict is the policy outcome for a whole trade.
type Verdict struct {
	Status      model.GradeStatus `json:"status"`
	IsDangerous bool              `json:"is_dangerous"`
	// Empty is set when no value changes hands.
	Empty bool `json:"empty,omitempty"`
	// Rejecting lists counterparties that would decline.
	Rejecting []string `json:"rejecting,omitempty"`
	// Endangered lists participants that give up disproportionate value.
	Endangered []string `json:"endangered,omitempty"`
}

// Judge applies the policy to every participant's ledger. Ledgers are
// expected in participant order; home identifies the proposing team.
func (p Policy) Judge(home string, ledgers []Ledger) Verdict {
	v := Verdict{Status: model.StatusAccepted}

	moved := false
	for _, l := range ledgers {
		if l.Sent > 0 || l.Received > 0 {
			moved = true
		}

		// 1. Counterparty acceptance.
		if l.Team != home && l.Received < (1-p.AcceptTolerance)*l.Sent {
			v.Status = model.StatusRejected
			v.Rejecting = append(v.Rejecting, l.Team)
		}

		// 2. Danger applies to every participant, home included.
		if l.Sent > 0 && l.Received < p.DangerRatio*l.Sent {
			v.IsDangerous = true
			v.Endangered = append(v.Endangered, l.Team)
		}
	}

	if !moved {
		return Verdict{Status: model.StatusRejected, Empty: true}
	}
	return v
}

// Balance scores received against sent on a 0–100 scale where 50 is an even
// swap: 50 + 50·(R−S)/max(R,S).
func Balance(received, sent float64) int {
	hi := math.Max(received, sent)
	if hi <= 0 {
		return 50
	}
	score := 50 + 50*(received-sent)/hi
	return int(math.Round(math.Min(100, math.Max(0, score))))
}
