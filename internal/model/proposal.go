package model

import (
	"encoding/json"
	"errors"
	"fmt"
	"strings"
)

// ErrInvalidProposal marks a structural violation in a TradeProposal. It is
// never retryable.
var ErrInvalidProposal = errors.New("invalid trade proposal")

// Invariants a TradeProposal must satisfy.
const (
	InvariantSport                = "sport_required"
	InvariantHome                 = "home_team_required"
	InvariantTopology             = "topology"
	InvariantDuplicateParticipant = "duplicate_participant"
	InvariantUnknownParticipant   = "unknown_participant"
	InvariantSelfLoop             = "self_loop"
	InvariantAssetVariant         = "asset_variant"
	InvariantDuplicateAsset       = "duplicate_asset"
)

// ProposalError names the invariant a proposal violated.
type ProposalError struct {
	Invariant string
	Detail    string
}

func (e *ProposalError) Error() string {
	return fmt.Sprintf("%s: %s: %s", ErrInvalidProposal, e.Invariant, e.Detail)
}

func (e *ProposalError) Unwrap() error { return ErrInvalidProposal }

func invalid(invariant, format string, args ...any) error {
	return &ProposalError{Invariant: invariant, Detail: fmt.Sprintf(format, args...)}
}

// Flow moves one asset from one participant to another.
type Flow struct {
	From  string `json:"from"`
	To    string `json:"to"`
	Asset Asset  `json:"asset"`
}

func (f *Flow) UnmarshalJSON(data []byte) error {
	var raw struct {
		From  string          `json:"from"`
		To    string          `json:"to"`
		Asset json.RawMessage `json:"asset"`
	}
	if err := strictUnmarshal(data, &raw); err != nil {
		return fmt.Errorf("decode flow: %w", err)
	}
	if len(raw.Asset) == 0 || string(raw.Asset) == "null" {
		return fmt.Errorf("decode flow %s->%s: asset is required", raw.From, raw.To)
	}
	asset, err := DecodeAsset(raw.Asset)
	if err != nil {
		return err
	}
	f.From, f.To, f.Asset = raw.From, raw.To, asset
	return nil
}

// TradeProposal is a 2-team or 3-team trade initiated by Home.
type TradeProposal struct {
	Sport          string   `json:"sport"`
	Home           string   `json:"home_team"`
	Counterparties []string `json:"counterparties"`
	Flows          []Flow   `json:"flows"`
}

// NormalizeTeam returns the canonical form of a team identifier.
func NormalizeTeam(team string) string {
	return strings.ToLower(strings.TrimSpace(team))
}

// NormalizeSport returns the canonical form of a sport code.
func NormalizeSport(sport string) string {
	return strings.ToLower(strings.TrimSpace(sport))
}

// Participants returns the normalized participant list, home first.
func (p TradeProposal) Participants() []string {
	out := make([]string, 0, 1+len(p.Counterparties))
	out = append(out, NormalizeTeam(p.Home))
	for _, c := range p.Counterparties {
		out = append(out, NormalizeTeam(c))
	}
	return out
}

// Validate checks the structural invariants of a proposal. The returned
// error is a *ProposalError wrapping ErrInvalidProposal.
func (p TradeProposal) Validate() error {
	if NormalizeSport(p.Sport) == "" {
		return invalid(InvariantSport, "sport code is empty")
	}
	if NormalizeTeam(p.Home) == "" {
		return invalid(InvariantHome, "home team is empty")
	}
	if n := len(p.Counterparties); n < 1 || n > 2 {
		return invalid(InvariantTopology, "expected 1 or 2 counterparties, got %d", n)
	}

	members := make(map[string]bool, 3)
	for _, team := range p.Participants() {
		if team == "" {
			return invalid(InvariantTopology, "counterparty identifier is empty")
		}
		if members[team] {
			return invalid(InvariantDuplicateParticipant, "team %q listed more than once", team)
		}
		members[team] = true
	}

	seen := make(map[string]int, len(p.Flows))
	for i, f := range p.Flows {
		from, to := NormalizeTeam(f.From), NormalizeTeam(f.To)
		if !members[from] {
			return invalid(InvariantUnknownParticipant, "flow %d: sender %q is not a participant", i, f.From)
		}
		if !members[to] {
			return invalid(InvariantUnknownParticipant, "flow %d: receiver %q is not a participant", i, f.To)
		}
		if from == to {
			return invalid(InvariantSelfLoop, "flow %d: %q sends an asset to itself", i, f.From)
		}
		if f.Asset == nil {
			return invalid(InvariantAssetVariant, "flow %d: asset is missing", i)
		}
		if err := f.Asset.validate(); err != nil {
			return invalid(InvariantAssetVariant, "flow %d: %v", i, err)
		}
		if id := f.Asset.identity(); id != "" {
			if prev, dup := seen[id]; dup {
				return invalid(InvariantDuplicateAsset, "flows %d and %d move the same asset %s", prev, i, id)
			}
			seen[id] = i
		}
	}
	return nil
}

// ValidateAsset checks a single asset outside of a proposal.
func ValidateAsset(a Asset) error {
	if a == nil {
		return invalid(InvariantAssetVariant, "asset is missing")
	}
	if err := a.validate(); err != nil {
		return invalid(InvariantAssetVariant, "%v", err)
	}
	return nil
}
