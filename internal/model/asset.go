package model

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// AssetKind discriminates the three tradeable asset variants on the wire.
type AssetKind string

const (
	KindPlayer    AssetKind = "player"
	KindDraftPick AssetKind = "draft_pick"
	KindProspect  AssetKind = "prospect"
)

// Asset is a player, draft pick, or prospect. The set of implementations is
// closed: only *Player, *DraftPick and *Prospect satisfy it.
type Asset interface {
	Kind() AssetKind
	// identity returns a key that identifies the concrete asset across flows,
	// or "" when the asset carries no stable identity.
	identity() string
	validate() error
}

// PerformanceTier is the ordered talent tier of a veteran player.
type PerformanceTier string

const (
	TierElite        PerformanceTier = "elite"
	TierProLevel     PerformanceTier = "pro_level"
	TierGood         PerformanceTier = "good"
	TierAverage      PerformanceTier = "average"
	TierBelowAverage PerformanceTier = "below_average"
)

var performanceTiers = map[PerformanceTier]bool{
	TierElite:        true,
	TierProLevel:     true,
	TierGood:         true,
	TierAverage:      true,
	TierBelowAverage: true,
}

// ProspectTier grades a prospect's projected ceiling.
type ProspectTier string

const (
	ProspectElite ProspectTier = "elite"
	ProspectHigh  ProspectTier = "high"
	ProspectMid   ProspectTier = "mid"
	ProspectLow   ProspectTier = "low"
)

var prospectTiers = map[ProspectTier]bool{
	ProspectElite: true,
	ProspectHigh:  true,
	ProspectMid:   true,
	ProspectLow:   true,
}

// Player is a veteran under contract. CapHit is in millions; zero means the
// cap hit is unknown.
type Player struct {
	ID                     string          `json:"id"`
	Name                   string          `json:"name,omitempty"`
	Position               string          `json:"position"`
	Age                    float64         `json:"age"`
	Tier                   PerformanceTier `json:"performance_tier"`
	ContractYearsRemaining int             `json:"contract_years_remaining"`
	CapHit                 decimal.Decimal `json:"cap_hit"`
}

// DraftPick is a future or current-year selection. PickNumber is the slot
// within the round when known.
type DraftPick struct {
	Year         int    `json:"year"`
	Round        int    `json:"round"`
	PickNumber   *int   `json:"pick_number,omitempty"`
	OriginalTeam string `json:"original_team,omitempty"`
	Condition    string `json:"condition,omitempty"`
}

// Prospect is an unestablished player valued on projected ceiling.
type Prospect struct {
	ID               string       `json:"id"`
	Name             string       `json:"name,omitempty"`
	Position         string       `json:"position"`
	Age              *float64     `json:"age,omitempty"`
	OrganizationRank int          `json:"organization_rank"`
	Tier             ProspectTier `json:"tier"`
}

func (*Player) Kind() AssetKind    { return KindPlayer }
func (*DraftPick) Kind() AssetKind { return KindDraftPick }
func (*Prospect) Kind() AssetKind  { return KindProspect }

func (p *Player) identity() string {
	if p.ID == "" {
		return ""
	}
	return "player:" + p.ID
}

func (p *DraftPick) identity() string {
	if p.OriginalTeam == "" {
		return ""
	}
	slot := 0
	if p.PickNumber != nil {
		slot = *p.PickNumber
	}
	return fmt.Sprintf("pick:%d:%d:%d:%s", p.Year, p.Round, slot, NormalizeTeam(p.OriginalTeam))
}

func (p *Prospect) identity() string {
	if p.ID == "" {
		return ""
	}
	return "prospect:" + p.ID
}

func (p *Player) validate() error {
	if strings.TrimSpace(p.Position) == "" {
		return fmt.Errorf("player %q: position is required", p.ID)
	}
	if !performanceTiers[p.Tier] {
		return fmt.Errorf("player %q: unknown performance tier %q", p.ID, p.Tier)
	}
	return nil
}

func (p *DraftPick) validate() error {
	if p.Year <= 0 {
		return fmt.Errorf("draft pick: year must be positive, got %d", p.Year)
	}
	if p.Round < 1 {
		return fmt.Errorf("draft pick: round must be >= 1, got %d", p.Round)
	}
	if p.PickNumber != nil && *p.PickNumber < 1 {
		return fmt.Errorf("draft pick: pick number must be >= 1, got %d", *p.PickNumber)
	}
	return nil
}

func (p *Prospect) validate() error {
	if strings.TrimSpace(p.Position) == "" {
		return fmt.Errorf("prospect %q: position is required", p.ID)
	}
	if p.OrganizationRank < 1 {
		return fmt.Errorf("prospect %q: organization rank must be >= 1, got %d", p.ID, p.OrganizationRank)
	}
	if !prospectTiers[p.Tier] {
		return fmt.Errorf("prospect %q: unknown tier %q", p.ID, p.Tier)
	}
	return nil
}

// --- Wire format ---
//
// Every asset is encoded with a "kind" discriminator. Decoding is strict:
// unknown fields are rejected so a record never half-matches a variant.

type (
	playerFields   Player
	pickFields     DraftPick
	prospectFields Prospect
)

func (p Player) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind AssetKind `json:"kind"`
		playerFields
	}{KindPlayer, playerFields(p)})
}

func (p DraftPick) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind AssetKind `json:"kind"`
		pickFields
	}{KindDraftPick, pickFields(p)})
}

func (p Prospect) MarshalJSON() ([]byte, error) {
	return json.Marshal(struct {
		Kind AssetKind `json:"kind"`
		prospectFields
	}{KindProspect, prospectFields(p)})
}

// DecodeAsset decodes one asset record into its variant.
func DecodeAsset(data []byte) (Asset, error) {
	var head struct {
		Kind AssetKind `json:"kind"`
	}
	if err := json.Unmarshal(data, &head); err != nil {
		return nil, fmt.Errorf("decode asset: %w", err)
	}

	switch head.Kind {
	case KindPlayer:
		var v struct {
			Kind AssetKind `json:"kind"`
			playerFields
		}
		if err := strictUnmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode player: %w", err)
		}
		p := Player(v.playerFields)
		return &p, nil

	case KindDraftPick:
		var v struct {
			Kind   AssetKind `json:"kind"`
			Ticker string    `json:"ticker,omitempty"`
			pickFields
		}
		if err := strictUnmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode draft pick: %w", err)
		}
		if v.Ticker != "" {
			if v.Year != 0 || v.Round != 0 || v.PickNumber != nil {
				return nil, fmt.Errorf("decode draft pick: ticker %q conflicts with explicit year/round/pick", v.Ticker)
			}
			pick, err := ParsePickTicker(v.Ticker)
			if err != nil {
				return nil, err
			}
			if pick.OriginalTeam == "" {
				pick.OriginalTeam = v.OriginalTeam
			}
			pick.Condition = v.Condition
			return pick, nil
		}
		p := DraftPick(v.pickFields)
		return &p, nil

	case KindProspect:
		var v struct {
			Kind AssetKind `json:"kind"`
			prospectFields
		}
		if err := strictUnmarshal(data, &v); err != nil {
			return nil, fmt.Errorf("decode prospect: %w", err)
		}
		p := Prospect(v.prospectFields)
		return &p, nil

	case "":
		return nil, fmt.Errorf("decode asset: missing kind")
	default:
		return nil, fmt.Errorf("decode asset: unknown kind %q", head.Kind)
	}
}

func strictUnmarshal(data []byte, v any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(v)
}
