// Package model defines the core domain types shared across the trade
// grading engine. Cap hits and running score totals use shopspring/decimal;
// asset values are float64 rounded to one decimal place.
package model

import (
	"time"

	"github.com/shopspring/decimal"
)

// Fingerprint is the stable, order-independent digest of a TradeProposal.
type Fingerprint string

// GradeStatus is the counterparties' verdict on a trade.
type GradeStatus string

const (
	StatusAccepted GradeStatus = "accepted"
	StatusRejected GradeStatus = "rejected"
)

// ValuationBreakdown explains how a single asset's value was derived.
// FinalValue = BaseValue × AgeMultiplier × ContractMultiplier ×
// (CapMultiplier ?? 1) × (PositionMultiplier ?? 1), rounded.
type ValuationBreakdown struct {
	AssetKind             AssetKind `json:"asset_kind"`
	BaseValue             float64   `json:"base_value"`
	AgeMultiplier         float64   `json:"age_multiplier"`
	AgeAdjustedValue      float64   `json:"age_adjusted_value"`
	ContractMultiplier    float64   `json:"contract_multiplier"`
	ContractAdjustedValue float64   `json:"contract_adjusted_value"`
	CapMultiplier         *float64  `json:"cap_multiplier,omitempty"`
	PositionMultiplier    *float64  `json:"position_multiplier,omitempty"`
	FinalValue            float64   `json:"final_value"`
	DraftPickEquivalent   string    `json:"draft_pick_equivalent"`
	Assessment            string    `json:"assessment,omitempty"` // aging phase
	Notes                 []string  `json:"notes,omitempty"`
}

// GradeBreakdown holds 0–100 sub-scores from the home team's perspective.
type GradeBreakdown struct {
	TalentBalance int `json:"talent_balance"`
	ContractValue int `json:"contract_value"`
	TeamFit       int `json:"team_fit"`
	FutureAssets  int `json:"future_assets"`
}

// Grade is the outcome of evaluating a whole TradeProposal.
type Grade struct {
	Score            int            `json:"score"`
	Status           GradeStatus    `json:"status"`
	IsDangerous      bool           `json:"is_dangerous"`
	Reasoning        string         `json:"reasoning"`
	Breakdown        GradeBreakdown `json:"breakdown"`
	ImprovementScore float64        `json:"improvement_score"`
}

// GradeRecord is the durable record of one authenticated submission.
// Records are immutable once written. A cache hit produces a new record
// whose SourceGradeID points at the original evaluation.
type GradeRecord struct {
	ID            string      `json:"id" db:"id"`
	ShareCode     string      `json:"share_code" db:"share_code"`
	Fingerprint   Fingerprint `json:"fingerprint" db:"fingerprint"`
	UserID        string      `json:"user_id" db:"user_id"`
	SessionID     string      `json:"session_id" db:"session_id"`
	Sport         string      `json:"sport" db:"sport"`
	Grade         Grade       `json:"grade" db:"grade"`
	SourceGradeID string      `json:"source_grade_id,omitempty" db:"source_grade_id"`
	CreatedAt     time.Time   `json:"created_at" db:"created_at"`
}

// CacheRecord maps (fingerprint, owner) to the first grade computed for it.
type CacheRecord struct {
	Fingerprint Fingerprint `json:"fingerprint" db:"fingerprint"`
	OwnerUserID string      `json:"owner_user_id" db:"owner_user_id"`
	GradeID     string      `json:"grade_id" db:"grade_id"`
	Grade       Grade       `json:"grade" db:"grade"`
	CreatedAt   time.Time   `json:"created_at" db:"created_at"`
}

// SessionAggregate holds per play-session running counters.
type SessionAggregate struct {
	SessionID        string          `json:"session_id"`
	UserID           string          `json:"user_id"`
	TradesAttempted  int64           `json:"trades_attempted"`
	TradesAccepted   int64           `json:"trades_accepted"`
	TradesDangerous  int64           `json:"trades_dangerous"`
	TradesFailed     int64           `json:"trades_failed"`
	TotalImprovement decimal.Decimal `json:"total_improvement"`
	UpdatedAt        time.Time       `json:"updated_at"`
}

// SessionDelta is a commutative increment applied to a SessionAggregate.
type SessionDelta struct {
	Attempted   int64
	Accepted    int64
	Dangerous   int64
	Failed      int64
	Improvement decimal.Decimal
}

// Apply adds d to a.
func (a *SessionAggregate) Apply(d SessionDelta) {
	a.TradesAttempted += d.Attempted
	a.TradesAccepted += d.Accepted
	a.TradesDangerous += d.Dangerous
	a.TradesFailed += d.Failed
	a.TotalImprovement = a.TotalImprovement.Add(d.Improvement)
}

// LeaderboardEntry is one user's global running score.
type LeaderboardEntry struct {
	UserID    string          `json:"user_id"`
	Score     decimal.Decimal `json:"score"`
	Trades    int64           `json:"trades"`
	UpdatedAt time.Time       `json:"updated_at"`
}
