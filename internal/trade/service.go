// Package trade grades trade proposals and serves the HTTP API around them.
//
// A submission moves through
//
//	received -> canonicalized -> (cache hit | cache miss) -> persisted -> aggregated -> responded
//
// Cache lookup happens before grading. The grade record, the cache record
// and the aggregate updates are then committed to the store as one unit, so
// a failed submission leaves nothing behind and its retry is graded afresh.
package trade

import (
	"cmp"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/sportsmockery/gm-trade-engine/internal/events"
	"github.com/sportsmockery/gm-trade-engine/internal/fingerprint"
	"github.com/sportsmockery/gm-trade-engine/internal/grader"
	"github.com/sportsmockery/gm-trade-engine/internal/metrics"
	"github.com/sportsmockery/gm-trade-engine/internal/model"
	"github.com/sportsmockery/gm-trade-engine/internal/policy"
	"github.com/sportsmockery/gm-trade-engine/internal/store"
	"github.com/sportsmockery/gm-trade-engine/internal/valuation"
)

var (
	// ErrGradingUnavailable means the grader failed or timed out on a cache
	// miss. Nothing was persisted; the caller may retry.
	ErrGradingUnavailable = errors.New("trade: grading unavailable")

	// ErrPersistence means the store failed mid-submission. Nothing was
	// written and any grade computed for the submission is discarded.
	ErrPersistence = errors.New("trade: persistence failure")

	// ErrSessionNotOwned means the submission named a session that belongs
	// to another user.
	ErrSessionNotOwned = errors.New("trade: session belongs to another user")
)

// Submission paths, recorded in logs, metrics and events.
const (
	PathHit       = "hit"
	PathMiss      = "miss"
	PathAnonymous = "anonymous"
)

// Publisher receives an event after every graded submission.
type Publisher interface {
	PublishGrade(ctx context.Context, ev events.GradeEvent) error
}

// Options tunes a Service. Zero values take defaults.
type Options struct {
	Policy          policy.Policy
	GraderName      string
	GraderTimeout   time.Duration
	ShareCodeLength int
}

// Service orchestrates trade grading against a Store.
type Service struct {
	store         store.Store
	engine        *valuation.Engine
	grader        grader.Grader
	graderName    string
	policy        policy.Policy
	graderTimeout time.Duration
	shareCodeLen  int
	sinks         []Publisher
	now           func() time.Time
}

// NewService creates a new trade service. Sinks are optional.
func NewService(st store.Store, engine *valuation.Engine, g grader.Grader, opts Options, sinks ...Publisher) *Service {
	if opts.Policy == (policy.Policy{}) {
		opts.Policy = policy.Default()
	}
	return &Service{
		store:         st,
		engine:        engine,
		grader:        g,
		graderName:    cmp.Or(opts.GraderName, "heuristic"),
		policy:        opts.Policy,
		graderTimeout: cmp.Or(opts.GraderTimeout, 20*time.Second),
		shareCodeLen:  max(6, min(cmp.Or(opts.ShareCodeLength, 10), 32)),
		sinks:         sinks,
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// SubmitRequest is the JSON body for POST /api/v1/trades. An empty UserID
// makes the submission anonymous; SessionID defaults to UserID.
type SubmitRequest struct {
	Proposal  model.TradeProposal `json:"proposal"`
	UserID    string              `json:"user_id,omitempty"`
	SessionID string              `json:"session_id,omitempty"`
}

// Submission is a graded trade. Hits and misses have the same shape.
type Submission struct {
	GradeID     string            `json:"grade_id,omitempty"`
	ShareCode   string            `json:"share_code,omitempty"`
	Fingerprint model.Fingerprint `json:"fingerprint"`
	SessionID   string            `json:"session_id,omitempty"`
	Grade       model.Grade       `json:"grade"`
	CreatedAt   time.Time         `json:"created_at"`

	path string
}

// Path reports whether the submission was a cache hit, miss or anonymous.
func (s *Submission) Path() string { return s.path }

// Fingerprint validates a proposal and returns its fingerprint.
func (s *Service) Fingerprint(p model.TradeProposal) (model.Fingerprint, error) {
	if err := p.Validate(); err != nil {
		return "", err
	}
	return fingerprint.Compute(p), nil
}

// IsCached reports whether userID already has a grade for fp.
func (s *Service) IsCached(ctx context.Context, fp model.Fingerprint, userID string) (bool, error) {
	if strings.TrimSpace(userID) == "" {
		return false, nil
	}
	_, err := s.store.GetCacheRecord(ctx, fp, strings.TrimSpace(userID))
	switch {
	case err == nil:
		return true, nil
	case errors.Is(err, store.ErrNotFound):
		return false, nil
	default:
		return false, fmt.Errorf("%w: cache lookup: %w", ErrPersistence, err)
	}
}

// Valuate prices a single asset for sport.
func (s *Service) Valuate(sport string, asset model.Asset) (model.ValuationBreakdown, error) {
	if model.NormalizeSport(sport) == "" {
		return model.ValuationBreakdown{}, &model.ProposalError{Invariant: model.InvariantSport, Detail: "sport code is empty"}
	}
	if err := model.ValidateAsset(asset); err != nil {
		return model.ValuationBreakdown{}, err
	}
	b, err := s.engine.Valuate(asset, valuation.Context{Sport: sport})
	if errors.Is(err, valuation.ErrDegenerateValuation) {
		slog.Error("degenerate valuation", "sport", sport, "kind", asset.Kind(), "err", err)
	}
	return b, err
}

// SubmitTrade grades a proposal. The submission runs to completion even if
// ctx is cancelled; only the grader call is bounded.
func (s *Service) SubmitTrade(ctx context.Context, req SubmitRequest) (*Submission, error) {
	ctx = context.WithoutCancel(ctx)
	start := time.Now()

	if err := req.Proposal.Validate(); err != nil {
		metrics.SubmissionFailures.WithLabelValues("invalid_proposal").Inc()
		return nil, err
	}
	fp := fingerprint.Compute(req.Proposal)

	userID := strings.TrimSpace(req.UserID)
	var (
		sub *Submission
		err error
	)
	if userID == "" {
		sub, err = s.submitAnonymous(ctx, req.Proposal, fp)
	} else {
		sessionID := cmp.Or(strings.TrimSpace(req.SessionID), userID)
		sub, err = s.submitAuthenticated(ctx, req.Proposal, fp, userID, sessionID)
	}
	if err != nil {
		metrics.SubmissionFailures.WithLabelValues(failureKind(err)).Inc()
		slog.Warn("trade submission failed",
			"fingerprint", fp,
			"user", userID,
			"err", err,
		)
		return nil, err
	}

	metrics.SubmissionsTotal.WithLabelValues(sub.path).Inc()
	metrics.SubmissionLatency.WithLabelValues(sub.path).Observe(time.Since(start).Seconds())
	metrics.GradesTotal.WithLabelValues(string(sub.Grade.Status), model.NormalizeSport(req.Proposal.Sport)).Inc()
	if sub.Grade.IsDangerous {
		metrics.DangerousGrades.Inc()
	}

	slog.Info("trade graded",
		"path", sub.path,
		"fingerprint", fp,
		"user", userID,
		"session", sub.SessionID,
		"grade_id", sub.GradeID,
		"share_code", sub.ShareCode,
		"status", sub.Grade.Status,
		"score", sub.Grade.Score,
		"dangerous", sub.Grade.IsDangerous,
	)

	s.publish(ctx, events.GradeEvent{
		Type:        events.TypeTradeGraded,
		GradeID:     sub.GradeID,
		ShareCode:   sub.ShareCode,
		Fingerprint: fp,
		UserID:      userID,
		SessionID:   sub.SessionID,
		Sport:       model.NormalizeSport(req.Proposal.Sport),
		Path:        sub.path,
		Grade:       sub.Grade,
		Timestamp:   sub.CreatedAt,
	})
	return sub, nil
}

// submitAnonymous grades without touching the store.
func (s *Service) submitAnonymous(ctx context.Context, p model.TradeProposal, fp model.Fingerprint) (*Submission, error) {
	grade, err := s.evaluate(ctx, p)
	if err != nil {
		return nil, err
	}
	return &Submission{
		Fingerprint: fp,
		Grade:       grade,
		CreatedAt:   s.now(),
		path:        PathAnonymous,
	}, nil
}

func (s *Service) submitAuthenticated(ctx context.Context, p model.TradeProposal, fp model.Fingerprint, userID, sessionID string) (*Submission, error) {
	if err := s.checkSessionOwner(ctx, sessionID, userID); err != nil {
		return nil, err
	}

	var fresh model.Grade
	cached, err := s.store.GetCacheRecord(ctx, fp, userID)
	switch {
	case err == nil:
	case errors.Is(err, store.ErrNotFound):
		cached = nil
		if fresh, err = s.evaluate(ctx, p); err != nil {
			return nil, err
		}
	default:
		return nil, fmt.Errorf("%w: cache lookup: %w", ErrPersistence, err)
	}

	rec := &model.GradeRecord{
		ID:          uuid.New().String(),
		ShareCode:   s.newShareCode(),
		Fingerprint: fp,
		UserID:      userID,
		SessionID:   sessionID,
		Sport:       model.NormalizeSport(p.Sport),
		CreatedAt:   s.now(),
	}

	path, err := s.commit(ctx, rec, cached, fresh)
	if errors.Is(err, store.ErrAlreadyCached) {
		// A concurrent submission of the same trade committed first. Its
		// grade wins and this submission becomes a hit.
		cached, err = s.store.GetCacheRecord(ctx, fp, userID)
		if err != nil {
			return nil, fmt.Errorf("%w: cache lookup: %w", ErrPersistence, err)
		}
		path, err = s.commit(ctx, rec, cached, model.Grade{})
	}
	if err != nil {
		return nil, err
	}

	return &Submission{
		GradeID:     rec.ID,
		ShareCode:   rec.ShareCode,
		Fingerprint: fp,
		SessionID:   sessionID,
		Grade:       rec.Grade,
		CreatedAt:   rec.CreatedAt,
		path:        path,
	}, nil
}

// checkSessionOwner rejects a session created by another user before any
// grading work is done. CommitGrade enforces the same rule atomically.
func (s *Service) checkSessionOwner(ctx context.Context, sessionID, userID string) error {
	agg, err := s.store.GetSession(ctx, sessionID)
	switch {
	case errors.Is(err, store.ErrNotFound):
		return nil
	case err != nil:
		return fmt.Errorf("%w: session lookup: %w", ErrPersistence, err)
	case agg.UserID != userID:
		return fmt.Errorf("%w: %s", ErrSessionNotOwned, sessionID)
	}
	return nil
}

// commit records the grade and its aggregate updates in one store call.
// With a cache record the grade is cloned from it; otherwise fresh is
// recorded and cached. The session is credited for every attempt, but
// improvement and the leaderboard only for freshly computed grades.
func (s *Service) commit(ctx context.Context, rec *model.GradeRecord, cached *model.CacheRecord, fresh model.Grade) (string, error) {
	path := PathMiss
	c := store.GradeCommit{Grade: rec}
	if cached != nil {
		path = PathHit
		rec.Grade = cached.Grade
		rec.SourceGradeID = cached.GradeID
	} else {
		rec.Grade = fresh
		rec.SourceGradeID = ""
		c.Cache = &model.CacheRecord{
			Fingerprint: rec.Fingerprint,
			OwnerUserID: rec.UserID,
			GradeID:     rec.ID,
			Grade:       rec.Grade,
			CreatedAt:   rec.CreatedAt,
		}
	}

	c.Session = model.SessionDelta{Attempted: 1}
	if rec.Grade.Status == model.StatusAccepted {
		c.Session.Accepted = 1
	} else {
		c.Session.Failed = 1
	}
	if rec.Grade.IsDangerous {
		c.Session.Dangerous = 1
	}
	if path == PathMiss {
		improvement := decimal.NewFromFloat(rec.Grade.ImprovementScore).Round(1)
		c.Session.Improvement = improvement
		c.Leaderboard = improvement
	}

	err := s.store.CommitGrade(ctx, c)
	switch {
	case err == nil:
		return path, nil
	case errors.Is(err, store.ErrAlreadyCached):
		return path, err
	case errors.Is(err, store.ErrSessionOwner):
		return path, fmt.Errorf("%w: %w", ErrSessionNotOwned, err)
	default:
		return path, fmt.Errorf("%w: commit grade: %w", ErrPersistence, err)
	}
}

// evaluate values every asset, applies the policy and asks the grader for a
// score, reasoning and breakdown.
func (s *Service) evaluate(ctx context.Context, p model.TradeProposal) (model.Grade, error) {
	sport := model.NormalizeSport(p.Sport)
	home := model.NormalizeTeam(p.Home)
	vctx := valuation.Context{Sport: sport}

	assets := make([]grader.AssetValuation, 0, len(p.Flows))
	for _, f := range p.Flows {
		b, err := s.engine.Valuate(f.Asset, vctx)
		if err != nil {
			slog.Error("degenerate valuation",
				"sport", sport,
				"from", f.From,
				"to", f.To,
				"kind", f.Asset.Kind(),
				"err", err,
			)
			return model.Grade{}, err
		}
		assets = append(assets, grader.AssetValuation{
			From:      model.NormalizeTeam(f.From),
			To:        model.NormalizeTeam(f.To),
			Asset:     f.Asset,
			Valuation: b,
		})
	}

	req := grader.NewRequest(sport, home, p.Participants(), assets, s.policy)

	gctx, cancel := context.WithTimeout(ctx, s.graderTimeout)
	defer cancel()
	started := time.Now()
	res, err := s.grader.Grade(gctx, req)
	outcome := "ok"
	if err != nil {
		outcome = "error"
	}
	metrics.GraderLatency.WithLabelValues(s.graderName, outcome).Observe(time.Since(started).Seconds())
	if err != nil {
		return model.Grade{}, fmt.Errorf("%w: %w", ErrGradingUnavailable, err)
	}

	grade := model.Grade{
		Score:       res.Score,
		Status:      req.Verdict.Status,
		IsDangerous: req.Verdict.IsDangerous,
		Reasoning:   res.Reasoning,
		Breakdown:   res.Breakdown,
	}
	if grade.Status == model.StatusAccepted {
		grade.ImprovementScore = decimal.NewFromFloat(req.Ledger(home).Net()).Round(1).InexactFloat64()
	}
	return grade, nil
}

// publish fans an event out to every sink. Sink failures are logged, never
// returned: the grade is already durable.
func (s *Service) publish(ctx context.Context, ev events.GradeEvent) {
	for _, sink := range s.sinks {
		if err := sink.PublishGrade(ctx, ev); err != nil {
			metrics.EventPublishFailures.WithLabelValues(fmt.Sprintf("%T", sink)).Inc()
			slog.Warn("grade event publish failed",
				"fingerprint", ev.Fingerprint,
				"sink", fmt.Sprintf("%T", sink),
				"err", err,
			)
		}
	}
}

// newShareCode returns a fresh uppercase hex code.
func (s *Service) newShareCode() string {
	raw := strings.ReplaceAll(uuid.New().String(), "-", "")
	return strings.ToUpper(raw[:s.shareCodeLen])
}

func failureKind(err error) string {
	switch {
	case errors.Is(err, model.ErrInvalidProposal):
		return "invalid_proposal"
	case errors.Is(err, ErrGradingUnavailable):
		return "grading_unavailable"
	case errors.Is(err, ErrPersistence):
		return "persistence"
	case errors.Is(err, ErrSessionNotOwned):
		return "session_not_owned"
	case errors.Is(err, valuation.ErrDegenerateValuation):
		return "degenerate_valuation"
	default:
		return "internal"
	}
}
