package trade

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/sportsmockery/gm-trade-engine/internal/model"
	"github.com/sportsmockery/gm-trade-engine/internal/store"
	"github.com/sportsmockery/gm-trade-engine/internal/valuation"
)

const (
	defaultListLimit = 25
	maxListLimit     = 100

	// retryAfterSeconds is advertised when the grader is unavailable.
	retryAfterSeconds = "5"
)

// Routes mounts the trade API on r.
func (s *Service) Routes(r chi.Router) {
	r.Post("/trades", s.HandleSubmit)
	r.Post("/trades/fingerprint", s.HandleFingerprint)
	r.Post("/valuations", s.HandleValuate)
	r.Get("/grades/{shareCode}", s.HandleGetGrade)
	r.Get("/sessions/{sessionID}", s.HandleGetSession)
	r.Get("/leaderboard", s.HandleLeaderboard)
	r.Get("/users/{userID}/grades", s.HandleListUserGrades)
}

// HandleSubmit handles POST /api/v1/trades
func (s *Service) HandleSubmit(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	sub, err := s.SubmitTrade(r.Context(), req)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, sub)
}

// FingerprintResponse is the JSON body returned from
// POST /api/v1/trades/fingerprint.
type FingerprintResponse struct {
	Fingerprint model.Fingerprint `json:"fingerprint"`
	Cached      bool              `json:"cached"`
}

// HandleFingerprint handles POST /api/v1/trades/fingerprint
// Lets a client check for a likely cache hit without submitting.
func (s *Service) HandleFingerprint(w http.ResponseWriter, r *http.Request) {
	var req SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}

	fp, err := s.Fingerprint(req.Proposal)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	cached, err := s.IsCached(r.Context(), fp, req.UserID)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, FingerprintResponse{Fingerprint: fp, Cached: cached})
}

// ValuationRequest is the JSON body for POST /api/v1/valuations.
type ValuationRequest struct {
	Sport string          `json:"sport"`
	Asset json.RawMessage `json:"asset"`
}

// HandleValuate handles POST /api/v1/valuations
func (s *Service) HandleValuate(w http.ResponseWriter, r *http.Request) {
	var req ValuationRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, "invalid request body: "+err.Error(), http.StatusBadRequest)
		return
	}
	if len(req.Asset) == 0 {
		writeError(w, "asset is required", http.StatusBadRequest)
		return
	}
	asset, err := model.DecodeAsset(req.Asset)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	b, err := s.Valuate(req.Sport, asset)
	if err != nil {
		writeServiceError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, b)
}

// HandleGetGrade handles GET /api/v1/grades/{shareCode}
func (s *Service) HandleGetGrade(w http.ResponseWriter, r *http.Request) {
	code := chi.URLParam(r, "shareCode")

	rec, err := s.store.GetGradeByShareCode(r.Context(), code)
	if err != nil {
		writeLookupError(w, err, "grade not found")
		return
	}
	writeJSON(w, http.StatusOK, rec)
}

// HandleGetSession handles GET /api/v1/sessions/{sessionID}
func (s *Service) HandleGetSession(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")

	agg, err := s.store.GetSession(r.Context(), sessionID)
	if err != nil {
		writeLookupError(w, err, "session not found")
		return
	}
	writeJSON(w, http.StatusOK, agg)
}

// HandleLeaderboard handles GET /api/v1/leaderboard?limit=N
func (s *Service) HandleLeaderboard(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	entries, err := s.store.Leaderboard(r.Context(), limit)
	if err != nil {
		writeError(w, "failed to load leaderboard", http.StatusInternalServerError)
		return
	}
	if entries == nil {
		entries = []model.LeaderboardEntry{}
	}
	writeJSON(w, http.StatusOK, entries)
}

// HandleListUserGrades handles GET /api/v1/users/{userID}/grades?limit=N
// Returns the user's grades, newest first.
func (s *Service) HandleListUserGrades(w http.ResponseWriter, r *http.Request) {
	userID := chi.URLParam(r, "userID")
	limit, err := parseLimit(r)
	if err != nil {
		writeError(w, err.Error(), http.StatusBadRequest)
		return
	}

	grades, err := s.store.ListGradesByUser(r.Context(), userID, limit)
	if err != nil {
		writeError(w, "failed to list grades", http.StatusInternalServerError)
		return
	}
	if grades == nil {
		grades = []model.GradeRecord{}
	}
	writeJSON(w, http.StatusOK, grades)
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 1 {
		return 0, errors.New("limit must be a positive integer")
	}
	return min(n, maxListLimit), nil
}

// writeServiceError maps service errors onto HTTP statuses.
func writeServiceError(w http.ResponseWriter, err error) {
	var pe *model.ProposalError
	switch {
	case errors.As(err, &pe):
		writeJSON(w, http.StatusBadRequest, map[string]string{
			"error":     err.Error(),
			"invariant": pe.Invariant,
		})
	case errors.Is(err, model.ErrInvalidProposal):
		writeError(w, err.Error(), http.StatusBadRequest)
	case errors.Is(err, ErrSessionNotOwned):
		writeError(w, "session belongs to another user", http.StatusForbidden)
	case errors.Is(err, ErrGradingUnavailable):
		w.Header().Set("Retry-After", retryAfterSeconds)
		writeError(w, "grading is temporarily unavailable, try again shortly", http.StatusServiceUnavailable)
	case errors.Is(err, valuation.ErrDegenerateValuation):
		writeError(w, "trade could not be valued", http.StatusInternalServerError)
	case errors.Is(err, ErrPersistence):
		writeError(w, "failed to record grade", http.StatusInternalServerError)
	default:
		writeError(w, "internal error", http.StatusInternalServerError)
	}
}

func writeLookupError(w http.ResponseWriter, err error, notFound string) {
	if errors.Is(err, store.ErrNotFound) {
		writeError(w, notFound, http.StatusNotFound)
		return
	}
	writeError(w, "lookup failed", http.StatusInternalServerError)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error response.
func writeError(w http.ResponseWriter, message string, status int) {
	writeJSON(w, status, map[string]string{"error": message})
}
