package store

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"

	"github.com/sportsmockery/gm-trade-engine/internal/model"
)

// MemoryStore implements Store with in-memory maps. Used for testing
// and development. Not suitable for production (no persistence).
type MemoryStore struct {
	mu          sync.RWMutex
	cache       map[cacheKey]model.CacheRecord
	grades      []model.GradeRecord
	gradeByID   map[string]int
	gradeByCode map[string]int
	sessions    map[string]*model.SessionAggregate
	leaderboard map[string]*model.LeaderboardEntry
	now         func() time.Time
}

type cacheKey struct {
	fp     model.Fingerprint
	userID string
}

// NewMemoryStore creates a new in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		cache:       make(map[cacheKey]model.CacheRecord),
		gradeByID:   make(map[string]int),
		gradeByCode: make(map[string]int),
		sessions:    make(map[string]*model.SessionAggregate),
		leaderboard: make(map[string]*model.LeaderboardEntry),
		now:         time.Now,
	}
}

func (s *MemoryStore) GetCacheRecord(_ context.Context, fp model.Fingerprint, userID string) (*model.CacheRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.cache[cacheKey{fp, userID}]
	if !ok {
		return nil, fmt.Errorf("cache record %s for %s: %w", fp, userID, ErrNotFound)
	}
	return &rec, nil
}

func (s *MemoryStore) PutCacheRecord(_ context.Context, rec *model.CacheRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.cache[cacheKey{rec.Fingerprint, rec.OwnerUserID}] = *rec
	return nil
}

func (s *MemoryStore) InsertGrade(_ context.Context, rec *model.GradeRecord) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkGrade(rec); err != nil {
		return err
	}
	s.appendGrade(rec)
	return nil
}

// CommitGrade validates every write before applying any of them, all under
// one lock.
func (s *MemoryStore) CommitGrade(_ context.Context, c GradeCommit) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	rec := c.Grade
	if err := s.checkGrade(rec); err != nil {
		return err
	}
	if c.Cache != nil {
		key := cacheKey{c.Cache.Fingerprint, c.Cache.OwnerUserID}
		if _, ok := s.cache[key]; ok {
			return fmt.Errorf("cache record %s for %s: %w", key.fp, key.userID, ErrAlreadyCached)
		}
	}
	if err := s.checkSession(rec.SessionID, rec.UserID); err != nil {
		return err
	}

	s.appendGrade(rec)
	if c.Cache != nil {
		s.cache[cacheKey{c.Cache.Fingerprint, c.Cache.OwnerUserID}] = *c.Cache
	}
	s.applySession(rec.SessionID, rec.UserID, c.Session)
	if !c.Leaderboard.IsZero() {
		s.addLeaderboard(rec.UserID, c.Leaderboard)
	}
	return nil
}

func (s *MemoryStore) checkGrade(rec *model.GradeRecord) error {
	if _, dup := s.gradeByID[rec.ID]; dup {
		return fmt.Errorf("grade %s already exists", rec.ID)
	}
	if _, dup := s.gradeByCode[rec.ShareCode]; dup && rec.ShareCode != "" {
		return fmt.Errorf("share code %s already exists", rec.ShareCode)
	}
	return nil
}

func (s *MemoryStore) appendGrade(rec *model.GradeRecord) {
	s.grades = append(s.grades, *rec)
	i := len(s.grades) - 1
	s.gradeByID[rec.ID] = i
	if rec.ShareCode != "" {
		s.gradeByCode[rec.ShareCode] = i
	}
}

func (s *MemoryStore) GetGrade(_ context.Context, id string) (*model.GradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.gradeByID[id]
	if !ok {
		return nil, fmt.Errorf("grade %s: %w", id, ErrNotFound)
	}
	rec := s.grades[i]
	return &rec, nil
}

func (s *MemoryStore) GetGradeByShareCode(_ context.Context, code string) (*model.GradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	i, ok := s.gradeByCode[code]
	if !ok {
		return nil, fmt.Errorf("grade with share code %s: %w", code, ErrNotFound)
	}
	rec := s.grades[i]
	return &rec, nil
}

func (s *MemoryStore) ListGradesByUser(_ context.Context, userID string, limit int) ([]model.GradeRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var result []model.GradeRecord
	// Newest first: records are appended in insertion order.
	for i := len(s.grades) - 1; i >= 0; i-- {
		if s.grades[i].UserID != userID {
			continue
		}
		result = append(result, s.grades[i])
		if limit > 0 && len(result) == limit {
			break
		}
	}
	return result, nil
}

func (s *MemoryStore) IncrementSession(_ context.Context, sessionID, userID string, delta model.SessionDelta) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.checkSession(sessionID, userID); err != nil {
		return err
	}
	s.applySession(sessionID, userID, delta)
	return nil
}

func (s *MemoryStore) checkSession(sessionID, userID string) error {
	if agg, ok := s.sessions[sessionID]; ok && agg.UserID != userID {
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionOwner)
	}
	return nil
}

func (s *MemoryStore) applySession(sessionID, userID string, delta model.SessionDelta) {
	agg, ok := s.sessions[sessionID]
	if !ok {
		agg = &model.SessionAggregate{SessionID: sessionID, UserID: userID}
		s.sessions[sessionID] = agg
	}
	agg.Apply(delta)
	agg.UpdatedAt = s.now()
}

func (s *MemoryStore) GetSession(_ context.Context, sessionID string) (*model.SessionAggregate, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	agg, ok := s.sessions[sessionID]
	if !ok {
		return nil, fmt.Errorf("session %s: %w", sessionID, ErrNotFound)
	}
	copy := *agg
	return &copy, nil
}

func (s *MemoryStore) IncrementLeaderboard(_ context.Context, userID string, delta decimal.Decimal) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.addLeaderboard(userID, delta)
	return nil
}

func (s *MemoryStore) addLeaderboard(userID string, delta decimal.Decimal) {
	e, ok := s.leaderboard[userID]
	if !ok {
		e = &model.LeaderboardEntry{UserID: userID}
		s.leaderboard[userID] = e
	}
	e.Score = e.Score.Add(delta)
	e.Trades++
	e.UpdatedAt = s.now()
}

func (s *MemoryStore) Leaderboard(_ context.Context, limit int) ([]model.LeaderboardEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	entries := make([]model.LeaderboardEntry, 0, len(s.leaderboard))
	for _, e := range s.leaderboard {
		entries = append(entries, *e)
	}
	sort.Slice(entries, func(i, j int) bool {
		if c := entries[i].Score.Cmp(entries[j].Score); c != 0 {
			return c > 0
		}
		return entries[i].UserID < entries[j].UserID
	})
	if limit > 0 && len(entries) > limit {
		entries = entries[:limit]
	}
	return entries, nil
}
