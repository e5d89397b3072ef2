package store

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"

	"github.com/sportsmockery/gm-trade-engine/internal/model"
)

// CachedStore wraps a primary Store (PostgreSQL) with a Redis read-through
// cache. Writes go to the primary store and invalidate the cache; reads
// check Redis first then fall back to the primary.
type CachedStore struct {
	primary Store
	rdb     *redis.Client
	ttl     time.Duration
}

// NewCachedStore creates a cached wrapper around a primary store.
func NewCachedStore(primary Store, rdb *redis.Client, ttl time.Duration) *CachedStore {
	return &CachedStore{
		primary: primary,
		rdb:     rdb,
		ttl:     ttl,
	}
}

// --- Write-through (write to primary, invalidate cache) ---

func (s *CachedStore) PutCacheRecord(ctx context.Context, rec *model.CacheRecord) error {
	if err := s.primary.PutCacheRecord(ctx, rec); err != nil {
		return err
	}
	// Concurrent misses race on this key; let the next read pick up
	// whichever write the primary kept.
	s.rdb.Del(ctx, cacheRecordKey(rec.Fingerprint, rec.OwnerUserID))
	return nil
}

func (s *CachedStore) InsertGrade(ctx context.Context, rec *model.GradeRecord) error {
	if err := s.primary.InsertGrade(ctx, rec); err != nil {
		return err
	}
	// Grade records are immutable, so they can be cached on write.
	s.cacheJSON(ctx, gradeKey(rec.ID), rec)
	if rec.ShareCode != "" {
		s.rdb.Set(ctx, shareCodeKey(rec.ShareCode), rec.ID, s.ttl)
	}
	return nil
}

func (s *CachedStore) CommitGrade(ctx context.Context, c GradeCommit) error {
	if err := s.primary.CommitGrade(ctx, c); err != nil {
		return err
	}
	s.cacheJSON(ctx, gradeKey(c.Grade.ID), c.Grade)
	if c.Grade.ShareCode != "" {
		s.rdb.Set(ctx, shareCodeKey(c.Grade.ShareCode), c.Grade.ID, s.ttl)
	}
	if c.Cache != nil {
		s.rdb.Del(ctx, cacheRecordKey(c.Cache.Fingerprint, c.Cache.OwnerUserID))
	}
	s.rdb.Del(ctx, sessionKey(c.Grade.SessionID))
	return nil
}

func (s *CachedStore) IncrementSession(ctx context.Context, sessionID, userID string, delta model.SessionDelta) error {
	if err := s.primary.IncrementSession(ctx, sessionID, userID, delta); err != nil {
		return err
	}
	// Invalidate cache; next read will re-populate.
	s.rdb.Del(ctx, sessionKey(sessionID))
	return nil
}

func (s *CachedStore) IncrementLeaderboard(ctx context.Context, userID string, delta decimal.Decimal) error {
	return s.primary.IncrementLeaderboard(ctx, userID, delta)
}

// --- Read-through (check cache first) ---

func (s *CachedStore) GetCacheRecord(ctx context.Context, fp model.Fingerprint, userID string) (*model.CacheRecord, error) {
	key := cacheRecordKey(fp, userID)
	var rec model.CacheRecord
	if s.readJSON(ctx, key, &rec) {
		return &rec, nil
	}

	// Cache miss: read from primary.
	found, err := s.primary.GetCacheRecord(ctx, fp, userID)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, key, found)
	return found, nil
}

func (s *CachedStore) GetGrade(ctx context.Context, id string) (*model.GradeRecord, error) {
	var rec model.GradeRecord
	if s.readJSON(ctx, gradeKey(id), &rec) {
		return &rec, nil
	}

	found, err := s.primary.GetGrade(ctx, id)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, gradeKey(id), found)
	return found, nil
}

func (s *CachedStore) GetGradeByShareCode(ctx context.Context, code string) (*model.GradeRecord, error) {
	// Try cache via share code→grade ID mapping.
	id, err := s.rdb.Get(ctx, shareCodeKey(code)).Result()
	if err == nil {
		return s.GetGrade(ctx, id)
	}

	// Cache miss.
	rec, err := s.primary.GetGradeByShareCode(ctx, code)
	if err != nil {
		return nil, err
	}

	// Cache both the grade and the share code→ID mapping.
	s.cacheJSON(ctx, gradeKey(rec.ID), rec)
	s.rdb.Set(ctx, shareCodeKey(code), rec.ID, s.ttl)
	return rec, nil
}

func (s *CachedStore) GetSession(ctx context.Context, sessionID string) (*model.SessionAggregate, error) {
	var agg model.SessionAggregate
	if s.readJSON(ctx, sessionKey(sessionID), &agg) {
		return &agg, nil
	}

	found, err := s.primary.GetSession(ctx, sessionID)
	if err != nil {
		return nil, err
	}

	s.cacheJSON(ctx, sessionKey(sessionID), found)
	return found, nil
}

// --- Passthrough (not cached) ---

func (s *CachedStore) ListGradesByUser(ctx context.Context, userID string, limit int) ([]model.GradeRecord, error) {
	return s.primary.ListGradesByUser(ctx, userID, limit)
}

func (s *CachedStore) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	return s.primary.Leaderboard(ctx, limit)
}

// --- Cache helpers ---

func (s *CachedStore) readJSON(ctx context.Context, key string, v any) bool {
	data, err := s.rdb.Get(ctx, key).Bytes()
	if err != nil {
		return false
	}
	return json.Unmarshal(data, v) == nil
}

func (s *CachedStore) cacheJSON(ctx context.Context, key string, v any) {
	if data, err := json.Marshal(v); err == nil {
		s.rdb.Set(ctx, key, data, s.ttl)
	}
}

func cacheRecordKey(fp model.Fingerprint, uid string) string {
	return fmt.Sprintf("gradecache:%s:%s", fp, uid)
}
func gradeKey(id string) string          { return fmt.Sprintf("grade:%s", id) }
func shareCodeKey(code string) string    { return fmt.Sprintf("sharecode:%s", code) }
func sessionKey(sessionID string) string { return fmt.Sprintf("session:%s", sessionID) }
