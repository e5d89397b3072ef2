// Package store defines the persistence interface for the trade engine.
// Implementations include PostgreSQL (source of truth), Redis (read-through
// cache), and in-memory (for testing).
package store

import (
	"context"
	"errors"

	"github.com/shopspring/decimal"

	"github.com/sportsmockery/gm-trade-engine/internal/model"
)

var (
	// ErrNotFound is returned by lookups that match no record.
	ErrNotFound = errors.New("store: not found")

	// ErrSessionOwner is returned when a session increment names a user
	// other than the one the session was created for.
	ErrSessionOwner = errors.New("store: session belongs to another user")

	// ErrAlreadyCached is returned by CommitGrade when another submission
	// committed a cache record for the same fingerprint and user first.
	ErrAlreadyCached = errors.New("store: grade already cached")
)

// GradeCommit is everything one authenticated submission writes.
type GradeCommit struct {
	Grade *model.GradeRecord
	// Cache is set on a cache miss only.
	Cache   *model.CacheRecord
	Session model.SessionDelta
	// Leaderboard is added to the user's score when non-zero.
	Leaderboard decimal.Decimal
}

// Store is the persistence interface. PostgreSQL is the source of truth;
// Redis provides a read-through cache layer.
type Store interface {
	// --- Grade cache ---

	// GetCacheRecord returns the first grade a user received for a
	// fingerprint, or ErrNotFound.
	GetCacheRecord(ctx context.Context, fp model.Fingerprint, userID string) (*model.CacheRecord, error)

	// PutCacheRecord stores a cache record. Concurrent writers for the same
	// key are allowed; the last write wins.
	PutCacheRecord(ctx context.Context, rec *model.CacheRecord) error

	// --- Immutable grade records ---

	// InsertGrade appends a grade record.
	InsertGrade(ctx context.Context, rec *model.GradeRecord) error

	// GetGrade retrieves a grade record by ID.
	GetGrade(ctx context.Context, id string) (*model.GradeRecord, error)

	// GetGradeByShareCode retrieves a grade record by its share code.
	GetGradeByShareCode(ctx context.Context, code string) (*model.GradeRecord, error)

	// ListGradesByUser returns a user's most recent grades, newest first.
	ListGradesByUser(ctx context.Context, userID string, limit int) ([]model.GradeRecord, error)

	// CommitGrade writes the grade record, the cache record if any, the
	// session increment and the leaderboard increment as one unit. On error
	// none of them is applied. The cache record is only written if the key
	// is still free; otherwise ErrAlreadyCached is returned.
	CommitGrade(ctx context.Context, c GradeCommit) error

	// --- Aggregates ---

	// IncrementSession atomically adds delta to a session's counters,
	// creating the session on first use. A session is owned by the user who
	// created it; other users get ErrSessionOwner.
	IncrementSession(ctx context.Context, sessionID, userID string, delta model.SessionDelta) error

	// GetSession returns a session aggregate, or ErrNotFound.
	GetSession(ctx context.Context, sessionID string) (*model.SessionAggregate, error)

	// IncrementLeaderboard atomically adds delta to a user's global score.
	IncrementLeaderboard(ctx context.Context, userID string, delta decimal.Decimal) error

	// Leaderboard returns the top users by score.
	Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error)
}
