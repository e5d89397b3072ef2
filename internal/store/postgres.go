package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/shopspring/decimal"

	"github.com/sportsmockery/gm-trade-engine/internal/model"
)

// PostgresStore implements Store using PostgreSQL as the source of truth.
// Running totals are stored as NUMERIC for exact decimal precision; grades
// are stored as JSONB.
type PostgresStore struct {
	pool *pgxpool.Pool
}

// dbtx is satisfied by both *pgxpool.Pool and pgx.Tx.
type dbtx interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
}

// NewPostgresStore creates a new PostgreSQL-backed store.
func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

const schema = `
	-- One row per authenticated submission; never updated.
	CREATE TABLE IF NOT EXISTS trade_grades (
		id TEXT PRIMARY KEY,
		share_code TEXT UNIQUE,
		fingerprint TEXT NOT NULL,
		user_id TEXT NOT NULL,
		session_id TEXT NOT NULL,
		sport TEXT NOT NULL,
		grade JSONB NOT NULL,
		source_grade_id TEXT,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_trade_grades_user ON trade_grades(user_id, created_at DESC);
	CREATE INDEX IF NOT EXISTS idx_trade_grades_fingerprint ON trade_grades(fingerprint);

	-- First grade per (fingerprint, user).
	CREATE TABLE IF NOT EXISTS grade_cache (
		fingerprint TEXT NOT NULL,
		owner_user_id TEXT NOT NULL,
		grade_id TEXT NOT NULL,
		grade JSONB NOT NULL,
		created_at TIMESTAMPTZ NOT NULL DEFAULT NOW(),
		PRIMARY KEY (fingerprint, owner_user_id)
	);

	CREATE TABLE IF NOT EXISTS session_aggregates (
		session_id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		trades_attempted BIGINT NOT NULL DEFAULT 0,
		trades_accepted BIGINT NOT NULL DEFAULT 0,
		trades_dangerous BIGINT NOT NULL DEFAULT 0,
		trades_failed BIGINT NOT NULL DEFAULT 0,
		total_improvement NUMERIC NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);

	CREATE TABLE IF NOT EXISTS leaderboard (
		user_id TEXT PRIMARY KEY,
		score NUMERIC NOT NULL DEFAULT 0,
		trades BIGINT NOT NULL DEFAULT 0,
		updated_at TIMESTAMPTZ NOT NULL DEFAULT NOW()
	);
	CREATE INDEX IF NOT EXISTS idx_leaderboard_score ON leaderboard(score DESC);
`

// InitSchema creates the tables the store needs if they are missing.
func (s *PostgresStore) InitSchema(ctx context.Context) error {
	if _, err := s.pool.Exec(ctx, schema); err != nil {
		return fmt.Errorf("init schema: %w", err)
	}
	return nil
}

func (s *PostgresStore) GetCacheRecord(ctx context.Context, fp model.Fingerprint, userID string) (*model.CacheRecord, error) {
	var rec model.CacheRecord
	var fpS, gradeS string

	err := s.pool.QueryRow(ctx,
		`SELECT fingerprint, owner_user_id, grade_id, grade::TEXT, created_at
		 FROM grade_cache WHERE fingerprint = $1 AND owner_user_id = $2`,
		string(fp), userID).
		Scan(&fpS, &rec.OwnerUserID, &rec.GradeID, &gradeS, &rec.CreatedAt)
	if err != nil {
		return nil, notFound(fmt.Sprintf("cache record %s for %s", fp, userID), err)
	}

	rec.Fingerprint = model.Fingerprint(fpS)
	if err := json.Unmarshal([]byte(gradeS), &rec.Grade); err != nil {
		return nil, fmt.Errorf("decode cached grade %s: %w", rec.GradeID, err)
	}
	return &rec, nil
}

// PutCacheRecord upserts; a concurrent miss for the same key overwrites the
// earlier record.
func (s *PostgresStore) PutCacheRecord(ctx context.Context, rec *model.CacheRecord) error {
	grade, err := json.Marshal(rec.Grade)
	if err != nil {
		return fmt.Errorf("encode grade: %w", err)
	}

	_, err = s.pool.Exec(ctx,
		`INSERT INTO grade_cache (fingerprint, owner_user_id, grade_id, grade, created_at)
		 VALUES ($1, $2, $3, $4::JSONB, $5)
		 ON CONFLICT (fingerprint, owner_user_id) DO UPDATE SET
			grade_id = EXCLUDED.grade_id,
			grade = EXCLUDED.grade,
			created_at = EXCLUDED.created_at`,
		string(rec.Fingerprint), rec.OwnerUserID, rec.GradeID, string(grade), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("put cache record: %w", err)
	}
	return nil
}

// claimCacheRecord inserts rec only if its key is free.
func claimCacheRecord(ctx context.Context, db dbtx, rec *model.CacheRecord) error {
	grade, err := json.Marshal(rec.Grade)
	if err != nil {
		return fmt.Errorf("encode grade: %w", err)
	}

	tag, err := db.Exec(ctx,
		`INSERT INTO grade_cache (fingerprint, owner_user_id, grade_id, grade, created_at)
		 VALUES ($1, $2, $3, $4::JSONB, $5)
		 ON CONFLICT (fingerprint, owner_user_id) DO NOTHING`,
		string(rec.Fingerprint), rec.OwnerUserID, rec.GradeID, string(grade), rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("claim cache record: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("cache record %s for %s: %w", rec.Fingerprint, rec.OwnerUserID, ErrAlreadyCached)
	}
	return nil
}

// CommitGrade runs every write of a submission in one transaction.
func (s *PostgresStore) CommitGrade(ctx context.Context, c GradeCommit) error {
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return fmt.Errorf("begin commit: %w", err)
	}
	defer tx.Rollback(ctx)

	rec := c.Grade
	if err := insertGrade(ctx, tx, rec); err != nil {
		return err
	}
	if c.Cache != nil {
		if err := claimCacheRecord(ctx, tx, c.Cache); err != nil {
			return err
		}
	}
	if err := incrementSession(ctx, tx, rec.SessionID, rec.UserID, c.Session); err != nil {
		return err
	}
	if !c.Leaderboard.IsZero() {
		if err := incrementLeaderboard(ctx, tx, rec.UserID, c.Leaderboard); err != nil {
			return err
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("commit grade %s: %w", rec.ID, err)
	}
	return nil
}

func (s *PostgresStore) InsertGrade(ctx context.Context, rec *model.GradeRecord) error {
	return insertGrade(ctx, s.pool, rec)
}

func insertGrade(ctx context.Context, db dbtx, rec *model.GradeRecord) error {
	grade, err := json.Marshal(rec.Grade)
	if err != nil {
		return fmt.Errorf("encode grade: %w", err)
	}

	_, err = db.Exec(ctx,
		`INSERT INTO trade_grades (id, share_code, fingerprint, user_id, session_id, sport, grade, source_grade_id, created_at)
		 VALUES ($1, NULLIF($2, ''), $3, $4, $5, $6, $7::JSONB, NULLIF($8, ''), $9)`,
		rec.ID, rec.ShareCode, string(rec.Fingerprint), rec.UserID, rec.SessionID, rec.Sport,
		string(grade), rec.SourceGradeID, rec.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("insert grade %s: %w", rec.ID, err)
	}
	return nil
}

const gradeColumns = `id, COALESCE(share_code, ''), fingerprint, user_id, session_id, sport,
	grade::TEXT, COALESCE(source_grade_id, ''), created_at`

func (s *PostgresStore) GetGrade(ctx context.Context, id string) (*model.GradeRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+gradeColumns+` FROM trade_grades WHERE id = $1`, id)
	rec, err := scanGrade(row)
	if err != nil {
		return nil, notFound("grade "+id, err)
	}
	return rec, nil
}

func (s *PostgresStore) GetGradeByShareCode(ctx context.Context, code string) (*model.GradeRecord, error) {
	row := s.pool.QueryRow(ctx, `SELECT `+gradeColumns+` FROM trade_grades WHERE share_code = $1`, code)
	rec, err := scanGrade(row)
	if err != nil {
		return nil, notFound("grade with share code "+code, err)
	}
	return rec, nil
}

func (s *PostgresStore) ListGradesByUser(ctx context.Context, userID string, limit int) ([]model.GradeRecord, error) {
	if limit <= 0 {
		limit = 50
	}
	rows, err := s.pool.Query(ctx,
		`SELECT `+gradeColumns+` FROM trade_grades
		 WHERE user_id = $1 ORDER BY created_at DESC LIMIT $2`, userID, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var grades []model.GradeRecord
	for rows.Next() {
		rec, err := scanGrade(rows)
		if err != nil {
			return nil, err
		}
		grades = append(grades, *rec)
	}
	return grades, rows.Err()
}

// IncrementSession adds delta inside the database so concurrent submissions
// never overwrite each other's counts.
func (s *PostgresStore) IncrementSession(ctx context.Context, sessionID, userID string, delta model.SessionDelta) error {
	return incrementSession(ctx, s.pool, sessionID, userID, delta)
}

// incrementSession upserts the session row. The update only applies when the
// row belongs to userID, so a foreign session affects no rows.
func incrementSession(ctx context.Context, db dbtx, sessionID, userID string, delta model.SessionDelta) error {
	tag, err := db.Exec(ctx,
		`INSERT INTO session_aggregates
			(session_id, user_id, trades_attempted, trades_accepted, trades_dangerous, trades_failed, total_improvement, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7::NUMERIC, NOW())
		 ON CONFLICT (session_id) DO UPDATE SET
			trades_attempted = session_aggregates.trades_attempted + EXCLUDED.trades_attempted,
			trades_accepted = session_aggregates.trades_accepted + EXCLUDED.trades_accepted,
			trades_dangerous = session_aggregates.trades_dangerous + EXCLUDED.trades_dangerous,
			trades_failed = session_aggregates.trades_failed + EXCLUDED.trades_failed,
			total_improvement = session_aggregates.total_improvement + EXCLUDED.total_improvement,
			updated_at = NOW()
		 WHERE session_aggregates.user_id = EXCLUDED.user_id`,
		sessionID, userID,
		delta.Attempted, delta.Accepted, delta.Dangerous, delta.Failed,
		delta.Improvement.String(),
	)
	if err != nil {
		return fmt.Errorf("increment session %s: %w", sessionID, err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("session %s: %w", sessionID, ErrSessionOwner)
	}
	return nil
}

func (s *PostgresStore) GetSession(ctx context.Context, sessionID string) (*model.SessionAggregate, error) {
	var agg model.SessionAggregate
	var improvement string

	err := s.pool.QueryRow(ctx,
		`SELECT session_id, user_id, trades_attempted, trades_accepted, trades_dangerous, trades_failed,
		        total_improvement::TEXT, updated_at
		 FROM session_aggregates WHERE session_id = $1`, sessionID).
		Scan(&agg.SessionID, &agg.UserID,
			&agg.TradesAttempted, &agg.TradesAccepted, &agg.TradesDangerous, &agg.TradesFailed,
			&improvement, &agg.UpdatedAt)
	if err != nil {
		return nil, notFound("session "+sessionID, err)
	}

	agg.TotalImprovement, _ = decimal.NewFromString(improvement)
	return &agg, nil
}

func (s *PostgresStore) IncrementLeaderboard(ctx context.Context, userID string, delta decimal.Decimal) error {
	return incrementLeaderboard(ctx, s.pool, userID, delta)
}

func incrementLeaderboard(ctx context.Context, db dbtx, userID string, delta decimal.Decimal) error {
	_, err := db.Exec(ctx,
		`INSERT INTO leaderboard (user_id, score, trades, updated_at)
		 VALUES ($1, $2::NUMERIC, 1, NOW())
		 ON CONFLICT (user_id) DO UPDATE SET
			score = leaderboard.score + EXCLUDED.score,
			trades = leaderboard.trades + 1,
			updated_at = NOW()`,
		userID, delta.String(),
	)
	if err != nil {
		return fmt.Errorf("increment leaderboard %s: %w", userID, err)
	}
	return nil
}

func (s *PostgresStore) Leaderboard(ctx context.Context, limit int) ([]model.LeaderboardEntry, error) {
	if limit <= 0 {
		limit = 25
	}
	rows, err := s.pool.Query(ctx,
		`SELECT user_id, score::TEXT, trades, updated_at
		 FROM leaderboard ORDER BY score DESC, user_id LIMIT $1`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var entries []model.LeaderboardEntry
	for rows.Next() {
		var e model.LeaderboardEntry
		var score string
		if err := rows.Scan(&e.UserID, &score, &e.Trades, &e.UpdatedAt); err != nil {
			return nil, err
		}
		e.Score, _ = decimal.NewFromString(score)
		entries = append(entries, e)
	}
	return entries, rows.Err()
}

// pgxRow is satisfied by both pgx.Row and pgx.Rows.
type pgxRow interface {
	Scan(dest ...interface{}) error
}

func scanGrade(row pgxRow) (*model.GradeRecord, error) {
	var rec model.GradeRecord
	var fp, grade string

	if err := row.Scan(&rec.ID, &rec.ShareCode, &fp, &rec.UserID, &rec.SessionID, &rec.Sport,
		&grade, &rec.SourceGradeID, &rec.CreatedAt); err != nil {
		return nil, err
	}

	rec.Fingerprint = model.Fingerprint(fp)
	if err := json.Unmarshal([]byte(grade), &rec.Grade); err != nil {
		return nil, fmt.Errorf("decode grade %s: %w", rec.ID, err)
	}
	return &rec, nil
}

// notFound maps pgx.ErrNoRows onto ErrNotFound.
func notFound(what string, err error) error {
	if errors.Is(err, pgx.ErrNoRows) {
		return fmt.Errorf("%s: %w", what, ErrNotFound)
	}
	return fmt.Errorf("%s: %w", what, err)
}
