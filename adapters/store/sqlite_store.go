package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/core"
	"github.com/Ankitpaiii/Decentralized-Proof-of-Life/ports"
	_ "github.com/mattn/go-sqlite3"
)

const sqliteSchema = `
CREATE TABLE IF NOT EXISTS enrollments (
	identity            TEXT PRIMARY KEY,
	template            TEXT NOT NULL,
	algorithm           TEXT NOT NULL DEFAULT '',
	version             TEXT NOT NULL DEFAULT '',
	quality_score       REAL NOT NULL DEFAULT 0,
	frames_used         INTEGER NOT NULL DEFAULT 0,
	registered_at       INTEGER NOT NULL,
	last_verification   INTEGER,
	total_verifications INTEGER NOT NULL DEFAULT 0,
	failed_attempts     INTEGER NOT NULL DEFAULT 0
);

CREATE TABLE IF NOT EXISTS sessions (
	id               INTEGER PRIMARY KEY AUTOINCREMENT,
	session_id       TEXT NOT NULL UNIQUE,
	identity         TEXT NOT NULL,
	challenge_type   TEXT NOT NULL,
	challenge_id     TEXT NOT NULL,
	success          INTEGER NOT NULL,
	confidence_score REAL NOT NULL,
	match_score      REAL NOT NULL,
	liveness_score   REAL NOT NULL,
	duration_seconds REAL NOT NULL,
	failure_reason   TEXT NOT NULL DEFAULT '',
	created_at       INTEGER NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_sessions_identity ON sessions(identity, id);
`

// OpenSQLite opens the database at path and creates the schema. ":memory:"
// is limited to one connection so every query sees the same database
func OpenSQLite(ctx context.Context, path string) (*sql.DB, error) {
	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping database: %w", err)
	}

	if path == ":memory:" {
		db.SetMaxOpenConns(1)
	} else {
		db.SetMaxOpenConns(25)
		db.SetMaxIdleConns(5)
		if _, err := db.ExecContext(ctx, "PRAGMA journal_mode = WAL;"); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to set PRAGMA journal_mode: %w", err)
		}
	}
	if _, err := db.ExecContext(ctx, "PRAGMA busy_timeout = 5000;"); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to set PRAGMA busy_timeout: %w", err)
	}

	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create schema: %w", err)
	}
	return db, nil
}

// SQLiteUserStore is a SQLite implementation of ports.UserRecordStore
type SQLiteUserStore struct {
	db  *sql.DB
	now func() time.Time
}

// NewSQLiteUserStore creates a user store on an opened database
func NewSQLiteUserStore(db *sql.DB) *SQLiteUserStore {
	return &SQLiteUserStore{db: db, now: time.Now}
}

var _ ports.UserRecordStore = (*SQLiteUserStore)(nil)

func millis(t time.Time) int64 {
	return t.UnixMilli()
}

func fromMillis(ms int64) time.Time {
	return time.UnixMilli(ms).UTC()
}

// Enroll stores or replaces the identity's template. Re-enrollment resets
// the verification counters
func (s *SQLiteUserStore) Enroll(ctx context.Context, e core.Enrollment) error {
	template, err := json.Marshal(e.Template)
	if err != nil {
		return fmt.Errorf("failed to encode template: %w", err)
	}
	registered := e.RegisteredAt
	if registered.IsZero() {
		registered = s.now()
	}

	const q = `
		INSERT INTO enrollments (identity, template, algorithm, version, quality_score, frames_used, registered_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(identity) DO UPDATE SET
			template = excluded.template,
			algorithm = excluded.algorithm,
			version = excluded.version,
			quality_score = excluded.quality_score,
			frames_used = excluded.frames_used,
			registered_at = excluded.registered_at,
			last_verification = NULL,
			total_verifications = 0,
			failed_attempts = 0
	`
	if _, err := s.db.ExecContext(ctx, q, e.Identity, string(template), e.Algorithm, e.Version, e.QualityScore, e.FramesUsed, millis(registered)); err != nil {
		return fmt.Errorf("%w: insert enrollment: %w", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// IsEnrolled reports whether a template is stored for identity
func (s *SQLiteUserStore) IsEnrolled(ctx context.Context, identity string) (bool, error) {
	const q = `SELECT 1 FROM enrollments WHERE identity = ? LIMIT 1`
	var one int
	err := s.db.QueryRowContext(ctx, q, identity).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("%w: query enrollment: %w", core.ErrStoreOperationFailed, err)
	}
	return true, nil
}

// GetTemplate returns the stored template or nil
func (s *SQLiteUserStore) GetTemplate(ctx context.Context, identity string) (core.Descriptor, error) {
	e, err := s.GetEnrollment(ctx, identity)
	if errors.Is(err, core.ErrNotEnrolled) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return e.Template, nil
}

// GetEnrollment returns the stored enrollment
func (s *SQLiteUserStore) GetEnrollment(ctx context.Context, identity string) (core.Enrollment, error) {
	const q = `
		SELECT identity, template, algorithm, version, quality_score, frames_used,
		       registered_at, last_verification, total_verifications, failed_attempts
		FROM enrollments
		WHERE identity = ?
	`
	var (
		e          core.Enrollment
		template   string
		registered int64
		last       sql.NullInt64
	)
	err := s.db.QueryRowContext(ctx, q, identity).Scan(
		&e.Identity, &template, &e.Algorithm, &e.Version, &e.QualityScore, &e.FramesUsed,
		&registered, &last, &e.TotalVerifications, &e.FailedAttempts,
	)
	if errors.Is(err, sql.ErrNoRows) {
		return core.Enrollment{}, core.ErrNotEnrolled
	}
	if err != nil {
		return core.Enrollment{}, fmt.Errorf("%w: scan enrollment: %w", core.ErrStoreOperationFailed, err)
	}
	if err := json.Unmarshal([]byte(template), &e.Template); err != nil {
		return core.Enrollment{}, fmt.Errorf("failed to decode template: %w", err)
	}
	e.RegisteredAt = fromMillis(registered)
	if last.Valid {
		t := fromMillis(last.Int64)
		e.LastVerification = &t
	}
	return e, nil
}

// AppendSession adds a record to the history
func (s *SQLiteUserStore) AppendSession(ctx context.Context, r core.VerificationSession) error {
	ts := r.Timestamp
	if ts.IsZero() {
		ts = s.now()
	}
	const q = `
		INSERT INTO sessions (session_id, identity, challenge_type, challenge_id, success,
			confidence_score, match_score, liveness_score, duration_seconds, failure_reason, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`
	_, err := s.db.ExecContext(ctx, q, r.SessionID, r.Identity, string(r.ChallengeType), r.ChallengeID, r.Success,
		r.ConfidenceScore, r.MatchScore, r.LivenessScore, r.DurationSeconds, r.FailureReason, millis(ts))
	if err != nil {
		return fmt.Errorf("%w: insert session: %w", core.ErrStoreOperationFailed, err)
	}
	return nil
}

// UpdateStats bumps the identity's verification counters
func (s *SQLiteUserStore) UpdateStats(ctx context.Context, identity string, success bool) error {
	failed := 0
	if !success {
		failed = 1
	}
	const q = `
		UPDATE enrollments
		SET total_verifications = total_verifications + 1,
		    failed_attempts = failed_attempts + ?,
		    last_verification = ?
		WHERE identity = ?
	`
	res, err := s.db.ExecContext(ctx, q, failed, millis(s.now()), identity)
	if err != nil {
		return fmt.Errorf("%w: update stats: %w", core.ErrStoreOperationFailed, err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return fmt.Errorf("failed to update stats for %s: %w", identity, core.ErrNotEnrolled)
	}
	return nil
}

// GetHistory returns at most limit sessions, newest first. A non-positive
// limit returns everything
func (s *SQLiteUserStore) GetHistory(ctx context.Context, identity string, limit int) ([]core.VerificationSession, error) {
	if limit <= 0 {
		limit = -1
	}
	const q = `
		SELECT session_id, identity, challenge_type, challenge_id, success, confidence_score,
		       match_score, liveness_score, duration_seconds, failure_reason, created_at
		FROM sessions
		WHERE identity = ?
		ORDER BY id DESC
		LIMIT ?
	`
	rows, err := s.db.QueryContext(ctx, q, identity, limit)
	if err != nil {
		return nil, fmt.Errorf("%w: query sessions: %w", core.ErrStoreOperationFailed, err)
	}
	defer rows.Close()

	var out []core.VerificationSession
	for rows.Next() {
		var (
			r       core.VerificationSession
			typ     string
			created int64
		)
		if err := rows.Scan(&r.SessionID, &r.Identity, &typ, &r.ChallengeID, &r.Success, &r.ConfidenceScore,
			&r.MatchScore, &r.LivenessScore, &r.DurationSeconds, &r.FailureReason, &created); err != nil {
			return nil, fmt.Errorf("scan session: %w", err)
		}
		r.ChallengeType = core.ChallengeType(typ)
		r.Timestamp = fromMillis(created)
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate sessions: %w", err)
	}
	return out, nil
}

// GetStats summarizes the most recent sessions
func (s *SQLiteUserStore) GetStats(ctx context.Context, identity string) (core.Stats, error) {
	history, err := s.GetHistory(ctx, identity, core.StatsWindow)
	if err != nil {
		return core.Stats{}, err
	}
	return core.SummarizeHistory(history), nil
}
