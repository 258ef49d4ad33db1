// Package store persists intake sessions in SQLite.
package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/pitabwire/frame/workerpool"
	_ "modernc.org/sqlite"

	"github.com/voicetyped/lexintake/pkg/intake"
)

var _ intake.SessionStore = (*SQLiteStore)(nil)

// SQLiteStore keeps one JSON document per session with an idle TTL.
type SQLiteStore struct {
	db  *sql.DB
	ttl time.Duration
	now func() time.Time
	mu  sync.Mutex // serializes writes to avoid SQLITE_BUSY
}

// NewSQLite opens (creating if needed) the session database at dbPath.
// Sessions idle for longer than ttl are treated as gone; ttl <= 0 keeps
// them forever.
func NewSQLite(dbPath string, ttl time.Duration) (*SQLiteStore, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0755); err != nil {
			return nil, fmt.Errorf("create database directory: %w", err)
		}
	}

	dsn := dbPath + "?_journal=WAL&_sync=NORMAL&_busy_timeout=5000"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}

	db.SetMaxOpenConns(8)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("ping database: %w", err)
	}

	s := &SQLiteStore{db: db, ttl: ttl, now: time.Now}
	if err := s.initSchema(); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("initialize schema: %w", err)
	}
	return s, nil
}

func (s *SQLiteStore) initSchema() error {
	query := `
	PRAGMA busy_timeout = 5000;
	CREATE TABLE IF NOT EXISTS intake_sessions (
		session_id TEXT PRIMARY KEY,
		team_id TEXT NOT NULL,
		data TEXT NOT NULL,
		created_at INTEGER NOT NULL,
		updated_at INTEGER NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_intake_sessions_updated ON intake_sessions(updated_at);
	`
	if _, err := s.db.Exec(query); err != nil {
		return fmt.Errorf("create schema: %w", err)
	}
	return nil
}

// Ping verifies database connectivity.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Load returns the session with id, or nil when it does not exist or has
// expired.
func (s *SQLiteStore) Load(ctx context.Context, id string) (*intake.Session, error) {
	row := s.db.QueryRowContext(ctx,
		`SELECT data, updated_at FROM intake_sessions WHERE session_id = ?`, id)

	var data string
	var updatedAt int64
	err := row.Scan(&data, &updatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("scan session row: %w", err)
	}

	if s.expired(updatedAt) {
		return nil, nil
	}

	var sess intake.Session
	if err := json.Unmarshal([]byte(data), &sess); err != nil {
		return nil, fmt.Errorf("decode session %s: %w", id, err)
	}
	if sess.Answers == nil {
		sess.Answers = make(map[intake.SlotID]intake.Answer)
	}
	return &sess, nil
}

// Save inserts or replaces the session document.
func (s *SQLiteStore) Save(ctx context.Context, sess *intake.Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("encode session %s: %w", sess.ID, err)
	}

	updatedAt := sess.UpdatedAt
	if updatedAt.IsZero() {
		updatedAt = s.now()
	}
	createdAt := sess.CreatedAt
	if createdAt.IsZero() {
		createdAt = updatedAt
	}

	query := `
	INSERT INTO intake_sessions (session_id, team_id, data, created_at, updated_at)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT(session_id) DO UPDATE SET
		team_id = excluded.team_id,
		data = excluded.data,
		updated_at = excluded.updated_at`

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, query,
		sess.ID, sess.TeamID, string(data), createdAt.Unix(), updatedAt.Unix(),
	); err != nil {
		return fmt.Errorf("upsert session %s: %w", sess.ID, err)
	}
	return nil
}

// Delete removes a session.
func (s *SQLiteStore) Delete(ctx context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.db.ExecContext(ctx, `DELETE FROM intake_sessions WHERE session_id = ?`, id); err != nil {
		return fmt.Errorf("delete session %s: %w", id, err)
	}
	return nil
}

// CleanupExpired deletes sessions idle for longer than the TTL and returns
// how many were removed.
func (s *SQLiteStore) CleanupExpired(ctx context.Context) (int64, error) {
	if s.ttl <= 0 {
		return 0, nil
	}
	cutoff := s.now().Add(-s.ttl).Unix()

	s.mu.Lock()
	defer s.mu.Unlock()
	res, err := s.db.ExecContext(ctx, `DELETE FROM intake_sessions WHERE updated_at < ?`, cutoff)
	if err != nil {
		return 0, fmt.Errorf("delete expired sessions: %w", err)
	}
	n, _ := res.RowsAffected()
	return n, nil
}

// StartReaper periodically removes expired sessions until ctx is done.
func (s *SQLiteStore) StartReaper(ctx context.Context, pool workerpool.WorkerPool, interval time.Duration) {
	if s.ttl <= 0 || interval <= 0 {
		return
	}
	reap := func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				n, err := s.CleanupExpired(ctx)
				if err != nil {
					slog.WarnContext(ctx, "session cleanup failed", slog.String("error", err.Error()))
					continue
				}
				if n > 0 {
					slog.InfoContext(ctx, "reaped expired intake sessions", slog.Int64("count", n))
				}
			}
		}
	}
	if pool != nil {
		if err := pool.Submit(ctx, reap); err == nil {
			return
		}
	}
	go reap()
}

// Close closes the database.
func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) expired(updatedAt int64) bool {
	if s.ttl <= 0 {
		return false
	}
	return s.now().Sub(time.Unix(updatedAt, 0)) > s.ttl
}
