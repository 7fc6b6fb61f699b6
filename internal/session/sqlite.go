package session

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	_ "modernc.org/sqlite"
)

// SQLiteStore persists sessions in a local sqlite file. Writes are serialized
// across processes with a file lock.
type SQLiteStore struct {
	db   *sql.DB
	lock *flock.Flock
	ttl  time.Duration
	now  func() time.Time
}

func OpenSQLite(path, lockPath string, ttl time.Duration) (*SQLiteStore, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("create session directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Dir(lockPath), 0o755); err != nil {
		return nil, fmt.Errorf("create session lock directory: %w", err)
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open session sqlite: %w", err)
	}
	queries := []string{
		"PRAGMA journal_mode=WAL;",
		"PRAGMA synchronous=NORMAL;",
		"CREATE TABLE IF NOT EXISTS sessions (external_id INTEGER PRIMARY KEY, payload BLOB NOT NULL, expires_at INTEGER NOT NULL);",
	}
	for _, query := range queries {
		if _, err := db.Exec(query); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("init session schema: %w", err)
		}
	}
	s := &SQLiteStore{db: db, lock: flock.New(lockPath), ttl: normalizeTTL(ttl), now: time.Now}
	// Drop sessions that expired while the process was down.
	_ = s.Prune(context.Background())
	return s, nil
}

func (s *SQLiteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

func (s *SQLiteStore) Prune(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE expires_at <= ?", s.now().UTC().UnixMilli())
	if err != nil {
		return fmt.Errorf("prune sessions: %w", err)
	}
	return nil
}

func (s *SQLiteStore) Get(ctx context.Context, externalID int64) (Session, bool, error) {
	var payload []byte
	err := s.db.QueryRowContext(ctx, "SELECT payload FROM sessions WHERE external_id = ?", externalID).Scan(&payload)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return Session{}, false, nil
		}
		return Session{}, false, fmt.Errorf("read session: %w", err)
	}
	sess, err := decode(payload)
	if err != nil {
		return Session{}, false, err
	}
	if sess.Expired(s.now()) {
		if err := s.Delete(ctx, externalID); err != nil {
			return Session{}, false, err
		}
		return Session{}, false, nil
	}
	return sess, true, nil
}

func (s *SQLiteStore) Put(ctx context.Context, sess Session) error {
	sess.ExpiresAt = s.now().UTC().Add(s.ttl)
	payload, err := encode(sess)
	if err != nil {
		return err
	}
	return s.withLock(ctx, func() error {
		_, err := s.db.ExecContext(ctx, `
			INSERT INTO sessions (external_id, payload, expires_at)
			VALUES (?, ?, ?)
			ON CONFLICT(external_id) DO UPDATE SET
				payload=excluded.payload,
				expires_at=excluded.expires_at
		`, sess.ExternalID, payload, sess.ExpiresAt.UnixMilli())
		if err != nil {
			return fmt.Errorf("write session: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) Delete(ctx context.Context, externalID int64) error {
	return s.withLock(ctx, func() error {
		if _, err := s.db.ExecContext(ctx, "DELETE FROM sessions WHERE external_id = ?", externalID); err != nil {
			return fmt.Errorf("delete session: %w", err)
		}
		return nil
	})
}

func (s *SQLiteStore) withLock(ctx context.Context, fn func() error) error {
	lockCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	locked, err := s.lock.TryLockContext(lockCtx, 25*time.Millisecond)
	if err != nil {
		return fmt.Errorf("lock session store: %w", err)
	}
	if !locked {
		return fmt.Errorf("lock session store: timeout acquiring lock")
	}
	defer func() { _ = s.lock.Unlock() }()
	return fn()
}
