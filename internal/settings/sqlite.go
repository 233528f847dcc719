package settings

import (
	"context"
	"database/sql"
	_ "embed"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/go-pkgz/repeater/v2"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"

	logx "promobot/pkg/logx"
)

//go:embed migrations.sql
var migrations string

type sqliteStore struct {
	db   *sqlx.DB
	log  logx.Logger
	path string
}

func openSQLite(cfg Config, log logx.Logger) (Store, error) {
	path := strings.TrimSpace(cfg.Path)
	if path == "" {
		return nil, errors.New("settings.path is required for sqlite driver")
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}

	db, err := sqlx.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("open settings db: %w", err)
	}
	// SQLite prefers a single writer.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	busy := cfg.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	pragmas := []string{
		fmt.Sprintf("PRAGMA busy_timeout = %d", busy.Milliseconds()),
		"PRAGMA journal_mode = WAL",
		"PRAGMA synchronous = NORMAL",
	}
	for _, p := range pragmas {
		if _, err := db.Exec(p); err != nil {
			_ = db.Close()
			return nil, fmt.Errorf("execute %s: %w", p, err)
		}
	}
	if _, err := db.Exec(migrations); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("migrate settings db: %w", err)
	}
	return &sqliteStore{db: db, log: log, path: path}, nil
}

func (s *sqliteStore) Load(ctx context.Context) Settings {
	var st Settings
	err := s.db.GetContext(ctx, &st, `SELECT interval_hours FROM settings WHERE id = 1`)
	if errors.Is(err, sql.ErrNoRows) {
		return Default()
	}
	if err != nil {
		s.log.Warn("settings read failed; using defaults", logx.String("path", s.path), logx.Err(err))
		return Default()
	}
	if err := st.Validate(); err != nil {
		s.log.Warn("settings invalid; using defaults", logx.String("path", s.path), logx.Err(err))
		return Default()
	}
	return st
}

func (s *sqliteStore) Save(ctx context.Context, st Settings) error {
	if err := st.Validate(); err != nil {
		return err
	}

	// Retry only lock contention; anything else is reported as-is.
	var permanent error
	retrier := repeater.NewBackoff(5, 50*time.Millisecond, repeater.WithMaxDelay(2*time.Second))
	err := retrier.Do(ctx, func() error {
		_, err := s.db.ExecContext(ctx,
			`INSERT INTO settings(id, interval_hours, updated_at) VALUES(1, ?, ?)
			 ON CONFLICT(id) DO UPDATE SET interval_hours = excluded.interval_hours, updated_at = excluded.updated_at`,
			st.IntervalHours, time.Now().UTC().Format(time.RFC3339Nano),
		)
		if err != nil && isLockError(err) {
			return err
		}
		permanent = err
		return nil
	})
	if err == nil {
		err = permanent
	}
	if err != nil {
		return &PersistenceError{Path: s.path, Err: err}
	}
	s.log.Debug("settings saved", logx.String("path", s.path), logx.Int("interval_hours", st.IntervalHours))
	return nil
}

func (s *sqliteStore) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// isLockError checks if an error is a SQLite lock/busy error.
func isLockError(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "SQLITE_BUSY") ||
		strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked")
}
