package settings

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// Settings is the durable record. Keys match the config.json the bot has always used.
type Settings struct {
	IntervalHours int `json:"interval_hours" yaml:"interval_hours" db:"interval_hours"`
}

// Default is used whenever nothing valid is persisted.
func Default() Settings { return Settings{IntervalHours: 1} }

// Interval converts the hour count into a period.
func (s Settings) Interval() time.Duration {
	return time.Duration(s.IntervalHours) * time.Hour
}

func (s Settings) Validate() error {
	if s.IntervalHours < 1 {
		return fmt.Errorf("%w: interval_hours must be >= 1 (got %d)", ErrInvalid, s.IntervalHours)
	}
	return nil
}

// Store is the ConfigStore contract.
type Store interface {
	// Load returns the persisted settings or Default(). It never writes.
	Load(ctx context.Context) Settings
	// Save atomically replaces the persisted settings.
	// Write failures are returned as *PersistenceError.
	Save(ctx context.Context, s Settings) error
	Close() error
}

// Config selects and configures a driver.
type Config struct {
	Driver      string // "file" (default) | "sqlite"
	Path        string
	BusyTimeout time.Duration // sqlite only; 0 means default
}

var ErrInvalid = errors.New("invalid settings")

// PersistenceError reports that settings could not be made durable.
type PersistenceError struct {
	Path string
	Err  error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("persist settings %s: %v", e.Path, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
