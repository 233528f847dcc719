package scheduler

import (
	"context"
	"errors"
	"time"
)

var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrAlreadyArmed    = errors.New("job already armed")
	ErrStopped         = errors.New("scheduler stopped")
)

// MinPeriod is the smallest period the scheduler accepts.
const MinPeriod = time.Second

// PassFunc runs one delivery pass. Errors and panics are logged and counted.
type PassFunc func(ctx context.Context) error

type State int

const (
	StateIdle State = iota
	StateArmed
	StateStopped
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateArmed:
		return "armed"
	case StateStopped:
		return "stopped"
	default:
		return "unknown"
	}
}

func (s State) MarshalText() ([]byte, error) { return []byte(s.String()), nil }

// Metrics receives scheduler signals. Implementations must be safe for concurrent use.
type Metrics interface {
	ObservePass(d time.Duration, err error)
	SetInterval(d time.Duration)
	IncReschedule()
}

type Option func(*Scheduler)

func WithClock(c Clock) Option {
	return func(s *Scheduler) {
		if c != nil {
			s.clock = c
		}
	}
}

func WithMetrics(m Metrics) Option {
	return func(s *Scheduler) { s.metrics = m }
}

type Snapshot struct {
	State       State         `json:"state"`
	Period      time.Duration `json:"period"`
	TimerArmed  bool          `json:"timer_armed"`
	NextFire    time.Time     `json:"next_fire"`
	Running     bool          `json:"running"`
	Generation  uint64        `json:"generation"`
	Passes      uint64        `json:"passes"`
	Failures    uint64        `json:"failures"`
	Panics      uint64        `json:"panics"`
	Reschedules uint64        `json:"reschedules"`
	LastStart   time.Time     `json:"last_start"`
	LastDur     time.Duration `json:"last_duration"`
	LastError   string        `json:"last_error,omitempty"`
}
