package broadcast

import (
	"errors"
	"fmt"
	"time"

	"promobot/internal/catalog"
)

const (
	DefaultRatePerSec  = 1.0
	DefaultSendTimeout = 15 * time.Second
)

type Config struct {
	// RatePerSec paces outbound messages (burst 1). <= 0 means DefaultRatePerSec.
	RatePerSec float64
	// SendTimeout bounds one item including the limiter wait. <= 0 means DefaultSendTimeout.
	SendTimeout time.Duration
}

func (c Config) withDefaults() Config {
	if c.RatePerSec <= 0 {
		c.RatePerSec = DefaultRatePerSec
	}
	if c.SendTimeout <= 0 {
		c.SendTimeout = DefaultSendTimeout
	}
	return c
}

// Metrics receives per-item delivery results. Implementations must be safe for concurrent use.
type Metrics interface {
	ObserveDelivery(ok bool, d time.Duration)
}

// DeliveryError reports a single item that could not be delivered.
type DeliveryError struct {
	Index int
	Item  catalog.Item
	Err   error
}

func (e *DeliveryError) Error() string {
	return fmt.Sprintf("deliver item %d (%q): %v", e.Index, e.Item.Title, e.Err)
}

func (e *DeliveryError) Unwrap() error { return e.Err }

type Outcome struct {
	Item catalog.Item
	OK   bool
	Err  error // *DeliveryError when !OK
}

// Report describes one pass over the catalog.
type Report struct {
	ID       string
	Started  time.Time
	Duration time.Duration
	Outcomes []Outcome
}

func (r Report) Sent() int {
	n := 0
	for _, o := range r.Outcomes {
		if o.OK {
			n++
		}
	}
	return n
}

func (r Report) Failed() int { return len(r.Outcomes) - r.Sent() }

// Err joins every delivery failure of the pass, or returns nil.
func (r Report) Err() error {
	var errs []error
	for _, o := range r.Outcomes {
		if !o.OK && o.Err != nil {
			errs = append(errs, o.Err)
		}
	}
	return errors.Join(errs...)
}
