// Package scheduler runs one recurring broadcast job whose period can be
// changed at any time. At most one timer is armed and at most one pass runs.
package scheduler

import (
	"context"
	"fmt"
	"runtime/debug"
	"sync"
	"time"

	"github.com/robfig/cron/v3"

	logx "promobot/pkg/logx"
)

type Scheduler struct {
	run     PassFunc
	log     logx.Logger
	clock   Clock
	metrics Metrics

	// ctx is the parent of every pass context; cancelled by Stop.
	ctx    context.Context
	cancel context.CancelFunc

	mu     sync.Mutex
	state  State
	period time.Duration
	// gen identifies the current arming. A timer callback carrying an older
	// generation has been superseded and must not run a pass.
	gen     uint64
	timer   Timer
	nextAt  time.Time
	running bool
	done    chan struct{} // closed when the in-flight pass returns

	passes      uint64
	failures    uint64
	panics      uint64
	reschedules uint64
	lastStart   time.Time
	lastDur     time.Duration
	lastErr     error
}

func New(run PassFunc, log logx.Logger, opts ...Option) *Scheduler {
	if log.IsZero() {
		log = logx.Nop()
	}
	ctx, cancel := context.WithCancel(context.Background())
	s := &Scheduler{
		run:    run,
		log:    log.With(logx.String("comp", "scheduler")),
		clock:  realClock{},
		ctx:    ctx,
		cancel: cancel,
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

func validPeriod(period time.Duration) error {
	if period < MinPeriod {
		return fmt.Errorf("%w: period %s is below %s", ErrInvalidArgument, period, MinPeriod)
	}
	return nil
}

// Start arms the job from Idle with an immediate first pass.
func (s *Scheduler) Start(period time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return ErrStopped
	}
	if err := validPeriod(period); err != nil {
		return err
	}
	if s.state != StateIdle {
		return ErrAlreadyArmed
	}
	s.state = StateArmed
	s.period = period
	s.gen++
	s.armLocked(0)
	if s.metrics != nil {
		s.metrics.SetInterval(period)
	}
	s.log.Info("job armed", logx.Duration("period", period))
	return nil
}

// Reschedule replaces the period. The previous timer is cancelled and the
// new one fires immediately, then every period. When a pass is in flight no
// timer is armed; the pass's completion arms the next fire one new period later.
// The running pass stands in for the immediate fire.
func (s *Scheduler) Reschedule(period time.Duration) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state == StateStopped {
		return ErrStopped
	}
	if err := validPeriod(period); err != nil {
		return err
	}
	s.stopTimerLocked()
	s.gen++
	s.state = StateArmed
	s.period = period
	s.reschedules++
	if s.running {
		s.nextAt = time.Time{}
		s.log.Info("job rescheduled during pass; next fire follows completion", logx.Duration("period", period), logx.Uint64("gen", s.gen))
	} else {
		s.armLocked(0)
		s.log.Info("job rescheduled", logx.Duration("period", period), logx.Uint64("gen", s.gen))
	}
	if s.metrics != nil {
		s.metrics.IncReschedule()
		s.metrics.SetInterval(period)
	}
	return nil
}

// Stop is terminal. It cancels the timer and the in-flight pass context,
// then waits for that pass to return or ctx to end.
func (s *Scheduler) Stop(ctx context.Context) error {
	s.mu.Lock()
	if s.state == StateStopped {
		s.mu.Unlock()
		return nil
	}
	s.state = StateStopped
	s.gen++
	s.stopTimerLocked()
	s.nextAt = time.Time{}
	done := s.done
	s.mu.Unlock()

	s.cancel()
	s.log.Info("scheduler stopping", logx.Bool("pass_in_flight", done != nil))
	if done == nil {
		return nil
	}
	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *Scheduler) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	snap := Snapshot{
		State:       s.state,
		Period:      s.period,
		TimerArmed:  s.timer != nil,
		NextFire:    s.nextAt,
		Running:     s.running,
		Generation:  s.gen,
		Passes:      s.passes,
		Failures:    s.failures,
		Panics:      s.panics,
		Reschedules: s.reschedules,
		LastStart:   s.lastStart,
		LastDur:     s.lastDur,
	}
	if s.lastErr != nil {
		snap.LastError = s.lastErr.Error()
	}
	return snap
}

// PendingTimers reports how many timers the scheduler currently owns (0 or 1).
func (s *Scheduler) PendingTimers() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.timer != nil {
		return 1
	}
	return 0
}

func (s *Scheduler) stopTimerLocked() {
	if s.timer != nil {
		s.timer.Stop()
		s.timer = nil
	}
}

func (s *Scheduler) armLocked(delay time.Duration) {
	s.stopTimerLocked()
	if delay < 0 {
		delay = 0
	}
	gen := s.gen
	s.nextAt = s.clock.Now().Add(delay)
	s.timer = s.clock.AfterFunc(delay, func() { s.tick(gen) })
}

func (s *Scheduler) tick(gen uint64) {
	s.mu.Lock()
	if s.state != StateArmed || gen != s.gen || s.running {
		s.mu.Unlock()
		s.log.Debug("stale timer dropped", logx.Uint64("gen", gen))
		return
	}
	s.timer = nil
	s.nextAt = time.Time{}
	s.running = true
	done := make(chan struct{})
	s.done = done
	ctx := s.ctx
	s.mu.Unlock()

	start := s.clock.Now()
	panicked, err := s.runPass(ctx)
	end := s.clock.Now()
	dur := end.Sub(start)

	s.mu.Lock()
	s.running = false
	s.done = nil
	close(done)
	s.passes++
	s.lastStart, s.lastDur, s.lastErr = start, dur, err
	if err != nil {
		s.failures++
	}
	if panicked {
		s.panics++
	}
	var next time.Time
	if s.state == StateArmed {
		// The period in effect now, counted from completion.
		next = cron.Every(s.period).Next(end)
		s.armLocked(next.Sub(end))
	}
	s.mu.Unlock()

	if s.metrics != nil {
		s.metrics.ObservePass(dur, err)
	}
	if err != nil {
		s.log.Warn("pass failed", logx.Duration("took", dur), logx.Err(err), logx.Time("next", next))
		return
	}
	s.log.Info("pass finished", logx.Duration("took", dur), logx.Time("next", next))
}

func (s *Scheduler) runPass(ctx context.Context) (panicked bool, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.log.Error("pass panicked", logx.Any("panic", r), logx.String("stack", string(debug.Stack())))
			err = fmt.Errorf("panic: %v", r)
			panicked = true
		}
	}()
	if s.run == nil {
		return false, nil
	}
	return false, s.run(ctx)
}
