package index

import (
	"fmt"
	"time"

	"go.uber.org/zap"
)

// Never is the refresh_interval sentinel meaning "never wake after the
// first cycle," spec.md §4.K / §6.
const Never = "never"

// ParseRefreshInterval turns the refresh_interval CLI flag into either a
// positive duration or ok=false for the Never sentinel, checked before
// time.ParseDuration is ever reached.
func ParseRefreshInterval(s string) (d time.Duration, ok bool, err error) {
	if s == Never {
		return 0, false, nil
	}
	d, err = time.ParseDuration(s)
	if err == nil && d <= 0 {
		return 0, false, fmt.Errorf("index: refresh interval must be positive, got %q", s)
	}
	return d, true, err
}

// Scheduler owns the dedicated worker goroutine that runs the driver in a
// loop, spec.md §4.K. It runs one cycle at startup, then wakes on a timer
// (unless the interval is Never, in which case there is no timer and later
// cycles run only on Wake()), on an explicit Wake() call (the SIGHUP path),
// and exits when Stop() is called and the in-flight cycle (if any) completes.
type Scheduler struct {
	driver   *Driver
	log      *zap.Logger
	interval time.Duration
	hasTimer bool

	wake chan struct{}
	done chan struct{}
}

// NewScheduler creates a scheduler around driver. hasInterval is false for
// the Never sentinel.
func NewScheduler(driver *Driver, log *zap.Logger, interval time.Duration, hasInterval bool) *Scheduler {
	return &Scheduler{
		driver:   driver,
		log:      log,
		interval: interval,
		hasTimer: hasInterval,
		wake:     make(chan struct{}, 1),
		done:     make(chan struct{}),
	}
}

// Wake triggers an immediate cycle if one is not already pending, the
// SIGHUP handler's entry point. Non-blocking: a wake that arrives while
// one is already queued is coalesced.
func (s *Scheduler) Wake() {
	select {
	case s.wake <- struct{}{}:
	default:
	}
}

// Stop closes the wake channel; the worker loop exits after finishing its
// current cycle, per spec.md §4.K's shutdown contract. Safe to call once.
func (s *Scheduler) Stop() {
	close(s.wake)
}

// Done returns a channel closed once the worker loop has exited.
func (s *Scheduler) Done() <-chan struct{} { return s.done }

// Run is the scheduler's worker loop; call it in its own goroutine (the
// "dedicated worker thread" of spec.md §4.K). It runs one cycle
// immediately, then blocks between cycles on either the timer or Wake(),
// until Stop() closes the wake channel.
func (s *Scheduler) Run() {
	defer close(s.done)

	s.runCycleLogged()

	var timerC <-chan time.Time
	var timer *time.Timer
	if s.hasTimer {
		timer = time.NewTimer(s.interval)
		timerC = timer.C
		defer timer.Stop()
	}

	for {
		select {
		case _, open := <-s.wake:
			if !open {
				return
			}
			s.runCycleLogged()
			if timer != nil {
				if !timer.Stop() {
					<-timer.C
				}
				timer.Reset(s.interval)
			}
		case <-timerC:
			s.runCycleLogged()
			timer.Reset(s.interval)
		}
	}
}

func (s *Scheduler) runCycleLogged() {
	if err := s.driver.RunCycle(); err != nil {
		s.log.Error("indexer cycle failed", zap.Error(err))
	}
}
