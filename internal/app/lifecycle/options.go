package lifecycle

import (
	"time"

	"github.com/okian/rollcall/pkg/logger"
)

// Option configures a Scheduler.
type Option func(*Scheduler)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(s *Scheduler) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(s *Scheduler) {
		if now != nil {
			s.now = now
		}
	}
}

// WithInterval sets the tick interval.
func WithInterval(d time.Duration) Option {
	return func(s *Scheduler) {
		s.interval = d
	}
}

// WithGracePeriod sets how long after start an event without a duration ends.
func WithGracePeriod(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.grace = d
		}
	}
}

// WithMessageRetention sets the default delay between archive and message deletion.
func WithMessageRetention(d time.Duration) Option {
	return func(s *Scheduler) {
		if d >= 0 {
			s.messageRetention = d
		}
	}
}

// WithLogRetention sets the default audit log retention.
func WithLogRetention(d time.Duration) Option {
	return func(s *Scheduler) {
		if d > 0 {
			s.logRetention = d
		}
	}
}
