package admission

import (
	"time"

	"github.com/okian/rollcall/pkg/logger"
)

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets a custom logger.
func WithLogger(l logger.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithClock overrides time.Now.
func WithClock(now func() time.Time) Option {
	return func(e *Engine) {
		if now != nil {
			e.now = now
		}
	}
}

// WithLocks shares a lock table, typically with the lifecycle scheduler.
func WithLocks(l *Locks) Option {
	return func(e *Engine) {
		if l != nil {
			e.locks = l
		}
	}
}

// WithIDGenerator overrides uuid generation for events and audit entries.
func WithIDGenerator(gen func() string) Option {
	return func(e *Engine) {
		if gen != nil {
			e.newID = gen
		}
	}
}
