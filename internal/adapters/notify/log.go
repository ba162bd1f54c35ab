package notify

import (
	"context"

	"github.com/okian/rollcall/pkg/logger"
)

// LogPublisher writes envelopes to the structured log. It is the default
// transport when no broker is configured.
type LogPublisher struct {
	logger logger.Logger
}

// NewLogPublisher creates a publisher logging through l, or the global
// logger when l is nil.
func NewLogPublisher(l logger.Logger) *LogPublisher {
	if l == nil {
		l = logger.Get().Named("notify")
	}
	return &LogPublisher{logger: l}
}

// Publish logs env at info level.
func (p *LogPublisher) Publish(ctx context.Context, key string, env Envelope) error {
	p.logger.Info(ctx, "notification",
		logger.String("type", env.Type),
		logger.String("key", key),
		logger.String("guild_id", env.GuildID),
		logger.EventID(env.EventID),
		logger.String("data", string(env.Data)),
	)
	return nil
}

// Close is a no-op.
func (p *LogPublisher) Close() error { return nil }
