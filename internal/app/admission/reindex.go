package admission

import (
	"context"
	"fmt"
	"time"

	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/waitlist"
	"github.com/okian/rollcall/pkg/logger"
)

// Reindex recomputes waitlist positions 1..N by join time and writes only
// the rows whose position changed. It is idempotent.
func (e *Engine) Reindex(ctx context.Context, eventID string) (n int, err error) {
	const op = "reindex"
	start := time.Now()
	defer func() { e.observe(op, start, Result{Outcome: "reindexed"}, err) }()

	unlock, err := e.lock(ctx, op, eventID)
	if err != nil {
		return 0, err
	}
	defer unlock()

	if _, err := e.loadEvent(ctx, op, eventID); err != nil {
		return 0, err
	}
	n, err = e.reindex(ctx, eventID)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", op, err)
	}
	return n, nil
}

// reindex must be called with the event lock held.
func (e *Engine) reindex(ctx context.Context, eventID string) (int, error) {
	ps, err := e.store.ListParticipants(ctx, repository.ParticipantFilter{
		EventID:  eventID,
		Statuses: []model.ParticipantStatus{model.StatusWaitlist},
	})
	if err != nil {
		return 0, fmt.Errorf("load waitlist: %w", err)
	}
	changed := waitlist.Renumber(ps)
	for _, p := range changed {
		if err := e.store.UpdateParticipant(ctx, p); err != nil {
			return 0, fmt.Errorf("renumber %s: %w", p.UserID, err)
		}
	}
	if len(changed) > 0 {
		e.logger.Debug(ctx, "waitlist renumbered", logger.EventID(eventID), logger.Int("changed", len(changed)))
	}
	return len(changed), nil
}
