package admission

import (
	"context"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/waitlist"
	"github.com/okian/rollcall/pkg/logger"
)

// The lifecycle scheduler persists the status change, then calls the
// matching hook while still holding the event lock. Hooks log failures of
// secondary effects instead of returning them; the transition already stands.

// SystemActor attributes lifecycle actions in the audit log.
var SystemActor = Actor{ID: "system", Name: "scheduler"}

// OnEventStarted drops stale reminders and refreshes the message.
func (e *Engine) OnEventStarted(ctx context.Context, ev *model.Event) {
	n, err := e.store.DeleteReminders(ctx, ev.ID)
	if err != nil {
		e.logger.Warn(ctx, "failed to delete reminders", logger.EventID(ev.ID), logger.Error(err))
	}
	e.notifier.RenderEvent(ctx, ev.ID)
	e.audit(ctx, ev, model.ActionStart, SystemActor, "")
	e.logger.Info(ctx, "event started", logger.EventID(ev.ID), logger.Int("reminders_deleted", n))
}

// OnEventArchived credits confirmed participants and refreshes the message.
func (e *Engine) OnEventArchived(ctx context.Context, ev *model.Event) {
	ps, err := e.participants(ctx, "archive", ev.ID)
	if err != nil {
		e.logger.Warn(ctx, "failed to load participants for stats", logger.EventID(ev.ID), logger.Error(err))
	}
	confirmed := waitlist.Filter(ps, model.StatusConfirmed)
	ids := make([]string, 0, len(confirmed))
	for i := range confirmed {
		ids = append(ids, confirmed[i].UserID)
	}
	if len(ids) > 0 {
		if err := e.store.AccrueStats(ctx, ev.GuildID, ids, e.now()); err != nil {
			e.logger.Warn(ctx, "failed to accrue stats", logger.EventID(ev.ID), logger.Error(err))
		}
	}
	e.notifier.RenderEvent(ctx, ev.ID)
	e.audit(ctx, ev, model.ActionArchive, SystemActor, "")
	e.logger.Info(ctx, "event archived", logger.EventID(ev.ID), logger.Int("confirmed", len(ids)))
}

// OnEventCancelled refreshes the message and records who cancelled.
func (e *Engine) OnEventCancelled(ctx context.Context, ev *model.Event, actor Actor) {
	e.notifier.RenderEvent(ctx, ev.ID)
	e.audit(ctx, ev, model.ActionCancel, actor, "")
	e.logger.Info(ctx, "event cancelled", logger.EventID(ev.ID), logger.String("actor", actor.ID))
}
