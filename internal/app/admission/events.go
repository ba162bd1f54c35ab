package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/view"
	"github.com/okian/rollcall/pkg/logger"
)

// EventPatch holds the editable fields of an event. Nil fields are left
// unchanged; a non-nil empty RoleLimits or AllowedRoleIDs clears the setting.
// The Clear flags reset an optional numeric setting to unset, which a nil
// pointer cannot express.
type EventPatch struct {
	Title               *string
	Description         *string
	StartTime           *time.Time
	Duration            *int
	MaxParticipants     *int
	RoleLimits          model.RoleLimits
	AllowedRoleIDs      []string
	BenchOverflow       *bool
	RequireApproval     *bool
	SignupDeadlineHours *int

	ClearDuration        bool
	ClearMaxParticipants bool
	ClearSignupDeadline  bool
}

func (p *EventPatch) validate() error {
	switch {
	case p.ClearDuration && p.Duration != nil:
		return errors.New("duration both set and cleared")
	case p.ClearMaxParticipants && p.MaxParticipants != nil:
		return errors.New("max participants both set and cleared")
	case p.ClearSignupDeadline && p.SignupDeadlineHours != nil:
		return errors.New("signup deadline both set and cleared")
	}
	return nil
}

func (p *EventPatch) apply(ev *model.Event) {
	if p.Title != nil {
		ev.Title = *p.Title
	}
	if p.Description != nil {
		ev.Description = *p.Description
	}
	if p.StartTime != nil {
		ev.StartTime = *p.StartTime
	}
	if p.Duration != nil {
		ev.Duration = p.Duration
	}
	if p.MaxParticipants != nil {
		ev.MaxParticipants = p.MaxParticipants
	}
	if p.RoleLimits != nil {
		ev.RoleLimits = p.RoleLimits.Clone()
	}
	if p.AllowedRoleIDs != nil {
		ev.AllowedRoleIDs = append([]string(nil), p.AllowedRoleIDs...)
	}
	if p.BenchOverflow != nil {
		ev.BenchOverflow = *p.BenchOverflow
	}
	if p.RequireApproval != nil {
		ev.RequireApproval = *p.RequireApproval
	}
	if p.SignupDeadlineHours != nil {
		ev.SignupDeadlineHours = p.SignupDeadlineHours
	}
	if p.ClearDuration {
		ev.Duration = nil
	}
	if p.ClearMaxParticipants {
		ev.MaxParticipants = nil
	}
	if p.ClearSignupDeadline {
		ev.SignupDeadlineHours = nil
	}
}

// CreateEvent validates and stores a new scheduled event.
func (e *Engine) CreateEvent(ctx context.Context, ev model.Event, actor Actor) (_ model.Event, err error) {
	const op = "create_event"
	start := time.Now()
	defer func() { e.observe(op, start, Result{Outcome: "created"}, err) }()

	now := e.now()
	if ev.ID == "" {
		ev.ID = e.newID()
	}
	ev.Status = model.EventScheduled
	ev.ArchivedAt = nil
	ev.DeletedAt = nil
	ev.CreatedAt = now
	ev.UpdatedAt = now
	if ev.CreatorID == "" {
		ev.CreatorID = actor.ID
	}
	if err := model.ValidateEvent(&ev); err != nil {
		return model.Event{}, WrapKind(op, ErrInvalidInput, err)
	}
	if err := e.store.CreateEvent(ctx, ev); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return model.Event{}, WrapKind(op, ErrInvalidInput, err)
		}
		return model.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	e.notifier.RenderEvent(ctx, ev.ID)
	e.audit(ctx, &ev, model.ActionCreate, actor, ev.Title)
	e.logger.Info(ctx, "event created", logger.EventID(ev.ID), logger.String("guild_id", ev.GuildID), logger.Time("start_time", ev.StartTime))
	return ev, nil
}

// EditEvent applies patch to an open event. Raised limits are filled from
// the waitlist; lowered limits never evict confirmed participants.
func (e *Engine) EditEvent(ctx context.Context, eventID string, patch EventPatch, actor Actor) (_ model.Event, err error) {
	const op = "edit_event"
	start := time.Now()
	defer func() { e.observe(op, start, Result{Outcome: "edited"}, err) }()

	if err := patch.validate(); err != nil {
		return model.Event{}, WrapKind(op, ErrInvalidInput, err)
	}
	unlock, err := e.lock(ctx, op, eventID)
	if err != nil {
		return model.Event{}, err
	}
	defer unlock()

	ev, err := e.openEvent(ctx, op, eventID)
	if err != nil {
		return model.Event{}, err
	}
	patch.apply(&ev)
	if err := model.ValidateEvent(&ev); err != nil {
		return model.Event{}, WrapKind(op, ErrInvalidInput, err)
	}
	ev.UpdatedAt = e.now()
	if err := e.store.UpdateEvent(ctx, ev); err != nil {
		return model.Event{}, fmt.Errorf("%s: %w", op, err)
	}

	ps, err := e.participants(ctx, op, ev.ID)
	if err != nil {
		return model.Event{}, err
	}
	promoted, err := e.backfill(ctx, &ev, ps, "", 0)
	if err != nil {
		return model.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	if len(promoted) > 0 {
		if _, err := e.reindex(ctx, ev.ID); err != nil {
			return model.Event{}, fmt.Errorf("%s: %w", op, err)
		}
		for i := range promoted {
			e.audit(ctx, &ev, model.ActionPromote, actor, "auto promoted "+promoted[i].UserID)
		}
	}

	e.notifier.RenderEvent(ctx, ev.ID)
	e.audit(ctx, &ev, model.ActionEdit, actor, fmt.Sprintf("promoted=%d", len(promoted)))
	return ev, nil
}

// CancelEvent moves a scheduled or active event to cancelled.
func (e *Engine) CancelEvent(ctx context.Context, eventID string, actor Actor) (_ model.Event, err error) {
	const op = "cancel_event"
	start := time.Now()
	defer func() { e.observe(op, start, Result{Outcome: "cancelled"}, err) }()

	unlock, err := e.lock(ctx, op, eventID)
	if err != nil {
		return model.Event{}, err
	}
	defer unlock()

	ev, err := e.loadEvent(ctx, op, eventID)
	if err != nil {
		return model.Event{}, err
	}
	if !ev.Status.CanTransition(model.EventCancelled) {
		return model.Event{}, WrapKind(op, ErrInvalidState, fmt.Errorf("event %s is %s", ev.ID, ev.Status))
	}
	ev.Status = model.EventCancelled
	ev.UpdatedAt = e.now()
	if err := e.store.UpdateEvent(ctx, ev); err != nil {
		return model.Event{}, fmt.Errorf("%s: %w", op, err)
	}
	e.OnEventCancelled(ctx, &ev, actor)
	return ev, nil
}

// GetEvent returns an event by id.
func (e *Engine) GetEvent(ctx context.Context, eventID string) (model.Event, error) {
	return e.loadEvent(ctx, "get_event", eventID)
}

// ListParticipants returns an event's participants in join order.
func (e *Engine) ListParticipants(ctx context.Context, eventID string) ([]model.Participant, error) {
	const op = "list_participants"
	if _, err := e.loadEvent(ctx, op, eventID); err != nil {
		return nil, err
	}
	return e.participants(ctx, op, eventID)
}

// View builds the public view-model of an event.
func (e *Engine) View(ctx context.Context, eventID string) (view.EventView, error) {
	const op = "view"
	ev, err := e.loadEvent(ctx, op, eventID)
	if err != nil {
		return view.EventView{}, err
	}
	ps, err := e.participants(ctx, op, eventID)
	if err != nil {
		return view.EventView{}, err
	}
	return view.Build(&ev, ps, e.now()), nil
}
