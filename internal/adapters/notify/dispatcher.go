package notify

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

// Reader is the slice of the persistence gateway the dispatcher needs.
type Reader interface {
	GetEvent(ctx context.Context, id string) (model.Event, error)
	ListParticipants(ctx context.Context, f repository.ParticipantFilter) ([]model.Participant, error)
	AppendAudit(ctx context.Context, e model.AuditEntry) error
}

// Rendered is the payload of an event.render envelope.
type Rendered struct {
	View view.EventView `json:"view"`
	Text string         `json:"text"`
}

// Dispatcher turns queued notifications into published envelopes. It
// satisfies the worker pool's Handler contract.
type Dispatcher struct {
	store     Reader
	publisher Publisher
	now       func() time.Time
	logger    logger.Logger
}

// DispatcherOption configures a Dispatcher.
type DispatcherOption func(*Dispatcher)

// WithClock overrides the dispatcher's clock.
func WithClock(now func() time.Time) DispatcherOption {
	return func(d *Dispatcher) {
		if now != nil {
			d.now = now
		}
	}
}

// WithDispatcherLogger sets a custom logger.
func WithDispatcherLogger(l logger.Logger) DispatcherOption {
	return func(d *Dispatcher) {
		if l != nil {
			d.logger = l
		}
	}
}

// NewDispatcher creates a dispatcher reading from store and publishing to p.
func NewDispatcher(store Reader, p Publisher, opts ...DispatcherOption) *Dispatcher {
	d := &Dispatcher{
		store:     store,
		publisher: p,
		now:       time.Now,
	}
	for _, opt := range opts {
		opt(d)
	}
	if d.logger == nil {
		d.logger = logger.Get().Named("dispatcher")
	}
	return d
}

// Handle delivers a single notification.
func (d *Dispatcher) Handle(ctx context.Context, n model.Notification) error {
	switch n.Kind {
	case model.NotifyRender:
		return d.render(ctx, n.EventID)
	case model.NotifyAudit:
		if n.Audit == nil {
			return fmt.Errorf("%w: audit notification without entry", ErrEncode)
		}
		return d.audit(ctx, *n.Audit)
	default:
		return fmt.Errorf("%w: unknown notification kind %q", ErrEncode, n.Kind)
	}
}

// render snapshots the event and its participants at delivery time, so a
// burst of renders for one event always publishes the latest state.
func (d *Dispatcher) render(ctx context.Context, eventID string) error {
	ev, err := d.store.GetEvent(ctx, eventID)
	if errors.Is(err, repository.ErrNotFound) {
		d.logger.Debug(ctx, "render skipped, event deleted", logger.EventID(eventID))
		return nil
	}
	if err != nil {
		return fmt.Errorf("load event %s: %w", eventID, err)
	}
	ps, err := d.store.ListParticipants(ctx, repository.ParticipantFilter{EventID: eventID})
	if err != nil {
		return fmt.Errorf("load participants %s: %w", eventID, err)
	}

	now := d.now()
	v := view.Build(&ev, ps, now)
	env, err := NewEnvelope(TypeEventRender, ev.GuildID, ev.ID, now, Rendered{View: v, Text: view.Render(v)})
	if err != nil {
		return err
	}
	return d.publisher.Publish(ctx, ev.ID, env)
}

func (d *Dispatcher) audit(ctx context.Context, entry model.AuditEntry) error {
	if err := d.store.AppendAudit(ctx, entry); err != nil && !errors.Is(err, repository.ErrDuplicate) {
		return fmt.Errorf("append audit %s: %w", entry.ID, err)
	}
	env, err := NewEnvelope(TypeAuditLogged, entry.GuildID, entry.EventID, entry.CreatedAt, entry)
	if err != nil {
		return err
	}
	return d.publisher.Publish(ctx, entry.GuildID, env)
}
