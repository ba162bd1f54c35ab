// Package admission owns the participant state machine: join, leave,
// approve/reject, promote and role changes, plus the hooks the lifecycle
// scheduler invokes. Every mutating operation runs under the event's lock.
package admission

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/capacity"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/waitlist"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// Store is the slice of the persistence gateway the engine uses.
type Store interface {
	repository.EventStore
	repository.ParticipantStore
	repository.ReminderStore
	repository.StatsStore
}

// Notifier receives fire-and-forget side effects. Implementations must not
// block the caller.
type Notifier interface {
	RenderEvent(ctx context.Context, eventID string)
	LogAction(ctx context.Context, entry model.AuditEntry)
}

// Actor identifies who performed an action, for the audit log.
type Actor struct {
	ID   string
	Name string
}

// JoinRequest carries the inputs of Join.
type JoinRequest struct {
	EventID  string
	UserID   string
	Username string
	Role     string
	Spec     string
	// RoleIDs are the caller's platform roles, checked against the event's allowed set.
	RoleIDs []string
}

// Engine implements the admission operations.
type Engine struct {
	store    Store
	notifier Notifier
	locks    *Locks
	now      func() time.Time
	newID    func() string
	logger   logger.Logger
}

// NewEngine creates an engine over store. A nil notifier discards side effects.
func NewEngine(store Store, notifier Notifier, opts ...Option) *Engine {
	e := &Engine{
		store:    store,
		notifier: notifier,
		locks:    NewLocks(),
		now:      time.Now,
		newID:    uuid.NewString,
	}
	for _, opt := range opts {
		opt(e)
	}
	if e.logger == nil {
		e.logger = logger.Get().Named("admission")
	}
	if e.notifier == nil {
		e.notifier = nopNotifier{}
	}
	return e
}

// Locks exposes the per-event lock table so the scheduler can serialize
// lifecycle transitions with admission operations.
func (e *Engine) Locks() *Locks { return e.locks }

type nopNotifier struct{}

func (nopNotifier) RenderEvent(context.Context, string)         {}
func (nopNotifier) LogAction(context.Context, model.AuditEntry) {}

func (e *Engine) observe(op string, start time.Time, res Result, err error) {
	metrics.RecordAdmissionLatency(op, float64(time.Since(start).Milliseconds()))
	if err != nil {
		metrics.RecordAdmissionError(op, KindOf(err))
		return
	}
	label := string(res.Outcome)
	if res.Outcome == OutcomeDenied {
		label = string(res.Reason)
	}
	metrics.RecordAdmissionDecision(op, label)
}

func (e *Engine) lock(ctx context.Context, op, eventID string) (func(), error) {
	if eventID == "" {
		return nil, WrapKind(op, ErrInvalidInput, errors.New("event id is required"))
	}
	unlock, err := e.locks.Lock(ctx, eventID)
	if err != nil {
		return nil, fmt.Errorf("%s: acquire lock %s: %w", op, eventID, err)
	}
	return unlock, nil
}

func (e *Engine) loadEvent(ctx context.Context, op, id string) (model.Event, error) {
	ev, err := e.store.GetEvent(ctx, id)
	if errors.Is(err, repository.ErrNotFound) {
		return model.Event{}, WrapKind(op, ErrNotFound, fmt.Errorf("event %s", id))
	}
	if err != nil {
		return model.Event{}, fmt.Errorf("%s: load event %s: %w", op, id, err)
	}
	return ev, nil
}

// openEvent loads an event that still accepts admission operations.
func (e *Engine) openEvent(ctx context.Context, op, id string) (model.Event, error) {
	ev, err := e.loadEvent(ctx, op, id)
	if err != nil {
		return model.Event{}, err
	}
	if !ev.Status.Open() {
		return model.Event{}, WrapKind(op, ErrInvalidState, fmt.Errorf("event %s is %s", id, ev.Status))
	}
	return ev, nil
}

func (e *Engine) participants(ctx context.Context, op, eventID string) ([]model.Participant, error) {
	ps, err := e.store.ListParticipants(ctx, repository.ParticipantFilter{EventID: eventID})
	if err != nil {
		return nil, fmt.Errorf("%s: load participants %s: %w", op, eventID, err)
	}
	return ps, nil
}

func find(ps []model.Participant, userID string) *model.Participant {
	for i := range ps {
		if ps[i].UserID == userID {
			return &ps[i]
		}
	}
	return nil
}

func (e *Engine) audit(ctx context.Context, ev *model.Event, action string, actor Actor, details string) {
	e.notifier.LogAction(ctx, model.AuditEntry{
		ID:        e.newID(),
		GuildID:   ev.GuildID,
		EventID:   ev.ID,
		Action:    action,
		ActorID:   actor.ID,
		ActorName: actor.Name,
		Details:   details,
		CreatedAt: e.now(),
	})
}

func outcomeFor(s model.ParticipantStatus) Outcome {
	switch s {
	case model.StatusConfirmed:
		return OutcomeConfirmed
	case model.StatusWaitlist:
		return OutcomeWaitlisted
	default:
		return OutcomePending
	}
}

func reasonFor(v capacity.Verdict) Reason {
	if v == capacity.RoleFull {
		return ReasonRoleFull
	}
	return ReasonEventFull
}

// Join admits a user as confirmed, waitlisted or pending approval.
func (e *Engine) Join(ctx context.Context, req JoinRequest) (res Result, err error) {
	const op = "join"
	start := time.Now()
	defer func() { e.observe(op, start, res, err) }()

	if req.UserID == "" {
		return Result{}, WrapKind(op, ErrInvalidInput, errors.New("user id is required"))
	}
	unlock, err := e.lock(ctx, op, req.EventID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	ev, err := e.openEvent(ctx, op, req.EventID)
	if err != nil {
		return Result{}, err
	}
	now := e.now()
	if ev.SignupClosed(now) {
		return Result{}, NewKind(op, ErrDeadlinePassed)
	}
	ps, err := e.participants(ctx, op, ev.ID)
	if err != nil {
		return Result{}, err
	}
	if find(ps, req.UserID) != nil {
		return denied(ReasonAlreadyJoined), nil
	}

	p := model.Participant{
		EventID:  ev.ID,
		UserID:   req.UserID,
		Username: req.Username,
		Role:     req.Role,
		Spec:     req.Spec,
		JoinedAt: joinStamp(now, ps),
	}
	switch {
	case !ev.Eligible(req.RoleIDs):
		if !ev.BenchOverflow {
			res = denied(ReasonIneligible)
			res.UserID = req.UserID
			return res, nil
		}
		// Bench entries go to the tail without any capacity check.
		p.Status = model.StatusWaitlist
		p.Overflow = true
	case ev.RequireApproval:
		p.Status = model.StatusPending
	case capacity.Admit(ps, ev.MaxParticipants, ev.RoleLimits, req.Role) == capacity.Room:
		p.Status = model.StatusConfirmed
	default:
		p.Status = model.StatusWaitlist
	}
	if p.Status == model.StatusWaitlist {
		pos := waitlist.NextPosition(ps)
		p.Position = &pos
	}

	if err := e.store.CreateParticipant(ctx, p); err != nil {
		if errors.Is(err, repository.ErrDuplicate) {
			return denied(ReasonAlreadyJoined), nil
		}
		return Result{}, fmt.Errorf("%s: create participant: %w", op, err)
	}

	e.notifier.RenderEvent(ctx, ev.ID)
	e.audit(ctx, &ev, model.ActionJoin, Actor{ID: p.UserID, Name: p.Username}, fmt.Sprintf("status=%s role=%s", p.Status, p.Role))
	e.logger.Debug(ctx, "participant joined",
		logger.EventID(ev.ID), logger.UserID(p.UserID),
		logger.String("status", string(p.Status)), logger.Bool("overflow", p.Overflow))

	return Result{Outcome: outcomeFor(p.Status), Position: p.PositionValue(), UserID: p.UserID}, nil
}

// joinStamp returns a join time strictly after every existing join of the
// event, at the microsecond precision the postgres store keeps, so join
// order survives a coarse clock and a store round trip.
func joinStamp(now time.Time, ps []model.Participant) time.Time {
	t := now.Truncate(time.Microsecond)
	for i := range ps {
		if !t.After(ps[i].JoinedAt) {
			t = ps[i].JoinedAt.Truncate(time.Microsecond).Add(time.Microsecond)
		}
	}
	return t
}

// Leave removes a participant. A confirmed leaver's seat is backfilled from
// the waitlist, scoped to the leaver's role.
func (e *Engine) Leave(ctx context.Context, eventID, userID string) (res Result, err error) {
	const op = "leave"
	start := time.Now()
	defer func() { e.observe(op, start, res, err) }()

	unlock, err := e.lock(ctx, op, eventID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	ev, err := e.openEvent(ctx, op, eventID)
	if err != nil {
		return Result{}, err
	}
	ps, err := e.participants(ctx, op, ev.ID)
	if err != nil {
		return Result{}, err
	}
	leaver := find(ps, userID)
	if leaver == nil {
		return denied(ReasonNotParticipant), nil
	}
	gone := *leaver
	if err := e.store.DeleteParticipant(ctx, ev.ID, userID); err != nil {
		if errors.Is(err, repository.ErrNotFound) {
			return denied(ReasonNotParticipant), nil
		}
		return Result{}, fmt.Errorf("%s: delete participant: %w", op, err)
	}
	ps = remove(ps, userID)

	res = Result{Outcome: OutcomeLeft, UserID: userID}
	if gone.Status == model.StatusConfirmed {
		promoted, err := e.backfill(ctx, &ev, ps, gone.Role, 1)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", op, err)
		}
		res.Promoted = promoted
	}
	if gone.Status == model.StatusWaitlist || len(res.Promoted) > 0 {
		if _, err := e.reindex(ctx, ev.ID); err != nil {
			return Result{}, fmt.Errorf("%s: %w", op, err)
		}
	}

	e.notifier.RenderEvent(ctx, ev.ID)
	e.audit(ctx, &ev, model.ActionLeave, Actor{ID: gone.UserID, Name: gone.Username}, "status="+string(gone.Status))
	for i := range res.Promoted {
		p := &res.Promoted[i]
		e.audit(ctx, &ev, model.ActionPromote, Actor{ID: gone.UserID, Name: gone.Username}, "auto promoted "+p.UserID)
	}
	return res, nil
}

func remove(ps []model.Participant, userID string) []model.Participant {
	out := ps[:0:0]
	for i := range ps {
		if ps[i].UserID != userID {
			out = append(out, ps[i])
		}
	}
	return out
}

// backfill confirms waitlisted entries, in FIFO order, that fit the current
// capacity. A non-empty role restricts candidates to that role. Bench entries
// are never promoted automatically. At most limit entries are promoted when
// limit > 0. ps is updated in place.
func (e *Engine) backfill(ctx context.Context, ev *model.Event, ps []model.Participant, role string, limit int) ([]model.Participant, error) {
	promoted := make([]model.Participant, 0)
	for _, cand := range waitlist.Order(ps) {
		if limit > 0 && len(promoted) >= limit {
			break
		}
		if cand.Overflow || (role != "" && cand.Role != role) {
			continue
		}
		if capacity.Admit(ps, ev.MaxParticipants, ev.RoleLimits, cand.Role) != capacity.Room {
			continue
		}
		confirmed, err := e.confirm(ctx, cand)
		if err != nil {
			return promoted, err
		}
		*find(ps, cand.UserID) = confirmed
		promoted = append(promoted, confirmed)
	}
	return promoted, nil
}

func (e *Engine) confirm(ctx context.Context, p model.Participant) (model.Participant, error) {
	p.Status = model.StatusConfirmed
	p.Position = nil
	p.Overflow = false
	if err := e.store.UpdateParticipant(ctx, p); err != nil {
		return model.Participant{}, fmt.Errorf("confirm %s: %w", p.UserID, err)
	}
	return p, nil
}

// Approve confirms pending participants, re-checking capacity now. Targets
// that no longer fit move to the waitlist instead.
func (e *Engine) Approve(ctx context.Context, eventID string, userIDs []string, actor Actor) (BatchResult, error) {
	return e.decide(ctx, "approve", eventID, userIDs, actor, true)
}

// Reject deletes pending participants.
func (e *Engine) Reject(ctx context.Context, eventID string, userIDs []string, actor Actor) (BatchResult, error) {
	return e.decide(ctx, "reject", eventID, userIDs, actor, false)
}

func (e *Engine) decide(ctx context.Context, op, eventID string, userIDs []string, actor Actor, approve bool) (br BatchResult, err error) {
	start := time.Now()
	defer func() { e.observe(op, start, Result{Outcome: "batch"}, err) }()

	unlock, err := e.lock(ctx, op, eventID)
	if err != nil {
		return BatchResult{}, err
	}
	defer unlock()

	ev, err := e.openEvent(ctx, op, eventID)
	if err != nil {
		return BatchResult{}, err
	}
	if !ev.RequireApproval {
		return BatchResult{}, WrapKind(op, ErrInvalidState, fmt.Errorf("event %s does not require approval", ev.ID))
	}
	ps, err := e.participants(ctx, op, ev.ID)
	if err != nil {
		return BatchResult{}, err
	}

	seen := make(map[string]bool, len(userIDs))
	touchedWaitlist := false
	for _, uid := range userIDs {
		if seen[uid] {
			continue
		}
		seen[uid] = true
		p := find(ps, uid)
		if p == nil || p.Status != model.StatusPending {
			br.Skipped++
			continue
		}

		if !approve {
			if err := e.store.DeleteParticipant(ctx, ev.ID, uid); err != nil {
				br.Failed++
				e.logger.Error(ctx, "reject failed", logger.EventID(ev.ID), logger.UserID(uid), logger.Error(err))
				continue
			}
			ps = remove(ps, uid)
			br.Rejected++
			e.audit(ctx, &ev, model.ActionReject, actor, uid)
			continue
		}

		next := *p
		if capacity.Admit(ps, ev.MaxParticipants, ev.RoleLimits, p.Role) == capacity.Room {
			next.Status = model.StatusConfirmed
		} else {
			pos := waitlist.NextPosition(ps)
			next.Status = model.StatusWaitlist
			next.Position = &pos
		}
		if err := e.store.UpdateParticipant(ctx, next); err != nil {
			br.Failed++
			e.logger.Error(ctx, "approve failed", logger.EventID(ev.ID), logger.UserID(uid), logger.Error(err))
			continue
		}
		*p = next
		if next.Status == model.StatusConfirmed {
			br.Approved++
		} else {
			br.Waitlisted++
			touchedWaitlist = true
		}
		e.audit(ctx, &ev, model.ActionApprove, actor, fmt.Sprintf("%s status=%s", uid, next.Status))
	}

	if touchedWaitlist {
		// Pending entries joined earlier than some waitlisted ones; join time decides.
		if _, err := e.reindex(ctx, ev.ID); err != nil {
			return br, fmt.Errorf("%s: %w", op, err)
		}
	}
	if br.Approved+br.Waitlisted+br.Rejected > 0 {
		e.notifier.RenderEvent(ctx, ev.ID)
	}
	return br, nil
}

// Promote confirms a specific waitlisted or pending participant if capacity allows.
func (e *Engine) Promote(ctx context.Context, eventID, userID string, actor Actor) (res Result, err error) {
	const op = "promote"
	start := time.Now()
	defer func() { e.observe(op, start, res, err) }()

	unlock, err := e.lock(ctx, op, eventID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	ev, err := e.openEvent(ctx, op, eventID)
	if err != nil {
		return Result{}, err
	}
	ps, err := e.participants(ctx, op, ev.ID)
	if err != nil {
		return Result{}, err
	}
	p := find(ps, userID)
	if p == nil {
		return denied(ReasonNotParticipant), nil
	}
	if p.Status != model.StatusWaitlist && p.Status != model.StatusPending {
		return denied(ReasonNotPromotable), nil
	}
	if v := capacity.Admit(ps, ev.MaxParticipants, ev.RoleLimits, p.Role); v != capacity.Room {
		return denied(reasonFor(v)), nil
	}
	return e.promote(ctx, op, &ev, *p, actor)
}

// PromoteNext confirms the first candidate that fits: pending entries by
// join time, then waitlisted entries by position. Bench entries are skipped.
func (e *Engine) PromoteNext(ctx context.Context, eventID string, actor Actor) (res Result, err error) {
	const op = "promote_next"
	start := time.Now()
	defer func() { e.observe(op, start, res, err) }()

	unlock, err := e.lock(ctx, op, eventID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	ev, err := e.openEvent(ctx, op, eventID)
	if err != nil {
		return Result{}, err
	}
	ps, err := e.participants(ctx, op, ev.ID)
	if err != nil {
		return Result{}, err
	}

	candidates := append(waitlist.Filter(ps, model.StatusPending), waitlist.Order(ps)...)
	res = denied(ReasonNoCandidate)
	for _, cand := range candidates {
		if cand.Overflow {
			continue
		}
		v := capacity.Admit(ps, ev.MaxParticipants, ev.RoleLimits, cand.Role)
		if v == capacity.Room {
			return e.promote(ctx, op, &ev, cand, actor)
		}
		if res.Reason == ReasonNoCandidate {
			res = denied(reasonFor(v))
		}
	}
	return res, nil
}

func (e *Engine) promote(ctx context.Context, op string, ev *model.Event, p model.Participant, actor Actor) (Result, error) {
	wasWaitlisted := p.Status == model.StatusWaitlist
	confirmed, err := e.confirm(ctx, p)
	if err != nil {
		return Result{}, fmt.Errorf("%s: %w", op, err)
	}
	if wasWaitlisted {
		if _, err := e.reindex(ctx, ev.ID); err != nil {
			return Result{}, fmt.Errorf("%s: %w", op, err)
		}
	}
	e.notifier.RenderEvent(ctx, ev.ID)
	e.audit(ctx, ev, model.ActionPromote, actor, confirmed.UserID)
	return Result{Outcome: OutcomePromoted, UserID: confirmed.UserID, Promoted: []model.Participant{confirmed}}, nil
}

// UpdateRole changes a participant's role and spec. Confirmed participants
// are refused when the new role is at its limit; the seat freed in the old
// role is backfilled like a leave.
func (e *Engine) UpdateRole(ctx context.Context, eventID, userID, role, spec string) (res Result, err error) {
	const op = "update_role"
	start := time.Now()
	defer func() { e.observe(op, start, res, err) }()

	unlock, err := e.lock(ctx, op, eventID)
	if err != nil {
		return Result{}, err
	}
	defer unlock()

	ev, err := e.openEvent(ctx, op, eventID)
	if err != nil {
		return Result{}, err
	}
	ps, err := e.participants(ctx, op, ev.ID)
	if err != nil {
		return Result{}, err
	}
	p := find(ps, userID)
	if p == nil {
		return denied(ReasonNotParticipant), nil
	}
	oldRole := p.Role
	if p.Status == model.StatusConfirmed && role != oldRole && role != "" &&
		!capacity.HasRoomForRoleExcluding(ps, ev.RoleLimits, role, userID) {
		return denied(ReasonRoleFull), nil
	}

	next := *p
	next.Role = role
	next.Spec = spec
	if err := e.store.UpdateParticipant(ctx, next); err != nil {
		return Result{}, fmt.Errorf("%s: update participant: %w", op, err)
	}
	*p = next

	res = Result{Outcome: OutcomeRoleUpdated, UserID: userID}
	if next.Status == model.StatusConfirmed && oldRole != role && oldRole != "" {
		promoted, err := e.backfill(ctx, &ev, ps, oldRole, 1)
		if err != nil {
			return Result{}, fmt.Errorf("%s: %w", op, err)
		}
		if len(promoted) > 0 {
			res.Promoted = promoted
			if _, err := e.reindex(ctx, ev.ID); err != nil {
				return Result{}, fmt.Errorf("%s: %w", op, err)
			}
		}
	}

	e.notifier.RenderEvent(ctx, ev.ID)
	e.audit(ctx, &ev, model.ActionRoleChange, Actor{ID: userID, Name: next.Username}, fmt.Sprintf("%s -> %s", oldRole, role))
	return res, nil
}
