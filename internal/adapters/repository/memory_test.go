package repository

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
)

var t0 = time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC)

func newTestStore(t *testing.T) *MemoryStore {
	t.Helper()
	s := NewMemoryStore(context.Background())
	t.Cleanup(func() { _ = s.Close() })
	return s
}

func seedEvent(t *testing.T, s *MemoryStore, id string, start time.Time, status model.EventStatus) model.Event {
	t.Helper()
	e := model.Event{ID: id, GuildID: "g1", Title: id, StartTime: start, Status: status, RoleLimits: model.RoleLimits{"Tank": 1}}
	if err := s.CreateEvent(context.Background(), e); err != nil {
		t.Fatalf("create event: %v", err)
	}
	return e
}

func TestMemoryStore_EventCRUD(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seedEvent(t, s, "ev1", t0, model.EventScheduled)
	if err := s.CreateEvent(ctx, model.Event{ID: "ev1"}); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}

	got, err := s.GetEvent(ctx, "ev1")
	if err != nil {
		t.Fatalf("get: %v", err)
	}
	got.RoleLimits["Tank"] = 9
	again, _ := s.GetEvent(ctx, "ev1")
	if again.RoleLimits["Tank"] != 1 {
		t.Errorf("store leaked a mutable role limit map")
	}

	got.Status = model.EventActive
	if err := s.UpdateEvent(ctx, got); err != nil {
		t.Fatalf("update: %v", err)
	}
	if err := s.UpdateEvent(ctx, model.Event{ID: "missing"}); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
	if _, err := s.GetEvent(ctx, "missing"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ListEventsFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	seedEvent(t, s, "late", t0.Add(2*time.Hour), model.EventScheduled)
	seedEvent(t, s, "early", t0, model.EventScheduled)
	seedEvent(t, s, "active", t0, model.EventActive)
	deleted := seedEvent(t, s, "gone", t0, model.EventCompleted)
	now := t0
	deleted.DeletedAt = &now
	_ = s.UpdateEvent(ctx, deleted)

	due, err := s.ListEvents(ctx, EventFilter{Statuses: []model.EventStatus{model.EventScheduled}, StartsBefore: t0.Add(time.Hour)})
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(due) != 1 || due[0].ID != "early" {
		t.Fatalf("expected only early, got %+v", due)
	}

	all, _ := s.ListEvents(ctx, EventFilter{})
	if len(all) != 3 {
		t.Errorf("expected deleted event to be hidden, got %d events", len(all))
	}
	all, _ = s.ListEvents(ctx, EventFilter{IncludeDeleted: true, Limit: 2})
	if len(all) != 2 {
		t.Errorf("expected limit 2, got %d", len(all))
	}
	if all[0].ID != "active" {
		t.Errorf("expected start-time then id ordering, got %s first", all[0].ID)
	}
}

func TestMemoryStore_ParticipantUniqueness(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedEvent(t, s, "ev1", t0, model.EventScheduled)

	p := model.Participant{EventID: "ev1", UserID: "u1", Status: model.StatusConfirmed, JoinedAt: t0}
	if err := s.CreateParticipant(ctx, p); err != nil {
		t.Fatalf("create: %v", err)
	}
	if err := s.CreateParticipant(ctx, p); !errors.Is(err, ErrDuplicate) {
		t.Fatalf("expected ErrDuplicate, got %v", err)
	}
	if err := s.CreateParticipant(ctx, model.Participant{EventID: "nope", UserID: "u1"}); !errors.Is(err, ErrNotFound) {
		t.Fatalf("expected ErrNotFound for unknown event, got %v", err)
	}
}

func TestMemoryStore_ConcurrentCreateSameKey(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedEvent(t, s, "ev1", t0, model.EventScheduled)

	const n = 50
	var wg sync.WaitGroup
	var mu sync.Mutex
	ok := 0
	for i := 0; i < n; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			err := s.CreateParticipant(ctx, model.Participant{EventID: "ev1", UserID: "same", JoinedAt: t0})
			if err == nil {
				mu.Lock()
				ok++
				mu.Unlock()
			}
		}()
	}
	wg.Wait()
	if ok != 1 {
		t.Fatalf("expected exactly one successful insert, got %d", ok)
	}
}

func TestMemoryStore_ListParticipantsOrderAndFilter(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedEvent(t, s, "ev1", t0, model.EventScheduled)

	tank := "Tank"
	rows := []model.Participant{
		{EventID: "ev1", UserID: "c", Role: "Tank", Status: model.StatusWaitlist, Position: model.IntPtr(2), JoinedAt: t0.Add(3 * time.Minute)},
		{EventID: "ev1", UserID: "a", Role: "Tank", Status: model.StatusConfirmed, JoinedAt: t0.Add(1 * time.Minute)},
		{EventID: "ev1", UserID: "b", Role: "Healer", Status: model.StatusWaitlist, Position: model.IntPtr(1), JoinedAt: t0.Add(2 * time.Minute)},
	}
	for _, p := range rows {
		if err := s.CreateParticipant(ctx, p); err != nil {
			t.Fatalf("create: %v", err)
		}
	}

	all, _ := s.ListParticipants(ctx, ParticipantFilter{EventID: "ev1"})
	if len(all) != 3 || all[0].UserID != "a" || all[2].UserID != "c" {
		t.Fatalf("unexpected order: %+v", all)
	}

	tanks, _ := s.ListParticipants(ctx, ParticipantFilter{EventID: "ev1", Statuses: []model.ParticipantStatus{model.StatusWaitlist}, Role: &tank})
	if len(tanks) != 1 || tanks[0].UserID != "c" {
		t.Fatalf("expected waitlisted tank c, got %+v", tanks)
	}

	*tanks[0].Position = 99
	again, _ := s.GetParticipant(ctx, "ev1", "c")
	if *again.Position != 2 {
		t.Errorf("store leaked a mutable position pointer")
	}

	n, _ := s.DeleteParticipants(ctx, "ev1")
	if n != 3 {
		t.Errorf("expected 3 deleted, got %d", n)
	}
}

func TestMemoryStore_DeleteEventCascades(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)
	seedEvent(t, s, "ev1", t0, model.EventScheduled)
	_ = s.CreateParticipant(ctx, model.Participant{EventID: "ev1", UserID: "u1", JoinedAt: t0})
	_ = s.CreateReminder(ctx, model.Reminder{ID: "r1", EventID: "ev1", UserID: "u1", RemindAt: t0})

	if err := s.DeleteEvent(ctx, "ev1"); err != nil {
		t.Fatalf("delete: %v", err)
	}
	if _, err := s.GetParticipant(ctx, "ev1", "u1"); !errors.Is(err, ErrNotFound) {
		t.Errorf("participant survived cascade")
	}
	if rs, _ := s.ListReminders(ctx, "ev1"); len(rs) != 0 {
		t.Errorf("reminders survived cascade")
	}
}

func TestMemoryStore_AuditRetention(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_ = s.AppendAudit(ctx, model.AuditEntry{ID: "1", GuildID: "g1", CreatedAt: t0.Add(-48 * time.Hour)})
	_ = s.AppendAudit(ctx, model.AuditEntry{ID: "2", GuildID: "g1", CreatedAt: t0})
	_ = s.AppendAudit(ctx, model.AuditEntry{ID: "3", GuildID: "g2", CreatedAt: t0.Add(-48 * time.Hour)})

	guilds, _ := s.AuditGuilds(ctx)
	if len(guilds) != 2 {
		t.Fatalf("expected 2 guilds, got %v", guilds)
	}

	n, err := s.PurgeAudit(ctx, "g1", t0.Add(-24*time.Hour))
	if err != nil || n != 1 {
		t.Fatalf("expected 1 purged, got %d (%v)", n, err)
	}
	left, _ := s.ListAudit(ctx, "g1", 0)
	if len(left) != 1 || left[0].ID != "2" {
		t.Fatalf("unexpected remaining audit: %+v", left)
	}
	other, _ := s.ListAudit(ctx, "g2", 0)
	if len(other) != 1 {
		t.Errorf("purge crossed guild boundary")
	}
}

func TestMemoryStore_Stats(t *testing.T) {
	ctx := context.Background()
	s := newTestStore(t)

	_ = s.AccrueStats(ctx, "g1", []string{"a", "b"}, t0)
	_ = s.AccrueStats(ctx, "g1", []string{"a"}, t0.Add(time.Hour))

	st, err := s.GetStats(ctx, "g1", "a")
	if err != nil {
		t.Fatalf("stats: %v", err)
	}
	if st.EventsCompleted != 2 || !st.LastCompletedAt.Equal(t0.Add(time.Hour)) {
		t.Errorf("unexpected stats: %+v", st)
	}
	if _, err := s.GetStats(ctx, "g1", "z"); !errors.Is(err, ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestMemoryStore_ContextCancelled(t *testing.T) {
	s := newTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if _, err := s.GetEvent(ctx, "x"); !errors.Is(err, context.Canceled) {
		t.Errorf("expected context.Canceled, got %v", err)
	}
}
