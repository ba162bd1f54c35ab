package repository

import (
	"context"
	"slices"
	"sort"
	"sync"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/metrics"
)

const defaultMetricsUpdateInterval = 5 * time.Second

type participantKey struct {
	eventID string
	userID  string
}

type statsKey struct {
	guildID string
	userID  string
}

// MemoryStore is an in-memory Store. All values are copied in and out so
// callers never share mutable state with the store.
type MemoryStore struct {
	mu           sync.RWMutex
	events       map[string]model.Event
	participants map[participantKey]model.Participant
	reminders    map[string]model.Reminder
	guilds       map[string]model.GuildSettings
	audit        []model.AuditEntry
	stats        map[statsKey]model.ParticipantStats

	metricsUpdateInterval time.Duration

	wg       sync.WaitGroup
	stopChan chan struct{}
	stopOnce sync.Once
}

// NewMemoryStore constructs an empty store and starts its metrics updater.
func NewMemoryStore(ctx context.Context, opts ...Option) *MemoryStore {
	s := &MemoryStore{
		events:                make(map[string]model.Event),
		participants:          make(map[participantKey]model.Participant),
		reminders:             make(map[string]model.Reminder),
		guilds:                make(map[string]model.GuildSettings),
		stats:                 make(map[statsKey]model.ParticipantStats),
		metricsUpdateInterval: defaultMetricsUpdateInterval,
		stopChan:              make(chan struct{}),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.startMetricsUpdater(ctx)
	return s
}

// Close stops the background metrics goroutine.
func (s *MemoryStore) Close() error {
	s.stopOnce.Do(func() { close(s.stopChan) })
	s.wg.Wait()
	return nil
}

func (s *MemoryStore) startMetricsUpdater(ctx context.Context) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		ticker := time.NewTicker(s.metricsUpdateInterval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopChan:
				return
			case <-ticker.C:
				s.updateMetrics()
			}
		}
	}()
}

func (s *MemoryStore) updateMetrics() {
	s.mu.RLock()
	events, participants, audit := len(s.events), len(s.participants), len(s.audit)
	s.mu.RUnlock()
	metrics.UpdateRepositoryRecordsTotal("events", events)
	metrics.UpdateRepositoryRecordsTotal("participants", participants)
	metrics.UpdateRepositoryRecordsTotal("audit", audit)
}

func observeQuery(start time.Time) {
	metrics.RecordRepositoryQueryLatency(float64(time.Since(start).Milliseconds()))
}

func observeUpdate(start time.Time) {
	metrics.RecordRepositoryUpdateLatency(float64(time.Since(start).Milliseconds()))
}

func copyEvent(e model.Event) model.Event {
	e.RoleLimits = e.RoleLimits.Clone()
	e.AllowedRoleIDs = slices.Clone(e.AllowedRoleIDs)
	e.Duration = clonePtr(e.Duration)
	e.MaxParticipants = clonePtr(e.MaxParticipants)
	e.SignupDeadlineHours = clonePtr(e.SignupDeadlineHours)
	e.ArchivedAt = clonePtr(e.ArchivedAt)
	e.DeletedAt = clonePtr(e.DeletedAt)
	return e
}

func copyParticipant(p model.Participant) model.Participant {
	p.Position = clonePtr(p.Position)
	return p
}

func clonePtr[T any](p *T) *T {
	if p == nil {
		return nil
	}
	v := *p
	return &v
}

// GetEvent implements EventStore.
func (s *MemoryStore) GetEvent(ctx context.Context, id string) (model.Event, error) {
	defer observeQuery(time.Now())
	if err := ctx.Err(); err != nil {
		return model.Event{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	e, ok := s.events[id]
	if !ok {
		return model.Event{}, ErrNotFound
	}
	return copyEvent(e), nil
}

// ListEvents implements EventStore.
func (s *MemoryStore) ListEvents(ctx context.Context, f EventFilter) ([]model.Event, error) {
	defer observeQuery(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.Event, 0)
	for _, e := range s.events {
		if f.GuildID != "" && e.GuildID != f.GuildID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, e.Status) {
			continue
		}
		if !f.StartsBefore.IsZero() && e.StartTime.After(f.StartsBefore) {
			continue
		}
		if !f.IncludeDeleted && e.DeletedAt != nil {
			continue
		}
		out = append(out, copyEvent(e))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].StartTime.Equal(out[j].StartTime) {
			return out[i].StartTime.Before(out[j].StartTime)
		}
		return out[i].ID < out[j].ID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// CreateEvent implements EventStore.
func (s *MemoryStore) CreateEvent(ctx context.Context, e model.Event) error {
	defer observeUpdate(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; ok {
		return ErrDuplicate
	}
	s.events[e.ID] = copyEvent(e)
	return nil
}

// UpdateEvent implements EventStore.
func (s *MemoryStore) UpdateEvent(ctx context.Context, e model.Event) error {
	defer observeUpdate(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[e.ID]; !ok {
		return ErrNotFound
	}
	s.events[e.ID] = copyEvent(e)
	return nil
}

// DeleteEvent implements EventStore.
func (s *MemoryStore) DeleteEvent(ctx context.Context, id string) error {
	defer observeUpdate(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[id]; !ok {
		return ErrNotFound
	}
	delete(s.events, id)
	for k := range s.participants {
		if k.eventID == id {
			delete(s.participants, k)
		}
	}
	for k, r := range s.reminders {
		if r.EventID == id {
			delete(s.reminders, k)
		}
	}
	return nil
}

// GetParticipant implements ParticipantStore.
func (s *MemoryStore) GetParticipant(ctx context.Context, eventID, userID string) (model.Participant, error) {
	defer observeQuery(time.Now())
	if err := ctx.Err(); err != nil {
		return model.Participant{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.participants[participantKey{eventID, userID}]
	if !ok {
		return model.Participant{}, ErrNotFound
	}
	return copyParticipant(p), nil
}

// ListParticipants implements ParticipantStore.
func (s *MemoryStore) ListParticipants(ctx context.Context, f ParticipantFilter) ([]model.Participant, error) {
	defer observeQuery(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.Participant, 0)
	for k, p := range s.participants {
		if f.EventID != "" && k.eventID != f.EventID {
			continue
		}
		if len(f.Statuses) > 0 && !slices.Contains(f.Statuses, p.Status) {
			continue
		}
		if f.Role != nil && p.Role != *f.Role {
			continue
		}
		out = append(out, copyParticipant(p))
	}
	s.mu.RUnlock()

	sort.Slice(out, func(i, j int) bool {
		if !out[i].JoinedAt.Equal(out[j].JoinedAt) {
			return out[i].JoinedAt.Before(out[j].JoinedAt)
		}
		return out[i].UserID < out[j].UserID
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

// CreateParticipant implements ParticipantStore.
func (s *MemoryStore) CreateParticipant(ctx context.Context, p model.Participant) error {
	defer observeUpdate(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.events[p.EventID]; !ok {
		return ErrNotFound
	}
	k := participantKey{p.EventID, p.UserID}
	if _, ok := s.participants[k]; ok {
		return ErrDuplicate
	}
	s.participants[k] = copyParticipant(p)
	return nil
}

// UpdateParticipant implements ParticipantStore.
func (s *MemoryStore) UpdateParticipant(ctx context.Context, p model.Participant) error {
	defer observeUpdate(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := participantKey{p.EventID, p.UserID}
	if _, ok := s.participants[k]; !ok {
		return ErrNotFound
	}
	s.participants[k] = copyParticipant(p)
	return nil
}

// DeleteParticipant implements ParticipantStore.
func (s *MemoryStore) DeleteParticipant(ctx context.Context, eventID, userID string) error {
	defer observeUpdate(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	k := participantKey{eventID, userID}
	if _, ok := s.participants[k]; !ok {
		return ErrNotFound
	}
	delete(s.participants, k)
	return nil
}

// DeleteParticipants implements ParticipantStore.
func (s *MemoryStore) DeleteParticipants(ctx context.Context, eventID string) (int, error) {
	defer observeUpdate(time.Now())
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k := range s.participants {
		if k.eventID == eventID {
			delete(s.participants, k)
			n++
		}
	}
	return n, nil
}

// CreateReminder implements ReminderStore.
func (s *MemoryStore) CreateReminder(ctx context.Context, r model.Reminder) error {
	defer observeUpdate(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reminders[r.ID]; ok {
		return ErrDuplicate
	}
	s.reminders[r.ID] = r
	return nil
}

// ListReminders implements ReminderStore.
func (s *MemoryStore) ListReminders(ctx context.Context, eventID string) ([]model.Reminder, error) {
	defer observeQuery(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.Reminder, 0)
	for _, r := range s.reminders {
		if r.EventID == eventID {
			out = append(out, r)
		}
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].RemindAt.Before(out[j].RemindAt) })
	return out, nil
}

// DeleteReminders implements ReminderStore.
func (s *MemoryStore) DeleteReminders(ctx context.Context, eventID string) (int, error) {
	defer observeUpdate(time.Now())
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for k, r := range s.reminders {
		if r.EventID == eventID {
			delete(s.reminders, k)
			n++
		}
	}
	return n, nil
}

// GetGuildSettings implements GuildStore.
func (s *MemoryStore) GetGuildSettings(ctx context.Context, guildID string) (model.GuildSettings, error) {
	defer observeQuery(time.Now())
	if err := ctx.Err(); err != nil {
		return model.GuildSettings{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	g, ok := s.guilds[guildID]
	if !ok {
		return model.GuildSettings{}, ErrNotFound
	}
	return g, nil
}

// ListGuildSettings implements GuildStore.
func (s *MemoryStore) ListGuildSettings(ctx context.Context) ([]model.GuildSettings, error) {
	defer observeQuery(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	out := make([]model.GuildSettings, 0, len(s.guilds))
	for _, g := range s.guilds {
		out = append(out, g)
	}
	s.mu.RUnlock()
	sort.Slice(out, func(i, j int) bool { return out[i].GuildID < out[j].GuildID })
	return out, nil
}

// UpsertGuildSettings implements GuildStore.
func (s *MemoryStore) UpsertGuildSettings(ctx context.Context, g model.GuildSettings) error {
	defer observeUpdate(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.guilds[g.GuildID] = g
	return nil
}

// AppendAudit implements AuditStore.
func (s *MemoryStore) AppendAudit(ctx context.Context, e model.AuditEntry) error {
	defer observeUpdate(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.audit = append(s.audit, e)
	return nil
}

// ListAudit implements AuditStore. Newest entries come first.
func (s *MemoryStore) ListAudit(ctx context.Context, guildID string, limit int) ([]model.AuditEntry, error) {
	defer observeQuery(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]model.AuditEntry, 0)
	for i := len(s.audit) - 1; i >= 0; i-- {
		if s.audit[i].GuildID != guildID {
			continue
		}
		out = append(out, s.audit[i])
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return out, nil
}

// AuditGuilds implements AuditStore.
func (s *MemoryStore) AuditGuilds(ctx context.Context) ([]string, error) {
	defer observeQuery(time.Now())
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	seen := make(map[string]struct{})
	for i := range s.audit {
		seen[s.audit[i].GuildID] = struct{}{}
	}
	s.mu.RUnlock()
	out := make([]string, 0, len(seen))
	for g := range seen {
		out = append(out, g)
	}
	sort.Strings(out)
	return out, nil
}

// PurgeAudit implements AuditStore.
func (s *MemoryStore) PurgeAudit(ctx context.Context, guildID string, before time.Time) (int, error) {
	defer observeUpdate(time.Now())
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	kept := s.audit[:0]
	n := 0
	for _, e := range s.audit {
		if e.GuildID == guildID && e.CreatedAt.Before(before) {
			n++
			continue
		}
		kept = append(kept, e)
	}
	s.audit = kept
	return n, nil
}

// AccrueStats implements StatsStore.
func (s *MemoryStore) AccrueStats(ctx context.Context, guildID string, userIDs []string, at time.Time) error {
	defer observeUpdate(time.Now())
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, u := range userIDs {
		k := statsKey{guildID, u}
		st := s.stats[k]
		st.GuildID = guildID
		st.UserID = u
		st.EventsCompleted++
		st.LastCompletedAt = at
		s.stats[k] = st
	}
	return nil
}

// GetStats implements StatsStore.
func (s *MemoryStore) GetStats(ctx context.Context, guildID, userID string) (model.ParticipantStats, error) {
	defer observeQuery(time.Now())
	if err := ctx.Err(); err != nil {
		return model.ParticipantStats{}, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()
	st, ok := s.stats[statsKey{guildID, userID}]
	if !ok {
		return model.ParticipantStats{}, ErrNotFound
	}
	return st, nil
}
