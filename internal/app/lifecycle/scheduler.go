// Package lifecycle drives events through their time-based transitions:
// scheduled to active at start, active to completed at the effective end,
// public message deletion after the retention window, and audit log purging.
package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/errgroup"

	"github.com/okian/rollcall/internal/adapters/notify"
	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/app/admission"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/view"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// Defaults.
const (
	DefaultInterval         = 30 * time.Second
	DefaultGracePeriod      = 2 * time.Hour
	DefaultMessageRetention = 24 * time.Hour
	DefaultLogRetention     = 30 * 24 * time.Hour

	purgeConcurrency = 4
)

// Store is the persistence the scheduler needs.
type Store interface {
	repository.EventStore
	repository.GuildStore
	repository.AuditStore
}

// Engine is the admission side of a transition: the shared lock table and
// the per-transition hooks.
type Engine interface {
	Locks() *admission.Locks
	OnEventStarted(ctx context.Context, ev *model.Event)
	OnEventArchived(ctx context.Context, ev *model.Event)
	View(ctx context.Context, eventID string) (view.EventView, error)
}

// Messenger performs chat-platform cleanup. Implementations return
// notify.ErrMessageGone when the target no longer exists.
type Messenger interface {
	DeleteMessage(ctx context.Context, ev *model.Event) error
	DeleteThread(ctx context.Context, ev *model.Event) error
	PostArchive(ctx context.Context, channelID string, v view.EventView) error
}

// TickReport counts what one tick did.
type TickReport struct {
	Started         int
	Archived        int
	MessagesDeleted int
	AuditPurged     int
	Failures        int
}

// Scheduler runs the lifecycle checks on a fixed interval.
type Scheduler struct {
	store     Store
	engine    Engine
	messenger Messenger

	interval         time.Duration
	grace            time.Duration
	messageRetention time.Duration
	logRetention     time.Duration
	now              func() time.Time
	logger           logger.Logger

	mu       sync.Mutex
	running  bool
	stopChan chan struct{}
	wg       sync.WaitGroup
}

// New creates a scheduler.
func New(store Store, engine Engine, messenger Messenger, opts ...Option) *Scheduler {
	s := &Scheduler{
		store:            store,
		engine:           engine,
		messenger:        messenger,
		interval:         DefaultInterval,
		grace:            DefaultGracePeriod,
		messageRetention: DefaultMessageRetention,
		logRetention:     DefaultLogRetention,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("lifecycle")
	}
	return s
}

// Start launches the tick loop in the background.
func (s *Scheduler) Start(ctx context.Context) error {
	if s.interval <= 0 {
		return ErrInvalidInterval
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return ErrAlreadyRunning
	}
	s.running = true
	s.stopChan = make(chan struct{})

	s.wg.Add(1)
	go func(stop <-chan struct{}) {
		defer s.wg.Done()
		s.loop(ctx, stop)
	}(s.stopChan)

	s.logger.Info(ctx, "lifecycle scheduler started", logger.Duration("interval", s.interval), logger.Duration("grace_period", s.grace))
	return nil
}

// Stop ends the loop and waits for an in-flight tick to finish.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	close(s.stopChan)
	s.mu.Unlock()
	s.wg.Wait()
}

// Run starts the loop and blocks until ctx is done.
func (s *Scheduler) Run(ctx context.Context) error {
	if err := s.Start(ctx); err != nil {
		return err
	}
	<-ctx.Done()
	s.Stop()
	return nil
}

func (s *Scheduler) loop(ctx context.Context, stop <-chan struct{}) {
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-stop:
			return
		case <-ticker.C:
			s.Tick(ctx)
		}
	}
}

// Tick runs the four checks once, in order. A failing event is logged and
// counted; it never stops the rest of the tick.
func (s *Scheduler) Tick(ctx context.Context) TickReport {
	start := time.Now()
	defer func() {
		metrics.RecordLifecycleTickDuration(float64(time.Since(start).Milliseconds()))
	}()

	var r TickReport
	settings := newSettingsCache(s)
	s.startDue(ctx, &r)
	s.archiveEnded(ctx, settings, &r)
	s.deleteMessages(ctx, settings, &r)
	s.purgeAudit(ctx, settings, &r)

	if r.Started+r.Archived+r.MessagesDeleted+r.AuditPurged+r.Failures > 0 {
		s.logger.Info(ctx, "lifecycle tick",
			logger.Int("started", r.Started),
			logger.Int("archived", r.Archived),
			logger.Int("messages_deleted", r.MessagesDeleted),
			logger.Int("audit_purged", r.AuditPurged),
			logger.Int("failures", r.Failures))
	}
	return r
}

func (s *Scheduler) fail(ctx context.Context, r *TickReport, check, eventID string, err error) {
	r.Failures++
	metrics.RecordLifecycleFailure(check)
	s.logger.Error(ctx, "lifecycle check failed", logger.String("check", check), logger.EventID(eventID), logger.Error(err))
}

func (s *Scheduler) list(ctx context.Context, r *TickReport, check string, f repository.EventFilter) []model.Event {
	evs, err := s.store.ListEvents(ctx, f)
	if err != nil {
		s.fail(ctx, r, check, "", fmt.Errorf("list events: %w", err))
		return nil
	}
	return evs
}

// withEvent reloads the event under its lock and runs fn when the event is
// still in the expected status. It reports whether fn ran.
func (s *Scheduler) withEvent(ctx context.Context, id string, want model.EventStatus, fn func(ev *model.Event) error) (bool, error) {
	unlock, err := s.engine.Locks().Lock(ctx, id)
	if err != nil {
		return false, err
	}
	defer unlock()

	ev, err := s.store.GetEvent(ctx, id)
	if err != nil {
		return false, err
	}
	if ev.Status != want {
		return false, nil
	}
	return true, fn(&ev)
}

func (s *Scheduler) startDue(ctx context.Context, r *TickReport) {
	const check = "start"
	now := s.now()
	due := s.list(ctx, r, check, repository.EventFilter{
		Statuses:     []model.EventStatus{model.EventScheduled},
		StartsBefore: now,
	})
	for i := range due {
		ran, err := s.withEvent(ctx, due[i].ID, model.EventScheduled, func(ev *model.Event) error {
			ev.Status = model.EventActive
			ev.UpdatedAt = now
			if err := s.store.UpdateEvent(ctx, *ev); err != nil {
				return fmt.Errorf("activate: %w", err)
			}
			s.engine.OnEventStarted(ctx, ev)
			return nil
		})
		if err != nil {
			s.fail(ctx, r, check, due[i].ID, err)
			continue
		}
		if ran {
			r.Started++
			metrics.RecordLifecycleTransition(check)
		}
	}
}

func (s *Scheduler) archiveEnded(ctx context.Context, settings *settingsCache, r *TickReport) {
	const check = "archive"
	now := s.now()
	active := s.list(ctx, r, check, repository.EventFilter{
		Statuses:     []model.EventStatus{model.EventActive},
		StartsBefore: now,
	})
	for i := range active {
		if now.Before(active[i].EffectiveEnd(s.grace)) {
			continue
		}
		ran, err := s.withEvent(ctx, active[i].ID, model.EventActive, func(ev *model.Event) error {
			archivedAt := now
			ev.Status = model.EventCompleted
			ev.ArchivedAt = &archivedAt
			ev.UpdatedAt = now
			if err := s.store.UpdateEvent(ctx, *ev); err != nil {
				return fmt.Errorf("complete: %w", err)
			}
			s.engine.OnEventArchived(ctx, ev)
			s.afterArchive(ctx, settings.get(ctx, ev.GuildID), ev)
			return nil
		})
		if err != nil {
			s.fail(ctx, r, check, active[i].ID, err)
			continue
		}
		if ran {
			r.Archived++
			metrics.RecordLifecycleTransition(check)
		}
	}
}

// afterArchive applies the guild's optional archive policies. Failures are
// logged only; the event is already completed.
func (s *Scheduler) afterArchive(ctx context.Context, gs model.GuildSettings, ev *model.Event) {
	if gs.DeleteThreads && ev.ThreadID != "" {
		if err := s.messenger.DeleteThread(ctx, ev); err != nil && !errors.Is(err, notify.ErrMessageGone) {
			metrics.RecordLifecycleFailure("thread_delete")
			s.logger.Warn(ctx, "failed to delete thread", logger.EventID(ev.ID), logger.Error(err))
		}
	}
	if gs.ArchiveChannelID == "" {
		return
	}
	v, err := s.engine.View(ctx, ev.ID)
	if err == nil {
		err = s.messenger.PostArchive(ctx, gs.ArchiveChannelID, v)
	}
	if err != nil {
		metrics.RecordLifecycleFailure("archive_post")
		s.logger.Warn(ctx, "failed to post archive", logger.EventID(ev.ID), logger.Error(err))
	}
}

func (s *Scheduler) deleteMessages(ctx context.Context, settings *settingsCache, r *TickReport) {
	const check = "message_delete"
	now := s.now()
	done := s.list(ctx, r, check, repository.EventFilter{
		Statuses: []model.EventStatus{model.EventCompleted},
	})
	for i := range done {
		if !s.messageExpired(ctx, settings, &done[i], now) {
			continue
		}
		ran, err := s.withEvent(ctx, done[i].ID, model.EventCompleted, func(ev *model.Event) error {
			if ev.DeletedAt != nil {
				return nil
			}
			gone := false
			if err := s.messenger.DeleteMessage(ctx, ev); err != nil {
				if !errors.Is(err, notify.ErrMessageGone) {
					return fmt.Errorf("delete message: %w", err)
				}
				gone = true
			}
			deletedAt := now
			ev.DeletedAt = &deletedAt
			ev.UpdatedAt = now
			if err := s.store.UpdateEvent(ctx, *ev); err != nil {
				return fmt.Errorf("mark deleted: %w", err)
			}
			s.recordAudit(ctx, ev, gone, now)
			return nil
		})
		if err != nil {
			s.fail(ctx, r, check, done[i].ID, err)
			continue
		}
		if ran {
			r.MessagesDeleted++
			metrics.RecordLifecycleTransition(check)
		}
	}
}

func (s *Scheduler) messageExpired(ctx context.Context, settings *settingsCache, ev *model.Event, now time.Time) bool {
	if ev.ArchivedAt == nil || ev.DeletedAt != nil {
		return false
	}
	retention := settings.get(ctx, ev.GuildID).MessageRetention
	return !now.Before(ev.ArchivedAt.Add(retention))
}

func (s *Scheduler) recordAudit(ctx context.Context, ev *model.Event, alreadyGone bool, now time.Time) {
	details := "deleted"
	if alreadyGone {
		details = "already gone"
	}
	err := s.store.AppendAudit(ctx, model.AuditEntry{
		ID:        uuid.NewString(),
		GuildID:   ev.GuildID,
		EventID:   ev.ID,
		Action:    model.ActionMessageGone,
		ActorID:   admission.SystemActor.ID,
		ActorName: admission.SystemActor.Name,
		Details:   details,
		CreatedAt: now,
	})
	if err != nil {
		s.logger.Warn(ctx, "failed to audit message deletion", logger.EventID(ev.ID), logger.Error(err))
	}
}

func (s *Scheduler) purgeAudit(ctx context.Context, settings *settingsCache, r *TickReport) {
	const check = "log_retention"
	guilds, err := s.store.AuditGuilds(ctx)
	if err != nil {
		s.fail(ctx, r, check, "", fmt.Errorf("list audit guilds: %w", err))
		return
	}
	now := s.now()
	cutoffs := make(map[string]time.Time, len(guilds))
	for _, g := range guilds {
		cutoffs[g] = now.Add(-settings.get(ctx, g).LogRetention)
	}

	var mu sync.Mutex
	var g errgroup.Group
	g.SetLimit(purgeConcurrency)
	for guildID, cutoff := range cutoffs {
		guildID, cutoff := guildID, cutoff
		g.Go(func() error {
			n, err := s.store.PurgeAudit(ctx, guildID, cutoff)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				s.fail(ctx, r, check, "", fmt.Errorf("purge guild %s: %w", guildID, err))
				return nil
			}
			r.AuditPurged += n
			metrics.RecordAuditPurged(n)
			return nil
		})
	}
	_ = g.Wait()
}

// settingsCache resolves guild settings once per tick, filling zero
// retentions from the scheduler defaults.
type settingsCache struct {
	s *Scheduler
	m map[string]model.GuildSettings
}

func newSettingsCache(s *Scheduler) *settingsCache {
	return &settingsCache{s: s, m: make(map[string]model.GuildSettings)}
}

func (c *settingsCache) get(ctx context.Context, guildID string) model.GuildSettings {
	if gs, ok := c.m[guildID]; ok {
		return gs
	}
	gs, err := c.s.store.GetGuildSettings(ctx, guildID)
	if err != nil {
		if !errors.Is(err, repository.ErrNotFound) {
			c.s.logger.Warn(ctx, "failed to load guild settings", logger.String("guild_id", guildID), logger.Error(err))
		}
		gs = model.GuildSettings{GuildID: guildID}
	}
	if gs.MessageRetention <= 0 {
		gs.MessageRetention = c.s.messageRetention
	}
	if gs.LogRetention <= 0 {
		gs.LogRetention = c.s.logRetention
	}
	c.m[guildID] = gs
	return gs
}
