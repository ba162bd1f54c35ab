// Package service wires the admission engine, the lifecycle scheduler and the
// notification pipeline into one unit with an explicit Start/Stop contract.
package service

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"time"

	eventqueue "github.com/okian/rollcall/internal/adapters/mq/queue"
	workerpool "github.com/okian/rollcall/internal/adapters/mq/worker"
	"github.com/okian/rollcall/internal/adapters/notify"
	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/app/admission"
	"github.com/okian/rollcall/internal/app/lifecycle"
	"github.com/okian/rollcall/internal/domain/dedupe"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
	"github.com/okian/rollcall/pkg/metrics"
)

// asyncNotifier turns admission side effects into queued notifications.
// A full or closed queue drops the notification; admission never waits.
// At most one render per event is queued at a time.
type asyncNotifier struct {
	queue   eventqueue.Queue
	pending dedupe.Deduper
	now     func() time.Time
	logger  logger.Logger
}

func (n *asyncNotifier) RenderEvent(ctx context.Context, eventID string) {
	if n.pending.SeenAndRecord(ctx, eventID) {
		n.logger.Debug(ctx, "render coalesced", logger.EventID(eventID))
		return
	}
	if !n.enqueue(ctx, model.Notification{Kind: model.NotifyRender, EventID: eventID, EnqueuedAt: n.now()}) {
		n.pending.Unrecord(ctx, eventID)
	}
}

func (n *asyncNotifier) LogAction(ctx context.Context, entry model.AuditEntry) {
	n.enqueue(ctx, model.Notification{Kind: model.NotifyAudit, EventID: entry.EventID, Audit: &entry, EnqueuedAt: n.now()})
}

func (n *asyncNotifier) enqueue(ctx context.Context, note model.Notification) bool {
	// The operation already committed; a finished request must not drop its notification.
	if err := n.queue.Enqueue(context.WithoutCancel(ctx), note); err != nil {
		n.logger.Warn(ctx, "notification dropped",
			logger.String("kind", string(note.Kind)),
			logger.EventID(note.EventID),
			logger.Error(err),
		)
		return false
	}
	metrics.UpdateQueueSize(n.queue.Len(ctx))
	return true
}

// releasePending clears an event's pending render before delivery, so any
// mutation committed after this point queues a fresh render.
func releasePending(pending dedupe.Deduper, next workerpool.Handler) workerpool.Handler {
	return workerpool.HandlerFunc(func(ctx context.Context, n model.Notification) error {
		if n.Kind == model.NotifyRender {
			pending.Unrecord(ctx, n.EventID)
		}
		return next.Handle(ctx, n)
	})
}

// Service owns the store and publisher it is given and closes them on Stop.
type Service struct {
	mu sync.RWMutex

	// Core components
	store      repository.Store
	publisher  notify.Publisher
	eventQueue eventqueue.Queue
	workerPool *workerpool.Pool
	engine     *admission.Engine
	scheduler  *lifecycle.Scheduler

	// Configuration
	workerCount      int
	queueSize        int
	interval         time.Duration
	gracePeriod      time.Duration
	messageRetention time.Duration
	logRetention     time.Duration
	now              func() time.Time

	// State
	started bool

	logger logger.Logger
}

// Option applies a configuration option to the Service.
type Option func(*Service)

// WithWorkerCount sets the number of notification workers.
func WithWorkerCount(count int) Option {
	return func(s *Service) {
		if count > 0 {
			s.workerCount = count
		}
	}
}

// WithQueueSize sets the notification queue capacity.
func WithQueueSize(size int) Option {
	return func(s *Service) {
		if size > 0 {
			s.queueSize = size
		}
	}
}

// WithLogger sets a custom logger for the service.
func WithLogger(l logger.Logger) Option {
	return func(s *Service) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithClock overrides time.Now for every component.
func WithClock(now func() time.Time) Option {
	return func(s *Service) {
		if now != nil {
			s.now = now
		}
	}
}

// WithLifecycle sets the scheduler interval, the default event length and
// the default retentions. Zero values keep the defaults.
func WithLifecycle(interval, grace, messageRetention, logRetention time.Duration) Option {
	return func(s *Service) {
		if interval > 0 {
			s.interval = interval
		}
		if grace > 0 {
			s.gracePeriod = grace
		}
		if messageRetention > 0 {
			s.messageRetention = messageRetention
		}
		if logRetention > 0 {
			s.logRetention = logRetention
		}
	}
}

// New builds the service over store and publisher. Components are ready to
// serve reads immediately; Start launches the background loops.
func New(store repository.Store, publisher notify.Publisher, opts ...Option) *Service {
	s := &Service{
		store:            store,
		publisher:        publisher,
		workerCount:      runtime.NumCPU(),
		queueSize:        10_000,
		interval:         lifecycle.DefaultInterval,
		gracePeriod:      lifecycle.DefaultGracePeriod,
		messageRetention: lifecycle.DefaultMessageRetention,
		logRetention:     lifecycle.DefaultLogRetention,
		now:              time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	if s.logger == nil {
		s.logger = logger.Get().Named("service")
	}

	s.eventQueue = eventqueue.NewInMemoryQueue(
		eventqueue.WithCapacity(s.queueSize),
		eventqueue.WithBufferSize(s.queueSize),
	)
	pending := dedupe.NewInMemoryDeduper(dedupe.WithMaxSize(s.queueSize))
	s.engine = admission.NewEngine(store,
		&asyncNotifier{queue: s.eventQueue, pending: pending, now: s.now, logger: s.logger},
		admission.WithClock(s.now),
		admission.WithLogger(s.logger.Named("admission")),
	)
	dispatcher := notify.NewDispatcher(store, publisher,
		notify.WithClock(s.now),
		notify.WithDispatcherLogger(s.logger.Named("dispatcher")),
	)
	s.workerPool = workerpool.NewPool(s.workerCount, s.eventQueue, releasePending(pending, dispatcher),
		workerpool.WithLogger(s.logger.Named("worker")),
	)
	s.scheduler = lifecycle.New(store, s.engine, notify.NewMessenger(publisher),
		lifecycle.WithClock(s.now),
		lifecycle.WithLogger(s.logger.Named("lifecycle")),
		lifecycle.WithInterval(s.interval),
		lifecycle.WithGracePeriod(s.gracePeriod),
		lifecycle.WithMessageRetention(s.messageRetention),
		lifecycle.WithLogRetention(s.logRetention),
	)
	return s
}

// Start launches the notification workers and the lifecycle scheduler.
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.started {
		return nil
	}
	s.logger.Info(ctx, "starting rollcall service...")

	s.workerPool.Start(ctx)
	if err := s.scheduler.Start(ctx); err != nil && !errors.Is(err, lifecycle.ErrAlreadyRunning) {
		s.workerPool.Stop()
		return err
	}

	s.started = true
	s.logger.Info(ctx, "rollcall service started",
		logger.Int("workers", s.workerCount),
		logger.Int("queueSize", s.queueSize),
		logger.Duration("interval", s.interval),
	)
	return nil
}

// Stop halts the scheduler, drains queued notifications, then closes the
// publisher and the store.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.logger.Info(ctx, "stopping rollcall service...")

	var errs []error
	s.scheduler.Stop()
	if err := s.workerPool.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	if s.publisher != nil {
		if err := s.publisher.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	if closer, ok := s.store.(interface{ Close() error }); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, err)
		}
	}

	s.started = false
	s.logger.Info(ctx, "rollcall service stopped")
	return errors.Join(errs...)
}

// Engine returns the admission engine.
func (s *Service) Engine() *admission.Engine { return s.engine }

// Store returns the persistence gateway.
func (s *Service) Store() repository.Store { return s.store }

// Scheduler returns the lifecycle scheduler.
func (s *Service) Scheduler() *lifecycle.Scheduler { return s.scheduler }

// Ready reports whether the store is reachable. Stores without a health
// check are always ready.
func (s *Service) Ready(ctx context.Context) error {
	if r, ok := s.store.(interface{ Ready(context.Context) error }); ok {
		return r.Ready(ctx)
	}
	return nil
}

// GetStats returns service statistics for monitoring.
func (s *Service) GetStats() map[string]interface{} {
	s.mu.RLock()
	defer s.mu.RUnlock()

	ctx := context.Background()
	queueLen := s.eventQueue.Len(ctx)
	stats := map[string]interface{}{
		"started":      s.started,
		"workerCount":  s.workerCount,
		"queueSize":    s.queueSize,
		"queueLength":  queueLen,
		"lockedEvents": s.engine.Locks().Len(),
	}
	metrics.UpdateQueueSize(queueLen)
	return stats
}
