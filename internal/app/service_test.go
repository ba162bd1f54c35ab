package service_test

import (
	"context"
	"sync"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rollcall/internal/adapters/notify"
	"github.com/okian/rollcall/internal/adapters/repository"
	service "github.com/okian/rollcall/internal/app"
	"github.com/okian/rollcall/internal/app/admission"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
)

func init() {
	// Initialize logging for tests
	err := logger.Init()
	if err != nil {
		panic(err)
	}
}

type capturePublisher struct {
	mu     sync.Mutex
	sent   []notify.Envelope
	closed bool
}

func (p *capturePublisher) Publish(_ context.Context, _ string, env notify.Envelope) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.sent = append(p.sent, env)
	return nil
}

func (p *capturePublisher) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *capturePublisher) count(typ string) int {
	p.mu.Lock()
	defer p.mu.Unlock()
	n := 0
	for _, e := range p.sent {
		if e.Type == typ {
			n++
		}
	}
	return n
}

func eventually(cond func() bool) bool {
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return true
		}
		time.Sleep(10 * time.Millisecond)
	}
	return cond()
}

func newService(pub *capturePublisher) (*service.Service, *repository.MemoryStore) {
	store := repository.NewMemoryStore(context.Background())
	svc := service.New(store, pub,
		service.WithWorkerCount(2),
		service.WithQueueSize(100),
		service.WithLogger(logger.Nop()),
		service.WithLifecycle(time.Hour, 0, 0, 0),
	)
	return svc, store
}

func TestService_Lifecycle(t *testing.T) {
	Convey("Given a new service", t, func() {
		pub := &capturePublisher{}
		svc, _ := newService(pub)

		Convey("When getting stats before starting", func() {
			stats := svc.GetStats()
			So(stats["started"], ShouldEqual, false)
			So(stats["workerCount"], ShouldEqual, 2)
			So(stats["queueSize"], ShouldEqual, 100)
			So(svc.Stop(context.Background()), ShouldBeNil)
		})

		Convey("When starting the service twice", func() {
			ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			So(svc.Start(ctx), ShouldBeNil)
			So(svc.Start(ctx), ShouldBeNil)

			Convey("Then it is marked as started and ready", func() {
				So(svc.GetStats()["started"], ShouldEqual, true)
				So(svc.Ready(ctx), ShouldBeNil)
				So(svc.Engine(), ShouldNotBeNil)
				So(svc.Scheduler(), ShouldNotBeNil)
				So(svc.Stop(ctx), ShouldBeNil)
			})

			Convey("And after stopping the publisher is closed", func() {
				So(svc.Stop(ctx), ShouldBeNil)
				So(svc.GetStats()["started"], ShouldEqual, false)
				So(pub.closed, ShouldBeTrue)
			})
		})
	})
}

func TestService_NotificationPipeline(t *testing.T) {
	Convey("Given a started service", t, func() {
		pub := &capturePublisher{}
		svc, store := newService(pub)
		ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		So(svc.Start(ctx), ShouldBeNil)
		defer func() { _ = svc.Stop(ctx) }()

		Convey("When an event is created and a user joins", func() {
			ev, err := svc.Engine().CreateEvent(ctx, model.Event{
				GuildID:   "g1",
				ChannelID: "c1",
				Title:     "Raid",
				StartTime: time.Now().Add(24 * time.Hour),
			}, admission.Actor{ID: "org"})
			So(err, ShouldBeNil)

			res, err := svc.Engine().Join(ctx, admission.JoinRequest{EventID: ev.ID, UserID: "u1", Username: "one"})
			So(err, ShouldBeNil)
			So(res.Outcome, ShouldEqual, admission.OutcomeConfirmed)

			Convey("Then render envelopes are published asynchronously", func() {
				So(eventually(func() bool { return pub.count(notify.TypeEventRender) >= 1 }), ShouldBeTrue)

				Convey("And a later mutation renders again once the pending render is delivered", func() {
					before := pub.count(notify.TypeEventRender)
					_, err := svc.Engine().Join(ctx, admission.JoinRequest{EventID: ev.ID, UserID: "u2", Username: "two"})
					So(err, ShouldBeNil)
					So(eventually(func() bool { return pub.count(notify.TypeEventRender) > before }), ShouldBeTrue)
				})
			})

			Convey("Then audit entries are persisted and published", func() {
				So(eventually(func() bool { return pub.count(notify.TypeAuditLogged) >= 2 }), ShouldBeTrue)
				entries, err := store.ListAudit(ctx, "g1", 0)
				So(err, ShouldBeNil)
				actions := make([]string, 0, len(entries))
				for _, e := range entries {
					actions = append(actions, e.Action)
				}
				So(actions, ShouldContain, model.ActionCreate)
				So(actions, ShouldContain, model.ActionJoin)
			})
		})
	})
}
