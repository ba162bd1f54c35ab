package notify_test

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/segmentio/kafka-go"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/rollcall/internal/adapters/notify"
	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/pkg/logger"
)

var t0 = time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC)

// fakeWriter is a test writer that records messages written.
type fakeWriter struct {
	msgs []kafka.Message
	err  error
}

func (f *fakeWriter) WriteMessages(ctx context.Context, msgs ...kafka.Message) error {
	if f.err != nil {
		return f.err
	}
	f.msgs = append(f.msgs, msgs...)
	return nil
}

func (f *fakeWriter) Close() error { return nil }

type fakeChannel struct {
	keys []string
	pubs []amqp.Publishing
}

func (f *fakeChannel) PublishWithContext(ctx context.Context, exchange, key string, mandatory, immediate bool, msg amqp.Publishing) error {
	f.keys = append(f.keys, key)
	f.pubs = append(f.pubs, msg)
	return nil
}

func (f *fakeChannel) Close() error { return nil }

// capture records envelopes in publish order.
type capture struct {
	mu   sync.Mutex
	envs []notify.Envelope
	keys []string
}

func (c *capture) Publish(ctx context.Context, key string, env notify.Envelope) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.keys = append(c.keys, key)
	c.envs = append(c.envs, env)
	return nil
}

func (c *capture) Close() error { return nil }

func TestKafkaPublisher(t *testing.T) {
	convey.Convey("Given a kafka publisher over a fake writer", t, func() {
		fw := &fakeWriter{}
		p := notify.NewKafkaPublisherWithWriter(fw, "signups")
		env, err := notify.NewEnvelope(notify.TypeEventRender, "g1", "ev1", t0, map[string]string{"a": "b"})
		convey.So(err, convey.ShouldBeNil)

		convey.Convey("When publishing", func() {
			err := p.Publish(context.Background(), "ev1", env)

			convey.Convey("Then one keyed JSON message is written", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(fw.msgs, convey.ShouldHaveLength, 1)
				convey.So(string(fw.msgs[0].Key), convey.ShouldEqual, "ev1")
				convey.So(string(fw.msgs[0].Headers[0].Value), convey.ShouldEqual, notify.TypeEventRender)

				var got notify.Envelope
				convey.So(json.Unmarshal(fw.msgs[0].Value, &got), convey.ShouldBeNil)
				convey.So(got.EventID, convey.ShouldEqual, "ev1")
				convey.So(string(got.Data), convey.ShouldEqual, `{"a":"b"}`)
			})
		})

		convey.Convey("When the writer fails", func() {
			fw.err = errors.New("broker down")
			err := p.Publish(context.Background(), "ev1", env)

			convey.Convey("Then the error is wrapped as a publish failure", func() {
				convey.So(errors.Is(err, notify.ErrPublish), convey.ShouldBeTrue)
			})
		})
	})
}

func TestRabbitMQPublisher(t *testing.T) {
	convey.Convey("Given a rabbitmq publisher over a fake channel", t, func() {
		ch := &fakeChannel{}
		p := notify.NewRabbitMQPublisherWithChannel(ch, "rollcall")
		env, _ := notify.NewEnvelope(notify.TypeAuditLogged, "g1", "ev1", t0, nil)

		err := p.Publish(context.Background(), "g1", env)

		convey.So(err, convey.ShouldBeNil)
		convey.So(ch.keys, convey.ShouldResemble, []string{"rollcall"})
		convey.So(ch.pubs[0].DeliveryMode, convey.ShouldEqual, amqp.Persistent)
		convey.So(ch.pubs[0].ContentType, convey.ShouldEqual, "application/json")
		convey.So(ch.pubs[0].Type, convey.ShouldEqual, notify.TypeAuditLogged)
		convey.So(p.Close(), convey.ShouldBeNil)
	})
}

func TestDispatcher(t *testing.T) {
	convey.Convey("Given a dispatcher over a memory store", t, func() {
		_ = logger.Init()
		ctx := context.Background()
		store := repository.NewMemoryStore(ctx)
		defer func() { _ = store.Close() }()

		_ = store.CreateEvent(ctx, model.Event{ID: "ev1", GuildID: "g1", Title: "Raid", StartTime: t0.Add(time.Hour), Status: model.EventScheduled})
		_ = store.CreateParticipant(ctx, model.Participant{EventID: "ev1", UserID: "u1", Username: "alice", Role: "Tank", Status: model.StatusConfirmed, JoinedAt: t0})

		pub := &capture{}
		d := notify.NewDispatcher(store, pub, notify.WithClock(func() time.Time { return t0 }))

		convey.Convey("When a render notification is handled", func() {
			err := d.Handle(ctx, model.Notification{Kind: model.NotifyRender, EventID: "ev1"})

			convey.Convey("Then the current roster is published", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(pub.envs, convey.ShouldHaveLength, 1)
				convey.So(pub.keys[0], convey.ShouldEqual, "ev1")

				var r notify.Rendered
				convey.So(json.Unmarshal(pub.envs[0].Data, &r), convey.ShouldBeNil)
				convey.So(r.View.Confirmed, convey.ShouldEqual, 1)
				convey.So(r.Text, convey.ShouldContainSubstring, "alice")
			})
		})

		convey.Convey("When the event no longer exists", func() {
			err := d.Handle(ctx, model.Notification{Kind: model.NotifyRender, EventID: "gone"})

			convey.Convey("Then nothing is published and no error is returned", func() {
				convey.So(err, convey.ShouldBeNil)
				convey.So(pub.envs, convey.ShouldBeEmpty)
			})
		})

		convey.Convey("When an audit notification is handled", func() {
			entry := model.AuditEntry{ID: "a1", GuildID: "g1", EventID: "ev1", Action: model.ActionJoin, ActorID: "u1", CreatedAt: t0}
			err := d.Handle(ctx, model.Notification{Kind: model.NotifyAudit, EventID: "ev1", Audit: &entry})

			convey.Convey("Then it is persisted and published", func() {
				convey.So(err, convey.ShouldBeNil)
				rows, _ := store.ListAudit(ctx, "g1", 0)
				convey.So(rows, convey.ShouldHaveLength, 1)
				convey.So(pub.envs[0].Type, convey.ShouldEqual, notify.TypeAuditLogged)
			})
		})

		convey.Convey("When the notification kind is unknown", func() {
			err := d.Handle(ctx, model.Notification{Kind: "bogus"})
			convey.So(errors.Is(err, notify.ErrEncode), convey.ShouldBeTrue)
		})
	})
}

func TestMessenger(t *testing.T) {
	convey.Convey("Given a messenger", t, func() {
		pub := &capture{}
		m := notify.NewMessenger(pub)
		ctx := context.Background()

		convey.Convey("When the event has no public message", func() {
			err := m.DeleteMessage(ctx, &model.Event{ID: "ev1"})
			convey.So(errors.Is(err, notify.ErrMessageGone), convey.ShouldBeTrue)
			convey.So(pub.envs, convey.ShouldBeEmpty)
		})

		convey.Convey("When the event has a message and a thread", func() {
			ev := &model.Event{ID: "ev1", GuildID: "g1", ChannelID: "c1", MessageID: "m1", ThreadID: "t1"}
			convey.So(m.DeleteMessage(ctx, ev), convey.ShouldBeNil)
			convey.So(m.DeleteThread(ctx, ev), convey.ShouldBeNil)

			convey.So(pub.envs, convey.ShouldHaveLength, 2)
			convey.So(pub.envs[0].Type, convey.ShouldEqual, notify.TypeMessageDelete)
			convey.So(pub.envs[1].Type, convey.ShouldEqual, notify.TypeThreadDelete)
		})
	})
}

func TestLogPublisher(t *testing.T) {
	convey.Convey("Given a log publisher", t, func() {
		p := notify.NewLogPublisher(logger.Nop())
		env, _ := notify.NewEnvelope(notify.TypeEventRender, "g1", "ev1", t0, nil)
		convey.So(p.Publish(context.Background(), "ev1", env), convey.ShouldBeNil)
		convey.So(p.Close(), convey.ShouldBeNil)
	})
}
