package loadtest

import (
	"context"
	"errors"
	"net/http/httptest"
	"testing"
	"time"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rollcall/internal/adapters/http/api"
	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/app/admission"
	"github.com/okian/rollcall/pkg/logger"
)

type alwaysReady struct{}

func (alwaysReady) Ready(context.Context) error { return nil }

func newTestService(t *testing.T) *httptest.Server {
	t.Helper()
	store := repository.NewMemoryStore(context.Background())
	engine := admission.NewEngine(store, nil, admission.WithLogger(logger.Nop()))
	srv := httptest.NewServer(api.NewServer(engine, store, alwaysReady{}, nil, api.WithLogger(logger.Nop())).Router())
	t.Cleanup(func() {
		srv.Close()
		_ = store.Close()
	})
	return srv
}

func TestRun(t *testing.T) {
	Convey("Given a running service", t, func() {
		srv := newTestService(t)
		ctx := context.Background()

		Convey("When a storm hits an event without role limits", func() {
			stats, err := Run(ctx, &Config{
				BaseURL: srv.URL, GuildID: "g1",
				Users: 40, Seats: 10, Leavers: 4, Workers: 8,
				Timeout: 5 * time.Second,
				Logger:  logger.Nop(),
			})

			Convey("Then every seat is filled exactly once", func() {
				So(err, ShouldBeNil)
				So(stats.Joins, ShouldEqual, 40)
				So(stats.Failed, ShouldEqual, 0)
				So(stats.Confirmed, ShouldEqual, 10)
				So(stats.Waitlisted, ShouldEqual, 30)
				So(stats.Leaves, ShouldEqual, 4)
				So(stats.Promoted, ShouldEqual, 4)
			})
		})

		Convey("When a storm hits an event with role limits", func() {
			stats, err := Run(ctx, &Config{
				BaseURL: srv.URL, GuildID: "g1",
				Users: 30, Seats: 8, Leavers: 3, Workers: 6,
				Roles:   map[string]int{"Tank": 2, "Healer": 2, "DPS": 4},
				Timeout: 5 * time.Second,
				Logger:  logger.Nop(),
			})

			Convey("Then no role is overbooked", func() {
				So(err, ShouldBeNil)
				So(stats.Confirmed, ShouldEqual, 8)
				So(stats.Joins, ShouldEqual, 30)
			})
		})

		Convey("When the config is unusable", func() {
			_, err := Run(ctx, &Config{BaseURL: srv.URL, GuildID: "g1", Users: 0, Seats: 1, Workers: 1})
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)

			_, err = Run(ctx, &Config{BaseURL: srv.URL, Users: 1, Seats: 1, Workers: 1})
			So(errors.Is(err, ErrInvalidConfig), ShouldBeTrue)
		})
	})
}

func TestVerify(t *testing.T) {
	Convey("Given a roster", t, func() {
		t0 := time.Date(2026, 10, 1, 18, 0, 0, 0, time.UTC)
		pos := func(n int) *int { return &n }
		two := 2

		Convey("When it respects every rule", func() {
			roster := []Participant{
				{UserID: "a", Role: "Tank", Status: "confirmed", JoinedAt: t0},
				{UserID: "b", Role: "DPS", Status: "confirmed", JoinedAt: t0.Add(time.Second)},
				{UserID: "c", Status: "waitlist", Position: pos(1), JoinedAt: t0.Add(2 * time.Second)},
				{UserID: "bench", Status: "waitlist", Overflow: true, JoinedAt: t0.Add(3 * time.Second)},
				{UserID: "d", Status: "waitlist", Position: pos(2), JoinedAt: t0.Add(4 * time.Second)},
			}
			So(Verify(&two, map[string]int{"Tank": 1}, roster), ShouldBeNil)
		})

		Convey("When capacity is exceeded", func() {
			roster := []Participant{
				{UserID: "a", Status: "confirmed"},
				{UserID: "b", Status: "confirmed"},
				{UserID: "c", Status: "confirmed"},
			}
			err := Verify(&two, nil, roster)
			So(err, ShouldNotBeNil)
			So(err.Error(), ShouldContainSubstring, "exceeds capacity")
		})

		Convey("When a role is overbooked", func() {
			roster := []Participant{
				{UserID: "a", Role: "Tank", Status: "confirmed"},
				{UserID: "b", Role: "Tank", Status: "confirmed"},
			}
			err := Verify(nil, map[string]int{"Tank": 1}, roster)
			So(err.Error(), ShouldContainSubstring, "role Tank")
		})

		Convey("When the waitlist has a gap", func() {
			roster := []Participant{
				{UserID: "a", Status: "confirmed"},
				{UserID: "b", Status: "confirmed"},
				{UserID: "c", Status: "waitlist", Position: pos(2), JoinedAt: t0},
			}
			err := Verify(&two, nil, roster)
			So(err.Error(), ShouldContainSubstring, "want 1")
		})

		Convey("When a seat is left idle", func() {
			roster := []Participant{
				{UserID: "a", Status: "confirmed"},
				{UserID: "c", Status: "waitlist", Position: pos(1), JoinedAt: t0},
			}
			err := Verify(&two, nil, roster)
			So(err.Error(), ShouldContainSubstring, "idle")
		})

		Convey("When a user appears twice", func() {
			roster := []Participant{
				{UserID: "a", Status: "confirmed"},
				{UserID: "a", Status: "pending"},
			}
			So(Verify(nil, nil, roster).Error(), ShouldContainSubstring, "twice")
		})
	})
}
