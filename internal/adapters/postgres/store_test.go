package postgres

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/smartystreets/goconvey/convey"

	"github.com/okian/rollcall/internal/adapters/repository"
	"github.com/okian/rollcall/internal/domain/model"
)

func TestMapErr(t *testing.T) {
	convey.Convey("Given driver errors", t, func() {
		convey.So(mapErr("op", nil), convey.ShouldBeNil)
		convey.So(errors.Is(mapErr("op", pgx.ErrNoRows), repository.ErrNotFound), convey.ShouldBeTrue)
		convey.So(errors.Is(mapErr("op", &pgconn.PgError{Code: uniqueViolation}), repository.ErrDuplicate), convey.ShouldBeTrue)
		convey.So(errors.Is(mapErr("op", &pgconn.PgError{Code: foreignKeyViolation}), repository.ErrNotFound), convey.ShouldBeTrue)

		err := mapErr("insert event", errors.New("connection reset"))
		convey.So(err.Error(), convey.ShouldEqual, "insert event: connection reset")
	})
}

func TestWhereBuilder(t *testing.T) {
	convey.Convey("Given a where builder", t, func() {
		var w where
		convey.So(w.String(), convey.ShouldBeEmpty)

		w.add("guild_id = ?", "g1")
		w.addRaw("deleted_at IS NULL")
		w.add("start_time <= ?", time.Unix(0, 0))
		limit := w.limit(10)

		convey.So(w.String(), convey.ShouldEqual, " WHERE guild_id = $1 AND deleted_at IS NULL AND start_time <= $2")
		convey.So(limit, convey.ShouldEqual, " LIMIT $3")
		convey.So(w.args, convey.ShouldHaveLength, 3)
		convey.So(w.limit(0), convey.ShouldBeEmpty)
	})
}

// TestStoreIntegration runs against a real database when
// ROLLCALL_TEST_POSTGRES_DSN is set.
func TestStoreIntegration(t *testing.T) {
	dsn := os.Getenv("ROLLCALL_TEST_POSTGRES_DSN")
	if dsn == "" {
		t.Skip("ROLLCALL_TEST_POSTGRES_DSN not set")
	}
	ctx := context.Background()
	db, err := Connect(ctx, dsn, 4)
	if err != nil {
		t.Fatalf("connect: %v", err)
	}
	defer db.Close()
	if err := db.Migrate(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	s := NewStore(db)

	now := time.Now().UTC().Truncate(time.Millisecond)
	id := fmt.Sprintf("it-%d", now.UnixNano())
	defer func() { _ = s.DeleteEvent(ctx, id) }()

	convey.Convey("Given a postgres store", t, func() {
		ev := model.Event{
			ID: id, GuildID: "g-it", Title: "Integration", StartTime: now.Add(time.Hour),
			MaxParticipants: model.IntPtr(2), RoleLimits: model.RoleLimits{"Tank": 1},
			Status: model.EventScheduled, CreatedAt: now, UpdatedAt: now,
		}
		_ = s.DeleteEvent(ctx, id)
		convey.So(s.CreateEvent(ctx, ev), convey.ShouldBeNil)
		convey.So(errors.Is(s.CreateEvent(ctx, ev), repository.ErrDuplicate), convey.ShouldBeTrue)

		got, err := s.GetEvent(ctx, id)
		convey.So(err, convey.ShouldBeNil)
		convey.So(got.RoleLimits["Tank"], convey.ShouldEqual, 1)
		convey.So(*got.MaxParticipants, convey.ShouldEqual, 2)

		p := model.Participant{EventID: id, UserID: "u1", Status: model.StatusWaitlist, Position: model.IntPtr(1), JoinedAt: now}
		convey.So(s.CreateParticipant(ctx, p), convey.ShouldBeNil)
		convey.So(errors.Is(s.CreateParticipant(ctx, p), repository.ErrDuplicate), convey.ShouldBeTrue)

		wl, err := s.ListParticipants(ctx, repository.ParticipantFilter{EventID: id, Statuses: []model.ParticipantStatus{model.StatusWaitlist}})
		convey.So(err, convey.ShouldBeNil)
		convey.So(wl, convey.ShouldHaveLength, 1)
		convey.So(*wl[0].Position, convey.ShouldEqual, 1)

		convey.So(s.DeleteEvent(ctx, id), convey.ShouldBeNil)
		_, err = s.GetParticipant(ctx, id, "u1")
		convey.So(errors.Is(err, repository.ErrNotFound), convey.ShouldBeTrue)
	})
}
