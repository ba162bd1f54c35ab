package view_test

import (
	"testing"
	"time"

	"github.com/okian/rollcall/internal/domain/model"
	"github.com/okian/rollcall/internal/domain/view"
	. "github.com/smartystreets/goconvey/convey"
)

func TestBuildAndRender(t *testing.T) {
	Convey("Given an event with a mixed roster", t, func() {
		start := time.Date(2026, 10, 20, 20, 0, 0, 0, time.UTC)
		ev := &model.Event{
			ID:              "ev-1",
			GuildID:         "g",
			Title:           "Raid",
			StartTime:       start,
			Status:          model.EventScheduled,
			MaxParticipants: model.IntPtr(2),
			RoleLimits:      model.RoleLimits{"Tank": 1, "Healer": 1},
		}
		ps := []model.Participant{
			{UserID: "a", Username: "alice", Role: "Tank", Status: model.StatusConfirmed, JoinedAt: start.Add(-3 * time.Hour)},
			{UserID: "c", Username: "carol", Status: model.StatusConfirmed, JoinedAt: start.Add(-2 * time.Hour)},
			{UserID: "b", Username: "bob", Role: "Tank", Status: model.StatusWaitlist, Position: model.IntPtr(1), JoinedAt: start.Add(-150 * time.Minute)},
			{UserID: "d", Username: "dave", Status: model.StatusPending, JoinedAt: start.Add(-time.Hour)},
		}

		v := view.Build(ev, ps, start.Add(-time.Hour))

		Convey("Then counts and groups reflect the snapshot", func() {
			So(v.Confirmed, ShouldEqual, 2)
			So(v.MaxParticipants, ShouldEqual, 2)
			So(len(v.Roles), ShouldEqual, 3)
			So(v.Roles[0].Role, ShouldEqual, "Healer")
			So(v.Roles[0].Members, ShouldBeEmpty)
			So(v.Roles[1].Role, ShouldEqual, "Tank")
			So(v.Roles[2].Role, ShouldEqual, "Unassigned")
			So(v.Waitlist[0].Position, ShouldEqual, 1)
			So(v.Pending[0].Username, ShouldEqual, "dave")
			So(v.SignupOpen, ShouldBeTrue)
		})

		Convey("Then rendering lists every section", func() {
			out := view.Render(v)
			So(out, ShouldContainSubstring, "Confirmed: 2/2")
			So(out, ShouldContainSubstring, "Tank (1/1)")
			So(out, ShouldContainSubstring, "#1 bob")
			So(out, ShouldContainSubstring, "Awaiting approval")
			So(out, ShouldNotContainSubstring, "Signups closed")
		})

		Convey("When the event is completed", func() {
			ev.Status = model.EventCompleted
			out := view.Render(view.Build(ev, ps, start))
			So(out, ShouldContainSubstring, "Signups closed")
		})
	})
}
