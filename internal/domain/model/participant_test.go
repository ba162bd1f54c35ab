package model_test

import (
	"testing"

	model "github.com/okian/rollcall/internal/domain/model"
	"github.com/smartystreets/goconvey/convey"
)

func findParticipant(ps []model.Participant, userID string) model.Participant {
	for _, p := range ps {
		if p.UserID == userID {
			return p
		}
	}
	return model.Participant{}
}

func TestParticipantPosition(t *testing.T) {
	convey.Convey("Given participants returned by value", t, func() {
		ps := []model.Participant{
			{UserID: "a", Status: model.StatusConfirmed},
			{UserID: "b", Status: model.StatusWaitlist, Position: model.IntPtr(3)},
		}

		convey.Convey("Then the position reads straight off a call result", func() {
			convey.So(findParticipant(ps, "b").PositionValue(), convey.ShouldEqual, 3)
			convey.So(model.Participant{Position: model.IntPtr(7)}.PositionValue(), convey.ShouldEqual, 7)
		})

		convey.Convey("Then a participant without a position reads zero", func() {
			convey.So(findParticipant(ps, "a").PositionValue(), convey.ShouldEqual, 0)
			convey.So(model.Participant{}.PositionValue(), convey.ShouldEqual, 0)
		})

		convey.Convey("Then statuses are validated", func() {
			convey.So(model.StatusWaitlist.Valid(), convey.ShouldBeTrue)
			convey.So(model.ParticipantStatus("benched").Valid(), convey.ShouldBeFalse)
		})
	})
}
