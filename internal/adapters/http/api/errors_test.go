package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"testing"

	. "github.com/smartystreets/goconvey/convey"

	"github.com/okian/rollcall/internal/app/admission"
)

func TestStatusFor(t *testing.T) {
	Convey("Given errors from the admission layer", t, func() {
		cases := []struct {
			err    error
			status int
			code   string
		}{
			{admission.NewKind("join", admission.ErrNotFound), http.StatusNotFound, "not_found"},
			{admission.NewKind("join", admission.ErrInvalidState), http.StatusConflict, "invalid_state"},
			{admission.NewKind("join", admission.ErrDeadlinePassed), http.StatusConflict, "deadline_passed"},
			{admission.NewKind("create_event", admission.ErrInvalidInput), http.StatusBadRequest, "bad_request"},
			{fmt.Errorf("%w: nope", ErrBadRequest), http.StatusBadRequest, "bad_request"},
			{fmt.Errorf("join: %w", context.DeadlineExceeded), http.StatusGatewayTimeout, "timeout"},
			{errors.New("disk on fire"), http.StatusInternalServerError, "internal"},
		}
		for _, c := range cases {
			status, code := statusFor(c.err)
			So(status, ShouldEqual, c.status)
			So(code, ShouldEqual, c.code)
		}
	})

	Convey("Given response status codes", t, func() {
		Convey("Then they map to metric error types", func() {
			So(getErrorType(http.StatusInternalServerError), ShouldEqual, "server_error")
			So(getErrorType(http.StatusConflict), ShouldEqual, "conflict")
			So(getErrorType(http.StatusNotFound), ShouldEqual, "not_found")
			So(getErrorType(http.StatusBadRequest), ShouldEqual, "client_error")
		})
	})
}
