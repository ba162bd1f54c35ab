package swagger

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/go-chi/chi/v5"
	. "github.com/smartystreets/goconvey/convey"
)

func TestRegister(t *testing.T) {
	Convey("Given a router with the OpenAPI route", t, func() {
		r := chi.NewRouter()
		Register(r)

		Convey("When the document is requested", func() {
			rec := httptest.NewRecorder()
			r.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/openapi.yaml", nil))

			Convey("Then the embedded YAML is served", func() {
				So(rec.Code, ShouldEqual, http.StatusOK)
				So(rec.Header().Get("Content-Type"), ShouldContainSubstring, "yaml")
				So(rec.Body.String(), ShouldContainSubstring, "/events/{eventID}/join")
			})
		})

		Convey("When registering on a nil router", func() {
			So(func() { Register(nil) }, ShouldPanic)
		})
	})
}
