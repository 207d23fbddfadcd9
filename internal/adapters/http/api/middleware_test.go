package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	. "github.com/smartystreets/goconvey/convey"
)

func TestMetricsMiddleware(t *testing.T) {
	Convey("Given a handler wrapped by the metrics middleware", t, func() {
		var seen http.ResponseWriter
		h := MetricsMiddleware(func(w http.ResponseWriter, r *http.Request) {
			seen = w
			writeFailure(w, WrapKind("api.test", ErrConflict, errors.New("busy")))
		}, "test")

		Convey("When it fails", func() {
			w := httptest.NewRecorder()
			h(w, httptest.NewRequest(http.MethodGet, "/test", http.NoBody))

			Convey("Then the status and error code are recorded", func() {
				So(w.Code, ShouldEqual, http.StatusConflict)
				rec, ok := seen.(*statusRecorder)
				So(ok, ShouldBeTrue)
				So(rec.status, ShouldEqual, http.StatusConflict)
				So(rec.code, ShouldEqual, "conflict")
				So(rec.Unwrap() == http.ResponseWriter(w), ShouldBeTrue)
			})
		})
	})

	Convey("Given failures that bypass writeError", t, func() {
		So(codeForStatus(http.StatusNotFound), ShouldEqual, "not_found")
		So(codeForStatus(http.StatusBadGateway), ShouldEqual, "internal_error")
		So(codeForStatus(http.StatusMethodNotAllowed), ShouldEqual, "bad_request")
		So(severity("inference_failed"), ShouldEqual, "high")
		So(severity("timeout"), ShouldEqual, "medium")
		So(severity("duplicate"), ShouldEqual, "low")
	})
}
