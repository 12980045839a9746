package www

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/julienschmidt/httprouter"
	"github.com/stretchr/testify/require"
)

func TestHandlePanics(t *testing.T) {
	log := logs.NewTestingLog(t)
	router := httprouter.New()
	Handle(log, router, "GET", "/bad", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		RequiredQueryValue(r, "file")
		SendOK(w)
	})
	Handle(log, router, "GET", "/conflict", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		PanicConflictf("Not now")
	})
	Handle(log, router, "GET", "/error", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		Check(errors.New("disk full"))
	})
	Handle(log, router, "GET", "/runtime", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		var m map[string]int
		m["x"] = 1
	})

	cases := []struct {
		url  string
		code int
		body string
	}{
		{"/bad", 400, "Must specify file"},
		{"/bad?file=x.mp4", 200, "OK"},
		{"/conflict", 409, "Not now"},
		{"/error", 500, "disk full"},
	}
	for _, c := range cases {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", c.url, nil))
		require.Equal(t, c.code, rec.Code, c.url)
		require.Equal(t, c.body, rec.Body.String(), c.url)
	}

	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, httptest.NewRequest("GET", "/runtime", nil))
	require.Equal(t, 500, rec.Code)
}

func TestHandleRateLimited(t *testing.T) {
	router := httprouter.New()
	HandleRateLimited(logs.NewTestingLog(t), router, "GET", "/snap", func(w http.ResponseWriter, r *http.Request, p httprouter.Params) {
		SendFileDownload(w, "pose.png", "image/png", []byte{1, 2, 3})
	}, 2, time.Minute)

	codes := []int{}
	for i := 0; i < 3; i++ {
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, httptest.NewRequest("GET", "/snap", nil))
		codes = append(codes, rec.Code)
		if rec.Code == 200 {
			require.Equal(t, `attachment; filename="pose.png"`, rec.Header().Get("Content-Disposition"))
			require.Equal(t, "3", rec.Header().Get("Content-Length"))
		}
	}
	require.Equal(t, []int{200, 200, 429}, codes)
}
