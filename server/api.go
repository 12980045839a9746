package server

import (
	"bytes"
	"errors"
	"net/http"
	"time"

	"github.com/cyclopcam/posecam/pkg/monitor"
	"github.com/cyclopcam/posecam/pkg/render"
	"github.com/cyclopcam/posecam/pkg/videox"
	"github.com/cyclopcam/posecam/pkg/www"
	"github.com/julienschmidt/httprouter"
)

func (s *Server) setupRoutes() {
	router := httprouter.New()

	www.Handle(s.Log, router, "POST", "/api/video", s.httpAttachVideo)
	www.Handle(s.Log, router, "POST", "/api/play", s.httpPlay)
	www.Handle(s.Log, router, "POST", "/api/pause", s.httpPause)
	www.Handle(s.Log, router, "GET", "/api/status", s.httpStatus)
	www.HandleRateLimited(s.Log, router, "GET", "/api/snapshot", s.httpSnapshot, max(s.Config.SnapshotRateLimit, 1), time.Minute)
	www.Handle(s.Log, router, "GET", "/api/ws", s.httpResultStream)

	s.router = router
}

// Turn an error from the video or monitor into the appropriate HTTP error
func panicVideoError(err error) {
	switch {
	case errors.Is(err, videox.ErrNoVideoFile):
		www.PanicBadRequestf("%v", videox.ErrNoVideoFile)
	case errors.Is(err, videox.ErrVideoEnded), errors.Is(err, monitor.ErrHalted), errors.Is(err, monitor.ErrNoSource):
		www.PanicConflictf("%v", err)
	default:
		www.PanicServerErrorf("%v", err)
	}
}

func (s *Server) httpAttachVideo(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	filename := www.QueryValue(r, "file")
	if filename == "" {
		www.PanicBadRequestf("%v", videox.ErrNoVideoFile)
	}
	id, err := s.OpenAndAttach(filename)
	if err != nil {
		panicVideoError(err)
	}
	www.SendJSON(w, map[string]string{"session": id})
}

func (s *Server) httpPlay(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if err := s.Play(); err != nil {
		panicVideoError(err)
	}
	www.SendOK(w)
}

func (s *Server) httpPause(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	if err := s.Pause(); err != nil {
		panicVideoError(err)
	}
	www.SendOK(w)
}

func (s *Server) httpStatus(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	www.CacheNever(w)
	www.SendJSON(w, s.Status())
}

// Download whatever is currently drawn, as pose.png
func (s *Server) httpSnapshot(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	buf := bytes.Buffer{}
	if err := s.Monitor.Snapshot(&buf); err != nil {
		if errors.Is(err, monitor.ErrNoSurface) {
			www.PanicConflictf("%v", err)
		}
		www.Check(err)
	}
	www.CacheNever(w)
	www.SendFileDownload(w, render.ExportFilename, "image/png", buf.Bytes())
}

// Stream a FrameResult for every processed frame, as JSON text messages
func (s *Server) httpResultStream(w http.ResponseWriter, r *http.Request, params httprouter.Params) {
	c, err := s.wsUpgrader.Upgrade(w, r, nil)
	if err != nil {
		s.Log.Errorf("httpResultStream websocket upgrade failed: %v", err)
		return
	}
	streamer := newResultStreamer(s.Log, s.Monitor)
	streamer.Run(c)
}
