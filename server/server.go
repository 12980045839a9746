package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"sync"
	"syscall"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/posecam/pkg/monitor"
	"github.com/cyclopcam/posecam/pkg/nn"
	"github.com/cyclopcam/posecam/pkg/render"
	"github.com/cyclopcam/posecam/pkg/videox"
	"github.com/cyclopcam/posecam/server/config"
	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/julienschmidt/httprouter"
)

// Video is a playable video. videox.Player implements this.
type Video interface {
	monitor.VideoSource
	Size() (width, height int)
	Play() error
	Pause()
	Close()
}

// VideoOpener opens a video file for playback. The returned Video must be paused.
type VideoOpener func(logger logs.Log, filename string, maxHeight int) (Video, error)

// OpenVideoFile opens filename with ffmpeg
func OpenVideoFile(logger logs.Log, filename string, maxHeight int) (Video, error) {
	p, err := videox.OpenPlayer(logger, filename, maxHeight)
	if err != nil {
		return nil, err
	}
	return p, nil
}

type Server struct {
	Log       logs.Log
	Config    *config.Config
	Monitor   *monitor.Monitor
	OpenVideo VideoOpener

	wsUpgrader websocket.Upgrader
	router     *httprouter.Router
	httpServer *http.Server
	signalIn   chan os.Signal

	shutdownOnce     sync.Once
	ShutdownComplete chan bool // Closed when Shutdown has finished

	videoLock sync.Mutex // Guards everything below
	video     Video
	filename  string
	sessionID uuid.UUID
}

// Status is returned by /api/status
type Status struct {
	Session string         `json:"session,omitempty"` // Changes every time a video is attached
	File    string         `json:"file,omitempty"`
	Paused  bool           `json:"paused"`
	Ended   bool           `json:"ended"`
	Monitor monitor.Status `json:"monitor"`
}

// NewServer creates a server that runs estimator on whatever video is attached.
// The server takes ownership of estimator.
func NewServer(logger logs.Log, cfg *config.Config, estimator nn.PoseEstimator) *Server {
	opt := monitor.DefaultMonitorOptions()
	opt.MinConfidence = cfg.MinConfidence
	opt.RefreshRate = cfg.RefreshRate
	opt.EstimateTimeout = cfg.EstimateTimeout()
	s := &Server{
		Log:              logger,
		Config:           cfg,
		Monitor:          monitor.NewMonitor(logger, estimator, opt),
		OpenVideo:        OpenVideoFile,
		ShutdownComplete: make(chan bool),
		wsUpgrader: websocket.Upgrader{
			ReadBufferSize:  1024,
			WriteBufferSize: 4096,
		},
	}
	s.setupRoutes()
	return s
}

// OpenAndAttach opens filename, and makes it the video that the monitor runs on.
// Any previous video is closed. Returns the new session ID.
func (s *Server) OpenAndAttach(filename string) (string, error) {
	id, err := s.attachVideo(filename)
	if err != nil {
		return "", err
	}
	return id.String(), nil
}

func (s *Server) attachVideo(filename string) (uuid.UUID, error) {
	if filename == "" {
		return uuid.Nil, videox.ErrNoVideoFile
	}
	video, err := s.OpenVideo(s.Log, filename, s.Config.MaxVideoHeight)
	if err != nil {
		return uuid.Nil, err
	}
	width, height := video.Size()
	if width <= 0 || height <= 0 {
		video.Close()
		return uuid.Nil, fmt.Errorf("Unknown frame size for %v", filename)
	}
	canvas, err := render.NewCanvas(width, height)
	if err != nil {
		video.Close()
		return uuid.Nil, err
	}
	if err := s.Monitor.Attach(video, canvas); err != nil {
		video.Close()
		return uuid.Nil, err
	}

	s.videoLock.Lock()
	previous := s.video
	s.video = video
	s.filename = filename
	s.sessionID = uuid.New()
	id := s.sessionID
	s.videoLock.Unlock()

	if previous != nil {
		previous.Close()
	}
	s.Log.Infof("Session %v: attached %v (%v x %v)", id, filename, width, height)
	return id, nil
}

func (s *Server) currentVideo() Video {
	s.videoLock.Lock()
	defer s.videoLock.Unlock()
	return s.video
}

// Play starts playback, and (re)starts the frame loop.
// After an estimator failure the video still plays, but ErrHalted is returned and nothing is drawn.
func (s *Server) Play() error {
	video := s.currentVideo()
	if video == nil {
		return videox.ErrNoVideoFile
	}
	if err := video.Play(); err != nil {
		return err
	}
	return s.Monitor.Start(context.Background())
}

// Pause playback. The frame loop notices this on its next iteration, and stops.
func (s *Server) Pause() error {
	video := s.currentVideo()
	if video == nil {
		return videox.ErrNoVideoFile
	}
	video.Pause()
	return nil
}

func (s *Server) Status() Status {
	s.videoLock.Lock()
	st := Status{
		File: s.filename,
	}
	if s.video != nil {
		st.Session = s.sessionID.String()
		st.Paused = s.video.Paused()
		st.Ended = s.video.Ended()
	}
	s.videoLock.Unlock()
	st.Monitor = s.Monitor.Status()
	return st
}

// Handler returns the HTTP API
func (s *Server) Handler() http.Handler {
	return s.router
}

// ListenHTTP serves the API until Shutdown is called.
// Returns nil after a clean shutdown.
func (s *Server) ListenHTTP(addr string) error {
	s.httpServer = &http.Server{
		Addr:              addr,
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	s.Log.Infof("Listening on %v", addr)
	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return fmt.Errorf("HTTP server failed: %w", err)
}

// ListenForKillSignals shuts the server down on SIGINT or SIGTERM
func (s *Server) ListenForKillSignals() {
	s.signalIn = make(chan os.Signal, 1)
	signal.Notify(s.signalIn, os.Interrupt, syscall.SIGTERM)
	go func() {
		sig, ok := <-s.signalIn
		if ok {
			s.Log.Infof("Received OS signal '%v'. Shutting down", sig.String())
			ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			s.Shutdown(ctx)
		}
	}()
}

// Shutdown stops the HTTP server (if running), the monitor, and the video.
// It is safe to call more than once.
func (s *Server) Shutdown(ctx context.Context) {
	s.shutdownOnce.Do(func() {
		if s.signalIn != nil {
			signal.Stop(s.signalIn)
			close(s.signalIn)
		}
		if s.httpServer != nil {
			s.Log.Infof("Closing HTTP server")
			if err := s.httpServer.Shutdown(ctx); err != nil {
				s.Log.Warnf("HTTP server shutdown: %v", err)
			}
		}
		s.Monitor.Close()
		s.videoLock.Lock()
		if s.video != nil {
			s.video.Close()
			s.video = nil
		}
		s.videoLock.Unlock()
		close(s.ShutdownComplete)
	})
}
