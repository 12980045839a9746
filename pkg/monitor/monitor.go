package monitor

import (
	"context"
	"errors"
	"fmt"
	"io"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/posecam/pkg/nn"
	"github.com/cyclopcam/posecam/pkg/perfstats"
	"github.com/cyclopcam/posecam/pkg/pose"
	"github.com/cyclopcam/posecam/pkg/render"
	"github.com/cyclopcam/posecam/pkg/videox"
)

// monitor runs the pose estimator on the frames of a playing video, and draws the results

var ErrNoSource = errors.New("No video attached")
var ErrHalted = errors.New("Pose estimation has failed for this video, and will not be restarted")
var ErrNoSurface = errors.New("Nothing has been drawn yet")

type State int

const (
	StateIdle    State = iota // No video loaded
	StateReady                // Video loaded, not playing
	StateRunning              // Processing frames
	StateStopped              // Video paused or ended, or the estimator failed
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateReady:
		return "ready"
	case StateRunning:
		return "running"
	case StateStopped:
		return "stopped"
	}
	return fmt.Sprintf("State(%d)", int(s))
}

func (s State) MarshalText() ([]byte, error) {
	return []byte(s.String()), nil
}

func (s *State) UnmarshalText(b []byte) error {
	for c := StateIdle; c <= StateStopped; c++ {
		if c.String() == string(b) {
			*s = c
			return nil
		}
	}
	return fmt.Errorf("Unknown monitor state '%v'", string(b))
}

// VideoSource is whatever is playing the video. videox.Player implements this.
type VideoSource interface {
	Paused() bool
	Ended() bool
	CurrentFrame() *videox.Frame // Most recent frame. May be nil before playback starts.
}

type MonitorOptions struct {
	MinConfidence   float32       // Keypoints with a score at or below this are ignored by the skeleton and T-pose check
	RefreshRate     float64       // Display refresh rate in Hz. One frame is processed per refresh, at most.
	EstimateTimeout time.Duration // If positive, then each call to the estimator is cancelled after this long
	FlipHorizontal  bool          // Mirror keypoints (false for video files)
}

func DefaultMonitorOptions() *MonitorOptions {
	return &MonitorOptions{
		MinConfidence: pose.DefaultMinConfidence,
		RefreshRate:   60,
	}
}

type Monitor struct {
	Log       logs.Log
	options   MonitorOptions
	estimator nn.PoseEstimator

	lock        sync.Mutex // Guards everything below, up to surfaceLock
	state       State
	source      VideoSource
	lastErr     error
	halted      bool               // Estimator failed. Start() is refused until a new video is attached.
	cancelLoop  context.CancelFunc // Cancels the running loop
	loopStopped chan bool          // Closed when the most recent loop exits

	surfaceLock sync.Mutex // Held while drawing, and while taking a snapshot
	surface     render.Surface
	drawn       bool // At least one frame has been drawn onto surface

	watchersLock sync.RWMutex
	watchers     []chan *FrameResult

	statsLock      sync.Mutex
	framesDone     int64
	estimateTotal  perfstats.TimeAccumulator
	estimateRecent *perfstats.RollingTime
	renderAverage  atomic.Int64 // Moving average of render time, in nanoseconds
}

// FrameResult is published to watchers after every processed frame
type FrameResult struct {
	FrameIndex   int              `json:"frameIndex"`
	PTS          time.Duration    `json:"pts"`
	TPose        bool             `json:"tPose"`
	NumKeypoints int              `json:"numKeypoints"`
	NumPairs     int              `json:"numPairs"`
	EstimateTime time.Duration    `json:"estimateTime"`
	Keypoints    pose.KeypointSet `json:"keypoints"`
}

type Stats struct {
	FramesProcessed     int64         `json:"framesProcessed"`
	EstimateAverage     time.Duration `json:"estimateAverage"`
	EstimateRecent      time.Duration `json:"estimateRecent"`
	EstimateRecentMax   time.Duration `json:"estimateRecentMax"`
	RenderMovingAverage time.Duration `json:"renderMovingAverage"`
}

type Status struct {
	State State  `json:"state"`
	Error string `json:"error,omitempty"`
	Stats Stats  `json:"stats"`
}

// Number of recent estimator calls used for the "recent" stats
const RecentWindow = 64

// NewMonitor creates an idle monitor. The monitor takes ownership of estimator.
func NewMonitor(logger logs.Log, estimator nn.PoseEstimator, options *MonitorOptions) *Monitor {
	if options == nil {
		options = DefaultMonitorOptions()
	}
	opt := *options
	if opt.RefreshRate <= 0 {
		opt.RefreshRate = 60
	}
	return &Monitor{
		Log:            logger,
		options:        opt,
		estimator:      estimator,
		state:          StateIdle,
		estimateRecent: perfstats.NewRollingTime(RecentWindow),
	}
}

// Close stops the frame loop, and closes the estimator
func (m *Monitor) Close() {
	m.Log.Infof("Monitor shutting down")
	m.stop()
	m.estimator.Close()
	m.Log.Infof("Monitor is closed")
}

// Attach a video source, and the surface that frames will be drawn onto.
// Any running loop is stopped first. Attaching a new video clears a previous estimator failure.
func (m *Monitor) Attach(source VideoSource, surface render.Surface) error {
	if source == nil || surface == nil {
		return videox.ErrNoVideoFile
	}
	m.stop()

	m.lock.Lock()
	m.source = source
	m.state = StateReady
	m.lastErr = nil
	m.halted = false
	m.lock.Unlock()

	m.surfaceLock.Lock()
	m.surface = surface
	m.drawn = false
	m.surfaceLock.Unlock()

	m.statsLock.Lock()
	m.framesDone = 0
	m.estimateTotal.Reset()
	m.estimateRecent = perfstats.NewRollingTime(RecentWindow)
	m.statsLock.Unlock()
	m.renderAverage.Store(0)
	return nil
}

// Start the frame loop. The first iteration runs immediately.
// If the loop is already running, this is a no-op.
// Starting from Stopped is how playback is resumed, but not after the estimator has failed.
func (m *Monitor) Start(ctx context.Context) error {
	m.lock.Lock()
	defer m.lock.Unlock()
	switch m.state {
	case StateIdle:
		return ErrNoSource
	case StateRunning:
		return nil
	}
	if m.halted {
		return ErrHalted
	}
	if m.loopStopped != nil {
		// The previous loop has already left the Running state, so this won't wait long
		<-m.loopStopped
	}
	loopCtx, cancel := context.WithCancel(ctx)
	m.cancelLoop = cancel
	m.loopStopped = make(chan bool)
	m.state = StateRunning
	m.lastErr = nil
	go m.loop(loopCtx, m.source, m.loopStopped)
	return nil
}

// Wait until the frame loop is no longer running
func (m *Monitor) Wait() {
	m.lock.Lock()
	ch := m.loopStopped
	m.lock.Unlock()
	if ch != nil {
		<-ch
	}
}

func (m *Monitor) State() State {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.state
}

// Err returns the error that halted the loop, if any
func (m *Monitor) Err() error {
	m.lock.Lock()
	defer m.lock.Unlock()
	return m.lastErr
}

func (m *Monitor) Status() Status {
	m.lock.Lock()
	s := Status{
		State: m.state,
	}
	if m.lastErr != nil {
		s.Error = m.lastErr.Error()
	}
	m.lock.Unlock()
	s.Stats = m.Stats()
	return s
}

func (m *Monitor) Stats() Stats {
	m.statsLock.Lock()
	defer m.statsLock.Unlock()
	return Stats{
		FramesProcessed:     m.framesDone,
		EstimateAverage:     m.estimateTotal.Average(),
		EstimateRecent:      m.estimateRecent.Average(),
		EstimateRecentMax:   m.estimateRecent.Max(),
		RenderMovingAverage: time.Duration(m.renderAverage.Load()),
	}
}

// Snapshot writes whatever is currently drawn on the surface, as a PNG.
// Returns ErrNoSurface until the first frame of the attached video has been drawn.
func (m *Monitor) Snapshot(w io.Writer) error {
	m.surfaceLock.Lock()
	defer m.surfaceLock.Unlock()
	if !m.drawn {
		return ErrNoSurface
	}
	return render.EncodePNG(w, m.surface)
}

// SaveSnapshot writes the surface to dir/pose.png
func (m *Monitor) SaveSnapshot(dir string) (string, error) {
	m.surfaceLock.Lock()
	defer m.surfaceLock.Unlock()
	if !m.drawn {
		return "", ErrNoSurface
	}
	return render.SavePNG(dir, m.surface)
}

// Cancel the loop and wait for it to exit
func (m *Monitor) stop() {
	m.lock.Lock()
	cancel := m.cancelLoop
	stopped := m.loopStopped
	m.lock.Unlock()
	if cancel != nil {
		cancel()
	}
	if stopped != nil {
		<-stopped
	}
}

// Leave the Running state. If err is not nil, the loop is halted for this video.
func (m *Monitor) setStopped(err error) {
	m.lock.Lock()
	defer m.lock.Unlock()
	m.state = StateStopped
	if err != nil {
		m.lastErr = err
		m.halted = true
	}
}

// Re-check the source under our lock, so that a Start() which raced with
// the video resuming can't be lost. Returns true if we stopped.
func (m *Monitor) stopIfNotPlaying(source VideoSource) bool {
	m.lock.Lock()
	defer m.lock.Unlock()
	if source.Paused() || source.Ended() {
		m.state = StateStopped
		return true
	}
	return false
}

func (m *Monitor) refreshInterval() time.Duration {
	return time.Duration(float64(time.Second) / m.options.RefreshRate)
}

// loop processes one frame per display refresh, until the video is paused or ends
func (m *Monitor) loop(ctx context.Context, source VideoSource, stopped chan bool) {
	defer close(stopped)
	ticker := time.NewTicker(m.refreshInterval())
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			m.setStopped(nil)
			return
		}
		if (source.Paused() || source.Ended()) && m.stopIfNotPlaying(source) {
			return
		}
		if err := m.processFrame(ctx, source); err != nil {
			if ctx.Err() != nil {
				// Cancelled by Close or Attach, which is not the estimator's fault
				m.setStopped(nil)
			} else {
				m.Log.Errorf("Pose estimation failed. Stopping: %v", err)
				m.setStopped(err)
			}
			return
		}
		select {
		case <-ctx.Done():
		case <-ticker.C:
		}
	}
}

// processFrame runs estimate, render, classify, and publishes the result.
// Frames that arrive while we're busy are simply never seen.
func (m *Monitor) processFrame(ctx context.Context, source VideoSource) error {
	frame := source.CurrentFrame()
	if frame == nil || frame.Image == nil {
		return nil
	}

	estimateCtx := ctx
	if m.options.EstimateTimeout > 0 {
		var cancel context.CancelFunc
		estimateCtx, cancel = context.WithTimeout(ctx, m.options.EstimateTimeout)
		defer cancel()
	}
	params := nn.NewEstimationParams()
	params.FlipHorizontal = m.options.FlipHorizontal

	start := time.Now()
	keypoints, err := m.estimator.EstimateSinglePose(estimateCtx, frame, params)
	estimateTime := time.Since(start)
	if err != nil {
		return fmt.Errorf("Frame %v: %w", frame.Index, err)
	}

	start = time.Now()
	img, err := frame.ToImage()
	if err != nil {
		return fmt.Errorf("Frame %v: %w", frame.Index, err)
	}
	m.surfaceLock.Lock()
	isTPose, numPairs := render.RenderFrame(m.surface, img, keypoints, m.options.MinConfidence)
	m.drawn = true
	m.surfaceLock.Unlock()
	perfstats.UpdateMovingAverage(&m.renderAverage, time.Since(start))

	m.statsLock.Lock()
	m.framesDone++
	m.estimateTotal.AddSample(estimateTime)
	m.estimateRecent.Add(estimateTime)
	m.statsLock.Unlock()

	m.sendToWatchers(&FrameResult{
		FrameIndex:   frame.Index,
		PTS:          frame.PTS,
		TPose:        isTPose,
		NumKeypoints: len(keypoints),
		NumPairs:     numPairs,
		EstimateTime: estimateTime,
		Keypoints:    keypoints,
	})
	return nil
}
