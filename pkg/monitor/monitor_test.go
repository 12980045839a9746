package monitor

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/posecam/pkg/nn"
	"github.com/cyclopcam/posecam/pkg/pose"
	"github.com/cyclopcam/posecam/pkg/render"
	"github.com/cyclopcam/posecam/pkg/videox"
	"github.com/stretchr/testify/require"
)

type fakeSource struct {
	paused atomic.Bool
	ended  atomic.Bool
	frame  *videox.Frame
}

func newFakeSource(width, height int) *fakeSource {
	return &fakeSource{
		frame: &videox.Frame{Image: cimg.NewImage(width, height, cimg.PixelFormatRGB)},
	}
}

func (f *fakeSource) Paused() bool                { return f.paused.Load() }
func (f *fakeSource) Ended() bool                 { return f.ended.Load() }
func (f *fakeSource) CurrentFrame() *videox.Frame { return f.frame }

type fakeEstimator struct {
	calls    atomic.Int32
	closed   atomic.Bool
	estimate func(ctx context.Context) (pose.KeypointSet, error)
}

func (f *fakeEstimator) Close() {
	f.closed.Store(true)
}

func (f *fakeEstimator) EstimateSinglePose(ctx context.Context, frame *videox.Frame, params *nn.EstimationParams) (pose.KeypointSet, error) {
	f.calls.Add(1)
	return f.estimate(ctx)
}

type textCall struct {
	text string
	x, y float64
	size float64
}

// recordingSurface remembers the text drawn since the last Clear
type recordingSurface struct {
	lock   sync.Mutex
	clears int
	texts  []textCall
}

func (r *recordingSurface) Width() int  { return 64 }
func (r *recordingSurface) Height() int { return 48 }
func (r *recordingSurface) Clear() {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.clears++
	r.texts = nil
}
func (r *recordingSurface) DrawFrame(img image.Image)                                   {}
func (r *recordingSurface) FillCircle(x, y, radius float64, c color.Color)              {}
func (r *recordingSurface) StrokeLine(x1, y1, x2, y2, lineWidth float64, c color.Color) {}
func (r *recordingSurface) FillText(text string, x, y, sizePx float64, c color.Color) {
	r.lock.Lock()
	defer r.lock.Unlock()
	r.texts = append(r.texts, textCall{text, x, y, sizePx})
}
func (r *recordingSurface) Image() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 64, 48))
}

func (r *recordingSurface) hasText(text string, x, y float64) bool {
	r.lock.Lock()
	defer r.lock.Unlock()
	for _, t := range r.texts {
		if t.text == text && t.x == x && t.y == y {
			return true
		}
	}
	return false
}

func kp(part pose.Part, x, y, score float32) pose.Keypoint {
	return pose.Keypoint{Part: part, Position: pose.Position{X: x, Y: y}, Score: score}
}

func perfectTPose() pose.KeypointSet {
	return pose.KeypointSet{
		kp(pose.LeftShoulder, 300, 120, 0.9),
		kp(pose.RightShoulder, 200, 118, 0.9),
		kp(pose.LeftWrist, 450, 100, 0.9),
		kp(pose.RightWrist, 50, 102, 0.9),
	}
}

func returning(keypoints pose.KeypointSet) func(ctx context.Context) (pose.KeypointSet, error) {
	return func(ctx context.Context) (pose.KeypointSet, error) {
		return keypoints, nil
	}
}

func testOptions() *MonitorOptions {
	opt := DefaultMonitorOptions()
	opt.RefreshRate = 500
	return opt
}

func waitResult(t *testing.T, ch chan *FrameResult) *FrameResult {
	select {
	case r := <-ch:
		return r
	case <-time.After(5 * time.Second):
		require.FailNow(t, "Timed out waiting for frame result")
	}
	return nil
}

func TestStartWithoutVideo(t *testing.T) {
	m := NewMonitor(logs.NewTestingLog(t), &fakeEstimator{estimate: returning(nil)}, nil)
	defer m.Close()
	require.Equal(t, StateIdle, m.State())
	require.ErrorIs(t, m.Start(context.Background()), ErrNoSource)
	require.Error(t, m.Attach(nil, &recordingSurface{}))
	require.Equal(t, StateIdle, m.State())
}

func runTPose(t *testing.T, keypoints pose.KeypointSet) (*recordingSurface, *FrameResult) {
	est := &fakeEstimator{estimate: returning(keypoints)}
	m := NewMonitor(logs.NewTestingLog(t), est, testOptions())
	defer m.Close()

	src := newFakeSource(64, 48)
	surface := &recordingSurface{}
	require.NoError(t, m.Attach(src, surface))
	require.Equal(t, StateReady, m.State())

	watcher := m.AddWatcher()
	defer m.RemoveWatcher(watcher)

	require.NoError(t, m.Start(context.Background()))
	result := waitResult(t, watcher)
	waitResult(t, watcher)

	src.paused.Store(true)
	m.Wait()
	require.Equal(t, StateStopped, m.State())
	require.NoError(t, m.Err())
	require.GreaterOrEqual(t, m.Stats().FramesProcessed, int64(2))
	require.GreaterOrEqual(t, est.calls.Load(), int32(2))
	return surface, result
}

func TestTPoseLabel(t *testing.T) {
	surface, result := runTPose(t, perfectTPose())
	require.True(t, result.TPose)
	require.Equal(t, 4, result.NumKeypoints)
	require.Equal(t, 1, result.NumPairs) // shoulder to shoulder
	require.True(t, surface.hasText("T Pose Detectada", 10, 50))
	require.True(t, surface.hasText("leftWrist (0.90)", 456, 94))
}

func TestNoTPoseLabelWhenUnsure(t *testing.T) {
	kps := perfectTPose()
	for i := range kps {
		if kps[i].Part == pose.RightWrist {
			kps[i].Score = 0.1
		}
	}
	surface, result := runTPose(t, kps)
	require.False(t, result.TPose)
	require.False(t, surface.hasText("T Pose Detectada", 10, 50))
	require.True(t, surface.hasText("rightWrist (0.10)", 56, 96))
}

func TestPausedSourceStopsImmediately(t *testing.T) {
	est := &fakeEstimator{estimate: returning(perfectTPose())}
	m := NewMonitor(logs.NewTestingLog(t), est, testOptions())
	defer m.Close()

	src := newFakeSource(64, 48)
	src.paused.Store(true)
	require.NoError(t, m.Attach(src, &recordingSurface{}))
	require.NoError(t, m.Start(context.Background()))
	m.Wait()
	require.Equal(t, StateStopped, m.State())
	require.Equal(t, int32(0), est.calls.Load())

	// Resume, and stop again at the end of the video
	src.paused.Store(false)
	watcher := m.AddWatcher()
	require.NoError(t, m.Start(context.Background()))
	waitResult(t, watcher)
	src.ended.Store(true)
	m.Wait()
	require.Equal(t, StateStopped, m.State())
	require.NoError(t, m.Err())
}

func TestEstimatorFailureHalts(t *testing.T) {
	failure := errors.New("model failed to load")
	est := &fakeEstimator{
		estimate: func(ctx context.Context) (pose.KeypointSet, error) {
			return nil, failure
		},
	}
	m := NewMonitor(logs.NewTestingLog(t), est, testOptions())
	defer m.Close()

	src := newFakeSource(64, 48)
	surface := &recordingSurface{}
	require.NoError(t, m.Attach(src, surface))
	require.NoError(t, m.Start(context.Background()))
	m.Wait()

	require.Equal(t, StateStopped, m.State())
	require.ErrorIs(t, m.Err(), failure)
	require.Equal(t, int32(1), est.calls.Load())
	require.Equal(t, 0, surface.clears)
	require.Contains(t, m.Status().Error, "model failed to load")

	// No recovery for this video
	require.ErrorIs(t, m.Start(context.Background()), ErrHalted)

	// A new video starts a new session
	est.estimate = returning(nil)
	require.NoError(t, m.Attach(src, surface))
	require.NoError(t, m.Err())
	require.NoError(t, m.Start(context.Background()))
	src.paused.Store(true)
	m.Wait()
}

func TestUnconvertibleFrameHalts(t *testing.T) {
	est := &fakeEstimator{estimate: returning(perfectTPose())}
	m := NewMonitor(logs.NewTestingLog(t), est, testOptions())
	defer m.Close()

	src := &fakeSource{
		frame: &videox.Frame{Index: 3, Image: cimg.NewImage(8, 8, cimg.PixelFormatRGBX)},
	}
	surface := &recordingSurface{}
	require.NoError(t, m.Attach(src, surface))
	require.NoError(t, m.Start(context.Background()))
	m.Wait()

	require.Equal(t, StateStopped, m.State())
	require.ErrorContains(t, m.Err(), "Frame 3")
	require.Equal(t, 0, surface.clears)
	require.ErrorIs(t, m.Start(context.Background()), ErrHalted)
}

func TestEstimateTimeout(t *testing.T) {
	est := &fakeEstimator{
		estimate: func(ctx context.Context) (pose.KeypointSet, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	opt := testOptions()
	opt.EstimateTimeout = 20 * time.Millisecond
	m := NewMonitor(logs.NewTestingLog(t), est, opt)
	defer m.Close()

	require.NoError(t, m.Attach(newFakeSource(64, 48), &recordingSurface{}))
	require.NoError(t, m.Start(context.Background()))
	m.Wait()
	require.ErrorIs(t, m.Err(), context.DeadlineExceeded)
}

func TestCloseWhileEstimating(t *testing.T) {
	started := make(chan bool)
	est := &fakeEstimator{
		estimate: func(ctx context.Context) (pose.KeypointSet, error) {
			close(started)
			<-ctx.Done()
			return nil, ctx.Err()
		},
	}
	m := NewMonitor(logs.NewTestingLog(t), est, testOptions())
	require.NoError(t, m.Attach(newFakeSource(64, 48), &recordingSurface{}))
	require.NoError(t, m.Start(context.Background()))
	<-started
	m.Close()
	require.Equal(t, StateStopped, m.State())
	require.NoError(t, m.Err())
	require.True(t, est.closed.Load())
}

func TestSnapshot(t *testing.T) {
	m := NewMonitor(logs.NewTestingLog(t), &fakeEstimator{estimate: returning(perfectTPose())}, testOptions())
	defer m.Close()

	var buf bytes.Buffer
	require.ErrorIs(t, m.Snapshot(&buf), ErrNoSurface)

	canvas, err := render.NewCanvas(500, 300)
	require.NoError(t, err)
	src := newFakeSource(500, 300)
	require.NoError(t, m.Attach(src, canvas))
	require.ErrorIs(t, m.Snapshot(&buf), ErrNoSurface)
	_, err = m.SaveSnapshot(t.TempDir())
	require.ErrorIs(t, err, ErrNoSurface)
	watcher := m.AddWatcher()
	require.NoError(t, m.Start(context.Background()))
	waitResult(t, watcher)

	// Snapshot is safe while the loop is drawing
	require.NoError(t, m.Snapshot(&buf))
	src.paused.Store(true)
	m.Wait()

	img, err := png.Decode(&buf)
	require.NoError(t, err)
	require.Equal(t, 500, img.Bounds().Dx())
	require.Equal(t, 300, img.Bounds().Dy())

	path, err := m.SaveSnapshot(t.TempDir())
	require.NoError(t, err)
	require.Contains(t, path, render.ExportFilename)
}

func TestWatcherDropsWhenFull(t *testing.T) {
	m := NewMonitor(logs.NewTestingLog(t), &fakeEstimator{estimate: returning(nil)}, nil)
	defer m.Close()
	ch := m.AddWatcher()
	for i := 0; i < WatcherChannelSize*2; i++ {
		m.sendToWatchers(&FrameResult{FrameIndex: i})
	}
	require.Less(t, len(ch), WatcherChannelSize)
	m.RemoveWatcher(ch)
	m.sendToWatchers(&FrameResult{})
	require.Less(t, len(ch), WatcherChannelSize)
}

func TestRemoveWatcherKeepsOthers(t *testing.T) {
	m := NewMonitor(logs.NewTestingLog(t), &fakeEstimator{estimate: returning(nil)}, nil)
	defer m.Close()
	a := m.AddWatcher()
	b := m.AddWatcher()
	c := m.AddWatcher()
	m.RemoveWatcher(a)
	m.sendToWatchers(&FrameResult{FrameIndex: 1})
	require.Equal(t, 0, len(a))
	require.Equal(t, 1, (<-b).FrameIndex)
	require.Equal(t, 1, (<-c).FrameIndex)

	m.RemoveWatcher(c)
	m.RemoveWatcher(b)
	m.sendToWatchers(&FrameResult{FrameIndex: 2})
	require.Equal(t, 0, len(b))
	require.Equal(t, 0, len(c))
}
