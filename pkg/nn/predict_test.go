package nn

import (
	"context"
	"errors"
	"io"
	"testing"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/posecam/pkg/pose"
	"github.com/cyclopcam/posecam/pkg/videox"
	"github.com/stretchr/testify/require"
)

type blankReader struct {
	width, height int
	nframes       int
	next          int
}

func (r *blankReader) NextFrame() (*cimg.Image, error) {
	if r.next >= r.nframes {
		return nil, io.EOF
	}
	r.next++
	return cimg.NewImage(r.width, r.height, cimg.PixelFormatRGB), nil
}

func (r *blankReader) Close() error {
	return nil
}

// Reports a nose on even frames, with x = frame index. Frame 4 has a low score.
type evenFrameEstimator struct {
	seenWidths []int
}

func (e *evenFrameEstimator) Close() {}

func (e *evenFrameEstimator) EstimateSinglePose(ctx context.Context, frame *videox.Frame, params *EstimationParams) (pose.KeypointSet, error) {
	e.seenWidths = append(e.seenWidths, frame.Width())
	if frame.Index%2 == 1 {
		return pose.KeypointSet{}, nil
	}
	score := float32(0.9)
	if frame.Index == 4 {
		score = 0.2
	}
	return pose.KeypointSet{kp(pose.Nose, float32(frame.Index), 0, score)}, nil
}

func TestRunEstimatorOnVideo(t *testing.T) {
	est := &evenFrameEstimator{}
	replay, err := RunEstimatorOnVideo(context.Background(), est, &blankReader{width: 64, height: 48, nframes: 10}, InferenceOptions{
		MaxVideoHeight: 24,
		StartFrame:     1,
		EndFrame:       6,
		MinPoseScore:   0.5,
	})
	require.NoError(t, err)
	require.Equal(t, 32, replay.Width)
	require.Equal(t, 24, replay.Height)
	// frames 1..6, where odd frames have nobody, and frame 4 is too unsure
	require.Equal(t, 6, len(est.seenWidths))
	require.Equal(t, 32, est.seenWidths[0])
	require.Equal(t, 2, len(replay.Frames))
	require.Equal(t, 2, replay.Frames[0].Frame)
	require.Equal(t, 6, replay.Frames[1].Frame)

	// The output plays back through ReplayEstimator
	player, err := NewReplayEstimator(replay)
	require.NoError(t, err)
	k, err := player.EstimateSinglePose(context.Background(), &videox.Frame{Index: 6, Image: cimg.NewImage(32, 24, cimg.PixelFormatRGB)}, nil)
	require.NoError(t, err)
	require.Equal(t, float32(6), k[0].Position.X)
}

type failingEstimator struct{}

func (f failingEstimator) Close() {}

func (f failingEstimator) EstimateSinglePose(ctx context.Context, frame *videox.Frame, params *EstimationParams) (pose.KeypointSet, error) {
	return nil, errors.New("out of memory")
}

func TestRunEstimatorOnVideoFails(t *testing.T) {
	_, err := RunEstimatorOnVideo(context.Background(), failingEstimator{}, &blankReader{width: 8, height: 8, nframes: 3}, InferenceOptions{})
	require.ErrorContains(t, err, "Frame 0: out of memory")
}
