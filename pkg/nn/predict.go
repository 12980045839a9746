package nn

import (
	"context"
	"errors"
	"fmt"
	"io"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/posecam/pkg/videox"
)

type InferenceOptions struct {
	MaxVideoHeight int     // If frame height is larger than this, then scale it down to this size (0 = no scaling)
	StartFrame     int     // Start processing at frame (0 = start at beginning)
	EndFrame       int     // Stop processing at frame (0 = process to end)
	MinPoseScore   float32 // Frames where the mean keypoint score is below this are left out of the output
	StdOutProgress bool    // Emit progress to stdout
}

// RunEstimatorOnVideo runs the estimator on every frame of reader, and returns the keypoints
// in a form that ReplayEstimator can play back later.
// Unlike the live monitor, no frames are skipped.
func RunEstimatorOnVideo(ctx context.Context, estimator PoseEstimator, reader videox.FrameReader, options InferenceOptions) (*ReplayFile, error) {
	params := NewEstimationParams()
	replay := &ReplayFile{}

	frameIdx := -1
	for {
		img, err := reader.NextFrame()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, err
		}
		frameIdx++
		if options.EndFrame > 0 && frameIdx > options.EndFrame {
			break
		}
		if frameIdx < options.StartFrame {
			continue
		}

		if img.Height > options.MaxVideoHeight && options.MaxVideoHeight > 0 {
			newWidth, newHeight := videox.ScaledSize(img.Width, img.Height, options.MaxVideoHeight)
			img = cimg.ResizeNew(img, newWidth, newHeight, nil)
		}

		// assume all frames are the same size
		replay.Width = img.Width
		replay.Height = img.Height

		keypoints, err := estimator.EstimateSinglePose(ctx, &videox.Frame{Index: frameIdx, Image: img}, params)
		if err != nil {
			return nil, fmt.Errorf("Frame %v: %w", frameIdx, err)
		}
		if len(keypoints) == 0 || keypoints.MeanScore() < options.MinPoseScore {
			continue
		}
		replay.Frames = append(replay.Frames, &ReplayFrame{
			Frame:     frameIdx,
			Keypoints: keypoints,
		})
		if options.StdOutProgress {
			fmt.Printf("%v: %v keypoints, mean score %.2f\n", frameIdx, len(keypoints), keypoints.MeanScore())
		}
	}

	return replay, nil
}
