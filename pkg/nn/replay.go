package nn

import (
	"context"
	"encoding/json"
	"fmt"
	"os"

	"github.com/cyclopcam/posecam/pkg/pose"
	"github.com/cyclopcam/posecam/pkg/videox"
)

// ReplayFile holds precomputed keypoints for the frames of a video.
// This is useful for testing, and for running without a pose service.
type ReplayFile struct {
	Width  int            `json:"width"`  // Width of the video that the keypoints were computed on
	Height int            `json:"height"` // Height of the video that the keypoints were computed on
	Frames []*ReplayFrame `json:"frames"`
}

type ReplayFrame struct {
	Frame     int              `json:"frame"` // Frame number
	Keypoints pose.KeypointSet `json:"keypoints"`
}

// ReplayEstimator returns keypoints from a ReplayFile, by frame number.
// Frames that are not in the file produce an empty KeypointSet.
// If the video is decoded at a different size to the one recorded in the file,
// then keypoints are scaled to match the frame.
type ReplayEstimator struct {
	width   int
	height  int
	byFrame map[int]pose.KeypointSet
}

// Load a replay file from JSON
func LoadReplayFile(filename string) (*ReplayFile, error) {
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, err
	}
	rf := &ReplayFile{}
	if err := json.Unmarshal(raw, rf); err != nil {
		return nil, fmt.Errorf("Error loading keypoints from %v: %w", filename, err)
	}
	return rf, nil
}

func NewReplayEstimator(rf *ReplayFile) (*ReplayEstimator, error) {
	r := &ReplayEstimator{
		width:   rf.Width,
		height:  rf.Height,
		byFrame: map[int]pose.KeypointSet{},
	}
	for _, f := range rf.Frames {
		if err := f.Keypoints.Validate(); err != nil {
			return nil, fmt.Errorf("Frame %v: %w", f.Frame, err)
		}
		if _, exists := r.byFrame[f.Frame]; exists {
			return nil, fmt.Errorf("Frame %v appears more than once", f.Frame)
		}
		r.byFrame[f.Frame] = f.Keypoints
	}
	return r, nil
}

func (r *ReplayEstimator) Close() {
}

func (r *ReplayEstimator) EstimateSinglePose(ctx context.Context, frame *videox.Frame, params *EstimationParams) (pose.KeypointSet, error) {
	if frame == nil {
		return nil, ErrNoFrame
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	keypoints := r.byFrame[frame.Index]
	if keypoints == nil {
		return pose.KeypointSet{}, nil
	}
	// Always work on a copy, so that callers can't modify our table
	keypoints = append(pose.KeypointSet{}, keypoints...)
	width := r.width
	if frame.Image != nil {
		width = frame.Width()
		if r.width > 0 && r.height > 0 && (frame.Width() != r.width || frame.Height() != r.height) {
			sx := float32(frame.Width()) / float32(r.width)
			sy := float32(frame.Height()) / float32(r.height)
			for i := range keypoints {
				keypoints[i].Position.X *= sx
				keypoints[i].Position.Y *= sy
			}
		}
	}
	if params != nil && params.FlipHorizontal {
		return FlipKeypoints(keypoints, width), nil
	}
	return keypoints, nil
}
