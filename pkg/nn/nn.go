package nn

import (
	"context"

	"github.com/cyclopcam/posecam/pkg/pose"
	"github.com/cyclopcam/posecam/pkg/videox"
)

// Package nn is the pose estimation interface layer.
// To create an estimator from configuration, use the nnload package.

// Pose estimation parameters
type EstimationParams struct {
	FlipHorizontal bool // Mirror keypoints horizontally (for selfie cameras). We leave this false for video files.
}

func NewEstimationParams() *EstimationParams {
	return &EstimationParams{
		FlipHorizontal: false,
	}
}

// PoseEstimator is given a video frame, and returns the keypoints of the most salient person in it.
type PoseEstimator interface {
	// Close releases any resources held by the estimator
	Close()

	// EstimateSinglePose may take a long time relative to the video frame rate.
	// If nobody is found, the result is an empty KeypointSet, and not an error.
	// Parts that the model cannot see may be absent from the result.
	EstimateSinglePose(ctx context.Context, frame *videox.Frame, params *EstimationParams) (pose.KeypointSet, error)
}

// Pose is one person, as reported by a multi-person pose model
type Pose struct {
	Score     float32          `json:"score"`
	Keypoints pose.KeypointSet `json:"keypoints"`
}

// MostSalient returns the pose with the highest score, or nil if poses is empty
func MostSalient(poses []Pose) *Pose {
	var best *Pose
	for i := range poses {
		if best == nil || poses[i].Score > best.Score {
			best = &poses[i]
		}
	}
	return best
}

// FlipKeypoints mirrors the X coordinate of every keypoint, for an image of the given width.
// A new set is returned.
func FlipKeypoints(keypoints pose.KeypointSet, imageWidth int) pose.KeypointSet {
	flipped := make(pose.KeypointSet, len(keypoints))
	for i, k := range keypoints {
		k.Position.X = float32(imageWidth) - k.Position.X
		flipped[i] = k
	}
	return flipped
}
