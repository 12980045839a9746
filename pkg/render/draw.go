package render

import (
	"fmt"
	"image"
	"image/color"

	"github.com/cyclopcam/posecam/pkg/pose"
)

// Overlay styling
var (
	KeypointColor = color.RGBA{0, 0, 255, 255}   // blue
	SkeletonColor = color.RGBA{0, 255, 255, 255} // aqua
	LabelColor    = KeypointColor
)

const (
	KeypointRadius    = 5
	KeypointLabelSize = 10
	KeypointLabelDX   = 6
	KeypointLabelDY   = -6
	SkeletonLineWidth = 2

	TPoseLabel     = "T Pose Detectada"
	TPoseLabelX    = 10
	TPoseLabelY    = 50
	TPoseLabelSize = 20
)

// DrawFrame clears the surface, and stretches frame over all of it
func DrawFrame(s Surface, frame image.Image) {
	s.Clear()
	if frame != nil {
		s.DrawFrame(frame)
	}
}

// KeypointLabel returns the text drawn next to a keypoint, eg "leftWrist (0.87)"
func KeypointLabel(k pose.Keypoint) string {
	return fmt.Sprintf("%v (%.2f)", k.Part, k.Score)
}

// DrawKeypoints draws a dot and a label for every keypoint, regardless of score.
// Labels are not de-conflicted, so they may overlap.
func DrawKeypoints(s Surface, keypoints pose.KeypointSet) {
	for _, k := range keypoints {
		x := float64(k.Position.X)
		y := float64(k.Position.Y)
		s.FillCircle(x, y, KeypointRadius, KeypointColor)
		s.FillText(KeypointLabel(k), x+KeypointLabelDX, y+KeypointLabelDY, KeypointLabelSize, KeypointColor)
	}
}

// DrawSkeleton draws a line segment for every pair
func DrawSkeleton(s Surface, pairs []pose.AdjacentPair) {
	for _, p := range pairs {
		a := p[0].Position
		b := p[1].Position
		s.StrokeLine(float64(a.X), float64(a.Y), float64(b.X), float64(b.Y), SkeletonLineWidth, SkeletonColor)
	}
}

func DrawTPoseLabel(s Surface) {
	s.FillText(TPoseLabel, TPoseLabelX, TPoseLabelY, TPoseLabelSize, LabelColor)
}

// RenderFrame draws one complete frame: the video frame, keypoints, skeleton, and
// the T-pose label if the pose qualifies. Returns the T-pose classification.
func RenderFrame(s Surface, frame image.Image, keypoints pose.KeypointSet, minConfidence float32) (isTPose bool, numPairs int) {
	DrawFrame(s, frame)
	DrawKeypoints(s, keypoints)
	pairs := pose.AdjacentPairs(keypoints, minConfidence)
	DrawSkeleton(s, pairs)
	isTPose = pose.IsTPose(keypoints, minConfidence)
	if isTPose {
		DrawTPoseLabel(s)
	}
	return isTPose, len(pairs)
}
