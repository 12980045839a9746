package pose

import "github.com/chewxy/math32"

const DefaultMinConfidence = 0.6

// Maximum vertical distance (in pixels) between wrist and shoulder, for an arm to count as straight
const TPoseMaxArmDeltaY = 50

// IsTPose returns true if both wrists are level with their shoulders.
// Only the vertical distance is checked. Elbows, and the horizontal position of the wrists, are ignored.
// If any of the four parts is missing, or has a score of minConfidence or less, the result is false.
func IsTPose(keypoints KeypointSet, minConfidence float32) bool {
	leftWrist, ok1 := keypoints.Find(LeftWrist)
	rightWrist, ok2 := keypoints.Find(RightWrist)
	leftShoulder, ok3 := keypoints.Find(LeftShoulder)
	rightShoulder, ok4 := keypoints.Find(RightShoulder)
	if !(ok1 && ok2 && ok3 && ok4) {
		return false
	}

	if leftWrist.Score <= minConfidence ||
		rightWrist.Score <= minConfidence ||
		leftShoulder.Score <= minConfidence ||
		rightShoulder.Score <= minConfidence {
		return false
	}

	leftArmStraight := math32.Abs(leftWrist.Position.Y-leftShoulder.Position.Y) < TPoseMaxArmDeltaY
	rightArmStraight := math32.Abs(rightWrist.Position.Y-rightShoulder.Position.Y) < TPoseMaxArmDeltaY
	return leftArmStraight && rightArmStraight
}
