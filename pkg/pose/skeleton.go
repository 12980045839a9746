package pose

// Skeleton is the fixed table of connected parts that we draw segments between.
// This is the same connectivity that PoseNet uses.
var Skeleton = [][2]Part{
	{LeftHip, LeftShoulder},
	{LeftElbow, LeftShoulder},
	{LeftElbow, LeftWrist},
	{LeftHip, LeftKnee},
	{LeftKnee, LeftAnkle},
	{RightHip, RightShoulder},
	{RightElbow, RightShoulder},
	{RightElbow, RightWrist},
	{RightHip, RightKnee},
	{RightKnee, RightAnkle},
	{LeftShoulder, RightShoulder},
	{LeftHip, RightHip},
}

// AdjacentPairs returns the connected keypoint pairs where both ends have a score
// greater than minConfidence. Pairs are returned in Skeleton order.
func AdjacentPairs(keypoints KeypointSet, minConfidence float32) []AdjacentPair {
	var byPart [NumParts]*Keypoint
	for i := range keypoints {
		if keypoints[i].Part.Valid() && byPart[keypoints[i].Part] == nil {
			byPart[keypoints[i].Part] = &keypoints[i]
		}
	}

	pairs := []AdjacentPair{}
	for _, link := range Skeleton {
		a := byPart[link[0]]
		b := byPart[link[1]]
		if a == nil || b == nil {
			continue
		}
		if a.Score <= minConfidence || b.Score <= minConfidence {
			continue
		}
		pairs = append(pairs, AdjacentPair{*a, *b})
	}
	return pairs
}
