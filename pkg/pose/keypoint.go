package pose

import (
	"encoding/json"
	"fmt"
)

// Package pose holds the single-person body keypoint model, the skeleton topology,
// and the T-pose classifier.

// Part is a body part, numbered in PoseNet order
type Part int

const (
	Nose Part = iota
	LeftEye
	RightEye
	LeftEar
	RightEar
	LeftShoulder
	RightShoulder
	LeftElbow
	RightElbow
	LeftWrist
	RightWrist
	LeftHip
	RightHip
	LeftKnee
	RightKnee
	LeftAnkle
	RightAnkle
	NumParts
)

// SYNC-POSE-PART-NAMES
var partNames = [NumParts]string{
	"nose",
	"leftEye",
	"rightEye",
	"leftEar",
	"rightEar",
	"leftShoulder",
	"rightShoulder",
	"leftElbow",
	"rightElbow",
	"leftWrist",
	"rightWrist",
	"leftHip",
	"rightHip",
	"leftKnee",
	"rightKnee",
	"leftAnkle",
	"rightAnkle",
}

var partByName map[string]Part

func init() {
	partByName = map[string]Part{}
	for i, name := range partNames {
		partByName[name] = Part(i)
	}
}

func (p Part) String() string {
	if p < 0 || p >= NumParts {
		return fmt.Sprintf("part(%d)", int(p))
	}
	return partNames[p]
}

// Valid returns true if p is one of the known body parts
func (p Part) Valid() bool {
	return p >= 0 && p < NumParts
}

// ParsePart returns the part with the given name (eg "leftWrist")
func ParsePart(name string) (Part, error) {
	p, ok := partByName[name]
	if !ok {
		return 0, fmt.Errorf("Unknown body part '%v'", name)
	}
	return p, nil
}

func (p Part) MarshalJSON() ([]byte, error) {
	if !p.Valid() {
		return nil, fmt.Errorf("Invalid body part %d", int(p))
	}
	return json.Marshal(partNames[p])
}

func (p *Part) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err != nil {
		return err
	}
	parsed, err := ParsePart(name)
	if err != nil {
		return err
	}
	*p = parsed
	return nil
}

// Position in frame pixel space
type Position struct {
	X float32 `json:"x"`
	Y float32 `json:"y"`
}

// Keypoint is a single body part found by the pose estimator
type Keypoint struct {
	Part     Part     `json:"part"`
	Position Position `json:"position"`
	Score    float32  `json:"score"` // Confidence between 0 and 1
}

// KeypointSet is the pose of one subject in one frame.
// There is at most one Keypoint per Part.
type KeypointSet []Keypoint

// Find returns the keypoint for the given part, or false if the estimator did not report it.
func (s KeypointSet) Find(part Part) (Keypoint, bool) {
	for _, k := range s {
		if k.Part == part {
			return k, true
		}
	}
	return Keypoint{}, false
}

// Validate returns an error if a part is unknown or appears more than once
func (s KeypointSet) Validate() error {
	var seen [NumParts]bool
	for _, k := range s {
		if !k.Part.Valid() {
			return fmt.Errorf("Invalid body part %d", int(k.Part))
		}
		if seen[k.Part] {
			return fmt.Errorf("Body part %v appears more than once", k.Part)
		}
		seen[k.Part] = true
	}
	return nil
}

// MeanScore is the average confidence of all keypoints (0 for an empty set)
func (s KeypointSet) MeanScore() float32 {
	if len(s) == 0 {
		return 0
	}
	total := float32(0)
	for _, k := range s {
		total += k.Score
	}
	return total / float32(len(s))
}

// AdjacentPair is two anatomically connected keypoints (eg shoulder and elbow)
type AdjacentPair [2]Keypoint
