package main

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/posecam/pkg/nn"
	"github.com/cyclopcam/posecam/pkg/nnload"
	"github.com/cyclopcam/posecam/pkg/videox"
)

// labelvideo runs a pose service over every frame of a video, and writes a keypoints file
// that posecam can replay with --keypoints.

func check(err error) {
	if err != nil {
		panic(err)
	}
}

func main() {
	parser := argparse.NewParser("labelvideo", "Estimate poses for every frame of a video")
	input := parser.String("i", "input", &argparse.Options{Help: "Input video file", Required: true})
	output := parser.File("o", "output", os.O_RDWR|os.O_CREATE|os.O_TRUNC, 0664, &argparse.Options{Help: "Output keypoints file", Required: true})
	estimatorURL := parser.String("", "estimator", &argparse.Options{Help: "URL of pose estimation service", Required: true})
	maxVideoHeight := parser.Int("", "vheight", &argparse.Options{Help: "If video height is larger than this, then scale it down to this size", Required: false, Default: 0})
	startFrame := parser.Int("", "startframe", &argparse.Options{Help: "Start processing at frame", Required: false, Default: 0})
	endFrame := parser.Int("", "endframe", &argparse.Options{Help: "Stop processing at frame", Required: false, Default: 0})
	minScore := parser.Float("", "minscore", &argparse.Options{Help: "Leave out frames where the mean keypoint score is lower than this", Required: false, Default: 0.0})
	timeout := parser.Float("", "timeout", &argparse.Options{Help: "Seconds to wait for each frame (0 = forever)", Required: false, Default: 0.0})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, _ := logs.NewLog()

	estimator, err := nnload.LoadEstimator(logger, nnload.EstimatorOptions{
		ServiceURL: *estimatorURL,
		Timeout:    time.Duration(*timeout * float64(time.Second)),
	})
	check(err)
	defer estimator.Close()

	info, err := videox.ProbeVideo(*input)
	check(err)
	// The reader does the scaling, which is much faster than scaling each frame ourselves
	reader, err := videox.NewFFmpegReader(*input, info, *maxVideoHeight)
	check(err)
	defer reader.Close()

	options := nn.InferenceOptions{
		StartFrame:     *startFrame,
		EndFrame:       *endFrame,
		MinPoseScore:   float32(*minScore),
		StdOutProgress: true,
	}
	replay, err := nn.RunEstimatorOnVideo(context.Background(), estimator, reader, options)
	check(err)

	encoder := json.NewEncoder(output)
	encoder.SetIndent("", "  ")
	err = encoder.Encode(replay)
	check(err)
}
