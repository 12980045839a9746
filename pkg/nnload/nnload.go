package nnload

// Package nnload picks a concrete pose estimator (remote service or replay file)
// from configuration, so that callers only need to know about the nn interface layer.

import (
	"errors"
	"fmt"
	"time"

	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/posecam/pkg/nn"
)

var ErrNoEstimator = errors.New("No pose estimator configured. Specify a pose service URL or a keypoints file")

type EstimatorOptions struct {
	ServiceURL  string        // URL of an HTTP pose service
	ReplayFile  string        // JSON file with precomputed keypoints
	Timeout     time.Duration // Timeout for each request to the pose service (0 = wait forever)
	JPEGQuality int           // JPEG quality of frames sent to the pose service (0 = default)
}

// LoadEstimator creates the estimator described by options.
// If both a replay file and a service URL are given, the replay file wins.
func LoadEstimator(logger logs.Log, options EstimatorOptions) (nn.PoseEstimator, error) {
	if options.ReplayFile != "" {
		rf, err := nn.LoadReplayFile(options.ReplayFile)
		if err != nil {
			return nil, err
		}
		est, err := nn.NewReplayEstimator(rf)
		if err != nil {
			return nil, fmt.Errorf("Invalid keypoints file %v: %w", options.ReplayFile, err)
		}
		logger.Infof("Replaying keypoints for %v frames from %v", len(rf.Frames), options.ReplayFile)
		return est, nil
	}
	if options.ServiceURL != "" {
		est, err := nn.NewRemoteEstimator(options.ServiceURL, options.Timeout)
		if err != nil {
			return nil, err
		}
		if options.JPEGQuality != 0 {
			est.JPEGQuality = options.JPEGQuality
		}
		logger.Infof("Using pose service at %v", options.ServiceURL)
		return est, nil
	}
	return nil, ErrNoEstimator
}
