package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/akamensky/argparse"
	"github.com/cyclopcam/logs"
	"github.com/cyclopcam/posecam/pkg/nnload"
	"github.com/cyclopcam/posecam/pkg/videox"
	"github.com/cyclopcam/posecam/server"
	"github.com/cyclopcam/posecam/server/config"
)

func main() {
	parser := argparse.NewParser("posecam", "Draw pose skeletons over a video, and detect T-poses")
	input := parser.String("i", "input", &argparse.Options{Help: "Video file", Default: ""})
	configFile := parser.String("c", "config", &argparse.Options{Help: "Config file (.json or .yaml)", Default: ""})
	estimatorURL := parser.String("", "estimator", &argparse.Options{Help: "URL of pose estimation service", Default: ""})
	keypointsFile := parser.String("", "keypoints", &argparse.Options{Help: "JSON file of precomputed keypoints (instead of a pose service)", Default: ""})
	minConfidence := parser.Float("", "minconfidence", &argparse.Options{Help: "Minimum keypoint score (0..1)", Default: -1.0})
	maxHeight := parser.Int("", "vheight", &argparse.Options{Help: "Downscale video to this height before processing (0 = native)", Default: -1})
	outputDir := parser.String("o", "output", &argparse.Options{Help: "Directory where pose.png is written", Default: ""})
	httpListen := parser.String("", "http", &argparse.Options{Help: "Run the HTTP API on this address, eg :8080", Default: ""})
	err := parser.Parse(os.Args)
	if err != nil {
		fmt.Print(parser.Usage(err))
		os.Exit(1)
	}

	logger, err := logs.NewLog()
	if err != nil {
		fmt.Printf("Failed to create logger: %v\n", err)
		os.Exit(1)
	}

	cfg, err := config.LoadConfig(*configFile)
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}
	// Command line overrides config file
	if *estimatorURL != "" {
		cfg.Estimator.URL = *estimatorURL
	}
	if *keypointsFile != "" {
		cfg.Estimator.KeypointsFile = *keypointsFile
	}
	if *minConfidence >= 0 {
		cfg.MinConfidence = float32(*minConfidence)
	}
	if *maxHeight >= 0 {
		cfg.MaxVideoHeight = *maxHeight
	}
	if *outputDir != "" {
		cfg.OutputDir = *outputDir
	}
	if *httpListen != "" {
		cfg.HTTPListen = *httpListen
	}
	if err := cfg.Validate(); err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	// Check this before we go to the trouble of connecting to a pose service
	if cfg.HTTPListen == "" && *input == "" {
		fmt.Println(videox.ErrNoVideoFile)
		os.Exit(1)
	}

	estimator, err := nnload.LoadEstimator(logger, nnload.EstimatorOptions{
		ServiceURL:  cfg.Estimator.URL,
		ReplayFile:  cfg.Estimator.KeypointsFile,
		Timeout:     cfg.EstimateTimeout(),
		JPEGQuality: cfg.Estimator.JPEGQuality,
	})
	if err != nil {
		logger.Errorf("%v", err)
		os.Exit(1)
	}

	srv := server.NewServer(logger, cfg, estimator)
	srv.ListenForKillSignals()

	if *input != "" {
		if _, err := srv.OpenAndAttach(*input); err != nil {
			srv.Shutdown(context.Background())
			if errors.Is(err, videox.ErrNoVideoFile) {
				fmt.Println(err)
			} else {
				logger.Errorf("%v", err)
			}
			os.Exit(1)
		}
	}

	if cfg.HTTPListen != "" {
		if err := srv.ListenHTTP(cfg.HTTPListen); err != nil {
			logger.Errorf("%v", err)
			srv.Shutdown(context.Background())
			os.Exit(1)
		}
		<-srv.ShutdownComplete
		return
	}

	os.Exit(runToEnd(logger, srv))
}

// Play the attached video until it ends (or the estimator fails), then save the last frame.
// Returns the process exit code.
func runToEnd(logger logs.Log, srv *server.Server) int {
	defer srv.Shutdown(context.Background())
	start := time.Now()
	if err := srv.Play(); err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	srv.Monitor.Wait()

	stats := srv.Monitor.Stats()
	logger.Infof("Processed %v frames in %.1f seconds (average estimate time %v)", stats.FramesProcessed, time.Since(start).Seconds(), stats.EstimateAverage)
	if err := srv.Monitor.Err(); err != nil {
		logger.Errorf("%v", err)
		return 1
	}
	path, err := srv.Monitor.SaveSnapshot(srv.Config.OutputDir)
	if err != nil {
		logger.Errorf("Failed to save snapshot: %v", err)
		return 1
	}
	logger.Infof("Saved %v", path)
	return 0
}
