package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/cyclopcam/posecam/pkg/pose"
	"gopkg.in/yaml.v2"
)

type Estimator struct {
	URL            string  `json:"url" yaml:"url"`                       // Pose service, eg http://localhost:9000/pose
	KeypointsFile  string  `json:"keypointsFile" yaml:"keypointsFile"`   // Precomputed keypoints (instead of a pose service)
	TimeoutSeconds float64 `json:"timeoutSeconds" yaml:"timeoutSeconds"` // Per-frame timeout. 0 = wait forever.
	JPEGQuality    int     `json:"jpegQuality" yaml:"jpegQuality"`       // Quality of frames sent to the pose service
}

type Config struct {
	Estimator         Estimator `json:"estimator" yaml:"estimator"`
	MinConfidence     float32   `json:"minConfidence" yaml:"minConfidence"`         // Keypoint score threshold for the skeleton and T-pose check
	RefreshRate       float64   `json:"refreshRate" yaml:"refreshRate"`             // Frames per second that we attempt to process
	MaxVideoHeight    int       `json:"maxVideoHeight" yaml:"maxVideoHeight"`       // Downscale video to this height before processing (0 = native)
	OutputDir         string    `json:"outputDir" yaml:"outputDir"`                 // Where pose.png is written
	HTTPListen        string    `json:"httpListen" yaml:"httpListen"`               // eg ":8080". Empty = no HTTP server
	SnapshotRateLimit int       `json:"snapshotRateLimit" yaml:"snapshotRateLimit"` // Max snapshot downloads per minute, per client IP
}

func DefaultConfig() *Config {
	return &Config{
		MinConfidence:     pose.DefaultMinConfidence,
		RefreshRate:       60,
		MaxVideoHeight:    480,
		OutputDir:         ".",
		SnapshotRateLimit: 30,
	}
}

// EstimateTimeout returns the estimator timeout as a Duration
func (c *Config) EstimateTimeout() time.Duration {
	return time.Duration(c.Estimator.TimeoutSeconds * float64(time.Second))
}

func (c *Config) Validate() error {
	if c.MinConfidence < 0 || c.MinConfidence > 1 {
		return fmt.Errorf("minConfidence must be between 0 and 1 (got %v)", c.MinConfidence)
	}
	if c.RefreshRate <= 0 {
		return fmt.Errorf("refreshRate must be positive (got %v)", c.RefreshRate)
	}
	if c.MaxVideoHeight < 0 {
		return fmt.Errorf("maxVideoHeight may not be negative (got %v)", c.MaxVideoHeight)
	}
	if c.Estimator.TimeoutSeconds < 0 {
		return fmt.Errorf("estimator.timeoutSeconds may not be negative (got %v)", c.Estimator.TimeoutSeconds)
	}
	return nil
}

// LoadConfig reads a JSON or YAML config file (chosen by extension). Fields that are missing from
// the file keep their defaults. An empty filename returns the defaults.
func LoadConfig(filename string) (*Config, error) {
	cfg := DefaultConfig()
	if filename == "" {
		return cfg, nil
	}
	raw, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("Error loading %v: %w", filename, err)
	}
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("Error loading as YAML %v: %w", filename, err)
		}
	default:
		if err := json.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("Error loading as JSON %v: %w", filename, err)
		}
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid config %v: %w", filename, err)
	}
	return cfg, nil
}
