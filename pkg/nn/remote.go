package nn

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/bmharper/cimg/v2"
	"github.com/cyclopcam/posecam/pkg/pose"
	"github.com/cyclopcam/posecam/pkg/videox"
)

var ErrNoFrame = errors.New("No video frame to estimate")

// Response of a pose service.
// SYNC-POSE-SERVICE-RESPONSE
type PoseServiceResponse struct {
	Poses []Pose `json:"poses"`
}

// RemoteEstimator sends frames to an HTTP pose estimation service.
// The frame is POSTed as a JPEG, and the service replies with a PoseServiceResponse.
type RemoteEstimator struct {
	URL         string
	JPEGQuality int
	client      *http.Client
}

const DefaultJPEGQuality = 85

// Create a new RemoteEstimator. A timeout of zero means wait forever.
func NewRemoteEstimator(serviceURL string, timeout time.Duration) (*RemoteEstimator, error) {
	u, err := url.Parse(serviceURL)
	if err != nil {
		return nil, fmt.Errorf("Invalid pose service URL '%v': %w", serviceURL, err)
	}
	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("Invalid pose service URL '%v': scheme must be http or https", serviceURL)
	}
	return &RemoteEstimator{
		URL:         serviceURL,
		JPEGQuality: DefaultJPEGQuality,
		client: &http.Client{
			Timeout: timeout,
		},
	}, nil
}

func (r *RemoteEstimator) Close() {
	r.client.CloseIdleConnections()
}

func (r *RemoteEstimator) EstimateSinglePose(ctx context.Context, frame *videox.Frame, params *EstimationParams) (pose.KeypointSet, error) {
	if frame == nil || frame.Image == nil {
		return nil, ErrNoFrame
	}
	if params == nil {
		params = NewEstimationParams()
	}
	jpg, err := cimg.Compress(frame.Image, cimg.MakeCompressParams(cimg.Sampling420, r.JPEGQuality, 0))
	if err != nil {
		return nil, fmt.Errorf("Failed to compress frame %v: %w", frame.Index, err)
	}

	u, _ := url.Parse(r.URL)
	q := u.Query()
	q.Set("flipHorizontal", strconv.FormatBool(params.FlipHorizontal))
	u.RawQuery = q.Encode()

	req, err := http.NewRequestWithContext(ctx, "POST", u.String(), bytes.NewReader(jpg))
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", "image/jpeg")
	resp, err := r.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("Pose service request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode/100 != 2 {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("Pose service HTTP error %v (%v)", resp.Status, string(msg))
	}
	if resp.StatusCode == http.StatusNoContent {
		return pose.KeypointSet{}, nil
	}

	result := PoseServiceResponse{}
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("Failed to decode pose service response: %w", err)
	}
	best := MostSalient(result.Poses)
	if best == nil {
		return pose.KeypointSet{}, nil
	}
	if err := best.Keypoints.Validate(); err != nil {
		return nil, fmt.Errorf("Invalid pose service response: %w", err)
	}
	return best.Keypoints, nil
}
