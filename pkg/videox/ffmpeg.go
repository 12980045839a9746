package videox

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"strconv"
	"strings"
	"time"

	"github.com/bmharper/cimg/v2"
)

// FrameReader produces decoded frames from a video, in order.
// NextFrame returns io.EOF after the last frame.
type FrameReader interface {
	NextFrame() (*cimg.Image, error)
	Close() error
}

// VideoInfo is the subset of ffprobe output that we care about
type VideoInfo struct {
	Width    int
	Height   int
	FPS      float64
	Duration time.Duration
}

const DefaultFPS = 30

type ffprobeOutput struct {
	Streams []struct {
		Width        int    `json:"width"`
		Height       int    `json:"height"`
		RFrameRate   string `json:"r_frame_rate"`
		AvgFrameRate string `json:"avg_frame_rate"`
	} `json:"streams"`
	Format struct {
		Duration string `json:"duration"`
	} `json:"format"`
}

// ProbeVideo runs ffprobe to find the dimensions, frame rate, and duration of the first video stream
func ProbeVideo(filename string) (*VideoInfo, error) {
	args := []string{
		"-v",
		"error",
		"-select_streams",
		"v:0",
		"-show_entries",
		"stream=width,height,r_frame_rate,avg_frame_rate:format=duration",
		"-of",
		"json",
		filename,
	}
	out, err := RunAppOutput("ffprobe", args)
	if err != nil {
		return nil, err
	}
	return parseProbeOutput(out)
}

func parseProbeOutput(out []byte) (*VideoInfo, error) {
	// Some systems print a line such as "Warning: using insecure memory!" before the JSON
	if start := strings.IndexByte(string(out), '{'); start > 0 {
		out = out[start:]
	}
	probe := ffprobeOutput{}
	if err := json.Unmarshal(out, &probe); err != nil {
		return nil, fmt.Errorf("Unable to parse ffprobe output: %w (%v)", err, string(out))
	}
	if len(probe.Streams) == 0 {
		return nil, errors.New("No video stream found")
	}
	s := probe.Streams[0]
	if s.Width <= 0 || s.Height <= 0 {
		return nil, fmt.Errorf("Invalid video dimensions %v x %v", s.Width, s.Height)
	}
	info := &VideoInfo{
		Width:  s.Width,
		Height: s.Height,
	}
	info.FPS = parseFrameRate(s.AvgFrameRate)
	if info.FPS == 0 {
		info.FPS = parseFrameRate(s.RFrameRate)
	}
	if info.FPS == 0 {
		info.FPS = DefaultFPS
	}
	if seconds, err := strconv.ParseFloat(probe.Format.Duration, 64); err == nil {
		info.Duration = time.Duration(seconds * float64(time.Second))
	}
	return info, nil
}

// Parse an ffmpeg rational such as "30000/1001". Returns 0 if unparseable.
func parseFrameRate(s string) float64 {
	num, den, found := strings.Cut(s, "/")
	n, err := strconv.ParseFloat(num, 64)
	if err != nil {
		return 0
	}
	if !found {
		return n
	}
	d, err := strconv.ParseFloat(den, 64)
	if err != nil || d == 0 {
		return 0
	}
	return n / d
}

// Returns the size that a video of width x height should be decoded at, so that the
// height is not greater than maxHeight. Width is kept even, because ffmpeg's scaler
// insists on it for most pixel formats.
func ScaledSize(width, height, maxHeight int) (int, int) {
	if maxHeight <= 0 || height <= maxHeight {
		return width, height
	}
	aspect := float64(width) / float64(height)
	newHeight := maxHeight
	newWidth := int(float64(newHeight)*aspect+0.5) &^ 1
	return max(newWidth, 2), newHeight
}

// FFmpegReader decodes a video file by piping raw RGB frames out of an ffmpeg process
type FFmpegReader struct {
	Width  int
	Height int

	cmd    *exec.Cmd
	stdout io.ReadCloser
}

// NewFFmpegReader starts ffmpeg on the given file.
// If maxHeight is non-zero, frames are scaled down so that they are no taller than maxHeight.
func NewFFmpegReader(filename string, info *VideoInfo, maxHeight int) (*FFmpegReader, error) {
	appPath, err := exec.LookPath("ffmpeg")
	if err != nil {
		return nil, fmt.Errorf("Unable to find 'ffmpeg' in your path (%w)", err)
	}
	width, height := ScaledSize(info.Width, info.Height, maxHeight)
	args := []string{
		"-v",
		"error",
		"-i",
		filename,
		"-an",
	}
	if width != info.Width || height != info.Height {
		args = append(args, "-vf", fmt.Sprintf("scale=%v:%v", width, height))
	}
	args = append(args,
		"-f",
		"rawvideo",
		"-pix_fmt",
		"rgb24",
		"pipe:1",
	)
	cmd := exec.Command(appPath, args...)
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, fmt.Errorf("Failed to start ffmpeg: %w", err)
	}
	return &FFmpegReader{
		Width:  width,
		Height: height,
		cmd:    cmd,
		stdout: stdout,
	}, nil
}

func (r *FFmpegReader) NextFrame() (*cimg.Image, error) {
	img := cimg.NewImage(r.Width, r.Height, cimg.PixelFormatRGB)
	_, err := io.ReadFull(r.stdout, img.Pixels)
	if errors.Is(err, io.ErrUnexpectedEOF) {
		// A truncated final frame is treated as the end of the video
		return nil, io.EOF
	}
	if err != nil {
		return nil, err
	}
	return img, nil
}

func (r *FFmpegReader) Close() error {
	r.stdout.Close()
	if r.cmd.ProcessState == nil {
		r.cmd.Process.Kill()
	}
	// Wait returns an error because we killed the process, which is expected
	r.cmd.Wait()
	return nil
}

// app_name is an executable, such as "ffmpeg" or "ffprobe"
// args must not include the executable name as the first parameter
// Returns stdout. On failure, stderr is included in the error.
func RunAppOutput(app_name string, args []string) ([]byte, error) {
	app_path, err := exec.LookPath(app_name)
	if err != nil {
		return nil, fmt.Errorf("Unable to find '%v' in your path (%w)", app_name, err)
	}
	cmd := exec.Command(app_path, args...)
	out, err := cmd.Output()
	if err != nil {
		errStr := ""
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			errStr = string(exitErr.Stderr)
		}
		return nil, fmt.Errorf("%v execution failed: %w (%v)", app_name, err, errStr)
	}
	return out, nil
}
