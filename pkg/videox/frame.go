package videox

import (
	"fmt"
	"image"
	"time"

	"github.com/bmharper/cimg/v2"
)

// Frame is a decoded video frame
type Frame struct {
	Index int           // Zero-based frame number in the video
	PTS   time.Duration // Presentation time, relative to the start of the video
	Image *cimg.Image   // Usually RGB, but any format that cimg can convert is accepted
}

func (f *Frame) Width() int {
	return f.Image.Width
}

func (f *Frame) Height() int {
	return f.Image.Height
}

// ToImage copies the frame into a Go image, for drawing onto a render surface
func (f *Frame) ToImage() (image.Image, error) {
	if f.Image == nil {
		return nil, fmt.Errorf("Frame %v has no pixels", f.Index)
	}
	return f.Image.ToImage()
}
