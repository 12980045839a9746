package render

import (
	"image/png"
	"io"
	"path/filepath"

	"github.com/fogleman/gg"
)

// ExportFilename is the name of the snapshot file that we offer for download
const ExportFilename = "pose.png"

// pngEncoder is implemented by surfaces that can encode themselves, such as Canvas
type pngEncoder interface {
	EncodePNG(w io.Writer) error
}

// EncodePNG writes whatever is currently on the surface as a PNG
func EncodePNG(w io.Writer, s Surface) error {
	if enc, ok := s.(pngEncoder); ok {
		return enc.EncodePNG(w)
	}
	return png.Encode(w, s.Image())
}

// SavePNG writes the surface to dir/pose.png, and returns the full path
func SavePNG(dir string, s Surface) (string, error) {
	path := filepath.Join(dir, ExportFilename)
	return path, gg.SavePNG(path, s.Image())
}
