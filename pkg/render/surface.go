package render

import (
	"image"
	"image/color"
	"io"
	"sync"

	"github.com/fogleman/gg"
	"github.com/golang/freetype/truetype"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
)

// Surface is a 2D drawing target that the frame renderer owns.
// Coordinates are in pixels, with the origin at the top-left.
type Surface interface {
	Width() int
	Height() int

	// Clear the whole surface to transparent
	Clear()

	// Draw img stretched to fill the whole surface
	DrawFrame(img image.Image)

	FillCircle(x, y, radius float64, c color.Color)
	StrokeLine(x1, y1, x2, y2, lineWidth float64, c color.Color)

	// Draw text with its baseline starting at (x, y)
	FillText(text string, x, y, sizePx float64, c color.Color)

	// The current contents of the surface
	Image() image.Image
}

// Canvas is a Surface backed by a gg context
type Canvas struct {
	dc    *gg.Context
	faces map[float64]font.Face
}

var fontOnce sync.Once
var fontRegular *truetype.Font
var fontErr error

func loadFont() (*truetype.Font, error) {
	fontOnce.Do(func() {
		fontRegular, fontErr = truetype.Parse(goregular.TTF)
	})
	return fontRegular, fontErr
}

// NewCanvas creates a transparent canvas of the given size
func NewCanvas(width, height int) (*Canvas, error) {
	if _, err := loadFont(); err != nil {
		return nil, err
	}
	return &Canvas{
		dc:    gg.NewContext(width, height),
		faces: map[float64]font.Face{},
	}, nil
}

func (c *Canvas) Width() int {
	return c.dc.Width()
}

func (c *Canvas) Height() int {
	return c.dc.Height()
}

func (c *Canvas) Clear() {
	c.dc.SetColor(color.Transparent)
	c.dc.Clear()
}

func (c *Canvas) DrawFrame(img image.Image) {
	b := img.Bounds()
	if b.Dx() == 0 || b.Dy() == 0 {
		return
	}
	c.dc.Push()
	c.dc.Scale(float64(c.Width())/float64(b.Dx()), float64(c.Height())/float64(b.Dy()))
	c.dc.DrawImage(img, -b.Min.X, -b.Min.Y)
	c.dc.Pop()
}

func (c *Canvas) FillCircle(x, y, radius float64, col color.Color) {
	c.dc.DrawCircle(x, y, radius)
	c.dc.SetColor(col)
	c.dc.Fill()
}

func (c *Canvas) StrokeLine(x1, y1, x2, y2, lineWidth float64, col color.Color) {
	c.dc.DrawLine(x1, y1, x2, y2)
	c.dc.SetLineWidth(lineWidth)
	c.dc.SetColor(col)
	c.dc.Stroke()
}

func (c *Canvas) FillText(text string, x, y, sizePx float64, col color.Color) {
	c.dc.SetFontFace(c.face(sizePx))
	c.dc.SetColor(col)
	c.dc.DrawString(text, x, y)
}

func (c *Canvas) Image() image.Image {
	return c.dc.Image()
}

func (c *Canvas) EncodePNG(w io.Writer) error {
	return c.dc.EncodePNG(w)
}

// gg renders at 72 DPI, so points and pixels are the same
func (c *Canvas) face(sizePx float64) font.Face {
	if f, ok := c.faces[sizePx]; ok {
		return f
	}
	f := truetype.NewFace(fontRegular, &truetype.Options{Size: sizePx})
	c.faces[sizePx] = f
	return f
}
