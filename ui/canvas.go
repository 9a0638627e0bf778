package ui

import (
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"

	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"github.com/wippyai/scripthost/console"
)

// Canvas size in pixels.
const (
	CanvasWidth  = 128
	CanvasHeight = 64
)

const canvasInset = 2

// Canvas draws view content onto a monochrome pixel surface.
type Canvas struct {
	face   *basicfont.Face
	Width  int
	Height int
}

// NewCanvas returns a 128x64 canvas using the 7x13 bitmap face.
func NewCanvas() *Canvas {
	return &Canvas{face: basicfont.Face7x13, Width: CanvasWidth, Height: CanvasHeight}
}

// Columns is the number of glyphs per text row.
func (c *Canvas) Columns() int {
	return max((c.Width-2*canvasInset)/c.face.Advance, 1)
}

// Rows is the number of text rows inside the frame.
func (c *Canvas) Rows() int {
	return max((c.Height-2*canvasInset)/c.face.Height, 1)
}

// Render draws view v over console state c.
func (c *Canvas) Render(v View, cv console.View) *image.Gray {
	var ct Content
	if v.Content != nil {
		ct = v.Content(cv)
	}
	return c.Draw(ct)
}

// Draw lays ct out the same way Renderer does, in glyph cells.
func (c *Canvas) Draw(ct Content) *image.Gray {
	img := image.NewGray(image.Rect(0, 0, c.Width, c.Height))
	for i := range img.Pix {
		img.Pix[i] = 0xff
	}
	c.frame(img)

	cols, rows := c.Columns(), c.Rows()

	type row struct {
		text   string
		indent int
	}
	var lines []row
	if ct.Title != "" {
		for _, l := range wrapCells(ct.Title, cols) {
			lines = append(lines, row{text: l, indent: (cols - len([]rune(l))) / 2})
		}
	}
	if body := strings.TrimSuffix(ct.Body, "\n"); body != "" {
		x := 0
		if ct.Anchor {
			for range clamp(ct.Y, 0, rows-1) {
				lines = append(lines, row{})
			}
			x = clamp(ct.X, 0, cols-1)
		}
		for _, l := range wrapCells(body, cols-x) {
			indent := x
			if ct.Align == AlignCenter {
				indent += (cols - x - len([]rune(l))) / 2
			}
			lines = append(lines, row{text: l, indent: indent})
		}
	}
	if len(lines) > rows {
		lines = lines[len(lines)-rows:]
	}

	d := font.Drawer{Dst: img, Src: image.Black, Face: c.face}
	for i, l := range lines {
		if l.text == "" {
			continue
		}
		d.Dot = fixed.P(canvasInset+l.indent*c.face.Advance, canvasInset+i*c.face.Height+c.face.Ascent)
		d.DrawString(l.text)
	}
	return img
}

func (c *Canvas) frame(img *image.Gray) {
	black := color.Gray{}
	for x := 0; x < c.Width; x++ {
		img.SetGray(x, 0, black)
		img.SetGray(x, c.Height-1, black)
	}
	for y := 0; y < c.Height; y++ {
		img.SetGray(0, y, black)
		img.SetGray(c.Width-1, y, black)
	}
}

// EncodePNG writes img as PNG.
func EncodePNG(w io.Writer, img image.Image) error {
	return png.Encode(w, img)
}

// wrapCells splits text into lines of at most cols runes, breaking at
// newlines first.
func wrapCells(text string, cols int) []string {
	cols = max(cols, 1)
	var out []string
	for _, line := range strings.Split(text, "\n") {
		r := []rune(line)
		if len(r) == 0 {
			out = append(out, "")
			continue
		}
		for len(r) > cols {
			out = append(out, string(r[:cols]))
			r = r[cols:]
		}
		out = append(out, string(r))
	}
	return out
}
