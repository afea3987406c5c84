// Package canvas is the raster surface the sync core draws onto. It follows
// 2D-context drawing conventions: round-capped strokes, an eraser that is a
// triple-width background stroke, circles centered on their start point, and
// text sized at eight pixels per width unit.
package canvas

import (
	"image"
	"image/color"
	"image/draw"
	"math"
	"strconv"

	xdraw "golang.org/x/image/draw"
	"golang.org/x/image/font"
	"golang.org/x/image/font/basicfont"
	"golang.org/x/image/math/fixed"

	"drawroom/internal/board"
)

var background = color.RGBA{R: 0xff, G: 0xff, B: 0xff, A: 0xff}

// Canvas is a fixed-size RGBA drawing surface.
type Canvas struct {
	img *image.RGBA
}

// New returns a canvas of the given size filled with the background color.
func New(width, height int) *Canvas {
	c := &Canvas{img: image.NewRGBA(image.Rect(0, 0, width, height))}
	c.Clear()
	return c
}

// Image exposes the backing pixels, e.g. for PNG export.
func (c *Canvas) Image() *image.RGBA { return c.img }

// Clear repaints the whole surface with the background color.
func (c *Canvas) Clear() {
	draw.Draw(c.img, c.img.Bounds(), image.NewUniform(background), image.Point{}, draw.Src)
}

// Snapshot deep-copies the current pixels.
func (c *Canvas) Snapshot() *image.RGBA {
	snap := image.NewRGBA(c.img.Bounds())
	copy(snap.Pix, c.img.Pix)
	return snap
}

// Restore overwrites the surface with a previously taken snapshot.
func (c *Canvas) Restore(snap *image.RGBA) {
	copy(c.img.Pix, snap.Pix)
}

// Apply renders one operation. Operations replay deterministically: the
// same sequence on a fresh canvas always produces identical pixels.
func (c *Canvas) Apply(op board.Op) {
	switch v := op.(type) {
	case board.Stroke:
		col, w := parseColor(v.Color), v.Width
		if v.Erase {
			col, w = background, v.Width*3
		}
		c.segment(v.X0, v.Y0, v.X1, v.Y1, w, col)
	case board.Shape:
		c.shape(v)
	case board.Text:
		c.text(v)
	case board.Clear:
		c.Clear()
	}
}

func (c *Canvas) shape(s board.Shape) {
	col := parseColor(s.Color)
	switch s.Kind {
	case board.ShapeLine:
		c.segment(s.StartX, s.StartY, s.EndX, s.EndY, s.Width, col)
	case board.ShapeRectangle:
		c.segment(s.StartX, s.StartY, s.EndX, s.StartY, s.Width, col)
		c.segment(s.EndX, s.StartY, s.EndX, s.EndY, s.Width, col)
		c.segment(s.EndX, s.EndY, s.StartX, s.EndY, s.Width, col)
		c.segment(s.StartX, s.EndY, s.StartX, s.StartY, s.Width, col)
	case board.ShapeCircle:
		r := math.Hypot(s.EndX-s.StartX, s.EndY-s.StartY)
		c.circle(s.StartX, s.StartY, r, s.Width, col)
	}
}

// segment draws a round-capped line by stamping discs along its length.
func (c *Canvas) segment(x0, y0, x1, y1, width float64, col color.RGBA) {
	r := math.Max(width/2, 0.5)
	dist := math.Hypot(x1-x0, y1-y0)
	steps := int(math.Ceil(dist*2)) + 1
	if steps < 2 {
		c.disc(x0, y0, r, col)
		return
	}
	for i := 0; i < steps; i++ {
		t := float64(i) / float64(steps-1)
		c.disc(x0+(x1-x0)*t, y0+(y1-y0)*t, r, col)
	}
}

func (c *Canvas) circle(cx, cy, radius, width float64, col color.RGBA) {
	r := math.Max(width/2, 0.5)
	steps := int(math.Ceil(2*math.Pi*radius)) + 8
	for i := 0; i < steps; i++ {
		a := 2 * math.Pi * float64(i) / float64(steps)
		c.disc(cx+radius*math.Cos(a), cy+radius*math.Sin(a), r, col)
	}
}

func (c *Canvas) disc(cx, cy, r float64, col color.RGBA) {
	b := c.img.Bounds()
	x0 := int(math.Floor(cx - r))
	x1 := int(math.Ceil(cx + r))
	y0 := int(math.Floor(cy - r))
	y1 := int(math.Ceil(cy + r))
	for y := y0; y <= y1; y++ {
		for x := x0; x <= x1; x++ {
			if x < b.Min.X || x >= b.Max.X || y < b.Min.Y || y >= b.Max.Y {
				continue
			}
			dx, dy := float64(x)+0.5-cx, float64(y)+0.5-cy
			if dx*dx+dy*dy <= r*r {
				c.img.SetRGBA(x, y, col)
			}
		}
	}
}

// text renders the string with the bitmap base face, then scales it so the
// glyph height lands at eight pixels per size unit with the baseline at Y.
func (c *Canvas) text(t board.Text) {
	if t.Text == "" {
		return
	}
	size := t.Size
	if size <= 0 {
		size = 2
	}
	face := basicfont.Face7x13
	w := font.MeasureString(face, t.Text).Ceil()
	if w <= 0 {
		return
	}
	mask := image.NewRGBA(image.Rect(0, 0, w, face.Height))
	d := &font.Drawer{
		Dst:  mask,
		Src:  image.NewUniform(parseColor(t.Color)),
		Face: face,
		Dot:  fixed.P(0, face.Ascent),
	}
	d.DrawString(t.Text)

	th := int(math.Round(size * 8))
	tw := w * th / face.Height
	if th <= 0 || tw <= 0 {
		return
	}
	dst := image.Rect(int(t.X), int(t.Y)-th, int(t.X)+tw, int(t.Y))
	xdraw.ApproxBiLinear.Scale(c.img, dst, mask, mask.Bounds(), xdraw.Over, nil)
}

// parseColor understands #rrggbb (and #rgb) hex colors; anything else
// falls back to black, matching a 2D context's tolerance for bad input.
func parseColor(s string) color.RGBA {
	black := color.RGBA{A: 0xff}
	if len(s) == 0 || s[0] != '#' {
		return black
	}
	hex := s[1:]
	if len(hex) == 3 {
		hex = string([]byte{hex[0], hex[0], hex[1], hex[1], hex[2], hex[2]})
	}
	if len(hex) != 6 {
		return black
	}
	v, err := strconv.ParseUint(hex, 16, 32)
	if err != nil {
		return black
	}
	return color.RGBA{R: uint8(v >> 16), G: uint8(v >> 8), B: uint8(v), A: 0xff}
}
