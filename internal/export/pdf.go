// Package export writes a board out as a PDF or PNG file.
package export

import (
	"math"
	"strconv"

	"github.com/jung-kurt/gofpdf"

	"drawroom/internal/board"
)

// px→mm scale for A4 output.
const pdfScale = 3

// PDF renders the operation history as vector drawing on an A4 page.
// Only operations after the last clear contribute, matching what a
// participant currently sees.
func PDF(path string, ops []board.Op) error {
	p := gofpdf.New("P", "mm", "A4", "")
	p.AddPage()
	p.SetLineCapStyle("round")

	for _, op := range visible(ops) {
		switch v := op.(type) {
		case board.Stroke:
			r, g, b := rgb(v.Color)
			if v.Erase {
				r, g, b = 255, 255, 255
			}
			p.SetDrawColor(r, g, b)
			p.SetLineWidth(v.Width / pdfScale)
			p.Line(v.X0/pdfScale, v.Y0/pdfScale, v.X1/pdfScale, v.Y1/pdfScale)
		case board.Shape:
			r, g, b := rgb(v.Color)
			p.SetDrawColor(r, g, b)
			p.SetLineWidth(v.Width / pdfScale)
			switch v.Kind {
			case board.ShapeLine:
				p.Line(v.StartX/pdfScale, v.StartY/pdfScale, v.EndX/pdfScale, v.EndY/pdfScale)
			case board.ShapeRectangle:
				p.Rect(v.StartX/pdfScale, v.StartY/pdfScale,
					(v.EndX-v.StartX)/pdfScale, (v.EndY-v.StartY)/pdfScale, "D")
			case board.ShapeCircle:
				radius := math.Hypot(v.EndX-v.StartX, v.EndY-v.StartY)
				p.Circle(v.StartX/pdfScale, v.StartY/pdfScale, radius/pdfScale, "D")
			}
		case board.Text:
			r, g, b := rgb(v.Color)
			p.SetTextColor(r, g, b)
			p.SetFont("Helvetica", "", v.Size*8/pdfScale*2.83)
			p.Text(v.X/pdfScale, v.Y/pdfScale, v.Text)
		}
	}
	return p.OutputFileAndClose(path)
}

// visible returns the suffix of ops after the last Clear.
func visible(ops []board.Op) []board.Op {
	start := 0
	for i, op := range ops {
		if _, isClear := op.(board.Clear); isClear {
			start = i + 1
		}
	}
	return ops[start:]
}

// rgb parses a #rrggbb color, defaulting to black.
func rgb(s string) (int, int, int) {
	if len(s) != 7 || s[0] != '#' {
		return 0, 0, 0
	}
	v, err := strconv.ParseUint(s[1:], 16, 32)
	if err != nil {
		return 0, 0, 0
	}
	return int(v >> 16 & 0xff), int(v >> 8 & 0xff), int(v & 0xff)
}
