// Package board defines the drawing operations replicated between
// participants and their JSON wire form.
package board

import (
	"encoding/json"
	"fmt"
	"math/big"

	"github.com/google/uuid"
)

// Op is one atomic drawing action. Ops are generated on the client that
// performed the action, appended to the session log on the server, and
// re-applied verbatim by every other participant.
type Op interface {
	// Tool returns the wire tag identifying the variant.
	Tool() string
}

// Stroke is a single incremental segment of a freehand pen or eraser drag.
type Stroke struct {
	X0, Y0 float64
	X1, Y1 float64
	Color  string
	Width  float64
	Erase  bool
}

func (s Stroke) Tool() string {
	if s.Erase {
		return "eraser"
	}
	return "pen"
}

// ShapeKind selects the geometry of a finalized Shape.
type ShapeKind string

const (
	ShapeLine      ShapeKind = "line"
	ShapeRectangle ShapeKind = "rectangle"
	ShapeCircle    ShapeKind = "circle"
)

// Shape is a finalized line, rectangle or circle. A circle is centered on
// the start point with radius equal to the start-end distance.
type Shape struct {
	Kind           ShapeKind
	StartX, StartY float64
	EndX, EndY     float64
	Color          string
	Width          float64
}

func (s Shape) Tool() string { return string(s.Kind) }

// Text is a text insertion anchored at its baseline-left corner.
type Text struct {
	X, Y  float64
	Text  string
	Color string
	Size  float64
}

func (Text) Tool() string { return "text" }

// Clear wipes the whole canvas.
type Clear struct{}

func (Clear) Tool() string { return "clear" }

// envelope mirrors the flat wire object: every variant's fields plus the
// discriminating "tool" tag share one JSON object.
type envelope struct {
	Tool string `json:"tool"`

	X0 float64 `json:"x0,omitempty"`
	Y0 float64 `json:"y0,omitempty"`
	X1 float64 `json:"x1,omitempty"`
	Y1 float64 `json:"y1,omitempty"`

	StartX float64 `json:"startX,omitempty"`
	StartY float64 `json:"startY,omitempty"`
	EndX   float64 `json:"endX,omitempty"`
	EndY   float64 `json:"endY,omitempty"`

	X    float64 `json:"x,omitempty"`
	Y    float64 `json:"y,omitempty"`
	Text string  `json:"text,omitempty"`

	Color string  `json:"color,omitempty"`
	Width float64 `json:"lineWidth,omitempty"`
}

// Encode renders op in its wire form.
func Encode(op Op) ([]byte, error) {
	e := envelope{Tool: op.Tool()}
	switch v := op.(type) {
	case Stroke:
		e.X0, e.Y0, e.X1, e.Y1 = v.X0, v.Y0, v.X1, v.Y1
		e.Color, e.Width = v.Color, v.Width
	case Shape:
		e.StartX, e.StartY, e.EndX, e.EndY = v.StartX, v.StartY, v.EndX, v.EndY
		e.Color, e.Width = v.Color, v.Width
	case Text:
		e.X, e.Y, e.Text = v.X, v.Y, v.Text
		e.Color, e.Width = v.Color, v.Size
	case Clear:
	default:
		return nil, fmt.Errorf("board: unknown op type %T", op)
	}
	return json.Marshal(e)
}

// Decode parses one wire operation. Unknown tools are an error so that
// receivers can skip frames they do not understand without crashing.
func Decode(raw []byte) (Op, error) {
	var e envelope
	if err := json.Unmarshal(raw, &e); err != nil {
		return nil, fmt.Errorf("board: decode op: %w", err)
	}
	switch e.Tool {
	case "pen", "eraser":
		return Stroke{
			X0: e.X0, Y0: e.Y0, X1: e.X1, Y1: e.Y1,
			Color: e.Color, Width: e.Width, Erase: e.Tool == "eraser",
		}, nil
	case "line", "rectangle", "circle":
		return Shape{
			Kind:   ShapeKind(e.Tool),
			StartX: e.StartX, StartY: e.StartY, EndX: e.EndX, EndY: e.EndY,
			Color: e.Color, Width: e.Width,
		}, nil
	case "text":
		return Text{X: e.X, Y: e.Y, Text: e.Text, Color: e.Color, Size: e.Width}, nil
	case "clear":
		return Clear{}, nil
	default:
		return nil, fmt.Errorf("board: unknown tool %q", e.Tool)
	}
}

// GenerateRoomID returns a short shareable room key, eight base-36
// characters backed by UUID entropy.
func GenerateRoomID() string {
	u := uuid.New()
	id := new(big.Int).SetBytes(u[:]).Text(36)
	return id[:8]
}
