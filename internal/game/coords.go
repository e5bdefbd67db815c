package game

import (
	"image"
	"math"

	"quadpong/internal/wire"
)

// GameExtent is the width of the server's square game space [0, GameExtent]
const GameExtent = 10.0

const (
	EdgeInset       = 0.5  // game units
	PaddleThickness = 10.0 // pixels
	LabelGap        = 10.0 // pixels between a label and its paddle
)

type Rect struct {
	X, Y, W, H float64
}

// GameToSurface scales a game space point onto a square surface
func GameToSurface(x, y, surfaceSize, gameExtent float64) (float64, float64) {
	return x * surfaceSize / gameExtent, y * surfaceSize / gameExtent
}

// SurfaceToGame is the inverse of GameToSurface
func SurfaceToGame(px, py, surfaceSize, gameExtent float64) (float64, float64) {
	return px * gameExtent / surfaceSize, py * gameExtent / surfaceSize
}

// PaddleLength returns the on-surface length of a paddle of the given width
func PaddleLength(paddleWidth, surfaceSize, gameExtent float64) float64 {
	return math.Abs(paddleWidth) * surfaceSize / gameExtent
}

// Geometry holds everything needed to place game objects on a surface.
type Geometry struct {
	SurfaceSize float64
	GameExtent  float64
	EdgeInset   float64 // game units
	Thickness   float64 // pixels
}

func NewGeometry(surfaceSize float64) Geometry {
	return Geometry{
		SurfaceSize: surfaceSize,
		GameExtent:  GameExtent,
		EdgeInset:   EdgeInset,
		Thickness:   PaddleThickness,
	}
}

func (g Geometry) scale(v float64) float64 {
	return v * g.SurfaceSize / g.GameExtent
}

// paddleCenter is the middle of the paddle on the surface.
func (g Geometry) paddleCenter(side wire.Side, paddlePos float64) (float64, float64) {
	inset := g.scale(g.EdgeInset)
	along := g.scale(paddlePos)
	switch side {
	case wire.Top:
		return along, inset
	case wire.Bottom:
		return along, g.SurfaceSize - inset
	case wire.Left:
		return inset, along
	default:
		return g.SurfaceSize - inset, along
	}
}

// PaddleRect places a paddle along its edge. Top/Bottom paddles run
// horizontally, Left/Right ones vertically.
func (g Geometry) PaddleRect(side wire.Side, paddlePos, paddleWidth float64) Rect {
	cx, cy := g.paddleCenter(side, paddlePos)
	length := PaddleLength(paddleWidth, g.SurfaceSize, g.GameExtent)
	if side == wire.Top || side == wire.Bottom {
		return Rect{X: cx - length/2, Y: cy - g.Thickness/2, W: length, H: g.Thickness}
	}
	return Rect{X: cx - g.Thickness/2, Y: cy - length/2, W: g.Thickness, H: length}
}

type Align int

const (
	AlignStart Align = iota
	AlignCenter
	AlignEnd
)

// Anchor is where a label goes and how the text is aligned around it.
type Anchor struct {
	X, Y       float64
	Horizontal Align
	Vertical   Align
}

// Origin returns the text origin that lines bounds up with the anchor. bounds
// is the text's extent relative to its origin, as font measuring reports it.
func (a Anchor) Origin(bounds image.Rectangle) image.Point {
	return image.Point{
		X: int(math.Round(a.X)) - alignOffset(a.Horizontal, bounds.Min.X, bounds.Max.X),
		Y: int(math.Round(a.Y)) - alignOffset(a.Vertical, bounds.Min.Y, bounds.Max.Y),
	}
}

func alignOffset(a Align, lo, hi int) int {
	switch a {
	case AlignCenter:
		return (lo + hi) / 2
	case AlignEnd:
		return hi
	}
	return lo
}

// LabelAnchor puts the name/score label on the field side of the paddle so
// it never overlaps it.
func (g Geometry) LabelAnchor(side wire.Side, paddlePos float64) Anchor {
	cx, cy := g.paddleCenter(side, paddlePos)
	off := g.Thickness + LabelGap
	switch side {
	case wire.Top:
		return Anchor{X: cx, Y: cy + off, Horizontal: AlignCenter, Vertical: AlignStart}
	case wire.Bottom:
		return Anchor{X: cx, Y: cy - off, Horizontal: AlignCenter, Vertical: AlignEnd}
	case wire.Left:
		return Anchor{X: cx + off, Y: cy, Horizontal: AlignStart, Vertical: AlignCenter}
	default:
		return Anchor{X: cx - off, Y: cy, Horizontal: AlignEnd, Vertical: AlignCenter}
	}
}

// BallCircle maps the ball to a surface center and radius
func (g Geometry) BallCircle(b wire.BallSnapshot) (cx, cy, r float64) {
	cx, cy = GameToSurface(b.Position.X, b.Position.Y, g.SurfaceSize, g.GameExtent)
	return cx, cy, g.scale(b.Radius)
}
