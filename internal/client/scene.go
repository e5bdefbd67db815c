package client

import (
	"fmt"
	"strings"

	"golang.org/x/exp/slices"

	"quadpong/internal/game"
	"quadpong/internal/wire"
)

type Paddle struct {
	Side    wire.Side
	Rect    game.Rect
	Label   string
	Anchor  game.Anchor
	Current bool
}

type Circle struct {
	X, Y, R float64
}

// Scene is everything a renderer needs for one frame, in surface pixels.
type Scene struct {
	Size    float64
	State   string
	Paddles []Paddle
	Ball    *Circle
}

var sideOrder = map[wire.Side]int{wire.Top: 0, wire.Right: 1, wire.Bottom: 2, wire.Left: 3}

// BuildScene maps the mirror onto a surface. Players without a side are left
// out.
func BuildScene(m *game.Mirror, g game.Geometry) Scene {
	sc := Scene{Size: g.SurfaceSize, State: m.State}
	for id, p := range m.Players {
		if p.Position == wire.Unassigned {
			continue
		}
		sc.Paddles = append(sc.Paddles, Paddle{
			Side:    p.Position,
			Rect:    g.PaddleRect(p.Position, p.PaddlePos, p.Width()),
			Label:   fmt.Sprintf("%s: %d", p.Name, p.Score),
			Anchor:  g.LabelAnchor(p.Position, p.PaddlePos),
			Current: id == m.CurrentPlayerID(),
		})
	}
	slices.SortFunc(sc.Paddles, func(a, b Paddle) int {
		if d := sideOrder[a.Side] - sideOrder[b.Side]; d != 0 {
			return d
		}
		return strings.Compare(a.Label, b.Label)
	})

	if m.Ball != nil {
		x, y, r := g.BallCircle(*m.Ball)
		sc.Ball = &Circle{X: x, Y: y, R: r}
	}
	return sc
}
