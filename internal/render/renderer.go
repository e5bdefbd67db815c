package render

import (
	"fmt"
	"image/color"

	"github.com/hajimehoshi/ebiten/v2"
	"github.com/hajimehoshi/ebiten/v2/text"
	"github.com/hajimehoshi/ebiten/v2/vector"
	"golang.org/x/image/font"
	"golang.org/x/image/font/gofont/goregular"
	"golang.org/x/image/font/opentype"

	"quadpong/internal/client"
	"quadpong/internal/config"
	"quadpong/internal/game"
)

const (
	LabelSize  = 14
	statusSize = 16
)

var (
	background = color.RGBA{0x10, 0x10, 0x18, 0xff}
	fieldEdge  = color.RGBA{0x30, 0x30, 0x40, 0xff}
	ballColor  = color.RGBA{0xff, 0xff, 0xff, 0xff}
	dimText    = color.RGBA{0x90, 0x90, 0xa0, 0xff}
)

// Renderer draws a client.Scene. It holds no game state of its own.
type Renderer struct {
	face   font.Face
	status font.Face
	mine   color.Color
	others color.Color
}

func NewRenderer(c config.Configuration) (*Renderer, error) {
	tt, err := opentype.Parse(goregular.TTF)
	if err != nil {
		return nil, fmt.Errorf("load font: %w", err)
	}
	face, err := newFace(tt, LabelSize)
	if err != nil {
		return nil, err
	}
	status, err := newFace(tt, statusSize)
	if err != nil {
		return nil, err
	}
	mine, err := config.ParseColor(c.PlayerColor)
	if err != nil {
		return nil, err
	}
	others, err := config.ParseColor(c.OthersColor)
	if err != nil {
		return nil, err
	}
	return &Renderer{
		face:   face,
		status: status,
		mine:   rgba(mine),
		others: rgba(others),
	}, nil
}

func newFace(tt *opentype.Font, size float64) (font.Face, error) {
	f, err := opentype.NewFace(tt, &opentype.FaceOptions{
		Size:    size,
		DPI:     72,
		Hinting: font.HintingFull,
	})
	if err != nil {
		return nil, fmt.Errorf("font face %v: %w", size, err)
	}
	return f, nil
}

func rgba(c config.RGBA) color.RGBA {
	return color.RGBA{R: c.R, G: c.G, B: c.B, A: c.A}
}

func (r *Renderer) Draw(screen *ebiten.Image, sc client.Scene) {
	screen.Fill(background)
	size := float32(sc.Size)
	vector.StrokeRect(screen, 0, 0, size, size, 1, fieldEdge, false)

	for _, p := range sc.Paddles {
		clr := r.others
		if p.Current {
			clr = r.mine
		}
		vector.DrawFilledRect(screen, float32(p.Rect.X), float32(p.Rect.Y), float32(p.Rect.W), float32(p.Rect.H), clr, false)
		r.drawText(screen, p.Label, r.face, p.Anchor, clr)
	}

	if b := sc.Ball; b != nil {
		vector.DrawFilledCircle(screen, float32(b.X), float32(b.Y), float32(b.R), ballColor, true)
	}

	if sc.State != "" && sc.State != "Active" {
		center := game.Anchor{X: sc.Size / 2, Y: sc.Size / 2, Horizontal: game.AlignCenter, Vertical: game.AlignCenter}
		r.drawText(screen, sc.State, r.status, center, dimText)
	}
}

// drawText draws s so that its bounds line up with a.
func (r *Renderer) drawText(screen *ebiten.Image, s string, face font.Face, a game.Anchor, clr color.Color) {
	if s == "" {
		return
	}
	o := a.Origin(text.BoundString(face, s))
	text.Draw(screen, s, face, o.X, o.Y, clr)
}
