// pkg/render/terminal.go
package render

import (
	"io"
	"math"
	"strings"
	"unicode"
	"unicode/utf8"

	"github.com/go-gl/mathgl/mgl64"

	"github.com/opd-ai/go-mech/pkg/entity"
)

// Symbols drawn for the parts of a rig.
const (
	footSymbol     = 'o'
	steppingSymbol = '.'
	headingSymbol  = '*'
	deadSymbol     = 'X'
)

// TerminalRenderer draws a top-down ASCII view of the ground plane. Screen
// columns follow world +X and rows run from +Z at the top to -Z at the
// bottom.
type TerminalRenderer struct {
	width     int
	height    int
	buffer    [][]rune
	scale     float64
	centerPos mgl64.Vec2
}

// NewTerminalRenderer creates a renderer of width by height cells where each
// cell covers scale meters.
func NewTerminalRenderer(width, height int, scale float64) *TerminalRenderer {
	buffer := make([][]rune, height)
	for i := range buffer {
		buffer[i] = make([]rune, width)
	}

	r := &TerminalRenderer{
		width:  width,
		height: height,
		buffer: buffer,
		scale:  scale,
	}
	r.Clear()
	return r
}

// SetCenter centers the view on the ground projection of pos.
func (r *TerminalRenderer) SetCenter(pos mgl64.Vec3) {
	r.centerPos = mgl64.Vec2{pos.X(), pos.Z()}
}

// worldToScreen converts a world position to a cell.
func (r *TerminalRenderer) worldToScreen(pos mgl64.Vec3) (int, int) {
	screenX := int(math.Floor((pos.X()-r.centerPos.X())/r.scale + float64(r.width)/2))
	screenY := int(math.Floor(float64(r.height)/2 - (pos.Z()-r.centerPos.Y())/r.scale))
	return screenX, screenY
}

func (r *TerminalRenderer) plot(pos mgl64.Vec3, symbol rune) bool {
	x, y := r.worldToScreen(pos)
	if x < 0 || x >= r.width || y < 0 || y >= r.height {
		return false
	}
	r.buffer[y][x] = symbol
	return true
}

// Clear fills the buffer with spaces.
func (r *TerminalRenderer) Clear() {
	for y := range r.buffer {
		for x := range r.buffer[y] {
			r.buffer[y][x] = ' '
		}
	}
}

// RenderRig draws the feet, a heading marker one cell ahead of the body and
// the body itself, labelled with the first letter of the rig name. Dead rigs
// are drawn as X.
func (r *TerminalRenderer) RenderRig(state entity.RigState) {
	for _, leg := range state.Legs {
		symbol := footSymbol
		if leg.Stepping {
			symbol = steppingSymbol
		}
		r.plot(leg.Foot, symbol)
	}

	if !state.Dead {
		yaw := mgl64.DegToRad(state.YawDeg)
		ahead := mgl64.Vec3{math.Sin(yaw), 0, math.Cos(yaw)}.Mul(r.scale)
		r.plot(state.Position.Add(ahead), headingSymbol)
	}
	r.plot(state.Position, rigSymbol(state))
}

func rigSymbol(state entity.RigState) rune {
	if state.Dead {
		return deadSymbol
	}
	if c, _ := utf8.DecodeRuneInString(state.Name); c != utf8.RuneError {
		return unicode.ToUpper(c)
	}
	return 'M'
}

// String returns the framed buffer.
func (r *TerminalRenderer) String() string {
	var b strings.Builder
	border := "+" + strings.Repeat("-", r.width) + "+\n"
	b.WriteString(border)
	for y := range r.buffer {
		b.WriteByte('|')
		b.WriteString(string(r.buffer[y]))
		b.WriteString("|\n")
	}
	b.WriteString(border)
	return b.String()
}

// WriteTo writes the framed buffer to w.
func (r *TerminalRenderer) WriteTo(w io.Writer) (int64, error) {
	n, err := io.WriteString(w, r.String())
	return int64(n), err
}

// Present clears an ANSI terminal and draws the frame on it.
func (r *TerminalRenderer) Present(w io.Writer) error {
	if _, err := io.WriteString(w, "\033[H\033[2J"); err != nil {
		return err
	}
	_, err := r.WriteTo(w)
	return err
}
