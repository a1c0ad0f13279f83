package tui

import (
	"math"
	"strings"

	"github.com/patternlock/patternlock/internal/gesture"
	"github.com/patternlock/patternlock/internal/grid"
	"github.com/patternlock/patternlock/internal/pattern"
)

// Canvas dimensions in terminal cells.
const (
	CanvasCols = 29
	CanvasRows = 13
)

const (
	glyphNode     = '○'
	glyphSelected = '●'
	glyphTrail    = '·'
)

// CanvasGeometry lays the nine nodes out over the canvas. One cell is one
// unit, so a cell (x, y) covers the points [x, x+1) x [y, y+1).
func CanvasGeometry() grid.Geometry {
	return grid.Uniform{
		Width:      CanvasCols,
		Height:     CanvasRows,
		NodeWidth:  5,
		NodeHeight: 1,
	}
}

// CellPoint returns the point at the centre of cell (x, y).
func CellPoint(x, y int) grid.Point {
	return grid.Point{X: float64(x) + 0.5, Y: float64(y) + 0.5}
}

type cell struct{ x, y int }

func cellOf(p grid.Point) cell {
	return cell{x: int(math.Floor(p.X)), y: int(math.Floor(p.Y))}
}

// RenderCanvas draws the grid with seq highlighted and joined by its trail.
// It returns CanvasRows lines of CanvasCols runes each.
func RenderCanvas(anchors map[int]grid.Point, seq pattern.Sequence) []string {
	buf := make([][]rune, CanvasRows)
	for y := range buf {
		buf[y] = []rune(strings.Repeat(" ", CanvasCols))
	}
	set := func(c cell, r rune) {
		if c.y >= 0 && c.y < CanvasRows && c.x >= 0 && c.x < CanvasCols {
			buf[c.y][c.x] = r
		}
	}

	for _, seg := range trailCells(seq, anchors) {
		set(seg, glyphTrail)
	}
	for i, p := range anchors {
		glyph := glyphNode
		if seq.Contains(i) {
			glyph = glyphSelected
		}
		set(cellOf(p), glyph)
	}

	lines := make([]string, CanvasRows)
	for y, row := range buf {
		lines[y] = string(row)
	}
	return lines
}

func trailCells(seq pattern.Sequence, anchors map[int]grid.Point) []cell {
	var out []cell
	for _, seg := range gesture.Trail(seq, anchors) {
		out = append(out, line(cellOf(seg.From), cellOf(seg.To))...)
	}
	return out
}

// line returns the cells between a and b, Bresenham style.
func line(a, b cell) []cell {
	dx := abs(b.x - a.x)
	dy := -abs(b.y - a.y)
	sx, sy := 1, 1
	if a.x > b.x {
		sx = -1
	}
	if a.y > b.y {
		sy = -1
	}
	e := dx + dy

	var out []cell
	for {
		out = append(out, a)
		if a == b {
			return out
		}
		e2 := 2 * e
		if e2 >= dy {
			e += dy
			a.x += sx
		}
		if e2 <= dx {
			e += dx
			a.y += sy
		}
	}
}

func abs(v int) int {
	if v < 0 {
		return -v
	}
	return v
}
