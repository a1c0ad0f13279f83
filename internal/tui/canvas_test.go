package tui

import (
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternlock/patternlock/internal/grid"
	"github.com/patternlock/patternlock/internal/pattern"
)

func canvasAnchors(t *testing.T) map[int]grid.Point {
	t.Helper()
	anchors := grid.New(CanvasGeometry()).Layout()
	require.Len(t, anchors, grid.NodeCount)
	return anchors
}

func TestCanvasGeometry_NodeCells(t *testing.T) {
	m := grid.New(CanvasGeometry())
	m.Layout()

	cells := map[int][2]int{0: {4, 2}, 1: {14, 2}, 2: {24, 2}, 4: {14, 6}, 8: {24, 10}}
	for node, c := range cells {
		got, ok := m.Resolve(CellPoint(c[0], c[1]))
		assert.True(t, ok, "node %d", node)
		assert.Equal(t, node, got)
	}

	_, ok := m.Resolve(CellPoint(9, 4))
	assert.False(t, ok, "gap between nodes")
}

func TestRenderCanvas_Empty(t *testing.T) {
	lines := RenderCanvas(canvasAnchors(t), nil)
	require.Len(t, lines, CanvasRows)
	nodes := 0
	for _, l := range lines {
		assert.Equal(t, CanvasCols, utf8.RuneCountInString(l))
		for _, r := range l {
			if r == glyphNode {
				nodes++
			}
			assert.NotEqual(t, glyphSelected, r)
		}
	}
	assert.Equal(t, grid.NodeCount, nodes)
}

func TestRenderCanvas_Trail(t *testing.T) {
	lines := RenderCanvas(canvasAnchors(t), pattern.Sequence{0, 1, 2})
	row := []rune(lines[2])

	assert.Equal(t, glyphSelected, row[4])
	assert.Equal(t, glyphSelected, row[14])
	assert.Equal(t, glyphSelected, row[24])
	for x := 5; x < 14; x++ {
		assert.Equal(t, glyphTrail, row[x], "col %d", x)
	}
	assert.Equal(t, ' ', row[2])
	assert.Equal(t, glyphNode, []rune(lines[6])[14])
}

func TestLine(t *testing.T) {
	assert.Equal(t, []cell{{0, 0}, {1, 1}, {2, 2}}, line(cell{0, 0}, cell{2, 2}))
	assert.Equal(t, []cell{{3, 1}, {2, 1}, {1, 1}}, line(cell{3, 1}, cell{1, 1}))
	assert.Equal(t, []cell{{5, 5}}, line(cell{5, 5}, cell{5, 5}))

	diag := line(cell{4, 2}, cell{24, 10})
	assert.Equal(t, cell{4, 2}, diag[0])
	assert.Equal(t, cell{24, 10}, diag[len(diag)-1])
	assert.Len(t, diag, 21)
}
