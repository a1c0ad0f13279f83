// Package grid models the fixed 3x3 node layout of the pattern widget and the
// anchor point of every node in widget-local coordinates.
package grid

import "sync"

const (
	// Columns is the width and height of the grid.
	Columns = 3
	// NodeCount is the number of nodes, indexed 0..8 row-major.
	NodeCount = Columns * Columns
)

// Point is a position in widget-local coordinates.
type Point struct {
	X, Y float64
}

// Rect is an axis-aligned rectangle. Min is inclusive, Max exclusive.
type Rect struct {
	Min, Max Point
}

// Center returns the midpoint of r.
func (r Rect) Center() Point {
	return Point{X: (r.Min.X + r.Max.X) / 2, Y: (r.Min.Y + r.Max.Y) / 2}
}

// Contains reports whether p lies inside r.
func (r Rect) Contains(p Point) bool {
	return p.X >= r.Min.X && p.X < r.Max.X && p.Y >= r.Min.Y && p.Y < r.Max.Y
}

// IsNode reports whether i is a valid node index.
func IsNode(i int) bool {
	return i >= 0 && i < NodeCount
}

// Geometry supplies the rendered bounds of every node. ok is false while the
// widget is not mounted.
type Geometry interface {
	NodeBounds() (bounds []Rect, ok bool)
}

// Model caches the node bounds and anchors computed by the last Layout.
type Model struct {
	mu       sync.RWMutex
	geometry Geometry
	bounds   []Rect
	anchors  map[int]Point
}

// New creates a Model over g. Layout must be called once the widget mounts.
func New(g Geometry) *Model {
	return &Model{geometry: g, anchors: map[int]Point{}}
}

// SetGeometry swaps the geometry source, e.g. after a resize replaced it.
// The caller is expected to call Layout afterwards.
func (m *Model) SetGeometry(g Geometry) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.geometry = g
}

// Layout recomputes every anchor from the current geometry. It returns an
// empty mapping when the widget is not mounted or reports a partial layout.
func (m *Model) Layout() map[int]Point {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.bounds = nil
	m.anchors = map[int]Point{}
	if m.geometry == nil {
		return map[int]Point{}
	}
	bounds, ok := m.geometry.NodeBounds()
	if !ok || len(bounds) != NodeCount {
		return map[int]Point{}
	}

	m.bounds = append([]Rect(nil), bounds...)
	for i, b := range m.bounds {
		m.anchors[i] = b.Center()
	}
	return copyAnchors(m.anchors)
}

// Anchors returns the anchors of the last Layout.
func (m *Model) Anchors() map[int]Point {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return copyAnchors(m.anchors)
}

// Resolve returns the node whose bounds contain p.
func (m *Model) Resolve(p Point) (int, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for i, b := range m.bounds {
		if b.Contains(p) {
			return i, true
		}
	}
	return -1, false
}

func copyAnchors(src map[int]Point) map[int]Point {
	out := make(map[int]Point, len(src))
	for k, v := range src {
		out[k] = v
	}
	return out
}
