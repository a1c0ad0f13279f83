package grid

// Uniform lays the nodes out in three equal columns and rows filling a
// Width x Height area. Each node is a NodeWidth x NodeHeight box centred in its
// cell. A zero-sized area means the widget is not mounted.
type Uniform struct {
	Width, Height         float64
	NodeWidth, NodeHeight float64
}

// NodeBounds implements Geometry.
func (u Uniform) NodeBounds() ([]Rect, bool) {
	if u.Width <= 0 || u.Height <= 0 {
		return nil, false
	}
	cellW := u.Width / Columns
	cellH := u.Height / Columns
	nw := clamp(u.NodeWidth, cellW)
	nh := clamp(u.NodeHeight, cellH)

	bounds := make([]Rect, 0, NodeCount)
	for i := 0; i < NodeCount; i++ {
		row, col := i/Columns, i%Columns
		cx := cellW*float64(col) + cellW/2
		cy := cellH*float64(row) + cellH/2
		bounds = append(bounds, Rect{
			Min: Point{X: cx - nw/2, Y: cy - nh/2},
			Max: Point{X: cx + nw/2, Y: cy + nh/2},
		})
	}
	return bounds, true
}

func clamp(v, max float64) float64 {
	if v <= 0 || v > max {
		return max
	}
	return v
}
