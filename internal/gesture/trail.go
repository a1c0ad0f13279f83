package gesture

import (
	"github.com/patternlock/patternlock/internal/grid"
	"github.com/patternlock/patternlock/internal/pattern"
)

// Segment is one line of the trail between two consecutive anchors.
type Segment struct {
	From, To grid.Point
}

// Trail returns the segments connecting the anchors of seq in visitation
// order. It is empty for sequences shorter than two nodes and while the
// layout has not been computed.
func Trail(seq pattern.Sequence, anchors map[int]grid.Point) []Segment {
	if len(seq) < 2 || len(anchors) == 0 {
		return nil
	}
	segments := make([]Segment, 0, len(seq)-1)
	for i := 1; i < len(seq); i++ {
		from, ok1 := anchors[seq[i-1]]
		to, ok2 := anchors[seq[i]]
		if !ok1 || !ok2 {
			return nil
		}
		segments = append(segments, Segment{From: from, To: to})
	}
	return segments
}
