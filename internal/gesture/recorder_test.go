package gesture

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternlock/patternlock/internal/clock"
	"github.com/patternlock/patternlock/internal/grid"
	"github.com/patternlock/patternlock/internal/pattern"
)

type harness struct {
	rec     *Recorder
	sched   *clock.Manual
	grid    *grid.Model
	tokens  []pattern.Token
	changes []pattern.Sequence
}

func newHarness(t *testing.T, minLength int) *harness {
	t.Helper()
	h := &harness{
		sched: clock.NewManual(),
		grid:  grid.New(grid.Uniform{Width: 300, Height: 300, NodeWidth: 40, NodeHeight: 40}),
	}
	h.grid.Layout()
	h.rec = NewRecorder(h.grid, h.sched, Options{
		MinLength:  minLength,
		ClearDelay: 500 * time.Millisecond,
		OnComplete: func(tok pattern.Token) { h.tokens = append(h.tokens, tok) },
		OnChange:   func(seq pattern.Sequence) { h.changes = append(h.changes, seq) },
	})
	return h
}

func (h *harness) draw(nodes ...int) {
	h.rec.Press(nodes[0])
	for _, n := range nodes[1:] {
		h.rec.Enter(n)
	}
	h.rec.Release()
}

func TestRecorder_CompleteGesture(t *testing.T) {
	h := newHarness(t, 4)
	h.draw(0, 1, 2, 5)

	require.Len(t, h.tokens, 1)
	assert.Equal(t, pattern.Token("0-1-2-5"), h.tokens[0])
	assert.Equal(t, Idle, h.rec.State())
	assert.Equal(t, pattern.Sequence{0, 1, 2, 5}, h.rec.Sequence())
}

func TestRecorder_OrderMatters(t *testing.T) {
	h := newHarness(t, 3)
	h.draw(0, 4, 8)
	h.rec.Reset()
	h.draw(8, 4, 0)

	require.Len(t, h.tokens, 2)
	assert.False(t, h.tokens[0].Equal(h.tokens[1]))
}

func TestRecorder_ReentryIsIdempotent(t *testing.T) {
	h := newHarness(t, 4)
	h.rec.Press(0)
	h.rec.Enter(1)
	before := h.rec.Sequence()
	changes := len(h.changes)

	assert.False(t, h.rec.Enter(1))
	assert.False(t, h.rec.Enter(0))
	assert.Equal(t, before, h.rec.Sequence())
	assert.Len(t, h.changes, changes)
}

func TestRecorder_TooShortClearsAfterDelay(t *testing.T) {
	h := newHarness(t, 4)
	h.draw(0, 1)

	assert.Empty(t, h.tokens)
	assert.Equal(t, pattern.Sequence{0, 1}, h.rec.Sequence(), "attempt stays visible")

	h.sched.Advance(499 * time.Millisecond)
	assert.Equal(t, pattern.Sequence{0, 1}, h.rec.Sequence())

	h.sched.Advance(time.Millisecond)
	assert.Empty(t, h.rec.Sequence())
	assert.Empty(t, h.tokens)
	assert.Nil(t, h.changes[len(h.changes)-1])
}

func TestRecorder_NewGestureDuringClearDelay(t *testing.T) {
	h := newHarness(t, 4)
	h.draw(0, 1)

	assert.True(t, h.rec.Press(4), "input is not blocked by the cosmetic delay")
	h.sched.Advance(time.Second)
	assert.Equal(t, pattern.Sequence{4}, h.rec.Sequence())
	assert.Equal(t, Active, h.rec.State())
}

func TestRecorder_PressIgnoredOnVisibleNode(t *testing.T) {
	h := newHarness(t, 4)
	h.draw(0, 1, 2, 5)

	assert.False(t, h.rec.Press(1))
	assert.True(t, h.rec.Press(3))
	assert.Equal(t, pattern.Sequence{3}, h.rec.Sequence())
}

func TestRecorder_PressWhileActiveIgnored(t *testing.T) {
	h := newHarness(t, 4)
	h.rec.Press(0)
	assert.False(t, h.rec.Press(4))
	assert.Equal(t, pattern.Sequence{0}, h.rec.Sequence())
}

func TestRecorder_EnterWhileIdleIgnored(t *testing.T) {
	h := newHarness(t, 4)
	assert.False(t, h.rec.Enter(3))
	assert.Empty(t, h.rec.Sequence())
}

func TestRecorder_ForeignNodesIgnored(t *testing.T) {
	h := newHarness(t, 4)
	assert.False(t, h.rec.Press(9))
	assert.False(t, h.rec.Press(-1))

	h.rec.Press(0)
	assert.False(t, h.rec.Enter(42))
	assert.Equal(t, pattern.Sequence{0}, h.rec.Sequence())
}

func TestRecorder_ContinuousMove(t *testing.T) {
	h := newHarness(t, 4)
	require.True(t, h.rec.PressAt(grid.Point{X: 50, Y: 50}))

	// Sweep across the top row, through a gap, then down the right column.
	path := []grid.Point{
		{X: 80, Y: 50}, {X: 140, Y: 50}, {X: 150, Y: 52},
		{X: 200, Y: 50}, {X: 250, Y: 50}, {X: 250, Y: 150}, {X: 250, Y: 152},
	}
	for _, p := range path {
		h.rec.Move(p)
	}
	h.rec.Release()

	require.Len(t, h.tokens, 1)
	assert.Equal(t, pattern.Token("0-1-2-5"), h.tokens[0])
}

func TestRecorder_MoveWhileIdleIgnored(t *testing.T) {
	h := newHarness(t, 4)
	assert.False(t, h.rec.Move(grid.Point{X: 50, Y: 50}))
}

func TestRecorder_LeaveAndCancelEndGesture(t *testing.T) {
	h := newHarness(t, 2)
	h.rec.Press(0)
	h.rec.Enter(1)
	h.rec.Leave()
	require.Len(t, h.tokens, 1)

	h.rec.Reset()
	h.rec.Press(2)
	h.rec.Enter(5)
	h.rec.Cancel()
	require.Len(t, h.tokens, 2)
	assert.Equal(t, pattern.Token("2-5"), h.tokens[1])
}

func TestRecorder_ReleaseWhileIdleIsNoop(t *testing.T) {
	h := newHarness(t, 4)
	h.rec.Release()
	assert.Empty(t, h.tokens)
	assert.Zero(t, h.sched.Pending())
}

func TestRecorder_Reset(t *testing.T) {
	h := newHarness(t, 4)
	h.rec.Reset()
	assert.Empty(t, h.changes, "reset while idle and empty is silent")

	h.rec.Press(0)
	h.rec.Enter(1)
	h.rec.Reset()
	assert.Equal(t, Idle, h.rec.State())
	assert.Empty(t, h.rec.Sequence())

	h.rec.Release()
	assert.Empty(t, h.tokens)
}

func TestRecorder_ResetStopsClearTimer(t *testing.T) {
	h := newHarness(t, 4)
	h.draw(0, 1)
	h.rec.Reset()
	assert.Zero(t, h.sched.Pending())
}

func TestRecorder_Disabled(t *testing.T) {
	h := newHarness(t, 4)
	h.rec.Press(0)
	h.rec.Enter(1)
	h.rec.SetEnabled(false)

	assert.False(t, h.rec.Enabled())
	assert.Equal(t, Idle, h.rec.State())
	assert.Empty(t, h.rec.Sequence())
	assert.False(t, h.rec.Press(3))

	h.rec.SetEnabled(true)
	assert.True(t, h.rec.Press(3))
}

func TestRecorder_Defaults(t *testing.T) {
	r := NewRecorder(nil, nil, Options{})
	assert.Equal(t, pattern.DefaultMinLength, r.MinLength())
	assert.False(t, r.PressAt(grid.Point{}))
}

func TestTrail(t *testing.T) {
	anchors := grid.New(grid.Uniform{Width: 300, Height: 300}).Layout()

	assert.Empty(t, Trail(pattern.Sequence{4}, anchors), "one node draws no trail")
	assert.Empty(t, Trail(pattern.Sequence{0, 1}, nil), "no layout yet")

	segs := Trail(pattern.Sequence{0, 4, 8}, anchors)
	require.Len(t, segs, 2)
	assert.Equal(t, Segment{From: grid.Point{X: 50, Y: 50}, To: grid.Point{X: 150, Y: 150}}, segs[0])
	assert.Equal(t, Segment{From: grid.Point{X: 150, Y: 150}, To: grid.Point{X: 250, Y: 250}}, segs[1])
}
