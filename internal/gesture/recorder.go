// Package gesture turns press/drag/release input over the grid into a
// pattern sequence. Discrete devices report node presses and enters; continuous
// devices report pointer positions that are resolved to nodes on every move.
// Both funnel into the same extension rule.
package gesture

import (
	"log/slog"
	"sync"
	"time"

	"github.com/patternlock/patternlock/internal/clock"
	"github.com/patternlock/patternlock/internal/grid"
	"github.com/patternlock/patternlock/internal/logging"
	"github.com/patternlock/patternlock/internal/pattern"
)

// DefaultClearDelay is how long a too-short pattern stays visible.
const DefaultClearDelay = 500 * time.Millisecond

// State is the recorder's capture state.
type State int

const (
	Idle State = iota
	Active
)

// String implements fmt.Stringer.
func (s State) String() string {
	if s == Active {
		return "active"
	}
	return "idle"
}

// Resolver maps a pointer position to the node under it.
type Resolver interface {
	Resolve(p grid.Point) (int, bool)
}

// Options configures a Recorder.
type Options struct {
	MinLength  int
	ClearDelay time.Duration
	// OnComplete receives the token of every gesture that meets MinLength.
	OnComplete func(pattern.Token)
	// OnChange receives a copy of the sequence after every change.
	OnChange func(pattern.Sequence)
	Logger   *slog.Logger
}

// Recorder captures one gesture at a time.
type Recorder struct {
	resolver Resolver
	sched    clock.Scheduler
	opts     Options
	logger   *slog.Logger

	mu         sync.Mutex
	state      State
	seq        pattern.Sequence
	disabled   bool
	clearTimer clock.Timer
}

// NewRecorder creates an idle recorder. A zero MinLength uses
// pattern.DefaultMinLength and a zero ClearDelay uses DefaultClearDelay.
func NewRecorder(res Resolver, sched clock.Scheduler, opts Options) *Recorder {
	if opts.MinLength <= 0 {
		opts.MinLength = pattern.DefaultMinLength
	}
	if opts.ClearDelay <= 0 {
		opts.ClearDelay = DefaultClearDelay
	}
	if sched == nil {
		sched = clock.Real{}
	}
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	return &Recorder{
		resolver: res,
		sched:    sched,
		opts:     opts,
		logger:   logger,
	}
}

// MinLength returns the configured minimum pattern length.
func (r *Recorder) MinLength() int {
	return r.opts.MinLength
}

// Press starts a gesture on node i. A press on a node of the sequence still on
// screen, or while a gesture is already active, is ignored.
func (r *Recorder) Press(i int) bool {
	r.mu.Lock()
	if r.disabled || r.state == Active || !grid.IsNode(i) || r.seq.Contains(i) {
		r.mu.Unlock()
		return false
	}
	r.stopClearLocked()
	r.state = Active
	r.seq = pattern.Sequence{i}
	seq := r.seq.Clone()
	r.mu.Unlock()

	r.changed(seq)
	return true
}

// PressAt starts a gesture on the node under p.
func (r *Recorder) PressAt(p grid.Point) bool {
	i, ok := r.resolve(p)
	if !ok {
		return false
	}
	return r.Press(i)
}

// Enter extends the active gesture with node i.
func (r *Recorder) Enter(i int) bool {
	r.mu.Lock()
	if r.disabled || r.state != Active {
		r.mu.Unlock()
		return false
	}
	next, ok := r.seq.Append(i)
	if !ok {
		r.mu.Unlock()
		return false
	}
	r.seq = next
	seq := r.seq.Clone()
	r.mu.Unlock()

	r.changed(seq)
	return true
}

// Move resolves the node under p and extends the active gesture with it.
func (r *Recorder) Move(p grid.Point) bool {
	r.mu.Lock()
	active := r.state == Active && !r.disabled
	r.mu.Unlock()
	if !active {
		return false
	}
	i, ok := r.resolve(p)
	if !ok {
		return false
	}
	return r.Enter(i)
}

// Release ends the active gesture. A gesture that meets the minimum length is
// encoded and passed to OnComplete; a shorter one is cleared after ClearDelay.
func (r *Recorder) Release() {
	r.mu.Lock()
	if r.state != Active {
		r.mu.Unlock()
		return
	}
	r.state = Idle
	seq := r.seq.Clone()

	tok, err := pattern.Encode(seq, r.opts.MinLength)
	if err != nil {
		r.stopClearLocked()
		r.clearTimer = r.sched.AfterFunc(r.opts.ClearDelay, r.clearShort)
		r.mu.Unlock()
		r.logger.Debug("gesture too short", "length", len(seq), "min_length", r.opts.MinLength)
		return
	}
	r.mu.Unlock()

	r.logger.Debug("gesture complete", "length", len(seq))
	if r.opts.OnComplete != nil {
		r.opts.OnComplete(tok)
	}
}

// Leave ends the gesture when the pointer leaves the widget.
func (r *Recorder) Leave() { r.Release() }

// Cancel ends the gesture on touch cancel.
func (r *Recorder) Cancel() { r.Release() }

// Reset forces the recorder idle with an empty sequence.
func (r *Recorder) Reset() {
	r.mu.Lock()
	r.stopClearLocked()
	changed := len(r.seq) > 0
	r.state = Idle
	r.seq = nil
	r.mu.Unlock()

	if changed {
		r.changed(nil)
	}
}

// SetEnabled turns input handling on or off. Disabling abandons an active
// gesture without completing it.
func (r *Recorder) SetEnabled(enabled bool) {
	r.mu.Lock()
	r.disabled = !enabled
	abandon := !enabled && r.state == Active
	r.mu.Unlock()

	if abandon {
		r.Reset()
	}
}

// Enabled reports whether input is being handled.
func (r *Recorder) Enabled() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return !r.disabled
}

// State returns the capture state.
func (r *Recorder) State() State {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.state
}

// Sequence returns a copy of the sequence on screen.
func (r *Recorder) Sequence() pattern.Sequence {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.seq.Clone()
}

func (r *Recorder) clearShort() {
	r.mu.Lock()
	if r.state == Active {
		r.mu.Unlock()
		return
	}
	r.clearTimer = nil
	r.seq = nil
	r.mu.Unlock()

	r.changed(nil)
}

func (r *Recorder) stopClearLocked() {
	if r.clearTimer != nil {
		r.clearTimer.Stop()
		r.clearTimer = nil
	}
}

func (r *Recorder) resolve(p grid.Point) (int, bool) {
	if r.resolver == nil {
		return -1, false
	}
	i, ok := r.resolver.Resolve(p)
	if !ok || !grid.IsNode(i) {
		return -1, false
	}
	return i, true
}

func (r *Recorder) changed(seq pattern.Sequence) {
	if r.opts.OnChange != nil {
		r.opts.OnChange(seq)
	}
}
