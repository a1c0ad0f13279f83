// Package screen assembles the register, sign-in and forgot-pattern screens:
// each owns a grid, a gesture recorder and a flow controller wired to one
// verifier operation, plus the identity fields entered before capture.
package screen

import (
	"context"
	"encoding/json"
	"log/slog"
	"sync"
	"time"

	"github.com/patternlock/patternlock/internal/client"
	"github.com/patternlock/patternlock/internal/clock"
	"github.com/patternlock/patternlock/internal/domain"
	"github.com/patternlock/patternlock/internal/form"
	"github.com/patternlock/patternlock/internal/gesture"
	"github.com/patternlock/patternlock/internal/grid"
	"github.com/patternlock/patternlock/internal/logging"
	"github.com/patternlock/patternlock/internal/pattern"
	"github.com/patternlock/patternlock/internal/workflow"
)

// Route names a screen.
type Route string

const (
	RouteRegister Route = "/register"
	RouteSignIn   Route = "/signin"
	RouteForgot   Route = "/forgot-pattern"
	RouteWelcome  Route = "/welcome"
)

// API is the verifier as seen by the screens. *client.Client implements it.
type API interface {
	Register(ctx context.Context, id domain.Identity, tok pattern.Token) (*client.Response, error)
	SignIn(ctx context.Context, username string, tok pattern.Token) (*client.Response, error)
	VerifyUser(ctx context.Context, username, email string) (*client.Response, error)
	ResetPattern(ctx context.Context, username, email string, tok pattern.Token) (*client.Response, error)
}

// Options configures the parts shared by every screen.
type Options struct {
	// Geometry supplies node bounds; it may be nil until the grid is drawn.
	Geometry   grid.Geometry
	MinLength  int
	ClearDelay time.Duration
	Timing     workflow.Timing
	Scheduler  clock.Scheduler
	// Spawn runs remote calls; nil starts a goroutine per call.
	Spawn  func(func())
	Logger *slog.Logger
	// OnChange is called after any visible change.
	OnChange func()
}

// View is what a renderer needs to draw a screen.
type View struct {
	Route       Route
	Title       string
	Subtitle    string
	Flow        domain.Snapshot
	Sequence    pattern.Sequence
	Fields      map[string]string
	FieldErrors map[string]string
	MinLength   int
}

// Screen is one pattern flow screen.
type Screen struct {
	route    Route
	title    string
	subtitle string
	next     Route
	fields   []string

	grid   *grid.Model
	rec    *gesture.Recorder
	flow   *workflow.Controller
	logger *slog.Logger

	mu       sync.Mutex
	values   map[string]string
	last     domain.Snapshot
	onChange func()
}

type definition struct {
	route    Route
	title    string
	subtitle string
	next     Route
	fields   []string
}

func newScreen(def definition, opts Options, build func(s *Screen) workflow.Config) *Screen {
	logger := opts.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	logger = logger.With("screen", string(def.route))
	sched := opts.Scheduler
	if sched == nil {
		sched = clock.Real{}
	}

	s := &Screen{
		route:    def.route,
		title:    def.title,
		subtitle: def.subtitle,
		next:     def.next,
		fields:   def.fields,
		grid:     grid.New(opts.Geometry),
		logger:   logger,
		values:   map[string]string{},
		onChange: opts.OnChange,
	}
	s.grid.Layout()

	cfg := build(s)
	cfg.Timing = opts.Timing
	cfg.Spawn = opts.Spawn
	cfg.Logger = logger
	s.flow = workflow.NewController(cfg, sched)

	s.rec = gesture.NewRecorder(s.grid, sched, gesture.Options{
		MinLength:  opts.MinLength,
		ClearDelay: opts.ClearDelay,
		OnComplete: s.complete,
		OnChange:   func(pattern.Sequence) { s.notify() },
		Logger:     logger,
	})

	s.last = s.flow.Snapshot()
	s.rec.SetEnabled(s.last.Accepting)
	s.flow.Subscribe(s.flowChanged)
	return s
}

// Route returns the screen's route.
func (s *Screen) Route() Route { return s.route }

// Grid returns the screen's grid model.
func (s *Screen) Grid() *grid.Model { return s.grid }

// Recorder returns the screen's gesture recorder, the target of pointer input.
func (s *Screen) Recorder() *gesture.Recorder { return s.rec }

// Flow returns the screen's flow controller.
func (s *Screen) Flow() *workflow.Controller { return s.flow }

// Fields returns the names of the identity fields in display order.
func (s *Screen) Fields() []string { return append([]string(nil), s.fields...) }

// SetField updates an identity field. Fields are frozen while they are being
// checked, while a verified identity waits for capture, and once capture starts.
func (s *Screen) SetField(name, value string) error {
	snap := s.flow.Snapshot()
	switch {
	case snap.Step != domain.StepIdentity:
		return domain.ErrStepNotActive
	case snap.State == domain.StateVerifying:
		return domain.ErrFlowBusy
	case snap.Hold:
		return domain.ErrInputSuppressed
	}
	s.mu.Lock()
	s.values[name] = value
	s.mu.Unlock()
	s.notify()
	return nil
}

// Field returns the current value of an identity field.
func (s *Screen) Field(name string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.values[name]
}

// SubmitIdentity validates the identity fields and moves on to capture.
func (s *Screen) SubmitIdentity() error {
	return s.flow.SubmitIdentity()
}

// ResetPattern clears the drawn pattern.
func (s *Screen) ResetPattern() {
	s.rec.Reset()
}

// Back abandons the flow and returns to its first step.
func (s *Screen) Back() error {
	if err := s.flow.Cancel(); err != nil {
		return err
	}
	s.rec.Reset()
	return nil
}

// Next returns the route to switch to once the flow has succeeded.
func (s *Screen) Next() (Route, bool) {
	if s.flow.Snapshot().State != domain.StateSucceeded {
		return "", false
	}
	return s.next, true
}

// View returns the current render state.
func (s *Screen) View() View {
	s.mu.Lock()
	values := make(map[string]string, len(s.values))
	for k, v := range s.values {
		values[k] = v
	}
	s.mu.Unlock()

	return View{
		Route:       s.route,
		Title:       s.titleFor(s.flow.Snapshot().Step),
		Subtitle:    s.subtitle,
		Flow:        s.flow.Snapshot(),
		Sequence:    s.rec.Sequence(),
		Fields:      values,
		FieldErrors: s.flow.FieldErrors(),
		MinLength:   s.rec.MinLength(),
	}
}

// Close stops timers and discards in-flight results.
func (s *Screen) Close() {
	s.flow.Close()
	s.rec.SetEnabled(false)
}

func (s *Screen) titleFor(step domain.Step) string {
	switch step {
	case domain.StepCapture:
		if s.route == RouteSignIn {
			return "Draw Your Pattern"
		}
		if s.route == RouteForgot {
			return "Create Your New Pattern"
		}
		return "Create Your Pattern"
	case domain.StepConfirm:
		if s.route == RouteForgot {
			return "Confirm Your New Pattern"
		}
		return "Confirm Your Pattern"
	}
	return s.title
}

func (s *Screen) complete(tok pattern.Token) {
	if err := s.flow.Complete(tok); err != nil {
		s.logger.Debug("completed gesture not consumed", "error", err)
	}
}

// flowChanged keeps the recorder in step with the controller: input follows
// Accepting, and the drawn pattern is cleared whenever a new capture begins.
func (s *Screen) flowChanged(domain.Snapshot) {
	snap := s.flow.Snapshot()

	s.mu.Lock()
	prev := s.last
	s.last = snap
	s.mu.Unlock()

	restart := snap.Step != prev.Step || (snap.Accepting && !prev.Accepting && prev.State != snap.State)
	if restart {
		s.rec.Reset()
	}
	s.rec.SetEnabled(snap.Accepting)
	s.notify()
}

func (s *Screen) notify() {
	if s.onChange != nil {
		s.onChange()
	}
}

func (s *Screen) identity() domain.Identity {
	s.mu.Lock()
	defer s.mu.Unlock()
	return domain.Identity{
		Name:     s.values[form.FieldName],
		Email:    s.values[form.FieldEmail],
		Username: s.values[form.FieldUsername],
	}
}

func userPayload(resp *client.Response) json.RawMessage {
	if resp == nil {
		return nil
	}
	return resp.User
}
