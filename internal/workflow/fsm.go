// Package workflow implements the flow controller shared by the register,
// sign-in and pattern-reset screens: collect a pattern, optionally confirm it,
// and hand the finalized token to a remote verifier.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"sync"
	"time"

	"github.com/patternlock/patternlock/internal/clock"
	"github.com/patternlock/patternlock/internal/domain"
	"github.com/patternlock/patternlock/internal/logging"
	"github.com/patternlock/patternlock/internal/pattern"
)

// validTransitions defines the legal state transitions.
// Each key is a source state, and the value is the set of valid target states.
var validTransitions = map[domain.FlowState]map[domain.FlowState]bool{
	domain.StateCollecting:           {domain.StateAwaitingConfirmation: true, domain.StateVerifying: true},
	domain.StateAwaitingConfirmation: {domain.StateVerifying: true, domain.StateFailed: true, domain.StateCollecting: true}, // ->Collecting is cancel
	domain.StateVerifying:            {domain.StateSucceeded: true, domain.StateFailed: true, domain.StateCollecting: true}, // ->Collecting is identity verified
	domain.StateFailed:               {domain.StateCollecting: true, domain.StateAwaitingConfirmation: true, domain.StateVerifying: true},
}

// IsValidTransition checks if a state transition is legal.
func IsValidTransition(from, to domain.FlowState) bool {
	targets, ok := validTransitions[from]
	if !ok {
		return false
	}
	return targets[to]
}

// Timing holds the cosmetic delays of a flow.
type Timing struct {
	// SuccessDelay separates a success message from the next step.
	SuccessDelay time.Duration
	// MismatchDelay keeps the mismatch message up before restarting.
	MismatchDelay time.Duration
	// FailureDelay keeps a rejection up before rolling back a step.
	FailureDelay time.Duration
}

// DefaultTiming returns the standard delays.
func DefaultTiming() Timing {
	return Timing{
		SuccessDelay:  time.Second,
		MismatchDelay: 1500 * time.Millisecond,
		FailureDelay:  1500 * time.Millisecond,
	}
}

// Messages holds the user-facing texts of a flow.
type Messages struct {
	PatternSet       string
	Mismatch         string
	Success          string
	SubmitFailed     string
	IdentityVerified string
	IdentityFailed   string
	ServerError      string
	FixErrors        string
}

// DefaultMessages returns the generic texts; screens override what they word
// differently.
func DefaultMessages() Messages {
	return Messages{
		PatternSet:       "Pattern set! Now confirm your pattern",
		Mismatch:         "Patterns do not match! Try again",
		Success:          "Success!",
		SubmitFailed:     "Request failed",
		IdentityVerified: "Identity verified!",
		IdentityFailed:   "Verification failed",
		ServerError:      "Server error. Please try again.",
		FixErrors:        "Please fix the errors below",
	}
}

// SubmitFunc sends the finalized token to the verifier or enroller.
type SubmitFunc func(ctx context.Context, token pattern.Token) (json.RawMessage, error)

// VerifyFunc checks the identity fields with the remote verifier.
type VerifyFunc func(ctx context.Context) error

// Config parameterizes a Controller.
type Config struct {
	Mode domain.Mode
	// Identity adds an identity step before capture.
	Identity bool
	// Gates holds the synchronous gate of the identity step, if any.
	Gates *GateRegistry
	// VerifyIdentity runs after the identity gate passes, if set.
	VerifyIdentity VerifyFunc
	Submit         SubmitFunc
	// RestartOnReject sends a confirm-mode flow back to the first capture
	// after a remote rejection instead of the confirm step.
	RestartOnReject bool
	Timing          Timing
	Messages        Messages
	// OnSuccess receives the payload of an accepted submit. Results of a
	// closed or superseded flow never reach it.
	OnSuccess func(payload json.RawMessage)
	// Spawn runs remote calls. Nil means a new goroutine per call.
	Spawn  func(func())
	Logger *slog.Logger
}

// Controller drives one screen's flow. It is safe for concurrent use; observer
// callbacks run outside its lock.
type Controller struct {
	cfg    Config
	sched  clock.Scheduler
	logger *slog.Logger
	ctx    context.Context
	cancel context.CancelFunc

	mu          sync.Mutex
	step        domain.Step
	state       domain.FlowState
	message     domain.Message
	pending     pattern.Token
	hasPending  bool
	payload     json.RawMessage
	fieldErrors map[string]string
	hold        bool
	closed      bool
	epoch       uint64
	timer       clock.Timer
	timerSeq    uint64
	observers   []func(domain.Snapshot)
}

// NewController creates a controller in the Collecting state of its first step.
func NewController(cfg Config, sched clock.Scheduler) *Controller {
	if cfg.Mode == "" {
		cfg.Mode = domain.ModeSingle
	}
	if cfg.Timing == (Timing{}) {
		cfg.Timing = DefaultTiming()
	}
	if cfg.Messages == (Messages{}) {
		cfg.Messages = DefaultMessages()
	}
	if cfg.Spawn == nil {
		cfg.Spawn = func(f func()) { go f() }
	}
	if sched == nil {
		sched = clock.Real{}
	}
	logger := cfg.Logger
	if logger == nil {
		logger = logging.Discard()
	}

	ctx, cancel := context.WithCancel(context.Background())
	c := &Controller{
		cfg:    cfg,
		sched:  sched,
		logger: logger.With("mode", string(cfg.Mode)),
		ctx:    ctx,
		cancel: cancel,
		state:  domain.StateCollecting,
	}
	c.step = c.firstStep()
	return c
}

// Subscribe registers fn to receive a snapshot after every change.
func (c *Controller) Subscribe(fn func(domain.Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.observers = append(c.observers[:len(c.observers):len(c.observers)], fn)
}

// Snapshot returns the current state for rendering.
func (c *Controller) Snapshot() domain.Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

// FieldErrors returns the field errors of the last identity submission.
func (c *Controller) FieldErrors() map[string]string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make(map[string]string, len(c.fieldErrors))
	for k, v := range c.fieldErrors {
		out[k] = v
	}
	return out
}

// SubmitIdentity evaluates the identity gate and, when configured, starts the
// remote identity check. Capture begins only after both pass.
func (c *Controller) SubmitIdentity() error {
	c.mu.Lock()
	if err := c.checkIdentityLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	c.mu.Unlock()

	decision, gateName, err := c.evaluateGate(domain.StepIdentity)
	if err != nil {
		return err
	}

	c.mu.Lock()
	if err := c.checkIdentityLocked(); err != nil {
		c.mu.Unlock()
		return err
	}
	if !decision.Allow {
		c.fieldErrors = decision.FieldErrors
		c.message = domain.Message{Kind: domain.MessageError, Text: c.cfg.Messages.FixErrors}
		if c.state == domain.StateFailed {
			c.state = domain.StateCollecting
		}
		c.unlockAndNotify()
		return &ValidationError{Gate: gateName, Fields: decision.FieldErrors}
	}
	c.fieldErrors = nil

	if c.cfg.VerifyIdentity == nil {
		c.enterCaptureLocked()
		c.unlockAndNotify()
		return nil
	}

	if err := c.setStateLocked(domain.StateVerifying); err != nil {
		c.mu.Unlock()
		return err
	}
	c.message = domain.Message{}
	epoch, ctx := c.epoch, c.ctx
	c.unlockAndNotify()

	c.cfg.Spawn(func() {
		err := c.cfg.VerifyIdentity(ctx)
		c.finishIdentity(epoch, err)
	})
	return nil
}

// Complete consumes a finished gesture's token.
func (c *Controller) Complete(token pattern.Token) error {
	c.mu.Lock()
	if err := c.checkCaptureLocked(); err != nil {
		c.mu.Unlock()
		c.logger.Debug("gesture ignored", "reason", err.Error())
		return err
	}

	if c.cfg.Mode == domain.ModeSingle {
		launch, err := c.submitLocked(token)
		if err != nil {
			c.mu.Unlock()
			return err
		}
		c.unlockAndNotify()
		c.cfg.Spawn(launch)
		return nil
	}

	if c.step == domain.StepCapture {
		c.pending = token
		c.hasPending = true
		c.message = domain.Message{Kind: domain.MessageSuccess, Text: c.cfg.Messages.PatternSet}
		c.hold = true
		c.scheduleLocked(c.cfg.Timing.SuccessDelay, c.enterConfirmLocked)
		c.unlockAndNotify()
		return nil
	}

	if !token.Equal(c.pending) {
		if err := c.setStateLocked(domain.StateFailed); err != nil {
			c.mu.Unlock()
			return err
		}
		c.message = domain.Message{Kind: domain.MessageError, Text: c.cfg.Messages.Mismatch}
		c.hold = true
		c.scheduleLocked(c.cfg.Timing.MismatchDelay, c.restartLocked)
		c.unlockAndNotify()
		return domain.ErrPatternMismatch
	}

	launch, err := c.submitLocked(token)
	if err != nil {
		c.mu.Unlock()
		return err
	}
	c.unlockAndNotify()
	c.cfg.Spawn(launch)
	return nil
}

// Cancel abandons the flow back to its first step, discarding pending
// credentials. It is refused while a remote call is outstanding.
func (c *Controller) Cancel() error {
	c.mu.Lock()
	switch {
	case c.closed:
		c.mu.Unlock()
		return domain.ErrFlowClosed
	case c.state == domain.StateVerifying:
		c.mu.Unlock()
		return domain.ErrFlowBusy
	case c.state == domain.StateSucceeded:
		c.mu.Unlock()
		return domain.ErrInvalidTransition
	}

	c.stopTimerLocked()
	c.epoch++
	c.clearPendingLocked()
	c.hold = false
	c.fieldErrors = nil
	c.message = domain.Message{}
	c.step = c.firstStep()
	c.state = domain.StateCollecting
	c.logger.Debug("flow cancelled", "step", string(c.step))
	c.unlockAndNotify()
	return nil
}

// Close tears the controller down. Pending timers are stopped and results of
// in-flight calls are discarded.
func (c *Controller) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.epoch++
	c.stopTimerLocked()
	c.cancel()
}

func (c *Controller) firstStep() domain.Step {
	if c.cfg.Identity {
		return domain.StepIdentity
	}
	return domain.StepCapture
}

func (c *Controller) evaluateGate(step domain.Step) (domain.GateDecision, string, error) {
	gate, err := c.cfg.Gates.Get(step)
	if errors.Is(err, domain.ErrGateNotRegistered) {
		return domain.GateDecision{Allow: true}, "", nil
	}
	if err != nil {
		return domain.GateDecision{}, "", err
	}
	decision, err := gate.Evaluate(c.ctx)
	if err != nil {
		return domain.GateDecision{}, gate.Name(), domain.WrapAuthError(domain.ErrValidationFailed.Code, "evaluate gate "+gate.Name(), err)
	}
	return decision, gate.Name(), nil
}

func (c *Controller) checkIdentityLocked() error {
	switch {
	case c.closed:
		return domain.ErrFlowClosed
	case c.step != domain.StepIdentity:
		return domain.ErrStepNotActive
	case c.state == domain.StateVerifying:
		return domain.ErrFlowBusy
	case c.hold:
		return domain.ErrInputSuppressed
	}
	return nil
}

func (c *Controller) checkCaptureLocked() error {
	switch {
	case c.closed:
		return domain.ErrFlowClosed
	case c.step == domain.StepIdentity:
		return domain.ErrStepNotActive
	case c.state == domain.StateVerifying:
		return domain.ErrFlowBusy
	case c.hold, c.state != domain.StateCollecting && c.state != domain.StateAwaitingConfirmation:
		return domain.ErrInputSuppressed
	}
	return nil
}

// submitLocked moves to Verifying and returns the remote call to launch once
// the lock is released.
func (c *Controller) submitLocked(token pattern.Token) (func(), error) {
	if c.cfg.Submit == nil {
		return nil, domain.NewAuthError(domain.ErrInvalidTransition.Code, "flow has no submit operation")
	}
	if err := c.setStateLocked(domain.StateVerifying); err != nil {
		return nil, err
	}
	c.message = domain.Message{}
	epoch, ctx := c.epoch, c.ctx
	return func() {
		payload, err := c.cfg.Submit(ctx, token)
		c.finishSubmit(epoch, payload, err)
	}, nil
}

func (c *Controller) finishSubmit(epoch uint64, payload json.RawMessage, err error) {
	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		c.logger.Debug("discarding stale submit result", "error", err)
		return
	}

	if err != nil {
		_ = c.setStateLocked(domain.StateFailed)
		c.message = domain.Message{Kind: domain.MessageError, Text: c.messageFor(err, c.cfg.Messages.SubmitFailed)}
		c.hold = true
		c.scheduleLocked(c.cfg.Timing.FailureDelay, c.rollbackLocked)
		c.logger.Info("submit rejected", "step", string(c.step), "error", err)
		c.unlockAndNotify()
		return
	}

	_ = c.setStateLocked(domain.StateSucceeded)
	c.payload = payload
	c.message = domain.Message{Kind: domain.MessageSuccess, Text: c.cfg.Messages.Success}
	onSuccess := c.cfg.OnSuccess
	c.logger.Info("flow succeeded", "step", string(c.step))
	snap, observers := c.snapshotLocked(), c.observers
	c.mu.Unlock()

	// OnSuccess runs before observers see the succeeded state.
	if onSuccess != nil {
		onSuccess(payload)
	}
	notify(snap, observers)
}

func (c *Controller) finishIdentity(epoch uint64, err error) {
	c.mu.Lock()
	if c.closed || epoch != c.epoch {
		c.mu.Unlock()
		c.logger.Debug("discarding stale identity result", "error", err)
		return
	}

	if err != nil {
		_ = c.setStateLocked(domain.StateFailed)
		c.message = domain.Message{Kind: domain.MessageError, Text: c.messageFor(err, c.cfg.Messages.IdentityFailed)}
		c.logger.Info("identity rejected", "error", err)
		c.unlockAndNotify()
		return
	}

	c.message = domain.Message{Kind: domain.MessageSuccess, Text: c.cfg.Messages.IdentityVerified}
	c.hold = true
	c.scheduleLocked(c.cfg.Timing.SuccessDelay, c.enterCaptureLocked)
	c.unlockAndNotify()
}

// enterCaptureLocked starts the first capture step.
func (c *Controller) enterCaptureLocked() {
	if c.state != domain.StateCollecting {
		_ = c.setStateLocked(domain.StateCollecting)
	}
	c.step = domain.StepCapture
	c.hold = false
	c.message = domain.Message{}
}

// enterConfirmLocked starts the confirmation step.
func (c *Controller) enterConfirmLocked() {
	_ = c.setStateLocked(domain.StateAwaitingConfirmation)
	c.step = domain.StepConfirm
	c.hold = false
	c.message = domain.Message{}
}

// restartLocked discards the pending credential after a mismatch.
func (c *Controller) restartLocked() {
	c.clearPendingLocked()
	_ = c.setStateLocked(domain.StateCollecting)
	c.step = domain.StepCapture
	c.hold = false
	c.message = domain.Message{}
}

// rollbackLocked returns to the step preceding a rejected submission. The
// rejection message stays visible.
func (c *Controller) rollbackLocked() {
	c.hold = false
	if c.cfg.Mode == domain.ModeConfirm && !c.cfg.RestartOnReject {
		_ = c.setStateLocked(domain.StateAwaitingConfirmation)
		c.step = domain.StepConfirm
		return
	}
	c.clearPendingLocked()
	_ = c.setStateLocked(domain.StateCollecting)
	c.step = domain.StepCapture
}

func (c *Controller) clearPendingLocked() {
	c.pending = ""
	c.hasPending = false
}

func (c *Controller) setStateLocked(to domain.FlowState) error {
	from := c.state
	if from == to {
		return nil
	}
	if !IsValidTransition(from, to) {
		c.logger.Error("illegal flow transition", "from", string(from), "to", string(to))
		return domain.NewAuthError(domain.ErrInvalidTransition.Code, string(from)+" -> "+string(to))
	}
	c.state = to
	c.logger.Debug("flow transition", "from", string(from), "to", string(to), "step", string(c.step))
	return nil
}

// scheduleLocked runs f under the lock after d unless the flow is cancelled,
// closed or rescheduled first.
func (c *Controller) scheduleLocked(d time.Duration, f func()) {
	c.stopTimerLocked()
	c.timerSeq++
	seq, epoch := c.timerSeq, c.epoch
	c.timer = c.sched.AfterFunc(d, func() {
		c.mu.Lock()
		if c.closed || epoch != c.epoch || seq != c.timerSeq {
			c.mu.Unlock()
			return
		}
		c.timer = nil
		f()
		c.unlockAndNotify()
	})
}

func (c *Controller) stopTimerLocked() {
	if c.timer != nil {
		c.timer.Stop()
		c.timer = nil
	}
	c.timerSeq++
}

func (c *Controller) messageFor(err error, fallback string) string {
	var remote *domain.RemoteError
	if errors.As(err, &remote) {
		if remote.Message != "" {
			return remote.Message
		}
		return fallback
	}
	return c.cfg.Messages.ServerError
}

func (c *Controller) snapshotLocked() domain.Snapshot {
	accepting := !c.closed && !c.hold && c.step != domain.StepIdentity &&
		(c.state == domain.StateCollecting || c.state == domain.StateAwaitingConfirmation)
	return domain.Snapshot{
		Mode:       c.cfg.Mode,
		Step:       c.step,
		State:      c.state,
		Message:    c.message,
		HasPending: c.hasPending,
		Hold:       c.hold,
		Accepting:  accepting,
		Payload:    c.payload,
	}
}

// unlockAndNotify releases the lock and then delivers a snapshot to every
// observer.
func (c *Controller) unlockAndNotify() {
	snap := c.snapshotLocked()
	observers := c.observers
	c.mu.Unlock()
	notify(snap, observers)
}

func notify(snap domain.Snapshot, observers []func(domain.Snapshot)) {
	for _, fn := range observers {
		fn(snap)
	}
}
