package screen

import (
	"context"
	"encoding/json"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/patternlock/patternlock/internal/client"
	"github.com/patternlock/patternlock/internal/clock"
	"github.com/patternlock/patternlock/internal/domain"
	"github.com/patternlock/patternlock/internal/gesture"
	"github.com/patternlock/patternlock/internal/grid"
	"github.com/patternlock/patternlock/internal/pattern"
	"github.com/patternlock/patternlock/internal/session"
	"github.com/patternlock/patternlock/internal/workflow"
)

type call struct {
	op       string
	identity domain.Identity
	token    pattern.Token
}

type fakeAPI struct {
	mu        sync.Mutex
	calls     []call
	err       map[string]error
	userBytes json.RawMessage
	// block, when set, holds the named call until the channel is closed.
	block map[string]chan struct{}
}

func newFakeAPI() *fakeAPI {
	return &fakeAPI{err: map[string]error{}, block: map[string]chan struct{}{}, userBytes: json.RawMessage(`{"id":"u-1","name":"Ada","email":"ada@example.com","username":"ada"}`)}
}

func (f *fakeAPI) record(c call) error {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	err, wait := f.err[c.op], f.block[c.op]
	f.mu.Unlock()
	if wait != nil {
		<-wait
	}
	return err
}

func (f *fakeAPI) ops() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []string
	for _, c := range f.calls {
		out = append(out, c.op)
	}
	return out
}

func (f *fakeAPI) last() call {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls[len(f.calls)-1]
}

func (f *fakeAPI) Register(ctx context.Context, id domain.Identity, tok pattern.Token) (*client.Response, error) {
	if err := f.record(call{op: "register", identity: id, token: tok}); err != nil {
		return nil, err
	}
	return &client.Response{Message: "ok", User: f.userBytes}, nil
}

func (f *fakeAPI) SignIn(ctx context.Context, username string, tok pattern.Token) (*client.Response, error) {
	if err := f.record(call{op: "signin", identity: domain.Identity{Username: username}, token: tok}); err != nil {
		return nil, err
	}
	return &client.Response{Message: "ok", User: f.userBytes}, nil
}

func (f *fakeAPI) VerifyUser(ctx context.Context, username, email string) (*client.Response, error) {
	if err := f.record(call{op: "verify", identity: domain.Identity{Username: username, Email: email}}); err != nil {
		return nil, err
	}
	return &client.Response{Message: "ok"}, nil
}

func (f *fakeAPI) ResetPattern(ctx context.Context, username, email string, tok pattern.Token) (*client.Response, error) {
	if err := f.record(call{op: "reset", identity: domain.Identity{Username: username, Email: email}, token: tok}); err != nil {
		return nil, err
	}
	return &client.Response{Message: "ok"}, nil
}

func testOptions(sched *clock.Manual) Options {
	return Options{
		Geometry:  grid.Uniform{Width: 300, Height: 300, NodeWidth: 40, NodeHeight: 40},
		MinLength: 4,
		Timing:    workflow.DefaultTiming(),
		Scheduler: sched,
		Spawn:     func(f func()) { f() },
	}
}

func draw(rec *gesture.Recorder, nodes ...int) {
	rec.Press(nodes[0])
	for _, n := range nodes[1:] {
		rec.Enter(n)
	}
	rec.Release()
}

func TestRegister_FullFlow(t *testing.T) {
	sched := clock.NewManual()
	api := newFakeAPI()
	s := NewRegister(api, testOptions(sched))
	defer s.Close()

	v := s.View()
	assert.Equal(t, domain.StepIdentity, v.Flow.Step)
	assert.Equal(t, "Create Account", v.Title)
	assert.False(t, s.Recorder().Enabled(), "no gestures on the identity step")

	require.NoError(t, s.SetField("name", "Ada Lovelace"))
	require.NoError(t, s.SetField("email", "ada@example.com"))
	require.NoError(t, s.SetField("username", "ada"))
	require.NoError(t, s.SubmitIdentity())

	v = s.View()
	assert.Equal(t, domain.StepCapture, v.Flow.Step)
	assert.Equal(t, "Create Your Pattern", v.Title)
	assert.True(t, s.Recorder().Enabled())
	assert.ErrorIs(t, s.SetField("name", "Eve"), domain.ErrStepNotActive)

	draw(s.Recorder(), 0, 1, 2, 5)
	v = s.View()
	assert.Equal(t, "Pattern set! Now confirm your pattern", v.Flow.Message.Text)
	assert.Equal(t, pattern.Sequence{0, 1, 2, 5}, v.Sequence, "pattern stays drawn during the delay")

	sched.Advance(time.Second)
	v = s.View()
	assert.Equal(t, domain.StepConfirm, v.Flow.Step)
	assert.Empty(t, v.Sequence, "confirm step starts on a clean grid")

	draw(s.Recorder(), 0, 1, 2, 5)
	assert.Equal(t, []string{"register"}, api.ops())
	last := api.last()
	assert.Equal(t, pattern.Token("0-1-2-5"), last.token)
	assert.Equal(t, domain.Identity{Name: "Ada Lovelace", Email: "ada@example.com", Username: "ada"}, last.identity)

	v = s.View()
	assert.Equal(t, domain.StateSucceeded, v.Flow.State)
	assert.Equal(t, "Registration successful! Redirecting...", v.Flow.Message.Text)
	next, ok := s.Next()
	assert.True(t, ok)
	assert.Equal(t, RouteSignIn, next)
}

func TestRegister_InvalidFields(t *testing.T) {
	s := NewRegister(newFakeAPI(), testOptions(clock.NewManual()))
	defer s.Close()

	require.NoError(t, s.SetField("name", "A"))
	err := s.SubmitIdentity()
	assert.ErrorIs(t, err, domain.ErrValidationFailed)

	v := s.View()
	assert.Equal(t, domain.StepIdentity, v.Flow.Step)
	assert.Equal(t, "Name must be at least 2 characters", v.FieldErrors["name"])
	assert.Equal(t, "Email is required", v.FieldErrors["email"])
	assert.Equal(t, "Please fix the errors below", v.Flow.Message.Text)
}

func TestRegister_MismatchClearsAndRestarts(t *testing.T) {
	sched := clock.NewManual()
	s := NewRegister(newFakeAPI(), testOptions(sched))
	defer s.Close()
	s.SetField("name", "Ada")
	s.SetField("email", "ada@example.com")
	s.SetField("username", "ada")
	require.NoError(t, s.SubmitIdentity())

	draw(s.Recorder(), 0, 1, 2, 5)
	sched.Advance(time.Second)
	draw(s.Recorder(), 0, 1, 2, 4)

	v := s.View()
	assert.Equal(t, "Patterns do not match! Try again", v.Flow.Message.Text)
	assert.False(t, s.Recorder().Enabled())

	sched.Advance(1500 * time.Millisecond)
	v = s.View()
	assert.Equal(t, domain.StepCapture, v.Flow.Step)
	assert.False(t, v.Flow.HasPending)
	assert.Empty(t, v.Sequence)
	assert.True(t, s.Recorder().Enabled())
}

func TestRegister_RejectedRestartsCapture(t *testing.T) {
	sched := clock.NewManual()
	api := newFakeAPI()
	api.err["register"] = &domain.RemoteError{Status: 409, Message: "Username or email already exists"}
	s := NewRegister(api, testOptions(sched))
	defer s.Close()
	s.SetField("name", "Ada")
	s.SetField("email", "ada@example.com")
	s.SetField("username", "ada")
	require.NoError(t, s.SubmitIdentity())

	draw(s.Recorder(), 0, 1, 2, 5)
	sched.Advance(time.Second)
	draw(s.Recorder(), 0, 1, 2, 5)
	assert.Equal(t, "Username or email already exists", s.View().Flow.Message.Text)

	sched.Advance(1500 * time.Millisecond)
	v := s.View()
	assert.Equal(t, domain.StepCapture, v.Flow.Step)
	assert.Equal(t, domain.StateCollecting, v.Flow.State)
	assert.Empty(t, v.Sequence)
}

func TestRegister_BackReturnsToForm(t *testing.T) {
	s := NewRegister(newFakeAPI(), testOptions(clock.NewManual()))
	defer s.Close()
	s.SetField("name", "Ada")
	s.SetField("email", "ada@example.com")
	s.SetField("username", "ada")
	require.NoError(t, s.SubmitIdentity())

	s.Recorder().Press(0)
	s.Recorder().Enter(1)
	require.NoError(t, s.Back())

	v := s.View()
	assert.Equal(t, domain.StepIdentity, v.Flow.Step)
	assert.Empty(t, v.Sequence)
	assert.Equal(t, "Ada", v.Fields["name"], "fields survive going back")
}

func TestSignIn_SavesSession(t *testing.T) {
	sched := clock.NewManual()
	api := newFakeAPI()
	sessions := session.NewMemory()
	s := NewSignIn(api, sessions, testOptions(sched))
	defer s.Close()

	require.NoError(t, s.SetField("username", "ada"))
	require.NoError(t, s.SubmitIdentity())
	assert.Equal(t, "Draw Your Pattern", s.View().Title)

	draw(s.Recorder(), 6, 3, 0, 1, 2)
	assert.Equal(t, "ada", api.last().identity.Username)
	assert.Equal(t, pattern.Token("6-3-0-1-2"), api.last().token)

	v := s.View()
	assert.Equal(t, "Authentication successful!", v.Flow.Message.Text)
	assert.JSONEq(t, string(api.userBytes), string(v.Flow.Payload))

	stored, err := sessions.Load(context.Background())
	require.NoError(t, err)
	assert.JSONEq(t, string(api.userBytes), string(stored))

	next, ok := s.Next()
	assert.True(t, ok)
	assert.Equal(t, RouteWelcome, next)
}

func TestSignIn_RejectedReturnsToCapture(t *testing.T) {
	sched := clock.NewManual()
	api := newFakeAPI()
	api.err["signin"] = &domain.RemoteError{Status: 401}
	sessions := session.NewMemory()
	s := NewSignIn(api, sessions, testOptions(sched))
	defer s.Close()

	s.SetField("username", "ada")
	require.NoError(t, s.SubmitIdentity())
	draw(s.Recorder(), 0, 1, 2, 5)

	v := s.View()
	assert.Equal(t, "Authentication failed", v.Flow.Message.Text, "fallback text for an empty rejection")
	assert.False(t, s.Recorder().Press(4), "input ignored while the failure shows")

	sched.Advance(1500 * time.Millisecond)
	v = s.View()
	assert.Equal(t, domain.StateCollecting, v.Flow.State)
	assert.Empty(t, v.Sequence)
	assert.True(t, s.Recorder().Press(0))

	_, err := sessions.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
	_, ok := s.Next()
	assert.False(t, ok)
}

func TestSignIn_ShortPatternNeverSubmits(t *testing.T) {
	sched := clock.NewManual()
	api := newFakeAPI()
	s := NewSignIn(api, nil, testOptions(sched))
	defer s.Close()
	s.SetField("username", "ada")
	require.NoError(t, s.SubmitIdentity())

	draw(s.Recorder(), 0, 1, 2)
	sched.Advance(500 * time.Millisecond)
	assert.Empty(t, api.ops())
	assert.Empty(t, s.View().Sequence)
}

func TestSignIn_ResultAfterCloseNotSaved(t *testing.T) {
	api := newFakeAPI()
	api.block["signin"] = make(chan struct{})
	sessions := session.NewMemory()
	opts := testOptions(clock.NewManual())
	done := make(chan struct{})
	opts.Spawn = func(f func()) {
		go func() {
			defer close(done)
			f()
		}()
	}
	s := NewSignIn(api, sessions, opts)

	s.SetField("username", "ada")
	require.NoError(t, s.SubmitIdentity())
	draw(s.Recorder(), 0, 1, 2, 5)
	assert.Equal(t, domain.StateVerifying, s.View().Flow.State)

	s.Close()
	close(api.block["signin"])
	<-done

	_, err := sessions.Load(context.Background())
	assert.ErrorIs(t, err, domain.ErrSessionNotFound, "a closed screen never signs the user in")
	assert.NotEqual(t, domain.StateSucceeded, s.View().Flow.State)
	_, ok := s.Next()
	assert.False(t, ok)
}

func TestForgot_FieldsFrozenOnceChecked(t *testing.T) {
	sched := clock.NewManual()
	api := newFakeAPI()
	api.block["verify"] = make(chan struct{})
	opts := testOptions(sched)
	done := make(chan struct{})
	opts.Spawn = func(f func()) {
		go func() {
			defer close(done)
			f()
		}()
	}
	s := NewForgotPattern(api, opts)
	defer s.Close()

	s.SetField("username", "ada")
	s.SetField("email", "ada@example.com")
	require.NoError(t, s.SubmitIdentity())
	assert.ErrorIs(t, s.SetField("username", "mallory"), domain.ErrFlowBusy, "frozen while the check runs")

	close(api.block["verify"])
	<-done
	require.True(t, s.View().Flow.Hold)
	assert.ErrorIs(t, s.SetField("username", "mallory"), domain.ErrInputSuppressed, "frozen after the check passes")
	assert.Equal(t, "ada", s.Field("username"))

	sched.Advance(time.Second)
	assert.ErrorIs(t, s.SetField("username", "mallory"), domain.ErrStepNotActive)
}

func TestForgot_FullFlow(t *testing.T) {
	sched := clock.NewManual()
	api := newFakeAPI()
	s := NewForgotPattern(api, testOptions(sched))
	defer s.Close()

	s.SetField("username", "ada")
	s.SetField("email", "ada@example.com")
	require.NoError(t, s.SubmitIdentity())
	assert.Equal(t, []string{"verify"}, api.ops())
	assert.Equal(t, "User verified! Create your new pattern", s.View().Flow.Message.Text)
	assert.False(t, s.Recorder().Enabled())

	sched.Advance(time.Second)
	assert.Equal(t, "Create Your New Pattern", s.View().Title)
	draw(s.Recorder(), 2, 4, 6, 7)
	assert.Equal(t, "Pattern set! Now confirm your new pattern", s.View().Flow.Message.Text)
	sched.Advance(time.Second)
	assert.Equal(t, "Confirm Your New Pattern", s.View().Title)
	draw(s.Recorder(), 2, 4, 6, 7)

	assert.Equal(t, []string{"verify", "reset"}, api.ops())
	assert.Equal(t, domain.Identity{Username: "ada", Email: "ada@example.com"}, api.last().identity)
	assert.Equal(t, "Pattern reset successful! Redirecting to login...", s.View().Flow.Message.Text)
	next, ok := s.Next()
	assert.True(t, ok)
	assert.Equal(t, RouteSignIn, next)
}

func TestForgot_VerificationFails(t *testing.T) {
	api := newFakeAPI()
	api.err["verify"] = &domain.RemoteError{Status: 404, Message: "User not found or email does not match"}
	s := NewForgotPattern(api, testOptions(clock.NewManual()))
	defer s.Close()

	s.SetField("username", "ada")
	s.SetField("email", "ada@example.com")
	require.NoError(t, s.SubmitIdentity())

	v := s.View()
	assert.Equal(t, domain.StepIdentity, v.Flow.Step)
	assert.Equal(t, "User not found or email does not match", v.Flow.Message.Text)
	assert.NoError(t, s.SetField("email", "other@example.com"), "fields stay editable after a rejection")
}

func TestForgot_ResetRejectedStaysOnConfirm(t *testing.T) {
	sched := clock.NewManual()
	api := newFakeAPI()
	api.err["reset"] = &domain.RemoteError{Status: 500}
	s := NewForgotPattern(api, testOptions(sched))
	defer s.Close()

	s.SetField("username", "ada")
	s.SetField("email", "ada@example.com")
	require.NoError(t, s.SubmitIdentity())
	sched.Advance(time.Second)
	draw(s.Recorder(), 2, 4, 6, 7)
	sched.Advance(time.Second)
	draw(s.Recorder(), 2, 4, 6, 7)
	assert.Equal(t, "Pattern reset failed", s.View().Flow.Message.Text)

	sched.Advance(1500 * time.Millisecond)
	v := s.View()
	assert.Equal(t, domain.StepConfirm, v.Flow.Step)
	assert.Equal(t, domain.StateAwaitingConfirmation, v.Flow.State)
	assert.Empty(t, v.Sequence)

	api.err["reset"] = nil
	draw(s.Recorder(), 2, 4, 6, 7)
	assert.Equal(t, domain.StateSucceeded, s.View().Flow.State)
}

func TestScreen_OnChangeAndReset(t *testing.T) {
	sched := clock.NewManual()
	opts := testOptions(sched)
	changes := 0
	opts.OnChange = func() { changes++ }
	s := NewSignIn(newFakeAPI(), nil, opts)
	defer s.Close()

	s.SetField("username", "ada")
	require.NoError(t, s.SubmitIdentity())
	before := changes
	s.Recorder().PressAt(grid.Point{X: 50, Y: 50})
	s.Recorder().Move(grid.Point{X: 150, Y: 50})
	assert.Greater(t, changes, before)

	s.ResetPattern()
	assert.Empty(t, s.View().Sequence)
}

func TestWelcome(t *testing.T) {
	ctx := context.Background()
	sessions := session.NewMemory()
	w := NewWelcome(sessions)

	_, redirect, err := w.Load(ctx)
	require.NoError(t, err)
	assert.Equal(t, RouteSignIn, redirect, "no session sends the user to sign in")

	require.NoError(t, sessions.Save(ctx, json.RawMessage(`{"name":"Ada","email":"ada@example.com","username":"ada"}`)))
	p, redirect, err := w.Load(ctx)
	require.NoError(t, err)
	assert.Empty(t, redirect)
	assert.Equal(t, "Ada", p.Name)

	next, err := w.Logout(ctx)
	require.NoError(t, err)
	assert.Equal(t, RouteSignIn, next)
	_, err = sessions.Load(ctx)
	assert.ErrorIs(t, err, domain.ErrSessionNotFound)
}
