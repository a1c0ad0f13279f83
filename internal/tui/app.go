// Package tui is the terminal front end: a bubbletea program that shows one
// screen at a time, maps mouse drags over the canvas onto the gesture
// recorder and routes between screens once a flow succeeds.
package tui

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/patternlock/patternlock/internal/domain"
	"github.com/patternlock/patternlock/internal/form"
	"github.com/patternlock/patternlock/internal/gesture"
	"github.com/patternlock/patternlock/internal/logging"
	"github.com/patternlock/patternlock/internal/screen"
	"github.com/patternlock/patternlock/internal/session"
)

// DefaultRedirectDelay is how long a success message shows before the next
// screen opens.
const DefaultRedirectDelay = 1500 * time.Millisecond

// Screen-relative position of the first canvas cell: a two column margin plus
// the border, below the five header lines plus the border.
const (
	canvasOriginX = 3
	canvasOriginY = 6
)

var (
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("243"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	helpStyle    = lipgloss.NewStyle().Faint(true)
	canvasStyle  = lipgloss.NewStyle().Border(lipgloss.RoundedBorder()).BorderForeground(lipgloss.Color("240"))
)

var fieldLabels = map[string]string{
	form.FieldName:     "Full name",
	form.FieldEmail:    "Email",
	form.FieldUsername: "Username",
}

// Deps are the collaborators the app builds its screens from.
type Deps struct {
	API      screen.API
	Sessions session.Store
	// Options is copied into every screen. Geometry and OnChange are set by
	// the app.
	Options       screen.Options
	RedirectDelay time.Duration
	Logger        *slog.Logger
}

type refreshMsg struct{}

// routeMsg opens route if the screen that scheduled it is still on display.
type routeMsg struct {
	route screen.Route
	gen   uint64
}

// App is the bubbletea model.
type App struct {
	deps    Deps
	logger  *slog.Logger
	refresh chan struct{}

	route   screen.Route
	screen  *screen.Screen
	welcome *screen.Welcome
	profile domain.UserProfile

	inputs []textinput.Model
	names  []string
	focus  int

	gen         uint64
	redirecting bool
	status      string
}

// New creates the app showing start.
func New(deps Deps, start screen.Route) *App {
	if deps.RedirectDelay <= 0 {
		deps.RedirectDelay = DefaultRedirectDelay
	}
	logger := deps.Logger
	if logger == nil {
		logger = logging.Discard()
	}
	a := &App{
		deps:    deps,
		logger:  logger,
		refresh: make(chan struct{}, 1),
	}
	a.deps.Options.Geometry = CanvasGeometry()
	a.deps.Options.OnChange = a.notify
	if a.deps.Options.Logger == nil {
		a.deps.Options.Logger = logger
	}
	a.open(start)
	return a
}

// Route returns the screen on display.
func (a *App) Route() screen.Route { return a.route }

// Screen returns the pattern screen on display, nil on the welcome screen.
func (a *App) Screen() *screen.Screen { return a.screen }

// Close releases the current screen.
func (a *App) Close() {
	if a.screen != nil {
		a.screen.Close()
	}
}

// Init implements tea.Model.
func (a *App) Init() tea.Cmd {
	return tea.Batch(textinput.Blink, waitForRefresh(a.refresh))
}

// waitForRefresh blocks until a screen reports a change.
func waitForRefresh(ch <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		<-ch
		return refreshMsg{}
	}
}

// notify runs on whatever goroutine changed the screen. It never blocks.
func (a *App) notify() {
	select {
	case a.refresh <- struct{}{}:
	default:
	}
}

// Update implements tea.Model.
func (a *App) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case refreshMsg:
		return a, tea.Batch(waitForRefresh(a.refresh), a.checkRedirect())
	case routeMsg:
		if msg.gen != a.gen {
			a.logger.Debug("dropping stale redirect", "route", string(msg.route))
			return a, nil
		}
		a.open(msg.route)
		return a, textinput.Blink
	case tea.KeyMsg:
		return a.handleKey(msg)
	case tea.MouseMsg:
		a.handleMouse(msg)
		return a, a.checkRedirect()
	}
	return a, nil
}

func (a *App) open(route screen.Route) {
	if a.screen != nil {
		a.screen.Close()
	}
	a.gen++
	a.screen, a.welcome = nil, nil
	a.inputs, a.names, a.focus = nil, nil, 0
	a.redirecting = false
	a.status = ""
	a.route = route

	switch route {
	case screen.RouteWelcome:
		a.welcome = screen.NewWelcome(a.deps.Sessions)
		profile, redirect, err := a.welcome.Load(context.Background())
		if err != nil {
			a.logger.Error("load session", "error", err)
		}
		if redirect != "" || err != nil {
			a.open(screen.RouteSignIn)
			return
		}
		a.profile = profile
		return
	case screen.RouteSignIn:
		a.screen = screen.NewSignIn(a.deps.API, a.deps.Sessions, a.deps.Options)
	case screen.RouteForgot:
		a.screen = screen.NewForgotPattern(a.deps.API, a.deps.Options)
	default:
		a.route = screen.RouteRegister
		a.screen = screen.NewRegister(a.deps.API, a.deps.Options)
	}

	a.names = a.screen.Fields()
	for i, name := range a.names {
		in := textinput.New()
		in.Placeholder = fieldLabels[name]
		in.CharLimit = 64
		in.Width = 32
		if i == 0 {
			in.Focus()
		}
		a.inputs = append(a.inputs, in)
	}
	a.logger.Debug("screen opened", "route", string(route))
}

func (a *App) checkRedirect() tea.Cmd {
	if a.screen == nil || a.redirecting {
		return nil
	}
	next, ok := a.screen.Next()
	if !ok {
		return nil
	}
	a.redirecting = true
	gen := a.gen
	return tea.Tick(a.deps.RedirectDelay, func(time.Time) tea.Msg {
		return routeMsg{route: next, gen: gen}
	})
}

func (a *App) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c":
		return a, tea.Quit
	case "ctrl+r":
		a.open(screen.RouteRegister)
		return a, textinput.Blink
	case "ctrl+s":
		a.open(screen.RouteSignIn)
		return a, textinput.Blink
	case "ctrl+f":
		a.open(screen.RouteForgot)
		return a, textinput.Blink
	}

	if a.welcome != nil {
		switch msg.String() {
		case "q":
			return a, tea.Quit
		case "l":
			next, err := a.welcome.Logout(context.Background())
			if err != nil {
				a.status = err.Error()
				return a, nil
			}
			a.open(next)
			return a, textinput.Blink
		}
		return a, nil
	}

	if msg.Type == tea.KeyEsc {
		if err := a.screen.Back(); err != nil {
			a.logger.Debug("back ignored", "error", err)
		}
		return a, nil
	}

	if a.screen.View().Flow.Step == domain.StepIdentity {
		return a.handleFieldKey(msg)
	}
	a.handleCaptureKey(msg)
	return a, a.checkRedirect()
}

func (a *App) handleFieldKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyTab, tea.KeyDown:
		a.setFocus(a.focus + 1)
		return a, nil
	case tea.KeyShiftTab, tea.KeyUp:
		a.setFocus(a.focus - 1)
		return a, nil
	case tea.KeyEnter:
		a.status = ""
		if err := a.screen.SubmitIdentity(); err != nil {
			a.logger.Debug("identity not accepted", "error", err)
		}
		return a, nil
	}

	if len(a.inputs) == 0 {
		return a, nil
	}
	var cmd tea.Cmd
	a.inputs[a.focus], cmd = a.inputs[a.focus].Update(msg)
	name := a.names[a.focus]
	if err := a.screen.SetField(name, a.inputs[a.focus].Value()); err != nil {
		a.logger.Debug("field frozen", "field", name, "error", err)
		a.inputs[a.focus].SetValue(a.screen.Field(name))
	}
	return a, cmd
}

func (a *App) setFocus(i int) {
	if len(a.inputs) == 0 {
		return
	}
	i = (i + len(a.inputs)) % len(a.inputs)
	a.inputs[a.focus].Blur()
	a.focus = i
	a.inputs[a.focus].Focus()
}

// handleCaptureKey draws with the keyboard: digits 1-9 press or extend the
// gesture, enter releases it.
func (a *App) handleCaptureKey(msg tea.KeyMsg) {
	rec := a.screen.Recorder()
	switch {
	case msg.Type == tea.KeyEnter:
		rec.Release()
	case msg.Type == tea.KeyBackspace || msg.String() == "r":
		a.screen.ResetPattern()
	case msg.Type == tea.KeyRunes && len(msg.Runes) == 1 && msg.Runes[0] >= '1' && msg.Runes[0] <= '9':
		node := int(msg.Runes[0] - '1')
		if rec.State() == gesture.Active {
			rec.Enter(node)
		} else {
			rec.Press(node)
		}
	}
}

// handleMouse maps left button drags over the canvas onto the recorder.
// Leaving the canvas mid-drag ends the gesture.
func (a *App) handleMouse(msg tea.MouseMsg) {
	if a.screen == nil {
		return
	}
	rec := a.screen.Recorder()
	x, y := msg.X-canvasOriginX, msg.Y-canvasOriginY
	inside := x >= 0 && x < CanvasCols && y >= 0 && y < CanvasRows

	switch msg.Action {
	case tea.MouseActionPress:
		if msg.Button == tea.MouseButtonLeft && inside {
			rec.PressAt(CellPoint(x, y))
		}
	case tea.MouseActionMotion:
		if rec.State() != gesture.Active {
			return
		}
		if !inside {
			rec.Leave()
			return
		}
		rec.Move(CellPoint(x, y))
	case tea.MouseActionRelease:
		rec.Release()
	}
}

// View implements tea.Model.
func (a *App) View() string {
	if a.welcome != nil {
		return a.welcomeView()
	}
	v := a.screen.View()

	var b strings.Builder
	b.WriteString(titleStyle.Render(v.Title) + "\n")
	b.WriteString(subtleStyle.Render(v.Subtitle) + "\n\n")
	b.WriteString(renderMessage(v.Flow.Message) + "\n\n")

	if v.Flow.Step == domain.StepIdentity {
		for i, in := range a.inputs {
			b.WriteString("  " + fieldLabels[a.names[i]] + "\n")
			b.WriteString("  " + in.View() + "\n")
			if msg := v.FieldErrors[a.names[i]]; msg != "" {
				b.WriteString("  " + errorStyle.Render(msg) + "\n")
			}
			b.WriteString("\n")
		}
		b.WriteString(helpStyle.Render("tab next field • enter continue • ctrl+r register • ctrl+s sign in • ctrl+f forgot pattern • ctrl+c quit"))
		return b.String()
	}

	style := canvasStyle
	switch v.Flow.Message.Kind {
	case domain.MessageSuccess:
		style = style.BorderForeground(lipgloss.Color("42"))
	case domain.MessageError:
		style = style.BorderForeground(lipgloss.Color("196"))
	}
	canvas := style.Render(strings.Join(RenderCanvas(a.screen.Grid().Anchors(), v.Sequence), "\n"))
	for _, line := range strings.Split(canvas, "\n") {
		b.WriteString("  " + line + "\n")
	}
	b.WriteString(subtleStyle.Render(fmt.Sprintf("  Connect at least %d dots", v.MinLength)) + "\n\n")
	b.WriteString(helpStyle.Render("drag or type 1-9 • enter finish • r reset pattern • esc back • ctrl+c quit"))
	return b.String()
}

func (a *App) welcomeView() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render(fmt.Sprintf("Welcome, %s!", a.profile.Name)) + "\n")
	b.WriteString(subtleStyle.Render("You have successfully authenticated with your pattern") + "\n\n")
	fmt.Fprintf(&b, "  Username: %s\n", a.profile.Username)
	fmt.Fprintf(&b, "  Email:    %s\n", a.profile.Email)
	if !a.profile.CreatedAt.IsZero() {
		fmt.Fprintf(&b, "  Member since: %s\n", a.profile.CreatedAt.Format("2006-01-02"))
	}
	if a.status != "" {
		b.WriteString("\n" + errorStyle.Render(a.status) + "\n")
	}
	b.WriteString("\n" + helpStyle.Render("l logout • q quit"))
	return b.String()
}

func renderMessage(m domain.Message) string {
	switch m.Kind {
	case domain.MessageSuccess:
		return successStyle.Render(m.Text)
	case domain.MessageError:
		return errorStyle.Render(m.Text)
	}
	return m.Text
}
