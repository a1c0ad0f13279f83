package screen

import (
	"context"
	"errors"

	"github.com/patternlock/patternlock/internal/domain"
	"github.com/patternlock/patternlock/internal/session"
)

// Welcome is the dashboard shown to a signed-in user.
type Welcome struct {
	sessions session.Store
}

// NewWelcome creates the dashboard over sessions.
func NewWelcome(sessions session.Store) *Welcome {
	return &Welcome{sessions: sessions}
}

// Load returns the signed-in user's profile. Without a session it returns
// RouteSignIn as the redirect target.
func (w *Welcome) Load(ctx context.Context) (domain.UserProfile, Route, error) {
	payload, err := w.sessions.Load(ctx)
	if errors.Is(err, domain.ErrSessionNotFound) {
		return domain.UserProfile{}, RouteSignIn, nil
	}
	if err != nil {
		return domain.UserProfile{}, "", err
	}
	p, err := session.Profile(payload)
	if err != nil {
		return domain.UserProfile{}, RouteSignIn, nil
	}
	return p, "", nil
}

// Logout clears the session and returns the route to show next.
func (w *Welcome) Logout(ctx context.Context) (Route, error) {
	if err := w.sessions.Clear(ctx); err != nil {
		return "", err
	}
	return RouteSignIn, nil
}
