package screen

import (
	"context"
	"encoding/json"

	"github.com/patternlock/patternlock/internal/domain"
	"github.com/patternlock/patternlock/internal/form"
	"github.com/patternlock/patternlock/internal/pattern"
	"github.com/patternlock/patternlock/internal/session"
	"github.com/patternlock/patternlock/internal/workflow"
)

// NewSignIn builds the sign-in screen: a username, then one pattern. The
// verifier's user payload is saved to sessions once the flow accepts it; a
// result arriving after Close is dropped.
func NewSignIn(api API, sessions session.Store, opts Options) *Screen {
	def := definition{
		route:    RouteSignIn,
		title:    "Welcome Back",
		subtitle: "Sign in with your pattern",
		next:     RouteWelcome,
		fields:   []string{form.FieldUsername},
	}
	return newScreen(def, opts, func(s *Screen) workflow.Config {
		gates := workflow.NewGateRegistry()
		gates.Register(domain.StepIdentity, &workflow.FieldGate{
			Label: "signin",
			Validate: func() map[string]string {
				return form.SignIn(s.Field(form.FieldUsername))
			},
		})

		msgs := workflow.DefaultMessages()
		msgs.Success = "Authentication successful!"
		msgs.SubmitFailed = "Authentication failed"
		msgs.FixErrors = "Please fix the error below"

		return workflow.Config{
			Mode:     domain.ModeSingle,
			Identity: true,
			Gates:    gates,
			Messages: msgs,
			Submit: func(ctx context.Context, tok pattern.Token) (json.RawMessage, error) {
				resp, err := api.SignIn(ctx, s.Field(form.FieldUsername), tok)
				if err != nil {
					return nil, err
				}
				return userPayload(resp), nil
			},
			OnSuccess: func(payload json.RawMessage) {
				if sessions == nil {
					return
				}
				if err := sessions.Save(context.Background(), payload); err != nil {
					s.logger.Error("save session", "error", err)
				}
			},
		}
	})
}
