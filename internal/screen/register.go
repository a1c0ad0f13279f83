package screen

import (
	"context"
	"encoding/json"

	"github.com/patternlock/patternlock/internal/domain"
	"github.com/patternlock/patternlock/internal/form"
	"github.com/patternlock/patternlock/internal/pattern"
	"github.com/patternlock/patternlock/internal/workflow"
)

// NewRegister builds the registration screen: name, email and username, then
// a pattern drawn twice. A rejected registration restarts the capture.
func NewRegister(api API, opts Options) *Screen {
	def := definition{
		route:    RouteRegister,
		title:    "Create Account",
		subtitle: "Join with pattern-based authentication",
		next:     RouteSignIn,
		fields:   []string{form.FieldName, form.FieldEmail, form.FieldUsername},
	}
	return newScreen(def, opts, func(s *Screen) workflow.Config {
		gates := workflow.NewGateRegistry()
		gates.Register(domain.StepIdentity, &workflow.FieldGate{
			Label: "register",
			Validate: func() map[string]string {
				id := s.identity()
				return form.Registration(id.Name, id.Email, id.Username)
			},
		})

		msgs := workflow.DefaultMessages()
		msgs.PatternSet = "Pattern set! Now confirm your pattern"
		msgs.Success = "Registration successful! Redirecting..."
		msgs.SubmitFailed = "Registration failed"

		return workflow.Config{
			Mode:            domain.ModeConfirm,
			Identity:        true,
			Gates:           gates,
			RestartOnReject: true,
			Messages:        msgs,
			Submit: func(ctx context.Context, tok pattern.Token) (json.RawMessage, error) {
				resp, err := api.Register(ctx, s.identity(), tok)
				if err != nil {
					return nil, err
				}
				return userPayload(resp), nil
			},
		}
	})
}
