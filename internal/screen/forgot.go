package screen

import (
	"context"
	"encoding/json"

	"github.com/patternlock/patternlock/internal/domain"
	"github.com/patternlock/patternlock/internal/form"
	"github.com/patternlock/patternlock/internal/pattern"
	"github.com/patternlock/patternlock/internal/workflow"
)

// NewForgotPattern builds the reset screen: username and email checked by the
// verifier, then the new pattern drawn twice.
func NewForgotPattern(api API, opts Options) *Screen {
	def := definition{
		route:    RouteForgot,
		title:    "Reset Pattern",
		subtitle: "Forgot your pattern? Let's reset it!",
		next:     RouteSignIn,
		fields:   []string{form.FieldUsername, form.FieldEmail},
	}
	return newScreen(def, opts, func(s *Screen) workflow.Config {
		gates := workflow.NewGateRegistry()
		gates.Register(domain.StepIdentity, &workflow.FieldGate{
			Label: "recovery",
			Validate: func() map[string]string {
				id := s.identity()
				return form.Recovery(id.Username, id.Email)
			},
		})

		msgs := workflow.DefaultMessages()
		msgs.IdentityVerified = "User verified! Create your new pattern"
		msgs.IdentityFailed = "Verification failed"
		msgs.PatternSet = "Pattern set! Now confirm your new pattern"
		msgs.Success = "Pattern reset successful! Redirecting to login..."
		msgs.SubmitFailed = "Pattern reset failed"

		return workflow.Config{
			Mode:     domain.ModeConfirm,
			Identity: true,
			Gates:    gates,
			Messages: msgs,
			VerifyIdentity: func(ctx context.Context) error {
				id := s.identity()
				_, err := api.VerifyUser(ctx, id.Username, id.Email)
				return err
			},
			Submit: func(ctx context.Context, tok pattern.Token) (json.RawMessage, error) {
				id := s.identity()
				if _, err := api.ResetPattern(ctx, id.Username, id.Email, tok); err != nil {
					return nil, err
				}
				return nil, nil
			},
		}
	})
}
