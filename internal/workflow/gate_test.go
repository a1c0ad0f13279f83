package workflow

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/patternlock/patternlock/internal/domain"
)

func TestFieldGate_AllowsValidFields(t *testing.T) {
	gate := &FieldGate{Validate: func() map[string]string { return nil }}

	decision, err := gate.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if !decision.Allow {
		t.Errorf("expected Allow=true, got false; blockers: %v", decision.Blockers)
	}
	if gate.Name() != "fields" {
		t.Errorf("Name = %q, want default", gate.Name())
	}
}

func TestFieldGate_BlocksInvalidFields(t *testing.T) {
	gate := &FieldGate{
		Label: "register",
		Validate: func() map[string]string {
			return map[string]string{
				"username": "Username is required",
				"email":    "Please enter a valid email",
			}
		},
	}

	decision, err := gate.Evaluate(context.Background())
	if err != nil {
		t.Fatalf("Evaluate: %v", err)
	}
	if decision.Allow {
		t.Fatal("expected Allow=false")
	}
	if len(decision.Blockers) != 2 {
		t.Fatalf("Blockers = %v, want 2", decision.Blockers)
	}
	if !strings.HasPrefix(decision.Blockers[0], "email:") {
		t.Errorf("Blockers not sorted: %v", decision.Blockers)
	}
	if decision.FieldErrors["username"] != "Username is required" {
		t.Errorf("FieldErrors = %v", decision.FieldErrors)
	}
}

func TestFieldGate_NilValidate(t *testing.T) {
	decision, err := (&FieldGate{}).Evaluate(context.Background())
	if err != nil || !decision.Allow {
		t.Errorf("Evaluate = %+v, %v", decision, err)
	}
}

func TestGateRegistry(t *testing.T) {
	reg := NewGateRegistry()
	gate := &FieldGate{Label: "identity"}
	reg.Register(domain.StepIdentity, gate)

	got, err := reg.Get(domain.StepIdentity)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.Name() != "identity" {
		t.Errorf("Name = %q", got.Name())
	}

	if _, err := reg.Get(domain.StepCapture); !errors.Is(err, domain.ErrGateNotRegistered) {
		t.Errorf("Get(capture) = %v, want ErrGateNotRegistered", err)
	}

	var nilReg *GateRegistry
	if _, err := nilReg.Get(domain.StepIdentity); !errors.Is(err, domain.ErrGateNotRegistered) {
		t.Errorf("nil registry Get = %v", err)
	}
}

func TestValidationError(t *testing.T) {
	err := &ValidationError{Gate: "identity", Fields: map[string]string{"name": "x", "email": "y"}}
	if got := err.Error(); got != "identity gate blocked: email, name" {
		t.Errorf("Error = %q", got)
	}
	if !errors.Is(err, domain.ErrValidationFailed) {
		t.Error("errors.Is(ValidationFailed) = false")
	}
	if errors.Is(err, domain.ErrFlowBusy) {
		t.Error("errors.Is(FlowBusy) = true")
	}
}
