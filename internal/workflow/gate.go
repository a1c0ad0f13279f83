package workflow

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/patternlock/patternlock/internal/domain"
)

// Gate evaluates whether a flow can leave a step.
type Gate interface {
	Name() string
	Evaluate(ctx context.Context) (domain.GateDecision, error)
}

// FieldGate blocks a step while any field predicate reports an error.
type FieldGate struct {
	Label string
	// Validate returns field name -> error text for every invalid field.
	Validate func() map[string]string
}

// Name returns the gate name.
func (g *FieldGate) Name() string {
	if g.Label == "" {
		return "fields"
	}
	return g.Label
}

// Evaluate runs the field predicates.
func (g *FieldGate) Evaluate(ctx context.Context) (domain.GateDecision, error) {
	decision := domain.GateDecision{Allow: true}
	if g.Validate == nil {
		return decision, nil
	}
	errs := g.Validate()
	if len(errs) == 0 {
		return decision, nil
	}

	decision.Allow = false
	decision.FieldErrors = make(map[string]string, len(errs))
	for field, msg := range errs {
		decision.FieldErrors[field] = msg
		decision.Blockers = append(decision.Blockers, field+": "+msg)
	}
	sort.Strings(decision.Blockers)
	return decision, nil
}

// GateRegistry maps each step to its gate implementation.
type GateRegistry struct {
	gates map[domain.Step]Gate
}

// NewGateRegistry creates an empty registry.
func NewGateRegistry() *GateRegistry {
	return &GateRegistry{gates: map[domain.Step]Gate{}}
}

// Register sets the gate for a step.
func (r *GateRegistry) Register(step domain.Step, gate Gate) {
	r.gates[step] = gate
}

// Get returns the gate for a step, or an error if none is registered.
func (r *GateRegistry) Get(step domain.Step) (Gate, error) {
	if r == nil {
		return nil, domain.ErrGateNotRegistered
	}
	g, ok := r.gates[step]
	if !ok {
		return nil, domain.ErrGateNotRegistered
	}
	return g, nil
}

// ValidationError reports the field errors that blocked a step.
type ValidationError struct {
	Gate   string
	Fields map[string]string
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	keys := make([]string, 0, len(e.Fields))
	for k := range e.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return fmt.Sprintf("%s gate blocked: %s", e.Gate, strings.Join(keys, ", "))
}

// Is makes errors.Is(err, domain.ErrValidationFailed) hold.
func (e *ValidationError) Is(target error) bool {
	t, ok := target.(*domain.AuthError)
	return ok && t.Code == domain.ErrValidationFailed.Code
}
