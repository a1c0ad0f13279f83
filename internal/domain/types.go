// Package domain defines the core types shared by the pattern authentication
// flows, the remote verifier and the persistence layer.
package domain

import (
	"encoding/json"
	"time"
)

// Mode selects how many captures a flow needs before it submits.
type Mode string

const (
	// ModeSingle submits the first valid capture (sign-in).
	ModeSingle Mode = "single"
	// ModeConfirm requires the same pattern twice (registration, reset).
	ModeConfirm Mode = "confirm"
)

// FlowState is the state held by the flow controller.
type FlowState string

const (
	StateCollecting           FlowState = "collecting"
	StateAwaitingConfirmation FlowState = "awaiting_confirmation"
	StateVerifying            FlowState = "verifying"
	StateFailed               FlowState = "failed"
	StateSucceeded            FlowState = "succeeded"
)

// Step identifies which screen section a flow is showing.
type Step string

const (
	StepIdentity Step = "identity"
	StepCapture  Step = "capture"
	StepConfirm  Step = "confirm"
)

// MessageKind classifies a transient user-facing message.
type MessageKind string

const (
	MessageNone    MessageKind = ""
	MessageSuccess MessageKind = "success"
	MessageError   MessageKind = "error"
)

// Message is the transient success/error line shown above a flow.
type Message struct {
	Kind MessageKind `json:"type"`
	Text string      `json:"text"`
}

// Empty reports whether there is nothing to show.
func (m Message) Empty() bool {
	return m.Text == ""
}

// Snapshot is a read-only copy of a flow controller's state for rendering.
type Snapshot struct {
	Mode       Mode
	Step       Step
	State      FlowState
	Message    Message
	HasPending bool
	// Hold is set while a success or failure message delays the next step.
	Hold bool
	// Accepting reports whether gesture input is currently consumed.
	Accepting bool
	// Payload is the verifier's success payload, set once State is succeeded.
	Payload json.RawMessage
}

// GateDecision is the result of evaluating a step's exit conditions.
type GateDecision struct {
	Allow       bool
	Blockers    []string
	FieldErrors map[string]string
}

// Identity holds the caller-supplied identity fields of a flow.
type Identity struct {
	Name     string `json:"name,omitempty"`
	Email    string `json:"email,omitempty"`
	Username string `json:"username"`
}

// User is a stored account on the verifier side.
type User struct {
	ID          string
	Name        string
	Email       string
	Username    string
	PatternHash string
	CreatedAt   int64
	UpdatedAt   int64
}

// Profile returns the public view of the user.
func (u User) Profile() UserProfile {
	return UserProfile{
		ID:        u.ID,
		Name:      u.Name,
		Email:     u.Email,
		Username:  u.Username,
		CreatedAt: time.Unix(u.CreatedAt, 0).UTC(),
	}
}

// UserProfile is the identity payload returned on successful sign-in.
type UserProfile struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"createdAt"`
}

// AuditRecord logs a verifier-side authentication event.
type AuditRecord struct {
	ID         string `json:"id"`
	Username   string `json:"username"`
	Action     string `json:"action"`
	Outcome    string `json:"outcome"`
	Detail     string `json:"detail"`
	RemoteAddr string `json:"remote_addr"`
	CreatedAt  int64  `json:"created_at"`
}

// Audit actions and outcomes.
const (
	ActionRegister     = "register"
	ActionSignIn       = "signin"
	ActionVerifyUser   = "verify_user"
	ActionResetPattern = "reset_pattern"

	OutcomeSuccess  = "success"
	OutcomeRejected = "rejected"
	OutcomeLocked   = "locked"
	OutcomeError    = "error"
)

// RegisterRequest is the body of a registration.
type RegisterRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Username string `json:"username"`
	Pattern  string `json:"pattern"`
}

// SignInRequest is the body of a sign-in.
type SignInRequest struct {
	Username string `json:"username"`
	Pattern  string `json:"pattern"`
}

// VerifyUserRequest is the body of an identity check.
type VerifyUserRequest struct {
	Username string `json:"username"`
	Email    string `json:"email"`
}

// ResetPatternRequest is the body of a pattern reset.
type ResetPatternRequest struct {
	Username   string `json:"username"`
	Email      string `json:"email"`
	NewPattern string `json:"newPattern"`
}
