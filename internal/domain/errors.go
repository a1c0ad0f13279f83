package domain

import "fmt"

// AuthError is the unified error type for patternlock.
// Each error has a numeric code and human-readable message.
type AuthError struct {
	Code    int
	Message string
	cause   error
}

// Error implements the error interface.
func (e *AuthError) Error() string {
	return fmt.Sprintf("auth error %d: %s", e.Code, e.Message)
}

// Unwrap returns the wrapped cause, if any.
func (e *AuthError) Unwrap() error {
	return e.cause
}

// Is reports whether target is an AuthError with the same code.
func (e *AuthError) Is(target error) bool {
	t, ok := target.(*AuthError)
	if !ok {
		return false
	}
	return t.Code == e.Code
}

// NewAuthError creates a new AuthError.
func NewAuthError(code int, msg string) *AuthError {
	return &AuthError{Code: code, Message: msg}
}

// WrapAuthError creates an AuthError that includes a cause.
func WrapAuthError(code int, msg string, cause error) *AuthError {
	return &AuthError{Code: code, Message: fmt.Sprintf("%s: %v", msg, cause), cause: cause}
}

// RemoteError is a rejection reported by the remote verifier. Message is the
// server-provided text and may be empty.
type RemoteError struct {
	Status  int
	Message string
}

// Error implements the error interface.
func (e *RemoteError) Error() string {
	if e.Message == "" {
		return fmt.Sprintf("remote rejected request (status %d)", e.Status)
	}
	return fmt.Sprintf("remote rejected request (status %d): %s", e.Status, e.Message)
}

// Is makes errors.Is(err, ErrRemoteRejected) hold for every RemoteError.
func (e *RemoteError) Is(target error) bool {
	t, ok := target.(*AuthError)
	return ok && t.Code == ErrRemoteRejected.Code
}

// ---- Pattern / gesture errors (-32010 to -32019) ----

var (
	ErrPatternTooShort = &AuthError{Code: -32010, Message: "pattern is shorter than the minimum length"}
	ErrInvalidNode     = &AuthError{Code: -32011, Message: "node index outside the grid"}
	ErrMalformedToken  = &AuthError{Code: -32012, Message: "malformed pattern token"}
)

// ---- Flow controller errors (-32020 to -32039) ----

var (
	ErrPatternMismatch   = &AuthError{Code: -32020, Message: "patterns do not match"}
	ErrFlowBusy          = &AuthError{Code: -32021, Message: "flow is verifying"}
	ErrFlowClosed        = &AuthError{Code: -32022, Message: "flow has been closed"}
	ErrInvalidTransition = &AuthError{Code: -32023, Message: "invalid flow transition"}
	ErrInputSuppressed   = &AuthError{Code: -32024, Message: "input ignored in current step"}
	ErrValidationFailed  = &AuthError{Code: -32025, Message: "field validation failed"}
	ErrGateNotRegistered = &AuthError{Code: -32026, Message: "no gate registered for step"}
	ErrStepNotActive     = &AuthError{Code: -32027, Message: "step is not active"}
)

// ---- Remote verifier errors (-32040 to -32059) ----

var (
	ErrRemoteRejected = &AuthError{Code: -32040, Message: "remote rejected request"}
	ErrTransport      = &AuthError{Code: -32041, Message: "transport failure"}
)

// ---- Server-side credential errors (-32060 to -32089) ----

var (
	ErrUserExists         = &AuthError{Code: -32060, Message: "username or email already registered"}
	ErrUserNotFound       = &AuthError{Code: -32061, Message: "user not found"}
	ErrInvalidCredentials = &AuthError{Code: -32062, Message: "invalid username or pattern"}
	ErrIdentityMismatch   = &AuthError{Code: -32063, Message: "user not found or email does not match"}
	ErrRateLimitExceeded  = &AuthError{Code: -32064, Message: "too many attempts, try again later"}
	ErrAccountLocked      = &AuthError{Code: -32065, Message: "account temporarily locked"}
	ErrInvalidRequest     = &AuthError{Code: -32066, Message: "invalid request"}
	ErrUnauthorized       = &AuthError{Code: -32067, Message: "admin token required"}
	ErrForbidden          = &AuthError{Code: -32068, Message: "admin endpoints are disabled"}
)

// ---- Store / session / config errors (-32130 to -32159) ----

var (
	ErrStoreQuery      = &AuthError{Code: -32131, Message: "store query failed"}
	ErrStoreWrite      = &AuthError{Code: -32132, Message: "store write failed"}
	ErrSessionNotFound = &AuthError{Code: -32133, Message: "no active session"}
	ErrConfigInvalid   = &AuthError{Code: -32136, Message: "invalid configuration"}
)
