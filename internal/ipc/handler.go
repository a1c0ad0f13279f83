// Package ipc provides the HTTP API of the patternlock verifier.
package ipc

import (
	"crypto/subtle"
	"encoding/json"
	"errors"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/gorilla/mux"

	"github.com/patternlock/patternlock/internal/credential"
	"github.com/patternlock/patternlock/internal/domain"
	"github.com/patternlock/patternlock/internal/logging"
)

// DefaultAuditLimit caps the audit records returned when no limit is given.
const DefaultAuditLimit = 50

// Handler holds all dependencies for the HTTP handlers.
type Handler struct {
	Credentials *credential.Service
	Logger      *slog.Logger
	Version     string
	// AdminToken is the bearer token required by the audit endpoint. The
	// endpoint is refused to everyone while it is empty.
	AdminToken string
}

// APIError is a structured error response.
type APIError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

// AuthResponse is the success body of the auth endpoints.
type AuthResponse struct {
	Message string              `json:"message"`
	User    *domain.UserProfile `json:"user,omitempty"`
}

// Health handles GET /api/health.
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": h.Version})
}

// Register handles POST /api/auth/register.
func (h *Handler) Register(w http.ResponseWriter, r *http.Request) {
	var req domain.RegisterRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.Credentials.Register(r.Context(), req, remoteHost(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, AuthResponse{Message: "User registered successfully", User: user})
}

// SignIn handles POST /api/auth/signin.
func (h *Handler) SignIn(w http.ResponseWriter, r *http.Request) {
	var req domain.SignInRequest
	if !h.decode(w, r, &req) {
		return
	}
	user, err := h.Credentials.SignIn(r.Context(), req, remoteHost(r))
	if err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Message: "Authentication successful", User: user})
}

// VerifyUser handles POST /api/auth/verify-user.
func (h *Handler) VerifyUser(w http.ResponseWriter, r *http.Request) {
	var req domain.VerifyUserRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Credentials.VerifyUser(r.Context(), req, remoteHost(r)); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Message: "User verified"})
}

// ResetPattern handles POST /api/auth/reset-pattern.
func (h *Handler) ResetPattern(w http.ResponseWriter, r *http.Request) {
	var req domain.ResetPatternRequest
	if !h.decode(w, r, &req) {
		return
	}
	if err := h.Credentials.ResetPattern(r.Context(), req, remoteHost(r)); err != nil {
		h.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, AuthResponse{Message: "Pattern reset successful"})
}

// ListAudit handles GET /api/auth/audit/{username}.
func (h *Handler) ListAudit(w http.ResponseWriter, r *http.Request) {
	username := mux.Vars(r)["username"]

	limit := DefaultAuditLimit
	if l := r.URL.Query().Get("limit"); l != "" {
		if n, err := strconv.Atoi(l); err == nil && n > 0 {
			limit = n
		}
	}

	records, err := h.Credentials.AuditTrail(r.Context(), username, limit)
	if err != nil {
		h.writeError(w, err)
		return
	}
	if records == nil {
		records = []domain.AuditRecord{}
	}
	writeJSON(w, http.StatusOK, records)
}

// requireAdmin admits requests that carry the configured admin bearer token.
func (h *Handler) requireAdmin(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if h.AdminToken == "" {
			writeJSON(w, http.StatusForbidden, APIError{Code: domain.ErrForbidden.Code, Message: domain.ErrForbidden.Message})
			return
		}
		token, ok := strings.CutPrefix(r.Header.Get("Authorization"), "Bearer ")
		if !ok || subtle.ConstantTimeCompare([]byte(token), []byte(h.AdminToken)) != 1 {
			h.logger().Warn("audit access refused", "remote", remoteHost(r))
			w.Header().Set("WWW-Authenticate", "Bearer")
			writeJSON(w, http.StatusUnauthorized, APIError{Code: domain.ErrUnauthorized.Code, Message: domain.ErrUnauthorized.Message})
			return
		}
		next(w, r)
	}
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, v any) bool {
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, APIError{Code: domain.ErrInvalidRequest.Code, Message: "Invalid request body"})
		return false
	}
	return true
}

func (h *Handler) logger() *slog.Logger {
	if h.Logger == nil {
		return logging.Discard()
	}
	return h.Logger
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

// publicMessages are the texts shown to clients for each rejection.
var publicMessages = map[int]string{
	domain.ErrUserExists.Code:         "Username or email already exists",
	domain.ErrInvalidCredentials.Code: "Invalid username or pattern",
	domain.ErrIdentityMismatch.Code:   "User not found or email does not match",
	domain.ErrRateLimitExceeded.Code:  "Too many attempts. Please try again later.",
	domain.ErrAccountLocked.Code:      "Account temporarily locked. Please try again later.",
}

func (h *Handler) writeError(w http.ResponseWriter, err error) {
	var authErr *domain.AuthError
	if errors.As(err, &authErr) {
		status := http.StatusInternalServerError
		switch authErr.Code {
		case domain.ErrInvalidRequest.Code:
			status = http.StatusBadRequest
		case domain.ErrInvalidCredentials.Code:
			status = http.StatusUnauthorized
		case domain.ErrIdentityMismatch.Code, domain.ErrUserNotFound.Code:
			status = http.StatusNotFound
		case domain.ErrUserExists.Code:
			status = http.StatusConflict
		case domain.ErrAccountLocked.Code:
			status = http.StatusLocked
		case domain.ErrRateLimitExceeded.Code:
			status = http.StatusTooManyRequests
		}

		msg := authErr.Message
		if m, ok := publicMessages[authErr.Code]; ok {
			msg = m
		}
		if status == http.StatusInternalServerError {
			h.logger().Error("request failed", "error", err)
			msg = "Internal server error"
		}
		writeJSON(w, status, APIError{Code: authErr.Code, Message: msg})
		return
	}
	h.logger().Error("request failed", "error", err)
	writeJSON(w, http.StatusInternalServerError, APIError{Code: -1, Message: "Internal server error"})
}

func remoteHost(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}
