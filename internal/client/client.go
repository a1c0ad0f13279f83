// Package client calls the patternlock verifier over HTTP. Non-2xx answers
// become *domain.RemoteError carrying the server's message; network and
// decoding failures are ErrTransport.
package client

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/patternlock/patternlock/internal/domain"
	"github.com/patternlock/patternlock/internal/pattern"
)

// DefaultBaseURL is the verifier address used when none is configured.
const DefaultBaseURL = "http://localhost:3000"

// maxBody bounds how much of a response is read.
const maxBody = 1 << 20

// Client is a verifier client.
type Client struct {
	BaseURL    string
	HTTPClient *http.Client
}

// New creates a client for baseURL with a request timeout.
func New(baseURL string, timeout time.Duration) *Client {
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	return &Client{
		BaseURL:    strings.TrimRight(baseURL, "/"),
		HTTPClient: &http.Client{Timeout: timeout},
	}
}

// Response is the success body of an auth endpoint.
type Response struct {
	Message string `json:"message"`
	// User is the opaque identity payload, present on register and sign-in.
	User json.RawMessage `json:"user,omitempty"`
}

// Register enrolls a new account.
func (c *Client) Register(ctx context.Context, id domain.Identity, tok pattern.Token) (*Response, error) {
	return c.post(ctx, "/api/auth/register", domain.RegisterRequest{
		Name:     id.Name,
		Email:    id.Email,
		Username: id.Username,
		Pattern:  tok.String(),
	})
}

// SignIn checks a username and pattern.
func (c *Client) SignIn(ctx context.Context, username string, tok pattern.Token) (*Response, error) {
	return c.post(ctx, "/api/auth/signin", domain.SignInRequest{
		Username: username,
		Pattern:  tok.String(),
	})
}

// VerifyUser checks that username and email belong together.
func (c *Client) VerifyUser(ctx context.Context, username, email string) (*Response, error) {
	return c.post(ctx, "/api/auth/verify-user", domain.VerifyUserRequest{
		Username: username,
		Email:    email,
	})
}

// ResetPattern replaces the pattern of a verified account.
func (c *Client) ResetPattern(ctx context.Context, username, email string, tok pattern.Token) (*Response, error) {
	return c.post(ctx, "/api/auth/reset-pattern", domain.ResetPatternRequest{
		Username:   username,
		Email:      email,
		NewPattern: tok.String(),
	})
}

// Health reports whether the verifier answers.
func (c *Client) Health(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.BaseURL+"/api/health", nil)
	if err != nil {
		return domain.WrapAuthError(domain.ErrTransport.Code, "build request", err)
	}
	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return domain.WrapAuthError(domain.ErrTransport.Code, "health", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return &domain.RemoteError{Status: resp.StatusCode}
	}
	return nil
}

func (c *Client) post(ctx context.Context, path string, body any) (*Response, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("encode request: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.BaseURL+path, bytes.NewReader(payload))
	if err != nil {
		return nil, domain.WrapAuthError(domain.ErrTransport.Code, "build request", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.HTTPClient.Do(req)
	if err != nil {
		return nil, domain.WrapAuthError(domain.ErrTransport.Code, "post "+path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, domain.WrapAuthError(domain.ErrTransport.Code, "read response", err)
	}

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		var apiErr struct {
			Message string `json:"message"`
		}
		// An undecodable error body still counts as a rejection, just without text.
		_ = json.Unmarshal(raw, &apiErr)
		return nil, &domain.RemoteError{Status: resp.StatusCode, Message: apiErr.Message}
	}

	var out Response
	if err := json.Unmarshal(raw, &out); err != nil {
		return nil, domain.WrapAuthError(domain.ErrTransport.Code, "decode response", err)
	}
	return &out, nil
}
