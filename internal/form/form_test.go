package form

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateName(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "Name is required"},
		{"   ", "Name is required"},
		{"A", "Name must be at least 2 characters"},
		{" A ", "Name must be at least 2 characters"},
		{"R2D2", "Name can only contain letters and spaces"},
		{"Ada Lovelace", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidateName(tt.in), "%q", tt.in)
	}
}

func TestValidateEmail(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "Email is required"},
		{"ada", "Please enter a valid email address"},
		{"ada@example", "Please enter a valid email address"},
		{"ada @example.com", "Please enter a valid email address"},
		{"ada@example.com", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidateEmail(tt.in), "%q", tt.in)
	}
}

func TestValidateNewUsername(t *testing.T) {
	tests := []struct {
		in, want string
	}{
		{"", "Username is required"},
		{"ab", "Username must be at least 3 characters"},
		{strings.Repeat("a", 21), "Username must be less than 20 characters"},
		{"ada-l", "Username can only contain letters, numbers, and underscores"},
		{"ada_99", ""},
		{strings.Repeat("a", 20), ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ValidateNewUsername(tt.in), "%q", tt.in)
	}
}

func TestValidateUsername_Lenient(t *testing.T) {
	assert.Empty(t, ValidateUsername("ada-l"), "sign-in does not re-check the charset")
	assert.Equal(t, "Username must be at least 3 characters", ValidateUsername("ab"))
}

func TestRegistration(t *testing.T) {
	errs := Registration("", "bad", "ok_user")
	assert.False(t, errs.OK())
	assert.Equal(t, "Name is required", errs[FieldName])
	assert.Equal(t, "Please enter a valid email address", errs[FieldEmail])
	assert.NotContains(t, errs, FieldUsername)

	assert.True(t, Registration("Ada", "ada@example.com", "ada").OK())
}

func TestSignInAndRecovery(t *testing.T) {
	assert.True(t, SignIn("ada").OK())
	assert.Equal(t, Errors{FieldUsername: "Username is required"}, SignIn(""))

	errs := Recovery("ada", "")
	assert.Equal(t, Errors{FieldEmail: "Email is required"}, errs)
}

func TestErrors_FirstFollowsFieldOrder(t *testing.T) {
	errs := Registration("", "", "a")
	assert.Equal(t, "Name is required", errs.First())

	errs = Registration("Ada", "", "a")
	assert.Equal(t, "Email is required", errs.First())

	assert.Empty(t, Errors{}.First())
}
