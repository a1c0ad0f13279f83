// Package form validates the identity fields collected before a pattern is
// drawn. Every validator returns the empty string for a valid value.
package form

import (
	"regexp"
	"strings"
	"unicode/utf8"
)

var (
	namePattern     = regexp.MustCompile(`^[a-zA-Z\s]+$`)
	emailPattern    = regexp.MustCompile(`^[^\s@]+@[^\s@]+\.[^\s@]+$`)
	usernamePattern = regexp.MustCompile(`^[a-zA-Z0-9_]+$`)
)

// Field names shared by the screens and the verifier.
const (
	FieldName     = "name"
	FieldEmail    = "email"
	FieldUsername = "username"
)

// Order is the display order of the fields across every form.
var Order = []string{FieldName, FieldEmail, FieldUsername}

// Errors maps a field name to its error text. Only invalid fields are present.
type Errors map[string]string

// Add records msg for field when msg is non-empty.
func (e Errors) Add(field, msg string) {
	if msg != "" {
		e[field] = msg
	}
}

// First returns the error of the first invalid field in Order.
func (e Errors) First() string {
	for _, f := range Order {
		if msg, ok := e[f]; ok {
			return msg
		}
	}
	return ""
}

// OK reports whether no field failed.
func (e Errors) OK() bool {
	return len(e) == 0
}

// ValidateName checks a display name.
func ValidateName(name string) string {
	trimmed := strings.TrimSpace(name)
	switch {
	case trimmed == "":
		return "Name is required"
	case utf8.RuneCountInString(trimmed) < 2:
		return "Name must be at least 2 characters"
	case !namePattern.MatchString(name):
		return "Name can only contain letters and spaces"
	}
	return ""
}

// ValidateEmail checks an address has the x@y.z shape.
func ValidateEmail(email string) string {
	switch {
	case strings.TrimSpace(email) == "":
		return "Email is required"
	case !emailPattern.MatchString(email):
		return "Please enter a valid email address"
	}
	return ""
}

// ValidateNewUsername checks a username chosen at registration.
func ValidateNewUsername(username string) string {
	if msg := ValidateUsername(username); msg != "" {
		return msg
	}
	switch {
	case len(username) > 20:
		return "Username must be less than 20 characters"
	case !usernamePattern.MatchString(username):
		return "Username can only contain letters, numbers, and underscores"
	}
	return ""
}

// ValidateUsername checks an existing username typed at sign-in or reset.
func ValidateUsername(username string) string {
	switch {
	case strings.TrimSpace(username) == "":
		return "Username is required"
	case len(username) < 3:
		return "Username must be at least 3 characters"
	}
	return ""
}

// Registration validates the registration fields.
func Registration(name, email, username string) Errors {
	errs := Errors{}
	errs.Add(FieldName, ValidateName(name))
	errs.Add(FieldEmail, ValidateEmail(email))
	errs.Add(FieldUsername, ValidateNewUsername(username))
	return errs
}

// SignIn validates the sign-in fields.
func SignIn(username string) Errors {
	errs := Errors{}
	errs.Add(FieldUsername, ValidateUsername(username))
	return errs
}

// Recovery validates the pattern-reset identity fields.
func Recovery(username, email string) Errors {
	errs := Errors{}
	errs.Add(FieldUsername, ValidateUsername(username))
	errs.Add(FieldEmail, ValidateEmail(email))
	return errs
}
