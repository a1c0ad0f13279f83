// Package pattern converts node-visit sequences into the canonical token that
// is compared for confirmation and sent to the verifier.
package pattern

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/patternlock/patternlock/internal/domain"
	"github.com/patternlock/patternlock/internal/grid"
)

const (
	// Delimiter separates node indices in a token.
	Delimiter = "-"
	// DefaultMinLength is the minimum number of nodes a pattern must visit.
	DefaultMinLength = 4
)

// Sequence is an ordered list of distinct node indices in visitation order.
type Sequence []int

// Contains reports whether node i was already visited.
func (s Sequence) Contains(i int) bool {
	for _, v := range s {
		if v == i {
			return true
		}
	}
	return false
}

// Append returns s extended with i. Foreign or already-visited nodes leave s
// unchanged and report false.
func (s Sequence) Append(i int) (Sequence, bool) {
	if !grid.IsNode(i) || s.Contains(i) {
		return s, false
	}
	return append(s, i), true
}

// Clone returns an independent copy of s.
func (s Sequence) Clone() Sequence {
	if s == nil {
		return nil
	}
	return append(Sequence(nil), s...)
}

// Token is the canonical string encoding of a pattern.
type Token string

// String implements fmt.Stringer.
func (t Token) String() string {
	return string(t)
}

// Equal reports whether two tokens encode the same visitation order.
func (t Token) Equal(o Token) bool {
	return t == o
}

// Encode joins seq in visitation order. It fails with ErrPatternTooShort if
// fewer than minLength nodes were visited.
func Encode(seq Sequence, minLength int) (Token, error) {
	if len(seq) == 0 || len(seq) < minLength {
		return "", domain.ErrPatternTooShort
	}
	parts := make([]string, len(seq))
	for i, v := range seq {
		parts[i] = strconv.Itoa(v)
	}
	return Token(strings.Join(parts, Delimiter)), nil
}

// Parse decodes a token back into its sequence, rejecting empty, non-numeric,
// non-canonical ("01", "+1"), foreign or repeated segments. A token that parses
// is byte-identical to Encode of its sequence.
func Parse(t Token) (Sequence, error) {
	if t == "" {
		return nil, domain.NewAuthError(domain.ErrMalformedToken.Code, "empty pattern")
	}
	var seq Sequence
	for _, part := range strings.Split(string(t), Delimiter) {
		n, err := strconv.Atoi(part)
		if err != nil || strconv.Itoa(n) != part {
			return nil, domain.NewAuthError(domain.ErrMalformedToken.Code, fmt.Sprintf("segment %q is not a node index", part))
		}
		next, ok := seq.Append(n)
		if !ok {
			return nil, domain.NewAuthError(domain.ErrMalformedToken.Code, fmt.Sprintf("node %d is repeated or outside the grid", n))
		}
		seq = next
	}
	return seq, nil
}

// Validate checks that t is well formed and visits at least minLength nodes.
func Validate(t Token, minLength int) error {
	seq, err := Parse(t)
	if err != nil {
		return err
	}
	if len(seq) < minLength {
		return domain.ErrPatternTooShort
	}
	return nil
}
