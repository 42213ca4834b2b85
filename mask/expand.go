// Package mask compiles the compact prefix grammar used by the prefix database
// into concrete lookup keys. A mask is a sequence of literal characters,
// bracket groups ("[A-C5]"), and the meta-characters '@' (A-Z), '#' (0-9) and
// '?' (A-Z0-9). Expansion is bounded: only the first MaxKeyLen positions are
// multiplied out, so long masks cannot blow up memory.
package mask

import (
	"errors"
	"fmt"
	"strings"
)

// MaxKeyLen bounds the length of every expanded key.
const MaxKeyLen = 4

const (
	letters      = "ABCDEFGHIJKLMNOPQRSTUVWXYZ"
	digits       = "0123456789"
	alphanumeric = letters + digits
)

// ErrSyntax is matched (errors.Is) by every *SyntaxError.
var ErrSyntax = errors.New("mask: syntax error")

// SyntaxError reports a malformed mask and the byte offset where parsing failed.
type SyntaxError struct {
	Mask   string
	Pos    int
	Reason string
}

func (e *SyntaxError) Error() string {
	return fmt.Sprintf("mask %q: %s at offset %d", e.Mask, e.Reason, e.Pos)
}

// Is lets callers test with errors.Is(err, ErrSyntax).
func (e *SyntaxError) Is(target error) bool {
	return target == ErrSyntax
}

// PositionSet is the ordered, duplicate-free set of characters a single mask
// position accepts.
type PositionSet []byte

// Contains reports whether ch is accepted at this position.
func (p PositionSet) Contains(ch byte) bool {
	for _, c := range p {
		if c == ch {
			return true
		}
	}
	return false
}

func (p PositionSet) String() string {
	return string(p)
}

// Expand compiles m into its bounded key set. Keys are returned in product
// order (leftmost position varies slowest) without duplicates. A mask made only
// of literals expands to itself truncated to MaxKeyLen characters.
func Expand(m string) ([]string, error) {
	positions, err := Positions(m)
	if err != nil {
		return nil, err
	}
	return product(positions, MaxKeyLen), nil
}

// MustExpand is Expand for masks known to be valid (tests, fixed tables).
func MustExpand(m string) []string {
	keys, err := Expand(m)
	if err != nil {
		panic(err)
	}
	return keys
}

// Positions tokenizes m into one PositionSet per mask position without the
// MaxKeyLen bound. Refinement compares full call signs against these sets.
func Positions(m string) ([]PositionSet, error) {
	m = strings.ToUpper(strings.TrimSpace(m))
	if m == "" {
		return nil, &SyntaxError{Mask: m, Pos: 0, Reason: "empty mask"}
	}
	out := make([]PositionSet, 0, len(m))
	for i := 0; i < len(m); i++ {
		ch := m[i]
		switch ch {
		case '[':
			end := strings.IndexByte(m[i+1:], ']')
			if end < 0 {
				return nil, &SyntaxError{Mask: m, Pos: i, Reason: "unterminated bracket group"}
			}
			set, err := parseGroup(m, i+1, i+1+end)
			if err != nil {
				return nil, err
			}
			out = append(out, set)
			i += end + 1
		case ']':
			return nil, &SyntaxError{Mask: m, Pos: i, Reason: "unexpected ']'"}
		default:
			if class, ok := metaClass(ch); ok {
				out = append(out, PositionSet(class))
				continue
			}
			out = append(out, PositionSet{ch})
		}
	}
	return out, nil
}

func metaClass(ch byte) (string, bool) {
	switch ch {
	case '@':
		return letters, true
	case '#':
		return digits, true
	case '?':
		return alphanumeric, true
	}
	return "", false
}

// parseGroup expands the body m[start:end] of a bracket group.
func parseGroup(m string, start, end int) (PositionSet, error) {
	if start == end {
		return nil, &SyntaxError{Mask: m, Pos: start, Reason: "empty bracket group"}
	}
	var set PositionSet
	add := func(chars string) {
		for i := 0; i < len(chars); i++ {
			if !set.Contains(chars[i]) {
				set = append(set, chars[i])
			}
		}
	}
	for i := start; i < end; i++ {
		ch := m[i]
		if class, ok := metaClass(ch); ok {
			add(class)
			continue
		}
		if ch == '[' {
			return nil, &SyntaxError{Mask: m, Pos: i, Reason: "nested bracket group"}
		}
		if i+2 < end && m[i+1] == '-' {
			chars, err := expandRange(m, i, ch, m[i+2])
			if err != nil {
				return nil, err
			}
			add(chars)
			i += 2
			continue
		}
		add(string(ch))
	}
	return set, nil
}

// expandRange resolves "lo-hi" inside a bracket group. A digit start with a
// letter end runs from the letter through 'Z'. A letter start with a digit end
// has no agreed meaning in the source data and is rejected.
func expandRange(m string, pos int, lo, hi byte) (string, error) {
	switch {
	case isDigit(lo) && isDigit(hi):
		if hi < lo {
			return "", &SyntaxError{Mask: m, Pos: pos, Reason: "reversed digit range"}
		}
		return digits[lo-'0' : hi-'0'+1], nil
	case isLetter(lo) && isLetter(hi):
		if hi < lo {
			return "", &SyntaxError{Mask: m, Pos: pos, Reason: "reversed letter range"}
		}
		return letters[lo-'A' : hi-'A'+1], nil
	case isDigit(lo) && isLetter(hi):
		return letters[hi-'A':], nil
	case isLetter(lo) && isDigit(hi):
		return "", &SyntaxError{Mask: m, Pos: pos, Reason: "letter to digit range is unsupported"}
	}
	return "", &SyntaxError{Mask: m, Pos: pos, Reason: "invalid range endpoint"}
}

// product multiplies the position sets out left to right and stops as soon as
// the accumulated key length reaches limit.
func product(positions []PositionSet, limit int) []string {
	keys := []string{""}
	for depth, set := range positions {
		if depth >= limit {
			break
		}
		next := make([]string, 0, len(keys)*len(set))
		for _, prefix := range keys {
			for _, ch := range set {
				next = append(next, prefix+string(ch))
			}
		}
		keys = next
	}
	return keys
}

// IsPortable reports whether the mask describes a portable prefix ("KG4/").
func IsPortable(m string) bool {
	return strings.HasSuffix(strings.TrimSpace(m), "/")
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}

func isLetter(ch byte) bool {
	return ch >= 'A' && ch <= 'Z'
}
