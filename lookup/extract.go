package lookup

import (
	"errors"
	"fmt"
	"strings"

	"callparser/callstruct"
)

// ErrInvalidFormat is wrapped by every call sign validation failure.
var ErrInvalidFormat = errors.New("invalid call sign format")

// rejectSuffixes never identify a location; a candidate prefix matching one is
// discarded in favor of the other component.
var rejectSuffixes = map[string]struct{}{
	"U": {}, "R": {}, "A": {}, "B": {}, "M": {}, "P": {}, "MM": {}, "AM": {},
	"QRP": {}, "QRPP": {}, "LH": {}, "LGT": {}, "ANT": {}, "WAP": {}, "AAW": {}, "FJL": {},
}

func isRejectSuffix(s string) bool {
	_, ok := rejectSuffixes[s]
	return ok
}

// Validate reports whether call is acceptable input for Lookup. Failures wrap
// ErrInvalidFormat.
func Validate(call string) error {
	switch {
	case call == "":
		return fmt.Errorf("%w: empty", ErrInvalidFormat)
	case call[0] == '/':
		return fmt.Errorf("%w: %q starts with '/'", ErrInvalidFormat, call)
	case len(call) > 1 && call[1] == '/':
		return fmt.Errorf("%w: %q has '/' as second character", ErrInvalidFormat, call)
	}
	hasDigit := false
	allDigits := true
	for i := 0; i < len(call); i++ {
		ch := call[i]
		switch {
		case ch >= '0' && ch <= '9':
			hasDigit = true
		case ch >= 'A' && ch <= 'Z', ch >= 'a' && ch <= 'z', ch == '/':
			allDigits = false
		default:
			return fmt.Errorf("%w: %q contains %q", ErrInvalidFormat, call, ch)
		}
	}
	if allDigits {
		return fmt.Errorf("%w: %q is all numeric", ErrInvalidFormat, call)
	}
	if !hasDigit {
		return fmt.Errorf("%w: %q contains no digit", ErrInvalidFormat, call)
	}
	return nil
}

// Purpose: Reduce a validated, upper-cased call sign to the string searched
// against the prefix index.
// Key aspects: Portable prefixes compose as "prefix/call" (BY calls as
// "call/prefix"); a numeric suffix replaces the call's first digit; operating
// suffixes are ignored. comps is the classifier's view of call and settles
// which of two equal-length components is the prefix.
// Upstream: Engine.Lookup.
// Downstream: composePair.
func searchString(call string, comps callstruct.Components) string {
	parts := strings.FieldsFunc(call, func(r rune) bool { return r == '/' })
	switch len(parts) {
	case 0:
		return ""
	case 1:
		return parts[0]
	case 2:
		return composePair(parts[0], parts[1], parts[0], comps)
	}
	kept := dropExtraSingles(parts)
	for len(kept) > 2 {
		idx := lastRejectIndex(kept)
		if idx < 0 {
			kept = kept[:2]
			break
		}
		kept = append(kept[:idx:idx], kept[idx+1:]...)
	}
	if len(kept) == 1 {
		return kept[0]
	}
	return composePair(kept[0], kept[1], parts[0], callstruct.Components{})
}

// dropExtraSingles keeps the first one-character token and every longer token.
func dropExtraSingles(parts []string) []string {
	out := make([]string, 0, len(parts))
	seenSingle := false
	for _, p := range parts {
		if len(p) == 1 {
			if seenSingle {
				continue
			}
			seenSingle = true
		}
		out = append(out, p)
	}
	return out
}

func lastRejectIndex(parts []string) int {
	for i := len(parts) - 1; i >= 0; i-- {
		if isRejectSuffix(parts[i]) {
			return i
		}
	}
	return -1
}

// composePair applies the two-component rule. first is the original first
// component of the whole call sign.
func composePair(a, b, first string, comps callstruct.Components) string {
	pfx, call := a, b
	switch {
	case len(a) > len(b):
		pfx, call = b, a
	case len(a) == len(b):
		// Equal length: the classifier's prefix wins, then the component
		// shaped like a call sign is the call.
		if p, c, ok := classifiedPair(comps, a, b); ok {
			pfx, call = p, c
		} else if callstruct.VerifyCallSign(a) && !callstruct.VerifyCallSign(b) {
			pfx, call = b, a
		}
	}
	if isRejectSuffix(pfx) {
		return call
	}
	if isRejectSuffix(call) {
		return pfx
	}
	if isNumeric(pfx) {
		return substituteDigit(call, pfx)
	}
	if strings.HasPrefix(first, "BY") {
		return call + "/" + pfx
	}
	return pfx + "/" + call
}

// classifiedPair returns the classifier's prefix and base call when it
// resolved exactly the components a and b as a prefix/call pair.
func classifiedPair(comps callstruct.Components, a, b string) (string, string, bool) {
	if comps.Structure != callstruct.CallPrefix && comps.Structure != callstruct.PrefixCall {
		return "", "", false
	}
	if (comps.Prefix == a && comps.BaseCall == b) || (comps.Prefix == b && comps.BaseCall == a) {
		return comps.Prefix, comps.BaseCall, true
	}
	return "", "", false
}

// substituteDigit replaces the call's first digit with the numeric suffix
// ("AM70URE/8" searches as "AM80URE").
func substituteDigit(call, digits string) string {
	for i := 0; i < len(call); i++ {
		if call[i] >= '0' && call[i] <= '9' {
			return call[:i] + digits + call[i+1:]
		}
	}
	return call
}

func isNumeric(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		if s[i] < '0' || s[i] > '9' {
			return false
		}
	}
	return true
}
