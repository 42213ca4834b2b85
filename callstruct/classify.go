// Package callstruct decomposes a raw call sign into typed '/'-separated
// components and derives its overall structure (call, prefix/call,
// call/portable, ...). Classification is positional and first-match-wins.
package callstruct

import (
	"strings"
)

// MaxComponentLen is the longest component accepted.
const MaxComponentLen = 13

// PortableChecker answers whether a candidate is a known portable prefix
// (candidate + "/" exists in the prefix index).
type PortableChecker interface {
	IsPortablePrefix(candidate string) bool
}

// ComponentType is the classification of one component.
type ComponentType uint8

const (
	ComponentUnknown ComponentType = iota
	ComponentInvalid
	ComponentCallSign
	ComponentPrefix
	ComponentPortable
	ComponentText
	ComponentNumeric
)

var componentNames = map[ComponentType]string{
	ComponentUnknown:  "unknown",
	ComponentInvalid:  "invalid",
	ComponentCallSign: "call",
	ComponentPrefix:   "prefix",
	ComponentPortable: "portable",
	ComponentText:     "text",
	ComponentNumeric:  "numeric",
}

func (c ComponentType) String() string {
	if name, ok := componentNames[c]; ok {
		return name
	}
	return "unknown"
}

// Structure is the derived shape of the whole call sign.
type Structure uint8

const (
	Invalid Structure = iota
	Call
	CallPrefix
	PrefixCall
	CallText
	CallDigit
	CallPortable
	CallDigitPortable
	CallDigitText
	CallPortablePortable
	CallPortablePrefix
	CallPortableText
	CallPrefixPortable
	PrefixCallPortable
	PrefixCallText
)

// structureNames is the static tag table; structureByName is its inverse.
var structureNames = map[Structure]string{
	Invalid:              "Invalid",
	Call:                 "Call",
	CallPrefix:           "CallPrefix",
	PrefixCall:           "PrefixCall",
	CallText:             "CallText",
	CallDigit:            "CallDigit",
	CallPortable:         "CallPortable",
	CallDigitPortable:    "CallDigitPortable",
	CallDigitText:        "CallDigitText",
	CallPortablePortable: "CallPortablePortable",
	CallPortablePrefix:   "CallPortablePrefix",
	CallPortableText:     "CallPortableText",
	CallPrefixPortable:   "CallPrefixPortable",
	PrefixCallPortable:   "PrefixCallPortable",
	PrefixCallText:       "PrefixCallText",
}

var structureByName = func() map[string]Structure {
	out := make(map[string]Structure, len(structureNames))
	for s, name := range structureNames {
		out[name] = s
	}
	return out
}()

func (s Structure) String() string {
	if name, ok := structureNames[s]; ok {
		return name
	}
	return "Invalid"
}

// ParseStructure maps a tag back to its Structure.
func ParseStructure(name string) (Structure, bool) {
	s, ok := structureByName[strings.TrimSpace(name)]
	return s, ok
}

// Components is the per-call classification result.
type Components struct {
	Parts     []string
	Types     []ComponentType
	Structure Structure
	BaseCall  string
	Prefix    string
	Suffix1   string
	Suffix2   string
}

// Valid reports whether the call sign mapped to a tabulated structure.
func (c Components) Valid() bool {
	return c.Structure != Invalid
}

// Purpose: Classify a raw call sign into components and a structure.
// Key aspects: More than three components, or any invalid component, yields
// Structure Invalid; untabulated type combinations do too.
// Upstream: lookup.Engine, cmd tools.
// Downstream: classifyComponent, resolveStructure.
func Classify(call string, pc PortableChecker) Components {
	call = strings.ToUpper(call)
	parts := strings.Split(call, "/")
	out := Components{Parts: parts}
	if len(parts) > 3 {
		return out
	}
	out.Types = make([]ComponentType, len(parts))
	for i, part := range parts {
		ct := classifyComponent(part, i+1, pc)
		if ct == ComponentInvalid {
			out.Types[i] = ct
			return out
		}
		out.Types[i] = ct
	}
	resolveStructure(&out)
	return out
}

// classifyComponent applies the positional precedence rules; position is 1-based.
func classifyComponent(c string, position int, pc PortableChecker) ComponentType {
	if c == "" || len(c) > MaxComponentLen || !isAlnum(c) {
		return ComponentInvalid
	}
	if position == 1 && c == "MM" {
		return ComponentPortable
	}
	if position == 1 && len(c) == 1 {
		if strings.Contains(singleLetterPrefixes, c) {
			return ComponentPrefix
		}
		return ComponentText
	}
	if IsOperatingSuffix(c) {
		return ComponentPortable
	}
	if len(c) == 1 {
		if isDigit(c[0]) {
			return ComponentNumeric
		}
		return ComponentText
	}
	if len(c) == 2 || allLetters(c) || allDigits(c) {
		if verifyPrefix(c, pc) {
			return ComponentPrefix
		}
		return ComponentText
	}

	pattern := BuildPattern(c)
	_, isCall := callPatterns[pattern]
	_, isPrefix := prefixPatterns[pattern]
	switch {
	case isCall && isPrefix:
		if verifyPrefix(c, pc) {
			return ComponentPrefix
		}
		if VerifyCallSign(c) {
			return ComponentCallSign
		}
		return ComponentInvalid
	case isCall:
		if VerifyCallSign(c) {
			return ComponentCallSign
		}
		return ComponentInvalid
	case isPrefix:
		if verifyPrefix(c, pc) {
			return ComponentPrefix
		}
		return ComponentText
	}
	return ComponentInvalid
}

func verifyPrefix(c string, pc PortableChecker) bool {
	if len(c) <= 1 || pc == nil {
		return false
	}
	return pc.IsPortablePrefix(c)
}

// VerifyCallSign checks the call sign shape: a prefix (two letters, one
// letter, digit+two letters or digit+letter, first match wins), one to four
// digits, then one to five letters.
func VerifyCallSign(c string) bool {
	rest, ok := stripPrefixShape(c)
	if !ok {
		return false
	}
	n := 0
	for n < len(rest) && n < 4 && isDigit(rest[n]) {
		n++
	}
	if n == 0 {
		return false
	}
	suffix := rest[n:]
	return len(suffix) >= 1 && len(suffix) <= 5 && allLetters(suffix)
}

func stripPrefixShape(c string) (string, bool) {
	switch {
	case len(c) >= 2 && isLetter(c[0]) && isLetter(c[1]):
		return c[2:], true
	case len(c) >= 1 && isLetter(c[0]):
		return c[1:], true
	case len(c) >= 3 && isDigit(c[0]) && isLetter(c[1]) && isLetter(c[2]):
		return c[3:], true
	case len(c) >= 2 && isDigit(c[0]) && isLetter(c[1]):
		return c[2:], true
	}
	return "", false
}

// BuildPattern maps a component to its character-class pattern: letters to
// '@', digits to '#', anything else to '?'.
func BuildPattern(c string) string {
	b := make([]byte, len(c))
	for i := 0; i < len(c); i++ {
		switch {
		case isLetter(c[i]):
			b[i] = '@'
		case isDigit(c[i]):
			b[i] = '#'
		default:
			b[i] = '?'
		}
	}
	return string(b)
}

// IsOperatingSuffix reports whether c is an operating qualifier (/P, /MM, /QRP...).
func IsOperatingSuffix(c string) bool {
	_, ok := operatingSuffixes[c]
	return ok
}

func isAlnum(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isLetter(s[i]) && !isDigit(s[i]) {
			return false
		}
	}
	return true
}

func allLetters(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isLetter(s[i]) {
			return false
		}
	}
	return s != ""
}

func allDigits(s string) bool {
	for i := 0; i < len(s); i++ {
		if !isDigit(s[i]) {
			return false
		}
	}
	return s != ""
}

func isLetter(ch byte) bool {
	return ch >= 'A' && ch <= 'Z'
}

func isDigit(ch byte) bool {
	return ch >= '0' && ch <= '9'
}
