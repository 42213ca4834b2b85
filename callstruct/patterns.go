package callstruct

import "strings"

// Single letters that are complete prefixes in first position (F/, G/, W/...).
const singleLetterPrefixes = "FGMIRW"

var operatingSuffixes = setOf("A", "B", "M", "P", "MM", "AM", "QRP", "QRPP", "LH", "LGT", "ANT", "WAP", "AAW", "FJL")

var callPatterns = setOf(
	"@#@@", "@#@@@", "@##@", "@##@@", "@##@@@",
	"@@#@", "@@#@@", "@@#@@@",
	"#@#@", "#@#@@", "#@#@@@",
	"#@@#@", "#@@#@@",
)

var prefixPatterns = setOf(
	"@", "@@", "@@#", "@@#@", "@#", "@#@", "@##",
	"#@", "#@@", "#@#", "#@@#",
)

func setOf(items ...string) map[string]struct{} {
	out := make(map[string]struct{}, len(items))
	for _, item := range items {
		out[item] = struct{}{}
	}
	return out
}

type typePair [2]ComponentType
type typeTriple [3]ComponentType

const (
	tC = ComponentCallSign
	tP = ComponentPrefix
	tM = ComponentPortable
	tT = ComponentText
	tD = ComponentNumeric
)

var twoPartStructures = map[typePair]Structure{
	{tC, tP}: CallPrefix,
	{tP, tC}: PrefixCall,
	{tC, tC}: CallPrefix,
	{tC, tT}: CallText,
	{tC, tD}: CallDigit,
	{tC, tM}: CallPortable,
}

var threePartStructures = map[typeTriple]Structure{
	{tC, tD, tM}: CallDigitPortable,
	{tC, tD, tT}: CallDigitText,
	{tC, tM, tM}: CallPortablePortable,
	{tC, tM, tP}: CallPortablePrefix,
	{tC, tM, tT}: CallPortableText,
	{tC, tP, tM}: CallPrefixPortable,
	{tP, tC, tM}: PrefixCallPortable,
	{tP, tC, tT}: PrefixCallText,
}

// chinaReportingPrefixes turn a call/call pair around: the component carrying
// one of these is the location indicator, not the operator's call.
var chinaReportingPrefixes = []string{"BY", "VU4", "VU7"}

// resolveStructure maps the component type tuple to a Structure and fills the
// named fields. Untabulated tuples leave Structure Invalid.
func resolveStructure(c *Components) {
	p := c.Parts
	switch len(p) {
	case 1:
		if c.Types[0] == ComponentCallSign {
			c.Structure = Call
			c.BaseCall = p[0]
		}
	case 2:
		s, ok := twoPartStructures[typePair{c.Types[0], c.Types[1]}]
		if !ok {
			return
		}
		c.Structure = s
		switch s {
		case PrefixCall:
			c.Prefix, c.BaseCall = p[0], p[1]
		case CallPrefix:
			c.BaseCall, c.Prefix = p[0], p[1]
			if c.Types[0] == ComponentCallSign && c.Types[1] == ComponentCallSign && callCallIsPrefixFirst(p[0], p[1]) {
				c.Structure = PrefixCall
				c.Prefix, c.BaseCall = p[0], p[1]
			}
		default:
			c.BaseCall, c.Suffix1 = p[0], p[1]
		}
	case 3:
		s, ok := threePartStructures[typeTriple{c.Types[0], c.Types[1], c.Types[2]}]
		if !ok {
			return
		}
		c.Structure = s
		switch s {
		case CallPortablePrefix:
			c.BaseCall, c.Suffix1, c.Prefix = p[0], p[1], p[2]
		case CallPrefixPortable:
			c.BaseCall, c.Prefix, c.Suffix1 = p[0], p[1], p[2]
		case PrefixCallPortable, PrefixCallText:
			c.Prefix, c.BaseCall, c.Suffix1 = p[0], p[1], p[2]
		default:
			c.BaseCall, c.Suffix1, c.Suffix2 = p[0], p[1], p[2]
		}
	}
}

// callCallIsPrefixFirst decides the call/call exception: the first component
// is the location when it starts with a reporting prefix and the second is not
// itself a BY call.
func callCallIsPrefixFirst(first, second string) bool {
	if strings.HasPrefix(second, "BY") {
		return false
	}
	for _, rp := range chinaReportingPrefixes {
		if strings.HasPrefix(first, rp) {
			return true
		}
	}
	return false
}
