// Package prefix holds the compiled prefix database: the entity arena built
// from loader records and the primary/child key indices the lookup engine
// searches. Everything here is immutable once Build returns.
package prefix

import (
	"fmt"
	"sort"
	"strings"

	"callparser/mask"
)

// Kind classifies a database entity.
type Kind uint8

const (
	KindUnknown Kind = iota
	KindDXCC
	KindProvince
	KindStation
	KindDelDXCC
	KindOldPrefix
	KindNonDXCC
	KindInvalidPrefix
	KindDelProvince
	KindCity
)

// kindNames is the static tag table for Kind; kindByName is its inverse.
var kindNames = map[Kind]string{
	KindUnknown:       "unknown",
	KindDXCC:          "pfDXCC",
	KindProvince:      "pfProvince",
	KindStation:       "pfStation",
	KindDelDXCC:       "pfDelDXCC",
	KindOldPrefix:     "pfOldPrefix",
	KindNonDXCC:       "pfNonDXCC",
	KindInvalidPrefix: "pfInvalidPrefix",
	KindDelProvince:   "pfDelProvince",
	KindCity:          "pfCity",
}

var kindByName = invertKinds()

func invertKinds() map[string]Kind {
	out := make(map[string]Kind, len(kindNames)*2)
	for k, name := range kindNames {
		out[strings.ToUpper(name)] = k
		out[strings.ToUpper(strings.TrimPrefix(name, "pf"))] = k
	}
	return out
}

func (k Kind) String() string {
	if name, ok := kindNames[k]; ok {
		return name
	}
	return fmt.Sprintf("Kind(%d)", uint8(k))
}

// ParseKind accepts the database tag ("pfDXCC") or the bare name ("DXCC"),
// case-insensitively.
func ParseKind(s string) (Kind, error) {
	k, ok := kindByName[strings.ToUpper(strings.TrimSpace(s))]
	if !ok || k == KindUnknown {
		return KindUnknown, fmt.Errorf("prefix: unknown kind %q", s)
	}
	return k, nil
}

// IsTopLevel reports whether entities of this kind represent a whole DXCC group.
func (k Kind) IsTopLevel() bool {
	return k == KindDXCC || k == KindDelDXCC
}

// Flag is a call sign attribute carried by an entity.
type Flag uint16

const (
	FlagMaritime Flag = 1 << iota
	FlagPortable
	FlagSpecial
	FlagClub
	FlagBeacon
	FlagLOTW
	FlagAmbiguousPrefix
	FlagQRP
	// FlagExactCall marks a record whose masks are complete call signs.
	FlagExactCall
)

var flagNames = []struct {
	flag Flag
	name string
}{
	{FlagMaritime, "maritime"},
	{FlagPortable, "portable"},
	{FlagSpecial, "special"},
	{FlagClub, "club"},
	{FlagBeacon, "beacon"},
	{FlagLOTW, "lotw"},
	{FlagAmbiguousPrefix, "ambiguous"},
	{FlagQRP, "qrp"},
	{FlagExactCall, "exact"},
}

var flagByName = func() map[string]Flag {
	out := make(map[string]Flag, len(flagNames))
	for _, entry := range flagNames {
		out[entry.name] = entry.flag
	}
	return out
}()

// Has reports whether every bit of other is set.
func (f Flag) Has(other Flag) bool {
	return f&other == other
}

// Names lists the set flags in table order.
func (f Flag) Names() []string {
	var out []string
	for _, entry := range flagNames {
		if f&entry.flag != 0 {
			out = append(out, entry.name)
		}
	}
	return out
}

func (f Flag) String() string {
	return strings.Join(f.Names(), ",")
}

// ParseFlags converts loader flag names into a Flag set. Unknown names are
// returned separately so the caller can log them.
func ParseFlags(names []string) (Flag, []string) {
	var out Flag
	var unknown []string
	for _, name := range names {
		norm := strings.ToLower(strings.TrimSpace(name))
		if norm == "" {
			continue
		}
		if f, ok := flagByName[norm]; ok {
			out |= f
			continue
		}
		unknown = append(unknown, name)
	}
	return out, unknown
}

// Record is one raw entity as supplied by a loader.
type Record struct {
	Kind       string
	MainPrefix string
	FullPrefix string
	Country    string
	Province   string
	City       string
	Admin1     string
	Admin2     string
	Continent  string
	TimeZone   string
	Latitude   string
	Longitude  string
	DXCC       int
	WAE        int
	CQ         []int
	ITU        []int
	IOTA       string
	StartDate  string
	EndDate    string
	Flags      []string
	Masks      []string
}

// Group is every record sharing one DXCC number, in loader order.
type Group struct {
	DXCC    int
	Records []Record
}

// EntityID addresses an entity inside an Index arena.
type EntityID int32

// Entity is one compiled node of the prefix database.
type Entity struct {
	ID         EntityID
	Kind       Kind
	MainPrefix string
	FullPrefix string
	Country    string
	Province   string
	City       string
	Admin1     string
	Admin2     string
	Continent  string
	TimeZone   string
	Latitude   string
	Longitude  string
	DXCC       int
	WAE        int
	CQ         []int
	ITU        []int
	IOTA       string
	StartDate  string
	EndDate    string
	Flags      Flag
	Masks      []string
	// Keys is the bounded MaskKeySet of every valid mask.
	Keys     []string
	IsParent bool
	Children []EntityID

	positions [][]mask.PositionSet
}

func newEntity(id EntityID, rec Record, kind Kind, flags Flag) Entity {
	return Entity{
		ID:         id,
		Kind:       kind,
		MainPrefix: strings.ToUpper(strings.TrimSpace(rec.MainPrefix)),
		FullPrefix: strings.ToUpper(strings.TrimSpace(rec.FullPrefix)),
		Country:    strings.TrimSpace(rec.Country),
		Province:   strings.TrimSpace(rec.Province),
		City:       strings.TrimSpace(rec.City),
		Admin1:     strings.TrimSpace(rec.Admin1),
		Admin2:     strings.TrimSpace(rec.Admin2),
		Continent:  strings.ToUpper(strings.TrimSpace(rec.Continent)),
		TimeZone:   strings.TrimSpace(rec.TimeZone),
		Latitude:   strings.TrimSpace(rec.Latitude),
		Longitude:  strings.TrimSpace(rec.Longitude),
		DXCC:       rec.DXCC,
		WAE:        rec.WAE,
		CQ:         append([]int(nil), rec.CQ...),
		ITU:        append([]int(nil), rec.ITU...),
		IOTA:       strings.TrimSpace(rec.IOTA),
		StartDate:  strings.TrimSpace(rec.StartDate),
		EndDate:    strings.TrimSpace(rec.EndDate),
		Flags:      flags,
	}
}

// MatchesCall reports whether any of the entity's masks accepts call at every
// mask position. The call must be at least as long as the mask.
func (e *Entity) MatchesCall(call string) bool {
	for _, positions := range e.positions {
		if len(call) < len(positions) {
			continue
		}
		ok := true
		for i, set := range positions {
			if !set.Contains(call[i]) {
				ok = false
				break
			}
		}
		if ok {
			return true
		}
	}
	return false
}

// addKeys merges keys into the entity's sorted MaskKeySet.
func (e *Entity) addKeys(keys []string) {
	seen := make(map[string]struct{}, len(e.Keys)+len(keys))
	for _, k := range e.Keys {
		seen[k] = struct{}{}
	}
	for _, k := range keys {
		if _, ok := seen[k]; ok {
			continue
		}
		seen[k] = struct{}{}
		e.Keys = append(e.Keys, k)
	}
	sort.Strings(e.Keys)
}
