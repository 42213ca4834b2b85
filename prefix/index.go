package prefix

import (
	"fmt"
	"log"
	"sort"
	"strings"

	"callparser/mask"

	lev "github.com/agnivade/levenshtein"
)

// Index is the compiled prefix database. The arena owns every entity; the key
// maps reference entities by EntityID. An Index is never mutated after Build,
// so any number of goroutines may read it concurrently. Exact call signs live
// in their own map and never enter the primary index.
type Index struct {
	entities []Entity
	primary  map[string][]EntityID
	children map[string][]EntityID
	portable map[string][]EntityID
	exact    map[string][]EntityID
	stats    BuildStats
}

// BuildOptions controls diagnostics during Build.
type BuildOptions struct {
	// Logf receives one line per skipped record or mask. Defaults to log.Printf.
	Logf func(string, ...any)
}

// BuildStats summarizes a build.
type BuildStats struct {
	Groups          int
	Entities        int
	PrimaryKeys     int
	AmbiguousKeys   int
	ChildKeys       int
	PortableKeys    int
	ExactCalls      int
	SkippedMasks    int
	SkippedRecords  int
	RegisteredMasks int
}

// Purpose: Compile loader groups into an immutable Index.
// Key aspects: Per-mask and per-record failures are logged and skipped; the
// build itself never fails.
// Upstream: main source refresh, recordsdb/cty loaders, tests.
// Downstream: mask.Expand, mask.Positions.
func Build(groups []Group, opts BuildOptions) *Index {
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}
	b := &builder{
		idx: &Index{
			primary:  make(map[string][]EntityID),
			children: make(map[string][]EntityID),
			portable: make(map[string][]EntityID),
			exact:    make(map[string][]EntityID),
		},
		logf: logf,
	}
	for _, g := range groups {
		b.addGroup(g)
	}
	b.idx.stats.Groups = len(groups)
	b.idx.stats.Entities = len(b.idx.entities)
	b.idx.finishStats()
	return b.idx
}

type builder struct {
	idx  *Index
	logf func(string, ...any)
}

func (b *builder) addGroup(g Group) {
	if len(g.Records) == 0 {
		return
	}
	topPos := 0
	for i, rec := range g.Records {
		if kind, err := ParseKind(rec.Kind); err == nil && kind.IsTopLevel() {
			topPos = i
			break
		}
	}

	topRec := g.Records[topPos]
	topRec.DXCC = g.DXCC
	topKind, err := ParseKind(topRec.Kind)
	if err != nil {
		topKind = KindDXCC
	}
	if g.DXCC == 0 {
		topKind = KindInvalidPrefix
	}
	topID := b.newEntity(topRec, topKind)
	b.registerMasks(topID, topID, topRec.Masks, false)

	for i, rec := range g.Records {
		if i == topPos {
			continue
		}
		kind, err := ParseKind(rec.Kind)
		if err != nil {
			b.idx.stats.SkippedRecords++
			b.logf("prefix: dxcc %d: skipping record %q: %v", g.DXCC, rec.FullPrefix, err)
			continue
		}
		if len(rec.Masks) == 0 {
			b.idx.stats.SkippedRecords++
			b.logf("prefix: dxcc %d: skipping record %q without masks", g.DXCC, rec.FullPrefix)
			continue
		}
		rec.DXCC = g.DXCC
		id := b.newEntity(rec, kind)
		var registered int
		if b.idx.entities[id].Flags.Has(FlagExactCall) {
			registered = b.registerExact(topID, id, rec.Masks)
		} else {
			registered = b.registerMasks(topID, id, rec.Masks, true)
		}
		if registered == 0 {
			continue
		}
		top := &b.idx.entities[topID]
		top.IsParent = true
		top.Children = append(top.Children, id)
	}
}

func (b *builder) newEntity(rec Record, kind Kind) EntityID {
	flags, unknown := ParseFlags(rec.Flags)
	if len(unknown) > 0 {
		b.logf("prefix: %q: ignoring unknown flags %s", rec.FullPrefix, strings.Join(unknown, ","))
	}
	id := EntityID(len(b.idx.entities))
	b.idx.entities = append(b.idx.entities, newEntity(id, rec, kind, flags))
	return id
}

// registerMasks expands every mask of entity id. Each key points the primary
// index at the group's top entity; child entities are also listed in the child
// index. It returns how many masks were valid.
func (b *builder) registerMasks(topID, id EntityID, masks []string, child bool) int {
	valid := 0
	for _, raw := range masks {
		m := strings.ToUpper(strings.TrimSpace(raw))
		portable := mask.IsPortable(m)
		body := strings.TrimSuffix(m, "/")
		keys, err := mask.Expand(body)
		if err != nil {
			b.idx.stats.SkippedMasks++
			b.logf("prefix: dxcc %d: skipping mask: %v", b.idx.entities[id].DXCC, err)
			continue
		}
		positions, err := mask.Positions(body)
		if err != nil {
			b.idx.stats.SkippedMasks++
			continue
		}
		valid++
		b.idx.stats.RegisteredMasks++

		ent := &b.idx.entities[id]
		ent.Masks = append(ent.Masks, m)
		ent.positions = append(ent.positions, positions)
		ent.addKeys(keys)

		for _, key := range keys {
			b.idx.registerPrimary(key, topID)
			if child {
				b.idx.children[key] = appendUnique(b.idx.children[key], id)
			}
			if portable {
				pk := key + "/"
				b.idx.portable[pk] = appendUnique(b.idx.portable[pk], topID)
			}
		}
	}
	return valid
}

// registerExact lists each whole call sign of an exact-call record under the
// exact and child indices. Only plain letters and digits are accepted.
func (b *builder) registerExact(topID, id EntityID, calls []string) int {
	valid := 0
	for _, raw := range calls {
		call := strings.ToUpper(strings.TrimSpace(raw))
		if !isPlainCall(call) {
			b.idx.stats.SkippedMasks++
			b.logf("prefix: dxcc %d: skipping exact call %q", b.idx.entities[id].DXCC, raw)
			continue
		}
		positions, err := mask.Positions(call)
		if err != nil {
			b.idx.stats.SkippedMasks++
			b.logf("prefix: dxcc %d: skipping exact call: %v", b.idx.entities[id].DXCC, err)
			continue
		}
		valid++
		b.idx.stats.RegisteredMasks++

		ent := &b.idx.entities[id]
		ent.Masks = append(ent.Masks, call)
		ent.positions = append(ent.positions, positions)
		ent.addKeys([]string{call})

		b.idx.exact[call] = appendUnique(b.idx.exact[call], topID)
		b.idx.children[call] = appendUnique(b.idx.children[call], id)
	}
	return valid
}

func isPlainCall(s string) bool {
	if s == "" {
		return false
	}
	for i := 0; i < len(s); i++ {
		ch := s[i]
		if (ch < 'A' || ch > 'Z') && (ch < '0' || ch > '9') {
			return false
		}
	}
	return true
}

// registerPrimary inserts id under key unless an entity with the same DXCC
// number already represents it. A different DXCC number makes the key ambiguous.
func (idx *Index) registerPrimary(key string, id EntityID) {
	existing := idx.primary[key]
	dxcc := idx.entities[id].DXCC
	for _, other := range existing {
		if idx.entities[other].DXCC == dxcc {
			return
		}
	}
	idx.primary[key] = append(existing, id)
}

func appendUnique(ids []EntityID, id EntityID) []EntityID {
	for _, existing := range ids {
		if existing == id {
			return ids
		}
	}
	return append(ids, id)
}

func (idx *Index) finishStats() {
	idx.stats.PrimaryKeys = len(idx.primary)
	idx.stats.ChildKeys = len(idx.children)
	idx.stats.PortableKeys = len(idx.portable)
	idx.stats.ExactCalls = len(idx.exact)
	idx.stats.AmbiguousKeys = 0
	for _, ids := range idx.primary {
		if len(ids) > 1 {
			idx.stats.AmbiguousKeys++
		}
	}
}

// Stats returns the build summary.
func (idx *Index) Stats() BuildStats {
	if idx == nil {
		return BuildStats{}
	}
	return idx.stats
}

// Len returns the number of entities in the arena.
func (idx *Index) Len() int {
	if idx == nil {
		return 0
	}
	return len(idx.entities)
}

// Entity returns the entity for id. The pointer aliases the arena and must be
// treated as read-only.
func (idx *Index) Entity(id EntityID) *Entity {
	if idx == nil || id < 0 || int(id) >= len(idx.entities) {
		return nil
	}
	return &idx.entities[id]
}

// Primary returns the entities registered under key in discovery order.
func (idx *Index) Primary(key string) []EntityID {
	if idx == nil {
		return nil
	}
	return idx.primary[key]
}

// Children returns the child entities registered under key.
func (idx *Index) Children(key string) []EntityID {
	if idx == nil {
		return nil
	}
	return idx.children[key]
}

// Exact returns the top entities of the groups listing call as an exact call
// sign. call must be upper case.
func (idx *Index) Exact(call string) []EntityID {
	if idx == nil {
		return nil
	}
	return idx.exact[call]
}

// IsPortablePrefix reports whether candidate followed by '/' is a known
// portable prefix key.
func (idx *Index) IsPortablePrefix(candidate string) bool {
	if idx == nil || candidate == "" {
		return false
	}
	_, ok := idx.portable[strings.ToUpper(candidate)+"/"]
	return ok
}

// NearestKeys returns up to limit primary keys closest to key by edit
// distance, nearest first and alphabetical within a distance.
func (idx *Index) NearestKeys(key string, limit int) []string {
	if idx == nil || limit <= 0 {
		return nil
	}
	key = strings.ToUpper(strings.TrimSpace(key))
	if len(key) > mask.MaxKeyLen {
		key = key[:mask.MaxKeyLen]
	}
	if key == "" {
		return nil
	}
	type scored struct {
		key  string
		dist int
	}
	candidates := make([]scored, 0, len(idx.primary))
	for k := range idx.primary {
		candidates = append(candidates, scored{key: k, dist: lev.ComputeDistance(key, k)})
	}
	sort.Slice(candidates, func(i, j int) bool {
		if candidates[i].dist == candidates[j].dist {
			return candidates[i].key < candidates[j].key
		}
		return candidates[i].dist < candidates[j].dist
	})
	if len(candidates) > limit {
		candidates = candidates[:limit]
	}
	out := make([]string, len(candidates))
	for i, c := range candidates {
		out[i] = c.key
	}
	return out
}

func (s BuildStats) String() string {
	return fmt.Sprintf("groups=%d entities=%d primary=%d ambiguous=%d child=%d portable=%d exact=%d masks=%d skipped_masks=%d skipped_records=%d",
		s.Groups, s.Entities, s.PrimaryKeys, s.AmbiguousKeys, s.ChildKeys, s.PortableKeys, s.ExactCalls, s.RegisteredMasks, s.SkippedMasks, s.SkippedRecords)
}
