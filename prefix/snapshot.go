package prefix

import (
	"fmt"
	"strings"

	"callparser/mask"
)

// Snapshot is the serializable form of an Index.
type Snapshot struct {
	Entities []Entity
	Primary  map[string][]EntityID
	Children map[string][]EntityID
	Portable map[string][]EntityID
	Exact    map[string][]EntityID
	Stats    BuildStats
}

// Snapshot exports the index. Slices are shared with the arena; callers must
// not modify them.
func (idx *Index) Snapshot() Snapshot {
	if idx == nil {
		return Snapshot{}
	}
	return Snapshot{
		Entities: idx.entities,
		Primary:  idx.primary,
		Children: idx.children,
		Portable: idx.portable,
		Exact:    idx.exact,
		Stats:    idx.stats,
	}
}

// Restore rebuilds an Index from a snapshot, recompiling mask position sets and
// rejecting dangling entity references.
func Restore(s Snapshot) (*Index, error) {
	idx := &Index{
		entities: make([]Entity, len(s.Entities)),
		primary:  make(map[string][]EntityID, len(s.Primary)),
		children: make(map[string][]EntityID, len(s.Children)),
		portable: make(map[string][]EntityID, len(s.Portable)),
		exact:    make(map[string][]EntityID, len(s.Exact)),
		stats:    s.Stats,
	}
	for i, ent := range s.Entities {
		if ent.ID != EntityID(i) {
			return nil, fmt.Errorf("prefix: snapshot entity %d has id %d", i, ent.ID)
		}
		ent.positions = nil
		for _, m := range ent.Masks {
			positions, err := mask.Positions(strings.TrimSuffix(m, "/"))
			if err != nil {
				return nil, fmt.Errorf("prefix: snapshot entity %d: %w", i, err)
			}
			ent.positions = append(ent.positions, positions)
		}
		idx.entities[i] = ent
	}
	copyRefs := func(dst, src map[string][]EntityID) error {
		for key, ids := range src {
			for _, id := range ids {
				if id < 0 || int(id) >= len(idx.entities) {
					return fmt.Errorf("prefix: snapshot key %q references missing entity %d", key, id)
				}
			}
			dst[key] = append([]EntityID(nil), ids...)
		}
		return nil
	}
	if err := copyRefs(idx.primary, s.Primary); err != nil {
		return nil, err
	}
	if err := copyRefs(idx.children, s.Children); err != nil {
		return nil, err
	}
	if err := copyRefs(idx.portable, s.Portable); err != nil {
		return nil, err
	}
	if err := copyRefs(idx.exact, s.Exact); err != nil {
		return nil, err
	}
	for _, ent := range idx.entities {
		for _, child := range ent.Children {
			if child < 0 || int(child) >= len(idx.entities) {
				return nil, fmt.Errorf("prefix: snapshot entity %d has missing child %d", ent.ID, child)
			}
		}
	}
	return idx, nil
}
