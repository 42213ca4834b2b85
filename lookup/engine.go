// Package lookup resolves call signs against a compiled prefix index:
// validation, search-string extraction, progressive key search, child
// refinement and optional merging of ambiguous matches. An Engine is safe for
// concurrent use; batch lookups fan out over a bounded worker pool.
package lookup

import (
	"strings"

	"callparser/callstruct"
	"callparser/mask"
	"callparser/prefix"
	"callparser/stats"
)

// Options configures an Engine.
type Options struct {
	// MergeHits collapses several DXCC-distinct primary hits into one.
	MergeHits bool
	// Workers bounds batch parallelism; <= 0 uses GOMAXPROCS.
	Workers int
	// CacheSize bounds the result cache; <= 0 disables it.
	CacheSize int
	// Tracker receives lookup counters when set.
	Tracker *stats.Tracker
}

// Engine answers lookups against one immutable prefix index.
type Engine struct {
	idx     *prefix.Index
	opts    Options
	cache   *resultCache
	tracker *stats.Tracker
}

// NewEngine wraps idx. The index must not be modified afterwards.
func NewEngine(idx *prefix.Index, opts Options) *Engine {
	return &Engine{
		idx:     idx,
		opts:    opts,
		cache:   newResultCache(opts.CacheSize),
		tracker: opts.Tracker,
	}
}

// Index returns the engine's prefix index.
func (e *Engine) Index() *prefix.Index {
	return e.idx
}

// Metrics returns result cache counters.
func (e *Engine) Metrics() CacheMetrics {
	return e.cache.metrics()
}

// Classify runs the call structure classifier against this engine's index.
func (e *Engine) Classify(call string) callstruct.Components {
	return callstruct.Classify(strings.ToUpper(call), e.idx)
}

// Purpose: Resolve one call sign to its hits.
// Key aspects: Invalid input returns an error wrapping ErrInvalidFormat; no
// match returns an empty slice and nil error. Primary hits precede refined hits.
// The call is validated as given; surrounding whitespace is invalid.
// Upstream: callers, LookupBatch.
// Downstream: Validate, searchString, search, refine, merge.
func (e *Engine) Lookup(call string) ([]Hit, error) {
	norm := strings.ToUpper(call)
	if cached, ok := e.cache.get(norm); ok {
		e.record(cached)
		return withCallSign(cached.hits, call), cached.err
	}
	res := e.resolve(call, norm)
	e.cache.put(res)
	e.record(res)
	return res.hits, res.err
}

func (e *Engine) resolve(call, norm string) cachedResult {
	res := cachedResult{call: norm}
	if err := Validate(norm); err != nil {
		res.err = err
		return res
	}
	comps := callstruct.Classify(norm, e.idx)
	structure := comps.Structure
	res.structure = structure
	target := searchString(norm, comps)
	primary, matched, exact := e.search(target)
	if len(primary) == 0 {
		res.hits = []Hit{}
		return res
	}

	hits := make([]Hit, 0, len(primary)+1)
	for _, id := range primary {
		hits = append(hits, newHit(call, e.idx.Entity(id), structure, false))
	}
	res.ambiguous = len(hits) > 1
	if res.ambiguous && e.opts.MergeHits {
		hits = mergeHits(hits)
	}
	for _, id := range e.refine(target, matched, exact, primary) {
		hits = append(hits, newHit(call, e.idx.Entity(id), structure, true))
	}
	res.hits = hits
	return res
}

// search checks target against the exact call table, then looks up the first
// MaxKeyLen characters of target, dropping the last character after each miss.
// It returns the entities, the key that matched and whether it was exact.
func (e *Engine) search(target string) ([]prefix.EntityID, string, bool) {
	if ids := e.idx.Exact(target); len(ids) > 0 {
		return ids, target, true
	}
	key := target
	if len(key) > mask.MaxKeyLen {
		key = key[:mask.MaxKeyLen]
	}
	for ; key != ""; key = key[:len(key)-1] {
		if ids := e.idx.Primary(key); len(ids) > 0 {
			return ids, key, false
		}
	}
	return nil, "", false
}

// refine returns children of the matched parents that are registered under the
// searched key or any shortening of it down to matched, and whose masks accept
// the full target at every position. An exact match only considers the
// stations listed under the whole call; otherwise exact-call stations are
// skipped.
func (e *Engine) refine(target, matched string, exact bool, parents []prefix.EntityID) []prefix.EntityID {
	var keys []string
	if exact {
		keys = []string{matched}
	} else {
		key := target
		if len(key) > mask.MaxKeyLen {
			key = key[:mask.MaxKeyLen]
		}
		for l := len(key); l >= len(matched) && l > 0; l-- {
			keys = append(keys, key[:l])
		}
	}
	owned := make(map[prefix.EntityID]struct{})
	for _, pid := range parents {
		for _, child := range e.idx.Entity(pid).Children {
			owned[child] = struct{}{}
		}
	}
	if len(owned) == 0 {
		return nil
	}
	var out []prefix.EntityID
	seen := make(map[prefix.EntityID]struct{})
	for _, key := range keys {
		for _, id := range e.idx.Children(key) {
			if _, ok := seen[id]; ok {
				continue
			}
			seen[id] = struct{}{}
			if _, ok := owned[id]; !ok {
				continue
			}
			child := e.idx.Entity(id)
			if child.Flags.Has(prefix.FlagExactCall) != exact {
				continue
			}
			if child.MatchesCall(target) {
				out = append(out, id)
			}
		}
	}
	return out
}

// mergeHits collapses DXCC-distinct hits into the first one, recording every
// DXCC number involved.
func mergeHits(hits []Hit) []Hit {
	merged := hits[0]
	merged.IsMergedHit = true
	merged.DXCCMerged = make([]int, 0, len(hits))
	for _, h := range hits {
		merged.DXCCMerged = append(merged.DXCCMerged, h.DXCC)
	}
	return []Hit{merged}
}

func withCallSign(hits []Hit, call string) []Hit {
	for i := range hits {
		hits[i].CallSign = call
	}
	return hits
}

func (e *Engine) record(res cachedResult) {
	if e.tracker == nil {
		return
	}
	switch {
	case res.err != nil:
		e.tracker.RecordOutcome(stats.OutcomeInvalid)
		return
	case len(res.hits) == 0:
		e.tracker.RecordOutcome(stats.OutcomeMiss)
	default:
		e.tracker.RecordOutcome(stats.OutcomeHit)
		if res.hits[0].IsMergedHit {
			e.tracker.IncrementMerged()
		}
		if res.hits[len(res.hits)-1].Refined {
			e.tracker.IncrementRefined()
		}
	}
	if res.ambiguous {
		e.tracker.IncrementAmbiguous()
	}
	e.tracker.IncrementStructure(res.structure.String())
}
