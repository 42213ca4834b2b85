// Package stats tracks lookup outcomes and per-structure counters for the
// periodic and exit-time stats lines.
package stats

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"sync/atomic"
	"time"
)

// Outcome is the result class of one lookup.
type Outcome uint8

const (
	OutcomeHit Outcome = iota
	OutcomeMiss
	OutcomeInvalid
)

// Tracker tracks lookup statistics. Safe for concurrent use by batch workers.
type Tracker struct {
	// structure counters live in sync.Map + atomic.Uint64 so per-lookup
	// increments don't fight over a mutex
	structureCounts sync.Map // string -> *atomic.Uint64
	start           atomic.Int64
	lookups         atomic.Uint64
	hits            atomic.Uint64
	misses          atomic.Uint64
	invalid         atomic.Uint64
	ambiguous       atomic.Uint64
	merged          atomic.Uint64
	refined         atomic.Uint64
}

// Snapshot is a point-in-time copy of the counters.
type Snapshot struct {
	Lookups   uint64
	Hits      uint64
	Misses    uint64
	Invalid   uint64
	Ambiguous uint64
	Merged    uint64
	Refined   uint64
	Uptime    time.Duration
}

// NewTracker creates a new stats tracker
func NewTracker() *Tracker {
	t := &Tracker{}
	t.start.Store(time.Now().UnixNano())
	return t
}

// RecordOutcome counts one finished lookup.
func (t *Tracker) RecordOutcome(o Outcome) {
	if t == nil {
		return
	}
	t.lookups.Add(1)
	switch o {
	case OutcomeHit:
		t.hits.Add(1)
	case OutcomeMiss:
		t.misses.Add(1)
	case OutcomeInvalid:
		t.invalid.Add(1)
	}
}

// IncrementStructure increases the count for a call structure (Call, PrefixCall, ...).
func (t *Tracker) IncrementStructure(structure string) {
	if t == nil {
		return
	}
	incrementCounter(&t.structureCounts, structure)
}

// IncrementAmbiguous counts a lookup whose key resolved to several DXCC entities.
func (t *Tracker) IncrementAmbiguous() {
	if t != nil {
		t.ambiguous.Add(1)
	}
}

// IncrementMerged counts a lookup whose ambiguous hits were merged.
func (t *Tracker) IncrementMerged() {
	if t != nil {
		t.merged.Add(1)
	}
}

// IncrementRefined counts a lookup that produced at least one child hit.
func (t *Tracker) IncrementRefined() {
	if t != nil {
		t.refined.Add(1)
	}
}

// GetStructureCounts returns a copy of the per-structure counts.
func (t *Tracker) GetStructureCounts() map[string]uint64 {
	counts := make(map[string]uint64)
	if t == nil {
		return counts
	}
	t.structureCounts.Range(func(key, value any) bool {
		counts[key.(string)] = value.(*atomic.Uint64).Load()
		return true
	})
	return counts
}

// Snapshot returns the current counter values.
func (t *Tracker) Snapshot() Snapshot {
	if t == nil {
		return Snapshot{}
	}
	return Snapshot{
		Lookups:   t.lookups.Load(),
		Hits:      t.hits.Load(),
		Misses:    t.misses.Load(),
		Invalid:   t.invalid.Load(),
		Ambiguous: t.ambiguous.Load(),
		Merged:    t.merged.Load(),
		Refined:   t.refined.Load(),
		Uptime:    t.GetUptime(),
	}
}

// GetUptime returns how long the tracker has been running
func (t *Tracker) GetUptime() time.Duration {
	start := t.start.Load()
	return time.Since(time.Unix(0, start))
}

// Reset resets all counters
func (t *Tracker) Reset() {
	t.structureCounts.Range(func(key, _ any) bool {
		t.structureCounts.Delete(key)
		return true
	})
	for _, c := range []*atomic.Uint64{&t.lookups, &t.hits, &t.misses, &t.invalid, &t.ambiguous, &t.merged, &t.refined} {
		c.Store(0)
	}
	t.start.Store(time.Now().UnixNano())
}

// SnapshotLines returns human-readable stats ready for console display.
func (t *Tracker) SnapshotLines() []string {
	snap := t.Snapshot()
	lines := make([]string, 0, 2)
	lines = append(lines, fmt.Sprintf("Lookups: total=%d hits=%d misses=%d invalid=%d ambiguous=%d merged=%d refined=%d",
		snap.Lookups, snap.Hits, snap.Misses, snap.Invalid, snap.Ambiguous, snap.Merged, snap.Refined))
	lines = append(lines, formatCounts("Lookups by structure", t.GetStructureCounts()))
	return lines
}

func formatCounts(label string, counts map[string]uint64) string {
	var builder strings.Builder
	builder.WriteString(label)
	builder.WriteString(": ")
	if len(counts) == 0 {
		builder.WriteString("(none)")
		return builder.String()
	}
	keys := make([]string, 0, len(counts))
	for k := range counts {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for i, k := range keys {
		if i > 0 {
			builder.WriteString(", ")
		}
		fmt.Fprintf(&builder, "%s=%d", k, counts[k])
	}
	return builder.String()
}

func incrementCounter(m *sync.Map, key string) {
	if strings.TrimSpace(key) == "" {
		return
	}
	if value, ok := m.Load(key); ok {
		value.(*atomic.Uint64).Add(1)
		return
	}
	counter := &atomic.Uint64{}
	actual, loaded := m.LoadOrStore(key, counter)
	if loaded {
		actual.(*atomic.Uint64).Add(1)
		return
	}
	counter.Add(1)
}
