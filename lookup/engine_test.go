package lookup

import (
	"context"
	"errors"
	"reflect"
	"testing"

	"callparser/callstruct"
	"callparser/cty"
	"callparser/prefix"
	"callparser/stats"
)

func testGroups() []prefix.Group {
	return []prefix.Group{
		{DXCC: 1, Records: []prefix.Record{
			{Kind: "pfDXCC", MainPrefix: "3B6", FullPrefix: "3B6", Country: "Agalega", CQ: []int{39}, Masks: []string{"3B6"}},
		}},
		{DXCC: 2, Records: []prefix.Record{
			{Kind: "pfDXCC", MainPrefix: "3B7", FullPrefix: "3B7", Country: "St. Brandon", Masks: []string{"3B7"}},
		}},
		{DXCC: 291, Records: []prefix.Record{
			{Kind: "pfProvince", MainPrefix: "W6", FullPrefix: "K.CA", Province: "California", Latitude: "37.5", Longitude: "-121.5", Masks: []string{"[KNW]6"}},
			{Kind: "pfDXCC", MainPrefix: "K", FullPrefix: "K", Country: "United States", Masks: []string{"[KNW]", "A[A-K]"}},
		}},
		{DXCC: 10, Records: []prefix.Record{{Kind: "pfDXCC", Country: "Alpha", Masks: []string{"ZZ"}}}},
		{DXCC: 20, Records: []prefix.Record{{Kind: "pfDXCC", Country: "Beta", Masks: []string{"Z[YZ]"}}}},
		{DXCC: 281, Records: []prefix.Record{{Kind: "pfDXCC", Country: "Spain", Masks: []string{"AM"}}}},
		{DXCC: 500, Records: []prefix.Record{{Kind: "pfDXCC", Country: "Eight", Masks: []string{"AM8"}}}},
	}
}

func newTestEngine(t *testing.T, opts Options) *Engine {
	t.Helper()
	idx := prefix.Build(testGroups(), prefix.BuildOptions{Logf: func(string, ...any) {}})
	return NewEngine(idx, opts)
}

func TestLookupDistinguishesNeighbouringPrefixes(t *testing.T) {
	e := newTestEngine(t, Options{})
	for call, want := range map[string]int{"3B6AB": 1, "3B7AB": 2} {
		hits, err := e.Lookup(call)
		if err != nil {
			t.Fatalf("lookup %s: %v", call, err)
		}
		if len(hits) != 1 || hits[0].DXCC != want {
			t.Fatalf("%s: expected DXCC %d, got %+v", call, want, hits)
		}
		if hits[0].CallSign != call {
			t.Fatalf("expected call sign %s on hit, got %s", call, hits[0].CallSign)
		}
	}
}

func TestLookupMissReturnsEmptySlice(t *testing.T) {
	e := newTestEngine(t, Options{})
	hits, err := e.Lookup("3B8AB")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if hits == nil || len(hits) != 0 {
		t.Fatalf("expected empty non-nil slice, got %#v", hits)
	}
}

func TestLookupRejectsInvalidInput(t *testing.T) {
	e := newTestEngine(t, Options{})
	for _, call := range []string{"", "123456", "/W6OP", "W/6OP", "W6-OP", "ABCDEF", " W6OP", "W6OP "} {
		hits, err := e.Lookup(call)
		if !errors.Is(err, ErrInvalidFormat) {
			t.Fatalf("%q: expected ErrInvalidFormat, got %v", call, err)
		}
		if hits != nil {
			t.Fatalf("%q: expected no hits, got %+v", call, hits)
		}
	}
}

func TestLookupAmbiguousWithoutMerge(t *testing.T) {
	e := newTestEngine(t, Options{})
	hits, err := e.Lookup("ZZ1AB")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(hits) != 2 || hits[0].DXCC != 10 || hits[1].DXCC != 20 {
		t.Fatalf("expected Alpha then Beta, got %+v", hits)
	}
	if hits[0].IsMergedHit || hits[1].IsMergedHit {
		t.Fatalf("did not expect merged hits")
	}
}

func TestLookupAmbiguousWithMerge(t *testing.T) {
	e := newTestEngine(t, Options{MergeHits: true})
	hits, err := e.Lookup("ZZ1AB")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(hits) != 1 {
		t.Fatalf("expected one merged hit, got %+v", hits)
	}
	h := hits[0]
	if !h.IsMergedHit || h.Country != "Alpha" {
		t.Fatalf("expected merged Alpha representative, got %+v", h)
	}
	if !reflect.DeepEqual(h.DXCCMerged, []int{10, 20}) {
		t.Fatalf("unexpected merged DXCC set %v", h.DXCCMerged)
	}
}

func TestLookupRefinesChildren(t *testing.T) {
	e := newTestEngine(t, Options{})
	hits, err := e.Lookup("W6OP")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("expected country plus province, got %+v", hits)
	}
	if hits[0].Country != "United States" || hits[0].Refined {
		t.Fatalf("expected primary hit first, got %+v", hits[0])
	}
	if hits[1].Province != "California" || !hits[1].Refined || hits[1].Kind != prefix.KindProvince {
		t.Fatalf("expected refined California hit, got %+v", hits[1])
	}
	if hits[1].Grid != "CM97" {
		t.Fatalf("expected grid CM97, got %q", hits[1].Grid)
	}
	if hits[0].Structure != callstruct.Call {
		t.Fatalf("expected Call structure, got %s", hits[0].Structure)
	}

	hits, err = e.Lookup("W7OP")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(hits) != 1 || hits[0].Refined {
		t.Fatalf("expected no refinement for W7OP, got %+v", hits)
	}
}

func TestLookupUsesSearchString(t *testing.T) {
	e := newTestEngine(t, Options{})
	hits, err := e.Lookup("AM70URE/8")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if len(hits) != 1 || hits[0].DXCC != 500 {
		t.Fatalf("expected digit-substituted search to hit AM8, got %+v", hits)
	}
	hits, err = e.Lookup("AM70URE")
	if err != nil || len(hits) != 1 || hits[0].DXCC != 281 {
		t.Fatalf("expected plain AM70URE to hit Spain, got %+v %v", hits, err)
	}
}

func TestLookupExactCallMatchesOnlyWholeCall(t *testing.T) {
	groups := cty.Groups(map[string]cty.PrefixInfo{
		"K":     {Country: "United States", Prefix: "K", ADIF: 291, CQZone: 5},
		"W":     {Country: "United States", Prefix: "K", ADIF: 291, CQZone: 5},
		"KL":    {Country: "Alaska", Prefix: "KL", ADIF: 6, CQZone: 1},
		"W1XYZ": {Country: "Alaska", Prefix: "KL", ADIF: 6, CQZone: 1, ExactCallsign: true},
	})
	idx := prefix.Build(groups, prefix.BuildOptions{Logf: func(string, ...any) {}})
	e := NewEngine(idx, Options{})

	for _, call := range []string{"W1XYA", "W1XY", "W1XYZZ"} {
		hits, err := e.Lookup(call)
		if err != nil {
			t.Fatalf("lookup %s: %v", call, err)
		}
		if len(hits) != 1 || hits[0].DXCC != 291 || hits[0].Refined {
			t.Fatalf("%s: expected United States only, got %+v", call, hits)
		}
	}

	for _, call := range []string{"W1XYZ", "w1xyz", "W1XYZ/P"} {
		hits, err := e.Lookup(call)
		if err != nil {
			t.Fatalf("lookup %s: %v", call, err)
		}
		if len(hits) != 2 {
			t.Fatalf("%s: expected Alaska plus station, got %+v", call, hits)
		}
		if hits[0].DXCC != 6 || hits[0].Refined || hits[0].Kind != prefix.KindDXCC {
			t.Fatalf("%s: expected Alaska primary hit, got %+v", call, hits[0])
		}
		if !hits[1].Refined || hits[1].Kind != prefix.KindStation || hits[1].FullPrefix != "W1XYZ" {
			t.Fatalf("%s: expected refined station hit, got %+v", call, hits[1])
		}
	}
}

func TestLookupEqualLengthUsesClassifiedPrefix(t *testing.T) {
	groups := []prefix.Group{
		{DXCC: 291, Records: []prefix.Record{
			{Kind: "pfDXCC", MainPrefix: "K", Country: "United States", Masks: []string{"[KNW]"}},
		}},
		{DXCC: 12, Records: []prefix.Record{
			{Kind: "pfDXCC", MainPrefix: "VP2E", Country: "Anguilla", Masks: []string{"VP2E", "VP2E/"}},
		}},
	}
	e := NewEngine(prefix.Build(groups, prefix.BuildOptions{Logf: func(string, ...any) {}}), Options{})
	for _, call := range []string{"W6OP/VP2E", "VP2E/W6OP"} {
		hits, err := e.Lookup(call)
		if err != nil {
			t.Fatalf("lookup %s: %v", call, err)
		}
		if len(hits) != 1 || hits[0].DXCC != 12 {
			t.Fatalf("%s: expected Anguilla, got %+v", call, hits)
		}
	}
	if got := e.Classify("W6OP/VP2E"); got.Structure != callstruct.CallPrefix || got.Prefix != "VP2E" {
		t.Fatalf("unexpected classification %+v", got)
	}
}

func TestLookupIsIdempotent(t *testing.T) {
	e := newTestEngine(t, Options{})
	first, err := e.Lookup("W6OP")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	second, err := e.Lookup("W6OP")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if !reflect.DeepEqual(first, second) {
		t.Fatalf("lookups differ:\n%+v\n%+v", first, second)
	}
}

func TestLookupCacheReturnsPrivateCopies(t *testing.T) {
	e := newTestEngine(t, Options{CacheSize: 64})
	hits, err := e.Lookup("3B6AB")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	hits[0].CQ[0] = 99
	again, err := e.Lookup("3b6ab")
	if err != nil {
		t.Fatalf("lookup: %v", err)
	}
	if again[0].CQ[0] != 39 {
		t.Fatalf("cached hit was mutated through caller slice: %v", again[0].CQ)
	}
	if again[0].CallSign != "3b6ab" {
		t.Fatalf("expected cached hit to carry the caller's spelling, got %q", again[0].CallSign)
	}
	m := e.Metrics()
	if m.Lookups != 2 || m.Hits != 1 || m.Entries != 1 {
		t.Fatalf("unexpected cache metrics %+v", m)
	}
}

func TestLookupCachesInvalidInput(t *testing.T) {
	e := newTestEngine(t, Options{CacheSize: 64})
	_, first := e.Lookup("123456")
	_, second := e.Lookup("123456")
	if !errors.Is(first, ErrInvalidFormat) || !errors.Is(second, ErrInvalidFormat) {
		t.Fatalf("expected cached validation error, got %v / %v", first, second)
	}
	if m := e.Metrics(); m.Hits != 1 {
		t.Fatalf("expected invalid result to be served from cache, got %+v", m)
	}
}

func TestLookupRecordsTrackerCounters(t *testing.T) {
	tr := stats.NewTracker()
	e := newTestEngine(t, Options{MergeHits: true, Tracker: tr})
	for _, call := range []string{"3B6AB", "ZZ1AB", "W6OP", "123", "3B8AB"} {
		_, _ = e.Lookup(call)
	}
	snap := tr.Snapshot()
	if snap.Lookups != 5 || snap.Hits != 3 || snap.Misses != 1 || snap.Invalid != 1 {
		t.Fatalf("unexpected outcome counters %+v", snap)
	}
	if snap.Ambiguous != 1 || snap.Merged != 1 || snap.Refined != 1 {
		t.Fatalf("unexpected ambiguity counters %+v", snap)
	}
	var total uint64
	for _, n := range tr.GetStructureCounts() {
		total += n
	}
	if total != 4 {
		t.Fatalf("expected 4 structure increments, got %d", total)
	}
}

func TestLookupBatch(t *testing.T) {
	e := newTestEngine(t, Options{Workers: 4, CacheSize: 32})
	calls := make([]string, 0, 300)
	for i := 0; i < 100; i++ {
		calls = append(calls, "3B6AB", "W6OP", "BAD!")
	}
	res, err := e.LookupBatch(context.Background(), calls)
	if err != nil {
		t.Fatalf("batch: %v", err)
	}
	if res.Processed != len(calls) {
		t.Fatalf("expected %d processed, got %d", len(calls), res.Processed)
	}
	if len(res.Invalid) != 100 {
		t.Fatalf("expected 100 invalid calls, got %d", len(res.Invalid))
	}
	// 3B6AB yields one hit, W6OP two.
	if len(res.Hits) != 300 {
		t.Fatalf("expected 300 hits, got %d", len(res.Hits))
	}
	for _, inv := range res.Invalid {
		if inv.CallSign != "BAD!" || !errors.Is(inv.Err, ErrInvalidFormat) {
			t.Fatalf("unexpected invalid entry %+v", inv)
		}
	}
}

func TestLookupBatchEmpty(t *testing.T) {
	e := newTestEngine(t, Options{})
	res, err := e.LookupBatch(context.Background(), nil)
	if err != nil || res.Processed != 0 || len(res.Hits) != 0 {
		t.Fatalf("unexpected empty batch result %+v %v", res, err)
	}
}

func TestLookupBatchCanceled(t *testing.T) {
	e := newTestEngine(t, Options{Workers: 2})
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res, err := e.LookupBatch(ctx, []string{"3B6AB", "3B7AB", "W6OP"})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if res.Processed != 0 {
		t.Fatalf("expected no lookups after cancellation, got %d", res.Processed)
	}
}
