package stats

import (
	"strings"
	"sync"
	"testing"
)

func TestTrackerCountsOutcomes(t *testing.T) {
	tr := NewTracker()
	tr.RecordOutcome(OutcomeHit)
	tr.RecordOutcome(OutcomeHit)
	tr.RecordOutcome(OutcomeMiss)
	tr.RecordOutcome(OutcomeInvalid)
	tr.IncrementAmbiguous()
	tr.IncrementMerged()
	tr.IncrementRefined()

	snap := tr.Snapshot()
	if snap.Lookups != 4 || snap.Hits != 2 || snap.Misses != 1 || snap.Invalid != 1 {
		t.Fatalf("unexpected outcome counts: %+v", snap)
	}
	if snap.Ambiguous != 1 || snap.Merged != 1 || snap.Refined != 1 {
		t.Fatalf("unexpected ambiguity counts: %+v", snap)
	}
}

func TestTrackerStructureCountsConcurrent(t *testing.T) {
	tr := NewTracker()
	var wg sync.WaitGroup
	for i := 0; i < 8; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < 100; j++ {
				tr.IncrementStructure("Call")
			}
		}()
	}
	wg.Wait()
	tr.IncrementStructure("PrefixCall")
	tr.IncrementStructure("  ")

	counts := tr.GetStructureCounts()
	if counts["Call"] != 800 || counts["PrefixCall"] != 1 || len(counts) != 2 {
		t.Fatalf("unexpected structure counts: %v", counts)
	}
	lines := tr.SnapshotLines()
	if len(lines) != 2 || !strings.Contains(lines[1], "Call=800, PrefixCall=1") {
		t.Fatalf("unexpected snapshot lines: %v", lines)
	}
}

func TestTrackerReset(t *testing.T) {
	tr := NewTracker()
	tr.RecordOutcome(OutcomeHit)
	tr.IncrementStructure("Call")
	tr.Reset()
	if snap := tr.Snapshot(); snap.Lookups != 0 || snap.Hits != 0 {
		t.Fatalf("expected counters to reset, got %+v", snap)
	}
	if len(tr.GetStructureCounts()) != 0 {
		t.Fatalf("expected structure counts to reset")
	}
}

func TestNilTrackerIsSafe(t *testing.T) {
	var tr *Tracker
	tr.RecordOutcome(OutcomeHit)
	tr.IncrementStructure("Call")
	tr.IncrementAmbiguous()
	if snap := tr.Snapshot(); snap.Lookups != 0 {
		t.Fatalf("expected zero snapshot from nil tracker")
	}
}
