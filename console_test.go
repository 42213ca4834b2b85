package main

import (
	"bytes"
	"context"
	"strings"
	"sync/atomic"
	"testing"

	"callparser/callstruct"
	"callparser/lookup"
	"callparser/prefix"
)

func testEngine(t *testing.T) *lookup.Engine {
	t.Helper()
	groups := []prefix.Group{
		{DXCC: 291, Records: []prefix.Record{
			{Kind: "pfDXCC", MainPrefix: "K", Country: "United States", Continent: "NA", CQ: []int{5}, Masks: []string{"[KNW]"}},
		}},
		{DXCC: 281, Records: []prefix.Record{
			{Kind: "pfDXCC", MainPrefix: "EA", Country: "Spain", Masks: []string{"EA"}},
		}},
	}
	idx := prefix.Build(groups, prefix.BuildOptions{Logf: func(string, ...any) {}})
	return lookup.NewEngine(idx, lookup.Options{CacheSize: 64, Workers: 3})
}

func TestFormatHit(t *testing.T) {
	h := lookup.Hit{
		CallSign:   "W6OP",
		Kind:       prefix.KindProvince,
		MainPrefix: "W6",
		Country:    "United States",
		Province:   "California",
		Continent:  "NA",
		Grid:       "CM97",
		DXCC:       291,
		CQ:         []int{3},
		ITU:        []int{6, 7},
		Structure:  callstruct.Call,
		Refined:    true,
	}
	want := "W6OP -> United States / California kind=pfProvince dxcc=291 prefix=W6 cq=3 itu=6,7 cont=NA grid=CM97 structure=Call refined"
	if got := formatHit(h); got != want {
		t.Fatalf("formatHit:\n got %q\nwant %q", got, want)
	}

	merged := lookup.Hit{CallSign: "ZZ1AB", Country: "Alpha", DXCC: 10, IsMergedHit: true, DXCCMerged: []int{10, 20}}
	if got := formatHit(merged); !strings.HasSuffix(got, " merged=10,20") {
		t.Fatalf("expected merged suffix, got %q", got)
	}
}

func TestRunBatchKeepsInputOrder(t *testing.T) {
	engine := testEngine(t)
	in := strings.NewReader("W6OP\n\nBAD!\n3B8AB\n  EA1ABC  \nw6op\n")
	var out bytes.Buffer
	if err := runBatch(context.Background(), in, &out, engine); err != nil {
		t.Fatalf("runBatch: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	if len(lines) != 5 {
		t.Fatalf("expected 5 output lines, got %d: %q", len(lines), out.String())
	}
	checks := []struct {
		prefix string
		exact  bool
	}{
		{"W6OP -> United States", false},
		{"BAD!: invalid call sign", true},
		{"3B8AB: no matching prefix", true},
		{"EA1ABC -> Spain", false},
		{"w6op -> United States", false},
	}
	for i, c := range checks {
		if c.exact && lines[i] != c.prefix {
			t.Fatalf("line %d: expected %q, got %q", i, c.prefix, lines[i])
		}
		if !c.exact && !strings.HasPrefix(lines[i], c.prefix) {
			t.Fatalf("line %d: expected prefix %q, got %q", i, c.prefix, lines[i])
		}
	}
}

func TestRunBatchCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	var out bytes.Buffer
	if err := runBatch(ctx, strings.NewReader("W6OP\n"), &out, testEngine(t)); err == nil {
		t.Fatalf("expected canceled batch to return an error")
	}
}

func TestAnswerCallSuggestsNearestKeys(t *testing.T) {
	var out bytes.Buffer
	answerCall(&out, testEngine(t), "3B8AB")
	got := out.String()
	if !strings.HasPrefix(got, "3B8AB: no matching prefix (nearest: ") {
		t.Fatalf("expected suggestion line, got %q", got)
	}

	out.Reset()
	answerCall(&out, testEngine(t), "W/6")
	if !strings.Contains(out.String(), "invalid call sign format") {
		t.Fatalf("expected invalid format message, got %q", out.String())
	}
}

func TestRunInteractiveUsesCurrentEngine(t *testing.T) {
	var current atomic.Pointer[lookup.Engine]
	current.Store(testEngine(t))
	in := strings.NewReader("w6op\n\nquit\nEA1ABC\n")
	var out bytes.Buffer
	if err := runInteractive(context.Background(), in, &out, &current); err != nil {
		t.Fatalf("runInteractive: %v", err)
	}
	got := out.String()
	if !strings.Contains(got, "w6op -> United States") {
		t.Fatalf("expected hit line, got %q", got)
	}
	if strings.Contains(got, "Spain") {
		t.Fatalf("expected quit to stop the loop, got %q", got)
	}
}

func TestRunInteractiveEOF(t *testing.T) {
	var current atomic.Pointer[lookup.Engine]
	current.Store(testEngine(t))
	var out bytes.Buffer
	if err := runInteractive(context.Background(), strings.NewReader("EA3XYZ"), &out, &current); err != nil {
		t.Fatalf("runInteractive: %v", err)
	}
	if !strings.Contains(out.String(), "EA3XYZ -> Spain") {
		t.Fatalf("expected hit before EOF, got %q", out.String())
	}
}
