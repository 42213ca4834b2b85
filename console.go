package main

import (
	"bufio"
	"context"
	"errors"
	"fmt"
	"io"
	"sort"
	"strconv"
	"strings"
	"sync/atomic"

	"callparser/lookup"
)

const (
	batchChunkSize  = 4096
	suggestionLimit = 5
	promptText      = "> "
)

// Purpose: Format one hit as a single console line.
// Key aspects: Empty fields are omitted; refined and merged hits are tagged.
// Upstream: runInteractive, runBatch.
// Downstream: none.
func formatHit(h lookup.Hit) string {
	var b strings.Builder
	b.WriteString(h.CallSign)
	b.WriteString(" -> ")
	b.WriteString(h.Country)
	for _, part := range []string{h.Province, h.City} {
		if part != "" {
			b.WriteString(" / ")
			b.WriteString(part)
		}
	}
	fmt.Fprintf(&b, " kind=%s dxcc=%d", h.Kind, h.DXCC)
	if h.MainPrefix != "" {
		fmt.Fprintf(&b, " prefix=%s", h.MainPrefix)
	}
	if len(h.CQ) > 0 {
		fmt.Fprintf(&b, " cq=%s", joinZones(h.CQ))
	}
	if len(h.ITU) > 0 {
		fmt.Fprintf(&b, " itu=%s", joinZones(h.ITU))
	}
	if h.Continent != "" {
		fmt.Fprintf(&b, " cont=%s", h.Continent)
	}
	if h.Grid != "" {
		fmt.Fprintf(&b, " grid=%s", h.Grid)
	}
	if h.Flags != 0 {
		fmt.Fprintf(&b, " flags=%s", h.Flags)
	}
	fmt.Fprintf(&b, " structure=%s", h.Structure)
	if h.Refined {
		b.WriteString(" refined")
	}
	if h.IsMergedHit {
		fmt.Fprintf(&b, " merged=%s", joinZones(h.DXCCMerged))
	}
	return b.String()
}

func joinZones(zones []int) string {
	parts := make([]string, len(zones))
	for i, z := range zones {
		parts[i] = strconv.Itoa(z)
	}
	return strings.Join(parts, ",")
}

// Purpose: Prompt for call signs and print every hit until EOF, "quit", or
// ctx cancellation.
// Key aspects: Reads on a goroutine so a signal ends the loop while blocked
// on input; each line uses whichever engine is current; misses list the
// nearest index keys by edit distance.
// Upstream: main when stdin is a terminal.
// Downstream: Engine.Lookup, Index.NearestKeys.
func runInteractive(ctx context.Context, in io.Reader, out io.Writer, current *atomic.Pointer[lookup.Engine]) error {
	lines := make(chan string)
	scanErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(in)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		scanErr <- scanner.Err()
	}()

	fmt.Fprintln(out, "enter call signs (quit or Ctrl+C to exit)")
	for {
		fmt.Fprint(out, promptText)
		var line string
		var ok bool
		select {
		case <-ctx.Done():
			fmt.Fprintln(out)
			return nil
		case line, ok = <-lines:
		}
		if !ok {
			select {
			case err := <-scanErr:
				return err
			default:
				return nil
			}
		}
		call := strings.TrimSpace(line)
		switch strings.ToLower(call) {
		case "":
			continue
		case "quit", "exit":
			return nil
		}
		answerCall(out, current.Load(), call)
	}
}

func answerCall(out io.Writer, engine *lookup.Engine, call string) {
	hits, err := engine.Lookup(call)
	if err != nil {
		fmt.Fprintf(out, "%s: %v\n", call, err)
		return
	}
	if len(hits) == 0 {
		fmt.Fprintf(out, "%s: no matching prefix", call)
		if near := engine.Index().NearestKeys(call, suggestionLimit); len(near) > 0 {
			fmt.Fprintf(out, " (nearest: %s)", strings.Join(near, ", "))
		}
		fmt.Fprintln(out)
		return
	}
	for _, h := range hits {
		fmt.Fprintln(out, formatHit(h))
	}
}

// Purpose: Resolve call signs read one per line and print results in input
// order.
// Key aspects: Input is processed in chunks through Engine.LookupBatch;
// blank lines are skipped; invalid and unmatched calls get their own line.
// Upstream: main when stdin is not a terminal.
// Downstream: Engine.LookupBatch.
func runBatch(ctx context.Context, in io.Reader, out io.Writer, engine *lookup.Engine) error {
	w := bufio.NewWriter(out)
	defer w.Flush()
	scanner := bufio.NewScanner(in)
	chunk := make([]string, 0, batchChunkSize)
	flush := func() error {
		if len(chunk) == 0 {
			return nil
		}
		res, err := engine.LookupBatch(ctx, chunk)
		if err != nil {
			return err
		}
		for _, line := range orderBatch(chunk, res) {
			if _, err := fmt.Fprintln(w, line); err != nil {
				return err
			}
		}
		chunk = chunk[:0]
		return nil
	}
	for scanner.Scan() {
		call := strings.TrimSpace(scanner.Text())
		if call == "" {
			continue
		}
		chunk = append(chunk, call)
		if len(chunk) == batchChunkSize {
			if err := flush(); err != nil {
				return err
			}
		}
	}
	if err := scanner.Err(); err != nil {
		return err
	}
	return flush()
}

// orderBatch lays batch output back out in input order. Hits for one call keep
// the order Lookup produced them in.
func orderBatch(calls []string, res lookup.BatchResult) []string {
	pos := make(map[string]int, len(calls))
	for i, c := range calls {
		if _, ok := pos[c]; !ok {
			pos[c] = i
		}
	}
	type entry struct {
		pos  int
		text string
	}
	entries := make([]entry, 0, len(res.Hits)+len(res.Invalid))
	answered := make(map[string]bool, len(calls))
	for _, h := range res.Hits {
		entries = append(entries, entry{pos: pos[h.CallSign], text: formatHit(h)})
		answered[h.CallSign] = true
	}
	for _, inv := range res.Invalid {
		entries = append(entries, entry{pos: pos[inv.CallSign], text: inv.CallSign + ": " + invalidReason(inv.Err)})
		answered[inv.CallSign] = true
	}
	for c, p := range pos {
		if !answered[c] {
			entries = append(entries, entry{pos: p, text: c + ": no matching prefix"})
		}
	}
	sort.SliceStable(entries, func(i, j int) bool { return entries[i].pos < entries[j].pos })
	out := make([]string, len(entries))
	for i, e := range entries {
		out[i] = e.text
	}
	return out
}

func invalidReason(err error) string {
	if errors.Is(err, lookup.ErrInvalidFormat) {
		return "invalid call sign"
	}
	return err.Error()
}
