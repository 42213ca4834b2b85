// Program callparser resolves amateur radio call signs to their DXCC entity,
// province and zones using a compiled prefix index.
//
// With a terminal on stdin it runs an interactive prompt; otherwise it reads
// one call sign per line and writes one result line per hit.
package main

import (
	"context"
	"flag"
	"fmt"
	"log"
	"os"
	"os/signal"
	"sync/atomic"
	"syscall"
	"time"

	"callparser/config"
	"callparser/lookup"
	"callparser/snapshot"
	"callparser/stats"

	"github.com/dustin/go-humanize"
	"golang.org/x/term"
)

func main() {
	configDir := flag.String("config", "", "configuration directory (default $"+config.EnvConfigPath+" or "+config.DefaultConfigDir+")")
	printConfig := flag.Bool("print-config", false, "print the effective configuration and exit")
	flag.Parse()

	cfg, err := config.Load(config.ResolveDir(*configDir))
	if err != nil {
		log.Fatalf("Failed to load config: %v", err)
	}
	if *printConfig {
		cfg.Print()
		return
	}

	fanout, logErr := setupLogging(cfg.Logging, os.Stderr)
	log.SetFlags(0)
	log.SetOutput(fanout)
	defer fanout.Close()
	if logErr != nil {
		log.Printf("Warning: file logging disabled: %v", logErr)
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		log.Printf("Fatal: %v", err)
		fanout.Close()
		os.Exit(1)
	}
}

// Purpose: Build the engine, start the refresh scheduler, and serve input.
// Key aspects: The engine lives behind an atomic pointer so refreshes swap it
// without pausing lookups; stats are logged on every exit path.
// Upstream: main.
// Downstream: sourceLoader, startRefreshScheduler, runInteractive, runBatch.
func run(ctx context.Context, cfg *config.Config) error {
	tracker := stats.NewTracker()
	src := &sourceLoader{cfg: cfg, tracker: tracker}
	if cfg.Snapshot.Enabled {
		snaps, err := snapshot.Open(cfg.Snapshot.Dir, snapshot.Options{})
		if err != nil {
			log.Printf("Warning: snapshot store unavailable: %v", err)
		} else {
			src.snaps = snaps
			defer snaps.Close()
		}
	}

	if err := src.ensureLocal(ctx); err != nil {
		return err
	}
	engine, err := src.loadEngine(ctx)
	if err != nil {
		return err
	}
	var current atomic.Pointer[lookup.Engine]
	current.Store(engine)

	state := newRefreshState()
	state.recordSuccess(time.Now().UTC())
	if cfg.Source.URL != "" {
		startRefreshScheduler(ctx, src, &current, state)
	}
	defer func() {
		for _, line := range statsLines(tracker, current.Load(), state, time.Now().UTC()) {
			log.Print(line)
		}
	}()

	if term.IsTerminal(int(os.Stdin.Fd())) {
		return runInteractive(ctx, os.Stdin, os.Stdout, &current)
	}
	if err := runBatch(ctx, os.Stdin, os.Stdout, current.Load()); err != nil && ctx.Err() == nil {
		return err
	}
	return nil
}

// statsLines renders the exit-time summary: lookup outcomes, structure
// counts, cache effectiveness, and the index and refresh status.
func statsLines(tracker *stats.Tracker, engine *lookup.Engine, state *refreshState, now time.Time) []string {
	lines := tracker.SnapshotLines()
	snap := tracker.Snapshot()
	lines = append(lines, fmt.Sprintf("Uptime: %s (%s lookups)", snap.Uptime.Round(time.Second), humanize.Comma(int64(snap.Lookups))))
	if engine != nil {
		m := engine.Metrics()
		hitRate := 0.0
		if m.Lookups > 0 {
			hitRate = float64(m.Hits) * 100 / float64(m.Lookups)
		}
		lines = append(lines, fmt.Sprintf("Cache: %s entries / %s lookups / %.1f%% hits",
			humanize.Comma(m.Entries), humanize.Comma(int64(m.Lookups)), hitRate))
		lines = append(lines, "Index: "+engine.Index().Stats().String())
	}
	lines = append(lines, "Source refresh: "+state.describe(now))
	return lines
}
