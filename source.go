package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"time"

	"callparser/config"
	"callparser/cty"
	"callparser/download"
	"callparser/lookup"
	"callparser/prefix"
	"callparser/recordsdb"
	"callparser/snapshot"
	"callparser/stats"
)

const sourceUserAgent = "callparser/1.0"

// sourceLoader turns the configured source into a lookup engine. It owns the
// optional snapshot store shared by startup and scheduled refreshes.
type sourceLoader struct {
	cfg     *config.Config
	snaps   *snapshot.Store
	tracker *stats.Tracker
}

// plistPath is where the downloaded cty.plist lives. For sqlite sources the
// plist is staged next to the database and imported after each download.
func (s *sourceLoader) plistPath() string {
	if s.cfg.Source.Format == config.SourceSQLite {
		return s.cfg.Source.File + ".plist"
	}
	return s.cfg.Source.File
}

// Purpose: Fetch the remote source and, for sqlite, import it.
// Key aspects: The download is validated by decoding it before it replaces
// the local copy; an unchanged body skips the import.
// Upstream: startup when the local source is missing, refresh scheduler.
// Downstream: download.Download, cty.LoadGroups, recordsdb.Import.
func (s *sourceLoader) fetch(ctx context.Context, force bool) (download.Result, error) {
	res, err := download.Download(ctx, download.Request{
		URL:         s.cfg.Source.URL,
		Destination: s.plistPath(),
		Timeout:     s.cfg.Source.Timeout(),
		Force:       force,
		UserAgent:   sourceUserAgent,
		Validate: func(path string) error {
			_, err := cty.LoadGroups(path)
			return err
		},
	})
	if err != nil {
		return res, err
	}
	if s.cfg.Source.Format == config.SourceSQLite && (res.Status == download.StatusUpdated || force) {
		if err := s.importPlist(ctx, res.Meta.SHA256); err != nil {
			return res, err
		}
	}
	return res, nil
}

func (s *sourceLoader) importPlist(ctx context.Context, sum string) error {
	groups, err := cty.LoadGroups(s.plistPath())
	if err != nil {
		return err
	}
	store, err := recordsdb.Open(s.cfg.Source.File, recordsdb.Options{})
	if err != nil {
		return err
	}
	defer store.Close()
	st, err := store.Import(ctx, groups, "cty.plist sha256="+sum)
	if err != nil {
		return err
	}
	log.Printf("Source: imported %d groups (%d records, %d masks) into %s", st.Groups, st.Records, st.Masks, s.cfg.Source.File)
	return nil
}

// Purpose: Make sure a local source exists, downloading it when a URL is set.
// Key aspects: A missing source without a URL is fatal to the caller.
// Upstream: main startup.
// Downstream: fetch.
func (s *sourceLoader) ensureLocal(ctx context.Context) error {
	if _, err := os.Stat(s.cfg.Source.File); err == nil {
		return nil
	} else if !errors.Is(err, os.ErrNotExist) {
		return fmt.Errorf("stat source: %w", err)
	}
	if s.cfg.Source.URL == "" {
		return fmt.Errorf("source %s is missing and no source.url is configured", s.cfg.Source.File)
	}
	if err := os.MkdirAll(filepath.Dir(s.cfg.Source.File), 0o755); err != nil {
		return fmt.Errorf("create source directory: %w", err)
	}
	res, err := s.fetch(ctx, true)
	if err != nil {
		return fmt.Errorf("initial download: %w", err)
	}
	log.Printf("Source: downloaded %s (%d bytes)", s.plistPath(), res.Bytes)
	return nil
}

// Purpose: Build an engine from the local source, via the snapshot when it
// matches the source fingerprint.
// Key aspects: Snapshot failures degrade to a fresh build; never fatal.
// Upstream: main startup, refresh scheduler.
// Downstream: sourceKey, loadGroups, prefix.Build, snapshot.Store.
func (s *sourceLoader) loadEngine(ctx context.Context) (*lookup.Engine, error) {
	started := time.Now()
	key, err := s.sourceKey(ctx)
	if err != nil {
		return nil, err
	}
	if s.snaps != nil {
		idx, ok, err := s.snaps.Load(key)
		switch {
		case err != nil:
			log.Printf("Warning: snapshot load failed: %v", err)
		case ok:
			log.Printf("Index: restored from snapshot (%s) in %s", idx.Stats(), time.Since(started).Round(time.Millisecond))
			return s.newEngine(idx), nil
		}
	}

	groups, err := s.loadGroups(ctx)
	if err != nil {
		return nil, err
	}
	idx := prefix.Build(groups, prefix.BuildOptions{})
	if idx.Len() == 0 {
		return nil, fmt.Errorf("source %s produced an empty index", s.cfg.Source.File)
	}
	log.Printf("Index: built %s in %s", idx.Stats(), time.Since(started).Round(time.Millisecond))
	if s.snaps != nil {
		if err := s.snaps.Save(key, idx); err != nil {
			log.Printf("Warning: snapshot save failed: %v", err)
		}
	}
	return s.newEngine(idx), nil
}

func (s *sourceLoader) newEngine(idx *prefix.Index) *lookup.Engine {
	return lookup.NewEngine(idx, lookup.Options{
		MergeHits: s.cfg.Lookup.MergeHits,
		Workers:   s.cfg.Lookup.Workers,
		CacheSize: s.cfg.Lookup.CacheSize,
		Tracker:   s.tracker,
	})
}

func (s *sourceLoader) loadGroups(ctx context.Context) ([]prefix.Group, error) {
	if s.cfg.Source.Format != config.SourceSQLite {
		return cty.LoadGroups(s.cfg.Source.File)
	}
	store, err := recordsdb.Open(s.cfg.Source.File, recordsdb.Options{})
	if err != nil {
		return nil, err
	}
	defer store.Close()
	return store.LoadGroups(ctx)
}

// sourceKey fingerprints the source for the snapshot store: the plist's
// SHA-256, or the import stamp recorded in the record store.
func (s *sourceLoader) sourceKey(ctx context.Context) (string, error) {
	if s.cfg.Source.Format != config.SourceSQLite {
		sum, err := download.FileSHA256(s.cfg.Source.File)
		if err != nil {
			return "", err
		}
		return "plist:" + sum, nil
	}
	store, err := recordsdb.Open(s.cfg.Source.File, recordsdb.Options{})
	if err != nil {
		return "", err
	}
	defer store.Close()
	src, _, err := store.Meta(ctx, "source")
	if err != nil {
		return "", err
	}
	at, _, err := store.Meta(ctx, "imported_at")
	if err != nil {
		return "", err
	}
	return "sqlite:" + src + "@" + at, nil
}
