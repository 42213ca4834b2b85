// Package snapshot persists a compiled prefix index in a Pebble key/value
// store, keyed by the SHA-256 of the source it was built from, so restarts
// against an unchanged source skip recompilation.
package snapshot

import (
	"errors"
	"fmt"
	"os"
	"strings"
	"sync"
	"time"

	"callparser/prefix"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	jsoniter "github.com/json-iterator/go"
)

const (
	entityPrefix   = "e|"
	primaryPrefix  = "p|"
	childPrefix    = "c|"
	portablePrefix = "o|"
	exactPrefix    = "x|"
	metaHashKey    = "meta|hash"
	metaFormatKey  = "meta|format"
	metaStatsKey   = "meta|stats"
	metaSavedKey   = "meta|saved_at"
)

// formatVersion changes whenever the stored key layout does; snapshots written
// under another version are rebuilt.
const formatVersion = "2"


const (
	defaultCacheSizeBytes  = int64(8 << 20)
	defaultBloomFilterBits = 10
)

var json = jsoniter.ConfigCompatibleWithStandardLibrary

var errStoreClosed = errors.New("snapshot: store is closed")

// Options controls Pebble tuning for the snapshot store.
type Options struct {
	CacheSizeBytes        int64
	BloomFilterBitsPerKey int
}

// Store manages the Pebble database holding one index snapshot.
type Store struct {
	db    *pebble.DB
	cache *pebble.Cache

	mu     sync.Mutex
	closed bool
}

// Info describes the stored snapshot.
type Info struct {
	Hash    string
	SavedAt time.Time
	Stats   prefix.BuildStats
}

// Purpose: Open or create the snapshot Pebble database.
// Key aspects: Bloom filters on every level keep point misses cheap.
// Upstream: main startup.
// Downstream: pebble.Open.
func Open(path string, opts Options) (*Store, error) {
	if strings.TrimSpace(path) == "" {
		return nil, errors.New("snapshot: database path is empty")
	}
	if info, err := os.Stat(path); err == nil && !info.IsDir() {
		return nil, fmt.Errorf("snapshot: %s exists and is not a directory", path)
	}
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("snapshot: ensure directory: %w", err)
	}
	if opts.CacheSizeBytes <= 0 {
		opts.CacheSizeBytes = defaultCacheSizeBytes
	}
	if opts.BloomFilterBitsPerKey <= 0 {
		opts.BloomFilterBitsPerKey = defaultBloomFilterBits
	}

	cache := pebble.NewCache(opts.CacheSizeBytes)
	pebbleOpts := &pebble.Options{Cache: cache}
	level := pebble.LevelOptions{
		FilterPolicy: bloom.FilterPolicy(opts.BloomFilterBitsPerKey),
		FilterType:   pebble.TableFilter,
	}
	pebbleOpts.Levels = make([]pebble.LevelOptions, 7)
	for i := range pebbleOpts.Levels {
		pebbleOpts.Levels[i] = level
	}
	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		cache.Unref()
		return nil, fmt.Errorf("snapshot: open: %w", err)
	}
	return &Store{db: db, cache: cache}, nil
}

// Close flushes and closes the database.
func (s *Store) Close() error {
	if s == nil {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	s.closed = true
	err := s.db.Close()
	if s.cache != nil {
		s.cache.Unref()
		s.cache = nil
	}
	return err
}

// Purpose: Replace the stored snapshot with idx, tagged with hash.
// Key aspects: One synced batch; previous contents are range-deleted first so
// a crash leaves either the old or the new snapshot.
// Upstream: main after a fresh build.
// Downstream: pebble.Batch.
func (s *Store) Save(hash string, idx *prefix.Index) error {
	if idx == nil {
		return errors.New("snapshot: nil index")
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return errStoreClosed
	}
	snap := idx.Snapshot()
	batch := s.db.NewBatch()
	defer batch.Close()

	if err := batch.DeleteRange([]byte{0x00}, []byte{0xFF}, nil); err != nil {
		return fmt.Errorf("snapshot: clear: %w", err)
	}
	for i := range snap.Entities {
		val, err := json.Marshal(&snap.Entities[i])
		if err != nil {
			return fmt.Errorf("snapshot: encode entity %d: %w", i, err)
		}
		if err := batch.Set(entityKey(snap.Entities[i].ID), val, nil); err != nil {
			return fmt.Errorf("snapshot: set entity: %w", err)
		}
	}
	for pfx, m := range map[string]map[string][]prefix.EntityID{
		primaryPrefix:  snap.Primary,
		childPrefix:    snap.Children,
		portablePrefix: snap.Portable,
		exactPrefix:    snap.Exact,
	} {
		for key, ids := range m {
			val, err := json.Marshal(ids)
			if err != nil {
				return fmt.Errorf("snapshot: encode %s%s: %w", pfx, key, err)
			}
			if err := batch.Set([]byte(pfx+key), val, nil); err != nil {
				return fmt.Errorf("snapshot: set key: %w", err)
			}
		}
	}
	stats, err := json.Marshal(snap.Stats)
	if err != nil {
		return fmt.Errorf("snapshot: encode stats: %w", err)
	}
	meta := map[string][]byte{
		metaHashKey:   []byte(hash),
		metaFormatKey: []byte(formatVersion),
		metaStatsKey:  stats,
		metaSavedKey:  []byte(time.Now().UTC().Format(time.RFC3339)),
	}
	for k, v := range meta {
		if err := batch.Set([]byte(k), v, nil); err != nil {
			return fmt.Errorf("snapshot: set meta: %w", err)
		}
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return fmt.Errorf("snapshot: commit: %w", err)
	}
	return nil
}

// Purpose: Restore the stored index when it was built from hash.
// Key aspects: Returns (nil, false, nil) when the store is empty or holds a
// snapshot of a different source.
// Upstream: main startup.
// Downstream: prefix.Restore.
func (s *Store) Load(hash string) (*prefix.Index, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil, false, errStoreClosed
	}
	stored, ok, err := s.getLocked(metaHashKey)
	if err != nil || !ok || string(stored) != hash {
		return nil, false, err
	}
	format, ok, err := s.getLocked(metaFormatKey)
	if err != nil || !ok || string(format) != formatVersion {
		return nil, false, err
	}

	var snap prefix.Snapshot
	statsRaw, ok, err := s.getLocked(metaStatsKey)
	if err != nil {
		return nil, false, err
	}
	if ok {
		if err := json.Unmarshal(statsRaw, &snap.Stats); err != nil {
			return nil, false, fmt.Errorf("snapshot: decode stats: %w", err)
		}
	}
	if err := s.scanLocked(entityPrefix, func(_ string, val []byte) error {
		var ent prefix.Entity
		if err := json.Unmarshal(val, &ent); err != nil {
			return err
		}
		snap.Entities = append(snap.Entities, ent)
		return nil
	}); err != nil {
		return nil, false, fmt.Errorf("snapshot: entities: %w", err)
	}
	snap.Primary = make(map[string][]prefix.EntityID)
	snap.Children = make(map[string][]prefix.EntityID)
	snap.Portable = make(map[string][]prefix.EntityID)
	snap.Exact = make(map[string][]prefix.EntityID)
	for pfx, dst := range map[string]map[string][]prefix.EntityID{
		primaryPrefix:  snap.Primary,
		childPrefix:    snap.Children,
		portablePrefix: snap.Portable,
		exactPrefix:    snap.Exact,
	} {
		if err := s.scanLocked(pfx, func(key string, val []byte) error {
			var ids []prefix.EntityID
			if err := json.Unmarshal(val, &ids); err != nil {
				return err
			}
			dst[key] = ids
			return nil
		}); err != nil {
			return nil, false, fmt.Errorf("snapshot: keys %s: %w", pfx, err)
		}
	}
	idx, err := prefix.Restore(snap)
	if err != nil {
		return nil, false, fmt.Errorf("snapshot: restore: %w", err)
	}
	return idx, true, nil
}

// Info reports the stored snapshot's hash, save time and build stats.
func (s *Store) Info() (Info, bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return Info{}, false, errStoreClosed
	}
	hash, ok, err := s.getLocked(metaHashKey)
	if err != nil || !ok {
		return Info{}, false, err
	}
	out := Info{Hash: string(hash)}
	if raw, ok, err := s.getLocked(metaSavedKey); err == nil && ok {
		out.SavedAt, _ = time.Parse(time.RFC3339, string(raw))
	}
	if raw, ok, err := s.getLocked(metaStatsKey); err == nil && ok {
		_ = json.Unmarshal(raw, &out.Stats)
	}
	return out, true, nil
}

func (s *Store) getLocked(key string) ([]byte, bool, error) {
	val, closer, err := s.db.Get([]byte(key))
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("snapshot: get %s: %w", key, err)
	}
	defer closer.Close()
	return append([]byte(nil), val...), true, nil
}

func (s *Store) scanLocked(pfx string, fn func(key string, val []byte) error) error {
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte(pfx),
		UpperBound: prefixUpperBound([]byte(pfx)),
	})
	if err != nil {
		return err
	}
	defer iter.Close()
	for iter.First(); iter.Valid(); iter.Next() {
		key := strings.TrimPrefix(string(iter.Key()), pfx)
		if err := fn(key, iter.Value()); err != nil {
			return err
		}
	}
	return iter.Error()
}

// entityKey is fixed-width so iteration order equals ID order.
func entityKey(id prefix.EntityID) []byte {
	return []byte(fmt.Sprintf("%s%010d", entityPrefix, id))
}

func prefixUpperBound(p []byte) []byte {
	upper := append([]byte(nil), p...)
	for i := len(upper) - 1; i >= 0; i-- {
		if upper[i] != 0xFF {
			upper[i]++
			return upper[:i+1]
		}
	}
	return nil
}
