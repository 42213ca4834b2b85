// Package recordsdb persists grouped prefix records in SQLite so an index can
// be rebuilt from a curated database instead of a cty.plist.
package recordsdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"callparser/prefix"

	_ "modernc.org/sqlite"
)

// ErrEmpty is returned by LoadGroups when the store holds no records.
var ErrEmpty = errors.New("recordsdb: no records")

// Options configures Open.
type Options struct {
	BusyTimeout time.Duration
	// Logf receives preflight and import messages; defaults to log.Printf.
	Logf func(string, ...any)
}

// Store is an open record database.
type Store struct {
	db   *sql.DB
	path string
	logf func(string, ...any)
}

// ImportStats summarizes one Import.
type ImportStats struct {
	Groups  int
	Records int
	Masks   int
}

// Purpose: Open (or create) the record store at path.
// Key aspects: Runs Preflight first so a corrupt file is quarantined instead
// of failing every start; WAL journal; schema created idempotently.
// Upstream: main (source.format=sqlite), cmd/ctyimport.
// Downstream: Preflight, ensureSchema.
func Open(path string, opts Options) (*Store, error) {
	logf := opts.Logf
	if logf == nil {
		logf = log.Printf
	}
	busy := opts.BusyTimeout
	if busy <= 0 {
		busy = 5 * time.Second
	}
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("recordsdb: mkdir: %w", err)
	}
	if _, err := Preflight(path, busy, logf); err != nil {
		return nil, err
	}
	db, err := sql.Open("sqlite", path)
	if err != nil {
		return nil, fmt.Errorf("recordsdb: open db: %w", err)
	}
	db.SetMaxOpenConns(1)
	if _, err := db.Exec(fmt.Sprintf("pragma journal_mode=WAL; pragma synchronous=NORMAL; pragma foreign_keys=ON; pragma busy_timeout=%d", busy.Milliseconds())); err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("recordsdb: pragmas: %w", err)
	}
	if err := ensureSchema(db); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &Store{db: db, path: path, logf: logf}, nil
}

func ensureSchema(db *sql.DB) error {
	schema := `
	create table if not exists records (
		id integer primary key autoincrement,
		grp integer not null,
		grp_seq integer not null,
		seq integer not null,
		kind text not null,
		main_prefix text,
		full_prefix text,
		country text,
		province text,
		city text,
		admin1 text,
		admin2 text,
		continent text,
		time_zone text,
		latitude text,
		longitude text,
		dxcc integer,
		wae integer,
		cq text,
		itu text,
		iota text,
		start_date text,
		end_date text,
		flags text
	);
	create table if not exists masks (
		record_id integer not null references records(id) on delete cascade,
		seq integer not null,
		mask text not null
	);
	create table if not exists meta (
		key text primary key,
		value text
	);
	create index if not exists idx_records_seq on records(seq);
	create index if not exists idx_masks_record on masks(record_id, seq);
	`
	if _, err := db.Exec(schema); err != nil {
		return fmt.Errorf("recordsdb: schema: %w", err)
	}
	return nil
}

// Close releases the database handle.
func (s *Store) Close() error {
	if s == nil || s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Path returns the database file path.
func (s *Store) Path() string {
	return s.path
}

// Purpose: Replace the store contents with groups.
// Key aspects: Single transaction; group and record order are preserved via
// explicit sequence columns; source is recorded in meta.
// Upstream: cmd/ctyimport, main source import.
// Downstream: database/sql.
func (s *Store) Import(ctx context.Context, groups []prefix.Group, source string) (ImportStats, error) {
	var st ImportStats
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return st, fmt.Errorf("recordsdb: begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, "delete from masks; delete from records;"); err != nil {
		return st, fmt.Errorf("recordsdb: clear: %w", err)
	}
	recStmt, err := tx.PrepareContext(ctx, `insert into records(grp, grp_seq, seq, kind, main_prefix, full_prefix, country, province, city, admin1, admin2, continent, time_zone, latitude, longitude, dxcc, wae, cq, itu, iota, start_date, end_date, flags) values(?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?,?)`)
	if err != nil {
		return st, fmt.Errorf("recordsdb: prepare records: %w", err)
	}
	defer recStmt.Close()
	maskStmt, err := tx.PrepareContext(ctx, `insert into masks(record_id, seq, mask) values(?,?,?)`)
	if err != nil {
		return st, fmt.Errorf("recordsdb: prepare masks: %w", err)
	}
	defer maskStmt.Close()

	seq := 0
	for gi, g := range groups {
		for _, r := range g.Records {
			seq++
			res, err := recStmt.ExecContext(ctx,
				g.DXCC, gi, seq, r.Kind, r.MainPrefix, r.FullPrefix, r.Country, r.Province, r.City,
				r.Admin1, r.Admin2, r.Continent, r.TimeZone, r.Latitude, r.Longitude, r.DXCC, r.WAE,
				joinInts(r.CQ), joinInts(r.ITU), r.IOTA, r.StartDate, r.EndDate, strings.Join(r.Flags, ","))
			if err != nil {
				return st, fmt.Errorf("recordsdb: insert record: %w", err)
			}
			id, err := res.LastInsertId()
			if err != nil {
				return st, fmt.Errorf("recordsdb: record id: %w", err)
			}
			for mi, m := range r.Masks {
				if _, err := maskStmt.ExecContext(ctx, id, mi, m); err != nil {
					return st, fmt.Errorf("recordsdb: insert mask: %w", err)
				}
				st.Masks++
			}
			st.Records++
		}
		st.Groups++
	}
	meta := map[string]string{
		"source":      source,
		"imported_at": time.Now().UTC().Format(time.RFC3339),
	}
	for k, v := range meta {
		if _, err := tx.ExecContext(ctx, `insert into meta(key, value) values(?, ?) on conflict(key) do update set value = excluded.value`, k, v); err != nil {
			return st, fmt.Errorf("recordsdb: meta: %w", err)
		}
	}
	if err := tx.Commit(); err != nil {
		return st, fmt.Errorf("recordsdb: commit: %w", err)
	}
	s.logf("recordsdb: imported %d groups, %d records, %d masks from %s", st.Groups, st.Records, st.Masks, source)
	return st, nil
}

// Purpose: Read every record back as DXCC groups.
// Key aspects: Order matches the Import order so builds are reproducible.
// Upstream: main (source.format=sqlite).
// Downstream: database/sql.
func (s *Store) LoadGroups(ctx context.Context) ([]prefix.Group, error) {
	masks, err := s.loadMasks(ctx)
	if err != nil {
		return nil, err
	}
	rows, err := s.db.QueryContext(ctx, `select id, grp, grp_seq, kind, main_prefix, full_prefix, country, province, city, admin1, admin2, continent, time_zone, latitude, longitude, dxcc, wae, cq, itu, iota, start_date, end_date, flags from records order by seq`)
	if err != nil {
		return nil, fmt.Errorf("recordsdb: query records: %w", err)
	}
	defer rows.Close()

	var groups []prefix.Group
	current := int64(-1)
	for rows.Next() {
		var (
			id, grp, grpSeq int64
			r               prefix.Record
			cq, itu, flags  string
		)
		if err := rows.Scan(&id, &grp, &grpSeq, &r.Kind, &r.MainPrefix, &r.FullPrefix, &r.Country, &r.Province, &r.City,
			&r.Admin1, &r.Admin2, &r.Continent, &r.TimeZone, &r.Latitude, &r.Longitude, &r.DXCC, &r.WAE,
			&cq, &itu, &r.IOTA, &r.StartDate, &r.EndDate, &flags); err != nil {
			return nil, fmt.Errorf("recordsdb: scan record: %w", err)
		}
		if r.CQ, err = splitInts(cq); err != nil {
			return nil, fmt.Errorf("recordsdb: record %d cq: %w", id, err)
		}
		if r.ITU, err = splitInts(itu); err != nil {
			return nil, fmt.Errorf("recordsdb: record %d itu: %w", id, err)
		}
		if flags != "" {
			r.Flags = strings.Split(flags, ",")
		}
		r.Masks = masks[id]
		if grpSeq != current {
			groups = append(groups, prefix.Group{DXCC: int(grp)})
			current = grpSeq
		}
		last := &groups[len(groups)-1]
		last.Records = append(last.Records, r)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("recordsdb: iterate records: %w", err)
	}
	if len(groups) == 0 {
		return nil, ErrEmpty
	}
	return groups, nil
}

func (s *Store) loadMasks(ctx context.Context) (map[int64][]string, error) {
	rows, err := s.db.QueryContext(ctx, `select record_id, mask from masks order by record_id, seq`)
	if err != nil {
		return nil, fmt.Errorf("recordsdb: query masks: %w", err)
	}
	defer rows.Close()
	out := make(map[int64][]string)
	for rows.Next() {
		var id int64
		var m string
		if err := rows.Scan(&id, &m); err != nil {
			return nil, fmt.Errorf("recordsdb: scan mask: %w", err)
		}
		out[id] = append(out[id], m)
	}
	return out, rows.Err()
}

// Meta returns a metadata value written by Import ("source", "imported_at").
func (s *Store) Meta(ctx context.Context, key string) (string, bool, error) {
	var v string
	err := s.db.QueryRowContext(ctx, `select value from meta where key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("recordsdb: meta %s: %w", key, err)
	}
	return v, true, nil
}

func joinInts(vals []int) string {
	parts := make([]string, len(vals))
	for i, v := range vals {
		parts[i] = strconv.Itoa(v)
	}
	return strings.Join(parts, ",")
}

func splitInts(s string) ([]int, error) {
	if strings.TrimSpace(s) == "" {
		return nil, nil
	}
	parts := strings.Split(s, ",")
	out := make([]int, 0, len(parts))
	for _, p := range parts {
		v, err := strconv.Atoi(strings.TrimSpace(p))
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, nil
}
