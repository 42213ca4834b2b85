package recordsdb

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log"
	"os"
	"strings"
	"time"
)

// PreflightResult reports the outcome of a SQLite preflight check.
type PreflightResult struct {
	Healthy        bool   // No issues detected; safe to open.
	Missing        bool   // No database file yet; nothing was checked.
	Quarantined    bool   // The database was renamed aside.
	QuarantinePath string // Path of the quarantined main file.
	Elapsed        time.Duration
	CheckError     error // Nil when quick_check succeeded.
}

var sidecarSuffixes = []string{"-wal", "-shm", "-journal"}

// Purpose: Check an existing record store before the main open path.
// Key aspects: Bounded WAL checkpoint plus quick_check; a failing file and its
// sidecars are renamed to a timestamped .bad- path so a fresh import can run.
// A timeout is returned as an error without quarantining.
// Upstream: Open.
// Downstream: quickCheck, quarantine.
func Preflight(path string, timeout time.Duration, logf func(string, ...any)) (PreflightResult, error) {
	if logf == nil {
		logf = log.Printf
	}
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	var res PreflightResult
	if strings.TrimSpace(path) == "" {
		return res, errors.New("recordsdb: preflight: empty path")
	}
	if _, err := os.Stat(path); errors.Is(err, os.ErrNotExist) {
		res.Missing = true
		res.Healthy = true
		return res, nil
	}

	start := time.Now()
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	db, err := sql.Open("sqlite", path)
	if err != nil {
		return res, fmt.Errorf("recordsdb: preflight open: %w", err)
	}
	db.SetMaxOpenConns(1)
	_, _ = db.ExecContext(ctx, fmt.Sprintf("pragma busy_timeout=%d", timeout.Milliseconds()))
	_, checkpointErr := db.ExecContext(ctx, "pragma wal_checkpoint(TRUNCATE)")
	checkErr := quickCheck(ctx, db)
	if checkErr == nil {
		checkErr = checkpointErr
	}
	_ = db.Close()
	res.Elapsed = time.Since(start)
	res.CheckError = checkErr
	if checkErr == nil {
		res.Healthy = true
		return res, nil
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		return res, fmt.Errorf("recordsdb: preflight timed out after %s", timeout)
	}

	dest, err := quarantine(path, logf)
	if err != nil {
		return res, fmt.Errorf("recordsdb: quarantine failed: %w (quick_check=%v)", err, checkErr)
	}
	res.Quarantined = true
	res.QuarantinePath = dest
	logf("recordsdb: preflight failed (%v); quarantined to %s; elapsed=%s", checkErr, dest, res.Elapsed)
	return res, nil
}

func quickCheck(ctx context.Context, db *sql.DB) error {
	rows, err := db.QueryContext(ctx, "pragma quick_check")
	if err != nil {
		return err
	}
	defer rows.Close()
	for rows.Next() {
		var status string
		if err := rows.Scan(&status); err != nil {
			return err
		}
		if strings.TrimSpace(status) != "ok" {
			return fmt.Errorf("quick_check reported %q", status)
		}
	}
	return rows.Err()
}

func quarantine(path string, logf func(string, ...any)) (string, error) {
	suffix := ".bad-" + time.Now().UTC().Format("20060102T150405Z")
	if err := os.Rename(path, path+suffix); err != nil {
		return "", err
	}
	for _, sc := range sidecarSuffixes {
		src := path + sc
		if _, err := os.Stat(src); err != nil {
			continue
		}
		if err := os.Rename(src, src+suffix); err != nil {
			logf("recordsdb: could not quarantine sidecar %s: %v", src, err)
		}
	}
	return path + suffix, nil
}
