package recordsdb

import (
	"context"
	"database/sql"
	"errors"
	"os"
	"path/filepath"
	"reflect"
	"strings"
	"testing"
	"time"

	"callparser/prefix"
)

func quiet(string, ...any) {}

func sampleGroups() []prefix.Group {
	return []prefix.Group{
		{DXCC: 291, Records: []prefix.Record{
			{Kind: "pfProvince", MainPrefix: "W6", FullPrefix: "K.CA", Province: "California", Masks: []string{"[KNW]6"}},
			{Kind: "pfDXCC", MainPrefix: "K", FullPrefix: "K", Country: "United States", Continent: "NA",
				Latitude: "37.53", Longitude: "-91.67", DXCC: 291, CQ: []int{3, 4, 5}, ITU: []int{6, 7, 8},
				Flags: []string{"lotw"}, Masks: []string{"[KNW]", "A[A-K]"}},
		}},
		{DXCC: 1, Records: []prefix.Record{
			{Kind: "pfDXCC", MainPrefix: "3B6", Country: "Agalega", DXCC: 1, Masks: []string{"3B6"}},
		}},
	}
}

func openTestStore(t *testing.T) *Store {
	t.Helper()
	st, err := Open(filepath.Join(t.TempDir(), "records.db"), Options{Logf: quiet})
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })
	return st
}

func TestImportLoadRoundTrip(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	stats, err := st.Import(ctx, sampleGroups(), "test")
	if err != nil {
		t.Fatalf("import: %v", err)
	}
	if stats.Groups != 2 || stats.Records != 3 || stats.Masks != 4 {
		t.Fatalf("unexpected import stats %+v", stats)
	}
	got, err := st.LoadGroups(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if !reflect.DeepEqual(got, sampleGroups()) {
		t.Fatalf("groups did not round-trip:\n got %+v\nwant %+v", got, sampleGroups())
	}
	if src, ok, err := st.Meta(ctx, "source"); err != nil || !ok || src != "test" {
		t.Fatalf("unexpected source meta %q %v %v", src, ok, err)
	}
	if _, ok, err := st.Meta(ctx, "missing"); err != nil || ok {
		t.Fatalf("expected missing meta key, got ok=%v err=%v", ok, err)
	}
}

func TestImportReplacesContents(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	if _, err := st.Import(ctx, sampleGroups(), "first"); err != nil {
		t.Fatalf("import: %v", err)
	}
	if _, err := st.Import(ctx, sampleGroups()[1:], "second"); err != nil {
		t.Fatalf("reimport: %v", err)
	}
	got, err := st.LoadGroups(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(got) != 1 || got[0].DXCC != 1 {
		t.Fatalf("expected only the second import, got %+v", got)
	}
}

func TestLoadGroupsEmpty(t *testing.T) {
	st := openTestStore(t)
	if _, err := st.LoadGroups(context.Background()); !errors.Is(err, ErrEmpty) {
		t.Fatalf("expected ErrEmpty, got %v", err)
	}
}

func TestImportedGroupsBuildIndex(t *testing.T) {
	st := openTestStore(t)
	ctx := context.Background()
	if _, err := st.Import(ctx, sampleGroups(), "test"); err != nil {
		t.Fatalf("import: %v", err)
	}
	groups, err := st.LoadGroups(ctx)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	idx := prefix.Build(groups, prefix.BuildOptions{Logf: quiet})
	if ids := idx.Children("W6"); len(ids) != 1 {
		t.Fatalf("expected California child under W6, got %v", ids)
	}
}

func TestPreflightMissingFile(t *testing.T) {
	res, err := Preflight(filepath.Join(t.TempDir(), "none.db"), time.Second, quiet)
	if err != nil {
		t.Fatalf("preflight: %v", err)
	}
	if !res.Missing || !res.Healthy {
		t.Fatalf("expected missing healthy result, got %+v", res)
	}
}

func TestPreflightHealthy(t *testing.T) {
	path := filepath.Join(t.TempDir(), "healthy.db")
	db, err := sql.Open("sqlite", path)
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	if _, err := db.Exec("create table t (id integer)"); err != nil {
		t.Fatalf("create table: %v", err)
	}
	db.Close()

	res, err := Preflight(path, time.Second, quiet)
	if err != nil {
		t.Fatalf("preflight failed: %v", err)
	}
	if !res.Healthy || res.Quarantined {
		t.Fatalf("expected healthy preflight, got %+v", res)
	}
}

func TestOpenQuarantinesCorruptFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "records.db")
	if err := os.WriteFile(path, []byte("not a sqlite database, just some text padding it out"), 0o644); err != nil {
		t.Fatalf("write corrupt file: %v", err)
	}
	var logged []string
	st, err := Open(path, Options{Logf: func(format string, _ ...any) { logged = append(logged, format) }})
	if err != nil {
		t.Fatalf("open after corruption: %v", err)
	}
	defer st.Close()
	bad, _ := filepath.Glob(path + ".bad-*")
	if len(bad) == 0 {
		t.Fatalf("expected quarantined copy next to %s", path)
	}
	if len(logged) == 0 || !strings.Contains(logged[0], "quarantined") {
		t.Fatalf("expected quarantine log line, got %v", logged)
	}
	if _, err := st.Import(context.Background(), sampleGroups(), "fresh"); err != nil {
		t.Fatalf("import into fresh store: %v", err)
	}
}
