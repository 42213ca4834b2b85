// Command ctyimport loads a cty.plist into the SQLite record store used when
// source.format is "sqlite". With -url it first refreshes the plist.
package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"callparser/cty"
	"callparser/download"
	"callparser/recordsdb"

	"github.com/dustin/go-humanize"
)

func main() {
	plistPath := flag.String("plist", "data/cty/cty.plist", "path to cty.plist")
	dbPath := flag.String("db", "data/cty/records.db", "path to the SQLite record store")
	url := flag.String("url", "", "download cty.plist from this URL before importing")
	force := flag.Bool("force", false, "download even when the server reports no change")
	timeout := flag.Duration("timeout", 30*time.Second, "download timeout")
	flag.Parse()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if *url != "" {
		res, err := download.Download(ctx, download.Request{
			URL:         *url,
			Destination: *plistPath,
			Timeout:     *timeout,
			Force:       *force,
			UserAgent:   "callparser-ctyimport/1.0",
			Validate: func(path string) error {
				_, err := cty.LoadGroups(path)
				return err
			},
		})
		if err != nil {
			log.Fatalf("download failed: %v", err)
		}
		log.Printf("download: %s (%s)", res.Status, humanize.Bytes(uint64(res.Bytes)))
	}

	started := time.Now()
	groups, err := cty.LoadGroups(*plistPath)
	if err != nil {
		log.Fatalf("load %s: %v", *plistPath, err)
	}
	sum, err := download.FileSHA256(*plistPath)
	if err != nil {
		log.Fatalf("hash %s: %v", *plistPath, err)
	}

	store, err := recordsdb.Open(*dbPath, recordsdb.Options{})
	if err != nil {
		log.Fatalf("open %s: %v", *dbPath, err)
	}
	defer store.Close()
	stats, err := store.Import(ctx, groups, "cty.plist sha256="+sum)
	if err != nil {
		store.Close()
		log.Fatalf("import: %v", err)
	}
	log.Printf("imported %s groups, %s records, %s masks into %s in %s",
		humanize.Comma(int64(stats.Groups)), humanize.Comma(int64(stats.Records)), humanize.Comma(int64(stats.Masks)),
		*dbPath, time.Since(started).Round(time.Millisecond))
}
