// Package download fetches prefix source files over HTTP with conditional
// requests, validates them before replacing the local copy, and keeps a JSON
// sidecar with the content hash used to key index snapshots.
package download

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"time"

	jsoniter "github.com/json-iterator/go"
)

// MetadataSuffix names the sidecar written next to a downloaded file.
const MetadataSuffix = ".status.json"

var json = jsoniter.ConfigCompatibleWithStandardLibrary

// Status indicates whether the remote content changed.
type Status string

const (
	StatusUpdated     Status = "updated"
	StatusNotModified Status = "not_modified"
	StatusSameContent Status = "same_content"
)

// Metadata tracks the last successful fetch.
type Metadata struct {
	URL          string    `json:"url,omitempty"`
	ETag         string    `json:"etag,omitempty"`
	LastModified string    `json:"last_modified,omitempty"`
	DownloadedAt time.Time `json:"downloaded_at,omitempty"`
	CheckedAt    time.Time `json:"checked_at,omitempty"`
	SizeBytes    int64     `json:"size_bytes,omitempty"`
	SHA256       string    `json:"sha256,omitempty"`
}

// Request configures one fetch.
type Request struct {
	URL         string
	Destination string
	Timeout     time.Duration
	Force       bool
	UserAgent   string
	// Validate inspects the downloaded temp file; an error keeps the old file.
	Validate func(path string) error
	Logf     func(string, ...any)
}

// Result summarizes the fetch outcome.
type Result struct {
	Status Status
	Meta   Metadata
	Bytes  int64
}

// ErrValidation wraps failures reported by Request.Validate.
var ErrValidation = errors.New("download: validation failed")

// MetadataPath returns the sidecar path for a destination.
func MetadataPath(dest string) string {
	if strings.TrimSpace(dest) == "" {
		return ""
	}
	return dest + MetadataSuffix
}

// Purpose: Fetch a source file with conditional headers and atomic replace.
// Key aspects: ETag/Last-Modified revalidation; SHA-256 of the body decides
// same-content; Validate runs on the temp file before rename.
// Upstream: main refresh scheduler, cmd/ctyimport.
// Downstream: net/http, ReadMetadata, WriteMetadata.
func Download(ctx context.Context, req Request) (Result, error) {
	var result Result
	logf := req.Logf
	if logf == nil {
		logf = log.Printf
	}
	url := strings.TrimSpace(req.URL)
	dest := strings.TrimSpace(req.Destination)
	if url == "" {
		return result, errors.New("download: URL is empty")
	}
	if dest == "" {
		return result, errors.New("download: destination is empty")
	}
	metaPath := MetadataPath(dest)

	_, err := os.Stat(dest)
	destExists := err == nil
	if err != nil && !errors.Is(err, os.ErrNotExist) {
		return result, fmt.Errorf("download: stat destination: %w", err)
	}
	prevMeta, _ := ReadMetadata(metaPath)
	force := req.Force || !destExists

	if req.Timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, req.Timeout)
		defer cancel()
	}
	httpReq, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return result, fmt.Errorf("download: build request: %w", err)
	}
	if !force && prevMeta != nil {
		if prevMeta.ETag != "" {
			httpReq.Header.Set("If-None-Match", prevMeta.ETag)
		}
		if prevMeta.LastModified != "" {
			httpReq.Header.Set("If-Modified-Since", prevMeta.LastModified)
		}
	}
	if req.UserAgent != "" {
		httpReq.Header.Set("User-Agent", req.UserAgent)
	}

	resp, err := http.DefaultClient.Do(httpReq)
	if err != nil {
		return result, fmt.Errorf("download: fetch failed: %w", err)
	}
	defer resp.Body.Close()

	now := time.Now().UTC()
	meta := Metadata{}
	if prevMeta != nil {
		meta = *prevMeta
	}
	meta.URL = url
	meta.CheckedAt = now
	if etag := strings.TrimSpace(resp.Header.Get("ETag")); etag != "" {
		meta.ETag = etag
	}
	if last := strings.TrimSpace(resp.Header.Get("Last-Modified")); last != "" {
		meta.LastModified = last
	}

	if resp.StatusCode == http.StatusNotModified && !force {
		result.Status = StatusNotModified
		result.Meta = meta
		writeMetadataLogged(metaPath, meta, logf)
		return result, nil
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return result, fmt.Errorf("download: fetch failed: status %s", resp.Status)
	}

	if err := os.MkdirAll(filepath.Dir(dest), 0o755); err != nil {
		return result, fmt.Errorf("download: create directory: %w", err)
	}
	tmpFile, err := os.CreateTemp(filepath.Dir(dest), "download-*.tmp")
	if err != nil {
		return result, fmt.Errorf("download: create temp file: %w", err)
	}
	tmpName := tmpFile.Name()
	defer os.Remove(tmpName)

	hasher := sha256.New()
	written, err := io.Copy(io.MultiWriter(tmpFile, hasher), resp.Body)
	if closeErr := tmpFile.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return result, fmt.Errorf("download: copy body: %w", err)
	}
	if written <= 0 {
		return result, errors.New("download: empty response body")
	}
	hash := hex.EncodeToString(hasher.Sum(nil))
	result.Bytes = written

	if !force && prevMeta != nil && prevMeta.SHA256 == hash {
		result.Status = StatusSameContent
		result.Meta = meta
		writeMetadataLogged(metaPath, meta, logf)
		return result, nil
	}
	if req.Validate != nil {
		if err := req.Validate(tmpName); err != nil {
			return result, fmt.Errorf("%w: %v", ErrValidation, err)
		}
	}
	if err := os.Rename(tmpName, dest); err != nil {
		return result, fmt.Errorf("download: replace file: %w", err)
	}

	result.Status = StatusUpdated
	meta.DownloadedAt = now
	meta.SizeBytes = written
	meta.SHA256 = hash
	result.Meta = meta
	writeMetadataLogged(metaPath, meta, logf)
	return result, nil
}

func writeMetadataLogged(path string, meta Metadata, logf func(string, ...any)) {
	if err := WriteMetadata(path, meta); err != nil {
		logf("Warning: unable to write metadata %s: %v", path, err)
	}
}

// ReadMetadata loads the sidecar at path. A missing file returns the os error.
func ReadMetadata(path string) (*Metadata, error) {
	if strings.TrimSpace(path) == "" {
		return nil, nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	var meta Metadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("download: parse metadata %s: %w", path, err)
	}
	return &meta, nil
}

// WriteMetadata persists the sidecar as indented JSON.
func WriteMetadata(path string, meta Metadata) error {
	if strings.TrimSpace(path) == "" {
		return errors.New("download: metadata path is empty")
	}
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, data, 0o644)
}

// FileSHA256 hashes a local source file; the hex digest keys index snapshots.
func FileSHA256(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", fmt.Errorf("download: open %s: %w", path, err)
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("download: hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}
