// Package config loads the callparser YAML configuration directory.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// EnvConfigPath overrides the configuration directory when set.
const EnvConfigPath = "CALLPARSER_CONFIG_PATH"

// DefaultConfigDir is used when neither a flag nor EnvConfigPath names one.
const DefaultConfigDir = "data/config"

const (
	defaultCacheSize      = 50000
	defaultSourceFormat   = SourcePlist
	defaultSourceFile     = "data/cty/cty.plist"
	defaultRefreshUTC     = "00:45"
	defaultTimeoutSeconds = 30
	defaultSnapshotDir    = "data/snapshot"
	defaultLogDir         = "data/logs"
	defaultRetentionDays  = 7
)

// Source formats.
const (
	SourcePlist  = "plist"
	SourceSQLite = "sqlite"
)

// Config represents the complete callparser configuration.
type Config struct {
	Lookup   LookupConfig   `yaml:"lookup"`
	Source   SourceConfig   `yaml:"source"`
	Snapshot SnapshotConfig `yaml:"snapshot"`
	Logging  LoggingConfig  `yaml:"logging"`

	// LoadedFrom records the directory the configuration was read from.
	LoadedFrom string `yaml:"-"`
}

// LookupConfig tunes the lookup engine.
type LookupConfig struct {
	MergeHits bool `yaml:"merge_hits"`
	Workers   int  `yaml:"workers"`
	CacheSize int  `yaml:"cache_size"`
}

// SourceConfig names where prefix records come from and how they are refreshed.
type SourceConfig struct {
	Format         string `yaml:"format"`
	File           string `yaml:"file"`
	URL            string `yaml:"url"`
	RefreshUTC     string `yaml:"refresh_utc"`
	TimeoutSeconds int    `yaml:"timeout_seconds"`
}

// SnapshotConfig controls the compiled index snapshot store.
type SnapshotConfig struct {
	Enabled bool   `yaml:"enabled"`
	Dir     string `yaml:"dir"`
}

// LoggingConfig contains logging settings
type LoggingConfig struct {
	Enabled       bool   `yaml:"enabled"`
	Dir           string `yaml:"dir"`
	RetentionDays int    `yaml:"retention_days"`
}

// Timeout returns the download timeout as a duration.
func (s SourceConfig) Timeout() time.Duration {
	return time.Duration(s.TimeoutSeconds) * time.Second
}

// RefreshClock parses RefreshUTC as HH:MM.
func (s SourceConfig) RefreshClock() (hour, minute int, err error) {
	t, err := time.Parse("15:04", strings.TrimSpace(s.RefreshUTC))
	if err != nil {
		return 0, 0, fmt.Errorf("source.refresh_utc %q: %w", s.RefreshUTC, err)
	}
	return t.Hour(), t.Minute(), nil
}

// ResolveDir picks the configuration directory: explicit flag value first,
// then EnvConfigPath, then DefaultConfigDir.
func ResolveDir(flagValue string) string {
	if v := strings.TrimSpace(flagValue); v != "" {
		return v
	}
	if v := strings.TrimSpace(os.Getenv(EnvConfigPath)); v != "" {
		return v
	}
	return DefaultConfigDir
}

// Purpose: Load and validate every *.yaml file in dir.
// Key aspects: Files merge in lexical order, later keys overriding earlier
// ones; mappings merge recursively. Defaults apply only to keys absent from
// every file so explicit zeros survive.
// Upstream: main startup, cmd tools.
// Downstream: mergeYAML, applyDefaults, validate.
func Load(dir string) (*Config, error) {
	info, err := os.Stat(dir)
	if err != nil {
		return nil, fmt.Errorf("failed to read config directory: %w", err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("config path %q is not a directory", dir)
	}
	files, err := filepath.Glob(filepath.Join(dir, "*.yaml"))
	if err != nil {
		return nil, fmt.Errorf("failed to list config directory: %w", err)
	}
	sort.Strings(files)

	merged := map[string]any{}
	for _, file := range files {
		data, err := os.ReadFile(file)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		var doc map[string]any
		if err := yaml.Unmarshal(data, &doc); err != nil {
			return nil, fmt.Errorf("failed to parse config file %s: %w", filepath.Base(file), err)
		}
		mergeYAML(merged, doc)
	}

	raw, err := yaml.Marshal(merged)
	if err != nil {
		return nil, fmt.Errorf("failed to re-encode merged config: %w", err)
	}
	var cfg Config
	if err := yaml.Unmarshal(raw, &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse merged config: %w", err)
	}
	applyDefaults(&cfg, merged)
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	cfg.LoadedFrom = dir
	return &cfg, nil
}

func mergeYAML(dst, src map[string]any) {
	for k, v := range src {
		if srcMap, ok := v.(map[string]any); ok {
			if dstMap, ok := dst[k].(map[string]any); ok {
				mergeYAML(dstMap, srcMap)
				continue
			}
		}
		dst[k] = v
	}
}

// present reports whether section.key appears in the merged document.
func present(doc map[string]any, section, key string) bool {
	m, ok := doc[section].(map[string]any)
	if !ok {
		return false
	}
	_, ok = m[key]
	return ok
}

func applyDefaults(cfg *Config, doc map[string]any) {
	if !present(doc, "lookup", "cache_size") {
		cfg.Lookup.CacheSize = defaultCacheSize
	}
	if strings.TrimSpace(cfg.Source.Format) == "" {
		cfg.Source.Format = defaultSourceFormat
	}
	cfg.Source.Format = strings.ToLower(strings.TrimSpace(cfg.Source.Format))
	if strings.TrimSpace(cfg.Source.File) == "" {
		cfg.Source.File = defaultSourceFile
	}
	if strings.TrimSpace(cfg.Source.RefreshUTC) == "" {
		cfg.Source.RefreshUTC = defaultRefreshUTC
	}
	if !present(doc, "source", "timeout_seconds") {
		cfg.Source.TimeoutSeconds = defaultTimeoutSeconds
	}
	if !present(doc, "snapshot", "enabled") {
		cfg.Snapshot.Enabled = true
	}
	if strings.TrimSpace(cfg.Snapshot.Dir) == "" {
		cfg.Snapshot.Dir = defaultSnapshotDir
	}
	if strings.TrimSpace(cfg.Logging.Dir) == "" {
		cfg.Logging.Dir = defaultLogDir
	}
	if !present(doc, "logging", "retention_days") {
		cfg.Logging.RetentionDays = defaultRetentionDays
	}
}

func (c *Config) validate() error {
	var errs []error
	if c.Lookup.Workers < 0 {
		errs = append(errs, fmt.Errorf("lookup.workers must be >= 0, got %d", c.Lookup.Workers))
	}
	if c.Lookup.CacheSize < 0 {
		errs = append(errs, fmt.Errorf("lookup.cache_size must be >= 0, got %d", c.Lookup.CacheSize))
	}
	switch c.Source.Format {
	case SourcePlist, SourceSQLite:
	default:
		errs = append(errs, fmt.Errorf("source.format must be %q or %q, got %q", SourcePlist, SourceSQLite, c.Source.Format))
	}
	if c.Source.TimeoutSeconds < 0 {
		errs = append(errs, fmt.Errorf("source.timeout_seconds must be >= 0, got %d", c.Source.TimeoutSeconds))
	}
	if c.Source.URL != "" {
		if _, _, err := c.Source.RefreshClock(); err != nil {
			errs = append(errs, err)
		}
	}
	if c.Logging.RetentionDays < 0 {
		errs = append(errs, fmt.Errorf("logging.retention_days must be >= 0, got %d", c.Logging.RetentionDays))
	}
	if err := errors.Join(errs...); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}
	return nil
}

// Print displays the configuration
func (c *Config) Print() {
	fmt.Printf("Config: %s\n", c.LoadedFrom)
	workerDesc := "auto"
	if c.Lookup.Workers > 0 {
		workerDesc = fmt.Sprintf("%d", c.Lookup.Workers)
	}
	fmt.Printf("Lookup: merge_hits=%t workers=%s cache_size=%d\n", c.Lookup.MergeHits, workerDesc, c.Lookup.CacheSize)
	fmt.Printf("Source: %s %s\n", c.Source.Format, c.Source.File)
	if c.Source.URL != "" {
		fmt.Printf("Refresh: %s daily at %s UTC (timeout %ds)\n", c.Source.URL, c.Source.RefreshUTC, c.Source.TimeoutSeconds)
	}
	if c.Snapshot.Enabled {
		fmt.Printf("Snapshot: %s\n", c.Snapshot.Dir)
	}
	if c.Logging.Enabled {
		fmt.Printf("Logging: %s (retention %d days)\n", c.Logging.Dir, c.Logging.RetentionDays)
	}
}
