// Package config loads nosqld's configuration with the same layered
// precedence and JSONC-tolerant parsing the rest of the pack uses for
// its config files: defaults, then a config file, then environment
// variables, then explicit CLI flags, each one overriding the last.
package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"strconv"

	"github.com/tailscale/hujson"
)

// Config is nosqld's full runtime configuration: the arena layout (C8),
// the wire listener, and the optional metrics listener.
type Config struct {
	// TotalMemorySize is the arena's total byte size.
	TotalMemorySize uint32 `json:"total_memory_size,omitempty"`
	// IndexSize is the byte size carved out for the bitmap+bloom+hash
	// table region; the remainder of the arena backs the record heap.
	IndexSize uint32 `json:"index_size,omitempty"`
	// CacheSize is the number of slots in the direct-mapped cache (C6).
	CacheSize int `json:"cache_size,omitempty"`

	// Addr is the host:port the wire protocol (C10) listens on.
	Addr string `json:"addr,omitempty"`
	// MetricsAddr is the host:port Prometheus metrics are served on.
	// Empty disables the metrics listener.
	MetricsAddr string `json:"metrics_addr,omitempty"`

	// SnapshotPath is a snapshot file path carried in the configuration.
	// POST /snapshot/backup and /snapshot/restore do not read it: each
	// request names its own path in its body.
	SnapshotPath string `json:"snapshot_path,omitempty"`
	// SnapshotCompress enables LZ4 framing on snapshot files.
	SnapshotCompress bool `json:"snapshot_compress,omitempty"`
}

// Default returns nosqld's built-in defaults.
func Default() Config {
	return Config{
		TotalMemorySize: 0x00FFFFFF,
		IndexSize:       0x0000FFFF,
		CacheSize:       500,
		Addr:            "0.0.0.0:17878",
		MetricsAddr:     "",
		SnapshotPath:    "nosqld.snapshot",
	}
}

var (
	errConfigFileNotFound = errors.New("config: file not found")
	errConfigInvalid      = errors.New("config: invalid file")
)

// Load resolves Config from, in increasing precedence order: Default(),
// the JSONC file at path (if path is non-empty; a missing optional file
// is not an error but an explicitly-supplied path that can't be read is),
// then the PORT, NOSQLD_ADDR, NOSQLD_METRICS_ADDR, NOSQLD_SNAPSHOT_PATH,
// NOSQLD_TOTAL_MEMORY_SIZE and NOSQLD_INDEX_SIZE environment variables,
// then cliOverrides with each field only applied when its corresponding
// "set" flag is true.
func Load(path string, env []string, cliOverrides Config, cliSet CLISet) (Config, error) {
	cfg := Default()

	if path != "" {
		fileCfg, err := loadFile(path)
		if err != nil {
			return Config{}, err
		}
		cfg = merge(cfg, fileCfg)
	}

	cfg = applyEnv(cfg, env)

	if cliSet.Addr {
		cfg.Addr = cliOverrides.Addr
	}
	if cliSet.MetricsAddr {
		cfg.MetricsAddr = cliOverrides.MetricsAddr
	}
	if cliSet.TotalMemorySize {
		cfg.TotalMemorySize = cliOverrides.TotalMemorySize
	}
	if cliSet.IndexSize {
		cfg.IndexSize = cliOverrides.IndexSize
	}
	if cliSet.CacheSize {
		cfg.CacheSize = cliOverrides.CacheSize
	}
	if cliSet.SnapshotPath {
		cfg.SnapshotPath = cliOverrides.SnapshotPath
	}
	if cliSet.SnapshotCompress {
		cfg.SnapshotCompress = cliOverrides.SnapshotCompress
	}

	if err := validate(cfg); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// CLISet records which Config fields were explicitly passed on the
// command line, so Load can distinguish "flag not given" from "flag
// given its zero value".
type CLISet struct {
	Addr             bool
	MetricsAddr      bool
	TotalMemorySize  bool
	IndexSize        bool
	CacheSize        bool
	SnapshotPath     bool
	SnapshotCompress bool
}

func loadFile(path string) (Config, error) {
	data, err := os.ReadFile(path) //nolint:gosec // path is operator-supplied
	if err != nil {
		return Config{}, fmt.Errorf("%w: %s", errConfigFileNotFound, path)
	}

	standardized, err := hujson.Standardize(data)
	if err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}

	var cfg Config
	if err := json.Unmarshal(standardized, &cfg); err != nil {
		return Config{}, fmt.Errorf("%w %s: %w", errConfigInvalid, path, err)
	}
	return cfg, nil
}

// merge layers override on top of base, field by field, treating each
// non-zero field in override as an explicit value (the file format has
// no "explicitly zero" marker for numeric fields; string fields follow
// the same rule).
func merge(base, override Config) Config {
	if override.TotalMemorySize != 0 {
		base.TotalMemorySize = override.TotalMemorySize
	}
	if override.IndexSize != 0 {
		base.IndexSize = override.IndexSize
	}
	if override.CacheSize != 0 {
		base.CacheSize = override.CacheSize
	}
	if override.Addr != "" {
		base.Addr = override.Addr
	}
	if override.MetricsAddr != "" {
		base.MetricsAddr = override.MetricsAddr
	}
	if override.SnapshotPath != "" {
		base.SnapshotPath = override.SnapshotPath
	}
	if override.SnapshotCompress {
		base.SnapshotCompress = override.SnapshotCompress
	}
	return base
}

func applyEnv(cfg Config, env []string) Config {
	lookup := func(key string) (string, bool) {
		prefix := key + "="
		for _, e := range env {
			if v, ok := cutPrefix(e, prefix); ok {
				return v, true
			}
		}
		return "", false
	}

	if v, ok := lookup("PORT"); ok {
		cfg.Addr = ":" + v
	}
	if v, ok := lookup("NOSQLD_ADDR"); ok {
		cfg.Addr = v
	}
	if v, ok := lookup("NOSQLD_METRICS_ADDR"); ok {
		cfg.MetricsAddr = v
	}
	if v, ok := lookup("NOSQLD_SNAPSHOT_PATH"); ok {
		cfg.SnapshotPath = v
	}
	if v, ok := lookup("NOSQLD_TOTAL_MEMORY_SIZE"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.TotalMemorySize = uint32(n)
		}
	}
	if v, ok := lookup("NOSQLD_INDEX_SIZE"); ok {
		if n, err := strconv.ParseUint(v, 10, 32); err == nil {
			cfg.IndexSize = uint32(n)
		}
	}

	return cfg
}

func cutPrefix(s, prefix string) (string, bool) {
	if len(s) < len(prefix) || s[:len(prefix)] != prefix {
		return "", false
	}
	return s[len(prefix):], true
}

func validate(cfg Config) error {
	if cfg.IndexSize >= cfg.TotalMemorySize {
		return fmt.Errorf("%w: index_size (%d) must be smaller than total_memory_size (%d)",
			errConfigInvalid, cfg.IndexSize, cfg.TotalMemorySize)
	}
	if cfg.CacheSize <= 0 {
		return fmt.Errorf("%w: cache_size must be positive, got %d", errConfigInvalid, cfg.CacheSize)
	}
	if cfg.Addr == "" {
		return fmt.Errorf("%w: addr must not be empty", errConfigInvalid)
	}
	return nil
}
