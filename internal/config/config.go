// Package config loads the indexer configuration from YAML with
// environment overrides.
package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"runtime"
	"strconv"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/xiang66/ccls/internal/serializer"
)

// Environment overrides
const (
	EnvDBPath   = "CCINDEX_DB_PATH"
	EnvCacheDir = "CCINDEX_CACHE_DIR"
	EnvWorkers  = "CCINDEX_WORKERS"
)

// DefaultConfigFile is looked up in the project root
const DefaultConfigFile = ".ccindex.yaml"

// ErrInvalidConfig wraps every validation failure
var ErrInvalidConfig = errors.New("invalid configuration")

// Config holds the indexer settings
type Config struct {
	// Number of parse workers. Zero picks one per CPU.
	Workers int `yaml:"workers"`
	// Files persisted per storage transaction.
	BatchSize int `yaml:"batch_size"`
	// Directory of the IndexFile cache. Empty keeps the cache in memory.
	CacheDir string `yaml:"cache_dir"`
	// json or msgpack.
	CacheFormat string `yaml:"cache_format"`
	// In-memory cache entries.
	CacheSize int    `yaml:"cache_size"`
	DBPath    string `yaml:"db_path"`
	// Compiler arguments for every translation unit.
	DefaultArgs []string `yaml:"default_args"`
	IncludeDirs []string `yaml:"include_dirs"`
	// Source extensions treated as translation units.
	Extensions []string `yaml:"extensions"`
	// Directory names skipped during discovery.
	ExcludeDirs []string `yaml:"exclude_dirs"`
}

// Default returns the built-in configuration
func Default() *Config {
	home, err := os.UserHomeDir()
	if err != nil {
		home = "."
	}
	base := filepath.Join(home, ".ccindex")
	return &Config{
		Workers:     runtime.NumCPU(),
		BatchSize:   20,
		CacheDir:    filepath.Join(base, "cache"),
		CacheFormat: "msgpack",
		CacheSize:   1024,
		DBPath:      filepath.Join(base, "index.db"),
		Extensions:  []string{".c", ".cc", ".cpp", ".cxx", ".c++", ".m", ".mm"},
		ExcludeDirs: []string{"build", "third_party", "node_modules"},
	}
}

// Load reads path over the defaults and applies environment overrides. A
// missing file is not an error when path is the default name.
func Load(path string) (*Config, error) {
	cfg := Default()
	explicit := path != ""
	if !explicit {
		path = DefaultConfigFile
	}

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("failed to parse configuration file %s: %w", path, err)
		}
	case errors.Is(err, os.ErrNotExist) && !explicit:
	case errors.Is(err, os.ErrNotExist):
		return nil, fmt.Errorf("configuration file not found: %s", path)
	default:
		return nil, fmt.Errorf("failed to read configuration file %s: %w", path, err)
	}

	if err := cfg.ApplyEnv(); err != nil {
		return nil, err
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// ApplyEnv overrides fields from the environment
func (c *Config) ApplyEnv() error {
	if v := os.Getenv(EnvDBPath); v != "" {
		c.DBPath = v
	}
	if v, ok := os.LookupEnv(EnvCacheDir); ok {
		c.CacheDir = v
	}
	if v := os.Getenv(EnvWorkers); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not a number", ErrInvalidConfig, EnvWorkers, v)
		}
		c.Workers = n
	}
	return nil
}

// Validate checks the configuration and fills zero values
func (c *Config) Validate() error {
	if c.Workers < 0 {
		return fmt.Errorf("%w: workers must not be negative", ErrInvalidConfig)
	}
	if c.Workers == 0 {
		c.Workers = runtime.NumCPU()
	}
	if c.BatchSize <= 0 {
		return fmt.Errorf("%w: batch_size must be positive", ErrInvalidConfig)
	}
	if _, err := serializer.ParseFormat(c.CacheFormat); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidConfig, err)
	}
	if c.DBPath == "" {
		return fmt.Errorf("%w: db_path is required", ErrInvalidConfig)
	}
	if len(c.Extensions) == 0 {
		return fmt.Errorf("%w: at least one extension is required", ErrInvalidConfig)
	}
	for i, ext := range c.Extensions {
		if !strings.HasPrefix(ext, ".") {
			c.Extensions[i] = "." + ext
		}
	}
	return nil
}

// Format returns the parsed cache format
func (c *Config) Format() serializer.Format {
	f, err := serializer.ParseFormat(c.CacheFormat)
	if err != nil {
		return serializer.FormatMsgPack
	}
	return f
}

// Args returns the compiler arguments for a translation unit: the default
// args followed by one -I per include dir
func (c *Config) Args() []string {
	args := make([]string, 0, len(c.DefaultArgs)+len(c.IncludeDirs))
	args = append(args, c.DefaultArgs...)
	for _, dir := range c.IncludeDirs {
		args = append(args, "-I"+dir)
	}
	return args
}

// IsSource reports whether path has one of the configured extensions
func (c *Config) IsSource(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	for _, e := range c.Extensions {
		if ext == strings.ToLower(e) {
			return true
		}
	}
	return false
}

// Excluded reports whether a directory name is skipped during discovery
func (c *Config) Excluded(dirName string) bool {
	if strings.HasPrefix(dirName, ".") && dirName != "." {
		return true
	}
	for _, d := range c.ExcludeDirs {
		if d == dirName {
			return true
		}
	}
	return false
}
