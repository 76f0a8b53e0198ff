// Package config manages castore store configuration and the on-disk
// store layout. A store root holds the config file, the SQLite index,
// and the sharded blob file area.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/pelletier/go-toml/v2"
)

const (
	ConfigFile = "castore.toml"
	IndexFile  = "index.db"
	BlobsDir   = "blobs"
)

// Defaults applied when a key is missing from the config file.
const (
	DefaultPoolCapacity     = 4
	DefaultInlineLimit      = 100 << 10 // payloads below this stay in the index row
	DefaultCompressionLevel = 2
)

// Config represents a store's configuration.
type Config struct {
	// PoolCapacity is the maximum number of simultaneously open
	// index connections.
	PoolCapacity int `toml:"pool_capacity"`

	// WaitTimeout bounds how long a caller waits for a free
	// connection, as a Go duration string. "0s" means wait forever.
	WaitTimeout string `toml:"wait_timeout"`

	// InlineLimit is the stored-payload size in bytes below which an
	// object lives inline in its index row rather than in a blob file.
	InlineLimit int64 `toml:"inline_limit"`

	// CompressionLevel selects the zstd level: 1 fastest, 2 default,
	// 3 better compression.
	CompressionLevel int `toml:"compression_level"`

	root string // store root directory
}

// Default returns a config populated with defaults.
func Default() *Config {
	return &Config{
		PoolCapacity:     DefaultPoolCapacity,
		WaitTimeout:      "0s",
		InlineLimit:      DefaultInlineLimit,
		CompressionLevel: DefaultCompressionLevel,
	}
}

// FindRoot walks up from dir looking for a directory containing a
// castore config file.
func FindRoot(dir string) (string, error) {
	dir, err := filepath.Abs(dir)
	if err != nil {
		return "", err
	}

	for {
		if info, err := os.Stat(filepath.Join(dir, ConfigFile)); err == nil && !info.IsDir() {
			return dir, nil
		}

		parent := filepath.Dir(dir)
		if parent == dir {
			return "", fmt.Errorf("not a castore store (or any parent up to root)")
		}
		dir = parent
	}
}

// Load reads the configuration from a store root.
func Load(root string) (*Config, error) {
	data, err := os.ReadFile(filepath.Join(root, ConfigFile))
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}

	cfg := Default()
	if err := toml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	cfg.root = root

	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes the configuration back to the store root.
func (c *Config) Save() error {
	data, err := toml.Marshal(c)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return os.WriteFile(filepath.Join(c.root, ConfigFile), data, 0644)
}

// Initialize creates a new store directory with default configuration.
func Initialize(root string) (*Config, error) {
	if _, err := os.Stat(filepath.Join(root, ConfigFile)); err == nil {
		return nil, fmt.Errorf("castore store already exists at %s", root)
	}

	if err := os.MkdirAll(root, 0755); err != nil {
		return nil, fmt.Errorf("create store directory: %w", err)
	}
	if err := os.MkdirAll(filepath.Join(root, BlobsDir), 0755); err != nil {
		return nil, fmt.Errorf("create blobs directory: %w", err)
	}

	cfg := Default()
	cfg.root = root
	if err := cfg.Save(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Root returns the store root directory.
func (c *Config) Root() string {
	return c.root
}

// IndexPath returns the path to the SQLite index database.
func (c *Config) IndexPath() string {
	return filepath.Join(c.root, IndexFile)
}

// BlobsPath returns the path to the blob file area.
func (c *Config) BlobsPath() string {
	return filepath.Join(c.root, BlobsDir)
}

// WaitTimeoutDuration parses the configured wait timeout.
func (c *Config) WaitTimeoutDuration() time.Duration {
	d, err := time.ParseDuration(c.WaitTimeout)
	if err != nil {
		return 0
	}
	return d
}

func (c *Config) validate() error {
	if c.PoolCapacity < 1 {
		return fmt.Errorf("invalid pool_capacity %d: must be at least 1", c.PoolCapacity)
	}
	if c.InlineLimit < 0 {
		return fmt.Errorf("invalid inline_limit %d: must not be negative", c.InlineLimit)
	}
	if c.WaitTimeout != "" {
		if _, err := time.ParseDuration(c.WaitTimeout); err != nil {
			return fmt.Errorf("invalid wait_timeout %q: %w", c.WaitTimeout, err)
		}
	}
	return nil
}
