// Package config provides configuration loading and management for matchroom.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/bmatcuk/doublestar/v4"
	"gopkg.in/yaml.v3"
)

// Storage backends.
const (
	BackendNATS   = "nats"
	BackendSQL    = "sql"
	BackendMemory = "memory"
)

// Config represents the complete matchroom configuration
type Config struct {
	Storage StorageConfig `yaml:"storage"`
	Backup  BackupConfig  `yaml:"backup"`
	Inbox   InboxConfig   `yaml:"inbox"`
	Log     LogConfig     `yaml:"log"`
}

// StorageConfig selects and configures the record store backend
type StorageConfig struct {
	// Backend is one of nats, sql or memory
	Backend string `yaml:"backend"`
	// DataDir holds the embedded NATS store, the SQLite file and local backups
	DataDir string     `yaml:"data_dir"`
	NATS    NATSConfig `yaml:"nats"`
	SQL     SQLConfig  `yaml:"sql"`
}

// NATSConfig configures the NATS connection
type NATSConfig struct {
	// URL is the NATS server URL (empty = use embedded server)
	URL string `yaml:"url"`
	// Embedded indicates whether to use embedded NATS
	Embedded bool `yaml:"embedded"`
}

// SQLConfig configures the SQL backend
type SQLConfig struct {
	// Driver is sqlite or postgres
	Driver string `yaml:"driver"`
	// DSN defaults to <data_dir>/matchroom.db for sqlite
	DSN string `yaml:"dsn"`
}

// BackupConfig configures scheduled backups
type BackupConfig struct {
	Enabled  bool          `yaml:"enabled"`
	Interval time.Duration `yaml:"interval"`
	// Format is json or json+zstd
	Format string `yaml:"format"`
	// Dir defaults to <data_dir>/backups
	Dir string   `yaml:"dir"`
	S3  S3Config `yaml:"s3"`

	// enabledSet records that a config file spelled out enabled, so a
	// layer's explicit false can override an earlier true.
	enabledSet bool
}

// UnmarshalYAML decodes the section and notes whether enabled was present.
func (b *BackupConfig) UnmarshalYAML(node *yaml.Node) error {
	type plain BackupConfig
	if err := node.Decode((*plain)(b)); err != nil {
		return err
	}
	if node.Kind == yaml.MappingNode {
		for i := 0; i+1 < len(node.Content); i += 2 {
			if node.Content[i].Value == "enabled" {
				b.enabledSet = true
			}
		}
	}
	return nil
}

// S3Config configures an S3-compatible backup bucket
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Prefix          string `yaml:"prefix"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint"`
	AccessKeyID     string `yaml:"access_key_id"`
	SecretAccessKey string `yaml:"secret_access_key"`
	UsePathStyle    bool   `yaml:"use_path_style"`
}

// InboxConfig configures the import inbox watcher
type InboxConfig struct {
	Dir           string        `yaml:"dir"`
	Patterns      []string      `yaml:"patterns"`
	DebounceDelay time.Duration `yaml:"debounce_delay"`
}

// LogConfig configures logging
type LogConfig struct {
	Level string `yaml:"level"`
}

// DefaultConfig returns a Config with sensible defaults
func DefaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Backend: BackendNATS,
			DataDir: defaultDataDir(),
			NATS: NATSConfig{
				URL:      "",
				Embedded: true,
			},
			SQL: SQLConfig{
				Driver: "sqlite",
			},
		},
		Backup: BackupConfig{
			Enabled:  false,
			Interval: 24 * time.Hour,
			Format:   "json+zstd",
			S3: S3Config{
				Prefix: "matchroom/",
			},
		},
		Inbox: InboxConfig{
			Patterns:      []string{"*.json", "*.json.zst"},
			DebounceDelay: 500 * time.Millisecond,
		},
		Log: LogConfig{
			Level: "info",
		},
	}
}

func defaultDataDir() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ".matchroom"
	}
	return filepath.Join(home, ".local", "share", "matchroom")
}

// Validate checks that the configuration is valid
func (c *Config) Validate() error {
	switch c.Storage.Backend {
	case BackendNATS:
		if c.Storage.NATS.URL == "" && !c.Storage.NATS.Embedded {
			return fmt.Errorf("storage.nats.url is required when embedded NATS is disabled")
		}
	case BackendSQL:
		switch c.Storage.SQL.Driver {
		case "sqlite":
		case "postgres":
			if c.Storage.SQL.DSN == "" {
				return fmt.Errorf("storage.sql.dsn is required for postgres")
			}
		default:
			return fmt.Errorf("storage.sql.driver must be sqlite or postgres, got %q", c.Storage.SQL.Driver)
		}
	case BackendMemory:
	default:
		return fmt.Errorf("storage.backend must be nats, sql or memory, got %q", c.Storage.Backend)
	}
	if c.Storage.Backend != BackendMemory && c.Storage.DataDir == "" {
		return fmt.Errorf("storage.data_dir is required")
	}

	if c.Backup.Enabled {
		if c.Backup.Interval < time.Minute {
			return fmt.Errorf("backup.interval must be at least 1m")
		}
	}
	if c.Backup.Format != "json" && c.Backup.Format != "json+zstd" {
		return fmt.Errorf("backup.format must be json or json+zstd, got %q", c.Backup.Format)
	}
	if (c.Backup.S3.AccessKeyID == "") != (c.Backup.S3.SecretAccessKey == "") {
		return fmt.Errorf("backup.s3 needs both access_key_id and secret_access_key")
	}

	if c.Inbox.DebounceDelay < 0 {
		return fmt.Errorf("inbox.debounce_delay must not be negative")
	}
	for _, p := range c.Inbox.Patterns {
		if !doublestar.ValidatePattern(p) {
			return fmt.Errorf("inbox.patterns: invalid pattern %q", p)
		}
	}

	switch strings.ToLower(c.Log.Level) {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("log.level must be debug, info, warn or error, got %q", c.Log.Level)
	}
	return nil
}

// SQLDSN returns the configured DSN, defaulting to a SQLite file in the
// data directory.
func (c *Config) SQLDSN() string {
	if c.Storage.SQL.DSN != "" || c.Storage.SQL.Driver != "sqlite" {
		return c.Storage.SQL.DSN
	}
	return filepath.Join(c.Storage.DataDir, "matchroom.db")
}

// NATSStoreDir is where the embedded NATS server keeps JetStream data.
func (c *Config) NATSStoreDir() string {
	return filepath.Join(c.Storage.DataDir, "nats")
}

// BackupDir returns the local backup directory.
func (c *Config) BackupDir() string {
	if c.Backup.Dir != "" {
		return c.Backup.Dir
	}
	return filepath.Join(c.Storage.DataDir, "backups")
}

// InboxDir returns the watched import directory.
func (c *Config) InboxDir() string {
	if c.Inbox.Dir != "" {
		return c.Inbox.Dir
	}
	return filepath.Join(c.Storage.DataDir, "inbox")
}

// LoadFromFile loads configuration from a YAML file on top of the defaults
func LoadFromFile(path string) (*Config, error) {
	config := DefaultConfig()
	if err := decodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

// parseFile loads only the values present in the file.
func parseFile(path string) (*Config, error) {
	config := &Config{}
	if err := decodeFile(path, config); err != nil {
		return nil, err
	}
	return config, nil
}

func decodeFile(path string, into *Config) error {
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read config file: %w", err)
	}
	if err := yaml.Unmarshal(ExpandEnv(data), into); err != nil {
		return fmt.Errorf("failed to parse config file: %w", err)
	}
	return nil
}

// ExpandEnv replaces ${VAR} and ${VAR:-default} references. An unset or
// empty variable without a default expands to the empty string.
func ExpandEnv(data []byte) []byte {
	return []byte(os.Expand(string(data), func(ref string) string {
		name, def, hasDefault := strings.Cut(ref, ":-")
		if v, ok := os.LookupEnv(name); ok && v != "" {
			return v
		}
		if hasDefault {
			return def
		}
		return ""
	}))
}

// SaveToFile saves configuration to a YAML file
func (c *Config) SaveToFile(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	// May contain S3 credentials.
	if err := os.WriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// Merge merges another config into this one (other takes precedence for non-zero values).
// backup.enabled is taken from any layer that sets it, true or false.
func (c *Config) Merge(other *Config) {
	if other == nil {
		return
	}

	// Storage
	if other.Storage.Backend != "" {
		c.Storage.Backend = other.Storage.Backend
	}
	if other.Storage.DataDir != "" {
		c.Storage.DataDir = other.Storage.DataDir
	}
	if other.Storage.NATS.URL != "" {
		c.Storage.NATS.URL = other.Storage.NATS.URL
		c.Storage.NATS.Embedded = false
	}
	if other.Storage.SQL.Driver != "" {
		c.Storage.SQL.Driver = other.Storage.SQL.Driver
	}
	if other.Storage.SQL.DSN != "" {
		c.Storage.SQL.DSN = other.Storage.SQL.DSN
	}

	// Backup
	if other.Backup.Enabled || other.Backup.enabledSet {
		c.Backup.Enabled = other.Backup.Enabled
	}
	if other.Backup.Interval != 0 {
		c.Backup.Interval = other.Backup.Interval
	}
	if other.Backup.Format != "" {
		c.Backup.Format = other.Backup.Format
	}
	if other.Backup.Dir != "" {
		c.Backup.Dir = other.Backup.Dir
	}
	mergeS3(&c.Backup.S3, other.Backup.S3)

	// Inbox
	if other.Inbox.Dir != "" {
		c.Inbox.Dir = other.Inbox.Dir
	}
	if len(other.Inbox.Patterns) > 0 {
		c.Inbox.Patterns = other.Inbox.Patterns
	}
	if other.Inbox.DebounceDelay != 0 {
		c.Inbox.DebounceDelay = other.Inbox.DebounceDelay
	}

	// Log
	if other.Log.Level != "" {
		c.Log.Level = other.Log.Level
	}
}

func mergeS3(dst *S3Config, src S3Config) {
	if src.Bucket != "" {
		dst.Bucket = src.Bucket
	}
	if src.Prefix != "" {
		dst.Prefix = src.Prefix
	}
	if src.Region != "" {
		dst.Region = src.Region
	}
	if src.Endpoint != "" {
		dst.Endpoint = src.Endpoint
	}
	if src.AccessKeyID != "" {
		dst.AccessKeyID = src.AccessKeyID
		dst.SecretAccessKey = src.SecretAccessKey
	}
	if src.UsePathStyle {
		dst.UsePathStyle = true
	}
}
