package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"

	"mediacat/internal/constants"
	"mediacat/internal/paths"
)

// Config represents the application configuration
type Config struct {
	DatabasePath string `yaml:"database_path"`

	// Database connection pool settings
	DBMaxOpenConns    int           `yaml:"db_max_open_conns"`
	DBMaxIdleConns    int           `yaml:"db_max_idle_conns"`
	DBConnMaxLifetime time.Duration `yaml:"db_conn_max_lifetime"`

	// Hashing settings
	HashAlgorithm  string `yaml:"hash_algorithm"`
	HashBufferSize int    `yaml:"hash_buffer_size"`
	IOThrottleMBps int    `yaml:"io_throttle_mbps"` // 0 disables throttling

	// Import settings
	ImportWorkers     int    `yaml:"import_workers"`
	ImportBufferSize  int    `yaml:"import_buffer_size"`
	ImportStorageRoot string `yaml:"import_storage_root"`

	// Path resolution settings
	StorageRoots   []paths.Mapping `yaml:"storage_roots"`
	PathStrategy   paths.Strategy  `yaml:"path_strategy"`
	ValidateExists bool            `yaml:"validate_exists"`

	// Thumbnail worker settings
	ThumbnailDir     string `yaml:"thumbnail_dir"`
	ThumbnailWorkers int    `yaml:"thumbnail_workers"`
}

// Default returns a default configuration
func Default() *Config {
	return &Config{
		DatabasePath:      "/appdata/data/mediacat.db",
		DBMaxOpenConns:    25,
		DBMaxIdleConns:    5,
		DBConnMaxLifetime: 5 * time.Minute,
		HashAlgorithm:     constants.DefaultHashAlgorithm,
		HashBufferSize:    constants.DefaultHashBufferSize,
		IOThrottleMBps:    0,
		ImportWorkers:     constants.DefaultImportWorkers,
		ImportBufferSize:  constants.DefaultImportBufferSize,
		ImportStorageRoot: "/volume1/photos",
		StorageRoots: []paths.Mapping{
			{Logical: "/volume1/photos", Physical: "/mnt/photos"},
		},
		PathStrategy:     paths.StrategyMapped,
		ValidateExists:   false,
		ThumbnailDir:     "/appdata/data/thumbnails",
		ThumbnailWorkers: constants.DefaultThumbnailWorkers,
	}
}

// Load loads configuration from a YAML file
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			// Return default config if file doesn't exist
			return Default(), nil
		}
		return nil, fmt.Errorf("failed to read config file: %w", err)
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config file: %w", err)
	}

	return cfg, nil
}

// Save saves the configuration to a YAML file
func (c *Config) Save(path string) error {
	dir := filepath.Dir(path)
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := yaml.Marshal(c)
	if err != nil {
		return fmt.Errorf("failed to marshal config: %w", err)
	}

	if err := os.WriteFile(path, data, 0644); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}

	return nil
}

// NewResolver builds a path resolver from the configured mapping table
func (c *Config) NewResolver() *paths.Resolver {
	return paths.NewResolver(c.StorageRoots, c.PathStrategy)
}

// Validate checks if the configuration is valid
func (c *Config) Validate() error {
	if c.DatabasePath == "" {
		return fmt.Errorf("database_path is required")
	}

	if c.HashAlgorithm != "blake3" && c.HashAlgorithm != "sha256" {
		return fmt.Errorf("hash_algorithm must be blake3 or sha256 (got: %s)", c.HashAlgorithm)
	}

	if c.HashBufferSize < 1 {
		return fmt.Errorf("hash_buffer_size must be at least 1")
	}

	if c.IOThrottleMBps < 0 {
		return fmt.Errorf("io_throttle_mbps cannot be negative")
	}

	if c.ImportWorkers < 1 {
		return fmt.Errorf("import_workers must be at least 1")
	}

	if c.ImportBufferSize < 1 {
		return fmt.Errorf("import_buffer_size must be at least 1")
	}

	if c.ThumbnailWorkers < 1 {
		return fmt.Errorf("thumbnail_workers must be at least 1")
	}

	if !c.PathStrategy.Valid() {
		return fmt.Errorf("path_strategy must be mapped, direct, or local_only (got: %s)", c.PathStrategy)
	}

	if c.DBMaxOpenConns < 1 {
		return fmt.Errorf("db_max_open_conns must be at least 1")
	}

	if c.DBMaxIdleConns < 0 {
		return fmt.Errorf("db_max_idle_conns cannot be negative")
	}

	// Validate storage root mappings
	for i, mapping := range c.StorageRoots {
		if err := validateMapping(mapping, fmt.Sprintf("storage_roots[%d]", i)); err != nil {
			return err
		}
	}

	return nil
}

// validateMapping validates a single storage root mapping
func validateMapping(mapping paths.Mapping, context string) error {
	if mapping.Logical == "" {
		return fmt.Errorf("%s: logical root cannot be empty", context)
	}

	if mapping.Physical == "" {
		return fmt.Errorf("%s: physical root cannot be empty", context)
	}

	if !filepath.IsAbs(mapping.Physical) {
		return fmt.Errorf("%s: physical root must be absolute (got: %s)", context, mapping.Physical)
	}

	return nil
}
