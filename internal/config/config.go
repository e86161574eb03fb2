package config

import (
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/bmatcuk/doublestar/v4"

	"github.com/justyntemme/fexplorer/internal/logging"
)

// Config holds all user-configurable settings loaded from config.json
type Config struct {
	Listing ListingConfig `json:"listing"`
	Workers WorkersConfig `json:"workers"`
	Watch   WatchConfig   `json:"watch"`
	Jobs    JobsConfig    `json:"jobs"`
	Logging LoggingConfig `json:"logging"`
	Metrics MetricsConfig `json:"metrics"`
}

// ListingConfig holds the default directory listing options
type ListingConfig struct {
	ShowHidden      bool     `json:"showHidden"`
	OnlyDirectories bool     `json:"onlyDirectories"`
	Exclude         []string `json:"exclude"` // doublestar patterns matched against names
}

// WorkersConfig sizes the filesystem worker pool
type WorkersConfig struct {
	Count int `json:"count"`
}

// WatchConfig controls watching open directories for outside changes
type WatchConfig struct {
	Enabled    bool `json:"enabled"`
	DebounceMs int  `json:"debounceMs"`
}

// JobsConfig locates the background copy queue
type JobsConfig struct {
	DBPath string `json:"dbPath"`
}

// LoggingConfig mirrors logging.Config
type LoggingConfig struct {
	Level  string `json:"level"`  // debug | info | warn | error
	Format string `json:"format"` // console | json
	Output string `json:"output"` // stderr | stdout | file path
}

// MetricsConfig enables the Prometheus endpoint
type MetricsConfig struct {
	Addr string `json:"addr"` // empty disables the endpoint
}

// Debounce returns the watch debounce interval.
func (c WatchConfig) Debounce() time.Duration {
	return time.Duration(c.DebounceMs) * time.Millisecond
}

// Manager handles loading, saving, and accessing configuration
type Manager struct {
	mu       sync.RWMutex
	config   *Config
	path     string
	parseErr error // Stores parsing error if config failed to load
}

// NewManager creates a configuration manager for path. An empty path means
// ConfigPath().
func NewManager(path string) *Manager {
	if path == "" {
		path = ConfigPath()
	}
	return &Manager{
		config: DefaultConfig(),
		path:   path,
	}
}

// DefaultConfig returns the default configuration
func DefaultConfig() *Config {
	return &Config{
		Listing: ListingConfig{
			ShowHidden:      false,
			OnlyDirectories: false,
			Exclude:         []string{},
		},
		Workers: WorkersConfig{Count: 4},
		Watch: WatchConfig{
			Enabled:    true,
			DebounceMs: 200,
		},
		Jobs: JobsConfig{
			DBPath: filepath.Join(configDir(), "jobs.db"),
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "console",
			Output: "stderr",
		},
	}
}

func configDir() string {
	home, _ := os.UserHomeDir()
	return filepath.Join(home, ".config", "fexplorer")
}

// ConfigPath returns the config file path: ~/.config/fexplorer/config.json
// This is consistent across all platforms (Windows, macOS, Linux)
func ConfigPath() string {
	return filepath.Join(configDir(), "config.json")
}

// Path returns the file the manager reads and writes.
func (m *Manager) Path() string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.path
}

// Load reads the configuration from the config file
// If the file doesn't exist, creates it with defaults
// If parsing or validation fails, stores the error and returns defaults
func (m *Manager) Load() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	log := logging.Named("config")

	m.parseErr = nil

	dir := filepath.Dir(m.path)
	if err := os.MkdirAll(dir, 0o755); err != nil {
		log.Warn("failed to create config directory", logging.String("dir", dir), logging.Err(err))
		return err
	}

	data, err := os.ReadFile(m.path)
	if os.IsNotExist(err) {
		log.Info("creating default config", logging.String("path", m.path))
		m.config = DefaultConfig()
		return m.saveUnlocked()
	}
	if err != nil {
		return err
	}

	// Keys missing from the file keep their defaults.
	cfg := DefaultConfig()
	if err := json.Unmarshal(data, cfg); err != nil {
		log.Warn("config parse error, using defaults", logging.String("path", m.path), logging.Err(err))
		m.parseErr = err
		m.config = DefaultConfig()
		return nil // Don't return error - we're using defaults
	}
	if err := cfg.Validate(); err != nil {
		log.Warn("invalid config, using defaults", logging.String("path", m.path), logging.Err(err))
		m.parseErr = err
		m.config = DefaultConfig()
		return nil
	}

	log.Debug("config loaded", logging.String("path", m.path))
	m.config = cfg
	return nil
}

// Validate reports every invalid setting.
func (c *Config) Validate() error {
	var errs []error
	for _, p := range c.Listing.Exclude {
		if !doublestar.ValidatePattern(p) {
			errs = append(errs, fmt.Errorf("listing.exclude: invalid pattern %q", p))
		}
	}
	if c.Workers.Count < 1 {
		errs = append(errs, fmt.Errorf("workers.count must be positive, got %d", c.Workers.Count))
	}
	if c.Watch.DebounceMs < 0 {
		errs = append(errs, fmt.Errorf("watch.debounceMs must not be negative, got %d", c.Watch.DebounceMs))
	}
	if c.Jobs.DBPath == "" {
		errs = append(errs, errors.New("jobs.dbPath is empty"))
	}
	switch c.Logging.Level {
	case "", "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Errorf("logging.level: unknown level %q", c.Logging.Level))
	}
	switch c.Logging.Format {
	case "", "console", "json":
	default:
		errs = append(errs, fmt.Errorf("logging.format: unknown format %q", c.Logging.Format))
	}
	return errors.Join(errs...)
}

// saveUnlocked saves config without acquiring lock (caller must hold lock)
func (m *Manager) saveUnlocked() error {
	data, err := json.MarshalIndent(m.config, "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(m.path, data, 0o644)
}

// Save writes the current configuration to disk
func (m *Manager) Save() error {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.saveUnlocked()
}

// Get returns a copy of the current configuration
func (m *Manager) Get() Config {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if m.config == nil {
		return *DefaultConfig()
	}
	cfg := *m.config
	cfg.Listing.Exclude = append([]string(nil), m.config.Listing.Exclude...)
	return cfg
}

// ParseError returns the parsing error if config failed to load
func (m *Manager) ParseError() error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.parseErr
}

// SetShowHidden updates the show hidden setting
func (m *Manager) SetShowHidden(show bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.config.Listing.ShowHidden = show
	return m.saveUnlocked()
}

// GenerateConfig backs up the existing config at path and writes a fresh
// default one. It returns the backup path, or "" if there was no config.
func GenerateConfig(path string) (backupPath string, err error) {
	if path == "" {
		path = ConfigPath()
	}

	if _, err := os.Stat(path); err == nil {
		timestamp := time.Now().Format("20060102-150405")
		backupPath = filepath.Join(filepath.Dir(path), "config.backup."+timestamp+".json")

		data, err := os.ReadFile(path)
		if err != nil {
			return "", fmt.Errorf("failed to read existing config: %w", err)
		}
		if err := os.WriteFile(backupPath, data, 0o644); err != nil {
			return "", fmt.Errorf("failed to write backup: %w", err)
		}
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return backupPath, fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(DefaultConfig(), "", "  ")
	if err != nil {
		return backupPath, fmt.Errorf("failed to marshal default config: %w", err)
	}
	if err := os.WriteFile(path, data, 0o644); err != nil {
		return backupPath, fmt.Errorf("failed to write config: %w", err)
	}
	return backupPath, nil
}
