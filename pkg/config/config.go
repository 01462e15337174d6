// Package config provides configuration management for hoard.
// It handles loading, validating and saving the YAML configuration file,
// which holds the sync settings and the per-provider credentials.
package config

import (
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/glorpus-work/hoard/pkg/errors"
	"github.com/glorpus-work/hoard/pkg/fsutil"
	"github.com/glorpus-work/hoard/pkg/provider"
	"github.com/glorpus-work/hoard/pkg/provider/httpapi"
	"github.com/glorpus-work/hoard/pkg/retry"
)

// Config represents the application configuration.
type Config struct {
	// Provider configuration
	Providers []*ProviderConfig `yaml:"providers"`

	// General settings
	Settings Settings `yaml:"settings"`
}

// ProviderConfig holds the local configuration of one provider.
type ProviderConfig struct {
	ID string `yaml:"id"`
	// Enabled defaults to true when omitted.
	Enabled  *bool             `yaml:"enabled,omitempty"`
	Auth     *AuthConfig       `yaml:"auth,omitempty"`
	Settings map[string]string `yaml:"settings,omitempty"`
}

// IsEnabled reports whether the provider takes part in syncs.
func (p *ProviderConfig) IsEnabled() bool {
	return p.Enabled == nil || *p.Enabled
}

// Settings represents general application settings.
type Settings struct {
	// Storage settings
	RootDir   string `yaml:"root_dir,omitempty"`
	StateDir  string `yaml:"state_dir,omitempty"`
	PluginDir string `yaml:"plugin_dir,omitempty"`

	// Transfer settings
	Concurrency       int           `yaml:"concurrency"`
	ChunkSize         int64         `yaml:"chunk_size"`
	MaxAttempts       int           `yaml:"max_attempts"`
	RetryBaseDelay    time.Duration `yaml:"retry_base_delay"`
	RetryMaxDelay     time.Duration `yaml:"retry_max_delay"`
	MaxRateLimitWaits int           `yaml:"max_rate_limit_waits"`
	HTTPTimeout       time.Duration `yaml:"http_timeout"`
	UserAgent         string        `yaml:"user_agent,omitempty"`

	// TrustedKeys are hex encoded ed25519 keys accepted in addition to the built-in anchor.
	TrustedKeys []string `yaml:"trusted_keys,omitempty"`

	// Output settings
	OutputFormat string `yaml:"output_format"` // text, json
	LogLevel     string `yaml:"log_level"`     // error, warn, info, debug
}

// Default configuration values.
const (
	DefaultConcurrency       = 3
	DefaultChunkSize         = 4 << 20
	DefaultMaxAttempts       = 5
	DefaultRetryBaseDelay    = time.Second
	DefaultRetryMaxDelay     = 30 * time.Second
	DefaultMaxRateLimitWaits = 10

	// DefaultHTTPTimeout bounds a single HTTP exchange.
	DefaultHTTPTimeout = 30 * time.Second
	DefaultUserAgent   = "hoard/1.0"

	// YAMLIndent is the number of spaces to use for YAML indentation.
	YAMLIndent = 2
)

// DefaultConfig returns a configuration with sensible defaults.
func DefaultConfig() *Config {
	dataDir, err := fsutil.GetDataDir()
	if err != nil {
		dataDir = filepath.Join(os.TempDir(), fsutil.AppName)
	}
	rootDir, err := fsutil.GetLibraryDir()
	if err != nil {
		rootDir = filepath.Join(dataDir, "library")
	}

	return &Config{
		Providers: []*ProviderConfig{},
		Settings: Settings{
			RootDir:           rootDir,
			StateDir:          dataDir,
			PluginDir:         filepath.Join(dataDir, "plugins"),
			Concurrency:       DefaultConcurrency,
			ChunkSize:         DefaultChunkSize,
			MaxAttempts:       DefaultMaxAttempts,
			RetryBaseDelay:    DefaultRetryBaseDelay,
			RetryMaxDelay:     DefaultRetryMaxDelay,
			MaxRateLimitWaits: DefaultMaxRateLimitWaits,
			HTTPTimeout:       DefaultHTTPTimeout,
			UserAgent:         DefaultUserAgent,
			OutputFormat:      "text",
			LogLevel:          "info",
		},
	}
}

// LoadConfig loads configuration from a file. A missing file yields the defaults.
func LoadConfig(path string) (*Config, error) {
	if path == "" {
		return nil, errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return nil, errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	file, err := os.Open(absPath)
	if err != nil {
		if os.IsNotExist(err) {
			return DefaultConfig(), nil
		}
		return nil, errors.Wrapf(err, "failed to open config file: %s", path)
	}
	defer func() { _ = file.Close() }()

	return LoadConfigFromReader(file)
}

// LoadConfigFromReader loads configuration from an io.Reader.
func LoadConfigFromReader(reader io.Reader) (*Config, error) {
	data, err := io.ReadAll(reader)
	if err != nil {
		return nil, errors.Wrap(err, "failed to read config data")
	}

	var config Config
	if err := yaml.Unmarshal(data, &config); err != nil {
		return nil, fmt.Errorf("%w: %s", errors.ErrConfigParse, err.Error())
	}

	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %w", errors.ErrConfigValidation, err)
	}

	return &config, nil
}

// SaveConfig writes the configuration to path through a temporary file that
// replaces the target atomically.
func (c *Config) SaveConfig(path string) error {
	if path == "" {
		return errors.ErrEmptyConfigPath
	}

	absPath, err := filepath.Abs(path)
	if err != nil {
		return errors.Wrap(errors.ErrInvalidConfigPath, err.Error())
	}

	if err := os.MkdirAll(filepath.Dir(absPath), fsutil.DirModeSecure); err != nil {
		return errors.Wrap(errors.ErrConfigDirectory, err.Error())
	}

	// The file holds credentials.
	tempPath := absPath + ".tmp"
	file, err := os.OpenFile(tempPath, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, fsutil.FileModeSecure)
	if err != nil {
		return errors.Wrap(errors.ErrConfigFileCreate, err.Error())
	}

	encoder := yaml.NewEncoder(file)
	encoder.SetIndent(YAMLIndent)

	if err := encoder.Encode(c); err != nil {
		_ = file.Close()
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigEncode, err.Error())
	}

	_ = encoder.Close()
	_ = file.Close()

	if err := os.Rename(tempPath, absPath); err != nil {
		_ = os.Remove(tempPath)
		return errors.Wrap(errors.ErrConfigFileRename, err.Error())
	}

	if err := os.Chmod(absPath, fsutil.FileModeSecure); err != nil {
		return errors.Wrap(errors.ErrConfigFileChmod, err.Error())
	}

	return nil
}

// ToYAML converts the config to YAML bytes.
func (c *Config) ToYAML() ([]byte, error) {
	data, err := yaml.Marshal(c)
	if err != nil {
		return nil, errors.Wrap(errors.ErrConfigMarshal, err.Error())
	}
	return data, nil
}

// Validate checks if the configuration is valid.
func (c *Config) Validate() error {
	if c == nil {
		return errors.ErrConfigValidation
	}
	if err := validateProviders(c.Providers); err != nil {
		return err
	}
	return validateSettings(c.Settings)
}

func validateProviders(providers []*ProviderConfig) error {
	ids := make(map[string]bool)
	for i, p := range providers {
		if p == nil || p.ID == "" {
			return errors.ErrEmptyProviderIDWithIndex(i)
		}
		if ids[p.ID] {
			return errors.ErrProviderExistsWithID(p.ID)
		}
		ids[p.ID] = true
	}
	return nil
}

func validateSettings(s Settings) error {
	if s.Concurrency < 1 {
		return errors.ErrConcurrencyInvalid
	}
	if s.ChunkSize < 1 {
		return errors.ErrChunkSizeInvalid
	}
	if s.MaxAttempts < 1 {
		return errors.ErrMaxAttemptsInvalid
	}
	if s.HTTPTimeout < 0 {
		return errors.ErrHTTPTimeoutNegative
	}
	validFormats := map[string]bool{"text": true, "json": true}
	if !validFormats[s.OutputFormat] {
		return errors.ErrInvalidOutputFormatWithDetails(s.OutputFormat)
	}
	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(s.LogLevel)] {
		return errors.ErrInvalidLogLevelWithDetails(s.LogLevel)
	}
	for _, k := range s.TrustedKeys {
		if _, err := provider.ParsePublicKey(k); err != nil {
			return errors.Wrap(err, "trusted_keys")
		}
	}
	return nil
}

// GetDefaultConfigPath returns the default configuration file path.
func GetDefaultConfigPath() (string, error) {
	configDir, err := os.UserConfigDir()
	if err != nil {
		return "", fmt.Errorf("failed to get user config directory: %w", err)
	}
	return filepath.Join(configDir, fsutil.AppName, "config.yaml"), nil
}

// AddProvider adds a provider entry.
// Returns an error if an entry with the same id already exists.
func (c *Config) AddProvider(id string) (*ProviderConfig, error) {
	if id == "" {
		return nil, errors.ErrEmptyProviderID
	}
	if c.GetProvider(id) != nil {
		return nil, errors.ErrProviderExistsWithID(id)
	}
	p := &ProviderConfig{ID: id}
	c.Providers = append(c.Providers, p)
	return p, nil
}

// RemoveProvider removes a provider entry.
func (c *Config) RemoveProvider(id string) bool {
	for i, p := range c.Providers {
		if p.ID == id {
			c.Providers = append(c.Providers[:i], c.Providers[i+1:]...)
			return true
		}
	}
	return false
}

// GetProvider gets a provider entry by id.
func (c *Config) GetProvider(id string) *ProviderConfig {
	for _, p := range c.Providers {
		if p.ID == id {
			return p
		}
	}
	return nil
}

// SetProviderEnabled records the enabled flag of a provider, adding an entry
// when none exists.
func (c *Config) SetProviderEnabled(id string, enabled bool) error {
	p := c.GetProvider(id)
	if p == nil {
		var err error
		if p, err = c.AddProvider(id); err != nil {
			return err
		}
	}
	p.Enabled = &enabled
	return nil
}

// ProviderEnabled reports whether a provider takes part in syncs. Providers
// without an entry are enabled.
func (c *Config) ProviderEnabled(id string) bool {
	if p := c.GetProvider(id); p != nil {
		return p.IsEnabled()
	}
	return true
}

// ProviderSettings returns the local settings of a provider, including the
// refresh token of a bearer credential.
func (c *Config) ProviderSettings(id string) map[string]string {
	p := c.GetProvider(id)
	if p == nil {
		return nil
	}
	settings := make(map[string]string, len(p.Settings)+1)
	for k, v := range p.Settings {
		settings[k] = v
	}
	if p.Auth != nil && p.Auth.BearerAuth != nil && p.Auth.BearerAuth.RefreshToken != "" {
		settings[httpapi.SettingRefreshToken] = p.Auth.BearerAuth.RefreshToken
	}
	return settings
}

// GetCatalogPath returns the path of the catalog database.
func (c *Config) GetCatalogPath() string {
	return filepath.Join(c.Settings.StateDir, "catalog.db")
}

// RetryConfig returns the retry policy of the transfer engine and the reconciler.
func (c *Config) RetryConfig() retry.Config {
	cfg := retry.DefaultConfig()
	cfg.MaxAttempts = c.Settings.MaxAttempts
	cfg.InitialWait = c.Settings.RetryBaseDelay
	cfg.MaxWait = c.Settings.RetryMaxDelay
	cfg.MaxRateLimitWaits = c.Settings.MaxRateLimitWaits
	return cfg
}

// applyDefaults fills in missing values with defaults.
func (c *Config) applyDefaults() {
	defaults := DefaultConfig()
	s := &c.Settings

	if s.RootDir == "" {
		s.RootDir = defaults.Settings.RootDir
	}
	if s.StateDir == "" {
		s.StateDir = defaults.Settings.StateDir
	}
	if s.PluginDir == "" {
		s.PluginDir = filepath.Join(s.StateDir, "plugins")
	}
	if s.Concurrency == 0 {
		s.Concurrency = defaults.Settings.Concurrency
	}
	if s.ChunkSize == 0 {
		s.ChunkSize = defaults.Settings.ChunkSize
	}
	if s.MaxAttempts == 0 {
		s.MaxAttempts = defaults.Settings.MaxAttempts
	}
	if s.RetryBaseDelay == 0 {
		s.RetryBaseDelay = defaults.Settings.RetryBaseDelay
	}
	if s.RetryMaxDelay == 0 {
		s.RetryMaxDelay = defaults.Settings.RetryMaxDelay
	}
	if s.MaxRateLimitWaits == 0 {
		s.MaxRateLimitWaits = defaults.Settings.MaxRateLimitWaits
	}
	if s.HTTPTimeout == 0 {
		s.HTTPTimeout = defaults.Settings.HTTPTimeout
	}
	if s.UserAgent == "" {
		s.UserAgent = defaults.Settings.UserAgent
	}
	if s.OutputFormat == "" {
		s.OutputFormat = defaults.Settings.OutputFormat
	}
	if s.LogLevel == "" {
		s.LogLevel = defaults.Settings.LogLevel
	}
}
