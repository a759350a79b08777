// Copyright (c) 2024-2025 Jesse Morgan / Morgan Forge
// SPDX-License-Identifier: AGPL-3.0-or-later

package config

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"strings"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/morganforge/clerk/internal/util"
)

// =============================================================================
// CONFIG STRUCTURES
// =============================================================================

// Config represents the complete clerk configuration.
type Config struct {
	// Version tracks the config schema, not the application.
	Version string `toml:"version" json:"version"`

	// Assistant backend configuration
	Assistant AssistantConfig `toml:"assistant" json:"assistant"`

	// Storage configuration
	Storage StorageConfig `toml:"storage" json:"storage"`

	// Stream configuration
	Stream StreamConfig `toml:"stream" json:"stream"`

	// UI configuration
	UI UIConfig `toml:"ui" json:"ui"`
}

// AssistantConfig contains assistant backend configuration.
type AssistantConfig struct {
	// Endpoint is the base URL of the chat completion API.
	Endpoint string `toml:"endpoint" json:"endpoint"`
	// APIKey is the bearer credential for the endpoint.
	APIKey string `toml:"api_key" json:"api_key"`
	// Model is the model identifier sent with each request.
	Model string `toml:"model" json:"model"`
	// SystemPrompt is prepended to every conversation when set.
	SystemPrompt string `toml:"system_prompt" json:"system_prompt"`
	// TimeoutSecs bounds non-streaming requests. Streaming requests are
	// bounded by cancellation, not a timeout.
	TimeoutSecs int `toml:"timeout_secs" json:"timeout_secs"`
	// MaxRetries bounds retry attempts for transient failures.
	MaxRetries int `toml:"max_retries" json:"max_retries"`
}

// StorageConfig contains thread persistence configuration.
type StorageConfig struct {
	// Dir is the directory holding thread files and the search index
	// (empty = default ~/.clerk/threads).
	Dir string `toml:"dir" json:"dir"`
	// MaxThreads caps retained threads; oldest unarchived threads are
	// dropped past the cap (0 = default).
	MaxThreads int `toml:"max_threads" json:"max_threads"`
	// SearchIndex enables the sqlite message index for search.
	SearchIndex bool `toml:"search_index" json:"search_index"`
}

// StreamConfig contains streaming display configuration.
type StreamConfig struct {
	// MaxUpdatesPerSecond caps UI refreshes during streaming (0 = default).
	MaxUpdatesPerSecond float64 `toml:"max_updates_per_second" json:"max_updates_per_second"`
}

// UIConfig contains UI configuration.
type UIConfig struct {
	// Theme is the UI theme: "dark", "light", "auto"
	Theme string `toml:"theme" json:"theme"`
	// Markdown renders assistant responses as markdown when true.
	Markdown bool `toml:"markdown" json:"markdown"`
	// ShowStats displays response timing and token counts.
	ShowStats bool `toml:"show_stats" json:"show_stats"`
	// CompactMode uses a more compact UI layout
	CompactMode bool `toml:"compact_mode" json:"compact_mode"`
}

// =============================================================================
// DEFAULT CONFIGURATION
// =============================================================================

// Default returns a Config with sensible default values.
func Default() *Config {
	return &Config{
		Version: "1.0.0",

		Assistant: AssistantConfig{
			Endpoint:     "https://api.openai.com/v1",
			APIKey:       "",
			Model:        "gpt-4o-mini",
			SystemPrompt: "",
			TimeoutSecs:  60,
			MaxRetries:   3,
		},

		Storage: StorageConfig{
			Dir:         "", // resolved against the config dir at load
			MaxThreads:  100,
			SearchIndex: true,
		},

		Stream: StreamConfig{
			MaxUpdatesPerSecond: 30,
		},

		UI: UIConfig{
			Theme:       "dark",
			Markdown:    true,
			ShowStats:   true,
			CompactMode: false,
		},
	}
}

// =============================================================================
// CONFIG PATH HELPERS
// =============================================================================

// ConfigDir returns the clerk configuration directory path.
func ConfigDir() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("could not determine home directory: %w", err)
	}
	return filepath.Join(home, ".clerk"), nil
}

// ConfigPathTOML returns the path to the TOML config file.
func ConfigPathTOML() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.toml"), nil
}

// ConfigPathJSON returns the path to the JSON config file.
func ConfigPathJSON() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "config.json"), nil
}

// DefaultStorageDir returns the default thread storage directory.
func DefaultStorageDir() (string, error) {
	dir, err := ConfigDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, "threads"), nil
}

// EnsureConfigDir ensures the config directory exists.
func EnsureConfigDir() error {
	dir, err := ConfigDir()
	if err != nil {
		return err
	}
	return os.MkdirAll(dir, 0755)
}

// ensureSecurePermissions checks and fixes permissions on config files.
// The config holds the API key, so anything looser than 0600 is fixed.
func ensureSecurePermissions(path string) error {
	info, err := os.Stat(path)
	if err != nil {
		return err
	}

	mode := info.Mode().Perm()
	if mode != 0600 {
		if err := os.Chmod(path, 0600); err != nil {
			return fmt.Errorf("failed to fix insecure permissions (was %o): %w", mode, err)
		}
	}
	return nil
}

// =============================================================================
// LOAD FUNCTIONS
// =============================================================================

// Load loads configuration from the config file(s).
// Tries TOML first, then JSON, and falls back to defaults.
// Environment overrides are applied last.
func Load() (*Config, error) {
	cfg := Default()
	var loadErr error

	// Try TOML first
	tomlPath, err := ConfigPathTOML()
	if err == nil {
		if _, statErr := os.Stat(tomlPath); statErr == nil {
			if err := LoadTOML(cfg, tomlPath); err != nil {
				loadErr = fmt.Errorf("failed to load TOML config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	// Try JSON as fallback
	jsonPath, err := ConfigPathJSON()
	if err == nil {
		if _, statErr := os.Stat(jsonPath); statErr == nil {
			if err := LoadJSON(cfg, jsonPath); err != nil {
				loadErr = fmt.Errorf("failed to load JSON config: %w", err)
			} else {
				return finishLoad(cfg)
			}
		}
	}

	cfg, err = finishLoad(cfg)
	if err != nil {
		return nil, err
	}

	// Return defaults (with any load error for informational purposes)
	return cfg, loadErr
}

// finishLoad applies the post-parse pipeline shared by every load path.
func finishLoad(cfg *Config) (*Config, error) {
	cfg.ApplyEnvOverrides()
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

// LoadTOML loads configuration from a TOML file.
func LoadTOML(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		// Permissions might not be fixable on all systems; warn and move on.
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	_, err := toml.DecodeFile(path, cfg)
	if err != nil {
		return fmt.Errorf("failed to decode TOML file: %w", err)
	}
	return nil
}

// LoadJSON loads configuration from a JSON file.
func LoadJSON(cfg *Config, path string) error {
	if err := ensureSecurePermissions(path); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: could not ensure secure permissions on %s: %v\n", path, err)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read JSON file: %w", err)
	}
	if err := json.Unmarshal(data, cfg); err != nil {
		return fmt.Errorf("failed to decode JSON file: %w", err)
	}
	return nil
}

// LoadFromPath loads configuration from a specific file path with full
// validation.
func LoadFromPath(path string) (*Config, error) {
	cfg := Default()

	if strings.HasSuffix(path, ".json") {
		if err := LoadJSON(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load JSON config from %s: %w", path, err)
		}
	} else {
		if err := LoadTOML(cfg, path); err != nil {
			return nil, fmt.Errorf("failed to load TOML config from %s: %w", path, err)
		}
	}

	return finishLoad(cfg)
}

// =============================================================================
// SAVE FUNCTIONS
// =============================================================================

// Save saves the configuration to the default TOML file.
func Save(cfg *Config) error {
	path, err := ConfigPathTOML()
	if err != nil {
		return err
	}
	return SaveTOML(cfg, path)
}

// SaveTOML saves the configuration to a TOML file. The write is atomic
// and the file is created 0600 since it holds the API key.
func SaveTOML(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	var buf bytes.Buffer
	fmt.Fprintln(&buf, "# clerk configuration file")
	fmt.Fprintln(&buf, "# Generated by clerk - edit with care")
	fmt.Fprintln(&buf, "")

	if err := toml.NewEncoder(&buf).Encode(cfg); err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, buf.Bytes(), 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// SaveJSON saves the configuration to a JSON file.
func SaveJSON(cfg *Config, path string) error {
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("failed to create config directory: %w", err)
	}

	data, err := json.MarshalIndent(cfg, "", "  ")
	if err != nil {
		return fmt.Errorf("failed to encode config: %w", err)
	}

	if err := util.AtomicWriteFile(path, data, 0600); err != nil {
		return fmt.Errorf("failed to write config file: %w", err)
	}
	return nil
}

// =============================================================================
// VALIDATION
// =============================================================================

// ValidationError represents a configuration validation error.
type ValidationError struct {
	Field   string
	Message string
}

func (e ValidationError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidateErrors is a collection of validation errors.
type ValidateErrors []ValidationError

func (e ValidateErrors) Error() string {
	if len(e) == 0 {
		return "no validation errors"
	}
	var msgs []string
	for _, err := range e {
		msgs = append(msgs, err.Error())
	}
	return strings.Join(msgs, "; ")
}

// Validate validates the configuration and returns any errors.
func (c *Config) Validate() error {
	var errs ValidateErrors

	// Assistant settings
	if c.Assistant.Endpoint != "" {
		u, err := url.Parse(c.Assistant.Endpoint)
		if err != nil || u.Scheme == "" || u.Host == "" {
			errs = append(errs, ValidationError{
				Field:   "assistant.endpoint",
				Message: fmt.Sprintf("invalid URL '%s'", c.Assistant.Endpoint),
			})
		}
	}
	if c.Assistant.TimeoutSecs < 0 {
		errs = append(errs, ValidationError{
			Field:   "assistant.timeout_secs",
			Message: "must be non-negative",
		})
	}
	if c.Assistant.MaxRetries < 0 || c.Assistant.MaxRetries > 10 {
		errs = append(errs, ValidationError{
			Field:   "assistant.max_retries",
			Message: fmt.Sprintf("must be 0-10, got %d", c.Assistant.MaxRetries),
		})
	}

	// Storage settings
	if c.Storage.MaxThreads < 0 || c.Storage.MaxThreads > 10000 {
		errs = append(errs, ValidationError{
			Field:   "storage.max_threads",
			Message: fmt.Sprintf("must be 0-10000, got %d", c.Storage.MaxThreads),
		})
	}

	// Stream settings
	if c.Stream.MaxUpdatesPerSecond < 0 || c.Stream.MaxUpdatesPerSecond > 240 {
		errs = append(errs, ValidationError{
			Field:   "stream.max_updates_per_second",
			Message: fmt.Sprintf("must be 0-240, got %g", c.Stream.MaxUpdatesPerSecond),
		})
	}

	// UI settings
	validThemes := map[string]bool{"dark": true, "light": true, "auto": true}
	if !validThemes[strings.ToLower(c.UI.Theme)] {
		errs = append(errs, ValidationError{
			Field:   "ui.theme",
			Message: fmt.Sprintf("invalid theme '%s', must be one of: dark, light, auto", c.UI.Theme),
		})
	}

	if len(errs) > 0 {
		return errs
	}
	return nil
}

// SetDefaults sets default values for any missing or zero-value
// configuration fields.
func (c *Config) SetDefaults() {
	defaults := Default()

	if c.Version == "" {
		c.Version = defaults.Version
	}

	// Assistant defaults
	if c.Assistant.Endpoint == "" {
		c.Assistant.Endpoint = defaults.Assistant.Endpoint
	}
	if c.Assistant.Model == "" {
		c.Assistant.Model = defaults.Assistant.Model
	}
	if c.Assistant.TimeoutSecs == 0 {
		c.Assistant.TimeoutSecs = defaults.Assistant.TimeoutSecs
	}
	if c.Assistant.MaxRetries == 0 {
		c.Assistant.MaxRetries = defaults.Assistant.MaxRetries
	}

	// Storage defaults
	if c.Storage.Dir == "" {
		if dir, err := DefaultStorageDir(); err == nil {
			c.Storage.Dir = dir
		}
	}
	if c.Storage.MaxThreads == 0 {
		c.Storage.MaxThreads = defaults.Storage.MaxThreads
	}

	// Stream defaults
	if c.Stream.MaxUpdatesPerSecond == 0 {
		c.Stream.MaxUpdatesPerSecond = defaults.Stream.MaxUpdatesPerSecond
	}

	// UI defaults
	if c.UI.Theme == "" {
		c.UI.Theme = defaults.UI.Theme
	}
}

// =============================================================================
// ENVIRONMENT OVERRIDES
// =============================================================================

// ApplyEnvOverrides applies environment variable overrides to the config.
//
// Supported environment variables:
//   - CLERK_ENDPOINT: overrides assistant.endpoint
//   - CLERK_API_KEY: overrides assistant.api_key
//   - CLERK_MODEL: overrides assistant.model
//   - CLERK_SYSTEM_PROMPT: overrides assistant.system_prompt
//   - CLERK_DATA_DIR: overrides storage.dir
//   - CLERK_THEME: overrides ui.theme
//   - CLERK_NO_MARKDOWN: set to "1" or "true" to disable markdown rendering
func (c *Config) ApplyEnvOverrides() {
	if endpoint := os.Getenv("CLERK_ENDPOINT"); endpoint != "" {
		c.Assistant.Endpoint = endpoint
	}
	if key := os.Getenv("CLERK_API_KEY"); key != "" {
		c.Assistant.APIKey = key
	}
	if model := os.Getenv("CLERK_MODEL"); model != "" {
		c.Assistant.Model = model
	}
	if prompt := os.Getenv("CLERK_SYSTEM_PROMPT"); prompt != "" {
		c.Assistant.SystemPrompt = prompt
	}
	if dir := os.Getenv("CLERK_DATA_DIR"); dir != "" {
		c.Storage.Dir = dir
	}
	if theme := os.Getenv("CLERK_THEME"); theme != "" {
		c.UI.Theme = theme
	}
	if noMD := os.Getenv("CLERK_NO_MARKDOWN"); noMD != "" {
		if noMD == "1" || strings.ToLower(noMD) == "true" {
			c.UI.Markdown = false
		}
	}
}

// =============================================================================
// GET/SET HELPERS (DOT NOTATION)
// =============================================================================

// Get retrieves a configuration value using dot notation
// (e.g., "assistant.model").
func (c *Config) Get(key string) (interface{}, error) {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return nil, errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return nil, fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			return field.Interface(), nil
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return nil, fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return nil, fmt.Errorf("invalid key: %s", key)
}

// Set sets a configuration value using dot notation
// (e.g., "assistant.model").
func (c *Config) Set(key string, value interface{}) error {
	parts := strings.Split(key, ".")
	if len(parts) == 0 {
		return errors.New("empty key")
	}

	v := reflect.ValueOf(c).Elem()
	for i, part := range parts {
		fieldName := normalizeFieldName(part)

		field := v.FieldByNameFunc(func(name string) bool {
			return strings.EqualFold(name, fieldName)
		})

		if !field.IsValid() {
			return fmt.Errorf("unknown field: %s", strings.Join(parts[:i+1], "."))
		}

		if i == len(parts)-1 {
			if !field.CanSet() {
				return fmt.Errorf("cannot set field: %s", key)
			}
			return setFieldValue(field, value)
		}

		if field.Kind() == reflect.Struct {
			v = field
		} else {
			return fmt.Errorf("field '%s' is not a struct", strings.Join(parts[:i+1], "."))
		}
	}

	return fmt.Errorf("invalid key: %s", key)
}

// normalizeFieldName converts a snake_case or kebab-case name to its Go
// field equivalent.
func normalizeFieldName(name string) string {
	parts := strings.FieldsFunc(name, func(r rune) bool {
		return r == '_' || r == '-'
	})

	var result strings.Builder
	for _, part := range parts {
		if len(part) > 0 {
			result.WriteString(strings.ToUpper(string(part[0])))
			result.WriteString(strings.ToLower(part[1:]))
		}
	}

	return result.String()
}

// setFieldValue sets a reflect.Value from an interface{} value with type
// conversion.
func setFieldValue(field reflect.Value, value interface{}) error {
	// Handle string input with type conversion
	if strVal, ok := value.(string); ok {
		switch field.Kind() {
		case reflect.String:
			field.SetString(strVal)
			return nil
		case reflect.Int, reflect.Int64:
			intVal, err := strconv.ParseInt(strVal, 10, 64)
			if err != nil {
				return fmt.Errorf("invalid integer value: %v", err)
			}
			field.SetInt(intVal)
			return nil
		case reflect.Float64:
			floatVal, err := strconv.ParseFloat(strVal, 64)
			if err != nil {
				return fmt.Errorf("invalid float value: %v", err)
			}
			field.SetFloat(floatVal)
			return nil
		case reflect.Bool:
			boolVal := strVal == "1" || strings.ToLower(strVal) == "true" || strings.ToLower(strVal) == "yes"
			field.SetBool(boolVal)
			return nil
		}
	}

	// Direct assignment for matching types
	val := reflect.ValueOf(value)
	if val.Type().AssignableTo(field.Type()) {
		field.Set(val)
		return nil
	}

	// Type conversion for compatible types
	if val.Type().ConvertibleTo(field.Type()) {
		field.Set(val.Convert(field.Type()))
		return nil
	}

	return fmt.Errorf("cannot assign %T to %s", value, field.Type())
}

// GetAllKeys returns all configuration keys in dot notation.
func GetAllKeys() []string {
	return []string{
		"version",
		"assistant.endpoint",
		"assistant.api_key",
		"assistant.model",
		"assistant.system_prompt",
		"assistant.timeout_secs",
		"assistant.max_retries",
		"storage.dir",
		"storage.max_threads",
		"storage.search_index",
		"stream.max_updates_per_second",
		"ui.theme",
		"ui.markdown",
		"ui.show_stats",
		"ui.compact_mode",
	}
}

// =============================================================================
// HELPER FUNCTIONS
// =============================================================================

// Clone creates a copy of the configuration.
func (c *Config) Clone() *Config {
	clone := *c
	return &clone
}

// String returns a string representation of the config for debugging.
// The API key is redacted so config dumps are safe to log.
func (c *Config) String() string {
	safe := c.Clone()
	if safe.Assistant.APIKey != "" {
		safe.Assistant.APIKey = "[REDACTED]"
	}

	data, _ := json.MarshalIndent(safe, "", "  ")
	return string(data)
}

// =============================================================================
// SINGLETON PATTERN (THREAD-SAFE)
// =============================================================================

var (
	globalConfig     *Config
	globalConfigOnce sync.Once
	globalConfigMu   sync.RWMutex
)

// Global returns the global configuration instance.
// Loads configuration on first access. Thread-safe.
func Global() *Config {
	globalConfigOnce.Do(func() {
		cfg, err := Load()
		if err != nil {
			// Fall back to defaults rather than refusing to start.
			fmt.Fprintf(os.Stderr, "Warning: %v (using defaults)\n", err)
			cfg = Default()
			cfg.SetDefaults()
		}
		globalConfig = cfg
	})

	globalConfigMu.RLock()
	defer globalConfigMu.RUnlock()
	return globalConfig
}

// ReloadGlobal reloads the global configuration from disk. Thread-safe.
func ReloadGlobal() error {
	cfg, err := Load()
	if err != nil {
		return err
	}
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
	return nil
}

// SetGlobal sets the global configuration instance. Thread-safe.
func SetGlobal(cfg *Config) {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = cfg
}

// ResetGlobalForTesting resets the global config state for testing.
func ResetGlobalForTesting() {
	globalConfigMu.Lock()
	defer globalConfigMu.Unlock()
	globalConfig = nil
	globalConfigOnce = sync.Once{}
}
