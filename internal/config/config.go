package config

import (
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

const (
	DefaultAPIURL      = "http://127.0.0.1:7433"
	DefaultDataDirName = ".docvault"
	DefaultLogLevel    = "info"
	DBFileName         = "docvault.db"
	FileName           = ".docvault.toml"

	BlobBackendSQLite   = "sqlite"
	BlobBackendLocalCAS = "local_cas"

	DefaultSafetyMargin      = 0.02
	DefaultGCBatchSize       = 10
	DefaultGCCachePath       = "gc/refs.json"
	DefaultOfflineMaxBytes   = int64(50 << 20)
	DefaultOfflineMaxEntries = 100

	configDirEnvKey          = "DOCVAULT_CONFIG_DIR"
	trustProjectConfigEnvKey = "DOCVAULT_TRUST_PROJECT_CONFIG"
)

// BlobConfig configures the blob store.
type BlobConfig struct {
	Backend string `toml:"backend"`
	// QuotaBytes caps blob storage. Zero measures the data volume instead.
	QuotaBytes   int64   `toml:"quota_bytes"`
	SafetyMargin float64 `toml:"safety_margin"`
}

// GCConfig configures garbage collection.
type GCConfig struct {
	BatchSize    int  `toml:"batch_size"`
	IncludeIcons bool `toml:"include_icons"`
	// Schedule is a Go duration. Empty disables scheduled collection.
	Schedule  string `toml:"schedule"`
	CachePath string `toml:"cache_path"`
}

// OfflineConfig bounds the offline document cache.
type OfflineConfig struct {
	MaxBytes   int64 `toml:"max_bytes"`
	MaxEntries int   `toml:"max_entries"`
}

// AtomicConfig sets the default atomic write options for documents.
type AtomicConfig struct {
	Validate bool `toml:"validate"`
	Backup   bool `toml:"backup"`
}

// Config defines runtime configuration for docvault.
type Config struct {
	DataDir        string        `toml:"data_dir"`
	APIURL         string        `toml:"api_url"`
	LogLevel       string        `toml:"log_level"`
	AdminTokenHash string        `toml:"admin_token_hash"`
	Blobs          BlobConfig    `toml:"blobs"`
	GC             GCConfig      `toml:"gc"`
	Offline        OfflineConfig `toml:"offline"`
	Atomic         AtomicConfig  `toml:"atomic"`

	TrustedProjectConfigPath string `toml:"-"`
}

// Default returns default configuration values.
func Default() Config {
	return Config{
		APIURL:   DefaultAPIURL,
		LogLevel: DefaultLogLevel,
		Blobs: BlobConfig{
			Backend:      BlobBackendSQLite,
			SafetyMargin: DefaultSafetyMargin,
		},
		GC: GCConfig{
			BatchSize: DefaultGCBatchSize,
			CachePath: DefaultGCCachePath,
		},
		Offline: OfflineConfig{
			MaxBytes:   DefaultOfflineMaxBytes,
			MaxEntries: DefaultOfflineMaxEntries,
		},
		Atomic: AtomicConfig{
			Validate: true,
			Backup:   true,
		},
	}
}

// DBPath is the sqlite database inside the data directory.
func (c *Config) DBPath() string {
	return filepath.Join(c.DataDir, DBFileName)
}

// GCSchedule parses gc.schedule. Zero means disabled.
func (c *Config) GCSchedule() (time.Duration, error) {
	raw := strings.TrimSpace(c.GC.Schedule)
	if raw == "" {
		return 0, nil
	}
	d, err := time.ParseDuration(raw)
	if err != nil || d < 0 {
		return 0, fmt.Errorf("gc.schedule must be a positive duration, got %q", raw)
	}
	return d, nil
}

func loadFile(path string, cfg *Config) error {
	_, err := loadFileIfExists(path, cfg)
	return err
}

func loadFileIfExists(path string, cfg *Config) (bool, error) {
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return false, nil
		}
		return false, err
	}
	if info.IsDir() {
		return false, nil
	}
	if _, err := toml.DecodeFile(path, cfg); err != nil {
		return false, fmt.Errorf("failed to parse config %s: %w", path, err)
	}
	return true, nil
}

func overrideConfigPath() (string, bool) {
	dir := strings.TrimSpace(os.Getenv(configDirEnvKey))
	if dir == "" {
		return "", false
	}
	return filepath.Join(dir, FileName), true
}

func trustProjectConfig() bool {
	raw := strings.TrimSpace(os.Getenv(trustProjectConfigEnvKey))
	if raw == "" {
		return false
	}
	value, err := strconv.ParseBool(raw)
	if err != nil {
		return false
	}
	return value
}

var allowedKeys = []string{
	"data_dir",
	"api_url",
	"log_level",
	"admin_token_hash",
	"blobs.backend",
	"blobs.quota_bytes",
	"blobs.safety_margin",
	"gc.batch_size",
	"gc.include_icons",
	"gc.schedule",
	"gc.cache_path",
	"offline.max_bytes",
	"offline.max_entries",
	"atomic.validate",
	"atomic.backup",
}

// AllowedKeys returns the set of valid config keys.
func AllowedKeys() []string {
	return allowedKeys
}

// IsAllowedKey checks if a key is a valid config key.
func IsAllowedKey(key string) bool {
	for _, k := range allowedKeys {
		if k == key {
			return true
		}
	}
	return false
}

// Get returns the value of a config key.
func (c *Config) Get(key string) (string, error) {
	switch key {
	case "data_dir":
		return c.DataDir, nil
	case "api_url":
		return c.APIURL, nil
	case "log_level":
		return c.LogLevel, nil
	case "admin_token_hash":
		return c.AdminTokenHash, nil
	case "blobs.backend":
		return c.Blobs.Backend, nil
	case "blobs.quota_bytes":
		return strconv.FormatInt(c.Blobs.QuotaBytes, 10), nil
	case "blobs.safety_margin":
		return strconv.FormatFloat(c.Blobs.SafetyMargin, 'f', -1, 64), nil
	case "gc.batch_size":
		return strconv.Itoa(c.GC.BatchSize), nil
	case "gc.include_icons":
		return strconv.FormatBool(c.GC.IncludeIcons), nil
	case "gc.schedule":
		return c.GC.Schedule, nil
	case "gc.cache_path":
		return c.GC.CachePath, nil
	case "offline.max_bytes":
		return strconv.FormatInt(c.Offline.MaxBytes, 10), nil
	case "offline.max_entries":
		return strconv.Itoa(c.Offline.MaxEntries), nil
	case "atomic.validate":
		return strconv.FormatBool(c.Atomic.Validate), nil
	case "atomic.backup":
		return strconv.FormatBool(c.Atomic.Backup), nil
	default:
		return "", fmt.Errorf("unknown key: %s", key)
	}
}

// GlobalPath returns the path to the global config file.
func GlobalPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	home, err := os.UserHomeDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(home, FileName), nil
}

// ProjectPath returns the path to the project config file.
func ProjectPath() (string, error) {
	if path, ok := overrideConfigPath(); ok {
		return path, nil
	}
	cwd, err := os.Getwd()
	if err != nil {
		return "", err
	}
	return filepath.Join(cwd, FileName), nil
}

// SetKey reads the TOML file at path, sets key=value, and writes it back.
func SetKey(path, key, value string) error {
	if !IsAllowedKey(key) {
		return fmt.Errorf("unknown key: %s", key)
	}

	data := make(map[string]any)
	if _, err := os.Stat(path); err == nil {
		if _, err := toml.DecodeFile(path, &data); err != nil {
			return fmt.Errorf("parse %s: %w", path, err)
		}
	}

	parsedValue, err := parseSetValue(key, value)
	if err != nil {
		return err
	}
	if err := setNestedKey(data, strings.Split(key, "."), parsedValue); err != nil {
		return err
	}

	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return err
	}

	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()

	return toml.NewEncoder(f).Encode(data)
}

// Load reads config from trusted files and applies env overrides.
func Load() (*Config, error) {
	cfg := Default()

	if overridePath, ok := overrideConfigPath(); ok {
		if err := loadFile(overridePath, &cfg); err != nil {
			return nil, err
		}
	} else {
		if home, err := os.UserHomeDir(); err == nil {
			if err := loadFile(filepath.Join(home, FileName), &cfg); err != nil {
				return nil, err
			}
		}

		if trustProjectConfig() {
			if cwd, err := os.Getwd(); err == nil {
				projectPath := filepath.Join(cwd, FileName)
				info, statErr := os.Stat(projectPath)
				switch {
				case statErr == nil && !info.IsDir():
					if err := loadFile(projectPath, &cfg); err != nil {
						return nil, err
					}
					cfg.TrustedProjectConfigPath = projectPath
				case statErr != nil && !os.IsNotExist(statErr):
					return nil, statErr
				}
			}
		}
	}

	if cfg.DataDir == "" {
		if cwd, err := os.Getwd(); err == nil {
			cfg.DataDir = filepath.Join(cwd, DefaultDataDirName)
		}
	}

	if apiURL := os.Getenv("DOCVAULT_API_URL"); apiURL != "" {
		cfg.APIURL = apiURL
	}
	if dataDir := os.Getenv("DOCVAULT_DATA_DIR"); dataDir != "" {
		cfg.DataDir = dataDir
	}
	if backend := strings.TrimSpace(os.Getenv("DOCVAULT_BLOB_BACKEND")); backend != "" {
		cfg.Blobs.Backend = backend
	}
	if hash := strings.TrimSpace(os.Getenv("DOCVAULT_ADMIN_TOKEN_HASH")); hash != "" {
		cfg.AdminTokenHash = hash
	}

	cfg.normalize()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate rejects values the stores cannot run with.
func (c *Config) Validate() error {
	switch c.Blobs.Backend {
	case BlobBackendSQLite, BlobBackendLocalCAS:
	default:
		return fmt.Errorf("blobs.backend must be %q or %q, got %q", BlobBackendSQLite, BlobBackendLocalCAS, c.Blobs.Backend)
	}
	if c.Blobs.SafetyMargin < 0 || c.Blobs.SafetyMargin >= 1 {
		return fmt.Errorf("blobs.safety_margin must be in [0, 1), got %v", c.Blobs.SafetyMargin)
	}
	if _, err := c.GCSchedule(); err != nil {
		return err
	}
	return nil
}

func parseSetValue(key, value string) (any, error) {
	value = strings.TrimSpace(value)
	switch key {
	case "blobs.quota_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed < 0 {
			return nil, fmt.Errorf("%s must be a non-negative integer", key)
		}
		return parsed, nil
	case "offline.max_bytes":
		parsed, err := strconv.ParseInt(value, 10, 64)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return parsed, nil
	case "gc.batch_size", "offline.max_entries":
		parsed, err := strconv.Atoi(value)
		if err != nil || parsed <= 0 {
			return nil, fmt.Errorf("%s must be a positive integer", key)
		}
		return int64(parsed), nil
	case "blobs.safety_margin":
		parsed, err := strconv.ParseFloat(value, 64)
		if err != nil || parsed < 0 || parsed >= 1 {
			return nil, fmt.Errorf("%s must be a number in [0, 1)", key)
		}
		return parsed, nil
	case "gc.include_icons", "atomic.validate", "atomic.backup":
		parsed, err := strconv.ParseBool(value)
		if err != nil {
			return nil, fmt.Errorf("%s must be true or false", key)
		}
		return parsed, nil
	case "blobs.backend":
		if value != BlobBackendSQLite && value != BlobBackendLocalCAS {
			return nil, fmt.Errorf("%s must be %q or %q", key, BlobBackendSQLite, BlobBackendLocalCAS)
		}
		return value, nil
	case "gc.schedule":
		if value != "" {
			if d, err := time.ParseDuration(value); err != nil || d < 0 {
				return nil, fmt.Errorf("%s must be a duration such as 30m", key)
			}
		}
		return value, nil
	case "log_level":
		return strings.ToLower(value), nil
	default:
		return value, nil
	}
}

func setNestedKey(data map[string]any, parts []string, value any) error {
	if len(parts) == 0 {
		return fmt.Errorf("invalid config key")
	}
	if len(parts) == 1 {
		data[parts[0]] = value
		return nil
	}
	childRaw, ok := data[parts[0]]
	if !ok {
		child := map[string]any{}
		data[parts[0]] = child
		return setNestedKey(child, parts[1:], value)
	}
	child, ok := childRaw.(map[string]any)
	if !ok {
		return fmt.Errorf("cannot set nested key %q", strings.Join(parts, "."))
	}
	return setNestedKey(child, parts[1:], value)
}

func (c *Config) normalize() {
	c.LogLevel = strings.ToLower(strings.TrimSpace(c.LogLevel))
	if c.LogLevel == "" {
		c.LogLevel = DefaultLogLevel
	}
	c.Blobs.Backend = strings.ToLower(strings.TrimSpace(c.Blobs.Backend))
	if c.Blobs.Backend == "" {
		c.Blobs.Backend = BlobBackendSQLite
	}
	if c.GC.BatchSize <= 0 {
		c.GC.BatchSize = DefaultGCBatchSize
	}
	if strings.TrimSpace(c.GC.CachePath) == "" {
		c.GC.CachePath = DefaultGCCachePath
	}
	if c.Offline.MaxBytes <= 0 {
		c.Offline.MaxBytes = DefaultOfflineMaxBytes
	}
	if c.Offline.MaxEntries <= 0 {
		c.Offline.MaxEntries = DefaultOfflineMaxEntries
	}
}
