// Package config loads docflow.yaml.
package config

import (
	"encoding/hex"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"
)

// DefaultPath is the file looked up when no path is given.
const DefaultPath = "docflow.yaml"

// Store kinds.
const (
	StoreMemory = "memory"
	StoreFile   = "file"
	StoreRedis  = "redis"
	StoreSQLite = "sqlite"
)

// Chart source kinds.
const (
	SourceFile = "file"
	SourceLoam = "loam"
)

// Config is the root of docflow.yaml.
type Config struct {
	Charts    ChartsConfig    `yaml:"charts"`
	Store     StoreConfig     `yaml:"store"`
	Tasks     TasksConfig     `yaml:"tasks"`
	Lock      LockConfig      `yaml:"lock"`
	HTTP      HTTPConfig      `yaml:"http"`
	Log       LogConfig       `yaml:"log"`
	Scheduler SchedulerConfig `yaml:"scheduler"`
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ChartsConfig selects where charts are read from.
type ChartsConfig struct {
	Dir    string `yaml:"dir" validate:"required"`
	Source string `yaml:"source" validate:"oneof=file loam"`
	Watch  bool   `yaml:"watch"`
}

// StoreConfig selects the handle store.
type StoreConfig struct {
	Kind   string       `yaml:"kind" validate:"oneof=memory file redis sqlite"`
	Path   string       `yaml:"path"`
	Redis  RedisConfig  `yaml:"redis"`
	Secure SecureConfig `yaml:"secure"`
}

// RedisConfig is shared by the Redis store and the distributed lock.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db" validate:"min=0"`
	Prefix   string `yaml:"prefix"`
}

// SecureConfig wraps the store with encryption and PII masking.
// Keys are hex encoded 32 byte AES keys.
type SecureConfig struct {
	EncryptionKey string   `yaml:"encryption_key" validate:"omitempty,hexadecimal,len=64"`
	FallbackKeys  []string `yaml:"fallback_keys" validate:"dive,hexadecimal,len=64"`
	PIIPatterns   []string `yaml:"pii_patterns"`
}

// TasksConfig registers external commands as chart tasks. Commands run in
// Dir, or the current directory when empty.
type TasksConfig struct {
	File string `yaml:"file"`
	Dir  string `yaml:"dir"`
}

// LockConfig enables distributed locking through Redis.
type LockConfig struct {
	Distributed bool          `yaml:"distributed"`
	TTL         time.Duration `yaml:"ttl" validate:"gte=0"`
}

// HTTPConfig configures `docflow serve`.
type HTTPConfig struct {
	Addr string `yaml:"addr" validate:"required"`
}

// LogConfig sets the log level.
type LogConfig struct {
	Level string `yaml:"level" validate:"omitempty,oneof=debug info warn warning error"`
}

// SchedulerConfig drives due scheduled requests while serving.
type SchedulerConfig struct {
	Enabled bool   `yaml:"enabled"`
	Spec    string `yaml:"spec" validate:"required"`
}

// TelemetryConfig enables OpenTelemetry tracing over OTLP/HTTP. The exporter
// reads the standard OTEL_EXPORTER_OTLP_* variables when Endpoint is empty.
type TelemetryConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Endpoint    string `yaml:"endpoint"`
	Insecure    bool   `yaml:"insecure"`
	ServiceName string `yaml:"service_name" validate:"required"`
}

// Default returns the configuration used when no file exists.
func Default() *Config {
	return &Config{
		Charts:    ChartsConfig{Dir: "charts", Source: SourceFile},
		Store:     StoreConfig{Kind: StoreMemory, Redis: RedisConfig{Addr: "localhost:6379"}},
		Lock:      LockConfig{TTL: 30 * time.Second},
		HTTP:      HTTPConfig{Addr: ":8080"},
		Log:       LogConfig{Level: "info"},
		Scheduler: SchedulerConfig{Spec: "@every 1m"},
		Telemetry: TelemetryConfig{ServiceName: "docflow"},
	}
}

// Load reads path over the defaults and validates the result. A missing
// DefaultPath yields the defaults; any other missing file is an error.
func Load(path string) (*Config, error) {
	if path == "" {
		path = DefaultPath
	}
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) && path == DefaultPath {
			cfg := Default()
			return cfg, cfg.Validate()
		}
		return nil, fmt.Errorf("failed to read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("failed to parse config: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

func (c *Config) applyDefaults() {
	if c.Store.Path == "" {
		switch c.Store.Kind {
		case StoreFile:
			c.Store.Path = ".docflow/handles"
		case StoreSQLite:
			c.Store.Path = ".docflow/docflow.db"
		}
	}
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// Validate checks field values and the combinations between them.
func (c *Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return fmt.Errorf("invalid config: %s", verrs[0].Error())
		}
		return fmt.Errorf("invalid config: %w", err)
	}
	needsRedis := c.Store.Kind == StoreRedis || c.Lock.Distributed
	if needsRedis && c.Store.Redis.Addr == "" {
		return errors.New("invalid config: store.redis.addr is required for the redis store and distributed locks")
	}
	if len(c.Store.Secure.FallbackKeys) > 0 && c.Store.Secure.EncryptionKey == "" {
		return errors.New("invalid config: store.secure.fallback_keys require an encryption_key")
	}
	return nil
}

// EncryptionKeys decodes the active and fallback keys. The active key is nil
// when encryption is disabled.
func (s SecureConfig) EncryptionKeys() (active []byte, fallback [][]byte, err error) {
	if s.EncryptionKey == "" {
		return nil, nil, nil
	}
	if active, err = hex.DecodeString(s.EncryptionKey); err != nil {
		return nil, nil, fmt.Errorf("invalid encryption key: %w", err)
	}
	for i, k := range s.FallbackKeys {
		key, err := hex.DecodeString(k)
		if err != nil {
			return nil, nil, fmt.Errorf("invalid fallback key %d: %w", i, err)
		}
		fallback = append(fallback, key)
	}
	return active, fallback, nil
}
