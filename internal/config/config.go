package config

import (
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"
)

// Config represents the application configuration
type Config struct {
	Backend         BackendConfig   `yaml:"backend" toml:"backend"`
	Reconnect       ReconnectConfig `yaml:"reconnect" toml:"reconnect"`
	Registry        RegistryConfig  `yaml:"registry" toml:"registry"`
	Expire          *Duration       `yaml:"expire" toml:"expire"`       // Global default TTL
	ExpireAt        *Timestamp      `yaml:"expire_at" toml:"expire_at"` // Global default absolute expiry
	EntitySpec      EntitySpecs     `yaml:"entityspec" toml:"entityspec"`
	IDs             string          `yaml:"ids" toml:"ids"` // "uuid" or "nanoid"
	CleanupInterval Duration        `yaml:"cleanup_interval" toml:"cleanup_interval"`
	Events          EventsConfig    `yaml:"events" toml:"events"`
	Log             LogConfig       `yaml:"log" toml:"log"`
	Script          string          `yaml:"script" toml:"script"`
	ShutdownTimeout Duration        `yaml:"shutdown_timeout" toml:"shutdown_timeout"`
}

// Backend types
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// BackendConfig selects and configures the key-value store
type BackendConfig struct {
	Type   string       `yaml:"type" toml:"type"`
	SQLite SQLiteConfig `yaml:"sqlite" toml:"sqlite"`
	Redis  RedisConfig  `yaml:"redis" toml:"redis"`
}

// SQLiteConfig contains SQLite backend settings
type SQLiteConfig struct {
	Path string `yaml:"path" toml:"path"`
}

// RedisConfig contains Redis connection settings.
// URL ("redis://[:password@]host:port[/db]") takes priority over Addr.
type RedisConfig struct {
	URL         string   `yaml:"url" toml:"url"`
	Addr        string   `yaml:"addr" toml:"addr"`
	Password    string   `yaml:"password" toml:"password"`
	DB          int      `yaml:"db" toml:"db"`
	DialTimeout Duration `yaml:"dial_timeout" toml:"dial_timeout"`
}

// ReconnectConfig contains backoff settings used after a connection drops
type ReconnectConfig struct {
	MinWait    Duration `yaml:"min_wait" toml:"min_wait"`     // default: 16ms
	MaxWait    Duration `yaml:"max_wait" toml:"max_wait"`     // default: 65336ms
	Multiplier float64  `yaml:"multiplier" toml:"multiplier"` // default: 2.0
}

// RegistryConfig contains type map registry settings
type RegistryConfig struct {
	Table string `yaml:"table" toml:"table"`
}

// EventsConfig contains change feed settings. An empty URL disables publishing.
type EventsConfig struct {
	NATSURL       string `yaml:"nats_url" toml:"nats_url"`
	SubjectPrefix string `yaml:"subject_prefix" toml:"subject_prefix"`
}

// LogConfig contains logging settings
type LogConfig struct {
	Level  string `yaml:"level" toml:"level"`
	Colors bool   `yaml:"colors" toml:"colors"`
	JSON   bool   `yaml:"json" toml:"json"`
}

// EntitySpec is the expiry setting of the entity types matching Pattern
// ("base/name", "-" or "*" for any).
type EntitySpec struct {
	Pattern  string     `yaml:"pattern" toml:"pattern"`
	Expire   *Duration  `yaml:"expire" toml:"expire"`
	ExpireAt *Timestamp `yaml:"expire_at" toml:"expire_at"`
}

// EntitySpecs keeps declaration order, which breaks ties between equally
// specific patterns.
type EntitySpecs []EntitySpec

// UnmarshalYAML accepts a list of specs or a mapping of pattern to spec.
func (s *EntitySpecs) UnmarshalYAML(value *yaml.Node) error {
	if value.Kind == yaml.SequenceNode {
		var list []EntitySpec
		if err := value.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	}

	if value.Kind != yaml.MappingNode {
		return fmt.Errorf("entityspec: expected mapping or list at line %d", value.Line)
	}

	specs := make(EntitySpecs, 0, len(value.Content)/2)
	for i := 0; i+1 < len(value.Content); i += 2 {
		var spec EntitySpec
		if err := value.Content[i+1].Decode(&spec); err != nil {
			return fmt.Errorf("entityspec %q: %w", value.Content[i].Value, err)
		}
		spec.Pattern = value.Content[i].Value
		specs = append(specs, spec)
	}
	*s = specs
	return nil
}

// Duration is a wrapper around time.Duration accepting "1m30s" strings or
// plain numbers of seconds
type Duration time.Duration

// UnmarshalYAML implements yaml.Unmarshaler for Duration
func (d *Duration) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" || value.Tag == "!!float" {
		var secs float64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*d = Duration(secs * float64(time.Second))
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	*d = Duration(parsed)
	return nil
}

// UnmarshalTOML implements toml.Unmarshaler for Duration
func (d *Duration) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case string:
		parsed, err := time.ParseDuration(val)
		if err != nil {
			return err
		}
		*d = Duration(parsed)
	case int64:
		*d = Duration(time.Duration(val) * time.Second)
	case float64:
		*d = Duration(val * float64(time.Second))
	default:
		return fmt.Errorf("invalid duration %v", v)
	}
	return nil
}

// Duration returns the underlying time.Duration
func (d Duration) Duration() time.Duration {
	return time.Duration(d)
}

// Ptr returns the duration as a pointer, nil for a nil receiver
func (d *Duration) Ptr() *time.Duration {
	if d == nil {
		return nil
	}
	v := time.Duration(*d)
	return &v
}

// Timestamp is an absolute time given as unix seconds or RFC 3339
type Timestamp time.Time

// UnmarshalYAML implements yaml.Unmarshaler for Timestamp
func (t *Timestamp) UnmarshalYAML(value *yaml.Node) error {
	if value.Tag == "!!int" {
		var secs int64
		if err := value.Decode(&secs); err != nil {
			return err
		}
		*t = Timestamp(time.Unix(secs, 0).UTC())
		return nil
	}

	var s string
	if err := value.Decode(&s); err != nil {
		return err
	}
	parsed, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return err
	}
	*t = Timestamp(parsed)
	return nil
}

// UnmarshalTOML implements toml.Unmarshaler for Timestamp
func (t *Timestamp) UnmarshalTOML(v any) error {
	switch val := v.(type) {
	case time.Time:
		*t = Timestamp(val)
	case int64:
		*t = Timestamp(time.Unix(val, 0).UTC())
	case string:
		parsed, err := time.Parse(time.RFC3339, val)
		if err != nil {
			return err
		}
		*t = Timestamp(parsed)
	default:
		return fmt.Errorf("invalid timestamp %v", v)
	}
	return nil
}

// Ptr returns the timestamp as a pointer, nil for a nil receiver
func (t *Timestamp) Ptr() *time.Time {
	if t == nil {
		return nil
	}
	v := time.Time(*t)
	return &v
}

// Load reads and parses the configuration file.
// Files ending in .toml are decoded as TOML, anything else as YAML.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables
	expanded := expandEnvVars(string(data))

	var cfg Config
	if strings.EqualFold(filepath.Ext(path), ".toml") {
		if _, err := toml.Decode(expanded, &cfg); err != nil {
			return nil, err
		}
	} else {
		if err := yaml.Unmarshal([]byte(expanded), &cfg); err != nil {
			return nil, err
		}
	}

	applyDefaults(&cfg)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Default returns the configuration used when no file is given
func Default() *Config {
	var cfg Config
	applyDefaults(&cfg)
	return &cfg
}

func applyDefaults(cfg *Config) {
	if cfg.Log.Level == "" {
		cfg.Log.Level = "info"
	}

	// Backend defaults
	if cfg.Backend.Type == "" {
		cfg.Backend.Type = BackendMemory
	}
	if cfg.Backend.SQLite.Path == "" {
		cfg.Backend.SQLite.Path = "./entkv.sqlite"
	}
	if cfg.Backend.Redis.Addr == "" {
		cfg.Backend.Redis.Addr = "localhost:6379"
	}
	if cfg.Backend.Redis.DialTimeout == 0 {
		cfg.Backend.Redis.DialTimeout = Duration(5 * time.Second)
	}

	// Reconnect defaults
	if cfg.Reconnect.MinWait == 0 {
		cfg.Reconnect.MinWait = Duration(16 * time.Millisecond)
	}
	if cfg.Reconnect.MaxWait == 0 {
		cfg.Reconnect.MaxWait = Duration(65336 * time.Millisecond)
	}
	if cfg.Reconnect.Multiplier == 0 {
		cfg.Reconnect.Multiplier = 2.0
	}

	if cfg.Registry.Table == "" {
		cfg.Registry.Table = "entity_type_map"
	}
	if cfg.IDs == "" {
		cfg.IDs = "uuid"
	}
	if cfg.CleanupInterval == 0 {
		cfg.CleanupInterval = Duration(time.Minute)
	}
	if cfg.Events.SubjectPrefix == "" {
		cfg.Events.SubjectPrefix = "entkv"
	}

	// General shutdown timeout
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = Duration(5 * time.Second)
	}
}

// Validate checks values that have no sensible fallback
func (c *Config) Validate() error {
	switch c.Backend.Type {
	case BackendMemory, BackendSQLite, BackendRedis:
	default:
		return fmt.Errorf("unknown backend type %q", c.Backend.Type)
	}
	if c.Reconnect.MinWait > c.Reconnect.MaxWait {
		return fmt.Errorf("reconnect.min_wait %s exceeds max_wait %s",
			c.Reconnect.MinWait.Duration(), c.Reconnect.MaxWait.Duration())
	}
	if c.Reconnect.Multiplier < 1 {
		return fmt.Errorf("reconnect.multiplier must be >= 1, got %v", c.Reconnect.Multiplier)
	}
	if c.CleanupInterval <= 0 {
		return fmt.Errorf("cleanup_interval must be positive, got %s", c.CleanupInterval.Duration())
	}
	for _, spec := range c.EntitySpec {
		if spec.Pattern == "" {
			return fmt.Errorf("entityspec entry without pattern")
		}
	}
	return nil
}

// expandEnvVars expands environment variables in the format ${VAR} or ${VAR:default}
func expandEnvVars(input string) string {
	// Match ${VAR} or ${VAR:default}
	re := regexp.MustCompile(`\$\{([^}:]+)(?::([^}]*))?\}`)

	return re.ReplaceAllStringFunc(input, func(match string) string {
		parts := re.FindStringSubmatch(match)
		if len(parts) < 2 {
			return match
		}

		varName := parts[1]
		defaultVal := ""
		if len(parts) >= 3 {
			defaultVal = parts[2]
		}

		if val := os.Getenv(varName); val != "" {
			return val
		}
		return defaultVal
	})
}
