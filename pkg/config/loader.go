package config

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"strconv"
	"strings"

	"github.com/BurntSushi/toml"
	"gopkg.in/yaml.v3"

	"notifier/pkg/proto"
)

var envVarRegex = regexp.MustCompile(`\$\{([^}]+)\}`)

// Environment variables that override file values.
const (
	EnvVarProfile         = "ENV"
	EnvVarCheckInterval   = "NOTIFIER_CHECK_INTERVAL_SEC"
	EnvVarDBPath          = "NOTIFIER_DB_PATH"
	EnvVarLogDir          = "NOTIFIER_LOG_DIR"
	EnvVarMetricsAddr     = "NOTIFIER_METRICS_ADDR"
	EnvVarLogLevel        = "NOTIFIER_LOG_LEVEL"
	EnvVarMailboxCapacity = "NOTIFIER_MAILBOX_CAPACITY"
)

// DefaultAgents is one instance of every agent type the notifier ships.
func DefaultAgents() []AgentConfig {
	var agents []AgentConfig
	for _, t := range proto.AllAgentTypes() {
		if t == proto.AgentTypeABTesting {
			continue
		}
		agents = append(agents, AgentConfig{Type: t, Count: 1})
	}
	return agents
}

// Default returns the configuration for the profile named by $ENV.
func Default() *Config {
	return ForEnv(os.Getenv(EnvVarProfile))
}

// ForEnv returns the built-in configuration for a profile. Unknown or empty
// names fall back to development.
func ForEnv(env string) *Config {
	cfg := &Config{
		Env:                EnvDevelopment,
		LogLevel:           DefaultDevelopmentLogLevel,
		Debug:              true,
		CheckIntervalSec:   DefaultCheckIntervalSec,
		ShutdownTimeoutSec: DefaultShutdownTimeoutSec,
		Notifications: NotificationConfig{
			MaxPerDay:       DefaultMaxPerDay,
			CooldownMinutes: DefaultCooldownMinutes,
		},
		Storage: StorageConfig{
			DBPath:      DefaultDBPath,
			LogDir:      DefaultLogDir,
			AuditBuffer: DefaultAuditBuffer,
		},
		Metrics: MetricsConfig{
			Enabled: true,
			Addr:    DefaultMetricsAddr,
		},
		Agents: DefaultAgents(),
	}

	switch strings.ToLower(env) {
	case EnvTesting:
		cfg.Env = EnvTesting
		cfg.Metrics.Enabled = false
	case EnvProduction:
		cfg.Env = EnvProduction
		cfg.Debug = false
		cfg.LogLevel = DefaultProductionLogLevel
		cfg.Notifications.MaxPerDay = DefaultProductionMaxPerDay
	}
	return cfg
}

// Load reads configPath on top of the $ENV profile defaults, applies
// environment overrides and validates the result. YAML is used for .yaml and
// .yml files, TOML for .toml, JSON otherwise. An empty path loads the profile defaults alone.
// ${VAR} placeholders in the file are replaced from the environment.
func Load(configPath string) (*Config, error) {
	cfg := Default()

	if configPath != "" {
		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
		expanded := envVarRegex.ReplaceAllStringFunc(string(data), func(match string) string {
			if value := os.Getenv(match[2 : len(match)-1]); value != "" {
				return value
			}
			return match
		})
		if err := decode(configPath, []byte(expanded), cfg); err != nil {
			return nil, err
		}
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, err
	}
	applyDefaults(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}
	return cfg, nil
}

func decode(path string, data []byte, cfg *Config) error {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config YAML: %w", err)
		}
	case ".toml":
		if _, err := toml.Decode(string(data), cfg); err != nil {
			return fmt.Errorf("failed to parse config TOML: %w", err)
		}
	default:
		if err := json.Unmarshal(data, cfg); err != nil {
			return fmt.Errorf("failed to parse config JSON: %w", err)
		}
	}
	return nil
}

func applyEnvOverrides(cfg *Config) error {
	strs := map[string]*string{
		EnvVarDBPath:      &cfg.Storage.DBPath,
		EnvVarLogDir:      &cfg.Storage.LogDir,
		EnvVarMetricsAddr: &cfg.Metrics.Addr,
		EnvVarLogLevel:    &cfg.LogLevel,
	}
	for key, dst := range strs {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}

	ints := map[string]*int{
		EnvVarCheckInterval:   &cfg.CheckIntervalSec,
		EnvVarMailboxCapacity: &cfg.MailboxCapacity,
	}
	for key, dst := range ints {
		v := os.Getenv(key)
		if v == "" {
			continue
		}
		n, err := strconv.Atoi(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%w: %s=%q is not an integer", ErrInvalid, key, v)
		}
		*dst = n
	}
	return nil
}

// applyDefaults fills zero values a file may have left out.
func applyDefaults(cfg *Config) {
	if cfg.LogLevel == "" {
		cfg.LogLevel = DefaultStandardLogLevel
	}
	if cfg.ShutdownTimeoutSec == 0 {
		cfg.ShutdownTimeoutSec = DefaultShutdownTimeoutSec
	}
	if cfg.Storage.AuditBuffer == 0 {
		cfg.Storage.AuditBuffer = DefaultAuditBuffer
	}
	if cfg.Metrics.Enabled && cfg.Metrics.Addr == "" {
		cfg.Metrics.Addr = DefaultMetricsAddr
	}
	for i := range cfg.Agents {
		if cfg.Agents[i].Count == 0 {
			cfg.Agents[i].Count = 1
		}
	}
}

// Validate checks the configuration. Every error wraps ErrInvalid.
func (c *Config) Validate() error {
	if c.CheckIntervalSec <= 0 {
		return fmt.Errorf("%w: check_interval_sec must be positive, got %d", ErrInvalid, c.CheckIntervalSec)
	}
	if c.MailboxCapacity < 0 {
		return fmt.Errorf("%w: mailbox_capacity cannot be negative", ErrInvalid)
	}
	if c.Notifications.MaxPerDay < 0 {
		return fmt.Errorf("%w: max_notifications_per_day cannot be negative", ErrInvalid)
	}
	if c.Notifications.CooldownMinutes < 0 {
		return fmt.Errorf("%w: cooldown_minutes cannot be negative", ErrInvalid)
	}
	if c.Storage.AuditBuffer < 0 {
		return fmt.Errorf("%w: audit_buffer cannot be negative", ErrInvalid)
	}
	if c.ShutdownTimeoutSec < 0 {
		return fmt.Errorf("%w: shutdown_timeout_sec cannot be negative", ErrInvalid)
	}
	switch c.Env {
	case EnvDevelopment, EnvTesting, EnvProduction:
	default:
		return fmt.Errorf("%w: unknown env %q", ErrInvalid, c.Env)
	}

	for i, a := range c.Agents {
		if !proto.IsKnownAgentType(a.Type) {
			return fmt.Errorf("%w: agents[%d]: unknown agent type %q", ErrInvalid, i, a.Type)
		}
		if a.Count < 0 {
			return fmt.Errorf("%w: agents[%d]: count cannot be negative", ErrInvalid, i)
		}
		if a.CheckIntervalSec < 0 {
			return fmt.Errorf("%w: agents[%d]: check_interval_sec cannot be negative", ErrInvalid, i)
		}
	}
	return nil
}
