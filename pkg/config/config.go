// Package config provides configuration loading, validation and environment
// profiles for the notifier.
package config

import (
	"errors"
	"time"
)

// Environment profiles, selected by the ENV variable.
const (
	EnvDevelopment = "development"
	EnvTesting     = "testing"
	EnvProduction  = "production"
)

// Defaults.
const (
	DefaultCheckIntervalSec     = 60
	DefaultMaxPerDay            = 10
	DefaultProductionMaxPerDay  = 20
	DefaultCooldownMinutes      = 30
	DefaultDBPath               = "notifier.db"
	DefaultLogDir               = "logs"
	DefaultMetricsAddr          = ":9090"
	DefaultAuditBuffer          = 256
	DefaultShutdownTimeoutSec   = 10
	DefaultProductionLogLevel   = "WARN"
	DefaultDevelopmentLogLevel  = "DEBUG"
	DefaultStandardLogLevel     = "INFO"
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid configuration")

// AgentConfig describes one group of identical agents. A zero Count means one.
type AgentConfig struct {
	Type             string `json:"type" yaml:"type" toml:"type"`
	Name             string `json:"name,omitempty" yaml:"name,omitempty" toml:"name,omitempty"`
	Count            int    `json:"count,omitempty" yaml:"count,omitempty" toml:"count,omitempty"`
	CheckIntervalSec int    `json:"check_interval_sec,omitempty" yaml:"check_interval_sec,omitempty" toml:"check_interval_sec,omitempty"`
}

// NotificationConfig holds the per-user delivery limits.
type NotificationConfig struct {
	MaxPerDay       int `json:"max_notifications_per_day" yaml:"max_notifications_per_day" toml:"max_notifications_per_day"`
	CooldownMinutes int `json:"cooldown_minutes" yaml:"cooldown_minutes" toml:"cooldown_minutes"`
}

// Cooldown returns the minimum spacing between two deliveries to one user.
func (n NotificationConfig) Cooldown() time.Duration {
	return time.Duration(n.CooldownMinutes) * time.Minute
}

// StorageConfig locates the audit trail.
type StorageConfig struct {
	DBPath      string `json:"db_path" yaml:"db_path" toml:"db_path"`
	LogDir      string `json:"log_dir" yaml:"log_dir" toml:"log_dir"`
	AuditBuffer int    `json:"audit_buffer" yaml:"audit_buffer" toml:"audit_buffer"`
}

// MetricsConfig controls Prometheus collection and the HTTP listener. Addr
// serves /health and /status whether or not metrics are enabled; /metrics is
// added when Enabled is set. An empty Addr disables the listener.
type MetricsConfig struct {
	Enabled bool   `json:"enabled" yaml:"enabled" toml:"enabled"`
	Addr    string `json:"addr" yaml:"addr" toml:"addr"`
}

// Config is the top-level notifier configuration.
type Config struct {
	Env                string             `json:"env" yaml:"env" toml:"env"`
	LogLevel           string             `json:"log_level" yaml:"log_level" toml:"log_level"`
	Storage            StorageConfig      `json:"storage" yaml:"storage" toml:"storage"`
	Metrics            MetricsConfig      `json:"metrics" yaml:"metrics" toml:"metrics"`
	Agents             []AgentConfig      `json:"agents" yaml:"agents" toml:"agents"`
	DebugDomains       []string           `json:"debug_domains,omitempty" yaml:"debug_domains,omitempty" toml:"debug_domains,omitempty"`
	Notifications      NotificationConfig `json:"notifications" yaml:"notifications" toml:"notifications"`
	CheckIntervalSec   int                `json:"check_interval_sec" yaml:"check_interval_sec" toml:"check_interval_sec"`
	MailboxCapacity    int                `json:"mailbox_capacity" yaml:"mailbox_capacity" toml:"mailbox_capacity"`
	ShutdownTimeoutSec int                `json:"shutdown_timeout_sec" yaml:"shutdown_timeout_sec" toml:"shutdown_timeout_sec"`
	Debug              bool               `json:"debug" yaml:"debug" toml:"debug"`
}

// CheckInterval returns the default loop interval.
func (c *Config) CheckInterval() time.Duration {
	return time.Duration(c.CheckIntervalSec) * time.Second
}

// IntervalFor returns the loop interval for one agent group, falling back to
// the global interval.
func (c *Config) IntervalFor(a AgentConfig) time.Duration {
	if a.CheckIntervalSec > 0 {
		return time.Duration(a.CheckIntervalSec) * time.Second
	}
	return c.CheckInterval()
}

// ShutdownTimeout bounds how long the process waits for agent loops to exit.
func (c *Config) ShutdownTimeout() time.Duration {
	return time.Duration(c.ShutdownTimeoutSec) * time.Second
}

// TotalAgents counts the agent instances the config asks for.
func (c *Config) TotalAgents() int {
	n := 0
	for _, a := range c.Agents {
		n += max(1, a.Count)
	}
	return n
}
