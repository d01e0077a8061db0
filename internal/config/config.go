// Package config handles miopubsub configuration loading.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultSearchPaths returns the config file search order.
// An explicit path (from -config flag) is checked first.
// Then: ./miopubsub.yaml, ~/.config/miopubsub/config.yaml,
// /config/miopubsub.yaml, /etc/miopubsub/config.yaml.
func DefaultSearchPaths() []string {
	paths := []string{"miopubsub.yaml"}

	if home, err := os.UserHomeDir(); err == nil {
		paths = append(paths, filepath.Join(home, ".config", "miopubsub", "config.yaml"))
	}

	paths = append(paths, "/config/miopubsub.yaml") // Container convention
	paths = append(paths, "/etc/miopubsub/config.yaml")
	return paths
}

// FindConfig locates a config file. If explicit is non-empty, it must exist.
// Otherwise, searches DefaultSearchPaths and returns the first that exists.
// Returns the path found, or an error if nothing was found.
func FindConfig(explicit string) (string, error) {
	if explicit != "" {
		if _, err := os.Stat(explicit); err != nil {
			return "", fmt.Errorf("config file not found: %s", explicit)
		}
		return explicit, nil
	}

	for _, p := range DefaultSearchPaths() {
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
	}

	return "", fmt.Errorf("no config file found (searched: %v)", DefaultSearchPaths())
}

// Config holds connection and tuning parameters for a miopubsub
// Connection (see internal/mio). Field names mirror the tunables named
// in spec.md §6; zero values are replaced by applyDefaults with the
// defaults given there.
type Config struct {
	// JID is the caller's address, "local@domain" or
	// "local@domain/resource" (without a resource, the session asks the
	// server to assign one when it binds).
	JID string `yaml:"jid"`
	// Password authenticates JID via SASL PLAIN.
	Password string `yaml:"password"`
	// PubsubService overrides the default "pubsub.<domain>" service
	// address derived from JID. Rarely needed.
	PubsubService string `yaml:"pubsub_service"`

	LogLevel string `yaml:"log_level"`

	KeepalivePeriodMS    int `yaml:"keepalive_period_ms"`
	MaxOpenRequests      int `yaml:"max_open_requests"`
	RequestTimeoutS      int `yaml:"request_timeout_s"`
	ReconnectBackoffS    int `yaml:"reconnect_backoff_s"`
	ReconnectMax         int `yaml:"reconnect_max"`
	SendRetries          int `yaml:"send_retries"`
	EventLoopTimeoutMS   int `yaml:"event_loop_timeout_ms"`
	SendRequestTimeoutUS int `yaml:"send_request_timeout_us"`
	NotifyQueueMax       int `yaml:"notify_queue_max"`
}

// Configured reports whether JID and Password are both present.
func (c Config) Configured() bool {
	return c.JID != "" && c.Password != ""
}

// Load reads configuration from a YAML file, expands environment
// variables, applies defaults for any unset fields, and validates
// the result. After Load returns successfully, all fields are usable
// without additional nil/zero checks.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	// Expand environment variables (e.g., ${MIOPUBSUB_PASSWORD}). This is
	// a convenience for container deployments; the recommended approach
	// is to put secrets directly in the config file with restricted
	// permissions.
	expanded := os.ExpandEnv(string(data))

	cfg := &Config{}
	if err := yaml.Unmarshal([]byte(expanded), cfg); err != nil {
		return nil, err
	}

	cfg.applyDefaults()

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation: %w", err)
	}

	return cfg, nil
}

// applyDefaults fills in zero-value fields with the defaults from
// spec.md §6. Called automatically by Load. After this, callers can
// read any field without checking for zero values.
func (c *Config) applyDefaults() {
	if c.KeepalivePeriodMS == 0 {
		c.KeepalivePeriodMS = 30000
	}
	if c.MaxOpenRequests == 0 {
		c.MaxOpenRequests = 100
	}
	if c.RequestTimeoutS == 0 {
		c.RequestTimeoutS = 1000
	}
	if c.ReconnectBackoffS == 0 {
		c.ReconnectBackoffS = 5
	}
	if c.ReconnectMax == 0 {
		// spec.md §9 Open Questions: the original sleeps indefinitely
		// when this is unset. We default to a finite cap instead.
		c.ReconnectMax = 12
	}
	if c.SendRetries == 0 {
		c.SendRetries = 3
	}
	if c.EventLoopTimeoutMS == 0 {
		c.EventLoopTimeoutMS = 1
	}
	if c.SendRequestTimeoutUS == 0 {
		c.SendRequestTimeoutUS = 1000
	}
	if c.NotifyQueueMax == 0 {
		c.NotifyQueueMax = 100
	}
}

// Validate checks that the configuration is internally consistent.
// It runs after applyDefaults, so it can assume defaults are populated.
// Returns an error describing the first problem found, or nil.
func (c *Config) Validate() error {
	if c.MaxOpenRequests < 1 {
		return fmt.Errorf("max_open_requests %d must be positive", c.MaxOpenRequests)
	}
	if c.NotifyQueueMax < 1 {
		return fmt.Errorf("notify_queue_max %d must be positive", c.NotifyQueueMax)
	}
	if c.SendRetries < 1 {
		return fmt.Errorf("send_retries %d must be positive", c.SendRetries)
	}
	if c.LogLevel != "" {
		if _, err := ParseLogLevel(c.LogLevel); err != nil {
			return err
		}
	}
	return nil
}

// KeepaliveInterval returns KeepalivePeriodMS as a [time.Duration].
func (c Config) KeepaliveInterval() time.Duration {
	return time.Duration(c.KeepalivePeriodMS) * time.Millisecond
}

// RequestTimeout returns RequestTimeoutS as a [time.Duration].
func (c Config) RequestTimeout() time.Duration {
	return time.Duration(c.RequestTimeoutS) * time.Second
}

// ReconnectBackoff returns ReconnectBackoffS as a [time.Duration].
func (c Config) ReconnectBackoff() time.Duration {
	return time.Duration(c.ReconnectBackoffS) * time.Second
}

// EventLoopTimeout returns EventLoopTimeoutMS as a [time.Duration].
func (c Config) EventLoopTimeout() time.Duration {
	return time.Duration(c.EventLoopTimeoutMS) * time.Millisecond
}

// SendRequestTimeout returns SendRequestTimeoutUS as a [time.Duration].
func (c Config) SendRequestTimeout() time.Duration {
	return time.Duration(c.SendRequestTimeoutUS) * time.Microsecond
}

// Default returns a default configuration with all tunables from
// spec.md §6 applied. JID and Password are left empty; the caller must
// set them before connecting.
func Default() *Config {
	cfg := &Config{}
	cfg.applyDefaults()
	return cfg
}
