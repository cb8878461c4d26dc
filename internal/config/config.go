// =============================================================================
// CONFIGURATION - LOADING AND FAIL-FAST VALIDATION
// =============================================================================
//
// Config loads from YAML, starts from defaults, and validates at startup.
// Validation ACCUMULATES: every problem is reported in one pass, so the
// operator fixes the file once instead of replaying whack-a-mole.
//
// =============================================================================

package config

import (
	"fmt"
	"net"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Duration wraps time.Duration so YAML can express it as "24h" or "500ms".
type Duration time.Duration

// UnmarshalYAML accepts duration strings.
func (d *Duration) UnmarshalYAML(node *yaml.Node) error {
	var s string
	if err := node.Decode(&s); err != nil {
		return fmt.Errorf("duration must be a string like \"24h\": %w", err)
	}
	parsed, err := time.ParseDuration(s)
	if err != nil {
		return fmt.Errorf("invalid duration %q: %w", s, err)
	}
	*d = Duration(parsed)
	return nil
}

// Std converts to the standard library type.
func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

func (d Duration) String() string {
	return time.Duration(d).String()
}

// Config is the full coordinator service configuration.
type Config struct {
	// Listen is the HTTP listen address, host:port or :port.
	Listen string `yaml:"listen"`

	// Partitions is the number of coordinator shards. Changing it rehashes
	// group ownership, so it is fixed per deployment.
	Partitions int `yaml:"partitions"`

	// HeartbeatIntervalMs is handed to group members in heartbeat responses.
	HeartbeatIntervalMs int32 `yaml:"heartbeat_interval_ms"`

	// OffsetRetention bounds how long committed offsets are kept.
	OffsetRetention Duration `yaml:"offset_retention"`

	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
}

// LoggingConfig controls the slog setup.
type LoggingConfig struct {
	// Level is one of debug, info, warn, error.
	Level string `yaml:"level"`

	// Format is "json" or "text".
	Format string `yaml:"format"`
}

// MetricsConfig controls Prometheus exposure.
type MetricsConfig struct {
	Enabled   bool   `yaml:"enabled"`
	Namespace string `yaml:"namespace"`
}

// Default returns the configuration used when no file is given.
func Default() Config {
	return Config{
		Listen:              ":8080",
		Partitions:          16,
		HeartbeatIntervalMs: 3000,
		OffsetRetention:     Duration(7 * 24 * time.Hour),
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
		},
		Metrics: MetricsConfig{
			Enabled:   true,
			Namespace: "groupcoord",
		},
	}
}

// Load reads a YAML file over the defaults and validates the result.
func Load(path string) (Config, error) {
	cfg := Default()

	data, err := os.ReadFile(path)
	if err != nil {
		return cfg, fmt.Errorf("read config: %w", err)
	}
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return cfg, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return cfg, err
	}
	return cfg, nil
}

// ValidationError holds one or more configuration validation failures.
type ValidationError struct {
	Errors []string
}

func (e *ValidationError) Error() string {
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0])
	}
	var b strings.Builder
	b.WriteString("configuration validation failed:\n")
	for i, err := range e.Errors {
		fmt.Fprintf(&b, "  %d. %s\n", i+1, err)
	}
	return b.String()
}

// Validate checks the configuration for common mistakes. Returns nil if
// valid, or a *ValidationError listing every problem found.
func (c Config) Validate() error {
	var errs []string

	if c.Listen == "" {
		errs = append(errs, "listen: must not be empty")
	} else if err := validateAddress(c.Listen); err != nil {
		errs = append(errs, fmt.Sprintf("listen: invalid address %q: %v", c.Listen, err))
	}

	if c.Partitions <= 0 {
		errs = append(errs, fmt.Sprintf("partitions: must be > 0, got %d", c.Partitions))
	} else if c.Partitions > 1024 {
		errs = append(errs, fmt.Sprintf("partitions: %d exceeds the supported maximum of 1024", c.Partitions))
	}

	if c.HeartbeatIntervalMs <= 0 {
		errs = append(errs, fmt.Sprintf("heartbeat_interval_ms: must be > 0, got %d", c.HeartbeatIntervalMs))
	}

	if c.OffsetRetention < 0 {
		errs = append(errs, fmt.Sprintf("offset_retention: must not be negative, got %s", c.OffsetRetention))
	}

	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		errs = append(errs, fmt.Sprintf("logging.level: must be debug, info, warn, or error, got %q", c.Logging.Level))
	}

	switch c.Logging.Format {
	case "json", "text":
	default:
		errs = append(errs, fmt.Sprintf("logging.format: must be json or text, got %q", c.Logging.Format))
	}

	if c.Metrics.Enabled && c.Metrics.Namespace == "" {
		errs = append(errs, "metrics.namespace: must not be empty when metrics are enabled")
	}

	if len(errs) > 0 {
		return &ValidationError{Errors: errs}
	}
	return nil
}

// validateAddress checks that a string is a valid host:port or :port address.
func validateAddress(addr string) error {
	_, port, err := net.SplitHostPort(addr)
	if err != nil {
		return fmt.Errorf("must be host:port format: %w", err)
	}
	if port == "" {
		return fmt.Errorf("port must not be empty")
	}
	return nil
}
