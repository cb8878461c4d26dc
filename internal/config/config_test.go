package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestDefaultIsValid(t *testing.T) {
	if err := Default().Validate(); err != nil {
		t.Fatalf("default config must validate: %v", err)
	}
}

func TestLoadOverridesDefaults(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	data := `
listen: ":9090"
partitions: 8
heartbeat_interval_ms: 5000
offset_retention: 24h
logging:
  level: debug
  format: text
metrics:
  enabled: false
`
	if err := os.WriteFile(path, []byte(data), 0o644); err != nil {
		t.Fatalf("write config: %v", err)
	}

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load failed: %v", err)
	}
	if cfg.Listen != ":9090" {
		t.Errorf("listen: got %q", cfg.Listen)
	}
	if cfg.Partitions != 8 {
		t.Errorf("partitions: got %d", cfg.Partitions)
	}
	if cfg.OffsetRetention.Std() != 24*time.Hour {
		t.Errorf("retention: got %s", cfg.OffsetRetention)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Errorf("logging: got %+v", cfg.Logging)
	}
	if cfg.Metrics.Enabled {
		t.Error("metrics must be disabled")
	}
	// Untouched fields keep their defaults.
	if cfg.Metrics.Namespace != "groupcoord" {
		t.Errorf("namespace default lost: got %q", cfg.Metrics.Namespace)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load(filepath.Join(t.TempDir(), "nope.yaml")); err == nil {
		t.Fatal("missing file must fail")
	}
}

func TestValidateAccumulatesErrors(t *testing.T) {
	cfg := Config{
		Listen:              "no-port",
		Partitions:          0,
		HeartbeatIntervalMs: -1,
		OffsetRetention:     Duration(-time.Hour),
		Logging:             LoggingConfig{Level: "loud", Format: "xml"},
		Metrics:             MetricsConfig{Enabled: true},
	}

	err := cfg.Validate()
	verr, ok := err.(*ValidationError)
	if !ok {
		t.Fatalf("want *ValidationError, got %T: %v", err, err)
	}
	if len(verr.Errors) != 7 {
		t.Errorf("error count: got %d, want 7\n%s", len(verr.Errors), verr.Error())
	}
	for _, want := range []string{"listen", "partitions", "heartbeat_interval_ms", "offset_retention", "logging.level", "logging.format", "metrics.namespace"} {
		if !strings.Contains(verr.Error(), want) {
			t.Errorf("missing %q in: %s", want, verr.Error())
		}
	}
}

func TestValidatePartitionCeiling(t *testing.T) {
	cfg := Default()
	cfg.Partitions = 4096
	if err := cfg.Validate(); err == nil {
		t.Fatal("oversized partition count must fail")
	}
}
