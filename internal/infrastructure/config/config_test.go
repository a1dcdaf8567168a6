package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return path
}

func TestLoad_ValidConfig(t *testing.T) {
	path := writeConfig(t, `
site:
  id: "test-site"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "broker.local"
    port: 1883
    client_id: "test-client"
  qos: 1
  publish:
    connect_wait: 3s
    ack_timeout: 2s
    max_attempts: 4
    retry_delay: 250ms
gateways:
  stale_after: 30m
  sweep_interval: 5m
  cascade_devices: false
command:
  query_delay: 1500ms
code_tables:
  tables:
    gw-1:
      status: {"1": "running", "0": "stopped"}
      mode: {"0": "auto", "1": "cooling"}
`)

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Site.ID != "test-site" {
		t.Errorf("Site.ID = %q, want %q", cfg.Site.ID, "test-site")
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	if cfg.MQTT.Publish.ConnectWait != 3*time.Second {
		t.Errorf("Publish.ConnectWait = %v, want 3s", cfg.MQTT.Publish.ConnectWait)
	}
	if cfg.MQTT.Publish.MaxAttempts != 4 {
		t.Errorf("Publish.MaxAttempts = %d, want 4", cfg.MQTT.Publish.MaxAttempts)
	}
	if cfg.MQTT.Publish.RetryDelay != 250*time.Millisecond {
		t.Errorf("Publish.RetryDelay = %v, want 250ms", cfg.MQTT.Publish.RetryDelay)
	}
	if cfg.Gateways.StaleAfter != 30*time.Minute {
		t.Errorf("Gateways.StaleAfter = %v, want 30m", cfg.Gateways.StaleAfter)
	}
	if cfg.Gateways.CascadeDevices {
		t.Error("Gateways.CascadeDevices = true, want false")
	}
	if cfg.Command.QueryDelay != 1500*time.Millisecond {
		t.Errorf("Command.QueryDelay = %v, want 1.5s", cfg.Command.QueryDelay)
	}
	if got := cfg.CodeTables.Tables["gw-1"].Mode["1"]; got != "cooling" {
		t.Errorf("code table gw-1 mode 1 = %q, want cooling", got)
	}
}

func TestLoad_KeepsDefaultsForOmittedSections(t *testing.T) {
	path := writeConfig(t, "site:\n  id: \"s\"\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.MQTT.Publish.AckTimeout != 5*time.Second {
		t.Errorf("AckTimeout = %v, want default 5s", cfg.MQTT.Publish.AckTimeout)
	}
	if cfg.Command.QueryDelay != 2*time.Second {
		t.Errorf("QueryDelay = %v, want default 2s", cfg.Command.QueryDelay)
	}
	if cfg.Gateways.StaleAfter != time.Hour {
		t.Errorf("StaleAfter = %v, want default 1h", cfg.Gateways.StaleAfter)
	}
}

func TestLoad_ZeroQueryDelay(t *testing.T) {
	path := writeConfig(t, "site:\n  id: \"s\"\ncommand:\n  query_delay: 0s\n")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}
	if cfg.Command.QueryDelay != 0 {
		t.Errorf("QueryDelay = %v, want 0 (wait disabled)", cfg.Command.QueryDelay)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/path/config.yaml"); err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "invalid: [yaml: content")
	if _, err := Load(path); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	path := writeConfig(t, `
site:
  id: ""
database:
  path: "/tmp/test.db"
`)
	_, err := Load(path)
	if err == nil {
		t.Fatal("Load() expected validation error for empty site.id, got nil")
	}
	if !strings.Contains(err.Error(), "site.id") {
		t.Errorf("error %q should mention site.id", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr bool
	}{
		{name: "defaults are valid", mutate: func(*Config) {}},
		{name: "missing site ID", mutate: func(c *Config) { c.Site.ID = "" }, wantErr: true},
		{name: "missing database path", mutate: func(c *Config) { c.Database.Path = "" }, wantErr: true},
		{name: "missing broker host", mutate: func(c *Config) { c.MQTT.Broker.Host = "" }, wantErr: true},
		{name: "invalid port", mutate: func(c *Config) { c.MQTT.Broker.Port = 70000 }, wantErr: true},
		{name: "invalid QoS", mutate: func(c *Config) { c.MQTT.QoS = 3 }, wantErr: true},
		{name: "zero publish attempts", mutate: func(c *Config) { c.MQTT.Publish.MaxAttempts = 0 }, wantErr: true},
		{name: "zero ack timeout", mutate: func(c *Config) { c.MQTT.Publish.AckTimeout = 0 }, wantErr: true},
		{name: "negative query delay", mutate: func(c *Config) { c.Command.QueryDelay = -time.Second }, wantErr: true},
		{name: "sweep without stale threshold", mutate: func(c *Config) { c.Gateways.StaleAfter = 0 }, wantErr: true},
		{
			name: "sweep disabled without stale threshold",
			mutate: func(c *Config) {
				c.Gateways.StaleAfter = 0
				c.Gateways.SweepInterval = 0
			},
		},
		{name: "influx enabled without url", mutate: func(c *Config) { c.InfluxDB.Enabled = true }, wantErr: true},
		{
			name: "metrics enabled without listen",
			mutate: func(c *Config) {
				c.Metrics.Enabled = true
				c.Metrics.Listen = ""
			},
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if (err != nil) != tt.wantErr {
				t.Errorf("Validate() error = %v, wantErr %v", err, tt.wantErr)
			}
		})
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("HVACLINK_DATABASE_PATH", "/custom/path.db")
	t.Setenv("HVACLINK_MQTT_HOST", "mqtt.example.com")
	t.Setenv("HVACLINK_MQTT_USERNAME", "testuser")
	t.Setenv("HVACLINK_MQTT_PASSWORD", "testpass")
	t.Setenv("HVACLINK_CODE_TABLES_FILE", "/etc/hvaclink/codes.yaml")
	t.Setenv("HVACLINK_INFLUXDB_TOKEN", "secret-token")

	applyEnvOverrides(cfg)

	checks := map[string][2]string{
		"Database.Path":    {cfg.Database.Path, "/custom/path.db"},
		"MQTT.Broker.Host": {cfg.MQTT.Broker.Host, "mqtt.example.com"},
		"MQTT.Auth.User":   {cfg.MQTT.Auth.Username, "testuser"},
		"MQTT.Auth.Pass":   {cfg.MQTT.Auth.Password, "testpass"},
		"CodeTables.File":  {cfg.CodeTables.File, "/etc/hvaclink/codes.yaml"},
		"InfluxDB.Token":   {cfg.InfluxDB.Token, "secret-token"},
	}
	for name, c := range checks {
		if c[0] != c[1] {
			t.Errorf("%s = %q, want %q", name, c[0], c[1])
		}
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.MQTT.Publish.MaxAttempts != 3 {
		t.Errorf("Publish.MaxAttempts = %d, want 3", cfg.MQTT.Publish.MaxAttempts)
	}
	if !cfg.Gateways.CascadeDevices {
		t.Error("Gateways.CascadeDevices should default to true")
	}
}
