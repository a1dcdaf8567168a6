package config

import (
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for HVAC Link Core.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Database   DatabaseConfig   `yaml:"database"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Gateways   GatewaysConfig   `yaml:"gateways"`
	Command    CommandConfig    `yaml:"command"`
	CodeTables CodeTablesConfig `yaml:"code_tables"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	Metrics    MetricsConfig    `yaml:"metrics"`
	Logging    LoggingConfig    `yaml:"logging"`
}

// SiteConfig contains site-specific information.
type SiteConfig struct {
	ID   string `yaml:"id"`
	Name string `yaml:"name"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Broker  MQTTBrokerConfig  `yaml:"broker"`
	Auth    MQTTAuthConfig    `yaml:"auth"`
	QoS     int               `yaml:"qos"`
	Publish MQTTPublishConfig `yaml:"publish"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`

	// KeepAlive is the MQTT keepalive interval.
	KeepAlive time.Duration `yaml:"keep_alive"`

	// ConnectTimeout bounds a single connect attempt.
	ConnectTimeout time.Duration `yaml:"connect_timeout"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTPublishConfig bounds the publish path.
//
// A publish on a disconnected session first triggers a connect and then
// polls the connected flag for up to ConnectWait. Each attempt waits up to
// AckTimeout for the broker acknowledgement. Failed attempts are retried
// until MaxAttempts is reached, sleeping RetryDelay between attempts.
type MQTTPublishConfig struct {
	ConnectWait time.Duration `yaml:"connect_wait"`
	AckTimeout  time.Duration `yaml:"ack_timeout"`
	MaxAttempts int           `yaml:"max_attempts"`
	RetryDelay  time.Duration `yaml:"retry_delay"`
}

// GatewaysConfig contains gateway presence settings.
type GatewaysConfig struct {
	// StaleAfter marks a gateway offline when nothing was heard from it for this long.
	StaleAfter time.Duration `yaml:"stale_after"`

	// SweepInterval is how often the staleness sweep runs. Zero disables the sweep.
	SweepInterval time.Duration `yaml:"sweep_interval"`

	// CascadeDevices propagates explicit online/offline events to the gateway's devices.
	CascadeDevices bool `yaml:"cascade_devices"`
}

// CommandConfig contains control dispatch settings.
type CommandConfig struct {
	// QueryDelay is the pause between a control write and its follow-up status query.
	// Default 2s when omitted; 0s sends the query immediately.
	QueryDelay time.Duration `yaml:"query_delay"`
}

// CodeTablesConfig locates the per-gateway code tables.
//
// Tables may come from a separate YAML file, inline, or both. Inline entries
// replace file entries for the same gateway. Gateways listed in Standard use
// the stock table unless they also have an explicit entry.
type CodeTablesConfig struct {
	File     string                     `yaml:"file"`
	Standard []string                   `yaml:"standard"`
	Tables   map[string]CodeTableConfig `yaml:"tables"`
}

// CodeTableConfig maps raw protocol codes to semantic values for one gateway.
type CodeTableConfig struct {
	Status map[string]string `yaml:"status"`
	Mode   map[string]string `yaml:"mode"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled       bool   `yaml:"enabled"`
	URL           string `yaml:"url"`
	Token         string `yaml:"token"`
	Org           string `yaml:"org"`
	Bucket        string `yaml:"bucket"`
	BatchSize     int    `yaml:"batch_size"`
	FlushInterval int    `yaml:"flush_interval"`
}

// MetricsConfig contains Prometheus exposition settings.
type MetricsConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`
	Format string `yaml:"format"`
	Output string `yaml:"output"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: HVACLINK_SECTION_KEY
// For example: HVACLINK_DATABASE_PATH, HVACLINK_MQTT_HOST
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// Default returns the built-in configuration with environment overrides applied.
// It is used by commands that can run without a config file.
func Default() *Config {
	cfg := defaultConfig()
	applyEnvOverrides(cfg)
	return cfg
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:   "site-001",
			Name: "HVAC Link",
		},
		Database: DatabaseConfig{
			Path:        "./data/hvaclink.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:           "localhost",
				Port:           1883,
				ClientID:       "hvaclink-core",
				KeepAlive:      60 * time.Second,
				ConnectTimeout: 10 * time.Second,
			},
			QoS: 1,
			Publish: MQTTPublishConfig{
				ConnectWait: 5 * time.Second,
				AckTimeout:  5 * time.Second,
				MaxAttempts: 3,
				RetryDelay:  time.Second,
			},
		},
		Gateways: GatewaysConfig{
			StaleAfter:     time.Hour,
			SweepInterval:  time.Hour,
			CascadeDevices: true,
		},
		Command: CommandConfig{
			QueryDelay: 2 * time.Second,
		},
		Metrics: MetricsConfig{
			Listen: "127.0.0.1:9102",
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("HVACLINK_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}

	if v := os.Getenv("HVACLINK_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("HVACLINK_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("HVACLINK_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	if v := os.Getenv("HVACLINK_CODE_TABLES_FILE"); v != "" {
		cfg.CodeTables.File = v
	}

	if v := os.Getenv("HVACLINK_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
}

// Validate checks the configuration for errors.
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}

	if c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}

	if c.MQTT.Broker.Host == "" {
		errs = append(errs, "mqtt.broker.host is required")
	}
	if c.MQTT.Broker.Port < 1 || c.MQTT.Broker.Port > 65535 {
		errs = append(errs, "mqtt.broker.port must be between 1 and 65535")
	}
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.MQTT.Publish.MaxAttempts < 1 {
		errs = append(errs, "mqtt.publish.max_attempts must be at least 1")
	}
	if c.MQTT.Publish.AckTimeout <= 0 {
		errs = append(errs, "mqtt.publish.ack_timeout must be positive")
	}
	if c.MQTT.Publish.RetryDelay < 0 {
		errs = append(errs, "mqtt.publish.retry_delay cannot be negative")
	}

	if c.Gateways.SweepInterval > 0 && c.Gateways.StaleAfter <= 0 {
		errs = append(errs, "gateways.stale_after must be positive when the sweep is enabled")
	}

	if c.Command.QueryDelay < 0 {
		errs = append(errs, "command.query_delay cannot be negative")
	}

	if c.InfluxDB.Enabled && c.InfluxDB.URL == "" {
		errs = append(errs, "influxdb.url is required when influxdb is enabled")
	}

	if c.Metrics.Enabled && c.Metrics.Listen == "" {
		errs = append(errs, "metrics.listen is required when metrics are enabled")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}
