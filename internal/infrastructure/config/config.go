package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// DefaultPath is where the service looks for its configuration file when
// EQUIPSTATUS_CONFIG is not set.
const DefaultPath = "configs/config.yaml"

// Storage drivers.
const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverBadger   = "badger"
)

// Config is the root configuration structure for the equipment status service.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Storage   StorageConfig   `yaml:"storage"`
	Database  DatabaseConfig  `yaml:"database"`
	Postgres  PostgresConfig  `yaml:"postgres"`
	Badger    BadgerConfig    `yaml:"badger"`
	Equipment EquipmentConfig `yaml:"equipment"`
	API       APIConfig       `yaml:"api"`
	MQTT      MQTTConfig      `yaml:"mqtt"`
	NATS      NATSConfig      `yaml:"nats"`
	InfluxDB  InfluxDBConfig  `yaml:"influxdb"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// StorageConfig selects the state store backend.
type StorageConfig struct {
	// Driver is one of sqlite, postgres or badger.
	Driver string `yaml:"driver"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL pool settings.
type PostgresConfig struct {
	DSN             string `yaml:"dsn"`
	MaxConns        int32  `yaml:"max_conns"`
	MinConns        int32  `yaml:"min_conns"`
	MaxConnLifetime int    `yaml:"max_conn_lifetime"` // seconds
	MaxConnIdleTime int    `yaml:"max_conn_idle_time"`
}

// BadgerConfig contains embedded key-value store settings.
type BadgerConfig struct {
	Path       string `yaml:"path"`
	InMemory   bool   `yaml:"in_memory"`
	SyncWrites bool   `yaml:"sync_writes"`
}

// EquipmentConfig contains domain settings.
type EquipmentConfig struct {
	// States is the closed set of operational state names.
	States []string `yaml:"states"`

	// SeedSampleData inserts the sample history into an empty store.
	SeedSampleData bool `yaml:"seed_sample_data"`

	// DefaultTimezone is the IANA zone for timestamps written without an
	// offset. "Local" uses the host zone.
	DefaultTimezone string `yaml:"default_timezone"`
}

// APIConfig contains HTTP API server settings.
type APIConfig struct {
	Host         string           `yaml:"host"`
	Port         int              `yaml:"port"`
	Timeouts     APITimeoutConfig `yaml:"timeouts"`
	CORS         CORSConfig       `yaml:"cors"`
	MaxBodyBytes int64            `yaml:"max_body_bytes"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// CORSConfig contains Cross-Origin Resource Sharing settings.
type CORSConfig struct {
	AllowedOrigins []string `yaml:"allowed_origins"`
	AllowedMethods []string `yaml:"allowed_methods"`
	AllowedHeaders []string `yaml:"allowed_headers"`
}

// MQTTConfig contains MQTT broker connection settings.
type MQTTConfig struct {
	Enabled   bool                `yaml:"enabled"`
	Broker    MQTTBrokerConfig    `yaml:"broker"`
	Auth      MQTTAuthConfig      `yaml:"auth"`
	QoS       int                 `yaml:"qos"`
	Reconnect MQTTReconnectConfig `yaml:"reconnect"`
	Ingest    MQTTIngestConfig    `yaml:"ingest"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings in seconds.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// MQTTIngestConfig controls the state report subscription.
type MQTTIngestConfig struct {
	// Topic is the subscription filter. A single-level wildcard may stand
	// for the equipment identifier. Empty subscribes to every
	// equipstatus/equipment/{id}/report topic.
	Topic string `yaml:"topic"`
}

// NATSConfig contains NATS connection and ingest settings.
type NATSConfig struct {
	Enabled        bool   `yaml:"enabled"`
	URL            string `yaml:"url"`
	Name           string `yaml:"name"`
	Subject        string `yaml:"subject"`
	QueueGroup     string `yaml:"queue_group"`
	ConnectTimeout int    `yaml:"connect_timeout"` // seconds
	Token          string `yaml:"token"`
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

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`
}

// FileLoggingConfig contains rotating file settings used when Output is "file".
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"` // megabytes
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"` // days
	Compress   bool   `yaml:"compress"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: EQUIPSTATUS_SECTION_KEY
// For example: EQUIPSTATUS_DATABASE_PATH, EQUIPSTATUS_API_PORT
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	return load(path, false)
}

// LoadOptional is Load, except that a missing file is not an error: the
// defaults and environment overrides apply alone.
func LoadOptional(path string) (*Config, error) {
	return load(path, true)
}

// FromEnvironment loads the file named by EQUIPSTATUS_CONFIG, or the
// optional file at DefaultPath when the variable is unset.
func FromEnvironment() (*Config, error) {
	if path := os.Getenv("EQUIPSTATUS_CONFIG"); path != "" {
		return Load(path)
	}
	return LoadOptional(DefaultPath)
}

func load(path string, optional bool) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	switch {
	case err == nil:
		if err := yaml.Unmarshal(data, cfg); err != nil {
			return nil, fmt.Errorf("parsing config file: %w", err)
		}
	case optional && errors.Is(err, fs.ErrNotExist):
		// Defaults only.
	default:
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := applyEnvOverrides(cfg); err != nil {
		return nil, fmt.Errorf("applying environment overrides: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		Storage: StorageConfig{
			Driver: DriverSQLite,
		},
		Database: DatabaseConfig{
			Path:        "./data/equipstatus.db",
			WALMode:     true,
			BusyTimeout: 5,
		},
		Postgres: PostgresConfig{
			MaxConns:        5,
			MinConns:        1,
			MaxConnLifetime: 1800,
			MaxConnIdleTime: 300,
		},
		Badger: BadgerConfig{
			Path: "./data/badger",
		},
		Equipment: EquipmentConfig{
			States:          []string{"Running", "Stopped", "Transitioning"},
			SeedSampleData:  true,
			DefaultTimezone: "Local",
		},
		API: APIConfig{
			Host: "0.0.0.0",
			Port: 8080,
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
			MaxBodyBytes: 1 << 20,
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "equipstatus",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			Ingest: MQTTIngestConfig{
				Topic: "equipstatus/equipment/+/report",
			},
		},
		NATS: NATSConfig{
			URL:            "nats://localhost:4222",
			Name:           "equipstatus",
			Subject:        "equipment.report",
			QueueGroup:     "equipstatus",
			ConnectTimeout: 5,
		},
		InfluxDB: InfluxDBConfig{
			URL:           "http://localhost:8086",
			Bucket:        "equipment",
			BatchSize:     100,
			FlushInterval: 10,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
			File: FileLoggingConfig{
				Path:       "./logs/equipstatus.log",
				MaxSize:    15,
				MaxBackups: 10,
				MaxAge:     30,
				Compress:   true,
			},
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: EQUIPSTATUS_SECTION_KEY
func applyEnvOverrides(cfg *Config) error {
	// Storage
	if v := os.Getenv("EQUIPSTATUS_STORAGE_DRIVER"); v != "" {
		cfg.Storage.Driver = v
	}
	if v := os.Getenv("EQUIPSTATUS_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("EQUIPSTATUS_POSTGRES_DSN"); v != "" {
		cfg.Postgres.DSN = v
	}
	if v := os.Getenv("EQUIPSTATUS_BADGER_PATH"); v != "" {
		cfg.Badger.Path = v
	}

	// API
	if v := os.Getenv("EQUIPSTATUS_API_HOST"); v != "" {
		cfg.API.Host = v
	}
	if v := os.Getenv("EQUIPSTATUS_API_PORT"); v != "" {
		port, err := strconv.Atoi(v)
		if err != nil {
			return fmt.Errorf("EQUIPSTATUS_API_PORT: %w", err)
		}
		cfg.API.Port = port
	}

	// MQTT
	if v := os.Getenv("EQUIPSTATUS_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("EQUIPSTATUS_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("EQUIPSTATUS_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// NATS
	if v := os.Getenv("EQUIPSTATUS_NATS_URL"); v != "" {
		cfg.NATS.URL = v
	}

	// InfluxDB
	if v := os.Getenv("EQUIPSTATUS_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}

	// Logging
	if v := os.Getenv("EQUIPSTATUS_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}

	return nil
}

// Validate checks the configuration for errors.
// All problems are reported together.
//
// Returns:
//   - error: Description of validation failure, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	// Storage
	switch c.Storage.Driver {
	case DriverSQLite:
		if c.Database.Path == "" {
			errs = append(errs, "database.path is required for the sqlite driver")
		}
	case DriverPostgres:
		if c.Postgres.DSN == "" {
			errs = append(errs, "postgres.dsn is required for the postgres driver (set EQUIPSTATUS_POSTGRES_DSN)")
		}
		if c.Postgres.MaxConns < 1 {
			errs = append(errs, "postgres.max_conns must be at least 1")
		}
	case DriverBadger:
		if c.Badger.Path == "" && !c.Badger.InMemory {
			errs = append(errs, "badger.path is required unless badger.in_memory is set")
		}
	default:
		errs = append(errs, fmt.Sprintf("storage.driver %q must be sqlite, postgres or badger", c.Storage.Driver))
	}

	// Equipment
	if len(c.Equipment.States) == 0 {
		errs = append(errs, "equipment.states must list at least one state")
	}
	seen := make(map[string]bool, len(c.Equipment.States))
	for _, s := range c.Equipment.States {
		key := strings.ToLower(strings.TrimSpace(s))
		if key == "" {
			errs = append(errs, "equipment.states must not contain blank names")
			continue
		}
		if seen[key] {
			errs = append(errs, fmt.Sprintf("equipment.states lists %q more than once", s))
		}
		seen[key] = true
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("equipment.default_timezone: %v", err))
	}

	// API
	if c.API.Port < 1 || c.API.Port > 65535 {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.MaxBodyBytes < 0 {
		errs = append(errs, "api.max_body_bytes must not be negative")
	}

	// MQTT
	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}

	// NATS
	if c.NATS.Enabled {
		if c.NATS.URL == "" {
			errs = append(errs, "nats.url is required when nats is enabled")
		}
		if c.NATS.Subject == "" {
			errs = append(errs, "nats.subject is required when nats is enabled")
		}
	}

	// InfluxDB
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Org == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url, influxdb.org and influxdb.bucket are required when influxdb is enabled")
	}

	// Logging
	switch strings.ToLower(c.Logging.Output) {
	case "stdout", "stderr":
	case "file":
		if c.Logging.File.Path == "" {
			errs = append(errs, "logging.file.path is required when logging.output is file")
		}
	default:
		errs = append(errs, "logging.output must be stdout, stderr or file")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

// Location resolves Equipment.DefaultTimezone. An empty value means UTC.
func (c *Config) Location() (*time.Location, error) {
	if c.Equipment.DefaultTimezone == "" {
		return time.UTC, nil
	}
	return time.LoadLocation(c.Equipment.DefaultTimezone)
}

// ReadTimeout returns the request read timeout.
func (t APITimeoutConfig) ReadTimeout() time.Duration {
	return time.Duration(t.Read) * time.Second
}

// WriteTimeout returns the response write timeout.
func (t APITimeoutConfig) WriteTimeout() time.Duration {
	return time.Duration(t.Write) * time.Second
}

// IdleTimeout returns the keep-alive idle timeout.
func (t APITimeoutConfig) IdleTimeout() time.Duration {
	return time.Duration(t.Idle) * time.Second
}
