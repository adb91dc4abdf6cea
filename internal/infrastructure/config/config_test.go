package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

// writeConfig writes content to a temporary config.yaml and returns its path.
func writeConfig(t *testing.T, content string) string {
	t.Helper()

	configPath := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
storage:
  driver: badger
badger:
  path: "/tmp/badger"
equipment:
  states: ["Idle", "Producing"]
  seed_sample_data: false
  default_timezone: "UTC"
api:
  host: "127.0.0.1"
  port: 9090
mqtt:
  enabled: true
  broker:
    host: "broker.local"
  qos: 1
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Storage.Driver != DriverBadger {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, DriverBadger)
	}
	if cfg.Badger.Path != "/tmp/badger" {
		t.Errorf("Badger.Path = %q, want %q", cfg.Badger.Path, "/tmp/badger")
	}
	if len(cfg.Equipment.States) != 2 || cfg.Equipment.States[1] != "Producing" {
		t.Errorf("Equipment.States = %v, want [Idle Producing]", cfg.Equipment.States)
	}
	if cfg.Equipment.SeedSampleData {
		t.Error("Equipment.SeedSampleData = true, want false from file")
	}
	if cfg.API.Port != 9090 {
		t.Errorf("API.Port = %d, want 9090", cfg.API.Port)
	}
	if cfg.MQTT.Broker.Host != "broker.local" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "broker.local")
	}
	// Unset values keep their defaults.
	if cfg.MQTT.Ingest.Topic != "equipstatus/equipment/+/report" {
		t.Errorf("MQTT.Ingest.Topic = %q, want default", cfg.MQTT.Ingest.Topic)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoadOptional_MissingFileUsesDefaults(t *testing.T) {
	cfg, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml"))
	if err != nil {
		t.Fatalf("LoadOptional() error = %v", err)
	}
	if cfg.Storage.Driver != DriverSQLite {
		t.Errorf("Storage.Driver = %q, want %q", cfg.Storage.Driver, DriverSQLite)
	}
	if !cfg.Equipment.SeedSampleData {
		t.Error("Equipment.SeedSampleData = false, want default true")
	}
	if len(cfg.Equipment.States) != 3 {
		t.Errorf("Equipment.States = %v, want three defaults", cfg.Equipment.States)
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	if _, err := Load(configPath); err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
	if _, err := LoadOptional(configPath); err == nil {
		t.Error("LoadOptional() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
storage:
  driver: cassandra
equipment:
  states: ["Running", "RUNNING"]
  default_timezone: "Mars/Olympus_Mons"
api:
  port: 70000
mqtt:
  qos: 3
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error, got nil")
	}

	for _, want := range []string{
		"storage.driver",
		"more than once",
		"equipment.default_timezone",
		"api.port",
		"mqtt.qos",
	} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	configPath := writeConfig(t, `
database:
  path: "/tmp/from-file.db"
`)

	t.Setenv("EQUIPSTATUS_DATABASE_PATH", "/tmp/from-env.db")
	t.Setenv("EQUIPSTATUS_API_PORT", "9191")
	t.Setenv("EQUIPSTATUS_NATS_URL", "nats://bus:4222")
	t.Setenv("EQUIPSTATUS_LOG_LEVEL", "debug")

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.Path != "/tmp/from-env.db" {
		t.Errorf("Database.Path = %q, want env override", cfg.Database.Path)
	}
	if cfg.API.Port != 9191 {
		t.Errorf("API.Port = %d, want 9191", cfg.API.Port)
	}
	if cfg.NATS.URL != "nats://bus:4222" {
		t.Errorf("NATS.URL = %q, want env override", cfg.NATS.URL)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
}

func TestLoad_BadPortOverride(t *testing.T) {
	t.Setenv("EQUIPSTATUS_API_PORT", "eighty")

	if _, err := LoadOptional(filepath.Join(t.TempDir(), "absent.yaml")); err == nil {
		t.Error("LoadOptional() expected error for non-numeric port override")
	}
}

func TestFromEnvironment(t *testing.T) {
	configPath := writeConfig(t, `
api:
  port: 8181
`)
	t.Setenv("EQUIPSTATUS_CONFIG", configPath)

	cfg, err := FromEnvironment()
	if err != nil {
		t.Fatalf("FromEnvironment() error = %v", err)
	}
	if cfg.API.Port != 8181 {
		t.Errorf("API.Port = %d, want 8181", cfg.API.Port)
	}

	t.Setenv("EQUIPSTATUS_CONFIG", filepath.Join(t.TempDir(), "missing.yaml"))
	if _, err := FromEnvironment(); err == nil {
		t.Error("FromEnvironment() with explicit missing file should fail")
	}
}

func TestValidate_DriverRequirements(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:    "postgres without dsn",
			mutate:  func(c *Config) { c.Storage.Driver = DriverPostgres },
			wantErr: "postgres.dsn",
		},
		{
			name: "postgres with dsn",
			mutate: func(c *Config) {
				c.Storage.Driver = DriverPostgres
				c.Postgres.DSN = "postgres://localhost/equipstatus"
			},
		},
		{
			name: "badger in memory without path",
			mutate: func(c *Config) {
				c.Storage.Driver = DriverBadger
				c.Badger.Path = ""
				c.Badger.InMemory = true
			},
		},
		{
			name: "badger without path",
			mutate: func(c *Config) {
				c.Storage.Driver = DriverBadger
				c.Badger.Path = ""
			},
			wantErr: "badger.path",
		},
		{
			name:    "no states",
			mutate:  func(c *Config) { c.Equipment.States = nil },
			wantErr: "equipment.states",
		},
		{
			name: "nats enabled without subject",
			mutate: func(c *Config) {
				c.NATS.Enabled = true
				c.NATS.Subject = ""
			},
			wantErr: "nats.subject",
		},
		{
			name:    "influxdb enabled without org",
			mutate:  func(c *Config) { c.InfluxDB.Enabled = true },
			wantErr: "influxdb.url",
		},
		{
			name: "file logging without path",
			mutate: func(c *Config) {
				c.Logging.Output = "file"
				c.Logging.File.Path = ""
			},
			wantErr: "logging.file.path",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want mention of %q", err, tt.wantErr)
			}
		})
	}
}

func TestLocation(t *testing.T) {
	cfg := defaultConfig()

	cfg.Equipment.DefaultTimezone = "UTC"
	loc, err := cfg.Location()
	if err != nil || loc != time.UTC {
		t.Errorf("Location(UTC) = %v, %v", loc, err)
	}

	cfg.Equipment.DefaultTimezone = ""
	if loc, err := cfg.Location(); err != nil || loc != time.UTC {
		t.Errorf("Location(empty) = %v, %v, want UTC", loc, err)
	}
}

func TestTimeoutHelpers(t *testing.T) {
	cfg := defaultConfig()

	timeouts := cfg.API.Timeouts

	if got := timeouts.ReadTimeout(); got != 30*time.Second {
		t.Errorf("ReadTimeout() = %v, want 30s", got)
	}
	if got := timeouts.WriteTimeout(); got != 30*time.Second {
		t.Errorf("WriteTimeout() = %v, want 30s", got)
	}
	if got := timeouts.IdleTimeout(); got != 60*time.Second {
		t.Errorf("IdleTimeout() = %v, want 60s", got)
	}
}
