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
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")
	if err := os.WriteFile(configPath, []byte(content), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	return configPath
}

func TestLoad_ValidConfig(t *testing.T) {
	configPath := writeConfig(t, `
hub:
  name: "Technic Hub"
  address: "90:84:2B:00:00:01"
  ready_timeout: 5
  subscriptions:
    - port: 0
      mode: 2
      delta: 1
    - port: 0x3D
      mode: 0
      delta: 5
bridge:
  hub_id: "crane"
database:
  path: "/tmp/test.db"
  wal_mode: true
  busy_timeout: 5
mqtt:
  broker:
    host: "localhost"
    port: 1883
    client_id: "test-client"
  qos: 1
api:
  host: "0.0.0.0"
  port: 8080
`)

	cfg, err := Load(configPath)
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Hub.Name != "Technic Hub" {
		t.Errorf("Hub.Name = %q, want %q", cfg.Hub.Name, "Technic Hub")
	}
	if cfg.Hub.Address != "90:84:2B:00:00:01" {
		t.Errorf("Hub.Address = %q, want %q", cfg.Hub.Address, "90:84:2B:00:00:01")
	}
	if len(cfg.Hub.Subscriptions) != 2 {
		t.Fatalf("Hub.Subscriptions = %d entries, want 2", len(cfg.Hub.Subscriptions))
	}
	if got := cfg.Hub.Subscriptions[1]; got.Port != 0x3D || got.Delta != 5 {
		t.Errorf("Hub.Subscriptions[1] = %+v, want port 0x3D delta 5", got)
	}
	if cfg.Bridge.HubID != "crane" {
		t.Errorf("Bridge.HubID = %q, want %q", cfg.Bridge.HubID, "crane")
	}
	if cfg.Database.Path != "/tmp/test.db" {
		t.Errorf("Database.Path = %q, want %q", cfg.Database.Path, "/tmp/test.db")
	}
	if cfg.MQTT.Broker.Host != "localhost" {
		t.Errorf("MQTT.Broker.Host = %q, want %q", cfg.MQTT.Broker.Host, "localhost")
	}

	// Unset values keep their defaults.
	if cfg.Hub.TopicBuffer != 16 {
		t.Errorf("Hub.TopicBuffer = %d, want default 16", cfg.Hub.TopicBuffer)
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load("/nonexistent/path/config.yaml")
	if err == nil {
		t.Error("Load() expected error for missing file, got nil")
	}
}

func TestLoad_InvalidYAML(t *testing.T) {
	configPath := writeConfig(t, "invalid: [yaml: content")

	_, err := Load(configPath)
	if err == nil {
		t.Error("Load() expected error for invalid YAML, got nil")
	}
}

func TestLoad_ValidationFailure(t *testing.T) {
	configPath := writeConfig(t, `
bridge:
  hub_id: "a/b"
database:
  path: "/tmp/test.db"
`)

	_, err := Load(configPath)
	if err == nil {
		t.Fatal("Load() expected validation error for hub_id with '/', got nil")
	}
	if !strings.Contains(err.Error(), "bridge.hub_id") {
		t.Errorf("Load() error = %v, want mention of bridge.hub_id", err)
	}
}

func TestConfig_Validate(t *testing.T) {
	valid := func() *Config { return defaultConfig() }

	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{name: "defaults are valid"},
		{
			name:    "missing hub id",
			mutate:  func(c *Config) { c.Bridge.HubID = "" },
			wantErr: "bridge.hub_id is required",
		},
		{
			name:    "wildcard in hub id",
			mutate:  func(c *Config) { c.Bridge.HubID = "hub+1" },
			wantErr: "bridge.hub_id must not contain",
		},
		{
			name:    "hub name too long",
			mutate:  func(c *Config) { c.Hub.Name = "a very long hub name" },
			wantErr: "hub.name must be at most 14 bytes",
		},
		{
			name:    "zero scan timeout",
			mutate:  func(c *Config) { c.Hub.ScanTimeout = 0 },
			wantErr: "hub.scan_timeout",
		},
		{
			name:    "zero topic buffer",
			mutate:  func(c *Config) { c.Hub.TopicBuffer = 0 },
			wantErr: "hub.topic_buffer",
		},
		{
			name:    "missing database path",
			mutate:  func(c *Config) { c.Database.Path = "" },
			wantErr: "database.path is required",
		},
		{
			name:    "invalid QoS",
			mutate:  func(c *Config) { c.MQTT.QoS = 3 },
			wantErr: "mqtt.qos",
		},
		{
			name:    "mqtt host required when enabled",
			mutate:  func(c *Config) { c.MQTT.Broker.Host = "" },
			wantErr: "mqtt.broker.host",
		},
		{
			name: "mqtt host optional when disabled",
			mutate: func(c *Config) {
				c.MQTT.Enabled = false
				c.MQTT.Broker.Host = ""
			},
		},
		{
			name:    "invalid port low",
			mutate:  func(c *Config) { c.API.Port = 0 },
			wantErr: "api.port",
		},
		{
			name:    "invalid port high",
			mutate:  func(c *Config) { c.API.Port = 70000 },
			wantErr: "api.port",
		},
		{
			name: "influxdb requires url and bucket",
			mutate: func(c *Config) {
				c.InfluxDB.Enabled = true
			},
			wantErr: "influxdb.bucket is required",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := valid()
			if tt.mutate != nil {
				tt.mutate(cfg)
			}
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil || !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %v, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestConfig_Validate_CollectsAll(t *testing.T) {
	cfg := defaultConfig()
	cfg.Database.Path = ""
	cfg.API.Port = 0

	err := cfg.Validate()
	if err == nil {
		t.Fatal("Validate() expected error, got nil")
	}
	if !strings.Contains(err.Error(), "database.path") || !strings.Contains(err.Error(), "api.port") {
		t.Errorf("Validate() error = %v, want both failures listed", err)
	}
}

func TestConfig_GetTimeouts(t *testing.T) {
	cfg := &Config{
		API: APIConfig{
			Timeouts: APITimeoutConfig{
				Read:  30,
				Write: 45,
				Idle:  60,
			},
		},
		Hub: HubConfig{
			ScanTimeout:    3,
			ConnectTimeout: 7,
			ReadyTimeout:   9,
		},
	}

	tests := []struct {
		name string
		got  time.Duration
		want time.Duration
	}{
		{"read", cfg.GetReadTimeout(), 30 * time.Second},
		{"write", cfg.GetWriteTimeout(), 45 * time.Second},
		{"idle", cfg.GetIdleTimeout(), 60 * time.Second},
		{"scan", cfg.Hub.ScanTimeoutDuration(), 3 * time.Second},
		{"connect", cfg.Hub.ConnectTimeoutDuration(), 7 * time.Second},
		{"ready", cfg.Hub.ReadyTimeoutDuration(), 9 * time.Second},
	}
	for _, tt := range tests {
		if tt.got != tt.want {
			t.Errorf("%s timeout = %v, want %v", tt.name, tt.got, tt.want)
		}
	}
}

func TestApplyEnvOverrides(t *testing.T) {
	cfg := defaultConfig()

	t.Setenv("POWEREDUP_HUB_NAME", "Train")
	t.Setenv("POWEREDUP_HUB_ADDRESS", "aa:bb:cc:dd:ee:ff")
	t.Setenv("POWEREDUP_BRIDGE_HUB_ID", "train")
	t.Setenv("POWEREDUP_DATABASE_PATH", "/custom/path.db")
	t.Setenv("POWEREDUP_MQTT_HOST", "mqtt.example.com")
	t.Setenv("POWEREDUP_MQTT_PORT", "8883")
	t.Setenv("POWEREDUP_MQTT_USERNAME", "testuser")
	t.Setenv("POWEREDUP_MQTT_PASSWORD", "testpass")
	t.Setenv("POWEREDUP_API_HOST", "192.168.1.1")
	t.Setenv("POWEREDUP_API_PORT", "not-a-number")
	t.Setenv("POWEREDUP_INFLUXDB_TOKEN", "secret-token")
	t.Setenv("POWEREDUP_LOG_LEVEL", "debug")

	applyEnvOverrides(cfg)

	checks := []struct {
		field string
		got   any
		want  any
	}{
		{"Hub.Name", cfg.Hub.Name, "Train"},
		{"Hub.Address", cfg.Hub.Address, "aa:bb:cc:dd:ee:ff"},
		{"Bridge.HubID", cfg.Bridge.HubID, "train"},
		{"Database.Path", cfg.Database.Path, "/custom/path.db"},
		{"MQTT.Broker.Host", cfg.MQTT.Broker.Host, "mqtt.example.com"},
		{"MQTT.Broker.Port", cfg.MQTT.Broker.Port, 8883},
		{"MQTT.Auth.Username", cfg.MQTT.Auth.Username, "testuser"},
		{"MQTT.Auth.Password", cfg.MQTT.Auth.Password, "testpass"},
		{"API.Host", cfg.API.Host, "192.168.1.1"},
		{"API.Port", cfg.API.Port, 8080}, // unparsable value ignored
		{"InfluxDB.Token", cfg.InfluxDB.Token, "secret-token"},
		{"Logging.Level", cfg.Logging.Level, "debug"},
	}
	for _, c := range checks {
		if c.got != c.want {
			t.Errorf("%s = %v, want %v", c.field, c.got, c.want)
		}
	}
}

func TestPath(t *testing.T) {
	t.Setenv("POWEREDUP_CONFIG", "")
	if got := Path(); got != "configs/config.yaml" {
		t.Errorf("Path() = %q, want default", got)
	}
	t.Setenv("POWEREDUP_CONFIG", "/etc/poweredup.yaml")
	if got := Path(); got != "/etc/poweredup.yaml" {
		t.Errorf("Path() = %q, want override", got)
	}
}

func TestDefaultConfig(t *testing.T) {
	cfg := defaultConfig()

	if cfg.Bridge.HubID == "" {
		t.Error("defaultConfig should have non-empty Bridge.HubID")
	}
	if cfg.Database.Path == "" {
		t.Error("defaultConfig should have non-empty Database.Path")
	}
	if cfg.MQTT.Broker.Port != 1883 {
		t.Errorf("defaultConfig MQTT.Broker.Port = %d, want 1883", cfg.MQTT.Broker.Port)
	}
	if cfg.API.Port != 8080 {
		t.Errorf("defaultConfig API.Port = %d, want 8080", cfg.API.Port)
	}
	if cfg.Hub.Name != "" || cfg.Hub.Address != "" {
		t.Error("defaultConfig should not filter discovery")
	}
}
