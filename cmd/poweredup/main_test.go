package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/nerrad567/poweredup/internal/hub"
	"github.com/nerrad567/poweredup/internal/infrastructure/config"
	"github.com/nerrad567/poweredup/internal/infrastructure/database"
	"github.com/nerrad567/poweredup/internal/infrastructure/logging"
)

// TestRun_InvalidConfig verifies run fails with an unreadable config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("POWEREDUP_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_ValidationFailure verifies run stops before opening anything when
// the config does not validate.
func TestRun_ValidationFailure(t *testing.T) {
	tmpDir := t.TempDir()
	configPath := filepath.Join(tmpDir, "config.yaml")

	configContent := `
bridge:
  hub_id: "crane/1"

database:
  path: "` + filepath.Join(tmpDir, "poweredup.db") + `"

mqtt:
  enabled: false

logging:
  level: error
  format: text
  output: stdout
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("writing config: %v", err)
	}
	t.Setenv("POWEREDUP_CONFIG", configPath)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail when bridge.hub_id contains topic characters")
	}
	if _, err := os.Stat(filepath.Join(tmpDir, "poweredup.db")); !os.IsNotExist(err) {
		t.Error("database file created despite invalid config")
	}
}

func TestHubFilter(t *testing.T) {
	tests := []struct {
		name string
		cfg  config.HubConfig
		want hub.Filter
	}{
		{"any hub", config.HubConfig{}, hub.Filter{}},
		{"by name", config.HubConfig{Name: "Crane"}, hub.Filter{Name: "Crane"}},
		{"by address", config.HubConfig{Address: "90:84:2B:00:00:01"}, hub.Filter{Address: "90:84:2B:00:00:01"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := hubFilter(tt.cfg); got != tt.want {
				t.Errorf("hubFilter() = %+v, want %+v", got, tt.want)
			}
		})
	}
}

func TestSessionOptions(t *testing.T) {
	log := logging.New(config.LoggingConfig{Level: "error", Format: "text", Output: "stdout"}, "test")
	d := hub.Discovered{Kind: hub.KindTechnicMediumHub, Address: "90:84:2b:00:00:01", Name: "Crane"}

	opts := sessionOptions(config.HubConfig{TopicBuffer: 32}, d, log)

	if opts.Name != "Crane" || opts.Address != d.Address || opts.Kind != hub.KindTechnicMediumHub {
		t.Errorf("identity = %q %q %v", opts.Name, opts.Address, opts.Kind)
	}
	if opts.TopicBuffer != 32 {
		t.Errorf("TopicBuffer = %d, want 32", opts.TopicBuffer)
	}
	if opts.Logger == nil {
		t.Error("Logger is nil")
	}
}

func TestHealthCheck_OptionalClients(t *testing.T) {
	ctx := context.Background()
	db, err := database.Open(ctx, config.DatabaseConfig{
		Path:        filepath.Join(t.TempDir(), "health.db"),
		BusyTimeout: 5,
	})
	if err != nil {
		t.Fatalf("Open() error: %v", err)
	}
	defer db.Close()

	if err := healthCheck(ctx, db, nil, nil); err != nil {
		t.Errorf("healthCheck() with disabled clients = %v, want nil", err)
	}
}
