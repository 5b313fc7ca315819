package main

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/gray-logic-telemetry/internal/api"
	"github.com/nerrad567/gray-logic-telemetry/internal/hub"
	"github.com/nerrad567/gray-logic-telemetry/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-telemetry/internal/ingest"
	"github.com/nerrad567/gray-logic-telemetry/internal/notify"
	"github.com/nerrad567/gray-logic-telemetry/internal/telemetry"
	"github.com/nerrad567/gray-logic-telemetry/internal/testutil"
)

const testSecret = "test-secret-for-development-only-0123456789"

func writeConfig(t *testing.T, body string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "config.yaml")
	if err := os.WriteFile(path, []byte(body), 0600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("GRAYLOGIC_CONFIG", path)
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
	if !strings.Contains(err.Error(), "loading config") {
		t.Errorf("run() error = %v, want loading config failure", err)
	}
}

// TestRun_MissingDatabasePath verifies run fails when database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	writeConfig(t, `
site:
  id: test-site
database:
  path: ""
mqtt:
  enabled: false
security:
  jwt:
    secret: "`+testSecret+`"
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with empty database path")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("run() error = %v, want database.path", err)
	}
}

// TestRun_MissingProcessorsFile verifies startup stops when processor
// definitions cannot be loaded.
func TestRun_MissingProcessorsFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	writeConfig(t, `
site:
  id: test-site
database:
  path: "`+dbPath+`"
mqtt:
  enabled: false
pipeline:
  processors_file: "/nonexistent/processors.yaml"
security:
  jwt:
    secret: "`+testSecret+`"
`)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil || !strings.Contains(err.Error(), "processor definitions") {
		t.Fatalf("run() error = %v, want processor definitions failure", err)
	}
}

// TestRun_StartupAndShutdown runs the full service without external
// brokers and stops it through context cancellation.
func TestRun_StartupAndShutdown(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "test.db")
	writeConfig(t, `
site:
  id: test-site
database:
  path: "`+dbPath+`"
  wal_mode: true
  busy_timeout: 5
mqtt:
  enabled: false
influxdb:
  enabled: false
api:
  host: "127.0.0.1"
  port: 18931
logging:
  level: error
  format: text
  output: stdout
security:
  jwt:
    secret: "`+testSecret+`"
notifications:
  alert_recipients: ["ops"]
  alert_min_severity: high
`)

	ctx, cancel := context.WithTimeout(context.Background(), 500*time.Millisecond)
	defer cancel()

	if err := run(ctx); err != nil {
		t.Fatalf("run() error = %v", err)
	}
	if _, err := os.Stat(dbPath); err != nil {
		t.Errorf("database file not created: %v", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("GRAYLOGIC_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("GRAYLOGIC_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

type fakeCheck struct{ err error }

func (f fakeCheck) HealthCheck(context.Context) error { return f.err }

func TestHealthCheck(t *testing.T) {
	ctx := context.Background()

	if err := healthCheck(ctx, map[string]api.HealthChecker{"database": fakeCheck{}}); err != nil {
		t.Errorf("healthCheck() error = %v, want nil", err)
	}

	down := errors.New("broker unreachable")
	err := healthCheck(ctx, map[string]api.HealthChecker{
		"database": fakeCheck{},
		"mqtt":     fakeCheck{err: down},
	})
	if !errors.Is(err, down) {
		t.Fatalf("healthCheck() error = %v, want %v", err, down)
	}
	if !strings.HasPrefix(err.Error(), "mqtt:") {
		t.Errorf("healthCheck() error = %q, want mqtt prefix", err)
	}
}

func TestBuildPersister_SQLiteOnly(t *testing.T) {
	db := testutil.OpenDB(t)
	sqlite := ingest.NewSQLitePersister(db)

	if got := buildPersister(sqlite, nil, nil); got != ingest.Persister(sqlite) {
		t.Errorf("buildPersister() = %T, want the SQLite persister", got)
	}
}

func TestBuildAlertPublisher(t *testing.T) {
	channelHub := hub.New(hub.Config{})
	orchestrator := notify.New()

	tests := []struct {
		name       string
		recipients []string
		want       int
	}{
		{name: "hub only", want: 1},
		{name: "with recipients", recipients: []string{"ops"}, want: 2},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := &config.Config{}
			cfg.Notifications.AlertRecipients = tt.recipients

			got, ok := buildAlertPublisher(cfg, channelHub, orchestrator, nil).(telemetry.MultiAlertPublisher)
			if !ok {
				t.Fatal("buildAlertPublisher() did not return a MultiAlertPublisher")
			}
			if len(got) != tt.want {
				t.Errorf("publishers = %d, want %d", len(got), tt.want)
			}
		})
	}
}
