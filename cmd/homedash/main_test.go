package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/nerrad567/homedash-core/internal/api"
)

const testSecret = "test-secret-for-development-only-0123456789"

// writeConfig writes a memory-backend config to a temp dir and points
// HOMEDASH_CONFIG at it.
func writeConfig(t *testing.T, dbPath string, port int) {
	t.Helper()
	configPath := filepath.Join(t.TempDir(), "test-config.yaml")

	configContent := `
site:
  id: test-site

database:
  path: "` + dbPath + `"
  wal_mode: true
  busy_timeout: 5

store:
  backend: memory
  write_timeout: 2

devices:
  rooms: [dapur, tamu]
  fans: [kamar]

influxdb:
  enabled: false

logging:
  level: error
  format: text
  output: stdout

api:
  host: "127.0.0.1"
  port: ` + fmt.Sprint(port) + `

security:
  jwt:
    secret: "` + testSecret + `"
  seed:
    email: owner@test.local
    password: "owner-password"
`
	if err := os.WriteFile(configPath, []byte(configContent), 0o600); err != nil {
		t.Fatalf("failed to write test config: %v", err)
	}
	t.Setenv("HOMEDASH_CONFIG", configPath)
}

// freePort asks the kernel for an unused TCP port.
func freePort(t *testing.T) int {
	t.Helper()
	l, err := net.Listen("tcp", "127.0.0.1:0")
	if err != nil {
		t.Fatalf("listen: %v", err)
	}
	defer l.Close()
	return l.Addr().(*net.TCPAddr).Port
}

// TestRun_InvalidConfig verifies run fails with invalid config path.
func TestRun_InvalidConfig(t *testing.T) {
	t.Setenv("HOMEDASH_CONFIG", "/nonexistent/path/config.yaml")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := run(ctx); err == nil {
		t.Fatal("run() should fail with invalid config path")
	}
}

// TestRun_MissingDatabasePath verifies run fails validation when the
// database path is empty.
func TestRun_MissingDatabasePath(t *testing.T) {
	writeConfig(t, "", freePort(t))

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	err := run(ctx)
	if err == nil {
		t.Fatal("run() should fail with empty database path")
	}
	if !strings.Contains(err.Error(), "database.path") {
		t.Errorf("run() error = %v, want database.path in message", err)
	}
}

// TestGetConfigPath_Default verifies default config path.
func TestGetConfigPath_Default(t *testing.T) {
	t.Setenv("HOMEDASH_CONFIG", "")

	if path := getConfigPath(); path != defaultConfigPath {
		t.Errorf("getConfigPath() = %q, want %q", path, defaultConfigPath)
	}
}

// TestGetConfigPath_EnvOverride verifies environment variable override.
func TestGetConfigPath_EnvOverride(t *testing.T) {
	expected := "/custom/path/config.yaml"
	t.Setenv("HOMEDASH_CONFIG", expected)

	if path := getConfigPath(); path != expected {
		t.Errorf("getConfigPath() = %q, want %q", path, expected)
	}
}

func TestHealthCheck(t *testing.T) {
	ok := func(context.Context) error { return nil }
	broken := errors.New("broker unreachable")

	if err := healthCheck(context.Background(), map[string]api.HealthCheck{"database": ok}); err != nil {
		t.Errorf("healthCheck() with healthy deps = %v", err)
	}

	err := healthCheck(context.Background(), map[string]api.HealthCheck{
		"database": ok,
		"mqtt":     func(context.Context) error { return broken },
	})
	if !errors.Is(err, broken) {
		t.Fatalf("healthCheck() = %v, want wrapped %v", err, broken)
	}
	if !strings.HasPrefix(err.Error(), "mqtt:") {
		t.Errorf("healthCheck() = %q, want failing check named", err)
	}
}

// TestRun_StartupAndShutdown starts the memory backend, waits for the
// health endpoint and shuts down cleanly on cancel.
func TestRun_StartupAndShutdown(t *testing.T) {
	port := freePort(t)
	writeConfig(t, filepath.Join(t.TempDir(), "test.db"), port)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	done := make(chan error, 1)
	go func() { done <- run(ctx) }()

	url := fmt.Sprintf("http://127.0.0.1:%d/api/v1/health", port)
	deadline := time.Now().Add(5 * time.Second)
	for {
		resp, err := http.Get(url)
		if err == nil {
			resp.Body.Close()
			if resp.StatusCode == http.StatusOK {
				break
			}
		}
		if time.Now().After(deadline) {
			cancel()
			t.Fatalf("server did not become healthy: %v (run: %v)", err, drain(done))
		}
		time.Sleep(50 * time.Millisecond)
	}

	// The telemetry recorder holds its own listeners; with no view open
	// the listener gauge stays at zero.
	metricsURL := fmt.Sprintf("http://127.0.0.1:%d/metrics", port)
	for range 5 {
		resp, err := http.Get(metricsURL)
		if err != nil {
			t.Fatalf("GET /metrics: %v", err)
		}
		body, err := io.ReadAll(resp.Body)
		resp.Body.Close()
		if err != nil {
			t.Fatalf("reading /metrics: %v", err)
		}
		if !strings.Contains(string(body), "homedash_store_listeners 0\n") {
			t.Fatalf("store listeners not zero with no view open:\n%s", body)
		}
		time.Sleep(40 * time.Millisecond)
	}

	cancel()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("run() returned error on shutdown: %v", err)
		}
	case <-time.After(10 * time.Second):
		t.Fatal("run() did not return after cancel")
	}
}

func TestRunMigrate(t *testing.T) {
	writeConfig(t, filepath.Join(t.TempDir(), "homedash.db"), freePort(t))
	ctx := context.Background()

	status := func() (applied, pending int, out string) {
		t.Helper()
		var buf bytes.Buffer
		if err := runMigrate(ctx, []string{"status"}, &buf); err != nil {
			t.Fatalf("migrate status error = %v", err)
		}
		out = buf.String()
		return strings.Count(out, "applied  "), strings.Count(out, "pending  "), out
	}

	if applied, pending, _ := status(); applied != 0 || pending != 3 {
		t.Fatalf("fresh database: applied=%d pending=%d, want 0 and 3", applied, pending)
	}

	if err := runMigrate(ctx, []string{"up"}, io.Discard); err != nil {
		t.Fatalf("migrate up error = %v", err)
	}
	if applied, pending, _ := status(); applied != 3 || pending != 0 {
		t.Fatalf("after up: applied=%d pending=%d, want 3 and 0", applied, pending)
	}

	if err := runMigrate(ctx, []string{"down"}, io.Discard); err != nil {
		t.Fatalf("migrate down error = %v", err)
	}
	applied, pending, out := status()
	if applied != 2 || pending != 1 {
		t.Fatalf("after down: applied=%d pending=%d, want 2 and 1", applied, pending)
	}
	if !strings.Contains(out, "pending  20261003_000000") {
		t.Errorf("after down: latest migration not pending:\n%s", out)
	}
}

func TestRunMigrate_Usage(t *testing.T) {
	for _, args := range [][]string{nil, {"sideways"}, {"up", "down"}} {
		if err := runMigrate(context.Background(), args, io.Discard); !errors.Is(err, errMigrateUsage) {
			t.Errorf("runMigrate(%q) error = %v, want usage error", args, err)
		}
	}
}

func drain(done <-chan error) error {
	select {
	case err := <-done:
		return err
	default:
		return nil
	}
}
