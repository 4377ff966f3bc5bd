package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/ineersa/libsqlshim/libsql"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "libsql.yaml")
	if err := os.WriteFile(path, []byte(body), 0644); err != nil {
		t.Fatal(err)
	}
	return path
}

func clearEnv(t *testing.T) {
	for _, key := range []string{
		"LIBSQL_MODE", "LIBSQL_PATH", "LIBSQL_URL", "LIBSQL_AUTH_TOKEN", "LIBSQL_DRIVER",
		"LIBSQL_SYNC_SCHEDULE", "LIBSQL_READ_YOUR_WRITES", "LIBSQL_LENIENT_WRITES",
	} {
		t.Setenv(key, "")
	}
}

func TestLoadFile(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, `
path: /tmp/replica.db
url: http://primary:8080
auth_token: secret
sync_schedule: "@every 30s"
read_your_writes: false
lenient_writes: true
read:
  path: /tmp/replica.db
  driver: sqlite
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	mode, err := cfg.ResolveMode()
	if err != nil || mode != libsql.ModeEmbeddedReplica {
		t.Errorf("ResolveMode() = %s, %v", mode, err)
	}
	if !cfg.LenientWrites {
		t.Error("lenient_writes not loaded")
	}
	if cfg.Read == nil || cfg.Read.Driver != libsql.DriverModernc {
		t.Errorf("read section = %+v", cfg.Read)
	}

	engine, err := cfg.Engine(nil)
	if err != nil {
		t.Fatal(err)
	}
	if engine.ReadYourWrites {
		t.Error("read_your_writes: false was ignored")
	}
	if engine.AuthToken != "secret" || engine.SyncSchedule != "@every 30s" || engine.URL != "http://primary:8080" {
		t.Errorf("Engine() = %+v", engine)
	}
}

func TestModeInference(t *testing.T) {
	tests := []struct {
		cfg  Config
		want libsql.Mode
	}{
		{Config{Path: "a.db"}, libsql.ModeLocal},
		{Config{URL: "http://x"}, libsql.ModeRemote},
		{Config{Path: "a.db", URL: "http://x"}, libsql.ModeEmbeddedReplica},
		{Config{Mode: "local", Path: "a.db", URL: "http://x"}, libsql.ModeLocal},
	}
	for _, tt := range tests {
		got, err := tt.cfg.ResolveMode()
		if err != nil || got != tt.want {
			t.Errorf("ResolveMode(%+v) = %s, %v; want %s", tt.cfg, got, err, tt.want)
		}
	}
	if _, err := (&Config{}).ResolveMode(); err == nil {
		t.Error("empty config resolved to a mode")
	}
}

func TestEnvOverrides(t *testing.T) {
	clearEnv(t)
	path := writeConfig(t, "path: /tmp/file.db\n")
	t.Setenv("LIBSQL_URL", "http://override:8080")
	t.Setenv("LIBSQL_MODE", "remote")
	t.Setenv("LIBSQL_AUTH_TOKEN", "from-env")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	engine, err := cfg.Engine(nil)
	if err != nil {
		t.Fatal(err)
	}
	if engine.Mode != libsql.ModeRemote || engine.URL != "http://override:8080" || engine.AuthToken != "from-env" {
		t.Errorf("Engine() = %+v", engine)
	}
	if !engine.ReadYourWrites {
		t.Error("ReadYourWrites should default to true")
	}
}

func TestLoadWithoutFile(t *testing.T) {
	clearEnv(t)
	t.Setenv("LIBSQL_PATH", "/tmp/env.db")
	cfg, err := Load("")
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if cfg.Path != "/tmp/env.db" {
		t.Errorf("Path = %q", cfg.Path)
	}
}

func TestInvalidEnv(t *testing.T) {
	clearEnv(t)
	t.Setenv("LIBSQL_PATH", "/tmp/env.db")
	t.Setenv("LIBSQL_READ_YOUR_WRITES", "maybe")
	t.Setenv("LIBSQL_LENIENT_WRITES", "sometimes")

	_, err := Load("")
	if err == nil {
		t.Fatal("Load accepted invalid booleans")
	}
	for _, key := range []string{"LIBSQL_READ_YOUR_WRITES", "LIBSQL_LENIENT_WRITES"} {
		if !strings.Contains(err.Error(), key) {
			t.Errorf("error %q does not name %s", err, key)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name string
		cfg  Config
		ok   bool
	}{
		{"local", Config{Path: "a.db"}, true},
		{"remote without url", Config{Mode: "remote", Path: "a.db"}, false},
		{"replica without path", Config{Mode: "embedded-replica", URL: "http://x"}, false},
		{"unknown mode", Config{Mode: "cluster", Path: "a.db"}, false},
		{"unknown driver", Config{Path: "a.db", Driver: "postgres"}, false},
		{"schedule on local", Config{Path: "a.db", SyncSchedule: "@every 1m"}, false},
		{"bad schedule", Config{Path: "a.db", URL: "http://x", SyncSchedule: "whenever"}, false},
		{"cron schedule", Config{Path: "a.db", URL: "http://x", SyncSchedule: "*/5 * * * *"}, true},
		{"bad read section", Config{Path: "a.db", Read: &Config{Mode: "remote"}}, false},
		{"nested read", Config{Path: "a.db", Read: &Config{Path: "b.db", Read: &Config{Path: "c.db"}}}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := tt.cfg.Validate()
			if (err == nil) != tt.ok {
				t.Errorf("Validate() = %v, want ok=%v", err, tt.ok)
			}
		})
	}
}

func TestParseInvalidYAML(t *testing.T) {
	if _, err := Parse([]byte("path: [unclosed")); err == nil {
		t.Error("Parse accepted invalid YAML")
	}
}
