package config

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadEnvExpansion(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "agency.json")
	raw := `{
		"server": {"port": ${AGENCY_PORT:8080}, "log_level": "${AGENCY_LOG:info}"},
		"database": {"postgres": {"dsn": "${AGENCY_DSN}"}},
		"queue": {"name": "tasks", "workers": 2, "max_attempts": 5}
	}`
	if err := os.WriteFile(path, []byte(raw), 0o644); err != nil {
		t.Fatal(err)
	}

	t.Setenv("AGENCY_PORT", "9090")
	t.Setenv("AGENCY_DSN", "postgres://localhost/agency")

	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Port != 9090 {
		t.Errorf("port = %d (env not substituted)", cfg.Server.Port)
	}
	if cfg.Server.LogLevel != "info" {
		t.Errorf("log level = %q (default not applied)", cfg.Server.LogLevel)
	}
	if cfg.Database.Postgres.DSN != "postgres://localhost/agency" {
		t.Errorf("dsn = %q", cfg.Database.Postgres.DSN)
	}
	if cfg.Queue.Workers != 2 || cfg.Queue.MaxAttempts != 5 {
		t.Errorf("queue = %+v", cfg.Queue)
	}
}

func TestLoadMissingFile(t *testing.T) {
	if _, err := Load("/nonexistent/agency.json"); err == nil {
		t.Error("expected error for missing config")
	}
}
