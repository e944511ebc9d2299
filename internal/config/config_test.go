package config

import (
	"os"
	"path/filepath"
	"testing"
)

func writeConfig(t *testing.T, dir, content string) string {
	t.Helper()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("write config: %v", err)
	}
	return path
}

func TestLoadDefaults(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
static:
  sources: ["/app/assets"]
proxy:
  hostname: example.com
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Bind != "0.0.0.0:8000" {
		t.Errorf("expected default bind 0.0.0.0:8000, got %s", cfg.Server.Bind)
	}
	if cfg.Server.Workers != 3 || cfg.Server.Threads != 2 {
		t.Errorf("unexpected worker/thread defaults: %d/%d", cfg.Server.Workers, cfg.Server.Threads)
	}
	if cfg.Server.GracefulTimeoutSeconds != 30 {
		t.Errorf("expected graceful timeout 30, got %d", cfg.Server.GracefulTimeoutSeconds)
	}
	if cfg.Proxy.Upstream != "127.0.0.1:8000" {
		t.Errorf("expected upstream derived from bind, got %s", cfg.Proxy.Upstream)
	}
	if cfg.Database.MigrationsTable != "schema_migrations" {
		t.Errorf("unexpected migrations table: %s", cfg.Database.MigrationsTable)
	}
}

func TestLoadExplicitValues(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
database:
  migrations_dir: /srv/app/migrations
static:
  sources: ["/srv/app/assets", "/srv/app/extra"]
  root: /srv/app/static
server:
  bind: 127.0.0.1:9000
  workers: 5
  threads: 4
  timeout_seconds: 120
proxy:
  hostname: app.example.com
  upstream: 127.0.0.1:9000
`)
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Server.Bind != "127.0.0.1:9000" || cfg.Server.Workers != 5 {
		t.Errorf("explicit server values not honored: %+v", cfg.Server)
	}
	if len(cfg.Static.Sources) != 2 || cfg.Static.Root != "/srv/app/static" {
		t.Errorf("explicit static values not honored: %+v", cfg.Static)
	}
}

func TestSecretsOverlay(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
static:
  sources: ["/app/assets"]
`)
	secrets := "# comment\nDATABASE_URL=postgres://app:pw@db:5432/app\n"
	if err := os.WriteFile(filepath.Join(dir, "secrets.env"), []byte(secrets), 0600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.URL != "postgres://app:pw@db:5432/app" {
		t.Errorf("secrets.env not merged, got %q", cfg.Database.URL)
	}
}

func TestEnvironmentWinsOverSecrets(t *testing.T) {
	dir := t.TempDir()
	path := writeConfig(t, dir, `
static:
  sources: ["/app/assets"]
`)
	if err := os.WriteFile(filepath.Join(dir, "secrets.env"), []byte("DATABASE_URL=postgres://file\n"), 0600); err != nil {
		t.Fatalf("write secrets: %v", err)
	}
	t.Setenv("DATABASE_URL", "postgres://env")
	cfg, err := Load(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.Database.URL != "postgres://env" {
		t.Errorf("environment should win, got %q", cfg.Database.URL)
	}
}

func TestValidate(t *testing.T) {
	cfg := &Config{}
	cfg.applyDefaults()
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error without database url")
	}
	cfg.Database.URL = "sqlite:///tmp/app.db"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error without static sources")
	}
	cfg.Static.Sources = []string{"/app/assets"}
	if err := cfg.Validate(); err != nil {
		t.Fatalf("unexpected validation error: %v", err)
	}
	cfg.Server.Bind = "no-port"
	if err := cfg.Validate(); err == nil {
		t.Fatalf("expected validation error for bind without port")
	}
}
