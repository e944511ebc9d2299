package dbmigrate

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/jhenriquezf/cw/internal/config"
)

func writeMigrations(t *testing.T, dir string) {
	t.Helper()
	files := map[string]string{
		"0001_init.up.sql":   "CREATE TABLE professionals (id INTEGER PRIMARY KEY, name TEXT NOT NULL);",
		"0001_init.down.sql": "DROP TABLE professionals;",
		"0002_bookings.up.sql": "CREATE TABLE bookings (id INTEGER PRIMARY KEY, professional_id INTEGER NOT NULL," +
			" starts_at TEXT NOT NULL);",
		"0002_bookings.down.sql": "DROP TABLE bookings;",
	}
	for name, body := range files {
		if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0644); err != nil {
			t.Fatalf("write %s: %v", name, err)
		}
	}
}

func TestApplySqlite(t *testing.T) {
	dir := t.TempDir()
	migrations := filepath.Join(dir, "migrations")
	if err := os.Mkdir(migrations, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeMigrations(t, migrations)

	dbPath := filepath.Join(dir, "app.db")
	cfg := config.Database{
		URL:             "sqlite://" + dbPath,
		MigrationsDir:   migrations,
		MigrationsTable: "schema_migrations",
	}

	summary, err := Apply(context.Background(), cfg)
	if err != nil {
		t.Fatalf("apply: %v", err)
	}
	if !strings.Contains(summary, "migrated to version 2") {
		t.Errorf("unexpected summary: %q", summary)
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	defer db.Close()
	for _, table := range []string{"professionals", "bookings"} {
		var name string
		err := db.QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("table %s not created: %v", table, err)
		}
	}
}

func TestApplyIsIdempotent(t *testing.T) {
	dir := t.TempDir()
	migrations := filepath.Join(dir, "migrations")
	if err := os.Mkdir(migrations, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	writeMigrations(t, migrations)

	cfg := config.Database{
		URL:             "sqlite://" + filepath.Join(dir, "app.db"),
		MigrationsDir:   migrations,
		MigrationsTable: "schema_migrations",
	}
	if _, err := Apply(context.Background(), cfg); err != nil {
		t.Fatalf("first apply: %v", err)
	}
	summary, err := Apply(context.Background(), cfg)
	if err != nil {
		t.Fatalf("second apply: %v", err)
	}
	if !strings.Contains(summary, "up to date") {
		t.Errorf("expected no-change summary, got %q", summary)
	}
}

func TestApplyFailsOnMissingDir(t *testing.T) {
	dir := t.TempDir()
	cfg := config.Database{
		URL:             "sqlite://" + filepath.Join(dir, "app.db"),
		MigrationsDir:   filepath.Join(dir, "does-not-exist"),
		MigrationsTable: "schema_migrations",
	}
	if _, err := Apply(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for missing migrations dir")
	}
}

func TestApplyRejectsUnknownScheme(t *testing.T) {
	cfg := config.Database{URL: "mysql://root@db/app", MigrationsDir: t.TempDir()}
	if _, err := Apply(context.Background(), cfg); err == nil {
		t.Fatalf("expected error for unsupported scheme")
	}
}

func TestRedact(t *testing.T) {
	got := redact("postgres://app:secret@db:5432/app")
	if strings.Contains(got, "secret") {
		t.Errorf("credentials leaked: %q", got)
	}
	if !strings.Contains(got, "@db:5432/app") {
		t.Errorf("host lost: %q", got)
	}
	if plain := redact("sqlite:///var/lib/app.db"); plain != "sqlite:///var/lib/app.db" {
		t.Errorf("url without credentials changed: %q", plain)
	}
}
