package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("MONOCLE_CONFIG", "")
	t.Setenv("DATABASE_URL", "postgres://localhost/monocle")
	t.Setenv("PORT", "8080")
	t.Setenv("CHECKINS_MAX_PAGE_SIZE", "50")
	t.Setenv("CHECKINS_DEFAULT_PAGE_SIZE", "20")
	t.Setenv("SWEEP_INTERVAL", "30s")
	t.Setenv("ALLOWED_ORIGINS", "https://a.example.com, https://b.example.com")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "8080" {
		t.Errorf("Port = %q", cfg.Port)
	}
	if cfg.CheckIns.MaxPageSize != 50 || cfg.CheckIns.DefaultPageSize != 20 {
		t.Errorf("CheckIns = %+v", cfg.CheckIns)
	}
	if cfg.Sweeper.Interval != 30*time.Second {
		t.Errorf("Sweeper.Interval = %v", cfg.Sweeper.Interval)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[1] != "https://b.example.com" {
		t.Errorf("AllowedOrigins = %v", cfg.AllowedOrigins)
	}
}

func TestLoad_YAMLFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "monocle.yaml")
	body := `
port: "9000"
database:
  driver: sqlite
  url: /var/lib/monocle.db
checkins:
  max_page_size: 25
  default_page_size: 10
sweeper:
  interval: 2m
  batch_size: 10
`
	if err := os.WriteFile(path, []byte(body), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	t.Setenv("MONOCLE_CONFIG", path)
	t.Setenv("DATABASE_URL", "")
	t.Setenv("PORT", "9100")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load: %v", err)
	}

	if cfg.Port != "9100" {
		t.Errorf("env should win over file, Port = %q", cfg.Port)
	}
	if cfg.Database.Driver != "sqlite" || cfg.Database.URL != "/var/lib/monocle.db" {
		t.Errorf("Database = %+v", cfg.Database)
	}
	if cfg.CheckIns.MaxPageSize != 25 || cfg.Sweeper.Interval != 2*time.Minute || cfg.Sweeper.BatchSize != 10 {
		t.Errorf("cfg = %+v", cfg)
	}
	if cfg.CheckIns.DSNScheme != "https" {
		t.Errorf("defaults lost, DSNScheme = %q", cfg.CheckIns.DSNScheme)
	}
}

func TestLoad_Invalid(t *testing.T) {
	t.Setenv("MONOCLE_CONFIG", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CHECKINS_MAX_PAGE_SIZE", "10")
	t.Setenv("CHECKINS_DEFAULT_PAGE_SIZE", "20")

	_, err := Load()
	if err == nil {
		t.Fatal("expected validation error")
	}
	for _, want := range []string{"DATABASE_URL", "default page size"} {
		if !strings.Contains(err.Error(), want) {
			t.Errorf("error %q does not mention %q", err, want)
		}
	}
}

func TestLoad_BadNumber(t *testing.T) {
	t.Setenv("MONOCLE_CONFIG", "")
	t.Setenv("DATABASE_URL", "x")
	t.Setenv("SWEEP_BATCH_SIZE", "lots")

	if _, err := Load(); err == nil || !strings.Contains(err.Error(), "SWEEP_BATCH_SIZE") {
		t.Fatalf("err = %v", err)
	}
}
