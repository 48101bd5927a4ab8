package db

import (
	"path/filepath"
	"strings"
	"testing"
)

func TestMySQLDSN(t *testing.T) {
	got, err := MySQLDSN("monocle:secret@tcp(localhost:3306)/crons")
	if err != nil {
		t.Fatalf("MySQLDSN: %v", err)
	}

	if !strings.Contains(got, "parseTime=true") {
		t.Fatalf("dsn = %q, want parseTime=true", got)
	}
	if strings.Contains(got, "loc=") {
		t.Fatalf("dsn = %q, UTC should be the default location", got)
	}

	if _, err := MySQLDSN("not a dsn"); err == nil {
		t.Fatal("expected error for malformed dsn")
	}
}

func TestOpen_UnknownDriver(t *testing.T) {
	if _, err := Open("oracle", "dsn"); err == nil {
		t.Fatal("expected error")
	}
}

func TestMigrate_SQLite(t *testing.T) {
	conn, err := Open("sqlite", filepath.Join(t.TempDir(), "crons.db"))
	if err != nil {
		t.Fatalf("Open: %v", err)
	}

	if err := Migrate(conn); err != nil {
		t.Fatalf("Migrate: %v", err)
	}

	for _, model := range Models() {
		if !conn.Migrator().HasTable(model) {
			t.Fatalf("missing table for %T", model)
		}
	}
}
