package api

import (
	"fmt"
	"os"
	"path/filepath"
	"testing"

	"github.com/kartbox/telemetry/internal/db"
)

// templateDB is a migrated results database that each test copies instead
// of running the migrations again.
var templateDB string

func TestMain(m *testing.M) {
	dir, err := os.MkdirTemp("", "kartbox-api-template-*")
	if err != nil {
		fmt.Fprintf(os.Stderr, "create template dir: %v\n", err)
		os.Exit(1)
	}
	code := 1
	if err := buildTemplateDB(filepath.Join(dir, "template.db")); err != nil {
		fmt.Fprintf(os.Stderr, "build template DB: %v\n", err)
	} else {
		code = m.Run()
	}
	os.RemoveAll(dir)
	os.Exit(code)
}

func buildTemplateDB(path string) error {
	d, err := db.NewDB(path)
	if err != nil {
		return err
	}
	// Fold the WAL into the main file so a plain copy carries the schema.
	if _, err := d.Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
		d.Close()
		return err
	}
	if err := d.Close(); err != nil {
		return err
	}
	templateDB = path
	return nil
}

func cloneAPITestDB(t *testing.T) string {
	t.Helper()
	data, err := os.ReadFile(templateDB)
	if err != nil {
		t.Fatalf("read template DB: %v", err)
	}
	path := filepath.Join(t.TempDir(), "test.db")
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("clone template DB: %v", err)
	}
	return path
}
