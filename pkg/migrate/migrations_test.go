package migrate

import (
	"strings"
	"testing"
	"testing/fstest"
)

func TestEmbeddedMigrationsAreValid(t *testing.T) {
	if err := Validate(); err != nil {
		t.Fatalf("embedded migrations invalid: %v", err)
	}
}

func TestReceiptsMigrationContainsConcurrencyColumns(t *testing.T) {
	content := readMigration(t, "_create_receipts.sql")

	checks := []string{
		"CREATE TABLE IF NOT EXISTS receipts",
		"version         integer NOT NULL DEFAULT 0",
		"slots           jsonb NOT NULL",
		"'TO_REVIEW', 'UNABLE_TO_SEND'",
		"DROP TABLE IF EXISTS receipts",
	}
	for _, sub := range checks {
		if !strings.Contains(content, sub) {
			t.Errorf("missing expected statement %q", sub)
		}
	}
}

func TestReceiptErrorsMigrationIsUniquePerUnit(t *testing.T) {
	content := readMigration(t, "_create_receipt_errors.sql")
	if !strings.Contains(content, "CONSTRAINT receipt_errors_biz_event_id_key UNIQUE (biz_event_id)") {
		t.Fatal("expected unique constraint on biz_event_id")
	}
}

func TestValidateFSRejectsBadFiles(t *testing.T) {
	cases := map[string]fstest.MapFS{
		"bad name": {
			"migrations/create_receipts.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"missing down": {
			"migrations/20260101000000_x.sql": {Data: []byte("-- +goose Up\n")},
		},
		"duplicate version": {
			"migrations/20260101000000_a.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
			"migrations/20260101000000_b.sql": {Data: []byte("-- +goose Up\n-- +goose Down\n")},
		},
		"empty": {
			"migrations/README.md": {Data: []byte("nothing")},
		},
	}
	for name, fsys := range cases {
		if err := ValidateFS(fsys, "migrations"); err == nil {
			t.Errorf("%s: expected validation error", name)
		}
	}
}

func readMigration(t *testing.T, suffix string) string {
	t.Helper()
	entries, err := migrationsFS.ReadDir(Dir)
	if err != nil {
		t.Fatalf("read embedded dir: %v", err)
	}
	for _, e := range entries {
		if strings.HasSuffix(e.Name(), suffix) {
			b, err := migrationsFS.ReadFile(Dir + "/" + e.Name())
			if err != nil {
				t.Fatalf("read migration: %v", err)
			}
			return string(b)
		}
	}
	t.Fatalf("no migration ending in %s", suffix)
	return ""
}

func TestRecoveryIndexMigration(t *testing.T) {
	content := readMigration(t, "_add_receipts_recovery_index.sql")
	if !strings.Contains(content, "WHERE status IN ('INSERTED', 'RETRY')") {
		t.Fatal("expected partial index over generatable statuses")
	}
	if !strings.Contains(content, "DROP INDEX IF EXISTS receipts_recovery_idx") {
		t.Fatal("expected down migration to drop the index")
	}
}
