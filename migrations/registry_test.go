package migrations

import (
	"context"
	"database/sql"
	"fmt"
	"io/fs"
	"path/filepath"
	"strings"
	"testing"
	"time"

	ledgersync "github.com/goliatone/go-ledger-sync"
	_ "github.com/mattn/go-sqlite3"
)

func TestFilesystems_ReturnsPostgresAndSQLite(t *testing.T) {
	filesystems, err := Filesystems()
	if err != nil {
		t.Fatalf("filesystems: %v", err)
	}
	if len(filesystems) != 2 {
		t.Fatalf("expected 2 filesystems, got %d", len(filesystems))
	}

	var postgresFound bool
	var sqliteFound bool
	for _, entry := range filesystems {
		matches, globErr := fs.Glob(entry.FS, "*.up.sql")
		if globErr != nil {
			t.Fatalf("glob %s: %v", entry.Dialect, globErr)
		}
		if len(matches) == 0 {
			t.Fatalf("expected %s migration files, got none", entry.Dialect)
		}
		switch entry.Dialect {
		case DialectPostgres:
			postgresFound = true
		case DialectSQLite:
			sqliteFound = true
		}
	}

	if !postgresFound {
		t.Fatalf("expected postgres filesystem")
	}
	if !sqliteFound {
		t.Fatalf("expected sqlite filesystem")
	}
}

func TestRegister_UsesValidationTargets(t *testing.T) {
	var calls []string
	reg, err := Register(context.Background(), func(_ context.Context, dialect string, _ string, _ fs.FS) error {
		calls = append(calls, dialect)
		return nil
	}, WithValidationTargets(DialectSQLite))
	if err != nil {
		t.Fatalf("register: %v", err)
	}

	if len(calls) != 1 {
		t.Fatalf("expected 1 registration call, got %d", len(calls))
	}
	if calls[0] != DialectSQLite {
		t.Fatalf("expected sqlite registration, got %q", calls[0])
	}
	if reg.SourceLabel != "go-ledger-sync" {
		t.Fatalf("unexpected source label %q", reg.SourceLabel)
	}
}

func TestRegister_PropagatesRegisterErrors(t *testing.T) {
	_, err := Register(context.Background(), func(context.Context, string, string, fs.FS) error {
		return fmt.Errorf("boom")
	})
	if err == nil || !strings.Contains(err.Error(), "boom") {
		t.Fatalf("expected register error, got %v", err)
	}
	if _, err := Register(context.Background(), nil); err == nil {
		t.Fatalf("expected missing register function to fail")
	}
}

func TestRegister_DefaultsToBothDialectsInOrder(t *testing.T) {
	var calls []string
	_, err := Register(context.Background(), func(_ context.Context, dialect string, label string, _ fs.FS) error {
		calls = append(calls, dialect+":"+label)
		return nil
	}, WithSourceLabel(" ledger-host "))
	if err != nil {
		t.Fatalf("register: %v", err)
	}
	if strings.Join(calls, ",") != "postgres:ledger-host,sqlite:ledger-host" {
		t.Fatalf("unexpected registration order %v", calls)
	}
}

func TestCoreMigrationPair_ExistsForBothDialects(t *testing.T) {
	root := ledgersync.GetMigrationsFS()
	paths := []string{
		"data/sql/migrations/00001_ledger_core.up.sql",
		"data/sql/migrations/00001_ledger_core.down.sql",
		"data/sql/migrations/sqlite/00001_ledger_core.up.sql",
		"data/sql/migrations/sqlite/00001_ledger_core.down.sql",
	}
	for _, migrationPath := range paths {
		content, err := fs.ReadFile(root, migrationPath)
		if err != nil {
			t.Fatalf("read migration %s: %v", migrationPath, err)
		}
		if strings.TrimSpace(string(content)) == "" {
			t.Fatalf("expected migration %s to have SQL content", migrationPath)
		}
	}
}

func TestSQLiteCoreMigration_EnforcesMappingUniqueness(t *testing.T) {
	dsn := fmt.Sprintf("file:migrations-core-%d?mode=memory&cache=shared&_foreign_keys=on", time.Now().UnixNano())
	db, err := sql.Open("sqlite3", dsn)
	if err != nil {
		t.Fatalf("open sqlite db: %v", err)
	}
	defer func() { _ = db.Close() }()
	db.SetMaxOpenConns(1)

	ctx := context.Background()
	sqliteMigrations, err := fs.Sub(ledgersync.GetMigrationsFS(), "data/sql/migrations/sqlite")
	if err != nil {
		t.Fatalf("resolve sqlite migrations: %v", err)
	}
	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_ledger_core.up.sql"); err != nil {
		t.Fatalf("apply core migration: %v", err)
	}

	if _, err := db.ExecContext(ctx,
		`INSERT INTO ledger_integrations (id, tenant_id, service_type, status) VALUES (?, ?, ?, ?)`,
		"int-1", "tenant-1", "quickbooks", "Connected",
	); err != nil {
		t.Fatalf("insert integration: %v", err)
	}

	insertMapping := `INSERT INTO ledger_entity_mappings (id, tenant_id, integration_id, entity_type, external_id, local_id, sync_status) VALUES (?, ?, ?, ?, ?, ?, ?)`
	if _, err := db.ExecContext(ctx, insertMapping, "m-1", "tenant-1", "int-1", "Customer", "58", "cus-1", "Synced"); err != nil {
		t.Fatalf("insert mapping: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertMapping, "m-2", "tenant-1", "int-1", "Customer", "59", "cus-1", "Synced"); err == nil {
		t.Fatalf("expected duplicate local id to be rejected")
	}
	if _, err := db.ExecContext(ctx, insertMapping, "m-3", "tenant-1", "int-1", "Customer", "58", "cus-2", "Synced"); err == nil {
		t.Fatalf("expected duplicate external id to be rejected")
	}
	if _, err := db.ExecContext(ctx, insertMapping, "m-4", "tenant-1", "int-1", "Vendor", "58", "cus-1", "Synced"); err != nil {
		t.Fatalf("expected a different entity type to be independent: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertMapping, "m-5", "tenant-1", "int-1", "Invoice", nil, "inv-1", "Synced"); err != nil {
		t.Fatalf("insert unmapped row: %v", err)
	}
	if _, err := db.ExecContext(ctx, insertMapping, "m-6", "tenant-1", "int-1", "Invoice", nil, "inv-2", "Synced"); err != nil {
		t.Fatalf("expected null external ids not to collide: %v", err)
	}

	if err := execSQLMigration(ctx, db, sqliteMigrations, "00001_ledger_core.down.sql"); err != nil {
		t.Fatalf("apply core migration down: %v", err)
	}
	var remaining int
	if err := db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name LIKE 'ledger_%'`,
	).Scan(&remaining); err != nil {
		t.Fatalf("count tables: %v", err)
	}
	if remaining != 0 {
		t.Fatalf("expected rollback to drop every ledger table, %d left", remaining)
	}
}

func execSQLMigration(ctx context.Context, db *sql.DB, fsys fs.FS, filename string) error {
	content, err := fs.ReadFile(fsys, filepath.Clean(filename))
	if err != nil {
		return err
	}
	_, err = db.ExecContext(ctx, string(content))
	return err
}
