package testutil

import (
	"context"
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"regexp"
	"strings"
	"testing"
	"time"

	"chip-ledger/internal/config"
	"chip-ledger/internal/store"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

var testSchemaNamePattern = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// OpenSQLiteStore returns an in-memory ledger closed at test end.
func OpenSQLiteStore(t *testing.T) *store.SQLite {
	t.Helper()
	st, err := store.NewSQLite(context.Background(), ":memory:")
	if err != nil {
		t.Fatalf("open sqlite store: %v", err)
	}
	t.Cleanup(st.Close)
	return st
}

// OpenPostgresStore gives the test its own schema with migrations applied.
// It skips when TEST_POSTGRES_DSN is unset.
func OpenPostgresStore(t *testing.T) *store.Postgres {
	t.Helper()
	cfg, err := config.LoadTest()
	if err != nil {
		t.Fatalf("load test config: %v", err)
	}
	if !cfg.HasPostgres() {
		t.Skip("skip test db: TEST_POSTGRES_DSN not set")
	}
	dsn := cfg.PostgresDSN
	schema := fmt.Sprintf("test_%d", time.Now().UnixNano())
	ctx := context.Background()

	base, err := pgxpool.New(ctx, dsn)
	if err != nil {
		t.Fatalf("open base db: %v", err)
	}
	createSchemaSQL, err := schemaDDL("CREATE SCHEMA %s", schema)
	if err != nil {
		base.Close()
		t.Fatalf("invalid schema name: %v", err)
	}
	if _, err := base.Exec(ctx, createSchemaSQL); err != nil {
		base.Close()
		t.Fatalf("create schema: %v", err)
	}
	base.Close()

	st, err := store.NewPostgres(ctx, withSearchPath(dsn, schema))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	if err := applySchema(ctx, st); err != nil {
		st.Close()
		t.Fatalf("apply schema: %v", err)
	}

	t.Cleanup(func() {
		st.Close()
		base, err := pgxpool.New(context.Background(), dsn)
		if err != nil {
			return
		}
		defer base.Close()
		if dropSchemaSQL, ddlErr := schemaDDL("DROP SCHEMA %s CASCADE", schema); ddlErr == nil {
			_, _ = base.Exec(context.Background(), dropSchemaSQL)
		}
	})
	return st
}

func applySchema(ctx context.Context, st *store.Postgres) error {
	path, err := findInitMigrationPath()
	if err != nil {
		return err
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return err
	}
	_, err = st.Pool.Exec(ctx, string(b))
	return err
}

func findInitMigrationPath() (string, error) {
	dir, err := os.Getwd()
	if err != nil {
		return "", err
	}
	for i := 0; i < 6; i++ {
		p := filepath.Join(dir, "migrations", "000001_init.up.sql")
		if _, err := os.Stat(p); err == nil {
			return p, nil
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return "", fmt.Errorf("000001_init.up.sql not found from %s", dir)
}

func withSearchPath(dsn, schema string) string {
	sep := "?"
	if strings.Contains(dsn, "?") {
		sep = "&"
	}
	return dsn + sep + "search_path=" + url.QueryEscape(schema)
}

func schemaDDL(format, schema string) (string, error) {
	if !testSchemaNamePattern.MatchString(schema) {
		return "", fmt.Errorf("schema %q does not match required pattern", schema)
	}
	return fmt.Sprintf(format, pgx.Identifier{schema}.Sanitize()), nil
}
