// Package repomanager provides a concrete RepositoryManager for PostgreSQL,
// wiring together repository constructors and database migrations (via goose).
package repomanager

import (
	"context"
	"database/sql"
	"fmt"

	"github.com/dmitrijs2005/landvault/internal/dbx"
	"github.com/dmitrijs2005/landvault/internal/server/migrations"
	"github.com/dmitrijs2005/landvault/internal/server/repositories/audits"
	"github.com/dmitrijs2005/landvault/internal/server/repositories/documents"
	"github.com/dmitrijs2005/landvault/internal/server/repositories/lands"
	_ "github.com/jackc/pgx/v5/stdlib"
	"github.com/pressly/goose/v3"
)

// PostgresRepositoryManager vends PostgreSQL-backed repository
// implementations and exposes schema migration and validation hooks.
type PostgresRepositoryManager struct{}

// Lands returns a lands.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Lands(db dbx.DBTX) lands.Repository {
	return lands.NewPostgresRepository(db)
}

// Documents returns a documents.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Documents(db dbx.DBTX) documents.Repository {
	return documents.NewPostgresRepository(db)
}

// Audits returns an audits.Repository bound to the provided DBTX.
func (m *PostgresRepositoryManager) Audits(db dbx.DBTX) audits.Repository {
	return audits.NewPostgresRepository(db)
}

// gooseUpContext is a seam for testing goose.UpContext.
var gooseUpContext = func(ctx context.Context, db *sql.DB, dir string, opts ...goose.OptionsFunc) error {
	return goose.UpContext(ctx, db, dir, opts...)
}

// RunMigrations sets up goose with the embedded migrations and runs them
// against the provided database connection.
func (m *PostgresRepositoryManager) RunMigrations(ctx context.Context, db *sql.DB) error {
	goose.SetBaseFS(migrations.Migrations)
	goose.SetDialect("pgx")
	if err := gooseUpContext(ctx, db, "."); err != nil {
		return err
	}
	return nil
}

// requiredColumns are the columns the lifecycle and lock code depend on.
// They are verified once at startup instead of being probed at runtime.
var requiredColumns = map[string][]string{
	"document_versions": {
		"id", "land_id", "document_type", "doc_slot", "version_number",
		"is_latest_version", "parent_document_id", "version_status",
		"review_locked_by", "review_locked_at",
	},
	"audit_trail": {
		"id", "document_id", "land_id", "action_type", "metadata",
	},
	"lands": {
		"id", "parcel_number", "owner_id",
	},
}

// ValidateSchema verifies the migrated schema contains every column the
// server relies on, failing startup early on a half-migrated database.
func (m *PostgresRepositoryManager) ValidateSchema(ctx context.Context, db *sql.DB) error {
	query := `
		SELECT column_name FROM information_schema.columns
		WHERE table_schema = current_schema() AND table_name = $1
	`
	for table, columns := range requiredColumns {
		rows, err := db.QueryContext(ctx, query, table)
		if err != nil {
			return fmt.Errorf("schema check for %s: %w", table, err)
		}
		present := make(map[string]struct{})
		for rows.Next() {
			var name string
			if err := rows.Scan(&name); err != nil {
				rows.Close()
				return fmt.Errorf("schema check for %s: %w", table, err)
			}
			present[name] = struct{}{}
		}
		if err := rows.Err(); err != nil {
			rows.Close()
			return fmt.Errorf("schema check for %s: %w", table, err)
		}
		rows.Close()

		if len(present) == 0 {
			return fmt.Errorf("schema check: table %s is missing", table)
		}
		for _, column := range columns {
			if _, ok := present[column]; !ok {
				return fmt.Errorf("schema check: column %s.%s is missing", table, column)
			}
		}
	}
	return nil
}

// NewPostgresRepositoryManager constructs a PostgreSQL-backed RepositoryManager.
func NewPostgresRepositoryManager() RepositoryManager {
	return &PostgresRepositoryManager{}
}
