package database

// migrate.go runs schema migrations with goose, the only migration tool
// found across the retrieved corpus. Embedding keeps the binary
// self-contained; no separate migrations directory needs to ship alongside
// the executable.

import (
	"database/sql"
	"embed"

	"github.com/pressly/goose/v3"
)

//go:embed migrations/*.sql
var migrationFS embed.FS

// Migrate applies every pending migration in migrations/. It is safe to
// call on every startup; goose tracks applied versions in its own table.
func Migrate(db *sql.DB) error {
	goose.SetBaseFS(migrationFS)
	if err := goose.SetDialect("mysql"); err != nil {
		return err
	}
	return goose.Up(db, "migrations")
}
