// Command migrate applies BonsCompte's schema.sql (users, projects,
// participants, payments, contributions, history) to the sqlite database at
// DATABASE_PATH, idempotently — every statement in schema.sql is a CREATE
// TABLE/INDEX IF NOT EXISTS, so re-running against an already-migrated
// database is a no-op.
package main

import (
	"database/sql"
	"log/slog"
	"os"

	_ "modernc.org/sqlite"
)

func main() {
	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./bonscompte.db"
	}

	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		slog.Error("open database", "path", dbPath, "error", err)
		os.Exit(1)
	}
	defer db.Close()

	tx, err := db.Begin()
	if err != nil {
		slog.Error("begin transaction", "error", err)
		os.Exit(1)
	}
	defer tx.Rollback()

	query, err := os.ReadFile("./schema.sql")
	if err != nil {
		slog.Error("read schema.sql", "error", err)
		os.Exit(1)
	}

	if _, err := tx.Exec(string(query)); err != nil {
		slog.Error("apply schema", "error", err)
		os.Exit(1)
	}

	if err := tx.Commit(); err != nil {
		slog.Error("commit schema migration", "error", err)
		os.Exit(1)
	}

	slog.Info("schema applied", "path", dbPath)
}
