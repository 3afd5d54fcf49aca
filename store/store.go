// Package store persists BonsCompte's domain entities to SQLite and wires
// the computation core (domain, ledger, allocator, recurrence, settlement,
// horizon, changelog) to them, implementing the operation table from spec
// §6. It generalizes the teacher's per-feature handler packages (each of
// which opened its own *sql.DB queries inline) into one storage adapter the
// httpapi layer calls through.
package store

import (
	"database/sql"
	"fmt"
	"time"

	"github.com/google/uuid"

	"bonscompte.example/bonscompte/bonserr"
)

// parseTimestamp accepts either RFC3339Nano (as changelog/Append stamps)
// or SQLite's strftime millisecond format (the payments.created_at
// default), since both appear in the tables this package reads.
func parseTimestamp(s string) (time.Time, error) {
	if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
		return t, nil
	}
	return time.Parse("2006-01-02T15:04:05.000Z", s)
}

// Store is the SQLite-backed adapter over the §6 persistence contract.
// A *Store is safe for concurrent use; SQLite's own locking plus the
// per-project history append serializes concurrent mutations to the
// same project (spec §5's "project-scoped logical lock").
type Store struct {
	db *sql.DB
}

// New wraps an open database handle. The caller owns the handle's
// lifecycle (open/close, connection pool tuning).
func New(db *sql.DB) *Store {
	return &Store{db: db}
}

// newID generates an external-facing identifier for a newly created
// participant, payment, or project, matching the DOMAIN STACK's choice of
// uuid.NewString() for ids the teacher's original schema left to
// AUTOINCREMENT.
func newID() string {
	return uuid.NewString()
}

func wrapDBErr(err error) *bonserr.Error {
	if err == nil {
		return nil
	}
	return bonserr.Wrap(bonserr.DatabaseError, err)
}

// projectExists is used by every project-scoped operation to fail fast
// with PROJECT_NOT_FOUND before touching any other table.
func (s *Store) projectExists(q querier, projectID string) (bool, *bonserr.Error) {
	var exists int
	err := q.QueryRow("SELECT 1 FROM projects WHERE id = ?", projectID).Scan(&exists)
	if err == sql.ErrNoRows {
		return false, nil
	}
	if err != nil {
		return false, wrapDBErr(err)
	}
	return true, nil
}

func (s *Store) requireProject(q querier, projectID string) *bonserr.Error {
	ok, berr := s.projectExists(q, projectID)
	if berr != nil {
		return berr
	}
	if !ok {
		return bonserr.New(bonserr.ProjectNotFound, fmt.Sprintf("project %q not found", projectID))
	}
	return nil
}

// querier is satisfied by *sql.DB and *sql.Tx, letting every read helper
// below run either standalone or inside a mutation's transaction.
type querier interface {
	QueryRow(query string, args ...any) *sql.Row
	Query(query string, args ...any) (*sql.Rows, error)
	Exec(query string, args ...any) (sql.Result, error)
}

// CreateProject inserts a new project and returns its assigned id, logging
// a CREATE change-log record in the same transaction (spec §4.7: "Every
// committed mutation of a Payment, Participant, or Project generates an
// append-only record").
func (s *Store) CreateProject(name, actor, correlationID string, now time.Time) (string, *bonserr.Error) {
	id := newID()

	tx, err := s.db.Begin()
	if err != nil {
		return "", wrapDBErr(err)
	}
	defer tx.Rollback()

	if _, err := tx.Exec("INSERT INTO projects (id, name) VALUES (?, ?)", id, name); err != nil {
		return "", wrapDBErr(err)
	}
	if _, berr := s.appendHistory(tx, id, historyRecord{
		Actor: actor, CorrelationID: correlationID, EntityType: "project", EntityID: id,
		Action: "CREATE", PayloadAfter: map[string]any{"id": id, "name": name},
	}, now); berr != nil {
		return "", berr
	}
	if err := tx.Commit(); err != nil {
		return "", wrapDBErr(err)
	}
	return id, nil
}
