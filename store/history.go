package store

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"bonscompte.example/bonscompte/bonserr"
	"bonscompte.example/bonscompte/changelog"
)

// historyRecord is the caller-facing shape appendHistory turns into a
// changelog.Record and persists. Action/EntityType/EntityID/Actor/
// CorrelationID are required; PayloadBefore/PayloadAfter/UndoesID are
// optional depending on Action.
type historyRecord struct {
	Actor         string
	CorrelationID string
	EntityType    string
	EntityID      string
	Action        changelog.Action
	PayloadBefore any
	PayloadAfter  any
	UndoesID      int64
}

// appendHistory computes the next hash-chain link for projectID and
// inserts it, all within the caller's transaction, so a mutation's history
// row commits or rolls back atomically with the row it describes (spec
// §5's "change-log record(s) under the same transaction").
func (s *Store) appendHistory(q querier, projectID string, rec historyRecord, now time.Time) (changelog.Record, *bonserr.Error) {
	tip, tipID, berr := s.tipHash(q, projectID)
	if berr != nil {
		return changelog.Record{}, berr
	}

	before, err := marshalPayload(rec.PayloadBefore)
	if err != nil {
		return changelog.Record{}, bonserr.Wrap(bonserr.InternalError, err)
	}
	after, err := marshalPayload(rec.PayloadAfter)
	if err != nil {
		return changelog.Record{}, bonserr.Wrap(bonserr.InternalError, err)
	}

	built, err := changelog.HashNext(tip, changelog.Record{
		CorrelationID: rec.CorrelationID,
		Actor:         rec.Actor,
		EntityType:    rec.EntityType,
		EntityID:      rec.EntityID,
		Action:        rec.Action,
		PayloadBefore: rec.PayloadBefore,
		PayloadAfter:  rec.PayloadAfter,
		UndoesID:      rec.UndoesID,
	}, now, tipID+1)
	if err != nil {
		return changelog.Record{}, bonserr.Wrap(bonserr.InternalError, err)
	}

	_, execErr := q.Exec(`
		INSERT INTO history (id, project_id, timestamp, correlation_id, actor, entity_type, entity_id,
			action, payload_before, payload_after, undoes_id, previous_hash, hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		built.ID, projectID, built.Timestamp, built.CorrelationID, built.Actor, built.EntityType, built.EntityID,
		string(built.Action), before, after, built.UndoesID, built.PreviousHash, built.Hash)
	if execErr != nil {
		return changelog.Record{}, wrapDBErr(execErr)
	}
	return built, nil
}

func marshalPayload(v any) (sql.NullString, error) {
	if v == nil {
		return sql.NullString{}, nil
	}
	raw, err := json.Marshal(v)
	if err != nil {
		return sql.NullString{}, err
	}
	return sql.NullString{String: string(raw), Valid: true}, nil
}

func unmarshalPayload(s sql.NullString) (any, error) {
	if !s.Valid {
		return nil, nil
	}
	var v any
	if err := json.Unmarshal([]byte(s.String), &v); err != nil {
		return nil, err
	}
	return v, nil
}

// tipHash returns the hash and id of the last history row for a project,
// or the genesis hash and id 0 when the project has no history yet.
func (s *Store) tipHash(q querier, projectID string) (string, int64, *bonserr.Error) {
	var hash string
	var id int64
	err := q.QueryRow("SELECT hash, id FROM history WHERE project_id = ? ORDER BY id DESC LIMIT 1", projectID).Scan(&hash, &id)
	if err == sql.ErrNoRows {
		return "", 0, nil
	}
	if err != nil {
		return "", 0, wrapDBErr(err)
	}
	return hash, id, nil
}

// History returns every change-log record for a project in append order.
func (s *Store) History(projectID string) ([]changelog.Record, *bonserr.Error) {
	if berr := s.requireProject(s.db, projectID); berr != nil {
		return nil, berr
	}
	rows, err := s.db.Query(`
		SELECT id, timestamp, correlation_id, actor, entity_type, entity_id, action,
			payload_before, payload_after, undoes_id, previous_hash, hash
		FROM history WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, wrapDBErr(err)
	}
	defer rows.Close()

	var out []changelog.Record
	for rows.Next() {
		rec, err := scanHistoryRow(rows)
		if err != nil {
			return nil, wrapDBErr(err)
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(err)
	}
	return out, nil
}

func scanHistoryRow(row rowScanner) (changelog.Record, error) {
	var rec changelog.Record
	var action string
	var before, after sql.NullString
	err := row.Scan(&rec.ID, &rec.Timestamp, &rec.CorrelationID, &rec.Actor, &rec.EntityType, &rec.EntityID,
		&action, &before, &after, &rec.UndoesID, &rec.PreviousHash, &rec.Hash)
	if err != nil {
		return changelog.Record{}, err
	}
	rec.Action = changelog.Action(action)
	rec.PayloadBefore, err = unmarshalPayload(before)
	if err != nil {
		return changelog.Record{}, err
	}
	rec.PayloadAfter, err = unmarshalPayload(after)
	if err != nil {
		return changelog.Record{}, err
	}
	return rec, nil
}

// VerifyChain recomputes the project's hash chain from genesis and reports
// the first id where it diverges, per spec §6's verify_chain operation.
func (s *Store) VerifyChain(projectID string) (changelog.VerifyResult, *bonserr.Error) {
	records, berr := s.History(projectID)
	if berr != nil {
		return changelog.VerifyResult{}, berr
	}
	return changelog.VerifyChain(changelog.LoadChain(records)), nil
}

// Undo synthesizes and appends the inverse of historyID's mutation (spec
// §4.7), refusing to undo an already-undone record or an UNDO record
// itself.
func (s *Store) Undo(projectID string, historyID int64, actor, correlationID string, now time.Time) (changelog.Record, *bonserr.Error) {
	records, berr := s.History(projectID)
	if berr != nil {
		return changelog.Record{}, berr
	}
	chain := changelog.LoadChain(records)
	target, ok := chain.ByID(historyID)
	if !ok {
		return changelog.Record{}, bonserr.New(bonserr.InvalidInput, fmt.Sprintf("history entry %d not found", historyID))
	}
	if chain.IsUndone(historyID) {
		return changelog.Record{}, bonserr.New(bonserr.InvalidInput, fmt.Sprintf("history entry %d has already been undone", historyID))
	}

	inverse, err := changelog.Synthesize(target, actor, correlationID)
	if err != nil {
		return changelog.Record{}, bonserr.Wrap(bonserr.InvalidInput, err)
	}

	tx, execErr := s.db.Begin()
	if execErr != nil {
		return changelog.Record{}, wrapDBErr(execErr)
	}
	defer tx.Rollback()

	if berr := s.applyInverseMutation(tx, target, inverse); berr != nil {
		return changelog.Record{}, berr
	}
	appended, berr := s.appendHistory(tx, projectID, historyRecord{
		Actor: actor, CorrelationID: correlationID, EntityType: inverse.EntityType, EntityID: inverse.EntityID,
		Action: changelog.Undo, PayloadBefore: inverse.PayloadBefore, PayloadAfter: inverse.PayloadAfter,
		UndoesID: historyID,
	}, now)
	if berr != nil {
		return changelog.Record{}, berr
	}
	if err := tx.Commit(); err != nil {
		return changelog.Record{}, wrapDBErr(err)
	}
	return appended, nil
}

// applyInverseMutation replays the synthesized inverse against the live
// tables, so undo does not just log an UNDO record but actually restores
// the prior state (spec §4.7: "UNDO synthesizes and applies the inverse
// mutation"). The branch taken is driven by target.Action — the mutation
// being undone — not inverse.Action, which changelog.Synthesize always
// sets to UNDO.
func (s *Store) applyInverseMutation(q querier, target, inverse changelog.Record) *bonserr.Error {
	switch target.EntityType {
	case "payment":
		return s.applyInversePayment(q, target, inverse)
	case "participant":
		return s.applyInverseParticipant(q, target, inverse)
	case "project":
		return s.applyInverseProject(q, target, inverse)
	}
	return nil
}

func (s *Store) applyInversePayment(q querier, target, inverse changelog.Record) *bonserr.Error {
	switch target.Action {
	case changelog.Create:
		if _, err := q.Exec("DELETE FROM contributions WHERE payment_id = ?", inverse.EntityID); err != nil {
			return wrapDBErr(err)
		}
		if _, err := q.Exec("DELETE FROM payments WHERE id = ?", inverse.EntityID); err != nil {
			return wrapDBErr(err)
		}
	case changelog.Delete:
		payment, err := paymentFromPayload(inverse.PayloadAfter)
		if err != nil {
			return bonserr.Wrap(bonserr.InternalError, err)
		}
		return s.insertPayment(q, payment)
	case changelog.Update:
		payment, err := paymentFromPayload(inverse.PayloadAfter)
		if err != nil {
			return bonserr.Wrap(bonserr.InternalError, err)
		}
		return s.updatePaymentRow(q, payment)
	}
	return nil
}

// applyInverseParticipant undoes a CREATE by deleting the participant row.
// Update/Delete branches are unreachable today — store has no
// UpdateParticipant/DeleteParticipant, so no such history record is ever
// appended — left unhandled rather than speculatively implemented.
func (s *Store) applyInverseParticipant(q querier, target, inverse changelog.Record) *bonserr.Error {
	if target.Action != changelog.Create {
		return nil
	}
	if _, err := q.Exec("DELETE FROM participants WHERE id = ?", inverse.EntityID); err != nil {
		return wrapDBErr(err)
	}
	return nil
}

// applyInverseProject deliberately does not delete the project row: a
// project's own CREATE is the only history record that would need its
// undo's own appendHistory to insert into the very table a cascading
// delete would just have orphaned (participants/payments/history all
// reference project_id). The CREATE is still logged for auditability and
// appears in VerifyChain's hash chain, but undoing it is a no-op rather
// than a destructive cascade nothing in spec §4.7's worked examples (all
// one-off payment mistakes) calls for.
func (s *Store) applyInverseProject(q querier, target, inverse changelog.Record) *bonserr.Error {
	return nil
}
