package store

import (
	"database/sql"
	"fmt"
	"time"

	"bonscompte.example/bonscompte/bonserr"
	"bonscompte.example/bonscompte/domain"
)

// CreateParticipant inserts a PERSON or POOL into a project after running
// domain.Participant.Validate, logging a CREATE change-log record in the
// same transaction (spec §4.7: every Participant mutation is logged,
// matching CreatePayment's own insert-then-appendHistory shape).
func (s *Store) CreateParticipant(projectID string, p domain.Participant, actor, correlationID string, now time.Time) (domain.Participant, *bonserr.Error) {
	if berr := s.requireProject(s.db, projectID); berr != nil {
		return domain.Participant{}, berr
	}
	p.ProjectID = projectID
	if berr := p.Validate(); berr != nil {
		return domain.Participant{}, berr
	}
	if p.ID == "" {
		p.ID = newID()
	}

	var linkedUserID sql.NullString
	if p.LinkedUserID != "" {
		linkedUserID = sql.NullString{String: p.LinkedUserID, Valid: true}
	}

	tx, err := s.db.Begin()
	if err != nil {
		return domain.Participant{}, wrapDBErr(err)
	}
	defer tx.Rollback()

	_, execErr := tx.Exec(`
		INSERT INTO participants (id, project_id, name, default_weight, kind, linked_user_id,
			warning_horizon_account, warning_horizon_users)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)`,
		p.ID, p.ProjectID, p.Name, p.DefaultWeight, string(p.Kind), linkedUserID,
		string(p.WarningHorizonAccount), string(p.WarningHorizonUsers))
	if execErr != nil {
		return domain.Participant{}, wrapDBErr(execErr)
	}
	if _, berr := s.appendHistory(tx, projectID, historyRecord{
		Actor: actor, CorrelationID: correlationID, EntityType: "participant", EntityID: p.ID,
		Action: "CREATE", PayloadAfter: participantPayload(p),
	}, now); berr != nil {
		return domain.Participant{}, berr
	}
	if err := tx.Commit(); err != nil {
		return domain.Participant{}, wrapDBErr(err)
	}
	return p, nil
}

// participantPayload is the JSON-able snapshot stored in a participant
// change-log record's payload_after, mirroring paymentPayload's shape.
func participantPayload(p domain.Participant) map[string]any {
	return map[string]any{
		"id": p.ID, "project_id": p.ProjectID, "name": p.Name,
		"default_weight": p.DefaultWeight, "kind": string(p.Kind),
		"linked_user_id":          p.LinkedUserID,
		"warning_horizon_account": string(p.WarningHorizonAccount),
		"warning_horizon_users":   string(p.WarningHorizonUsers),
	}
}

// ListParticipants returns every participant of a project, ordered by id
// for deterministic iteration.
func (s *Store) ListParticipants(projectID string) ([]domain.Participant, *bonserr.Error) {
	if berr := s.requireProject(s.db, projectID); berr != nil {
		return nil, berr
	}
	rows, err := s.db.Query(`
		SELECT id, project_id, name, default_weight, kind, linked_user_id,
			warning_horizon_account, warning_horizon_users
		FROM participants WHERE project_id = ? ORDER BY id`, projectID)
	if err != nil {
		return nil, wrapDBErr(err)
	}
	defer rows.Close()

	var out []domain.Participant
	for rows.Next() {
		p, err := scanParticipant(rows)
		if err != nil {
			return nil, wrapDBErr(err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBErr(err)
	}
	return out, nil
}

// GetParticipant fetches a single participant by id, scoped to project.
func (s *Store) GetParticipant(projectID, participantID string) (domain.Participant, *bonserr.Error) {
	row := s.db.QueryRow(`
		SELECT id, project_id, name, default_weight, kind, linked_user_id,
			warning_horizon_account, warning_horizon_users
		FROM participants WHERE project_id = ? AND id = ?`, projectID, participantID)
	p, err := scanParticipant(row)
	if err == sql.ErrNoRows {
		return domain.Participant{}, bonserr.New(bonserr.ParticipantNotFound, fmt.Sprintf("participant %q not found", participantID))
	}
	if err != nil {
		return domain.Participant{}, wrapDBErr(err)
	}
	return p, nil
}

// rowScanner is satisfied by both *sql.Row and *sql.Rows, letting
// scanParticipant serve GetParticipant and ListParticipants alike.
type rowScanner interface {
	Scan(dest ...any) error
}

func scanParticipant(row rowScanner) (domain.Participant, error) {
	var p domain.Participant
	var kind string
	var linkedUserID sql.NullString
	var whAccount, whUsers string
	err := row.Scan(&p.ID, &p.ProjectID, &p.Name, &p.DefaultWeight, &kind, &linkedUserID, &whAccount, &whUsers)
	if err != nil {
		return domain.Participant{}, err
	}
	p.Kind = domain.AccountKind(kind)
	if linkedUserID.Valid {
		p.LinkedUserID = linkedUserID.String
	}
	p.WarningHorizonAccount = domain.WarningHorizon(whAccount)
	p.WarningHorizonUsers = domain.WarningHorizon(whUsers)
	return p, nil
}
