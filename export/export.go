// Package export assembles a project's full participant/payment/history
// set into one JSON document, generalizing the teacher's export package
// (export/handlers.go's FullExport struct, one user+partner's spendings/
// deposits/transfers/AI-jobs) to BonsCompte's project-scoped dual-ledger
// shape: every participant, every payment (with its recurrence and
// contributions), and the full change-log history.
package export

import (
	"time"

	"bonscompte.example/bonscompte/bonserr"
	"bonscompte.example/bonscompte/changelog"
	"bonscompte.example/bonscompte/domain"
	"bonscompte.example/bonscompte/store"
)

// ParticipantExport mirrors domain.Participant for the wire, dropping
// nothing — unlike the teacher's export, which only ever needed username/
// first_name for two fixed users, every participant attribute here is a
// first-class column, so it all round-trips.
type ParticipantExport struct {
	ID                    string  `json:"id"`
	Name                  string  `json:"name"`
	DefaultWeight         float64 `json:"default_weight"`
	Kind                  string  `json:"kind"`
	LinkedUserID          string  `json:"linked_user_id,omitempty"`
	WarningHorizonAccount string  `json:"warning_horizon_account,omitempty"`
	WarningHorizonUsers   string  `json:"warning_horizon_users,omitempty"`
}

// ContributionExport mirrors domain.Contribution.
type ContributionExport struct {
	ParticipantID string  `json:"participant_id"`
	Weight        float64 `json:"weight"`
}

// RecurrenceExport mirrors recurrence.Spec; nil in PaymentExport for a
// ONE_OFF payment, matching paymentWire's own convention in httpapi.
type RecurrenceExport struct {
	Type      string  `json:"type"`
	Interval  int     `json:"interval"`
	Weekdays  [][]int `json:"weekdays,omitempty"`
	Monthdays []int   `json:"monthdays,omitempty"`
	Months    []int   `json:"months,omitempty"`
	EndDate   string  `json:"end_date,omitempty"`
	Count     *int    `json:"count,omitempty"`
}

// PaymentExport mirrors domain.Payment.
type PaymentExport struct {
	ID                         string               `json:"id"`
	Amount                     float64              `json:"amount"`
	Description                string               `json:"description"`
	CategoryID                 string               `json:"category_id,omitempty"`
	Date                       string               `json:"date"`
	PayerID                    string               `json:"payer_id,omitempty"`
	ReceiverAccountID          string               `json:"receiver_account_id,omitempty"`
	IsFinal                    bool                 `json:"is_final"`
	AffectsBalance             bool                 `json:"affects_balance"`
	AffectsPayerExpectation    bool                 `json:"affects_payer_expectation"`
	AffectsReceiverExpectation bool                 `json:"affects_receiver_expectation"`
	Recurrence                 *RecurrenceExport    `json:"recurrence,omitempty"`
	Contributions              []ContributionExport `json:"contributions"`
}

// HistoryExport mirrors changelog.Record, hash chain included so an
// exported file can be independently re-verified offline.
type HistoryExport struct {
	ID            int64  `json:"id"`
	Timestamp     string `json:"timestamp"`
	CorrelationID string `json:"correlation_id"`
	Actor         string `json:"actor"`
	EntityType    string `json:"entity_type"`
	EntityID      string `json:"entity_id"`
	Action        string `json:"action"`
	PayloadBefore any    `json:"payload_before,omitempty"`
	PayloadAfter  any    `json:"payload_after,omitempty"`
	UndoesID      int64  `json:"undoes_id,omitempty"`
	PreviousHash  string `json:"previous_hash"`
	Hash          string `json:"hash"`
}

// FullExport is a project's complete exportable state, assembled fresh at
// ExportedAt from the store — nothing here is itself persisted.
type FullExport struct {
	ExportedAt   time.Time           `json:"exported_at"`
	ProjectID    string              `json:"project_id"`
	Participants []ParticipantExport `json:"participants"`
	Payments     []PaymentExport     `json:"payments"`
	History      []HistoryExport     `json:"history"`
}

// Export assembles a FullExport for projectID from st, the project-scoped
// equivalent of the teacher's HandleExportAllData fetch sequence (user,
// partner, then every domain table in turn) but reading through the store
// package's existing query surface instead of ad-hoc SQL.
func Export(st *store.Store, projectID string, now time.Time) (FullExport, *bonserr.Error) {
	participants, berr := st.ListParticipants(projectID)
	if berr != nil {
		return FullExport{}, berr
	}
	payments, berr := st.ListPayments(projectID)
	if berr != nil {
		return FullExport{}, berr
	}
	history, berr := st.History(projectID)
	if berr != nil {
		return FullExport{}, berr
	}

	out := FullExport{
		ExportedAt:   now.UTC(),
		ProjectID:    projectID,
		Participants: make([]ParticipantExport, len(participants)),
		Payments:     make([]PaymentExport, len(payments)),
		History:      make([]HistoryExport, len(history)),
	}
	for i, p := range participants {
		out.Participants[i] = toParticipantExport(p)
	}
	for i, p := range payments {
		out.Payments[i] = toPaymentExport(p)
	}
	for i, rec := range history {
		out.History[i] = toHistoryExport(rec)
	}
	return out, nil
}

func toParticipantExport(p domain.Participant) ParticipantExport {
	return ParticipantExport{
		ID: p.ID, Name: p.Name, DefaultWeight: p.DefaultWeight, Kind: string(p.Kind),
		LinkedUserID: p.LinkedUserID, WarningHorizonAccount: string(p.WarningHorizonAccount),
		WarningHorizonUsers: string(p.WarningHorizonUsers),
	}
}

func toPaymentExport(p domain.Payment) PaymentExport {
	out := PaymentExport{
		ID: p.ID, Amount: p.Amount.ToFloat(), Description: p.Description, CategoryID: p.CategoryID, Date: p.Date.String(),
		PayerID: p.PayerID, ReceiverAccountID: p.ReceiverAccountID, IsFinal: p.IsFinal,
		AffectsBalance: p.AffectsBalance, AffectsPayerExpectation: p.AffectsPayerExpectation,
		AffectsReceiverExpectation: p.AffectsReceiverExpectation,
	}
	for _, c := range p.Contributions {
		out.Contributions = append(out.Contributions, ContributionExport{ParticipantID: c.ParticipantID, Weight: c.Weight})
	}
	if p.Recurrence != nil {
		re := &RecurrenceExport{
			Type: string(p.Recurrence.Type), Interval: p.Recurrence.Interval,
			Weekdays: p.Recurrence.Weekdays, Monthdays: p.Recurrence.Monthdays, Months: p.Recurrence.Months,
			Count: p.Recurrence.Count,
		}
		if p.Recurrence.EndDate != nil {
			re.EndDate = p.Recurrence.EndDate.String()
		}
		out.Recurrence = re
	}
	return out
}

func toHistoryExport(rec changelog.Record) HistoryExport {
	return HistoryExport{
		ID: rec.ID, Timestamp: rec.Timestamp, CorrelationID: rec.CorrelationID, Actor: rec.Actor,
		EntityType: rec.EntityType, EntityID: rec.EntityID, Action: string(rec.Action),
		PayloadBefore: rec.PayloadBefore, PayloadAfter: rec.PayloadAfter,
		UndoesID: rec.UndoesID, PreviousHash: rec.PreviousHash, Hash: rec.Hash,
	}
}
