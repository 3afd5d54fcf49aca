package domain

import (
	"fmt"

	"bonscompte.example/bonscompte/allocator"
	"bonscompte.example/bonscompte/calendar"
	"bonscompte.example/bonscompte/ledger"
	"bonscompte.example/bonscompte/recurrence"
)

// Occurrences expands a Payment into its ledger.Occurrence stream, bounded
// by horizon, allocating each occurrence's Shares with the allocator
// package (spec §4.3/§4.4's data-flow: RecurrenceScheduler -> ShareAllocator
// -> LedgerEngine). A ONE_OFF payment (Recurrence == nil) yields one
// occurrence on its own date when that date is on or before horizon, and
// none when the date is after horizon.
func Occurrences(p Payment, horizon calendar.Date) []ledger.Occurrence {
	contributors := make([]allocator.Contributor, len(p.Contributions))
	for i, c := range p.Contributions {
		contributors[i] = allocator.Contributor{ParticipantID: c.ParticipantID, Weight: c.Weight}
	}

	var dates []calendar.Date
	if p.Recurrence == nil {
		if !p.Date.After(horizon) {
			dates = []calendar.Date{p.Date}
		}
	} else {
		for d := range recurrence.Expand(*p.Recurrence, p.Date, horizon) {
			dates = append(dates, d)
		}
	}

	occurrences := make([]ledger.Occurrence, len(dates))
	for i, d := range dates {
		occurrences[i] = ledger.Occurrence{
			PaymentID:       p.ID,
			OccurrenceIndex: i,
			Date:            d,
			PayerID:         p.PayerID,
			ReceiverID:      p.ReceiverAccountID,
			Amount:          p.Amount,

			AffectsBalance:             p.AffectsBalance,
			AffectsPayerExpectation:    p.AffectsPayerExpectation,
			AffectsReceiverExpectation: p.AffectsReceiverExpectation,

			Shares: allocator.Allocate(p.Amount, contributors),
		}
	}
	return occurrences
}

// OccurrencesFromSet expands every final (non-draft) payment in payments,
// optionally including drafts, into a single flat occurrence stream. This
// is the per-query fan-out spec §5 describes as "a pure function of
// (project_id, query_date, include_drafts)".
func OccurrencesFromSet(payments []Payment, horizon calendar.Date, includeDrafts bool) []ledger.Occurrence {
	var all []ledger.Occurrence
	for _, p := range payments {
		if !p.IsFinal && !includeDrafts {
			continue
		}
		all = append(all, Occurrences(p, horizon)...)
	}
	return all
}

// DescribePayment is a small debugging helper used by httpapi error
// messages; it never appears in persisted state.
func DescribePayment(p Payment) string {
	return fmt.Sprintf("payment %s (%s -> %s, %s)", p.ID, emptyAsExternal(p.PayerID), emptyAsExternal(p.ReceiverAccountID), p.Date)
}

func emptyAsExternal(id string) string {
	if id == "" {
		return "∅"
	}
	return id
}
