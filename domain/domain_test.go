package domain

import (
	"testing"
	"time"

	"bonscompte.example/bonscompte/calendar"
	"bonscompte.example/bonscompte/ledger"
	"bonscompte.example/bonscompte/money"
	"bonscompte.example/bonscompte/recurrence"
)

func d(y int, m time.Month, day int) calendar.Date { return calendar.New(y, m, day) }

func TestPaymentValidateRejectsBothEmpty(t *testing.T) {
	p := Payment{Contributions: []Contribution{{ParticipantID: "A", Weight: 1}}, AffectsBalance: true}
	if err := p.Validate(); err == nil || err.Code != "INVALID_PAYER" {
		t.Fatalf("expected INVALID_PAYER, got %v", err)
	}
}

func TestPaymentValidateRejectsAllFlagsFalse(t *testing.T) {
	p := Payment{
		PayerID: "A", Amount: 100,
		Contributions: []Contribution{{ParticipantID: "A", Weight: 1}},
	}
	if err := p.Validate(); err == nil {
		t.Fatalf("expected an error when all three dual-ledger flags are false")
	}
}

func TestPaymentValidateRequiresPositiveWeightWhenAmountPositive(t *testing.T) {
	p := Payment{
		PayerID: "A", Amount: 100, AffectsBalance: true,
		Contributions: []Contribution{{ParticipantID: "A", Weight: 0}},
	}
	if err := p.Validate(); err == nil || err.Code != "TOTAL_WEIGHT_MUST_BE_POSITIVE" {
		t.Fatalf("expected TOTAL_WEIGHT_MUST_BE_POSITIVE, got %v", err)
	}
}

func TestPaymentIsRule(t *testing.T) {
	rule := Payment{AffectsBalance: false, AffectsPayerExpectation: false, AffectsReceiverExpectation: true}
	if !rule.IsRule() {
		t.Fatalf("expected rule classification")
	}
	expense := Payment{AffectsBalance: true}
	if expense.IsRule() {
		t.Fatalf("expense must not be classified as a rule")
	}
}

func TestParticipantValidateLinkedPoolRejected(t *testing.T) {
	p := Participant{Kind: Pool, LinkedUserID: "user-1"}
	if err := p.Validate(); err == nil || err.Code != "LINKED_USER_CANNOT_BE_POOL" {
		t.Fatalf("expected LINKED_USER_CANNOT_BE_POOL, got %v", err)
	}
}

func TestParticipantValidateWarningHorizonOnlyForPools(t *testing.T) {
	p := Participant{Kind: Person, WarningHorizonAccount: ThreeMonths}
	if err := p.Validate(); err == nil || err.Code != "POOL_WARNING_ONLY_FOR_POOLS" {
		t.Fatalf("expected POOL_WARNING_ONLY_FOR_POOLS, got %v", err)
	}
}

func TestOccurrencesOneOff(t *testing.T) {
	p := Payment{
		ID: "p1", PayerID: "A", Amount: 1000, AffectsBalance: true,
		Date:          d(2025, time.January, 5),
		Contributions: []Contribution{{ParticipantID: "A", Weight: 1}, {ParticipantID: "B", Weight: 1}},
	}
	occs := Occurrences(p, d(2025, time.December, 31))
	if len(occs) != 1 {
		t.Fatalf("expected 1 occurrence, got %d", len(occs))
	}
	if occs[0].Shares["A"]+occs[0].Shares["B"] != 1000 {
		t.Fatalf("shares do not conserve: %+v", occs[0].Shares)
	}
}

func TestOccurrencesRecurringBoundedByHorizon(t *testing.T) {
	spec := recurrence.Spec{Type: recurrence.Monthly, Interval: 1}
	p := Payment{
		ID: "p2", PayerID: "A", Amount: 500, AffectsBalance: true,
		Date:          d(2025, time.January, 1),
		Recurrence:    &spec,
		Contributions: []Contribution{{ParticipantID: "A", Weight: 1}},
	}
	occs := Occurrences(p, d(2025, time.March, 15))
	if len(occs) != 3 {
		t.Fatalf("expected 3 occurrences through March, got %d", len(occs))
	}
	for i, occ := range occs {
		if occ.OccurrenceIndex != i {
			t.Errorf("occurrence %d has index %d", i, occ.OccurrenceIndex)
		}
	}
}

func TestOccurrencesFromSetExcludesDraftsByDefault(t *testing.T) {
	payments := []Payment{
		{ID: "final", IsFinal: true, PayerID: "A", Amount: 100, AffectsBalance: true,
			Date: d(2025, time.January, 1), Contributions: []Contribution{{ParticipantID: "A", Weight: 1}}},
		{ID: "draft", IsFinal: false, PayerID: "A", Amount: 200, AffectsBalance: true,
			Date: d(2025, time.January, 2), Contributions: []Contribution{{ParticipantID: "A", Weight: 1}}},
	}
	occs := OccurrencesFromSet(payments, d(2025, time.December, 31), false)
	if len(occs) != 1 || occs[0].PaymentID != "final" {
		t.Fatalf("expected only the final payment, got %+v", occs)
	}
	withDrafts := OccurrencesFromSet(payments, d(2025, time.December, 31), true)
	if len(withDrafts) != 2 {
		t.Fatalf("expected both payments with includeDrafts=true, got %d", len(withDrafts))
	}
}

func TestParticipantKindsFeedsLedgerFold(t *testing.T) {
	participants := []Participant{
		{ID: "A", Kind: Person},
		{ID: "P", Kind: Pool},
	}
	kinds := ParticipantKinds(participants)
	payment := Payment{
		ID: "t1", PayerID: "A", ReceiverAccountID: "P", Amount: 5000, AffectsBalance: true,
		Date: d(2025, time.January, 1), Contributions: []Contribution{{ParticipantID: "A", Weight: 1}},
	}
	occs := Occurrences(payment, d(2025, time.January, 31))
	snap := ledger.Fold(occs, kinds)
	if got := snap.Pools["P"].Contributed["A"]; got != money.Cents(5000) {
		t.Fatalf("expected pool contribution to register, got %d", got)
	}
}
