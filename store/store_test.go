package store

import (
	"database/sql"
	"os"
	"path/filepath"
	"testing"
	"time"

	_ "modernc.org/sqlite"

	"bonscompte.example/bonscompte/calendar"
	"bonscompte.example/bonscompte/domain"
	"bonscompte.example/bonscompte/money"
	"bonscompte.example/bonscompte/recurrence"
)

// newTestDB opens a fresh in-memory database and applies the schema used
// by cmd/migrate, matching the teacher's own schema-driven test fixtures.
func newTestDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", "file::memory:?cache=shared&_pragma=foreign_keys(0)")
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "cmd", "migrate", "schema.sql"))
	if err != nil {
		t.Fatalf("read schema: %v", err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatalf("apply schema: %v", err)
	}
	return db
}

func mustAmount(t *testing.T, f float64) money.Cents {
	t.Helper()
	c, corrected := money.FromFloat(f)
	if corrected {
		t.Fatalf("FromFloat(%v) needed a cent correction", f)
	}
	return c
}

func seedProjectAndPeople(t *testing.T, s *Store) (projectID, alice, bob string) {
	t.Helper()
	projectID, berr := s.CreateProject("Trip", "tester", "corr-seed-project", time.Now())
	if berr != nil {
		t.Fatalf("CreateProject: %v", berr)
	}
	a, berr := s.CreateParticipant(projectID, domain.Participant{Name: "Alice", DefaultWeight: 1, Kind: domain.Person}, "tester", "corr-seed-alice", time.Now())
	if berr != nil {
		t.Fatalf("CreateParticipant alice: %v", berr)
	}
	b, berr := s.CreateParticipant(projectID, domain.Participant{Name: "Bob", DefaultWeight: 1, Kind: domain.Person}, "tester", "corr-seed-bob", time.Now())
	if berr != nil {
		t.Fatalf("CreateParticipant bob: %v", berr)
	}
	return projectID, a.ID, b.ID
}

func TestCreateParticipantRejectsPoolWithLinkedUser(t *testing.T) {
	s := New(newTestDB(t))
	projectID, berr := s.CreateProject("Flat", "tester", "corr-flat", time.Now())
	if berr != nil {
		t.Fatalf("CreateProject: %v", berr)
	}
	_, berr = s.CreateParticipant(projectID, domain.Participant{Name: "Groceries", Kind: domain.Pool, LinkedUserID: "1"}, "tester", "corr-groceries", time.Now())
	if berr == nil {
		t.Fatal("expected LinkedUserCannotBePool error")
	}
}

func TestCreateParticipantLogsHistoryAndIsUndoable(t *testing.T) {
	s := New(newTestDB(t))
	projectID, berr := s.CreateProject("Trip", "tester", "corr-project", time.Now())
	if berr != nil {
		t.Fatalf("CreateProject: %v", berr)
	}
	created, berr := s.CreateParticipant(projectID, domain.Participant{Name: "Alice", DefaultWeight: 1, Kind: domain.Person}, "tester", "corr-alice", time.Now())
	if berr != nil {
		t.Fatalf("CreateParticipant: %v", berr)
	}

	history, berr := s.History(projectID)
	if berr != nil {
		t.Fatalf("History: %v", berr)
	}
	var createID int64
	for _, rec := range history {
		if rec.EntityType == "participant" && rec.Action == "CREATE" && rec.EntityID == created.ID {
			createID = rec.ID
		}
	}
	if createID == 0 {
		t.Fatal("expected a participant CREATE record in history")
	}

	if _, berr := s.Undo(projectID, createID, "tester", "corr-undo", time.Now()); berr != nil {
		t.Fatalf("Undo: %v", berr)
	}
	if _, berr := s.GetParticipant(projectID, created.ID); berr == nil {
		t.Fatal("expected participant to be gone after undoing its creation")
	}
}

func TestCreatePaymentRejectsPayerExpectationForNonPoolPayer(t *testing.T) {
	s := New(newTestDB(t))
	projectID, alice, bob := seedProjectAndPeople(t, s)
	draft := domain.Payment{
		Amount: mustAmount(t, 10), Date: calendar.New(2026, time.March, 1),
		PayerID: alice, AffectsBalance: true, AffectsPayerExpectation: true,
		Contributions: []domain.Contribution{{ParticipantID: alice, Weight: 1}, {ParticipantID: bob, Weight: 1}},
	}
	_, berr := s.CreatePayment(projectID, draft, "tester", "corr-pool-check", time.Now())
	if berr == nil || berr.Code != "PAYER_EXPECTATION_REQUIRES_POOL" {
		t.Fatalf("expected PAYER_EXPECTATION_REQUIRES_POOL, got %v", berr)
	}
}

func TestCreateAndListPayments(t *testing.T) {
	s := New(newTestDB(t))
	projectID, alice, bob := seedProjectAndPeople(t, s)

	draft := domain.Payment{
		Amount: mustAmount(t, 30), Description: "Groceries", Date: calendar.New(2026, time.March, 1),
		PayerID: alice, AffectsBalance: true,
		Contributions: []domain.Contribution{{ParticipantID: alice, Weight: 1}, {ParticipantID: bob, Weight: 1}},
	}
	created, berr := s.CreatePayment(projectID, draft, "tester", "corr-1", time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC))
	if berr != nil {
		t.Fatalf("CreatePayment: %v", berr)
	}
	if created.ID == "" {
		t.Fatal("expected an assigned payment id")
	}

	payments, berr := s.ListPayments(projectID)
	if berr != nil {
		t.Fatalf("ListPayments: %v", berr)
	}
	if len(payments) != 1 {
		t.Fatalf("expected 1 payment, got %d", len(payments))
	}
	if len(payments[0].Contributions) != 2 {
		t.Fatalf("expected 2 contributions, got %d", len(payments[0].Contributions))
	}
}

func TestCreatePaymentRejectsBothEndsEmpty(t *testing.T) {
	s := New(newTestDB(t))
	projectID, alice, _ := seedProjectAndPeople(t, s)
	draft := domain.Payment{
		Amount: mustAmount(t, 10), Date: calendar.New(2026, time.March, 1), AffectsBalance: true,
		Contributions: []domain.Contribution{{ParticipantID: alice, Weight: 1}},
	}
	_, berr := s.CreatePayment(projectID, draft, "tester", "corr-2", time.Now())
	if berr == nil {
		t.Fatal("expected InvalidPayer error for payer=receiver=∅")
	}
}

func TestUpdatePaymentSplitTruncatesAndCreates(t *testing.T) {
	s := New(newTestDB(t))
	projectID, alice, bob := seedProjectAndPeople(t, s)

	anchor := calendar.New(2026, time.January, 1)
	spec := &recurrence.Spec{Type: recurrence.Monthly, Interval: 1}
	draft := domain.Payment{
		Amount: mustAmount(t, 20), Description: "Rent split", Date: anchor,
		PayerID: alice, AffectsBalance: true, Recurrence: spec,
		Contributions: []domain.Contribution{{ParticipantID: alice, Weight: 1}, {ParticipantID: bob, Weight: 1}},
	}
	created, berr := s.CreatePayment(projectID, draft, "tester", "corr-3", time.Now())
	if berr != nil {
		t.Fatalf("CreatePayment: %v", berr)
	}

	splitFrom := calendar.New(2026, time.April, 1)
	newDraft := created
	newDraft.Amount = mustAmount(t, 25)
	newDraft.Date = splitFrom
	updated, createdRight, berr := s.UpdatePayment(projectID, created.ID, newDraft, &splitFrom, "tester", "corr-4", time.Now())
	if berr != nil {
		t.Fatalf("UpdatePayment split: %v", berr)
	}
	if updated.Recurrence == nil || updated.Recurrence.EndDate == nil {
		t.Fatal("expected truncated original to carry an EndDate")
	}
	if !updated.Recurrence.EndDate.Before(splitFrom) {
		t.Fatalf("expected truncated EndDate before split point, got %v", updated.Recurrence.EndDate)
	}
	if createdRight == nil {
		t.Fatal("expected a new right-hand payment from the split")
	}
	if createdRight.Amount != mustAmount(t, 25) {
		t.Fatalf("expected new payment to carry the updated amount")
	}
}

func TestDeletePaymentAndUndo(t *testing.T) {
	s := New(newTestDB(t))
	projectID, alice, bob := seedProjectAndPeople(t, s)

	draft := domain.Payment{
		Amount: mustAmount(t, 15), Date: calendar.New(2026, time.May, 1),
		PayerID: alice, AffectsBalance: true,
		Contributions: []domain.Contribution{{ParticipantID: alice, Weight: 1}, {ParticipantID: bob, Weight: 1}},
	}
	created, berr := s.CreatePayment(projectID, draft, "tester", "corr-5", time.Now())
	if berr != nil {
		t.Fatalf("CreatePayment: %v", berr)
	}
	if berr := s.DeletePayment(projectID, created.ID, "tester", "corr-6", time.Now()); berr != nil {
		t.Fatalf("DeletePayment: %v", berr)
	}
	if _, berr := s.GetPayment(projectID, created.ID); berr == nil {
		t.Fatal("expected payment to be gone after delete")
	}

	history, berr := s.History(projectID)
	if berr != nil {
		t.Fatalf("History: %v", berr)
	}
	var deleteID int64
	for _, rec := range history {
		if rec.Action == "DELETE" {
			deleteID = rec.ID
		}
	}
	if deleteID == 0 {
		t.Fatal("expected a DELETE record in history")
	}

	if _, berr := s.Undo(projectID, deleteID, "tester", "corr-7", time.Now()); berr != nil {
		t.Fatalf("Undo: %v", berr)
	}
	if _, berr := s.GetPayment(projectID, created.ID); berr != nil {
		t.Fatalf("expected payment restored after undo, got %v", berr)
	}

	verify, berr := s.VerifyChain(projectID)
	if berr != nil {
		t.Fatalf("VerifyChain: %v", berr)
	}
	if !verify.IsValid {
		t.Fatalf("expected chain to remain valid after undo, broke at %d", verify.FirstBrokenID)
	}
}

func TestProjectDebtsComputesBalances(t *testing.T) {
	s := New(newTestDB(t))
	projectID, alice, bob := seedProjectAndPeople(t, s)

	draft := domain.Payment{
		Amount: mustAmount(t, 40), Date: calendar.New(2026, time.June, 1),
		PayerID: alice, AffectsBalance: true,
		Contributions: []domain.Contribution{{ParticipantID: alice, Weight: 1}, {ParticipantID: bob, Weight: 1}},
	}
	if _, berr := s.CreatePayment(projectID, draft, "tester", "corr-8", time.Now()); berr != nil {
		t.Fatalf("CreatePayment: %v", berr)
	}

	result, berr := s.ProjectDebts(projectID, calendar.New(2026, time.December, 31), false)
	if berr != nil {
		t.Fatalf("ProjectDebts: %v", berr)
	}
	if len(result.Settlements) == 0 {
		t.Fatal("expected at least one settlement transfer")
	}
	bobBalance, ok := result.Balances[bob]
	if !ok {
		t.Fatalf("expected a balance entry for bob")
	}
	if bobBalance.Net() >= 0 {
		t.Fatalf("expected bob to owe money, net = %v", bobBalance.Net())
	}
}

func TestCashflowProjectionClipsToHorizon(t *testing.T) {
	s := New(newTestDB(t))
	projectID, alice, bob := seedProjectAndPeople(t, s)

	draft := domain.Payment{
		Amount: mustAmount(t, 10), Date: calendar.New(2026, time.January, 15),
		PayerID: alice, AffectsBalance: true,
		Contributions: []domain.Contribution{{ParticipantID: alice, Weight: 1}, {ParticipantID: bob, Weight: 1}},
	}
	if _, berr := s.CreatePayment(projectID, draft, "tester", "corr-9", time.Now()); berr != nil {
		t.Fatalf("CreatePayment: %v", berr)
	}

	start := calendar.New(2026, time.January, 1)
	result, berr := s.CashflowProjection(projectID, start, 3, Monthly, true)
	if berr != nil {
		t.Fatalf("CashflowProjection: %v", berr)
	}
	if len(result.MonthlyBalances) == 0 {
		t.Fatal("expected at least one monthly snapshot")
	}
	last := result.MonthlyBalances[len(result.MonthlyBalances)-1]
	horizonEnd := calendar.AddMonths(start, 3)
	if last.PeriodEnd.After(horizonEnd) {
		t.Fatalf("expected final snapshot clipped to horizon %v, got %v", horizonEnd, last.PeriodEnd)
	}
}

func TestCashflowProjectionFiltersPerPoolHorizon(t *testing.T) {
	s := New(newTestDB(t))
	projectID, alice, _ := seedProjectAndPeople(t, s)
	pool, berr := s.CreateParticipant(projectID, domain.Participant{
		Name: "Groceries", Kind: domain.Pool, WarningHorizonAccount: domain.EndOfNextMonth,
	}, "tester", "corr-pool", time.Now())
	if berr != nil {
		t.Fatalf("CreateParticipant pool: %v", berr)
	}
	draft := domain.Payment{
		Amount: mustAmount(t, 50), Date: calendar.New(2026, time.January, 5),
		PayerID: alice, ReceiverAccountID: pool.ID, AffectsBalance: true,
		Contributions: []domain.Contribution{{ParticipantID: alice, Weight: 1}},
	}
	if _, berr := s.CreatePayment(projectID, draft, "tester", "corr-pool-payment", time.Now()); berr != nil {
		t.Fatalf("CreatePayment: %v", berr)
	}

	start := calendar.New(2026, time.January, 1)
	result, berr := s.CashflowProjection(projectID, start, 6, Monthly, true)
	if berr != nil {
		t.Fatalf("CashflowProjection: %v", berr)
	}
	poolSnaps, ok := result.PoolEvolutions[pool.ID]
	if !ok || len(poolSnaps) == 0 {
		t.Fatalf("expected pool evolution entries for %s", pool.ID)
	}
	poolHorizonEnd := domain.EndOfNextMonth.EndOfWindow(start)
	for _, snap := range poolSnaps {
		if snap.PeriodEnd.After(poolHorizonEnd) {
			t.Fatalf("expected pool snapshot clipped to %v, got %v", poolHorizonEnd, snap.PeriodEnd)
		}
	}
	if len(result.MonthlyBalances) == 0 {
		t.Fatal("expected overall monthly balances to still run past the pool's own shorter horizon")
	}
	fullHorizonEnd := calendar.AddMonths(start, 6)
	last := result.MonthlyBalances[len(result.MonthlyBalances)-1]
	if !last.PeriodEnd.Equal(fullHorizonEnd) {
		t.Fatalf("expected overall projection to still reach %v, got %v", fullHorizonEnd, last.PeriodEnd)
	}
}
