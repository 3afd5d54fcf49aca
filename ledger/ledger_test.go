package ledger

import (
	"testing"
	"time"

	"bonscompte.example/bonscompte/calendar"
	"bonscompte.example/bonscompte/money"
)

func d(y int, m time.Month, day int) calendar.Date { return calendar.New(y, m, day) }

func TestE5PoolDepositThenExpense(t *testing.T) {
	kinds := map[string]Kind{"P": Pool}
	occurrences := []Occurrence{
		{
			PaymentID: "transfer-1", OccurrenceIndex: 0, Date: d(2025, time.January, 1),
			PayerID: "A", ReceiverID: "P", Amount: 10000,
			AffectsBalance: true, AffectsReceiverExpectation: false,
		},
		{
			PaymentID: "expense-1", OccurrenceIndex: 0, Date: d(2025, time.January, 5),
			PayerID: "P", ReceiverID: "", Amount: 6000,
			AffectsBalance: true,
			Shares:         map[string]money.Cents{"A": 2000, "B": 4000},
		},
	}
	snap := Fold(occurrences, kinds)

	pool := snap.Pools["P"]
	if pool.Contributed["A"] != 10000 {
		t.Fatalf("contributed[A] = %d, want 10000", pool.Contributed["A"])
	}
	if pool.Consumed["A"] != 2000 || pool.Consumed["B"] != 4000 {
		t.Fatalf("consumed = %+v, want A=2000 B=4000", pool.Consumed)
	}
	if got := pool.Ownership("A"); got != 8000 {
		t.Errorf("ownership[A] = %d, want 8000", got)
	}
	if got := pool.Ownership("B"); got != -4000 {
		t.Errorf("ownership[B] = %d, want -4000", got)
	}
	if got := pool.TotalBalance(); got != 4000 {
		t.Errorf("pool total balance = %d, want 4000", got)
	}

	// Balance vector: A transferred 10000 (total_paid[A]+=10000, total_owed
	// untouched by the transfer), then the pool's external expense adds
	// total_paid[P]+=6000 and total_owed[A]+=2000, total_owed[B]+=4000.
	if got := snap.Balances["A"]; got.TotalPaid != 10000 || got.TotalOwed != 2000 {
		t.Errorf("balance[A] = %+v, want paid=10000 owed=2000", got)
	}
	if got := snap.Balances["B"]; got.TotalPaid != 0 || got.TotalOwed != 4000 {
		t.Errorf("balance[B] = %+v, want paid=0 owed=4000", got)
	}
	if got := snap.Balances["P"]; got.TotalPaid != 6000 {
		t.Errorf("balance[P] = %+v, want paid=6000", got)
	}
}

func TestBalanceSumsToZeroProperty(t *testing.T) {
	kinds := map[string]Kind{}
	occurrences := []Occurrence{
		{PaymentID: "p1", Date: d(2025, time.January, 1), PayerID: "A", ReceiverID: "",
			Amount: 9000, AffectsBalance: true,
			Shares: map[string]money.Cents{"A": 3000, "B": 3000, "C": 3000}},
		{PaymentID: "p2", Date: d(2025, time.January, 2), PayerID: "B", ReceiverID: "",
			Amount: 100, AffectsBalance: true,
			Shares: map[string]money.Cents{"A": 34, "B": 33, "C": 33}},
	}
	snap := Fold(occurrences, kinds)
	var totalPaid, totalOwed money.Cents
	for _, b := range snap.Balances {
		totalPaid += b.TotalPaid
		totalOwed += b.TotalOwed
	}
	if totalPaid != totalOwed {
		t.Fatalf("total paid %d != total owed %d", totalPaid, totalOwed)
	}
}

func TestPoolOwnershipSumsToContributedMinusConsumed(t *testing.T) {
	kinds := map[string]Kind{"P": Pool}
	occurrences := []Occurrence{
		{PaymentID: "t1", Date: d(2025, time.January, 1), PayerID: "A", ReceiverID: "P",
			Amount: 5000, AffectsBalance: true},
		{PaymentID: "t2", Date: d(2025, time.January, 2), PayerID: "B", ReceiverID: "P",
			Amount: 3000, AffectsBalance: true},
		{PaymentID: "e1", Date: d(2025, time.January, 3), PayerID: "P", ReceiverID: "",
			Amount: 1000, AffectsBalance: true,
			Shares: map[string]money.Cents{"A": 500, "B": 500}},
	}
	snap := Fold(occurrences, kinds)
	pool := snap.Pools["P"]
	var sum money.Cents
	for _, id := range pool.participants() {
		sum += pool.Ownership(id)
	}
	if sum != pool.TotalBalance() {
		t.Fatalf("sum of ownerships %d != total balance %d", sum, pool.TotalBalance())
	}
	if sum != 7000 {
		t.Fatalf("expected 8000-1000=7000, got %d", sum)
	}
}

func TestExpectedMinimumBreachDetected(t *testing.T) {
	kinds := map[string]Kind{"P": Pool}
	occurrences := []Occurrence{
		{PaymentID: "rule-1", Date: d(2025, time.January, 1), PayerID: "", ReceiverID: "P",
			Amount: 5000, AffectsBalance: false, AffectsReceiverExpectation: true},
		{PaymentID: "t1", Date: d(2025, time.January, 2), PayerID: "A", ReceiverID: "P",
			Amount: 2000, AffectsBalance: true},
	}
	snap := Fold(occurrences, kinds)
	pool := snap.Pools["P"]
	below, shortfall := pool.BelowExpected()
	if !below {
		t.Fatalf("expected pool to be below its expected minimum")
	}
	if shortfall != 3000 {
		t.Errorf("shortfall = %d, want 3000", shortfall)
	}
}

func TestPersonExpectedMinimumAllocatesProportionally(t *testing.T) {
	kinds := map[string]Kind{"P": Pool}
	occurrences := []Occurrence{
		{PaymentID: "rule-1", Date: d(2025, time.January, 1), PayerID: "", ReceiverID: "P",
			Amount: 10000, AffectsBalance: false, AffectsReceiverExpectation: true},
		{PaymentID: "t1", Date: d(2025, time.January, 2), PayerID: "A", ReceiverID: "P",
			Amount: 6000, AffectsBalance: true},
		{PaymentID: "t2", Date: d(2025, time.January, 3), PayerID: "B", ReceiverID: "P",
			Amount: 4000, AffectsBalance: true},
	}
	snap := Fold(occurrences, kinds)
	pool := snap.Pools["P"]
	if got := pool.PersonExpectedMinimum("A"); got != 6000 {
		t.Errorf("PersonExpectedMinimum(A) = %d, want 6000", got)
	}
	if got := pool.PersonExpectedMinimum("B"); got != 4000 {
		t.Errorf("PersonExpectedMinimum(B) = %d, want 4000", got)
	}
}

func TestEvaluationOrderIsDateThenPaymentThenIndex(t *testing.T) {
	kinds := map[string]Kind{}
	// Out of order input; Fold must sort before applying.
	occurrences := []Occurrence{
		{PaymentID: "b", Date: d(2025, time.January, 2), PayerID: "X", ReceiverID: "",
			Amount: 100, AffectsBalance: true, Shares: map[string]money.Cents{"X": 100}},
		{PaymentID: "a", Date: d(2025, time.January, 1), PayerID: "X", ReceiverID: "",
			Amount: 50, AffectsBalance: true, Shares: map[string]money.Cents{"X": 50}},
	}
	snap := Fold(occurrences, kinds)
	if got := snap.Balances["X"]; got.TotalPaid != 150 {
		t.Fatalf("expected both occurrences folded regardless of input order, got %+v", got)
	}
}
