// Package ledger folds an occurrence stream into per-participant balances
// and per-pool ownership/expected-minimum under BonsCompte's dual-ledger
// model (spec §4.4). It generalizes the teacher's two-person balance
// accumulator (transfer/handlers.go's userNetBalance += / -= amount) to
// arbitrary participants and pools.
package ledger

import (
	"sort"

	"bonscompte.example/bonscompte/calendar"
	"bonscompte.example/bonscompte/money"
)

// Kind distinguishes a person from a shared pool account.
type Kind int

const (
	Person Kind = iota
	Pool
)

// Occurrence is one materialization of a Payment on a date, already
// expanded by the recurrence package and allocated by the allocator
// package. PayerID/ReceiverID are "" to represent the spec's ∅ (external
// inflow/outflow).
type Occurrence struct {
	PaymentID       string
	OccurrenceIndex int
	Date            calendar.Date
	PayerID         string
	ReceiverID      string
	Amount          money.Cents

	AffectsBalance             bool
	AffectsPayerExpectation    bool
	AffectsReceiverExpectation bool

	// Shares is the per-contributor allocation of Amount, as produced by
	// allocator.Allocate. Only meaningful for expense-shaped occurrences
	// (one side is ∅); for transfers the sole "contributor" is the payer
	// and Shares is ignored by the balance fold.
	Shares map[string]money.Cents
}

// Balance is a participant's accumulated paid/owed totals.
type Balance struct {
	TotalPaid money.Cents
	TotalOwed money.Cents
}

// Net returns TotalPaid - TotalOwed.
func (b Balance) Net() money.Cents {
	return b.TotalPaid - b.TotalOwed
}

// PoolState is a pool's per-person ownership ledger plus its expected
// minimum.
type PoolState struct {
	Contributed     map[string]money.Cents
	Consumed        map[string]money.Cents
	ExpectedMinimum money.Cents
}

func newPoolState() *PoolState {
	return &PoolState{Contributed: map[string]money.Cents{}, Consumed: map[string]money.Cents{}}
}

// Ownership returns contributed[x] - consumed[x] for person x.
func (p *PoolState) Ownership(personID string) money.Cents {
	return p.Contributed[personID] - p.Consumed[personID]
}

// participants returns every person with a contributed or consumed entry
// (zero-valued entries included), sorted for deterministic iteration.
func (p *PoolState) participants() []string {
	seen := map[string]bool{}
	for id := range p.Contributed {
		seen[id] = true
	}
	for id := range p.Consumed {
		seen[id] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

// TotalBalance returns the sum of ownership across every person with
// activity in the pool; it equals Σ ownership exactly (spec property 9).
func (p *PoolState) TotalBalance() money.Cents {
	var total money.Cents
	for _, id := range p.participants() {
		total += p.Ownership(id)
	}
	return total
}

// BelowExpected reports whether the pool's balance has dropped below its
// expected minimum, and the shortfall if so.
func (p *PoolState) BelowExpected() (below bool, shortfall money.Cents) {
	total := p.TotalBalance()
	if total < p.ExpectedMinimum {
		return true, p.ExpectedMinimum - total
	}
	return false, 0
}

// PersonExpectedMinimum allocates the pool's expected minimum to person
// proportionally to their current ownership share, or 0 if the pool total
// is zero (spec §4.4).
func (p *PoolState) PersonExpectedMinimum(personID string) money.Cents {
	total := p.TotalBalance()
	if total == 0 {
		return 0
	}
	ownership := p.Ownership(personID)
	return proportional(p.ExpectedMinimum, ownership, total)
}

// proportional computes round(total * numerator / denominator) to the
// nearest cent, halves rounded away from zero. This allocation is informational (a warning
// threshold), not a conservation-critical quantity like allocator.Allocate,
// so simple rounding (not residue redistribution) is sufficient.
func proportional(total, numerator, denominator money.Cents) money.Cents {
	if denominator == 0 {
		return 0
	}
	raw := float64(total) * float64(numerator) / float64(denominator)
	floor := int64(raw)
	frac := raw - float64(floor)
	switch {
	case frac < 0.5 && frac > -0.5:
		return money.Cents(floor)
	case frac >= 0.5:
		return money.Cents(floor + 1)
	default:
		return money.Cents(floor - 1)
	}
}

// Snapshot is the full derived state at a query date.
type Snapshot struct {
	Balances map[string]Balance
	Pools    map[string]*PoolState
}

// NewSnapshot returns an empty snapshot.
func NewSnapshot() *Snapshot {
	return &Snapshot{Balances: map[string]Balance{}, Pools: map[string]*PoolState{}}
}

func (s *Snapshot) balanceOf(id string) Balance {
	return s.Balances[id]
}

func (s *Snapshot) poolOf(id string) *PoolState {
	p, ok := s.Pools[id]
	if !ok {
		p = newPoolState()
		s.Pools[id] = p
	}
	return p
}

// Fold aggregates occurrences (sorted by date, payment id, occurrence index
// per spec §4.4's evaluation order) into a Snapshot. kinds maps a
// participant id to Person or Pool; ids absent from kinds are treated as
// Person for balance purposes and never participate in pool ownership.
func Fold(occurrences []Occurrence, kinds map[string]Kind) *Snapshot {
	sorted := make([]Occurrence, len(occurrences))
	copy(sorted, occurrences)
	sort.SliceStable(sorted, func(i, j int) bool {
		a, b := sorted[i], sorted[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if a.PaymentID != b.PaymentID {
			return a.PaymentID < b.PaymentID
		}
		return a.OccurrenceIndex < b.OccurrenceIndex
	})

	snap := NewSnapshot()
	for _, occ := range sorted {
		ApplyOne(snap, occ, kinds)
	}
	return snap
}

// ApplyOne folds a single occurrence into an existing snapshot, in place.
// It is the incremental primitive HorizonProjector uses to walk a window
// occurrence-by-occurrence rather than re-folding from scratch at every
// step; Fold(occs, kinds) is equivalent to folding occs into NewSnapshot()
// one at a time in sorted order via ApplyOne.
func ApplyOne(snap *Snapshot, occ Occurrence, kinds map[string]Kind) {
	isPool := func(id string) bool { return id != "" && kinds[id] == Pool }
	if occ.AffectsBalance {
		foldBalance(snap, occ)
		foldPoolOwnership(snap, occ, isPool)
	}
	foldExpectedMinimum(snap, occ, isPool)
}

func foldBalance(snap *Snapshot, occ Occurrence) {
	switch {
	case occ.PayerID != "" && occ.ReceiverID == "":
		// External expense: payer's total_paid grows, each contributor owes
		// their share.
		b := snap.balanceOf(occ.PayerID)
		b.TotalPaid += occ.Amount
		snap.Balances[occ.PayerID] = b
		for id, share := range occ.Shares {
			cb := snap.balanceOf(id)
			cb.TotalOwed += share
			snap.Balances[id] = cb
		}
	case occ.PayerID == "" && occ.ReceiverID != "":
		// External inflow: no effect on the person balance vector.
	case occ.PayerID != "" && occ.ReceiverID != "":
		// Internal transfer: payer's total_paid grows; contributions of the
		// transfer itself do not touch total_owed (the sole contributor,
		// the payer, is neutralized).
		b := snap.balanceOf(occ.PayerID)
		b.TotalPaid += occ.Amount
		snap.Balances[occ.PayerID] = b
	}
}

func foldPoolOwnership(snap *Snapshot, occ Occurrence, isPool func(string) bool) {
	switch {
	case occ.PayerID != "" && occ.ReceiverID != "" && isPool(occ.ReceiverID):
		// Transfer into a pool from a person.
		snap.poolOf(occ.ReceiverID).Contributed[occ.PayerID] += occ.Amount
	case occ.PayerID != "" && occ.ReceiverID != "" && isPool(occ.PayerID):
		// Transfer out of a pool to a person.
		snap.poolOf(occ.PayerID).Consumed[occ.ReceiverID] += occ.Amount
	case occ.PayerID != "" && occ.ReceiverID == "" && isPool(occ.PayerID):
		// External expense paid by the pool: consumption allocated by share.
		pool := snap.poolOf(occ.PayerID)
		for id, share := range occ.Shares {
			pool.Consumed[id] += share
		}
	case occ.PayerID == "" && occ.ReceiverID != "" && isPool(occ.ReceiverID):
		// External inflow into the pool: contribution allocated by share.
		pool := snap.poolOf(occ.ReceiverID)
		for id, share := range occ.Shares {
			pool.Contributed[id] += share
		}
	}
}

func foldExpectedMinimum(snap *Snapshot, occ Occurrence, isPool func(string) bool) {
	if occ.AffectsPayerExpectation && isPool(occ.PayerID) {
		pool := snap.poolOf(occ.PayerID)
		pool.ExpectedMinimum -= occ.Amount
	}
	if occ.AffectsReceiverExpectation && isPool(occ.ReceiverID) {
		pool := snap.poolOf(occ.ReceiverID)
		pool.ExpectedMinimum += occ.Amount
	}
}
