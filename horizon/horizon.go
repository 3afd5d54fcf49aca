// Package horizon drives LedgerEngine over a [start, horizon_end] window to
// detect pool shortfalls and expected-minimum breaches before they happen
// (spec §4.6). It generalizes the teacher's single-point-in-time balance
// query (stats/handlers.go) into an incremental walk that records the
// first date each warning condition becomes true.
package horizon

import (
	"sort"

	"bonscompte.example/bonscompte/calendar"
	"bonscompte.example/bonscompte/ledger"
)

// PoolWarnings records the first date, if any, that each of a pool's
// warning conditions becomes true within the projected window.
type PoolWarnings struct {
	PoolID string

	// FirstBelowExpected is the first date total_balance < expected_minimum.
	FirstBelowExpected    *calendar.Date
	FirstNegativeExpected *calendar.Date // first date expected_minimum < 0

	// FirstPersonBelowExpected is, per person, the first date their
	// pro-rata ownership fell below their pro-rata expected minimum.
	FirstPersonBelowExpected map[string]calendar.Date
}

// Report is the full result of projecting a window.
type Report struct {
	Start      calendar.Date
	HorizonEnd calendar.Date
	Pools      map[string]*PoolWarnings
}

func warningsFor(report *Report, poolID string) *PoolWarnings {
	w, ok := report.Pools[poolID]
	if !ok {
		w = &PoolWarnings{PoolID: poolID, FirstPersonBelowExpected: map[string]calendar.Date{}}
		report.Pools[poolID] = w
	}
	return w
}

// Project computes the LedgerEngine snapshot at start (t0), then applies
// every occurrence in (start, horizonEnd] in ascending order, recording
// the first date each pool warning condition is observed. occurrences may
// span dates outside the window: those at or before start are folded into
// the t0 snapshot, and those after horizonEnd are ignored.
func Project(occurrences []ledger.Occurrence, kinds map[string]ledger.Kind, start, horizonEnd calendar.Date) *Report {
	var before, after []ledger.Occurrence
	for _, occ := range occurrences {
		if occ.Date.After(start) {
			if !occ.Date.After(horizonEnd) {
				after = append(after, occ)
			}
			continue
		}
		before = append(before, occ)
	}
	sort.SliceStable(after, func(i, j int) bool {
		a, b := after[i], after[j]
		if c := a.Date.Compare(b.Date); c != 0 {
			return c < 0
		}
		if a.PaymentID != b.PaymentID {
			return a.PaymentID < b.PaymentID
		}
		return a.OccurrenceIndex < b.OccurrenceIndex
	})

	snap := ledger.Fold(before, kinds)
	report := &Report{Start: start, HorizonEnd: horizonEnd, Pools: map[string]*PoolWarnings{}}

	// Seed every pool that already exists at t0 so a breach visible on day
	// one (before any occurrence in the window) is still reported once its
	// date is known; conditions that are already true at t0 surface on the
	// first occurrence date, since "today" has no occurrence to anchor to.
	for id := range snap.Pools {
		warningsFor(report, id)
	}

	for _, occ := range after {
		ledger.ApplyOne(snap, occ, kinds)
		d := occ.Date
		checkConditions(report, snap, kinds, d)
	}
	return report
}

func checkConditions(report *Report, snap *ledger.Snapshot, kinds map[string]ledger.Kind, d calendar.Date) {
	for poolID, pool := range snap.Pools {
		w := warningsFor(report, poolID)
		if below, _ := pool.BelowExpected(); below && w.FirstBelowExpected == nil {
			dd := d
			w.FirstBelowExpected = &dd
		}
		if pool.ExpectedMinimum < 0 && w.FirstNegativeExpected == nil {
			dd := d
			w.FirstNegativeExpected = &dd
		}
		total := pool.TotalBalance()
		if total != 0 {
			for _, personID := range poolParticipants(pool) {
				if _, already := w.FirstPersonBelowExpected[personID]; already {
					continue
				}
				ownership := pool.Ownership(personID)
				expected := pool.PersonExpectedMinimum(personID)
				if ownership < expected {
					w.FirstPersonBelowExpected[personID] = d
				}
			}
		}
	}
}

// poolParticipants lists every person with activity in the pool, in a
// deterministic order.
func poolParticipants(pool *ledger.PoolState) []string {
	seen := map[string]bool{}
	for id := range pool.Contributed {
		seen[id] = true
	}
	for id := range pool.Consumed {
		seen[id] = true
	}
	ids := make([]string, 0, len(seen))
	for id := range seen {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
