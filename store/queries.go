package store

import (
	"sort"

	"bonscompte.example/bonscompte/bonserr"
	"bonscompte.example/bonscompte/calendar"
	"bonscompte.example/bonscompte/domain"
	"bonscompte.example/bonscompte/horizon"
	"bonscompte.example/bonscompte/ledger"
	"bonscompte.example/bonscompte/money"
	"bonscompte.example/bonscompte/settlement"
)

// DebtsResult is the project_debts operation's output (spec §6).
type DebtsResult struct {
	Balances          map[string]ledger.Balance
	Settlements       []settlement.Transfer
	DirectSettlements []settlement.Transfer
	Occurrences       []ledger.Occurrence
	PairwiseBalances  map[[2]string]money.Cents
	PoolOwnerships    map[string]map[string]money.Cents
}

// ProjectDebts loads every payment and participant of a project, folds
// the occurrence stream up to targetDate, and derives both settlement
// views plus pool ownership (spec §6's project_debts operation).
func (s *Store) ProjectDebts(projectID string, targetDate calendar.Date, includeDrafts bool) (DebtsResult, *bonserr.Error) {
	if berr := s.requireProject(s.db, projectID); berr != nil {
		return DebtsResult{}, berr
	}
	payments, berr := s.ListPayments(projectID)
	if berr != nil {
		return DebtsResult{}, berr
	}
	participants, berr := s.ListParticipants(projectID)
	if berr != nil {
		return DebtsResult{}, berr
	}
	kinds := domain.ParticipantKinds(participants)

	occurrences := domain.OccurrencesFromSet(payments, targetDate, includeDrafts)
	snap := ledger.Fold(occurrences, kinds)

	net := make(map[string]money.Cents, len(snap.Balances))
	for id, bal := range snap.Balances {
		net[id] = bal.Net()
	}

	pairwise := pairwiseDirect(occurrences)
	poolOwnerships := make(map[string]map[string]money.Cents, len(snap.Pools))
	for poolID, pool := range snap.Pools {
		owners := make(map[string]money.Cents)
		for _, person := range poolParticipantIDs(pool) {
			owners[person] = pool.Ownership(person)
		}
		poolOwnerships[poolID] = owners
	}

	return DebtsResult{
		Balances:          snap.Balances,
		Settlements:       settlement.Minimal(net),
		DirectSettlements: settlement.PairwiseNet(pairwise),
		Occurrences:       occurrences,
		PairwiseBalances:  pairwise,
		PoolOwnerships:    poolOwnerships,
	}, nil
}

// pairwiseDirect builds the "C owes P" accumulation spec §4.5 describes:
// each external expense by payer P with contributor C adds share(C) to
// direct[C,P]; each internal transfer payer->receiver is a repayment and
// is credited in the opposing direction, direct[receiver,payer], so that
// settling a prior debt in full nets the pair back to zero.
func pairwiseDirect(occurrences []ledger.Occurrence) map[[2]string]money.Cents {
	direct := map[[2]string]money.Cents{}
	for _, occ := range occurrences {
		if !occ.AffectsBalance {
			continue
		}
		switch {
		case occ.PayerID != "" && occ.ReceiverID == "":
			for contributor, share := range occ.Shares {
				if contributor == occ.PayerID {
					continue
				}
				direct[[2]string{contributor, occ.PayerID}] += share
			}
		case occ.PayerID != "" && occ.ReceiverID != "":
			direct[[2]string{occ.ReceiverID, occ.PayerID}] += occ.Amount
		}
	}
	return direct
}

// poolParticipantIDs returns the sorted union of a pool's contributor and
// consumer ids, mirroring horizon.poolParticipants without depending on
// the horizon package's unexported helper.
func poolParticipantIDs(pool *ledger.PoolState) []string {
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

// Period is the granularity cashflow_projection steps its monthly_balances
// snapshots by (spec §6's "frequency" input; "monthly_balances" is the
// default and most common granularity, but nothing in §4.6 restricts the
// step size).
type Period string

const (
	Daily   Period = "DAILY"
	Weekly  Period = "WEEKLY"
	Monthly Period = "MONTHLY"
)

func stepPeriod(d calendar.Date, p Period) calendar.Date {
	switch p {
	case Daily:
		return calendar.AddDays(d, 1)
	case Weekly:
		return calendar.AddDays(d, 7)
	default:
		return calendar.AddMonths(d, 1)
	}
}

// BalanceSnapshot is one projected-period entry in a CashflowResult.
type BalanceSnapshot struct {
	PeriodEnd calendar.Date
	Balances  map[string]money.Cents
}

// PoolSnapshot is one pool's projected state at a period boundary.
type PoolSnapshot struct {
	PeriodEnd       calendar.Date
	TotalBalance    money.Cents
	ExpectedMinimum money.Cents
}

// CashflowResult is the cashflow_projection operation's output (spec §6).
type CashflowResult struct {
	MonthlyBalances        []BalanceSnapshot
	PoolEvolutions         map[string][]PoolSnapshot
	BalanceEvents          *horizon.Report
	Recommendations        []settlement.Transfer
	ComputedRecommendation []settlement.Transfer
}

// CashflowProjection walks a project's occurrence stream from start
// through horizonMonths in Period-sized steps, snapshotting per-participant
// balances and per-pool evolution at each boundary (spec §4.6/§6), and
// derives a settlement recommendation from the final snapshot —
// settlement.Minimal when consolidate is true (fewest transfers),
// settlement.PairwiseNet otherwise (literal pairwise history).
func (s *Store) CashflowProjection(projectID string, start calendar.Date, horizonMonths int, frequency Period, consolidate bool) (CashflowResult, *bonserr.Error) {
	if berr := s.requireProject(s.db, projectID); berr != nil {
		return CashflowResult{}, berr
	}
	payments, berr := s.ListPayments(projectID)
	if berr != nil {
		return CashflowResult{}, berr
	}
	participants, berr := s.ListParticipants(projectID)
	if berr != nil {
		return CashflowResult{}, berr
	}
	kinds := domain.ParticipantKinds(participants)

	// horizon_months is a floor; each pool's own warning_horizon_account/
	// warning_horizon_users settings (spec §4.6: "the horizon end is
	// derived from per-pool settings; when multiple pools request
	// different horizons the projector uses the maximum horizon and
	// filters results per pool") can push the walk further out. "today"
	// for resolving a pool's relative horizon (end_of_current_month etc.)
	// is the projection's own start date.
	poolHorizons := resolvePoolHorizons(participants, start)
	horizonEnd := calendar.AddMonths(start, horizonMonths)
	for _, end := range poolHorizons {
		if end.After(horizonEnd) {
			horizonEnd = end
		}
	}
	all := domain.OccurrencesFromSet(payments, horizonEnd, false)

	var before, after []ledger.Occurrence
	for _, occ := range all {
		if !occ.Date.After(start) {
			before = append(before, occ)
		} else {
			after = append(after, occ)
		}
	}
	sort.Slice(after, func(i, j int) bool {
		if !after[i].Date.Equal(after[j].Date) {
			return after[i].Date.Before(after[j].Date)
		}
		if after[i].PaymentID != after[j].PaymentID {
			return after[i].PaymentID < after[j].PaymentID
		}
		return after[i].OccurrenceIndex < after[j].OccurrenceIndex
	})

	snap := ledger.Fold(before, kinds)
	report := horizon.Project(all, kinds, start, horizonEnd)

	poolEvolutions := make(map[string][]PoolSnapshot, len(snap.Pools))
	var monthly []BalanceSnapshot
	cursor, idx := start, 0
	for boundary := stepPeriod(cursor, frequency); !cursor.After(horizonEnd); boundary = stepPeriod(cursor, frequency) {
		if boundary.After(horizonEnd) {
			boundary = horizonEnd
		}
		for idx < len(after) && !after[idx].Date.After(boundary) {
			ledger.ApplyOne(snap, after[idx], kinds)
			idx++
		}
		monthly = append(monthly, snapshotBalances(boundary, snap))
		for poolID, pool := range snap.Pools {
			poolEvolutions[poolID] = append(poolEvolutions[poolID], PoolSnapshot{
				PeriodEnd: boundary, TotalBalance: pool.TotalBalance(), ExpectedMinimum: pool.ExpectedMinimum,
			})
		}
		if !boundary.Before(horizonEnd) {
			break
		}
		cursor = boundary
	}

	net := make(map[string]money.Cents, len(snap.Balances))
	for id, bal := range snap.Balances {
		net[id] = bal.Net()
	}
	var recommendation []settlement.Transfer
	if consolidate {
		recommendation = settlement.Minimal(net)
	} else {
		recommendation = settlement.PairwiseNet(pairwiseDirect(all))
	}

	filterPoolEvolutions(poolEvolutions, poolHorizons)
	filterPoolWarnings(report, poolHorizons)

	return CashflowResult{
		MonthlyBalances:        monthly,
		PoolEvolutions:         poolEvolutions,
		BalanceEvents:          report,
		Recommendations:        recommendation,
		ComputedRecommendation: recommendation,
	}, nil
}

// resolvePoolHorizons resolves each pool participant's warning-horizon
// settings to a concrete end date relative to today, taking the later of
// warning_horizon_account/warning_horizon_users when both are set. Pools
// with neither set are absent from the result and fall back to the
// horizon_months floor.
func resolvePoolHorizons(participants []domain.Participant, today calendar.Date) map[string]calendar.Date {
	out := make(map[string]calendar.Date)
	for _, p := range participants {
		if p.Kind != domain.Pool {
			continue
		}
		var end calendar.Date
		var set bool
		if p.WarningHorizonAccount != "" {
			end, set = p.WarningHorizonAccount.EndOfWindow(today), true
		}
		if p.WarningHorizonUsers != "" {
			usersEnd := p.WarningHorizonUsers.EndOfWindow(today)
			if !set || usersEnd.After(end) {
				end, set = usersEnd, true
			}
		}
		if set {
			out[p.ID] = end
		}
	}
	return out
}

// filterPoolEvolutions drops any per-pool snapshot beyond that pool's own
// resolved warning horizon, so a pool with a shorter configured horizon
// than another pool sharing the same project doesn't see projections past
// what it asked for (spec §4.6: "filters results per pool").
func filterPoolEvolutions(evolutions map[string][]PoolSnapshot, poolHorizons map[string]calendar.Date) {
	for poolID, end := range poolHorizons {
		snaps, ok := evolutions[poolID]
		if !ok {
			continue
		}
		clipped := snaps[:0:0]
		for _, snap := range snaps {
			if !snap.PeriodEnd.After(end) {
				clipped = append(clipped, snap)
			}
		}
		evolutions[poolID] = clipped
	}
}

// filterPoolWarnings clears any breach date in report that falls after
// the owning pool's own resolved warning horizon.
func filterPoolWarnings(report *horizon.Report, poolHorizons map[string]calendar.Date) {
	for poolID, end := range poolHorizons {
		warnings, ok := report.Pools[poolID]
		if !ok {
			continue
		}
		if warnings.FirstBelowExpected != nil && warnings.FirstBelowExpected.After(end) {
			warnings.FirstBelowExpected = nil
		}
		if warnings.FirstNegativeExpected != nil && warnings.FirstNegativeExpected.After(end) {
			warnings.FirstNegativeExpected = nil
		}
		for personID, d := range warnings.FirstPersonBelowExpected {
			if d.After(end) {
				delete(warnings.FirstPersonBelowExpected, personID)
			}
		}
	}
}

func snapshotBalances(periodEnd calendar.Date, snap *ledger.Snapshot) BalanceSnapshot {
	balances := make(map[string]money.Cents, len(snap.Balances))
	for id, bal := range snap.Balances {
		balances[id] = bal.Net()
	}
	return BalanceSnapshot{PeriodEnd: periodEnd, Balances: balances}
}
