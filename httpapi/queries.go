package httpapi

import (
	"net/http"
	"strconv"
	"time"

	"bonscompte.example/bonscompte/bonserr"
	"bonscompte.example/bonscompte/calendar"
	"bonscompte.example/bonscompte/horizon"
	"bonscompte.example/bonscompte/money"
	"bonscompte.example/bonscompte/settlement"
	"bonscompte.example/bonscompte/store"
)

func handleProjectDebts(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("project_id")
		targetDate := calendar.FromTime(time.Now())
		if raw := r.URL.Query().Get("target_date"); raw != "" {
			d, err := calendar.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, bonserr.New(bonserr.InvalidDateFormat, "target_date must be YYYY-MM-DD"))
				return
			}
			targetDate = d
		}
		includeDrafts := r.URL.Query().Get("include_drafts") == "true"

		result, berr := st.ProjectDebts(projectID, targetDate, includeDrafts)
		if berr != nil {
			writeError(w, errStatusFor(berr), berr)
			return
		}
		writeJSON(w, http.StatusOK, debtsResponse(result))
	}
}

func debtsResponse(result store.DebtsResult) map[string]any {
	balances := make(map[string]float64, len(result.Balances))
	for id, bal := range result.Balances {
		balances[id] = bal.Net().ToFloat()
	}
	pairwise := make([]map[string]any, 0, len(result.PairwiseBalances))
	for pair, amt := range result.PairwiseBalances {
		pairwise = append(pairwise, map[string]any{"owes": pair[0], "to": pair[1], "amount": amt.ToFloat()})
	}
	return map[string]any{
		"balances":           balances,
		"settlements":        transfersWire(result.Settlements),
		"direct_settlements": transfersWire(result.DirectSettlements),
		"occurrences":        len(result.Occurrences),
		"pairwise_balances":  pairwise,
		"pool_ownerships":    poolOwnershipsWire(result.PoolOwnerships),
	}
}

func transfersWire(transfers []settlement.Transfer) []map[string]any {
	out := make([]map[string]any, len(transfers))
	for i, t := range transfers {
		out[i] = map[string]any{"payer": t.Payer, "receiver": t.Receiver, "amount": t.Amount.ToFloat()}
	}
	return out
}

func poolOwnershipsWire(pools map[string]map[string]money.Cents) map[string]any {
	out := make(map[string]any, len(pools))
	for poolID, owners := range pools {
		perPerson := make(map[string]float64, len(owners))
		for personID, amt := range owners {
			perPerson[personID] = amt.ToFloat()
		}
		out[poolID] = perPerson
	}
	return out
}

func handleCashflowProjection(st *store.Store) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		projectID := r.PathValue("project_id")
		query := r.URL.Query()

		start := calendar.FromTime(time.Now())
		if raw := query.Get("start"); raw != "" {
			d, err := calendar.Parse(raw)
			if err != nil {
				writeError(w, http.StatusBadRequest, bonserr.New(bonserr.InvalidDateFormat, "start must be YYYY-MM-DD"))
				return
			}
			start = d
		}
		horizonMonths := 6
		if raw := query.Get("horizon_months"); raw != "" {
			n, err := strconv.Atoi(raw)
			if err != nil || n < 0 {
				writeError(w, http.StatusBadRequest, bonserr.New(bonserr.InvalidInput, "horizon_months must be a non-negative integer"))
				return
			}
			horizonMonths = n
		}
		frequency := store.Monthly
		switch query.Get("frequency") {
		case "DAILY":
			frequency = store.Daily
		case "WEEKLY":
			frequency = store.Weekly
		}
		consolidate := query.Get("consolidate") != "false"

		result, berr := st.CashflowProjection(projectID, start, horizonMonths, frequency, consolidate)
		if berr != nil {
			writeError(w, errStatusFor(berr), berr)
			return
		}
		writeJSON(w, http.StatusOK, cashflowResponse(result))
	}
}

func cashflowResponse(result store.CashflowResult) map[string]any {
	monthly := make([]map[string]any, len(result.MonthlyBalances))
	for i, snap := range result.MonthlyBalances {
		balances := make(map[string]float64, len(snap.Balances))
		for id, amt := range snap.Balances {
			balances[id] = amt.ToFloat()
		}
		monthly[i] = map[string]any{"period_end": snap.PeriodEnd.String(), "balances": balances}
	}

	pools := make(map[string]any, len(result.PoolEvolutions))
	for poolID, snaps := range result.PoolEvolutions {
		entries := make([]map[string]any, len(snaps))
		for i, s := range snaps {
			entries[i] = map[string]any{
				"period_end":       s.PeriodEnd.String(),
				"total_balance":    s.TotalBalance.ToFloat(),
				"expected_minimum": s.ExpectedMinimum.ToFloat(),
			}
		}
		pools[poolID] = entries
	}

	return map[string]any{
		"monthly_balances":       monthly,
		"pool_evolutions":        pools,
		"balance_events":         balanceEventsWire(result.BalanceEvents),
		"recommendations":        transfersWire(result.Recommendations),
		"computed_recommendation": transfersWire(result.ComputedRecommendation),
	}
}

func balanceEventsWire(report *horizon.Report) map[string]any {
	if report == nil {
		return map[string]any{}
	}
	pools := make(map[string]any, len(report.Pools))
	for poolID, warnings := range report.Pools {
		entry := map[string]any{}
		if warnings.FirstBelowExpected != nil {
			entry["first_below_expected"] = warnings.FirstBelowExpected.String()
		}
		if warnings.FirstNegativeExpected != nil {
			entry["first_negative_expected"] = warnings.FirstNegativeExpected.String()
		}
		if len(warnings.FirstPersonBelowExpected) > 0 {
			perPerson := make(map[string]string, len(warnings.FirstPersonBelowExpected))
			for personID, d := range warnings.FirstPersonBelowExpected {
				perPerson[personID] = d.String()
			}
			entry["first_person_below_expected"] = perPerson
		}
		pools[poolID] = entry
	}
	return map[string]any{
		"start":        report.Start.String(),
		"horizon_end":  report.HorizonEnd.String(),
		"pool_warnings": pools,
	}
}
