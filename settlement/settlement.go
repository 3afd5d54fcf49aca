// Package settlement reduces a set of net balances to a minimal set of
// payments that zero them out (spec §4.5). It generalizes the teacher's
// two-person "who owes who" subtraction (transfer/handlers.go's single
// if-else) to the greedy largest-debtor/largest-creditor algorithm N
// participants require.
package settlement

import (
	"sort"

	"bonscompte.example/bonscompte/money"
)

// Transfer is one suggested payment from Payer to Receiver.
type Transfer struct {
	Payer    string
	Receiver string
	Amount   money.Cents
}

// Minimal computes the fewest transfers that settle every net balance to
// zero, by repeatedly matching the largest remaining debtor against the
// largest remaining creditor. net maps participant id to TotalPaid -
// TotalOwed (positive: owed money; negative: owes money).
//
// Ties among equally-sized debtors or creditors break on ascending
// participant id, so the result is deterministic regardless of map
// iteration order.
func Minimal(net map[string]money.Cents) []Transfer {
	type entry struct {
		id     string
		amount money.Cents // positive magnitude
	}
	var debtors, creditors []entry
	for id, n := range net {
		switch {
		case n < 0:
			debtors = append(debtors, entry{id, -n})
		case n > 0:
			creditors = append(creditors, entry{id, n})
		}
	}

	order := func(xs []entry) {
		sort.SliceStable(xs, func(i, j int) bool {
			if xs[i].amount != xs[j].amount {
				return xs[i].amount > xs[j].amount
			}
			return xs[i].id < xs[j].id
		})
	}

	var transfers []Transfer
	di, ci := 0, 0
	for {
		order(debtors[di:])
		order(creditors[ci:])
		for di < len(debtors) && debtors[di].amount == 0 {
			di++
		}
		for ci < len(creditors) && creditors[ci].amount == 0 {
			ci++
		}
		if di >= len(debtors) || ci >= len(creditors) {
			break
		}
		d, c := &debtors[di], &creditors[ci]
		amt := d.amount
		if c.amount < amt {
			amt = c.amount
		}
		if amt > 0 {
			transfers = append(transfers, Transfer{Payer: d.id, Receiver: c.id, Amount: amt})
		}
		d.amount -= amt
		c.amount -= amt
	}
	return transfers
}

// PairwiseNet is a symmetric view showing, for every pair of participants
// with opposing direct debts, only the net direction and amount (spec
// §4.5's "direct pairwise settlement" alternative to the minimal-transfer
// view). direct maps an ordered pair key "A->B" to the amount A owes B
// directly (before cross-cancellation); Pairwise collapses A->B and B->A
// into a single signed transfer.
func PairwiseNet(direct map[[2]string]money.Cents) []Transfer {
	seen := map[[2]string]bool{}
	var out []Transfer
	keys := make([][2]string, 0, len(direct))
	for k := range direct {
		keys = append(keys, k)
	}
	sort.Slice(keys, func(i, j int) bool {
		if keys[i][0] != keys[j][0] {
			return keys[i][0] < keys[j][0]
		}
		return keys[i][1] < keys[j][1]
	})
	for _, k := range keys {
		a, b := k[0], k[1]
		if seen[[2]string{a, b}] || seen[[2]string{b, a}] {
			continue
		}
		seen[[2]string{a, b}] = true
		seen[[2]string{b, a}] = true
		aOwesB := direct[[2]string{a, b}]
		bOwesA := direct[[2]string{b, a}]
		net := aOwesB - bOwesA
		switch {
		case net > 0:
			out = append(out, Transfer{Payer: a, Receiver: b, Amount: net})
		case net < 0:
			out = append(out, Transfer{Payer: b, Receiver: a, Amount: -net})
		}
	}
	return out
}
