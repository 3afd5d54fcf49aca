// Package allocator distributes a payment amount across weighted
// contributors with exact-cent reconciliation (spec §4.3). It generalizes
// the teacher's fixed 50/50-or-takes-all split (stats/handlers.go's SQL
// CASE, transfer/handlers.go's amount/2.0) into N-way weighted shares.
package allocator

import (
	"sort"

	"bonscompte.example/bonscompte/money"
)

// Contributor is a (participant, weight) pair. Weight may be zero: a
// zero-weight contributor is recorded for display but receives no share and
// is excluded from the weight total (spec §9's weight-zero idiom).
type Contributor struct {
	ParticipantID string
	Weight        float64
}

// Allocate distributes amount across contributors, returning a share per
// ParticipantID. Satisfies S1 (exact conservation), S2 (monotone in
// weight), and S3 (deterministic for a fixed contributor ordering: ties in
// the residue distribution break on descending weight then ascending
// ParticipantID, never on map/slice iteration order).
func Allocate(amount money.Cents, contributors []Contributor) map[string]money.Cents {
	shares := make(map[string]money.Cents, len(contributors))
	for _, c := range contributors {
		shares[c.ParticipantID] = 0
	}
	if amount == 0 {
		return shares
	}

	type raw struct {
		id        string
		weight    float64
		rounded   int64
		remainder float64 // fractional part of the unrounded cents, for residue ordering
	}

	var totalWeight float64
	included := make([]Contributor, 0, len(contributors))
	for _, c := range contributors {
		if c.Weight > 0 {
			totalWeight += c.Weight
			included = append(included, c)
		}
	}
	if totalWeight <= 0 {
		return shares
	}

	raws := make([]raw, 0, len(included))
	var sumRounded int64
	for _, c := range included {
		rawCents := float64(amount) * c.Weight / totalWeight
		rounded, remainder := roundHalfToEven(rawCents)
		raws = append(raws, raw{id: c.ParticipantID, weight: c.Weight, rounded: rounded, remainder: remainder})
		sumRounded += rounded
	}

	residue := int64(amount) - sumRounded

	// Order by descending fractional remainder; ties by descending weight,
	// then ascending participant id — deterministic regardless of input
	// order or map iteration.
	sort.SliceStable(raws, func(i, j int) bool {
		if raws[i].remainder != raws[j].remainder {
			return raws[i].remainder > raws[j].remainder
		}
		if raws[i].weight != raws[j].weight {
			return raws[i].weight > raws[j].weight
		}
		return raws[i].id < raws[j].id
	})

	step := int64(1)
	if residue < 0 {
		step = -1
	}
	remaining := residue
	if remaining < 0 {
		remaining = -remaining
	}
	for i := 0; remaining > 0 && i < len(raws); i++ {
		raws[i].rounded += step
		remaining--
	}

	for _, r := range raws {
		shares[r.id] = money.Cents(r.rounded)
	}
	return shares
}

// roundHalfToEven rounds cents to the nearest integer, ties to even (banker's
// rounding), returning the rounded value and the signed fractional remainder
// used to order residue distribution.
func roundHalfToEven(cents float64) (rounded int64, remainder float64) {
	floor := int64(cents)
	frac := cents - float64(floor)
	switch {
	case frac < 0.5:
		rounded = floor
	case frac > 0.5:
		rounded = floor + 1
	default: // exactly .5: round to even
		if floor%2 == 0 {
			rounded = floor
		} else {
			rounded = floor + 1
		}
	}
	remainder = cents - float64(rounded)
	return rounded, remainder
}
