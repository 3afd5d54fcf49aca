package allocator

import (
	"testing"

	"bonscompte.example/bonscompte/money"
)

func sumShares(shares map[string]money.Cents) money.Cents {
	var total money.Cents
	for _, v := range shares {
		total += v
	}
	return total
}

func TestE1EqualThreeWaySplit(t *testing.T) {
	contributors := []Contributor{{"A", 1}, {"B", 1}, {"C", 1}}
	shares := Allocate(150000, contributors) // $1500.00
	if shares["A"] != 50000 || shares["B"] != 50000 || shares["C"] != 50000 {
		t.Fatalf("got %+v, want 500/500/500", shares)
	}
}

func TestE2CentResidueToSmallestID(t *testing.T) {
	contributors := []Contributor{{"A", 1}, {"B", 1}, {"C", 1}}
	shares := Allocate(1000, contributors) // $10.00
	if sumShares(shares) != 1000 {
		t.Fatalf("shares do not conserve: %+v", shares)
	}
	if shares["A"] != 334 {
		t.Errorf("expected smallest id A to absorb the residual cent, got %+v", shares)
	}
	if shares["B"] != 333 || shares["C"] != 333 {
		t.Errorf("expected B and C at 333, got %+v", shares)
	}
}

func TestShareConservationProperty(t *testing.T) {
	amounts := []money.Cents{1, 7, 100, 9999, 123456, 3}
	weightSets := [][]float64{
		{1, 1, 1},
		{1, 2, 3},
		{0.5, 1.5},
		{1, 1, 1, 1, 1, 1, 1},
		{10, 0, 5},
	}
	for _, amt := range amounts {
		for _, ws := range weightSets {
			contributors := make([]Contributor, len(ws))
			for i, w := range ws {
				contributors[i] = Contributor{ParticipantID: string(rune('a' + i)), Weight: w}
			}
			shares := Allocate(amt, contributors)
			if sumShares(shares) != amt {
				t.Fatalf("conservation violated for amount=%d weights=%v: sum=%d shares=%+v",
					amt, ws, sumShares(shares), shares)
			}
		}
	}
}

func TestZeroWeightContributorPresentButExcluded(t *testing.T) {
	contributors := []Contributor{{"A", 1}, {"B", 0}, {"C", 1}}
	shares := Allocate(1000, contributors)
	if _, ok := shares["B"]; !ok {
		t.Fatalf("zero-weight contributor must still appear in the result with 0 share")
	}
	if shares["B"] != 0 {
		t.Errorf("zero-weight contributor must receive 0, got %d", shares["B"])
	}
	if shares["A"]+shares["C"] != 1000 {
		t.Errorf("remaining weight must absorb the full amount: %+v", shares)
	}
}

func TestAllWeightsZeroYieldsAllZero(t *testing.T) {
	contributors := []Contributor{{"A", 0}, {"B", 0}}
	shares := Allocate(1000, contributors)
	if shares["A"] != 0 || shares["B"] != 0 {
		t.Fatalf("expected all-zero shares when total weight is zero, got %+v", shares)
	}
}

func TestMonotoneInWeight(t *testing.T) {
	contributors := []Contributor{{"A", 1}, {"B", 3}}
	shares := Allocate(1000, contributors)
	if shares["B"] <= shares["A"] {
		t.Fatalf("expected B (higher weight) to receive a larger share: %+v", shares)
	}
}

func TestDeterministicAcrossRuns(t *testing.T) {
	contributors := []Contributor{{"z", 1}, {"a", 1}, {"m", 1}}
	first := Allocate(1001, contributors)
	second := Allocate(1001, contributors)
	for id, v := range first {
		if second[id] != v {
			t.Fatalf("non-deterministic result: %+v vs %+v", first, second)
		}
	}
}

func TestNegativeResidueDistribution(t *testing.T) {
	// Weights that round up collectively past the total: three equal
	// contributors of 200 cents each get 66.67, rounded to 67, which sums
	// to 201 and leaves a residue of -1 cent to take back.
	contributors := []Contributor{{"A", 1}, {"B", 1}, {"C", 1}}
	shares := Allocate(200, contributors) // 200/3 = 66.67 cents each
	if sumShares(shares) != 200 {
		t.Fatalf("conservation violated: %+v sums to %d", shares, sumShares(shares))
	}
}
