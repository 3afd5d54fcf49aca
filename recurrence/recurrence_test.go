package recurrence

import (
	"testing"
	"time"

	"bonscompte.example/bonscompte/calendar"
)

func date(y int, m time.Month, d int) calendar.Date { return calendar.New(y, m, d) }

func collect(spec Spec, anchor, horizon calendar.Date) []string {
	var out []string
	for d := range Expand(spec, anchor, horizon) {
		out = append(out, d.String())
	}
	return out
}

func TestE3WeeklyWithWeekdaySet(t *testing.T) {
	anchor := date(2025, time.January, 6) // Monday
	end := date(2025, time.January, 17)
	spec := Spec{
		Type:     Weekly,
		Interval: 1,
		Weekdays: [][]int{{1, 3, 5}}, // Mon, Wed, Fri
		EndDate:  &end,
	}
	got := collect(spec, anchor, date(2025, time.December, 31))
	want := []string{"2025-01-06", "2025-01-08", "2025-01-10", "2025-01-13", "2025-01-15", "2025-01-17"}
	assertDates(t, got, want)
}

func TestWeeklyIntervalFourCyclesCorrectly(t *testing.T) {
	// Boundary: WEEKLY interval=4 with weekdays for four distinct weeks.
	anchor := date(2025, time.January, 6) // Monday, week 0 starts Sunday Jan 5
	spec := Spec{
		Type:     Weekly,
		Interval: 4,
		Weekdays: [][]int{{1}, {2}, {3}, {4}}, // Mon of wk0, Tue of wk1, Wed of wk2, Thu of wk3
	}
	count := 2
	spec.Count = &count
	got := collect(spec, anchor, date(2026, time.January, 1))
	want := []string{"2025-01-06", "2025-01-14"}
	assertDates(t, got, want)
}

func TestMonthlyClampOn30DayMonth(t *testing.T) {
	// Boundary: MONTHLY with monthdays containing 31 on a 30-day month emits the 30th.
	anchor := date(2025, time.April, 1)
	spec := Spec{Type: Monthly, Interval: 1, Monthdays: []int{31}}
	n := 1
	spec.Count = &n
	got := collect(spec, anchor, date(2025, time.April, 30))
	want := []string{"2025-04-30"}
	assertDates(t, got, want)
}

func TestE4MonthlyClampSequence(t *testing.T) {
	anchor := date(2025, time.January, 31)
	spec := Spec{Type: Monthly, Interval: 1}
	n := 4
	spec.Count = &n
	got := collect(spec, anchor, date(2026, time.January, 1))
	want := []string{"2025-01-31", "2025-02-28", "2025-03-31", "2025-04-30"}
	assertDates(t, got, want)
}

func TestYearlyFeb29NonLeapTarget(t *testing.T) {
	anchor := date(2024, time.February, 29)
	spec := Spec{Type: Yearly, Interval: 1}
	n := 2
	spec.Count = &n
	got := collect(spec, anchor, date(2030, time.January, 1))
	want := []string{"2024-02-29", "2025-02-28"}
	assertDates(t, got, want)
}

func TestYearlyWithMonthsPattern(t *testing.T) {
	anchor := date(2025, time.March, 15)
	spec := Spec{Type: Yearly, Interval: 1, Months: []int{3, 9}}
	n := 4
	spec.Count = &n
	got := collect(spec, anchor, date(2027, time.January, 1))
	want := []string{"2025-03-15", "2025-09-15", "2026-03-15", "2026-09-15"}
	assertDates(t, got, want)
}

func TestCountOneYieldsOnlyAnchor(t *testing.T) {
	anchor := date(2025, time.January, 1)
	spec := Spec{Type: Monthly, Interval: 1}
	n := 1
	spec.Count = &n
	got := collect(spec, anchor, date(2026, time.January, 1))
	assertDates(t, got, []string{"2025-01-01"})
}

func TestEarliestTerminationWins(t *testing.T) {
	anchor := date(2025, time.January, 1)
	end := date(2025, time.January, 1)
	n := 100
	spec := Spec{Type: Daily, Interval: 1, EndDate: &end, Count: &n}
	got := collect(spec, anchor, date(2026, time.January, 1))
	assertDates(t, got, []string{"2025-01-01"})
}

func TestNthLastBeforeFirstFrom(t *testing.T) {
	anchor := date(2025, time.January, 1)
	spec := Spec{Type: Monthly, Interval: 1}

	nth, ok := NthOccurrence(spec, anchor, 3)
	if !ok || nth.String() != "2025-03-01" {
		t.Fatalf("NthOccurrence(3) = %v, %v", nth, ok)
	}

	last, ok := LastBefore(spec, anchor, date(2025, time.March, 15))
	if !ok || last.String() != "2025-03-01" {
		t.Fatalf("LastBefore = %v, %v", last, ok)
	}

	first, ok := FirstFrom(spec, anchor, date(2025, time.March, 2))
	if !ok || first.String() != "2025-04-01" {
		t.Fatalf("FirstFrom = %v, %v", first, ok)
	}
}

func TestLastBeforeAnchorItselfFindsNothing(t *testing.T) {
	// Split-edit with D = anchor collapses the left series.
	anchor := date(2025, time.January, 1)
	spec := Spec{Type: Monthly, Interval: 1}
	_, ok := LastBefore(spec, anchor, anchor)
	if ok {
		t.Fatalf("expected no occurrence strictly before the anchor")
	}
}

func TestDeterminism(t *testing.T) {
	anchor := date(2025, time.January, 6)
	spec := Spec{Type: Weekly, Interval: 2, Weekdays: [][]int{{1, 3}, {5}}}
	horizon := date(2025, time.June, 1)
	a := collect(spec, anchor, horizon)
	b := collect(spec, anchor, horizon)
	if len(a) != len(b) {
		t.Fatalf("non-deterministic lengths: %d vs %d", len(a), len(b))
	}
	for i := range a {
		if a[i] != b[i] {
			t.Fatalf("non-deterministic at %d: %s vs %s", i, a[i], b[i])
		}
	}
}

func TestMonotonicity(t *testing.T) {
	anchor := date(2025, time.January, 6)
	spec := Spec{Type: Weekly, Interval: 3, Weekdays: [][]int{{0, 6}, {2}, {4}}}
	horizon := date(2025, time.December, 31)
	prev := ""
	for _, s := range collect(spec, anchor, horizon) {
		if prev != "" && s < prev {
			t.Fatalf("sequence not non-decreasing: %s before %s", prev, s)
		}
		prev = s
	}
}

func assertDates(t *testing.T, got, want []string) {
	t.Helper()
	if len(got) != len(want) {
		t.Fatalf("got %v, want %v", got, want)
	}
	for i := range want {
		if got[i] != want[i] {
			t.Fatalf("at %d: got %s, want %s (full: got=%v want=%v)", i, got[i], want[i], got, want)
		}
	}
}
