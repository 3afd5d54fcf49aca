// Package calendar implements local-date arithmetic on (year, month, day)
// tuples: no timezone, no DST, no UTC conversion. Dates are represented as
// time.Time truncated to midnight, matching the teacher's date handling
// (time.Parse("2006-01-02", ...)) but every operation here treats the value
// as a bare calendar date, never as an instant.
package calendar

import "time"

// Date is a local calendar date with no time-of-day or timezone meaning.
type Date struct {
	Year  int
	Month time.Month
	Day   int
}

// New builds a Date, clamping is the caller's responsibility for operations
// that require it (AddMonths, AddYears); New itself does not validate.
func New(year int, month time.Month, day int) Date {
	return Date{Year: year, Month: month, Day: day}
}

// FromTime takes the (year, month, day) components of t, ignoring its
// time-of-day and location.
func FromTime(t time.Time) Date {
	y, m, d := t.Date()
	return Date{Year: y, Month: m, Day: d}
}

// ToTime renders d as a UTC midnight time.Time, the representation used at
// the storage boundary.
func (d Date) ToTime() time.Time {
	return time.Date(d.Year, d.Month, d.Day, 0, 0, 0, 0, time.UTC)
}

// String formats d as YYYY-MM-DD, the only wire format dates ever use.
func (d Date) String() string {
	return d.ToTime().Format("2006-01-02")
}

// Parse reads a YYYY-MM-DD string into a Date.
func Parse(s string) (Date, error) {
	t, err := time.Parse("2006-01-02", s)
	if err != nil {
		return Date{}, err
	}
	return FromTime(t), nil
}

// Before reports whether d is strictly earlier than o.
func (d Date) Before(o Date) bool {
	return d.ToTime().Before(o.ToTime())
}

// After reports whether d is strictly later than o.
func (d Date) After(o Date) bool {
	return d.ToTime().After(o.ToTime())
}

// Equal reports calendar-date equality.
func (d Date) Equal(o Date) bool {
	return d.Year == o.Year && d.Month == o.Month && d.Day == o.Day
}

// Compare returns -1, 0, or 1 as d is before, equal to, or after o.
func (d Date) Compare(o Date) int {
	switch {
	case d.Before(o):
		return -1
	case d.After(o):
		return 1
	default:
		return 0
	}
}

// DaysInMonth returns the number of days in the given Gregorian month.
func DaysInMonth(year int, month time.Month) int {
	// Day 0 of the following month is the last day of this one.
	return time.Date(year, month+1, 0, 0, 0, 0, 0, time.UTC).Day()
}

// IsLeapYear reports whether year is a Gregorian leap year.
func IsLeapYear(year int) bool {
	return DaysInMonth(year, time.February) == 29
}

// AddDays returns d shifted by n days (n may be negative).
func AddDays(d Date, n int) Date {
	return FromTime(d.ToTime().AddDate(0, 0, n))
}

// AddMonths returns d shifted by n months, clamping the day-of-month to the
// last valid day of the target month when it would otherwise overflow
// (e.g. Jan 31 + 1 month = Feb 28 or 29, never Mar 3 as stdlib AddDate would
// produce).
func AddMonths(d Date, n int) Date {
	totalMonths := int(d.Month) - 1 + n
	year := d.Year + totalMonths/12
	month := totalMonths % 12
	if month < 0 {
		month += 12
		year--
	}
	targetMonth := time.Month(month + 1)
	day := d.Day
	if max := DaysInMonth(year, targetMonth); day > max {
		day = max
	}
	return Date{Year: year, Month: targetMonth, Day: day}
}

// AddYears returns d shifted by n years, clamping Feb 29 to Feb 28 when the
// target year is not a leap year.
func AddYears(d Date, n int) Date {
	year := d.Year + n
	day := d.Day
	if d.Month == time.February && d.Day == 29 && !IsLeapYear(year) {
		day = 28
	}
	return Date{Year: year, Month: d.Month, Day: day}
}

// Weekday returns 0=Sunday .. 6=Saturday for d.
func Weekday(d Date) int {
	return int(d.ToTime().Weekday())
}

// DaysBetween returns the signed day count from a to b (b - a).
func DaysBetween(a, b Date) int {
	const day = 24 * time.Hour
	return int(b.ToTime().Sub(a.ToTime()) / day)
}

// WithDay returns d with its day-of-month replaced, clamped to the last
// valid day of d's month.
func WithDay(d Date, day int) Date {
	if max := DaysInMonth(d.Year, d.Month); day > max {
		day = max
	}
	return Date{Year: d.Year, Month: d.Month, Day: day}
}
