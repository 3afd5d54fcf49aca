package store

import (
	"database/sql"
	"encoding/json"

	"bonscompte.example/bonscompte/calendar"
	"bonscompte.example/bonscompte/recurrence"
)

// recurrencePattern is the JSON shape persisted in payments.recurrence_pattern
// (spec §6: "enhanced recurrence patterns are serialized as canonical JSON
// strings").
type recurrencePattern struct {
	Weekdays  [][]int `json:"weekdays,omitempty"`
	Monthdays []int   `json:"monthdays,omitempty"`
	Months    []int   `json:"months,omitempty"`
}

// recurrenceColumns is the flat row shape encodeRecurrence/decodeRecurrence
// convert a *recurrence.Spec to and from.
type recurrenceColumns struct {
	Type     string
	Interval int
	Pattern  string
	EndDate  sql.NullString
	Count    sql.NullInt64
}

func encodeRecurrence(spec *recurrence.Spec) (recurrenceColumns, error) {
	if spec == nil {
		return recurrenceColumns{Type: "", Interval: 0, Pattern: "{}"}, nil
	}
	patternJSON, err := json.Marshal(recurrencePattern{
		Weekdays:  spec.Weekdays,
		Monthdays: spec.Monthdays,
		Months:    spec.Months,
	})
	if err != nil {
		return recurrenceColumns{}, err
	}
	cols := recurrenceColumns{
		Type:     string(spec.Type),
		Interval: spec.Interval,
		Pattern:  string(patternJSON),
	}
	if spec.EndDate != nil {
		cols.EndDate = sql.NullString{String: spec.EndDate.String(), Valid: true}
	}
	if spec.Count != nil {
		cols.Count = sql.NullInt64{Int64: int64(*spec.Count), Valid: true}
	}
	return cols, nil
}

func decodeRecurrence(cols recurrenceColumns) (*recurrence.Spec, error) {
	if cols.Type == "" {
		return nil, nil
	}
	var pattern recurrencePattern
	if cols.Pattern != "" {
		if err := json.Unmarshal([]byte(cols.Pattern), &pattern); err != nil {
			return nil, err
		}
	}
	spec := &recurrence.Spec{
		Type:      recurrence.Type(cols.Type),
		Interval:  cols.Interval,
		Weekdays:  pattern.Weekdays,
		Monthdays: pattern.Monthdays,
		Months:    pattern.Months,
	}
	if cols.EndDate.Valid {
		d, err := calendar.Parse(cols.EndDate.String)
		if err != nil {
			return nil, err
		}
		spec.EndDate = &d
	}
	if cols.Count.Valid {
		n := int(cols.Count.Int64)
		spec.Count = &n
	}
	return spec, nil
}
