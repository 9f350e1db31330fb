package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/TruckFinderAI/truckfinder-mvp/engine/inventory"
	"github.com/TruckFinderAI/truckfinder-mvp/pkg/fn"
)

// Comparison size bounds. One vehicle is a detail lookup, not a comparison,
// and more than five stops fitting in a conversational answer.
const (
	MinCompareSize = 2
	MaxCompareSize = 5
)

var (
	// ErrComparisonSize marks a comparison request outside [MinCompareSize, MaxCompareSize].
	ErrComparisonSize = errors.New("comparison size out of range")
	// ErrUnknownRecord marks a vehicle id that resolves to nothing.
	ErrUnknownRecord = errors.New("unknown vehicle id")
)

// UnknownRecordError names the id that failed to resolve.
type UnknownRecordError struct {
	ID int
}

func (e *UnknownRecordError) Error() string {
	return fmt.Sprintf("unknown vehicle id %d", e.ID)
}

func (e *UnknownRecordError) Unwrap() error { return ErrUnknownRecord }

// ComparisonRow is one attribute across all compared vehicles, values in the
// same order as the requested ids. BestID is the winning vehicle for numeric
// attributes with an obvious direction (lowest price, lowest mileage, highest
// power); zero when the attribute has no winner or the values tie.
type ComparisonRow struct {
	Attribute string   `json:"attribute"`
	Values    []string `json:"values"`
	BestID    int      `json:"best_vehicle_id,omitempty"`
}

// Comparison is a side-by-side view of two to five vehicles.
type Comparison struct {
	Records []inventory.Record `json:"records"`
	Rows    []ComparisonRow    `json:"rows"`
}

// Compare builds a side-by-side comparison of the given vehicles, preserving
// the caller's id order. Returns ErrComparisonSize for a request outside the
// size bounds and an UnknownRecordError for the first id that does not
// resolve.
func (e *Executor) Compare(ids []int) (Comparison, error) {
	if len(ids) < MinCompareSize || len(ids) > MaxCompareSize {
		return Comparison{}, fmt.Errorf("%w: got %d ids, want %d to %d",
			ErrComparisonSize, len(ids), MinCompareSize, MaxCompareSize)
	}
	records := make([]inventory.Record, 0, len(ids))
	for _, id := range ids {
		r, ok := e.store.ByID(id)
		if !ok {
			return Comparison{}, &UnknownRecordError{ID: id}
		}
		records = append(records, r)
	}
	return Comparison{Records: records, Rows: buildRows(records)}, nil
}

func buildRows(records []inventory.Record) []ComparisonRow {
	rows := []ComparisonRow{
		numericRow("price", records, func(r inventory.Record) (float64, bool) {
			if r.Price == nil || *r.Price <= 0 {
				return 0, false
			}
			return *r.Price, true
		}, false, formatPrice),
		numericRow("mileage", records, func(r inventory.Record) (float64, bool) {
			if r.Mileage == nil {
				return 0, false
			}
			return float64(*r.Mileage), true
		}, false, func(v float64) string { return fmt.Sprintf("%d km", int(v)) }),
		numericRow("power", records, func(r inventory.Record) (float64, bool) {
			if r.Power == nil {
				return 0, false
			}
			return float64(*r.Power), true
		}, true, func(v float64) string { return fmt.Sprintf("%d hp", int(v)) }),
		stringRow("configuration", records, func(r inventory.Record) string { return r.Configuration }),
		{Attribute: "euro", Values: fn.Map(records, func(r inventory.Record) string {
			if r.Euro == nil {
				return "n/a"
			}
			return strconv.Itoa(*r.Euro)
		})},
		stringRow("gearbox", records, func(r inventory.Record) string { return r.Gearbox }),
		stringRow("fuel", records, func(r inventory.Record) string { return r.Fuel }),
		stringRow("cabin", records, func(r inventory.Record) string { return r.Cabin }),
		stringRow("features", records, featureList),
		{Attribute: "beds", Values: fn.Map(records, func(r inventory.Record) string {
			if r.Beds == nil {
				return "n/a"
			}
			return strconv.Itoa(*r.Beds)
		})},
	}
	return rows
}

// numericRow renders one numeric attribute and marks the single best vehicle.
// A missing value renders as "n/a" and never wins; a tie leaves BestID zero.
func numericRow(name string, records []inventory.Record,
	key func(inventory.Record) (float64, bool), higherWins bool,
	format func(float64) string) ComparisonRow {

	row := ComparisonRow{Attribute: name, Values: make([]string, len(records))}
	bestIdx, tied := -1, false
	var best float64
	for i, r := range records {
		v, ok := key(r)
		if !ok {
			row.Values[i] = "n/a"
			continue
		}
		row.Values[i] = format(v)
		switch {
		case bestIdx < 0:
			bestIdx, best = i, v
		case v == best:
			tied = true
		case higherWins == (v > best):
			bestIdx, best, tied = i, v, false
		}
	}
	if bestIdx >= 0 && !tied {
		row.BestID = records[bestIdx].ID
	}
	return row
}

func stringRow(name string, records []inventory.Record, key func(inventory.Record) string) ComparisonRow {
	return ComparisonRow{
		Attribute: name,
		Values: fn.Map(records, func(r inventory.Record) string {
			if v := key(r); v != "" {
				return v
			}
			return "n/a"
		}),
	}
}

func featureList(r inventory.Record) string {
	var feats []string
	if r.HasRetarder {
		feats = append(feats, "retarder")
	}
	if r.HasAirco {
		feats = append(feats, "airco")
	}
	if r.IsNew {
		feats = append(feats, "new")
	}
	if r.IsDamaged {
		feats = append(feats, "damaged")
	}
	if len(feats) == 0 {
		return "none"
	}
	return strings.Join(feats, ", ")
}

func formatPrice(v float64) string { return fmt.Sprintf("EUR %.0f", v) }
