// Package query executes validated filters against the inventory store and
// builds side-by-side comparisons. It is purely computational; session state
// and transport concerns live elsewhere.
package query

import (
	"sort"
	"strings"

	"github.com/TruckFinderAI/truckfinder-mvp/engine/domain"
	"github.com/TruckFinderAI/truckfinder-mvp/engine/inventory"
	"github.com/TruckFinderAI/truckfinder-mvp/pkg/fn"
)

// Result is one executed search: the sorted, truncated page plus the match
// count before truncation, so callers can report "showing 5 of 37".
type Result struct {
	Records      []inventory.Record `json:"records"`
	TotalMatches int                `json:"total_matches"`
}

// Executor runs filters against an immutable store.
type Executor struct {
	store *inventory.Store
}

// NewExecutor returns an Executor over store.
func NewExecutor(store *inventory.Store) *Executor {
	return &Executor{store: store}
}

// sleeperAliases are cabin designations that imply a sleeper cabin. Dealers
// brand the same cabin class differently per make, so a plain substring match
// on "SLEEPER" would miss most of the fleet.
var sleeperAliases = []string{
	"SLEEPER", "SPACE", "HIGHLINE", "GLOBETROTTER", "GIGASPACE",
	"TOPLINE", "SUPER", "BIGSPACE", "STREAMSPACE", "LONG",
	"L-CAB", "R-SERIES", "S-SERIES",
}

// Search applies f to every record, sorts, and truncates to the effective
// limit. An unknown enum token (a brand or fuel nothing carries) yields zero
// matches rather than an error; only structurally invalid filters fail, and
// those are rejected before reaching the executor.
func (e *Executor) Search(f domain.Filter) Result {
	matched := fn.Filter(e.store.All(), func(r inventory.Record) bool {
		return matches(f, r)
	})
	sortRecords(matched, f.EffectiveSort())

	total := len(matched)
	if limit := f.EffectiveLimit(); len(matched) > limit {
		matched = matched[:limit]
	}
	if matched == nil {
		matched = []inventory.Record{}
	}
	return Result{Records: matched, TotalMatches: total}
}

func matches(f domain.Filter, r inventory.Record) bool {
	// Damaged units are hidden unless the caller opts in.
	if r.IsDamaged && !f.IncludeDamaged.Or(false) {
		return false
	}
	// With a price constraint in play, units without a listed price cannot
	// satisfy it and would otherwise pollute "under X" answers.
	if f.MinPrice.IsSet() || f.MaxPrice.IsSet() {
		if r.Price == nil || *r.Price <= 0 {
			return false
		}
	}

	if v, ok := f.Brand.Get(); ok && !strings.EqualFold(v, r.Brand) {
		return false
	}
	if v, ok := f.Model.Get(); ok && !strings.Contains(strings.ToUpper(r.Model), strings.ToUpper(v)) {
		return false
	}
	if v, ok := f.Configuration.Get(); ok && !strings.EqualFold(v, r.Configuration) {
		return false
	}
	if v, ok := f.Euro.Get(); ok && (r.Euro == nil || *r.Euro != v) {
		return false
	}
	if v, ok := f.Gearbox.Get(); ok && strings.ToLower(v) != r.Gearbox {
		return false
	}
	if v, ok := f.Fuel.Get(); ok && strings.ToLower(v) != r.Fuel {
		return false
	}
	if v, ok := f.Cabin.Get(); ok && !cabinMatches(v, r.Cabin) {
		return false
	}

	if v, ok := f.MinPrice.Get(); ok && (r.Price == nil || *r.Price < v) {
		return false
	}
	if v, ok := f.MaxPrice.Get(); ok && (r.Price == nil || *r.Price > v) {
		return false
	}
	if v, ok := f.MinPower.Get(); ok && (r.Power == nil || *r.Power < v) {
		return false
	}
	if v, ok := f.MaxPower.Get(); ok && (r.Power == nil || *r.Power > v) {
		return false
	}
	if v, ok := f.MinMileage.Get(); ok && (r.Mileage == nil || *r.Mileage < v) {
		return false
	}
	if v, ok := f.MaxMileage.Get(); ok && (r.Mileage == nil || *r.Mileage > v) {
		return false
	}
	if v, ok := f.MinBeds.Get(); ok && (r.Beds == nil || *r.Beds < v) {
		return false
	}

	if v, ok := f.IsNew.Get(); ok && r.IsNew != v {
		return false
	}
	if v, ok := f.HasRetarder.Get(); ok && r.HasRetarder != v {
		return false
	}
	if v, ok := f.HasAirco.Get(); ok && r.HasAirco != v {
		return false
	}
	return true
}

// cabinMatches compares the requested cabin against a record's cabin
// designation. Asking for a sleeper cabin matches any of the per-make sleeper
// aliases; any other request is a case-insensitive substring match.
func cabinMatches(want, have string) bool {
	want = strings.ToUpper(want)
	have = strings.ToUpper(have)
	if strings.Contains(want, "SLEEPER") {
		for _, alias := range sleeperAliases {
			if strings.Contains(have, alias) {
				return true
			}
		}
		return false
	}
	return strings.Contains(have, want)
}

// sortRecords orders records in place for the given sort order. Records
// missing the sort attribute go last regardless of direction; for price
// ascending, a zero price counts as missing so "cheapest first" never leads
// with price-on-request units. Ties break on ID ascending so pagination and
// ordinal references stay stable across identical queries.
func sortRecords(records []inventory.Record, order domain.SortOrder) {
	key, desc := sortKey(order)
	sort.Slice(records, func(i, j int) bool {
		a, aok := key(records[i])
		b, bok := key(records[j])
		if aok != bok {
			return aok
		}
		if aok && a != b {
			if desc {
				return a > b
			}
			return a < b
		}
		return records[i].ID < records[j].ID
	})
}

func sortKey(order domain.SortOrder) (key func(inventory.Record) (float64, bool), desc bool) {
	switch order {
	case domain.SortPriceDesc:
		return priceKey, true
	case domain.SortMileageAsc:
		return func(r inventory.Record) (float64, bool) {
			if r.Mileage == nil {
				return 0, false
			}
			return float64(*r.Mileage), true
		}, false
	case domain.SortPowerDesc:
		return func(r inventory.Record) (float64, bool) {
			if r.Power == nil {
				return 0, false
			}
			return float64(*r.Power), true
		}, true
	default:
		return priceKey, false
	}
}

func priceKey(r inventory.Record) (float64, bool) {
	if r.Price == nil || *r.Price <= 0 {
		return 0, false
	}
	return *r.Price, true
}
