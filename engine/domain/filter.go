// Package domain defines the filter model for inventory queries and acts as
// the validation gate for filter payloads entering the engine.
package domain

import (
	"bytes"
	"encoding/json"
	"fmt"
)

// DefaultLimit caps a result page when no limit is requested, keeping
// conversational answers scannable.
const DefaultLimit = 5

// SortOrder is one of the fixed result orderings.
type SortOrder string

const (
	SortPriceAsc   SortOrder = "price_asc"
	SortPriceDesc  SortOrder = "price_desc"
	SortMileageAsc SortOrder = "mileage_asc"
	SortPowerDesc  SortOrder = "power_desc"
)

// DefaultSort is applied when no sort order is requested.
const DefaultSort = SortPriceAsc

var validSortOrders = map[SortOrder]bool{
	SortPriceAsc: true, SortPriceDesc: true, SortMileageAsc: true, SortPowerDesc: true,
}

// Filter is the set of optional constraints defining one inventory query.
// Every field is independently optional; numeric attributes carry separate
// min/max bounds. A Filter with no set fields matches every non-excluded record.
type Filter struct {
	Brand         Field[string] `json:"brand"`
	Model         Field[string] `json:"model"`
	Configuration Field[string] `json:"configuration"`
	Euro          Field[int]    `json:"euro"`
	Gearbox       Field[string] `json:"gearbox"`
	Fuel          Field[string] `json:"fuel"`
	Cabin         Field[string] `json:"cabin"`

	MinPrice   Field[float64] `json:"min_price"`
	MaxPrice   Field[float64] `json:"max_price"`
	MinPower   Field[int]     `json:"min_power"`
	MaxPower   Field[int]     `json:"max_power"`
	MinMileage Field[int]     `json:"min_mileage"`
	MaxMileage Field[int]     `json:"max_mileage"`
	MinBeds    Field[int]     `json:"min_beds"`

	IsNew          Field[bool] `json:"is_new"`
	HasRetarder    Field[bool] `json:"has_retarder"`
	HasAirco       Field[bool] `json:"has_airco"`
	IncludeDamaged Field[bool] `json:"include_damaged"`

	Sort  Field[SortOrder] `json:"sort_by"`
	Limit Field[int]       `json:"limit"`
}

// Merge layers delta over f: set fields overwrite, cleared fields reset, unset
// fields keep the base value. Bounds merge per side, so setting only max_price
// leaves an existing min_price intact. An all-unset delta returns f unchanged.
func (f Filter) Merge(delta Filter) Filter {
	return Filter{
		Brand:         merge(f.Brand, delta.Brand),
		Model:         merge(f.Model, delta.Model),
		Configuration: merge(f.Configuration, delta.Configuration),
		Euro:          merge(f.Euro, delta.Euro),
		Gearbox:       merge(f.Gearbox, delta.Gearbox),
		Fuel:          merge(f.Fuel, delta.Fuel),
		Cabin:         merge(f.Cabin, delta.Cabin),

		MinPrice:   merge(f.MinPrice, delta.MinPrice),
		MaxPrice:   merge(f.MaxPrice, delta.MaxPrice),
		MinPower:   merge(f.MinPower, delta.MinPower),
		MaxPower:   merge(f.MaxPower, delta.MaxPower),
		MinMileage: merge(f.MinMileage, delta.MinMileage),
		MaxMileage: merge(f.MaxMileage, delta.MaxMileage),
		MinBeds:    merge(f.MinBeds, delta.MinBeds),

		IsNew:          merge(f.IsNew, delta.IsNew),
		HasRetarder:    merge(f.HasRetarder, delta.HasRetarder),
		HasAirco:       merge(f.HasAirco, delta.HasAirco),
		IncludeDamaged: merge(f.IncludeDamaged, delta.IncludeDamaged),

		Sort:  merge(f.Sort, delta.Sort),
		Limit: merge(f.Limit, delta.Limit),
	}
}

// EffectiveSort returns the requested sort order or the default.
func (f Filter) EffectiveSort() SortOrder { return f.Sort.Or(DefaultSort) }

// EffectiveLimit returns the requested limit or the default.
func (f Filter) EffectiveLimit() int { return f.Limit.Or(DefaultLimit) }

// Validate checks the enumerated and numeric fields that constitute a
// malformed query rather than a merely empty result.
func (f Filter) Validate() error {
	if s, ok := f.Sort.Get(); ok && !validSortOrders[s] {
		return NewFilterError("sort_by", string(s), ErrInvalidSortOrder)
	}
	if n, ok := f.Limit.Get(); ok && n < 1 {
		return NewFilterError("limit", fmt.Sprintf("%d", n), ErrInvalidLimit)
	}
	return nil
}

// ParseDelta decodes a filter delta from JSON. Unknown fields are rejected so
// malformed payloads from the language model surface as errors at the boundary
// instead of silently passing through.
func ParseDelta(data []byte) (Filter, error) {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	var f Filter
	if err := dec.Decode(&f); err != nil {
		return Filter{}, fmt.Errorf("%w: %v", ErrMalformedFilter, err)
	}
	if err := f.Validate(); err != nil {
		return Filter{}, err
	}
	return f, nil
}
