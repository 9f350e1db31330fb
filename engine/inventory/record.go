// Package inventory loads and serves the normalized tractor-unit inventory.
// The record set is read once at startup and is immutable afterwards, so it is
// shared across sessions without locking.
package inventory

import (
	"fmt"
	"strings"
)

// Canonical gearbox values.
const (
	GearboxAutomatic     = "automatic"
	GearboxManual        = "manual"
	GearboxSemiAutomatic = "semi-automatic"
)

// FuelUnknown is the canonical fuel value for records without one.
const FuelUnknown = "unknown"

// Record is one normalized inventory item. Enum-like attributes are already
// canonical (brand/model/configuration/cabin upper case, gearbox/fuel lower
// case, source-language gearbox values translated); nil numeric pointers mean
// the source value was absent or unparsable.
type Record struct {
	ID            int    `json:"vehicle_id"`
	Brand         string `json:"brand"`
	Model         string `json:"model"`
	Configuration string `json:"configuration"`
	Cabin         string `json:"cabin"`
	Gearbox       string `json:"gearbox"`
	Fuel          string `json:"fuel"`

	Euro    *int     `json:"euro"`
	Price   *float64 `json:"price"`
	Mileage *int     `json:"mileage"`
	Power   *int     `json:"power"`
	Beds    *int     `json:"beds"`

	HasRetarder bool `json:"has_retarder"`
	HasAirco    bool `json:"has_airco"`
	IsDamaged   bool `json:"is_damaged"`
	IsNew       bool `json:"is_new"`
}

// Summary renders a one-line description for LLM context windows.
func (r Record) Summary() string {
	price := "price on request"
	if r.Price != nil && *r.Price > 0 {
		price = fmt.Sprintf("EUR %.0f", *r.Price)
	}
	mileage := "n/a"
	if r.Mileage != nil {
		mileage = fmt.Sprintf("%d km", *r.Mileage)
	}
	power := "n/a"
	if r.Power != nil {
		power = fmt.Sprintf("%d hp", *r.Power)
	}
	euro := "n/a"
	if r.Euro != nil {
		euro = fmt.Sprintf("%d", *r.Euro)
	}
	parts := []string{
		fmt.Sprintf("[ID:%d] %s %s", r.ID, r.Brand, r.Model),
		r.Configuration,
		r.Cabin,
		power,
		"euro " + euro,
		r.Gearbox,
		r.Fuel,
		mileage,
		price,
	}
	return strings.Join(parts, " | ")
}
