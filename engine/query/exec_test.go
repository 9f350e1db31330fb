package query

import (
	"testing"

	"github.com/TruckFinderAI/truckfinder-mvp/engine/domain"
	"github.com/TruckFinderAI/truckfinder-mvp/engine/inventory"
)

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }

func testRecords() []inventory.Record {
	return []inventory.Record{
		{ID: 1, Brand: "DAF", Model: "XF 480 FT", Configuration: "4X2", Cabin: "SUPER SPACE CAB",
			Gearbox: "automatic", Fuel: "diesel", Euro: ip(6), Price: fp(30000), Mileage: ip(310000),
			Power: ip(480), Beds: ip(2), HasRetarder: true, HasAirco: true},
		{ID: 2, Brand: "VOLVO", Model: "FH ELECTRIC", Configuration: "4X2", Cabin: "GLOBETROTTER",
			Gearbox: "automatic", Fuel: "electric", Price: fp(45000), Mileage: ip(90000),
			Power: ip(666), Beds: ip(1), IsNew: true, HasAirco: true},
		{ID: 3, Brand: "SCANIA", Model: "R 450", Configuration: "6X2", Cabin: "HIGHLINE",
			Gearbox: "manual", Fuel: "diesel", Euro: ip(6), Price: fp(28000), Mileage: ip(450000),
			Power: ip(450), Beds: ip(1), HasRetarder: true},
		{ID: 4, Brand: "MAN", Model: "TGX", Configuration: "4X2", Cabin: "XXL",
			Gearbox: "automatic", Fuel: "diesel", Euro: ip(5), Price: fp(28000), Mileage: ip(600000),
			Power: ip(440), IsDamaged: true},
		{ID: 5, Brand: "RENAULT", Model: "T HIGH", Configuration: "4X2", Cabin: "DAY CAB",
			Gearbox: "automatic", Fuel: "diesel", Euro: ip(6), Price: fp(0), Mileage: ip(200000),
			Power: ip(520)},
		{ID: 6, Brand: "MERCEDES", Model: "ACTROS", Configuration: "6X4", Cabin: "BIGSPACE",
			Gearbox: "semi-automatic", Fuel: "lng", Euro: ip(6), Price: fp(52000),
			Power: ip(530), Beds: ip(2), HasAirco: true},
	}
}

func testExecutor(t *testing.T) *Executor {
	t.Helper()
	return NewExecutor(inventory.NewStore(testRecords()))
}

func resultIDs(res Result) []int {
	ids := make([]int, len(res.Records))
	for i, r := range res.Records {
		ids[i] = r.ID
	}
	return ids
}

func eqIDs(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func TestSearch_EmptyFilterExcludesDamaged(t *testing.T) {
	e := testExecutor(t)
	res := e.Search(domain.Filter{})
	// Damaged id 4 is hidden; default price_asc puts zero-price id 5 last.
	if res.TotalMatches != 5 {
		t.Fatalf("total = %d, want 5", res.TotalMatches)
	}
	if got := resultIDs(res); !eqIDs(got, []int{3, 1, 2, 6, 5}) {
		t.Errorf("order = %v", got)
	}
}

func TestSearch_IncludeDamaged(t *testing.T) {
	e := testExecutor(t)
	res := e.Search(domain.Filter{IncludeDamaged: domain.Set(true)})
	if res.TotalMatches != 6 {
		t.Errorf("total = %d, want 6", res.TotalMatches)
	}
}

func TestSearch_FuelConstraintIsStrict(t *testing.T) {
	e := testExecutor(t)
	res := e.Search(domain.Filter{Fuel: domain.Set("Electric")})
	if res.TotalMatches != 1 {
		t.Fatalf("total = %d, want 1", res.TotalMatches)
	}
	if res.Records[0].ID != 2 {
		t.Errorf("got id %d, want the electric unit", res.Records[0].ID)
	}
}

func TestSearch_RefineShrinksResultSet(t *testing.T) {
	e := testExecutor(t)
	base := domain.Filter{Brand: domain.Clear[string]()} // effectively empty
	broad := e.Search(base)

	refined := base.Merge(domain.Filter{MaxPrice: domain.Set[float64](30000)})
	narrow := e.Search(refined)
	if narrow.TotalMatches >= broad.TotalMatches {
		t.Fatalf("refine did not shrink: %d -> %d", broad.TotalMatches, narrow.TotalMatches)
	}
	// Zero-price id 5 is excluded once a price bound is present.
	for _, r := range narrow.Records {
		if r.ID == 5 {
			t.Error("zero-price record matched a price-bounded query")
		}
	}
	if got := resultIDs(narrow); !eqIDs(got, []int{3, 1}) {
		t.Errorf("order = %v, want [3 1]", got)
	}
}

func TestSearch_Matching(t *testing.T) {
	e := testExecutor(t)
	tests := []struct {
		name   string
		filter domain.Filter
		want   []int
	}{
		{"brand case-insensitive", domain.Filter{Brand: domain.Set("daf")}, []int{1}},
		{"model substring", domain.Filter{Model: domain.Set("electric")}, []int{2}},
		{"configuration exact", domain.Filter{Configuration: domain.Set("6x2")}, []int{3}},
		{"euro exact", domain.Filter{Euro: domain.Set(5), IncludeDamaged: domain.Set(true)}, []int{4}},
		{"gearbox", domain.Filter{Gearbox: domain.Set("MANUAL")}, []int{3}},
		{"min power inclusive", domain.Filter{MinPower: domain.Set(530)}, []int{2, 6}},
		{"max mileage", domain.Filter{MaxMileage: domain.Set(100000)}, []int{2}},
		{"min beds", domain.Filter{MinBeds: domain.Set(2)}, []int{1, 6}},
		{"is_new true", domain.Filter{IsNew: domain.Set(true)}, []int{2}},
		{"is_new false", domain.Filter{IsNew: domain.Set(false), MinBeds: domain.Set(1)}, []int{3, 1, 6}},
		{"retarder", domain.Filter{HasRetarder: domain.Set(true)}, []int{3, 1}},
		{"unknown brand token", domain.Filter{Brand: domain.Set("IVECO")}, nil},
		{"conjunction", domain.Filter{Fuel: domain.Set("diesel"), Gearbox: domain.Set("automatic"),
			HasAirco: domain.Set(true)}, []int{1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Search(tt.filter)
			if got := resultIDs(res); !eqIDs(got, tt.want) {
				t.Errorf("ids = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearch_CabinSleeperAliases(t *testing.T) {
	e := testExecutor(t)
	res := e.Search(domain.Filter{Cabin: domain.Set("sleeper cab"), Limit: domain.Set(10)})
	// SUPER SPACE CAB, GLOBETROTTER, HIGHLINE and BIGSPACE all count as
	// sleeper cabins; the DAY CAB does not.
	if got := resultIDs(res); !eqIDs(got, []int{3, 1, 2, 6}) {
		t.Errorf("ids = %v", got)
	}
}

func TestSearch_CabinPlainSubstring(t *testing.T) {
	e := testExecutor(t)
	res := e.Search(domain.Filter{Cabin: domain.Set("day")})
	if got := resultIDs(res); !eqIDs(got, []int{5}) {
		t.Errorf("ids = %v", got)
	}
}

func TestSearch_SortOrders(t *testing.T) {
	e := testExecutor(t)
	tests := []struct {
		name string
		sort domain.SortOrder
		want []int
	}{
		// Price ties on 28000 break by id; zero price and missing mileage go last.
		{"price_desc", domain.SortPriceDesc, []int{6, 2, 1, 3, 5}},
		{"mileage_asc", domain.SortMileageAsc, []int{2, 5, 1, 3, 6}},
		{"power_desc", domain.SortPowerDesc, []int{2, 6, 5, 1, 3}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := e.Search(domain.Filter{Sort: domain.Set(tt.sort), Limit: domain.Set(10)})
			if got := resultIDs(res); !eqIDs(got, tt.want) {
				t.Errorf("ids = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSearch_LimitTruncatesAfterCounting(t *testing.T) {
	e := testExecutor(t)
	res := e.Search(domain.Filter{Limit: domain.Set(2)})
	if len(res.Records) != 2 {
		t.Fatalf("page = %d records, want 2", len(res.Records))
	}
	if res.TotalMatches != 5 {
		t.Errorf("total = %d, want the pre-truncation count", res.TotalMatches)
	}
}
