package session

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/TruckFinderAI/truckfinder-mvp/engine/domain"
	"github.com/TruckFinderAI/truckfinder-mvp/engine/inventory"
	"github.com/TruckFinderAI/truckfinder-mvp/engine/query"
)

func fp(v float64) *float64 { return &v }
func ip(v int) *int         { return &v }

func testManager(t *testing.T) *Manager {
	t.Helper()
	records := []inventory.Record{
		{ID: 10, Brand: "DAF", Model: "XF", Gearbox: "automatic", Fuel: "diesel",
			Price: fp(30000), Mileage: ip(300000), Power: ip(480)},
		{ID: 11, Brand: "VOLVO", Model: "FH", Gearbox: "automatic", Fuel: "electric",
			Price: fp(45000), Mileage: ip(90000), Power: ip(666)},
		{ID: 12, Brand: "SCANIA", Model: "R", Gearbox: "manual", Fuel: "diesel",
			Price: fp(28000), Mileage: ip(450000), Power: ip(450)},
		{ID: 13, Brand: "MAN", Model: "TGX", Gearbox: "automatic", Fuel: "diesel",
			Price: fp(35000), Mileage: ip(200000), Power: ip(440)},
		{ID: 14, Brand: "RENAULT", Model: "T", Gearbox: "automatic", Fuel: "diesel",
			Price: fp(38000), Mileage: ip(150000), Power: ip(520)},
	}
	return NewManager(query.NewExecutor(inventory.NewStore(records)), NewMemoryStore())
}

func TestApply_RefineAccumulates(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	out, err := m.Apply(ctx, "s1", domain.Filter{Fuel: domain.Set("diesel")}, ModeReplace)
	if err != nil {
		t.Fatalf("replace: %v", err)
	}
	if out.Result.TotalMatches != 4 {
		t.Fatalf("diesel total = %d, want 4", out.Result.TotalMatches)
	}

	out, err = m.Apply(ctx, "s1", domain.Filter{MaxPrice: domain.Set[float64](35000)}, ModeRefine)
	if err != nil {
		t.Fatalf("refine: %v", err)
	}
	if out.Result.TotalMatches != 3 {
		t.Errorf("refined total = %d, want 3", out.Result.TotalMatches)
	}
	// Both constraints survive the merge.
	if v, ok := out.Filter.Fuel.Get(); !ok || v != "diesel" {
		t.Errorf("merged fuel = %q %v, want diesel retained", v, ok)
	}
	if v, ok := out.Filter.MaxPrice.Get(); !ok || v != 35000 {
		t.Errorf("merged max_price = %v %v", v, ok)
	}
}

func TestApply_ReplaceDiscardsState(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	if _, err := m.Apply(ctx, "s1", domain.Filter{Fuel: domain.Set("electric")}, ModeReplace); err != nil {
		t.Fatal(err)
	}
	out, err := m.Apply(ctx, "s1", domain.Filter{Gearbox: domain.Set("manual")}, ModeReplace)
	if err != nil {
		t.Fatal(err)
	}
	if out.Filter.Fuel.IsSet() {
		t.Error("replace kept the previous fuel constraint")
	}
	if out.Result.TotalMatches != 1 || out.Result.Records[0].ID != 12 {
		t.Errorf("result = %+v", out.Result)
	}
}

func TestApply_EmptyRefineDeltaKeepsResults(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	first, err := m.Apply(ctx, "s1", domain.Filter{Fuel: domain.Set("diesel")}, ModeReplace)
	if err != nil {
		t.Fatal(err)
	}
	second, err := m.Apply(ctx, "s1", domain.Filter{}, ModeRefine)
	if err != nil {
		t.Fatal(err)
	}
	if second.Result.TotalMatches != first.Result.TotalMatches {
		t.Errorf("empty refine changed totals: %d -> %d",
			first.Result.TotalMatches, second.Result.TotalMatches)
	}
	for i := range first.Result.Records {
		if first.Result.Records[i].ID != second.Result.Records[i].ID {
			t.Fatalf("empty refine changed order at %d", i)
		}
	}
}

func TestApply_RefineFreshSessionActsAsReplace(t *testing.T) {
	m := testManager(t)
	out, err := m.Apply(context.Background(), "fresh", domain.Filter{Fuel: domain.Set("electric")}, ModeRefine)
	if err != nil {
		t.Fatal(err)
	}
	if out.Result.TotalMatches != 1 {
		t.Errorf("total = %d, want 1", out.Result.TotalMatches)
	}
}

func TestApply_InvalidMode(t *testing.T) {
	m := testManager(t)
	if _, err := m.Apply(context.Background(), "s1", domain.Filter{}, Mode("append")); !errors.Is(err, ErrInvalidMode) {
		t.Errorf("err = %v, want ErrInvalidMode", err)
	}
}

func TestApply_ClearedFieldDropsConstraint(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	if _, err := m.Apply(ctx, "s1", domain.Filter{Fuel: domain.Set("electric")}, ModeReplace); err != nil {
		t.Fatal(err)
	}
	out, err := m.Apply(ctx, "s1", domain.Filter{Fuel: domain.Clear[string]()}, ModeRefine)
	if err != nil {
		t.Fatal(err)
	}
	if out.Result.TotalMatches != 5 {
		t.Errorf("total after clearing fuel = %d, want all 5", out.Result.TotalMatches)
	}
}

func TestResolveOrdinals(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	// price_asc page: 12 (28000), 10 (30000), 13 (35000), 14 (38000), 11 (45000).
	if _, err := m.Apply(ctx, "s1", domain.Filter{}, ModeReplace); err != nil {
		t.Fatal(err)
	}
	ids, err := m.ResolveOrdinals(ctx, "s1", []int{1, 3})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if len(ids) != 2 || ids[0] != 12 || ids[1] != 13 {
		t.Errorf("ids = %v, want [12 13]", ids)
	}
}

func TestResolveOrdinals_OutOfRange(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	if _, err := m.Apply(ctx, "s1", domain.Filter{}, ModeReplace); err != nil {
		t.Fatal(err)
	}
	_, err := m.ResolveOrdinals(ctx, "s1", []int{6})
	if !errors.Is(err, ErrOrdinalOutOfRange) {
		t.Fatalf("err = %v, want ErrOrdinalOutOfRange", err)
	}
	var oe *OrdinalError
	if !errors.As(err, &oe) || oe.Position != 6 || oe.Available != 5 {
		t.Errorf("err = %v, want position 6 of 5", err)
	}
}

func TestResolveOrdinals_FreshSession(t *testing.T) {
	m := testManager(t)
	_, err := m.ResolveOrdinals(context.Background(), "nobody", []int{1})
	var oe *OrdinalError
	if !errors.As(err, &oe) || oe.Available != 0 {
		t.Errorf("err = %v, want out of range with 0 available", err)
	}
}

func TestReset(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	if _, err := m.Apply(ctx, "s1", domain.Filter{Fuel: domain.Set("electric")}, ModeReplace); err != nil {
		t.Fatal(err)
	}
	if err := m.Reset(ctx, "s1"); err != nil {
		t.Fatal(err)
	}
	f, err := m.Filter(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if f.Fuel.IsSet() {
		t.Error("reset session still carries a filter")
	}
	out, err := m.Apply(ctx, "s1", domain.Filter{}, ModeRefine)
	if err != nil {
		t.Fatal(err)
	}
	if out.Result.TotalMatches != 5 {
		t.Errorf("post-reset total = %d, want all 5", out.Result.TotalMatches)
	}
}

func TestApply_ConcurrentSessionsIndependent(t *testing.T) {
	m := testManager(t)
	ctx := context.Background()

	var wg sync.WaitGroup
	errs := make(chan error, 20)
	for i := 0; i < 10; i++ {
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, err := m.Apply(ctx, "a", domain.Filter{Fuel: domain.Set("diesel")}, ModeReplace)
			errs <- err
		}()
		go func() {
			defer wg.Done()
			_, err := m.Apply(ctx, "b", domain.Filter{Fuel: domain.Set("electric")}, ModeReplace)
			errs <- err
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		if err != nil {
			t.Fatal(err)
		}
	}
	fa, _ := m.Filter(ctx, "a")
	fb, _ := m.Filter(ctx, "b")
	if v, _ := fa.Fuel.Get(); v != "diesel" {
		t.Errorf("session a fuel = %q", v)
	}
	if v, _ := fb.Fuel.Get(); v != "electric" {
		t.Errorf("session b fuel = %q", v)
	}
}
