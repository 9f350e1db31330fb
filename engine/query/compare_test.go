package query

import (
	"errors"
	"testing"
)

func findRow(t *testing.T, c Comparison, attr string) ComparisonRow {
	t.Helper()
	for _, row := range c.Rows {
		if row.Attribute == attr {
			return row
		}
	}
	t.Fatalf("no %q row", attr)
	return ComparisonRow{}
}

func TestCompare_PreservesCallerOrder(t *testing.T) {
	e := testExecutor(t)
	c, err := e.Compare([]int{3, 1})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if c.Records[0].ID != 3 || c.Records[1].ID != 1 {
		t.Errorf("order = [%d %d], want caller order", c.Records[0].ID, c.Records[1].ID)
	}
	price := findRow(t, c, "price")
	if price.Values[0] != "EUR 28000" || price.Values[1] != "EUR 30000" {
		t.Errorf("price values = %v", price.Values)
	}
}

func TestCompare_BestHints(t *testing.T) {
	e := testExecutor(t)
	c, err := e.Compare([]int{1, 2, 3})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	tests := []struct {
		attr string
		want int
	}{
		{"price", 3},   // lowest price wins
		{"mileage", 2}, // lowest mileage wins
		{"power", 2},   // highest power wins
		{"gearbox", 0}, // no winner for enums
	}
	for _, tt := range tests {
		if got := findRow(t, c, tt.attr).BestID; got != tt.want {
			t.Errorf("%s best = %d, want %d", tt.attr, got, tt.want)
		}
	}
}

func TestCompare_TieHasNoWinner(t *testing.T) {
	e := testExecutor(t)
	// 3 and 4 both list EUR 28000.
	c, err := e.Compare([]int{3, 4})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if got := findRow(t, c, "price").BestID; got != 0 {
		t.Errorf("price best = %d, want none on a tie", got)
	}
}

func TestCompare_MissingValuesRenderNA(t *testing.T) {
	e := testExecutor(t)
	// 5 has a zero price and 6 has no mileage or beds.
	c, err := e.Compare([]int{5, 6})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	if got := findRow(t, c, "price").Values[0]; got != "n/a" {
		t.Errorf("zero price = %q, want n/a", got)
	}
	if got := findRow(t, c, "mileage").Values[1]; got != "n/a" {
		t.Errorf("missing mileage = %q, want n/a", got)
	}
	if got := findRow(t, c, "mileage").BestID; got != 5 {
		t.Errorf("mileage best = %d, want the only vehicle with one", got)
	}
	if got := findRow(t, c, "beds").Values[0]; got != "n/a" {
		t.Errorf("missing beds = %q, want n/a", got)
	}
}

func TestCompare_Features(t *testing.T) {
	e := testExecutor(t)
	c, err := e.Compare([]int{1, 5})
	if err != nil {
		t.Fatalf("compare: %v", err)
	}
	feats := findRow(t, c, "features")
	if feats.Values[0] != "retarder, airco" {
		t.Errorf("features[0] = %q", feats.Values[0])
	}
	if feats.Values[1] != "none" {
		t.Errorf("features[1] = %q", feats.Values[1])
	}
}

func TestCompare_SizeBounds(t *testing.T) {
	e := testExecutor(t)
	for _, ids := range [][]int{{1}, {1, 2, 3, 4, 5, 6}, nil} {
		if _, err := e.Compare(ids); !errors.Is(err, ErrComparisonSize) {
			t.Errorf("Compare(%v) err = %v, want ErrComparisonSize", ids, err)
		}
	}
}

func TestCompare_UnknownID(t *testing.T) {
	e := testExecutor(t)
	_, err := e.Compare([]int{1, 999})
	if !errors.Is(err, ErrUnknownRecord) {
		t.Fatalf("err = %v, want ErrUnknownRecord", err)
	}
	var unknown *UnknownRecordError
	if !errors.As(err, &unknown) || unknown.ID != 999 {
		t.Errorf("err = %v, want UnknownRecordError naming 999", err)
	}
}
