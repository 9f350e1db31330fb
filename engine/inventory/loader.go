package inventory

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
)

// ErrNoRecords is returned when no row of the input parses; the process
// cannot serve queries without an inventory.
var ErrNoRecords = errors.New("inventory: no records parsed")

// DefaultSeparator is the field separator of the source export.
const DefaultSeparator = ';'

// DefaultGearboxMap translates source-language gearbox values to canonical
// ones. Unmapped values pass through lower-cased rather than failing the load.
var DefaultGearboxMap = map[string]string{
	"AUTOMAAT":       GearboxAutomatic,
	"HANDGESCHAKELD": GearboxManual,
	"HALFAUTOMAAT":   GearboxSemiAutomatic,
}

// LoadConfig parameterizes a load so the same engine can read different
// inventory snapshots.
type LoadConfig struct {
	// Separator defaults to DefaultSeparator when zero.
	Separator rune
	// GearboxMap defaults to DefaultGearboxMap when nil. Keys are matched
	// against the trimmed, upper-cased source value.
	GearboxMap map[string]string
}

// RowWarning records a skipped input row. Warnings are non-fatal; the load
// proceeds with the remaining rows.
type RowWarning struct {
	Line   int
	Reason string
}

func (w RowWarning) String() string {
	return fmt.Sprintf("line %d: %s", w.Line, w.Reason)
}

// LoadFile reads and normalizes an inventory CSV from disk.
func LoadFile(path string, cfg LoadConfig) ([]Record, []RowWarning, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, nil, fmt.Errorf("inventory: open %s: %w", path, err)
	}
	defer f.Close()
	return Load(f, cfg)
}

// Load reads and normalizes inventory rows from r. Malformed rows are skipped
// with a warning; the load fails only when nothing parses at all. Loading the
// same input twice yields identical records in identical order.
func Load(r io.Reader, cfg LoadConfig) ([]Record, []RowWarning, error) {
	if cfg.Separator == 0 {
		cfg.Separator = DefaultSeparator
	}
	if cfg.GearboxMap == nil {
		cfg.GearboxMap = DefaultGearboxMap
	}

	cr := csv.NewReader(r)
	cr.Comma = cfg.Separator
	cr.FieldsPerRecord = -1 // row width is validated per row below

	header, err := cr.Read()
	if err != nil {
		return nil, nil, fmt.Errorf("inventory: read header: %w", err)
	}
	// Duplicate headers occur in the source export; the first occurrence of a
	// column name is authoritative, later ones are ignored.
	cols := make(map[string]int, len(header))
	for i, name := range header {
		name = strings.TrimSpace(name)
		if _, ok := cols[name]; !ok {
			cols[name] = i
		}
	}

	var (
		records  []Record
		warnings []RowWarning
		seen     = make(map[int]bool)
		line     = 1
	)
	for {
		line++
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			warnings = append(warnings, RowWarning{Line: line, Reason: err.Error()})
			continue
		}
		if len(row) != len(header) {
			warnings = append(warnings, RowWarning{Line: line, Reason: fmt.Sprintf("expected %d fields, got %d", len(header), len(row))})
			continue
		}

		get := func(name string) string {
			i, ok := cols[name]
			if !ok {
				return ""
			}
			return strings.TrimSpace(row[i])
		}

		id, err := strconv.Atoi(get("vehicle_id"))
		if err != nil {
			warnings = append(warnings, RowWarning{Line: line, Reason: "missing or invalid vehicle_id"})
			continue
		}
		if seen[id] {
			warnings = append(warnings, RowWarning{Line: line, Reason: fmt.Sprintf("duplicate vehicle_id %d", id)})
			continue
		}
		seen[id] = true

		model := strings.ToUpper(get("model_extended"))
		if model == "" {
			model = strings.ToUpper(get("model"))
		}

		records = append(records, Record{
			ID:            id,
			Brand:         strings.ToUpper(get("brand")),
			Model:         model,
			Configuration: strings.ToUpper(get("configuration")),
			Cabin:         strings.ToUpper(get("cabin")),
			Gearbox:       normalizeGearbox(get("gearbox"), cfg.GearboxMap),
			Fuel:          normalizeFuel(get("fuel")),
			Euro:          parseIntPtr(get("euro")),
			Price:         parseFloatPtr(get("internet_price")),
			Mileage:       parseIntPtr(get("mileage")),
			Power:         parseIntPtr(get("power")),
			Beds:          parseIntPtr(get("bed_amount")),
			HasRetarder:   parseBool(get("retarder")),
			HasAirco:      parseBool(get("has_airco")),
			IsDamaged:     parseBool(get("is_damaged")),
			IsNew:         parseBool(get("is_new")),
		})
	}

	if len(records) == 0 {
		return nil, warnings, ErrNoRecords
	}
	return records, warnings, nil
}

func normalizeGearbox(raw string, translate map[string]string) string {
	if raw == "" {
		return ""
	}
	if canonical, ok := translate[strings.ToUpper(raw)]; ok {
		return canonical
	}
	return strings.ToLower(raw)
}

func normalizeFuel(raw string) string {
	if raw == "" {
		return FuelUnknown
	}
	return strings.ToLower(raw)
}

// parseIntPtr returns nil for blank, unparsable, or negative values.
func parseIntPtr(s string) *int {
	if s == "" {
		return nil
	}
	// The export writes some integers as floats ("450.0").
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return nil
	}
	n := int(f)
	return &n
}

// parseFloatPtr returns nil for blank, unparsable, or negative values.
func parseFloatPtr(s string) *float64 {
	if s == "" {
		return nil
	}
	f, err := strconv.ParseFloat(s, 64)
	if err != nil || f < 0 {
		return nil
	}
	return &f
}

// parseBool treats blank and unrecognized values as false.
func parseBool(s string) bool {
	switch strings.ToLower(s) {
	case "true", "1", "yes":
		return true
	default:
		return false
	}
}
