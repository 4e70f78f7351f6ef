// Package units parses the "<value> <unit>" linear and areal quantities used
// by geoprocessing parameters (for example "2 Kilometers" or "1 SquareMiles")
// into SI values.
package units

import (
	"fmt"
	"math"
	"strconv"
	"strings"
)

// Linear unit names
const (
	Meters     = "Meters"
	Kilometers = "Kilometers"
	Miles      = "Miles"
	Feet       = "Feet"
)

// Areal unit names
const (
	SquareMeters     = "SquareMeters"
	SquareKilometers = "SquareKilometers"
	SquareMiles      = "SquareMiles"
	Hectares         = "Hectares"
	Acres            = "Acres"
)

var linearToMeters = map[string]float64{
	Meters:     1,
	Kilometers: 1000,
	Miles:      1609.344,
	Feet:       0.3048,
}

var arealToSquareMeters = map[string]float64{
	SquareMeters:     1,
	SquareKilometers: 1e6,
	SquareMiles:      1609.344 * 1609.344,
	Hectares:         1e4,
	Acres:            4046.8564224,
}

// ValidLinearUnits lists the accepted linear unit names.
var ValidLinearUnits = []string{Meters, Kilometers, Miles, Feet}

// ValidArealUnits lists the accepted areal unit names.
var ValidArealUnits = []string{SquareMeters, SquareKilometers, SquareMiles, Hectares, Acres}

// Quantity is a parsed "<value> <unit>" pair.
type Quantity struct {
	Value float64
	Unit  string
}

func (q Quantity) String() string {
	return strconv.FormatFloat(q.Value, 'f', -1, 64) + " " + q.Unit
}

// Parse splits s into value and unit. Unit matching is case-insensitive and
// the canonical unit name is returned.
func Parse(s string) (Quantity, error) {
	fields := strings.Fields(s)
	if len(fields) != 2 {
		return Quantity{}, fmt.Errorf("quantity %q must be \"<value> <unit>\"", s)
	}
	v, err := strconv.ParseFloat(fields[0], 64)
	if err != nil {
		return Quantity{}, fmt.Errorf("quantity %q: invalid value: %w", s, err)
	}
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return Quantity{}, fmt.Errorf("quantity %q: value must be finite", s)
	}
	unit, ok := canonical(fields[1])
	if !ok {
		return Quantity{}, fmt.Errorf("quantity %q: unknown unit %q", s, fields[1])
	}
	return Quantity{Value: v, Unit: unit}, nil
}

func canonical(unit string) (string, bool) {
	for _, u := range ValidLinearUnits {
		if strings.EqualFold(u, unit) {
			return u, true
		}
	}
	for _, u := range ValidArealUnits {
		if strings.EqualFold(u, unit) {
			return u, true
		}
	}
	return "", false
}

// IsLinear reports whether unit is a linear unit name.
func IsLinear(unit string) bool {
	_, ok := linearToMeters[unit]
	return ok
}

// IsAreal reports whether unit is an areal unit name.
func IsAreal(unit string) bool {
	_, ok := arealToSquareMeters[unit]
	return ok
}

// ParseDistance parses a linear quantity and returns it in meters.
func ParseDistance(s string) (float64, error) {
	q, err := Parse(s)
	if err != nil {
		return 0, err
	}
	f, ok := linearToMeters[q.Unit]
	if !ok {
		return 0, fmt.Errorf("quantity %q: %s is not a linear unit (valid: %s)", s, q.Unit, strings.Join(ValidLinearUnits, ", "))
	}
	if q.Value < 0 {
		return 0, fmt.Errorf("quantity %q must not be negative", s)
	}
	return q.Value * f, nil
}

// ParseArea parses an areal quantity and returns it in square meters.
func ParseArea(s string) (float64, error) {
	q, err := Parse(s)
	if err != nil {
		return 0, err
	}
	f, ok := arealToSquareMeters[q.Unit]
	if !ok {
		return 0, fmt.Errorf("quantity %q: %s is not an areal unit (valid: %s)", s, q.Unit, strings.Join(ValidArealUnits, ", "))
	}
	if q.Value <= 0 {
		return 0, fmt.Errorf("quantity %q must be positive", s)
	}
	return q.Value * f, nil
}
