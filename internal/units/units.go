// Package units converts grocery prices between USD per pound and CAD per kilogram.
package units

import (
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"
)

// PoundsPerKilogram is the weight factor applied in both directions.
const PoundsPerKilogram = 2.20462

// Unit tags a price with its currency and weight basis.
type Unit string

const (
	USDPerLb Unit = "usd_per_lb"
	CADPerKg Unit = "cad_per_kg"
)

var ErrInvalidAmount = errors.New("amount must be a non-negative finite number")

var ErrInvalidRate = errors.New("exchange rate must be a positive finite number")

var ErrUnknownUnit = errors.New("unknown unit")

// ParseUnit accepts the unit tags used on the wire.
func ParseUnit(raw string) (Unit, error) {
	switch Unit(strings.ToLower(strings.TrimSpace(raw))) {
	case USDPerLb:
		return USDPerLb, nil
	case CADPerKg:
		return CADPerKg, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownUnit, raw)
}

// Other returns the opposite unit of the pair.
func (u Unit) Other() Unit {
	if u == CADPerKg {
		return USDPerLb
	}
	return CADPerKg
}

// Label is the weight suffix shown next to an average price.
func (u Unit) Label() string {
	if u == CADPerKg {
		return "per kg"
	}
	return "per lb"
}

// UsdPerLbToCadPerKg converts without rounding.
func UsdPerLbToCadPerKg(usdPerLb, rate float64) float64 {
	return usdPerLb * PoundsPerKilogram * rate
}

// CadPerKgToUsdPerLb converts without rounding.
func CadPerKgToUsdPerLb(cadPerKg, rate float64) float64 {
	return cadPerKg / PoundsPerKilogram / rate
}

// Convert validates amount and rate and expresses amount in the other unit.
func Convert(amount float64, from Unit, rate float64) (float64, error) {
	if err := Validate(amount); err != nil {
		return 0, err
	}
	if math.IsNaN(rate) || math.IsInf(rate, 0) || rate <= 0 {
		return 0, ErrInvalidRate
	}
	switch from {
	case USDPerLb:
		return UsdPerLbToCadPerKg(amount, rate), nil
	case CADPerKg:
		return CadPerKgToUsdPerLb(amount, rate), nil
	}
	return 0, fmt.Errorf("%w: %q", ErrUnknownUnit, from)
}

// Validate rejects NaN, infinities and negative amounts.
func Validate(amount float64) error {
	if math.IsNaN(amount) || math.IsInf(amount, 0) || amount < 0 {
		return ErrInvalidAmount
	}
	return nil
}

// ParseAmount reads a user-typed number. Malformed input means "no value".
func ParseAmount(raw string) (float64, bool) {
	value, err := strconv.ParseFloat(strings.TrimSpace(raw), 64)
	if err != nil || math.IsNaN(value) || math.IsInf(value, 0) {
		return 0, false
	}
	return value, true
}

// ClampNonNegative maps negative amounts to zero.
func ClampNonNegative(amount float64) float64 {
	if amount < 0 {
		return 0
	}
	return amount
}

// FormatAmount rounds to two decimals for display.
func FormatAmount(amount float64) string {
	return strconv.FormatFloat(amount, 'f', 2, 64)
}
