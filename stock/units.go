package stock

import (
	"fmt"
	"strings"

	"github.com/shopspring/decimal"
)

// Unit is a canonical stock unit. Conversions exist only inside the metric
// families (kg<->g, L<->mL); Nos never converts.
type Unit string

const (
	Nos        Unit = "Nos"
	Gram       Unit = "g"
	Kilogram   Unit = "kg"
	Milliliter Unit = "mL"
	Liter      Unit = "L"
)

var thousand = decimal.NewFromInt(1000)

// ParseUnit accepts the spellings that show up in pack strings and legacy
// rows: "ML", "ml", "Ltr", "GM", "PCS" and friends.
func ParseUnit(s string) (Unit, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "nos", "no", "pcs", "pc", "unit", "units":
		return Nos, true
	case "g", "gm", "gms", "gram", "grams":
		return Gram, true
	case "kg", "kgs", "kilogram", "kilograms":
		return Kilogram, true
	case "ml", "mls", "milliliter", "millilitre":
		return Milliliter, true
	case "l", "ltr", "lt", "liter", "litre":
		return Liter, true
	default:
		return "", false
	}
}

func (u Unit) Valid() bool {
	switch u {
	case Nos, Gram, Kilogram, Milliliter, Liter:
		return true
	}
	return false
}

// family groups units that convert into each other.
func family(u Unit) string {
	switch u {
	case Gram, Kilogram:
		return "mass"
	case Milliliter, Liter:
		return "volume"
	case Nos:
		return "count"
	}
	return ""
}

// Convertible reports whether a quantity in u can be expressed in v.
func Convertible(u, v Unit) bool {
	return u.Valid() && v.Valid() && family(u) == family(v)
}

// Normalize converts qty from one unit to another. Same-unit conversion is the
// identity, so Nos quantities pass through untouched.
func Normalize(qty decimal.Decimal, from, to Unit) (decimal.Decimal, error) {
	if from == to {
		return qty, nil
	}
	if !Convertible(from, to) {
		return decimal.Zero, fmt.Errorf("cannot convert %s to %s", from, to)
	}
	switch {
	case from == Kilogram && to == Gram, from == Liter && to == Milliliter:
		return qty.Mul(thousand), nil
	case from == Gram && to == Kilogram, from == Milliliter && to == Liter:
		return qty.Div(thousand), nil
	}
	return decimal.Zero, fmt.Errorf("cannot convert %s to %s", from, to)
}

// ParsePack parses a product's pack quantity string like "150 ML" or "1.5Kg".
// The boolean is false when the string does not describe an amount and a unit;
// callers then treat the product as packing 1 Nos.
func ParsePack(s string) (decimal.Decimal, Unit, bool) {
	s = strings.TrimSpace(s)
	if s == "" {
		return decimal.Zero, "", false
	}

	// Split the leading numeric run from the unit suffix.
	i := 0
	for i < len(s) && (s[i] >= '0' && s[i] <= '9' || s[i] == '.') {
		i++
	}
	if i == 0 {
		return decimal.Zero, "", false
	}

	amount, err := decimal.NewFromString(s[:i])
	if err != nil || !amount.IsPositive() {
		return decimal.Zero, "", false
	}

	unit, ok := ParseUnit(s[i:])
	if !ok {
		return decimal.Zero, "", false
	}
	return amount, unit, true
}
