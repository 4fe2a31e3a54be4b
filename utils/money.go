package utils

import (
	"github.com/shopspring/decimal"
)

// RoundMoney rounds to 2 decimals using banker's rounding (half-even). Every
// monetary figure that leaves this process goes through here.
func RoundMoney(d decimal.Decimal) decimal.Decimal {
	return d.RoundBank(2)
}

// MoneyEqual reports whether two amounts agree within the 0.01 tolerance the
// totals cross-check allows.
func MoneyEqual(a, b decimal.Decimal) bool {
	tolerance := decimal.New(1, -2)
	return a.Sub(b).Abs().LessThanOrEqual(tolerance)
}

// ParseMoney parses a decimal amount from its wire string form.
func ParseMoney(s string) (decimal.Decimal, error) {
	return decimal.NewFromString(s)
}

// GSTSplit returns the CGST and SGST halves of a tax component.
func GSTSplit(tax decimal.Decimal) (cgst, sgst decimal.Decimal) {
	half := tax.Div(decimal.NewFromInt(2))
	return RoundMoney(half), RoundMoney(half)
}
