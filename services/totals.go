package services

import (
	"github.com/shopspring/decimal"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/utils"
)

var hundred = decimal.NewFromInt(100)

type orderTotals struct {
	subTotal decimal.Decimal
	discount decimal.Decimal
	tax      decimal.Decimal
	cgst     decimal.Decimal
	sgst     decimal.Decimal
	grand    decimal.Decimal
}

// computeTotals prices every line and accumulates the order totals. Discount
// applies to the per-unit price before tax. For INCLUSIVE lines the unit price
// already contains tax, so the tax component is extracted as rate/(100+rate)
// of the gross; EXCLUSIVE lines add tax on top. All rounding is half-even at
// 2 decimals. Line totals are frozen on the item rows as a side effect.
func computeTotals(lines []line) orderTotals {
	var t orderTotals
	t.subTotal = decimal.Zero
	t.discount = decimal.Zero
	t.tax = decimal.Zero
	t.grand = decimal.Zero

	for i := range lines {
		item := &lines[i].item
		qty := decimal.NewFromInt(int64(item.Quantity))

		discountPerUnit := item.UnitPrice.Mul(item.DiscountPercentage).Div(hundred)
		unitAfterDiscount := item.UnitPrice.Sub(discountPerUnit)

		var base, tax, lineTotal decimal.Decimal
		if item.GSTType == models.GSTInclusive {
			gross := unitAfterDiscount.Mul(qty)
			tax = gross.Mul(item.TaxRate).Div(hundred.Add(item.TaxRate))
			base = gross.Sub(tax)
			lineTotal = gross
		} else {
			base = unitAfterDiscount.Mul(qty)
			tax = base.Mul(item.TaxRate).Div(hundred)
			lineTotal = base.Add(tax)
		}

		item.LineTotal = utils.RoundMoney(lineTotal)

		t.subTotal = t.subTotal.Add(base)
		t.discount = t.discount.Add(discountPerUnit.Mul(qty))
		t.tax = t.tax.Add(tax)
		t.grand = t.grand.Add(lineTotal)
	}

	t.subTotal = utils.RoundMoney(t.subTotal)
	t.discount = utils.RoundMoney(t.discount)
	t.tax = utils.RoundMoney(t.tax)
	t.cgst, t.sgst = utils.GSTSplit(t.tax)
	t.grand = utils.RoundMoney(t.grand)
	return t
}
