package stock

import (
	"fmt"

	"github.com/shopspring/decimal"

	"github.com/yeremiapane/concessions-app/models"
)

// ComponentConsumption is one product's share of an order line, expressed in
// that product's canonical stock unit.
type ComponentConsumption struct {
	ProductID uint
	Quantity  decimal.Decimal
	Unit      Unit
}

// PackedAmount resolves how much stock one sold unit of the product consumes,
// in the product's pack unit. An unparsable pack string degrades to 1 Nos.
func PackedAmount(p *models.Product) (decimal.Decimal, Unit) {
	amount, unit, ok := ParsePack(p.PackQuantity)
	if !ok {
		return decimal.NewFromInt(1), Nos
	}
	return amount, unit
}

// Consumption maps (product, order quantity) to a stock delta in targetUnit.
// Pure: it never reads the ledger.
func Consumption(p *models.Product, orderQty int, targetUnit Unit) (decimal.Decimal, error) {
	if orderQty < 0 {
		return decimal.Zero, fmt.Errorf("order quantity must not be negative")
	}

	amount, packUnit := PackedAmount(p)

	noQty := p.NoQty
	if noQty <= 0 {
		noQty = 1
	}

	perUnit := amount.Mul(decimal.NewFromInt(int64(noQty)))
	total := perUnit.Mul(decimal.NewFromInt(int64(orderQty)))

	if packUnit == targetUnit {
		return total, nil
	}
	normalized, err := Normalize(total, packUnit, targetUnit)
	if err != nil {
		return decimal.Zero, fmt.Errorf("product %d: %w", p.ID, err)
	}
	return normalized, nil
}

// PerUnitConsumption is Consumption for a single sold unit.
func PerUnitConsumption(p *models.Product, targetUnit Unit) (decimal.Decimal, error) {
	return Consumption(p, 1, targetUnit)
}

// ComboConsumption expands a combo into per-component stock deltas, each in
// the component product's canonical stock unit, so the order pipeline can
// record one stock event per component per combo sold. Components must be
// preloaded with their products.
func ComboConsumption(combo *models.ComboOffer, orderQty int) ([]ComponentConsumption, error) {
	if len(combo.Items) == 0 {
		return nil, fmt.Errorf("combo %d has no components", combo.ID)
	}

	out := make([]ComponentConsumption, 0, len(combo.Items))
	for _, item := range combo.Items {
		unit, ok := ParseUnit(item.Product.StockUnit)
		if !ok {
			unit = Nos
		}
		qty, err := Consumption(&item.Product, orderQty*item.Quantity, unit)
		if err != nil {
			return nil, err
		}
		out = append(out, ComponentConsumption{
			ProductID: item.ProductID,
			Quantity:  qty,
			Unit:      unit,
		})
	}
	return out, nil
}
