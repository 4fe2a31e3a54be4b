package cart

import (
	"sync"

	"github.com/shopspring/decimal"

	"github.com/yeremiapane/concessions-app/models"
	"github.com/yeremiapane/concessions-app/stock"
)

// Line is one cart entry: a product or a combo with a quantity.
type Line struct {
	Product  *models.Product
	Combo    *models.ComboOffer
	Quantity int

	// Annotation is set when the server rejected this line on submit.
	Annotation string
}

// Cart is the device-side reservation view. It never mutates server stock; it
// only subtracts what the cart would consume from the last fetched balances so
// the UI can stop an operator before the server would.
type Cart struct {
	mu       sync.Mutex
	lines    []Line
	balances map[uint]decimal.Decimal
	units    map[uint]stock.Unit
}

func New() *Cart {
	return &Cart{
		balances: make(map[uint]decimal.Decimal),
		units:    make(map[uint]stock.Unit),
	}
}

// SetBalance records the server-reported balance for a product. Called on
// mount, on stock.delta pushes and on the refresh timer; optimistic values
// never survive a session.
func (c *Cart) SetBalance(productID uint, balance decimal.Decimal, unit stock.Unit) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.balances[productID] = balance
	c.units[productID] = unit
}

// Lines returns a copy of the cart contents.
func (c *Cart) Lines() []Line {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Line, len(c.lines))
	copy(out, c.lines)
	return out
}

// consumption aggregates what the cart consumes per product, combos expanded,
// in each product's canonical unit.
func (c *Cart) consumptionLocked() (map[uint]decimal.Decimal, error) {
	total := make(map[uint]decimal.Decimal)
	for _, ln := range c.lines {
		comps, err := lineComponents(ln)
		if err != nil {
			return nil, err
		}
		for _, comp := range comps {
			total[comp.ProductID] = total[comp.ProductID].Add(comp.Quantity)
		}
	}
	return total, nil
}

func lineComponents(ln Line) ([]stock.ComponentConsumption, error) {
	if ln.Combo != nil {
		return stock.ComboConsumption(ln.Combo, ln.Quantity)
	}
	unit, ok := stock.ParseUnit(ln.Product.StockUnit)
	if !ok {
		unit = stock.Nos
	}
	qty, err := stock.Consumption(ln.Product, ln.Quantity, unit)
	if err != nil {
		return nil, err
	}
	return []stock.ComponentConsumption{{
		ProductID: ln.Product.ID,
		Quantity:  qty,
		Unit:      unit,
	}}, nil
}

// Available is the server balance minus everything already in the cart, in
// the product's canonical unit.
func (c *Cart) Available(productID uint) (decimal.Decimal, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.availableLocked(productID)
}

func (c *Cart) availableLocked(productID uint) (decimal.Decimal, error) {
	used, err := c.consumptionLocked()
	if err != nil {
		return decimal.Zero, err
	}
	return c.balances[productID].Sub(used[productID]), nil
}

// CanAdd reports whether one more unit of the line fits the remaining
// availability of every component it touches.
func (c *Cart) CanAdd(ln Line) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	probe := ln
	probe.Quantity = 1
	comps, err := lineComponents(probe)
	if err != nil {
		return false, err
	}
	for _, comp := range comps {
		available, err := c.availableLocked(comp.ProductID)
		if err != nil {
			return false, err
		}
		if available.LessThan(comp.Quantity) {
			return false, nil
		}
	}
	return true, nil
}

// Add appends or merges a line after an availability check.
func (c *Cart) Add(ln Line) (bool, error) {
	ok, err := c.CanAdd(ln)
	if err != nil || !ok {
		return false, err
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	for i := range c.lines {
		if sameItem(c.lines[i], ln) {
			c.lines[i].Quantity += ln.Quantity
			return true, nil
		}
	}
	c.lines = append(c.lines, ln)
	return true, nil
}

// Remove drops a line by index.
func (c *Cart) Remove(index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.lines) {
		return
	}
	c.lines = append(c.lines[:index], c.lines[index+1:]...)
}

// Clear empties the cart after a successful submit.
func (c *Cart) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.lines = nil
}

// AnnotateRejection marks the offending line after a server rejection so the
// reopened cart shows what to fix.
func (c *Cart) AnnotateRejection(index int, message string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if index < 0 || index >= len(c.lines) {
		return
	}
	c.lines[index].Annotation = message
}

func sameItem(a, b Line) bool {
	if a.Product != nil && b.Product != nil {
		return a.Product.ID == b.Product.ID
	}
	if a.Combo != nil && b.Combo != nil {
		return a.Combo.ID == b.Combo.ID
	}
	return false
}
