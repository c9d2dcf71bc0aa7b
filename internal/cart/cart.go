// Package cart implements the order-in-progress of a POS terminal: an
// insertion-ordered set of line items, unique by product id, whose quantities are
// clamped to the product's stock. Each line keeps the latest product snapshot it was
// given, so callers pass the current product on every change.
//
// A Cart is not safe for concurrent use; the checkout machine that owns it
// serialises access.
package cart

import "nexuspos/internal/domain"

type Cart struct {
	items []domain.LineItem
}

func New() *Cart {
	return &Cart{}
}

// Add rings up one unit of product. It reports whether the cart changed: products
// out of stock are ignored, and an existing line only grows while the new quantity
// stays within the product's current stock.
func (c *Cart) Add(product domain.Product) bool {
	if product.Stock <= 0 {
		return false
	}
	if i := c.indexOf(product.ID); i >= 0 {
		c.items[i].Product = product
		next := c.items[i].Quantity + 1
		if next > product.Stock {
			return false
		}
		c.items[i].Quantity = next
		return true
	}
	c.items = append(c.items, domain.LineItem{Product: product, Quantity: 1})
	return true
}

// SetQuantity clamps quantity into [1, product.Stock] for the line of product and
// refreshes the line's snapshot. Missing lines are left alone.
func (c *Cart) SetQuantity(product domain.Product, quantity int) bool {
	i := c.indexOf(product.ID)
	if i < 0 {
		return false
	}
	c.items[i].Product = product
	c.items[i].Quantity = clamp(quantity, 1, ceiling(c.items[i]))
	return true
}

func (c *Cart) Remove(productID int64) bool {
	i := c.indexOf(productID)
	if i < 0 {
		return false
	}
	c.items = append(c.items[:i], c.items[i+1:]...)
	return true
}

func (c *Cart) Clear() {
	c.items = nil
}

// Items returns a copy of the lines in insertion order.
func (c *Cart) Items() []domain.LineItem {
	out := make([]domain.LineItem, len(c.items))
	copy(out, c.items)
	return out
}

func (c *Cart) Len() int {
	return len(c.items)
}

func (c *Cart) IsEmpty() bool {
	return len(c.items) == 0
}

// Quantity returns the quantity of productID, or zero when it is not in the cart.
func (c *Cart) Quantity(productID int64) int {
	if i := c.indexOf(productID); i >= 0 {
		return c.items[i].Quantity
	}
	return 0
}

func (c *Cart) indexOf(productID int64) int {
	for i, item := range c.items {
		if item.Product.ID == productID {
			return i
		}
	}
	return -1
}

func ceiling(item domain.LineItem) int {
	// quantity never drops below 1; removal is explicit
	if item.Product.Stock < 1 {
		return 1
	}
	return item.Product.Stock
}

func clamp(value, lo, hi int) int {
	if value < lo {
		return lo
	}
	if value > hi {
		return hi
	}
	return value
}
