// Package ledger applies committed sales and received purchase orders to product
// stock. Both transforms return a fresh slice and leave their input untouched.
package ledger

import "nexuspos/internal/domain"

// ApplySale subtracts each line's quantity from the matching product, flooring stock
// at zero. Lines whose product is not in products are ignored.
func ApplySale(products []domain.Product, items []domain.LineItem) []domain.Product {
	sold := make(map[int64]int, len(items))
	for _, item := range items {
		sold[item.Product.ID] += item.Quantity
	}
	out := clone(products)
	for i := range out {
		if qty, ok := sold[out[i].ID]; ok {
			out[i].Stock = SaleStock(out[i].Stock, qty)
		}
	}
	return out
}

// ApplyReceipt adds purchased quantities to the matching products. There is no upper
// bound on stock.
func ApplyReceipt(products []domain.Product, items []domain.PurchaseOrderItem) []domain.Product {
	received := make(map[int64]int, len(items))
	for _, item := range items {
		received[item.ProductID] += item.Quantity
	}
	out := clone(products)
	for i := range out {
		if qty, ok := received[out[i].ID]; ok {
			out[i].Stock += qty
		}
	}
	return out
}

// SaleStock is the stock left after selling qty units out of current.
func SaleStock(current, qty int) int {
	next := current - qty
	if next < 0 {
		return 0
	}
	return next
}

func clone(products []domain.Product) []domain.Product {
	out := make([]domain.Product, len(products))
	copy(out, products)
	return out
}
