// Package catalog holds the read-side views over the product catalog.
package catalog

import "nexuspos/internal/domain"

// FilterByCategory returns the products in category, keeping their original order.
// CategoryAll selects every product; a category nothing carries yields an empty slice.
func FilterByCategory(products []domain.Product, category domain.Category) []domain.Product {
	out := make([]domain.Product, 0, len(products))
	for _, product := range products {
		if category == domain.CategoryAll || product.Category == category {
			out = append(out, product)
		}
	}
	return out
}

// Categories returns the filter options shown above the product grid: CategoryAll
// followed by every assignable category.
func Categories() []domain.Category {
	return append([]domain.Category{domain.CategoryAll}, domain.ProductCategories...)
}
