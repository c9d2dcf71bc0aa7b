package service

import (
	"cmp"
	"context"
	"slices"
	"time"

	"github.com/shopspring/decimal"

	"nexuspos/internal/domain"
	"nexuspos/internal/store"
)

const (
	defaultSalesLimit = 50
	maxSalesLimit     = 500
	defaultTopN       = 5
	dayLayout         = "2006-01-02"
)

func (s *Service) ListSales(ctx context.Context, filter store.SalesFilter) ([]domain.Sale, error) {
	if filter.Limit <= 0 {
		filter.Limit = defaultSalesLimit
	}
	if filter.Limit > maxSalesLimit {
		filter.Limit = maxSalesLimit
	}
	if !filter.From.IsZero() && !filter.To.IsZero() && !filter.From.Before(filter.To) {
		return nil, invalid("from must be before to")
	}
	return s.repo.ListSales(ctx, filter)
}

// SalesSummary aggregates the sales committed in [from, to). Zero bounds are open.
func (s *Service) SalesSummary(ctx context.Context, from, to time.Time, topN int) (domain.SalesSummary, error) {
	if _, err := requireRole(ctx, domain.RoleManager); err != nil {
		return domain.SalesSummary{}, err
	}
	if !from.IsZero() && !to.IsZero() && !from.Before(to) {
		return domain.SalesSummary{}, invalid("from must be before to")
	}
	if topN <= 0 {
		topN = defaultTopN
	}

	sales, err := s.repo.ListSales(ctx, store.SalesFilter{From: from, To: to})
	if err != nil {
		return domain.SalesSummary{}, err
	}
	return summarize(sales, from, to, topN), nil
}

func summarize(sales []domain.Sale, from, to time.Time, topN int) domain.SalesSummary {
	summary := domain.SalesSummary{
		Revenue:         decimal.Zero,
		Tax:             decimal.Zero,
		AverageTicket:   decimal.Zero,
		ByPaymentMethod: []domain.SalesSummaryBucket{},
		ByCategory:      []domain.SalesSummaryBucket{},
		TopProducts:     []domain.SalesSummaryProduct{},
		Daily:           []domain.SalesSummaryDayTotal{},
	}
	if !from.IsZero() {
		summary.From = from.UTC().Format(time.RFC3339)
	}
	if !to.IsZero() {
		summary.To = to.UTC().Format(time.RFC3339)
	}

	methods := map[string]*domain.SalesSummaryBucket{}
	categories := map[string]*domain.SalesSummaryBucket{}
	products := map[int64]*domain.SalesSummaryProduct{}
	days := map[string]decimal.Decimal{}

	for _, sale := range sales {
		summary.Transactions++
		summary.Revenue = summary.Revenue.Add(sale.Total)
		summary.Tax = summary.Tax.Add(sale.Tax)

		method := bucket(methods, string(sale.PaymentMethod))
		method.Transactions++
		method.Total = method.Total.Add(sale.Total)

		day := sale.CreatedAt.UTC().Format(dayLayout)
		days[day] = days[day].Add(sale.Total)

		seenCategory := map[string]bool{}
		for _, item := range sale.Items {
			summary.ItemsSold += item.Quantity
			lineTotal := item.LineTotal()

			category := bucket(categories, string(item.Product.Category))
			category.Total = category.Total.Add(lineTotal)
			if !seenCategory[category.Key] {
				seenCategory[category.Key] = true
				category.Transactions++
			}

			product, ok := products[item.Product.ID]
			if !ok {
				product = &domain.SalesSummaryProduct{ProductID: item.Product.ID, Name: item.Product.Name, Revenue: decimal.Zero}
				products[item.Product.ID] = product
			}
			product.Quantity += item.Quantity
			product.Revenue = product.Revenue.Add(lineTotal)
		}
	}

	if summary.Transactions > 0 {
		summary.AverageTicket = summary.Revenue.Div(decimal.NewFromInt(int64(summary.Transactions))).Round(2)
	}

	for _, b := range methods {
		summary.ByPaymentMethod = append(summary.ByPaymentMethod, *b)
	}
	slices.SortFunc(summary.ByPaymentMethod, func(a, b domain.SalesSummaryBucket) int { return cmp.Compare(a.Key, b.Key) })

	for _, b := range categories {
		summary.ByCategory = append(summary.ByCategory, *b)
	}
	slices.SortFunc(summary.ByCategory, byTotalDesc)

	for _, p := range products {
		summary.TopProducts = append(summary.TopProducts, *p)
	}
	slices.SortFunc(summary.TopProducts, func(a, b domain.SalesSummaryProduct) int {
		if c := cmp.Compare(b.Quantity, a.Quantity); c != 0 {
			return c
		}
		if c := b.Revenue.Cmp(a.Revenue); c != 0 {
			return c
		}
		return cmp.Compare(a.ProductID, b.ProductID)
	})
	if len(summary.TopProducts) > topN {
		summary.TopProducts = summary.TopProducts[:topN]
	}

	for day, total := range days {
		summary.Daily = append(summary.Daily, domain.SalesSummaryDayTotal{Date: day, Total: total})
	}
	slices.SortFunc(summary.Daily, func(a, b domain.SalesSummaryDayTotal) int { return cmp.Compare(a.Date, b.Date) })

	return summary
}

func bucket(m map[string]*domain.SalesSummaryBucket, key string) *domain.SalesSummaryBucket {
	b, ok := m[key]
	if !ok {
		b = &domain.SalesSummaryBucket{Key: key, Total: decimal.Zero}
		m[key] = b
	}
	return b
}

func byTotalDesc(a, b domain.SalesSummaryBucket) int {
	if c := b.Total.Cmp(a.Total); c != 0 {
		return c
	}
	return cmp.Compare(a.Key, b.Key)
}
