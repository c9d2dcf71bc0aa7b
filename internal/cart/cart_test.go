package cart

import (
	"math"
	"testing"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"nexuspos/internal/domain"
)

func product(id int64, stock int) domain.Product {
	return domain.Product{
		ID:       id,
		Name:     "item",
		Price:    decimal.RequireFromString("10.00"),
		Category: domain.CategoryDesserts,
		Stock:    stock,
	}
}

func TestAddOutOfStockIsNoop(t *testing.T) {
	for _, stock := range []int{0, -1, -20} {
		c := New()
		assert.False(t, c.Add(product(1, stock)))
		assert.True(t, c.IsEmpty())
	}
}

func TestAddCapsAtStock(t *testing.T) {
	c := New()
	p := product(1, 3)
	assert.True(t, c.Add(p))
	assert.True(t, c.Add(p))
	assert.True(t, c.Add(p))
	assert.False(t, c.Add(p))
	assert.Equal(t, 3, c.Quantity(1))
	assert.Equal(t, 1, c.Len())
}

func TestAddTwiceEqualsAddThenIncrement(t *testing.T) {
	twice := New()
	twice.Add(product(7, 10))
	twice.Add(product(7, 10))

	incremented := New()
	incremented.Add(product(7, 10))
	incremented.SetQuantity(product(7, 10), incremented.Quantity(7)+1)

	assert.Equal(t, incremented.Items(), twice.Items())
}

func TestAddKeepsInsertionOrderAndUniqueness(t *testing.T) {
	c := New()
	c.Add(product(3, 5))
	c.Add(product(1, 5))
	c.Add(product(3, 5))
	c.Add(product(2, 5))

	items := c.Items()
	require.Len(t, items, 3)
	assert.Equal(t, []int64{3, 1, 2}, []int64{items[0].Product.ID, items[1].Product.ID, items[2].Product.ID})
	assert.Equal(t, 2, items[0].Quantity)
}

func TestAddChecksCurrentStockOnIncrement(t *testing.T) {
	c := New()
	c.Add(product(1, 5))
	c.Add(product(1, 5))
	// stock dropped to 2 since the line was created
	assert.False(t, c.Add(product(1, 2)))
	assert.Equal(t, 2, c.Quantity(1))
}

func TestSetQuantityClamps(t *testing.T) {
	cases := []struct {
		requested int
		want      int
	}{
		{requested: 0, want: 1},
		{requested: -5, want: 1},
		{requested: math.MinInt, want: 1},
		{requested: 3, want: 3},
		{requested: 4, want: 4},
		{requested: 5, want: 4},
		{requested: math.MaxInt, want: 4},
	}
	for _, tc := range cases {
		c := New()
		c.Add(product(1, 4))
		assert.True(t, c.SetQuantity(product(1, 4), tc.requested))
		assert.Equal(t, tc.want, c.Quantity(1), "requested %d", tc.requested)
	}
}

func TestSetQuantityMissingProductIsNoop(t *testing.T) {
	c := New()
	c.Add(product(1, 4))
	before := c.Items()
	assert.False(t, c.SetQuantity(product(99, 4), 2))
	assert.Equal(t, before, c.Items())
}

func TestRemoveAndClear(t *testing.T) {
	c := New()
	c.Add(product(1, 4))
	c.Add(product(2, 4))
	assert.False(t, c.Remove(42))
	assert.True(t, c.Remove(1))
	assert.Equal(t, 0, c.Quantity(1))
	assert.Equal(t, 1, c.Len())

	c.Clear()
	assert.True(t, c.IsEmpty())
	assert.Empty(t, c.Items())
}

func TestItemsReturnsCopy(t *testing.T) {
	c := New()
	c.Add(product(1, 4))
	items := c.Items()
	items[0].Quantity = 99
	assert.Equal(t, 1, c.Quantity(1))
}

func TestSetQuantityUsesCurrentStock(t *testing.T) {
	c := New()
	for i := 0; i < 5; i++ {
		c.Add(product(1, 5))
	}

	// another terminal sold four since the line was created
	assert.True(t, c.SetQuantity(product(1, 1), 99))
	assert.Equal(t, 1, c.Quantity(1))
	assert.Equal(t, 1, c.Items()[0].Product.Stock)

	// restocked to 20
	for i := 0; i < 6; i++ {
		c.Add(product(1, 20))
	}
	assert.Equal(t, 7, c.Quantity(1))
	assert.True(t, c.SetQuantity(product(1, 20), 7))
	assert.Equal(t, 7, c.Quantity(1))
	assert.True(t, c.SetQuantity(product(1, 20), 25))
	assert.Equal(t, 20, c.Quantity(1))
}

func TestAddRefreshesSnapshot(t *testing.T) {
	c := New()
	c.Add(product(1, 5))
	c.Add(product(1, 9))
	assert.Equal(t, 9, c.Items()[0].Product.Stock)
}
