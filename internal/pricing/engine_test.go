package pricing_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Subash-08/iTech-compters-sub001/internal/pricing"
)

func TestComputeSingleLine(t *testing.T) {
	lines := []pricing.Line{
		{ProductID: "p1", Name: "Laptop", UnitPrice: 1000, Quantity: 1, TaxRate: 18},
	}
	b := pricing.Compute(lines, 0, 0)

	assert.Equal(t, 1000.0, b.Subtotal)
	assert.Equal(t, 180.0, b.Tax)
	assert.Equal(t, 1180.0, b.Total)
	assert.Equal(t, 0.0, b.Discount)
	assert.Equal(t, 1180.0, b.AmountDue)
}

func TestComputeDiscountRecomputesPerLineTax(t *testing.T) {
	lines := []pricing.Line{
		{ProductID: "p1", Name: "Laptop", UnitPrice: 1000, Quantity: 1, TaxRate: 18},
	}
	// 10% of the tax-inclusive total 1180.
	b := pricing.Compute(lines, 118, 0)

	assert.Equal(t, 1180.0, b.Total)
	assert.Equal(t, 118.0, b.Discount)
	assert.Equal(t, 1062.0, b.AmountDue)

	require.Len(t, b.Lines, 1)
	// 1062 inclusive at 18% -> base 900, tax 162, still at the line's own rate.
	assert.InDelta(t, 900.0, b.Lines[0].DiscountedTotal, 0.01)
	assert.InDelta(t, 162.0, b.Lines[0].LineTax, 0.01)
}

func TestComputeMixedTaxRates(t *testing.T) {
	lines := []pricing.Line{
		{ProductID: "p1", UnitPrice: 100, Quantity: 2, TaxRate: 18},
		{ProductID: "p2", UnitPrice: 50, Quantity: 1, TaxRate: 5},
	}
	b := pricing.Compute(lines, 0, 40)

	assert.Equal(t, 250.0, b.Subtotal)
	assert.InDelta(t, 38.5, b.Tax, 0.001) // 200*0.18 + 50*0.05
	assert.Equal(t, 40.0, b.Shipping)
	assert.InDelta(t, 328.5, b.Total, 0.001)
	assert.InDelta(t, b.Subtotal+b.Tax+b.Shipping, b.Total, 0.001)
}

func TestComputeInvariants(t *testing.T) {
	cases := []struct {
		name     string
		lines    []pricing.Line
		discount float64
		shipping float64
	}{
		{"empty cart", nil, 0, 0},
		{"no discount", []pricing.Line{{UnitPrice: 333.33, Quantity: 3, TaxRate: 12}}, 0, 99},
		{"partial discount", []pricing.Line{{UnitPrice: 19.99, Quantity: 7, TaxRate: 18}, {UnitPrice: 5, Quantity: 2, TaxRate: 5}}, 25, 150},
		{"discount exceeds total", []pricing.Line{{UnitPrice: 10, Quantity: 1, TaxRate: 18}}, 10_000, 0},
		{"zero quantity skipped", []pricing.Line{{UnitPrice: 10, Quantity: 0, TaxRate: 18}}, 5, 0},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b := pricing.Compute(tc.lines, tc.discount, tc.shipping)
			assert.InDelta(t, b.Subtotal+b.Tax+b.Shipping, b.Total, 0.011)
			assert.InDelta(t, b.Total-b.Discount, b.AmountDue, 0.011)
			assert.GreaterOrEqual(t, b.Discount, 0.0)
			assert.LessOrEqual(t, b.Discount, b.Total)
			assert.GreaterOrEqual(t, b.AmountDue, 0.0)
		})
	}
}

func TestNormalizeTaxRate(t *testing.T) {
	// Legacy rows stored the rate as a decimal fraction.
	assert.Equal(t, 18.0, pricing.NormalizeTaxRate(0.18))
	assert.Equal(t, 18.0, pricing.NormalizeTaxRate(18))
	assert.Equal(t, 0.0, pricing.NormalizeTaxRate(-2))
	assert.Equal(t, 1.5, pricing.NormalizeTaxRate(1.5))
}

func TestMinorUnits(t *testing.T) {
	assert.Equal(t, int64(118000), pricing.MinorUnits(1180))
	assert.Equal(t, int64(106200), pricing.MinorUnits(1062))
	assert.Equal(t, int64(1001), pricing.MinorUnits(10.005))
	assert.Equal(t, int64(0), pricing.MinorUnits(0))
}

func TestTotalSavings(t *testing.T) {
	lines := []pricing.Line{
		{UnitPrice: 900, OriginalPrice: 1000, Quantity: 2},
		{UnitPrice: 50, OriginalPrice: 50, Quantity: 1},
	}
	assert.Equal(t, 318.0, pricing.TotalSavings(lines, 118))
	assert.Equal(t, 200.0, pricing.TotalSavings(lines, 0))
}
