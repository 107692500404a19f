package pricing

import "math"

// Line describes a priced cart line used for checkout calculation. Amounts are
// in major currency units; TaxRate is a percentage applied to this line only.
type Line struct {
	ProductID     string
	VariantID     string
	CategoryID    string
	Name          string
	UnitPrice     float64
	OriginalPrice float64
	Quantity      int
	TaxRate       float64

	// Computed by Compute.
	LineTotal       float64
	LineTax         float64
	DiscountedTotal float64
}

// Breakdown aggregates computed pricing components.
//
// Total is always Subtotal + Tax + Shipping, computed before any discount is
// subtracted; AmountDue is Total - Discount. The post-discount per-line tax
// split lives on Lines, not here.
type Breakdown struct {
	Subtotal  float64 `json:"subtotal"`
	Tax       float64 `json:"tax"`
	Shipping  float64 `json:"shipping"`
	Discount  float64 `json:"discount"`
	Total     float64 `json:"total"`
	AmountDue float64 `json:"amountDue"`
	Currency  string  `json:"currency"`

	Lines []Line `json:"-"`
}

// Compute calculates cart totals from the provided lines, a discount amount in
// major units, and a shipping cost. It is pure and safe to call repeatedly:
// both the live checkout preview and the final order snapshot go through it.
//
// The discount is allocated across lines proportionally to each line's
// tax-inclusive value, and each line's tax is then recomputed on its
// discounted base using that line's own rate. The discount itself is never
// taxed. Rounding to 2 decimals happens at aggregate boundaries only.
func Compute(lines []Line, discount, shipping float64) Breakdown {
	if discount < 0 {
		discount = 0
	}
	if shipping < 0 {
		shipping = 0
	}

	var subtotal, tax, inclusive float64
	out := make([]Line, 0, len(lines))
	for _, ln := range lines {
		if ln.Quantity <= 0 {
			continue
		}
		rate := NormalizeTaxRate(ln.TaxRate)
		ln.TaxRate = rate
		ln.LineTotal = ln.UnitPrice * float64(ln.Quantity)
		ln.LineTax = ln.LineTotal * rate / 100
		ln.DiscountedTotal = ln.LineTotal
		subtotal += ln.LineTotal
		tax += ln.LineTax
		inclusive += ln.LineTotal + ln.LineTax
		out = append(out, ln)
	}

	total := subtotal + tax + shipping
	if discount > total {
		discount = total
	}

	if discount > 0 && inclusive > 0 {
		for i := range out {
			lineInclusive := out[i].LineTotal + out[i].LineTax
			share := discount * lineInclusive / inclusive
			discountedInclusive := lineInclusive - share
			if discountedInclusive < 0 {
				discountedInclusive = 0
			}
			base := discountedInclusive / (1 + out[i].TaxRate/100)
			out[i].DiscountedTotal = Round2(base)
			out[i].LineTax = Round2(base * out[i].TaxRate / 100)
		}
	} else {
		for i := range out {
			out[i].DiscountedTotal = Round2(out[i].LineTotal)
			out[i].LineTax = Round2(out[i].LineTax)
		}
	}

	subtotal = Round2(subtotal)
	tax = Round2(tax)
	shipping = Round2(shipping)
	discount = Round2(discount)
	total = Round2(subtotal + tax + shipping)

	return Breakdown{
		Subtotal:  subtotal,
		Tax:       tax,
		Shipping:  shipping,
		Discount:  discount,
		Total:     total,
		AmountDue: Round2(total - discount),
		Lines:     out,
	}
}

// TotalSavings reports what the customer saved against original prices, plus
// any coupon discount.
func TotalSavings(lines []Line, discount float64) float64 {
	var savings float64
	for _, ln := range lines {
		if ln.Quantity <= 0 || ln.OriginalPrice <= ln.UnitPrice {
			continue
		}
		savings += (ln.OriginalPrice - ln.UnitPrice) * float64(ln.Quantity)
	}
	if discount > 0 {
		savings += discount
	}
	return Round2(savings)
}

// NormalizeTaxRate converts legacy decimal-fraction rates (0.18) to
// percentages (18). Rates are per item; callers must not assume a single
// global rate.
func NormalizeTaxRate(rate float64) float64 {
	if rate <= 0 {
		return 0
	}
	if rate < 1 {
		return rate * 100
	}
	return rate
}

// Round2 rounds a major-unit amount to 2 decimal places.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

// MinorUnits converts a major-unit amount to the gateway's smallest currency
// unit via integer rounding. This is the only place the core leaves major
// units.
func MinorUnits(v float64) int64 {
	return int64(math.Round(v * 100))
}
