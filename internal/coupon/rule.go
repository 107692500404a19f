package coupon

import (
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgtype"

	"github.com/Subash-08/iTech-compters-sub001/internal/pricing"
	"github.com/Subash-08/iTech-compters-sub001/internal/store"
)

var (
	// ErrNotFound is returned when the code does not resolve to any coupon.
	ErrNotFound = errors.New("coupon not found")
	// ErrInactive is returned when the coupon is disabled or outside its window.
	ErrInactive = errors.New("coupon not active")
	// ErrExpired is returned when the coupon validity window has passed.
	ErrExpired = errors.New("coupon expired")
	// ErrMinOrderUnmet indicates the order total did not reach the coupon floor.
	ErrMinOrderUnmet = errors.New("coupon minimum order value not met")
	// ErrUsageLimitReached indicates the coupon has exhausted its global quota.
	ErrUsageLimitReached = errors.New("coupon usage limit reached")
	// ErrPerUserLimitReached indicates the caller exceeded the per-user allowance.
	ErrPerUserLimitReached = errors.New("coupon per-user limit reached")
	// ErrNotApplicable is returned when no cart line falls in the coupon scope.
	ErrNotApplicable = errors.New("coupon not applicable to cart")
)

// Rule captures the runtime constraints of a coupon.
type Rule struct {
	Code          string
	DiscountType  string
	DiscountValue float64
	MaxDiscount   *float64
	MinOrderValue float64
	ValidFrom     *time.Time
	ValidUntil    *time.Time
	UsageLimit    *int32
	UsedCount     int32
	PerUserLimit  *int32
	PerUserUsed   int32
	ApplicableTo  string
	ProductIDs    []uuid.UUID
	CategoryIDs   []uuid.UUID
	Active        bool
}

// Validate checks the rule against the clock, the order total, and usage counters.
func (r Rule) Validate(now time.Time, orderTotal float64) error {
	if !r.Active {
		return ErrInactive
	}
	if r.ValidFrom != nil && now.Before(*r.ValidFrom) {
		return ErrInactive
	}
	if r.ValidUntil != nil && now.After(*r.ValidUntil) {
		return ErrExpired
	}
	if orderTotal < r.MinOrderValue {
		return ErrMinOrderUnmet
	}
	if r.UsageLimit != nil && *r.UsageLimit >= 0 && r.UsedCount >= *r.UsageLimit {
		return ErrUsageLimitReached
	}
	if r.PerUserLimit != nil && *r.PerUserLimit > 0 && r.PerUserUsed >= *r.PerUserLimit {
		return ErrPerUserLimitReached
	}
	return nil
}

// ApplicableTotal returns the tax-inclusive value of the cart lines the rule
// scopes over. Percentage discounts apply to this amount, not the full total.
func ApplicableTotal(lines []pricing.Line, r Rule) float64 {
	if r.ApplicableTo == store.ScopeAllProducts || r.ApplicableTo == "" {
		var total float64
		for _, l := range lines {
			total += l.LineTotal + l.LineTax
		}
		return pricing.Round2(total)
	}
	var total float64
	for _, l := range lines {
		if ruleMatchesLine(r, l) {
			total += l.LineTotal + l.LineTax
		}
	}
	return pricing.Round2(total)
}

func ruleMatchesLine(r Rule, l pricing.Line) bool {
	switch r.ApplicableTo {
	case store.ScopeSpecificProducts:
		for _, id := range r.ProductIDs {
			if id.String() == l.ProductID {
				return true
			}
		}
	case store.ScopeSpecificCategories:
		for _, id := range r.CategoryIDs {
			if id.String() == l.CategoryID {
				return true
			}
		}
	}
	return false
}

// Discount computes the discount amount for the rule. free_shipping coupons
// contribute no line discount; their effect is zeroing the shipping charge.
func Discount(applicable float64, r Rule) float64 {
	if applicable <= 0 {
		return 0
	}
	var discount float64
	switch strings.ToLower(r.DiscountType) {
	case store.DiscountTypePercentage:
		discount = applicable * r.DiscountValue / 100
		if r.MaxDiscount != nil && *r.MaxDiscount > 0 && discount > *r.MaxDiscount {
			discount = *r.MaxDiscount
		}
	case store.DiscountTypeFixed:
		discount = r.DiscountValue
	case store.DiscountTypeFreeShipping:
		return 0
	default:
		return 0
	}
	if discount > applicable {
		discount = applicable
	}
	if discount < 0 {
		return 0
	}
	return pricing.Round2(discount)
}

// RuleFromModel converts a stored coupon row into an evaluation rule.
func RuleFromModel(c store.Coupon) Rule {
	rule := Rule{
		Code:          c.Code,
		DiscountType:  c.DiscountType,
		DiscountValue: c.DiscountValue,
		MinOrderValue: c.MinOrderValue,
		UsedCount:     c.UsedCount,
		ApplicableTo:  c.ApplicableTo,
		Active:        c.Active,
	}
	if c.MaxDiscount.Valid {
		v := c.MaxDiscount.Float64
		rule.MaxDiscount = &v
	}
	if c.ValidFrom.Valid {
		rule.ValidFrom = &c.ValidFrom.Time
	}
	if c.ValidUntil.Valid {
		rule.ValidUntil = &c.ValidUntil.Time
	}
	if c.UsageLimit.Valid {
		limit := c.UsageLimit.Int32
		rule.UsageLimit = &limit
	}
	if c.PerUserLimit.Valid {
		limit := c.PerUserLimit.Int32
		rule.PerUserLimit = &limit
	}
	rule.ProductIDs = toUUIDSlice(c.ProductIDs)
	rule.CategoryIDs = toUUIDSlice(c.CategoryIDs)
	return rule
}

func toUUIDSlice(values []pgtype.UUID) []uuid.UUID {
	if len(values) == 0 {
		return nil
	}
	out := make([]uuid.UUID, 0, len(values))
	for _, v := range values {
		if v.Valid {
			out = append(out, uuid.UUID(v.Bytes))
		}
	}
	return out
}
