package store

import (
	"time"

	"github.com/jackc/pgx/v5/pgtype"
)

// Order lifecycle states. An order is append-only after creation: only its
// status and payment fields advance.
const (
	OrderStatusPending   = "pending"
	OrderStatusConfirmed = "confirmed"
	OrderStatusCancelled = "cancelled"
)

// Order-level payment states.
const (
	PaymentStatusCreated   = "created"
	PaymentStatusAttempted = "attempted"
	PaymentStatusCaptured  = "captured"
	PaymentStatusFailed    = "failed"
)

// Per-attempt states. ATTEMPTED is retryable; FAILED is terminal for the
// attempt (but not necessarily for the order).
const (
	AttemptStatusCreated   = "CREATED"
	AttemptStatusAttempted = "ATTEMPTED"
	AttemptStatusCaptured  = "CAPTURED"
	AttemptStatusFailed    = "FAILED"
)

// Coupon discount kinds.
const (
	DiscountTypePercentage   = "percentage"
	DiscountTypeFixed        = "fixed"
	DiscountTypeFreeShipping = "free_shipping"
)

// Coupon scope kinds.
const (
	ScopeAllProducts        = "all_products"
	ScopeSpecificProducts   = "specific_products"
	ScopeSpecificCategories = "specific_categories"
)

// Order is the persisted order aggregate. Monetary fields are major units.
type Order struct {
	ID              pgtype.UUID
	OrderNumber     string
	UserID          pgtype.UUID
	Status          string
	PaymentStatus   string
	IsPaid          bool
	Currency        string
	Subtotal        float64
	Tax             float64
	Shipping        float64
	Discount        float64
	Total           float64
	AmountDue       float64
	AmountPaid      float64
	TotalSavings    float64
	CouponCode      pgtype.Text
	PaymentMethod   string
	ShippingAddress []byte
	BillingAddress  []byte
	CreatedAt       time.Time
	PaidAt          pgtype.Timestamptz
}

// OrderItem is a frozen cart line carried by an order.
type OrderItem struct {
	ID               pgtype.UUID
	OrderID          pgtype.UUID
	ProductID        pgtype.UUID
	VariantID        pgtype.UUID
	Name             string
	UnitPrice        float64
	OriginalPrice    float64
	Quantity         int32
	TaxRate          float64
	LineTotal        float64
	LineTax          float64
	Returnable       bool
	ReturnWindowDays int32
}

// PaymentAttempt is one gateway order-creation call. Rows are append-only;
// Amount is in the gateway's smallest currency unit.
type PaymentAttempt struct {
	ID                pgtype.UUID
	OrderID           pgtype.UUID
	GatewayOrderID    string
	Amount            int64
	Currency          string
	Status            string
	GatewayPaymentID  pgtype.Text
	SignatureVerified bool
	GatewayResponse   []byte
	ErrorReason       pgtype.Text
	CreatedAt         time.Time
	CapturedAt        pgtype.Timestamptz
}

// Coupon mirrors the coupons table.
type Coupon struct {
	ID            pgtype.UUID
	Code          string
	Name          string
	DiscountType  string
	DiscountValue float64
	MaxDiscount   pgtype.Float8
	MinOrderValue float64
	ValidFrom     pgtype.Timestamptz
	ValidUntil    pgtype.Timestamptz
	UsageLimit    pgtype.Int4
	UsedCount     int32
	PerUserLimit  pgtype.Int4
	ApplicableTo  string
	ProductIDs    []pgtype.UUID
	CategoryIDs   []pgtype.UUID
	Active        bool
}

// CouponRedemption records one coupon use, unique per order.
type CouponRedemption struct {
	ID       pgtype.UUID
	CouponID pgtype.UUID
	OrderID  pgtype.UUID
	UserID   pgtype.UUID
	Amount   float64
}

// Cart is the live cart head row.
type Cart struct {
	ID         pgtype.UUID
	UserID     pgtype.UUID
	CouponCode pgtype.Text
}

// CartLine joins a cart item with its product/variant pricing fields.
type CartLine struct {
	ProductID        pgtype.UUID
	VariantID        pgtype.UUID
	CategoryID       pgtype.UUID
	Name             string
	UnitPrice        float64
	OriginalPrice    float64
	Quantity         int32
	TaxRate          float64
	StockQuantity    int32
	Returnable       bool
	ReturnWindowDays int32
}

// Address is a user address book entry.
type Address struct {
	ID           pgtype.UUID
	UserID       pgtype.UUID
	Label        pgtype.Text
	ReceiverName string
	Phone        string
	AddressLine1 string
	AddressLine2 pgtype.Text
	City         string
	State        string
	Country      string
	PostalCode   string
	IsDefault    bool
	CreatedAt    time.Time
	UpdatedAt    time.Time
}

// DomainEvent is a persisted event for the bus and operational alerts.
type DomainEvent struct {
	ID          pgtype.UUID
	Topic       string
	AggregateID pgtype.UUID
	Payload     []byte
	OccurredAt  time.Time
}
