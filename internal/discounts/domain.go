package discounts

import (
	"context"
	"strings"
	"time"
)

// Mapping links a discount eligible SKU to its internal product id.
type Mapping struct {
	SKU       string `json:"sku"`
	ProductID int64  `json:"product_id"`
}

// KitRule lists the discount SKUs bundled in a kit SKU.
type KitRule struct {
	KitSKU     string   `json:"kit_sku" yaml:"kit"`
	Components []string `json:"components" yaml:"components"`
}

// Line is one order line item.
type Line struct {
	SKU      string `json:"sku" validate:"required"`
	Quantity int64  `json:"quantity"`
}

// Order is a marketplace order selected for registration.
type Order struct {
	ID             string    `json:"id" validate:"required"`
	Channel        string    `json:"channel" validate:"required"`
	CreatedAt      time.Time `json:"created_at" validate:"required"`
	ShippingStatus string    `json:"shipping_status"`
	Lines          []Line    `json:"lines" validate:"dive"`
}

// Cancelled reports whether the buyer cancelled the order.
func (o Order) Cancelled() bool {
	return strings.EqualFold(strings.TrimSpace(o.ShippingStatus), "cancelled")
}

// SaleKey is the natural key of a discount sale.
type SaleKey struct {
	OrderID   string
	ProductID int64
}

// SaleRecord is one deduplicated discount sale ready for submission.
type SaleRecord struct {
	ProductID int64     `json:"product_id"`
	Channel   string    `json:"channel"`
	OrderID   string    `json:"order_id"`
	Date      time.Time `json:"date"`
	Quantity  int64     `json:"quantity"`
}

// Key returns the record's natural key.
func (r SaleRecord) Key() SaleKey {
	return SaleKey{OrderID: r.OrderID, ProductID: r.ProductID}
}

// Confirmer decides whether sales already registered for cancelled orders
// may be deleted.
type Confirmer func(ctx context.Context, orderIDs []string) bool

// Always returns a Confirmer with a fixed answer.
func Always(answer bool) Confirmer {
	return func(context.Context, []string) bool { return answer }
}

// RegisterResult reports what a registration run did.
type RegisterResult struct {
	CancelledOrders     int          `json:"cancelled_orders"`
	RegisteredCancelled []string     `json:"registered_cancelled,omitempty"`
	CleanupDeclined     bool         `json:"cleanup_declined,omitempty"`
	Removed             int64        `json:"removed"`
	NoEligibleLines     bool         `json:"no_eligible_lines,omitempty"`
	Submitted           int          `json:"submitted"`
	Inserted            int64        `json:"inserted"`
	Records             []SaleRecord `json:"records"`
}
