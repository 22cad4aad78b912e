package inventory

import (
	"errors"
	"fmt"
	"strings"
	"time"
)

// Account identifies one of the two independently reported warehouse stock sources.
type Account string

const (
	// AccountA is the first warehouse account.
	AccountA Account = "a"
	// AccountB is the second warehouse account.
	AccountB Account = "b"
)

// ParseAccount validates an account identifier.
func ParseAccount(raw string) (Account, error) {
	switch Account(strings.ToLower(strings.TrimSpace(raw))) {
	case AccountA:
		return AccountA, nil
	case AccountB:
		return AccountB, nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAccount, raw)
}

// Product mirrors a backend product row for one counting session.
type Product struct {
	ID              int64      `json:"id"`
	SKU             string     `json:"sku"`
	Block           *string    `json:"block,omitempty"`
	StockA          int64      `json:"stock_a"`
	StockB          int64      `json:"stock_b"`
	PhysicalCount   *int64     `json:"physical_count"`
	CountedAt       *time.Time `json:"counted_at,omitempty"`
	UnitsPerPackage float64    `json:"units_per_package"`
}

// SystemStock is the combined declared stock across both accounts.
func (p Product) SystemStock() int64 {
	return p.StockA + p.StockB
}

// Variance returns physical count minus combined system stock. A product that
// has not been counted yet has zero variance.
func Variance(p Product) int64 {
	if p.PhysicalCount == nil {
		return 0
	}
	return *p.PhysicalCount - p.StockA - p.StockB
}

// StockUpdate overwrites one account's stock for a single product.
type StockUpdate struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Quantity  int64  `json:"quantity"`
}

// CountEntry is one row of a physical count batch save. A nil Quantity marks
// the product as not counted.
type CountEntry struct {
	ProductID int64  `json:"product_id"`
	SKU       string `json:"sku"`
	Quantity  *int64 `json:"quantity"`
}

// ImportResult reports how much of a bulk account import was applied.
// Skipped SKUs are a normal outcome the operator reconciles by hand.
type ImportResult struct {
	Account     Account  `json:"account"`
	Total       int      `json:"total"`
	Applied     int      `json:"applied"`
	Skipped     int      `json:"skipped"`
	SkippedSKUs []string `json:"skipped_skus,omitempty"`
}

func (r *ImportResult) skip(sku string) {
	r.Skipped++
	r.SkippedSKUs = append(r.SkippedSKUs, sku)
}

// Summary renders the operator facing outcome.
func (r ImportResult) Summary() string {
	return fmt.Sprintf("%d of %d rows applied", r.Applied, r.Total)
}

// VarianceRow is one line of the flat SKU/variance table.
type VarianceRow struct {
	ProductID     int64  `json:"product_id"`
	SKU           string `json:"sku"`
	Block         string `json:"block"`
	StockA        int64  `json:"stock_a"`
	StockB        int64  `json:"stock_b"`
	PhysicalCount *int64 `json:"physical_count"`
	Variance      int64  `json:"variance"`
}

// VarianceFilter narrows VarianceRows.
type VarianceFilter struct {
	Block       string
	CountedOnly bool
	ChangedOnly bool
}

// UnassignedBlock labels products without a block tag in reports.
const UnassignedBlock = "-"

var (
	// ErrUnknownAccount indicates an account identifier other than a or b.
	ErrUnknownAccount = errors.New("inventory: unknown warehouse account")
	// ErrInvalidCount indicates a negative physical count.
	ErrInvalidCount = errors.New("inventory: count must be >= 0")
)
