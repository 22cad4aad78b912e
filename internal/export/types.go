// Package export renders reconciliation tables as CSV and xlsx documents.
package export

import "time"

// XLSXContentType is the media type of workbooks produced here.
const XLSXContentType = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

var varianceHeader = []string{"SKU", "Block", "Stock A", "Stock B", "Physical Count", "Variance"}

// VarianceRow is one line of the variance table.
type VarianceRow struct {
	SKU           string
	Block         string
	StockA        int64
	StockB        int64
	PhysicalCount *int64
	Variance      int64
}

// Matrix is a SKU by OP quantity table with totals. SKUs and OPs are already
// in display order; missing cells read as zero.
type Matrix struct {
	SKUs       []string
	OPs        []string
	Cells      map[string]map[string]int64
	SKUTotals  map[string]int64
	OPTotals   map[string]int64
	GrandTotal int64
}

var auditHeader = []string{"At", "Actor", "Action", "Entity", "Entity ID", "Meta"}

// AuditRow is one line of the audit timeline export.
type AuditRow struct {
	At       time.Time
	Actor    string
	Action   string
	Entity   string
	EntityID string
	Meta     string
}
