package inventory

import (
	"errors"
	"fmt"
	"io"
	"math"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"
)

// SheetStats describes how a stock workbook was read.
type SheetStats struct {
	Sheet      string `json:"sheet"`
	Rows       int    `json:"rows"`
	Malformed  int    `json:"malformed"`
	Duplicates int    `json:"duplicates"`
	HeaderRow  bool   `json:"header_row"`
}

// ErrEmptyWorkbook indicates a workbook without sheets or rows.
var ErrEmptyWorkbook = errors.New("inventory: workbook has no rows")

// ParseStockSheet reads SKU (column A) and quantity (column B) from the first
// sheet of an xlsx workbook. A first row whose quantity cell is not numeric is
// treated as the header. Rows with a blank SKU or a non-integer quantity are
// counted as malformed and left out; a repeated SKU keeps its last quantity.
func ParseStockSheet(r io.Reader) (map[string]int64, SheetStats, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, SheetStats{}, fmt.Errorf("inventory: open workbook: %w", err)
	}
	defer func() { _ = f.Close() }()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, SheetStats{}, ErrEmptyWorkbook
	}
	stats := SheetStats{Sheet: sheets[0]}
	rows, err := f.GetRows(stats.Sheet)
	if err != nil {
		return nil, stats, fmt.Errorf("inventory: read sheet %s: %w", stats.Sheet, err)
	}
	if len(rows) == 0 {
		return nil, stats, ErrEmptyWorkbook
	}

	start := 0
	if looksLikeHeader(cell(rows[0], 1)) {
		stats.HeaderRow = true
		start = 1
	}

	stock := make(map[string]int64, len(rows))
	for _, row := range rows[start:] {
		sku := strings.TrimSpace(cell(row, 0))
		raw := cell(row, 1)
		if sku == "" && strings.TrimSpace(raw) == "" {
			continue
		}
		stats.Rows++
		qty, ok := parseQuantity(raw)
		if sku == "" || !ok {
			stats.Malformed++
			continue
		}
		if _, seen := stock[sku]; seen {
			stats.Duplicates++
		}
		stock[sku] = qty
	}
	return stock, stats, nil
}

func cell(row []string, i int) string {
	if i < len(row) {
		return row[i]
	}
	return ""
}

// looksLikeHeader treats a first row as a header only when column B is a
// label. A numeric-looking but malformed quantity stays a data row.
func looksLikeHeader(raw string) bool {
	raw = strings.TrimSpace(raw)
	return raw != "" && !strings.ContainsAny(raw, "0123456789")
}

func parseQuantity(raw string) (int64, bool) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, false
	}
	if n, err := strconv.ParseInt(raw, 10, 64); err == nil {
		return n, true
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil || f != math.Trunc(f) {
		return 0, false
	}
	// float64(math.MaxInt64) rounds up to 2^63, which int64 cannot hold.
	if f < math.MinInt64 || f >= math.MaxInt64 {
		return 0, false
	}
	return int64(f), true
}
