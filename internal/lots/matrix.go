package lots

import (
	"sort"
	"strings"

	"github.com/rmadesk/rmadesk/internal/export"
)

// Matrix is the informe projection: quantities by SKU and production order.
type Matrix struct {
	SKUs       []string                    `json:"skus"`
	OPs        []string                    `json:"ops"`
	Cells      map[string]map[string]int64 `json:"cells"`
	SKUTotals  map[string]int64            `json:"sku_totals"`
	OPTotals   map[string]int64            `json:"op_totals"`
	GrandTotal int64                       `json:"grand_total"`
}

// BuildMatrix groups items by SKU and OP lot and sums quantities. Items without
// an OP lot are filed under NoOPLot, which sorts after every real OP.
func BuildMatrix(items []Item) Matrix {
	m := Matrix{
		SKUs:      []string{},
		OPs:       []string{},
		Cells:     map[string]map[string]int64{},
		SKUTotals: map[string]int64{},
		OPTotals:  map[string]int64{},
	}
	for _, it := range items {
		op := NoOPLot
		if it.OPLot != nil && strings.TrimSpace(*it.OPLot) != "" {
			op = strings.TrimSpace(*it.OPLot)
		}
		row, ok := m.Cells[it.SKU]
		if !ok {
			row = map[string]int64{}
			m.Cells[it.SKU] = row
			m.SKUs = append(m.SKUs, it.SKU)
		}
		if _, ok := m.OPTotals[op]; !ok {
			m.OPs = append(m.OPs, op)
		}
		row[op] += it.Quantity
		m.SKUTotals[it.SKU] += it.Quantity
		m.OPTotals[op] += it.Quantity
		m.GrandTotal += it.Quantity
	}
	sort.Strings(m.SKUs)
	sort.Slice(m.OPs, func(i, j int) bool {
		a, b := m.OPs[i], m.OPs[j]
		if a == NoOPLot || b == NoOPLot {
			return b == NoOPLot && a != NoOPLot
		}
		return a < b
	})
	return m
}

// Table converts the matrix for the export writers.
func (m Matrix) Table() export.Matrix {
	return export.Matrix(m)
}
