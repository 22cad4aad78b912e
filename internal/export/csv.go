package export

import (
	"encoding/csv"
	"io"
	"strconv"
	"time"
)

// WriteVarianceCSV emits the SKU/variance table as CSV. Uncounted products
// leave the count column empty.
func WriteVarianceCSV(w io.Writer, rows []VarianceRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write(varianceHeader); err != nil {
		return err
	}
	for _, row := range rows {
		count := ""
		if row.PhysicalCount != nil {
			count = formatInt(*row.PhysicalCount)
		}
		if err := writer.Write([]string{
			row.SKU,
			row.Block,
			formatInt(row.StockA),
			formatInt(row.StockB),
			count,
			formatInt(row.Variance),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteMatrixCSV prints the informe matrix: one row per SKU, one column per
// OP, a trailing total column and a final totals row.
func WriteMatrixCSV(w io.Writer, m Matrix) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	for _, record := range matrixRecords(m) {
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteAuditCSV emits audit entries with RFC3339 timestamps in UTC.
func WriteAuditCSV(w io.Writer, rows []AuditRow) error {
	writer := csv.NewWriter(w)
	defer writer.Flush()
	if err := writer.Write(auditHeader); err != nil {
		return err
	}
	for _, row := range rows {
		if err := writer.Write([]string{
			row.At.UTC().Format(time.RFC3339),
			row.Actor,
			row.Action,
			row.Entity,
			row.EntityID,
			row.Meta,
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

func matrixRecords(m Matrix) [][]string {
	records := make([][]string, 0, len(m.SKUs)+2)
	header := append([]string{"SKU"}, m.OPs...)
	records = append(records, append(header, "Total"))
	for _, sku := range m.SKUs {
		record := make([]string, 0, len(m.OPs)+2)
		record = append(record, sku)
		for _, op := range m.OPs {
			record = append(record, formatInt(m.Cells[sku][op]))
		}
		records = append(records, append(record, formatInt(m.SKUTotals[sku])))
	}
	totals := make([]string, 0, len(m.OPs)+2)
	totals = append(totals, "Total")
	for _, op := range m.OPs {
		totals = append(totals, formatInt(m.OPTotals[op]))
	}
	return append(records, append(totals, formatInt(m.GrandTotal)))
}

func formatInt(v int64) string {
	return strconv.FormatInt(v, 10)
}
