package export

import (
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

const (
	varianceSheet = "Variance"
	matrixSheet   = "Informe"
)

// WriteVarianceXLSX writes the variance table as a single sheet workbook.
func WriteVarianceXLSX(w io.Writer, rows []VarianceRow) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", varianceSheet); err != nil {
		return err
	}
	if err := writeHeader(f, varianceSheet, varianceHeader); err != nil {
		return err
	}
	for i, row := range rows {
		values := []any{row.SKU, row.Block, row.StockA, row.StockB, nil, row.Variance}
		if row.PhysicalCount != nil {
			values[4] = *row.PhysicalCount
		}
		if err := setRow(f, varianceSheet, i+2, values); err != nil {
			return err
		}
	}
	_ = f.SetColWidth(varianceSheet, "A", "A", 24)
	_ = f.SetColWidth(varianceSheet, "B", "F", 14)
	_, err := f.WriteTo(w)
	return err
}

// WriteMatrixXLSX writes the informe matrix with bold header and totals.
func WriteMatrixXLSX(w io.Writer, m Matrix) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	if err := f.SetSheetName("Sheet1", matrixSheet); err != nil {
		return err
	}
	header := append([]string{"SKU"}, m.OPs...)
	header = append(header, "Total")
	if err := writeHeader(f, matrixSheet, header); err != nil {
		return err
	}

	row := 2
	for _, sku := range m.SKUs {
		values := make([]any, 0, len(m.OPs)+2)
		values = append(values, sku)
		for _, op := range m.OPs {
			values = append(values, m.Cells[sku][op])
		}
		values = append(values, m.SKUTotals[sku])
		if err := setRow(f, matrixSheet, row, values); err != nil {
			return err
		}
		row++
	}

	totals := make([]any, 0, len(m.OPs)+2)
	totals = append(totals, "Total")
	for _, op := range m.OPs {
		totals = append(totals, m.OPTotals[op])
	}
	totals = append(totals, m.GrandTotal)
	if err := setRow(f, matrixSheet, row, totals); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	last, _ := excelize.ColumnNumberToName(len(header))
	if err := f.SetCellStyle(matrixSheet, fmt.Sprintf("A%d", row), fmt.Sprintf("%s%d", last, row), bold); err != nil {
		return err
	}
	_ = f.SetColWidth(matrixSheet, "A", "A", 24)
	_, err = f.WriteTo(w)
	return err
}

func writeHeader(f *excelize.File, sheet string, header []string) error {
	style, err := f.NewStyle(&excelize.Style{
		Font: &excelize.Font{Bold: true, Size: 11},
		Fill: excelize.Fill{Type: "pattern", Pattern: 1, Color: []string{"#D9E1F2"}},
	})
	if err != nil {
		return err
	}
	values := make([]any, len(header))
	for i, h := range header {
		values[i] = h
	}
	if err := setRow(f, sheet, 1, values); err != nil {
		return err
	}
	last, err := excelize.ColumnNumberToName(len(header))
	if err != nil {
		return err
	}
	return f.SetCellStyle(sheet, "A1", last+"1", style)
}

func setRow(f *excelize.File, sheet string, row int, values []any) error {
	cell, err := excelize.CoordinatesToCellName(1, row)
	if err != nil {
		return err
	}
	return f.SetSheetRow(sheet, cell, &values)
}
