package cli

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/rmadesk/rmadesk/internal/inventory"
)

// StockCLI imports account stock workbooks from the command line.
type StockCLI struct {
	store inventory.Store
}

// NewStockCLI constructs the helper around a product store.
func NewStockCLI(store inventory.Store) *StockCLI {
	return &StockCLI{store: store}
}

// StockImportOptions defines available flags for stock import.
type StockImportOptions struct {
	Account    string
	File       string
	DryRun     bool
	JSONOutput bool
	Stdout     io.Writer
	Stderr     io.Writer
}

type stockImportSummary struct {
	Account string                 `json:"account"`
	DryRun  bool                   `json:"dry_run"`
	Summary string                 `json:"summary"`
	Result  inventory.ImportResult `json:"result"`
	Sheet   inventory.SheetStats   `json:"sheet"`
}

// ImportCommand parses the workbook and applies it to one account.
func (c *StockCLI) ImportCommand(ctx context.Context, opts StockImportOptions) int {
	if opts.Stdout == nil {
		opts.Stdout = os.Stdout
	}
	if opts.Stderr == nil {
		opts.Stderr = os.Stderr
	}
	account, err := inventory.ParseAccount(opts.Account)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "stock import: %v\n", err)
		return 1
	}
	f, err := os.Open(opts.File)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "stock import: %v\n", err)
		return 1
	}
	defer f.Close()

	stock, stats, err := inventory.ParseStockSheet(f)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "stock import: %v\n", err)
		return 1
	}
	result, err := inventory.ImportAccountStock(ctx, c.store, account, stock, opts.DryRun)
	if err != nil {
		_, _ = fmt.Fprintf(opts.Stderr, "stock import: %v\n", err)
		return 1
	}

	if opts.JSONOutput {
		out := stockImportSummary{Account: string(account), DryRun: opts.DryRun, Summary: result.Summary(), Result: result, Sheet: stats}
		if err := json.NewEncoder(opts.Stdout).Encode(out); err != nil {
			_, _ = fmt.Fprintf(opts.Stderr, "stock import: encode json: %v\n", err)
			return 1
		}
		return 0
	}
	prefix := ""
	if opts.DryRun {
		prefix = "[dry run] "
	}
	_, _ = fmt.Fprintf(opts.Stdout, "%saccount %s: %s\n", prefix, account, result.Summary())
	if stats.Malformed > 0 || stats.Duplicates > 0 {
		_, _ = fmt.Fprintf(opts.Stdout, "%d malformed rows, %d duplicate skus\n", stats.Malformed, stats.Duplicates)
	}
	for _, sku := range result.SkippedSKUs {
		_, _ = fmt.Fprintf(opts.Stdout, "  skipped %s\n", sku)
	}
	return 0
}
