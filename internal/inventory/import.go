package inventory

import "context"

// ImportAccountStock applies parsed sheet quantities to one account from a
// fresh product load. A dry run computes the same result without writing.
func ImportAccountStock(ctx context.Context, store Store, account Account, stock map[string]int64, dryRun bool) (ImportResult, error) {
	var backend Backend = store
	if dryRun {
		backend = discardBackend{}
	}
	ledger := NewLedger(backend)
	if err := ledger.LoadFrom(ctx, store); err != nil {
		return ImportResult{}, err
	}
	return ledger.ApplyAccountStock(ctx, account, stock)
}

// discardBackend acknowledges every write without persisting it.
type discardBackend struct{}

func (discardBackend) ReplaceAccountStock(context.Context, Account, []StockUpdate) error { return nil }
func (discardBackend) ClearAccount(context.Context, Account) error                       { return nil }
func (discardBackend) SaveCounts(context.Context, []CountEntry) error                    { return nil }
func (discardBackend) ResetCounts(context.Context) error                                 { return nil }
