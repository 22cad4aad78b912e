package lots

import (
	"fmt"
	"time"

	"github.com/rmadesk/rmadesk/internal/shared"
)

// State of a lot.
type State string

const (
	// StatePending marks a lot that has been grouped but not yet confirmed.
	StatePending State = "pending"
	// StateConfirmed marks a lot confirmed by the operator.
	StateConfirmed State = "confirmed"
)

// NoOPLot labels items without a production order in the informe matrix.
const NoOPLot = "SIN OP"

// StockReportRow is one returned unit line from the stock report. It is read
// only input for lot creation.
type StockReportRow struct {
	RMAID    int64   `json:"rma_id"`
	SKU      string  `json:"sku"`
	Brand    string  `json:"brand"`
	Quantity int64   `json:"quantity"`
	OPLot    *string `json:"op_lot,omitempty"`
	Client   string  `json:"client"`
}

// Item is the snapshot of a stock report row taken when a lot is created.
type Item struct {
	RMAID    int64   `json:"rma_id"`
	SKU      string  `json:"sku"`
	Quantity int64   `json:"quantity"`
	OPLot    *string `json:"op_lot,omitempty"`
}

// Lot groups returned units for batch handling.
type Lot struct {
	ID          int64      `json:"id"`
	CreatedAt   time.Time  `json:"created_at"`
	State       State      `json:"state"`
	ConfirmedAt *time.Time `json:"confirmed_at,omitempty"`
	Items       []Item     `json:"items"`
}

// Created is the backend acknowledgement of a new lot.
type Created struct {
	ID        int64
	CreatedAt time.Time
}

// ErrSelectionNotFound indicates an expired or unknown working selection. It
// matches shared.ErrNotFound.
var ErrSelectionNotFound = fmt.Errorf("lots: selection: %w", shared.ErrNotFound)

func cloneItems(items []Item) []Item {
	out := make([]Item, len(items))
	for i, it := range items {
		out[i] = it
		if it.OPLot != nil {
			op := *it.OPLot
			out[i].OPLot = &op
		}
	}
	return out
}

func cloneLot(l Lot) Lot {
	out := l
	out.Items = cloneItems(l.Items)
	if l.ConfirmedAt != nil {
		at := *l.ConfirmedAt
		out.ConfirmedAt = &at
	}
	return out
}

// SelectRows picks report rows by RMA id in the order the ids were given.
// Unknown ids fail the whole selection.
func SelectRows(report []StockReportRow, rmaIDs []int64) ([]StockReportRow, error) {
	byID := make(map[int64]StockReportRow, len(report))
	for _, row := range report {
		byID[row.RMAID] = row
	}
	rows := make([]StockReportRow, 0, len(rmaIDs))
	seen := make(map[int64]struct{}, len(rmaIDs))
	for _, id := range rmaIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		row, ok := byID[id]
		if !ok {
			return nil, fmt.Errorf("lots: rma %d is not in the stock report: %w", id, shared.ErrNotFound)
		}
		rows = append(rows, row)
	}
	return rows, nil
}
