package discounts

import (
	"sort"
	"time"
)

// Accumulator folds order lines into deduplicated sale records. Quantities for
// the same (order, product) pair are summed across every Add call.
type Accumulator struct {
	catalog   *Catalog
	entries   map[SaleKey]*SaleRecord
	cancelled map[string]struct{}
}

// NewAccumulator builds an empty accumulator over catalog.
func NewAccumulator(catalog *Catalog) *Accumulator {
	return &Accumulator{
		catalog:   catalog,
		entries:   map[SaleKey]*SaleRecord{},
		cancelled: map[string]struct{}{},
	}
}

// Add contributes one order. A cancelled order contributes nothing and also
// suppresses whatever the same order id contributed in other passes.
func (a *Accumulator) Add(order Order) {
	if order.Cancelled() {
		a.cancelled[order.ID] = struct{}{}
		return
	}
	date := saleDate(order.CreatedAt)
	for _, line := range order.Lines {
		if line.Quantity <= 0 {
			continue
		}
		if id, ok := a.catalog.ResolveSKU(line.SKU); ok {
			a.contribute(order, date, id, line.Quantity)
		}
		for _, component := range a.catalog.ExpandKit(line.SKU) {
			if id, ok := a.catalog.ResolveSKU(component); ok {
				a.contribute(order, date, id, line.Quantity)
			}
		}
	}
}

func (a *Accumulator) contribute(order Order, date time.Time, productID, qty int64) {
	key := SaleKey{OrderID: order.ID, ProductID: productID}
	if rec, ok := a.entries[key]; ok {
		rec.Quantity += qty
		return
	}
	a.entries[key] = &SaleRecord{
		ProductID: productID,
		Channel:   order.Channel,
		OrderID:   order.ID,
		Date:      date,
		Quantity:  qty,
	}
}

// Len reports the number of records Records would return.
func (a *Accumulator) Len() int {
	n := 0
	for key := range a.entries {
		if _, gone := a.cancelled[key.OrderID]; !gone {
			n++
		}
	}
	return n
}

// Records returns the merged records ordered by order id then product id.
func (a *Accumulator) Records() []SaleRecord {
	out := make([]SaleRecord, 0, len(a.entries))
	for key, rec := range a.entries {
		if _, gone := a.cancelled[key.OrderID]; gone {
			continue
		}
		out = append(out, *rec)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].OrderID != out[j].OrderID {
			return out[i].OrderID < out[j].OrderID
		}
		return out[i].ProductID < out[j].ProductID
	})
	return out
}

// Accumulate runs a single pass over orders.
func Accumulate(catalog *Catalog, orders []Order) []SaleRecord {
	acc := NewAccumulator(catalog)
	for _, o := range orders {
		acc.Add(o)
	}
	return acc.Records()
}

// saleDate keeps the calendar date of t in its own zone, at midnight UTC.
func saleDate(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
