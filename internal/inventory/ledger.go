package inventory

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/rmadesk/rmadesk/internal/shared"
)

// Backend is the persistence port of the ledger. Every call is one round trip
// and the ledger only mutates its working set after the call returns nil.
type Backend interface {
	ReplaceAccountStock(ctx context.Context, account Account, updates []StockUpdate) error
	ClearAccount(ctx context.Context, account Account) error
	SaveCounts(ctx context.Context, entries []CountEntry) error
	ResetCounts(ctx context.Context) error
}

// ProductSource loads the current product rows.
type ProductSource interface {
	Products(ctx context.Context) ([]Product, error)
}

// Ledger holds the working set of one counting session. It is owned by a
// single caller and is not safe for concurrent use.
type Ledger struct {
	backend  Backend
	now      func() time.Time
	products []Product
	byID     map[int64]int
	// dirty holds products whose count was set since Load or the last save.
	dirty map[int64]struct{}
}

// LedgerOption customises a Ledger.
type LedgerOption func(*Ledger)

// WithClock overrides the clock used to stamp CountedAt.
func WithClock(now func() time.Time) LedgerOption {
	return func(l *Ledger) {
		if now != nil {
			l.now = now
		}
	}
}

// NewLedger builds an empty ledger bound to backend.
func NewLedger(backend Backend, opts ...LedgerOption) *Ledger {
	l := &Ledger{backend: backend, now: time.Now, byID: map[int64]int{}, dirty: map[int64]struct{}{}}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load replaces the working set. Rows are copied; nothing is merged.
func (l *Ledger) Load(products []Product) {
	l.products = make([]Product, len(products))
	l.byID = make(map[int64]int, len(products))
	l.dirty = map[int64]struct{}{}
	for i, p := range products {
		l.products[i] = cloneProduct(p)
		l.byID[p.ID] = i
	}
}

// LoadFrom fetches products from src and loads them.
func (l *Ledger) LoadFrom(ctx context.Context, src ProductSource) error {
	products, err := src.Products(ctx)
	if err != nil {
		return shared.BackendFailure("inventory.products", err)
	}
	l.Load(products)
	return nil
}

// Products returns a copy of the working set in load order.
func (l *Ledger) Products() []Product {
	out := make([]Product, len(l.products))
	for i, p := range l.products {
		out[i] = cloneProduct(p)
	}
	return out
}

// Product returns a single product by id.
func (l *Ledger) Product(id int64) (Product, error) {
	idx, ok := l.byID[id]
	if !ok {
		return Product{}, fmt.Errorf("inventory: product %d: %w", id, shared.ErrNotFound)
	}
	return cloneProduct(l.products[idx]), nil
}

// FindExact looks a SKU up case-insensitively.
func (l *Ledger) FindExact(sku string) (Product, bool) {
	return FindExact(l.products, sku)
}

// FindApprox returns ranked substring candidates for query.
func (l *Ledger) FindApprox(query string) []Product {
	return FindApprox(l.products, query)
}

// SetPhysicalCount records a manual count locally. A nil value marks the
// product as not counted. Persistence happens in SaveCounts.
func (l *Ledger) SetPhysicalCount(id int64, value *int64) error {
	idx, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("inventory: product %d: %w", id, shared.ErrNotFound)
	}
	p := &l.products[idx]
	if value == nil {
		p.PhysicalCount = nil
		p.CountedAt = nil
		l.dirty[id] = struct{}{}
		return nil
	}
	if *value < 0 {
		return ErrInvalidCount
	}
	count := *value
	at := l.now()
	p.PhysicalCount = &count
	p.CountedAt = &at
	l.dirty[id] = struct{}{}
	return nil
}

// SetCountFromPackages records packages*UnitsPerPackage + loose units.
func (l *Ledger) SetCountFromPackages(id int64, packages, loose int64) error {
	idx, ok := l.byID[id]
	if !ok {
		return fmt.Errorf("inventory: product %d: %w", id, shared.ErrNotFound)
	}
	if packages < 0 || loose < 0 {
		return ErrInvalidCount
	}
	per := l.products[idx].UnitsPerPackage
	if per <= 0 {
		per = 1
	}
	total := int64(math.Round(float64(packages)*per)) + loose
	return l.SetPhysicalCount(id, &total)
}

// SaveCounts persists the counts set since Load as one batch and reports how
// many rows were sent. Cleared counts are sent with a nil quantity. With
// changedOnly, counted rows with zero variance are held back.
func (l *Ledger) SaveCounts(ctx context.Context, changedOnly bool) (int, error) {
	entries := make([]CountEntry, 0, len(l.dirty))
	for _, p := range l.products {
		if _, ok := l.dirty[p.ID]; !ok {
			continue
		}
		if changedOnly && p.PhysicalCount != nil && Variance(p) == 0 {
			continue
		}
		entry := CountEntry{ProductID: p.ID, SKU: p.SKU}
		if p.PhysicalCount != nil {
			count := *p.PhysicalCount
			entry.Quantity = &count
		}
		entries = append(entries, entry)
	}
	if len(entries) == 0 {
		return 0, nil
	}
	if err := l.backend.SaveCounts(ctx, entries); err != nil {
		return 0, shared.BackendFailure("inventory.save_counts", err)
	}
	for _, e := range entries {
		delete(l.dirty, e.ProductID)
	}
	return len(entries), nil
}

// ResetAllCounts sets every physical count to zero and clears CountedAt once
// the backend acknowledged the reset. Callers must have confirmed intent.
func (l *Ledger) ResetAllCounts(ctx context.Context) error {
	if err := l.backend.ResetCounts(ctx); err != nil {
		return shared.BackendFailure("inventory.reset_counts", err)
	}
	for i := range l.products {
		zero := int64(0)
		l.products[i].PhysicalCount = &zero
		l.products[i].CountedAt = nil
	}
	l.dirty = map[int64]struct{}{}
	return nil
}

// ApplyAccountStock overwrites one account's stock for every product whose SKU
// appears in stock. Products missing from the map keep their value. Unknown,
// blank or negative entries are skipped and reported in the result.
func (l *Ledger) ApplyAccountStock(ctx context.Context, account Account, stock map[string]int64) (ImportResult, error) {
	if _, err := ParseAccount(string(account)); err != nil {
		return ImportResult{}, err
	}
	result := ImportResult{Account: account, Total: len(stock)}

	exact := make(map[string]int, len(l.products))
	folded := make(map[string][]int, len(l.products))
	for i, p := range l.products {
		exact[strings.TrimSpace(p.SKU)] = i
		key := normalizeKey(p.SKU)
		folded[key] = append(folded[key], i)
	}

	skus := make([]string, 0, len(stock))
	for sku := range stock {
		skus = append(skus, sku)
	}
	sort.Strings(skus)

	type pending struct {
		sku string
		idx int
		qty int64
	}
	var exactHits, foldedHits []pending
	for _, sku := range skus {
		qty := stock[sku]
		trimmed := strings.TrimSpace(sku)
		if trimmed == "" || qty < 0 {
			result.skip(sku)
			continue
		}
		if idx, ok := exact[trimmed]; ok {
			exactHits = append(exactHits, pending{sku: sku, idx: idx, qty: qty})
			continue
		}
		// A folded match is only trusted when it names a single product.
		if candidates := folded[normalizeKey(sku)]; len(candidates) == 1 {
			foldedHits = append(foldedHits, pending{sku: sku, idx: candidates[0], qty: qty})
			continue
		}
		result.skip(sku)
	}

	claimed := make(map[int]struct{}, len(exactHits)+len(foldedHits))
	var apply []pending
	updates := make([]StockUpdate, 0, len(exactHits)+len(foldedHits))
	for _, hit := range append(exactHits, foldedHits...) {
		if _, dup := claimed[hit.idx]; dup {
			result.skip(hit.sku)
			continue
		}
		claimed[hit.idx] = struct{}{}
		apply = append(apply, hit)
		p := l.products[hit.idx]
		updates = append(updates, StockUpdate{ProductID: p.ID, SKU: p.SKU, Quantity: hit.qty})
	}
	sort.Strings(result.SkippedSKUs)
	result.Applied = len(apply)
	if len(apply) == 0 {
		return result, nil
	}

	if err := l.backend.ReplaceAccountStock(ctx, account, updates); err != nil {
		return ImportResult{}, shared.BackendFailure("inventory.replace_account_stock", err)
	}
	for _, a := range apply {
		setAccount(&l.products[a.idx], account, a.qty)
	}
	return result, nil
}

// ClearAccount zeroes one account's stock for every product.
func (l *Ledger) ClearAccount(ctx context.Context, account Account) error {
	if _, err := ParseAccount(string(account)); err != nil {
		return err
	}
	if err := l.backend.ClearAccount(ctx, account); err != nil {
		return shared.BackendFailure("inventory.clear_account", err)
	}
	for i := range l.products {
		setAccount(&l.products[i], account, 0)
	}
	return nil
}

// VarianceRows builds the flat SKU/variance table, ordered by block
// (unassigned last) then SKU.
func (l *Ledger) VarianceRows(filter VarianceFilter) []VarianceRow {
	rows := make([]VarianceRow, 0, len(l.products))
	for _, p := range l.products {
		block := UnassignedBlock
		if p.Block != nil && strings.TrimSpace(*p.Block) != "" {
			block = strings.TrimSpace(*p.Block)
		}
		if filter.Block != "" && filter.Block != block {
			continue
		}
		if filter.CountedOnly && p.PhysicalCount == nil {
			continue
		}
		v := Variance(p)
		if filter.ChangedOnly && v == 0 {
			continue
		}
		row := VarianceRow{
			ProductID: p.ID,
			SKU:       p.SKU,
			Block:     block,
			StockA:    p.StockA,
			StockB:    p.StockB,
			Variance:  v,
		}
		if p.PhysicalCount != nil {
			count := *p.PhysicalCount
			row.PhysicalCount = &count
		}
		rows = append(rows, row)
	}
	sort.SliceStable(rows, func(i, j int) bool {
		bi, bj := rows[i].Block, rows[j].Block
		if bi != bj {
			if bi == UnassignedBlock {
				return false
			}
			if bj == UnassignedBlock {
				return true
			}
			return bi < bj
		}
		return rows[i].SKU < rows[j].SKU
	})
	return rows
}

func setAccount(p *Product, account Account, qty int64) {
	switch account {
	case AccountA:
		p.StockA = qty
	case AccountB:
		p.StockB = qty
	}
}

func normalizeKey(sku string) string {
	return strings.ToLower(strings.TrimSpace(sku))
}

func cloneProduct(p Product) Product {
	out := p
	if p.Block != nil {
		b := *p.Block
		out.Block = &b
	}
	if p.PhysicalCount != nil {
		c := *p.PhysicalCount
		out.PhysicalCount = &c
	}
	if p.CountedAt != nil {
		t := *p.CountedAt
		out.CountedAt = &t
	}
	return out
}
