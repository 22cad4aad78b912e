package lots

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/rmadesk/rmadesk/internal/shared"
)

// Backend persists lot changes. Conflicts the backend detects itself, such as
// a concurrent confirm, are reported as shared.ErrInvalidTransition.
type Backend interface {
	InsertLot(ctx context.Context, items []Item) (Created, error)
	ConfirmLot(ctx context.Context, id int64) (time.Time, error)
	RevertLot(ctx context.Context, id int64) error
	DeleteLot(ctx context.Context, id int64) error
}

// Source reads lots and the stock report.
type Source interface {
	Lots(ctx context.Context) ([]Lot, error)
	StockReport(ctx context.Context) ([]StockReportRow, error)
}

// Registry tracks lots and their pending/confirmed lifecycle for one caller.
type Registry struct {
	backend Backend
	lots    map[int64]Lot
}

// NewRegistry builds an empty registry bound to backend.
func NewRegistry(backend Backend) *Registry {
	return &Registry{backend: backend, lots: map[int64]Lot{}}
}

// Load replaces the known lots.
func (r *Registry) Load(lots []Lot) {
	r.lots = make(map[int64]Lot, len(lots))
	for _, l := range lots {
		r.lots[l.ID] = cloneLot(l)
	}
}

// LoadFrom fetches lots from src and loads them.
func (r *Registry) LoadFrom(ctx context.Context, src Source) error {
	lots, err := src.Lots(ctx)
	if err != nil {
		return shared.BackendFailure("lots.list", err)
	}
	r.Load(lots)
	return nil
}

// Get returns one lot.
func (r *Registry) Get(id int64) (Lot, error) {
	l, ok := r.lots[id]
	if !ok {
		return Lot{}, notFound(id)
	}
	return cloneLot(l), nil
}

// List returns all lots ordered by ID.
func (r *Registry) List() []Lot {
	out := make([]Lot, 0, len(r.lots))
	for _, l := range r.lots {
		out = append(out, cloneLot(l))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Create snapshots rows into a new pending lot.
func (r *Registry) Create(ctx context.Context, rows []StockReportRow) (Lot, error) {
	if len(rows) == 0 {
		return Lot{}, shared.ErrEmptySelection
	}
	items := make([]Item, len(rows))
	for i, row := range rows {
		items[i] = Item{RMAID: row.RMAID, SKU: row.SKU, Quantity: row.Quantity}
		if row.OPLot != nil {
			op := *row.OPLot
			items[i].OPLot = &op
		}
	}
	created, err := r.backend.InsertLot(ctx, cloneItems(items))
	if err != nil {
		return Lot{}, shared.BackendFailure("lots.insert", err)
	}
	lot := Lot{ID: created.ID, CreatedAt: created.CreatedAt, State: StatePending, Items: items}
	r.lots[lot.ID] = lot
	return cloneLot(lot), nil
}

// Confirm moves a pending lot to confirmed.
func (r *Registry) Confirm(ctx context.Context, id int64) (Lot, error) {
	lot, ok := r.lots[id]
	if !ok {
		return Lot{}, notFound(id)
	}
	if lot.State != StatePending {
		return Lot{}, fmt.Errorf("lots: confirm lot %d in state %s: %w", id, lot.State, shared.ErrInvalidTransition)
	}
	confirmedAt, err := r.backend.ConfirmLot(ctx, id)
	if err != nil {
		return Lot{}, shared.BackendFailure("lots.confirm", err)
	}
	lot.State = StateConfirmed
	lot.ConfirmedAt = &confirmedAt
	r.lots[id] = lot
	return cloneLot(lot), nil
}

// Revert moves a confirmed lot back to pending and clears ConfirmedAt.
func (r *Registry) Revert(ctx context.Context, id int64) (Lot, error) {
	lot, ok := r.lots[id]
	if !ok {
		return Lot{}, notFound(id)
	}
	if lot.State != StateConfirmed {
		return Lot{}, fmt.Errorf("lots: revert lot %d in state %s: %w", id, lot.State, shared.ErrInvalidTransition)
	}
	if err := r.backend.RevertLot(ctx, id); err != nil {
		return Lot{}, shared.BackendFailure("lots.revert", err)
	}
	lot.State = StatePending
	lot.ConfirmedAt = nil
	r.lots[id] = lot
	return cloneLot(lot), nil
}

// NeedsDeleteWarning reports whether deleting id discards a confirmed lot.
// Deleting never undoes whatever confirmation triggered upstream.
func (r *Registry) NeedsDeleteWarning(id int64) (bool, error) {
	lot, ok := r.lots[id]
	if !ok {
		return false, notFound(id)
	}
	return lot.State == StateConfirmed, nil
}

// Delete removes a lot in either state.
func (r *Registry) Delete(ctx context.Context, id int64) error {
	if _, ok := r.lots[id]; !ok {
		return notFound(id)
	}
	if err := r.backend.DeleteLot(ctx, id); err != nil {
		return shared.BackendFailure("lots.delete", err)
	}
	delete(r.lots, id)
	return nil
}

// Matrix projects the items of the given lots. Repeated ids count once.
func (r *Registry) Matrix(lotIDs []int64) (Matrix, error) {
	seen := make(map[int64]struct{}, len(lotIDs))
	var items []Item
	for _, id := range lotIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		lot, ok := r.lots[id]
		if !ok {
			return Matrix{}, notFound(id)
		}
		items = append(items, lot.Items...)
	}
	return BuildMatrix(items), nil
}

// Partition splits ids into lots the registry holds and ids it does not know,
// keeping input order and dropping repeats.
func (r *Registry) Partition(lotIDs []int64) (known, missing []int64) {
	seen := make(map[int64]struct{}, len(lotIDs))
	for _, id := range lotIDs {
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		if _, ok := r.lots[id]; ok {
			known = append(known, id)
		} else {
			missing = append(missing, id)
		}
	}
	return known, missing
}

func notFound(id int64) error {
	return fmt.Errorf("lots: lot %d: %w", id, shared.ErrNotFound)
}
