package lots

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rmadesk/rmadesk/internal/platform/db"
	"github.com/rmadesk/rmadesk/internal/shared"
)

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	QueryRow(context.Context, string, ...any) pgx.Row
}

// Repository stores lots in PostgreSQL. It implements Backend and Source.
type Repository struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

// Lots loads every lot with its items.
func (r *Repository) Lots(ctx context.Context) ([]Lot, error) {
	rows, err := r.db.Query(ctx, `SELECT id, created_at, state, confirmed_at FROM lots ORDER BY id`)
	if err != nil {
		return nil, err
	}
	var lots []Lot
	index := map[int64]int{}
	for rows.Next() {
		var l Lot
		var state string
		if err := rows.Scan(&l.ID, &l.CreatedAt, &state, &l.ConfirmedAt); err != nil {
			rows.Close()
			return nil, err
		}
		l.State = State(state)
		l.Items = []Item{}
		index[l.ID] = len(lots)
		lots = append(lots, l)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	itemRows, err := r.db.Query(ctx, `SELECT lot_id, rma_id, sku, quantity, op_lot FROM lot_items ORDER BY lot_id, position`)
	if err != nil {
		return nil, err
	}
	defer itemRows.Close()
	for itemRows.Next() {
		var lotID int64
		var it Item
		if err := itemRows.Scan(&lotID, &it.RMAID, &it.SKU, &it.Quantity, &it.OPLot); err != nil {
			return nil, err
		}
		if idx, ok := index[lotID]; ok {
			lots[idx].Items = append(lots[idx].Items, it)
		}
	}
	return lots, itemRows.Err()
}

// StockReport lists the returned units available for grouping.
func (r *Repository) StockReport(ctx context.Context) ([]StockReportRow, error) {
	rows, err := r.db.Query(ctx, `SELECT rma_id, sku, brand, quantity, op_lot, client FROM stock_report ORDER BY rma_id`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []StockReportRow
	for rows.Next() {
		var row StockReportRow
		if err := rows.Scan(&row.RMAID, &row.SKU, &row.Brand, &row.Quantity, &row.OPLot, &row.Client); err != nil {
			return nil, err
		}
		out = append(out, row)
	}
	return out, rows.Err()
}

// InsertLot writes a pending lot header and copies its items in one
// transaction.
func (r *Repository) InsertLot(ctx context.Context, items []Item) (Created, error) {
	var created Created
	err := db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		if err := tx.QueryRow(ctx, `INSERT INTO lots (state) VALUES ($1) RETURNING id, created_at`, string(StatePending)).
			Scan(&created.ID, &created.CreatedAt); err != nil {
			return err
		}
		rows := make([][]any, len(items))
		for i, it := range items {
			rows[i] = []any{created.ID, i, it.RMAID, it.SKU, it.Quantity, it.OPLot}
		}
		_, err := tx.CopyFrom(ctx,
			pgx.Identifier{"lot_items"},
			[]string{"lot_id", "position", "rma_id", "sku", "quantity", "op_lot"},
			pgx.CopyFromRows(rows))
		return err
	})
	return created, err
}

// ConfirmLot marks a pending lot confirmed and returns the stored timestamp.
func (r *Repository) ConfirmLot(ctx context.Context, id int64) (time.Time, error) {
	var confirmedAt time.Time
	err := r.db.QueryRow(ctx, `UPDATE lots SET state = $2, confirmed_at = now()
WHERE id = $1 AND state = $3 RETURNING confirmed_at`, id, string(StateConfirmed), string(StatePending)).Scan(&confirmedAt)
	if errors.Is(err, pgx.ErrNoRows) {
		return time.Time{}, r.missOrConflict(ctx, id)
	}
	return confirmedAt, err
}

// RevertLot moves a confirmed lot back to pending.
func (r *Repository) RevertLot(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `UPDATE lots SET state = $2, confirmed_at = NULL
WHERE id = $1 AND state = $3`, id, string(StatePending), string(StateConfirmed))
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return r.missOrConflict(ctx, id)
	}
	return nil
}

// DeleteLot removes a lot and, by cascade, its items.
func (r *Repository) DeleteLot(ctx context.Context, id int64) error {
	tag, err := r.db.Exec(ctx, `DELETE FROM lots WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("lots: lot %d: %w", id, shared.ErrNotFound)
	}
	return nil
}

func (r *Repository) missOrConflict(ctx context.Context, id int64) error {
	var exists bool
	if err := r.db.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM lots WHERE id = $1)`, id).Scan(&exists); err != nil {
		return err
	}
	if !exists {
		return fmt.Errorf("lots: lot %d: %w", id, shared.ErrNotFound)
	}
	return fmt.Errorf("lots: lot %d changed concurrently: %w", id, shared.ErrInvalidTransition)
}
