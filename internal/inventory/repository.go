package inventory

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/rmadesk/rmadesk/internal/platform/db"
)

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
	SendBatch(context.Context, *pgx.Batch) pgx.BatchResults
}

// Repository persists products in PostgreSQL. It implements Backend and
// ProductSource.
type Repository struct {
	pool *pgxpool.Pool
	db   dbtx
}

// NewRepository constructs Repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool, db: pool}
}

const selectProducts = `SELECT id, sku, block, stock_a, stock_b, physical_count, counted_at, units_per_package::float8
FROM products ORDER BY sku`

// Products loads every product row.
func (r *Repository) Products(ctx context.Context) ([]Product, error) {
	rows, err := r.db.Query(ctx, selectProducts)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var products []Product
	for rows.Next() {
		var p Product
		if err := rows.Scan(&p.ID, &p.SKU, &p.Block, &p.StockA, &p.StockB, &p.PhysicalCount, &p.CountedAt, &p.UnitsPerPackage); err != nil {
			return nil, err
		}
		products = append(products, p)
	}
	return products, rows.Err()
}

// ReplaceAccountStock overwrites one account column for the given products in
// a single transaction.
func (r *Repository) ReplaceAccountStock(ctx context.Context, account Account, updates []StockUpdate) error {
	column, err := accountColumn(account)
	if err != nil {
		return err
	}
	query := fmt.Sprintf(`UPDATE products SET %s = $2, updated_at = now() WHERE id = $1`, column)
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, u := range updates {
			batch.Queue(query, u.ProductID, u.Quantity)
		}
		return execBatch(ctx, tx, batch, len(updates))
	})
}

// ClearAccount zeroes one account column for all products.
func (r *Repository) ClearAccount(ctx context.Context, account Account) error {
	column, err := accountColumn(account)
	if err != nil {
		return err
	}
	_, err = r.db.Exec(ctx, fmt.Sprintf(`UPDATE products SET %s = 0, updated_at = now()`, column))
	return err
}

// SaveCounts stores a physical count batch. Every entry was set by the
// operator, so counted_at is stamped for counts and cleared with them.
func (r *Repository) SaveCounts(ctx context.Context, entries []CountEntry) error {
	const query = `UPDATE products
SET physical_count = $2::bigint,
    counted_at = CASE WHEN $2::bigint IS NULL THEN NULL ELSE now() END,
    updated_at = now()
WHERE id = $1`
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		batch := &pgx.Batch{}
		for _, e := range entries {
			batch.Queue(query, e.ProductID, e.Quantity)
		}
		return execBatch(ctx, tx, batch, len(entries))
	})
}

// ResetCounts sets every physical count to zero and clears counted_at.
func (r *Repository) ResetCounts(ctx context.Context) error {
	_, err := r.db.Exec(ctx, `UPDATE products SET physical_count = 0, counted_at = NULL, updated_at = now()`)
	return err
}

func execBatch(ctx context.Context, tx pgx.Tx, batch *pgx.Batch, n int) error {
	results := tx.SendBatch(ctx, batch)
	for i := 0; i < n; i++ {
		if _, err := results.Exec(); err != nil {
			_ = results.Close()
			return err
		}
	}
	return results.Close()
}

func accountColumn(account Account) (string, error) {
	switch account {
	case AccountA:
		return "stock_a", nil
	case AccountB:
		return "stock_b", nil
	}
	return "", fmt.Errorf("%w: %q", ErrUnknownAccount, account)
}
