package discounts

import (
	"context"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
)

type dbtx interface {
	Exec(context.Context, string, ...any) (pgconn.CommandTag, error)
	Query(context.Context, string, ...any) (pgx.Rows, error)
}

// Repository implements Backend on PostgreSQL.
type Repository struct {
	db dbtx
}

// NewRepository constructs Repository. db is usually a *pgxpool.Pool.
func NewRepository(db dbtx) *Repository {
	return &Repository{db: db}
}

// DiscountMappings loads every discount eligible SKU.
func (r *Repository) DiscountMappings(ctx context.Context) ([]Mapping, error) {
	rows, err := r.db.Query(ctx, `SELECT sku, product_id FROM discount_mappings ORDER BY sku`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Mapping
	for rows.Next() {
		var m Mapping
		if err := rows.Scan(&m.SKU, &m.ProductID); err != nil {
			return nil, err
		}
		out = append(out, m)
	}
	return out, rows.Err()
}

// RegisteredOrderIDs returns which of orderIDs already have discount sales.
func (r *Repository) RegisteredOrderIDs(ctx context.Context, orderIDs []string) ([]string, error) {
	rows, err := r.db.Query(ctx, `SELECT DISTINCT order_id FROM discount_sales WHERE order_id = ANY($1) ORDER BY order_id`, orderIDs)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []string
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			return nil, err
		}
		out = append(out, id)
	}
	return out, rows.Err()
}

// DeleteSales removes every sale of the given orders.
func (r *Repository) DeleteSales(ctx context.Context, orderIDs []string) (int64, error) {
	tag, err := r.db.Exec(ctx, `DELETE FROM discount_sales WHERE order_id = ANY($1)`, orderIDs)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}

const insertSales = `INSERT INTO discount_sales (order_id, product_id, channel, sale_date, quantity)
SELECT * FROM unnest($1::text[], $2::bigint[], $3::text[], $4::date[], $5::bigint[])
ON CONFLICT (order_id, product_id) DO NOTHING`

// InsertSales writes records in one statement; rows whose natural key exists
// are skipped.
func (r *Repository) InsertSales(ctx context.Context, records []SaleRecord) (int64, error) {
	orderIDs := make([]string, len(records))
	productIDs := make([]int64, len(records))
	channels := make([]string, len(records))
	dates := make([]time.Time, len(records))
	quantities := make([]int64, len(records))
	for i, rec := range records {
		orderIDs[i] = rec.OrderID
		productIDs[i] = rec.ProductID
		channels[i] = rec.Channel
		dates[i] = rec.Date
		quantities[i] = rec.Quantity
	}
	tag, err := r.db.Exec(ctx, insertSales, orderIDs, productIDs, channels, dates, quantities)
	if err != nil {
		return 0, err
	}
	return tag.RowsAffected(), nil
}
