package audit

import (
	"context"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
)

type querier interface {
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
}

// PgRepository reads audit_logs from PostgreSQL.
type PgRepository struct {
	db querier
}

// NewRepository constructs PgRepository. db is usually a *pgxpool.Pool.
func NewRepository(db querier) *PgRepository {
	return &PgRepository{db: db}
}

// A zero LimitRows reads every matching row.
const timelineWindow = `SELECT occurred_at, actor, action, entity, entity_id, meta
FROM audit_logs
WHERE ($1::timestamptz IS NULL OR occurred_at >= $1)
  AND ($2::timestamptz IS NULL OR occurred_at < $2)
  AND ($3::text IS NULL OR actor = $3)
  AND ($4::text IS NULL OR entity = $4)
  AND ($5::text IS NULL OR entity_id = $5)
  AND ($6::text IS NULL OR action = $6)
ORDER BY occurred_at DESC, id DESC
OFFSET $7
LIMIT NULLIF($8, 0)`

// TimelineWindow implements Repository.
func (r *PgRepository) TimelineWindow(ctx context.Context, arg WindowParams) ([]TimelineRow, error) {
	rows, err := r.db.Query(ctx, timelineWindow,
		arg.FromAt, arg.ToAt, arg.Actor, arg.Entity, arg.EntityID, arg.Action, arg.OffsetRows, arg.LimitRows)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []TimelineRow
	for rows.Next() {
		var (
			row TimelineRow
			at  pgtype.Timestamptz
		)
		if err := rows.Scan(&at, &row.Actor, &row.Action, &row.Entity, &row.EntityID, &row.Meta); err != nil {
			return nil, err
		}
		if at.Valid {
			row.At = at.Time
		}
		out = append(out, row)
	}
	return out, rows.Err()
}
