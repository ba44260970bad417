package audit

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Query is the filter set passed to the store. Invalid fields match all rows.
type Query struct {
	FromAt   pgtype.Timestamptz
	ToAt     pgtype.Timestamptz
	Actor    pgtype.Text
	Entity   pgtype.Text
	EntityID pgtype.Text
	Action   pgtype.Text
	Offset   int32
	// Limit of zero returns every matching row.
	Limit int32
}

// PGRepository reads audit_logs.
type PGRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PGRepository.
func NewRepository(pool *pgxpool.Pool) *PGRepository {
	return &PGRepository{pool: pool}
}

const timelineSQL = `
SELECT occurred_at, actor, action, entity, entity_id, COALESCE(meta::text, '')
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

// Timeline returns entries newest first.
func (r *PGRepository) Timeline(ctx context.Context, q Query) ([]TimelineRow, error) {
	rows, err := r.pool.Query(ctx, timelineSQL,
		q.FromAt, q.ToAt, q.Actor, q.Entity, q.EntityID, q.Action, q.Offset, q.Limit)
	if err != nil {
		return nil, fmt.Errorf("audit: timeline: %w", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (TimelineRow, error) {
		var (
			out  TimelineRow
			meta string
		)
		if err := row.Scan(&out.At, &out.Actor, &out.Action, &out.Entity, &out.EntityID, &meta); err != nil {
			return TimelineRow{}, err
		}
		if meta != "" && meta != "null" {
			// A malformed meta blob only loses the detail, not the entry.
			_ = json.Unmarshal([]byte(meta), &out.Meta)
		}
		return out, nil
	})
}
