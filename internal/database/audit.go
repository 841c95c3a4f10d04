package database

import (
	"context"
	"time"

	"spoon/internal/model"
)

// RecordPurge appends one purge audit entry.
func (db *DB) RecordPurge(ctx context.Context, rec *model.PurgeRecord) error {
	if rec.PurgedAt.IsZero() {
		rec.PurgedAt = time.Now().UTC()
	}
	res, err := db.ExecContext(ctx, `
		INSERT INTO purge_audit (run_id, restaurant_id, menu_id, menu_date, combinations, sides, purged_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)`,
		rec.RunID, rec.RestaurantID, rec.MenuID, rec.MenuDate, rec.Combinations, rec.Sides, rec.PurgedAt)
	if err != nil {
		return model.Persistence("insert purge audit", err)
	}
	rec.ID, _ = res.LastInsertId()
	return nil
}

// ListPurgeRecords returns audit entries purged within [from, to).
func (db *DB) ListPurgeRecords(ctx context.Context, from, to time.Time) ([]model.PurgeRecord, error) {
	rows, err := db.QueryContext(ctx, `
		SELECT id, run_id, restaurant_id, menu_id, menu_date, combinations, sides, purged_at
		FROM purge_audit
		WHERE purged_at >= ? AND purged_at < ?
		ORDER BY purged_at, id`,
		from.UTC(), to.UTC())
	if err != nil {
		return nil, model.Persistence("list purge audit", err)
	}
	defer rows.Close()

	var out []model.PurgeRecord
	for rows.Next() {
		var r model.PurgeRecord
		if err := rows.Scan(&r.ID, &r.RunID, &r.RestaurantID, &r.MenuID, &r.MenuDate,
			&r.Combinations, &r.Sides, &r.PurgedAt); err != nil {
			return nil, model.Persistence("list purge audit", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("list purge audit", err)
	}
	return out, nil
}
