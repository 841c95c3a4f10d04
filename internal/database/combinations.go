package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spoon/internal/model"
)

// CombinationFlag names a boolean column operators can flip.
type CombinationFlag string

const (
	FlagFeatured  CombinationFlag = "is_featured"
	FlagAvailable CombinationFlag = "is_available"
)

const combinationColumns = `id, daily_menu_id, entrada_id, principio_id, proteina_id, bebida_id,
	base_price, special_price, current_quantity, is_available, is_featured, created_at, updated_at`

func scanCombination(row scanner) (*model.MenuCombination, error) {
	var (
		c                          model.MenuCombination
		entrada, principio, bebida sql.NullInt64
		special                    sql.NullFloat64
	)
	if err := row.Scan(&c.ID, &c.DailyMenuID, &entrada, &principio, &c.ProteinaID, &bebida,
		&c.BasePrice, &special, &c.CurrentQuantity, &c.IsAvailable, &c.IsFeatured, &c.CreatedAt, &c.UpdatedAt); err != nil {
		return nil, err
	}
	c.EntradaID = int64Ptr(entrada)
	c.PrincipioID = int64Ptr(principio)
	c.BebidaID = int64Ptr(bebida)
	if special.Valid {
		v := special.Float64
		c.SpecialPrice = &v
	}
	return &c, nil
}

func int64Ptr(v sql.NullInt64) *int64 {
	if !v.Valid {
		return nil
	}
	n := v.Int64
	return &n
}

func nullInt64(p *int64) sql.NullInt64 {
	if p == nil {
		return sql.NullInt64{}
	}
	return sql.NullInt64{Int64: *p, Valid: true}
}

func nullFloat64(p *float64) sql.NullFloat64 {
	if p == nil {
		return sql.NullFloat64{}
	}
	return sql.NullFloat64{Float64: *p, Valid: true}
}

// CreateCombination writes a combination and its sides in one transaction.
func (db *DB) CreateCombination(ctx context.Context, c *model.MenuCombination) error {
	now := time.Now().UTC()

	err := db.withTx(ctx, func(tx *sql.Tx) error {
		res, err := tx.ExecContext(ctx, `
			INSERT INTO menu_combinations (daily_menu_id, entrada_id, principio_id, proteina_id, bebida_id,
				base_price, special_price, current_quantity, is_available, is_featured, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			c.DailyMenuID, nullInt64(c.EntradaID), nullInt64(c.PrincipioID), c.ProteinaID, nullInt64(c.BebidaID),
			c.BasePrice, nullFloat64(c.SpecialPrice), c.CurrentQuantity, c.IsAvailable, c.IsFeatured, now, now)
		if err != nil {
			return model.Persistence("insert combination", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return model.Persistence("insert combination", err)
		}

		for _, side := range c.Sides {
			if _, err := tx.ExecContext(ctx,
				`INSERT INTO combination_sides (combination_id, product_id, quantity) VALUES (?, ?, ?)`,
				id, side.ProductID, side.Quantity); err != nil {
				return model.Persistence("insert combination side", err)
			}
		}
		c.ID = id
		return nil
	})
	if err != nil {
		return err
	}

	c.CreatedAt = now
	c.UpdatedAt = now
	return nil
}

func (db *DB) GetCombination(ctx context.Context, id int64) (*model.MenuCombination, error) {
	row := db.QueryRowContext(ctx, `SELECT `+combinationColumns+` FROM menu_combinations WHERE id = ?`, id)
	c, err := scanCombination(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("combination %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, model.Persistence("get combination", err)
	}

	c.Sides, err = db.loadSides(ctx, id)
	if err != nil {
		return nil, err
	}
	return c, nil
}

// ListCombinations returns a menu's combinations with their sides.
func (db *DB) ListCombinations(ctx context.Context, menuID int64) ([]model.MenuCombination, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT `+combinationColumns+` FROM menu_combinations WHERE daily_menu_id = ? ORDER BY id`, menuID)
	if err != nil {
		return nil, model.Persistence("list combinations", err)
	}
	defer rows.Close()

	var out []model.MenuCombination
	for rows.Next() {
		c, err := scanCombination(rows)
		if err != nil {
			return nil, model.Persistence("list combinations", err)
		}
		out = append(out, *c)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("list combinations", err)
	}
	rows.Close()

	for i := range out {
		if out[i].Sides, err = db.loadSides(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (db *DB) loadSides(ctx context.Context, combinationID int64) ([]model.Side, error) {
	rows, err := db.QueryContext(ctx,
		`SELECT product_id, quantity FROM combination_sides WHERE combination_id = ? ORDER BY id`, combinationID)
	if err != nil {
		return nil, model.Persistence("load sides", err)
	}
	defer rows.Close()

	sides := []model.Side{}
	for rows.Next() {
		var s model.Side
		if err := rows.Scan(&s.ProductID, &s.Quantity); err != nil {
			return nil, model.Persistence("load sides", err)
		}
		sides = append(sides, s)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("load sides", err)
	}
	return sides, nil
}

// SetCombinationFlag sets flag to value and stamps updated_at. It reports
// whether the stored value changed; setting the current value writes nothing.
func (db *DB) SetCombinationFlag(ctx context.Context, id int64, flag CombinationFlag, value bool, at time.Time) (bool, error) {
	if flag != FlagFeatured && flag != FlagAvailable {
		return false, fmt.Errorf("%w: unknown combination flag %q", model.ErrValidation, flag)
	}

	res, err := db.ExecContext(ctx,
		`UPDATE menu_combinations SET `+string(flag)+` = ?, updated_at = ? WHERE id = ? AND `+string(flag)+` != ?`,
		value, at.UTC(), id, value)
	if err != nil {
		return false, model.Persistence("set combination flag", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, model.Persistence("set combination flag", err)
	}
	if n > 0 {
		return true, nil
	}

	var exists int
	err = db.QueryRowContext(ctx, `SELECT COUNT(*) FROM menu_combinations WHERE id = ?`, id).Scan(&exists)
	if err != nil {
		return false, model.Persistence("set combination flag", err)
	}
	if exists == 0 {
		return false, fmt.Errorf("combination %d: %w", id, model.ErrNotFound)
	}
	return false, nil
}

// ListCombinationIDs returns the ids of a menu's combinations.
func (db *DB) ListCombinationIDs(ctx context.Context, menuID int64) ([]int64, error) {
	rows, err := db.QueryContext(ctx, `SELECT id FROM menu_combinations WHERE daily_menu_id = ? ORDER BY id`, menuID)
	if err != nil {
		return nil, model.Persistence("list combination ids", err)
	}
	defer rows.Close()

	var ids []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, model.Persistence("list combination ids", err)
		}
		ids = append(ids, id)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence("list combination ids", err)
	}
	return ids, nil
}

// DeleteCombinationSides removes a combination's side associations and
// returns how many were deleted.
func (db *DB) DeleteCombinationSides(ctx context.Context, combinationID int64) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM combination_sides WHERE combination_id = ?`, combinationID)
	if err != nil {
		return 0, model.Persistence("delete combination sides", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, model.Persistence("delete combination sides", err)
	}
	return n, nil
}

// DeleteCombination removes one combination. Its sides must be gone first;
// the foreign key rejects the delete otherwise. Deleting a missing row is a no-op.
func (db *DB) DeleteCombination(ctx context.Context, id int64) (int64, error) {
	res, err := db.ExecContext(ctx, `DELETE FROM menu_combinations WHERE id = ?`, id)
	if err != nil {
		return 0, model.Persistence("delete combination", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, model.Persistence("delete combination", err)
	}
	return n, nil
}
