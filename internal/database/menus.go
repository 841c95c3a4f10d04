package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"spoon/internal/model"
)

const menuColumns = `id, restaurant_id, menu_date, name, status, created_at, updated_at`

func scanMenu(row scanner) (*model.DailyMenu, error) {
	var m model.DailyMenu
	if err := row.Scan(&m.ID, &m.RestaurantID, &m.MenuDate, &m.Name, &m.Status, &m.CreatedAt, &m.UpdatedAt); err != nil {
		return nil, err
	}
	return &m, nil
}

// CreateMenu inserts a menu. Status defaults to draft.
func (db *DB) CreateMenu(ctx context.Context, menu *model.DailyMenu) error {
	if menu.Status == "" {
		menu.Status = model.MenuDraft
	}
	now := time.Now().UTC()

	res, err := db.ExecContext(ctx, `
		INSERT INTO daily_menus (restaurant_id, menu_date, name, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		menu.RestaurantID, menu.MenuDate, menu.Name, menu.Status, now, now)
	if err != nil {
		if isUniqueViolation(err) {
			return fmt.Errorf("menu for %s: %w", menu.MenuDate, model.ErrAlreadyPublished)
		}
		return model.Persistence("insert menu", err)
	}
	id, err := res.LastInsertId()
	if err != nil {
		return model.Persistence("insert menu", err)
	}
	menu.ID = id
	menu.CreatedAt = now
	menu.UpdatedAt = now
	return nil
}

func (db *DB) GetMenu(ctx context.Context, id int64) (*model.DailyMenu, error) {
	row := db.QueryRowContext(ctx, `SELECT `+menuColumns+` FROM daily_menus WHERE id = ?`, id)
	m, err := scanMenu(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("menu %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, model.Persistence("get menu", err)
	}
	return m, nil
}

// FindPublished returns the published menu of a restaurant and date, or nil.
func (db *DB) FindPublished(ctx context.Context, restaurantID int64, date model.Date) (*model.DailyMenu, error) {
	row := db.QueryRowContext(ctx, `
		SELECT `+menuColumns+` FROM daily_menus
		WHERE restaurant_id = ? AND menu_date = ? AND status = ?`,
		restaurantID, date, model.MenuPublished)
	m, err := scanMenu(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, model.Persistence("find published menu", err)
	}
	return m, nil
}

func (db *DB) queryMenus(ctx context.Context, op, query string, args ...any) ([]model.DailyMenu, error) {
	rows, err := db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.Persistence(op, err)
	}
	defer rows.Close()

	var out []model.DailyMenu
	for rows.Next() {
		m, err := scanMenu(rows)
		if err != nil {
			return nil, model.Persistence(op, err)
		}
		out = append(out, *m)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence(op, err)
	}
	return out, nil
}

// LoadMenusBefore lists a restaurant's menus dated strictly before date whose
// status is one of statuses, oldest first.
func (db *DB) LoadMenusBefore(ctx context.Context, restaurantID int64, date model.Date, statuses []model.MenuStatus) ([]model.DailyMenu, error) {
	if len(statuses) == 0 {
		return nil, nil
	}
	args := []any{restaurantID, date}
	for _, s := range statuses {
		args = append(args, s)
	}
	return db.queryMenus(ctx, "load menus before", `
		SELECT `+menuColumns+` FROM daily_menus
		WHERE restaurant_id = ? AND menu_date < ? AND status IN (`+placeholders(len(statuses))+`)
		ORDER BY menu_date, id`, args...)
}

// LoadArchivedWithCombinations lists archived menus before date that still
// own at least one combination.
func (db *DB) LoadArchivedWithCombinations(ctx context.Context, restaurantID int64, before model.Date) ([]model.DailyMenu, error) {
	return db.queryMenus(ctx, "load unpurged menus", `
		SELECT `+menuColumns+` FROM daily_menus m
		WHERE m.restaurant_id = ? AND m.menu_date < ? AND m.status = ?
			AND EXISTS (SELECT 1 FROM menu_combinations c WHERE c.daily_menu_id = m.id)
		ORDER BY m.menu_date, m.id`,
		restaurantID, before, model.MenuArchived)
}

// ListMenus lists a restaurant's menus dated within [from, to].
func (db *DB) ListMenus(ctx context.Context, restaurantID int64, from, to model.Date) ([]model.DailyMenu, error) {
	return db.queryMenus(ctx, "list menus", `
		SELECT `+menuColumns+` FROM daily_menus
		WHERE restaurant_id = ? AND menu_date >= ? AND menu_date <= ?
		ORDER BY menu_date, id`,
		restaurantID, from, to)
}

// SetMenuStatus moves menu id from one status to another. It returns false
// when the row is no longer in the from status. A second published menu for
// the same restaurant and date violates the partial unique index and is
// reported as model.ErrAlreadyPublished.
func (db *DB) SetMenuStatus(ctx context.Context, id int64, from, to model.MenuStatus) (bool, error) {
	res, err := db.ExecContext(ctx,
		`UPDATE daily_menus SET status = ?, updated_at = ? WHERE id = ? AND status = ?`,
		to, time.Now().UTC(), id, from)
	if err != nil {
		if isUniqueViolation(err) {
			return false, fmt.Errorf("menu %d: %w", id, model.ErrAlreadyPublished)
		}
		return false, model.Persistence("set menu status", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return false, model.Persistence("set menu status", err)
	}
	if n > 0 {
		return true, nil
	}

	if _, err := db.GetMenu(ctx, id); err != nil {
		return false, err
	}
	return false, nil
}

// CountChildren counts combinations and side associations owned by menuIDs.
func (db *DB) CountChildren(ctx context.Context, menuIDs []int64) (combinations, sides int, err error) {
	if len(menuIDs) == 0 {
		return 0, 0, nil
	}
	args := make([]any, 0, len(menuIDs))
	for _, id := range menuIDs {
		args = append(args, id)
	}
	in := placeholders(len(menuIDs))

	err = db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM menu_combinations WHERE daily_menu_id IN (`+in+`)),
			(SELECT COUNT(*) FROM combination_sides s
				JOIN menu_combinations c ON c.id = s.combination_id
				WHERE c.daily_menu_id IN (`+in+`))`,
		append(args, args...)...).Scan(&combinations, &sides)
	if err != nil {
		return 0, 0, model.Persistence("count menu children", err)
	}
	return combinations, sides, nil
}
