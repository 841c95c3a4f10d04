package database

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"spoon/internal/model"
	"spoon/internal/slots"
)

const slotColumns = `id, restaurant_id, menu_template_id, start_time, end_time, anchor_date,
	recurrence, exception_dates, status, created_at, updated_at`

type slotStore struct {
	ex execer
}

func scanSlot(row scanner) (*model.ScheduleSlot, error) {
	var (
		s          model.ScheduleSlot
		exceptions string
	)
	if err := row.Scan(&s.ID, &s.RestaurantID, &s.MenuTemplateID, &s.StartTime, &s.EndTime, &s.AnchorDate,
		&s.Recurrence, &exceptions, &s.Status, &s.CreatedAt, &s.UpdatedAt); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(exceptions), &s.ExceptionDates); err != nil {
		return nil, fmt.Errorf("decode exception dates of slot %d: %w", s.ID, err)
	}
	s.NormalizeExceptions()
	return &s, nil
}

func (st slotStore) GetSlot(ctx context.Context, id int64) (*model.ScheduleSlot, error) {
	row := st.ex.QueryRowContext(ctx, `SELECT `+slotColumns+` FROM schedule_slots WHERE id = ?`, id)
	s, err := scanSlot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("slot %d: %w", id, model.ErrNotFound)
	}
	if err != nil {
		return nil, model.Persistence("get slot", err)
	}
	return s, nil
}

func (st slotStore) querySlots(ctx context.Context, op, query string, args ...any) ([]model.ScheduleSlot, error) {
	rows, err := st.ex.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, model.Persistence(op, err)
	}
	defer rows.Close()

	var out []model.ScheduleSlot
	for rows.Next() {
		s, err := scanSlot(rows)
		if err != nil {
			return nil, model.Persistence(op, err)
		}
		out = append(out, *s)
	}
	if err := rows.Err(); err != nil {
		return nil, model.Persistence(op, err)
	}
	return out, nil
}

func (st slotStore) LoadActiveSlots(ctx context.Context, restaurantID int64) ([]model.ScheduleSlot, error) {
	return st.querySlots(ctx, "load active slots",
		`SELECT `+slotColumns+` FROM schedule_slots WHERE restaurant_id = ? AND status = ? ORDER BY id`,
		restaurantID, model.SlotActive)
}

func (st slotStore) ListSlots(ctx context.Context, restaurantID int64) ([]model.ScheduleSlot, error) {
	return st.querySlots(ctx, "list slots",
		`SELECT `+slotColumns+` FROM schedule_slots WHERE restaurant_id = ? ORDER BY id`, restaurantID)
}

// SaveSlot inserts a new slot or updates an existing one. Saving a slot
// identical to the stored row writes nothing.
func (st slotStore) SaveSlot(ctx context.Context, slot *model.ScheduleSlot) error {
	slot.NormalizeExceptions()
	exceptions, err := json.Marshal(slot.ExceptionDates)
	if err != nil {
		return fmt.Errorf("encode exception dates: %w", err)
	}
	now := time.Now().UTC()

	if slot.ID == 0 {
		res, err := st.ex.ExecContext(ctx, `
			INSERT INTO schedule_slots (restaurant_id, menu_template_id, start_time, end_time, anchor_date,
				recurrence, exception_dates, status, created_at, updated_at)
			VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
			slot.RestaurantID, slot.MenuTemplateID, slot.StartTime, slot.EndTime, slot.AnchorDate,
			slot.Recurrence, string(exceptions), slot.Status, now, now)
		if err != nil {
			return model.Persistence("insert slot", err)
		}
		id, err := res.LastInsertId()
		if err != nil {
			return model.Persistence("insert slot", err)
		}
		slot.ID = id
		slot.CreatedAt = now
		slot.UpdatedAt = now
		return nil
	}

	current, err := st.GetSlot(ctx, slot.ID)
	if err != nil {
		return err
	}
	slot.CreatedAt = current.CreatedAt
	if sameSlot(current, slot) {
		slot.UpdatedAt = current.UpdatedAt
		return nil
	}

	_, err = st.ex.ExecContext(ctx, `
		UPDATE schedule_slots
		SET restaurant_id = ?, menu_template_id = ?, start_time = ?, end_time = ?, anchor_date = ?,
			recurrence = ?, exception_dates = ?, status = ?, updated_at = ?
		WHERE id = ?`,
		slot.RestaurantID, slot.MenuTemplateID, slot.StartTime, slot.EndTime, slot.AnchorDate,
		slot.Recurrence, string(exceptions), slot.Status, now, slot.ID)
	if err != nil {
		return model.Persistence("update slot", err)
	}
	slot.UpdatedAt = now
	return nil
}

func sameSlot(a, b *model.ScheduleSlot) bool {
	if a.RestaurantID != b.RestaurantID || a.MenuTemplateID != b.MenuTemplateID ||
		a.StartTime != b.StartTime || a.EndTime != b.EndTime || a.AnchorDate != b.AnchorDate ||
		a.Recurrence != b.Recurrence || a.Status != b.Status ||
		len(a.ExceptionDates) != len(b.ExceptionDates) {
		return false
	}
	for i := range a.ExceptionDates {
		if a.ExceptionDates[i] != b.ExceptionDates[i] {
			return false
		}
	}
	return true
}

func (db *DB) GetSlot(ctx context.Context, id int64) (*model.ScheduleSlot, error) {
	return slotStore{db.DB}.GetSlot(ctx, id)
}

func (db *DB) LoadActiveSlots(ctx context.Context, restaurantID int64) ([]model.ScheduleSlot, error) {
	return slotStore{db.DB}.LoadActiveSlots(ctx, restaurantID)
}

func (db *DB) ListSlots(ctx context.Context, restaurantID int64) ([]model.ScheduleSlot, error) {
	return slotStore{db.DB}.ListSlots(ctx, restaurantID)
}

func (db *DB) SaveSlot(ctx context.Context, slot *model.ScheduleSlot) error {
	return slotStore{db.DB}.SaveSlot(ctx, slot)
}

// WithSlotLock serialises slot writes of one restaurant: an in-process lock
// plus an immediate transaction that fn's store is bound to.
func (db *DB) WithSlotLock(ctx context.Context, restaurantID int64, fn func(ctx context.Context, store slots.Store) error) error {
	unlock := db.locks.lock(restaurantID)
	defer unlock()

	return db.withTx(ctx, func(tx *sql.Tx) error {
		return fn(ctx, slotStore{tx})
	})
}
