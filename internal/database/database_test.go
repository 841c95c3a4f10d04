package database

import (
	"context"
	"errors"
	"io"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spoon/internal/config"
	"spoon/internal/model"
	"spoon/internal/slots"
)

func newTestDB(t *testing.T) *DB {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := NewDB(filepath.Join(t.TempDir(), "test.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return db
}

func date(y int, m time.Month, d int) model.Date {
	return model.NewDate(y, m, d)
}

func testSlot() *model.ScheduleSlot {
	return &model.ScheduleSlot{
		RestaurantID:   1,
		MenuTemplateID: 3,
		StartTime:      "12:00",
		EndTime:        "15:00",
		AnchorDate:     date(2025, time.January, 6),
		Recurrence:     model.RecurrenceWeekly,
		ExceptionDates: []model.Date{date(2025, time.January, 20), date(2025, time.January, 13)},
		Status:         model.SlotActive,
	}
}

func TestNewDB_Reopen(t *testing.T) {
	logger := zerolog.New(io.Discard)
	path := filepath.Join(t.TempDir(), "nested", "menu.db")

	db, err := NewDB(path, &logger)
	require.NoError(t, err)
	require.NoError(t, db.Close())

	db, err = NewDB(path, &logger)
	require.NoError(t, err)
	assert.Equal(t, path, db.Path())
	require.NoError(t, db.Close())
}

func TestSlots_SaveAndLoad(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s := testSlot()
	require.NoError(t, db.SaveSlot(ctx, s))
	require.NotZero(t, s.ID)

	got, err := db.GetSlot(ctx, s.ID)
	require.NoError(t, err)
	assert.Equal(t, "12:00", got.StartTime)
	assert.Equal(t, model.RecurrenceWeekly, got.Recurrence)
	assert.Equal(t, date(2025, time.January, 6), got.AnchorDate)
	assert.Equal(t, []model.Date{date(2025, time.January, 13), date(2025, time.January, 20)}, got.ExceptionDates)

	_, err = db.GetSlot(ctx, 999)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestSlots_RoundTripIsStable(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	require.NoError(t, db.SaveSlot(ctx, testSlot()))
	other := testSlot()
	other.StartTime, other.EndTime = "18:00", "21:00"
	other.ExceptionDates = nil
	other.Recurrence = model.RecurrenceDaily
	require.NoError(t, db.SaveSlot(ctx, other))

	first, err := db.LoadActiveSlots(ctx, 1)
	require.NoError(t, err)
	require.Len(t, first, 2)

	for i := range first {
		s := first[i]
		require.NoError(t, db.SaveSlot(ctx, &s))
	}

	second, err := db.LoadActiveSlots(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, first, second)
}

func TestSlots_UpdateAndActiveFilter(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	s := testSlot()
	require.NoError(t, db.SaveSlot(ctx, s))
	created := s.CreatedAt

	s.Status = model.SlotInactive
	require.NoError(t, db.SaveSlot(ctx, s))
	assert.Equal(t, created, s.CreatedAt)

	active, err := db.LoadActiveSlots(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, active)

	all, err := db.ListSlots(ctx, 1)
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, model.SlotInactive, all[0].Status)

	missing := testSlot()
	missing.ID = 404
	assert.ErrorIs(t, db.SaveSlot(ctx, missing), model.ErrNotFound)
}

func TestWithSlotLock_RollsBackOnError(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	boom := errors.New("boom")

	err := db.WithSlotLock(ctx, 1, func(ctx context.Context, store slots.Store) error {
		require.NoError(t, store.SaveSlot(ctx, testSlot()))
		return boom
	})
	assert.ErrorIs(t, err, boom)

	all, err := db.ListSlots(ctx, 1)
	require.NoError(t, err)
	assert.Empty(t, all)

	err = db.WithSlotLock(ctx, 1, func(ctx context.Context, store slots.Store) error {
		return store.SaveSlot(ctx, testSlot())
	})
	require.NoError(t, err)

	all, err = db.ListSlots(ctx, 1)
	require.NoError(t, err)
	assert.Len(t, all, 1)
}

func seedMenu(t *testing.T, db *DB, restaurantID int64, d model.Date, status model.MenuStatus) *model.DailyMenu {
	t.Helper()
	m := &model.DailyMenu{RestaurantID: restaurantID, MenuDate: d, Name: "Almuerzo " + d.String(), Status: status}
	require.NoError(t, db.CreateMenu(context.Background(), m))
	return m
}

func seedCombination(t *testing.T, db *DB, menuID int64, sides int) *model.MenuCombination {
	t.Helper()
	c := &model.MenuCombination{
		DailyMenuID: menuID,
		ProteinaID:  100,
		BasePrice:   15000,
		IsAvailable: true,
	}
	for i := 0; i < sides; i++ {
		c.Sides = append(c.Sides, model.Side{ProductID: int64(200 + i), Quantity: 1})
	}
	require.NoError(t, db.CreateCombination(context.Background(), c))
	return c
}

func TestMenus_PublishedUniqueness(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	d := date(2025, time.January, 10)

	a := seedMenu(t, db, 1, d, model.MenuDraft)
	b := seedMenu(t, db, 1, d, model.MenuDraft)
	other := seedMenu(t, db, 2, d, model.MenuDraft)

	ok, err := db.SetMenuStatus(ctx, a.ID, model.MenuDraft, model.MenuPublished)
	require.NoError(t, err)
	assert.True(t, ok)

	_, err = db.SetMenuStatus(ctx, b.ID, model.MenuDraft, model.MenuPublished)
	assert.ErrorIs(t, err, model.ErrAlreadyPublished)

	ok, err = db.SetMenuStatus(ctx, other.ID, model.MenuDraft, model.MenuPublished)
	require.NoError(t, err)
	assert.True(t, ok, "another restaurant may publish the same date")

	published, err := db.FindPublished(ctx, 1, d)
	require.NoError(t, err)
	require.NotNil(t, published)
	assert.Equal(t, a.ID, published.ID)

	none, err := db.FindPublished(ctx, 1, d.AddDays(1))
	require.NoError(t, err)
	assert.Nil(t, none)
}

func TestMenus_SetMenuStatusGuard(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	m := seedMenu(t, db, 1, date(2025, time.January, 10), model.MenuDraft)

	ok, err := db.SetMenuStatus(ctx, m.ID, model.MenuPublished, model.MenuArchived)
	require.NoError(t, err)
	assert.False(t, ok)

	got, err := db.GetMenu(ctx, m.ID)
	require.NoError(t, err)
	assert.Equal(t, model.MenuDraft, got.Status)

	_, err = db.SetMenuStatus(ctx, 404, model.MenuDraft, model.MenuArchived)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = db.GetMenu(ctx, 404)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestMenus_LoadMenusBefore(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	old := seedMenu(t, db, 1, date(2025, time.January, 8), model.MenuDraft)
	pub := seedMenu(t, db, 1, date(2025, time.January, 10), model.MenuPublished)
	seedMenu(t, db, 1, date(2025, time.January, 9), model.MenuArchived)
	seedMenu(t, db, 1, date(2025, time.January, 12), model.MenuDraft)
	seedMenu(t, db, 2, date(2025, time.January, 8), model.MenuDraft)

	menus, err := db.LoadMenusBefore(ctx, 1, date(2025, time.January, 12),
		[]model.MenuStatus{model.MenuDraft, model.MenuPublished})
	require.NoError(t, err)
	require.Len(t, menus, 2)
	assert.Equal(t, old.ID, menus[0].ID)
	assert.Equal(t, pub.ID, menus[1].ID)

	menus, err = db.LoadMenusBefore(ctx, 1, date(2025, time.January, 12), nil)
	require.NoError(t, err)
	assert.Empty(t, menus)

	listed, err := db.ListMenus(ctx, 1, date(2025, time.January, 9), date(2025, time.January, 12))
	require.NoError(t, err)
	assert.Len(t, listed, 3)
}

func TestCombinations_CreateGetAndFlags(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	m := seedMenu(t, db, 1, date(2025, time.January, 10), model.MenuDraft)

	entrada := int64(11)
	special := 12000.0
	c := &model.MenuCombination{
		DailyMenuID:  m.ID,
		EntradaID:    &entrada,
		ProteinaID:   100,
		BasePrice:    15000,
		SpecialPrice: &special,
		IsAvailable:  true,
		Sides:        []model.Side{{ProductID: 201, Quantity: 2}},
	}
	require.NoError(t, db.CreateCombination(ctx, c))

	got, err := db.GetCombination(ctx, c.ID)
	require.NoError(t, err)
	require.NotNil(t, got.EntradaID)
	assert.Equal(t, int64(11), *got.EntradaID)
	assert.Nil(t, got.PrincipioID)
	assert.Nil(t, got.BebidaID)
	assert.Equal(t, 12000.0, got.EffectivePrice())
	assert.Equal(t, []model.Side{{ProductID: 201, Quantity: 2}}, got.Sides)

	changed, err := db.SetCombinationFlag(ctx, c.ID, FlagFeatured, true, time.Now())
	require.NoError(t, err)
	assert.True(t, changed)

	changed, err = db.SetCombinationFlag(ctx, c.ID, FlagFeatured, true, time.Now())
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = db.SetCombinationFlag(ctx, 404, FlagAvailable, false, time.Now())
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = db.SetCombinationFlag(ctx, c.ID, CombinationFlag("price; DROP TABLE x"), true, time.Now())
	assert.ErrorIs(t, err, model.ErrValidation)

	list, err := db.ListCombinations(ctx, m.ID)
	require.NoError(t, err)
	require.Len(t, list, 1)
	assert.True(t, list[0].IsFeatured)

	_, err = db.GetCombination(ctx, 404)
	assert.ErrorIs(t, err, model.ErrNotFound)
}

func TestCombinations_DeleteOrder(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	m := seedMenu(t, db, 1, date(2025, time.January, 10), model.MenuArchived)
	c := seedCombination(t, db, m.ID, 3)

	_, err := db.DeleteCombination(ctx, c.ID)
	assert.ErrorIs(t, err, model.ErrPersistence, "sides still reference the combination")

	combos, sides, err := db.CountChildren(ctx, []int64{m.ID})
	require.NoError(t, err)
	assert.Equal(t, 1, combos)
	assert.Equal(t, 3, sides)

	n, err := db.DeleteCombinationSides(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(3), n)
	n, err = db.DeleteCombination(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)
	n, err = db.DeleteCombination(ctx, c.ID)
	require.NoError(t, err, "deleting twice is a no-op")
	assert.Zero(t, n)

	ids, err := db.ListCombinationIDs(ctx, m.ID)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestMenus_LoadArchivedWithCombinations(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	withChildren := seedMenu(t, db, 1, date(2025, time.January, 8), model.MenuArchived)
	seedCombination(t, db, withChildren.ID, 1)
	seedMenu(t, db, 1, date(2025, time.January, 9), model.MenuArchived)
	draft := seedMenu(t, db, 1, date(2025, time.January, 9), model.MenuDraft)
	seedCombination(t, db, draft.ID, 1)

	menus, err := db.LoadArchivedWithCombinations(ctx, 1, date(2025, time.January, 12))
	require.NoError(t, err)
	require.Len(t, menus, 1)
	assert.Equal(t, withChildren.ID, menus[0].ID)

	combos, sides, err := db.CountChildren(ctx, nil)
	require.NoError(t, err)
	assert.Zero(t, combos)
	assert.Zero(t, sides)
}

func TestPurgeAudit(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	at := time.Date(2025, 1, 12, 8, 0, 0, 0, time.UTC)

	rec := &model.PurgeRecord{
		RunID: "run-1", RestaurantID: 1, MenuID: 5, MenuDate: date(2025, time.January, 10),
		Combinations: 2, Sides: 4, PurgedAt: at,
	}
	require.NoError(t, db.RecordPurge(ctx, rec))
	assert.NotZero(t, rec.ID)

	got, err := db.ListPurgeRecords(ctx, at.Add(-time.Hour), at.Add(time.Hour))
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "run-1", got[0].RunID)
	assert.Equal(t, date(2025, time.January, 10), got[0].MenuDate)
	assert.Equal(t, 4, got[0].Sides)
	assert.True(t, at.Equal(got[0].PurgedAt))

	got, err = db.ListPurgeRecords(ctx, at.Add(time.Hour), at.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestBackupService(t *testing.T) {
	db := newTestDB(t)
	logger := zerolog.New(io.Discard)
	dir := filepath.Join(t.TempDir(), "backups")

	seedMenu(t, db, 1, date(2025, time.January, 10), model.MenuDraft)

	svc := NewBackupService(db, config.BackupConfig{Enabled: true, StoragePath: dir, RetentionDays: 7}, &logger)

	path, err := svc.PerformBackup(context.Background())
	require.NoError(t, err)
	assert.FileExists(t, path)

	copyDB, err := NewDB(path, &logger)
	require.NoError(t, err)
	defer copyDB.Close()
	menus, err := copyDB.ListMenus(context.Background(), 1, date(2025, time.January, 1), date(2025, time.January, 31))
	require.NoError(t, err)
	assert.Len(t, menus, 1)

	old := filepath.Join(dir, "backup_20000101_000000.db")
	require.NoError(t, os.WriteFile(old, []byte("old"), 0o644))
	past := time.Now().AddDate(0, 0, -30)
	require.NoError(t, os.Chtimes(old, past, past))

	assert.Equal(t, 1, svc.CleanupOldBackups())
	assert.NoFileExists(t, old)
	assert.FileExists(t, path)
}
