package combination

import (
	"context"
	"io"
	"path/filepath"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spoon/internal/database"
	"spoon/internal/model"
)

type policies map[int64]model.CombinationPolicy

func (p policies) PolicyFor(restaurantID int64) (model.CombinationPolicy, bool) {
	policy, ok := p[restaurantID]
	return policy, ok
}

func id(v int64) *int64 { return &v }

func price(v float64) *float64 { return &v }

func newTestAssembler(t *testing.T, p policies) (*Assembler, *database.DB) {
	t.Helper()
	logger := zerolog.New(io.Discard)
	db, err := database.NewDB(filepath.Join(t.TempDir(), "menu.db"), &logger)
	require.NoError(t, err)
	t.Cleanup(func() { _ = db.Close() })
	return NewAssembler(db, p, &logger), db
}

func seedMenu(t *testing.T, db *database.DB, restaurantID int64, status model.MenuStatus) *model.DailyMenu {
	t.Helper()
	m := &model.DailyMenu{
		RestaurantID: restaurantID,
		MenuDate:     model.NewDate(2025, time.January, 14),
		Name:         "Corrientazo",
		Status:       status,
	}
	require.NoError(t, db.CreateMenu(context.Background(), m))
	return m
}

func TestAssemble(t *testing.T) {
	a, db := newTestAssembler(t, nil)
	ctx := context.Background()
	menu := seedMenu(t, db, 1, model.MenuDraft)

	combo, err := a.Assemble(ctx, menu.ID, Selection{
		EntradaID:    id(10),
		PrincipioID:  id(20),
		ProteinaID:   id(30),
		BebidaID:     id(40),
		Sides:        []model.Side{{ProductID: 50, Quantity: 1}, {ProductID: 51, Quantity: 2}},
		BasePrice:    15000,
		SpecialPrice: price(12000),
	})
	require.NoError(t, err)
	assert.NotZero(t, combo.ID)
	assert.True(t, combo.IsAvailable, "available by default")
	assert.Equal(t, 12000.0, combo.EffectivePrice())

	stored, err := db.GetCombination(ctx, combo.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(30), stored.ProteinaID)
	assert.Equal(t, int64(20), *stored.PrincipioID)
	assert.Len(t, stored.Sides, 2)
	assert.Equal(t, 12000.0, stored.EffectivePrice())
}

func TestAssemble_MissingProteinaPersistsNothing(t *testing.T) {
	a, db := newTestAssembler(t, nil)
	ctx := context.Background()
	menu := seedMenu(t, db, 1, model.MenuDraft)

	_, err := a.Assemble(ctx, menu.ID, Selection{
		EntradaID: id(10),
		Sides:     []model.Side{{ProductID: 50, Quantity: 1}},
		BasePrice: 15000,
	})
	assert.ErrorIs(t, err, model.ErrMissingProteina)
	assert.ErrorIs(t, err, model.ErrIncompleteComponentSet)

	combos, err := db.ListCombinations(ctx, menu.ID)
	require.NoError(t, err)
	assert.Empty(t, combos)
}

func TestAssemble_Rejects(t *testing.T) {
	a, db := newTestAssembler(t, policies{
		2: {Entrada: model.RuleForbidden, Principio: model.RuleRequired, Bebida: model.RuleOptional},
	})
	ctx := context.Background()
	open := seedMenu(t, db, 1, model.MenuDraft)
	strict := seedMenu(t, db, 2, model.MenuDraft)
	archived := seedMenu(t, db, 1, model.MenuArchived)

	tests := []struct {
		name   string
		menuID int64
		sel    Selection
		want   error
	}{
		{
			name:   "negative base price",
			menuID: open.ID,
			sel:    Selection{ProteinaID: id(30), BasePrice: -1},
			want:   model.ErrValidation,
		},
		{
			name:   "negative special price",
			menuID: open.ID,
			sel:    Selection{ProteinaID: id(30), BasePrice: 1000, SpecialPrice: price(-5)},
			want:   model.ErrValidation,
		},
		{
			name:   "side without quantity",
			menuID: open.ID,
			sel:    Selection{ProteinaID: id(30), Sides: []model.Side{{ProductID: 50, Quantity: 0}}},
			want:   model.ErrValidation,
		},
		{
			name:   "forbidden entrada",
			menuID: strict.ID,
			sel:    Selection{EntradaID: id(10), PrincipioID: id(20), ProteinaID: id(30)},
			want:   model.ErrForbiddenComponent,
		},
		{
			name:   "required principio",
			menuID: strict.ID,
			sel:    Selection{ProteinaID: id(30)},
			want:   model.ErrIncompleteComponentSet,
		},
		{
			name:   "archived menu",
			menuID: archived.ID,
			sel:    Selection{ProteinaID: id(30)},
			want:   model.ErrValidation,
		},
		{
			name:   "unknown menu",
			menuID: 999,
			sel:    Selection{ProteinaID: id(30)},
			want:   model.ErrNotFound,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := a.Assemble(ctx, tt.menuID, tt.sel)
			assert.ErrorIs(t, err, tt.want)
		})
	}

	for _, m := range []*model.DailyMenu{open, strict, archived} {
		combos, err := db.ListCombinations(ctx, m.ID)
		require.NoError(t, err)
		assert.Empty(t, combos)
	}
}

func TestAssemble_PolicyAllowsRequiredComponent(t *testing.T) {
	a, db := newTestAssembler(t, policies{
		2: {Entrada: model.RuleForbidden, Principio: model.RuleRequired, Bebida: model.RuleOptional},
	})
	menu := seedMenu(t, db, 2, model.MenuPublished)

	combo, err := a.Assemble(context.Background(), menu.ID, Selection{PrincipioID: id(20), ProteinaID: id(30), BasePrice: 9000})
	require.NoError(t, err)
	assert.Nil(t, combo.EntradaID)
	assert.Empty(t, combo.Sides)
}

func TestFlags(t *testing.T) {
	a, db := newTestAssembler(t, nil)
	ctx := context.Background()
	menu := seedMenu(t, db, 1, model.MenuDraft)

	combo, err := a.Assemble(ctx, menu.ID, Selection{ProteinaID: id(30), BasePrice: 9000})
	require.NoError(t, err)

	first := time.Date(2025, 1, 14, 12, 0, 0, 0, time.UTC)
	a.SetNow(func() time.Time { return first })

	updated, err := a.SetFeatured(ctx, combo.ID, true)
	require.NoError(t, err)
	assert.True(t, updated.IsFeatured)
	assert.True(t, first.Equal(updated.UpdatedAt))

	a.SetNow(func() time.Time { return first.Add(time.Hour) })
	again, err := a.SetFeatured(ctx, combo.ID, true)
	require.NoError(t, err)
	assert.True(t, again.IsFeatured)
	assert.True(t, first.Equal(again.UpdatedAt), "setting the same value leaves updated_at alone")

	toggled, err := a.ToggleFeatured(ctx, combo.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsFeatured)
	assert.True(t, first.Add(time.Hour).Equal(toggled.UpdatedAt))

	toggled, err = a.ToggleAvailable(ctx, combo.ID)
	require.NoError(t, err)
	assert.False(t, toggled.IsAvailable)

	restored, err := a.SetAvailable(ctx, combo.ID, true)
	require.NoError(t, err)
	assert.True(t, restored.IsAvailable)

	_, err = a.ToggleFeatured(ctx, 404)
	assert.ErrorIs(t, err, model.ErrNotFound)

	_, err = a.SetAvailable(ctx, 404, true)
	assert.ErrorIs(t, err, model.ErrNotFound)
}
