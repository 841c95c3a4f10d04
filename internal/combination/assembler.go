package combination

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"spoon/internal/database"
	"spoon/internal/model"
)

// Selection is the operator's choice of components for one combination.
type Selection struct {
	EntradaID       *int64       `json:"entrada_id,omitempty" validate:"omitempty,gt=0"`
	PrincipioID     *int64       `json:"principio_id,omitempty" validate:"omitempty,gt=0"`
	ProteinaID      *int64       `json:"proteina_id,omitempty" validate:"omitempty,gt=0"`
	BebidaID        *int64       `json:"bebida_id,omitempty" validate:"omitempty,gt=0"`
	Sides           []model.Side `json:"sides" validate:"dive"`
	BasePrice       float64      `json:"base_price" validate:"gte=0"`
	SpecialPrice    *float64     `json:"special_price,omitempty" validate:"omitempty,gte=0"`
	CurrentQuantity int          `json:"current_quantity" validate:"gte=0"`
	IsAvailable     *bool        `json:"is_available,omitempty"`
	IsFeatured      bool         `json:"is_featured"`
}

// Repository is the combination persistence the assembler needs.
type Repository interface {
	GetMenu(ctx context.Context, id int64) (*model.DailyMenu, error)
	CreateCombination(ctx context.Context, c *model.MenuCombination) error
	GetCombination(ctx context.Context, id int64) (*model.MenuCombination, error)
	SetCombinationFlag(ctx context.Context, id int64, flag database.CombinationFlag, value bool, at time.Time) (bool, error)
}

// PolicySource returns a restaurant's combination policy.
type PolicySource interface {
	PolicyFor(restaurantID int64) (model.CombinationPolicy, bool)
}

type Assembler struct {
	repo     Repository
	policies PolicySource
	logger   zerolog.Logger
	now      func() time.Time
}

func NewAssembler(repo Repository, policies PolicySource, logger *zerolog.Logger) *Assembler {
	return &Assembler{
		repo:     repo,
		policies: policies,
		logger:   logger.With().Str("component", "combination").Logger(),
		now:      time.Now,
	}
}

// SetNow replaces the clock used to stamp flag changes.
func (a *Assembler) SetNow(now func() time.Time) {
	a.now = now
}

// Assemble validates sel against the menu's restaurant policy and stores it
// as a new combination. Nothing is written when validation fails.
func (a *Assembler) Assemble(ctx context.Context, dailyMenuID int64, sel Selection) (*model.MenuCombination, error) {
	if err := model.ValidateStruct(sel); err != nil {
		return nil, err
	}
	if sel.ProteinaID == nil {
		return nil, fmt.Errorf("combination needs a proteina: %w", model.ErrMissingProteina)
	}

	menu, err := a.repo.GetMenu(ctx, dailyMenuID)
	if err != nil {
		return nil, err
	}
	if menu.IsArchived() {
		return nil, fmt.Errorf("%w: menu %d is archived", model.ErrValidation, dailyMenuID)
	}

	policy := model.DefaultCombinationPolicy()
	if p, ok := a.policies.PolicyFor(menu.RestaurantID); ok {
		policy = p
	}
	if err := checkPolicy(policy, sel); err != nil {
		return nil, err
	}

	combo := &model.MenuCombination{
		DailyMenuID:     dailyMenuID,
		EntradaID:       sel.EntradaID,
		PrincipioID:     sel.PrincipioID,
		ProteinaID:      *sel.ProteinaID,
		BebidaID:        sel.BebidaID,
		Sides:           sel.Sides,
		BasePrice:       sel.BasePrice,
		SpecialPrice:    sel.SpecialPrice,
		CurrentQuantity: sel.CurrentQuantity,
		IsAvailable:     true,
		IsFeatured:      sel.IsFeatured,
	}
	if sel.IsAvailable != nil {
		combo.IsAvailable = *sel.IsAvailable
	}
	if combo.Sides == nil {
		combo.Sides = []model.Side{}
	}

	if err := a.repo.CreateCombination(ctx, combo); err != nil {
		return nil, err
	}

	a.logger.Info().
		Int64("combination_id", combo.ID).
		Int64("menu_id", dailyMenuID).
		Int("sides", len(combo.Sides)).
		Float64("price", combo.EffectivePrice()).
		Msg("combination assembled")
	return combo, nil
}

func checkPolicy(policy model.CombinationPolicy, sel Selection) error {
	components := []struct {
		name string
		rule model.ComponentRule
		set  bool
	}{
		{"entrada", policy.Entrada, sel.EntradaID != nil},
		{"principio", policy.Principio, sel.PrincipioID != nil},
		{"bebida", policy.Bebida, sel.BebidaID != nil},
	}

	for _, c := range components {
		switch {
		case c.rule == model.RuleRequired && !c.set:
			return fmt.Errorf("combination needs a %s: %w", c.name, model.ErrIncompleteComponentSet)
		case c.rule == model.RuleForbidden && c.set:
			return fmt.Errorf("%s is not offered: %w", c.name, model.ErrForbiddenComponent)
		}
	}
	return nil
}

// SetFeatured sets the featured flag. Setting the current value is a no-op
// that leaves UpdatedAt untouched.
func (a *Assembler) SetFeatured(ctx context.Context, id int64, featured bool) (*model.MenuCombination, error) {
	return a.setFlag(ctx, id, database.FlagFeatured, featured)
}

// SetAvailable sets the availability flag with the same rules as SetFeatured.
func (a *Assembler) SetAvailable(ctx context.Context, id int64, available bool) (*model.MenuCombination, error) {
	return a.setFlag(ctx, id, database.FlagAvailable, available)
}

// ToggleFeatured flips the featured flag and returns the updated combination.
func (a *Assembler) ToggleFeatured(ctx context.Context, id int64) (*model.MenuCombination, error) {
	current, err := a.repo.GetCombination(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.setFlag(ctx, id, database.FlagFeatured, !current.IsFeatured)
}

func (a *Assembler) ToggleAvailable(ctx context.Context, id int64) (*model.MenuCombination, error) {
	current, err := a.repo.GetCombination(ctx, id)
	if err != nil {
		return nil, err
	}
	return a.setFlag(ctx, id, database.FlagAvailable, !current.IsAvailable)
}

func (a *Assembler) setFlag(ctx context.Context, id int64, flag database.CombinationFlag, value bool) (*model.MenuCombination, error) {
	changed, err := a.repo.SetCombinationFlag(ctx, id, flag, value, a.now())
	if err != nil {
		return nil, err
	}
	if changed {
		a.logger.Info().Int64("combination_id", id).Str("flag", string(flag)).Bool("value", value).Msg("combination flag changed")
	}
	return a.repo.GetCombination(ctx, id)
}
