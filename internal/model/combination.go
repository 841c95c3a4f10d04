package model

import "time"

// Side is a product attached to a combination.
type Side struct {
	ProductID int64 `json:"product_id" validate:"required,gt=0"`
	Quantity  int   `json:"quantity" validate:"min=1"`
}

// MenuCombination is one sellable bundle within a daily menu.
type MenuCombination struct {
	ID              int64     `json:"id"`
	DailyMenuID     int64     `json:"daily_menu_id"`
	EntradaID       *int64    `json:"entrada_id,omitempty"`
	PrincipioID     *int64    `json:"principio_id,omitempty"`
	ProteinaID      int64     `json:"proteina_id"`
	BebidaID        *int64    `json:"bebida_id,omitempty"`
	Sides           []Side    `json:"sides"`
	BasePrice       float64   `json:"base_price"`
	SpecialPrice    *float64  `json:"special_price,omitempty"`
	CurrentQuantity int       `json:"current_quantity"`
	IsAvailable     bool      `json:"is_available"`
	IsFeatured      bool      `json:"is_featured"`
	CreatedAt       time.Time `json:"created_at"`
	UpdatedAt       time.Time `json:"updated_at"`
}

// EffectivePrice is the special price when one is set, otherwise the base price.
func (c *MenuCombination) EffectivePrice() float64 {
	if c.SpecialPrice != nil {
		return *c.SpecialPrice
	}
	return c.BasePrice
}

// ComponentRule says whether an optional component may, must or must not be set.
type ComponentRule string

const (
	RuleOptional  ComponentRule = "optional"
	RuleRequired  ComponentRule = "required"
	RuleForbidden ComponentRule = "forbidden"
)

func (r ComponentRule) Valid() bool {
	switch r {
	case RuleOptional, RuleRequired, RuleForbidden:
		return true
	}
	return false
}

// CombinationPolicy is a restaurant's rule set for the non-mandatory
// components. Proteina is always mandatory.
type CombinationPolicy struct {
	Entrada   ComponentRule `json:"entrada"`
	Principio ComponentRule `json:"principio"`
	Bebida    ComponentRule `json:"bebida"`
}

// DefaultCombinationPolicy leaves every component optional.
func DefaultCombinationPolicy() CombinationPolicy {
	return CombinationPolicy{Entrada: RuleOptional, Principio: RuleOptional, Bebida: RuleOptional}
}
