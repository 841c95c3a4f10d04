package model

import "time"

type MenuStatus string

const (
	MenuDraft     MenuStatus = "draft"
	MenuPublished MenuStatus = "published"
	MenuArchived  MenuStatus = "archived"
)

// DailyMenu is the set of combinations a restaurant offers on one date.
// Archived menus are kept as header records after their children are purged.
type DailyMenu struct {
	ID           int64      `json:"id"`
	RestaurantID int64      `json:"restaurant_id"`
	MenuDate     Date       `json:"menu_date"`
	Name         string     `json:"name"`
	Status       MenuStatus `json:"status"`
	CreatedAt    time.Time  `json:"created_at"`
	UpdatedAt    time.Time  `json:"updated_at"`
}

func (m *DailyMenu) IsArchived() bool {
	return m.Status == MenuArchived
}
