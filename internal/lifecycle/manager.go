package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/rs/zerolog"

	"spoon/internal/clock"
	"spoon/internal/metrics"
	"spoon/internal/model"
)

// expiredStatuses is the selection predicate shared by archive and preview.
var expiredStatuses = []model.MenuStatus{model.MenuDraft, model.MenuPublished}

// Repository is the menu persistence the manager needs.
type Repository interface {
	GetMenu(ctx context.Context, id int64) (*model.DailyMenu, error)
	CreateMenu(ctx context.Context, menu *model.DailyMenu) error
	FindPublished(ctx context.Context, restaurantID int64, date model.Date) (*model.DailyMenu, error)
	LoadMenusBefore(ctx context.Context, restaurantID int64, date model.Date, statuses []model.MenuStatus) ([]model.DailyMenu, error)
	LoadArchivedWithCombinations(ctx context.Context, restaurantID int64, before model.Date) ([]model.DailyMenu, error)
	// SetMenuStatus moves a menu from one status to another and reports
	// false when the menu was no longer in the from status.
	SetMenuStatus(ctx context.Context, id int64, from, to model.MenuStatus) (bool, error)
	ListCombinationIDs(ctx context.Context, menuID int64) ([]int64, error)
	DeleteCombinationSides(ctx context.Context, combinationID int64) (int64, error)
	// DeleteCombination reports the rows removed; 0 means another run
	// deleted it first.
	DeleteCombination(ctx context.Context, id int64) (int64, error)
	RecordPurge(ctx context.Context, rec *model.PurgeRecord) error
}

// ZoneResolver returns the converter of a restaurant's configured zone.
type ZoneResolver interface {
	ForRestaurant(restaurantID int64) (*clock.Converter, error)
}

// MenuPurge holds per-menu purge counts.
type MenuPurge struct {
	MenuID       int64      `json:"menu_id"`
	MenuDate     model.Date `json:"menu_date"`
	Combinations int        `json:"combinations"`
	Sides        int        `json:"sides"`
}

// PurgeResult aggregates a purge pass.
type PurgeResult struct {
	Menus        []MenuPurge `json:"menus"`
	Combinations int         `json:"combinations"`
	Sides        int         `json:"sides"`
	Skipped      []int64     `json:"skipped,omitempty"`
}

// Manager applies lifecycle transitions to daily menus.
type Manager struct {
	repo   Repository
	zones  ZoneResolver
	fsm    *FSM
	logger zerolog.Logger
}

func NewManager(repo Repository, zones ZoneResolver, logger *zerolog.Logger) *Manager {
	return &Manager{
		repo:   repo,
		zones:  zones,
		fsm:    NewFSM(),
		logger: logger.With().Str("component", "lifecycle").Logger(),
	}
}

// CreateDraft starts a new menu for a local date that has not passed yet.
func (m *Manager) CreateDraft(ctx context.Context, restaurantID int64, date model.Date, name string) (*model.DailyMenu, error) {
	name = strings.TrimSpace(name)
	if restaurantID <= 0 {
		return nil, fmt.Errorf("%w: restaurant_id is required", model.ErrValidation)
	}
	if name == "" {
		return nil, fmt.Errorf("%w: name is required", model.ErrValidation)
	}
	if date.IsZero() {
		return nil, fmt.Errorf("%w: menu_date is required", model.ErrValidation)
	}

	zone, err := m.zones.ForRestaurant(restaurantID)
	if err != nil {
		return nil, err
	}
	if date.Before(zone.Today()) {
		return nil, fmt.Errorf("%w: menu date %s is in the past", model.ErrValidation, date)
	}

	menu := &model.DailyMenu{
		RestaurantID: restaurantID,
		MenuDate:     date,
		Name:         name,
		Status:       model.MenuDraft,
	}
	if err := m.repo.CreateMenu(ctx, menu); err != nil {
		return nil, err
	}

	m.logger.Info().Int64("menu_id", menu.ID).Int64("restaurant_id", restaurantID).
		Str("menu_date", date.String()).Msg("draft menu created")
	return menu, nil
}

// Publish makes a draft the published menu of its date. Another published
// menu for the same restaurant and date is never replaced implicitly.
func (m *Manager) Publish(ctx context.Context, menuID int64) (*model.DailyMenu, error) {
	menu, err := m.repo.GetMenu(ctx, menuID)
	if err != nil {
		return nil, err
	}
	if menu.Status == model.MenuPublished {
		return menu, nil
	}
	if !m.fsm.CanTransition(menu.Status, model.MenuPublished) {
		return nil, fmt.Errorf("menu %d is %s: %w", menuID, menu.Status, model.ErrInvalidTransition)
	}

	zone, err := m.zones.ForRestaurant(menu.RestaurantID)
	if err != nil {
		return nil, err
	}
	if menu.MenuDate.Before(zone.Today()) {
		return nil, fmt.Errorf("%w: menu %d is dated %s which has passed", model.ErrValidation, menuID, menu.MenuDate)
	}

	other, err := m.repo.FindPublished(ctx, menu.RestaurantID, menu.MenuDate)
	if err != nil {
		return nil, err
	}
	if other != nil && other.ID != menu.ID {
		metrics.IncPublishConflict()
		m.logger.Warn().Int64("menu_id", menuID).Int64("published_menu_id", other.ID).
			Str("menu_date", menu.MenuDate.String()).Msg("publish rejected")
		return nil, fmt.Errorf("menu %d already published for %s: %w", other.ID, menu.MenuDate, model.ErrAlreadyPublished)
	}

	if err := m.transition(ctx, menu, model.MenuPublished); err != nil {
		if errors.Is(err, model.ErrAlreadyPublished) {
			metrics.IncPublishConflict()
		}
		return nil, err
	}
	return menu, nil
}

// Unpublish returns a published menu to draft.
func (m *Manager) Unpublish(ctx context.Context, menuID int64) (*model.DailyMenu, error) {
	menu, err := m.repo.GetMenu(ctx, menuID)
	if err != nil {
		return nil, err
	}
	if menu.Status == model.MenuDraft {
		return menu, nil
	}
	if !m.fsm.CanTransition(menu.Status, model.MenuDraft) {
		return nil, fmt.Errorf("menu %d is %s: %w", menuID, menu.Status, model.ErrInvalidTransition)
	}
	if err := m.transition(ctx, menu, model.MenuDraft); err != nil {
		return nil, err
	}
	return menu, nil
}

func (m *Manager) transition(ctx context.Context, menu *model.DailyMenu, to model.MenuStatus) error {
	ok, err := m.repo.SetMenuStatus(ctx, menu.ID, menu.Status, to)
	if err != nil {
		return fmt.Errorf("menu %d: %w", menu.ID, err)
	}
	if !ok {
		return fmt.Errorf("menu %d changed while moving to %s: %w", menu.ID, to, model.ErrConcurrentUpdate)
	}

	m.logger.Info().Int64("menu_id", menu.ID).Str("from", string(menu.Status)).Str("to", string(to)).Msg("menu transition")
	metrics.IncMenuTransition(string(to))
	menu.Status = to
	return nil
}

// SelectExpired lists menus dated before today that are still draft or
// published. Archive and preview both select through here.
func (m *Manager) SelectExpired(ctx context.Context, restaurantID int64, today model.Date) ([]model.DailyMenu, error) {
	return m.repo.LoadMenusBefore(ctx, restaurantID, today, expiredStatuses)
}

// SelectUnpurged lists archived menus dated before today that still own
// combinations, typically left behind by an interrupted purge.
func (m *Manager) SelectUnpurged(ctx context.Context, restaurantID int64, today model.Date) ([]model.DailyMenu, error) {
	return m.repo.LoadArchivedWithCombinations(ctx, restaurantID, today)
}

// ArchiveExpired archives every expired menu and returns the affected ids.
// Menus already archived are never selected again, so a repeated call for the
// same today returns nothing.
func (m *Manager) ArchiveExpired(ctx context.Context, restaurantID int64, today model.Date) ([]int64, error) {
	menus, err := m.ArchiveExpiredMenus(ctx, restaurantID, today)
	ids := make([]int64, 0, len(menus))
	for _, menu := range menus {
		ids = append(ids, menu.ID)
	}
	return ids, err
}

// ArchiveExpiredMenus is ArchiveExpired returning the archived menus. On error
// the menus archived so far are returned with it.
func (m *Manager) ArchiveExpiredMenus(ctx context.Context, restaurantID int64, today model.Date) ([]model.DailyMenu, error) {
	expired, err := m.SelectExpired(ctx, restaurantID, today)
	if err != nil {
		return nil, err
	}

	archived := make([]model.DailyMenu, 0, len(expired))
	for i := range expired {
		menu := expired[i]
		if !m.fsm.CanTransition(menu.Status, model.MenuArchived) {
			continue
		}
		err := m.transition(ctx, &menu, model.MenuArchived)
		if errors.Is(err, model.ErrConcurrentUpdate) {
			// another run got there first
			continue
		}
		if err != nil {
			return archived, err
		}
		archived = append(archived, menu)
	}
	return archived, nil
}

// PurgeArchived deletes the combinations of archived menus, sides first. A
// menu that is not archived is skipped and keeps its children. Every menu is
// attempted; failures are joined into the returned error.
func (m *Manager) PurgeArchived(ctx context.Context, runID string, menuIDs []int64) (PurgeResult, error) {
	var (
		res  PurgeResult
		errs []error
	)

	for _, id := range menuIDs {
		menu, err := m.repo.GetMenu(ctx, id)
		if err != nil {
			errs = append(errs, fmt.Errorf("purge menu %d: %w", id, err))
			continue
		}
		if !menu.IsArchived() {
			m.logger.Warn().Int64("menu_id", id).Str("status", string(menu.Status)).Msg("purge skipped for non-archived menu")
			res.Skipped = append(res.Skipped, id)
			continue
		}

		mp, err := m.purgeMenu(ctx, menu)
		res.Combinations += mp.Combinations
		res.Sides += mp.Sides
		if err != nil {
			errs = append(errs, fmt.Errorf("purge menu %d: %w", id, err))
			continue
		}
		if mp.Combinations == 0 && mp.Sides == 0 {
			continue
		}
		res.Menus = append(res.Menus, mp)

		if err := m.repo.RecordPurge(ctx, &model.PurgeRecord{
			RunID:        runID,
			RestaurantID: menu.RestaurantID,
			MenuID:       menu.ID,
			MenuDate:     menu.MenuDate,
			Combinations: mp.Combinations,
			Sides:        mp.Sides,
		}); err != nil {
			m.logger.Error().Err(err).Int64("menu_id", id).Msg("failed to record purge audit")
		}
	}
	return res, errors.Join(errs...)
}

func (m *Manager) purgeMenu(ctx context.Context, menu *model.DailyMenu) (MenuPurge, error) {
	mp := MenuPurge{MenuID: menu.ID, MenuDate: menu.MenuDate}

	comboIDs, err := m.repo.ListCombinationIDs(ctx, menu.ID)
	if err != nil {
		return mp, err
	}
	for _, comboID := range comboIDs {
		sides, err := m.repo.DeleteCombinationSides(ctx, comboID)
		if err != nil {
			return mp, fmt.Errorf("delete sides of combination %d: %w", comboID, err)
		}
		mp.Sides += int(sides)

		n, err := m.repo.DeleteCombination(ctx, comboID)
		if err != nil {
			return mp, fmt.Errorf("delete combination %d: %w", comboID, err)
		}
		mp.Combinations += int(n)
	}
	if mp.Combinations == 0 && mp.Sides == 0 {
		return mp, nil
	}

	m.logger.Info().
		Int64("menu_id", menu.ID).
		Int64("restaurant_id", menu.RestaurantID).
		Str("menu_date", menu.MenuDate.String()).
		Int("combinations", mp.Combinations).
		Int("sides", mp.Sides).
		Msg("menu purged")
	return mp, nil
}
