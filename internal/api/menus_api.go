package api

import (
	"context"
	"fmt"
	"net/http"
	"strings"

	"spoon/internal/combination"
	"spoon/internal/model"
)

// CreateMenuRequest is the body of POST /api/menus.
type CreateMenuRequest struct {
	RestaurantID int64      `json:"restaurant_id"`
	MenuDate     model.Date `json:"menu_date"`
	Name         string     `json:"name"`
}

type MenuResponse struct {
	Success bool             `json:"success"`
	Menu    *model.DailyMenu `json:"menu"`
}

type CombinationResponse struct {
	Success     bool                   `json:"success"`
	Combination *model.MenuCombination `json:"combination"`
}

// FlagRequest sets a combination flag. A missing value flips it.
type FlagRequest struct {
	Value *bool `json:"value"`
}

// defaultMenuRange is the listing window when to is omitted.
const defaultMenuRange = 6

// handleListMenus lists a restaurant's menus in [from, to]. A missing from
// is the restaurant's local today; a missing to is a week from from.
// GET /api/menus?restaurant_id=R&from=YYYY-MM-DD&to=YYYY-MM-DD
func (s *HTTPServer) handleListMenus(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := queryID(r, "restaurant_id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	from, err := s.dateParam(r, "from", restaurantID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	to := from.AddDays(defaultMenuRange)
	if raw := r.URL.Query().Get("to"); raw != "" {
		if to, err = model.ParseDate(raw); err != nil {
			s.writeErr(w, r, err)
			return
		}
	}
	if to.Before(from) {
		s.writeErr(w, r, fmt.Errorf("%w: to is before from", model.ErrValidation))
		return
	}

	menus, err := s.svc.MenuReader.ListMenus(r.Context(), restaurantID, from, to)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if menus == nil {
		menus = []model.DailyMenu{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "menus": menus})
}

func (s *HTTPServer) dateParam(r *http.Request, name string, restaurantID int64) (model.Date, error) {
	if raw := r.URL.Query().Get(name); raw != "" {
		return model.ParseDate(raw)
	}
	if s.svc.Display == nil {
		return model.Date{}, fmt.Errorf("%w: %s is required", model.ErrValidation, name)
	}
	return s.svc.Display.ForDisplay(restaurantID).Today(), nil
}

// POST /api/menus
func (s *HTTPServer) handleCreateMenu(w http.ResponseWriter, r *http.Request) {
	var req CreateMenuRequest
	if err := decodeJSON(r, &req); err != nil {
		s.writeErr(w, r, err)
		return
	}

	menu, err := s.svc.Menus.CreateDraft(r.Context(), req.RestaurantID, req.MenuDate, strings.TrimSpace(req.Name))
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, MenuResponse{Success: true, Menu: menu})
}

// POST /api/menus/{id}/publish
func (s *HTTPServer) handlePublishMenu(w http.ResponseWriter, r *http.Request) {
	s.transitionMenu(w, r, s.svc.Menus.Publish)
}

// POST /api/menus/{id}/unpublish
func (s *HTTPServer) handleUnpublishMenu(w http.ResponseWriter, r *http.Request) {
	s.transitionMenu(w, r, s.svc.Menus.Unpublish)
}

func (s *HTTPServer) transitionMenu(w http.ResponseWriter, r *http.Request, apply func(ctx context.Context, id int64) (*model.DailyMenu, error)) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	menu, err := apply(r.Context(), id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, MenuResponse{Success: true, Menu: menu})
}

// GET /api/menus/{id}/combinations
func (s *HTTPServer) handleListCombinations(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	combos, err := s.svc.MenuReader.ListCombinations(r.Context(), id)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if combos == nil {
		combos = []model.MenuCombination{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "combinations": combos})
}

// handleAssemble adds a combination to a menu. A selection without a
// proteina is rejected with 422.
// POST /api/menus/{id}/combinations
func (s *HTTPServer) handleAssemble(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	var sel combination.Selection
	if err := decodeJSON(r, &sel); err != nil {
		s.writeErr(w, r, err)
		return
	}

	combo, err := s.svc.Combinations.Assemble(r.Context(), id, sel)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, CombinationResponse{Success: true, Combination: combo})
}

// POST /api/combinations/{id}/featured
func (s *HTTPServer) handleFeatured(w http.ResponseWriter, r *http.Request) {
	s.setFlag(w, r, s.svc.Combinations.SetFeatured, s.svc.Combinations.ToggleFeatured)
}

// POST /api/combinations/{id}/available
func (s *HTTPServer) handleAvailable(w http.ResponseWriter, r *http.Request) {
	s.setFlag(w, r, s.svc.Combinations.SetAvailable, s.svc.Combinations.ToggleAvailable)
}

func (s *HTTPServer) setFlag(
	w http.ResponseWriter,
	r *http.Request,
	set func(ctx context.Context, id int64, value bool) (*model.MenuCombination, error),
	toggle func(ctx context.Context, id int64) (*model.MenuCombination, error),
) {
	id, err := pathID(r)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	var req FlagRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(r, &req); err != nil {
			s.writeErr(w, r, err)
			return
		}
	}

	var combo *model.MenuCombination
	if req.Value != nil {
		combo, err = set(r.Context(), id, *req.Value)
	} else {
		combo, err = toggle(r.Context(), id)
	}
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, CombinationResponse{Success: true, Combination: combo})
}
