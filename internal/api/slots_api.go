package api

import (
	"net/http"

	"spoon/internal/model"
)

type SlotResponse struct {
	Success bool                `json:"success"`
	Slot    *model.ScheduleSlot `json:"slot"`
}

// handleListSlots returns every slot of a restaurant.
// GET /api/slots?restaurant_id=R
func (s *HTTPServer) handleListSlots(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := queryID(r, "restaurant_id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	list, err := s.svc.Slots.List(r.Context(), restaurantID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if list == nil {
		list = []model.ScheduleSlot{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "slots": list})
}

// handleSaveSlot validates and stores a slot. Overlaps are rejected with 409
// and the conflicting slot in the body.
// POST /api/slots
func (s *HTTPServer) handleSaveSlot(w http.ResponseWriter, r *http.Request) {
	var slot model.ScheduleSlot
	if err := decodeJSON(r, &slot); err != nil {
		s.writeErr(w, r, err)
		return
	}

	if _, err := s.svc.Slots.Save(r.Context(), &slot); err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, SlotResponse{Success: true, Slot: &slot})
}

// handleValidateSlot is a dry run of handleSaveSlot.
// POST /api/slots/validate
func (s *HTTPServer) handleValidateSlot(w http.ResponseWriter, r *http.Request) {
	var slot model.ScheduleSlot
	if err := decodeJSON(r, &slot); err != nil {
		s.writeErr(w, r, err)
		return
	}

	res, err := s.svc.Slots.Check(r.Context(), &slot)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "result": res})
}
