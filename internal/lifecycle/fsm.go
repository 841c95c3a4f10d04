// Package lifecycle drives daily menus through draft, published and archived
// and purges the line items of archived menus.
package lifecycle

import "spoon/internal/model"

// FSM holds the allowed daily menu status transitions.
type FSM struct {
	transitions map[model.MenuStatus][]model.MenuStatus
}

// NewFSM creates a new FSM with predefined transitions.
func NewFSM() *FSM {
	return &FSM{
		transitions: map[model.MenuStatus][]model.MenuStatus{
			model.MenuDraft:     {model.MenuPublished, model.MenuArchived},
			model.MenuPublished: {model.MenuDraft, model.MenuArchived},
			model.MenuArchived:  {},
		},
	}
}

// CanTransition checks if transition is allowed.
func (f *FSM) CanTransition(from, to model.MenuStatus) bool {
	allowed, ok := f.transitions[from]
	if !ok {
		return false
	}
	for _, s := range allowed {
		if s == to {
			return true
		}
	}
	return false
}

// IsTerminal reports whether no transition leaves s.
func (f *FSM) IsTerminal(s model.MenuStatus) bool {
	return len(f.transitions[s]) == 0
}
