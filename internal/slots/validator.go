package slots

import (
	"errors"
	"fmt"
	"sort"

	"spoon/internal/model"
)

// DefaultHorizonDays bounds recurrence expansion when none is configured.
const DefaultHorizonDays = 90

// Options control a validation pass.
type Options struct {
	Today       model.Date
	HorizonDays int
	Zone        Zone
}

// Result of checking a candidate slot against existing ones.
type Result struct {
	Valid             bool        `json:"valid"`
	ConflictingSlotID int64       `json:"conflicting_slot_id,omitempty"`
	ConflictDate      *model.Date `json:"conflict_date,omitempty"`
	Reason            string      `json:"reason,omitempty"`
}

// ConflictError is returned when a write is rejected by an overlap.
type ConflictError struct {
	Result Result
}

func (e *ConflictError) Error() string {
	return fmt.Sprintf("%s: %s", model.ErrSlotOverlap, e.Result.Reason)
}

func (e *ConflictError) Unwrap() error {
	return model.ErrSlotOverlap
}

// AsConflict extracts the conflict result from err.
func AsConflict(err error) (Result, bool) {
	var ce *ConflictError
	if errors.As(err, &ce) {
		return ce.Result, true
	}
	return Result{}, false
}

// Validate checks candidate against existing slots of the same restaurant over
// [opts.Today, opts.Today+horizon]. Malformed windows fail with a validation
// error before any expansion. Conflicts are reported through Result, the
// first one found wins: existing slots are visited by ascending ID and dates
// ascending.
func Validate(candidate *model.ScheduleSlot, existing []model.ScheduleSlot, opts Options) (Result, error) {
	if _, _, err := Window(candidate); err != nil {
		return Result{}, err
	}
	if candidate.AnchorDate.IsZero() {
		return Result{}, fmt.Errorf("%w: anchor date is required", model.ErrValidation)
	}
	if opts.Zone == nil {
		return Result{}, fmt.Errorf("%w: validation requires a timezone", model.ErrMissingTimezone)
	}
	if !candidate.IsActive() {
		return Result{Valid: true}, nil
	}

	horizon := opts.HorizonDays
	if horizon <= 0 {
		horizon = DefaultHorizonDays
	}
	from, to := opts.Today, opts.Today.AddDays(horizon)

	mine, err := Expand(candidate, from, to, opts.Zone)
	if err != nil {
		return Result{}, err
	}
	if len(mine) == 0 {
		return Result{Valid: true}, nil
	}
	byDate := make(map[model.Date]Occurrence, len(mine))
	for _, occ := range mine {
		byDate[occ.Date] = occ
	}

	others := make([]model.ScheduleSlot, 0, len(existing))
	for _, s := range existing {
		if !s.IsActive() || s.RestaurantID != candidate.RestaurantID {
			continue
		}
		if candidate.ID != 0 && s.ID == candidate.ID {
			continue
		}
		others = append(others, s)
	}
	sort.Slice(others, func(i, j int) bool { return others[i].ID < others[j].ID })

	for i := range others {
		other := &others[i]
		occs, err := Expand(other, from, to, opts.Zone)
		if err != nil {
			return Result{}, fmt.Errorf("existing slot %d: %w", other.ID, err)
		}
		for _, occ := range occs {
			own, ok := byDate[occ.Date]
			if !ok || !own.Overlaps(occ) {
				continue
			}
			date := occ.Date
			return Result{
				Valid:             false,
				ConflictingSlotID: other.ID,
				ConflictDate:      &date,
				Reason:            overlapReason(other.ID, own, occ),
			}, nil
		}
	}
	return Result{Valid: true}, nil
}

func overlapReason(slotID int64, a, b Occurrence) string {
	start, end := a.Start, a.End
	if b.Start.After(start) {
		start = b.Start
	}
	if b.End.Before(end) {
		end = b.End
	}
	return fmt.Sprintf("overlaps slot %d on %s between %s and %s",
		slotID, a.Date, start.Format("15:04"), end.Format("15:04"))
}
