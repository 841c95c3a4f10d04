// Package slots expands schedule slots into concrete occurrences and detects
// overlapping time windows.
package slots

import (
	"fmt"
	"time"

	"spoon/internal/clock"
	"spoon/internal/model"
)

// Zone resolves local wall-clock times to interval bounds.
type Zone interface {
	BoundaryOf(d model.Date, tod clock.TimeOfDay) time.Time
}

// Occurrence is one concrete instantiation of a slot.
type Occurrence struct {
	SlotID int64
	Date   model.Date
	Start  time.Time
	End    time.Time
}

// Overlaps reports whether two half-open intervals intersect.
func (o Occurrence) Overlaps(other Occurrence) bool {
	return o.Start.Before(other.End) && other.Start.Before(o.End)
}

// Window parses and checks the slot's wall-clock window.
func Window(slot *model.ScheduleSlot) (clock.TimeOfDay, clock.TimeOfDay, error) {
	start, err := clock.ParseTimeOfDay(slot.StartTime)
	if err != nil {
		return clock.TimeOfDay{}, clock.TimeOfDay{}, fmt.Errorf("parse start time: %w", err)
	}
	end, err := clock.ParseTimeOfDay(slot.EndTime)
	if err != nil {
		return clock.TimeOfDay{}, clock.TimeOfDay{}, fmt.Errorf("parse end time: %w", err)
	}

	switch {
	case start == end:
		return start, end, fmt.Errorf("%w: slot %s-%s has no duration", model.ErrZeroLengthSlot, slot.StartTime, slot.EndTime)
	case end.Before(start):
		return start, end, fmt.Errorf("%w: slot %s-%s spans midnight", model.ErrValidation, slot.StartTime, slot.EndTime)
	}
	return start, end, nil
}

// OccursOn reports whether the slot's recurrence lands on d, exceptions excluded.
func OccursOn(slot *model.ScheduleSlot, d model.Date) bool {
	if d.Before(slot.AnchorDate) || slot.IsException(d) {
		return false
	}
	switch slot.Recurrence {
	case model.RecurrenceNone:
		return d == slot.AnchorDate
	case model.RecurrenceDaily:
		return true
	case model.RecurrenceWeekly:
		return d.Weekday() == slot.AnchorDate.Weekday()
	default:
		return false
	}
}

// Expand lists the slot's occurrences on dates in [from, to], ascending.
func Expand(slot *model.ScheduleSlot, from, to model.Date, zone Zone) ([]Occurrence, error) {
	start, end, err := Window(slot)
	if err != nil {
		return nil, err
	}

	if from.Before(slot.AnchorDate) {
		from = slot.AnchorDate
	}

	var out []Occurrence
	for d := from; !d.After(to); d = d.AddDays(1) {
		if !OccursOn(slot, d) {
			continue
		}
		out = append(out, Occurrence{
			SlotID: slot.ID,
			Date:   d,
			Start:  zone.BoundaryOf(d, start),
			End:    zone.BoundaryOf(d, end),
		})
		if slot.Recurrence == model.RecurrenceNone {
			break
		}
	}
	return out, nil
}
