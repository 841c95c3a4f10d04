package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spoon/internal/clock"
	"spoon/internal/model"
)

// 2025-01-06 is a Monday.
var monday = model.NewDate(2025, time.January, 6)

func bogota(t *testing.T) *clock.Converter {
	t.Helper()
	conv, err := clock.NewConverter("America/Bogota")
	require.NoError(t, err)
	return conv
}

func newSlot(id int64, start, end string, rec model.Recurrence, anchor model.Date) model.ScheduleSlot {
	return model.ScheduleSlot{
		ID:             id,
		RestaurantID:   1,
		MenuTemplateID: 10,
		StartTime:      start,
		EndTime:        end,
		AnchorDate:     anchor,
		Recurrence:     rec,
		Status:         model.SlotActive,
	}
}

func opts(t *testing.T) Options {
	return Options{Today: monday, HorizonDays: 90, Zone: bogota(t)}
}

func TestValidate_WeeklyMondayOverlap(t *testing.T) {
	a := newSlot(1, "12:00", "15:00", model.RecurrenceWeekly, monday)
	b := newSlot(0, "14:00", "18:00", model.RecurrenceWeekly, monday)

	res, err := Validate(&b, []model.ScheduleSlot{a}, opts(t))
	require.NoError(t, err)

	assert.False(t, res.Valid)
	assert.Equal(t, int64(1), res.ConflictingSlotID)
	require.NotNil(t, res.ConflictDate)
	assert.Equal(t, monday, *res.ConflictDate)
	assert.Contains(t, res.Reason, "between 14:00 and 15:00")
}

func TestValidate_DailyOverlap(t *testing.T) {
	s1 := newSlot(1, "11:00", "14:00", model.RecurrenceDaily, monday)
	s2 := newSlot(2, "13:30", "16:00", model.RecurrenceDaily, monday.AddDays(3))

	res, err := Validate(&s2, []model.ScheduleSlot{s1}, opts(t))
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, int64(1), res.ConflictingSlotID)
	assert.Equal(t, monday.AddDays(3), *res.ConflictDate)
}

func TestValidate_ExceptionDateRemovesOccurrence(t *testing.T) {
	excluded := monday.AddDays(7)
	weekly := newSlot(1, "12:00", "15:00", model.RecurrenceWeekly, monday)
	oneOff := newSlot(0, "12:00", "15:00", model.RecurrenceNone, excluded)

	res, err := Validate(&oneOff, []model.ScheduleSlot{weekly}, opts(t))
	require.NoError(t, err)
	assert.False(t, res.Valid, "without the exception the one-off collides")

	weekly.ExceptionDates = []model.Date{excluded}
	res, err = Validate(&oneOff, []model.ScheduleSlot{weekly}, opts(t))
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestValidate_NonOverlappingSlots(t *testing.T) {
	existing := []model.ScheduleSlot{
		newSlot(1, "07:00", "10:00", model.RecurrenceDaily, monday),
		newSlot(2, "12:00", "15:00", model.RecurrenceWeekly, monday),
		newSlot(3, "18:00", "21:00", model.RecurrenceNone, monday.AddDays(2)),
	}

	tests := []struct {
		name      string
		candidate model.ScheduleSlot
	}{
		{name: "touching end is not overlap", candidate: newSlot(0, "10:00", "12:00", model.RecurrenceDaily, monday)},
		{name: "touching start is not overlap", candidate: newSlot(0, "15:00", "18:00", model.RecurrenceDaily, monday)},
		{name: "same window other weekday", candidate: newSlot(0, "12:00", "15:00", model.RecurrenceWeekly, monday.AddDays(1))},
		{name: "one-off on a free evening", candidate: newSlot(0, "18:00", "21:00", model.RecurrenceNone, monday.AddDays(3))},
		{name: "late daily", candidate: newSlot(0, "21:00", "23:30", model.RecurrenceDaily, monday)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := Validate(&tt.candidate, existing, opts(t))
			require.NoError(t, err)
			assert.True(t, res.Valid, res.Reason)
		})
	}
}

func TestValidate_SpringForwardGap(t *testing.T) {
	ny, err := clock.NewConverter("America/New_York")
	require.NoError(t, err)
	sunday := model.NewDate(2025, time.March, 9)
	o := Options{Today: sunday, HorizonDays: 0, Zone: ny}

	existing := []model.ScheduleSlot{newSlot(1, "03:00", "04:00", model.RecurrenceNone, sunday)}

	ending := newSlot(0, "01:00", "02:30", model.RecurrenceNone, sunday)
	res, err := Validate(&ending, existing, o)
	require.NoError(t, err)
	assert.True(t, res.Valid, "a window ending inside the gap stops at the transition: %s", res.Reason)

	straddling := newSlot(0, "02:30", "03:30", model.RecurrenceNone, sunday)
	res, err = Validate(&straddling, existing, o)
	require.NoError(t, err)
	assert.False(t, res.Valid)
	assert.Equal(t, int64(1), res.ConflictingSlotID)
}

func TestValidate_IgnoresInactiveAndOwnVersion(t *testing.T) {
	prior := newSlot(5, "12:00", "15:00", model.RecurrenceDaily, monday)
	inactive := newSlot(6, "12:00", "15:00", model.RecurrenceDaily, monday)
	inactive.Status = model.SlotInactive
	otherRestaurant := newSlot(7, "12:00", "15:00", model.RecurrenceDaily, monday)
	otherRestaurant.RestaurantID = 2

	update := newSlot(5, "13:00", "16:00", model.RecurrenceDaily, monday)

	res, err := Validate(&update, []model.ScheduleSlot{prior, inactive, otherRestaurant}, opts(t))
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestValidate_InactiveCandidateNeverConflicts(t *testing.T) {
	existing := newSlot(1, "12:00", "15:00", model.RecurrenceDaily, monday)
	candidate := newSlot(0, "12:00", "15:00", model.RecurrenceDaily, monday)
	candidate.Status = model.SlotInactive

	res, err := Validate(&candidate, []model.ScheduleSlot{existing}, opts(t))
	require.NoError(t, err)
	assert.True(t, res.Valid)
}

func TestValidate_DeterministicFirstConflict(t *testing.T) {
	candidate := newSlot(0, "12:00", "15:00", model.RecurrenceDaily, monday)
	existing := []model.ScheduleSlot{
		newSlot(9, "12:00", "13:00", model.RecurrenceDaily, monday),
		newSlot(4, "14:00", "16:00", model.RecurrenceWeekly, monday.AddDays(2)),
	}

	res, err := Validate(&candidate, existing, opts(t))
	require.NoError(t, err)
	assert.Equal(t, int64(4), res.ConflictingSlotID)
	assert.Equal(t, monday.AddDays(2), *res.ConflictDate)
}

func TestValidate_HorizonBound(t *testing.T) {
	far := newSlot(1, "12:00", "15:00", model.RecurrenceNone, monday.AddDays(120))
	candidate := newSlot(0, "12:00", "15:00", model.RecurrenceDaily, monday)

	o := opts(t)
	res, err := Validate(&candidate, []model.ScheduleSlot{far}, o)
	require.NoError(t, err)
	assert.True(t, res.Valid)

	o.HorizonDays = 180
	res, err = Validate(&candidate, []model.ScheduleSlot{far}, o)
	require.NoError(t, err)
	assert.False(t, res.Valid)
}

func TestValidate_MalformedCandidate(t *testing.T) {
	tests := []struct {
		name     string
		start    string
		end      string
		expected error
	}{
		{name: "zero length", start: "12:00", end: "12:00", expected: model.ErrZeroLengthSlot},
		{name: "overnight", start: "22:00", end: "02:00", expected: model.ErrValidation},
		{name: "bad format", start: "noon", end: "15:00", expected: model.ErrValidation},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			candidate := newSlot(0, tt.start, tt.end, model.RecurrenceDaily, monday)
			_, err := Validate(&candidate, nil, opts(t))
			assert.ErrorIs(t, err, tt.expected)
			assert.ErrorIs(t, err, model.ErrValidation)
		})
	}
}

func TestValidate_RequiresZone(t *testing.T) {
	candidate := newSlot(0, "12:00", "15:00", model.RecurrenceDaily, monday)
	_, err := Validate(&candidate, nil, Options{Today: monday})
	assert.ErrorIs(t, err, model.ErrMissingTimezone)
}

func TestConflictError(t *testing.T) {
	err := error(&ConflictError{Result: Result{ConflictingSlotID: 3, Reason: "overlaps slot 3"}})

	assert.ErrorIs(t, err, model.ErrSlotOverlap)
	assert.ErrorIs(t, err, model.ErrConflict)

	res, ok := AsConflict(err)
	require.True(t, ok)
	assert.Equal(t, int64(3), res.ConflictingSlotID)
}
