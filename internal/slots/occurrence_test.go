package slots

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"spoon/internal/model"
)

func TestOccursOn(t *testing.T) {
	weekly := newSlot(1, "12:00", "15:00", model.RecurrenceWeekly, monday)
	daily := newSlot(2, "12:00", "15:00", model.RecurrenceDaily, monday)
	once := newSlot(3, "12:00", "15:00", model.RecurrenceNone, monday)
	unknown := newSlot(4, "12:00", "15:00", model.Recurrence("monthly"), monday)

	tests := []struct {
		name string
		slot model.ScheduleSlot
		date model.Date
		want bool
	}{
		{name: "weekly on anchor", slot: weekly, date: monday, want: true},
		{name: "weekly next monday", slot: weekly, date: monday.AddDays(7), want: true},
		{name: "weekly tuesday", slot: weekly, date: monday.AddDays(1), want: false},
		{name: "weekly before anchor", slot: weekly, date: monday.AddDays(-7), want: false},
		{name: "daily any day", slot: daily, date: monday.AddDays(3), want: true},
		{name: "daily before anchor", slot: daily, date: monday.AddDays(-1), want: false},
		{name: "none on anchor", slot: once, date: monday, want: true},
		{name: "none next week", slot: once, date: monday.AddDays(7), want: false},
		{name: "unknown recurrence", slot: unknown, date: monday, want: false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, OccursOn(&tt.slot, tt.date))
		})
	}
}

func TestExpand(t *testing.T) {
	zone := bogota(t)
	weekly := newSlot(1, "12:00", "15:00", model.RecurrenceWeekly, monday)
	weekly.ExceptionDates = []model.Date{monday.AddDays(14)}

	occs, err := Expand(&weekly, monday, monday.AddDays(28), zone)
	require.NoError(t, err)

	dates := make([]model.Date, 0, len(occs))
	for _, o := range occs {
		dates = append(dates, o.Date)
	}
	assert.Equal(t, []model.Date{monday, monday.AddDays(7), monday.AddDays(21), monday.AddDays(28)}, dates)

	first := occs[0]
	assert.Equal(t, time.Date(2025, 1, 6, 17, 0, 0, 0, time.UTC), first.Start.UTC())
	assert.Equal(t, 3*time.Hour, first.End.Sub(first.Start))
}

func TestExpand_AnchorAfterRange(t *testing.T) {
	daily := newSlot(1, "12:00", "15:00", model.RecurrenceDaily, monday.AddDays(100))
	occs, err := Expand(&daily, monday, monday.AddDays(90), bogota(t))
	require.NoError(t, err)
	assert.Empty(t, occs)
}

func TestOccurrence_Overlaps(t *testing.T) {
	at := func(h int) time.Time { return time.Date(2025, 1, 6, h, 0, 0, 0, time.UTC) }

	a := Occurrence{Start: at(12), End: at(15)}
	assert.True(t, a.Overlaps(Occurrence{Start: at(14), End: at(18)}))
	assert.True(t, a.Overlaps(Occurrence{Start: at(13), End: at(14)}))
	assert.False(t, a.Overlaps(Occurrence{Start: at(15), End: at(18)}))
	assert.False(t, a.Overlaps(Occurrence{Start: at(9), End: at(12)}))
}
