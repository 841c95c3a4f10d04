package model

import (
	"sort"
	"time"
)

type Recurrence string

const (
	RecurrenceNone   Recurrence = "none"
	RecurrenceDaily  Recurrence = "daily"
	RecurrenceWeekly Recurrence = "weekly"
)

type SlotStatus string

const (
	SlotActive   SlotStatus = "active"
	SlotInactive SlotStatus = "inactive"
)

// ScheduleSlot describes when a menu template is offered. StartTime and
// EndTime are same-day wall-clock times ("HH:MM") in the restaurant's zone.
type ScheduleSlot struct {
	ID             int64      `json:"id"`
	RestaurantID   int64      `json:"restaurant_id" validate:"required,gt=0"`
	MenuTemplateID int64      `json:"menu_template_id" validate:"required,gt=0"`
	StartTime      string     `json:"start_time" validate:"required,datetime=15:04"`
	EndTime        string     `json:"end_time" validate:"required,datetime=15:04"`
	AnchorDate     Date       `json:"anchor_date"`
	Recurrence     Recurrence `json:"recurrence" validate:"required,oneof=none daily weekly"`
	ExceptionDates []Date     `json:"exception_dates"`
	Status         SlotStatus `json:"status" validate:"required,oneof=active inactive"`
	CreatedAt      time.Time  `json:"created_at"`
	UpdatedAt      time.Time  `json:"updated_at"`
}

func (s *ScheduleSlot) IsActive() bool {
	return s.Status == SlotActive
}

// IsException reports whether d is excluded from the slot's recurrence.
func (s *ScheduleSlot) IsException(d Date) bool {
	for _, ex := range s.ExceptionDates {
		if ex == d {
			return true
		}
	}
	return false
}

// NormalizeExceptions sorts and deduplicates exception dates so that the
// stored form of a slot does not depend on insertion order.
func (s *ScheduleSlot) NormalizeExceptions() {
	if len(s.ExceptionDates) == 0 {
		s.ExceptionDates = []Date{}
		return
	}
	sort.Slice(s.ExceptionDates, func(i, j int) bool {
		return s.ExceptionDates[i].Before(s.ExceptionDates[j])
	})
	out := s.ExceptionDates[:1]
	for _, d := range s.ExceptionDates[1:] {
		if d != out[len(out)-1] {
			out = append(out, d)
		}
	}
	s.ExceptionDates = out
}
