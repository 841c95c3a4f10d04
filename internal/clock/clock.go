// Package clock converts restaurant-local wall-clock time to and from absolute
// instants using the IANA timezone database.
package clock

import (
	"fmt"
	"strconv"
	"strings"
	"time"
	_ "time/tzdata"

	"spoon/internal/model"
)

// DefaultDisplayZone is used for display computations when a restaurant has
// no configured zone. It is never used for publish or archive decisions.
const DefaultDisplayZone = "America/Bogota"

// TimeOfDay is a wall-clock time without a date.
type TimeOfDay struct {
	Hour   int
	Minute int
}

// ParseTimeOfDay parses "HH:MM".
func ParseTimeOfDay(s string) (TimeOfDay, error) {
	parts := strings.Split(s, ":")
	if len(parts) != 2 || len(parts[0]) != 2 || len(parts[1]) != 2 {
		return TimeOfDay{}, fmt.Errorf("%w: invalid time format %q, expected HH:MM", model.ErrValidation, s)
	}

	hour, err := strconv.Atoi(parts[0])
	if err != nil || hour < 0 || hour > 23 {
		return TimeOfDay{}, fmt.Errorf("%w: invalid hour in %q", model.ErrValidation, s)
	}

	minute, err := strconv.Atoi(parts[1])
	if err != nil || minute < 0 || minute > 59 {
		return TimeOfDay{}, fmt.Errorf("%w: invalid minute in %q", model.ErrValidation, s)
	}

	return TimeOfDay{Hour: hour, Minute: minute}, nil
}

func (t TimeOfDay) String() string {
	return fmt.Sprintf("%02d:%02d", t.Hour, t.Minute)
}

// Minutes returns minutes since midnight.
func (t TimeOfDay) Minutes() int {
	return t.Hour*60 + t.Minute
}

func (t TimeOfDay) Before(o TimeOfDay) bool {
	return t.Minutes() < o.Minutes()
}

// Converter is bound to a single IANA zone.
type Converter struct {
	loc *time.Location
	now func() time.Time
}

// NewConverter loads zone from the timezone database.
func NewConverter(zone string) (*Converter, error) {
	if strings.TrimSpace(zone) == "" {
		return nil, model.ErrMissingTimezone
	}
	loc, err := time.LoadLocation(zone)
	if err != nil {
		return nil, fmt.Errorf("%w: load timezone %q: %v", model.ErrConfiguration, zone, err)
	}
	return &Converter{loc: loc, now: time.Now}, nil
}

// WithNow returns a copy of c reading the current instant from now.
func (c *Converter) WithNow(now func() time.Time) *Converter {
	cp := *c
	cp.now = now
	return &cp
}

func (c *Converter) Location() *time.Location {
	return c.loc
}

// Now returns the current instant expressed in the converter's zone.
func (c *Converter) Now() time.Time {
	return c.now().In(c.loc)
}

// Today returns the local calendar date.
func (c *Converter) Today() model.Date {
	return c.LocalDateOf(c.now())
}

// LocalDateOf returns the calendar date of instant in the converter's zone.
func (c *Converter) LocalDateOf(instant time.Time) model.Date {
	return model.DateOf(instant.In(c.loc))
}

// InstantOf resolves a local date and wall-clock time to an absolute instant.
// A time skipped by a forward transition is read with the offset in force
// before the transition. A repeated time resolves to its first occurrence.
func (c *Converter) InstantOf(d model.Date, tod TimeOfDay) time.Time {
	t := time.Date(d.Year, d.Month, d.Day, tod.Hour, tod.Minute, 0, 0, c.loc)

	if t.Hour() != tod.Hour || t.Minute() != tod.Minute {
		_, before := time.Date(d.Year, d.Month, d.Day, 12, 0, 0, 0, c.loc).AddDate(0, 0, -1).Zone()
		fixed := time.FixedZone("", before)
		return time.Date(d.Year, d.Month, d.Day, tod.Hour, tod.Minute, 0, 0, fixed).In(c.loc)
	}

	if earlier := t.Add(-time.Hour); sameWallClock(earlier, d, tod) {
		return earlier
	}
	return t
}

// BoundaryOf is InstantOf for interval bounds: a time skipped by a forward
// transition resolves to the transition itself, so windows that do not touch
// on the wall clock do not intersect in absolute time.
func (c *Converter) BoundaryOf(d model.Date, tod TimeOfDay) time.Time {
	t := c.InstantOf(d, tod)
	if sameWallClock(t, d, tod) {
		return t
	}
	start, _ := t.ZoneBounds()
	if start.IsZero() {
		return t
	}
	return start
}

func sameWallClock(t time.Time, d model.Date, tod TimeOfDay) bool {
	return model.DateOf(t) == d && t.Hour() == tod.Hour && t.Minute() == tod.Minute
}
