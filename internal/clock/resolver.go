package clock

import (
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"spoon/internal/model"
)

// ZoneSource supplies the configured zone identifier of a restaurant.
type ZoneSource interface {
	TimezoneFor(restaurantID int64) (string, bool)
}

// Resolver hands out per-restaurant converters.
type Resolver struct {
	source      ZoneSource
	displayZone string
	now         func() time.Time
	logger      *zerolog.Logger

	mu    sync.Mutex
	cache map[string]*Converter
}

// NewResolver creates a resolver. displayZone defaults to DefaultDisplayZone.
func NewResolver(source ZoneSource, displayZone string, logger *zerolog.Logger) *Resolver {
	if displayZone == "" {
		displayZone = DefaultDisplayZone
	}
	return &Resolver{
		source:      source,
		displayZone: displayZone,
		now:         time.Now,
		logger:      logger,
		cache:       make(map[string]*Converter),
	}
}

// SetNow overrides the clock for every converter handed out afterwards.
func (r *Resolver) SetNow(now func() time.Time) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.now = now
	r.cache = make(map[string]*Converter)
}

// ForRestaurant returns the converter for the restaurant's configured zone.
// It fails with model.ErrMissingTimezone when none is configured.
func (r *Resolver) ForRestaurant(restaurantID int64) (*Converter, error) {
	zone, ok := r.source.TimezoneFor(restaurantID)
	if !ok || zone == "" {
		return nil, fmt.Errorf("restaurant %d: %w", restaurantID, model.ErrMissingTimezone)
	}
	conv, err := r.converter(zone)
	if err != nil {
		return nil, fmt.Errorf("restaurant %d: %w", restaurantID, err)
	}
	return conv, nil
}

// ForDisplay is like ForRestaurant but falls back to the display zone.
func (r *Resolver) ForDisplay(restaurantID int64) *Converter {
	conv, err := r.ForRestaurant(restaurantID)
	if err == nil {
		return conv
	}
	if r.logger != nil {
		r.logger.Warn().Err(err).Int64("restaurant_id", restaurantID).Str("fallback_zone", r.displayZone).
			Msg("using display timezone fallback")
	}
	conv, err = r.converter(r.displayZone)
	if err != nil {
		// tzdata is embedded, so only a misconfigured display zone ends up here
		return &Converter{loc: time.UTC, now: r.now}
	}
	return conv
}

func (r *Resolver) converter(zone string) (*Converter, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if conv, ok := r.cache[zone]; ok {
		return conv, nil
	}
	conv, err := NewConverter(zone)
	if err != nil {
		return nil, err
	}
	conv = conv.WithNow(r.now)
	r.cache[zone] = conv
	return conv, nil
}

// StaticZones is a fixed restaurant → zone mapping.
type StaticZones map[int64]string

func (z StaticZones) TimezoneFor(restaurantID int64) (string, bool) {
	zone, ok := z[restaurantID]
	return zone, ok
}
