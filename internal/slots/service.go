package slots

import (
	"context"
	"fmt"

	"github.com/rs/zerolog"

	"spoon/internal/clock"
	"spoon/internal/metrics"
	"spoon/internal/model"
)

// Store is the slot persistence seen inside a locked section.
type Store interface {
	GetSlot(ctx context.Context, id int64) (*model.ScheduleSlot, error)
	LoadActiveSlots(ctx context.Context, restaurantID int64) ([]model.ScheduleSlot, error)
	SaveSlot(ctx context.Context, slot *model.ScheduleSlot) error
}

// Repository serialises slot writes per restaurant. fn runs with a store bound
// to the same transaction, so the validation snapshot is the one being written.
type Repository interface {
	Store
	ListSlots(ctx context.Context, restaurantID int64) ([]model.ScheduleSlot, error)
	WithSlotLock(ctx context.Context, restaurantID int64, fn func(ctx context.Context, store Store) error) error
}

// ZoneResolver returns the converter of a restaurant's configured zone.
type ZoneResolver interface {
	ForRestaurant(restaurantID int64) (*clock.Converter, error)
}

// Service gates slot writes with conflict validation.
type Service struct {
	repo        Repository
	zones       ZoneResolver
	horizonDays int
	logger      *zerolog.Logger
}

// NewService creates a slot service. horizonDays <= 0 uses DefaultHorizonDays.
func NewService(repo Repository, zones ZoneResolver, horizonDays int, logger *zerolog.Logger) *Service {
	if horizonDays <= 0 {
		horizonDays = DefaultHorizonDays
	}
	return &Service{repo: repo, zones: zones, horizonDays: horizonDays, logger: logger}
}

// Check validates slot against the current active slots without writing.
// It is a pre-check only: nothing prevents a concurrent write afterwards.
func (s *Service) Check(ctx context.Context, slot *model.ScheduleSlot) (Result, error) {
	if err := prepare(slot); err != nil {
		metrics.IncSlotValidation("invalid")
		return Result{}, err
	}
	existing, err := s.repo.LoadActiveSlots(ctx, slot.RestaurantID)
	if err != nil {
		return Result{}, err
	}
	return s.validate(slot, existing)
}

// Save validates and stores slot inside the restaurant's slot lock. An
// overlap is returned as *ConflictError and nothing is written.
func (s *Service) Save(ctx context.Context, slot *model.ScheduleSlot) (Result, error) {
	if err := prepare(slot); err != nil {
		metrics.IncSlotValidation("invalid")
		return Result{}, err
	}

	var res Result
	err := s.repo.WithSlotLock(ctx, slot.RestaurantID, func(ctx context.Context, store Store) error {
		if slot.ID != 0 {
			prev, err := store.GetSlot(ctx, slot.ID)
			if err != nil {
				return err
			}
			if prev.RestaurantID != slot.RestaurantID {
				return fmt.Errorf("%w: slot %d belongs to restaurant %d", model.ErrValidation, slot.ID, prev.RestaurantID)
			}
			slot.CreatedAt = prev.CreatedAt
		}

		existing, err := store.LoadActiveSlots(ctx, slot.RestaurantID)
		if err != nil {
			return err
		}

		res, err = s.validate(slot, existing)
		if err != nil {
			return err
		}
		if !res.Valid {
			return &ConflictError{Result: res}
		}
		return store.SaveSlot(ctx, slot)
	})
	if err != nil {
		if conflict, ok := AsConflict(err); ok {
			s.logger.Info().
				Int64("restaurant_id", slot.RestaurantID).
				Int64("conflicting_slot_id", conflict.ConflictingSlotID).
				Str("reason", conflict.Reason).
				Msg("slot rejected")
			return conflict, err
		}
		return res, err
	}

	s.logger.Info().
		Int64("restaurant_id", slot.RestaurantID).
		Int64("slot_id", slot.ID).
		Str("window", slot.StartTime+"-"+slot.EndTime).
		Str("recurrence", string(slot.Recurrence)).
		Msg("slot saved")
	return res, nil
}

// List returns every slot of a restaurant, active or not.
func (s *Service) List(ctx context.Context, restaurantID int64) ([]model.ScheduleSlot, error) {
	return s.repo.ListSlots(ctx, restaurantID)
}

func (s *Service) validate(slot *model.ScheduleSlot, existing []model.ScheduleSlot) (Result, error) {
	zone, err := s.zones.ForRestaurant(slot.RestaurantID)
	if err != nil {
		return Result{}, err
	}

	res, err := Validate(slot, existing, Options{
		Today:       zone.Today(),
		HorizonDays: s.horizonDays,
		Zone:        zone,
	})
	switch {
	case err != nil:
		metrics.IncSlotValidation("invalid")
	case !res.Valid:
		metrics.IncSlotValidation("conflict")
	default:
		metrics.IncSlotValidation("valid")
	}
	return res, err
}

func prepare(slot *model.ScheduleSlot) error {
	if slot.Recurrence == "" {
		slot.Recurrence = model.RecurrenceNone
	}
	if slot.Status == "" {
		slot.Status = model.SlotActive
	}
	if err := model.ValidateStruct(slot); err != nil {
		return err
	}
	if slot.AnchorDate.IsZero() {
		return fmt.Errorf("%w: anchor_date is required", model.ErrValidation)
	}
	if _, _, err := Window(slot); err != nil {
		return err
	}
	slot.NormalizeExceptions()
	return nil
}
