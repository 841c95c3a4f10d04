package cleanup

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel/attribute"

	"spoon/internal/clock"
	"spoon/internal/lifecycle"
	"spoon/internal/metrics"
	"spoon/internal/model"
	"spoon/internal/runstore"
	"spoon/internal/telemetry"
)

const previewRetries = 3

// Lifecycle is the menu lifecycle surface a cleanup pass drives.
type Lifecycle interface {
	SelectExpired(ctx context.Context, restaurantID int64, today model.Date) ([]model.DailyMenu, error)
	SelectUnpurged(ctx context.Context, restaurantID int64, today model.Date) ([]model.DailyMenu, error)
	ArchiveExpiredMenus(ctx context.Context, restaurantID int64, today model.Date) ([]model.DailyMenu, error)
	PurgeArchived(ctx context.Context, runID string, menuIDs []int64) (lifecycle.PurgeResult, error)
}

// ChildCounter counts the combinations and sides owned by menus.
type ChildCounter interface {
	CountChildren(ctx context.Context, menuIDs []int64) (combinations, sides int, err error)
}

type ZoneResolver interface {
	ForRestaurant(restaurantID int64) (*clock.Converter, error)
}

// Service runs and previews the daily archive and purge pass.
type Service struct {
	menus    Lifecycle
	children ChildCounter
	zones    ZoneResolver
	runs     runstore.Store
	logger   zerolog.Logger
	backOff  func() backoff.BackOff
}

func NewService(menus Lifecycle, children ChildCounter, zones ZoneResolver, runs runstore.Store, logger *zerolog.Logger) *Service {
	return &Service{
		menus:    menus,
		children: children,
		zones:    zones,
		runs:     runs,
		logger:   logger.With().Str("component", "cleanup").Logger(),
		backOff: func() backoff.BackOff {
			b := backoff.NewExponentialBackOff()
			b.InitialInterval = 100 * time.Millisecond
			b.MaxElapsedTime = 5 * time.Second
			return b
		},
	}
}

// SetBackOff replaces the retry policy of read-only operations.
func (s *Service) SetBackOff(f func() backoff.BackOff) {
	s.backOff = f
}

// RunDaily archives the restaurant's expired menus and purges the children
// of every archived menu that still has any, including menus left behind by
// an earlier interrupted run. A purge failure does not undo the archive; it
// is reported in the run's PurgeError and returned alongside the run.
func (s *Service) RunDaily(ctx context.Context, restaurantID int64) (*model.CleanupRun, error) {
	zone, err := s.zones.ForRestaurant(restaurantID)
	if err != nil {
		return nil, err
	}

	run := &model.CleanupRun{
		RunID:        uuid.NewString(),
		RestaurantID: restaurantID,
		Today:        zone.Today(),
		MenuIDs:      []int64{},
		StartedAt:    time.Now().UTC(),
	}
	logger := s.logger.With().Str("run_id", run.RunID).Int64("restaurant_id", restaurantID).Logger()

	ctx, span := telemetry.Start(ctx, "cleanup.run_daily",
		attribute.Int64("restaurant_id", restaurantID),
		attribute.String("run_id", run.RunID),
		attribute.String("today", run.Today.String()),
	)

	err = s.runDaily(ctx, run)
	run.FinishedAt = time.Now().UTC()
	telemetry.End(span, err)

	result := "success"
	switch {
	case err != nil && run.PurgeError != "":
		result = "partial"
	case err != nil:
		result = "failed"
	}
	metrics.ObserveCleanup(restaurantID, run.ArchivedCount,
		run.CombinationsDeleted, run.SidesDeleted, result, run.FinishedAt.Sub(run.StartedAt))

	if saveErr := s.runs.SaveRun(ctx, run); saveErr != nil {
		logger.Warn().Err(saveErr).Msg("failed to record cleanup run")
	}

	event := logger.Info()
	if err != nil {
		event = logger.Error().Err(err)
	}
	event.
		Str("today", run.Today.String()).
		Int("archived", run.ArchivedCount).
		Int("combinations", run.CombinationsDeleted).
		Int("sides", run.SidesDeleted).
		Str("result", result).
		Msg("cleanup run finished")

	return run, err
}

func (s *Service) runDaily(ctx context.Context, run *model.CleanupRun) error {
	var span model.DateSpan

	archived, err := s.menus.ArchiveExpiredMenus(ctx, run.RestaurantID, run.Today)
	run.ArchivedCount = len(archived)
	for _, m := range archived {
		span.Add(m.MenuDate)
	}
	if err != nil {
		run.MenuIDs = menuIDs(archived)
		run.OldestDate, run.NewestDate = span.Oldest, span.Newest
		return err
	}

	pending, err := s.menus.SelectUnpurged(ctx, run.RestaurantID, run.Today)
	if err != nil {
		run.MenuIDs = menuIDs(archived)
		run.OldestDate, run.NewestDate = span.Oldest, span.Newest
		return err
	}
	for _, m := range pending {
		span.Add(m.MenuDate)
	}
	run.MenuIDs = union(archived, pending)
	run.OldestDate, run.NewestDate = span.Oldest, span.Newest

	res, err := s.menus.PurgeArchived(ctx, run.RunID, run.MenuIDs)
	run.CombinationsDeleted = res.Combinations
	run.SidesDeleted = res.Sides
	if err != nil {
		run.PurgeError = err.Error()
		return err
	}
	return nil
}

// PreviewDaily reports what RunDaily would do now without changing anything.
// It selects with the same predicates as RunDaily and retries persistence
// failures.
func (s *Service) PreviewDaily(ctx context.Context, restaurantID int64) (*model.CleanupPreview, error) {
	zone, err := s.zones.ForRestaurant(restaurantID)
	if err != nil {
		return nil, err
	}
	today := zone.Today()

	ctx, span := telemetry.Start(ctx, "cleanup.preview_daily",
		attribute.Int64("restaurant_id", restaurantID),
		attribute.String("today", today.String()),
	)

	var preview *model.CleanupPreview
	op := func() error {
		p, err := s.preview(ctx, restaurantID, today)
		if err != nil {
			if errors.Is(err, model.ErrPersistence) {
				s.logger.Warn().Err(err).Int64("restaurant_id", restaurantID).Msg("cleanup preview retrying")
				return err
			}
			return backoff.Permanent(err)
		}
		preview = p
		return nil
	}
	b := backoff.WithContext(backoff.WithMaxRetries(s.backOff(), previewRetries), ctx)
	err = backoff.Retry(op, b)
	telemetry.End(span, err)
	if err != nil {
		return nil, err
	}
	return preview, nil
}

func (s *Service) preview(ctx context.Context, restaurantID int64, today model.Date) (*model.CleanupPreview, error) {
	expired, err := s.menus.SelectExpired(ctx, restaurantID, today)
	if err != nil {
		return nil, err
	}
	pending, err := s.menus.SelectUnpurged(ctx, restaurantID, today)
	if err != nil {
		return nil, err
	}

	ids := union(expired, pending)
	combos, sides, err := s.children.CountChildren(ctx, ids)
	if err != nil {
		return nil, err
	}

	var span model.DateSpan
	for _, m := range expired {
		span.Add(m.MenuDate)
	}
	for _, m := range pending {
		span.Add(m.MenuDate)
	}

	return &model.CleanupPreview{
		RestaurantID:        restaurantID,
		Today:               today,
		MenusToArchive:      len(expired),
		CombinationsToPurge: combos,
		SidesToPurge:        sides,
		OldestDate:          span.Oldest,
		NewestDate:          span.Newest,
		MenuIDs:             ids,
	}, nil
}

// LastRun returns the restaurant's most recent recorded run, or nil.
func (s *Service) LastRun(ctx context.Context, restaurantID int64) (*model.CleanupRun, error) {
	return s.runs.LastRun(ctx, restaurantID)
}

func menuIDs(menus []model.DailyMenu) []int64 {
	ids := make([]int64, 0, len(menus))
	for _, m := range menus {
		ids = append(ids, m.ID)
	}
	return ids
}

// union returns the ids of a followed by those of b not already in a.
func union(a, b []model.DailyMenu) []int64 {
	ids := menuIDs(a)
	seen := make(map[int64]struct{}, len(a)+len(b))
	for _, id := range ids {
		seen[id] = struct{}{}
	}
	for _, m := range b {
		if _, ok := seen[m.ID]; ok {
			continue
		}
		seen[m.ID] = struct{}{}
		ids = append(ids, m.ID)
	}
	return ids
}
