package runstore

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/rs/zerolog"

	"spoon/internal/model"
)

const defaultRetryInterval = time.Minute

// FailoverStore reads from primary while it is healthy and from fallback
// after a primary failure. Writes go to both so the fallback is warm when the
// primary drops. The primary is probed again once retryInterval has passed.
type FailoverStore struct {
	primary  Store
	fallback Store
	logger   zerolog.Logger

	isDown        atomic.Bool
	mu            sync.Mutex
	lastCheck     time.Time
	retryInterval time.Duration
}

func NewFailoverStore(primary, fallback Store, logger *zerolog.Logger) *FailoverStore {
	return &FailoverStore{
		primary:       primary,
		fallback:      fallback,
		logger:        logger.With().Str("component", "runstore").Logger(),
		retryInterval: defaultRetryInterval,
	}
}

// usePrimary reports whether the primary should be tried for this call.
func (s *FailoverStore) usePrimary() bool {
	if !s.isDown.Load() {
		return true
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if time.Since(s.lastCheck) < s.retryInterval {
		return false
	}
	s.lastCheck = time.Now()
	return true
}

func (s *FailoverStore) markDown(err error) {
	if !s.isDown.Swap(true) {
		s.logger.Warn().Err(err).Msg("primary run store unavailable, using fallback")
	}
	s.mu.Lock()
	s.lastCheck = time.Now()
	s.mu.Unlock()
}

func (s *FailoverStore) markUp() {
	if s.isDown.Swap(false) {
		s.logger.Info().Msg("primary run store recovered")
	}
}

func (s *FailoverStore) SaveRun(ctx context.Context, run *model.CleanupRun) error {
	fallbackErr := s.fallback.SaveRun(ctx, run)
	if !s.usePrimary() {
		return fallbackErr
	}
	if err := s.primary.SaveRun(ctx, run); err != nil {
		s.markDown(err)
		return fallbackErr
	}
	s.markUp()
	return nil
}

func (s *FailoverStore) LastRun(ctx context.Context, restaurantID int64) (*model.CleanupRun, error) {
	if s.usePrimary() {
		run, err := s.primary.LastRun(ctx, restaurantID)
		if err == nil {
			s.markUp()
			return run, nil
		}
		s.markDown(err)
	}
	return s.fallback.LastRun(ctx, restaurantID)
}
