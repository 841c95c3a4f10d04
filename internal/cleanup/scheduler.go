package cleanup

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"spoon/internal/model"
)

// Task is a named unit of scheduled work. Spec is a five-field cron
// expression, optionally prefixed with CRON_TZ=<zone>.
type Task struct {
	Spec    string
	Handler func(ctx context.Context) error
}

// Scheduler runs a fixed set of tasks on their cron specs. It owns no global
// state; the process creates it, starts it and stops it.
type Scheduler struct {
	cron   *cron.Cron
	tasks  map[string]Task
	logger zerolog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	running bool
}

// NewScheduler parses every task spec up front and fails on the first
// invalid one.
func NewScheduler(tasks map[string]Task, logger *zerolog.Logger) (*Scheduler, error) {
	s := &Scheduler{
		tasks:  make(map[string]Task, len(tasks)),
		logger: logger.With().Str("component", "scheduler").Logger(),
		ctx:    context.Background(),
	}
	cl := cronLogger{logger: s.logger}
	s.cron = cron.New(
		cron.WithLogger(cl),
		cron.WithChain(cron.Recover(cl), cron.SkipIfStillRunning(cl)),
	)

	for _, name := range sortedNames(tasks) {
		task := tasks[name]
		if task.Handler == nil {
			return nil, fmt.Errorf("%w: task %s has no handler", model.ErrConfiguration, name)
		}
		if _, err := s.cron.AddFunc(task.Spec, func() { s.run(name) }); err != nil {
			return nil, fmt.Errorf("%w: task %s spec %q: %v", model.ErrConfiguration, name, task.Spec, err)
		}
		s.tasks[name] = task
	}
	return s, nil
}

// Start begins firing tasks. Handlers receive a context derived from ctx that
// is cancelled by Stop.
func (s *Scheduler) Start(ctx context.Context) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.running {
		return
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.running = true
	s.cron.Start()
	s.logger.Info().Strs("tasks", s.Tasks()).Msg("scheduler started")
}

// Stop halts the schedule and waits for running handlers to return.
func (s *Scheduler) Stop() {
	s.mu.Lock()
	if !s.running {
		s.mu.Unlock()
		return
	}
	s.running = false
	s.mu.Unlock()

	<-s.cron.Stop().Done()
	s.cancel()
	s.logger.Info().Msg("scheduler stopped")
}

// RunNow runs a task synchronously outside its schedule.
func (s *Scheduler) RunNow(ctx context.Context, name string) error {
	task, ok := s.tasks[name]
	if !ok {
		return fmt.Errorf("task %s: %w", name, model.ErrNotFound)
	}
	return task.Handler(ctx)
}

// Tasks returns the registered task names in order.
func (s *Scheduler) Tasks() []string {
	return sortedNames(s.tasks)
}

func (s *Scheduler) run(name string) {
	s.mu.Lock()
	ctx := s.ctx
	s.mu.Unlock()

	s.logger.Debug().Str("task", name).Msg("task started")
	if err := s.tasks[name].Handler(ctx); err != nil {
		s.logger.Error().Err(err).Str("task", name).Msg("task failed")
		return
	}
	s.logger.Debug().Str("task", name).Msg("task finished")
}

func sortedNames(tasks map[string]Task) []string {
	names := make([]string, 0, len(tasks))
	for name := range tasks {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// TaskName is the scheduler key of a restaurant's daily cleanup.
func TaskName(restaurantID int64) string {
	return fmt.Sprintf("cleanup:%d", restaurantID)
}

// DailyTask fires RunDaily for one restaurant at spec evaluated in zone.
func DailyTask(svc *Service, restaurantID int64, zone, spec string) Task {
	if zone != "" {
		spec = "CRON_TZ=" + zone + " " + spec
	}
	return Task{
		Spec: spec,
		Handler: func(ctx context.Context) error {
			_, err := svc.RunDaily(ctx, restaurantID)
			return err
		},
	}
}

// cronLogger routes cron's own logging through zerolog.
type cronLogger struct {
	logger zerolog.Logger
}

func (l cronLogger) Info(msg string, keysAndValues ...interface{}) {
	l.logger.Debug().Fields(keysAndValues).Msg(msg)
}

func (l cronLogger) Error(err error, msg string, keysAndValues ...interface{}) {
	l.logger.Error().Err(err).Fields(keysAndValues).Msg(msg)
}
