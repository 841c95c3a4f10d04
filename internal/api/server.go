package api

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"spoon/internal/clock"
	"spoon/internal/combination"
	"spoon/internal/model"
	"spoon/internal/slots"
)

type SlotService interface {
	Check(ctx context.Context, slot *model.ScheduleSlot) (slots.Result, error)
	Save(ctx context.Context, slot *model.ScheduleSlot) (slots.Result, error)
	List(ctx context.Context, restaurantID int64) ([]model.ScheduleSlot, error)
}

type MenuService interface {
	CreateDraft(ctx context.Context, restaurantID int64, date model.Date, name string) (*model.DailyMenu, error)
	Publish(ctx context.Context, menuID int64) (*model.DailyMenu, error)
	Unpublish(ctx context.Context, menuID int64) (*model.DailyMenu, error)
}

// MenuReader serves the read-only menu listings.
type MenuReader interface {
	ListMenus(ctx context.Context, restaurantID int64, from, to model.Date) ([]model.DailyMenu, error)
	ListCombinations(ctx context.Context, menuID int64) ([]model.MenuCombination, error)
}

type CombinationService interface {
	Assemble(ctx context.Context, dailyMenuID int64, sel combination.Selection) (*model.MenuCombination, error)
	SetFeatured(ctx context.Context, id int64, featured bool) (*model.MenuCombination, error)
	SetAvailable(ctx context.Context, id int64, available bool) (*model.MenuCombination, error)
	ToggleFeatured(ctx context.Context, id int64) (*model.MenuCombination, error)
	ToggleAvailable(ctx context.Context, id int64) (*model.MenuCombination, error)
}

type CleanupService interface {
	PreviewDaily(ctx context.Context, restaurantID int64) (*model.CleanupPreview, error)
	RunDaily(ctx context.Context, restaurantID int64) (*model.CleanupRun, error)
	LastRun(ctx context.Context, restaurantID int64) (*model.CleanupRun, error)
}

// DisplayZones picks the zone used for presentation defaults only.
type DisplayZones interface {
	ForDisplay(restaurantID int64) *clock.Converter
}

type AuditExporter interface {
	Export(ctx context.Context, out io.Writer, from, to time.Time) (int, error)
}

// Services groups the engine operations exposed over HTTP.
type Services struct {
	Slots        SlotService
	Menus        MenuService
	MenuReader   MenuReader
	Combinations CombinationService
	Cleanup      CleanupService
	Audit        AuditExporter
	Display      DisplayZones
}

type Options struct {
	Port               int
	APIKey             string
	RateLimitPerSecond float64
	RateLimitBurst     int
}

// HTTPServer exposes the cleanup trigger and the operator endpoints.
type HTTPServer struct {
	svc     Services
	apiKey  string
	limiter *rate.Limiter
	port    int
	logger  zerolog.Logger
	handler http.Handler
}

func NewHTTPServer(opts Options, svc Services, logger *zerolog.Logger) *HTTPServer {
	s := &HTTPServer{
		svc:    svc,
		apiKey: opts.APIKey,
		port:   opts.Port,
		logger: logger.With().Str("component", "api").Logger(),
	}
	if opts.RateLimitPerSecond > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(opts.RateLimitPerSecond), opts.RateLimitBurst)
	}

	mux := http.NewServeMux()
	s.handle(mux, "GET /api/slots", s.handleListSlots)
	s.handle(mux, "POST /api/slots", s.handleSaveSlot)
	s.handle(mux, "POST /api/slots/validate", s.handleValidateSlot)

	s.handle(mux, "GET /api/menus", s.handleListMenus)
	s.handle(mux, "POST /api/menus", s.handleCreateMenu)
	s.handle(mux, "POST /api/menus/{id}/publish", s.handlePublishMenu)
	s.handle(mux, "POST /api/menus/{id}/unpublish", s.handleUnpublishMenu)
	s.handle(mux, "GET /api/menus/{id}/combinations", s.handleListCombinations)
	s.handle(mux, "POST /api/menus/{id}/combinations", s.handleAssemble)
	s.handle(mux, "POST /api/combinations/{id}/featured", s.handleFeatured)
	s.handle(mux, "POST /api/combinations/{id}/available", s.handleAvailable)

	s.handle(mux, "GET /api/cleanup/preview", s.handleCleanupPreview)
	s.handle(mux, "POST /api/cleanup/execute", s.handleCleanupExecute)
	s.handle(mux, "GET /api/cleanup/last", s.handleCleanupLast)
	s.handle(mux, "GET /api/cleanup/audit.xlsx", s.handleAuditExport)

	s.handler = s.requestID(s.trace(s.logRequests(s.auth(s.rateLimit(mux)))))
	return s
}

// Handler returns the fully wrapped router.
func (s *HTTPServer) Handler() http.Handler {
	return s.handler
}

// Run serves until ctx is cancelled.
func (s *HTTPServer) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", s.port),
		Handler:           s.handler,
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		<-ctx.Done()
		ctxShutdown, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = srv.Shutdown(ctxShutdown)
	}()

	s.logger.Info().Int("port", s.port).Msg("api server listening")
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}
