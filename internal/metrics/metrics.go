package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
)

const namespace = "spoon_menu"

var (
	once sync.Once

	menusArchived = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "menus_archived_total",
			Help:      "Count of daily menus archived by restaurant.",
		},
		[]string{"restaurant"},
	)

	combinationsPurged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "combinations_purged_total",
			Help:      "Count of menu combinations deleted during purge.",
		},
		[]string{"restaurant"},
	)

	sidesPurged = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "sides_purged_total",
			Help:      "Count of combination side associations deleted during purge.",
		},
		[]string{"restaurant"},
	)

	cleanupRuns = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "cleanup_runs_total",
			Help:      "Count of cleanup runs by result.",
		},
		[]string{"result"},
	)

	cleanupDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "cleanup_duration_seconds",
			Help:      "Duration of a cleanup run.",
			Buckets:   []float64{.01, .05, .1, .5, 1, 2, 5, 10},
		},
	)

	slotValidations = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "slot_validations_total",
			Help:      "Count of slot validations by result.",
		},
		[]string{"result"},
	)

	publishConflicts = prometheus.NewCounter(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "publish_conflicts_total",
			Help:      "Count of publish attempts rejected because another menu is published.",
		},
	)

	menuTransitions = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "menu_transitions_total",
			Help:      "Count of daily menu status transitions.",
		},
		[]string{"to"},
	)

	httpRequests = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "http_requests_total",
			Help:      "Count of API requests by route and status code.",
		},
		[]string{"route", "code"},
	)
)

// Register registers metrics (idempotent).
func Register() {
	once.Do(func() {
		prometheus.MustRegister(
			menusArchived, combinationsPurged, sidesPurged,
			cleanupRuns, cleanupDuration,
			slotValidations, publishConflicts, menuTransitions,
			httpRequests,
		)
	})
}

func restaurantLabel(id int64) string {
	return strconv.FormatInt(id, 10)
}

// ObserveCleanup records the outcome of one cleanup run.
func ObserveCleanup(restaurantID int64, archived, combinations, sides int, result string, took time.Duration) {
	label := restaurantLabel(restaurantID)
	menusArchived.WithLabelValues(label).Add(float64(archived))
	combinationsPurged.WithLabelValues(label).Add(float64(combinations))
	sidesPurged.WithLabelValues(label).Add(float64(sides))
	cleanupRuns.WithLabelValues(result).Inc()
	cleanupDuration.Observe(took.Seconds())
}

func IncSlotValidation(result string) {
	slotValidations.WithLabelValues(result).Inc()
}

func IncPublishConflict() {
	publishConflicts.Inc()
}

func IncMenuTransition(to string) {
	menuTransitions.WithLabelValues(to).Inc()
}

func IncHTTPRequest(route string, code int) {
	httpRequests.WithLabelValues(route, strconv.Itoa(code)).Inc()
}
