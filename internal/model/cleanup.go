package model

import "time"

// CleanupRun reports one archive + purge pass. It is not persisted in the
// primary store; the last run per restaurant is kept by the run store.
type CleanupRun struct {
	RunID               string    `json:"run_id"`
	RestaurantID        int64     `json:"restaurant_id"`
	Today               Date      `json:"today"`
	ArchivedCount       int       `json:"archived_count"`
	CombinationsDeleted int       `json:"combinations_deleted"`
	SidesDeleted        int       `json:"sides_deleted"`
	OldestDate          Date      `json:"oldest_date"`
	NewestDate          Date      `json:"newest_date"`
	MenuIDs             []int64   `json:"menu_ids"`
	PurgeError          string    `json:"purge_error,omitempty"`
	StartedAt           time.Time `json:"started_at"`
	FinishedAt          time.Time `json:"finished_at"`
}

// CleanupPreview holds what a run would do right now, computed without mutation.
type CleanupPreview struct {
	RestaurantID        int64   `json:"restaurant_id"`
	Today               Date    `json:"today"`
	MenusToArchive      int     `json:"menus_to_archive"`
	CombinationsToPurge int     `json:"combinations_to_purge"`
	SidesToPurge        int     `json:"sides_to_purge"`
	OldestDate          Date    `json:"oldest_date"`
	NewestDate          Date    `json:"newest_date"`
	MenuIDs             []int64 `json:"menu_ids"`
}

// PurgeRecord is one audit entry written per purged menu.
type PurgeRecord struct {
	ID           int64     `json:"id"`
	RunID        string    `json:"run_id"`
	RestaurantID int64     `json:"restaurant_id"`
	MenuID       int64     `json:"menu_id"`
	MenuDate     Date      `json:"menu_date"`
	Combinations int       `json:"combinations"`
	Sides        int       `json:"sides"`
	PurgedAt     time.Time `json:"purged_at"`
}

// DateSpan tracks the oldest and newest dates seen.
type DateSpan struct {
	Oldest Date
	Newest Date
}

func (s *DateSpan) Add(d Date) {
	if s.Oldest.IsZero() || d.Before(s.Oldest) {
		s.Oldest = d
	}
	if s.Newest.IsZero() || d.After(s.Newest) {
		s.Newest = d
	}
}
