package api

import (
	"bytes"
	"fmt"
	"net/http"
	"time"

	"spoon/internal/model"
)

// PreviewStats are the counts a cleanup run would produce right now.
type PreviewStats struct {
	MenusToArchive      int        `json:"menusAArchivar"`
	CombinationsToPurge int        `json:"combinacionesAEliminar"`
	SidesToPurge        int        `json:"acompanamientosAEliminar"`
	OldestDate          model.Date `json:"fechaMasAntigua"`
	NewestDate          model.Date `json:"fechaMasReciente"`
}

type PreviewResponse struct {
	Success bool         `json:"success"`
	Stats   PreviewStats `json:"estadisticas"`
}

// RunStats are the counts of an executed cleanup run.
type RunStats struct {
	MenusArchived       int        `json:"menusArchivados"`
	CombinationsDeleted int        `json:"combinacionesEliminadas"`
	SidesDeleted        int        `json:"acompanamientosEliminados"`
	OldestDate          model.Date `json:"fechaMasAntigua"`
	NewestDate          model.Date `json:"fechaMasReciente"`
}

type ExecuteResponse struct {
	Success bool     `json:"success"`
	RunID   string   `json:"run_id"`
	Stats   RunStats `json:"estadisticas"`
	Error   string   `json:"error,omitempty"`
	Code    string   `json:"code,omitempty"`
}

func runStats(run *model.CleanupRun) RunStats {
	return RunStats{
		MenusArchived:       run.ArchivedCount,
		CombinationsDeleted: run.CombinationsDeleted,
		SidesDeleted:        run.SidesDeleted,
		OldestDate:          run.OldestDate,
		NewestDate:          run.NewestDate,
	}
}

// handleCleanupPreview reports what a cleanup run would do, without mutation.
// GET /api/cleanup/preview?restaurant_id=R
func (s *HTTPServer) handleCleanupPreview(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := queryID(r, "restaurant_id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	p, err := s.svc.Cleanup.PreviewDaily(r.Context(), restaurantID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	writeJSON(w, http.StatusOK, PreviewResponse{
		Success: true,
		Stats: PreviewStats{
			MenusToArchive:      p.MenusToArchive,
			CombinationsToPurge: p.CombinationsToPurge,
			SidesToPurge:        p.SidesToPurge,
			OldestDate:          p.OldestDate,
			NewestDate:          p.NewestDate,
		},
	})
}

// handleCleanupExecute archives and purges now. A purge that fails after the
// archive step still reports the partial statistics with 200; a run that
// failed before changing anything gets the error's status.
// POST /api/cleanup/execute?restaurant_id=R
func (s *HTTPServer) handleCleanupExecute(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := queryID(r, "restaurant_id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	run, err := s.svc.Cleanup.RunDaily(r.Context(), restaurantID)
	if run == nil || (err != nil && run.PurgeError == "" && run.ArchivedCount == 0) {
		s.writeErr(w, r, err)
		return
	}

	resp := ExecuteResponse{Success: err == nil, RunID: run.RunID, Stats: runStats(run)}
	if err != nil {
		resp.Error = err.Error()
		resp.Code = model.CodeOf(err)
	}
	writeJSON(w, http.StatusOK, resp)
}

// handleCleanupLast returns the last recorded run of a restaurant.
// GET /api/cleanup/last?restaurant_id=R
func (s *HTTPServer) handleCleanupLast(w http.ResponseWriter, r *http.Request) {
	restaurantID, err := queryID(r, "restaurant_id")
	if err != nil {
		s.writeErr(w, r, err)
		return
	}

	run, err := s.svc.Cleanup.LastRun(r.Context(), restaurantID)
	if err != nil {
		s.writeErr(w, r, err)
		return
	}
	if run == nil {
		s.writeErr(w, r, fmt.Errorf("no cleanup run recorded for restaurant %d: %w", restaurantID, model.ErrNotFound))
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "run": run})
}

// handleAuditExport streams the purge audit workbook. from and to are
// YYYY-MM-DD UTC dates; the range defaults to the last 30 days.
// GET /api/cleanup/audit.xlsx?from=&to=
func (s *HTTPServer) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	to := time.Now().UTC()
	from := to.AddDate(0, 0, -30)

	if raw := r.URL.Query().Get("from"); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		from = d.In(time.UTC)
	}
	if raw := r.URL.Query().Get("to"); raw != "" {
		d, err := model.ParseDate(raw)
		if err != nil {
			s.writeErr(w, r, err)
			return
		}
		to = d.AddDays(1).In(time.UTC)
	}
	if !from.Before(to) {
		s.writeErr(w, r, fmt.Errorf("%w: from must be before to", model.ErrValidation))
		return
	}

	var buf bytes.Buffer
	if _, err := s.svc.Audit.Export(r.Context(), &buf, from, to); err != nil {
		s.writeErr(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet")
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="purgas_%s_%s.xlsx"`,
		from.Format(time.DateOnly), to.AddDate(0, 0, -1).Format(time.DateOnly)))
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write(buf.Bytes())
}
