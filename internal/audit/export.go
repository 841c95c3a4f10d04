package audit

import (
	"context"
	"fmt"
	"io"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"spoon/internal/model"
)

const (
	sheetPurges  = "Purgas"
	sheetSummary = "Resumen"
)

// RecordSource lists purge audit entries purged within [from, to).
type RecordSource interface {
	ListPurgeRecords(ctx context.Context, from, to time.Time) ([]model.PurgeRecord, error)
}

// Exporter renders purge audit entries as an xlsx workbook.
type Exporter struct {
	source RecordSource
	logger zerolog.Logger
}

func NewExporter(source RecordSource, logger *zerolog.Logger) *Exporter {
	return &Exporter{source: source, logger: logger.With().Str("component", "audit").Logger()}
}

type restaurantTotals struct {
	menus        int
	combinations int
	sides        int
	span         model.DateSpan
}

// Export writes a workbook with one row per purged menu and a per-restaurant
// summary sheet. It returns the number of purge entries written.
func (e *Exporter) Export(ctx context.Context, out io.Writer, from, to time.Time) (int, error) {
	records, err := e.source.ListPurgeRecords(ctx, from, to)
	if err != nil {
		return 0, err
	}

	wb, err := newWorkbook()
	if err != nil {
		return 0, err
	}
	defer func() { _ = wb.close() }()

	if err := wb.startSheet(sheetPurges); err != nil {
		return 0, err
	}
	if err := wb.header("Ejecución", "Restaurante", "Menú", "Fecha del menú", "Combinaciones", "Acompañamientos", "Purgado (UTC)"); err != nil {
		return 0, err
	}

	totals := make(map[int64]*restaurantTotals)
	for _, r := range records {
		if err := wb.append(r.RunID, r.RestaurantID, r.MenuID, r.MenuDate.String(),
			r.Combinations, r.Sides, r.PurgedAt.UTC().Format(time.DateTime)); err != nil {
			return 0, err
		}

		t, ok := totals[r.RestaurantID]
		if !ok {
			t = &restaurantTotals{}
			totals[r.RestaurantID] = t
		}
		t.menus++
		t.combinations += r.Combinations
		t.sides += r.Sides
		t.span.Add(r.MenuDate)
	}

	if err := writeSummary(wb, totals); err != nil {
		return 0, err
	}
	if err := wb.writeTo(out); err != nil {
		return 0, fmt.Errorf("write workbook: %w", err)
	}

	e.logger.Info().Int("records", len(records)).Time("from", from).Time("to", to).Msg("purge audit exported")
	return len(records), nil
}

func writeSummary(wb *workbook, totals map[int64]*restaurantTotals) error {
	if err := wb.startSheet(sheetSummary); err != nil {
		return err
	}
	if err := wb.header("Restaurante", "Menús", "Combinaciones", "Acompañamientos", "Fecha más antigua", "Fecha más reciente"); err != nil {
		return err
	}

	ids := make([]int64, 0, len(totals))
	for id := range totals {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })

	for _, id := range ids {
		t := totals[id]
		if err := wb.append(id, t.menus, t.combinations, t.sides, t.span.Oldest.String(), t.span.Newest.String()); err != nil {
			return err
		}
	}
	return nil
}
