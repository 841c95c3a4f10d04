package audit

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"spoon/internal/model"
)

type fakeSource struct {
	records []model.PurgeRecord
	err     error
}

func (f fakeSource) ListPurgeRecords(context.Context, time.Time, time.Time) ([]model.PurgeRecord, error) {
	return f.records, f.err
}

func TestExport(t *testing.T) {
	at := time.Date(2025, 1, 12, 8, 0, 0, 0, time.UTC)
	source := fakeSource{records: []model.PurgeRecord{
		{RunID: "run-a", RestaurantID: 2, MenuID: 11, MenuDate: model.NewDate(2025, time.January, 10), Combinations: 3, Sides: 5, PurgedAt: at},
		{RunID: "run-a", RestaurantID: 2, MenuID: 12, MenuDate: model.NewDate(2025, time.January, 8), Combinations: 1, Sides: 0, PurgedAt: at},
		{RunID: "run-b", RestaurantID: 1, MenuID: 4, MenuDate: model.NewDate(2025, time.January, 11), Combinations: 2, Sides: 2, PurgedAt: at.Add(time.Hour)},
	}}
	logger := zerolog.New(io.Discard)
	exp := NewExporter(source, &logger)

	var buf bytes.Buffer
	n, err := exp.Export(context.Background(), &buf, at.Add(-time.Hour), at.Add(2*time.Hour))
	require.NoError(t, err)
	assert.Equal(t, 3, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	assert.Equal(t, []string{sheetPurges, sheetSummary}, f.GetSheetList())

	rows, err := f.GetRows(sheetPurges)
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Ejecución", rows[0][0])
	assert.Equal(t, []string{"run-a", "2", "11", "2025-01-10", "3", "5", "2025-01-12 08:00:00"}, rows[1])

	summary, err := f.GetRows(sheetSummary)
	require.NoError(t, err)
	require.Len(t, summary, 3)
	assert.Equal(t, []string{"1", "1", "2", "2", "2025-01-11", "2025-01-11"}, summary[1])
	assert.Equal(t, []string{"2", "2", "4", "5", "2025-01-08", "2025-01-10"}, summary[2])
}

func TestExport_Empty(t *testing.T) {
	logger := zerolog.New(io.Discard)
	exp := NewExporter(fakeSource{}, &logger)

	var buf bytes.Buffer
	n, err := exp.Export(context.Background(), &buf, time.Now().Add(-time.Hour), time.Now())
	require.NoError(t, err)
	assert.Zero(t, n)

	f, err := excelize.OpenReader(&buf)
	require.NoError(t, err)
	defer f.Close()

	rows, err := f.GetRows(sheetPurges)
	require.NoError(t, err)
	assert.Len(t, rows, 1, "header only")
}

func TestExport_SourceError(t *testing.T) {
	logger := zerolog.New(io.Discard)
	exp := NewExporter(fakeSource{err: model.Persistence("list purge audit", errors.New("locked"))}, &logger)

	var buf bytes.Buffer
	_, err := exp.Export(context.Background(), &buf, time.Now(), time.Now())
	assert.ErrorIs(t, err, model.ErrPersistence)
	assert.Zero(t, buf.Len())
}

func TestWorkbook_SheetNameTruncated(t *testing.T) {
	wb, err := newWorkbook()
	require.NoError(t, err)
	defer wb.close()

	assert.ErrorIs(t, wb.append("x"), errNoSheet)

	require.NoError(t, wb.startSheet("Purgas del restaurante de la calle 45"))
	assert.Len(t, wb.sheet, maxSheetName)
}
