package audit

import (
	"errors"
	"fmt"
	"io"

	"github.com/xuri/excelize/v2"
)

// maxSheetName is the Excel limit on sheet name length.
const maxSheetName = 31

var errNoSheet = errors.New("no active sheet")

// workbook appends rows to sheets of an excelize file, one sheet at a time.
type workbook struct {
	file  *excelize.File
	sheet string
	row   int
	bold  int
}

func newWorkbook() (*workbook, error) {
	f := excelize.NewFile()
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		_ = f.Close()
		return nil, fmt.Errorf("create header style: %w", err)
	}
	return &workbook{file: f, bold: bold}, nil
}

// startSheet makes name the active sheet. The first call renames the
// default sheet instead of adding one.
func (w *workbook) startSheet(name string) error {
	if len(name) > maxSheetName {
		name = name[:maxSheetName]
	}
	if w.sheet == "" {
		if err := w.file.SetSheetName("Sheet1", name); err != nil {
			return fmt.Errorf("rename sheet %s: %w", name, err)
		}
	} else if _, err := w.file.NewSheet(name); err != nil {
		return fmt.Errorf("create sheet %s: %w", name, err)
	}
	w.sheet = name
	w.row = 1
	return nil
}

func (w *workbook) header(columns ...string) error {
	values := make([]any, len(columns))
	for i, c := range columns {
		values[i] = c
	}
	if err := w.append(values...); err != nil {
		return err
	}

	first, _ := excelize.CoordinatesToCellName(1, w.row-1)
	last, _ := excelize.CoordinatesToCellName(len(columns), w.row-1)
	return w.file.SetCellStyle(w.sheet, first, last, w.bold)
}

func (w *workbook) append(values ...any) error {
	if w.sheet == "" {
		return errNoSheet
	}
	cell, err := excelize.CoordinatesToCellName(1, w.row)
	if err != nil {
		return err
	}
	if err := w.file.SetSheetRow(w.sheet, cell, &values); err != nil {
		return fmt.Errorf("write row %d of %s: %w", w.row, w.sheet, err)
	}
	w.row++
	return nil
}

func (w *workbook) writeTo(out io.Writer) error {
	_, err := w.file.WriteTo(out)
	return err
}

func (w *workbook) close() error {
	return w.file.Close()
}
