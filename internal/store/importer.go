package store

import (
	"context"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/xuri/excelize/v2"

	"moledger/internal/models"
)

// ProductWriter receives imported catalog entries.
type ProductWriter interface {
	UpsertProduct(ctx context.Context, e models.CatalogEntry) error
}

// ImportResult summarizes a catalog import.
type ImportResult struct {
	Imported int      `json:"imported"`
	Skipped  []string `json:"skipped"`
}

// ImportCatalog reads the first sheet of an xlsx workbook laid out as
// partNo, name, customerPartNo, material, station1, time1 ... station9, time9, model
// and upserts every row after the header. Columns are fixed: the model is
// always column W, even when station columns are blank.
func ImportCatalog(ctx context.Context, w ProductWriter, r io.Reader) (ImportResult, error) {
	var res ImportResult
	f, err := excelize.OpenReader(r)
	if err != nil {
		return res, fmt.Errorf("open catalog workbook: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return res, fmt.Errorf("catalog workbook has no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return res, fmt.Errorf("read catalog rows: %w", err)
	}

	for i, row := range rows {
		if i == 0 {
			continue
		}
		entry, err := parseCatalogRow(row)
		if err != nil {
			res.Skipped = append(res.Skipped, fmt.Sprintf("row %d: %v", i+1, err))
			continue
		}
		if err := w.UpsertProduct(ctx, entry); err != nil {
			return res, err
		}
		res.Imported++
	}
	return res, nil
}

// modelColumn is column W, right after the ninth station time.
const modelColumn = 4 + 2*models.MaxStations

func parseCatalogRow(row []string) (models.CatalogEntry, error) {
	cell := func(i int) string {
		if i < len(row) {
			return strings.TrimSpace(row[i])
		}
		return ""
	}
	if cell(0) == "" {
		return models.CatalogEntry{}, fmt.Errorf("missing part number")
	}
	e := models.CatalogEntry{
		PartNo:         cell(0),
		Name:           cell(1),
		CustomerPartNo: cell(2),
		Material:       cell(3),
		Model:          cell(modelColumn),
	}

	var list []models.StationSpec
	for i := 0; i < models.MaxStations; i++ {
		name := cell(4 + 2*i)
		if name == "" {
			break
		}
		var secs float64
		if raw := cell(5 + 2*i); raw != "" {
			v, err := strconv.ParseFloat(raw, 64)
			if err != nil {
				return models.CatalogEntry{}, fmt.Errorf("station %d time %q: %w", i+1, raw, err)
			}
			secs = v
		}
		list = append(list, models.StationSpec{Name: name, StandardTimeSeconds: secs})
	}
	e.Stations = models.StationsFrom(list)
	return e, nil
}
