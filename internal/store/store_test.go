package store

import (
	"bytes"
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"moledger/internal/models"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := Open(filepath.Join(t.TempDir(), "store_test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func record(id, orderNo string) models.MORecord {
	return models.MORecord{
		MOID:      id,
		CreatedAt: time.Date(2023, 10, 5, 9, 30, 0, 0, time.FixedZone("CST", 8*3600)),
		PartNo:    "P-1",
		OrderNo:   orderNo,
		Name:      "Bracket",
		Quantity:  10,
		Stations: models.StationsFrom([]models.StationSpec{
			{Name: "Cutting", StandardTimeSeconds: 30},
			{Name: "Bending", StandardTimeSeconds: 12.5},
		}),
		Model: "M-1",
	}
}

func TestProductRoundTrip(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	entry := models.CatalogEntry{
		PartNo: "P-1", Name: "Bracket", CustomerPartNo: "C-1", Material: "SUS304", Model: "M-1",
		Stations: models.StationsFrom([]models.StationSpec{{Name: "Cutting", StandardTimeSeconds: 30}}),
	}
	require.NoError(t, s.UpsertProduct(ctx, entry))

	got, err := s.GetProduct(ctx, "P-1")
	require.NoError(t, err)
	assert.Equal(t, entry, got)

	entry.Name = "Bracket v2"
	require.NoError(t, s.UpsertProduct(ctx, entry))
	got, err = s.GetProduct(ctx, "P-1")
	require.NoError(t, err)
	assert.Equal(t, "Bracket v2", got.Name)
}

func TestGetProductNotFound(t *testing.T) {
	s := openTestStore(t)
	_, err := s.GetProduct(context.Background(), "missing")
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestAppendAndScanPreservesOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"MO-2023100002", "MO-2023100001", "MO-2023100003"} {
		require.NoError(t, s.AppendRecord(ctx, record(id, "ORD-1")))
	}
	recs, err := s.Scan(ctx)
	require.NoError(t, err)
	require.Len(t, recs, 3)
	assert.Equal(t, "MO-2023100002", recs[0].MOID)
	assert.Equal(t, "MO-2023100003", recs[2].MOID)
	assert.Equal(t, record("MO-2023100001", "ORD-1").Stations, recs[1].Stations)
	assert.True(t, recs[0].CreatedAt.Equal(record("", "").CreatedAt))
}

func TestAppendRejectsDuplicateID(t *testing.T) {
	path := filepath.Join(t.TempDir(), "ledger.db")
	s, err := Open(path)
	require.NoError(t, err)
	defer s.Close()
	ctx := context.Background()
	require.NoError(t, s.AppendRecord(ctx, record("MO-2023100001", "ORD-1")))

	err = s.AppendRecord(ctx, record("MO-2023100001", "ORD-2"))
	require.Error(t, err)
	assert.True(t, errors.Is(err, models.ErrDuplicateID))

	// A second handle on the same file sees the same constraint.
	other, err := Open(path)
	require.NoError(t, err)
	defer other.Close()
	err = other.AppendRecord(ctx, record("MO-2023100001", "ORD-3"))
	assert.True(t, errors.Is(err, models.ErrDuplicateID))

	recs, err := s.Scan(ctx)
	require.NoError(t, err)
	assert.Len(t, recs, 1)
}

func TestLastIDWithPrefixIsMostRecentNotMaximum(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	for _, id := range []string{"MO-2023100009", "MO-2023100004", "MO-2023090100"} {
		require.NoError(t, s.AppendRecord(ctx, record(id, "")))
	}
	last, err := s.LastIDWithPrefix(ctx, "MO-202310")
	require.NoError(t, err)
	assert.Equal(t, "MO-2023100004", last)

	last, err = s.LastIDWithPrefix(ctx, "MO-202311")
	require.NoError(t, err)
	assert.Equal(t, "", last)
}

func TestFindByOrderExactMatch(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendRecord(ctx, record("MO-2023100001", "ORD-1")))
	require.NoError(t, s.AppendRecord(ctx, record("MO-2023100002", "ORD-10")))
	require.NoError(t, s.AppendRecord(ctx, record("MO-2023100003", "ORD-1")))

	recs, err := s.FindByOrder(ctx, "ORD-1")
	require.NoError(t, err)
	require.Len(t, recs, 2)
	assert.Equal(t, "MO-2023100001", recs[0].MOID)
	assert.Equal(t, "MO-2023100003", recs[1].MOID)

	recs, err = s.FindByOrder(ctx, "ORD")
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestGetRecord(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.AppendRecord(ctx, record("MO-2023100001", "ORD-1")))

	rec, err := s.GetRecord(ctx, "MO-2023100001")
	require.NoError(t, err)
	assert.Equal(t, "ORD-1", rec.OrderNo)

	_, err = s.GetRecord(ctx, "MO-2023100099")
	assert.True(t, errors.Is(err, models.ErrNotFound))
}

func TestAuditAndEmailLog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()
	require.NoError(t, s.RecordAudit(ctx, models.AuditEntry{Username: "system", Action: "created", Module: "mo", RecordID: "MO-2023100001", Summary: "x"}))
	require.NoError(t, s.RecordEmail(ctx, models.EmailLogEntry{To: "a@example.com", Subject: "s", Status: "sent"}))

	audits, err := s.ListAudit(ctx, "mo", 10)
	require.NoError(t, err)
	require.Len(t, audits, 1)
	assert.Equal(t, "MO-2023100001", audits[0].RecordID)

	emails, err := s.ListEmailLog(ctx, 10)
	require.NoError(t, err)
	require.Len(t, emails, 1)
	assert.Equal(t, "sent", emails[0].Status)
}

func TestImportCatalog(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	header := []interface{}{"PartNo", "Name", "CustPart", "Material", "St1", "T1", "St2", "T2", "St3", "T3"}
	require.NoError(t, f.SetSheetRow(sheet, "A1", &header))
	require.NoError(t, f.SetCellValue(sheet, "W1", "Model"))
	row2 := []interface{}{"P-1", "Bracket", "C-1", "SUS304", "Cutting", "30", "Bending", "12.5"}
	require.NoError(t, f.SetSheetRow(sheet, "A2", &row2))
	require.NoError(t, f.SetCellValue(sheet, "W2", "M-1"))
	row3 := []interface{}{"P-2", "Plate", "C-2", "AL6061"}
	require.NoError(t, f.SetSheetRow(sheet, "A3", &row3))
	require.NoError(t, f.SetCellValue(sheet, "W3", "M-2"))
	row4 := []interface{}{"", "orphan"}
	require.NoError(t, f.SetSheetRow(sheet, "A4", &row4))
	row5 := []interface{}{"P-9", "Widget", "C-9", "AL", "Cutting", "45"}
	require.NoError(t, f.SetSheetRow(sheet, "A5", &row5))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	res, err := ImportCatalog(ctx, s, bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 3, res.Imported)
	assert.Len(t, res.Skipped, 1)

	p1, err := s.GetProduct(ctx, "P-1")
	require.NoError(t, err)
	assert.Equal(t, "M-1", p1.Model)
	require.Len(t, p1.Stations.Defined(), 2)
	assert.Equal(t, 12.5, p1.Stations[1].StandardTimeSeconds)

	p2, err := s.GetProduct(ctx, "P-2")
	require.NoError(t, err)
	assert.Empty(t, p2.Stations.Defined())
	assert.Equal(t, "M-2", p2.Model)

	p9, err := s.GetProduct(ctx, "P-9")
	require.NoError(t, err)
	assert.Equal(t, "", p9.Model)
	require.Len(t, p9.Stations.Defined(), 1)
	assert.Equal(t, "Cutting", p9.Stations[0].Name)
	assert.Equal(t, 45.0, p9.Stations[0].StandardTimeSeconds)
}

func TestParseCatalogRowFixedColumns(t *testing.T) {
	full := make([]string, modelColumn+1)
	copy(full, []string{"P-1", "Bracket", "C-1", "SUS304", "Cutting", "30"})
	full[modelColumn] = "M-1"

	tests := []struct {
		name      string
		row       []string
		wantModel string
		wantSt    []models.StationSpec
		wantErr   bool
	}{
		{"model in column W", full, "M-1", []models.StationSpec{{Name: "Cutting", StandardTimeSeconds: 30}}, false},
		{"no model keeps last station time", []string{"P-9", "Widget", "C-9", "AL", "Cutting", "45"}, "", []models.StationSpec{{Name: "Cutting", StandardTimeSeconds: 45}}, false},
		{"station without time", []string{"P-9", "Widget", "C-9", "AL", "Cutting"}, "", []models.StationSpec{{Name: "Cutting"}}, false},
		{"bad time", []string{"P-9", "Widget", "C-9", "AL", "Cutting", "fast"}, "", nil, true},
		{"missing part number", []string{" ", "Widget"}, "", nil, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e, err := parseCatalogRow(tt.row)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.wantModel, e.Model)
			assert.Equal(t, tt.wantSt, e.Stations.Defined())
		})
	}
}
