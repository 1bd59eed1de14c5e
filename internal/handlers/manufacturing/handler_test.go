package manufacturing_test

import (
	"bytes"
	"context"
	"io"
	"log"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/xuri/excelize/v2"

	"moledger/internal/audit"
	"moledger/internal/clock"
	"moledger/internal/document"
	"moledger/internal/handlers/manufacturing"
	"moledger/internal/models"
	"moledger/internal/mo"
	"moledger/internal/render"
	"moledger/internal/store"
	"moledger/internal/testutil"
)

func newTestHandler(t *testing.T) (*manufacturing.Handler, *store.Store) {
	t.Helper()
	s := testutil.SetupStore(t)
	testutil.SeedProducts(t, s, testutil.Product("P-1", 3), testutil.Product("P-2", 0))

	tpl, err := document.DefaultTemplate()
	if err != nil {
		t.Fatal(err)
	}
	quiet := log.New(io.Discard, "", 0)
	svc := mo.New(mo.Config{
		Catalog:    s,
		Ledger:     s,
		Clock:      clock.NewFixed(time.Date(2023, 10, 5, 9, 0, 0, 0, time.UTC)),
		Assembler:  document.NewAssembler(&document.Engine{Location: time.UTC, Logger: quiet}, tpl),
		Renderer:   render.XLSX{},
		Audit:      audit.New(s),
		Logger:     quiet,
		SingleWait: time.Second,
		BatchWait:  time.Second,
	})
	return &manufacturing.Handler{Service: svc, Catalog: s, EmailLog: s}, s
}

func post(t *testing.T, path, body string) *http.Request {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	return req
}

func TestCreateMO(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	h.CreateMO(rr, post(t, "/api/v1/mo", `{"part_no":"P-1","order_no":"ORD-1","quantity":10}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("handler returned wrong status code: got %v want %v, body: %s", rr.Code, http.StatusOK, rr.Body.String())
	}

	var res mo.CreateResult
	env := testutil.DecodeEnvelope(t, rr, &res)
	if env.Status != models.StatusSuccess {
		t.Errorf("Expected success, got %q", env.Status)
	}
	if env.Message != "MO MO-2023100001 created." {
		t.Errorf("Unexpected message %q", env.Message)
	}
	if res.Record.MOID != "MO-2023100001" {
		t.Errorf("Expected MO-2023100001, got %q", res.Record.MOID)
	}
	if len(res.Record.Stations) != 3 {
		t.Errorf("Expected 3 stations, got %d", len(res.Record.Stations))
	}
	if res.File == nil || res.File.Name != "MO_MO-2023100001.xlsx" {
		t.Fatalf("Expected rendered file, got %+v", res.File)
	}
	if _, err := excelize.OpenReader(bytes.NewReader(res.File.Data)); err != nil {
		t.Errorf("Rendered file is not a workbook: %v", err)
	}
}

func TestCreateMOErrors(t *testing.T) {
	h, _ := newTestHandler(t)

	tests := []struct {
		name string
		body string
		code int
	}{
		{"bad json", `{`, http.StatusBadRequest},
		{"missing fields", `{"part_no":"P-1"}`, http.StatusBadRequest},
		{"unknown part", `{"part_no":"P-404","order_no":"ORD-1","quantity":1}`, http.StatusNotFound},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := httptest.NewRecorder()
			h.CreateMO(rr, post(t, "/api/v1/mo", tt.body))
			if rr.Code != tt.code {
				t.Errorf("Expected %d, got %d: %s", tt.code, rr.Code, rr.Body.String())
			}
			env := testutil.DecodeEnvelope(t, rr, nil)
			if env.Status != models.StatusError {
				t.Errorf("Expected error status, got %q", env.Status)
			}
		})
	}
}

func TestCreateBatchPartialFailure(t *testing.T) {
	h, _ := newTestHandler(t)

	body := `{"items":[
		{"part_no":"P-1","order_no":"ORD-7","quantity":1},
		{"part_no":"P-404","order_no":"ORD-7","quantity":1},
		{"part_no":"P-2","order_no":"ORD-7","quantity":2}]}`
	rr := httptest.NewRecorder()
	h.CreateBatch(rr, post(t, "/api/v1/mo/batch", body))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}

	var res mo.BatchResult
	env := testutil.DecodeEnvelope(t, rr, &res)
	if len(res.Created) != 2 || res.Created[0] != "MO-2023100001" || res.Created[1] != "MO-2023100002" {
		t.Errorf("Unexpected created ids %v", res.Created)
	}
	if len(res.Errors) != 1 || !strings.Contains(res.Errors[0], "part P-404 not found") {
		t.Errorf("Unexpected errors %v", res.Errors)
	}
	if !strings.Contains(env.Message, "=== failures ===") {
		t.Errorf("Expected failure section in message, got %q", env.Message)
	}
}

func TestCreateBatchNothingCreated(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	h.CreateBatch(rr, post(t, "/api/v1/mo/batch", `{"items":[{"part_no":"P-404","order_no":"ORD-7","quantity":1}]}`))
	if rr.Code != http.StatusUnprocessableEntity {
		t.Fatalf("Expected 422, got %d: %s", rr.Code, rr.Body.String())
	}
	var res mo.BatchResult
	env := testutil.DecodeEnvelope(t, rr, &res)
	if env.Status != models.StatusError {
		t.Errorf("Expected error status, got %q", env.Status)
	}
	if len(res.Errors) != 1 {
		t.Errorf("Expected failures in payload, got %v", res.Errors)
	}
}

func TestReprint(t *testing.T) {
	h, _ := newTestHandler(t)
	for _, body := range []string{
		`{"part_no":"P-1","order_no":"ORD-1","quantity":1}`,
		`{"part_no":"P-2","order_no":"ORD-2","quantity":1}`,
		`{"part_no":"P-2","order_no":"ORD-1","quantity":3}`,
	} {
		rr := httptest.NewRecorder()
		h.CreateMO(rr, post(t, "/api/v1/mo", body))
		if rr.Code != http.StatusOK {
			t.Fatalf("seed create failed: %s", rr.Body.String())
		}
	}

	rr := httptest.NewRecorder()
	h.Reprint(rr, httptest.NewRequest("GET", "/api/v1/mo?order_no=ORD-1", nil))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var res mo.ReprintResult
	env := testutil.DecodeEnvelope(t, rr, &res)
	if env.Message != "found 2 MO record(s)" {
		t.Errorf("Unexpected message %q", env.Message)
	}
	if len(res.Records) != 2 || res.Records[0].MOID != "MO-2023100001" || res.Records[1].MOID != "MO-2023100003" {
		t.Errorf("Unexpected records %+v", res.Records)
	}

	rr = httptest.NewRecorder()
	h.Reprint(rr, httptest.NewRequest("GET", "/api/v1/mo?order_no=ORD-9", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.Reprint(rr, httptest.NewRequest("GET", "/api/v1/mo", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}

func TestGetMOAndProduct(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := httptest.NewRecorder()
	h.CreateMO(rr, post(t, "/api/v1/mo", `{"part_no":"P-1","order_no":"ORD-1","quantity":4}`))

	rr = httptest.NewRecorder()
	h.GetMO(rr, httptest.NewRequest("GET", "/api/v1/mo/MO-2023100001", nil), "MO-2023100001")
	var rec models.RecordView
	testutil.DecodeEnvelope(t, rr, &rec)
	if rr.Code != http.StatusOK || rec.Quantity != 4 || rec.Date != "2023/10/05" {
		t.Errorf("Unexpected record %d %+v", rr.Code, rec)
	}

	rr = httptest.NewRecorder()
	h.GetMO(rr, httptest.NewRequest("GET", "/api/v1/mo/MO-2023109999", nil), "MO-2023109999")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}

	rr = httptest.NewRecorder()
	h.GetProduct(rr, httptest.NewRequest("GET", "/api/v1/products/P-1", nil), "P-1")
	var info models.ProductInfo
	testutil.DecodeEnvelope(t, rr, &info)
	if rr.Code != http.StatusOK || info.PartNo != "P-1" || len(info.Stations) != 3 {
		t.Errorf("Unexpected product %d %+v", rr.Code, info)
	}

	rr = httptest.NewRecorder()
	h.GetProduct(rr, httptest.NewRequest("GET", "/api/v1/products/P-404", nil), "P-404")
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}
}

func uploadRequest(t *testing.T, filename string, data []byte) *http.Request {
	t.Helper()
	var buf bytes.Buffer
	mw := multipart.NewWriter(&buf)
	part, err := mw.CreateFormFile("file", filename)
	if err != nil {
		t.Fatal(err)
	}
	part.Write(data)
	mw.Close()
	req := httptest.NewRequest("POST", "/api/v1/catalog/import", &buf)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return req
}

func TestImportCatalog(t *testing.T) {
	h, s := newTestHandler(t)

	f := excelize.NewFile()
	sheet := f.GetSheetName(0)
	header := []interface{}{"PartNo", "Name", "CustPart", "Material", "St1", "T1"}
	f.SetSheetRow(sheet, "A1", &header)
	f.SetCellValue(sheet, "W1", "Model")
	row := []interface{}{"P-9", "Hinge", "C-9", "AL6061", "Cutting", "45"}
	f.SetSheetRow(sheet, "A2", &row)
	f.SetCellValue(sheet, "W2", "M-9")
	buf, err := f.WriteToBuffer()
	if err != nil {
		t.Fatal(err)
	}

	rr := httptest.NewRecorder()
	h.ImportCatalog(rr, uploadRequest(t, "catalog.xlsx", buf.Bytes()))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var res store.ImportResult
	env := testutil.DecodeEnvelope(t, rr, &res)
	if res.Imported != 1 || env.Message != "imported 1 product(s)" {
		t.Errorf("Unexpected import result %+v / %q", res, env.Message)
	}

	p, err := s.GetProduct(context.Background(), "P-9")
	if err != nil {
		t.Fatal(err)
	}
	if p.Model != "M-9" || p.Stations[0].StandardTimeSeconds != 45 {
		t.Errorf("Unexpected product %+v", p)
	}

	audits, err := s.ListAudit(context.Background(), audit.ModuleCatalog, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(audits) != 1 || audits[0].RecordID != "catalog.xlsx" {
		t.Errorf("Expected one catalog audit row, got %+v", audits)
	}
}

func TestImportCatalogRejectsNonWorkbook(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := httptest.NewRecorder()
	h.ImportCatalog(rr, uploadRequest(t, "catalog.csv", []byte("a,b")))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}

func TestListEmailLog(t *testing.T) {
	h, s := newTestHandler(t)

	rr := httptest.NewRecorder()
	h.ListEmailLog(rr, httptest.NewRequest("GET", "/api/v1/email-log", nil))
	var entries []models.EmailLogEntry
	testutil.DecodeEnvelope(t, rr, &entries)
	if rr.Code != http.StatusOK || len(entries) != 0 {
		t.Errorf("Expected empty log, got %d %+v", rr.Code, entries)
	}

	s.RecordEmail(context.Background(), models.EmailLogEntry{To: "a@example.com", Subject: "MO notice - MO-2023100001", Status: "sent"})
	rr = httptest.NewRecorder()
	h.ListEmailLog(rr, httptest.NewRequest("GET", "/api/v1/email-log?limit=5", nil))
	testutil.DecodeEnvelope(t, rr, &entries)
	if len(entries) != 1 || entries[0].Status != "sent" {
		t.Errorf("Unexpected entries %+v", entries)
	}

	rr = httptest.NewRecorder()
	h.ListEmailLog(rr, httptest.NewRequest("GET", "/api/v1/email-log?limit=x", nil))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}

func TestEventsWithoutHub(t *testing.T) {
	h, _ := newTestHandler(t)
	rr := httptest.NewRecorder()
	h.Events(rr, httptest.NewRequest("GET", "/api/v1/ws", nil))
	if rr.Code != http.StatusNotFound {
		t.Errorf("Expected 404, got %d", rr.Code)
	}
}

func TestParseScan(t *testing.T) {
	h, _ := newTestHandler(t)

	rr := httptest.NewRecorder()
	h.ParseScan(rr, post(t, "/api/v1/scan", `{"text":"ORD-1|P-1|10｜ORD-1|P-404|2"}`))
	if rr.Code != http.StatusOK {
		t.Fatalf("Expected 200, got %d: %s", rr.Code, rr.Body.String())
	}
	var lines []manufacturing.ScanLine
	env := testutil.DecodeEnvelope(t, rr, &lines)
	if env.Message != "decoded 2 item(s)" || len(lines) != 2 {
		t.Fatalf("Unexpected result %q %+v", env.Message, lines)
	}
	if lines[0].ProductName != "Bracket P-1" || lines[0].Quantity != 10 {
		t.Errorf("Unexpected first line %+v", lines[0])
	}
	if lines[1].Error != "part P-404 not found" {
		t.Errorf("Expected lookup error on second line, got %+v", lines[1])
	}

	rr = httptest.NewRecorder()
	h.ParseScan(rr, post(t, "/api/v1/scan", `{"text":"garbage"}`))
	if rr.Code != http.StatusBadRequest {
		t.Errorf("Expected 400, got %d", rr.Code)
	}
}
