package manufacturing

import (
	"context"
	"fmt"
	"net/http"
	"strconv"

	"moledger/internal/models"
	"moledger/internal/mo"
	"moledger/internal/response"
	"moledger/internal/scancode"
	"moledger/internal/store"
	"moledger/internal/validation"
	"moledger/internal/websocket"
)

// EmailLog lists recent notification attempts.
type EmailLog interface {
	ListEmailLog(ctx context.Context, limit int) ([]models.EmailLogEntry, error)
}

// Handler holds dependencies for MO ledger handlers.
type Handler struct {
	Service *mo.Service
	Hub     *websocket.Hub

	// Catalog receives rows from workbook imports.
	Catalog store.ProductWriter

	// EmailLog backs the notification history endpoint. Optional.
	EmailLog EmailLog
}

const defaultLogLimit = 50

// CreateMO issues a single MO and returns its rendered document.
func (h *Handler) CreateMO(w http.ResponseWriter, r *http.Request) {
	var req mo.CreateRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", http.StatusBadRequest)
		return
	}
	res, err := h.Service.CreateOne(r.Context(), req)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, res.Message, res)
}

// CreateBatch issues one MO per item. Partial failure is a success with the
// failures listed; a batch that created nothing is an error.
func (h *Handler) CreateBatch(w http.ResponseWriter, r *http.Request) {
	var req mo.BatchRequest
	if err := response.DecodeBody(r, &req); err != nil {
		response.Err(w, "invalid body", http.StatusBadRequest)
		return
	}
	res, err := h.Service.CreateBatch(r.Context(), req)
	if err != nil {
		response.Error(w, err)
		return
	}
	if len(res.Created) == 0 {
		response.ErrData(w, res.Message, http.StatusUnprocessableEntity, res)
		return
	}
	response.JSON(w, res.Message, res)
}

// Reprint rebuilds the combined document for an order number.
func (h *Handler) Reprint(w http.ResponseWriter, r *http.Request) {
	res, err := h.Service.ReprintByOrder(r.Context(), r.URL.Query().Get("order_no"))
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, res.Message, res)
}

// GetMO returns one ledger record.
func (h *Handler) GetMO(w http.ResponseWriter, r *http.Request, id string) {
	rec, err := h.Service.GetRecord(r.Context(), id)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, "", rec)
}

// GetProduct previews a catalog entry before issuing.
func (h *Handler) GetProduct(w http.ResponseWriter, r *http.Request, partNo string) {
	info, err := h.Service.LookupProduct(r.Context(), partNo)
	if err != nil {
		response.Error(w, err)
		return
	}
	response.JSON(w, "", info)
}

// ImportCatalog upserts catalog rows from an uploaded xlsx workbook.
func (h *Handler) ImportCatalog(w http.ResponseWriter, r *http.Request) {
	if h.Catalog == nil {
		response.Err(w, "catalog import is not available", http.StatusNotImplemented)
		return
	}
	r.Body = http.MaxBytesReader(w, r.Body, validation.MaxUploadSize+1024*1024)
	if err := r.ParseMultipartForm(32 << 20); err != nil {
		response.Err(w, "invalid multipart form", http.StatusBadRequest)
		return
	}
	file, header, err := r.FormFile("file")
	if err != nil {
		response.Err(w, "file is required", http.StatusBadRequest)
		return
	}
	defer file.Close()

	ve := &validation.ValidationErrors{}
	validation.ValidateWorkbookUpload(ve, header.Filename, header.Size)
	if err := ve.Err(); err != nil {
		response.Error(w, err)
		return
	}

	res, err := store.ImportCatalog(r.Context(), h.Catalog, file)
	if err != nil {
		response.Err(w, err.Error(), http.StatusBadRequest)
		return
	}
	h.Service.RecordImport(r.Context(), header.Filename, res.Imported, len(res.Skipped))
	response.JSON(w, fmt.Sprintf("imported %d product(s)", res.Imported), res)
}

// ScanLine is one decoded scan entry with its catalog name for preview.
type ScanLine struct {
	models.BatchItem
	ProductName string `json:"product_name"`
	Error       string `json:"error,omitempty"`
}

// ParseScan decodes scanned order|part|qty text into batch items and looks
// up each part so the operator can review them before issuing.
func (h *Handler) ParseScan(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Text string `json:"text"`
	}
	if err := response.DecodeBody(r, &body); err != nil {
		response.Err(w, "invalid body", http.StatusBadRequest)
		return
	}
	items, err := scancode.ParseItems(body.Text)
	if err != nil {
		response.Error(w, err)
		return
	}
	lines := make([]ScanLine, len(items))
	for i, item := range items {
		lines[i].BatchItem = item
		info, err := h.Service.LookupProduct(r.Context(), item.PartNo)
		if err != nil {
			lines[i].Error = err.Error()
			continue
		}
		lines[i].ProductName = info.Name
	}
	response.JSON(w, fmt.Sprintf("decoded %d item(s)", len(lines)), lines)
}

// ListEmailLog returns the most recent notification attempts.
func (h *Handler) ListEmailLog(w http.ResponseWriter, r *http.Request) {
	if h.EmailLog == nil {
		response.JSON(w, "", []models.EmailLogEntry{})
		return
	}
	limit := defaultLogLimit
	if v := r.URL.Query().Get("limit"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 {
			response.Err(w, "limit must be a positive integer", http.StatusBadRequest)
			return
		}
		limit = n
	}
	entries, err := h.EmailLog.ListEmailLog(r.Context(), limit)
	if err != nil {
		response.Error(w, err)
		return
	}
	if entries == nil {
		entries = []models.EmailLogEntry{}
	}
	response.JSON(w, "", entries)
}

// Events upgrades the connection to the ledger event stream.
func (h *Handler) Events(w http.ResponseWriter, r *http.Request) {
	if h.Hub == nil {
		response.Err(w, "event stream disabled", http.StatusNotFound)
		return
	}
	h.Hub.Handler()(w, r)
}
