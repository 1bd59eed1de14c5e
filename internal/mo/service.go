// Package mo issues manufacturing orders against the catalog and compiles
// them into documents.
package mo

import (
	"context"
	"errors"
	"fmt"
	"log"
	"strings"
	"time"

	"moledger/internal/audit"
	"moledger/internal/clock"
	"moledger/internal/document"
	"moledger/internal/gate"
	"moledger/internal/models"
	"moledger/internal/notify"
	"moledger/internal/render"
	"moledger/internal/sequence"
	"moledger/internal/validation"
	"moledger/internal/websocket"
)

// Default lock waits.
const (
	DefaultSingleWait = 30 * time.Second
	DefaultBatchWait  = 60 * time.Second
)

// Catalog looks products up by part number. A miss wraps models.ErrNotFound.
type Catalog interface {
	GetProduct(ctx context.Context, partNo string) (models.CatalogEntry, error)
}

// Ledger is the append-only MO table.
type Ledger interface {
	AppendRecord(ctx context.Context, rec models.MORecord) error
	Scan(ctx context.Context) ([]models.MORecord, error)
	FindByOrder(ctx context.Context, orderNo string) ([]models.MORecord, error)
	GetRecord(ctx context.Context, moID string) (models.MORecord, error)
}

// lastIDFinder is implemented by ledgers that can answer the sequence
// question without a full scan.
type lastIDFinder interface {
	LastIDWithPrefix(ctx context.Context, prefix string) (string, error)
}

// Publisher receives live events.
type Publisher interface {
	Publish(evt websocket.Event)
}

// Config wires a Service. Catalog, Ledger and Assembler are required.
type Config struct {
	Catalog    Catalog
	Ledger     Ledger
	Gate       *gate.Gate
	Clock      clock.Clock
	Assembler  *document.Assembler
	Renderer   render.Renderer
	RenderOpts *render.Options
	Notifier   notify.Notifier
	Events     Publisher
	Audit      *audit.Log
	Logger     *log.Logger
	SingleWait time.Duration
	BatchWait  time.Duration
}

// Service runs the ledger operations. Issuance is serialized through one
// gate; document assembly and rendering run after the gate is released.
type Service struct {
	catalog    Catalog
	ledger     Ledger
	gate       *gate.Gate
	clock      clock.Clock
	assembler  *document.Assembler
	renderer   render.Renderer
	renderOpts render.Options
	notifier   notify.Notifier
	events     Publisher
	audit      *audit.Log
	logger     *log.Logger
	singleWait time.Duration
	batchWait  time.Duration
}

func New(cfg Config) *Service {
	s := &Service{
		catalog:    cfg.Catalog,
		ledger:     cfg.Ledger,
		gate:       cfg.Gate,
		clock:      cfg.Clock,
		assembler:  cfg.Assembler,
		renderer:   cfg.Renderer,
		renderOpts: render.DefaultOptions(),
		notifier:   cfg.Notifier,
		events:     cfg.Events,
		audit:      cfg.Audit,
		logger:     cfg.Logger,
		singleWait: cfg.SingleWait,
		batchWait:  cfg.BatchWait,
	}
	if cfg.RenderOpts != nil {
		s.renderOpts = *cfg.RenderOpts
	}
	if s.gate == nil {
		s.gate = gate.New()
	}
	if s.clock == nil {
		s.clock = clock.NewSystem(nil)
	}
	if s.renderer == nil {
		s.renderer = render.XLSX{}
	}
	if s.logger == nil {
		s.logger = log.Default()
	}
	if s.singleWait <= 0 {
		s.singleWait = DefaultSingleWait
	}
	if s.batchWait <= 0 {
		s.batchWait = DefaultBatchWait
	}
	return s
}

// File is a rendered document. Data is base64 encoded in JSON.
type File struct {
	Name        string `json:"file_name"`
	ContentType string `json:"content_type"`
	Data        []byte `json:"data"`
}

// CreateRequest asks for one MO.
type CreateRequest struct {
	PartNo    string `json:"part_no"`
	OrderNo   string `json:"order_no"`
	Quantity  int    `json:"quantity"`
	Recipient string `json:"recipient,omitempty"`
}

// CreateResult is the outcome of CreateOne. A document failure does not
// undo the ledger write; it is reported in DocumentError.
type CreateResult struct {
	Record        models.RecordView `json:"record"`
	File          *File             `json:"file,omitempty"`
	DocumentError string            `json:"document_error,omitempty"`
	Notified      bool              `json:"notified"`
	Message       string            `json:"-"`
}

// CreateOne issues a single MO and compiles its one-page document.
func (s *Service) CreateOne(ctx context.Context, req CreateRequest) (CreateResult, error) {
	item := models.BatchItem{
		PartNo:   strings.TrimSpace(req.PartNo),
		OrderNo:  strings.TrimSpace(req.OrderNo),
		Quantity: req.Quantity,
	}
	ve := &validation.ValidationErrors{}
	validateItem(ve, item)
	validation.ValidateEmail(ve, "recipient", req.Recipient)
	if err := ve.Err(); err != nil {
		return CreateResult{}, err
	}

	rec, err := s.issueOne(ctx, item)
	if err != nil {
		return CreateResult{}, err
	}

	s.recordIssued(ctx, "", []models.MORecord{rec}, 0)

	res := CreateResult{Record: rec.View(), Message: fmt.Sprintf("MO %s created.", rec.MOID)}
	file, err := s.compileSingle(ctx, rec)
	if err != nil {
		s.logger.Printf("WARN: document for %s failed: %v", rec.MOID, err)
		res.DocumentError = err.Error()
		res.Message = fmt.Sprintf("MO %s created, document generation failed: %v", rec.MOID, err)
		return res, nil
	}
	res.File = file

	if req.Recipient != "" {
		res.Notified = s.notify(ctx, notify.Message{
			To:        req.Recipient,
			Subject:   fmt.Sprintf("MO notice - %s", rec.MOID),
			Body:      fmt.Sprintf("MO %s was issued for part %s, order %s, quantity %d.", rec.MOID, rec.PartNo, rec.OrderNo, rec.Quantity),
			EventType: websocket.EventMOCreated,
		}, file)
		if res.Notified {
			res.Message += fmt.Sprintf(" Sent to %s.", req.Recipient)
		}
	}
	return res, nil
}

// issueOne allocates and appends a single record while holding the gate.
func (s *Service) issueOne(ctx context.Context, item models.BatchItem) (models.MORecord, error) {
	release, err := s.gate.Acquire(ctx, s.singleWait)
	if err != nil {
		return models.MORecord{}, err
	}
	defer release()

	now := s.clock.Now()
	alloc, err := s.allocator(ctx, now)
	if err != nil {
		return models.MORecord{}, err
	}
	return s.issue(ctx, alloc, item, now)
}

// LookupProduct returns a catalog entry with only its defined stations.
func (s *Service) LookupProduct(ctx context.Context, partNo string) (models.ProductInfo, error) {
	partNo = strings.TrimSpace(partNo)
	if partNo == "" {
		return models.ProductInfo{}, fmt.Errorf("part number is required: %w", models.ErrInvalidInput)
	}
	entry, err := s.catalog.GetProduct(ctx, partNo)
	if err != nil {
		return models.ProductInfo{}, lookupError(partNo, err)
	}
	return entry.Info(), nil
}

// GetRecord returns one ledger entry by id.
func (s *Service) GetRecord(ctx context.Context, moID string) (models.RecordView, error) {
	rec, err := s.ledger.GetRecord(ctx, strings.TrimSpace(moID))
	if err != nil {
		return models.RecordView{}, err
	}
	return rec.View(), nil
}

// allocator positions a sequence allocator after the most recently appended
// id of now's period. Callers hold the gate.
func (s *Service) allocator(ctx context.Context, now time.Time) (*sequence.Allocator, error) {
	prefix := sequence.Prefix(now)
	if f, ok := s.ledger.(lastIDFinder); ok {
		last, err := f.LastIDWithPrefix(ctx, prefix)
		if err != nil {
			return nil, fmt.Errorf("read ledger: %w", err)
		}
		return sequence.Start(prefix, last), nil
	}
	recs, err := s.ledger.Scan(ctx)
	if err != nil {
		return nil, fmt.Errorf("read ledger: %w", err)
	}
	ids := make([]string, len(recs))
	for i, r := range recs {
		ids[i] = r.MOID
	}
	return sequence.Start(prefix, sequence.LastMatching(ids, prefix)), nil
}

// maxAppendAttempts bounds retries after a duplicate id from another process.
const maxAppendAttempts = 3

// issue looks the part up, appends the record under the next id and only
// then advances the allocator. Callers hold the gate.
func (s *Service) issue(ctx context.Context, alloc *sequence.Allocator, item models.BatchItem, now time.Time) (models.MORecord, error) {
	entry, err := s.catalog.GetProduct(ctx, item.PartNo)
	if err != nil {
		return models.MORecord{}, lookupError(item.PartNo, err)
	}
	rec := buildRecord(alloc.Peek(), now, item, entry)
	for attempt := 1; ; attempt++ {
		err := s.ledger.AppendRecord(ctx, rec)
		if err == nil {
			break
		}
		if !errors.Is(err, models.ErrDuplicateID) || attempt == maxAppendAttempts {
			return models.MORecord{}, fmt.Errorf("part %s: append failed: %w", item.PartNo, err)
		}
		// Another process appended this id; continue after the current tail.
		fresh, ferr := s.allocator(ctx, now)
		if ferr != nil {
			return models.MORecord{}, ferr
		}
		*alloc = *fresh
		if alloc.Peek() == rec.MOID {
			alloc.Commit()
		}
		s.logger.Printf("WARN: %s already in ledger, retrying as %s", rec.MOID, alloc.Peek())
		rec.MOID = alloc.Peek()
	}
	alloc.Commit()
	return rec, nil
}

// buildRecord snapshots the catalog entry into a new record.
func buildRecord(moID string, now time.Time, item models.BatchItem, entry models.CatalogEntry) models.MORecord {
	return models.MORecord{
		MOID:           moID,
		CreatedAt:      now,
		PartNo:         item.PartNo,
		OrderNo:        item.OrderNo,
		Name:           entry.Name,
		CustomerPartNo: entry.CustomerPartNo,
		Material:       entry.Material,
		Quantity:       item.Quantity,
		Stations:       entry.Stations,
		Model:          entry.Model,
	}
}

func validateItem(ve *validation.ValidationErrors, item models.BatchItem) {
	validation.RequireField(ve, "part_no", item.PartNo)
	validation.ValidatePartNo(ve, "part_no", item.PartNo)
	validation.ValidateMaxLength(ve, "part_no", item.PartNo, validation.MaxStringLength)
	validation.ValidateMaxLength(ve, "order_no", item.OrderNo, validation.MaxStringLength)
	validation.ValidateQuantity(ve, "quantity", item.Quantity)
}

// partNotFound reads "part {partNo} not found" and matches models.ErrNotFound.
type partNotFound struct{ partNo string }

func (e partNotFound) Error() string { return fmt.Sprintf("part %s not found", e.partNo) }
func (e partNotFound) Unwrap() error { return models.ErrNotFound }

func lookupError(partNo string, err error) error {
	if errors.Is(err, models.ErrNotFound) {
		return partNotFound{partNo: partNo}
	}
	return fmt.Errorf("part %s: lookup failed: %w", partNo, err)
}
