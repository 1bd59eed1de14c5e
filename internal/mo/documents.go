package mo

import (
	"context"
	"fmt"
	"strings"

	"moledger/internal/audit"
	"moledger/internal/document"
	"moledger/internal/models"
	"moledger/internal/notify"
	"moledger/internal/websocket"
)

func (s *Service) compileSingle(ctx context.Context, rec models.MORecord) (*File, error) {
	doc, err := s.assembler.BuildSingle(ctx, rec)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return s.export(ctx, doc)
}

func (s *Service) compileCombined(ctx context.Context, recs []models.MORecord, fileName string) (*File, error) {
	doc, err := s.assembler.BuildCombined(ctx, recs, fileName)
	if err != nil {
		return nil, err
	}
	defer doc.Close()
	return s.export(ctx, doc)
}

func (s *Service) export(ctx context.Context, doc *document.Document) (*File, error) {
	for _, r := range doc.Results {
		if r.ImageNote != "" {
			s.logger.Printf("WARN: %s: %s", r.MOID, r.ImageNote)
		}
	}
	out, err := s.renderer.Render(ctx, doc, s.renderOpts)
	if err != nil {
		return nil, err
	}
	return &File{Name: out.FileName, ContentType: out.ContentType, Data: out.Data}, nil
}

// notify sends file to the recipient. Failures are logged and reported as
// false; they never fail the operation.
func (s *Service) notify(ctx context.Context, m notify.Message, file *File) bool {
	if s.notifier == nil {
		s.logger.Printf("WARN: no notifier configured, %q not sent to %s", m.Subject, m.To)
		return false
	}
	if file != nil {
		m.Attachment = &notify.Attachment{FileName: file.Name, ContentType: file.ContentType, Data: file.Data}
	}
	if err := s.notifier.Send(ctx, m); err != nil {
		s.logger.Printf("WARN: notify %s: %v", m.To, err)
		return false
	}
	return true
}

func (s *Service) recordIssued(ctx context.Context, batchID string, recs []models.MORecord, failed int) {
	if len(recs) == 0 {
		return
	}
	user := audit.Username(ctx)
	ids := make([]string, len(recs))
	for i, rec := range recs {
		ids[i] = rec.MOID
		summary := fmt.Sprintf("Issued %s for part %s, order %s, qty %d", rec.MOID, rec.PartNo, rec.OrderNo, rec.Quantity)
		if batchID != "" {
			summary += " (batch " + batchID + ")"
		}
		s.audit.Record(ctx, user, audit.ActionCreate, rec.MOID, summary)
	}
	s.logger.Printf("Issued %d MO record(s): %s", len(ids), strings.Join(ids, ", "))
	if s.events != nil {
		s.events.Publish(websocket.Event{Type: websocket.EventMOCreated, IDs: ids, BatchID: batchID, Failed: failed})
	}
}

// RecordImport audits a catalog workbook import.
func (s *Service) RecordImport(ctx context.Context, source string, imported, skipped int) {
	s.audit.RecordCatalog(ctx, audit.Username(ctx), audit.ActionImport, source,
		fmt.Sprintf("Imported %d product(s), skipped %d row(s)", imported, skipped))
	s.logger.Printf("Catalog import from %s: %d imported, %d skipped", source, imported, skipped)
}
