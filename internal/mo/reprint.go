package mo

import (
	"context"
	"fmt"
	"strings"

	"moledger/internal/audit"
	"moledger/internal/document"
	"moledger/internal/models"
	"moledger/internal/websocket"
)

// ReprintResult carries the matched records and their combined document.
type ReprintResult struct {
	OrderNo string              `json:"order_no"`
	Records []models.RecordView `json:"records"`
	File    *File               `json:"file"`
	Message string              `json:"-"`
}

// ReprintByOrder rebuilds the combined document for every ledger entry whose
// order number equals orderNo exactly. It reads committed state only and
// never takes the gate.
func (s *Service) ReprintByOrder(ctx context.Context, orderNo string) (ReprintResult, error) {
	orderNo = strings.TrimSpace(orderNo)
	if orderNo == "" {
		return ReprintResult{}, fmt.Errorf("order number is required: %w", models.ErrInvalidInput)
	}
	recs, err := s.ledger.FindByOrder(ctx, orderNo)
	if err != nil {
		return ReprintResult{}, fmt.Errorf("read ledger: %w", err)
	}
	if len(recs) == 0 {
		return ReprintResult{}, fmt.Errorf("no MO records for order %s: %w", orderNo, models.ErrNotFound)
	}

	file, err := s.compileCombined(ctx, recs, document.OrderFileName(orderNo))
	if err != nil {
		return ReprintResult{}, fmt.Errorf("reprint order %s: %w", orderNo, err)
	}

	res := ReprintResult{
		OrderNo: orderNo,
		Records: make([]models.RecordView, len(recs)),
		File:    file,
		Message: fmt.Sprintf("found %d MO record(s)", len(recs)),
	}
	ids := make([]string, len(recs))
	for i, rec := range recs {
		res.Records[i] = rec.View()
		ids[i] = rec.MOID
	}

	s.audit.Record(ctx, audit.Username(ctx), audit.ActionReprint, orderNo,
		fmt.Sprintf("Reprinted %d MO record(s) for order %s", len(recs), orderNo))
	if s.events != nil {
		s.events.Publish(websocket.Event{Type: websocket.EventMOReprinted, IDs: ids, OrderNo: orderNo})
	}
	return res, nil
}
