package mo

import (
	"context"
	"fmt"
	"strings"

	"github.com/google/uuid"

	"moledger/internal/document"
	"moledger/internal/models"
	"moledger/internal/notify"
	"moledger/internal/validation"
	"moledger/internal/websocket"
)

// MaxBatchItems bounds one batch request.
const MaxBatchItems = 500

// BatchRequest asks for several MOs compiled into one combined document.
type BatchRequest struct {
	Items     []models.BatchItem `json:"items"`
	Recipient string             `json:"recipient,omitempty"`
}

// BatchResult lists the ids created, in input order, and the literal text
// of every failure.
type BatchResult struct {
	BatchID  string   `json:"batch_id"`
	Created  []string `json:"created"`
	Errors   []string `json:"errors"`
	File     *File    `json:"file,omitempty"`
	Notified bool     `json:"notified"`
	Message  string   `json:"-"`
}

// itemOutcome is the per-item accumulator: exactly one of rec or err is set.
type itemOutcome struct {
	rec models.MORecord
	err error
}

// CreateBatch issues one MO per item while holding the gate once for the
// whole batch, so the batch's ids are contiguous. Item failures are
// collected; they never stop the remaining items. The combined document is
// built after the gate is released and only over the created records.
func (s *Service) CreateBatch(ctx context.Context, req BatchRequest) (BatchResult, error) {
	ve := &validation.ValidationErrors{}
	if len(req.Items) == 0 {
		ve.Add("items", "at least one item is required")
	}
	if len(req.Items) > MaxBatchItems {
		ve.Add("items", fmt.Sprintf("at most %d items per batch", MaxBatchItems))
	}
	validation.ValidateEmail(ve, "recipient", req.Recipient)
	if err := ve.Err(); err != nil {
		return BatchResult{}, err
	}

	res := BatchResult{BatchID: uuid.NewString(), Created: []string{}, Errors: []string{}}

	outcomes, err := s.issueBatch(ctx, req.Items)
	if err != nil {
		return BatchResult{}, err
	}

	var created []models.MORecord
	for _, o := range outcomes {
		if o.err != nil {
			res.Errors = append(res.Errors, o.err.Error())
			continue
		}
		created = append(created, o.rec)
		res.Created = append(res.Created, o.rec.MOID)
	}
	s.recordIssued(ctx, res.BatchID, created, len(res.Errors))

	if len(created) > 0 {
		file, err := s.compileCombined(ctx, created, document.BatchFileName(len(created)))
		if err != nil {
			s.logger.Printf("WARN: batch %s document failed: %v", res.BatchID, err)
			res.Errors = append(res.Errors, "document generation failed: "+err.Error())
		} else {
			res.File = file
		}
	}

	if req.Recipient != "" && res.File != nil {
		res.Notified = s.notify(ctx, notify.Message{
			To:        req.Recipient,
			Subject:   fmt.Sprintf("Batch MO notice - %d created (combined)", len(created)),
			Body:      batchSummary(res),
			EventType: websocket.EventMOCreated,
		}, res.File)
	}

	res.Message = summaryMessage(len(res.Created), res.Errors)
	return res, nil
}

// issueBatch runs the serialized part of a batch. Only a lock timeout or a
// ledger read failure fails the whole batch; both happen before any write.
func (s *Service) issueBatch(ctx context.Context, items []models.BatchItem) ([]itemOutcome, error) {
	release, err := s.gate.Acquire(ctx, s.batchWait)
	if err != nil {
		return nil, err
	}
	defer release()

	now := s.clock.Now()
	alloc, err := s.allocator(ctx, now)
	if err != nil {
		return nil, err
	}

	outcomes := make([]itemOutcome, len(items))
	for i, raw := range items {
		item := models.BatchItem{
			PartNo:   strings.TrimSpace(raw.PartNo),
			OrderNo:  strings.TrimSpace(raw.OrderNo),
			Quantity: raw.Quantity,
		}
		ve := &validation.ValidationErrors{}
		validateItem(ve, item)
		if ve.HasErrors() {
			outcomes[i].err = fmt.Errorf("item %d (part %s): %s", i+1, item.PartNo, ve.Error())
			continue
		}
		outcomes[i].rec, outcomes[i].err = s.issue(ctx, alloc, item, now)
	}
	return outcomes, nil
}

func summaryMessage(created int, errs []string) string {
	msg := fmt.Sprintf("created %d MO record(s).", created)
	if len(errs) > 0 {
		msg += "\n\n=== failures ===\n" + strings.Join(errs, "\n")
	}
	return msg
}

func batchSummary(res BatchResult) string {
	var b strings.Builder
	fmt.Fprintf(&b, "Created %d MO record(s)", len(res.Created))
	if n := len(res.Created); n > 0 {
		fmt.Fprintf(&b, ": %s ~ %s", res.Created[0], res.Created[n-1])
	}
	fmt.Fprintf(&b, "\nFailures: %d\n", len(res.Errors))
	for _, e := range res.Errors {
		fmt.Fprintf(&b, "- %s\n", e)
	}
	fmt.Fprintf(&b, "Batch: %s\n", res.BatchID)
	return b.String()
}
