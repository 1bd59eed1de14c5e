package mo

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"moledger/internal/models"
	"moledger/internal/websocket"
)

func fiveItems(third string) []models.BatchItem {
	return []models.BatchItem{
		{PartNo: "P-1", OrderNo: "ORD-9", Quantity: 10},
		{PartNo: "P-2", OrderNo: "ORD-9", Quantity: 20},
		{PartNo: third, OrderNo: "ORD-9", Quantity: 30},
		{PartNo: "P-4", OrderNo: "ORD-9", Quantity: 40},
		{PartNo: "P-5", OrderNo: "ORD-9", Quantity: 50},
	}
}

func TestCreateBatchCollectsItemFailures(t *testing.T) {
	f := newFixture(t)
	res, err := f.service().CreateBatch(context.Background(), BatchRequest{Items: fiveItems("NOPE")})
	require.NoError(t, err)

	want := []string{"MO-2023100001", "MO-2023100002", "MO-2023100003", "MO-2023100004"}
	assert.Equal(t, want, res.Created)
	assert.Equal(t, []string{"part NOPE not found"}, res.Errors)
	assert.Equal(t, want, sheetsOf(t, res.File))
	assert.Equal(t, "Batch_MO_(4_records).xlsx", res.File.Name)
	assert.Equal(t, "created 4 MO record(s).\n\n=== failures ===\npart NOPE not found", res.Message)
	assert.NotEmpty(t, res.BatchID)

	recs, err := f.store.Scan(context.Background())
	require.NoError(t, err)
	require.Len(t, recs, 4)
	assert.Equal(t, "P-4", recs[2].PartNo)
}

func TestCreateBatchAllSucceed(t *testing.T) {
	f := newFixture(t)
	res, err := f.service().CreateBatch(context.Background(), BatchRequest{Items: fiveItems("P-3")})
	require.NoError(t, err)
	assert.Len(t, res.Created, 5)
	assert.Empty(t, res.Errors)
	assert.Equal(t, "created 5 MO record(s).", res.Message)
	assert.Len(t, sheetsOf(t, res.File), 5)
}

func TestCreateBatchInvalidItemIsCollected(t *testing.T) {
	f := newFixture(t)
	items := fiveItems("P-3")
	items[1].Quantity = 0
	res, err := f.service().CreateBatch(context.Background(), BatchRequest{Items: items})
	require.NoError(t, err)
	assert.Len(t, res.Created, 4)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "item 2 (part P-2)")
	assert.Equal(t, "MO-2023100002", res.Created[1])
}

func TestCreateBatchAppendFailureLeavesNoGap(t *testing.T) {
	f := newFixture(t)
	f.cfg.Ledger = &flakyLedger{Store: f.store, failPart: "P-2"}
	res, err := f.service().CreateBatch(context.Background(), BatchRequest{Items: fiveItems("P-3")})
	require.NoError(t, err)

	assert.Equal(t, []string{"MO-2023100001", "MO-2023100002", "MO-2023100003", "MO-2023100004"}, res.Created)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "part P-2: append failed")
}

func TestCreateBatchNothingCreated(t *testing.T) {
	f := newFixture(t)
	items := []models.BatchItem{{PartNo: "X-1", Quantity: 1}, {PartNo: "X-2", Quantity: 1}}
	res, err := f.service().CreateBatch(context.Background(), BatchRequest{Items: items, Recipient: "a@test.com"})
	require.NoError(t, err)

	assert.Empty(t, res.Created)
	assert.Equal(t, []string{"part X-1 not found", "part X-2 not found"}, res.Errors)
	assert.Nil(t, res.File)
	assert.False(t, res.Notified)
	assert.Empty(t, f.notifier.msgs)
	assert.Empty(t, f.events.events)
}

func TestCreateBatchNotifiesWithSummary(t *testing.T) {
	f := newFixture(t)
	res, err := f.service().CreateBatch(context.Background(), BatchRequest{Items: fiveItems("NOPE"), Recipient: "a@test.com"})
	require.NoError(t, err)
	assert.True(t, res.Notified)

	require.Len(t, f.notifier.msgs, 1)
	msg := f.notifier.msgs[0]
	assert.Equal(t, "Batch MO notice - 4 created (combined)", msg.Subject)
	assert.Contains(t, msg.Body, "MO-2023100001 ~ MO-2023100004")
	assert.Contains(t, msg.Body, "Failures: 1")
	assert.Contains(t, msg.Body, "part NOPE not found")
	require.NotNil(t, msg.Attachment)
	assert.Equal(t, "Batch_MO_(4_records).xlsx", msg.Attachment.FileName)

	require.Len(t, f.events.events, 1)
	evt := f.events.events[0]
	assert.Equal(t, websocket.EventMOCreated, evt.Type)
	assert.Equal(t, res.BatchID, evt.BatchID)
	assert.Equal(t, 1, evt.Failed)
	assert.Len(t, evt.IDs, 4)
}

func TestCreateBatchDocumentFailureKeepsRecords(t *testing.T) {
	f := newFixture(t)
	f.cfg.Renderer = failingRenderer{}
	res, err := f.service().CreateBatch(context.Background(), BatchRequest{Items: fiveItems("P-3"), Recipient: "a@test.com"})
	require.NoError(t, err)

	assert.Len(t, res.Created, 5)
	require.Len(t, res.Errors, 1)
	assert.Contains(t, res.Errors[0], "document generation failed")
	assert.Nil(t, res.File)
	assert.Empty(t, f.notifier.msgs)

	recs, err := f.store.Scan(context.Background())
	require.NoError(t, err)
	assert.Len(t, recs, 5)
}

func TestCreateBatchLockTimeout(t *testing.T) {
	f := newFixture(t)
	f.cfg.BatchWait = 50 * time.Millisecond
	svc := f.service()

	release, err := f.gate.Acquire(context.Background(), time.Second)
	require.NoError(t, err)
	defer release()

	_, err = svc.CreateBatch(context.Background(), BatchRequest{Items: fiveItems("P-3")})
	assert.True(t, errors.Is(err, models.ErrLockTimeout))
	recs, err := f.store.Scan(context.Background())
	require.NoError(t, err)
	assert.Empty(t, recs)
}

func TestCreateBatchValidation(t *testing.T) {
	f := newFixture(t)
	_, err := f.service().CreateBatch(context.Background(), BatchRequest{})
	assert.True(t, errors.Is(err, models.ErrInvalidInput))

	_, err = f.service().CreateBatch(context.Background(), BatchRequest{Items: fiveItems("P-3"), Recipient: "bad"})
	assert.True(t, errors.Is(err, models.ErrInvalidInput))
}

func TestBatchIDsAreContiguousAcrossBatches(t *testing.T) {
	f := newFixture(t)
	svc := f.service()
	ctx := context.Background()

	first, err := svc.CreateBatch(ctx, BatchRequest{Items: fiveItems("P-3")[:2]})
	require.NoError(t, err)
	one, err := svc.CreateOne(ctx, CreateRequest{PartNo: "P-1", Quantity: 1})
	require.NoError(t, err)
	second, err := svc.CreateBatch(ctx, BatchRequest{Items: fiveItems("P-3")[:3]})
	require.NoError(t, err)

	assert.Equal(t, []string{"MO-2023100001", "MO-2023100002"}, first.Created)
	assert.Equal(t, "MO-2023100003", one.Record.MOID)
	assert.Equal(t, []string{"MO-2023100004", "MO-2023100005", "MO-2023100006"}, second.Created)
}
