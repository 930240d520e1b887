package audit

import (
	"bytes"
	"context"
	"encoding/json"
	"log/slog"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSlogSink_WritesStructuredRecord(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))

	err := sink.Append(context.Background(), Event{
		Key:        EventMutationApplied,
		TenantID:   "t1",
		UserID:     "cashier1",
		OutletID:   "o1",
		EntityType: "order",
		EntityID:   "ord-1",
		Channel:    "mobile",
		Metadata:   map[string]any{"mutation_id": "m1"},
	})
	require.NoError(t, err)

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.Equal(t, "audit", rec["msg"])
	assert.Equal(t, "audit", rec["component"])
	assert.Equal(t, EventMutationApplied, rec["event"])
	assert.Equal(t, "o1", rec["outlet"])
	assert.Equal(t, "ord-1", rec["entity_id"])
	assert.Equal(t, map[string]any{"mutation_id": "m1"}, rec["metadata"])
}

func TestSlogSink_OmitsEmptyOptionalFields(t *testing.T) {
	var buf bytes.Buffer
	sink := NewSlogSink(slog.New(slog.NewJSONHandler(&buf, nil)))
	require.NoError(t, sink.Append(context.Background(), Event{Key: EventInvoiceClaimed, TenantID: "t1"}))

	var rec map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &rec))
	assert.NotContains(t, rec, "outlet")
	assert.NotContains(t, rec, "entity_id")
	assert.NotContains(t, rec, "metadata")
}

func TestMemory(t *testing.T) {
	m := &Memory{}
	ctx := context.Background()
	require.NoError(t, m.Append(ctx, Event{Key: EventMutationApplied}))
	require.NoError(t, m.Append(ctx, Event{Key: EventMutationRejected}))
	assert.Equal(t, []string{EventMutationApplied, EventMutationRejected}, m.Keys())
}
