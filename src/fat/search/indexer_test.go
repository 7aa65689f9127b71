package search

import (
	"testing"
	"time"

	"fatorch/src/fat/eventbus"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIndexer_ToDocument_ErrorDetail(t *testing.T) {
	idx := New(nil, "fatorch", zerolog.Nop())
	at := time.Now()

	doc, ok := idx.toDocument(eventbus.Event{
		Kind:       eventbus.KindErrorDetail,
		InstanceID: "inst-1",
		BatchID:    "batch-1",
		At:         at,
		Payload:    eventbus.ErrorDetailPayload{Code: "E_TOLERANCE", Message: "reading out of tolerance"},
	})

	require.True(t, ok)
	assert.Equal(t, "inst-1", doc.InstanceID)
	assert.Equal(t, "batch-1", doc.BatchID)
	assert.Equal(t, "E_TOLERANCE", doc.Code)
	assert.Equal(t, "error-E_TOLERANCE", doc.subTestItem)
}

func TestIndexer_ToDocument_SubTestChanged(t *testing.T) {
	idx := New(nil, "fatorch", zerolog.Nop())

	doc, ok := idx.toDocument(eventbus.Event{
		Kind:       eventbus.KindSubTestChanged,
		InstanceID: "inst-2",
		BatchID:    "batch-2",
		At:         time.Now(),
		Payload:    eventbus.SubTestChangedPayload{SubTestKey: "AI-001", Status: "FAIL", Message: "deviation exceeded"},
	})

	require.True(t, ok)
	assert.Equal(t, "AI-001", doc.SubTestKey)
	assert.Equal(t, "AI-001", doc.subTestItem)
}

func TestIndexer_ToDocument_IgnoresUnrelatedKinds(t *testing.T) {
	idx := New(nil, "fatorch", zerolog.Nop())

	_, ok := idx.toDocument(eventbus.Event{Kind: eventbus.KindTestProgressChanged})

	assert.False(t, ok)
}

func TestIndexer_ToDocument_IgnoresMismatchedPayloadType(t *testing.T) {
	idx := New(nil, "fatorch", zerolog.Nop())

	_, ok := idx.toDocument(eventbus.Event{Kind: eventbus.KindErrorDetail, Payload: "not-the-right-type"})

	assert.False(t, ok)
}
