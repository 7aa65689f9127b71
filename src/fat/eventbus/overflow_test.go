package eventbus

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEventLetter_MarshalUnmarshalRoundTrips(t *testing.T) {
	original := &eventLetter{Event: Event{
		Kind:       KindErrorDetail,
		InstanceID: "inst-1",
		BatchID:    "batch-1",
		Seq:        7,
		At:         time.Now().UTC().Truncate(time.Second),
		Payload:    nil, // any-typed payload does not round-trip through JSON without a concrete type hint
	}}

	bytes, err := original.Marshal()
	require.NoError(t, err)

	roundTripped := &eventLetter{}
	require.NoError(t, roundTripped.Unmarshal(bytes))

	assert.Equal(t, original.Event.Kind, roundTripped.Event.Kind)
	assert.Equal(t, original.Event.InstanceID, roundTripped.Event.InstanceID)
	assert.Equal(t, original.Event.BatchID, roundTripped.Event.BatchID)
	assert.Equal(t, original.Event.Seq, roundTripped.Event.Seq)
	assert.True(t, original.Event.At.Equal(roundTripped.Event.At))
}
