package statemanager

import (
	"context"
	"testing"

	"fatorch/src/fat/model"
	"fatorch/src/fat/store"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeCountersStore only implements the one method aggregateCounters calls;
// embedding store.Store satisfies the interface while leaving every other
// method to panic if exercised, which this test never does.
type fakeCountersStore struct {
	store.Store
	instances []model.ChannelTestInstance
}

func (f *fakeCountersStore) ListBatchInstances(context.Context, string) ([]model.ChannelTestInstance, error) {
	return f.instances, nil
}

func TestAggregateCounters_TalliesEachTerminalStatus(t *testing.T) {
	s := &fakeCountersStore{instances: []model.ChannelTestInstance{
		{OverallStatus: model.InstanceStatusTestCompletedPassed},
		{OverallStatus: model.InstanceStatusTestCompletedPassed},
		{OverallStatus: model.InstanceStatusTestCompletedFailed},
		{OverallStatus: model.InstanceStatusSkipped},
		{OverallStatus: model.InstanceStatusNotTested},
		{OverallStatus: model.InstanceStatusHardPointTesting},
	}}

	counters, err := aggregateCounters(context.Background(), s, "batch-1")

	require.NoError(t, err)
	assert.Equal(t, 6, counters.Total)
	assert.Equal(t, 4, counters.Tested)
	assert.Equal(t, 2, counters.Passed)
	assert.Equal(t, 1, counters.Failed)
	assert.Equal(t, 1, counters.Skipped)
	assert.Equal(t, 1, counters.Started)
}

func TestAggregateCounters_EmptyBatchYieldsZeroedCounters(t *testing.T) {
	s := &fakeCountersStore{}

	counters, err := aggregateCounters(context.Background(), s, "batch-empty")

	require.NoError(t, err)
	assert.Equal(t, model.BatchCounters{}, counters)
}
