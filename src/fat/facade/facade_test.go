package facade

import (
	"context"
	"os"
	"testing"

	"fatorch/src/fat/allocator"
	"fatorch/src/fat/clockid"
	"fatorch/src/fat/eventbus"
	"fatorch/src/fat/model"
	fatneo4j "fatorch/src/fat/neo4j"
	"fatorch/src/fat/statemanager"
	"fatorch/src/fat/store"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStore is a minimal in-memory store.Store used only to exercise the
// facade's sequencing without a real Postgres/Scylla connection.
type memStore struct {
	definitions map[string]model.ChannelPointDefinition
	inventory   []model.TestPlcChannel
	allocations map[string][]model.ChannelAllocation
	batches     map[string]model.TestBatch
	instances   map[string]model.ChannelTestInstance
	outcomes    map[string][]model.RawTestOutcome
}

func newMemStore() *memStore {
	return &memStore{
		definitions: map[string]model.ChannelPointDefinition{},
		allocations: map[string][]model.ChannelAllocation{},
		batches:     map[string]model.TestBatch{},
		instances:   map[string]model.ChannelTestInstance{},
		outcomes:    map[string][]model.RawTestOutcome{},
	}
}

func (s *memStore) InsertDefinitions(_ context.Context, defs []model.ChannelPointDefinition) error {
	for _, d := range defs {
		s.definitions[d.ID] = d
	}
	return nil
}
func (s *memStore) GetDefinition(_ context.Context, id string) (model.ChannelPointDefinition, error) {
	return s.definitions[id], nil
}
func (s *memStore) ListDefinitions(_ context.Context) ([]model.ChannelPointDefinition, error) {
	out := make([]model.ChannelPointDefinition, 0, len(s.definitions))
	for _, d := range s.definitions {
		out = append(out, d)
	}
	return out, nil
}
func (s *memStore) FindByTag(_ context.Context, tag string) (model.ChannelPointDefinition, bool, error) {
	for _, d := range s.definitions {
		if d.Tag == tag {
			return d, true, nil
		}
	}
	return model.ChannelPointDefinition{}, false, nil
}

func (s *memStore) ListTestPlcChannels(_ context.Context) ([]model.TestPlcChannel, error) {
	return s.inventory, nil
}

func (s *memStore) ReplaceBatchAllocations(_ context.Context, batchID string, allocations []model.ChannelAllocation) error {
	s.allocations[batchID] = allocations
	return nil
}
func (s *memStore) ListBatchAllocations(_ context.Context, batchID string) ([]model.ChannelAllocation, error) {
	return s.allocations[batchID], nil
}
func (s *memStore) GetAllocation(_ context.Context, definitionID string) (model.ChannelAllocation, bool, error) {
	for _, allocs := range s.allocations {
		for _, a := range allocs {
			if a.DefinitionID == definitionID {
				return a, true, nil
			}
		}
	}
	return model.ChannelAllocation{}, false, nil
}

func (s *memStore) InsertBatch(_ context.Context, batch model.TestBatch) error {
	s.batches[batch.BatchID] = batch
	return nil
}
func (s *memStore) GetBatch(_ context.Context, batchID string) (model.TestBatch, error) {
	return s.batches[batchID], nil
}
func (s *memStore) ListBatches(_ context.Context) ([]model.TestBatch, error) {
	out := make([]model.TestBatch, 0, len(s.batches))
	for _, b := range s.batches {
		out = append(out, b)
	}
	return out, nil
}
func (s *memStore) UpdateBatchCounters(_ context.Context, batchID string, counters model.BatchCounters, status model.OverallBatchStatus) error {
	b := s.batches[batchID]
	b.Counters = counters
	b.OverallStatus = status
	s.batches[batchID] = b
	return nil
}

func (s *memStore) InsertInstance(_ context.Context, instance model.ChannelTestInstance) error {
	s.instances[instance.InstanceID] = instance
	return nil
}
func (s *memStore) GetInstance(_ context.Context, instanceID string) (model.ChannelTestInstance, error) {
	return s.instances[instanceID], nil
}
func (s *memStore) ListBatchInstances(_ context.Context, batchID string) ([]model.ChannelTestInstance, error) {
	var out []model.ChannelTestInstance
	for _, inst := range s.instances {
		if inst.BatchID == batchID {
			out = append(out, inst)
		}
	}
	return out, nil
}
func (s *memStore) ListBatchInstancesByStatus(_ context.Context, batchID string, statuses []model.InstanceStatus) ([]model.ChannelTestInstance, error) {
	var out []model.ChannelTestInstance
	for _, inst := range s.instances {
		if inst.BatchID != batchID {
			continue
		}
		for _, st := range statuses {
			if inst.OverallStatus == st {
				out = append(out, inst)
				break
			}
		}
	}
	return out, nil
}
func (s *memStore) UpdateInstance(_ context.Context, instance model.ChannelTestInstance) error {
	s.instances[instance.InstanceID] = instance
	return nil
}
func (s *memStore) SaveErrorNotes(_ context.Context, instanceID string, notes model.ErrorNotes) error {
	inst := s.instances[instanceID]
	inst.ErrorNotes = notes
	s.instances[instanceID] = inst
	return nil
}
func (s *memStore) PersistOutcomeAndState(_ context.Context, outcome model.RawTestOutcome, instance model.ChannelTestInstance) error {
	s.outcomes[instance.InstanceID] = append(s.outcomes[instance.InstanceID], outcome)
	s.instances[instance.InstanceID] = instance
	return nil
}

func (s *memStore) AppendOutcome(_ context.Context, outcome model.RawTestOutcome) error {
	s.outcomes[outcome.InstanceID] = append(s.outcomes[outcome.InstanceID], outcome)
	return nil
}
func (s *memStore) OutcomeExists(_ context.Context, outcomeID string) (bool, error) {
	for _, list := range s.outcomes {
		for _, o := range list {
			if o.ID == outcomeID {
				return true, nil
			}
		}
	}
	return false, nil
}
func (s *memStore) ListInstanceOutcomes(_ context.Context, instanceID string) ([]model.RawTestOutcome, error) {
	return s.outcomes[instanceID], nil
}

var _ store.Store = (*memStore)(nil)

type noopWiring struct{}

func (noopWiring) ProjectAllocation(_ context.Context, _, _, _ string) error { return nil }
func (noopWiring) ResolveRigChannel(_ context.Context, _ string) (string, error) {
	return "", nil
}

var _ fatneo4j.WiringProjector = noopWiring{}

func newTestFacade(t *testing.T) (*Facade, *memStore) {
	t.Helper()
	s := newMemStore()
	ids := clockid.NewIdGenerator()
	clock := clockwork.NewFakeClock()
	logger := zerolog.Nop()
	bus := eventbus.New(clock, nil, logger)

	alloc := allocator.New(s, noopWiring{}, ids)
	sm := statemanager.New(s, bus, clock, ids, logger)

	f := New(Options{
		Store:        s,
		Allocator:    alloc,
		StateManager: sm,
		Clock:        clock,
		Logger:       logger,
	})
	return f, s
}

func TestImportAndPrepareBatchCreatesInstancesPerDefinition(t *testing.T) {
	f, s := newTestFacade(t)
	ctx := context.Background()

	s.inventory = []model.TestPlcChannel{
		{ID: "rig-1", ChannelType: model.ChannelTypeDOPassive, CommunicationAddress: "DO1.0", Enabled: true},
	}

	defs := []model.ChannelPointDefinition{
		{ID: "def-1", Tag: "TAG-1", ModuleType: model.ModuleTypeDI, PowerSupplyType: model.PowerSupplySourced},
	}

	batchIDs, err := f.ImportAndPrepareBatch(ctx, ImportAndPrepareBatchRequest{
		Definitions:  defs,
		ProductModel: "RIG-A",
		StationName:  "Station-1",
	})
	require.NoError(t, err)
	require.Len(t, batchIDs, 1)

	batch, err := s.GetBatch(ctx, batchIDs[0])
	require.NoError(t, err)
	assert.Equal(t, "Station-1", batch.StationName)
	assert.Equal(t, 1, batch.Counters.Total)

	instances, err := s.ListBatchInstances(ctx, batchIDs[0])
	require.NoError(t, err)
	require.Len(t, instances, 1)
	assert.Equal(t, "def-1", instances[0].DefinitionID)
	assert.Equal(t, model.InstanceStatusNotTested, instances[0].OverallStatus)

	allocations, err := s.ListBatchAllocations(ctx, batchIDs[0])
	require.NoError(t, err)
	require.Len(t, allocations, 1)
	assert.Equal(t, "rig-1", allocations[0].TestChannelID)
}

func TestExportChannelAllocationWritesCSV(t *testing.T) {
	f, s := newTestFacade(t)
	ctx := context.Background()

	s.inventory = []model.TestPlcChannel{
		{ID: "rig-1", ChannelType: model.ChannelTypeDOPassive, CommunicationAddress: "DO1.0", Enabled: true},
	}
	defs := []model.ChannelPointDefinition{
		{ID: "def-1", Tag: "TAG-1", ModuleType: model.ModuleTypeDI, PowerSupplyType: model.PowerSupplySourced},
	}
	_, err := f.ImportAndPrepareBatch(ctx, ImportAndPrepareBatchRequest{
		Definitions:  defs,
		ProductModel: "RIG-A",
		StationName:  "Station-1",
	})
	require.NoError(t, err)

	dir := t.TempDir()
	path, err := f.ExportChannelAllocation(ctx, dir+"/allocation.csv")
	require.NoError(t, err)

	content, err := os.ReadFile(path)
	require.NoError(t, err)
	assert.Contains(t, string(content), "def-1")
	assert.Contains(t, string(content), "rig-1")
}
