package allocator

import (
	"testing"

	"fatorch/src/fat/model"

	optional "github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func aiDefinition(tag string) model.ChannelPointDefinition {
	return model.ChannelPointDefinition{
		ID:              tag,
		Tag:             tag,
		ModuleType:      model.ModuleTypeAI,
		PowerSupplyType: model.PowerSupplySourced,
		RangeLo:         optional.Some(0.0),
		RangeHi:         optional.Some(100.0),
	}
}

func aoChannel(id string) model.TestPlcChannel {
	return model.TestPlcChannel{ID: id, ChannelType: model.ChannelTypeAOPassive, Enabled: true, CommunicationAddress: "1:" + id}
}

func TestAllocate_PairsEachDefinitionWithACompatibleChannel(t *testing.T) {
	defs := []model.ChannelPointDefinition{aiDefinition("TAG-1"), aiDefinition("TAG-2")}
	inventory := []model.TestPlcChannel{aoChannel("100"), aoChannel("101")}

	result, err := Allocate(defs, inventory, "station-a")

	require.NoError(t, err)
	require.Len(t, result.Allocations, 2)
	assert.Equal(t, "100", result.Allocations[0].TestChannelID)
	assert.Equal(t, "101", result.Allocations[1].TestChannelID)
	require.Len(t, result.Batches, 1)
	assert.Equal(t, 2, result.Batches[0].Counters.Total)
}

func TestAllocate_SplitsIntoNewBatchWhenInventoryExhausted(t *testing.T) {
	defs := []model.ChannelPointDefinition{aiDefinition("TAG-1"), aiDefinition("TAG-2"), aiDefinition("TAG-3")}
	inventory := []model.TestPlcChannel{aoChannel("100"), aoChannel("101")}

	result, err := Allocate(defs, inventory, "station-a")

	require.NoError(t, err)
	require.Len(t, result.Batches, 2)
	assert.Equal(t, 2, result.Batches[0].Counters.Total)
	assert.Equal(t, 1, result.Batches[1].Counters.Total)
}

func TestAllocate_LeavesTestChannelEmptyWhenInventoryEmpty(t *testing.T) {
	defs := []model.ChannelPointDefinition{aiDefinition("TAG-1")}

	result, err := Allocate(defs, nil, "station-a")

	require.NoError(t, err)
	require.Len(t, result.Allocations, 1)
	assert.Empty(t, result.Allocations[0].TestChannelID)
}

func TestAllocate_RejectsDuplicateTags(t *testing.T) {
	defs := []model.ChannelPointDefinition{aiDefinition("TAG-1"), aiDefinition("TAG-1")}

	_, err := Allocate(defs, nil, "station-a")

	assert.Error(t, err)
}

func TestAllocate_RejectsAnalogDefinitionMissingEngineeringRange(t *testing.T) {
	def := aiDefinition("TAG-1")
	def.RangeLo = optional.None[float64]()

	_, err := Allocate([]model.ChannelPointDefinition{def}, nil, "station-a")

	assert.Error(t, err)
}

func TestAllocate_CommunicationModuleDoesNotRequireRange(t *testing.T) {
	def := model.ChannelPointDefinition{ID: "COMM-1", Tag: "COMM-1", ModuleType: model.ModuleTypeCommunication}

	_, err := Allocate([]model.ChannelPointDefinition{def}, nil, "station-a")

	assert.Error(t, err) // no pairing rule exists for Communication -> expect the pairing error, not the range error
}

func TestNormalizedBatchID_SnakeCasesProductAndBatchName(t *testing.T) {
	id := NormalizedBatchID("ACME Widget", "批次1")

	assert.Contains(t, id, "acme_widget")
}
