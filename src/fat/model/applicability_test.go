package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsApplicable_CustomSubTestAlwaysApplies(t *testing.T) {
	assert.True(t, IsApplicable(ModuleTypeDI, SubTestItem{Kind: SubTestCustom, Label: "anything"}))
}

func TestIsApplicable_MatrixGatesByModuleType(t *testing.T) {
	assert.True(t, IsApplicable(ModuleTypeAI, SubTestItem{Kind: SubTestHighAlarm}))
	assert.False(t, IsApplicable(ModuleTypeDI, SubTestItem{Kind: SubTestHighAlarm}))
	assert.True(t, IsApplicable(ModuleTypeDI, SubTestItem{Kind: SubTestStateDisplay}))
}

func TestIsApplicable_PassiveVariantInheritsBaseMatrix(t *testing.T) {
	assert.True(t, IsApplicable(ModuleTypeAIPassive, SubTestItem{Kind: SubTestHighAlarm}))
}

func TestApplicableSubTests_ReturnsACopyNotTheSharedSlice(t *testing.T) {
	first := ApplicableSubTests(ModuleTypeAI)
	first[0] = SubTestCustom

	second := ApplicableSubTests(ModuleTypeAI)

	assert.NotEqual(t, SubTestCustom, second[0])
}

func TestHardpointSubTests_OneEntryPerModuleFamily(t *testing.T) {
	assert.Equal(t, []SubTestItemKind{SubTestHardPoint}, HardpointSubTests(ModuleTypeAI))
	assert.Equal(t, []SubTestItemKind{SubTestCommunicationTest}, HardpointSubTests(ModuleTypeCommunication))
}

func TestManualSubTests_ExcludesHardpointEntries(t *testing.T) {
	manual := ManualSubTests(ModuleTypeAI)

	assert.NotContains(t, manual, SubTestHardPoint)
	assert.Contains(t, manual, SubTestHighAlarm)
}

func TestManualSubTests_EmptyForCommunicationModules(t *testing.T) {
	manual := ManualSubTests(ModuleTypeCommunication)

	assert.Empty(t, manual)
}

func TestPairedChannelType_SourcedFlipsToPassiveComplement(t *testing.T) {
	channelType, ok := PairedChannelType(ModuleTypeAI, PowerSupplySourced)
	assert.True(t, ok)
	assert.Equal(t, ChannelTypeAOPassive, channelType)

	channelType, ok = PairedChannelType(ModuleTypeAI, PowerSupplyPassive)
	assert.True(t, ok)
	assert.Equal(t, ChannelTypeAO, channelType)
}

func TestPairedChannelType_DigitalPairsAreReciprocal(t *testing.T) {
	diChannel, ok := PairedChannelType(ModuleTypeDI, PowerSupplyPassive)
	assert.True(t, ok)
	assert.Equal(t, ChannelTypeDO, diChannel)

	doChannel, ok := PairedChannelType(ModuleTypeDO, PowerSupplySourced)
	assert.True(t, ok)
	assert.Equal(t, ChannelTypeDI, doChannel)
}

func TestPairedChannelType_NoRuleForCommunication(t *testing.T) {
	_, ok := PairedChannelType(ModuleTypeCommunication, PowerSupplySourced)
	assert.False(t, ok)
}
