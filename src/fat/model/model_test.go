package model

import (
	"testing"

	optional "github.com/moznion/go-optional"
	"github.com/stretchr/testify/assert"
)

func TestModuleType_Base_StripsPassiveSuffix(t *testing.T) {
	assert.Equal(t, ModuleTypeAI, ModuleTypeAIPassive.Base())
	assert.Equal(t, ModuleTypeDO, ModuleTypeDOPassive.Base())
	assert.Equal(t, ModuleTypeAI, ModuleTypeAI.Base())
}

func TestModuleType_IsPassive(t *testing.T) {
	assert.True(t, ModuleTypeAOPassive.IsPassive())
	assert.False(t, ModuleTypeAO.IsPassive())
	assert.False(t, ModuleTypeCommunication.IsPassive())
}

func TestChannelPointDefinition_HasEngineeringRange(t *testing.T) {
	withRange := ChannelPointDefinition{RangeLo: optional.Some(0.0), RangeHi: optional.Some(100.0)}
	assert.True(t, withRange.HasEngineeringRange())

	without := ChannelPointDefinition{}
	assert.False(t, without.HasEngineeringRange())
}

func TestSubTestItem_Key_DistinguishesCustomLabels(t *testing.T) {
	assert.Equal(t, "Custom:my-check", SubTestItem{Kind: SubTestCustom, Label: "my-check"}.Key())
	assert.Equal(t, "HardPoint", SubTestItem{Kind: SubTestHardPoint}.Key())
}
