package manualtest

import (
	"testing"

	"fatorch/src/fat/model"

	"github.com/stretchr/testify/assert"
)

func TestSessionComplete(t *testing.T) {
	session := &Session{
		InstanceID: "inst-1",
		Applicable: []model.SubTestItemKind{model.SubTestLowAlarm, model.SubTestHighAlarm},
		Results:    map[string]model.SubTestStatus{},
	}
	assert.False(t, session.Complete())

	session.Results[model.SubTestItem{Kind: model.SubTestLowAlarm}.Key()] = model.SubTestStatusPassed
	assert.False(t, session.Complete(), "still missing the high-alarm verdict")

	session.Results[model.SubTestItem{Kind: model.SubTestHighAlarm}.Key()] = model.SubTestStatusFailed
	assert.True(t, session.Complete())
}

func TestSessionCompleteRejectsNonTerminalStatus(t *testing.T) {
	session := &Session{
		Applicable: []model.SubTestItemKind{model.SubTestTrendCheck},
		Results: map[string]model.SubTestStatus{
			model.SubTestItem{Kind: model.SubTestTrendCheck}.Key(): model.SubTestStatusTesting,
		},
	}
	assert.False(t, session.Complete())
}

func TestSessionRegistryLifecycle(t *testing.T) {
	registry := newSessionRegistry()

	_, ok := registry.get("inst-1")
	assert.False(t, ok)

	registry.put(&Session{InstanceID: "inst-1"})
	got, ok := registry.get("inst-1")
	assert.True(t, ok)
	assert.Equal(t, "inst-1", got.InstanceID)

	registry.delete("inst-1")
	_, ok = registry.get("inst-1")
	assert.False(t, ok)
}
