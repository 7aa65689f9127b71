package statemanager

import (
	"testing"

	"fatorch/src/fat/model"

	"github.com/stretchr/testify/assert"
)

func subTestResults(entries map[model.SubTestItemKind]model.SubTestStatus) map[string]model.SubTestResult {
	out := make(map[string]model.SubTestResult, len(entries))
	for kind, status := range entries {
		out[model.SubTestItem{Kind: kind}.Key()] = model.SubTestResult{Status: status}
	}
	return out
}

func TestRecomputeOverallStatus_AnyFailedSubTestFailsTheInstance(t *testing.T) {
	results := subTestResults(map[model.SubTestItemKind]model.SubTestStatus{
		model.SubTestHardPoint:    model.SubTestStatusFailed,
		model.SubTestStateDisplay: model.SubTestStatusNotTested,
	})

	status := recomputeOverallStatus(model.InstanceStatusHardPointTesting, model.ModuleTypeDI, results)

	assert.Equal(t, model.InstanceStatusTestCompletedFailed, status)
}

func TestRecomputeOverallStatus_AllApplicableSubTestsPassedOrSkippedPassesTheInstance(t *testing.T) {
	results := subTestResults(map[model.SubTestItemKind]model.SubTestStatus{
		model.SubTestHardPoint:    model.SubTestStatusPassed,
		model.SubTestStateDisplay: model.SubTestStatusPassed,
	})

	status := recomputeOverallStatus(model.InstanceStatusManualTesting, model.ModuleTypeDI, results)

	assert.Equal(t, model.InstanceStatusTestCompletedPassed, status)
}

func TestRecomputeOverallStatus_HardpointPassedButManualUnresolvedMovesToHardPointTestCompleted(t *testing.T) {
	results := subTestResults(map[model.SubTestItemKind]model.SubTestStatus{
		model.SubTestHardPoint:    model.SubTestStatusPassed,
		model.SubTestStateDisplay: model.SubTestStatusNotTested,
	})

	status := recomputeOverallStatus(model.InstanceStatusHardPointTesting, model.ModuleTypeDI, results)

	assert.Equal(t, model.InstanceStatusHardPointTestCompleted, status)
}

func TestRecomputeOverallStatus_UnresolvedHardpointLeavesStatusUnchanged(t *testing.T) {
	results := subTestResults(map[model.SubTestItemKind]model.SubTestStatus{
		model.SubTestHardPoint:    model.SubTestStatusNotTested,
		model.SubTestStateDisplay: model.SubTestStatusNotTested,
	})

	status := recomputeOverallStatus(model.InstanceStatusHardPointTesting, model.ModuleTypeDI, results)

	assert.Equal(t, model.InstanceStatusHardPointTesting, status)
}

func TestRecomputeOverallStatus_SkippedSubTestsCountTowardPassedOrSkippedButNotPassed(t *testing.T) {
	results := subTestResults(map[model.SubTestItemKind]model.SubTestStatus{
		model.SubTestHardPoint:    model.SubTestStatusSkipped,
		model.SubTestStateDisplay: model.SubTestStatusSkipped,
	})

	status := recomputeOverallStatus(model.InstanceStatusHardPointTesting, model.ModuleTypeDI, results)

	// both terminal and neither failed nor passed: stays at current, since
	// anyPassed is false and the instance never actually exercised anything.
	assert.Equal(t, model.InstanceStatusHardPointTesting, status)
}
