package statemanager

import "fatorch/src/fat/model"

// recomputeOverallStatus implements spec.md §4.2's four-branch rule, in
// order: it's a function of the current status, the instance's module type,
// and its current sub-test map, never of "what just happened" — so
// set_manual_sub_item and apply_raw_outcome can share one implementation.
func recomputeOverallStatus(current model.InstanceStatus, moduleType model.ModuleType, results map[string]model.SubTestResult) model.InstanceStatus {
	applicable := model.ApplicableSubTests(moduleType)
	hardpoint := model.HardpointSubTests(moduleType)
	hardpointSet := make(map[model.SubTestItemKind]struct{}, len(hardpoint))
	for _, k := range hardpoint {
		hardpointSet[k] = struct{}{}
	}

	anyFailed := false
	anyPassed := false
	allPassedOrSkipped := true
	allHardpointPassed := true
	anyManualUnresolved := false

	for _, kind := range applicable {
		key := model.SubTestItem{Kind: kind}.Key()
		result, recorded := results[key]

		status := model.SubTestStatusNotTested
		if recorded {
			status = result.Status
		}

		switch status {
		case model.SubTestStatusFailed:
			anyFailed = true
			allPassedOrSkipped = false
		case model.SubTestStatusPassed:
			anyPassed = true
		case model.SubTestStatusSkipped, model.SubTestStatusNotApplicable:
			// counts toward "all passed or skipped", doesn't count as passed
		default:
			allPassedOrSkipped = false
		}

		if _, isHardpoint := hardpointSet[kind]; isHardpoint {
			if status != model.SubTestStatusPassed {
				allHardpointPassed = false
			}
		} else if !status.IsTerminal() {
			anyManualUnresolved = true
		}
	}

	switch {
	case anyFailed:
		return model.InstanceStatusTestCompletedFailed
	case allPassedOrSkipped && anyPassed:
		return model.InstanceStatusTestCompletedPassed
	case allHardpointPassed && anyManualUnresolved:
		return model.InstanceStatusHardPointTestCompleted
	default:
		return current
	}
}
