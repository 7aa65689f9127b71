package model

// transitionGraph is the edge table from spec.md §4.2. Every instance
// status change StateManager performs must appear here, or it fails with
// InvalidTransition (I2). "Skipped" is reachable from every non-terminal
// status, handled separately in CanTransition below.
var transitionGraph = map[InstanceStatus][]InstanceStatus{
	InstanceStatusNotTested:                  {InstanceStatusWiringConfirmationRequired},
	InstanceStatusWiringConfirmationRequired: {InstanceStatusWiringConfirmed},
	InstanceStatusWiringConfirmed:            {InstanceStatusHardPointTesting},
	InstanceStatusHardPointTesting:           {InstanceStatusHardPointTestCompleted, InstanceStatusTestCompletedFailed},
	InstanceStatusHardPointTestCompleted:     {InstanceStatusManualTesting, InstanceStatusAlarmTesting, InstanceStatusTestCompletedPassed},
	InstanceStatusManualTesting:               {InstanceStatusTestCompletedPassed, InstanceStatusTestCompletedFailed, InstanceStatusAlarmTesting},
	InstanceStatusAlarmTesting:               {InstanceStatusTestCompletedPassed, InstanceStatusTestCompletedFailed},
	InstanceStatusTestCompletedFailed:        {InstanceStatusRetesting},
	InstanceStatusRetesting:                  {InstanceStatusHardPointTesting},
}

// CanTransition reports whether from -> to is a legal edge: either in the
// explicit graph, or the universal "any non-terminal -> Skipped" rule.
func CanTransition(from, to InstanceStatus) bool {
	if to == InstanceStatusSkipped {
		return !from.IsTerminal()
	}
	for _, candidate := range transitionGraph[from] {
		if candidate == to {
			return true
		}
	}
	return false
}
