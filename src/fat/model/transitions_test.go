package model

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCanTransition_FollowsTheExplicitGraph(t *testing.T) {
	assert.True(t, CanTransition(InstanceStatusNotTested, InstanceStatusWiringConfirmationRequired))
	assert.True(t, CanTransition(InstanceStatusHardPointTesting, InstanceStatusTestCompletedFailed))
	assert.False(t, CanTransition(InstanceStatusNotTested, InstanceStatusHardPointTesting))
}

func TestCanTransition_AnyNonTerminalStateMaySkip(t *testing.T) {
	assert.True(t, CanTransition(InstanceStatusWiringConfirmed, InstanceStatusSkipped))
	assert.True(t, CanTransition(InstanceStatusManualTesting, InstanceStatusSkipped))
}

func TestCanTransition_TerminalStatesCannotSkip(t *testing.T) {
	assert.False(t, CanTransition(InstanceStatusTestCompletedPassed, InstanceStatusSkipped))
	assert.False(t, CanTransition(InstanceStatusSkipped, InstanceStatusSkipped))
}

func TestCanTransition_RetestLoopsBackIntoHardPointTesting(t *testing.T) {
	assert.True(t, CanTransition(InstanceStatusTestCompletedFailed, InstanceStatusRetesting))
	assert.True(t, CanTransition(InstanceStatusRetesting, InstanceStatusHardPointTesting))
}

func TestInstanceStatus_IsTerminal(t *testing.T) {
	assert.True(t, InstanceStatusTestCompletedPassed.IsTerminal())
	assert.True(t, InstanceStatusTestCompletedFailed.IsTerminal())
	assert.True(t, InstanceStatusSkipped.IsTerminal())
	assert.False(t, InstanceStatusHardPointTesting.IsTerminal())
}
