package leaderlease

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNewDefaultsIdentityWhenUnset(t *testing.T) {
	l := New(Options{Key: "/fatorch/orchestrator/leader", TTLSec: 10})
	assert.NotEmpty(t, l.identity)
}

func TestNewKeepsExplicitIdentity(t *testing.T) {
	l := New(Options{Key: "/fatorch/orchestrator/leader", TTLSec: 10, Identity: "replica-a"})
	assert.Equal(t, "replica-a", l.identity)
}
