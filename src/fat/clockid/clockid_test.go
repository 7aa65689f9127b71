package clockid

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIdGenerator_NewUUID_IsUniqueAndWellFormed(t *testing.T) {
	gen := NewIdGenerator()

	a := gen.NewUUID()
	b := gen.NewUUID()

	assert.NotEqual(t, a, b)
	assert.Len(t, a, 36)
}

func TestIdGenerator_NewOutcomeID_IsMonotonicForIncreasingTimestamps(t *testing.T) {
	gen := NewIdGenerator()
	base := time.Now()

	first := gen.NewOutcomeID(base)
	second := gen.NewOutcomeID(base.Add(time.Millisecond))

	require.NotEqual(t, first, second)
	assert.Less(t, first, second)
}

func TestIdGenerator_NewOutcomeID_SameTimestampStillDistinct(t *testing.T) {
	gen := NewIdGenerator()
	at := time.Now()

	first := gen.NewOutcomeID(at)
	second := gen.NewOutcomeID(at)

	assert.NotEqual(t, first, second)
}

func TestNewRealClock_ReportsCurrentTime(t *testing.T) {
	clock := NewRealClock()

	before := time.Now()
	now := clock.Now()
	after := time.Now()

	assert.False(t, now.Before(before))
	assert.False(t, now.After(after.Add(time.Second)))
}
