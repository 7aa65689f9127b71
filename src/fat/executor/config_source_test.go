package executor

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func TestConfigSourceLoadReflectsLatestStore(t *testing.T) {
	src := NewConfigSource(Config{StabilizationWindow: 2 * time.Second})
	assert.Equal(t, 2*time.Second, src.Load().StabilizationWindow)

	src.Store(Config{StabilizationWindow: 5 * time.Second, Tolerance: Tolerance{Abs: decimal.NewFromFloat(1)}})
	assert.Equal(t, 5*time.Second, src.Load().StabilizationWindow)
	assert.True(t, src.Load().Tolerance.Abs.Equal(decimal.NewFromFloat(1)))
}
