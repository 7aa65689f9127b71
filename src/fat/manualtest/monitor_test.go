package manualtest

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestMonitorsAtMostOnePerInstance(t *testing.T) {
	m := newMonitors()
	started := make(chan struct{}, 2)

	poller := func(ctx context.Context, instanceID string) {
		started <- struct{}{}
		<-ctx.Done()
	}

	m.start("inst-1", poller)
	m.start("inst-1", poller) // second call must be a no-op

	select {
	case <-started:
	case <-time.After(time.Second):
		t.Fatal("expected first monitor to start")
	}
	select {
	case <-started:
		t.Fatal("second start() for the same instance must not spawn another poller")
	case <-time.After(50 * time.Millisecond):
	}

	m.stop("inst-1")
	m.mutex.Lock()
	_, stillRunning := m.cancelations["inst-1"]
	m.mutex.Unlock()
	assert.False(t, stillRunning)
}

func TestMonitorsStopIsIdempotent(t *testing.T) {
	m := newMonitors()
	assert.NotPanics(t, func() { m.stop("never-started") })
}
