package plc

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// fakeDriver is a minimal in-memory Driver used to exercise HealthTracker
// without a real socket.
type fakeDriver struct {
	mu          sync.Mutex
	connected   bool
	readBoolErr error
	readFltErr  error
}

func (f *fakeDriver) Connect(context.Context) error    { f.connected = true; return nil }
func (f *fakeDriver) Disconnect(context.Context) error  { f.connected = false; return nil }
func (f *fakeDriver) IsConnected() bool                 { f.mu.Lock(); defer f.mu.Unlock(); return f.connected }
func (f *fakeDriver) ReadBool(context.Context, string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return true, f.readBoolErr
}
func (f *fakeDriver) ReadFloat(context.Context, string) (float32, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return 1.5, f.readFltErr
}
func (f *fakeDriver) ReadInt(context.Context, string, IntWidth) (int64, error) { return 0, nil }
func (f *fakeDriver) WriteBool(context.Context, string, bool) error            { return nil }
func (f *fakeDriver) WriteFloat(context.Context, string, float32) error        { return nil }
func (f *fakeDriver) WriteInt(context.Context, string, int64, IntWidth) error  { return nil }

func TestHealthTracker_PingShallow_HealthyWhenDriverConnectedAndReadSucceeds(t *testing.T) {
	driver := &fakeDriver{connected: true}
	tracker, err := NewHealthTracker(EndpointTarget, driver, zerolog.Nop())
	require.NoError(t, err)
	defer tracker.Stop(context.Background())

	result := tracker.PingShallow(context.Background())

	assert.True(t, result.Healthy())
	assert.True(t, tracker.Up())
}

func TestHealthTracker_PingShallow_UnhealthyWhenDriverDisconnected(t *testing.T) {
	driver := &fakeDriver{connected: false}
	tracker, err := NewHealthTracker(EndpointTestRig, driver, zerolog.Nop())
	require.NoError(t, err)
	defer tracker.Stop(context.Background())

	result := tracker.PingShallow(context.Background())

	assert.False(t, result.Healthy())
	assert.False(t, tracker.Up())
}

func TestHealthTracker_PingShallow_UnhealthyWhenReadFails(t *testing.T) {
	driver := &fakeDriver{connected: true, readBoolErr: errors.New("timeout")}
	tracker, err := NewHealthTracker(EndpointTarget, driver, zerolog.Nop())
	require.NoError(t, err)
	defer tracker.Stop(context.Background())

	result := tracker.PingShallow(context.Background())

	assert.False(t, result.Healthy())
	assert.False(t, tracker.Up())
}

func TestHealthTracker_PingShallow_CachesResultWithinTTL(t *testing.T) {
	driver := &fakeDriver{connected: true}
	tracker, err := NewHealthTracker(EndpointTarget, driver, zerolog.Nop())
	require.NoError(t, err)
	defer tracker.Stop(context.Background())

	first := tracker.PingShallow(context.Background())
	driver.connected = false // would flip the result if re-pinged
	second := tracker.PingShallow(context.Background())

	assert.Equal(t, first.Status, second.Status)
}

func TestHealthTracker_PingDeep_UnhealthyOnReadFloatError(t *testing.T) {
	driver := &fakeDriver{connected: true, readFltErr: errors.New("exception")}
	tracker, err := NewHealthTracker(EndpointTarget, driver, zerolog.Nop())
	require.NoError(t, err)
	defer tracker.Stop(context.Background())

	result := tracker.PingDeep(context.Background(), "1:100")

	assert.False(t, result.Healthy())
	assert.False(t, tracker.Up())
}

func TestHealthTracker_PingDeep_HealthyOnSuccess(t *testing.T) {
	driver := &fakeDriver{connected: true}
	tracker, err := NewHealthTracker(EndpointTarget, driver, zerolog.Nop())
	require.NoError(t, err)
	defer tracker.Stop(context.Background())

	result := tracker.PingDeep(context.Background(), "1:100")

	assert.True(t, result.Healthy())
	assert.True(t, tracker.Up())
}
