package manualtest

import (
	"context"
	"sync"
	"time"

	"fatorch/src/fat/eventbus"
)

// monitorPollInterval sits in the 250-500ms band spec.md §4.6 calls for.
const monitorPollInterval = 300 * time.Millisecond

// monitors tracks the at-most-one-active-monitor-per-instance cancellation
// tokens, the same mutex-guarded-map idiom services/presence uses for its
// heartbeats.
type monitors struct {
	mutex        sync.Mutex
	cancelations map[string]context.CancelFunc
}

func newMonitors() monitors {
	return monitors{cancelations: make(map[string]context.CancelFunc)}
}

func (m *monitors) start(instanceID string, poller func(ctx context.Context, instanceID string)) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if _, exists := m.cancelations[instanceID]; exists {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	m.cancelations[instanceID] = cancel
	go poller(ctx, instanceID)
}

func (m *monitors) stop(instanceID string) {
	m.mutex.Lock()
	defer m.mutex.Unlock()

	if cancel, ok := m.cancelations[instanceID]; ok {
		cancel()
		delete(m.cancelations, instanceID)
	}
}

// StartMonitoring begins polling the addresses of interest for an instance
// and publishing MonitoringData events until StopMonitoring is called or the
// session completes. Only one monitor per instance runs at a time.
func (c *Coordinator) StartMonitoring(ctx context.Context, instanceID string, addresses []string) {
	c.monitors.start(instanceID, func(ctx context.Context, instanceID string) {
		c.pollMonitoring(ctx, instanceID, addresses)
	})
}

func (c *Coordinator) StopMonitoring(instanceID string) {
	c.monitors.stop(instanceID)
}

func (c *Coordinator) pollMonitoring(ctx context.Context, instanceID string, addresses []string) {
	ticker := time.NewTicker(monitorPollInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.publishMonitoringData(ctx, instanceID, addresses)
		}
	}
}

func (c *Coordinator) publishMonitoringData(ctx context.Context, instanceID string, addresses []string) {
	for _, addr := range addresses {
		value, err := c.targetPLC.ReadFloat(ctx, addr)
		if err != nil {
			c.logger.Warn().Err(err).Str("instance_id", instanceID).Str("address", addr).Msg("monitoring read failed")
			continue
		}
		c.bus.Publish(ctx, eventbus.Event{
			Kind:       eventbus.KindMonitoringData,
			InstanceID: instanceID,
			Payload: eventbus.MonitoringDataPayload{
				Label:    addr,
				RawValue: float64(value),
				EngValue: float64(value),
			},
		})
	}
}
