package plc

import (
	"context"
	"fmt"
	"sync"
	"time"

	"fatorch/src/platform/health"

	"github.com/go-co-op/gocron/v2"
	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
)

const (
	pingShallowAcceptableLatency = 200 * time.Millisecond
	pingDeepAcceptableLatency    = 2 * time.Second
	healthCacheTTL               = 1 * time.Second
)

// HealthTracker wraps a Driver with a cached connection-health view so the
// scheduler's precondition check ("both endpoints Up") does not hammer the
// PLC with a fresh ping on every instance dispatch, and a periodic
// background recheck so a stale connection is caught even when nothing is
// actively reading from it.
type HealthTracker struct {
	role   EndpointRole
	driver Driver
	logger zerolog.Logger

	cache     *ttlcache.Cache[string, health.PingResult]
	scheduler gocron.Scheduler

	mu        sync.Mutex
	connected bool
}

const healthCacheKey = "status"

func NewHealthTracker(role EndpointRole, driver Driver, logger zerolog.Logger) (*HealthTracker, error) {
	cache := ttlcache.New[string, health.PingResult](
		ttlcache.WithTTL[string, health.PingResult](healthCacheTTL),
	)
	go cache.Start()

	scheduler, err := gocron.NewScheduler()
	if err != nil {
		return nil, fmt.Errorf("failed to create health scheduler for plc endpoint '%s': %w", role, err)
	}

	tracker := &HealthTracker{
		role:   role,
		driver: driver,
		logger: logger,
		cache:  cache,
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(5*time.Second),
		gocron.NewTask(func() {
			tracker.PingShallow(context.Background())
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to schedule health recheck for plc endpoint '%s': %w", role, err)
	}

	tracker.scheduler = scheduler
	scheduler.Start()

	return tracker, nil
}

func (t *HealthTracker) Stop(ctx context.Context) {
	if t.scheduler != nil {
		if err := t.scheduler.Shutdown(); err != nil {
			t.logger.Error().Err(err).Msg("Failed to shut down plc health scheduler")
		}
	}
	t.cache.Stop()
}

// Up reports the last-known connection state without issuing a new ping.
func (t *HealthTracker) Up() bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.connected
}

func (t *HealthTracker) PingShallow(ctx context.Context) health.PingResult {
	if item := t.cache.Get(healthCacheKey); item != nil {
		return item.Value()
	}

	result := health.NewHealthyPingResult(string(t.role), health.PingDepthShallow)

	if !t.driver.IsConnected() {
		result.SetPingOutput(health.PingCauseNetwork, "plc driver reports not connected")
		t.setConnected(false)
		t.cache.Set(healthCacheKey, result, healthCacheTTL)
		return result
	}

	_, err := t.driver.ReadBool(ctx, "")
	result.StoreComputedLatency(pingShallowAcceptableLatency)
	if err != nil {
		result.SetPingOutput(health.PingCauseFromRequestError(err), fmt.Sprintf("plc shallow ping failed: %v", err))
		t.setConnected(false)
	} else {
		t.setConnected(true)
	}

	t.cache.Set(healthCacheKey, result, healthCacheTTL)
	return result
}

func (t *HealthTracker) PingDeep(ctx context.Context, probeAddress string) health.PingResult {
	result := health.NewHealthyPingResult(string(t.role), health.PingDepthDeep)

	if !t.driver.IsConnected() {
		result.SetPingOutput(health.PingCauseNetwork, "plc driver reports not connected")
		t.setConnected(false)
		return result
	}

	_, err := t.driver.ReadFloat(ctx, probeAddress)
	result.StoreComputedLatency(pingDeepAcceptableLatency)
	if err != nil {
		result.SetPingOutput(health.PingCauseFromRequestError(err), fmt.Sprintf("plc deep ping failed on '%s': %v", probeAddress, err))
		t.setConnected(false)
		return result
	}

	t.setConnected(true)
	return result
}

func (t *HealthTracker) setConnected(connected bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.connected = connected
}
