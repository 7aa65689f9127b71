package statemanager

import (
	"context"
	"time"

	"fatorch/src/fat/model"
	"fatorch/src/fat/store"

	"github.com/jellydator/ttlcache/v3"
	"github.com/rs/zerolog"
)

const (
	countersCacheTTL             = 3 * time.Second
	countersCacheLoaderTimeout   = 2 * time.Second
)

// newCountersCache mirrors the presence service's statusCache: a loader-backed
// ttlcache so BatchCounters reads (P3, I4) don't re-aggregate every instance
// row on every poll, while still recomputing from the store of record rather
// than drifting an independently-maintained running total.
func newCountersCache(s store.Store, logger zerolog.Logger) *ttlcache.Cache[string, model.BatchCounters] {
	cache := ttlcache.New[string, model.BatchCounters](
		ttlcache.WithTTL[string, model.BatchCounters](countersCacheTTL),
		ttlcache.WithLoader[string, model.BatchCounters](ttlcache.LoaderFunc[string, model.BatchCounters](
			func(c *ttlcache.Cache[string, model.BatchCounters], batchID string) *ttlcache.Item[string, model.BatchCounters] {
				ctx, cancel := context.WithTimeout(context.Background(), countersCacheLoaderTimeout)
				defer cancel()

				counters, err := aggregateCounters(ctx, s, batchID)
				if err != nil {
					logger.Err(err).Msgf("failed to aggregate counters for batch '%s'", batchID)
					return nil
				}
				return c.Set(batchID, counters, ttlcache.DefaultTTL)
			},
		)),
	)
	go cache.Start()
	return cache
}

func aggregateCounters(ctx context.Context, s store.Store, batchID string) (model.BatchCounters, error) {
	instances, err := s.ListBatchInstances(ctx, batchID)
	if err != nil {
		return model.BatchCounters{}, err
	}

	var c model.BatchCounters
	for _, inst := range instances {
		c.Total++
		switch inst.OverallStatus {
		case model.InstanceStatusTestCompletedPassed:
			c.Tested++
			c.Passed++
		case model.InstanceStatusTestCompletedFailed:
			c.Tested++
			c.Failed++
		case model.InstanceStatusSkipped:
			c.Tested++
			c.Skipped++
		case model.InstanceStatusNotTested:
			// neither started nor tested
		default:
			c.Started++
		}
	}
	return c, nil
}

// GetBatchCounters is the read path P3/I4 test scenarios assert against. The
// cache's own loader (configured in newCountersCache) recomputes from the
// store on a miss; ctx is only used for the fallback direct aggregation
// below, which runs if the loader already failed and logged once.
func (m *StateManager) GetBatchCounters(ctx context.Context, batchID string) (model.BatchCounters, error) {
	item := m.counters.Get(batchID)
	if item == nil {
		return aggregateCounters(ctx, m.store, batchID)
	}
	return item.Value(), nil
}

func (m *StateManager) invalidateCounters(batchID string) {
	m.counters.Delete(batchID)
}
