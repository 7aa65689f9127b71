// Package executor is C6: one StepExecutor variant per module type, each
// pure over the driver handles it's given — none of them touch
// ChannelTestInstance directly (spec.md §4.3: "do not mutate instance state
// directly"). The caller (TestScheduler or ManualTestCoordinator) is always
// the one that feeds the resulting RawTestOutcome to StateManager.
package executor

import (
	"context"
	"encoding/json"
	"errors"
	"sync/atomic"
	"time"

	"fatorch/src/fat/clockid"
	"fatorch/src/fat/model"
	"fatorch/src/fat/plc"
	"fatorch/src/platform/ferr"

	optional "github.com/moznion/go-optional"
	"github.com/shopspring/decimal"
)

// Tolerance implements the |actual - v| <= abs + rel*|v| check from
// spec.md §4.3 using shopspring/decimal so repeated percentage-point
// comparisons across a whole AI/AO hardpoint run don't accumulate
// float64 rounding error into a false pass/fail near the boundary.
type Tolerance struct {
	Abs decimal.Decimal
	Rel decimal.Decimal
}

func (t Tolerance) Within(actual, expected float64) bool {
	a := decimal.NewFromFloat(actual)
	v := decimal.NewFromFloat(expected)
	diff := a.Sub(v).Abs()
	bound := t.Abs.Add(t.Rel.Mul(v.Abs()))
	return diff.LessThanOrEqual(bound)
}

// Config holds the tuning knobs spec.md §4.3 calls "implementer-chosen
// defaults; config-exposed" — sourced from platform/config at the
// composition root and threaded into every executor constructor.
type Config struct {
	Tolerance          Tolerance
	StabilizationWindow time.Duration
	DigitalSettleWindow time.Duration
	ContinueOnFailure   bool
}

// ConfigSource is the live-tuning seam: every executor reads its Config
// through one of these instead of holding a plain Config value, so the
// composition root's fsnotify-driven config watch (platform/config's
// WatchSchedulerOverrides) can swap in new tolerance/timing values without
// restarting the process or reconstructing any executor.
type ConfigSource struct {
	current atomic.Pointer[Config]
}

// NewConfigSource seeds a ConfigSource with an initial Config.
func NewConfigSource(initial Config) *ConfigSource {
	src := &ConfigSource{}
	src.Store(initial)
	return src
}

func (s *ConfigSource) Load() Config {
	return *s.current.Load()
}

func (s *ConfigSource) Store(c Config) {
	s.current.Store(&c)
}

// Request is the input every Execute call receives. TestPLC/TargetPLC are
// bound to the specific pair the allocator resolved for this instance.
type Request struct {
	Instance   model.ChannelTestInstance
	Definition model.ChannelPointDefinition
	Allocation model.ChannelAllocation
	TestPLC    plc.Driver
	TargetPLC  plc.Driver
}

// Executor is the common shape of every hardpoint/manual-stimulus variant.
type Executor interface {
	Execute(ctx context.Context, req Request) (model.RawTestOutcome, error)
}

// HardpointPercentages are the five stimulus points spec.md §4.3 names for
// AI/AO; DI/DO use the two-level boolean set in di.go/do.go instead.
var HardpointPercentages = []float64{0, 25, 50, 75, 100}

func engineeringValue(def model.ChannelPointDefinition, percent float64) (float64, bool) {
	lo, loOk := def.RangeLo.Take()
	hi, hiOk := def.RangeHi.Take()
	if !loOk || !hiOk {
		return 0, false
	}
	return lo + (percent/100)*(hi-lo), true
}

// classify turns a driver-level error into one of the §4.3 failure
// categories; callers fold the result into a failed RawTestOutcome's
// message rather than propagating the error, per §7's "executors never
// mutate state on error" rule — only NoTestChannel (no paired channel to
// drive at all) is returned as a precondition error instead.
func classify(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, context.DeadlineExceeded):
		return string(ferr.Timeout)
	case errors.Is(err, context.Canceled):
		return string(ferr.Cancelled)
	default:
		return string(ferr.WriteError)
	}
}

func outcomeID(ids clockid.Id, at time.Time) string {
	return ids.NewOutcomeID(at)
}

// encodeReadings serializes the per-point readings an aggregated hardpoint
// outcome carries; a marshal failure (never observed in practice — Reading
// has no unsupported field kinds) drops the readings rather than the whole
// outcome.
func encodeReadings(readings []model.Reading) optional.Option[string] {
	if len(readings) == 0 {
		return optional.None[string]()
	}
	payload, err := json.Marshal(readings)
	if err != nil {
		return optional.None[string]()
	}
	return optional.Some(string(payload))
}

func failedOutcome(ids clockid.Id, clock clockid.Clock, instanceID string, item model.SubTestItem, start time.Time, code string, detail string) model.RawTestOutcome {
	end := clock.Now()
	msg := code
	if detail != "" {
		msg = code + ": " + detail
	}
	return model.RawTestOutcome{
		ID:         outcomeID(ids, start),
		InstanceID: instanceID,
		SubTestItem: item,
		Success:    false,
		Message:    optional.Some(msg),
		StartTime:  start,
		EndTime:    end,
	}
}
