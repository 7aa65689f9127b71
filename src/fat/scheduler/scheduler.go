// Package scheduler is C7: drives a batch's auto-test workflow under a
// concurrency limit, with pause/resume/stop and the single-channel/failed-
// hardpoint retest variants sharing the same loop over a filtered instance
// list (spec.md §4.5).
package scheduler

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"fatorch/src/fat/clockid"
	"fatorch/src/fat/eventbus"
	"fatorch/src/fat/executor"
	"fatorch/src/fat/model"
	"fatorch/src/fat/plc"
	"fatorch/src/fat/statemanager"
	"fatorch/src/fat/store"
	"fatorch/src/platform/ferr"
	"fatorch/src/util"
	"fatorch/src/util/concurrency"

	"github.com/rs/zerolog"
	"github.com/samber/oops"
	"golang.org/x/sync/semaphore"
)

// Executors maps a module's base type to the hardpoint/auto-verified
// executor that runs it; the composition root builds one of these from
// platform/config's tolerance/timing settings.
type Executors map[model.ModuleType]executor.Executor

// Options configures one Scheduler instance. Cmax defaults per spec.md §4.5
// ("3-8, config-exposed") are resolved by the composition root, not here.
type Options struct {
	Cmax       int64
	StepTimeout time.Duration
}

type Scheduler struct {
	store        store.Store
	sm           *statemanager.StateManager
	bus          *eventbus.Bus
	executors    Executors
	testPLC      plc.Driver
	targetPLC    plc.Driver
	testHealth   *plc.HealthTracker
	targetHealth *plc.HealthTracker
	ids          clockid.Id
	opts         Options
	logger       zerolog.Logger

	sem    *semaphore.Weighted
	paused atomic.Bool

	cancelMu sync.Mutex
	cancels  map[string]context.CancelFunc // key = batch_id, per-run cancellation token
}

func New(s store.Store, sm *statemanager.StateManager, bus *eventbus.Bus, executors Executors, testPLC, targetPLC plc.Driver, testHealth, targetHealth *plc.HealthTracker, ids clockid.Id, opts Options, logger zerolog.Logger) *Scheduler {
	return &Scheduler{
		store:        s,
		sm:           sm,
		bus:          bus,
		executors:    executors,
		testPLC:      testPLC,
		targetPLC:    targetPLC,
		testHealth:   testHealth,
		targetHealth: targetHealth,
		ids:          ids,
		opts:         opts,
		logger:       logger,
		sem:          semaphore.NewWeighted(opts.Cmax),
		cancels:      make(map[string]context.CancelFunc),
	}
}

var autoTestStatuses = []model.InstanceStatus{
	model.InstanceStatusNotTested,
	model.InstanceStatusWiringConfirmed,
	model.InstanceStatusRetesting,
}

// RunBatch enumerates instances in {NotTested, WiringConfirmed, Retesting}
// (plus TestCompletedFailed when retestFailed is set) and drives each
// through begin_hardpoint -> executor -> apply_raw_outcome under the
// concurrency limit.
func (s *Scheduler) RunBatch(ctx context.Context, batchID string, retestFailed bool) error {
	errorb := oops.In(util.GetFunctionName())

	statuses := autoTestStatuses
	if retestFailed {
		statuses = append(append([]model.InstanceStatus{}, autoTestStatuses...), model.InstanceStatusTestCompletedFailed)
	}

	instances, err := s.store.ListBatchInstancesByStatus(ctx, batchID, statuses)
	if err != nil {
		return errorb.Wrap(err)
	}

	return s.runInstances(ctx, batchID, instances)
}

// RunInstances is the single-channel retest entry point: same loop, caller-
// supplied instance list instead of a status filter.
func (s *Scheduler) RunInstances(ctx context.Context, batchID string, instanceIDs []string) error {
	instances := make([]model.ChannelTestInstance, 0, len(instanceIDs))
	for _, id := range instanceIDs {
		inst, err := s.store.GetInstance(ctx, id)
		if err != nil {
			return oops.In(util.GetFunctionName()).Code(ferr.NotFound).Wrapf(err, "instance '%s' not found", id)
		}
		instances = append(instances, inst)
	}
	return s.runInstances(ctx, batchID, instances)
}

// setRanges is the range-setting phase required before a batch dispatch: for
// every instance whose definition carries a configured range_lo/range_hi
// address, write the engineering-range bounds to the target PLC. Fanned out
// with concurrency.AllSettled since each write targets a distinct address and
// none depend on another. Honors pause the same as the step-execution phase:
// a paused run holds before writing a range rather than racing ahead of it.
func (s *Scheduler) setRanges(ctx context.Context, instances []model.ChannelTestInstance) error {
	tasks := make([]concurrency.Task[struct{}], 0, len(instances))
	for _, inst := range instances {
		inst := inst
		tasks = append(tasks, func() (struct{}, error) {
			s.waitWhilePaused(ctx)

			def, err := s.store.GetDefinition(ctx, inst.DefinitionID)
			if err != nil {
				return struct{}{}, err
			}
			if !def.RangeLoAddr.IsSome() || !def.RangeHiAddr.IsSome() {
				return struct{}{}, nil
			}

			if err := s.targetPLC.WriteFloat(ctx, def.RangeLoAddr.Unwrap(), float32(def.RangeLo.Unwrap())); err != nil {
				return struct{}{}, err
			}
			if err := s.targetPLC.WriteFloat(ctx, def.RangeHiAddr.Unwrap(), float32(def.RangeHi.Unwrap())); err != nil {
				return struct{}{}, err
			}
			return struct{}{}, nil
		})
	}

	for _, result := range concurrency.AllSettled(ctx, tasks) {
		if result.Err != nil {
			return oops.In(util.GetFunctionName()).Code(ferr.WriteError).Wrapf(result.Err, "range-setting write failed")
		}
	}
	return nil
}

func (s *Scheduler) runInstances(parent context.Context, batchID string, instances []model.ChannelTestInstance) error {
	errorb := oops.In(util.GetFunctionName())

	if !s.testHealth.Up() || !s.targetHealth.Up() {
		return errorb.Code(ferr.PlcDisconnected).
			Errorf("cannot run batch '%s': test-rig and target PLC must both report Up", batchID)
	}

	if err := s.setRanges(parent, instances); err != nil {
		return errorb.Wrap(err)
	}

	ctx, cancel := context.WithCancel(parent)
	s.cancelMu.Lock()
	s.cancels[batchID] = cancel
	s.cancelMu.Unlock()
	defer func() {
		s.cancelMu.Lock()
		delete(s.cancels, batchID)
		s.cancelMu.Unlock()
		cancel()
	}()

	total := len(instances)
	var completed atomic.Int64

	tasks := make([]concurrency.Task[struct{}], 0, len(instances))
	for _, inst := range instances {
		inst := inst
		tasks = append(tasks, func() (struct{}, error) {
			s.waitWhilePaused(ctx)
			if err := s.sem.Acquire(ctx, 1); err != nil {
				return struct{}{}, err
			}
			defer s.sem.Release(1)

			s.runOne(ctx, inst)

			n := completed.Add(1)
			s.bus.Publish(ctx, eventbus.Event{
				Kind:    eventbus.KindTestProgressChanged,
				BatchID: batchID,
				Payload: eventbus.TestProgressChangedPayload{Total: total, Tested: int(n)},
			})
			return struct{}{}, nil
		})
	}

	concurrency.AllSettled(ctx, tasks)
	return nil
}

// runOne drives a single instance through begin_hardpoint -> executor ->
// apply_raw_outcome; errors from begin_hardpoint (precondition) or the
// executor's own precondition error (e.g. NoTestChannel) are logged and the
// instance is left where it is rather than aborting the whole batch —
// spec.md §7: "Scheduler catches executor exceptions, converts them to
// failure outcomes, continues with other instances."
func (s *Scheduler) runOne(ctx context.Context, inst model.ChannelTestInstance) {
	if err := s.sm.BeginHardpoint(ctx, inst.InstanceID); err != nil {
		s.logger.Error().Err(err).Str("instance_id", inst.InstanceID).Msg("begin_hardpoint rejected, skipping instance")
		return
	}

	definition, err := s.store.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		s.logger.Error().Err(err).Str("instance_id", inst.InstanceID).Msg("failed to load definition, skipping instance")
		return
	}

	alloc, found, err := s.store.GetAllocation(ctx, inst.DefinitionID)
	if err != nil {
		s.logger.Error().Err(err).Str("instance_id", inst.InstanceID).Msg("failed to load allocation, skipping instance")
		return
	}
	if !found {
		alloc = model.ChannelAllocation{DefinitionID: inst.DefinitionID}
	}

	exec, ok := s.executors[definition.ModuleType.Base()]
	if !ok {
		s.logger.Error().Str("instance_id", inst.InstanceID).Str("module_type", string(definition.ModuleType)).
			Msg("no hardpoint executor registered for module type")
		return
	}

	stepCtx, cancel := context.WithTimeout(ctx, s.opts.StepTimeout)
	defer cancel()

	outcome, err := exec.Execute(stepCtx, executor.Request{
		Instance:   inst,
		Definition: definition,
		Allocation: alloc,
		TestPLC:    s.testPLC,
		TargetPLC:  s.targetPLC,
	})
	if err != nil {
		s.logger.Error().Err(err).Str("instance_id", inst.InstanceID).Msg("executor precondition error")
		return
	}

	if err := s.sm.ApplyRawOutcome(ctx, inst.InstanceID, outcome); err != nil {
		s.logger.Error().Err(err).Str("instance_id", inst.InstanceID).Msg("apply_raw_outcome failed")
	}
}

func (s *Scheduler) waitWhilePaused(ctx context.Context) {
	for s.paused.Load() {
		select {
		case <-ctx.Done():
			return
		case <-time.After(200 * time.Millisecond):
		}
	}
}

// Pause flips the shared flag checked before slot acquisition; in-flight
// executors complete rather than abort (spec.md §4.5).
func (s *Scheduler) Pause() {
	s.paused.Store(true)
}

func (s *Scheduler) Resume() {
	s.paused.Store(false)
}

// Stop additionally cancels in-flight executors for the named batch via
// their cancellation token.
func (s *Scheduler) Stop(batchID string) {
	s.cancelMu.Lock()
	defer s.cancelMu.Unlock()
	if cancel, ok := s.cancels[batchID]; ok {
		cancel()
	}
}
