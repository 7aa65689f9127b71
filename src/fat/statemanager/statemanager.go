// Package statemanager is C5: the sole authority over a ChannelTestInstance's
// overall_status and sub_test_results (I1). Every other component — the
// StepExecutors, the TestScheduler, the ManualTestCoordinator — reaches
// instance state exclusively through these operations; none of them ever
// write a ChannelTestInstance row directly.
package statemanager

import (
	"context"

	"fatorch/src/fat/clockid"
	"fatorch/src/fat/eventbus"
	"fatorch/src/fat/model"
	"fatorch/src/fat/store"
	"fatorch/src/platform/ferr"
	"fatorch/src/util"

	"github.com/jellydator/ttlcache/v3"
	optional "github.com/moznion/go-optional"
	"github.com/rs/zerolog"
	"github.com/samber/oops"
)

type StateManager struct {
	store    store.Store
	bus      *eventbus.Bus
	clock    clockid.Clock
	ids      clockid.Id
	locks    instanceLocks
	counters *ttlcache.Cache[string, model.BatchCounters]
	logger   zerolog.Logger
}

func New(s store.Store, bus *eventbus.Bus, clock clockid.Clock, ids clockid.Id, logger zerolog.Logger) *StateManager {
	return &StateManager{
		store:    s,
		bus:      bus,
		clock:    clock,
		ids:      ids,
		locks:    newInstanceLocks(),
		counters: newCountersCache(s, logger),
		logger:   logger,
	}
}

func (m *StateManager) CreateInstance(ctx context.Context, definitionID, batchID string) (string, error) {
	errorb := oops.In(util.GetFunctionName())

	instance := model.ChannelTestInstance{
		InstanceID:     m.ids.NewUUID(),
		DefinitionID:   definitionID,
		BatchID:        batchID,
		OverallStatus:  model.InstanceStatusNotTested,
		SubTestResults: map[string]model.SubTestResult{},
	}

	if err := m.store.InsertInstance(ctx, instance); err != nil {
		return "", errorb.Wrap(err)
	}

	m.invalidateCounters(batchID)
	return instance.InstanceID, nil
}

// ApplyRawOutcome is the only path mutating sub_test_results and
// overall_status from a StepExecutor result (spec.md §4.2 algorithm).
func (m *StateManager) ApplyRawOutcome(ctx context.Context, instanceID string, outcome model.RawTestOutcome) error {
	errorb := oops.In(util.GetFunctionName())
	unlock := m.locks.acquire(instanceID)
	defer unlock()

	instance, err := m.store.GetInstance(ctx, instanceID)
	if err != nil {
		return errorb.Code(ferr.NotFound).Wrapf(err, "instance '%s' not found", instanceID)
	}

	definition, err := m.store.GetDefinition(ctx, instance.DefinitionID)
	if err != nil {
		return errorb.Code(ferr.NotFound).Wrapf(err, "definition '%s' not found", instance.DefinitionID)
	}

	if !model.IsApplicable(definition.ModuleType, outcome.SubTestItem.Kind) {
		return errorb.Code(ferr.NotApplicable).
			Errorf("sub-test '%s' is not applicable to module type '%s'", outcome.SubTestItem.Key(), definition.ModuleType)
	}

	status := model.SubTestStatusFailed
	if outcome.Success {
		status = model.SubTestStatusPassed
	}

	updated := instance
	updated.SubTestResults = cloneSubTestResults(instance.SubTestResults)
	updated.SubTestResults[outcome.SubTestItem.Key()] = model.SubTestResult{
		Status:    status,
		Message:   outcome.Message,
		Timestamp: outcome.EndTime,
	}

	previousStatus := instance.OverallStatus
	updated.OverallStatus = recomputeOverallStatus(previousStatus, definition.ModuleType, updated.SubTestResults)
	if updated.OverallStatus.IsTerminal() {
		updated.FinalTestTime = optional.Some(outcome.EndTime)
	}
	if !outcome.Success {
		updated.ErrorMessage = outcome.Message
	}

	// I5: persist outcome + resulting instance atomically, before any event
	// makes the change visible to a reader.
	if err := m.store.PersistOutcomeAndState(ctx, outcome, updated); err != nil {
		return errorb.Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to persist outcome '%s'", outcome.ID)
	}

	m.invalidateCounters(instance.BatchID)
	m.emitOutcomeEvents(ctx, updated, previousStatus, outcome, status)

	return nil
}

func (m *StateManager) emitOutcomeEvents(ctx context.Context, instance model.ChannelTestInstance, previousStatus model.InstanceStatus, outcome model.RawTestOutcome, subStatus model.SubTestStatus) {
	if instance.OverallStatus != previousStatus {
		m.bus.Publish(ctx, eventbus.Event{
			Kind:       eventbus.KindStateChanged,
			InstanceID: instance.InstanceID,
			BatchID:    instance.BatchID,
			Payload:    eventbus.StateChangedPayload{From: string(previousStatus), To: string(instance.OverallStatus)},
		})
	}

	m.bus.Publish(ctx, eventbus.Event{
		Kind:       eventbus.KindSubTestChanged,
		InstanceID: instance.InstanceID,
		BatchID:    instance.BatchID,
		Payload: eventbus.SubTestChangedPayload{
			SubTestKey: outcome.SubTestItem.Key(),
			Status:     string(subStatus),
			Message:    optionOr(outcome.Message, ""),
		},
	})

	if !outcome.Success {
		m.bus.Publish(ctx, eventbus.Event{
			Kind:       eventbus.KindErrorDetail,
			InstanceID: instance.InstanceID,
			BatchID:    instance.BatchID,
			Payload: eventbus.ErrorDetailPayload{
				Code:    string(ferr.OutOfTolerance),
				Message: optionOr(outcome.Message, "sub-test failed"),
			},
		})
	}
}

// SetManualSubItem is called exclusively by the ManualTestCoordinator —
// operator-entered results never flow through the RawTestOutcome ledger the
// way automated hardpoint results do, since there's no PLC reading to
// persist, only a human verdict.
func (m *StateManager) SetManualSubItem(ctx context.Context, instanceID string, item model.SubTestItem, status model.SubTestStatus, notes optional.Option[string]) error {
	errorb := oops.In(util.GetFunctionName())
	unlock := m.locks.acquire(instanceID)
	defer unlock()

	instance, err := m.store.GetInstance(ctx, instanceID)
	if err != nil {
		return errorb.Code(ferr.NotFound).Wrapf(err, "instance '%s' not found", instanceID)
	}

	definition, err := m.store.GetDefinition(ctx, instance.DefinitionID)
	if err != nil {
		return errorb.Code(ferr.NotFound).Wrapf(err, "definition '%s' not found", instance.DefinitionID)
	}

	if !model.IsApplicable(definition.ModuleType, item.Kind) {
		return errorb.Code(ferr.NotApplicable).
			Errorf("sub-test '%s' is not applicable to module type '%s'", item.Key(), definition.ModuleType)
	}

	updated := instance
	updated.SubTestResults = cloneSubTestResults(instance.SubTestResults)
	updated.SubTestResults[item.Key()] = model.SubTestResult{
		Status:    status,
		Message:   notes,
		Timestamp: m.clock.Now(),
	}

	previousStatus := instance.OverallStatus
	updated.OverallStatus = recomputeOverallStatus(previousStatus, definition.ModuleType, updated.SubTestResults)
	if updated.OverallStatus.IsTerminal() {
		updated.FinalTestTime = optional.Some(m.clock.Now())
	}

	if err := m.store.UpdateInstance(ctx, updated); err != nil {
		return errorb.Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to persist manual sub-item '%s'", item.Key())
	}

	m.invalidateCounters(instance.BatchID)

	if updated.OverallStatus != previousStatus {
		m.bus.Publish(ctx, eventbus.Event{
			Kind:       eventbus.KindStateChanged,
			InstanceID: instance.InstanceID,
			BatchID:    instance.BatchID,
			Payload:    eventbus.StateChangedPayload{From: string(previousStatus), To: string(updated.OverallStatus)},
		})
	}
	m.bus.Publish(ctx, eventbus.Event{
		Kind:       eventbus.KindSubTestChanged,
		InstanceID: instance.InstanceID,
		BatchID:    instance.BatchID,
		Payload:    eventbus.SubTestChangedPayload{SubTestKey: item.Key(), Status: string(status), Message: optionOr(notes, "")},
	})

	return nil
}

// ConfirmWiring moves every NotTested instance of a batch straight to
// WiringConfirmed, collapsing the administrative WiringConfirmationRequired
// hop into one transition+event pair rather than round-tripping through it —
// both edges are still validated against the graph (I2).
func (m *StateManager) ConfirmWiring(ctx context.Context, batchID string) error {
	errorb := oops.In(util.GetFunctionName())

	instances, err := m.store.ListBatchInstancesByStatus(ctx, batchID, []model.InstanceStatus{model.InstanceStatusNotTested})
	if err != nil {
		return errorb.Wrap(err)
	}

	for _, instance := range instances {
		if err := m.transitionTo(ctx, instance.InstanceID, model.InstanceStatusWiringConfirmationRequired, model.InstanceStatusWiringConfirmed); err != nil {
			return err
		}
	}
	return nil
}

// BeginHardpoint moves an instance into HardPointTesting; a TestCompletedFailed
// instance (failed-hardpoint retest) passes through Retesting first.
func (m *StateManager) BeginHardpoint(ctx context.Context, instanceID string) error {
	instance, err := m.store.GetInstance(ctx, instanceID)
	if err == nil && instance.OverallStatus == model.InstanceStatusTestCompletedFailed {
		if err := m.transitionTo(ctx, instanceID, model.InstanceStatusRetesting); err != nil {
			return err
		}
	}
	return m.transitionTo(ctx, instanceID, model.InstanceStatusHardPointTesting)
}

func (m *StateManager) BeginManual(ctx context.Context, instanceID string) error {
	return m.transitionTo(ctx, instanceID, model.InstanceStatusManualTesting)
}

func (m *StateManager) BeginAlarm(ctx context.Context, instanceID string) error {
	return m.transitionTo(ctx, instanceID, model.InstanceStatusAlarmTesting)
}

func (m *StateManager) MarkSkipped(ctx context.Context, instanceID, reason string) error {
	unlock := m.locks.acquire(instanceID)
	defer unlock()

	errorb := oops.In(util.GetFunctionName())

	instance, err := m.store.GetInstance(ctx, instanceID)
	if err != nil {
		return errorb.Code(ferr.NotFound).Wrapf(err, "instance '%s' not found", instanceID)
	}

	if !model.CanTransition(instance.OverallStatus, model.InstanceStatusSkipped) {
		return errorb.Code(ferr.InvalidTransition).
			Errorf("instance '%s' cannot transition from '%s' to 'Skipped'", instanceID, instance.OverallStatus)
	}

	previous := instance.OverallStatus
	instance.OverallStatus = model.InstanceStatusSkipped
	instance.ErrorMessage = optional.Some(reason)
	instance.FinalTestTime = optional.Some(m.clock.Now())

	if err := m.store.UpdateInstance(ctx, instance); err != nil {
		return errorb.Code(ferr.PersistenceUnavailable).Wrap(err)
	}

	m.invalidateCounters(instance.BatchID)
	m.bus.Publish(ctx, eventbus.Event{
		Kind:       eventbus.KindStateChanged,
		InstanceID: instance.InstanceID,
		BatchID:    instance.BatchID,
		Payload:    eventbus.StateChangedPayload{From: string(previous), To: string(model.InstanceStatusSkipped)},
	})
	return nil
}

func (m *StateManager) SaveErrorNotes(ctx context.Context, instanceID string, notes model.ErrorNotes) error {
	errorb := oops.In(util.GetFunctionName())
	unlock := m.locks.acquire(instanceID)
	defer unlock()

	if err := m.store.SaveErrorNotes(ctx, instanceID, notes); err != nil {
		return errorb.Code(ferr.PersistenceUnavailable).Wrap(err)
	}
	return nil
}

// transitionTo validates each successive hop against the state graph (I2),
// writes only the final status, and emits a single StateChanged event —
// callers asking for one hop pass a single target; ConfirmWiring passes two
// to collapse the administrative intermediate state.
func (m *StateManager) transitionTo(ctx context.Context, instanceID string, hops ...model.InstanceStatus) error {
	unlock := m.locks.acquire(instanceID)
	defer unlock()

	errorb := oops.In(util.GetFunctionName())

	instance, err := m.store.GetInstance(ctx, instanceID)
	if err != nil {
		return errorb.Code(ferr.NotFound).Wrapf(err, "instance '%s' not found", instanceID)
	}

	previous := instance.OverallStatus
	from := previous
	for _, to := range hops {
		if !model.CanTransition(from, to) {
			return errorb.Code(ferr.InvalidTransition).
				Errorf("instance '%s' cannot transition from '%s' to '%s'", instanceID, from, to)
		}
		from = to
	}

	instance.OverallStatus = from
	if from == model.InstanceStatusHardPointTesting || from == model.InstanceStatusAlarmTesting || from == model.InstanceStatusManualTesting {
		instance.StartTime = optional.Some(m.clock.Now())
	}

	if err := m.store.UpdateInstance(ctx, instance); err != nil {
		return errorb.Code(ferr.PersistenceUnavailable).Wrap(err)
	}

	m.invalidateCounters(instance.BatchID)
	m.bus.Publish(ctx, eventbus.Event{
		Kind:       eventbus.KindStateChanged,
		InstanceID: instance.InstanceID,
		BatchID:    instance.BatchID,
		Payload:    eventbus.StateChangedPayload{From: string(previous), To: string(from)},
	})
	return nil
}

func cloneSubTestResults(src map[string]model.SubTestResult) map[string]model.SubTestResult {
	dst := make(map[string]model.SubTestResult, len(src))
	for k, v := range src {
		dst[k] = v
	}
	return dst
}

func optionOr(o optional.Option[string], fallback string) string {
	if v, ok := o.Take(); ok {
		return v
	}
	return fallback
}
