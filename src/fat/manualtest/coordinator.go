package manualtest

import (
	"context"

	"fatorch/src/fat/eventbus"
	"fatorch/src/fat/executor"
	"fatorch/src/fat/model"
	"fatorch/src/fat/plc"
	"fatorch/src/fat/statemanager"
	"fatorch/src/fat/store"
	"fatorch/src/platform/ferr"
	"fatorch/src/util"

	optional "github.com/moznion/go-optional"
	"github.com/rs/zerolog"
	"github.com/samber/oops"
)

// Coordinator is C8: it hosts manual-test sessions and the optional alarm
// stimulus step that precedes an operator's verdict, relaying everything
// through StateManager so I1 (single writer) still holds.
type Coordinator struct {
	store     store.Store
	sm        *statemanager.StateManager
	bus       *eventbus.Bus
	stimulus  executor.AlarmStimulus
	testPLC   plc.Driver
	targetPLC plc.Driver
	logger    zerolog.Logger

	sessions sessionRegistry
	monitors monitors
}

func New(s store.Store, sm *statemanager.StateManager, bus *eventbus.Bus, testPLC, targetPLC plc.Driver, logger zerolog.Logger) *Coordinator {
	return &Coordinator{
		store:     s,
		sm:        sm,
		bus:       bus,
		testPLC:   testPLC,
		targetPLC: targetPLC,
		logger:    logger,
		sessions:  newSessionRegistry(),
		monitors:  newMonitors(),
	}
}

// StartManualTest opens the session that §4.6 names and transitions the
// instance into ManualTesting (or AlarmTesting is entered lazily per-item
// via BeginAlarm — StateManager enforces the graph either way).
func (c *Coordinator) StartManualTest(ctx context.Context, instanceID string) (*Session, error) {
	errorb := oops.In(util.GetFunctionName())

	inst, err := c.store.GetInstance(ctx, instanceID)
	if err != nil {
		return nil, errorb.Code(ferr.NotFound).Wrapf(err, "instance '%s' not found", instanceID)
	}
	def, err := c.store.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return nil, errorb.Code(ferr.NotFound).Wrapf(err, "definition '%s' not found", inst.DefinitionID)
	}

	if err := c.sm.BeginManual(ctx, instanceID); err != nil {
		return nil, errorb.Wrap(err)
	}

	session := &Session{
		InstanceID: instanceID,
		ModuleType: def.ModuleType,
		Applicable: model.ManualSubTests(def.ModuleType),
		Results:    make(map[string]model.SubTestStatus),
	}
	for key, result := range inst.SubTestResults {
		if result.Status.IsTerminal() {
			session.Results[key] = result.Status
		}
	}
	c.sessions.put(session)

	return session, nil
}

// UpdateSubItem records an operator's verdict for one manual sub-item. When
// item.Kind is one of the four alarm levels, it first drives AlarmStimulus
// so the operator has a live PLC reading to compare against the HMI before
// confirming pass/fail (spec.md §4.3/§4.6).
func (c *Coordinator) UpdateSubItem(ctx context.Context, instanceID string, item model.SubTestItem, status model.SubTestStatus, notes optional.Option[string]) (*Session, error) {
	errorb := oops.In(util.GetFunctionName())

	session, ok := c.sessions.get(instanceID)
	if !ok {
		return nil, errorb.Code(ferr.NotFound).Errorf("no manual-test session open for instance '%s'", instanceID)
	}
	if !containsKind(session.Applicable, item.Kind) && item.Kind != model.SubTestCustom {
		return nil, errorb.Code(ferr.NotApplicable).Errorf("sub-test '%s' is not applicable to instance '%s'", item.Kind, instanceID)
	}

	if level, isAlarm := alarmLevelFor(item.Kind); isAlarm {
		if err := c.stimulateAlarm(ctx, instanceID, level); err != nil {
			return nil, errorb.Wrap(err)
		}
	}

	if err := c.sm.SetManualSubItem(ctx, instanceID, item, status, notes); err != nil {
		return nil, errorb.Wrap(err)
	}

	session.Results[item.Key()] = status
	c.bus.Publish(ctx, eventbus.Event{
		Kind:       eventbus.KindManualTestStatusChanged,
		InstanceID: instanceID,
		Payload: eventbus.ManualTestStatusChangedPayload{
			SessionID: instanceID,
			Status:    string(status),
		},
	})

	if session.Complete() {
		c.sessions.delete(instanceID)
		c.monitors.stop(instanceID)
	}

	return session, nil
}

func (c *Coordinator) stimulateAlarm(ctx context.Context, instanceID string, level executor.AlarmLevel) error {
	errorb := oops.In(util.GetFunctionName())

	inst, err := c.store.GetInstance(ctx, instanceID)
	if err != nil {
		return errorb.Code(ferr.NotFound).Wrapf(err, "instance '%s' not found", instanceID)
	}
	def, err := c.store.GetDefinition(ctx, inst.DefinitionID)
	if err != nil {
		return errorb.Code(ferr.NotFound).Wrapf(err, "definition '%s' not found", inst.DefinitionID)
	}
	alloc, _, err := c.store.GetAllocation(ctx, inst.DefinitionID)
	if err != nil {
		return errorb.Code(ferr.PersistenceUnavailable).Wrap(err)
	}

	if err := c.sm.BeginAlarm(ctx, instanceID); err != nil {
		return errorb.Wrap(err)
	}

	reading, err := c.stimulus.Stimulate(ctx, executor.Request{
		Instance:   inst,
		Definition: def,
		Allocation: alloc,
		TestPLC:    c.testPLC,
		TargetPLC:  c.targetPLC,
	}, level)
	if err != nil {
		return errorb.Wrap(err)
	}

	c.bus.Publish(ctx, eventbus.Event{
		Kind:       eventbus.KindMonitoringData,
		InstanceID: instanceID,
		Payload: eventbus.MonitoringDataPayload{
			Label:    reading.Label,
			RawValue: float64(reading.RawValue),
			EngValue: reading.EngValue,
		},
	})
	return nil
}

func containsKind(kinds []model.SubTestItemKind, kind model.SubTestItemKind) bool {
	for _, k := range kinds {
		if k == kind {
			return true
		}
	}
	return false
}

func alarmLevelFor(kind model.SubTestItemKind) (executor.AlarmLevel, bool) {
	switch kind {
	case model.SubTestLowLowAlarm:
		return executor.AlarmLevelLL, true
	case model.SubTestLowAlarm:
		return executor.AlarmLevelL, true
	case model.SubTestHighAlarm:
		return executor.AlarmLevelH, true
	case model.SubTestHighHighAlarm:
		return executor.AlarmLevelHH, true
	default:
		return "", false
	}
}
