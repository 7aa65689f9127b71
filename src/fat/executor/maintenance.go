package executor

import (
	"context"
	"time"

	"fatorch/src/fat/clockid"
	"fatorch/src/fat/model"
	"fatorch/src/platform/ferr"

	optional "github.com/moznion/go-optional"
)

// Maintenance toggles the maintenance-enable address and verifies the
// effect by reading the channel's value back — unlike the alarm stimulus,
// this step is deterministic and self-verifying, so it reports its own
// Passed/Failed the way a hardpoint executor does (spec.md §4.3: "toggles
// the maintenance-enable address and verifies the effect").
type Maintenance struct {
	Config *ConfigSource
	IDs    clockid.Id
	Clock  clockid.Clock
}

func (e *Maintenance) Execute(ctx context.Context, req Request) (model.RawTestOutcome, error) {
	cfg := e.Config.Load()
	item := model.NewSubTestItem(model.SubTestMaintenance)
	start := e.Clock.Now()

	enableAddr, ok := req.Definition.MaintenanceEnableAddr.Take()
	if !ok {
		return failedOutcome(e.IDs, e.Clock, req.Instance.InstanceID, item, start, string(ferr.InvalidDefinition), "no maintenance_enable_addr configured"), nil
	}
	setpoint, ok := req.Definition.MaintenanceSetpoint.Take()
	if !ok {
		return failedOutcome(e.IDs, e.Clock, req.Instance.InstanceID, item, start, string(ferr.InvalidDefinition), "no maintenance_setpoint configured"), nil
	}

	if err := req.TargetPLC.WriteBool(ctx, enableAddr, true); err != nil {
		return failedOutcome(e.IDs, e.Clock, req.Instance.InstanceID, item, start, classify(err), "enable maintenance mode"), nil
	}
	defer func() {
		resetCtx, cancel := context.WithTimeout(context.Background(), cfg.DigitalSettleWindow+time.Second)
		defer cancel()
		_ = req.TargetPLC.WriteBool(resetCtx, enableAddr, false)
	}()

	select {
	case <-ctx.Done():
		return failedOutcome(e.IDs, e.Clock, req.Instance.InstanceID, item, start, string(ferr.Cancelled), ""), nil
	case <-time.After(cfg.DigitalSettleWindow):
	}

	actual, err := req.TargetPLC.ReadFloat(ctx, req.Definition.PlcAbsoluteAddress)
	if err != nil {
		return failedOutcome(e.IDs, e.Clock, req.Instance.InstanceID, item, start, classify(err), "read maintenance value"), nil
	}

	readings := []model.Reading{{Label: "maintenance_value", RawValue: float64(actual), EngValue: float64(actual)}}

	if !cfg.Tolerance.Within(float64(actual), setpoint) {
		return model.RawTestOutcome{
			ID:           outcomeID(e.IDs, start),
			InstanceID:   req.Instance.InstanceID,
			SubTestItem:  item,
			Success:      false,
			Message:      optional.Some(string(ferr.OutOfTolerance)),
			StartTime:    start,
			EndTime:      e.Clock.Now(),
			ReadingsJSON: encodeReadings(readings),
		}, nil
	}

	return model.RawTestOutcome{
		ID:           outcomeID(e.IDs, start),
		InstanceID:   req.Instance.InstanceID,
		SubTestItem:  item,
		Success:      true,
		StartTime:    start,
		EndTime:      e.Clock.Now(),
		ReadingsJSON: encodeReadings(readings),
	}, nil
}
