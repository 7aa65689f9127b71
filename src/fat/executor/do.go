package executor

import (
	"context"
	"fmt"
	"time"

	"fatorch/src/fat/clockid"
	"fatorch/src/fat/model"
	"fatorch/src/platform/ferr"
	"fatorch/src/util"

	optional "github.com/moznion/go-optional"
	"github.com/samber/oops"
)

// DOHardpoint commands the target DO and reads the paired test-rig DI back
// (spec.md §4.3 "DO executor" — "analogous logic and finalizer" to DI). The
// target DO is unconditionally reset to false in a finalizer, same rationale
// as DIHardpoint: a cancelled or failed run must not leave an output driven.
type DOHardpoint struct {
	Config *ConfigSource
	IDs    clockid.Id
	Clock  clockid.Clock
}

func (e *DOHardpoint) Execute(ctx context.Context, req Request) (model.RawTestOutcome, error) {
	cfg := e.Config.Load()
	item := model.NewSubTestItem(model.SubTestHardPoint)
	start := e.Clock.Now()

	if req.Allocation.TestChannelID == "" {
		return model.RawTestOutcome{}, oops.In(util.GetFunctionName()).Code(ferr.NoTestChannel).
			Errorf("no test-rig channel allocated for '%s'", req.Definition.Tag)
	}

	defer func() {
		resetCtx, cancel := context.WithTimeout(context.Background(), cfg.DigitalSettleWindow+time.Second)
		defer cancel()
		_ = req.TargetPLC.WriteBool(resetCtx, req.Definition.PlcAbsoluteAddress, false)
	}()

	var readings []model.Reading
	for _, level := range DigitalLevels {
		if ctx.Err() != nil {
			return e.cancelled(req, item, start, readings), nil
		}

		if err := req.TargetPLC.WriteBool(ctx, req.Definition.PlcAbsoluteAddress, level); err != nil {
			return failedOutcome(e.IDs, e.Clock, req.Instance.InstanceID, item, start, classify(err), fmt.Sprintf("write target level=%v", level)), nil
		}

		select {
		case <-ctx.Done():
			return e.cancelled(req, item, start, readings), nil
		case <-time.After(cfg.DigitalSettleWindow):
		}

		actual, err := req.TestPLC.ReadBool(ctx, req.Allocation.TestCommAddress)
		if err != nil {
			return failedOutcome(e.IDs, e.Clock, req.Instance.InstanceID, item, start, classify(err), fmt.Sprintf("read test-rig level=%v", level)), nil
		}

		expected := level
		if req.Definition.WireSystem == model.WireSystemNC {
			expected = !level
		}

		rawValue := 0.0
		if actual {
			rawValue = 1.0
		}
		readings = append(readings, model.Reading{
			Label:    fmt.Sprintf("level=%v", level),
			RawValue: rawValue,
			EngValue: rawValue,
		})

		if actual != expected {
			msg := fmt.Sprintf("%s: level=%v expected=%v actual=%v wire_system=%s",
				ferr.WireSystemMismatch, level, expected, actual, req.Definition.WireSystem)
			return model.RawTestOutcome{
				ID:           outcomeID(e.IDs, start),
				InstanceID:   req.Instance.InstanceID,
				SubTestItem:  item,
				Success:      false,
				Message:      optional.Some(msg),
				StartTime:    start,
				EndTime:      e.Clock.Now(),
				ReadingsJSON: encodeReadings(readings),
			}, nil
		}
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

func (e *DOHardpoint) cancelled(req Request, item model.SubTestItem, start time.Time, readings []model.Reading) model.RawTestOutcome {
	return model.RawTestOutcome{
		ID:           outcomeID(e.IDs, start),
		InstanceID:   req.Instance.InstanceID,
		SubTestItem:  item,
		Success:      false,
		Message:      optional.Some(string(ferr.Cancelled)),
		StartTime:    start,
		EndTime:      e.Clock.Now(),
		ReadingsJSON: encodeReadings(readings),
	}
}
