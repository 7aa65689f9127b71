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

// DigitalLevels are the two stimulus levels spec.md §4.3 names for DI/DO
// hardpoint ("2 levels" in the §4.4 applicability matrix).
var DigitalLevels = []bool{true, false}

// DIHardpoint drives the paired test-rig DO through both levels and reads
// the target DI back, inverting the expected value for an "NC" wire_system
// (spec.md §4.3 "DI executor"). The test-rig DO is unconditionally reset to
// false in a finalizer — on success, on tolerance failure, and on
// cancellation alike — so a cancelled run never leaves the rig energized.
type DIHardpoint struct {
	Config *ConfigSource
	IDs    clockid.Id
	Clock  clockid.Clock
}

func (e *DIHardpoint) Execute(ctx context.Context, req Request) (model.RawTestOutcome, error) {
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
		_ = req.TestPLC.WriteBool(resetCtx, req.Allocation.TestCommAddress, false)
	}()

	var readings []model.Reading
	for _, level := range DigitalLevels {
		if ctx.Err() != nil {
			return e.cancelled(req, item, start, readings), nil
		}

		if err := req.TestPLC.WriteBool(ctx, req.Allocation.TestCommAddress, level); err != nil {
			return failedOutcome(e.IDs, e.Clock, req.Instance.InstanceID, item, start, classify(err), fmt.Sprintf("write test-rig level=%v", level)), nil
		}

		select {
		case <-ctx.Done():
			return e.cancelled(req, item, start, readings), nil
		case <-time.After(cfg.DigitalSettleWindow):
		}

		actual, err := req.TargetPLC.ReadBool(ctx, req.Definition.PlcAbsoluteAddress)
		if err != nil {
			return failedOutcome(e.IDs, e.Clock, req.Instance.InstanceID, item, start, classify(err), fmt.Sprintf("read target level=%v", level)), nil
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

func (e *DIHardpoint) cancelled(req Request, item model.SubTestItem, start time.Time, readings []model.Reading) model.RawTestOutcome {
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
