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

// AOHardpoint is the symmetric counterpart of AIHardpoint: it writes the
// stimulus to the target AO and reads the result back off the paired
// test-rig AI (spec.md §4.3 "AO executor").
type AOHardpoint struct {
	Config *ConfigSource
	IDs    clockid.Id
	Clock  clockid.Clock
}

func (e *AOHardpoint) Execute(ctx context.Context, req Request) (model.RawTestOutcome, error) {
	cfg := e.Config.Load()
	item := model.NewSubTestItem(model.SubTestHardPoint)
	start := e.Clock.Now()

	if req.Allocation.TestChannelID == "" {
		return model.RawTestOutcome{}, oops.In(util.GetFunctionName()).Code(ferr.NoTestChannel).
			Errorf("no test-rig channel allocated for '%s'", req.Definition.Tag)
	}

	var readings []model.Reading
	var failed bool
	var failureMsg string
	for _, percent := range HardpointPercentages {
		if ctx.Err() != nil {
			return e.cancelled(req, item, start, readings), nil
		}

		expected, ok := engineeringValue(req.Definition, percent)
		if !ok {
			return failedOutcome(e.IDs, e.Clock, req.Instance.InstanceID, item, start, string(ferr.InvalidDefinition), "missing engineering range"), nil
		}

		if err := req.TargetPLC.WriteFloat(ctx, req.Definition.PlcAbsoluteAddress, float32(expected)); err != nil {
			return failedOutcome(e.IDs, e.Clock, req.Instance.InstanceID, item, start, classify(err), fmt.Sprintf("write stimulus at %.0f%%", percent)), nil
		}

		select {
		case <-ctx.Done():
			_ = req.TargetPLC.WriteFloat(context.Background(), req.Definition.PlcAbsoluteAddress, 0)
			return e.cancelled(req, item, start, readings), nil
		case <-time.After(cfg.StabilizationWindow):
		}

		actual, err := req.TestPLC.ReadFloat(ctx, req.Allocation.TestCommAddress)
		if err != nil {
			return failedOutcome(e.IDs, e.Clock, req.Instance.InstanceID, item, start, classify(err), fmt.Sprintf("read test-rig at %.0f%%", percent)), nil
		}

		readings = append(readings, model.Reading{
			Label:    fmt.Sprintf("%.0f%%", percent),
			RawValue: float64(actual),
			EngValue: float64(actual),
			Percent:  optional.Some(percent),
		})

		if !cfg.Tolerance.Within(float64(actual), expected) {
			msg := fmt.Sprintf("%s: expected=%.4f actual=%.4f at %.0f%%", ferr.OutOfTolerance, expected, actual, percent)
			if !cfg.ContinueOnFailure {
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
			failed = true
			failureMsg = msg
		}
	}

	outcome := model.RawTestOutcome{
		ID:           outcomeID(e.IDs, start),
		InstanceID:   req.Instance.InstanceID,
		SubTestItem:  item,
		Success:      !failed,
		StartTime:    start,
		EndTime:      e.Clock.Now(),
		ReadingsJSON: encodeReadings(readings),
	}
	if failed {
		outcome.Message = optional.Some(failureMsg)
	}
	return outcome, nil
}

func (e *AOHardpoint) cancelled(req Request, item model.SubTestItem, start time.Time, readings []model.Reading) model.RawTestOutcome {
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
