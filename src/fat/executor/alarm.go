package executor

import (
	"context"
	"fmt"

	"fatorch/src/fat/model"
	"fatorch/src/platform/ferr"
	"fatorch/src/util"

	"github.com/samber/oops"
)

// AlarmLevel selects which of the four alarm setpoints to stimulate.
type AlarmLevel string

const (
	AlarmLevelLL AlarmLevel = "LL"
	AlarmLevelL  AlarmLevel = "L"
	AlarmLevelH  AlarmLevel = "H"
	AlarmLevelHH AlarmLevel = "HH"
)

// alarmCrossingMargin is the "setpoint ± 5% of range" spec.md §4.3 gives as
// an example; low-side setpoints (LL/L) are crossed from above, high-side
// (H/HH) from below.
const alarmCrossingMargin = 0.05

func setpointFor(def model.ChannelPointDefinition, level AlarmLevel) (model.AlarmSetpoint, bool) {
	switch level {
	case AlarmLevelLL:
		return def.AlarmLL.Take()
	case AlarmLevelL:
		return def.AlarmL.Take()
	case AlarmLevelH:
		return def.AlarmH.Take()
	case AlarmLevelHH:
		return def.AlarmHH.Take()
	default:
		return model.AlarmSetpoint{}, false
	}
}

// AlarmStimulus drives the test-rig to a value that crosses the configured
// setpoint and reports the PLC-side feedback reading for the operator to
// compare against the HMI (spec.md §4.3 "Alarm executors (AI only, manual
// path)"). It never decides pass/fail — ManualTestCoordinator records the
// operator's verdict via StateManager.SetManualSubItem.
type AlarmStimulus struct{}

func (AlarmStimulus) Stimulate(ctx context.Context, req Request, level AlarmLevel) (model.Reading, error) {
	errorb := oops.In(util.GetFunctionName())

	setpoint, ok := setpointFor(req.Definition, level)
	if !ok {
		return model.Reading{}, errorb.Code(ferr.InvalidDefinition).
			Errorf("definition '%s' has no '%s' alarm setpoint configured", req.Definition.Tag, level)
	}

	rangeSpan := 0.0
	if lo, lok := req.Definition.RangeLo.Take(); lok {
		if hi, hok := req.Definition.RangeHi.Take(); hok {
			rangeSpan = hi - lo
		}
	}
	margin := rangeSpan * alarmCrossingMargin

	testValue := setpoint.Value + margin
	if level == AlarmLevelLL || level == AlarmLevelL {
		testValue = setpoint.Value - margin
	}

	if req.Allocation.TestChannelID == "" {
		return model.Reading{}, errorb.Code(ferr.NoTestChannel).
			Errorf("no test-rig channel allocated for '%s'", req.Definition.Tag)
	}

	if err := req.TestPLC.WriteFloat(ctx, req.Allocation.TestCommAddress, float32(testValue)); err != nil {
		return model.Reading{}, errorb.Code(ferr.WriteError).Wrapf(err, "failed to stimulate '%s' alarm level '%s'", req.Definition.Tag, level)
	}

	var feedback float32
	if setpoint.FeedbackAddr != "" {
		value, err := req.TargetPLC.ReadBool(ctx, setpoint.FeedbackAddr)
		if err != nil {
			return model.Reading{}, errorb.Code(ferr.ReadError).Wrapf(err, "failed to read alarm feedback for '%s' level '%s'", req.Definition.Tag, level)
		}
		if value {
			feedback = 1
		}
	}

	return model.Reading{
		Label:    fmt.Sprintf("alarm_%s_stimulus", level),
		RawValue: testValue,
		EngValue: float64(feedback),
	}, nil
}
