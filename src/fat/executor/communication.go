package executor

import (
	"context"
	"time"

	"fatorch/src/fat/clockid"
	"fatorch/src/fat/model"
)

// Communication is the sole sub-test for Communication-type points (§4.4):
// it exercises the target's communication address through a read round-trip
// rather than a physical I/O channel — there is no paired test-rig channel
// to drive.
type Communication struct {
	Config *ConfigSource
	IDs    clockid.Id
	Clock  clockid.Clock
}

func (e *Communication) Execute(ctx context.Context, req Request) (model.RawTestOutcome, error) {
	cfg := e.Config.Load()
	item := model.NewSubTestItem(model.SubTestCommunicationTest)
	start := e.Clock.Now()

	deadline, cancel := context.WithTimeout(ctx, cfg.StabilizationWindow+3*time.Second)
	defer cancel()

	if _, err := req.TargetPLC.ReadFloat(deadline, req.Definition.PlcCommunicationAddress); err != nil {
		return failedOutcome(e.IDs, e.Clock, req.Instance.InstanceID, item, start, classify(err), "communication read round-trip failed"), nil
	}

	return model.RawTestOutcome{
		ID:          outcomeID(e.IDs, start),
		InstanceID:  req.Instance.InstanceID,
		SubTestItem: item,
		Success:     true,
		StartTime:   start,
		EndTime:     e.Clock.Now(),
	}, nil
}
