// Package facade is C10, the OrchestrationFacade: the single composition
// surface every outer entry point (CLI, HTTP/gRPC handler, future operator
// console) calls into instead of reaching for C1-C9 directly. It owns no
// state of its own beyond its collaborators — every method either delegates
// straight through or sequences a handful of calls that must happen
// together (import then allocate then persist then instantiate).
package facade

import (
	"context"

	"fatorch/src/fat/allocator"
	"fatorch/src/fat/clockid"
	"fatorch/src/fat/manualtest"
	"fatorch/src/fat/model"
	"fatorch/src/fat/plc"
	"fatorch/src/fat/scheduler"
	"fatorch/src/fat/statemanager"
	"fatorch/src/fat/store"
	"fatorch/src/platform/ferr"
	"fatorch/src/services/email"
	"fatorch/src/util"

	"github.com/rs/zerolog"
	"github.com/samber/oops"
)

type Facade struct {
	store      store.Store
	allocator  *allocator.Allocator
	sm         *statemanager.StateManager
	scheduler  *scheduler.Scheduler
	manual     *manualtest.Coordinator
	notifier   *email.Service
	testPLC    plc.Driver
	targetPLC  plc.Driver
	clock      clockid.Clock
	notifyTo   []string
	logger     zerolog.Logger
}

type Options struct {
	Store            store.Store
	Allocator        *allocator.Allocator
	StateManager     *statemanager.StateManager
	Scheduler        *scheduler.Scheduler
	ManualTest       *manualtest.Coordinator
	Notifier         *email.Service
	TestPLC          plc.Driver
	TargetPLC        plc.Driver
	Clock            clockid.Clock
	NotifyRecipients []string
	Logger           zerolog.Logger
}

func New(opts Options) *Facade {
	return &Facade{
		store:     opts.Store,
		allocator: opts.Allocator,
		sm:        opts.StateManager,
		scheduler: opts.Scheduler,
		manual:    opts.ManualTest,
		notifier:  opts.Notifier,
		testPLC:   opts.TestPLC,
		targetPLC: opts.TargetPLC,
		clock:     opts.Clock,
		notifyTo:  opts.NotifyRecipients,
		logger:    opts.Logger,
	}
}

// ImportAndPrepareBatchRequest is the input to ImportAndPrepareBatch: a
// freshly-parsed definition sheet (spec.md §2 "Import") plus the product
// identity; NormalizedBatchID folds ProductModel into every resulting batch
// id.
type ImportAndPrepareBatchRequest struct {
	Definitions  []model.ChannelPointDefinition
	ProductModel string
	SerialNumber string
	StationName  string
}

// ImportAndPrepareBatch is the Import use case end to end: persist
// definitions, pull the fixed test-rig inventory, run the pairing/batching
// rule, persist every resulting batch and its allocations, project the
// wiring graph, and materialize one ChannelTestInstance per definition.
// Returns the batch ids created, in the order the allocator produced the
// batches.
func (f *Facade) ImportAndPrepareBatch(ctx context.Context, req ImportAndPrepareBatchRequest) ([]string, error) {
	errorb := oops.In(util.GetFunctionName())

	if err := f.store.InsertDefinitions(ctx, req.Definitions); err != nil {
		return nil, errorb.Wrap(err)
	}

	inventory, err := f.store.ListTestPlcChannels(ctx)
	if err != nil {
		return nil, errorb.Wrap(err)
	}

	result, err := allocator.Allocate(req.Definitions, inventory, req.StationName)
	if err != nil {
		return nil, errorb.Code(ferr.InvalidDefinition).Wrap(err)
	}

	defsByID := make(map[string]model.ChannelPointDefinition, len(req.Definitions))
	for _, def := range req.Definitions {
		defsByID[def.ID] = def
	}

	allocsByBatchName := make(map[string][]model.ChannelAllocation, len(result.Batches))
	for _, alloc := range result.Allocations {
		allocsByBatchName[alloc.BatchName] = append(allocsByBatchName[alloc.BatchName], alloc)
	}

	batchIDs := make([]string, 0, len(result.Batches))
	for _, batch := range result.Batches {
		batchID := allocator.NormalizedBatchID(req.ProductModel, batch.BatchName)
		batch.BatchID = batchID
		batch.ProductModel = req.ProductModel
		batch.SerialNumber = req.SerialNumber
		batch.CreatedAt = f.clock.Now()

		if err := f.store.InsertBatch(ctx, batch); err != nil {
			return nil, errorb.Wrap(err)
		}

		batchAllocs := allocsByBatchName[batch.BatchName]
		if err := f.allocator.PersistAndProject(ctx, batchID, allocator.Result{Allocations: batchAllocs}); err != nil {
			return nil, errorb.Wrap(err)
		}

		for _, alloc := range batchAllocs {
			def, ok := defsByID[alloc.DefinitionID]
			if !ok {
				continue
			}
			if _, err := f.sm.CreateInstance(ctx, def.ID, batchID); err != nil {
				return nil, errorb.Wrap(err)
			}
		}

		batchIDs = append(batchIDs, batchID)
	}

	return batchIDs, nil
}

func (f *Facade) GetBatchList(ctx context.Context) ([]model.TestBatch, error) {
	return f.store.ListBatches(ctx)
}

type BatchDetails struct {
	Batch     model.TestBatch
	Instances []model.ChannelTestInstance
}

func (f *Facade) GetBatchDetails(ctx context.Context, batchID string) (BatchDetails, error) {
	errorb := oops.In(util.GetFunctionName())

	batch, err := f.store.GetBatch(ctx, batchID)
	if err != nil {
		return BatchDetails{}, errorb.Wrap(err)
	}
	instances, err := f.store.ListBatchInstances(ctx, batchID)
	if err != nil {
		return BatchDetails{}, errorb.Wrap(err)
	}
	return BatchDetails{Batch: batch, Instances: instances}, nil
}

// ConnectPLC dials both endpoints so a batch cannot be started against a
// rig that isn't actually reachable (spec.md §6 "Connect before test").
func (f *Facade) ConnectPLC(ctx context.Context) error {
	errorb := oops.In(util.GetFunctionName())
	if err := f.targetPLC.Connect(ctx); err != nil {
		return errorb.Code(ferr.ConnectError).Wrap(err)
	}
	if err := f.testPLC.Connect(ctx); err != nil {
		return errorb.Code(ferr.ConnectError).Wrap(err)
	}
	return nil
}

func (f *Facade) StartBatchAutoTest(ctx context.Context, batchID string) error {
	return f.scheduler.RunBatch(ctx, batchID, false)
}

func (f *Facade) RetestFailedHardpoints(ctx context.Context, batchID string) error {
	return f.scheduler.RunBatch(ctx, batchID, true)
}

func (f *Facade) StartSingleChannelTest(ctx context.Context, batchID, instanceID string) error {
	return f.scheduler.RunInstances(ctx, batchID, []string{instanceID})
}

func (f *Facade) StartManualTest(ctx context.Context, instanceID string) (*manualtest.Session, error) {
	return f.manual.StartManualTest(ctx, instanceID)
}

func (f *Facade) SaveErrorNotes(ctx context.Context, instanceID string, notes model.ErrorNotes) error {
	return f.sm.SaveErrorNotes(ctx, instanceID, notes)
}

// NotifyBatchOutcomeIfDone sends the completion email once a batch's
// counters show no instance left in a non-terminal state. Schedulers and
// the manual coordinator both call this after every state change that
// could be the final one for a batch; it is a no-op while testing is
// still in progress.
func (f *Facade) NotifyBatchOutcomeIfDone(ctx context.Context, batchID string) error {
	errorb := oops.In(util.GetFunctionName())

	batch, err := f.store.GetBatch(ctx, batchID)
	if err != nil {
		return errorb.Wrap(err)
	}
	if batch.OverallStatus != model.BatchStatusCompleted && batch.OverallStatus != model.BatchStatusCompletedWithFailures {
		return nil
	}
	if f.notifier == nil || len(f.notifyTo) == 0 {
		return nil
	}

	counters, err := f.sm.GetBatchCounters(ctx, batchID)
	if err != nil {
		return errorb.Wrap(err)
	}

	return f.notifier.NotifyBatchOutcome(ctx, f.notifyTo, email.BatchOutcomeData{
		Batch:    batch,
		Counters: counters,
	})
}
