// Package allocator is C4: pairs each ChannelPointDefinition with a
// complementary test-rig channel and splits the result into batches sized
// to the rig's parallel capacity (spec.md §4.1).
package allocator

import (
	"context"
	"fmt"

	"fatorch/src/fat/clockid"
	"fatorch/src/fat/model"
	"fatorch/src/fat/neo4j"
	"fatorch/src/fat/store"
	"fatorch/src/platform/ferr"
	"fatorch/src/util"

	"github.com/samber/lo"
	"github.com/samber/oops"
	"github.com/stoewer/go-strcase"
)

// partitionKey groups definitions the way the batching rule requires: by
// (base module type, power-supply type) — each partition draws from its own
// slice of the test-rig inventory.
type partitionKey struct {
	moduleType model.ModuleType
	powerType  model.PowerSupplyType
}

// Allocator runs allocation and (optionally) records the wiring projection
// in the graph store so the UI/export path can answer "what rig channel is
// point X wired to" without re-running the allocation algorithm.
type Allocator struct {
	store  store.Store
	wiring neo4j.WiringProjector
	ids    clockid.Id
}

func New(s store.Store, wiring neo4j.WiringProjector, ids clockid.Id) *Allocator {
	return &Allocator{store: s, wiring: wiring, ids: ids}
}

// Result is what Allocate produces before anything is persisted, so callers
// can inspect it (e.g. for export_channel_allocation) without a round trip.
type Result struct {
	Allocations []model.ChannelAllocation
	Batches     []model.TestBatch
}

// Allocate implements the pairing + batching rule from spec.md §4.1. defs
// must be in import order — batching assigns the i-th definition within a
// partition to batch ⌈i/cap⌉, and within a batch the k-th definition takes
// the k-th inventory channel (strict inventory order; see the Open Question
// decision recorded in DESIGN.md).
func Allocate(defs []model.ChannelPointDefinition, inventory []model.TestPlcChannel, stationName string) (Result, error) {
	errorb := oops.In(util.GetFunctionName())

	for _, def := range defs {
		if def.ModuleType.Base() != model.ModuleTypeCommunication {
			if !def.HasEngineeringRange() && requiresRange(def.ModuleType) {
				return Result{}, errorb.Code(ferr.InvalidDefinition).
					Errorf("definition '%s' of module type '%s' is missing range_lo/range_hi", def.Tag, def.ModuleType)
			}
		}
	}

	seenTags := make(map[string]struct{}, len(defs))
	for _, def := range defs {
		if _, dup := seenTags[def.Tag]; dup {
			return Result{}, errorb.Code(ferr.DuplicateTag).Errorf("duplicate tag '%s'", def.Tag)
		}
		seenTags[def.Tag] = struct{}{}
	}

	// Partition both definitions and inventory by (module type, power type);
	// samber/lo keeps this to a one-pass GroupBy instead of nested loops.
	defsByPartition := lo.GroupBy(defs, func(d model.ChannelPointDefinition) partitionKey {
		return partitionKey{moduleType: d.ModuleType.Base(), powerType: d.PowerSupplyType}
	})

	channelsByType := lo.GroupBy(lo.Filter(inventory, func(c model.TestPlcChannel, _ int) bool { return c.Enabled }),
		func(c model.TestPlcChannel) model.ChannelType { return c.ChannelType })

	var allocations []model.ChannelAllocation
	batchesByName := map[string]*model.TestBatch{}
	var batchOrder []string

	for partition, partitionDefs := range defsByPartition {
		pairedType, ok := model.PairedChannelType(partition.moduleType, partition.powerType)
		if !ok {
			return Result{}, errorb.Code(ferr.InvalidDefinition).
				Errorf("no pairing rule for module type '%s' power type '%s'", partition.moduleType, partition.powerType)
		}

		compatible := channelsByType[pairedType]
		capacity := len(compatible)

		for i, def := range partitionDefs {
			batchIndex := 1
			var channel *model.TestPlcChannel
			if capacity > 0 {
				batchIndex = i/capacity + 1
				withinBatch := i % capacity
				channel = &compatible[withinBatch]
			}

			batchName := fmt.Sprintf("批次%d", batchIndex)
			if _, exists := batchesByName[batchName]; !exists {
				batchesByName[batchName] = &model.TestBatch{
					BatchName:     batchName,
					StationName:   stationName,
					OverallStatus: model.BatchStatusNotStarted,
				}
				batchOrder = append(batchOrder, batchName)
			}
			batchesByName[batchName].Counters.Total++

			alloc := model.ChannelAllocation{
				DefinitionID: def.ID,
				BatchName:    batchName,
			}
			if channel != nil {
				alloc.TestChannelID = channel.ID
				alloc.TestCommAddress = channel.CommunicationAddress
			}
			allocations = append(allocations, alloc)
		}
	}

	batches := make([]model.TestBatch, 0, len(batchOrder))
	for _, name := range batchOrder {
		batches = append(batches, *batchesByName[name])
	}

	return Result{Allocations: allocations, Batches: batches}, nil
}

func requiresRange(moduleType model.ModuleType) bool {
	switch moduleType.Base() {
	case model.ModuleTypeAI, model.ModuleTypeAO:
		return true
	default:
		return false
	}
}

// NormalizedBatchID produces a storage-safe identifier from a localized
// batch name (tag -> Scylla/Postgres-safe identifier, per SPEC_FULL.md).
func NormalizedBatchID(productModel, batchName string) string {
	return strcase.SnakeCase(productModel) + "_" + strcase.SnakeCase(batchName)
}

// PersistAndProject writes the allocation result (clearing any prior
// allocations for batches of the same name) and projects each resolved
// pairing into the wiring graph.
func (a *Allocator) PersistAndProject(ctx context.Context, batchID string, result Result) error {
	errorb := oops.In(util.GetFunctionName())

	if err := a.store.ReplaceBatchAllocations(ctx, batchID, result.Allocations); err != nil {
		return errorb.Wrap(err)
	}

	for _, alloc := range result.Allocations {
		if alloc.TestChannelID == "" {
			continue
		}
		def, err := a.store.GetDefinition(ctx, alloc.DefinitionID)
		if err != nil {
			return errorb.Wrap(err)
		}
		if err := a.wiring.ProjectAllocation(ctx, def.Tag, alloc.TestChannelID, string(def.WireSystem)); err != nil {
			return errorb.Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to project wiring edge for '%s'", def.Tag)
		}
	}

	return nil
}
