// Package store implements C2, the PersistenceStore collaborator: a
// relational side (definitions, batches, instances, allocations) backed by
// Postgres, and an append-only ledger (RawTestOutcome) backed by Scylla —
// kept apart because the two have opposite write patterns (occasional
// upserts under transactions vs. a high-rate, time-ordered, never-updated
// stream) and the teacher's own client layer already separates them.
package store

import (
	"context"

	"fatorch/src/fat/model"
)

// DefinitionStore is the import-time side: definitions never mutate after
// insert (spec.md §3 "Lifecycles").
type DefinitionStore interface {
	InsertDefinitions(ctx context.Context, defs []model.ChannelPointDefinition) error
	GetDefinition(ctx context.Context, id string) (model.ChannelPointDefinition, error)
	ListDefinitions(ctx context.Context) ([]model.ChannelPointDefinition, error)
	FindByTag(ctx context.Context, tag string) (model.ChannelPointDefinition, bool, error)
}

// InventoryStore owns the fixed test-rig channel list.
type InventoryStore interface {
	ListTestPlcChannels(ctx context.Context) ([]model.TestPlcChannel, error)
}

// AllocationStore owns ChannelAllocation rows. ReplaceBatchAllocations is
// the re-allocation path: it clears a batch's prior allocations atomically
// with inserting the new ones (spec.md §4.1 "Re-allocation clears prior
// allocations").
type AllocationStore interface {
	ReplaceBatchAllocations(ctx context.Context, batchID string, allocations []model.ChannelAllocation) error
	ListBatchAllocations(ctx context.Context, batchID string) ([]model.ChannelAllocation, error)
	GetAllocation(ctx context.Context, definitionID string) (model.ChannelAllocation, bool, error)
}

// BatchStore owns TestBatch rows, including the counters StateManager
// recomputes after every apply_raw_outcome (I4).
type BatchStore interface {
	InsertBatch(ctx context.Context, batch model.TestBatch) error
	GetBatch(ctx context.Context, batchID string) (model.TestBatch, error)
	ListBatches(ctx context.Context) ([]model.TestBatch, error)
	UpdateBatchCounters(ctx context.Context, batchID string, counters model.BatchCounters, status model.OverallBatchStatus) error
}

// InstanceStore owns ChannelTestInstance rows. PersistOutcomeAndState pairs
// the ledger write with the instance update for every applied outcome, the
// ledger write first (I5).
type InstanceStore interface {
	InsertInstance(ctx context.Context, instance model.ChannelTestInstance) error
	GetInstance(ctx context.Context, instanceID string) (model.ChannelTestInstance, error)
	ListBatchInstances(ctx context.Context, batchID string) ([]model.ChannelTestInstance, error)
	ListBatchInstancesByStatus(ctx context.Context, batchID string, statuses []model.InstanceStatus) ([]model.ChannelTestInstance, error)
	UpdateInstance(ctx context.Context, instance model.ChannelTestInstance) error
	SaveErrorNotes(ctx context.Context, instanceID string, notes model.ErrorNotes) error

	// PersistOutcomeAndState appends outcome to the ledger and then writes
	// the resulting instance row. In ComposedStore the two writes are not one
	// transaction: if the instance write fails, the outcome stays ledgered.
	PersistOutcomeAndState(ctx context.Context, outcome model.RawTestOutcome, instance model.ChannelTestInstance) error
}

// OutcomeStore is the append-only ledger (Scylla-backed).
type OutcomeStore interface {
	AppendOutcome(ctx context.Context, outcome model.RawTestOutcome) error
	OutcomeExists(ctx context.Context, outcomeID string) (bool, error)
	ListInstanceOutcomes(ctx context.Context, instanceID string) ([]model.RawTestOutcome, error)
}

// Store is the unified PersistenceStore collaborator C10 wires into every
// other component that needs durable state.
type Store interface {
	DefinitionStore
	InventoryStore
	AllocationStore
	BatchStore
	InstanceStore
	OutcomeStore
}
