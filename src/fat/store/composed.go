package store

import (
	"context"

	"fatorch/src/fat/model"
	"fatorch/src/platform/ferr"
	"fatorch/src/util"

	"github.com/samber/oops"
)

// ComposedStore unifies the Postgres relational side with the Scylla
// ledger, implementing the "persist outcome then apply state transition"
// transaction from spec.md §6 as ledger-write-then-relational-write: once
// the outcome is durable in Scylla, a failure writing the instance row only
// risks a re-computable read-repair (the ledger is authoritative for what
// happened), whereas the reverse order could mark an instance TestCompleted
// with no backing RawTestOutcome — a worse failure mode for an audit trail.
type ComposedStore struct {
	*PostgresStore
	ledger *ScyllaLedger
}

func NewComposedStore(relational *PostgresStore, ledger *ScyllaLedger) *ComposedStore {
	return &ComposedStore{PostgresStore: relational, ledger: ledger}
}

func (s *ComposedStore) AppendOutcome(ctx context.Context, outcome model.RawTestOutcome) error {
	return s.ledger.AppendOutcome(ctx, outcome)
}

func (s *ComposedStore) OutcomeExists(ctx context.Context, outcomeID string) (bool, error) {
	return s.ledger.OutcomeExists(ctx, outcomeID)
}

func (s *ComposedStore) ListInstanceOutcomes(ctx context.Context, instanceID string) ([]model.RawTestOutcome, error) {
	return s.ledger.ListInstanceOutcomes(ctx, instanceID)
}

func (s *ComposedStore) PersistOutcomeAndState(ctx context.Context, outcome model.RawTestOutcome, instance model.ChannelTestInstance) error {
	errorb := oops.In(util.GetFunctionName())

	exists, err := s.ledger.OutcomeExists(ctx, outcome.ID)
	if err != nil {
		return errorb.Code(ferr.PersistenceUnavailable).Wrap(err)
	}
	if exists {
		// P7: re-applying the same outcome id is a no-op past this point —
		// the instance row was already updated by the first application.
		return nil
	}

	if err := s.ledger.AppendOutcome(ctx, outcome); err != nil {
		return errorb.Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to append outcome '%s' to ledger", outcome.ID)
	}

	if err := s.PostgresStore.UpdateInstance(ctx, instance); err != nil {
		return errorb.Code(ferr.PersistenceUnavailable).Wrapf(err, "outcome '%s' ledgered but instance '%s' update failed", outcome.ID, instance.InstanceID)
	}

	return nil
}

var _ Store = (*ComposedStore)(nil)
