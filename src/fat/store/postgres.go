package store

import (
	"context"
	"encoding/json"
	"errors"

	"fatorch/src/fat/model"
	"fatorch/src/platform/ferr"
	"fatorch/src/util"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/samber/oops"
)

// PostgresStore implements DefinitionStore, InventoryStore, AllocationStore,
// BatchStore and InstanceStore over the relational schema. Nested structures
// (alarm setpoints, sub-test result maps, error notes) are stored as JSONB —
// they are always read/written whole by this package, never queried by
// sub-field from SQL, so normalizing them into extra tables would only add
// joins without buying anything.
type PostgresStore struct {
	pool *pgxpool.Pool
}

func NewPostgresStore(pool *pgxpool.Pool) *PostgresStore {
	return &PostgresStore{pool: pool}
}

func (s *PostgresStore) InsertDefinitions(ctx context.Context, defs []model.ChannelPointDefinition) error {
	errorb := oops.In(util.GetFunctionName())

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errorb.Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	for _, def := range defs {
		payload, err := json.Marshal(def)
		if err != nil {
			return errorb.Code(ferr.InvalidDefinition).Wrapf(err, "failed to marshal definition '%s'", def.Tag)
		}

		_, err = tx.Exec(ctx,
			`INSERT INTO channel_point_definitions (id, tag, module_type, channel_number, payload)
			 VALUES ($1, $2, $3, $4, $5)`,
			def.ID, def.Tag, string(def.ModuleType), def.ChannelNumber, payload,
		)
		if err != nil {
			if isUniqueViolation(err) {
				return errorb.Code(ferr.DuplicateTag).Wrapf(err, "duplicate tag '%s'", def.Tag)
			}
			return errorb.Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to insert definition '%s'", def.Tag)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errorb.Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to commit definitions")
	}
	return nil
}

func (s *PostgresStore) GetDefinition(ctx context.Context, id string) (model.ChannelPointDefinition, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM channel_point_definitions WHERE id = $1`, id).Scan(&payload)
	if err != nil {
		return model.ChannelPointDefinition{}, notFoundOrUnavailable(err, "definition", id)
	}
	return decodeJSON[model.ChannelPointDefinition](payload)
}

func (s *PostgresStore) ListDefinitions(ctx context.Context) ([]model.ChannelPointDefinition, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM channel_point_definitions ORDER BY channel_number`)
	if err != nil {
		return nil, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to list definitions")
	}
	defer rows.Close()

	return scanJSONRows[model.ChannelPointDefinition](rows)
}

func (s *PostgresStore) FindByTag(ctx context.Context, tag string) (model.ChannelPointDefinition, bool, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM channel_point_definitions WHERE tag = $1`, tag).Scan(&payload)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ChannelPointDefinition{}, false, nil
	}
	if err != nil {
		return model.ChannelPointDefinition{}, false, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to query tag '%s'", tag)
	}
	def, err := decodeJSON[model.ChannelPointDefinition](payload)
	return def, err == nil, err
}

func (s *PostgresStore) ListTestPlcChannels(ctx context.Context) ([]model.TestPlcChannel, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT id, channel_address, channel_type, communication_address, power_supply_type, enabled
		 FROM test_plc_channels ORDER BY channel_address`)
	if err != nil {
		return nil, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to list test plc channels")
	}
	defer rows.Close()

	var out []model.TestPlcChannel
	for rows.Next() {
		var c model.TestPlcChannel
		var channelType, powerSupplyType string
		if err := rows.Scan(&c.ID, &c.ChannelAddress, &channelType, &c.CommunicationAddress, &powerSupplyType, &c.Enabled); err != nil {
			return nil, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to scan test plc channel")
		}
		c.ChannelType = model.ChannelType(channelType)
		c.PowerSupplyType = model.PowerSupplyType(powerSupplyType)
		out = append(out, c)
	}
	return out, rows.Err()
}

func (s *PostgresStore) ReplaceBatchAllocations(ctx context.Context, batchID string, allocations []model.ChannelAllocation) error {
	errorb := oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable)

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return errorb.Wrapf(err, "failed to begin transaction")
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `DELETE FROM channel_allocations WHERE batch_id = $1`, batchID); err != nil {
		return errorb.Wrapf(err, "failed to clear prior allocations for batch '%s'", batchID)
	}

	for _, alloc := range allocations {
		_, err := tx.Exec(ctx,
			`INSERT INTO channel_allocations (definition_id, batch_id, test_channel_id, batch_name, test_comm_address)
			 VALUES ($1, $2, NULLIF($3, ''), $4, $5)`,
			alloc.DefinitionID, batchID, alloc.TestChannelID, alloc.BatchName, alloc.TestCommAddress,
		)
		if err != nil {
			return errorb.Wrapf(err, "failed to insert allocation for definition '%s'", alloc.DefinitionID)
		}
	}

	if err := tx.Commit(ctx); err != nil {
		return errorb.Wrapf(err, "failed to commit allocations for batch '%s'", batchID)
	}
	return nil
}

func (s *PostgresStore) ListBatchAllocations(ctx context.Context, batchID string) ([]model.ChannelAllocation, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT definition_id, COALESCE(test_channel_id, ''), batch_name, test_comm_address
		 FROM channel_allocations WHERE batch_id = $1`, batchID)
	if err != nil {
		return nil, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to list allocations for batch '%s'", batchID)
	}
	defer rows.Close()

	var out []model.ChannelAllocation
	for rows.Next() {
		var a model.ChannelAllocation
		if err := rows.Scan(&a.DefinitionID, &a.TestChannelID, &a.BatchName, &a.TestCommAddress); err != nil {
			return nil, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to scan allocation")
		}
		out = append(out, a)
	}
	return out, rows.Err()
}

func (s *PostgresStore) GetAllocation(ctx context.Context, definitionID string) (model.ChannelAllocation, bool, error) {
	var a model.ChannelAllocation
	err := s.pool.QueryRow(ctx,
		`SELECT definition_id, COALESCE(test_channel_id, ''), batch_name, test_comm_address
		 FROM channel_allocations WHERE definition_id = $1`, definitionID,
	).Scan(&a.DefinitionID, &a.TestChannelID, &a.BatchName, &a.TestCommAddress)
	if errors.Is(err, pgx.ErrNoRows) {
		return model.ChannelAllocation{}, false, nil
	}
	if err != nil {
		return model.ChannelAllocation{}, false, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to get allocation for definition '%s'", definitionID)
	}
	return a, true, nil
}

func (s *PostgresStore) InsertBatch(ctx context.Context, batch model.TestBatch) error {
	_, err := s.pool.Exec(ctx,
		`INSERT INTO test_batches (batch_id, batch_name, product_model, serial_number, station_name, created_at,
		 total, tested, passed, failed, skipped, started, overall_status)
		 VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13)`,
		batch.BatchID, batch.BatchName, batch.ProductModel, batch.SerialNumber, batch.StationName, batch.CreatedAt,
		batch.Counters.Total, batch.Counters.Tested, batch.Counters.Passed, batch.Counters.Failed,
		batch.Counters.Skipped, batch.Counters.Started, string(batch.OverallStatus),
	)
	if err != nil {
		return oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to insert batch '%s'", batch.BatchID)
	}
	return nil
}

func (s *PostgresStore) GetBatch(ctx context.Context, batchID string) (model.TestBatch, error) {
	var b model.TestBatch
	var status string
	err := s.pool.QueryRow(ctx,
		`SELECT batch_id, batch_name, product_model, serial_number, station_name, created_at,
		 total, tested, passed, failed, skipped, started, overall_status
		 FROM test_batches WHERE batch_id = $1`, batchID,
	).Scan(&b.BatchID, &b.BatchName, &b.ProductModel, &b.SerialNumber, &b.StationName, &b.CreatedAt,
		&b.Counters.Total, &b.Counters.Tested, &b.Counters.Passed, &b.Counters.Failed,
		&b.Counters.Skipped, &b.Counters.Started, &status)
	if err != nil {
		return model.TestBatch{}, notFoundOrUnavailable(err, "batch", batchID)
	}
	b.OverallStatus = model.OverallBatchStatus(status)
	return b, nil
}

func (s *PostgresStore) ListBatches(ctx context.Context) ([]model.TestBatch, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT batch_id, batch_name, product_model, serial_number, station_name, created_at,
		 total, tested, passed, failed, skipped, started, overall_status
		 FROM test_batches ORDER BY created_at DESC`)
	if err != nil {
		return nil, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to list batches")
	}
	defer rows.Close()

	var out []model.TestBatch
	for rows.Next() {
		var b model.TestBatch
		var status string
		if err := rows.Scan(&b.BatchID, &b.BatchName, &b.ProductModel, &b.SerialNumber, &b.StationName, &b.CreatedAt,
			&b.Counters.Total, &b.Counters.Tested, &b.Counters.Passed, &b.Counters.Failed,
			&b.Counters.Skipped, &b.Counters.Started, &status); err != nil {
			return nil, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to scan batch")
		}
		b.OverallStatus = model.OverallBatchStatus(status)
		out = append(out, b)
	}
	return out, rows.Err()
}

func (s *PostgresStore) UpdateBatchCounters(ctx context.Context, batchID string, counters model.BatchCounters, status model.OverallBatchStatus) error {
	_, err := s.pool.Exec(ctx,
		`UPDATE test_batches SET total=$2, tested=$3, passed=$4, failed=$5, skipped=$6, started=$7, overall_status=$8
		 WHERE batch_id = $1`,
		batchID, counters.Total, counters.Tested, counters.Passed, counters.Failed, counters.Skipped, counters.Started, string(status),
	)
	if err != nil {
		return oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to update counters for batch '%s'", batchID)
	}
	return nil
}

func (s *PostgresStore) InsertInstance(ctx context.Context, instance model.ChannelTestInstance) error {
	payload, err := json.Marshal(instance)
	if err != nil {
		return oops.In(util.GetFunctionName()).Code(ferr.IntegrityViolation).Wrapf(err, "failed to marshal instance '%s'", instance.InstanceID)
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO channel_test_instances (instance_id, definition_id, batch_id, overall_status, payload)
		 VALUES ($1,$2,$3,$4,$5)`,
		instance.InstanceID, instance.DefinitionID, instance.BatchID, string(instance.OverallStatus), payload,
	)
	if err != nil {
		return oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to insert instance '%s'", instance.InstanceID)
	}
	return nil
}

func (s *PostgresStore) GetInstance(ctx context.Context, instanceID string) (model.ChannelTestInstance, error) {
	var payload []byte
	err := s.pool.QueryRow(ctx, `SELECT payload FROM channel_test_instances WHERE instance_id = $1`, instanceID).Scan(&payload)
	if err != nil {
		return model.ChannelTestInstance{}, notFoundOrUnavailable(err, "instance", instanceID)
	}
	return decodeJSON[model.ChannelTestInstance](payload)
}

func (s *PostgresStore) ListBatchInstances(ctx context.Context, batchID string) ([]model.ChannelTestInstance, error) {
	rows, err := s.pool.Query(ctx, `SELECT payload FROM channel_test_instances WHERE batch_id = $1`, batchID)
	if err != nil {
		return nil, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to list instances for batch '%s'", batchID)
	}
	defer rows.Close()
	return scanJSONRows[model.ChannelTestInstance](rows)
}

func (s *PostgresStore) ListBatchInstancesByStatus(ctx context.Context, batchID string, statuses []model.InstanceStatus) ([]model.ChannelTestInstance, error) {
	strStatuses := make([]string, len(statuses))
	for i, st := range statuses {
		strStatuses[i] = string(st)
	}

	rows, err := s.pool.Query(ctx,
		`SELECT payload FROM channel_test_instances WHERE batch_id = $1 AND overall_status = ANY($2)`,
		batchID, strStatuses,
	)
	if err != nil {
		return nil, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to filter instances for batch '%s'", batchID)
	}
	defer rows.Close()
	return scanJSONRows[model.ChannelTestInstance](rows)
}

func (s *PostgresStore) UpdateInstance(ctx context.Context, instance model.ChannelTestInstance) error {
	payload, err := json.Marshal(instance)
	if err != nil {
		return oops.In(util.GetFunctionName()).Code(ferr.IntegrityViolation).Wrapf(err, "failed to marshal instance '%s'", instance.InstanceID)
	}
	_, err = s.pool.Exec(ctx,
		`UPDATE channel_test_instances SET overall_status=$2, payload=$3 WHERE instance_id=$1`,
		instance.InstanceID, string(instance.OverallStatus), payload,
	)
	if err != nil {
		return oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to update instance '%s'", instance.InstanceID)
	}
	return nil
}

func (s *PostgresStore) SaveErrorNotes(ctx context.Context, instanceID string, notes model.ErrorNotes) error {
	instance, err := s.GetInstance(ctx, instanceID)
	if err != nil {
		return err
	}
	instance.ErrorNotes = notes
	return s.UpdateInstance(ctx, instance)
}

// PersistOutcomeAndState is implemented by the composed Store (see
// composed.go) because it needs both the Postgres transaction for the
// instance row and the Scylla ledger append; a plain PostgresStore alone
// cannot uphold I5 across two databases.
func (s *PostgresStore) PersistOutcomeAndState(_ context.Context, _ model.RawTestOutcome, _ model.ChannelTestInstance) error {
	return oops.In(util.GetFunctionName()).Code(ferr.ConfigurationInvalid).Errorf("PersistOutcomeAndState must be called on the composed Store, not PostgresStore directly")
}

func (s *PostgresStore) AppendOutcome(_ context.Context, _ model.RawTestOutcome) error {
	return oops.In(util.GetFunctionName()).Code(ferr.ConfigurationInvalid).Errorf("outcomes are ledgered in Scylla, not Postgres")
}

func (s *PostgresStore) OutcomeExists(_ context.Context, _ string) (bool, error) {
	return false, oops.In(util.GetFunctionName()).Code(ferr.ConfigurationInvalid).Errorf("outcomes are ledgered in Scylla, not Postgres")
}

func (s *PostgresStore) ListInstanceOutcomes(_ context.Context, _ string) ([]model.RawTestOutcome, error) {
	return nil, oops.In(util.GetFunctionName()).Code(ferr.ConfigurationInvalid).Errorf("outcomes are ledgered in Scylla, not Postgres")
}

func isUniqueViolation(err error) bool {
	return err != nil && (contains(err.Error(), "duplicate key") || contains(err.Error(), "unique constraint"))
}

func contains(haystack, needle string) bool {
	return len(haystack) >= len(needle) && (func() bool {
		for i := 0; i+len(needle) <= len(haystack); i++ {
			if haystack[i:i+len(needle)] == needle {
				return true
			}
		}
		return false
	})()
}

func notFoundOrUnavailable(err error, kind, id string) error {
	errorb := oops.In(util.GetFunctionName())
	if errors.Is(err, pgx.ErrNoRows) {
		return errorb.Code(ferr.NotFound).Wrapf(err, "%s '%s' not found", kind, id)
	}
	return errorb.Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to query %s '%s'", kind, id)
}

func decodeJSON[T any](payload []byte) (T, error) {
	var v T
	if err := json.Unmarshal(payload, &v); err != nil {
		return v, oops.In(util.GetFunctionName()).Code(ferr.IntegrityViolation).Wrapf(err, "failed to decode stored payload")
	}
	return v, nil
}

func scanJSONRows[T any](rows pgx.Rows) ([]T, error) {
	var out []T
	for rows.Next() {
		var payload []byte
		if err := rows.Scan(&payload); err != nil {
			return nil, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to scan row")
		}
		v, err := decodeJSON[T](payload)
		if err != nil {
			return nil, err
		}
		out = append(out, v)
	}
	return out, rows.Err()
}
