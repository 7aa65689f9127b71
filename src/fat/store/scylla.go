package store

import (
	"context"
	"time"

	"fatorch/src/fat/model"
	"fatorch/src/platform/ferr"
	"fatorch/src/util"

	"github.com/gocql/gocql"
	optional "github.com/moznion/go-optional"
	"github.com/samber/oops"
	"github.com/scylladb/gocqlx/v3"
	"github.com/scylladb/gocqlx/v3/qb"
)

func takeOr[T any](o optional.Option[T], fallback T) T {
	if v, ok := o.Take(); ok {
		return v
	}
	return fallback
}

func unixNanoToTime(nanos int64) time.Time {
	return time.Unix(0, nanos).UTC()
}

// outcomeRow is the gocqlx-bound row shape for the raw_test_outcomes table.
// Scylla's clustering key is (instance_id, start_time, id) so
// ListInstanceOutcomes comes back time-ordered without a secondary index.
type outcomeRow struct {
	ID           string `db:"id"`
	InstanceID   string `db:"instance_id"`
	SubTestKind  string `db:"sub_test_kind"`
	SubTestLabel string `db:"sub_test_label"`
	Success      bool   `db:"success"`
	Message      string `db:"message"`
	StartTime    int64  `db:"start_time"`
	EndTime      int64  `db:"end_time"`
	ReadingsJSON string `db:"readings_json"`
}

func toOutcomeRow(o model.RawTestOutcome) outcomeRow {
	return outcomeRow{
		ID:           o.ID,
		InstanceID:   o.InstanceID,
		SubTestKind:  string(o.SubTestItem.Kind),
		SubTestLabel: o.SubTestItem.Label,
		Success:      o.Success,
		Message:      takeOr(o.Message, ""),
		StartTime:    o.StartTime.UnixNano(),
		EndTime:      o.EndTime.UnixNano(),
		ReadingsJSON: takeOr(o.ReadingsJSON, ""),
	}
}

func (r outcomeRow) toOutcome() model.RawTestOutcome {
	o := model.RawTestOutcome{
		ID:         r.ID,
		InstanceID: r.InstanceID,
		SubTestItem: model.SubTestItem{
			Kind:  model.SubTestItemKind(r.SubTestKind),
			Label: r.SubTestLabel,
		},
		Success:   r.Success,
		StartTime: unixNanoToTime(r.StartTime),
		EndTime:   unixNanoToTime(r.EndTime),
	}
	if r.Message != "" {
		o.Message = optional.Some(r.Message)
	}
	if r.ReadingsJSON != "" {
		o.ReadingsJSON = optional.Some(r.ReadingsJSON)
	}
	return o
}

var outcomeTable = qb.Insert("raw_test_outcomes").Columns(
	"id", "instance_id", "sub_test_kind", "sub_test_label", "success", "message", "start_time", "end_time", "readings_json",
)

// ScyllaLedger implements OutcomeStore: an append-only, idempotent-by-id
// write path for RawTestOutcome, using LWT (IF NOT EXISTS) so a retried
// PersistOutcomeAndState call after a crash is a no-op rather than a
// duplicate row (P7's "applying the same outcome twice" property).
type ScyllaLedger struct {
	session gocqlx.Session
}

func NewScyllaLedger(gocqlSession *gocql.Session) (*ScyllaLedger, error) {
	session, err := gocqlx.WrapSession(gocqlSession, nil)
	if err != nil {
		return nil, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to wrap scylla session")
	}
	return &ScyllaLedger{session: session}, nil
}

func (l *ScyllaLedger) AppendOutcome(ctx context.Context, outcome model.RawTestOutcome) error {
	stmt, names := outcomeTable.Unique().ToCql()
	applied, err := l.session.Query(stmt, names).
		WithContext(ctx).
		BindStruct(toOutcomeRow(outcome)).
		MapScanCAS(map[string]interface{}{})
	if err != nil {
		return oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to append outcome '%s'", outcome.ID)
	}
	if !applied {
		// Already ledgered by a prior attempt at the same outcome id — I5/P7.
		return nil
	}
	return nil
}

func (l *ScyllaLedger) OutcomeExists(ctx context.Context, outcomeID string) (bool, error) {
	stmt, names := qb.Select("raw_test_outcomes").Columns("id").Where(qb.Eq("id")).ToCql()
	var row struct {
		ID string `db:"id"`
	}
	err := l.session.Query(stmt, names).WithContext(ctx).BindMap(qb.M{"id": outcomeID}).GetRelease(&row)
	if err != nil {
		if err == gocql.ErrNotFound {
			return false, nil
		}
		return false, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to check outcome '%s'", outcomeID)
	}
	return true, nil
}

func (l *ScyllaLedger) ListInstanceOutcomes(ctx context.Context, instanceID string) ([]model.RawTestOutcome, error) {
	stmt, names := qb.Select("raw_test_outcomes").
		Columns("id", "instance_id", "sub_test_kind", "sub_test_label", "success", "message", "start_time", "end_time", "readings_json").
		Where(qb.Eq("instance_id")).
		OrderBy("start_time", qb.ASC).
		ToCql()

	var rows []outcomeRow
	err := l.session.Query(stmt, names).WithContext(ctx).BindMap(qb.M{"instance_id": instanceID}).SelectRelease(&rows)
	if err != nil {
		return nil, oops.In(util.GetFunctionName()).Code(ferr.PersistenceUnavailable).Wrapf(err, "failed to list outcomes for instance '%s'", instanceID)
	}

	out := make([]model.RawTestOutcome, len(rows))
	for i, r := range rows {
		out[i] = r.toOutcome()
	}
	return out, nil
}
