// Package elasticsearch holds the document-id and index-name scheme for
// RawTestOutcome records so every indexer call agrees on them, the same
// separation clients/elasticsearch keeps for the driver lifecycle.
package elasticsearch

import "fmt"

// OutcomeIndexName returns the index a RawTestOutcome for the given
// batch should be written to: one index per batch keeps reindexing and
// retention scoped to a single test run.
func OutcomeIndexName(prefix, batchID string) string {
	return fmt.Sprintf("%s-outcomes-%s", prefix, batchID)
}

// OutcomeDocumentID is deterministic on (instanceID, subTestItem) so a
// retried write is an overwrite, not a duplicate.
func OutcomeDocumentID(instanceID, subTestItem string) string {
	return fmt.Sprintf("%s:%s", instanceID, subTestItem)
}
