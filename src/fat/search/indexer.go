// Package search is the Elasticsearch-backed secondary index SPEC_FULL.md's
// DOMAIN STACK table calls for: a searchable archive of outcome error
// messages and error notes, fed asynchronously off the event bus rather
// than written synchronously by StateManager (spec.md's own write path
// stays Postgres/Scylla only — this is a derived, best-effort index an
// operator's free-text search hits, not a source of truth).
package search

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"time"

	esclient "fatorch/src/clients/elasticsearch"
	"fatorch/src/elasticsearch"
	"fatorch/src/fat/eventbus"

	"github.com/elastic/go-elasticsearch/v9/esapi"
	"github.com/rs/zerolog"
)

// document is the indexed shape: one per ErrorDetail/SubTestChanged event.
// subTestItem feeds elasticsearch.OutcomeDocumentID so a retried write for
// the same sub-test overwrites rather than accumulates duplicate hits.
type document struct {
	InstanceID  string    `json:"instance_id"`
	subTestItem string    `json:"-"`
	BatchID     string    `json:"batch_id"`
	Kind        string    `json:"kind"`
	SubTestKey  string    `json:"sub_test_key,omitempty"`
	Code        string    `json:"code,omitempty"`
	Message     string    `json:"message"`
	At          time.Time `json:"at"`
}

type Indexer struct {
	client *esclient.Client
	prefix string
	logger zerolog.Logger
}

func New(client *esclient.Client, indexPrefix string, logger zerolog.Logger) *Indexer {
	return &Indexer{client: client, prefix: indexPrefix, logger: logger}
}

// Run drains sub until ctx is cancelled or the channel closes, indexing
// every ErrorDetail/SubTestChanged event it sees. Meant to be started as its
// own goroutine by the composition root, same shape as eventbus's mirrors.
func (idx *Indexer) Run(ctx context.Context, sub *eventbus.Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			doc, ok := idx.toDocument(ev)
			if !ok {
				continue
			}
			if err := idx.index(ctx, ev.BatchID, doc); err != nil {
				idx.logger.Error().Err(err).Str("instance_id", ev.InstanceID).Msg("failed to index outcome document")
			}
		}
	}
}

func (idx *Indexer) toDocument(ev eventbus.Event) (document, bool) {
	switch ev.Kind {
	case eventbus.KindErrorDetail:
		p, ok := ev.Payload.(eventbus.ErrorDetailPayload)
		if !ok {
			return document{}, false
		}
		return document{
			InstanceID:  ev.InstanceID,
			subTestItem: "error-" + p.Code,
			BatchID:     ev.BatchID,
			Kind:        string(ev.Kind),
			Code:        p.Code,
			Message:     p.Message,
			At:          ev.At,
		}, true
	case eventbus.KindSubTestChanged:
		p, ok := ev.Payload.(eventbus.SubTestChangedPayload)
		if !ok {
			return document{}, false
		}
		return document{
			InstanceID:  ev.InstanceID,
			subTestItem: p.SubTestKey,
			BatchID:     ev.BatchID,
			Kind:        string(ev.Kind),
			SubTestKey:  p.SubTestKey,
			Message:     p.Message,
			At:          ev.At,
		}, true
	default:
		return document{}, false
	}
}

func (idx *Indexer) index(ctx context.Context, batchID string, doc document) error {
	body, err := json.Marshal(doc)
	if err != nil {
		return fmt.Errorf("marshal outcome document: %w", err)
	}

	req := esapi.IndexRequest{
		Index:      elasticsearch.OutcomeIndexName(idx.prefix, batchID),
		DocumentID: elasticsearch.OutcomeDocumentID(doc.InstanceID, doc.subTestItem),
		Body:       bytes.NewReader(body),
		Refresh:    "false",
	}

	res, err := req.Do(ctx, idx.client.Driver)
	if err != nil {
		return fmt.Errorf("index request failed: %w", err)
	}
	defer res.Body.Close()

	if res.IsError() {
		return fmt.Errorf("index request returned status %s", res.Status())
	}
	return nil
}
