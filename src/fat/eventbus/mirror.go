package eventbus

import (
	"context"
	"encoding/json"

	"fatorch/src/clients/kafka"

	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
	"github.com/twmb/franz-go/pkg/kgo"
)

// KafkaMirror subscribes to the bus like any other consumer and republishes
// TestProgressChanged (plus batch-completion summaries, which arrive as the
// same kind with an empty InstanceID) onto a topic external reporting
// systems can tail, per SPEC_FULL.md's C9 cross-process mirroring note.
type KafkaMirror struct {
	client *kafka.Client
	topic  string
	logger zerolog.Logger
}

func NewKafkaMirror(client *kafka.Client, topic string, logger zerolog.Logger) *KafkaMirror {
	return &KafkaMirror{client: client, topic: topic, logger: logger}
}

// Run drains sub until its context is cancelled or the channel closes. It's
// meant to be started as its own goroutine by the composition root, one per
// mirror, with a dedicated Subscribe("kafka-mirror") subscription.
func (m *KafkaMirror) Run(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if ev.Kind != KindTestProgressChanged {
				continue
			}
			m.mirror(ctx, ev)
		}
	}
}

func (m *KafkaMirror) mirror(ctx context.Context, ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to marshal event for kafka mirror")
		return
	}

	record := &kgo.Record{Topic: m.topic, Key: []byte(ev.BatchID), Value: payload}
	m.client.Driver.Produce(ctx, record, func(_ *kgo.Record, err error) {
		if err != nil {
			m.logger.Error().Err(err).Str("topic", m.topic).Msg("failed to mirror event to kafka")
		}
	})
}

// NatsMirror republishes ManualTestStatusChanged and MonitoringData onto a
// subject, so a floor HMI or a second operator terminal can observe live
// manual-test progress without holding a subscription on the in-process bus.
type NatsMirror struct {
	conn    *nats.Conn
	subject string
	logger  zerolog.Logger
}

func NewNatsMirror(conn *nats.Conn, subject string, logger zerolog.Logger) *NatsMirror {
	return &NatsMirror{conn: conn, subject: subject, logger: logger}
}

func (m *NatsMirror) Run(ctx context.Context, sub *Subscription) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub.Events:
			if !ok {
				return
			}
			if ev.Kind != KindManualTestStatusChanged && ev.Kind != KindMonitoringData {
				continue
			}
			m.mirror(ev)
		}
	}
}

func (m *NatsMirror) mirror(ev Event) {
	payload, err := json.Marshal(ev)
	if err != nil {
		m.logger.Error().Err(err).Msg("failed to marshal event for nats mirror")
		return
	}

	if err := m.conn.Publish(m.subject+"."+ev.InstanceID, payload); err != nil {
		m.logger.Error().Err(err).Str("subject", m.subject).Msg("failed to mirror event to nats")
	}
}
