package eventbus

import (
	"context"
	"sync"

	"fatorch/src/fat/clockid"

	"github.com/rs/zerolog"
)

// QueueDepth is the per-subscriber channel bound. A subscriber that falls
// this far behind starts losing deliveries to the overflow sink rather than
// blocking the publisher (§4.7: "drop with warning", never backpressure the
// StateManager that's publishing).
const QueueDepth = 256

// Overflow receives an event a subscriber's queue couldn't hold. The bus
// calls this synchronously from Publish, so implementations must not block
// (the DLQ sink fires the Lua enqueue in a background goroutine for exactly
// this reason; see redisDLQSink in overflow.go).
type Overflow interface {
	Offer(subscriberName string, ev Event)
}

type subscriber struct {
	name string
	ch   chan Event
}

// Bus is the in-process primary delivery path. Kafka/NATS mirrors subscribe
// to it like any other consumer (see mirror.go) rather than being special
// cased in Publish.
type Bus struct {
	clock clockid.Clock

	mu          sync.RWMutex
	subscribers []*subscriber

	seqMu sync.Mutex
	seqs  map[string]uint64

	overflow Overflow
	logger   zerolog.Logger
}

func New(clock clockid.Clock, overflow Overflow, logger zerolog.Logger) *Bus {
	return &Bus{
		clock:    clock,
		seqs:     make(map[string]uint64),
		overflow: overflow,
		logger:   logger,
	}
}

// Subscription is the read side handed back by Subscribe. Callers range over
// Events until Unsubscribe is called (or the bus shuts down).
type Subscription struct {
	Name   string
	Events <-chan Event
}

func (b *Bus) Subscribe(name string) *Subscription {
	b.mu.Lock()
	defer b.mu.Unlock()

	sub := &subscriber{name: name, ch: make(chan Event, QueueDepth)}
	b.subscribers = append(b.subscribers, sub)
	return &Subscription{Name: name, Events: sub.ch}
}

func (b *Bus) Unsubscribe(name string) {
	b.mu.Lock()
	defer b.mu.Unlock()

	kept := b.subscribers[:0]
	for _, sub := range b.subscribers {
		if sub.name == name {
			close(sub.ch)
			continue
		}
		kept = append(kept, sub)
	}
	b.subscribers = kept
}

// Publish assigns the next per-instance sequence number and fans the event
// out to every subscriber. BatchID-scoped events (no InstanceID, e.g. a batch
// summary) are sequenced under the BatchID instead so ordering still holds
// per aggregate.
func (b *Bus) Publish(_ context.Context, ev Event) Event {
	key := ev.InstanceID
	if key == "" {
		key = ev.BatchID
	}

	b.seqMu.Lock()
	b.seqs[key]++
	ev.Seq = b.seqs[key]
	b.seqMu.Unlock()

	if ev.At.IsZero() {
		ev.At = b.clock.Now()
	}

	b.mu.RLock()
	defer b.mu.RUnlock()

	for _, sub := range b.subscribers {
		select {
		case sub.ch <- ev:
		default:
			b.logger.Warn().
				Str("subscriber", sub.name).
				Str("kind", string(ev.Kind)).
				Str("instance_id", ev.InstanceID).
				Msg("subscriber queue full, routing event to overflow sink")
			if b.overflow != nil {
				b.overflow.Offer(sub.name, ev)
			}
		}
	}

	return ev
}

// lastSeq is exposed for tests asserting ordering without racing Publish.
func (b *Bus) lastSeq(key string) uint64 {
	b.seqMu.Lock()
	defer b.seqMu.Unlock()
	return b.seqs[key]
}
