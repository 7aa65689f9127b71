package eventbus

import (
	"context"
	"sync"
	"testing"

	"github.com/jonboulle/clockwork"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeOverflow struct {
	mu     sync.Mutex
	offers []Event
}

func (f *fakeOverflow) Offer(_ string, ev Event) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.offers = append(f.offers, ev)
}

func (f *fakeOverflow) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.offers)
}

func TestBus_Publish_DeliversToEverySubscriber(t *testing.T) {
	bus := New(clockwork.NewFakeClock(), nil, zerolog.Nop())
	a := bus.Subscribe("a")
	b := bus.Subscribe("b")

	bus.Publish(context.Background(), Event{Kind: KindStateChanged, InstanceID: "inst-1"})

	assertReceived(t, a, "inst-1")
	assertReceived(t, b, "inst-1")
}

func TestBus_Publish_AssignsIncreasingSeqPerInstance(t *testing.T) {
	bus := New(clockwork.NewFakeClock(), nil, zerolog.Nop())
	sub := bus.Subscribe("only")

	bus.Publish(context.Background(), Event{InstanceID: "inst-1"})
	bus.Publish(context.Background(), Event{InstanceID: "inst-1"})
	bus.Publish(context.Background(), Event{InstanceID: "inst-2"})

	first := <-sub.Events
	second := <-sub.Events
	third := <-sub.Events

	assert.Equal(t, uint64(1), first.Seq)
	assert.Equal(t, uint64(2), second.Seq)
	assert.Equal(t, uint64(1), third.Seq) // different aggregate, own counter
}

func TestBus_Publish_FallsBackToBatchIDSequenceWhenNoInstanceID(t *testing.T) {
	bus := New(clockwork.NewFakeClock(), nil, zerolog.Nop())
	sub := bus.Subscribe("only")

	bus.Publish(context.Background(), Event{BatchID: "batch-1"})
	bus.Publish(context.Background(), Event{BatchID: "batch-1"})

	<-sub.Events
	second := <-sub.Events
	assert.Equal(t, uint64(2), second.Seq)
}

func TestBus_Publish_StampsAtWhenZero(t *testing.T) {
	clock := clockwork.NewFakeClock()
	bus := New(clock, nil, zerolog.Nop())

	ev := bus.Publish(context.Background(), Event{InstanceID: "inst-1"})

	assert.Equal(t, clock.Now(), ev.At)
}

func TestBus_Publish_RoutesToOverflowWhenSubscriberQueueIsFull(t *testing.T) {
	overflow := &fakeOverflow{}
	bus := New(clockwork.NewFakeClock(), overflow, zerolog.Nop())
	bus.Subscribe("slow") // never drained

	for i := 0; i < QueueDepth+5; i++ {
		bus.Publish(context.Background(), Event{InstanceID: "inst-1"})
	}

	assert.Equal(t, 5, overflow.count())
}

func TestBus_Unsubscribe_ClosesTheChannelAndStopsDelivery(t *testing.T) {
	bus := New(clockwork.NewFakeClock(), nil, zerolog.Nop())
	sub := bus.Subscribe("temp")

	bus.Unsubscribe("temp")

	_, ok := <-sub.Events
	assert.False(t, ok)
}

func assertReceived(t *testing.T, sub *Subscription, instanceID string) {
	t.Helper()
	select {
	case ev := <-sub.Events:
		require.Equal(t, instanceID, ev.InstanceID)
	default:
		t.Fatalf("expected an event on subscriber %q", sub.Name)
	}
}
