package eventbus

import (
	"context"
	"encoding/json"
	"time"

	"fatorch/src/clients/redis"
	"fatorch/src/services/dlq"

	"github.com/rs/zerolog"
)

// eventLetter adapts Event to dlq.Letter so the overflow sink can reuse the
// same Redis Lua enqueue script as every other letter queue in the system.
type eventLetter struct {
	Event Event
}

func (l *eventLetter) Marshal() ([]byte, error) {
	return json.Marshal(l.Event)
}

func (l *eventLetter) Unmarshal(payload []byte) error {
	return json.Unmarshal(payload, &l.Event)
}

// redisDLQSink is the overflow path named in SPEC_FULL.md's C9 section: a
// delivery a subscriber's queue couldn't hold gets one more chance, parked
// under the subscriber's name so a reconnecting consumer (e.g. the export UI
// catching up after a disconnect) can drain what it missed.
type redisDLQSink struct {
	svc    *dlq.Service[*eventLetter]
	logger zerolog.Logger
}

// NewRedisDLQSink wraps the shared DLQ service with a fixed queue name and a
// 10 minute TTL — long enough for a subscriber to reconnect and drain a
// burst, short enough that a permanently dead subscriber doesn't grow the
// queue unbounded.
func NewRedisDLQSink(client *redis.Client, logger zerolog.Logger) (Overflow, error) {
	svc, err := dlq.NewService[*eventLetter](&dlq.Options{
		RedisClient: client,
		QueueName:   "fatorchevents",
		QueueTTL:    10 * time.Minute,
		Logger:      logger,
	})
	if err != nil {
		return nil, err
	}

	return &redisDLQSink{svc: svc, logger: logger}, nil
}

func (s *redisDLQSink) Offer(subscriberName string, ev Event) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()

		if _, err := s.svc.Enqueue(ctx, subscriberName, &eventLetter{Event: ev}); err != nil {
			s.logger.Error().Err(err).
				Str("subscriber", subscriberName).
				Str("kind", string(ev.Kind)).
				Msg("failed to park overflowed event in DLQ, event is lost")
		}
	}()
}

// Drain lets a subscriber catch up on what it missed while its queue was
// full, e.g. right after (re)subscribing.
func (s *redisDLQSink) Drain(ctx context.Context, subscriberName string, max int) ([]Event, error) {
	letters, err := s.svc.DequeueMulti(ctx, subscriberName, max)
	if err != nil {
		return nil, err
	}

	events := make([]Event, 0, len(letters))
	for _, letter := range letters {
		events = append(events, letter.Event)
	}
	return events, nil
}
