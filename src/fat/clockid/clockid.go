// Package clockid is C3: the Clock and Id collaborators every other domain
// component takes as a constructor dependency instead of calling time.Now
// or uuid.New directly, so tests can inject a fake clock and deterministic
// ids.
package clockid

import (
	"math/rand"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/oklog/ulid/v2"
)

// Clock is clockwork's real-vs-fake seam, used wherever a component needs
// "now" (stabilization-window deadlines, timestamps on readings/outcomes).
type Clock = clockwork.Clock

func NewRealClock() Clock {
	return clockwork.NewRealClock()
}

// Id generates identifiers for instances, batches, allocations and manual
// sessions (UUIDv4) and for RawTestOutcome rows, where a lexicographically
// sortable, time-prefixed id (ULID) doubles as the ledger's natural
// clustering tie-breaker.
type Id interface {
	NewUUID() string
	NewOutcomeID(at time.Time) string
}

type idGenerator struct {
	entropy *ulid.MonotonicEntropy
}

func NewIdGenerator() Id {
	return &idGenerator{
		entropy: ulid.Monotonic(rand.New(rand.NewSource(time.Now().UnixNano())), 0), //nolint:gosec // ids need uniqueness, not cryptographic unpredictability
	}
}

func (g *idGenerator) NewUUID() string {
	return uuid.NewString()
}

func (g *idGenerator) NewOutcomeID(at time.Time) string {
	return ulid.MustNew(ulid.Timestamp(at), g.entropy).String()
}
