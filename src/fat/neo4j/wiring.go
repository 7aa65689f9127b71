// Package neo4j adapts the raw Cypher helpers in src/neo4j to a
// session-free interface the allocator can depend on without reaching into
// client-lifecycle concerns.
package neo4j

import (
	"context"

	rawwiring "fatorch/src/neo4j"

	"github.com/neo4j/neo4j-go-driver/v6/neo4j"
)

// WiringProjector records and queries the point-definition -> test-rig
// channel wiring graph built by the allocator.
type WiringProjector interface {
	ProjectAllocation(ctx context.Context, pointTag, rigChannel, wireSystem string) error
	ResolveRigChannel(ctx context.Context, pointTag string) (string, error)
}

type sessionProjector struct {
	newSession func() neo4j.Session
}

// NewSessionProjector wraps a session factory (typically
// clients/neo4j.Client.NewSession bound to neo4j.AccessModeWrite) so the
// allocator never imports the driver lifecycle package directly.
func NewSessionProjector(newSession func() neo4j.Session) WiringProjector {
	return &sessionProjector{newSession: newSession}
}

func (p *sessionProjector) ProjectAllocation(ctx context.Context, pointTag, rigChannel, wireSystem string) error {
	session := p.newSession()
	defer func() { _ = session.Close(ctx) }()

	return rawwiring.UpsertWiringEdge(ctx, session, rawwiring.WiringEdge{
		PointTag:   pointTag,
		RigChannel: rigChannel,
		WireSystem: wireSystem,
	})
}

func (p *sessionProjector) ResolveRigChannel(ctx context.Context, pointTag string) (string, error) {
	session := p.newSession()
	defer func() { _ = session.Close(ctx) }()

	return rawwiring.FindRigChannelForPoint(ctx, session, pointTag)
}
