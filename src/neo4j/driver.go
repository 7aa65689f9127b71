// Package neo4j holds the Cypher used to project the wiring graph
// (ChannelPointDefinition -> TestPlcChannel edges) that the channel
// allocator queries when resolving which test-rig channel backs a given
// point definition. Kept apart from clients/neo4j, which only owns the
// driver/session lifecycle.
package neo4j

import (
	"context"
	"errors"
	"fmt"

	"github.com/neo4j/neo4j-go-driver/v6/neo4j"
)

// WiringEdge is one row of the graph: a point definition wired to the
// test-rig channel that exercises it.
type WiringEdge struct {
	PointTag   string
	RigChannel string
	WireSystem string
}

func UpsertWiringEdge(ctx context.Context, session neo4j.Session, edge WiringEdge) error {
	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		return tx.Run(ctx,
			`MERGE (p:PointDefinition {tag: $pointTag})
			 MERGE (c:RigChannel {name: $rigChannel})
			 MERGE (p)-[w:WIRED_TO {wireSystem: $wireSystem}]->(c)
			 RETURN w`,
			map[string]any{
				"pointTag":   edge.PointTag,
				"rigChannel": edge.RigChannel,
				"wireSystem": edge.WireSystem,
			},
		)
	})
	if err != nil {
		return fmt.Errorf("failed to upsert wiring edge for point '%s': %w", edge.PointTag, err)
	}
	return nil
}

func FindRigChannelForPoint(ctx context.Context, session neo4j.Session, pointTag string) (string, error) {
	rigChannel, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			`MATCH (p:PointDefinition {tag: $pointTag})-[:WIRED_TO]->(c:RigChannel)
			 RETURN c.name AS rigChannel LIMIT 1`,
			map[string]any{"pointTag": pointTag},
		)
		if err != nil {
			return nil, fmt.Errorf("failed to query wiring edge: %w", err)
		}
		if res.Next(ctx) {
			value, found := res.Record().Get("rigChannel")
			if !found {
				return nil, errors.New("rigChannel not found in record")
			}
			return value, nil
		}
		return nil, res.Err()
	})
	if err != nil {
		return "", fmt.Errorf("no wiring edge found for point '%s': %w", pointTag, err)
	}

	name, ok := rigChannel.(string)
	if !ok {
		return "", fmt.Errorf("malformed wiring edge record for point '%s'", pointTag)
	}

	return name, nil
}
