package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/pkg/models"
)

// Neo4jFollowRepository reads the follow graph from Neo4j. Edges are
// (follower:User)-[:FOLLOWS]->(following:User) with user_id properties.
type Neo4jFollowRepository struct {
	driver neo4j.DriverWithContext
	logger *logrus.Logger
}

func NewNeo4jFollowRepository(driver neo4j.DriverWithContext, logger *logrus.Logger) *Neo4jFollowRepository {
	return &Neo4jFollowRepository{driver: driver, logger: logger}
}

// ListEdges returns every follow edge touching any of the given users, in
// either direction. An empty user set returns no edges.
func (r *Neo4jFollowRepository) ListEdges(ctx context.Context, userIDs []uuid.UUID) ([]models.FollowEdge, error) {
	if len(userIDs) == 0 {
		return nil, nil
	}

	session := r.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: neo4j.AccessModeRead})
	defer session.Close(ctx)

	ids := make([]string, len(userIDs))
	for i, id := range userIDs {
		ids[i] = id.String()
	}

	cypher := `
		MATCH (follower:User)-[f:FOLLOWS]->(following:User)
		WHERE follower.user_id IN $ids OR following.user_id IN $ids
		RETURN follower.user_id AS follower_id, following.user_id AS following_id, f.created_at AS created_at`

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (interface{}, error) {
		result, err := tx.Run(ctx, cypher, map[string]interface{}{"ids": ids})
		if err != nil {
			return nil, err
		}

		var edges []models.FollowEdge
		for result.Next(ctx) {
			record := result.Record()
			followerRaw, _ := record.Get("follower_id")
			followingRaw, _ := record.Get("following_id")
			createdRaw, _ := record.Get("created_at")

			followerStr, ok := followerRaw.(string)
			if !ok {
				continue
			}
			followingStr, ok := followingRaw.(string)
			if !ok {
				continue
			}
			followerID, err := uuid.Parse(followerStr)
			if err != nil {
				continue
			}
			followingID, err := uuid.Parse(followingStr)
			if err != nil {
				continue
			}

			edge := models.FollowEdge{FollowerID: followerID, FollowingID: followingID}
			switch v := createdRaw.(type) {
			case time.Time:
				edge.CreatedAt = v
			case int64:
				// Timestamps written as epoch millis by older importers.
				edge.CreatedAt = time.UnixMilli(v)
			}
			edges = append(edges, edge)
		}
		return edges, result.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("failed to list follow edges: %w", err)
	}

	edges := result.([]models.FollowEdge)
	r.logger.WithFields(logrus.Fields{
		"users": len(userIDs),
		"edges": len(edges),
	}).Debug("Loaded follow edges")
	return edges, nil
}
