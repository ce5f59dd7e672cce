package services

import (
	"context"
	"fmt"
	"math"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/internal/config"
	"github.com/codera/memefeed/pkg/models"
)

// SocialGraphBuilder loads follow edges and derives adjacency, distance
// and influence structure.
type SocialGraphBuilder struct {
	follows FollowRepository
	config  *config.EngineConfig
	logger  *logrus.Logger
}

func NewSocialGraphBuilder(follows FollowRepository, cfg *config.EngineConfig, logger *logrus.Logger) *SocialGraphBuilder {
	return &SocialGraphBuilder{follows: follows, config: cfg, logger: logger}
}

// BuildSocialGraph loads every follow edge touching the given users and
// builds follower/following/mutual sets plus influence scores. Users named
// in edges but outside the requested set get nodes too, so traversal can
// cross them.
func (b *SocialGraphBuilder) BuildSocialGraph(
	ctx context.Context,
	userIDs []uuid.UUID,
) (models.SocialGraph, error) {
	edges, err := b.follows.ListEdges(ctx, userIDs)
	if err != nil {
		return nil, fmt.Errorf("failed to load follow edges: %w", err)
	}
	return b.buildFromEdges(edges), nil
}

// BuildGraphAround expands the graph outward from a seed user in rounds:
// each round loads the edges of every newly discovered user, so round N
// brings in the neighborhood N hops out. Node growth is capped to keep
// dense graphs bounded.
func (b *SocialGraphBuilder) BuildGraphAround(
	ctx context.Context,
	seed uuid.UUID,
) (models.SocialGraph, error) {
	frontier := []uuid.UUID{seed}
	known := map[uuid.UUID]struct{}{seed: {}}
	var allEdges []models.FollowEdge

	rounds := b.config.Social.ExpansionRounds
	if rounds < 1 {
		rounds = 1
	}

	for round := 0; round < rounds && len(frontier) > 0; round++ {
		edges, err := b.follows.ListEdges(ctx, frontier)
		if err != nil {
			return nil, fmt.Errorf("failed to expand social graph: %w", err)
		}
		allEdges = append(allEdges, edges...)

		var next []uuid.UUID
		for _, edge := range edges {
			for _, id := range [2]uuid.UUID{edge.FollowerID, edge.FollowingID} {
				if _, ok := known[id]; ok {
					continue
				}
				known[id] = struct{}{}
				next = append(next, id)
			}
			if len(known) >= b.config.Social.MaxGraphNodes {
				break
			}
		}
		if len(known) >= b.config.Social.MaxGraphNodes {
			b.logger.WithFields(logrus.Fields{
				"seed":  seed,
				"nodes": len(known),
			}).Debug("Social graph expansion capped")
			break
		}
		frontier = next
	}

	graph := b.buildFromEdges(allEdges)
	if _, ok := graph[seed]; !ok {
		graph[seed] = newSocialNode(seed)
	}
	return graph, nil
}

func (b *SocialGraphBuilder) buildFromEdges(edges []models.FollowEdge) models.SocialGraph {
	graph := make(models.SocialGraph)
	node := func(id uuid.UUID) *models.SocialNode {
		n, ok := graph[id]
		if !ok {
			n = newSocialNode(id)
			graph[id] = n
		}
		return n
	}

	for _, edge := range edges {
		node(edge.FollowerID).Following[edge.FollowingID] = struct{}{}
		node(edge.FollowingID).Followers[edge.FollowerID] = struct{}{}
	}

	for _, n := range graph {
		for id := range n.Following {
			if _, ok := n.Followers[id]; ok {
				n.Mutual[id] = struct{}{}
			}
		}
		n.InfluenceScore, n.InfluenceLevel = b.CalculateSocialInfluence(n)
	}
	return graph
}

func newSocialNode(id uuid.UUID) *models.SocialNode {
	return &models.SocialNode{
		UserID:    id,
		Followers: map[uuid.UUID]struct{}{},
		Following: map[uuid.UUID]struct{}{},
		Mutual:    map[uuid.UUID]struct{}{},
	}
}

// CalculateSocialInfluence scores a node as followers*0.3 + following*0.2 +
// mutual*0.5, capped at 100, and buckets the score into a level.
func (b *SocialGraphBuilder) CalculateSocialInfluence(node *models.SocialNode) (float64, models.InfluenceLevel) {
	score := float64(len(node.Followers))*0.3 +
		float64(len(node.Following))*0.2 +
		float64(len(node.Mutual))*0.5
	score = math.Min(score, 100)

	var level models.InfluenceLevel
	switch {
	case score >= 50:
		level = models.InfluenceInfluencer
	case score >= 20:
		level = models.InfluencePopular
	case score >= 10:
		level = models.InfluenceActive
	case score >= 5:
		level = models.InfluenceModerate
	case score >= 1:
		level = models.InfluenceLow
	default:
		level = models.InfluenceNone
	}
	return score, level
}

// CalculateSocialDistance returns the minimum hop count from source to
// target over "following" edges, classified by kind. Mutual follows are
// never reported as plain direct follows. Traversal is a bounded-depth BFS
// with an explicit visited set: the graph contains cycles.
func (b *SocialGraphBuilder) CalculateSocialDistance(
	source, target uuid.UUID,
	graph models.SocialGraph,
) models.SocialDistance {
	unknown := models.SocialDistance{
		Distance: models.UnreachableDistance,
		Kind:     models.DistanceUnknown,
	}

	src, ok := graph[source]
	if !ok || source == target {
		return unknown
	}

	if _, ok := src.Mutual[target]; ok {
		return models.SocialDistance{Distance: 1, Kind: models.DistanceMutualFollow, Weight: b.config.Social.MutualWeight}
	}
	if _, ok := src.Following[target]; ok {
		return models.SocialDistance{Distance: 1, Kind: models.DistanceDirectFollow, Weight: b.config.Social.DirectWeight}
	}
	if _, ok := src.Followers[target]; ok {
		// Target follows the source; still one hop of social proximity.
		return models.SocialDistance{Distance: 1, Kind: models.DistanceDirectFollow, Weight: b.config.Social.DirectWeight}
	}

	const maxDepth = 3
	visited := map[uuid.UUID]struct{}{source: {}}
	frontier := []uuid.UUID{source}

	// Expansion round N discovers nodes exactly N hops from the source;
	// direct (N=1) relationships were handled above.
	for depth := 1; depth <= maxDepth; depth++ {
		var next []uuid.UUID
		for _, id := range frontier {
			n, ok := graph[id]
			if !ok {
				continue
			}
			for followed := range n.Following {
				if _, ok := visited[followed]; ok {
					continue
				}
				if followed == target {
					if depth == 2 {
						return models.SocialDistance{Distance: 2, Kind: models.DistanceSecondDegree, Weight: b.config.Social.SecondDegreeWeight}
					}
					return models.SocialDistance{Distance: 3, Kind: models.DistanceThirdDegree, Weight: b.config.Social.ThirdDegreeWeight}
				}
				visited[followed] = struct{}{}
				next = append(next, followed)
			}
		}
		frontier = next
	}

	return unknown
}
