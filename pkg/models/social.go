package models

import (
	"time"

	"github.com/google/uuid"
)

// FollowEdge is a directed follow relationship loaded from the graph store.
type FollowEdge struct {
	FollowerID  uuid.UUID `json:"follower_id"`
	FollowingID uuid.UUID `json:"following_id"`
	CreatedAt   time.Time `json:"created_at"`
}

// InfluenceLevel buckets a user's influence score.
type InfluenceLevel string

const (
	InfluenceNone       InfluenceLevel = "none"
	InfluenceLow        InfluenceLevel = "low"
	InfluenceModerate   InfluenceLevel = "moderate"
	InfluenceActive     InfluenceLevel = "active"
	InfluencePopular    InfluenceLevel = "popular"
	InfluenceInfluencer InfluenceLevel = "influencer"
)

// SocialNode is one user's view of the follow graph. Mutual is always
// Following ∩ Followers.
type SocialNode struct {
	UserID         uuid.UUID               `json:"user_id"`
	Followers      map[uuid.UUID]struct{}  `json:"-"`
	Following      map[uuid.UUID]struct{}  `json:"-"`
	Mutual         map[uuid.UUID]struct{}  `json:"-"`
	InfluenceScore float64                 `json:"influence_score"`
	InfluenceLevel InfluenceLevel          `json:"influence_level"`
}

// SocialGraph maps user IDs to their nodes.
type SocialGraph map[uuid.UUID]*SocialNode

// DistanceKind classifies the relationship behind a social distance.
type DistanceKind string

const (
	DistanceDirectFollow DistanceKind = "direct_follow"
	DistanceMutualFollow DistanceKind = "mutual_follow"
	DistanceSecondDegree DistanceKind = "second_degree"
	DistanceThirdDegree  DistanceKind = "third_degree"
	DistanceUnknown      DistanceKind = "unknown"
)

// UnreachableDistance marks pairs with no path within the traversal bound.
const UnreachableDistance = int(^uint(0) >> 1)

// SocialDistance is derived per (source, target) pair; it is never stored.
type SocialDistance struct {
	Distance int          `json:"distance"`
	Kind     DistanceKind `json:"kind"`
	Weight   float64      `json:"weight"`
}

// Reachable reports whether the pair is connected within three hops.
func (d SocialDistance) Reachable() bool {
	return d.Kind != DistanceUnknown
}
