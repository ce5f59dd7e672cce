package models

import (
	"strings"
	"time"

	"github.com/google/uuid"
)

// Strategy names used across the engine. Fallback variants carry the
// "_fallback" suffix so callers can tell degraded results from full ones.
const (
	StrategyContentBased  = "content_based"
	StrategyCollaborative = "collaborative_filtering"
	StrategySocial        = "social_collaborative_filtering"
	StrategyHot           = "hot"
	StrategyLatest        = "latest"

	RecTypeContentBased         = "content_based"
	RecTypeTagBased             = "tag_based"
	RecTypeCollaborative        = "collaborative_filtering"
	RecTypeSocial               = "social_collaborative_filtering"
	RecTypeContentFallback      = "content_based_fallback"
	RecTypeCollabFallback       = "collaborative_fallback"
	RecTypeSocialFallback       = "social_collaborative_fallback"
	RecTypeHot                  = "hot"
	RecTypeLatest               = "latest"
)

// Attribution explains why a candidate was recommended.
type Attribution struct {
	MatchedTags      []string `json:"matched_tags,omitempty"`
	SimilarUserCount int      `json:"similar_user_count,omitempty"`
	SocialReasons    []string `json:"social_reasons,omitempty"`
}

// RecommendationCandidate is one scored item in a ranked result.
type RecommendationCandidate struct {
	ItemID         uuid.UUID          `json:"item_id"`
	StrategyScores map[string]float64 `json:"strategy_scores,omitempty"`
	BlendedScore   float64            `json:"blended_score"`
	Attribution    Attribution        `json:"attribution"`
	Item           *Meme              `json:"item,omitempty"`
}

// RankedCandidates is the result of a single strategy invocation.
type RankedCandidates struct {
	UserID             uuid.UUID                 `json:"user_id"`
	RecommendationType string                    `json:"recommendation_type"`
	Candidates         []RecommendationCandidate `json:"candidates"`
	Page               int                       `json:"page"`
	Limit              int                       `json:"limit"`
	FromCache          bool                      `json:"from_cache"`
	GeneratedAt        time.Time                 `json:"generated_at"`
}

// Fallback reports whether the result came from the popularity fallback path.
func (r *RankedCandidates) Fallback() bool {
	return strings.HasSuffix(r.RecommendationType, "_fallback")
}

// ColdStartStatus explains the cold-start decision for a user.
type ColdStartStatus struct {
	IsColdStart    bool    `json:"is_cold_start"`
	Confidence     float64 `json:"confidence"`
	RecentActivity int     `json:"recent_activity"`
	Reason         string  `json:"reason,omitempty"`
}

// DiversityMetrics is computed over the final ranked window.
type DiversityMetrics struct {
	TagDiversity     float64 `json:"tag_diversity"`
	AuthorDiversity  float64 `json:"author_diversity"`
	UniqueTags       int     `json:"unique_tags"`
	TotalTagMentions int     `json:"total_tag_mentions"`
	UniqueAuthors    int     `json:"unique_authors"`
	TotalCandidates  int     `json:"total_candidates"`
}

// MixedResult is the blending orchestrator's output.
type MixedResult struct {
	UserID          uuid.UUID                 `json:"user_id"`
	Algorithm       string                    `json:"algorithm"` // always "mixed"
	Recommendations []RecommendationCandidate `json:"recommendations"`
	Weights         map[string]float64        `json:"weights"`
	ColdStart       *ColdStartStatus          `json:"cold_start_status,omitempty"`
	Diversity       *DiversityMetrics         `json:"diversity,omitempty"`
	Page            int                       `json:"page"`
	Limit           int                       `json:"limit"`
	FromCache       bool                      `json:"from_cache"`
	GeneratedAt     time.Time                 `json:"generated_at"`
}

// SimilarUser pairs a neighbor with its behavioral similarity to the target.
type SimilarUser struct {
	UserID     uuid.UUID `json:"user_id"`
	Similarity float64   `json:"similarity"`
}

// StrategyAdjustment names the focus chosen for a user plus the weight
// vector that implements it.
type StrategyAdjustment struct {
	UserID  uuid.UUID          `json:"user_id"`
	Focus   string             `json:"focus"` // personalization, social, exploration
	Weights map[string]float64 `json:"weights"`
}

// AlgorithmStats summarizes per-user signal availability for operators.
type AlgorithmStats struct {
	UserID            uuid.UUID          `json:"user_id"`
	TotalInteractions int                `json:"total_interactions"`
	RecentActivity    int                `json:"recent_activity"`
	TagConfidence     float64            `json:"tag_confidence"`
	RetainedTags      int                `json:"retained_tags"`
	FollowerCount     int                `json:"follower_count"`
	FollowingCount    int                `json:"following_count"`
	MutualCount       int                `json:"mutual_count"`
	InfluenceScore    float64            `json:"influence_score"`
	InfluenceLevel    InfluenceLevel     `json:"influence_level"`
	ColdStart         *ColdStartStatus   `json:"cold_start_status"`
	ActiveWeights     map[string]float64 `json:"active_weights"`
	GeneratedAt       time.Time          `json:"generated_at"`
}
