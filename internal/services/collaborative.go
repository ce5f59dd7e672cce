package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gonum.org/v1/gonum/stat"

	"github.com/codera/memefeed/internal/config"
	"github.com/codera/memefeed/internal/metrics"
	"github.com/codera/memefeed/pkg/models"
)

// UserSimilarityEngine finds behaviorally similar users over shared
// interaction vectors and produces collaborative-filtering rankings.
type UserSimilarityEngine struct {
	repos      *Repositories
	aggregator *InteractionAggregator
	fallback   *FallbackStrategy
	cache      *VersionedCache
	config     *config.EngineConfig
	logger     *logrus.Logger
}

func NewUserSimilarityEngine(
	repos *Repositories,
	aggregator *InteractionAggregator,
	fallback *FallbackStrategy,
	cache *VersionedCache,
	cfg *config.EngineConfig,
	logger *logrus.Logger,
) *UserSimilarityEngine {
	return &UserSimilarityEngine{
		repos:      repos,
		aggregator: aggregator,
		fallback:   fallback,
		cache:      cache,
		config:     cfg,
		logger:     logger,
	}
}

// PearsonSimilarity is a Pearson-correlation statistic over the
// intersection of two users' item vectors, clamped to [0,1]. It returns 0
// when the intersection is empty or either side has zero variance.
// Symmetric in its inputs; negative scores (dislikes) participate like any
// other value.
func PearsonSimilarity(a, b models.InteractionVector) float64 {
	var x, y []float64
	for itemID, scoreA := range a {
		if scoreB, ok := b[itemID]; ok {
			x = append(x, scoreA)
			y = append(y, scoreB)
		}
	}
	if len(x) == 0 {
		return 0
	}
	r := stat.Correlation(x, y, nil)
	if math.IsNaN(r) || r < 0 {
		return 0
	}
	return clamp01(r)
}

// FindSimilarUsers returns every other user in the matrix whose similarity
// to the target meets minSimilarity, sorted descending and truncated to
// maxUsers.
func (e *UserSimilarityEngine) FindSimilarUsers(
	targetUser uuid.UUID,
	matrix models.InteractionMatrix,
	minSimilarity float64,
	maxUsers int,
) []models.SimilarUser {
	target, ok := matrix[targetUser]
	if !ok || len(target) == 0 {
		return nil
	}

	var similar []models.SimilarUser
	for userID, vector := range matrix {
		if userID == targetUser {
			continue
		}
		similarity := PearsonSimilarity(target, vector)
		if similarity >= minSimilarity && similarity > 0 {
			similar = append(similar, models.SimilarUser{UserID: userID, Similarity: similarity})
		}
	}

	sort.Slice(similar, func(i, j int) bool {
		if similar[i].Similarity != similar[j].Similarity {
			return similar[i].Similarity > similar[j].Similarity
		}
		return similar[i].UserID.String() < similar[j].UserID.String()
	})

	if maxUsers > 0 && len(similar) > maxUsers {
		similar = similar[:maxUsers]
	}
	return similar
}

// CollaborativeFilteringRecommendations ranks items interacted with by the
// target's nearest neighbors, weighted by neighbor similarity. Targets
// without history or without qualifying neighbors get the popularity
// fallback tagged collaborative_fallback.
func (e *UserSimilarityEngine) CollaborativeFilteringRecommendations(
	ctx context.Context,
	userID uuid.UUID,
	opts RecOptions,
) (*models.RankedCandidates, error) {
	started := time.Now()
	defer func() { metrics.ObserveStrategy(models.StrategyCollaborative, time.Since(started)) }()

	key := fmt.Sprintf("%s:%s:%s", models.StrategyCollaborative, userID, opts.cacheKey())
	result, fromCache, err := WithVersion(ctx, e.cache, cacheFamilyRecommendations, key,
		e.config.Caching.RecommendationsTTL,
		func(ctx context.Context) (*models.RankedCandidates, error) {
			return e.compute(ctx, userID, opts)
		})
	if err != nil {
		return nil, err
	}
	result.FromCache = fromCache
	return result, nil
}

func (e *UserSimilarityEngine) compute(
	ctx context.Context,
	userID uuid.UUID,
	opts RecOptions,
) (*models.RankedCandidates, error) {
	matrix, err := e.aggregator.BuildInteractionMatrix(ctx, nil, nil)
	if err != nil {
		return nil, err
	}

	// The sampled population may not include the target; their vector is
	// required for similarity, so load it directly.
	if _, ok := matrix[userID]; !ok {
		vector, err := e.aggregator.BuildUserVector(ctx, userID)
		if err != nil {
			return nil, err
		}
		if len(vector) > 0 {
			matrix[userID] = vector
		}
	}

	target := matrix[userID]
	if len(target) == 0 {
		return e.fallback.Popularity(ctx, userID, opts, models.RecTypeCollabFallback)
	}

	minSimilarity := e.config.Collaborative.MinSimilarity
	if opts.MinSimilarity != nil {
		minSimilarity = *opts.MinSimilarity
	}
	maxUsers := opts.MaxSimilarUsers
	if maxUsers == 0 {
		maxUsers = e.config.Collaborative.MaxSimilarUsers
	}

	similar := e.FindSimilarUsers(userID, matrix, minSimilarity, maxUsers)
	if len(similar) == 0 {
		return e.fallback.Popularity(ctx, userID, opts, models.RecTypeCollabFallback)
	}

	type accumulated struct {
		weightedSum   float64
		similaritySum float64
		contributors  int
	}
	scores := make(map[uuid.UUID]*accumulated)
	excluded := opts.excludeSet()

	for _, neighbor := range similar {
		for itemID, score := range matrix[neighbor.UserID] {
			// Items a neighbor net-disliked are not proposed as candidates,
			// though their scores still shaped the similarity above.
			if score <= 0 {
				continue
			}
			if opts.ExcludeInteracted {
				if _, ok := target[itemID]; ok {
					continue
				}
			}
			if _, ok := excluded[itemID]; ok {
				continue
			}
			acc, ok := scores[itemID]
			if !ok {
				acc = &accumulated{}
				scores[itemID] = acc
			}
			acc.weightedSum += score * neighbor.Similarity
			acc.similaritySum += neighbor.Similarity
			acc.contributors++
		}
	}

	if len(scores) == 0 {
		return e.fallback.Popularity(ctx, userID, opts, models.RecTypeCollabFallback)
	}

	itemIDs := make([]uuid.UUID, 0, len(scores))
	for itemID := range scores {
		itemIDs = append(itemIDs, itemID)
	}
	items, err := e.repos.Items.List(ctx, models.MemeFilter{IDs: itemIDs, Tags: opts.Tags, Types: opts.Types})
	if err != nil {
		return nil, fmt.Errorf("failed to load collaborative candidates: %w", err)
	}

	hotWeight := e.config.Content.HotScoreWeight
	if opts.HotScoreWeight != nil {
		hotWeight = *opts.HotScoreWeight
	}

	// Raw collaborative scores are unbounded; divide by the maximum so the
	// best candidate scores 1.0 before any hot-score blending.
	maxScore := 0.0
	rawScores := make(map[uuid.UUID]float64, len(scores))
	for itemID, acc := range scores {
		raw := acc.weightedSum / acc.similaritySum
		rawScores[itemID] = raw
		if raw > maxScore {
			maxScore = raw
		}
	}

	candidates := make([]models.RecommendationCandidate, 0, len(items))
	for i := range items {
		item := items[i]
		raw, ok := rawScores[item.ID]
		if !ok {
			continue
		}
		score := raw
		if maxScore > 0 {
			score = raw / maxScore
		}
		if opts.IncludeHotScore {
			score = blendHotScore(score, item.HotScore, hotWeight, e.config.Content.HotScoreNorm)
		}
		candidates = append(candidates, models.RecommendationCandidate{
			ItemID: item.ID,
			StrategyScores: map[string]float64{
				models.StrategyCollaborative: clamp01(score),
			},
			BlendedScore: clamp01(score),
			Attribution: models.Attribution{
				SimilarUserCount: scores[item.ID].contributors,
			},
			Item: &item,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].BlendedScore > candidates[j].BlendedScore
	})
	candidates = paginate(candidates, opts.offset(), opts.Limit)

	e.logger.WithFields(logrus.Fields{
		"user_id":       userID,
		"similar_users": len(similar),
		"candidates":    len(candidates),
	}).Debug("Collaborative filtering completed")
	metrics.StrategyResult(models.StrategyCollaborative, false)

	return &models.RankedCandidates{
		UserID:             userID,
		RecommendationType: models.RecTypeCollaborative,
		Candidates:         candidates,
		Page:               opts.Page,
		Limit:              opts.Limit,
		GeneratedAt:        time.Now(),
	}, nil
}
