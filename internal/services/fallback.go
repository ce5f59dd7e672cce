package services

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/internal/config"
	"github.com/codera/memefeed/internal/metrics"
	"github.com/codera/memefeed/pkg/models"
)

// FallbackStrategy is the single popularity-ranking path every strategy
// degrades to when its signal precondition is not met. Callers tag the
// result with their own recommendation type so degraded responses stay
// distinguishable from full ones.
type FallbackStrategy struct {
	items  ItemRepository
	config *config.EngineConfig
	logger *logrus.Logger
}

func NewFallbackStrategy(items ItemRepository, cfg *config.EngineConfig, logger *logrus.Logger) *FallbackStrategy {
	return &FallbackStrategy{items: items, config: cfg, logger: logger}
}

// Popularity returns public memes ranked by hot score. Not an error path:
// the result is a successful, explicitly degraded recommendation.
func (f *FallbackStrategy) Popularity(
	ctx context.Context,
	userID uuid.UUID,
	opts RecOptions,
	recType string,
) (*models.RankedCandidates, error) {
	candidates, err := f.rank(ctx, opts, func(a, b models.Meme) bool {
		return a.HotScore > b.HotScore
	}, models.StrategyHot)
	if err != nil {
		return nil, err
	}

	f.logger.WithFields(logrus.Fields{
		"user_id":             userID,
		"recommendation_type": recType,
		"count":               len(candidates),
	}).Debug("Served popularity fallback")
	metrics.StrategyResult(recType, true)

	return &models.RankedCandidates{
		UserID:             userID,
		RecommendationType: recType,
		Candidates:         candidates,
		Page:               opts.Page,
		Limit:              opts.Limit,
		GeneratedAt:        time.Now(),
	}, nil
}

// Latest ranks public memes by recency; the orchestrator uses it as the
// exploration strategy.
func (f *FallbackStrategy) Latest(
	ctx context.Context,
	userID uuid.UUID,
	opts RecOptions,
) (*models.RankedCandidates, error) {
	candidates, err := f.rank(ctx, opts, func(a, b models.Meme) bool {
		return a.CreatedAt.After(b.CreatedAt)
	}, models.StrategyLatest)
	if err != nil {
		return nil, err
	}

	return &models.RankedCandidates{
		UserID:             userID,
		RecommendationType: models.RecTypeLatest,
		Candidates:         candidates,
		Page:               opts.Page,
		Limit:              opts.Limit,
		GeneratedAt:        time.Now(),
	}, nil
}

func (f *FallbackStrategy) rank(
	ctx context.Context,
	opts RecOptions,
	less func(a, b models.Meme) bool,
	strategy string,
) ([]models.RecommendationCandidate, error) {
	items, err := f.items.List(ctx, models.MemeFilter{
		Tags:       opts.Tags,
		Types:      opts.Types,
		ExcludeIDs: opts.ExcludeIDs,
		Limit:      f.config.Sampling.PublicItemCap,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load fallback candidates: %w", err)
	}

	sort.Slice(items, func(i, j int) bool { return less(items[i], items[j]) })

	items = paginate(items, opts.offset(), opts.Limit)

	candidates := make([]models.RecommendationCandidate, len(items))
	for i := range items {
		item := items[i]
		score := normalizeHotScore(item.HotScore, f.config.Content.HotScoreNorm)
		candidates[i] = models.RecommendationCandidate{
			ItemID:         item.ID,
			StrategyScores: map[string]float64{strategy: score},
			BlendedScore:   score,
			Item:           &item,
		}
	}
	return candidates, nil
}

// normalizeHotScore maps an unbounded popularity score into [0,1].
func normalizeHotScore(hot, norm float64) float64 {
	if norm <= 0 {
		return clamp01(hot)
	}
	return math.Min(hot/norm, 1.0)
}

// blendHotScore re-blends a strategy score with normalized popularity:
// score*(1-w) + normalizedHot*w.
func blendHotScore(score, hot, weight, norm float64) float64 {
	return score*(1-weight) + normalizeHotScore(hot, norm)*weight
}

func paginate[T any](items []T, offset, limit int) []T {
	if offset >= len(items) {
		return nil
	}
	items = items[offset:]
	if limit > 0 && len(items) > limit {
		items = items[:limit]
	}
	return items
}
