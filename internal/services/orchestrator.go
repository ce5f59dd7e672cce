package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/internal/config"
	"github.com/codera/memefeed/pkg/models"
)

// blendFetchFactor widens each strategy's fetch window so the merged list
// still fills a page after overlap and re-ranking.
const blendFetchFactor = 3

// Strategy focus labels for AdjustRecommendationStrategy.
const (
	FocusPersonalization = "personalization"
	FocusSocial          = "social"
	FocusExploration     = "exploration"
)

// BlendingOrchestrator fans out to the individual strategies and merges
// their ranked outputs under a per-user weight vector.
type BlendingOrchestrator struct {
	repos    *Repositories
	prefs    *TagPreferenceModel
	content  *ContentSimilarityEngine
	collab   *UserSimilarityEngine
	social   *SocialSimilarityEngine
	graphs   *SocialGraphBuilder
	fallback *FallbackStrategy
	cache    *VersionedCache
	config   *config.EngineConfig
	logger   *logrus.Logger
}

func NewBlendingOrchestrator(
	repos *Repositories,
	prefs *TagPreferenceModel,
	content *ContentSimilarityEngine,
	collab *UserSimilarityEngine,
	social *SocialSimilarityEngine,
	graphs *SocialGraphBuilder,
	fallback *FallbackStrategy,
	cache *VersionedCache,
	cfg *config.EngineConfig,
	logger *logrus.Logger,
) *BlendingOrchestrator {
	return &BlendingOrchestrator{
		repos:    repos,
		prefs:    prefs,
		content:  content,
		collab:   collab,
		social:   social,
		graphs:   graphs,
		fallback: fallback,
		cache:    cache,
		config:   cfg,
		logger:   logger,
	}
}

var coldStartWeights = map[string]float64{
	models.StrategyHot:           0.6,
	models.StrategyLatest:        0.3,
	models.StrategyCollaborative: 0.05,
	models.StrategySocial:        0.05,
	models.StrategyContentBased:  0.0,
}

var activeWeights = map[string]float64{
	models.StrategyContentBased:  0.35,
	models.StrategyCollaborative: 0.25,
	models.StrategySocial:        0.2,
	models.StrategyHot:           0.1,
	models.StrategyLatest:        0.1,
}

var focusWeights = map[string]map[string]float64{
	FocusExploration: {
		models.StrategyLatest:        0.35,
		models.StrategyHot:           0.25,
		models.StrategyContentBased:  0.2,
		models.StrategyCollaborative: 0.1,
		models.StrategySocial:        0.1,
	},
	FocusSocial: {
		models.StrategySocial:        0.4,
		models.StrategyCollaborative: 0.25,
		models.StrategyContentBased:  0.2,
		models.StrategyHot:           0.1,
		models.StrategyLatest:        0.05,
	},
	FocusPersonalization: {
		models.StrategyContentBased:  0.4,
		models.StrategyCollaborative: 0.25,
		models.StrategySocial:        0.15,
		models.StrategyHot:           0.1,
		models.StrategyLatest:        0.1,
	},
}

// DetectColdStart decides whether the user has enough signal for the
// personalized strategies. Both low tag confidence and low recent activity
// independently trigger cold start.
func (o *BlendingOrchestrator) DetectColdStart(
	ctx context.Context,
	userID uuid.UUID,
) (*models.ColdStartStatus, error) {
	prefs, err := o.prefs.CalculateUserTagPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	since := time.Now().Add(-o.config.Mixed.ActivityWindow)
	recent, err := o.repos.Interactions.CountSince(ctx, userID, since)
	if err != nil {
		return nil, fmt.Errorf("failed to count recent interactions: %w", err)
	}

	status := &models.ColdStartStatus{
		Confidence:     prefs.Confidence,
		RecentActivity: recent,
	}
	switch {
	case prefs.Confidence < o.config.TagPreference.ColdStartConfidence:
		status.IsColdStart = true
		status.Reason = fmt.Sprintf("tag preference confidence %.2f below %.2f",
			prefs.Confidence, o.config.TagPreference.ColdStartConfidence)
	case recent < o.config.Mixed.ActivityFloor:
		status.IsColdStart = true
		status.Reason = fmt.Sprintf("%d recent interactions below floor of %d",
			recent, o.config.Mixed.ActivityFloor)
	}
	return status, nil
}

// strategyFocusKey addresses the stored per-user focus override.
func strategyFocusKey(userID uuid.UUID) string {
	return "strategy_focus:" + userID.String()
}

// resolveWeights picks the weight vector for this request. Custom weights
// win outright and cold-start users keep the cold-start vector; otherwise
// a stored strategy focus overrides the active default. The vector is
// always normalized to sum to 1.
func (o *BlendingOrchestrator) resolveWeights(
	ctx context.Context,
	userID uuid.UUID,
	cold bool,
	custom map[string]float64,
) map[string]float64 {
	switch {
	case len(custom) > 0:
		return normalizeWeights(custom)
	case cold:
		return normalizeWeights(coldStartWeights)
	}
	if focus, err := o.cache.FetchValue(ctx, strategyFocusKey(userID)); err == nil {
		if weights, ok := focusWeights[focus]; ok {
			return normalizeWeights(weights)
		}
	} else if err != ErrCacheMiss {
		o.logger.WithError(err).WithField("user_id", userID).
			Warn("Failed to read stored strategy focus")
	}
	return normalizeWeights(activeWeights)
}

func normalizeWeights(weights map[string]float64) map[string]float64 {
	var sum float64
	for _, w := range weights {
		if w > 0 {
			sum += w
		}
	}
	normalized := make(map[string]float64, len(weights))
	if sum <= 0 {
		return normalized
	}
	for strategy, w := range weights {
		if w > 0 {
			normalized[strategy] = w / sum
		}
	}
	return normalized
}

// GetMixedRecommendations runs every positively weighted strategy in
// parallel and merges the results. Individual strategy failures degrade
// the blend instead of failing the request.
func (o *BlendingOrchestrator) GetMixedRecommendations(
	ctx context.Context,
	userID uuid.UUID,
	opts RecOptions,
) (*models.MixedResult, error) {
	if opts.ForceRefresh {
		result, err := o.compute(ctx, userID, opts)
		if err != nil {
			return nil, err
		}
		return result, nil
	}

	key := fmt.Sprintf("%s:%s", userID, opts.cacheKey())
	result, fromCache, err := WithVersion(ctx, o.cache, cacheFamilyMixed, key,
		o.config.Caching.MixedTTL,
		func(ctx context.Context) (*models.MixedResult, error) {
			return o.compute(ctx, userID, opts)
		})
	if err != nil {
		return nil, err
	}
	result.FromCache = fromCache
	return result, nil
}

func (o *BlendingOrchestrator) compute(
	ctx context.Context,
	userID uuid.UUID,
	opts RecOptions,
) (*models.MixedResult, error) {
	coldStart, err := o.DetectColdStart(ctx, userID)
	if err != nil {
		return nil, err
	}
	weights := o.resolveWeights(ctx, userID, coldStart.IsColdStart, opts.CustomWeights)
	if len(weights) == 0 {
		return nil, fmt.Errorf("no strategy carries positive weight")
	}

	strategyOpts := opts
	strategyOpts.Page = 1
	strategyOpts.Limit = opts.Limit * blendFetchFactor

	results := o.runStrategies(ctx, userID, strategyOpts, weights)

	merged := o.merge(results, weights)
	sort.Slice(merged, func(i, j int) bool {
		if merged[i].BlendedScore != merged[j].BlendedScore {
			return merged[i].BlendedScore > merged[j].BlendedScore
		}
		return merged[i].ItemID.String() < merged[j].ItemID.String()
	})
	merged = paginate(merged, opts.offset(), opts.Limit)

	result := &models.MixedResult{
		UserID:          userID,
		Algorithm:       "mixed",
		Recommendations: merged,
		Weights:         weights,
		Page:            opts.Page,
		Limit:           opts.Limit,
		GeneratedAt:     time.Now(),
	}
	if opts.IncludeColdStartAnalysis {
		result.ColdStart = coldStart
	}
	if opts.IncludeDiversity {
		result.Diversity = computeDiversity(merged)
	}

	o.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"cold_start": coldStart.IsColdStart,
		"strategies": len(results),
		"count":      len(merged),
	}).Debug("Mixed recommendations blended")
	return result, nil
}

// runStrategies invokes each positively weighted strategy concurrently.
// A failed strategy is logged and dropped from the blend.
func (o *BlendingOrchestrator) runStrategies(
	ctx context.Context,
	userID uuid.UUID,
	opts RecOptions,
	weights map[string]float64,
) map[string]*models.RankedCandidates {
	type invocation struct {
		strategy string
		run      func(context.Context) (*models.RankedCandidates, error)
	}

	invocations := make([]invocation, 0, len(weights))
	for strategy := range weights {
		switch strategy {
		case models.StrategyContentBased:
			invocations = append(invocations, invocation{strategy, func(ctx context.Context) (*models.RankedCandidates, error) {
				return o.content.ContentBasedRecommendations(ctx, userID, opts)
			}})
		case models.StrategyCollaborative:
			invocations = append(invocations, invocation{strategy, func(ctx context.Context) (*models.RankedCandidates, error) {
				return o.collab.CollaborativeFilteringRecommendations(ctx, userID, opts)
			}})
		case models.StrategySocial:
			invocations = append(invocations, invocation{strategy, func(ctx context.Context) (*models.RankedCandidates, error) {
				return o.social.SocialCollaborativeFilteringRecommendations(ctx, userID, opts)
			}})
		case models.StrategyHot:
			invocations = append(invocations, invocation{strategy, func(ctx context.Context) (*models.RankedCandidates, error) {
				return o.fallback.Popularity(ctx, userID, opts, models.RecTypeHot)
			}})
		case models.StrategyLatest:
			invocations = append(invocations, invocation{strategy, func(ctx context.Context) (*models.RankedCandidates, error) {
				return o.fallback.Latest(ctx, userID, opts)
			}})
		}
	}

	var (
		mu      sync.Mutex
		wg      sync.WaitGroup
		results = make(map[string]*models.RankedCandidates, len(invocations))
	)
	for _, inv := range invocations {
		wg.Add(1)
		go func() {
			defer wg.Done()
			result, err := inv.run(ctx)
			if err != nil {
				o.logger.WithFields(logrus.Fields{
					"user_id":  userID,
					"strategy": inv.strategy,
				}).WithError(err).Warn("Strategy failed, excluded from blend")
				return
			}
			mu.Lock()
			results[inv.strategy] = result
			mu.Unlock()
		}()
	}
	wg.Wait()
	return results
}

// merge combines per-strategy rankings into one candidate list. Items
// surfaced by several strategies sum their weighted scores; items from a
// single strategy are renormalized against the weight that was actually
// available so one-strategy users still fill a page.
func (o *BlendingOrchestrator) merge(
	results map[string]*models.RankedCandidates,
	weights map[string]float64,
) []models.RecommendationCandidate {
	var availableWeight float64
	for strategy, result := range results {
		if len(result.Candidates) > 0 {
			availableWeight += weights[strategy]
		}
	}
	if availableWeight <= 0 {
		return nil
	}

	byItem := make(map[uuid.UUID]*models.RecommendationCandidate)
	for strategy, result := range results {
		for i := range result.Candidates {
			candidate := result.Candidates[i]
			score := candidate.StrategyScores[strategy]
			if score == 0 {
				// Fallback results surface under the fallback's own
				// strategy key; use the blended score instead.
				score = candidate.BlendedScore
			}

			existing, ok := byItem[candidate.ItemID]
			if !ok {
				merged := candidate
				merged.StrategyScores = map[string]float64{strategy: score}
				merged.BlendedScore = 0
				byItem[candidate.ItemID] = &merged
				continue
			}
			existing.StrategyScores[strategy] = score
			mergeAttribution(&existing.Attribution, candidate.Attribution)
			if existing.Item == nil {
				existing.Item = candidate.Item
			}
		}
	}

	merged := make([]models.RecommendationCandidate, 0, len(byItem))
	for _, candidate := range byItem {
		if len(candidate.StrategyScores) > 1 {
			for strategy, score := range candidate.StrategyScores {
				candidate.BlendedScore += weights[strategy] * score
			}
		} else {
			for strategy, score := range candidate.StrategyScores {
				candidate.BlendedScore = weights[strategy] * score / availableWeight
			}
		}
		merged = append(merged, *candidate)
	}
	return merged
}

func mergeAttribution(dst *models.Attribution, src models.Attribution) {
	seen := make(map[string]struct{}, len(dst.MatchedTags))
	for _, tag := range dst.MatchedTags {
		seen[tag] = struct{}{}
	}
	for _, tag := range src.MatchedTags {
		if _, ok := seen[tag]; !ok {
			dst.MatchedTags = append(dst.MatchedTags, tag)
		}
	}
	if src.SimilarUserCount > dst.SimilarUserCount {
		dst.SimilarUserCount = src.SimilarUserCount
	}
	if len(dst.SocialReasons) == 0 {
		dst.SocialReasons = src.SocialReasons
	}
}

// computeDiversity measures tag and author spread across the final page.
func computeDiversity(candidates []models.RecommendationCandidate) *models.DiversityMetrics {
	metrics := &models.DiversityMetrics{TotalCandidates: len(candidates)}
	if len(candidates) == 0 {
		return metrics
	}

	tags := make(map[string]struct{})
	authors := make(map[uuid.UUID]struct{})
	for i := range candidates {
		item := candidates[i].Item
		if item == nil {
			continue
		}
		for _, tag := range item.Tags {
			tags[NormalizeTag(tag)] = struct{}{}
			metrics.TotalTagMentions++
		}
		authors[item.AuthorID] = struct{}{}
	}

	metrics.UniqueTags = len(tags)
	metrics.UniqueAuthors = len(authors)
	if metrics.TotalTagMentions > 0 {
		metrics.TagDiversity = float64(metrics.UniqueTags) / float64(metrics.TotalTagMentions)
	}
	metrics.AuthorDiversity = float64(metrics.UniqueAuthors) / float64(metrics.TotalCandidates)
	return metrics
}

// AdjustRecommendationStrategy derives a strategy focus from observed
// behavior, stores it as the user's weight override, and bumps the mixed
// cache so the next request recomputes under the new focus.
func (o *BlendingOrchestrator) AdjustRecommendationStrategy(
	ctx context.Context,
	userID uuid.UUID,
	behavior models.UserBehavior,
) (*models.StrategyAdjustment, error) {
	focus := FocusPersonalization
	switch {
	case behavior.DiversityPreference > 0.7:
		focus = FocusExploration
	case behavior.EngagementRate > 0.6:
		focus = FocusSocial
	}

	if err := o.cache.StoreValue(ctx, strategyFocusKey(userID), focus, 0); err != nil {
		return nil, fmt.Errorf("failed to store strategy focus: %w", err)
	}
	if _, err := o.cache.Bump(ctx, cacheFamilyMixed, BumpPatch); err != nil {
		return nil, fmt.Errorf("failed to invalidate mixed cache: %w", err)
	}

	o.logger.WithFields(logrus.Fields{
		"user_id": userID,
		"focus":   focus,
	}).Info("Recommendation strategy adjusted")

	return &models.StrategyAdjustment{
		UserID:  userID,
		Focus:   focus,
		Weights: normalizeWeights(focusWeights[focus]),
	}, nil
}

// GetRecommendationAlgorithmStats reports per-user signal availability:
// interaction volume, tag preference quality, and social graph shape.
func (o *BlendingOrchestrator) GetRecommendationAlgorithmStats(
	ctx context.Context,
	userID uuid.UUID,
) (*models.AlgorithmStats, error) {
	coldStart, err := o.DetectColdStart(ctx, userID)
	if err != nil {
		return nil, err
	}
	prefs, err := o.prefs.CalculateUserTagPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}
	graph, err := o.graphs.BuildGraphAround(ctx, userID)
	if err != nil {
		return nil, err
	}

	stats := &models.AlgorithmStats{
		UserID:            userID,
		TotalInteractions: prefs.TotalInteractions,
		RecentActivity:    coldStart.RecentActivity,
		TagConfidence:     prefs.Confidence,
		RetainedTags:      len(prefs.Preferences),
		ColdStart:         coldStart,
		ActiveWeights:     o.resolveWeights(ctx, userID, coldStart.IsColdStart, nil),
		GeneratedAt:       time.Now(),
	}
	if node := graph[userID]; node != nil {
		stats.FollowerCount = len(node.Followers)
		stats.FollowingCount = len(node.Following)
		stats.MutualCount = len(node.Mutual)
		stats.InfluenceScore = node.InfluenceScore
		stats.InfluenceLevel = node.InfluenceLevel
	} else {
		stats.InfluenceLevel = models.InfluenceNone
	}
	return stats, nil
}
