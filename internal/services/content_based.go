package services

import (
	"context"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/internal/config"
	"github.com/codera/memefeed/internal/metrics"
	"github.com/codera/memefeed/pkg/models"
)

// ContentSimilarityEngine scores candidate memes by tag overlap against a
// user's tag preference vector.
type ContentSimilarityEngine struct {
	repos    *Repositories
	prefs    *TagPreferenceModel
	fallback *FallbackStrategy
	cache    *VersionedCache
	config   *config.EngineConfig
	logger   *logrus.Logger
}

func NewContentSimilarityEngine(
	repos *Repositories,
	prefs *TagPreferenceModel,
	fallback *FallbackStrategy,
	cache *VersionedCache,
	cfg *config.EngineConfig,
	logger *logrus.Logger,
) *ContentSimilarityEngine {
	return &ContentSimilarityEngine{
		repos:    repos,
		prefs:    prefs,
		fallback: fallback,
		cache:    cache,
		config:   cfg,
		logger:   logger,
	}
}

// ContentBasedRecommendations ranks candidates by preference match and tag
// similarity. Users below the cold-start confidence threshold get the
// popularity fallback tagged content_based_fallback.
func (e *ContentSimilarityEngine) ContentBasedRecommendations(
	ctx context.Context,
	userID uuid.UUID,
	opts RecOptions,
) (*models.RankedCandidates, error) {
	started := time.Now()
	defer func() { metrics.ObserveStrategy(models.StrategyContentBased, time.Since(started)) }()

	key := fmt.Sprintf("%s:%s:%s", models.StrategyContentBased, userID, opts.cacheKey())
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

// TagBasedRecommendations ranks candidates against a caller-supplied tag
// set with uniform preference, bypassing the per-user preference model.
func (e *ContentSimilarityEngine) TagBasedRecommendations(
	ctx context.Context,
	tags []string,
	opts RecOptions,
) (*models.RankedCandidates, error) {
	preferences := make(map[string]float64, len(tags))
	for _, tag := range tags {
		if t := NormalizeTag(tag); t != "" {
			preferences[t] = 1.0
		}
	}
	if len(preferences) == 0 {
		return nil, fmt.Errorf("tag-based recommendations require at least one tag")
	}

	candidates, err := e.scoreCandidates(ctx, uuid.Nil, preferences, opts)
	if err != nil {
		return nil, err
	}

	return &models.RankedCandidates{
		RecommendationType: models.RecTypeTagBased,
		Candidates:         candidates,
		Page:               opts.Page,
		Limit:              opts.Limit,
		GeneratedAt:        time.Now(),
	}, nil
}

func (e *ContentSimilarityEngine) compute(
	ctx context.Context,
	userID uuid.UUID,
	opts RecOptions,
) (*models.RankedCandidates, error) {
	prefs, err := e.prefs.CalculateUserTagPreferences(ctx, userID)
	if err != nil {
		return nil, err
	}

	if e.prefs.ColdStart(prefs) {
		return e.fallback.Popularity(ctx, userID, opts, models.RecTypeContentFallback)
	}

	candidates, err := e.scoreCandidates(ctx, userID, prefs.Preferences, opts)
	if err != nil {
		return nil, err
	}

	metrics.StrategyResult(models.StrategyContentBased, false)
	return &models.RankedCandidates{
		UserID:             userID,
		RecommendationType: models.RecTypeContentBased,
		Candidates:         candidates,
		Page:               opts.Page,
		Limit:              opts.Limit,
		GeneratedAt:        time.Now(),
	}, nil
}

func (e *ContentSimilarityEngine) scoreCandidates(
	ctx context.Context,
	userID uuid.UUID,
	preferences map[string]float64,
	opts RecOptions,
) ([]models.RecommendationCandidate, error) {
	items, err := e.repos.Items.List(ctx, models.MemeFilter{
		Tags:       opts.Tags,
		Types:      opts.Types,
		ExcludeIDs: opts.ExcludeIDs,
		Limit:      e.config.Sampling.PublicItemCap,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to load candidate memes: %w", err)
	}

	var interacted map[uuid.UUID]struct{}
	if opts.ExcludeInteracted && userID != uuid.Nil {
		interacted, err = e.interactedItems(ctx, userID)
		if err != nil {
			return nil, err
		}
	}

	preferredTags := topTags(preferences, e.config.Content.TopPreferredTags)

	minSimilarity := e.config.Content.MinSimilarity
	if opts.MinSimilarity != nil {
		minSimilarity = *opts.MinSimilarity
	}
	hotWeight := e.config.Content.HotScoreWeight
	if opts.HotScoreWeight != nil {
		hotWeight = *opts.HotScoreWeight
	}

	candidates := make([]models.RecommendationCandidate, 0, len(items))
	for i := range items {
		item := items[i]
		if _, ok := interacted[item.ID]; ok {
			continue
		}

		itemTags := normalizeTags(item.Tags)
		matched, prefMatch := preferenceMatch(itemTags, preferences)
		contentSim := weightedJaccard(itemTags, preferredTags, preferences)

		score := prefMatch*0.6 + contentSim*0.4
		if opts.IncludeHotScore {
			score = blendHotScore(score, item.HotScore, hotWeight, e.config.Content.HotScoreNorm)
		}
		if score < minSimilarity {
			continue
		}

		candidates = append(candidates, models.RecommendationCandidate{
			ItemID: item.ID,
			StrategyScores: map[string]float64{
				models.StrategyContentBased: clamp01(score),
			},
			BlendedScore: clamp01(score),
			Attribution:  models.Attribution{MatchedTags: matched},
			Item:         &item,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].BlendedScore > candidates[j].BlendedScore
	})

	return paginate(candidates, opts.offset(), opts.Limit), nil
}

func (e *ContentSimilarityEngine) interactedItems(ctx context.Context, userID uuid.UUID) (map[uuid.UUID]struct{}, error) {
	events, err := e.repos.Interactions.ListForUser(ctx, userID, models.AllInteractionTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to load interacted items for user %s: %w", userID, err)
	}
	set := make(map[uuid.UUID]struct{}, len(events))
	for _, ev := range events {
		set[ev.ItemID] = struct{}{}
	}
	return set, nil
}

func normalizeTags(tags []string) []string {
	out := make([]string, 0, len(tags))
	for _, tag := range tags {
		if t := NormalizeTag(tag); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// preferenceMatch computes the weighted overlap between item tags and the
// preference vector: matchRatio*0.4 + avgMatchedPreference*0.6. Returns the
// matched tags for attribution.
func preferenceMatch(itemTags []string, preferences map[string]float64) ([]string, float64) {
	if len(itemTags) == 0 {
		return nil, 0
	}
	var matched []string
	sum := 0.0
	for _, tag := range itemTags {
		if pref, ok := preferences[tag]; ok {
			matched = append(matched, tag)
			sum += pref
		}
	}
	if len(matched) == 0 {
		return nil, 0
	}
	matchRatio := float64(len(matched)) / float64(len(itemTags))
	avgPref := sum / float64(len(matched))
	return matched, clamp01(matchRatio*0.4 + avgPref*0.6)
}

// Jaccard returns |A∩B| / |A∪B| over two tag sets. Symmetric in its
// arguments; 0 when either set is empty.
func Jaccard(a, b []string) float64 {
	if len(a) == 0 || len(b) == 0 {
		return 0
	}
	setA := make(map[string]struct{}, len(a))
	for _, t := range a {
		setA[t] = struct{}{}
	}
	setB := make(map[string]struct{}, len(b))
	for _, t := range b {
		setB[t] = struct{}{}
	}
	intersection := 0
	for t := range setA {
		if _, ok := setB[t]; ok {
			intersection++
		}
	}
	union := len(setA) + len(setB) - intersection
	if union == 0 {
		return 0
	}
	return float64(intersection) / float64(union)
}

// weightedJaccard blends plain Jaccard over the user's top preferred tags
// with the average preference of the shared tags: jaccard*0.6 + pref*0.4.
func weightedJaccard(itemTags, preferredTags []string, preferences map[string]float64) float64 {
	jaccard := Jaccard(itemTags, preferredTags)
	if jaccard == 0 {
		return 0
	}
	preferred := make(map[string]struct{}, len(preferredTags))
	for _, t := range preferredTags {
		preferred[t] = struct{}{}
	}
	sum, count := 0.0, 0
	for _, t := range itemTags {
		if _, ok := preferred[t]; ok {
			sum += preferences[t]
			count++
		}
	}
	if count == 0 {
		return clamp01(jaccard)
	}
	return clamp01(jaccard*0.6 + (sum/float64(count))*0.4)
}
