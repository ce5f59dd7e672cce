package services

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codera/memefeed/internal/config"
	"github.com/codera/memefeed/pkg/models"
)

type orchestratorFixture struct {
	orchestrator *BlendingOrchestrator
	cache        *VersionedCache
}

func newTestOrchestrator(
	cfg *config.EngineConfig,
	interactions *fakeInteractionRepo,
	items *fakeItemRepo,
	users *fakeUserRepo,
	follows *fakeFollowRepo,
) orchestratorFixture {
	logger := testLogger()
	cache := NewVersionedCache(newMemoryBackend(), logger)
	repos := testRepos(interactions, items, users, follows)

	decayer := NewDecayer(cfg)
	aggregator := NewInteractionAggregator(repos, decayer, cfg, logger)
	fallback := NewFallbackStrategy(repos.Items, cfg, logger)
	prefs := NewTagPreferenceModel(repos, decayer, cache, cfg, logger)
	content := NewContentSimilarityEngine(repos, prefs, fallback, cache, cfg, logger)
	collab := NewUserSimilarityEngine(repos, aggregator, fallback, cache, cfg, logger)
	graphs := NewSocialGraphBuilder(repos.Follows, cfg, logger)
	social := NewSocialSimilarityEngine(repos, graphs, decayer, fallback, cache, cfg, logger)

	return orchestratorFixture{
		orchestrator: NewBlendingOrchestrator(repos, prefs, content, collab, social, graphs, fallback, cache, cfg, logger),
		cache:        cache,
	}
}

// catalogMemes returns a small public catalog with varied tags and hotness.
func catalogMemes() []models.Meme {
	return []models.Meme{
		publicMeme(mustID("00000000-0000-0000-0000-000000000031"), []string{"cats"}, 900),
		publicMeme(mustID("00000000-0000-0000-0000-000000000032"), []string{"cats", "funny"}, 700),
		publicMeme(mustID("00000000-0000-0000-0000-000000000033"), []string{"dogs"}, 500),
		publicMeme(mustID("00000000-0000-0000-0000-000000000034"), []string{"gaming"}, 300),
		publicMeme(mustID("00000000-0000-0000-0000-000000000035"), []string{"cats", "gaming"}, 100),
	}
}

// warmHistory gives a user enough distinct-item activity inside the
// activity window to clear both cold-start triggers.
func warmHistory(userID uuid.UUID, memes []models.Meme, now time.Time) []models.InteractionEvent {
	events := make([]models.InteractionEvent, 0, len(memes))
	for _, m := range memes {
		events = append(events, eventAt(userID, m.ID, models.InteractionLike, now.Add(-time.Hour)))
	}
	return events
}

func TestNormalizeWeights(t *testing.T) {
	sum := func(weights map[string]float64) float64 {
		var s float64
		for _, w := range weights {
			s += w
		}
		return s
	}

	t.Run("built-in vectors normalize to one", func(t *testing.T) {
		assert.InDelta(t, 1.0, sum(normalizeWeights(coldStartWeights)), 1e-9)
		assert.InDelta(t, 1.0, sum(normalizeWeights(activeWeights)), 1e-9)
		for focus, weights := range focusWeights {
			assert.InDelta(t, 1.0, sum(normalizeWeights(weights)), 1e-9, focus)
		}
	})

	t.Run("zero-weight strategies are dropped", func(t *testing.T) {
		normalized := normalizeWeights(coldStartWeights)
		assert.NotContains(t, normalized, models.StrategyContentBased)
	})

	t.Run("unnormalized custom weights rescale", func(t *testing.T) {
		normalized := normalizeWeights(map[string]float64{
			models.StrategyHot:    3,
			models.StrategyLatest: 1,
		})
		assert.InDelta(t, 0.75, normalized[models.StrategyHot], 1e-9)
		assert.InDelta(t, 0.25, normalized[models.StrategyLatest], 1e-9)
	})

	t.Run("all non-positive yields empty", func(t *testing.T) {
		assert.Empty(t, normalizeWeights(map[string]float64{models.StrategyHot: 0}))
	})
}

func TestDetectColdStart(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	memes := catalogMemes()

	t.Run("brand new user", func(t *testing.T) {
		f := newTestOrchestrator(testEngineConfig(), &fakeInteractionRepo{}, &fakeItemRepo{memes: memes}, nil, nil)

		status, err := f.orchestrator.DetectColdStart(ctx, uuid1)
		require.NoError(t, err)
		assert.True(t, status.IsColdStart)
		assert.Contains(t, status.Reason, "confidence")
	})

	t.Run("confident but dormant user", func(t *testing.T) {
		// Solid tag preferences built long ago, nothing recent.
		var events []models.InteractionEvent
		for _, m := range memes {
			events = append(events, eventAt(uuid1, m.ID, models.InteractionLike, now.Add(-60*24*time.Hour)))
		}
		f := newTestOrchestrator(testEngineConfig(), &fakeInteractionRepo{events: events}, &fakeItemRepo{memes: memes}, nil, nil)

		status, err := f.orchestrator.DetectColdStart(ctx, uuid1)
		require.NoError(t, err)
		assert.True(t, status.IsColdStart)
		assert.Contains(t, status.Reason, "recent interactions")
	})

	t.Run("active user with preferences", func(t *testing.T) {
		events := warmHistory(uuid1, memes, now)
		f := newTestOrchestrator(testEngineConfig(), &fakeInteractionRepo{events: events}, &fakeItemRepo{memes: memes}, nil, nil)

		status, err := f.orchestrator.DetectColdStart(ctx, uuid1)
		require.NoError(t, err)
		assert.False(t, status.IsColdStart)
		assert.Equal(t, len(events), status.RecentActivity)
		assert.Empty(t, status.Reason)
	})
}

func TestGetMixedRecommendations(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	memes := catalogMemes()

	t.Run("cold user blends hot and latest", func(t *testing.T) {
		f := newTestOrchestrator(testEngineConfig(), &fakeInteractionRepo{}, &fakeItemRepo{memes: memes}, nil, nil)

		opts := DefaultRecOptions()
		opts.IncludeColdStartAnalysis = true

		result, err := f.orchestrator.GetMixedRecommendations(ctx, uuid1, opts)
		require.NoError(t, err)
		assert.Equal(t, "mixed", result.Algorithm)
		require.NotNil(t, result.ColdStart)
		assert.True(t, result.ColdStart.IsColdStart)
		assert.NotEmpty(t, result.Recommendations)

		assert.InDelta(t, 0.6, result.Weights[models.StrategyHot], 1e-9)
		assert.InDelta(t, 0.3, result.Weights[models.StrategyLatest], 1e-9)
		assert.NotContains(t, result.Weights, models.StrategyContentBased)
	})

	t.Run("active user favors the personalized strategies", func(t *testing.T) {
		events := warmHistory(uuid1, memes, now)
		users := &fakeUserRepo{users: []models.User{{ID: uuid1, Status: "active"}}}
		f := newTestOrchestrator(testEngineConfig(), &fakeInteractionRepo{events: events}, &fakeItemRepo{memes: memes}, users, nil)

		result, err := f.orchestrator.GetMixedRecommendations(ctx, uuid1, DefaultRecOptions())
		require.NoError(t, err)
		assert.InDelta(t, 0.35, result.Weights[models.StrategyContentBased], 1e-9)
		assert.NotEmpty(t, result.Recommendations)
	})

	t.Run("custom weights override cold start", func(t *testing.T) {
		f := newTestOrchestrator(testEngineConfig(), &fakeInteractionRepo{}, &fakeItemRepo{memes: memes}, nil, nil)

		opts := DefaultRecOptions()
		opts.CustomWeights = map[string]float64{models.StrategyHot: 1}

		result, err := f.orchestrator.GetMixedRecommendations(ctx, uuid1, opts)
		require.NoError(t, err)
		assert.Equal(t, map[string]float64{models.StrategyHot: 1}, result.Weights)
		require.NotEmpty(t, result.Recommendations)
		// Pure hot ranking: hottest item first.
		assert.Equal(t, memes[0].ID, result.Recommendations[0].ItemID)
	})

	t.Run("second call is served from cache", func(t *testing.T) {
		f := newTestOrchestrator(testEngineConfig(), &fakeInteractionRepo{}, &fakeItemRepo{memes: memes}, nil, nil)

		first, err := f.orchestrator.GetMixedRecommendations(ctx, uuid1, DefaultRecOptions())
		require.NoError(t, err)
		assert.False(t, first.FromCache)

		second, err := f.orchestrator.GetMixedRecommendations(ctx, uuid1, DefaultRecOptions())
		require.NoError(t, err)
		assert.True(t, second.FromCache)
	})

	t.Run("force refresh bypasses the cache", func(t *testing.T) {
		f := newTestOrchestrator(testEngineConfig(), &fakeInteractionRepo{}, &fakeItemRepo{memes: memes}, nil, nil)

		opts := DefaultRecOptions()
		_, err := f.orchestrator.GetMixedRecommendations(ctx, uuid1, opts)
		require.NoError(t, err)

		opts.ForceRefresh = true
		refreshed, err := f.orchestrator.GetMixedRecommendations(ctx, uuid1, opts)
		require.NoError(t, err)
		assert.False(t, refreshed.FromCache)
	})

	t.Run("diversity metrics cover the returned page", func(t *testing.T) {
		f := newTestOrchestrator(testEngineConfig(), &fakeInteractionRepo{}, &fakeItemRepo{memes: memes}, nil, nil)

		result, err := f.orchestrator.GetMixedRecommendations(ctx, uuid1, DefaultRecOptions())
		require.NoError(t, err)
		require.NotNil(t, result.Diversity)
		assert.Equal(t, len(result.Recommendations), result.Diversity.TotalCandidates)
		assert.Greater(t, result.Diversity.AuthorDiversity, 0.0)
	})
}

func TestMerge(t *testing.T) {
	f := newTestOrchestrator(testEngineConfig(), nil, nil, nil, nil)

	candidate := func(id uuid.UUID, strategy string, score float64) models.RecommendationCandidate {
		return models.RecommendationCandidate{
			ItemID:         id,
			StrategyScores: map[string]float64{strategy: score},
			BlendedScore:   score,
		}
	}

	weights := map[string]float64{
		models.StrategyContentBased:  0.6,
		models.StrategyCollaborative: 0.4,
	}

	t.Run("items from several strategies sum weighted scores", func(t *testing.T) {
		results := map[string]*models.RankedCandidates{
			models.StrategyContentBased: {Candidates: []models.RecommendationCandidate{
				candidate(uuid4, models.StrategyContentBased, 0.8),
			}},
			models.StrategyCollaborative: {Candidates: []models.RecommendationCandidate{
				candidate(uuid4, models.StrategyCollaborative, 0.5),
			}},
		}

		merged := f.orchestrator.merge(results, weights)
		require.Len(t, merged, 1)
		assert.InDelta(t, 0.6*0.8+0.4*0.5, merged[0].BlendedScore, 1e-9)
	})

	t.Run("single-strategy items renormalize against available weight", func(t *testing.T) {
		results := map[string]*models.RankedCandidates{
			models.StrategyContentBased: {Candidates: []models.RecommendationCandidate{
				candidate(uuid4, models.StrategyContentBased, 0.8),
			}},
			models.StrategyCollaborative: {Candidates: nil},
		}

		merged := f.orchestrator.merge(results, weights)
		require.Len(t, merged, 1)
		// Only content-based responded, so its weight is the whole pool.
		assert.InDelta(t, 0.8, merged[0].BlendedScore, 1e-9)
	})

	t.Run("attribution merges across strategies", func(t *testing.T) {
		contentSide := candidate(uuid4, models.StrategyContentBased, 0.8)
		contentSide.Attribution = models.Attribution{MatchedTags: []string{"cats"}}
		collabSide := candidate(uuid4, models.StrategyCollaborative, 0.5)
		collabSide.Attribution = models.Attribution{MatchedTags: []string{"cats", "funny"}, SimilarUserCount: 3}

		results := map[string]*models.RankedCandidates{
			models.StrategyContentBased:  {Candidates: []models.RecommendationCandidate{contentSide}},
			models.StrategyCollaborative: {Candidates: []models.RecommendationCandidate{collabSide}},
		}

		merged := f.orchestrator.merge(results, weights)
		require.Len(t, merged, 1)
		assert.ElementsMatch(t, []string{"cats", "funny"}, merged[0].Attribution.MatchedTags)
		assert.Equal(t, 3, merged[0].Attribution.SimilarUserCount)
	})

	t.Run("nothing available yields nothing", func(t *testing.T) {
		assert.Empty(t, f.orchestrator.merge(map[string]*models.RankedCandidates{}, weights))
	})
}

func TestComputeDiversity(t *testing.T) {
	t.Run("empty page", func(t *testing.T) {
		d := computeDiversity(nil)
		assert.Equal(t, 0, d.TotalCandidates)
		assert.Zero(t, d.TagDiversity)
	})

	t.Run("single author repeating one tag", func(t *testing.T) {
		author := uuid.New()
		meme1 := publicMeme(uuid4, []string{"cats"}, 1)
		meme2 := publicMeme(uuid5, []string{"cats"}, 1)
		meme1.AuthorID = author
		meme2.AuthorID = author

		d := computeDiversity([]models.RecommendationCandidate{
			{ItemID: meme1.ID, Item: &meme1},
			{ItemID: meme2.ID, Item: &meme2},
		})
		assert.Equal(t, 1, d.UniqueTags)
		assert.Equal(t, 2, d.TotalTagMentions)
		assert.InDelta(t, 0.5, d.TagDiversity, 1e-9)
		assert.InDelta(t, 0.5, d.AuthorDiversity, 1e-9)
	})

	t.Run("fully varied page", func(t *testing.T) {
		meme1 := publicMeme(uuid4, []string{"cats"}, 1)
		meme2 := publicMeme(uuid5, []string{"dogs"}, 1)

		d := computeDiversity([]models.RecommendationCandidate{
			{ItemID: meme1.ID, Item: &meme1},
			{ItemID: meme2.ID, Item: &meme2},
		})
		assert.InDelta(t, 1.0, d.TagDiversity, 1e-9)
		assert.InDelta(t, 1.0, d.AuthorDiversity, 1e-9)
	})
}

func TestAdjustRecommendationStrategy(t *testing.T) {
	ctx := context.Background()

	tests := []struct {
		name     string
		behavior models.UserBehavior
		focus    string
	}{
		{"diversity seekers explore", models.UserBehavior{DiversityPreference: 0.9}, FocusExploration},
		{"engaged users go social", models.UserBehavior{EngagementRate: 0.8}, FocusSocial},
		{"default is personalization", models.UserBehavior{ClickRate: 0.5}, FocusPersonalization},
		{"diversity wins over engagement", models.UserBehavior{DiversityPreference: 0.8, EngagementRate: 0.8}, FocusExploration},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			f := newTestOrchestrator(testEngineConfig(), nil, nil, nil, nil)

			adjustment, err := f.orchestrator.AdjustRecommendationStrategy(ctx, uuid1, tc.behavior)
			require.NoError(t, err)
			assert.Equal(t, tc.focus, adjustment.Focus)

			var sum float64
			for _, w := range adjustment.Weights {
				sum += w
			}
			assert.InDelta(t, 1.0, sum, 1e-9)
		})
	}

	t.Run("stored focus steers later requests", func(t *testing.T) {
		now := time.Now()
		memes := catalogMemes()
		events := warmHistory(uuid1, memes, now)
		f := newTestOrchestrator(testEngineConfig(), &fakeInteractionRepo{events: events}, &fakeItemRepo{memes: memes}, nil, nil)

		before, err := f.orchestrator.GetMixedRecommendations(ctx, uuid1, DefaultRecOptions())
		require.NoError(t, err)
		assert.InDelta(t, 0.35, before.Weights[models.StrategyContentBased], 1e-9)

		adjustment, err := f.orchestrator.AdjustRecommendationStrategy(ctx, uuid1, models.UserBehavior{EngagementRate: 0.8})
		require.NoError(t, err)
		require.Equal(t, FocusSocial, adjustment.Focus)

		after, err := f.orchestrator.GetMixedRecommendations(ctx, uuid1, DefaultRecOptions())
		require.NoError(t, err)
		assert.False(t, after.FromCache)
		assert.Equal(t, adjustment.Weights, after.Weights)
		assert.InDelta(t, 0.4, after.Weights[models.StrategySocial], 1e-9)
	})

	t.Run("cold-start users ignore a stored focus", func(t *testing.T) {
		memes := catalogMemes()
		f := newTestOrchestrator(testEngineConfig(), &fakeInteractionRepo{}, &fakeItemRepo{memes: memes}, nil, nil)

		_, err := f.orchestrator.AdjustRecommendationStrategy(ctx, uuid1, models.UserBehavior{EngagementRate: 0.8})
		require.NoError(t, err)

		result, err := f.orchestrator.GetMixedRecommendations(ctx, uuid1, DefaultRecOptions())
		require.NoError(t, err)
		assert.InDelta(t, 0.6, result.Weights[models.StrategyHot], 1e-9)
	})

	t.Run("bumps the mixed cache family", func(t *testing.T) {
		f := newTestOrchestrator(testEngineConfig(), nil, nil, nil, nil)

		before, err := f.cache.Version(ctx, cacheFamilyMixed)
		require.NoError(t, err)

		_, err = f.orchestrator.AdjustRecommendationStrategy(ctx, uuid1, models.UserBehavior{})
		require.NoError(t, err)

		after, err := f.cache.Version(ctx, cacheFamilyMixed)
		require.NoError(t, err)
		assert.NotEqual(t, before, after)
	})
}

func TestGetRecommendationAlgorithmStats(t *testing.T) {
	ctx := context.Background()
	now := time.Now()
	memes := catalogMemes()

	events := warmHistory(uuid1, memes, now)
	follows := &fakeFollowRepo{edges: []models.FollowEdge{
		follow(uuid1, uuid2),
		follow(uuid2, uuid1),
		follow(uuid3, uuid1),
	}}
	f := newTestOrchestrator(testEngineConfig(), &fakeInteractionRepo{events: events}, &fakeItemRepo{memes: memes}, nil, follows)

	stats, err := f.orchestrator.GetRecommendationAlgorithmStats(ctx, uuid1)
	require.NoError(t, err)
	assert.Equal(t, uuid1, stats.UserID)
	assert.Equal(t, len(events), stats.RecentActivity)
	assert.Greater(t, stats.TagConfidence, 0.0)
	assert.Equal(t, 2, stats.FollowerCount)
	assert.Equal(t, 1, stats.FollowingCount)
	assert.Equal(t, 1, stats.MutualCount)
	assert.False(t, stats.ColdStart.IsColdStart)
	assert.Equal(t, normalizeWeights(activeWeights), stats.ActiveWeights)
}
