package services

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/codera/memefeed/internal/config"
	"github.com/codera/memefeed/internal/metrics"
	"github.com/codera/memefeed/pkg/models"
)

// SocialSimilarityEngine re-weights neighbor interactions by social
// distance and influence to rank items circulating in the user's graph.
type SocialSimilarityEngine struct {
	repos    *Repositories
	graphs   *SocialGraphBuilder
	decayer  *Decayer
	fallback *FallbackStrategy
	cache    *VersionedCache
	config   *config.EngineConfig
	logger   *logrus.Logger
}

func NewSocialSimilarityEngine(
	repos *Repositories,
	graphs *SocialGraphBuilder,
	decayer *Decayer,
	fallback *FallbackStrategy,
	cache *VersionedCache,
	cfg *config.EngineConfig,
	logger *logrus.Logger,
) *SocialSimilarityEngine {
	return &SocialSimilarityEngine{
		repos:    repos,
		graphs:   graphs,
		decayer:  decayer,
		fallback: fallback,
		cache:    cache,
		config:   cfg,
		logger:   logger,
	}
}

// SocialCollaborativeFilteringRecommendations scores items by the social
// proximity and influence of the neighbors who interacted with them. Users
// with no graph data or no qualifying neighbors get the popularity
// fallback tagged social_collaborative_fallback.
func (e *SocialSimilarityEngine) SocialCollaborativeFilteringRecommendations(
	ctx context.Context,
	userID uuid.UUID,
	opts RecOptions,
) (*models.RankedCandidates, error) {
	started := time.Now()
	defer func() { metrics.ObserveStrategy(models.StrategySocial, time.Since(started)) }()

	key := fmt.Sprintf("%s:%s:%s", models.StrategySocial, userID, opts.cacheKey())
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

// neighborContext pairs a neighbor with its precomputed distance and
// influence multiplier.
type neighborContext struct {
	distance   models.SocialDistance
	multiplier float64
}

// topContributor tracks the strongest contribution of one interaction
// type to an item, keeping the relationship kind for reason text.
type topContributor struct {
	weight float64
	kind   models.DistanceKind
}

func (e *SocialSimilarityEngine) compute(
	ctx context.Context,
	userID uuid.UUID,
	opts RecOptions,
) (*models.RankedCandidates, error) {
	graph, err := e.graphs.BuildGraphAround(ctx, userID)
	if err != nil {
		return nil, err
	}

	self := graph[userID]
	if self == nil || (len(self.Following) == 0 && len(self.Followers) == 0) {
		return e.fallback.Popularity(ctx, userID, opts, models.RecTypeSocialFallback)
	}

	neighbors := make(map[uuid.UUID]neighborContext)
	for id, node := range graph {
		if id == userID {
			continue
		}
		distance := e.graphs.CalculateSocialDistance(userID, id, graph)
		if !distance.Reachable() {
			continue
		}
		neighbors[id] = neighborContext{
			distance:   distance,
			multiplier: distance.Weight * (1 + node.InfluenceScore/100),
		}
	}
	if len(neighbors) == 0 {
		return e.fallback.Popularity(ctx, userID, opts, models.RecTypeSocialFallback)
	}

	neighborIDs := make([]uuid.UUID, 0, len(neighbors))
	for id := range neighbors {
		neighborIDs = append(neighborIDs, id)
	}

	eventsByType, err := e.loadNeighborEvents(ctx, neighborIDs)
	if err != nil {
		return nil, err
	}

	var interacted map[uuid.UUID]struct{}
	if opts.ExcludeInteracted {
		events, err := e.repos.Interactions.ListForUser(ctx, userID, models.AllInteractionTypes)
		if err != nil {
			return nil, fmt.Errorf("failed to load target interactions: %w", err)
		}
		interacted = make(map[uuid.UUID]struct{}, len(events))
		for _, ev := range events {
			interacted[ev.ItemID] = struct{}{}
		}
	}
	excluded := opts.excludeSet()

	type itemState struct {
		score        float64
		contributors map[uuid.UUID]struct{}
		topByType    map[models.InteractionType]topContributor
	}
	items := make(map[uuid.UUID]*itemState)

	for t, events := range eventsByType {
		for _, ev := range events {
			nb, ok := neighbors[ev.UserID]
			if !ok {
				continue
			}
			if _, ok := interacted[ev.ItemID]; ok {
				continue
			}
			if _, ok := excluded[ev.ItemID]; ok {
				continue
			}

			contribution := e.decayer.EventScore(ev) * nb.multiplier

			state, ok := items[ev.ItemID]
			if !ok {
				state = &itemState{
					contributors: map[uuid.UUID]struct{}{},
					topByType:    map[models.InteractionType]topContributor{},
				}
				items[ev.ItemID] = state
			}
			state.score += contribution
			state.contributors[ev.UserID] = struct{}{}
			if top, ok := state.topByType[t]; !ok || contribution > top.weight {
				state.topByType[t] = topContributor{weight: contribution, kind: nb.distance.Kind}
			}
		}
	}

	// The ceiling applies to the final signed sum, after every positive
	// and negative contribution has landed. Items a neighbor set
	// net-disliked drop out entirely.
	for id, state := range items {
		if state.score <= 0 {
			delete(items, id)
			continue
		}
		if state.score > e.config.Social.MaxItemScore {
			state.score = e.config.Social.MaxItemScore
		}
	}
	if len(items) == 0 {
		return e.fallback.Popularity(ctx, userID, opts, models.RecTypeSocialFallback)
	}

	itemIDs := make([]uuid.UUID, 0, len(items))
	for id := range items {
		itemIDs = append(itemIDs, id)
	}
	memes, err := e.repos.Items.List(ctx, models.MemeFilter{IDs: itemIDs, Tags: opts.Tags, Types: opts.Types})
	if err != nil {
		return nil, fmt.Errorf("failed to load social candidates: %w", err)
	}

	candidates := make([]models.RecommendationCandidate, 0, len(memes))
	for i := range memes {
		meme := memes[i]
		state, ok := items[meme.ID]
		if !ok {
			continue
		}
		score := clamp01(state.score / e.config.Social.MaxItemScore)

		candidates = append(candidates, models.RecommendationCandidate{
			ItemID: meme.ID,
			StrategyScores: map[string]float64{
				models.StrategySocial: score,
			},
			BlendedScore: score,
			Attribution: models.Attribution{
				SimilarUserCount: len(state.contributors),
				SocialReasons:    e.reasonsFor(state.topByType),
			},
			Item: &meme,
		})
	}

	sort.Slice(candidates, func(i, j int) bool {
		return candidates[i].BlendedScore > candidates[j].BlendedScore
	})
	candidates = paginate(candidates, opts.offset(), opts.Limit)

	e.logger.WithFields(logrus.Fields{
		"user_id":    userID,
		"neighbors":  len(neighbors),
		"candidates": len(candidates),
	}).Debug("Social collaborative filtering completed")
	metrics.StrategyResult(models.StrategySocial, false)

	return &models.RankedCandidates{
		UserID:             userID,
		RecommendationType: models.RecTypeSocial,
		Candidates:         candidates,
		Page:               opts.Page,
		Limit:              opts.Limit,
		GeneratedAt:        time.Now(),
	}, nil
}

func (e *SocialSimilarityEngine) loadNeighborEvents(
	ctx context.Context,
	neighborIDs []uuid.UUID,
) (map[models.InteractionType][]models.InteractionEvent, error) {
	var mu sync.Mutex
	eventsByType := make(map[models.InteractionType][]models.InteractionEvent, len(models.AllInteractionTypes))

	eg, egCtx := errgroup.WithContext(ctx)
	for _, t := range models.AllInteractionTypes {
		eg.Go(func() error {
			events, err := e.repos.Interactions.ListForUsers(egCtx, neighborIDs, nil, t)
			if err != nil {
				return fmt.Errorf("failed to load neighbor %s interactions: %w", t, err)
			}
			mu.Lock()
			eventsByType[t] = events
			mu.Unlock()
			return nil
		})
	}
	if err := eg.Wait(); err != nil {
		return nil, err
	}
	return eventsByType, nil
}

// reasonsFor emits up to max_reasons human-readable reasons, one per
// interaction type, using each type's highest-weight contributor and only
// when that weight clears the configured minimum.
func (e *SocialSimilarityEngine) reasonsFor(topByType map[models.InteractionType]topContributor) []string {
	type reasonEntry struct {
		text   string
		weight float64
	}
	entries := make([]reasonEntry, 0, len(topByType))
	for t, top := range topByType {
		if top.weight <= e.config.Social.MinReasonWeight {
			continue
		}
		entries = append(entries, reasonEntry{
			text:   fmt.Sprintf("%s by %s", reasonVerbs[t], relationPhrases[top.kind]),
			weight: top.weight,
		})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].weight != entries[j].weight {
			return entries[i].weight > entries[j].weight
		}
		return entries[i].text < entries[j].text
	})
	if max := e.config.Social.MaxReasons; max > 0 && len(entries) > max {
		entries = entries[:max]
	}
	reasons := make([]string, len(entries))
	for i, entry := range entries {
		reasons[i] = entry.text
	}
	return reasons
}

var reasonVerbs = map[models.InteractionType]string{
	models.InteractionLike:    "Liked",
	models.InteractionComment: "Commented on",
	models.InteractionShare:   "Shared",
	models.InteractionCollect: "Collected",
	models.InteractionView:    "Viewed",
	models.InteractionDislike: "Disliked",
}

var relationPhrases = map[models.DistanceKind]string{
	models.DistanceMutualFollow: "a mutual follow",
	models.DistanceDirectFollow: "someone you follow",
	models.DistanceSecondDegree: "a friend of a friend",
	models.DistanceThirdDegree:  "someone in your extended network",
	models.DistanceUnknown:      "someone in your network",
}
