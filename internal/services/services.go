package services

import (
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/internal/config"
)

// Services wires every engine component against shared repositories,
// cache, and configuration.
type Services struct {
	Repos         *Repositories
	Cache         *VersionedCache
	Decayer       *Decayer
	Aggregator    *InteractionAggregator
	Preferences   *TagPreferenceModel
	Content       *ContentSimilarityEngine
	Collaborative *UserSimilarityEngine
	SocialGraphs  *SocialGraphBuilder
	Social        *SocialSimilarityEngine
	Fallback      *FallbackStrategy
	Orchestrator  *BlendingOrchestrator
	Warmer        *CacheWarmer
}

func New(cfg *config.Config, logger *logrus.Logger, redisClient *redis.Client, repos *Repositories) *Services {
	engineCfg := &cfg.Engine

	cache := NewVersionedCache(NewRedisCacheBackend(redisClient), logger)
	decayer := NewDecayer(engineCfg)
	aggregator := NewInteractionAggregator(repos, decayer, engineCfg, logger)
	preferences := NewTagPreferenceModel(repos, decayer, cache, engineCfg, logger)
	fallback := NewFallbackStrategy(repos.Items, engineCfg, logger)
	content := NewContentSimilarityEngine(repos, preferences, fallback, cache, engineCfg, logger)
	collaborative := NewUserSimilarityEngine(repos, aggregator, fallback, cache, engineCfg, logger)
	graphs := NewSocialGraphBuilder(repos.Follows, engineCfg, logger)
	social := NewSocialSimilarityEngine(repos, graphs, decayer, fallback, cache, engineCfg, logger)
	orchestrator := NewBlendingOrchestrator(repos, preferences, content, collaborative, social, graphs, fallback, cache, engineCfg, logger)
	warmer := NewCacheWarmer(repos, orchestrator, engineCfg, logger)

	return &Services{
		Repos:         repos,
		Cache:         cache,
		Decayer:       decayer,
		Aggregator:    aggregator,
		Preferences:   preferences,
		Content:       content,
		Collaborative: collaborative,
		SocialGraphs:  graphs,
		Social:        social,
		Fallback:      fallback,
		Orchestrator:  orchestrator,
		Warmer:        warmer,
	}
}
