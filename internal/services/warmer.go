package services

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/internal/config"
)

// CacheWarmer precomputes recommendations for active users so peak-hour
// requests hit warm cache entries.
type CacheWarmer struct {
	repos        *Repositories
	orchestrator *BlendingOrchestrator
	config       *config.EngineConfig
	logger       *logrus.Logger
}

func NewCacheWarmer(
	repos *Repositories,
	orchestrator *BlendingOrchestrator,
	cfg *config.EngineConfig,
	logger *logrus.Logger,
) *CacheWarmer {
	return &CacheWarmer{
		repos:        repos,
		orchestrator: orchestrator,
		config:       cfg,
		logger:       logger,
	}
}

// WarmActiveUsers warms the mixed cache for a sample of recently active
// users.
func (w *CacheWarmer) WarmActiveUsers(ctx context.Context) (int, error) {
	users, err := w.repos.Users.ListActiveSample(ctx, w.config.Sampling.ActiveUserCap)
	if err != nil {
		return 0, err
	}
	userIDs := make([]uuid.UUID, len(users))
	for i, u := range users {
		userIDs[i] = u.ID
	}
	return w.WarmUsers(ctx, userIDs)
}

// WarmUsers computes mixed recommendations for each user in batches, with
// a pause between batches to keep the warmer from starving live traffic.
// Per-user failures are logged and skipped; the count of successfully
// warmed users is returned.
func (w *CacheWarmer) WarmUsers(ctx context.Context, userIDs []uuid.UUID) (int, error) {
	batchSize := w.config.Warmer.BatchSize
	if batchSize <= 0 {
		batchSize = len(userIDs)
	}

	warmed := 0
	for start := 0; start < len(userIDs); start += batchSize {
		end := start + batchSize
		if end > len(userIDs) {
			end = len(userIDs)
		}

		for _, userID := range userIDs[start:end] {
			opts := DefaultRecOptions()
			if _, err := w.orchestrator.GetMixedRecommendations(ctx, userID, opts); err != nil {
				w.logger.WithFields(logrus.Fields{
					"user_id": userID,
				}).WithError(err).Warn("Cache warm failed for user")
				continue
			}
			warmed++
		}

		if end < len(userIDs) && w.config.Warmer.BatchDelay > 0 {
			select {
			case <-ctx.Done():
				return warmed, ctx.Err()
			case <-time.After(w.config.Warmer.BatchDelay):
			}
		}
	}

	w.logger.WithFields(logrus.Fields{
		"requested": len(userIDs),
		"warmed":    warmed,
	}).Info("Cache warming completed")
	return warmed, nil
}
