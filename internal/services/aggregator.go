package services

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/codera/memefeed/internal/config"
	"github.com/codera/memefeed/pkg/models"
)

// InteractionAggregator loads raw interaction events and folds them into
// per-user, time-decayed item score vectors.
type InteractionAggregator struct {
	repos   *Repositories
	decayer *Decayer
	config  *config.EngineConfig
	logger  *logrus.Logger
}

func NewInteractionAggregator(
	repos *Repositories,
	decayer *Decayer,
	cfg *config.EngineConfig,
	logger *logrus.Logger,
) *InteractionAggregator {
	return &InteractionAggregator{
		repos:   repos,
		decayer: decayer,
		config:  cfg,
		logger:  logger,
	}
}

// BuildInteractionMatrix aggregates every supported interaction type over
// the given (user, item) universe into weighted, decayed vectors. Events of
// the same type on the same item accumulate additively. Empty populations
// fall back to bounded samples of active users and public memes.
//
// The per-type loads fan out in parallel and join before accumulation; any
// failed load is fatal for the whole matrix.
func (a *InteractionAggregator) BuildInteractionMatrix(
	ctx context.Context,
	userIDs, itemIDs []uuid.UUID,
) (models.InteractionMatrix, error) {
	userIDs, err := a.resolveUsers(ctx, userIDs)
	if err != nil {
		return nil, err
	}

	itemIDs, err = a.resolveItems(ctx, itemIDs)
	if err != nil {
		return nil, err
	}

	eventsByType, err := a.loadEvents(ctx, userIDs, itemIDs)
	if err != nil {
		return nil, err
	}

	userSet := make(map[uuid.UUID]struct{}, len(userIDs))
	for _, id := range userIDs {
		userSet[id] = struct{}{}
	}
	itemSet := make(map[uuid.UUID]struct{}, len(itemIDs))
	for _, id := range itemIDs {
		itemSet[id] = struct{}{}
	}

	matrix := make(models.InteractionMatrix, len(userIDs))
	total := 0
	for _, events := range eventsByType {
		for _, ev := range events {
			if _, ok := userSet[ev.UserID]; !ok {
				continue
			}
			if _, ok := itemSet[ev.ItemID]; !ok {
				continue
			}
			vector, ok := matrix[ev.UserID]
			if !ok {
				vector = make(models.InteractionVector)
				matrix[ev.UserID] = vector
			}
			vector[ev.ItemID] += a.decayer.EventScore(ev)
			total++
		}
	}

	a.logger.WithFields(logrus.Fields{
		"users":  len(userIDs),
		"items":  len(itemIDs),
		"events": total,
	}).Debug("Interaction matrix built")

	return matrix, nil
}

// BuildUserVector aggregates a single user's events without restricting
// the item universe.
func (a *InteractionAggregator) BuildUserVector(
	ctx context.Context,
	userID uuid.UUID,
) (models.InteractionVector, error) {
	events, err := a.repos.Interactions.ListForUser(ctx, userID, models.AllInteractionTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions for user %s: %w", userID, err)
	}

	vector := make(models.InteractionVector)
	for _, ev := range events {
		vector[ev.ItemID] += a.decayer.EventScore(ev)
	}
	return vector, nil
}

// loadEvents issues one repository read per interaction type in parallel
// and joins before returning. A single failed read fails the join.
func (a *InteractionAggregator) loadEvents(
	ctx context.Context,
	userIDs, itemIDs []uuid.UUID,
) (map[models.InteractionType][]models.InteractionEvent, error) {
	var mu sync.Mutex
	eventsByType := make(map[models.InteractionType][]models.InteractionEvent, len(models.AllInteractionTypes))

	eg, egCtx := errgroup.WithContext(ctx)
	for _, t := range models.AllInteractionTypes {
		eg.Go(func() error {
			events, err := a.repos.Interactions.ListForUsers(egCtx, userIDs, itemIDs, t)
			if err != nil {
				return fmt.Errorf("failed to load %s interactions: %w", t, err)
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

func (a *InteractionAggregator) resolveUsers(ctx context.Context, userIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(userIDs) > 0 {
		return userIDs, nil
	}
	users, err := a.repos.Users.ListActiveSample(ctx, a.config.Sampling.ActiveUserCap)
	if err != nil {
		return nil, fmt.Errorf("failed to sample active users: %w", err)
	}
	ids := make([]uuid.UUID, len(users))
	for i, u := range users {
		ids[i] = u.ID
	}
	return ids, nil
}

func (a *InteractionAggregator) resolveItems(ctx context.Context, itemIDs []uuid.UUID) ([]uuid.UUID, error) {
	if len(itemIDs) > 0 {
		return itemIDs, nil
	}
	items, err := a.repos.Items.ListPublicSample(ctx, a.config.Sampling.PublicItemCap)
	if err != nil {
		return nil, fmt.Errorf("failed to sample public memes: %w", err)
	}
	ids := make([]uuid.UUID, len(items))
	for i, item := range items {
		ids[i] = item.ID
	}
	return ids, nil
}
