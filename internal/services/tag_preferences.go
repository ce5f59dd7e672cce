package services

import (
	"context"
	"fmt"
	"sort"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"

	"github.com/codera/memefeed/internal/config"
	"github.com/codera/memefeed/pkg/models"
)

var tagFolder = cases.Fold()

// NormalizeTag canonicalizes user-supplied tags (NFC + case folding) so
// "Funny", "funny" and decomposed forms count as one tag.
func NormalizeTag(tag string) string {
	return tagFolder.String(norm.NFC.String(strings.TrimSpace(tag)))
}

// TagPreferenceModel builds normalized per-tag affinity vectors from a
// user's interaction history joined against item tags.
type TagPreferenceModel struct {
	repos   *Repositories
	decayer *Decayer
	cache   *VersionedCache
	config  *config.EngineConfig
	logger  *logrus.Logger
}

func NewTagPreferenceModel(
	repos *Repositories,
	decayer *Decayer,
	cache *VersionedCache,
	cfg *config.EngineConfig,
	logger *logrus.Logger,
) *TagPreferenceModel {
	return &TagPreferenceModel{
		repos:   repos,
		decayer: decayer,
		cache:   cache,
		config:  cfg,
		logger:  logger,
	}
}

// CalculateUserTagPreferences returns the user's tag affinity vector. Tags
// touched fewer than min_interactions times are dropped before
// normalization; retained scores are divided by their maximum so the top
// tag is exactly 1.0. Confidence is retained/all tags, and a confidence
// below the configured cold-start threshold marks the user as cold-start.
//
// Results are cached per (user, weight-and-decay signature) under the
// versioned cache; interaction writes bump the family version.
func (m *TagPreferenceModel) CalculateUserTagPreferences(
	ctx context.Context,
	userID uuid.UUID,
) (*models.TagPreferences, error) {
	key := fmt.Sprintf("%s:%s:min%d", userID, m.decayer.Signature(), m.config.TagPreference.MinInteractions)

	prefs, fromCache, err := WithVersion(ctx, m.cache, cacheFamilyTagPreferences, key,
		m.config.Caching.TagPreferencesTTL,
		func(ctx context.Context) (*models.TagPreferences, error) {
			return m.compute(ctx, userID)
		})
	if err != nil {
		return nil, err
	}
	if fromCache {
		m.logger.WithField("user_id", userID).Debug("Tag preferences served from cache")
	}
	return prefs, nil
}

// ColdStart reports whether the given preferences carry too little signal
// for personalized strategies.
func (m *TagPreferenceModel) ColdStart(prefs *models.TagPreferences) bool {
	return prefs.Confidence < m.config.TagPreference.ColdStartConfidence
}

func (m *TagPreferenceModel) compute(ctx context.Context, userID uuid.UUID) (*models.TagPreferences, error) {
	events, err := m.repos.Interactions.ListForUser(ctx, userID, models.AllInteractionTypes)
	if err != nil {
		return nil, fmt.Errorf("failed to load interactions for user %s: %w", userID, err)
	}

	prefs := &models.TagPreferences{
		UserID:            userID,
		Preferences:       map[string]float64{},
		InteractionCounts: map[string]int{},
		TotalInteractions: len(events),
	}
	if len(events) == 0 {
		return prefs, nil
	}

	itemIDs := make([]uuid.UUID, 0, len(events))
	seen := make(map[uuid.UUID]struct{}, len(events))
	for _, ev := range events {
		if _, ok := seen[ev.ItemID]; ok {
			continue
		}
		seen[ev.ItemID] = struct{}{}
		itemIDs = append(itemIDs, ev.ItemID)
	}

	items, err := m.repos.Items.List(ctx, models.MemeFilter{IDs: itemIDs})
	if err != nil {
		return nil, fmt.Errorf("failed to load memes for tag preferences: %w", err)
	}
	tagsByItem := make(map[uuid.UUID][]string, len(items))
	for _, item := range items {
		tags := make([]string, 0, len(item.Tags))
		for _, tag := range item.Tags {
			if t := NormalizeTag(tag); t != "" {
				tags = append(tags, t)
			}
		}
		tagsByItem[item.ID] = tags
	}

	scores := map[string]float64{}
	for _, ev := range events {
		contribution := m.decayer.EventScore(ev)
		for _, tag := range tagsByItem[ev.ItemID] {
			scores[tag] += contribution
		}
	}

	// Counts are per distinct item, not per event: hammering one meme with
	// likes must not promote its tags past the min_interactions gate.
	counts := map[string]int{}
	for _, itemID := range itemIDs {
		for _, tag := range tagsByItem[itemID] {
			counts[tag]++
		}
	}

	touched := len(scores)
	maxScore := 0.0
	for tag, count := range counts {
		if count < m.config.TagPreference.MinInteractions {
			delete(scores, tag)
			continue
		}
		if scores[tag] > maxScore {
			maxScore = scores[tag]
		}
	}

	if maxScore > 0 {
		for tag, score := range scores {
			prefs.Preferences[tag] = clamp01(score / maxScore)
		}
	}
	prefs.InteractionCounts = counts
	if touched > 0 {
		prefs.Confidence = clamp01(float64(len(prefs.Preferences)) / float64(touched))
	}

	m.logger.WithFields(logrus.Fields{
		"user_id":       userID,
		"tags_touched":  touched,
		"tags_retained": len(prefs.Preferences),
		"confidence":    prefs.Confidence,
	}).Debug("Tag preferences computed")

	return prefs, nil
}

// topTags returns the n highest-preference tags, ties broken
// lexicographically for stable output.
func topTags(preferences map[string]float64, n int) []string {
	type entry struct {
		tag   string
		score float64
	}
	entries := make([]entry, 0, len(preferences))
	for tag, score := range preferences {
		entries = append(entries, entry{tag, score})
	}
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].score != entries[j].score {
			return entries[i].score > entries[j].score
		}
		return entries[i].tag < entries[j].tag
	})
	if len(entries) > n {
		entries = entries[:n]
	}
	tags := make([]string, len(entries))
	for i, e := range entries {
		tags[i] = e.tag
	}
	return tags
}
