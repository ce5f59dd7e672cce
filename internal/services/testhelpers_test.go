package services

import (
	"context"
	"fmt"
	"io"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/internal/config"
	"github.com/codera/memefeed/pkg/models"
)

// Fixed IDs keep expectations readable across tests.
var (
	uuid1 = uuid.MustParse("00000000-0000-0000-0000-000000000001")
	uuid2 = uuid.MustParse("00000000-0000-0000-0000-000000000002")
	uuid3 = uuid.MustParse("00000000-0000-0000-0000-000000000003")
	uuid4 = uuid.MustParse("00000000-0000-0000-0000-000000000004")
	uuid5 = uuid.MustParse("00000000-0000-0000-0000-000000000005")
)

func testLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testEngineConfig() *config.EngineConfig {
	return &config.EngineConfig{
		Decay: config.DecayConfig{Factor: 0.95, MaxDays: 365, Floor: 0.1},
		Weights: config.InteractionWeights{
			Like:    1.0,
			Comment: 2.0,
			Share:   3.0,
			Collect: 1.5,
			View:    0.1,
			Dislike: -0.5,
		},
		TagPreference: config.TagPreferenceConfig{MinInteractions: 3, ColdStartConfidence: 0.1},
		Content: config.ContentConfig{
			TopPreferredTags: 10,
			MinSimilarity:    0.1,
			HotScoreWeight:   0.3,
			HotScoreNorm:     1000,
		},
		Collaborative: config.CollaborativeConfig{MinSimilarity: 0.1, MaxSimilarUsers: 50},
		Social: config.SocialConfig{
			DirectWeight:       1.0,
			MutualWeight:       1.5,
			SecondDegreeWeight: 0.6,
			ThirdDegreeWeight:  0.3,
			MaxItemScore:       20,
			MinReasonWeight:    2,
			MaxReasons:         3,
			ExpansionRounds:    2,
			MaxGraphNodes:      2000,
		},
		Mixed: config.MixedConfig{ActivityWindow: 720 * time.Hour, ActivityFloor: 5},
		Caching: config.CachingConfig{
			TagPreferencesTTL:  time.Hour,
			RecommendationsTTL: 15 * time.Minute,
			MixedTTL:           10 * time.Minute,
		},
		Sampling: config.SamplingConfig{ActiveUserCap: 1000, PublicItemCap: 5000},
		Warmer:   config.WarmerConfig{BatchSize: 50, BatchDelay: 0},
	}
}

// memoryBackend is an in-memory CacheBackend with the same version bump
// semantics as the redis implementation.
type memoryBackend struct {
	mu       sync.Mutex
	entries  map[string]string
	versions map[string]string
}

func newMemoryBackend() *memoryBackend {
	return &memoryBackend{
		entries:  map[string]string{},
		versions: map[string]string{},
	}
}

func (b *memoryBackend) Get(_ context.Context, key string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	val, ok := b.entries[key]
	if !ok {
		return "", ErrCacheMiss
	}
	return val, nil
}

func (b *memoryBackend) Set(_ context.Context, key, value string, _ time.Duration) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.entries[key] = value
	return nil
}

func (b *memoryBackend) Del(_ context.Context, key string) error {
	b.mu.Lock()
	defer b.mu.Unlock()
	delete(b.entries, key)
	return nil
}

func (b *memoryBackend) Version(_ context.Context, family string) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if v, ok := b.versions[family]; ok {
		return v, nil
	}
	b.versions[family] = initialVersion
	return initialVersion, nil
}

func (b *memoryBackend) BumpVersion(_ context.Context, family string, level BumpLevel) (string, error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	current, ok := b.versions[family]
	if !ok {
		current = initialVersion
	}
	var maj, min, pat int
	if _, err := fmt.Sscanf(current, "%d.%d.%d", &maj, &min, &pat); err != nil {
		return "", err
	}
	switch level {
	case BumpMajor:
		maj, min, pat = maj+1, 0, 0
	case BumpMinor:
		min, pat = min+1, 0
	default:
		pat++
	}
	next := fmt.Sprintf("%d.%d.%d", maj, min, pat)
	b.versions[family] = next
	return next, nil
}

type fakeInteractionRepo struct {
	events []models.InteractionEvent
	err    error
}

func (r *fakeInteractionRepo) ListForUsers(_ context.Context, userIDs, itemIDs []uuid.UUID, t models.InteractionType) ([]models.InteractionEvent, error) {
	if r.err != nil {
		return nil, r.err
	}
	userSet := idSet(userIDs)
	itemSet := idSet(itemIDs)
	var out []models.InteractionEvent
	for _, ev := range r.events {
		if ev.Type != t {
			continue
		}
		if userSet != nil {
			if _, ok := userSet[ev.UserID]; !ok {
				continue
			}
		}
		if itemSet != nil {
			if _, ok := itemSet[ev.ItemID]; !ok {
				continue
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *fakeInteractionRepo) ListForUser(_ context.Context, userID uuid.UUID, types []models.InteractionType) ([]models.InteractionEvent, error) {
	if r.err != nil {
		return nil, r.err
	}
	typeSet := make(map[models.InteractionType]struct{}, len(types))
	for _, t := range types {
		typeSet[t] = struct{}{}
	}
	var out []models.InteractionEvent
	for _, ev := range r.events {
		if ev.UserID != userID {
			continue
		}
		if len(typeSet) > 0 {
			if _, ok := typeSet[ev.Type]; !ok {
				continue
			}
		}
		out = append(out, ev)
	}
	return out, nil
}

func (r *fakeInteractionRepo) CountSince(_ context.Context, userID uuid.UUID, since time.Time) (int, error) {
	if r.err != nil {
		return 0, r.err
	}
	count := 0
	for _, ev := range r.events {
		if ev.UserID == userID && !ev.OccurredAt.Before(since) {
			count++
		}
	}
	return count, nil
}

type fakeItemRepo struct {
	memes []models.Meme
	err   error
}

func (r *fakeItemRepo) List(_ context.Context, filter models.MemeFilter) ([]models.Meme, error) {
	if r.err != nil {
		return nil, r.err
	}
	idFilter := idSet(filter.IDs)
	excluded := idSet(filter.ExcludeIDs)
	var out []models.Meme
	for _, m := range r.memes {
		if m.Visibility != "public" {
			continue
		}
		if idFilter != nil {
			if _, ok := idFilter[m.ID]; !ok {
				continue
			}
		}
		if excluded != nil {
			if _, ok := excluded[m.ID]; ok {
				continue
			}
		}
		if len(filter.Tags) > 0 && !tagsOverlap(m.Tags, filter.Tags) {
			continue
		}
		if len(filter.Types) > 0 && !contains(filter.Types, m.Type) {
			continue
		}
		out = append(out, m)
		if filter.Limit > 0 && len(out) >= filter.Limit {
			break
		}
	}
	return out, nil
}

func (r *fakeItemRepo) ListPublicSample(_ context.Context, limit int) ([]models.Meme, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := make([]models.Meme, 0, len(r.memes))
	for _, m := range r.memes {
		if m.Visibility == "public" {
			out = append(out, m)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].HotScore > out[j].HotScore })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeUserRepo struct {
	users []models.User
	err   error
}

func (r *fakeUserRepo) ListActiveSample(_ context.Context, limit int) ([]models.User, error) {
	if r.err != nil {
		return nil, r.err
	}
	out := r.users
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

type fakeFollowRepo struct {
	edges []models.FollowEdge
	err   error
}

func (r *fakeFollowRepo) ListEdges(_ context.Context, userIDs []uuid.UUID) ([]models.FollowEdge, error) {
	if r.err != nil {
		return nil, r.err
	}
	touching := idSet(userIDs)
	if touching == nil {
		return nil, nil
	}
	var out []models.FollowEdge
	for _, e := range r.edges {
		_, a := touching[e.FollowerID]
		_, b := touching[e.FollowingID]
		if a || b {
			out = append(out, e)
		}
	}
	return out, nil
}

func idSet(ids []uuid.UUID) map[uuid.UUID]struct{} {
	if len(ids) == 0 {
		return nil
	}
	set := make(map[uuid.UUID]struct{}, len(ids))
	for _, id := range ids {
		set[id] = struct{}{}
	}
	return set
}

func tagsOverlap(a, b []string) bool {
	for _, x := range a {
		if contains(b, x) {
			return true
		}
	}
	return false
}

func contains(list []string, v string) bool {
	for _, x := range list {
		if x == v {
			return true
		}
	}
	return false
}

func testRepos(interactions *fakeInteractionRepo, items *fakeItemRepo, users *fakeUserRepo, follows *fakeFollowRepo) *Repositories {
	if interactions == nil {
		interactions = &fakeInteractionRepo{}
	}
	if items == nil {
		items = &fakeItemRepo{}
	}
	if users == nil {
		users = &fakeUserRepo{}
	}
	if follows == nil {
		follows = &fakeFollowRepo{}
	}
	return &Repositories{
		Interactions: interactions,
		Items:        items,
		Users:        users,
		Follows:      follows,
	}
}

func publicMeme(id uuid.UUID, tags []string, hot float64) models.Meme {
	return models.Meme{
		ID:         id,
		Type:       "image",
		Title:      "meme " + id.String()[:8],
		Tags:       tags,
		AuthorID:   uuid.New(),
		HotScore:   hot,
		Visibility: "public",
		CreatedAt:  time.Now().Add(-24 * time.Hour),
	}
}

func eventAt(user, item uuid.UUID, t models.InteractionType, at time.Time) models.InteractionEvent {
	return models.InteractionEvent{UserID: user, ItemID: item, Type: t, OccurredAt: at}
}
