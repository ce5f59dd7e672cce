package services

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/codera/memefeed/pkg/models"
)

// Repository interfaces consumed by the engine. The engine is read-only
// against all of them; implementations live in internal/repository.

// InteractionRepository loads immutable interaction events.
type InteractionRepository interface {
	// ListForUsers returns events of one type restricted to the given
	// user/item universe. Empty slices mean "no restriction".
	ListForUsers(ctx context.Context, userIDs, itemIDs []uuid.UUID, t models.InteractionType) ([]models.InteractionEvent, error)

	// ListForUser returns all of one user's events for the given types.
	ListForUser(ctx context.Context, userID uuid.UUID, types []models.InteractionType) ([]models.InteractionEvent, error)

	// CountSince counts a user's events at or after the given instant.
	CountSince(ctx context.Context, userID uuid.UUID, since time.Time) (int, error)
}

// ItemRepository loads recommendable memes.
type ItemRepository interface {
	List(ctx context.Context, filter models.MemeFilter) ([]models.Meme, error)

	// ListPublicSample returns a bounded sample of public memes, hottest
	// first. The bound keeps matrix computation tractable; it is a tunable,
	// not a correctness requirement.
	ListPublicSample(ctx context.Context, limit int) ([]models.Meme, error)
}

// UserRepository loads account rows.
type UserRepository interface {
	// ListActiveSample returns a bounded sample of recently active users.
	ListActiveSample(ctx context.Context, limit int) ([]models.User, error)
}

// FollowRepository loads directed follow edges.
type FollowRepository interface {
	// ListEdges returns every edge touching any of the given users.
	ListEdges(ctx context.Context, userIDs []uuid.UUID) ([]models.FollowEdge, error)
}

// Repositories bundles the four stores the engine reads from.
type Repositories struct {
	Interactions InteractionRepository
	Items        ItemRepository
	Users        UserRepository
	Follows      FollowRepository
}

// BumpLevel selects which segment of a family version to increment.
type BumpLevel string

const (
	BumpPatch BumpLevel = "patch"
	BumpMinor BumpLevel = "minor"
	BumpMajor BumpLevel = "major"
)

// ErrCacheMiss is returned by CacheBackend.Get when no entry exists.
var ErrCacheMiss = cacheMissError{}

type cacheMissError struct{}

func (cacheMissError) Error() string { return "cache miss" }

// CacheBackend is the injectable key-value store plus version counter the
// versioned cache layer runs on. The redis implementation is the production
// one; tests use an in-memory backend.
type CacheBackend interface {
	Get(ctx context.Context, key string) (string, error)
	Set(ctx context.Context, key, value string, ttl time.Duration) error
	Del(ctx context.Context, key string) error

	// Version returns the family's current version, creating it at "1.0.0"
	// on first read.
	Version(ctx context.Context, family string) (string, error)

	// BumpVersion atomically increments one segment of the family version
	// and resets the lower segments. Concurrent readers never observe a
	// half-updated version.
	BumpVersion(ctx context.Context, family string, level BumpLevel) (string, error)
}
