package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/internal/metrics"
)

// cacheEnvelope is the stored form of every versioned cache entry. Validity
// requires the embedded version to match the family's current version;
// stale entries are left in place and expire by TTL.
type cacheEnvelope struct {
	Data       json.RawMessage `json:"data"`
	Version    string          `json:"version"`
	ComputedAt time.Time       `json:"computed_at"`
}

// VersionedCache wraps expensive computations behind a cache key plus a
// per-family version counter. Invalidation bumps the counter instead of
// deleting keys, so whole families go stale in one atomic write.
type VersionedCache struct {
	backend CacheBackend
	logger  *logrus.Logger
}

func NewVersionedCache(backend CacheBackend, logger *logrus.Logger) *VersionedCache {
	return &VersionedCache{backend: backend, logger: logger}
}

// Bump invalidates a whole cache family by incrementing its version.
func (c *VersionedCache) Bump(ctx context.Context, family string, level BumpLevel) (string, error) {
	return c.backend.BumpVersion(ctx, family, level)
}

// Version exposes the family's current version counter.
func (c *VersionedCache) Version(ctx context.Context, family string) (string, error) {
	return c.backend.Version(ctx, family)
}

// StoreValue writes a raw value outside the versioned envelope. Entries
// written this way survive family bumps. A zero ttl means no expiry.
func (c *VersionedCache) StoreValue(ctx context.Context, key, value string, ttl time.Duration) error {
	return c.backend.Set(ctx, key, value, ttl)
}

// FetchValue reads a raw value written by StoreValue; ErrCacheMiss when
// absent.
func (c *VersionedCache) FetchValue(ctx context.Context, key string) (string, error) {
	return c.backend.Get(ctx, key)
}

// WithVersion returns the cached value for key when its embedded version
// matches the family's current version, otherwise invokes compute and
// stores the fresh result. Corrupt payloads are deleted before recompute;
// they are never served. Two concurrent misses may both compute - last
// write wins and both callers get a correct answer.
func WithVersion[T any](
	ctx context.Context,
	c *VersionedCache,
	family, key string,
	ttl time.Duration,
	compute func(ctx context.Context) (T, error),
) (T, bool, error) {
	var zero T

	version, err := c.backend.Version(ctx, family)
	if err != nil {
		return zero, false, fmt.Errorf("failed to read cache version for %s: %w", family, err)
	}

	fullKey := family + ":" + key

	if raw, err := c.backend.Get(ctx, fullKey); err == nil {
		var envelope cacheEnvelope
		if err := json.Unmarshal([]byte(raw), &envelope); err != nil {
			// Corrupt entry: drop it and recompute, never serve it.
			c.logger.WithError(err).WithField("key", fullKey).
				Warn("Deleting unparseable cache entry")
			if delErr := c.backend.Del(ctx, fullKey); delErr != nil {
				c.logger.WithError(delErr).WithField("key", fullKey).
					Warn("Failed to delete corrupt cache entry")
			}
		} else if envelope.Version == version {
			var value T
			if err := json.Unmarshal(envelope.Data, &value); err != nil {
				c.logger.WithError(err).WithField("key", fullKey).
					Warn("Deleting cache entry with unparseable payload")
				if delErr := c.backend.Del(ctx, fullKey); delErr != nil {
					c.logger.WithError(delErr).WithField("key", fullKey).
						Warn("Failed to delete corrupt cache entry")
				}
			} else {
				metrics.CacheHit(family)
				return value, true, nil
			}
		}
	} else if err != ErrCacheMiss {
		c.logger.WithError(err).WithField("key", fullKey).Warn("Cache read failed")
	}

	metrics.CacheMiss(family)

	value, err := compute(ctx)
	if err != nil {
		return zero, false, err
	}

	data, err := json.Marshal(value)
	if err != nil {
		c.logger.WithError(err).WithField("key", fullKey).Warn("Failed to marshal cache payload")
		return value, false, nil
	}

	envelope := cacheEnvelope{Data: data, Version: version, ComputedAt: time.Now()}
	raw, err := json.Marshal(envelope)
	if err == nil {
		if err := c.backend.Set(ctx, fullKey, string(raw), ttl); err != nil {
			c.logger.WithError(err).WithField("key", fullKey).Warn("Failed to store cache entry")
		}
	}

	return value, false, nil
}

// RedisCacheBackend is the production CacheBackend.
type RedisCacheBackend struct {
	client *redis.Client
}

const initialVersion = "1.0.0"

// bumpScript parses "major.minor.patch", increments the requested segment
// and resets the lower ones in a single atomic EVAL.
var bumpScript = redis.NewScript(`
local v = redis.call('GET', KEYS[1])
if not v then v = ARGV[2] end
local maj, min, pat = string.match(v, '^(%d+)%.(%d+)%.(%d+)$')
if not maj then maj, min, pat = string.match(ARGV[2], '^(%d+)%.(%d+)%.(%d+)$') end
maj, min, pat = tonumber(maj), tonumber(min), tonumber(pat)
if ARGV[1] == 'major' then
	maj, min, pat = maj + 1, 0, 0
elseif ARGV[1] == 'minor' then
	min, pat = min + 1, 0
else
	pat = pat + 1
end
local next = maj .. '.' .. min .. '.' .. pat
redis.call('SET', KEYS[1], next)
return next
`)

func NewRedisCacheBackend(client *redis.Client) *RedisCacheBackend {
	return &RedisCacheBackend{client: client}
}

func (b *RedisCacheBackend) Get(ctx context.Context, key string) (string, error) {
	val, err := b.client.Get(ctx, key).Result()
	if err == redis.Nil {
		return "", ErrCacheMiss
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (b *RedisCacheBackend) Set(ctx context.Context, key, value string, ttl time.Duration) error {
	return b.client.Set(ctx, key, value, ttl).Err()
}

func (b *RedisCacheBackend) Del(ctx context.Context, key string) error {
	return b.client.Del(ctx, key).Err()
}

func (b *RedisCacheBackend) versionKey(family string) string {
	return "cache_version:" + family
}

func (b *RedisCacheBackend) Version(ctx context.Context, family string) (string, error) {
	val, err := b.client.Get(ctx, b.versionKey(family)).Result()
	if err == redis.Nil {
		// First read seeds the counter; SetNX keeps concurrent seeders
		// from clobbering a bump that raced in between.
		if err := b.client.SetNX(ctx, b.versionKey(family), initialVersion, 0).Err(); err != nil {
			return "", err
		}
		return b.client.Get(ctx, b.versionKey(family)).Result()
	}
	if err != nil {
		return "", err
	}
	return val, nil
}

func (b *RedisCacheBackend) BumpVersion(ctx context.Context, family string, level BumpLevel) (string, error) {
	res, err := bumpScript.Run(ctx, b.client, []string{b.versionKey(family)}, string(level), initialVersion).Result()
	if err != nil {
		return "", fmt.Errorf("failed to bump version for %s: %w", family, err)
	}
	next, ok := res.(string)
	if !ok {
		return "", fmt.Errorf("unexpected bump result type %T", res)
	}
	return next, nil
}

// Cache family names. Write paths bump these when interactions or tags
// change; readers go stale immediately without any key enumeration.
const (
	cacheFamilyTagPreferences  = "tag_preferences"
	cacheFamilyRecommendations = "recommendations"
	cacheFamilyMixed           = "mixed"
)

// CacheFamilies lists every family so administrative tooling can bump them
// all after bulk imports.
var CacheFamilies = []string{
	cacheFamilyTagPreferences,
	cacheFamilyRecommendations,
	cacheFamilyMixed,
}
