package handlers

import (
	"net/http"
	"slices"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/internal/metrics"
	"github.com/codera/memefeed/internal/services"
)

// AdminHandler exposes operational endpoints: cache version bumps and
// cache warming.
type AdminHandler struct {
	cache  *services.VersionedCache
	warmer *services.CacheWarmer
	logger *logrus.Logger
}

func NewAdminHandler(cache *services.VersionedCache, warmer *services.CacheWarmer, logger *logrus.Logger) *AdminHandler {
	return &AdminHandler{
		cache:  cache,
		warmer: warmer,
		logger: logger,
	}
}

// BumpCacheVersion increments a cache family version. Entries are left in
// place; the version mismatch makes readers recompute.
func (h *AdminHandler) BumpCacheVersion(c *gin.Context) {
	family := c.Param("family")
	if !slices.Contains(services.CacheFamilies, family) {
		badRequest(c, "UNKNOWN_CACHE_FAMILY", "Unknown cache family")
		return
	}

	level := services.BumpLevel(c.DefaultQuery("level", string(services.BumpPatch)))
	switch level {
	case services.BumpPatch, services.BumpMinor, services.BumpMajor:
	default:
		badRequest(c, "INVALID_BUMP_LEVEL", "level must be patch, minor, or major")
		return
	}

	version, err := h.cache.Bump(c.Request.Context(), family, level)
	if err != nil {
		h.logger.WithError(err).WithField("family", family).Error("Failed to bump cache version")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "CACHE_BUMP_FAILED",
				"message": "Failed to bump cache version",
			},
		})
		return
	}
	metrics.VersionBump(family, string(level))

	c.JSON(http.StatusOK, gin.H{
		"family":  family,
		"level":   level,
		"version": version,
	})
}

// WarmCache precomputes mixed recommendations for a sample of active
// users.
func (h *AdminHandler) WarmCache(c *gin.Context) {
	warmed, err := h.warmer.WarmActiveUsers(c.Request.Context())
	if err != nil {
		h.logger.WithError(err).Error("Cache warming failed")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "CACHE_WARM_FAILED",
				"message": "Failed to warm recommendation cache",
			},
		})
		return
	}

	c.JSON(http.StatusOK, gin.H{
		"warmed": warmed,
	})
}
