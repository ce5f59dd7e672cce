package handlers

import (
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/internal/services"
	"github.com/codera/memefeed/pkg/models"
)

type RecommendationHandler struct {
	orchestrator *services.BlendingOrchestrator
	content      *services.ContentSimilarityEngine
	collab       *services.UserSimilarityEngine
	social       *services.SocialSimilarityEngine
	logger       *logrus.Logger
}

func NewRecommendationHandler(
	orchestrator *services.BlendingOrchestrator,
	content *services.ContentSimilarityEngine,
	collab *services.UserSimilarityEngine,
	social *services.SocialSimilarityEngine,
	logger *logrus.Logger,
) *RecommendationHandler {
	return &RecommendationHandler{
		orchestrator: orchestrator,
		content:      content,
		collab:       collab,
		social:       social,
		logger:       logger,
	}
}

func badRequest(c *gin.Context, code, message string) {
	c.JSON(http.StatusBadRequest, gin.H{
		"error": gin.H{
			"code":    code,
			"message": message,
		},
	})
}

func (h *RecommendationHandler) userID(c *gin.Context) (uuid.UUID, bool) {
	userID, err := uuid.Parse(c.Param("userId"))
	if err != nil {
		badRequest(c, "INVALID_USER_ID", "Invalid user ID format")
		return uuid.Nil, false
	}
	return userID, true
}

// parseOptions builds RecOptions from query parameters. Malformed
// numerics are a client error, not a silently applied default.
func (h *RecommendationHandler) parseOptions(c *gin.Context) (services.RecOptions, bool) {
	opts := services.DefaultRecOptions()

	if limitStr := c.Query("limit"); limitStr != "" {
		limit, err := strconv.Atoi(limitStr)
		if err != nil {
			badRequest(c, "INVALID_LIMIT", "limit must be an integer")
			return opts, false
		}
		opts.Limit = limit
	}
	if pageStr := c.Query("page"); pageStr != "" {
		page, err := strconv.Atoi(pageStr)
		if err != nil {
			badRequest(c, "INVALID_PAGE", "page must be an integer")
			return opts, false
		}
		opts.Page = page
	}
	if simStr := c.Query("min_similarity"); simStr != "" {
		sim, err := strconv.ParseFloat(simStr, 64)
		if err != nil {
			badRequest(c, "INVALID_MIN_SIMILARITY", "min_similarity must be a number")
			return opts, false
		}
		opts.MinSimilarity = &sim
	}
	if weightStr := c.Query("hot_score_weight"); weightStr != "" {
		weight, err := strconv.ParseFloat(weightStr, 64)
		if err != nil {
			badRequest(c, "INVALID_HOT_SCORE_WEIGHT", "hot_score_weight must be a number")
			return opts, false
		}
		opts.HotScoreWeight = &weight
	}
	if maxStr := c.Query("max_similar_users"); maxStr != "" {
		max, err := strconv.Atoi(maxStr)
		if err != nil {
			badRequest(c, "INVALID_MAX_SIMILAR_USERS", "max_similar_users must be an integer")
			return opts, false
		}
		opts.MaxSimilarUsers = max
	}

	if excludeStr := c.Query("exclude"); excludeStr != "" {
		for _, itemStr := range strings.Split(excludeStr, ",") {
			itemID, err := uuid.Parse(strings.TrimSpace(itemStr))
			if err != nil {
				badRequest(c, "INVALID_EXCLUDE_ID", "exclude must be a comma-separated list of UUIDs")
				return opts, false
			}
			opts.ExcludeIDs = append(opts.ExcludeIDs, itemID)
		}
	}
	if tagsStr := c.Query("tags"); tagsStr != "" {
		opts.Tags = strings.Split(tagsStr, ",")
	}
	if typesStr := c.Query("types"); typesStr != "" {
		opts.Types = strings.Split(typesStr, ",")
	}

	for param, target := range map[string]*bool{
		"exclude_interacted": &opts.ExcludeInteracted,
		"include_hot_score":  &opts.IncludeHotScore,
		"diversity":          &opts.IncludeDiversity,
		"cold_start":         &opts.IncludeColdStartAnalysis,
		"force_refresh":      &opts.ForceRefresh,
	} {
		if value := c.Query(param); value != "" {
			parsed, err := strconv.ParseBool(value)
			if err != nil {
				badRequest(c, "INVALID_BOOLEAN", param+" must be a boolean")
				return opts, false
			}
			*target = parsed
		}
	}

	for _, strategy := range []string{
		models.StrategyContentBased,
		models.StrategyCollaborative,
		models.StrategySocial,
		models.StrategyHot,
		models.StrategyLatest,
	} {
		if weightStr := c.Query("weight_" + strategy); weightStr != "" {
			weight, err := strconv.ParseFloat(weightStr, 64)
			if err != nil {
				badRequest(c, "INVALID_WEIGHT", "weight_"+strategy+" must be a number")
				return opts, false
			}
			if opts.CustomWeights == nil {
				opts.CustomWeights = make(map[string]float64)
			}
			opts.CustomWeights[strategy] = weight
		}
	}

	if err := opts.Validate(); err != nil {
		badRequest(c, "INVALID_OPTIONS", err.Error())
		return opts, false
	}
	return opts, true
}

func (h *RecommendationHandler) serveRanked(
	c *gin.Context,
	run func() (*models.RankedCandidates, error),
) {
	result, err := run()
	if err != nil {
		h.logger.WithError(err).Error("Failed to generate recommendations")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "RECOMMENDATION_GENERATION_FAILED",
				"message": "Failed to generate recommendations",
			},
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RecommendationHandler) ContentBased(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	opts, ok := h.parseOptions(c)
	if !ok {
		return
	}
	h.serveRanked(c, func() (*models.RankedCandidates, error) {
		return h.content.ContentBasedRecommendations(c.Request.Context(), userID, opts)
	})
}

func (h *RecommendationHandler) TagBased(c *gin.Context) {
	opts, ok := h.parseOptions(c)
	if !ok {
		return
	}
	if len(opts.Tags) == 0 {
		badRequest(c, "MISSING_TAGS", "tags query parameter is required")
		return
	}
	h.serveRanked(c, func() (*models.RankedCandidates, error) {
		return h.content.TagBasedRecommendations(c.Request.Context(), opts.Tags, opts)
	})
}

func (h *RecommendationHandler) Collaborative(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	opts, ok := h.parseOptions(c)
	if !ok {
		return
	}
	h.serveRanked(c, func() (*models.RankedCandidates, error) {
		return h.collab.CollaborativeFilteringRecommendations(c.Request.Context(), userID, opts)
	})
}

func (h *RecommendationHandler) Social(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	opts, ok := h.parseOptions(c)
	if !ok {
		return
	}
	h.serveRanked(c, func() (*models.RankedCandidates, error) {
		return h.social.SocialCollaborativeFilteringRecommendations(c.Request.Context(), userID, opts)
	})
}

func (h *RecommendationHandler) Mixed(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}
	opts, ok := h.parseOptions(c)
	if !ok {
		return
	}

	result, err := h.orchestrator.GetMixedRecommendations(c.Request.Context(), userID, opts)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to generate mixed recommendations")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "RECOMMENDATION_GENERATION_FAILED",
				"message": "Failed to generate recommendations",
			},
		})
		return
	}
	c.JSON(http.StatusOK, result)
}

func (h *RecommendationHandler) Stats(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	stats, err := h.orchestrator.GetRecommendationAlgorithmStats(c.Request.Context(), userID)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to compute algorithm stats")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "STATS_GENERATION_FAILED",
				"message": "Failed to compute algorithm stats",
			},
		})
		return
	}
	c.JSON(http.StatusOK, stats)
}

func (h *RecommendationHandler) AdjustStrategy(c *gin.Context) {
	userID, ok := h.userID(c)
	if !ok {
		return
	}

	var behavior models.UserBehavior
	if err := c.ShouldBindJSON(&behavior); err != nil {
		badRequest(c, "INVALID_REQUEST_BODY", "Invalid request body format")
		return
	}

	adjustment, err := h.orchestrator.AdjustRecommendationStrategy(c.Request.Context(), userID, behavior)
	if err != nil {
		h.logger.WithError(err).WithField("user_id", userID).Error("Failed to adjust strategy")
		c.JSON(http.StatusInternalServerError, gin.H{
			"error": gin.H{
				"code":    "STRATEGY_ADJUSTMENT_FAILED",
				"message": "Failed to adjust recommendation strategy",
			},
		})
		return
	}
	c.JSON(http.StatusOK, adjustment)
}
