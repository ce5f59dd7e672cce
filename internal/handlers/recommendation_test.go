package handlers

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/codera/memefeed/pkg/models"
)

// validationRouter wires the recommendation routes with no engines behind
// them; every request below must be rejected at the boundary before any
// engine is reached.
func validationRouter() *gin.Engine {
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)

	handler := NewRecommendationHandler(nil, nil, nil, nil, logger)

	router := gin.New()
	router.GET("/recommendations/content-based/:userId", handler.ContentBased)
	router.GET("/recommendations/tag-based", handler.TagBased)
	router.GET("/recommendations/collaborative/:userId", handler.Collaborative)
	router.GET("/recommendations/social/:userId", handler.Social)
	router.GET("/recommendations/mixed/:userId", handler.Mixed)
	router.POST("/recommendations/strategy/:userId", handler.AdjustStrategy)
	return router
}

func get(router *gin.Engine, path string) *httptest.ResponseRecorder {
	req, _ := http.NewRequest("GET", path, nil)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestRecommendationHandlerValidation(t *testing.T) {
	router := validationRouter()

	const user = "11111111-1111-1111-1111-111111111111"

	tests := []struct {
		name string
		path string
		code string
	}{
		{"malformed user id", "/recommendations/content-based/not-a-uuid", "INVALID_USER_ID"},
		{"malformed limit", "/recommendations/content-based/" + user + "?limit=abc", "INVALID_LIMIT"},
		{"fractional limit", "/recommendations/content-based/" + user + "?limit=1.5", "INVALID_LIMIT"},
		{"limit above maximum", "/recommendations/content-based/" + user + "?limit=500", "INVALID_OPTIONS"},
		{"zero limit", "/recommendations/content-based/" + user + "?limit=0", "INVALID_OPTIONS"},
		{"malformed page", "/recommendations/collaborative/" + user + "?page=first", "INVALID_PAGE"},
		{"zero page", "/recommendations/collaborative/" + user + "?page=0", "INVALID_OPTIONS"},
		{"malformed min similarity", "/recommendations/collaborative/" + user + "?min_similarity=high", "INVALID_MIN_SIMILARITY"},
		{"malformed hot score weight", "/recommendations/content-based/" + user + "?hot_score_weight=heavy", "INVALID_HOT_SCORE_WEIGHT"},
		{"out of range min similarity", "/recommendations/collaborative/" + user + "?min_similarity=1.5", "INVALID_OPTIONS"},
		{"malformed max similar users", "/recommendations/collaborative/" + user + "?max_similar_users=many", "INVALID_MAX_SIMILAR_USERS"},
		{"malformed exclude id", "/recommendations/social/" + user + "?exclude=garbage", "INVALID_EXCLUDE_ID"},
		{"malformed boolean", "/recommendations/mixed/" + user + "?diversity=probably", "INVALID_BOOLEAN"},
		{"malformed weight", "/recommendations/mixed/" + user + "?weight_hot=heavy", "INVALID_WEIGHT"},
		{"negative weight", "/recommendations/mixed/" + user + "?weight_hot=-1", "INVALID_OPTIONS"},
		{"tag based without tags", "/recommendations/tag-based?limit=10", "MISSING_TAGS"},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			w := get(router, tc.path)
			assert.Equal(t, http.StatusBadRequest, w.Code)
			assert.Contains(t, w.Body.String(), tc.code)
		})
	}
}

func TestAdjustStrategyValidation(t *testing.T) {
	router := validationRouter()

	post := func(path, body string) *httptest.ResponseRecorder {
		req, _ := http.NewRequest("POST", path, strings.NewReader(body))
		req.Header.Set("Content-Type", "application/json")
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	t.Run("malformed user id", func(t *testing.T) {
		w := post("/recommendations/strategy/nope", `{}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_USER_ID")
	})

	t.Run("malformed body", func(t *testing.T) {
		w := post("/recommendations/strategy/11111111-1111-1111-1111-111111111111", `{"engagement_rate": "high"}`)
		assert.Equal(t, http.StatusBadRequest, w.Code)
		assert.Contains(t, w.Body.String(), "INVALID_REQUEST_BODY")
	})
}

func TestParseOptionsDefaultsAndOverrides(t *testing.T) {
	gin.SetMode(gin.TestMode)

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	handler := NewRecommendationHandler(nil, nil, nil, nil, logger)

	newContext := func(rawQuery string) *gin.Context {
		w := httptest.NewRecorder()
		c, _ := gin.CreateTestContext(w)
		c.Request, _ = http.NewRequest("GET", "/?"+rawQuery, nil)
		return c
	}

	t.Run("defaults apply when nothing is set", func(t *testing.T) {
		opts, ok := handler.parseOptions(newContext(""))
		assert.True(t, ok)
		assert.Equal(t, 20, opts.Limit)
		assert.Equal(t, 1, opts.Page)
		assert.True(t, opts.ExcludeInteracted)
		assert.Nil(t, opts.MinSimilarity)
		assert.Nil(t, opts.HotScoreWeight)
		assert.Nil(t, opts.CustomWeights)
	})

	t.Run("query parameters override defaults", func(t *testing.T) {
		opts, ok := handler.parseOptions(newContext(
			"limit=5&page=2&min_similarity=0.4&hot_score_weight=0.2&tags=cats,dogs&exclude_interacted=false&weight_hot=0.7&weight_latest=0.3"))
		assert.True(t, ok)
		assert.Equal(t, 5, opts.Limit)
		assert.Equal(t, 2, opts.Page)
		require.NotNil(t, opts.MinSimilarity)
		assert.Equal(t, 0.4, *opts.MinSimilarity)
		require.NotNil(t, opts.HotScoreWeight)
		assert.Equal(t, 0.2, *opts.HotScoreWeight)
		assert.Equal(t, []string{"cats", "dogs"}, opts.Tags)
		assert.False(t, opts.ExcludeInteracted)
		assert.Equal(t, map[string]float64{
			models.StrategyHot:    0.7,
			models.StrategyLatest: 0.3,
		}, opts.CustomWeights)
	})

	t.Run("explicit zero thresholds survive parsing", func(t *testing.T) {
		opts, ok := handler.parseOptions(newContext("min_similarity=0&hot_score_weight=0"))
		assert.True(t, ok)
		require.NotNil(t, opts.MinSimilarity)
		assert.Zero(t, *opts.MinSimilarity)
		require.NotNil(t, opts.HotScoreWeight)
		assert.Zero(t, *opts.HotScoreWeight)
	})
}
