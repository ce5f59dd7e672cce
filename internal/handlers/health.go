package handlers

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/internal/database"
)

type HealthHandler struct {
	logger *logrus.Logger
	db     *database.Database
}

func NewHealthHandler(logger *logrus.Logger, db *database.Database) *HealthHandler {
	return &HealthHandler{
		logger: logger,
		db:     db,
	}
}

func (h *HealthHandler) Check(c *gin.Context) {
	checks := h.db.Health(c.Request.Context())

	status := "healthy"
	httpStatus := http.StatusOK
	components := make(map[string]string, len(checks))
	for name, err := range checks {
		if err != nil {
			h.logger.WithError(err).WithField("component", name).Warn("Health check failed")
			components[name] = err.Error()
			status = "unhealthy"
			httpStatus = http.StatusServiceUnavailable
			continue
		}
		components[name] = "ok"
	}

	c.JSON(httpStatus, gin.H{
		"status":     status,
		"components": components,
		"checked_at": time.Now().UTC(),
	})
}
