package handlers

import (
	"github.com/sirupsen/logrus"

	"github.com/codera/memefeed/internal/database"
	"github.com/codera/memefeed/internal/services"
)

type Handlers struct {
	Health         *HealthHandler
	Recommendation *RecommendationHandler
	Admin          *AdminHandler
}

func New(logger *logrus.Logger, db *database.Database, svc *services.Services) *Handlers {
	return &Handlers{
		Health:         NewHealthHandler(logger, db),
		Recommendation: NewRecommendationHandler(svc.Orchestrator, svc.Content, svc.Collaborative, svc.Social, logger),
		Admin:          NewAdminHandler(svc.Cache, svc.Warmer, logger),
	}
}
